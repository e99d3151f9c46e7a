package consensus

import "testing"

func TestEncodeDecodeCommandRoundTrip(t *testing.T) {
	cmd := Command{
		Kind:      SetCollectibleOffset,
		Namespace: "ns",
		Topic:     "orders",
		Partition: 3,
		Offset:    100,
	}
	data, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeCommand(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != cmd {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, cmd)
	}
}

func TestCommandKindString(t *testing.T) {
	if SetTerm.String() != "set_term" {
		t.Fatalf("SetTerm.String() = %q", SetTerm.String())
	}
	if SetCollectibleOffset.String() != "set_collectible_offset" {
		t.Fatalf("SetCollectibleOffset.String() = %q", SetCollectibleOffset.String())
	}
	if got := CommandKind(200).String(); got == "" {
		t.Fatalf("expected a non-empty fallback string for an unknown kind")
	}
}
