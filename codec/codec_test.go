package codec

import (
	"testing"

	"github.com/streamstore/logengine/types"
)

func TestRoundTripUncompressed(t *testing.T) {
	rb := types.RecordBatch{
		BaseOffset:     42,
		Type:           types.BatchTypeData,
		FirstTimestamp: 1000,
		MaxTimestamp:   1005,
		ProducerID:     -1,
		ProducerEpoch:  -1,
		BaseSequence:   -1,
		Records: []types.Record{
			{TimestampDelta: 0, OffsetDelta: 0, Key: []byte("k1"), Value: []byte("v1")},
			{TimestampDelta: 5, OffsetDelta: 1, Key: nil, Value: []byte("v2"), Headers: []types.Header{{Key: "h", Value: []byte("x")}}},
		},
	}
	rb.LastOffsetDelta = 1
	rb.RecordCount = uint32(len(rb.Records))

	buf := EncodeBatch(rb)
	got, err := DecodeBatch(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rb.Equal(got) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, rb)
	}
}

func TestDecodeRejectsCorruptHeader(t *testing.T) {
	rb := types.RecordBatch{BaseOffset: 1, RecordCount: 0}
	buf := EncodeBatch(rb)
	b := buf.Bytes()
	b[10] ^= 0xFF // flip a header byte
	if _, err := DecodeBatch(b); err == nil {
		t.Fatalf("expected corrupt header error")
	}
}

func TestDecodeRejectsCorruptBody(t *testing.T) {
	rb := types.RecordBatch{
		BaseOffset:  1,
		RecordCount: 1,
		Records:     []types.Record{{Key: []byte("k"), Value: []byte("v")}},
	}
	buf := EncodeBatch(rb)
	b := buf.Bytes()
	b[len(b)-1] ^= 0xFF // flip a body byte
	if _, err := DecodeBatch(b); err == nil {
		t.Fatalf("expected corrupt body error")
	}
}

func TestDecodeShortRead(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, 10)); err == nil {
		t.Fatalf("expected short read error")
	}
}
