package types

import "testing"

func TestOverridePropagatesMaxRecordsPerSegment(t *testing.T) {
	base := DefaultConfiguration("/data")
	override := Configuration{MaxRecordsPerSegment: 500}
	merged := base.Override(override)
	if merged.MaxRecordsPerSegment != 500 {
		t.Fatalf("MaxRecordsPerSegment = %d, want 500", merged.MaxRecordsPerSegment)
	}
}

func TestOverrideLeavesUnsetFieldsAtBaseDefault(t *testing.T) {
	base := DefaultConfiguration("/data")
	merged := base.Override(Configuration{})
	if merged != base {
		t.Fatalf("overriding with a zero-value Configuration changed the result:\n got  %+v\n want %+v", merged, base)
	}
}

func TestOverrideRetentionIsTriState(t *testing.T) {
	base := DefaultConfiguration("/data")
	if base.RetentionBytes != nil {
		t.Fatalf("expected no default byte retention limit")
	}
	limit := int64(1024)
	merged := base.Override(Configuration{RetentionBytes: &limit})
	if merged.RetentionBytes == nil || *merged.RetentionBytes != 1024 {
		t.Fatalf("RetentionBytes = %v, want 1024", merged.RetentionBytes)
	}
}

func TestOverrideSanitizeFilesIsStickyOnceSet(t *testing.T) {
	base := DefaultConfiguration("/data")
	base.SanitizeFiles = true
	merged := base.Override(Configuration{})
	if !merged.SanitizeFiles {
		t.Fatalf("expected SanitizeFiles to stay true when the override doesn't explicitly disable it")
	}
}

func TestCleanupPolicyFlags(t *testing.T) {
	p := CleanupDeleteCompact
	if !p.HasDelete() || !p.HasCompact() {
		t.Fatalf("CleanupDeleteCompact should report both delete and compact")
	}
	if CleanupDelete.HasCompact() {
		t.Fatalf("CleanupDelete should not report compact")
	}
}
