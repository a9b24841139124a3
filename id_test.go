package strata

import "testing"

func TestNewID(t *testing.T) {
	id1 := NewID()
	id2 := NewID()
	if len(id1) != 36 {
		t.Errorf("expected 36 chars (UUIDv7), got %d: %s", len(id1), id1)
	}
	if id1 == id2 {
		t.Error("two IDs should be unique")
	}
	if id1 >= id2 {
		t.Error("sequential UUIDv7s should be time-ordered")
	}
}

func TestMetadataClone(t *testing.T) {
	md := Metadata{"a": 1, "b": "two"}
	cp := md.Clone()
	cp["a"] = 99
	if md["a"] != 1 {
		t.Error("mutating the clone leaked into the original")
	}
	if Metadata(nil).Clone() != nil {
		t.Error("nil metadata should clone to nil")
	}
}
