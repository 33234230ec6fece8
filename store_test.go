package netsched

import "testing"

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	if _, ok, err := store.GetItem("missing"); ok || err != nil {
		t.Errorf("Missing key should report ok=false, err=nil, got ok=%v err=%v", ok, err)
	}

	if err := store.SetItem("k", "v1"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	if err := store.SetItem("k", "v2"); err != nil {
		t.Fatalf("SetItem overwrite: %v", err)
	}

	v, ok, err := store.GetItem("k")
	if err != nil || !ok {
		t.Fatalf("GetItem: ok=%v err=%v", ok, err)
	}
	if v != "v2" {
		t.Errorf("Expected overwritten value v2, got %q", v)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 item, got %d", store.Len())
	}
}

func TestBadgerStoreRoundtrip(t *testing.T) {
	store, err := OpenBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadgerStore: %v", err)
	}
	defer store.Close()

	if _, ok, err := store.GetItem("missing"); ok || err != nil {
		t.Errorf("Missing key should report ok=false, err=nil, got ok=%v err=%v", ok, err)
	}

	if err := store.SetItem("netsched/telemetry", `[{"connected":true}]`); err != nil {
		t.Fatalf("SetItem: %v", err)
	}

	v, ok, err := store.GetItem("netsched/telemetry")
	if err != nil || !ok {
		t.Fatalf("GetItem: ok=%v err=%v", ok, err)
	}
	if v != `[{"connected":true}]` {
		t.Errorf("Value corrupted: %q", v)
	}
}
