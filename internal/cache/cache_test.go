package cache

import (
	"testing"
	"time"
)

func TestKeyRecord_DistinguishesAdjustedFlag(t *testing.T) {
	adjusted, asTraded := true, false
	a := KeyRecord{Op: "historical", MIC: "XNAS", Ticker: "AAPL", Adjusted: &adjusted}.String()
	b := KeyRecord{Op: "historical", MIC: "XNAS", Ticker: "AAPL", Adjusted: &asTraded}.String()
	if a == b {
		t.Fatalf("adjusted and as-traded keys collide: %q", a)
	}
}

func TestKeyRecord_StableRendering(t *testing.T) {
	r := KeyRecord{Op: "close", MIC: "XLON", Ticker: "SHEL", Time: "2023-06-02T00:00:00Z"}
	first := r.String()
	second := r.String()
	if first != second {
		t.Fatalf("rendering not stable: %q vs %q", first, second)
	}
	if first == "" || first[:5] != "close" {
		t.Fatalf("key must start with the operation, got %q", first)
	}
}

func TestKeyRecord_EveryFieldContributes(t *testing.T) {
	base := KeyRecord{Op: "op"}
	variants := []KeyRecord{
		{Op: "op", MIC: "XNAS"},
		{Op: "op", Ticker: "AAPL"},
		{Op: "op", From: "USD"},
		{Op: "op", To: "EUR"},
		{Op: "op", Start: "a"},
		{Op: "op", End: "b"},
		{Op: "op", Time: "c"},
		{Op: "op", Term: "apple"},
		{Op: "op", ID: "US0378331005"},
	}
	seen := map[string]bool{base.String(): true}
	for _, v := range variants {
		k := v.String()
		if seen[k] {
			t.Fatalf("key %q collides with another variant", k)
		}
		seen[k] = true
	}
}

func TestMemory_PutGet(t *testing.T) {
	m := NewMemory(0)
	ctx := t.Context()
	if err := m.Put(ctx, "k", []byte("v"), TTLIndefinite); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("get = %q, %v, %v", got, ok, err)
	}
	_, ok, _ = m.Get(ctx, "missing")
	if ok {
		t.Fatal("missing key reported present")
	}
}

func TestMemory_ExpiredEntryIsGone(t *testing.T) {
	m := NewMemory(0)
	ctx := t.Context()
	if err := m.Put(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	_, ok, _ := m.Get(ctx, "k")
	if ok {
		t.Fatal("expired entry still served")
	}
}

func TestMemory_MaxItemsEvicts(t *testing.T) {
	m := NewMemory(2)
	ctx := t.Context()
	_ = m.Put(ctx, "a", []byte("1"), TTLIndefinite)
	_ = m.Put(ctx, "b", []byte("2"), TTLIndefinite)
	_ = m.Put(ctx, "c", []byte("3"), TTLIndefinite)
	present := 0
	for _, k := range []string{"a", "b", "c"} {
		if _, ok, _ := m.Get(ctx, k); ok {
			present++
		}
	}
	if present > 2 {
		t.Fatalf("cache holds %d entries, cap is 2", present)
	}
	if _, ok, _ := m.Get(ctx, "c"); !ok {
		t.Fatal("most recent insert must survive eviction")
	}
}
