package staging

import "testing"

func TestBufferPushAndDrainNew(t *testing.T) {
	b := &Buffer{}
	b.PushNew(Record{Values: map[string]string{"id": "1"}})
	b.PushNew(Record{Values: map[string]string{"id": "2"}})

	if b.NewLen() != 2 {
		t.Fatalf("expected 2 new records, got %d", b.NewLen())
	}

	drained := b.DrainNew()
	if len(drained) != 2 || drained[0].Values["id"] != "1" || drained[1].Values["id"] != "2" {
		t.Fatalf("unexpected drain order: %+v", drained)
	}
	if b.NewLen() != 0 {
		t.Fatalf("expected new queue empty after drain, got %d", b.NewLen())
	}
}

func TestPromoteAndEvictOldest(t *testing.T) {
	b := &Buffer{}
	recs := []Record{
		{Values: map[string]string{"id": "1"}},
		{Values: map[string]string{"id": "2"}},
		{Values: map[string]string{"id": "3"}},
	}
	b.PromoteToOld(recs)
	if b.OldLen() != 3 {
		t.Fatalf("expected 3 old records, got %d", b.OldLen())
	}

	evicted := b.EvictOldest(2)
	if len(evicted) != 2 || evicted[0].Values["id"] != "1" || evicted[1].Values["id"] != "2" {
		t.Fatalf("unexpected eviction order: %+v", evicted)
	}
	if b.OldLen() != 1 {
		t.Fatalf("expected 1 remaining old record, got %d", b.OldLen())
	}

	// Evicting more than available returns only what's left.
	rest := b.EvictOldest(10)
	if len(rest) != 1 || rest[0].Values["id"] != "3" {
		t.Fatalf("unexpected final eviction: %+v", rest)
	}
	if b.OldLen() != 0 {
		t.Fatalf("expected empty old queue, got %d", b.OldLen())
	}
}

func TestEvictOldestZeroOrNegative(t *testing.T) {
	b := &Buffer{}
	b.PromoteToOld([]Record{{Values: map[string]string{"id": "1"}}})
	if got := b.EvictOldest(0); got != nil {
		t.Fatalf("expected nil for n=0, got %+v", got)
	}
	if got := b.EvictOldest(-1); got != nil {
		t.Fatalf("expected nil for negative n, got %+v", got)
	}
	if b.OldLen() != 1 {
		t.Fatalf("expected old queue untouched, got %d", b.OldLen())
	}
}

func TestStagingTableLazyCreateAndOrder(t *testing.T) {
	s := New()
	s.Table("daily").PushNew(Record{Values: map[string]string{"id": "1"}})
	s.Table("hourly").PushNew(Record{Values: map[string]string{"id": "2"}})
	s.Table("daily").PushNew(Record{Values: map[string]string{"id": "3"}})

	tables := s.Tables()
	want := []string{"daily", "hourly"}
	if len(tables) != len(want) {
		t.Fatalf("expected %d tables, got %d", len(want), len(tables))
	}
	for i, name := range want {
		if tables[i] != name {
			t.Fatalf("table %d: expected %q, got %q", i, name, tables[i])
		}
	}
	if s.Table("daily").NewLen() != 2 {
		t.Fatalf("expected 2 records staged for daily, got %d", s.Table("daily").NewLen())
	}
}
