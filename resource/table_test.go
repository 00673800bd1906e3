package resource

import (
	"errors"
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

type dropCounter struct {
	drops int
}

func (d *dropCounter) Drop() { d.drops++ }

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h, err := table.Insert(1, 100, true)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if h == 0 {
		t.Fatal("expected non-zero handle")
	}

	rep, err := table.Rep(h, 1)
	if err != nil || rep != 100 {
		t.Fatalf("Rep = %d, %v", rep, err)
	}
	if _, err := table.Rep(h, 2); !errors.Is(err, ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
	if _, err := table.Get(0); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("handle 0 should be unknown, got %v", err)
	}
	if _, err := table.Get(h + 1); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}

	e, err := table.Remove(h)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if e.Rep != 100 || !e.Own {
		t.Errorf("removed entry = %+v", e)
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d after remove", table.Len())
	}
}

func TestTable_SlotReuse(t *testing.T) {
	table := NewTable()
	h1, _ := table.Insert(1, 1, true)
	h2, _ := table.Insert(1, 2, true)
	if _, err := table.Remove(h1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	h3, _ := table.Insert(1, 3, true)
	if h3 != h1 {
		t.Errorf("expected freed handle %d to be reused, got %d", h1, h3)
	}
	if h2 == h3 {
		t.Error("live handle reused")
	}
}

func TestTable_BorrowBlocksDrop(t *testing.T) {
	table := NewTable()
	h, _ := table.Insert(7, 42, true)

	if err := table.Borrow(h); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := table.Remove(h); !errors.Is(err, ErrOutstandingBorrow) {
		t.Fatalf("expected ErrOutstandingBorrow, got %v", err)
	}
	if err := table.EndBorrow(h); err != nil {
		t.Fatalf("end borrow: %v", err)
	}
	if _, err := table.Remove(h); err != nil {
		t.Fatalf("remove after borrow ended: %v", err)
	}
}

func TestTable_TakeOwned(t *testing.T) {
	table := NewTable()
	own, _ := table.Insert(3, 9, true)
	borrow, _ := table.Insert(3, 9, false)

	if _, err := table.TakeOwned(borrow, 3); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned, got %v", err)
	}
	rep, err := table.TakeOwned(own, 3)
	if err != nil || rep != 9 {
		t.Fatalf("TakeOwned = %d, %v", rep, err)
	}
	if _, err := table.Get(own); err == nil {
		t.Error("owned handle should be gone")
	}
	if got := table.Borrows(); len(got) != 1 || got[0] != borrow {
		t.Errorf("Borrows() = %v", got)
	}
}

func TestTable_Closed(t *testing.T) {
	table := NewTable()
	table.Insert(1, 1, true)
	if err := table.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := table.Insert(1, 1, true); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if table.Len() != 0 {
		t.Error("closed table should be empty")
	}
}

func TestHostTable_Basic(t *testing.T) {
	table := NewHostTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	typ := TypeName("wasi:http/types@0.2.0", "fields")
	d := &dropCounter{}
	h, err := table.Insert(typ, d)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := Lookup[*dropCounter](table, h, typ)
	if err != nil || got != d {
		t.Fatalf("Lookup = %v, %v", got, err)
	}
	if _, err := Lookup[*dropCounter](table, h, "other#type"); !errors.Is(err, ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
	if _, err := Lookup[string](table, h, typ); !errors.Is(err, ErrWrongType) {
		t.Fatalf("expected ErrWrongType for Go type mismatch, got %v", err)
	}
	if _, err := table.GetTyped(0, typ); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}

	if _, ok := table.Remove(h); !ok {
		t.Fatal("remove failed")
	}
	if d.drops != 1 {
		t.Errorf("Drop called %d times", d.drops)
	}
	if len(obs.events) != 2 || obs.events[0].Kind != EventCreated || obs.events[1].Kind != EventDropped {
		t.Errorf("unexpected events: %+v", obs.events)
	}
	if obs.events[1].Type != typ {
		t.Errorf("event type = %q", obs.events[1].Type)
	}
}

func TestHostTable_CloseDropsAll(t *testing.T) {
	table := NewHostTable()
	a, b := &dropCounter{}, &dropCounter{}
	table.Insert("x#a", a)
	table.Insert("x#b", b)

	if err := table.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if a.drops != 1 || b.drops != 1 {
		t.Errorf("drops = %d, %d", a.drops, b.drops)
	}
	if _, err := table.Insert("x#a", a); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestHostTable_SlotReuse(t *testing.T) {
	table := NewHostTable()
	fields := TypeName("wasi:http/types", "fields")
	response := TypeName("wasi:http/types", "outgoing-response")

	h1, _ := table.Insert(fields, "headers")
	table.Remove(h1)
	h2, err := table.Insert(response, "response")
	if err != nil {
		t.Fatal(err)
	}
	if h2 != h1 {
		t.Fatalf("expected freed handle %d to be reused, got %d", h1, h2)
	}
	if _, err := table.GetTyped(h1, fields); !errors.Is(err, ErrWrongType) {
		t.Fatalf("stale handle: expected ErrWrongType, got %v", err)
	}
}
