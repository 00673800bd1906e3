package resource

import (
	"fmt"
	"sync"
)

// Entry is one slot of a component instance's handle table.
type Entry struct {
	Type  uint32 // resource type identity assigned by the linker
	Rep   uint32 // i32 representation (guest pointer or host handle)
	Lends uint32 // outstanding borrows of an owned handle
	Own   bool
}

// Table is the handle table of one component instance. Guests see only
// table indices; what a handle refers to is its Rep.
type Table struct {
	slab   slab[Entry]
	mu     sync.Mutex
	closed bool
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{slab: newSlab[Entry]()}
}

// Insert adds an owned or borrowed handle for rep.
func (t *Table) Insert(typeID, rep uint32, own bool) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	return t.slab.insert(Entry{Type: typeID, Rep: rep, Own: own}), nil
}

// Get returns the entry for h.
func (t *Table) Get(h Handle) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.slab.get(h)
	if !ok {
		return Entry{}, fmt.Errorf("%w %d", ErrUnknownHandle, h)
	}
	return *e, nil
}

// GetTyped returns the entry for h if it holds a resource of typeID.
func (t *Table) GetTyped(h Handle, typeID uint32) (Entry, error) {
	e, err := t.Get(h)
	if err != nil {
		return Entry{}, err
	}
	if e.Type != typeID {
		return Entry{}, fmt.Errorf("%w: handle %d has type %d, want %d", ErrWrongType, h, e.Type, typeID)
	}
	return e, nil
}

// Rep returns the representation of a typed handle.
func (t *Table) Rep(h Handle, typeID uint32) (uint32, error) {
	e, err := t.GetTyped(h, typeID)
	if err != nil {
		return 0, err
	}
	return e.Rep, nil
}

// Remove drops h. Owned handles with outstanding borrows cannot be dropped.
func (t *Table) Remove(h Handle) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.slab.get(h)
	if !ok {
		return Entry{}, fmt.Errorf("%w %d", ErrUnknownHandle, h)
	}
	if e.Lends > 0 {
		return Entry{}, fmt.Errorf("%w: handle %d has %d", ErrOutstandingBorrow, h, e.Lends)
	}
	v, _ := t.slab.remove(h)
	return v, nil
}

// TakeOwned removes an owned handle of typeID, transferring ownership of
// its rep to the caller.
func (t *Table) TakeOwned(h Handle, typeID uint32) (uint32, error) {
	e, err := t.GetTyped(h, typeID)
	if err != nil {
		return 0, err
	}
	if !e.Own {
		return 0, fmt.Errorf("%w: handle %d", ErrNotOwned, h)
	}
	removed, err := t.Remove(h)
	if err != nil {
		return 0, err
	}
	return removed.Rep, nil
}

// Borrow records a lend of an owned handle.
func (t *Table) Borrow(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.slab.get(h)
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownHandle, h)
	}
	if e.Own {
		e.Lends++
	}
	return nil
}

// EndBorrow releases a lend recorded by Borrow.
func (t *Table) EndBorrow(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.slab.get(h)
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownHandle, h)
	}
	if e.Own && e.Lends > 0 {
		e.Lends--
	}
	return nil
}

// Borrows returns the handles currently holding borrows.
func (t *Table) Borrows() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Handle
	t.slab.each(func(h Handle, e *Entry) bool {
		if !e.Own {
			out = append(out, h)
		}
		return true
	})
	return out
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slab.len()
}

// Close invalidates every handle.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.slab.reset()
	return nil
}
