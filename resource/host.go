package resource

import (
	"fmt"
	"sync"
)

type hostEntry struct {
	value any
	typ   string
}

// HostTable maps handles to Go values owned by the host. Types are named
// "interface#resource" without the interface version, e.g.
// "wasi:http/types#fields", so that one host implementation serves every
// compatible version a component imports.
type HostTable struct {
	observers []Observer
	slab      slab[hostEntry]
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewHostTable creates an empty host table.
func NewHostTable() *HostTable {
	return &HostTable{slab: newSlab[hostEntry]()}
}

// TypeName joins an interface name and a resource name.
func TypeName(iface, name string) string {
	return iface + "#" + name
}

// Insert adds a value and returns its handle.
func (t *HostTable) Insert(typ string, value any) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	h := t.slab.insert(hostEntry{typ: typ, value: value})
	t.mu.Unlock()

	t.notify(Event{Kind: EventCreated, Handle: h, Type: typ, Value: value})
	return h, nil
}

// Get retrieves a value by handle.
func (t *HostTable) Get(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.slab.get(h)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// TypeOf returns the resource type name of h.
func (t *HostTable) TypeOf(h Handle) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.slab.get(h)
	if !ok {
		return "", false
	}
	return e.typ, true
}

// GetTyped retrieves a value only if it has the expected resource type.
func (t *HostTable) GetTyped(h Handle, typ string) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.slab.get(h)
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownHandle, h)
	}
	if e.typ != typ {
		return nil, fmt.Errorf("%w: handle %d is %s, want %s", ErrWrongType, h, e.typ, typ)
	}
	return e.value, nil
}

// Remove drops a value, calling Drop on it when it implements Dropper.
func (t *HostTable) Remove(h Handle) (any, bool) {
	t.mu.Lock()
	e, ok := t.slab.remove(h)
	t.mu.Unlock()
	if !ok {
		return nil, false
	}
	if d, ok := e.value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Kind: EventDropped, Handle: h, Type: e.typ, Value: e.value})
	return e.value, true
}

// RemoveValue drops h only while it still holds v, which must be
// comparable. It reports whether h was removed.
func (t *HostTable) RemoveValue(h Handle, v any) bool {
	t.mu.Lock()
	e, ok := t.slab.get(h)
	if !ok || e.value != v {
		t.mu.Unlock()
		return false
	}
	removed, _ := t.slab.remove(h)
	t.mu.Unlock()

	if d, ok := removed.value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Kind: EventDropped, Handle: h, Type: removed.typ, Value: removed.value})
	return true
}

// Lookup returns the value of h as T.
func Lookup[T any](t *HostTable, h Handle, typ string) (T, error) {
	var zero T
	v, err := t.GetTyped(h, typ)
	if err != nil {
		return zero, err
	}
	tv, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: handle %d holds %T", ErrWrongType, h, v)
	}
	return tv, nil
}

// Subscribe adds an observer for lifecycle events.
func (t *HostTable) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live values.
func (t *HostTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slab.len()
}

// Close drops every value and stops accepting inserts.
func (t *HostTable) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	var handles []Handle
	t.slab.each(func(h Handle, _ *hostEntry) bool {
		handles = append(handles, h)
		return true
	})
	t.mu.Unlock()

	for _, h := range handles {
		t.Remove(h)
	}
	return nil
}

func (t *HostTable) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
