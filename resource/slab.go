package resource

// slab stores entries addressed by 1-based handles and reuses freed slots.
type slab[E any] struct {
	entries []slot[E]
	free    []Handle
}

type slot[E any] struct {
	value E
	valid bool
}

func newSlab[E any]() slab[E] {
	return slab[E]{
		entries: make([]slot[E], 0, 16),
		free:    make([]Handle, 0, 8),
	}
}

func (s *slab[E]) insert(v E) Handle {
	if n := len(s.free); n > 0 {
		h := s.free[n-1]
		s.free = s.free[:n-1]
		s.entries[h-1] = slot[E]{value: v, valid: true}
		return h
	}
	s.entries = append(s.entries, slot[E]{value: v, valid: true})
	return Handle(len(s.entries))
}

func (s *slab[E]) get(h Handle) (*E, bool) {
	if h == 0 || int(h) > len(s.entries) {
		return nil, false
	}
	e := &s.entries[h-1]
	if !e.valid {
		return nil, false
	}
	return &e.value, true
}

func (s *slab[E]) remove(h Handle) (E, bool) {
	var zero E
	if h == 0 || int(h) > len(s.entries) {
		return zero, false
	}
	e := &s.entries[h-1]
	if !e.valid {
		return zero, false
	}
	v := e.value
	*e = slot[E]{}
	s.free = append(s.free, h)
	return v, true
}

func (s *slab[E]) len() int {
	n := 0
	for _, e := range s.entries {
		if e.valid {
			n++
		}
	}
	return n
}

func (s *slab[E]) each(fn func(Handle, *E) bool) {
	for i := range s.entries {
		if s.entries[i].valid {
			if !fn(Handle(i+1), &s.entries[i].value) {
				return
			}
		}
	}
}

func (s *slab[E]) reset() {
	s.entries = nil
	s.free = nil
}
