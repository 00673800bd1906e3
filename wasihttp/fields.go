package wasihttp

import (
	"net/http"
	"strings"
	"sync"

	"github.com/wippyai/component-harness/abi"
)

type field struct {
	name  string
	value []byte
}

// Fields is the host value behind fields, headers and trailers handles.
// Names compare case-insensitively and keep insertion order.
type Fields struct {
	entries   []field
	mu        sync.RWMutex
	immutable bool
}

// NewFields copies h into a mutable field list.
func NewFields(h http.Header) *Fields {
	f := &Fields{}
	for name, values := range h {
		for _, v := range values {
			f.entries = append(f.entries, field{name: strings.ToLower(name), value: []byte(v)})
		}
	}
	return f
}

func headerError(c string) abi.Result {
	return abi.Err(abi.Variant{Case: c})
}

// validName reports whether name is a non-empty HTTP token.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

func validValue(v []byte) bool {
	for _, c := range v {
		if c == '\r' || c == '\n' || c == 0 {
			return false
		}
	}
	return true
}

// check validates a mutation. A zero Result means it may proceed.
func (f *Fields) check(name string, values ...[]byte) (abi.Result, bool) {
	if f.immutable {
		return headerError("immutable"), false
	}
	if !validName(name) {
		return headerError("invalid-syntax"), false
	}
	for _, v := range values {
		if !validValue(v) {
			return headerError("invalid-syntax"), false
		}
	}
	return abi.Result{}, true
}

// Get returns the values of name.
func (f *Fields) Get(name string) [][]byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := [][]byte{}
	for _, e := range f.entries {
		if strings.EqualFold(e.name, name) {
			out = append(out, e.value)
		}
	}
	return out
}

// Has reports whether name has at least one value.
func (f *Fields) Has(name string) bool {
	return len(f.Get(name)) > 0
}

// Append adds a value for name.
func (f *Fields) Append(name string, value []byte) abi.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res, ok := f.check(name, value); !ok {
		return res
	}
	f.entries = append(f.entries, field{name: name, value: value})
	return abi.Ok(nil)
}

// Set replaces every value of name.
func (f *Fields) Set(name string, values [][]byte) abi.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res, ok := f.check(name, values...); !ok {
		return res
	}
	f.remove(name)
	for _, v := range values {
		f.entries = append(f.entries, field{name: name, value: v})
	}
	return abi.Ok(nil)
}

// Delete removes every value of name.
func (f *Fields) Delete(name string) abi.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res, ok := f.check(name); !ok {
		return res
	}
	f.remove(name)
	return abi.Ok(nil)
}

func (f *Fields) remove(name string) {
	kept := f.entries[:0]
	for _, e := range f.entries {
		if !strings.EqualFold(e.name, name) {
			kept = append(kept, e)
		}
	}
	f.entries = kept
}

// Entries returns (name, value) tuples in insertion order.
func (f *Fields) Entries() []abi.Tuple {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]abi.Tuple, len(f.entries))
	for i, e := range f.entries {
		out[i] = abi.Tuple{e.name, e.value}
	}
	return out
}

// Clone returns a mutable copy.
func (f *Fields) Clone() *Fields {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &Fields{entries: append([]field(nil), f.entries...)}
}

// Header converts the fields to a net/http header.
func (f *Fields) Header() http.Header {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h := make(http.Header, len(f.entries))
	for _, e := range f.entries {
		h.Add(e.name, string(e.value))
	}
	return h
}

func (f *Fields) freeze() *Fields {
	f.mu.Lock()
	f.immutable = true
	f.mu.Unlock()
	return f
}
