package linker

import (
	"fmt"
	"strings"
)

// InstantiationError locates a linking failure inside the component: the
// section being processed, the index of the item within it and, when
// known, the import or export name involved.
type InstantiationError struct {
	Cause   error
	Section string
	Name    string
	Index   int
	Depth   int
}

func (e *InstantiationError) Error() string {
	var b strings.Builder
	b.WriteString("instantiation failed at ")
	b.WriteString(e.Section)
	if e.Index >= 0 {
		fmt.Fprintf(&b, " %d", e.Index)
	}
	if e.Depth > 0 {
		fmt.Fprintf(&b, " (nested component depth %d)", e.Depth)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *InstantiationError) Unwrap() error {
	return e.Cause
}

func (s *state) fail(section string, index int, name string, cause error) error {
	if _, ok := cause.(*InstantiationError); ok {
		return cause
	}
	return &InstantiationError{
		Section: section,
		Index:   index,
		Name:    name,
		Depth:   s.depth,
		Cause:   cause,
	}
}
