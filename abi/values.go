package abi

import (
	"fmt"
	"sort"
	"strings"
)

// Dynamic component values. Primitive types map onto Go types directly:
// bool, int8..int64, uint8..uint64, float32, float64, rune for char and
// string. list<u8> is []byte and other lists are []any. Resource handles
// are resource.Handle values naming host-table entries.

// Field is a named record field.
type Field struct {
	Value any
	Name  string
}

// Record is a record value with fields in declaration order.
type Record []Field

// Get returns the value of the named field.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (r Record) String() string {
	parts := make([]string, len(r))
	for i, f := range r {
		parts[i] = fmt.Sprintf("%s: %v", f.Name, f.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Tuple is a tuple value.
type Tuple []any

// Variant is a variant value; Value is nil for payload-less cases.
type Variant struct {
	Value any
	Case  string
}

func (v Variant) String() string {
	if v.Value == nil {
		return v.Case
	}
	return fmt.Sprintf("%s(%v)", v.Case, v.Value)
}

// Enum is an enum case name.
type Enum string

// Option is an option value.
type Option struct {
	Value  any
	IsSome bool
}

// Some wraps v as a present option.
func Some(v any) Option { return Option{Value: v, IsSome: true} }

// None is the absent option.
func None() Option { return Option{} }

func (o Option) String() string {
	if !o.IsSome {
		return "none"
	}
	return fmt.Sprintf("some(%v)", o.Value)
}

// Result is a result value. Value is the ok or error payload, nil when the
// corresponding type is absent.
type Result struct {
	Value any
	IsErr bool
}

// Ok builds a successful result.
func Ok(v any) Result { return Result{Value: v} }

// Err builds a failed result.
func Err(v any) Result { return Result{Value: v, IsErr: true} }

func (r Result) String() string {
	if r.IsErr {
		return fmt.Sprintf("err(%v)", r.Value)
	}
	return fmt.Sprintf("ok(%v)", r.Value)
}

// Flags is the set of flags that are on.
type Flags map[string]bool

func (f Flags) String() string {
	var on []string
	for k, v := range f {
		if v {
			on = append(on, k)
		}
	}
	sort.Strings(on)
	return "{" + strings.Join(on, ", ") + "}"
}
