package abi

import (
	"fmt"
	"math"
	"reflect"

	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/resource"
)

func handleOf(h uint32) resource.Handle { return resource.Handle(h) }

func goTypeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}

func mismatch(path []string, v any, wit string) error {
	return errors.TypeMismatch(errors.PhaseLower, path, goTypeName(v), wit)
}

// asInt64 accepts any Go integer that fits in an int64.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float64:
		// JSON numbers arrive as float64.
		if n == math.Trunc(n) && n >= math.MinInt64 && n < math.MaxInt64 {
			return int64(n), true
		}
	}
	return 0, false
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case float64:
		if n == math.Trunc(n) && n >= 0 && n < math.MaxUint64 {
			return uint64(n), true
		}
		return 0, false
	}
	i, ok := asInt64(v)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

// signed range-checks v for an integer of the given bit width.
func signed(v any, bits uint, path []string, wit string) (int64, error) {
	n, ok := asInt64(v)
	if !ok {
		return 0, mismatch(path, v, wit)
	}
	lo, hi := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
	if n < lo || n > hi {
		return 0, errors.New(errors.PhaseLower, errors.KindOutOfBounds).
			Path(path...).WitType(wit).Value(v).
			Detail("value %d out of range for %s", n, wit).Build()
	}
	return n, nil
}

func unsigned(v any, bits uint, path []string, wit string) (uint64, error) {
	n, ok := asUint64(v)
	if !ok {
		return 0, mismatch(path, v, wit)
	}
	if bits < 64 && n > uint64(1)<<bits-1 {
		return 0, errors.New(errors.PhaseLower, errors.KindOutOfBounds).
			Path(path...).WitType(wit).Value(v).
			Detail("value %d out of range for %s", n, wit).Build()
	}
	return n, nil
}

func asFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// asChar accepts a rune or a one-rune string.
func asChar(v any, path []string) (uint32, error) {
	var r rune
	switch c := v.(type) {
	case rune:
		r = c
	case string:
		runes := []rune(c)
		if len(runes) != 1 {
			return 0, mismatch(path, v, "char")
		}
		r = runes[0]
	default:
		return 0, mismatch(path, v, "char")
	}
	if r < 0 || r >= 0x110000 || (r >= 0xD800 && r <= 0xDFFF) {
		return 0, errors.New(errors.PhaseLower, errors.KindInvalidData).
			Path(path...).WitType("char").Value(v).
			Detail("invalid unicode scalar value 0x%x", r).Build()
	}
	return uint32(r), nil
}

// asElems returns the elements of any Go slice or array.
func asElems(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case Tuple:
		return s, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// fieldOf looks up a record field in a Record or a string-keyed map.
func fieldOf(v any, name string) (any, bool, bool) {
	switch r := v.(type) {
	case Record:
		f, ok := r.Get(name)
		return f, ok, true
	case map[string]any:
		f, ok := r[name]
		return f, ok, true
	}
	return nil, false, false
}

func asHandle(v any, path []string, wit string) (resource.Handle, error) {
	switch h := v.(type) {
	case resource.Handle:
		return h, nil
	case uint32:
		return resource.Handle(h), nil
	}
	if n, ok := asUint64(v); ok && n <= math.MaxUint32 {
		return resource.Handle(n), nil
	}
	return 0, mismatch(path, v, wit)
}
