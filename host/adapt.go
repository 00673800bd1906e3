package host

import (
	"context"
	"fmt"
	"reflect"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/resource"
)

// Func is a host function over dynamic component values. A returned error
// traps the calling guest.
type Func func(ctx context.Context, args []any) (any, error)

var (
	ctxType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
	anyType    = reflect.TypeOf((*any)(nil)).Elem()
	bytesType  = reflect.TypeOf([]byte(nil))
	recordType = reflect.TypeOf(abi.Record(nil))
)

// Adapt turns fn into a Func for a function with the given component
// signature. fn may already be a Func. Otherwise it must be a Go function
// taking an optional context.Context followed by one parameter per
// component parameter, returning an optional value (required when result
// is non-nil) and an optional trailing error.
func Adapt(name string, fn any, params []wit.Type, result wit.Type) (Func, error) {
	switch f := fn.(type) {
	case Func:
		return f, nil
	case func(context.Context, []any) (any, error):
		return f, nil
	}

	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Path(name).GoType(fmt.Sprintf("%T", fn)).Detail("host import is not a function").Build()
	}
	rt := rv.Type()
	if rt.IsVariadic() {
		return nil, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Path(name).Detail("variadic host functions are not supported").Build()
	}

	hasCtx := rt.NumIn() > 0 && rt.In(0) == ctxType
	first := 0
	if hasCtx {
		first = 1
	}
	if rt.NumIn()-first != len(params) {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Path(name).GoType(rt.String()).
			Detail("expects %d parameters, the import has %d", rt.NumIn()-first, len(params)).Build()
	}

	hasErr := rt.NumOut() > 0 && rt.Out(rt.NumOut()-1) == errorType
	values := rt.NumOut()
	if hasErr {
		values--
	}
	switch {
	case values > 1:
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Path(name).GoType(rt.String()).Detail("returns %d values", values).Build()
	case result == nil && values != 0:
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Path(name).GoType(rt.String()).Detail("returns a value but the import has no result").Build()
	case result != nil && values != 1:
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Path(name).GoType(rt.String()).WitType(abi.TypeName(result)).
			Detail("returns no value but the import has a result").Build()
	}

	return func(ctx context.Context, args []any) (any, error) {
		in := make([]reflect.Value, rt.NumIn())
		if hasCtx {
			in[0] = reflect.ValueOf(ctx)
		}
		for i, a := range args {
			v, err := ToGo(a, rt.In(first+i))
			if err != nil {
				return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
					Path(name).WitType(abi.TypeName(params[i])).Cause(err).
					Detail("argument %d", i).Build()
			}
			in[first+i] = v
		}

		out := rv.Call(in)
		if hasErr {
			if e := out[len(out)-1]; !e.IsNil() {
				return nil, e.Interface().(error)
			}
		}
		if values == 0 {
			return nil, nil
		}
		return FromGo(out[0], result), nil
	}, nil
}

// ToGo converts a dynamic component value to a value of Go type t.
func ToGo(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	vv := reflect.ValueOf(v)
	if vv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(vv)
		return out, nil
	}

	switch val := v.(type) {
	case abi.Option:
		if t.Kind() == reflect.Pointer {
			if !val.IsSome {
				return reflect.Zero(t), nil
			}
			inner, err := ToGo(val.Value, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			p := reflect.New(t.Elem())
			p.Elem().Set(inner)
			return p, nil
		}
		if !val.IsSome {
			return reflect.Zero(t), nil
		}
		return ToGo(val.Value, t)
	case abi.Record:
		if t.Kind() == reflect.Struct {
			return recordToStruct(val, t)
		}
		if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
			s, err := recordToStruct(val, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			p := reflect.New(t.Elem())
			p.Elem().Set(s)
			return p, nil
		}
	case abi.Enum:
		if t.Kind() == reflect.String {
			return reflect.ValueOf(string(val)).Convert(t), nil
		}
	case []any:
		if t.Kind() == reflect.Slice {
			out := reflect.MakeSlice(t, len(val), len(val))
			for i, e := range val {
				ev, err := ToGo(e, t.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
				}
				out.Index(i).Set(ev)
			}
			return out, nil
		}
	case resource.Handle:
		if t.Kind() == reflect.Uint32 {
			return vv.Convert(t), nil
		}
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if vv.CanInt() {
			if reflect.Zero(t).OverflowInt(vv.Int()) {
				return reflect.Value{}, fmt.Errorf("%v overflows %s", v, t)
			}
			return vv.Convert(t), nil
		}
		if vv.CanUint() {
			if vv.Uint() > 1<<63-1 || reflect.Zero(t).OverflowInt(int64(vv.Uint())) {
				return reflect.Value{}, fmt.Errorf("%v overflows %s", v, t)
			}
			return vv.Convert(t), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if vv.CanUint() {
			if reflect.Zero(t).OverflowUint(vv.Uint()) {
				return reflect.Value{}, fmt.Errorf("%v overflows %s", v, t)
			}
			return vv.Convert(t), nil
		}
		if vv.CanInt() && vv.Int() >= 0 {
			if reflect.Zero(t).OverflowUint(uint64(vv.Int())) {
				return reflect.Value{}, fmt.Errorf("%v overflows %s", v, t)
			}
			return vv.Convert(t), nil
		}
	case reflect.Float32, reflect.Float64:
		if vv.CanFloat() {
			return vv.Convert(t), nil
		}
	case reflect.String:
		if vv.Kind() == reflect.String {
			return vv.Convert(t), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", v, t)
}

func recordToStruct(rec abi.Record, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		fv, ok := rec.Get(fieldName(f))
		if !ok {
			continue
		}
		v, err := ToGo(fv, f.Type)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out.Field(i).Set(v)
	}
	return out, nil
}

// fieldName is the record field a struct field maps to: the wit tag when
// present, else the kebab-cased Go name.
func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("wit"); tag != "" {
		return tag
	}
	return ToKebab(f.Name)
}

// FromGo converts a Go value back into the dynamic form the abi package
// lowers. t guides pointers (option) and structs (record).
func FromGo(v reflect.Value, t wit.Type) any {
	if !v.IsValid() {
		return nil
	}
	kind := kindOf(t)

	if opt, ok := kind.(*wit.Option); ok && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return abi.None()
		}
		return abi.Some(FromGo(v.Elem(), opt.Type))
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Pointer && v.Type() != anyType {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		if rec, ok := kind.(*wit.Record); ok {
			return structToRecord(v, rec)
		}
	case reflect.Slice:
		if v.Type() == bytesType || v.Type() == recordType {
			return v.Interface()
		}
		if list, ok := kind.(*wit.List); ok {
			out := make([]any, v.Len())
			for i := range out {
				out[i] = FromGo(v.Index(i), list.Type)
			}
			return out
		}
	}
	return v.Interface()
}

func structToRecord(v reflect.Value, rec *wit.Record) abi.Record {
	types := make(map[string]wit.Type, len(rec.Fields))
	for _, f := range rec.Fields {
		types[f.Name] = f.Type
	}
	t := v.Type()
	out := make(abi.Record, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldName(f)
		out = append(out, abi.Field{Name: name, Value: FromGo(v.Field(i), types[name])})
	}
	return out
}

// kindOf follows type aliases to the underlying definition kind.
func kindOf(t wit.Type) wit.TypeDefKind {
	for {
		td, ok := t.(*wit.TypeDef)
		if !ok {
			return nil
		}
		next, isAlias := td.Kind.(wit.Type)
		if !isAlias {
			return td.Kind
		}
		t = next
	}
}
