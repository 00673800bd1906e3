package abi

import (
	"go.bytecodealliance.org/wit"

	harness "github.com/wippyai/component-harness"
	"github.com/wippyai/component-harness/resource"
)

// Resources maps resource handles across the component boundary. res is
// the resource type definition the own or borrow refers to.
type Resources interface {
	// LiftHandle turns a guest handle into a host handle.
	LiftHandle(res *wit.TypeDef, own bool, guest uint32) (resource.Handle, error)
	// LowerHandle turns a host handle into a guest handle.
	LowerHandle(res *wit.TypeDef, own bool, h resource.Handle) (uint32, error)
}

// Options are the canonical options in effect for a lift or lower.
type Options struct {
	Memory    harness.Memory
	Alloc     harness.Allocator
	Resources Resources
	Encoding  StringEncoding
}

// ResourceOf returns the resource type of an own or borrow handle type.
func ResourceOf(t wit.Type) (res *wit.TypeDef, own bool, ok bool) {
	td, isDef := t.(*wit.TypeDef)
	if !isDef {
		return nil, false, false
	}
	switch k := td.Kind.(type) {
	case *wit.Own:
		return k.Type, true, true
	case *wit.Borrow:
		return k.Type, false, true
	case wit.Type:
		return ResourceOf(k)
	}
	return nil, false, false
}

// TypeName renders a type the way WIT spells it.
func TypeName(t wit.Type) string {
	switch t := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.S8:
		return "s8"
	case wit.U8:
		return "u8"
	case wit.S16:
		return "s16"
	case wit.U16:
		return "u16"
	case wit.S32:
		return "s32"
	case wit.U32:
		return "u32"
	case wit.S64:
		return "s64"
	case wit.U64:
		return "u64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if t.Name != nil {
			return *t.Name
		}
		return kindName(t.Kind)
	}
	return "unknown"
}

func kindName(k wit.TypeDefKind) string {
	switch k := k.(type) {
	case *wit.Record:
		return "record"
	case *wit.Variant:
		return "variant"
	case *wit.Enum:
		return "enum"
	case *wit.Flags:
		return "flags"
	case *wit.Resource:
		return "resource"
	case *wit.List:
		return "list<" + TypeName(k.Type) + ">"
	case *wit.Tuple:
		s := "tuple<"
		for i, e := range k.Types {
			if i > 0 {
				s += ", "
			}
			s += TypeName(e)
		}
		return s + ">"
	case *wit.Option:
		return "option<" + TypeName(k.Type) + ">"
	case *wit.Result:
		return "result<" + TypeName(k.OK) + ", " + TypeName(k.Err) + ">"
	case *wit.Own:
		return "own<" + TypeName(k.Type) + ">"
	case *wit.Borrow:
		return "borrow<" + TypeName(k.Type) + ">"
	case wit.Type:
		return TypeName(k)
	}
	return "unknown"
}
