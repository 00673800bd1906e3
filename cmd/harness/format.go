package main

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/linker"
)

// witType renders t in WIT syntax. Named definitions print their name.
func witType(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return witKind(v.Kind)
	}
	return fmt.Sprintf("%T", t)
}

func witKind(k wit.TypeDefKind) string {
	switch k := k.(type) {
	case *wit.List:
		return "list<" + witType(k.Type) + ">"
	case *wit.Option:
		return "option<" + witType(k.Type) + ">"
	case *wit.Result:
		switch {
		case k.OK == nil && k.Err == nil:
			return "result"
		case k.Err == nil:
			return "result<" + witType(k.OK) + ">"
		}
		return "result<" + witType(k.OK) + ", " + witType(k.Err) + ">"
	case *wit.Tuple:
		parts := make([]string, len(k.Types))
		for i, t := range k.Types {
			parts[i] = witType(t)
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	case *wit.Own:
		return witType(k.Type)
	case *wit.Borrow:
		return "borrow<" + witType(k.Type) + ">"
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
	case wit.Type:
		return witType(k)
	}
	return fmt.Sprintf("%T", k)
}

func signature(sig linker.Signature) string {
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = p.Name + ": " + witType(p.Type)
	}
	s := sig.Name + ": func(" + strings.Join(params, ", ") + ")"
	if sig.Result != nil {
		s += " -> " + witType(sig.Result)
	}
	return s
}

// printWorld writes the imports and exports of w, one item per line.
func printWorld(b *strings.Builder, w *linker.World) {
	section := func(title string, items []linker.Extern) {
		fmt.Fprintf(b, "%s:\n", title)
		for _, ext := range items {
			switch ext.Kind {
			case "func":
				fmt.Fprintf(b, "  %s\n", signature(*ext.Func))
			case "instance":
				fmt.Fprintf(b, "  interface %s\n", ext.Name)
				for _, sig := range ext.Funcs {
					fmt.Fprintf(b, "    %s\n", signature(sig))
				}
			default:
				fmt.Fprintf(b, "  %s %s\n", ext.Kind, ext.Name)
			}
		}
	}
	section("imports", w.Imports)
	section("exports", w.Exports)
}
