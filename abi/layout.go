package abi

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/wasm"
)

// Flattening limits of the canonical ABI. Signatures exceeding them pass
// values through linear memory instead.
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1
)

// AlignTo rounds offset up to a multiple of align.
func AlignTo(offset, align uint32) uint32 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// DiscriminantSize returns the byte width of a discriminant for n cases.
func DiscriminantSize(n int) uint32 {
	switch {
	case n <= 1<<8:
		return 1
	case n <= 1<<16:
		return 2
	default:
		return 4
	}
}

// FlagsWords returns the number of i32 words holding n flags in flat form.
func FlagsWords(n int) int {
	return (n + 31) / 32
}

func flagsSize(n int) uint32 {
	switch {
	case n == 0:
		return 0
	case n <= 8:
		return 1
	case n <= 16:
		return 2
	default:
		return 4 * uint32(FlagsWords(n))
	}
}

// SizeOf returns the size of t in linear memory.
func SizeOf(t wit.Type) uint32 {
	size, _ := layout(t)
	return size
}

// AlignOf returns the alignment of t in linear memory.
func AlignOf(t wit.Type) uint32 {
	_, align := layout(t)
	return align
}

func layout(t wit.Type) (size, align uint32) {
	switch t := t.(type) {
	case nil:
		return 0, 1
	case wit.Bool, wit.U8, wit.S8:
		return 1, 1
	case wit.U16, wit.S16:
		return 2, 2
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return 4, 4
	case wit.U64, wit.S64, wit.F64:
		return 8, 8
	case wit.String:
		return 8, 4
	case *wit.TypeDef:
		return layoutKind(t.Kind)
	}
	return 0, 1
}

func layoutKind(k wit.TypeDefKind) (size, align uint32) {
	switch k := k.(type) {
	case *wit.Record:
		var offset uint32
		align = 1
		for _, f := range k.Fields {
			fs, fa := layout(f.Type)
			offset = AlignTo(offset, fa) + fs
			align = max(align, fa)
		}
		return AlignTo(offset, align), align
	case *wit.Tuple:
		var offset uint32
		align = 1
		for _, e := range k.Types {
			es, ea := layout(e)
			offset = AlignTo(offset, ea) + es
			align = max(align, ea)
		}
		return AlignTo(offset, align), align
	case *wit.List:
		return 8, 4
	case *wit.Flags:
		size := flagsSize(len(k.Flags))
		switch size {
		case 0:
			return 0, 1
		case 1, 2:
			return size, size
		}
		return size, 4
	case *wit.Enum:
		d := DiscriminantSize(len(k.Cases))
		return d, d
	case *wit.Variant:
		cases := make([]wit.Type, len(k.Cases))
		for i, c := range k.Cases {
			cases[i] = c.Type
		}
		return variantLayout(cases)
	case *wit.Option:
		return variantLayout([]wit.Type{nil, k.Type})
	case *wit.Result:
		return variantLayout([]wit.Type{k.OK, k.Err})
	case *wit.Own, *wit.Borrow:
		return 4, 4
	case wit.Type:
		return layout(k)
	}
	return 0, 1
}

// variantLayout computes size and alignment of a discriminated union.
func variantLayout(cases []wit.Type) (size, align uint32) {
	disc := DiscriminantSize(len(cases))
	align = disc
	var payload uint32
	for _, c := range cases {
		if c == nil {
			continue
		}
		cs, ca := layout(c)
		payload = max(payload, cs)
		align = max(align, ca)
	}
	return AlignTo(AlignTo(disc, maxCaseAlign(cases))+payload, align), align
}

func maxCaseAlign(cases []wit.Type) uint32 {
	a := uint32(1)
	for _, c := range cases {
		if c != nil {
			a = max(a, AlignOf(c))
		}
	}
	return a
}

// PayloadOffset returns the offset of a variant payload past its
// discriminant.
func PayloadOffset(cases []wit.Type) uint32 {
	return AlignTo(DiscriminantSize(len(cases)), maxCaseAlign(cases))
}

// Flatten returns the core value types that represent t on the stack.
func Flatten(t wit.Type) []wasm.ValType {
	return appendFlat(nil, t)
}

// FlattenAll flattens a sequence of types.
func FlattenAll(types []wit.Type) []wasm.ValType {
	var out []wasm.ValType
	for _, t := range types {
		out = appendFlat(out, t)
	}
	return out
}

func appendFlat(out []wasm.ValType, t wit.Type) []wasm.ValType {
	switch t := t.(type) {
	case nil:
		return out
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return append(out, wasm.ValI32)
	case wit.U64, wit.S64:
		return append(out, wasm.ValI64)
	case wit.F32:
		return append(out, wasm.ValF32)
	case wit.F64:
		return append(out, wasm.ValF64)
	case wit.String:
		return append(out, wasm.ValI32, wasm.ValI32)
	case *wit.TypeDef:
		return appendFlatKind(out, t.Kind)
	}
	return out
}

func appendFlatKind(out []wasm.ValType, k wit.TypeDefKind) []wasm.ValType {
	switch k := k.(type) {
	case *wit.Record:
		for _, f := range k.Fields {
			out = appendFlat(out, f.Type)
		}
		return out
	case *wit.Tuple:
		for _, e := range k.Types {
			out = appendFlat(out, e)
		}
		return out
	case *wit.List:
		return append(out, wasm.ValI32, wasm.ValI32)
	case *wit.Flags:
		for i := 0; i < FlagsWords(len(k.Flags)); i++ {
			out = append(out, wasm.ValI32)
		}
		return out
	case *wit.Enum:
		return append(out, wasm.ValI32)
	case *wit.Variant:
		cases := make([]wit.Type, len(k.Cases))
		for i, c := range k.Cases {
			cases[i] = c.Type
		}
		return append(out, flattenVariant(cases)...)
	case *wit.Option:
		return append(out, flattenVariant([]wit.Type{nil, k.Type})...)
	case *wit.Result:
		return append(out, flattenVariant([]wit.Type{k.OK, k.Err})...)
	case *wit.Own, *wit.Borrow:
		return append(out, wasm.ValI32)
	case wit.Type:
		return appendFlat(out, k)
	}
	return out
}

// flattenVariant is the discriminant followed by the join of every case's
// flattening.
func flattenVariant(cases []wit.Type) []wasm.ValType {
	var joined []wasm.ValType
	for _, c := range cases {
		for i, ft := range Flatten(c) {
			if i < len(joined) {
				joined[i] = join(joined[i], ft)
			} else {
				joined = append(joined, ft)
			}
		}
	}
	return append([]wasm.ValType{wasm.ValI32}, joined...)
}

func join(a, b wasm.ValType) wasm.ValType {
	if a == b {
		return a
	}
	if (a == wasm.ValI32 && b == wasm.ValF32) || (a == wasm.ValF32 && b == wasm.ValI32) {
		return wasm.ValI32
	}
	return wasm.ValI64
}
