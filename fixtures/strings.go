package fixtures

import (
	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/wasm"
)

// Strings interface and values exchanged by the strings component.
const (
	StringsImports = "test:strings/imports"
	BasicString    = "latin utf16"
	UnicodeString  = "🚀🚀🚀 𠈄𓀀"
)

// Memory layout of the strings core module.
const (
	basicAddr     = 16
	unicodeAddr   = 64
	importRetArea = 8
	exportRetArea = 256
	heapBase      = 4096
	memoryPages   = 16
)

// encode returns s as the guest stores it under enc, and the length word
// the canonical ABI passes with it.
func encode(enc abi.StringEncoding, s string) ([]byte, uint32) {
	switch enc {
	case abi.UTF16:
		return abi.EncodeUTF16(s)
	case abi.Latin1UTF16:
		l1 := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0xFF {
				data, n := abi.EncodeUTF16(s)
				return data, n | 1<<31
			}
			l1 = append(l1, byte(r))
		}
		return l1, uint32(len(l1))
	}
	return []byte(s), uint32(len(s))
}

// memoryModule defines the memory, a bump allocator exported as
// cabi_realloc and the string constants.
func memoryModule(enc abi.StringEncoding) []byte {
	i32 := wasm.ValI32
	mb := wasm.NewModuleBuilder()
	mem := mb.Memory(memoryPages)
	heap := mb.Global(i32, true, heapBase)

	// cabi_realloc(old_ptr, old_size, align, new_size) -> ptr. Memory is
	// never freed.
	realloc := mb.Func(
		wasm.FuncType{Params: []wasm.ValType{i32, i32, i32, i32}, Results: []wasm.ValType{i32}},
		[]wasm.ValType{i32},
		wasm.NewCode().
			GlobalGet(heap).LocalGet(2).I32Add().I32Const(1).I32Sub().
			I32Const(0).LocalGet(2).I32Sub().
			I32And().LocalTee(4).
			LocalGet(3).I32Add().GlobalSet(heap).
			LocalGet(4),
	)
	mb.Export("memory", wasm.KindMemory, mem)
	mb.Export("cabi_realloc", wasm.KindFunc, realloc)

	basic, _ := encode(enc, BasicString)
	unicode, _ := encode(enc, UnicodeString)
	mb.Data(basicAddr, basic)
	mb.Data(unicodeAddr, unicode)
	return mb.Bytes()
}

// stringsModule holds the guest logic:
//
//	test-imports: take-basic(BasicString); assert return-unicode() == UnicodeString
//	roundtrip(s): return s
func stringsModule(enc abi.StringEncoding) []byte {
	i32 := wasm.ValI32
	_, basicLen := encode(enc, BasicString)
	unicode, unicodeLen := encode(enc, UnicodeString)

	mb := wasm.NewModuleBuilder()
	mb.ImportMemory("env", "memory", memoryPages)
	takeBasic := mb.ImportFunc("imports", "take-basic", wasm.FuncType{Params: []wasm.ValType{i32, i32}})
	returnUnicode := mb.ImportFunc("imports", "return-unicode", wasm.FuncType{Params: []wasm.ValType{i32}})

	// Locals: 0 = byte index, 1 = pointer to the returned string.
	testImports := wasm.NewCode().
		I32Const(basicAddr).I32Const(int32(basicLen)).Call(takeBasic).
		I32Const(importRetArea).Call(returnUnicode).
		I32Const(importRetArea).I32Load(4).I32Const(int32(unicodeLen)).I32Ne().
		If().Unreachable().End().
		I32Const(importRetArea).I32Load(0).LocalSet(1).
		Block().Loop().
		LocalGet(0).I32Const(int32(len(unicode))).I32Eq().BrIf(1).
		LocalGet(1).LocalGet(0).I32Add().I32Load8U(0).
		LocalGet(0).I32Load8U(unicodeAddr).
		I32Ne().If().Unreachable().End().
		LocalGet(0).I32Const(1).I32Add().LocalSet(0).
		Br(0).
		End().End()
	mb.Export("test-imports", wasm.KindFunc, mb.Func(wasm.FuncType{}, []wasm.ValType{i32, i32}, testImports))

	roundtrip := wasm.NewCode().
		I32Const(exportRetArea).LocalGet(0).I32Store(0).
		I32Const(exportRetArea).LocalGet(1).I32Store(4).
		I32Const(exportRetArea)
	mb.Export("roundtrip", wasm.KindFunc, mb.Func(
		wasm.FuncType{Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}}, nil, roundtrip))
	return mb.Bytes()
}

// Strings builds the strings component with every canonical option using
// enc. It imports test:strings/imports { take-basic: func(s: string);
// return-unicode: func() -> string } and exports test-imports: func() and
// roundtrip: func(s: string) -> string.
func Strings(enc abi.StringEncoding) ([]byte, error) {
	b := component.NewBuilder()

	memInst := b.CoreInstantiate(b.CoreModule(memoryModule(enc)))
	mem := b.AliasCoreExport(memInst, component.CoreSortMemory, "memory")
	realloc := b.AliasCoreExport(memInst, component.CoreSortFunc, "cabi_realloc")

	ity := b.Type(component.InstanceType{Decls: []component.Decl{
		component.TypeDecl{Type: component.FuncType{
			Params: []component.Param{{Name: "s", Type: component.PrimString}},
		}},
		component.ExportDecl{Name: "take-basic", Desc: component.ExternDesc{Kind: component.ExternFunc, Index: 0}},
		component.TypeDecl{Type: component.FuncType{Result: component.PrimString}},
		component.ExportDecl{Name: "return-unicode", Desc: component.ExternDesc{Kind: component.ExternFunc, Index: 1}},
	}})
	imports := b.Import(StringsImports, component.ExternDesc{Kind: component.ExternInstance, Index: ity})

	withMem := component.CanonOptions{Memory: &mem, Encoding: enc}
	withRealloc := component.CanonOptions{Memory: &mem, Realloc: &realloc, Encoding: enc}

	take := b.Lower(b.AliasExport(imports, component.SortFunc, "take-basic"), withMem)
	ret := b.Lower(b.AliasExport(imports, component.SortFunc, "return-unicode"), withRealloc)
	bag := b.CoreFromExports(
		component.CoreInlineExport{Name: "take-basic", Sort: component.CoreSortFunc, Index: take},
		component.CoreInlineExport{Name: "return-unicode", Sort: component.CoreSortFunc, Index: ret},
	)
	guest := b.CoreInstantiate(b.CoreModule(stringsModule(enc)),
		component.CoreInstantiateArg{Name: "env", Instance: memInst},
		component.CoreInstantiateArg{Name: "imports", Instance: bag},
	)

	testImports := b.Lift(
		b.AliasCoreExport(guest, component.CoreSortFunc, "test-imports"),
		b.Type(component.FuncType{}),
		component.CanonOptions{},
	)
	roundtrip := b.Lift(
		b.AliasCoreExport(guest, component.CoreSortFunc, "roundtrip"),
		b.Type(component.FuncType{
			Params: []component.Param{{Name: "s", Type: component.PrimString}},
			Result: component.PrimString,
		}),
		withRealloc,
	)
	b.Export("test-imports", component.ComponentSort(component.SortFunc), testImports, nil)
	b.Export("roundtrip", component.ComponentSort(component.SortFunc), roundtrip, nil)
	return b.Bytes()
}
