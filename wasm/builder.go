package wasm

import "fmt"

// FuncType is a core function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) equal(o FuncType) bool {
	if len(ft.Params) != len(o.Params) || len(ft.Results) != len(o.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

type builderImport struct {
	module string
	name   string
	kind    byte
	typ     uint32
	min     uint32
	valType ValType
	mutable bool
}

type builderFunc struct {
	code   *Code
	locals []ValType
	typ    uint32
}

type builderGlobal struct {
	typ     ValType
	mutable bool
	init    int64
}

type builderExport struct {
	name string
	kind byte
	idx  uint32
}

type builderElem struct {
	funcs  []uint32
	table  uint32
	offset int32
}

type builderData struct {
	data   []byte
	offset int32
}

// ModuleBuilder assembles a core module binary. Imports must be declared
// before functions so that function indices are stable when returned.
type ModuleBuilder struct {
	types    []FuncType
	imports  []builderImport
	funcs    []builderFunc
	tables   []uint32
	memories []uint32
	globals  []builderGlobal
	exports  []builderExport
	elems    []builderElem
	datas    []builderData

	importedFuncs    uint32
	importedTables   uint32
	importedMemories uint32
	importedGlobals  uint32
}

// NewModuleBuilder creates an empty module builder.
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{}
}

// Type interns a function type and returns its index.
func (b *ModuleBuilder) Type(ft FuncType) uint32 {
	for i, t := range b.types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

// ImportFunc declares a function import and returns its function index.
func (b *ModuleBuilder) ImportFunc(module, name string, ft FuncType) uint32 {
	if len(b.funcs) > 0 {
		panic("wasm: ImportFunc after Func")
	}
	b.imports = append(b.imports, builderImport{module: module, name: name, kind: KindFunc, typ: b.Type(ft)})
	b.importedFuncs++
	return b.importedFuncs - 1
}

// ImportTable declares a funcref table import and returns its table index.
func (b *ModuleBuilder) ImportTable(module, name string, min uint32) uint32 {
	if len(b.tables) > 0 {
		panic("wasm: ImportTable after Table")
	}
	b.imports = append(b.imports, builderImport{module: module, name: name, kind: KindTable, min: min})
	b.importedTables++
	return b.importedTables - 1
}

// ImportMemory declares a memory import and returns its memory index.
func (b *ModuleBuilder) ImportMemory(module, name string, minPages uint32) uint32 {
	if len(b.memories) > 0 {
		panic("wasm: ImportMemory after Memory")
	}
	b.imports = append(b.imports, builderImport{module: module, name: name, kind: KindMemory, min: minPages})
	b.importedMemories++
	return b.importedMemories - 1
}

// ImportGlobal declares a global import and returns its global index.
func (b *ModuleBuilder) ImportGlobal(module, name string, t ValType, mutable bool) uint32 {
	if len(b.globals) > 0 {
		panic("wasm: ImportGlobal after Global")
	}
	b.imports = append(b.imports, builderImport{module: module, name: name, kind: KindGlobal, valType: t, mutable: mutable})
	b.importedGlobals++
	return b.importedGlobals - 1
}

// Func defines a function and returns its index in the function space.
// code holds the instructions only; Bytes appends the closing end.
func (b *ModuleBuilder) Func(ft FuncType, locals []ValType, code *Code) uint32 {
	b.funcs = append(b.funcs, builderFunc{typ: b.Type(ft), locals: locals, code: code})
	return b.importedFuncs + uint32(len(b.funcs)-1)
}

// Table defines a funcref table with the given minimum size.
func (b *ModuleBuilder) Table(min uint32) uint32 {
	b.tables = append(b.tables, min)
	return b.importedTables + uint32(len(b.tables)-1)
}

// Memory defines a memory with the given minimum page count.
func (b *ModuleBuilder) Memory(minPages uint32) uint32 {
	b.memories = append(b.memories, minPages)
	return b.importedMemories + uint32(len(b.memories)-1)
}

// Global defines an i32 or i64 global initialized to a constant.
func (b *ModuleBuilder) Global(t ValType, mutable bool, init int64) uint32 {
	b.globals = append(b.globals, builderGlobal{typ: t, mutable: mutable, init: init})
	return b.importedGlobals + uint32(len(b.globals)-1)
}

// Export exports an item of the given kind.
func (b *ModuleBuilder) Export(name string, kind byte, idx uint32) {
	b.exports = append(b.exports, builderExport{name: name, kind: kind, idx: idx})
}

// Elem adds an active element segment placing funcs at offset in table.
func (b *ModuleBuilder) Elem(table uint32, offset int32, funcs ...uint32) {
	b.elems = append(b.elems, builderElem{table: table, offset: offset, funcs: funcs})
}

// Data adds an active data segment for memory 0.
func (b *ModuleBuilder) Data(offset int32, data []byte) {
	b.datas = append(b.datas, builderData{offset: offset, data: data})
}

// Bytes encodes the module.
func (b *ModuleBuilder) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

	if len(b.types) > 0 {
		body := AppendULEB128(nil, uint64(len(b.types)))
		for _, t := range b.types {
			body = append(body, 0x60)
			body = appendValTypes(body, t.Params)
			body = appendValTypes(body, t.Results)
		}
		out = appendSection(out, SectionType, body)
	}

	if len(b.imports) > 0 {
		body := AppendULEB128(nil, uint64(len(b.imports)))
		for _, imp := range b.imports {
			body = AppendName(body, imp.module)
			body = AppendName(body, imp.name)
			body = append(body, imp.kind)
			switch imp.kind {
			case KindFunc:
				body = AppendULEB128(body, uint64(imp.typ))
			case KindTable:
				body = append(body, byte(ValFuncRef), 0x00)
				body = AppendULEB128(body, uint64(imp.min))
			case KindMemory:
				body = append(body, 0x00)
				body = AppendULEB128(body, uint64(imp.min))
			case KindGlobal:
				body = append(body, byte(imp.valType))
				if imp.mutable {
					body = append(body, 0x01)
				} else {
					body = append(body, 0x00)
				}
			}
		}
		out = appendSection(out, SectionImport, body)
	}

	if len(b.funcs) > 0 {
		body := AppendULEB128(nil, uint64(len(b.funcs)))
		for _, f := range b.funcs {
			body = AppendULEB128(body, uint64(f.typ))
		}
		out = appendSection(out, SectionFunction, body)
	}

	if len(b.tables) > 0 {
		body := AppendULEB128(nil, uint64(len(b.tables)))
		for _, min := range b.tables {
			body = append(body, byte(ValFuncRef), 0x00)
			body = AppendULEB128(body, uint64(min))
		}
		out = appendSection(out, SectionTable, body)
	}

	if len(b.memories) > 0 {
		body := AppendULEB128(nil, uint64(len(b.memories)))
		for _, min := range b.memories {
			body = append(body, 0x00)
			body = AppendULEB128(body, uint64(min))
		}
		out = appendSection(out, SectionMemory, body)
	}

	if len(b.globals) > 0 {
		body := AppendULEB128(nil, uint64(len(b.globals)))
		for _, g := range b.globals {
			body = append(body, byte(g.typ))
			if g.mutable {
				body = append(body, 0x01)
			} else {
				body = append(body, 0x00)
			}
			switch g.typ {
			case ValI64:
				body = append(body, OpI64Const)
			default:
				body = append(body, OpI32Const)
			}
			body = AppendSLEB128(body, g.init)
			body = append(body, OpEnd)
		}
		out = appendSection(out, SectionGlobal, body)
	}

	if len(b.exports) > 0 {
		body := AppendULEB128(nil, uint64(len(b.exports)))
		for _, e := range b.exports {
			body = AppendName(body, e.name)
			body = append(body, e.kind)
			body = AppendULEB128(body, uint64(e.idx))
		}
		out = appendSection(out, SectionExport, body)
	}

	if len(b.elems) > 0 {
		body := AppendULEB128(nil, uint64(len(b.elems)))
		for _, e := range b.elems {
			if e.table == 0 {
				body = append(body, 0x00)
			} else {
				body = append(body, 0x02)
				body = AppendULEB128(body, uint64(e.table))
			}
			body = append(body, OpI32Const)
			body = AppendSLEB128(body, int64(e.offset))
			body = append(body, OpEnd)
			if e.table != 0 {
				body = append(body, 0x00) // elemkind funcref
			}
			body = AppendULEB128(body, uint64(len(e.funcs)))
			for _, f := range e.funcs {
				body = AppendULEB128(body, uint64(f))
			}
		}
		out = appendSection(out, SectionElement, body)
	}

	if len(b.funcs) > 0 {
		body := AppendULEB128(nil, uint64(len(b.funcs)))
		for _, f := range b.funcs {
			fn := appendLocals(nil, f.locals)
			if f.code != nil {
				fn = append(fn, f.code.buf...)
			}
			fn = append(fn, OpEnd)
			body = AppendULEB128(body, uint64(len(fn)))
			body = append(body, fn...)
		}
		out = appendSection(out, SectionCode, body)
	}

	if len(b.datas) > 0 {
		body := AppendULEB128(nil, uint64(len(b.datas)))
		for _, d := range b.datas {
			body = append(body, 0x00, OpI32Const)
			body = AppendSLEB128(body, int64(d.offset))
			body = append(body, OpEnd)
			body = AppendULEB128(body, uint64(len(d.data)))
			body = append(body, d.data...)
		}
		out = appendSection(out, SectionData, body)
	}

	return out
}

func appendValTypes(buf []byte, types []ValType) []byte {
	buf = AppendULEB128(buf, uint64(len(types)))
	for _, t := range types {
		buf = append(buf, byte(t))
	}
	return buf
}

// appendLocals groups consecutive locals of the same type.
func appendLocals(buf []byte, locals []ValType) []byte {
	type group struct {
		t ValType
		n uint64
	}
	var groups []group
	for _, l := range locals {
		if len(groups) > 0 && groups[len(groups)-1].t == l {
			groups[len(groups)-1].n++
			continue
		}
		groups = append(groups, group{t: l, n: 1})
	}
	buf = AppendULEB128(buf, uint64(len(groups)))
	for _, g := range groups {
		buf = AppendULEB128(buf, g.n)
		buf = append(buf, byte(g.t))
	}
	return buf
}

// String renders the signature in text-format style.
func (ft FuncType) String() string {
	return fmt.Sprintf("(func (param %v) (result %v))", ft.Params, ft.Results)
}
