package component

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/wasm"
)

// Preamble values of a component binary.
const (
	ComponentVersion uint16 = 0x0d
	ComponentLayer   uint16 = 0x01
)

// IsComponent reports whether data starts with a component preamble.
func IsComponent(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	if binary.LittleEndian.Uint32(data[0:4]) != wasm.Magic {
		return false
	}
	return binary.LittleEndian.Uint16(data[6:8]) == ComponentLayer
}

// Decode parses a component binary into its section list. Nested
// components are decoded recursively.
func Decode(data []byte) (*Component, error) {
	return decode(data, 0)
}

func decode(data []byte, depth int) (*Component, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("component nesting exceeds %d levels", maxNesting)
	}
	if !IsComponent(data) {
		if wasm.IsModule(data) {
			return nil, fmt.Errorf("binary is a core module, not a component")
		}
		return nil, fmt.Errorf("not a component")
	}

	comp := &Component{
		Version: binary.LittleEndian.Uint16(data[4:6]),
		Layer:   binary.LittleEndian.Uint16(data[6:8]),
	}

	r := newReader(data[8:])
	for count := 1; r.len() > 0; count++ {
		if count > maxSections {
			return nil, fmt.Errorf("exceeded maximum section count %d", maxSections)
		}
		id, _ := r.ReadByte()
		size, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("section %d: read size: %w", count, err)
		}
		payload, err := r.bytes(int(size))
		if err != nil {
			return nil, fmt.Errorf("section %d (id %d): %w", count, id, err)
		}
		sec, err := decodeSection(id, payload, depth)
		if err != nil {
			return nil, fmt.Errorf("section %d (id %d): %w", count, id, err)
		}
		comp.Sections = append(comp.Sections, sec)
	}
	return comp, nil
}

func decodeSection(id byte, payload []byte, depth int) (Section, error) {
	r := newReader(payload)
	var (
		sec Section
		err error
	)
	switch id {
	case SectionCustom:
		sec, err = decodeCustom(r)
	case SectionCoreModule:
		if !wasm.IsModule(payload) {
			return nil, fmt.Errorf("core module section does not hold a core module")
		}
		return &CoreModuleSection{Module: payload}, nil
	case SectionCoreInstance:
		sec, err = decodeCoreInstances(r)
	case SectionCoreType:
		sec, err = decodeCoreTypes(r)
	case SectionComponent:
		nested, err := decode(payload, depth+1)
		if err != nil {
			return nil, fmt.Errorf("nested component: %w", err)
		}
		return &ComponentSection{Component: nested, Raw: payload}, nil
	case SectionInstance:
		sec, err = decodeInstances(r)
	case SectionAlias:
		sec, err = decodeAliases(r)
	case SectionType:
		sec, err = decodeTypes(r)
	case SectionCanon:
		sec, err = decodeCanons(r)
	case SectionStart:
		sec, err = decodeStart(r)
	case SectionImport:
		sec, err = decodeImports(r)
	case SectionExport:
		sec, err = decodeExports(r)
	default:
		return nil, fmt.Errorf("unknown section id %d", id)
	}
	if err != nil {
		return nil, err
	}
	if r.len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.len())
	}
	return sec, nil
}

func decodeCustom(r *reader) (*CustomSection, error) {
	name, err := r.name()
	if err != nil {
		return nil, fmt.Errorf("custom section: %w", err)
	}
	data, _ := r.bytes(r.len())
	return &CustomSection{Name: name, Data: data}, nil
}

func decodeCoreInstances(r *reader) (*CoreInstanceSection, error) {
	n, err := r.vecLen("core instance")
	if err != nil {
		return nil, err
	}
	sec := &CoreInstanceSection{Instances: make([]CoreInstance, 0, n)}
	for i := uint32(0); i < n; i++ {
		kind, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("core instance %d: %w", i, err)
		}
		var inst CoreInstance
		switch kind {
		case 0x00:
			if inst.Module, err = r.u32(); err != nil {
				return nil, fmt.Errorf("core instance %d: module index: %w", i, err)
			}
			argc, err := r.vecLen("instantiate arg")
			if err != nil {
				return nil, fmt.Errorf("core instance %d: %w", i, err)
			}
			for j := uint32(0); j < argc; j++ {
				name, err := r.name()
				if err != nil {
					return nil, fmt.Errorf("core instance %d arg %d: %w", i, j, err)
				}
				if err := r.expect(CoreSortInstance, "instantiate arg sort"); err != nil {
					return nil, fmt.Errorf("core instance %d arg %d: %w", i, j, err)
				}
				idx, err := r.u32()
				if err != nil {
					return nil, fmt.Errorf("core instance %d arg %d: %w", i, j, err)
				}
				inst.Args = append(inst.Args, CoreInstantiateArg{Name: name, Instance: idx})
			}
		case 0x01:
			inst.FromExports = true
			exc, err := r.vecLen("inline export")
			if err != nil {
				return nil, fmt.Errorf("core instance %d: %w", i, err)
			}
			for j := uint32(0); j < exc; j++ {
				name, err := r.name()
				if err != nil {
					return nil, fmt.Errorf("core instance %d export %d: %w", i, j, err)
				}
				sort, err := r.ReadByte()
				if err != nil {
					return nil, fmt.Errorf("core instance %d export %d: %w", i, j, err)
				}
				idx, err := r.u32()
				if err != nil {
					return nil, fmt.Errorf("core instance %d export %d: %w", i, j, err)
				}
				inst.Exports = append(inst.Exports, CoreInlineExport{Name: name, Sort: sort, Index: idx})
			}
		default:
			return nil, fmt.Errorf("core instance %d: unknown kind 0x%02x", i, kind)
		}
		sec.Instances = append(sec.Instances, inst)
	}
	return sec, nil
}

func decodeCoreTypes(r *reader) (*CoreTypeSection, error) {
	n, err := r.vecLen("core type")
	if err != nil {
		return nil, err
	}
	sec := &CoreTypeSection{Types: make([][]byte, 0, n)}
	for i := uint32(0); i < n; i++ {
		raw, err := readCoreType(r)
		if err != nil {
			return nil, fmt.Errorf("core type %d: %w", i, err)
		}
		sec.Types = append(sec.Types, raw)
	}
	return sec, nil
}

// readCoreType consumes a core function or module type and returns its
// encoding.
func readCoreType(r *reader) ([]byte, error) {
	start := r.off
	if err := skipCoreType(r); err != nil {
		return nil, err
	}
	return r.data[start:r.off], nil
}

func skipCoreType(r *reader) error {
	form, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch form {
	case 0x60:
		for k := 0; k < 2; k++ {
			n, err := r.vecLen("core valtype")
			if err != nil {
				return err
			}
			for j := uint32(0); j < n; j++ {
				if err := wasm.SkipValType(r); err != nil {
					return err
				}
			}
		}
		return nil
	case 0x50:
		n, err := r.vecLen("module decl")
		if err != nil {
			return err
		}
		for j := uint32(0); j < n; j++ {
			if err := skipModuleDecl(r); err != nil {
				return fmt.Errorf("module decl %d: %w", j, err)
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported core type form 0x%02x", form)
}

func skipModuleDecl(r *reader) error {
	kind, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch kind {
	case 0x00: // import
		if _, err := r.name(); err != nil {
			return err
		}
		if _, err := r.name(); err != nil {
			return err
		}
		desc, err := r.ReadByte()
		if err != nil {
			return err
		}
		return wasm.SkipImportDesc(r, desc)
	case 0x01: // type
		return skipCoreType(r)
	case 0x02: // outer alias
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		if err := r.expect(0x01, "core alias target"); err != nil {
			return err
		}
		if _, err := r.u32(); err != nil {
			return err
		}
		_, err := r.u32()
		return err
	case 0x03: // export
		if _, err := r.name(); err != nil {
			return err
		}
		desc, err := r.ReadByte()
		if err != nil {
			return err
		}
		return wasm.SkipImportDesc(r, desc)
	}
	return fmt.Errorf("unknown module decl 0x%02x", kind)
}

func readSort(r *reader) (Sort, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return Sort{}, fmt.Errorf("read sort: %w", err)
	}
	s := Sort{Kind: kind}
	switch kind {
	case SortCore:
		if s.Core, err = r.ReadByte(); err != nil {
			return Sort{}, fmt.Errorf("read core sort: %w", err)
		}
	case SortFunc, SortValue, SortType, SortComponent, SortInstance:
	default:
		return Sort{}, fmt.Errorf("unknown sort 0x%02x", kind)
	}
	return s, nil
}

func decodeInstances(r *reader) (*InstanceSection, error) {
	n, err := r.vecLen("instance")
	if err != nil {
		return nil, err
	}
	sec := &InstanceSection{Instances: make([]Instance, 0, n)}
	for i := uint32(0); i < n; i++ {
		kind, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		var inst Instance
		switch kind {
		case 0x00:
			if inst.Component, err = r.u32(); err != nil {
				return nil, fmt.Errorf("instance %d: component index: %w", i, err)
			}
			argc, err := r.vecLen("instantiate arg")
			if err != nil {
				return nil, fmt.Errorf("instance %d: %w", i, err)
			}
			for j := uint32(0); j < argc; j++ {
				name, err := r.name()
				if err != nil {
					return nil, fmt.Errorf("instance %d arg %d: %w", i, j, err)
				}
				sort, err := readSort(r)
				if err != nil {
					return nil, fmt.Errorf("instance %d arg %d: %w", i, j, err)
				}
				idx, err := r.u32()
				if err != nil {
					return nil, fmt.Errorf("instance %d arg %d: %w", i, j, err)
				}
				inst.Args = append(inst.Args, InstantiateArg{Name: name, Sort: sort, Index: idx})
			}
		case 0x01:
			inst.FromExports = true
			exc, err := r.vecLen("inline export")
			if err != nil {
				return nil, fmt.Errorf("instance %d: %w", i, err)
			}
			for j := uint32(0); j < exc; j++ {
				name, err := r.externName()
				if err != nil {
					return nil, fmt.Errorf("instance %d export %d: %w", i, j, err)
				}
				sort, err := readSort(r)
				if err != nil {
					return nil, fmt.Errorf("instance %d export %d: %w", i, j, err)
				}
				idx, err := r.u32()
				if err != nil {
					return nil, fmt.Errorf("instance %d export %d: %w", i, j, err)
				}
				inst.Exports = append(inst.Exports, InlineExport{Name: name, Sort: sort, Index: idx})
			}
		default:
			return nil, fmt.Errorf("instance %d: unknown kind 0x%02x", i, kind)
		}
		sec.Instances = append(sec.Instances, inst)
	}
	return sec, nil
}

func readAlias(r *reader) (Alias, error) {
	sort, err := readSort(r)
	if err != nil {
		return Alias{}, err
	}
	a := Alias{Sort: sort}
	if a.Target, err = r.ReadByte(); err != nil {
		return Alias{}, fmt.Errorf("read alias target: %w", err)
	}
	switch a.Target {
	case AliasInstanceExport, AliasCoreInstanceExport:
		if a.Instance, err = r.u32(); err != nil {
			return Alias{}, fmt.Errorf("read instance index: %w", err)
		}
		if a.Name, err = r.name(); err != nil {
			return Alias{}, err
		}
	case AliasOuter:
		if a.OuterCount, err = r.u32(); err != nil {
			return Alias{}, fmt.Errorf("read outer count: %w", err)
		}
		if a.OuterIndex, err = r.u32(); err != nil {
			return Alias{}, fmt.Errorf("read outer index: %w", err)
		}
	default:
		return Alias{}, fmt.Errorf("unknown alias target 0x%02x", a.Target)
	}
	return a, nil
}

func decodeAliases(r *reader) (*AliasSection, error) {
	n, err := r.vecLen("alias")
	if err != nil {
		return nil, err
	}
	sec := &AliasSection{Aliases: make([]Alias, 0, n)}
	for i := uint32(0); i < n; i++ {
		a, err := readAlias(r)
		if err != nil {
			return nil, fmt.Errorf("alias %d: %w", i, err)
		}
		sec.Aliases = append(sec.Aliases, a)
	}
	return sec, nil
}

func decodeTypes(r *reader) (*TypeSection, error) {
	n, err := r.vecLen("type")
	if err != nil {
		return nil, err
	}
	sec := &TypeSection{Types: make([]DefType, 0, n)}
	for i := uint32(0); i < n; i++ {
		t, err := readDefType(r, 0)
		if err != nil {
			return nil, fmt.Errorf("type %d: %w", i, err)
		}
		sec.Types = append(sec.Types, t)
	}
	return sec, nil
}

func readValType(r *reader) (ValType, error) {
	b, err := r.peek()
	if err != nil {
		return nil, fmt.Errorf("read valtype: %w", err)
	}
	if b >= byte(PrimString) && b <= byte(PrimBool) {
		r.off++
		return PrimValType(b), nil
	}
	if b == 0x64 {
		return nil, fmt.Errorf("error-context values are not supported")
	}
	// type indices are non-negative s33; a single byte with the sign
	// bit set is some other negative form
	if b&0xC0 == 0x40 {
		return nil, fmt.Errorf("unknown valtype 0x%02x", b)
	}
	idx, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("read type index: %w", err)
	}
	return TypeIndex(idx), nil
}

func readOptionValType(r *reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case 0x00:
		return nil, nil
	case 0x01:
		return readValType(r)
	}
	return nil, fmt.Errorf("invalid option discriminant 0x%02x", b)
}

func readLabels(r *reader, what string) ([]string, error) {
	n, err := r.vecLen(what)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := r.name()
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", what, i, err)
		}
		names = append(names, name)
	}
	return names, nil
}

func readDefType(r *reader, depth int) (DefType, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("type nesting exceeds %d levels", maxNesting)
	}
	form, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read type form: %w", err)
	}
	if form >= byte(PrimString) && form <= byte(PrimBool) {
		return PrimValType(form), nil
	}

	switch form {
	case 0x72:
		n, err := r.vecLen("record field")
		if err != nil {
			return nil, err
		}
		rec := RecordType{Fields: make([]Field, 0, n)}
		for i := uint32(0); i < n; i++ {
			name, err := r.name()
			if err != nil {
				return nil, fmt.Errorf("field %d: %w", i, err)
			}
			t, err := readValType(r)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			rec.Fields = append(rec.Fields, Field{Name: name, Type: t})
		}
		return rec, nil

	case 0x71:
		n, err := r.vecLen("variant case")
		if err != nil {
			return nil, err
		}
		v := VariantType{Cases: make([]Case, 0, n)}
		for i := uint32(0); i < n; i++ {
			name, err := r.name()
			if err != nil {
				return nil, fmt.Errorf("case %d: %w", i, err)
			}
			t, err := readOptionValType(r)
			if err != nil {
				return nil, fmt.Errorf("case %q: %w", name, err)
			}
			// refines is deprecated but still encoded
			if _, err := r.optionU32(); err != nil {
				return nil, fmt.Errorf("case %q refines: %w", name, err)
			}
			v.Cases = append(v.Cases, Case{Name: name, Type: t})
		}
		return v, nil

	case 0x70:
		t, err := readValType(r)
		if err != nil {
			return nil, err
		}
		return ListType{Elem: t}, nil

	case 0x67:
		return nil, fmt.Errorf("fixed-length lists are not supported")

	case 0x6f:
		n, err := r.vecLen("tuple element")
		if err != nil {
			return nil, err
		}
		tup := TupleType{Types: make([]ValType, 0, n)}
		for i := uint32(0); i < n; i++ {
			t, err := readValType(r)
			if err != nil {
				return nil, fmt.Errorf("tuple element %d: %w", i, err)
			}
			tup.Types = append(tup.Types, t)
		}
		return tup, nil

	case 0x6e:
		names, err := readLabels(r, "flag")
		if err != nil {
			return nil, err
		}
		return FlagsType{Names: names}, nil

	case 0x6d:
		names, err := readLabels(r, "enum case")
		if err != nil {
			return nil, err
		}
		return EnumType{Names: names}, nil

	case 0x6b:
		t, err := readValType(r)
		if err != nil {
			return nil, err
		}
		return OptionType{Type: t}, nil

	case 0x6a:
		ok, err := readOptionValType(r)
		if err != nil {
			return nil, fmt.Errorf("result ok: %w", err)
		}
		e, err := readOptionValType(r)
		if err != nil {
			return nil, fmt.Errorf("result err: %w", err)
		}
		return ResultType{OK: ok, Err: e}, nil

	case 0x69, 0x68:
		idx, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("handle type index: %w", err)
		}
		if form == 0x69 {
			return OwnType{Type: idx}, nil
		}
		return BorrowType{Type: idx}, nil

	case 0x66, 0x65:
		t, err := readOptionValType(r)
		if err != nil {
			return nil, err
		}
		if form == 0x66 {
			return StreamType{Elem: t}, nil
		}
		return FutureType{Elem: t}, nil

	case 0x40:
		return readFuncType(r)

	case 0x43:
		return nil, fmt.Errorf("async function types are not supported")

	case 0x41, 0x42:
		n, err := r.vecLen("decl")
		if err != nil {
			return nil, err
		}
		decls := make([]Decl, 0, n)
		for i := uint32(0); i < n; i++ {
			d, err := readDecl(r, form == 0x41, depth)
			if err != nil {
				return nil, fmt.Errorf("decl %d: %w", i, err)
			}
			decls = append(decls, d)
		}
		if form == 0x41 {
			return ComponentType{Decls: decls}, nil
		}
		return InstanceType{Decls: decls}, nil

	case 0x3f:
		if err := r.expect(0x7f, "resource rep"); err != nil {
			return nil, err
		}
		dtor, err := r.optionU32()
		if err != nil {
			return nil, fmt.Errorf("resource dtor: %w", err)
		}
		return ResourceType{Dtor: dtor}, nil

	case 0x3e:
		return nil, fmt.Errorf("async resources are not supported")
	}
	return nil, fmt.Errorf("unknown type form 0x%02x", form)
}

func readFuncType(r *reader) (FuncType, error) {
	n, err := r.vecLen("param")
	if err != nil {
		return FuncType{}, err
	}
	ft := FuncType{Params: make([]Param, 0, n)}
	for i := uint32(0); i < n; i++ {
		name, err := r.name()
		if err != nil {
			return FuncType{}, fmt.Errorf("param %d: %w", i, err)
		}
		t, err := readValType(r)
		if err != nil {
			return FuncType{}, fmt.Errorf("param %q: %w", name, err)
		}
		ft.Params = append(ft.Params, Param{Name: name, Type: t})
	}

	kind, err := r.ReadByte()
	if err != nil {
		return FuncType{}, fmt.Errorf("read result kind: %w", err)
	}
	switch kind {
	case 0x00:
		if ft.Result, err = readValType(r); err != nil {
			return FuncType{}, fmt.Errorf("result: %w", err)
		}
	case 0x01:
		// named result list; only the empty and single-result forms map
		// onto the current model
		n, err := r.vecLen("result")
		if err != nil {
			return FuncType{}, err
		}
		if n > 1 {
			return FuncType{}, fmt.Errorf("multiple named results are not supported")
		}
		if n == 1 {
			if _, err := r.name(); err != nil {
				return FuncType{}, err
			}
			if ft.Result, err = readValType(r); err != nil {
				return FuncType{}, fmt.Errorf("result: %w", err)
			}
		}
	default:
		return FuncType{}, fmt.Errorf("unknown result kind 0x%02x", kind)
	}
	return ft, nil
}

func readExternDesc(r *reader) (ExternDesc, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return ExternDesc{}, fmt.Errorf("read extern kind: %w", err)
	}
	d := ExternDesc{Kind: kind}
	switch kind {
	case ExternCoreModule:
		if err := r.expect(CoreSortModule, "core module extern"); err != nil {
			return ExternDesc{}, err
		}
		d.Index, err = r.u32()
	case ExternFunc, ExternComponent, ExternInstance:
		d.Index, err = r.u32()
	case ExternValue:
		if d.Bound, err = r.ReadByte(); err != nil {
			return ExternDesc{}, err
		}
		switch d.Bound {
		case BoundEq:
			d.Index, err = r.u32()
		case 0x01:
			var vt ValType
			vt, err = readValType(r)
			if idx, ok := vt.(TypeIndex); ok {
				d.Index = uint32(idx)
			}
		default:
			return ExternDesc{}, fmt.Errorf("unknown value bound 0x%02x", d.Bound)
		}
	case ExternType:
		if d.Bound, err = r.ReadByte(); err != nil {
			return ExternDesc{}, err
		}
		switch d.Bound {
		case BoundEq:
			d.Index, err = r.u32()
		case BoundSubResource:
		default:
			return ExternDesc{}, fmt.Errorf("unknown type bound 0x%02x", d.Bound)
		}
	default:
		return ExternDesc{}, fmt.Errorf("unknown extern kind 0x%02x", kind)
	}
	if err != nil {
		return ExternDesc{}, fmt.Errorf("extern %d: %w", kind, err)
	}
	return d, nil
}

func readDecl(r *reader, inComponent bool, depth int) (Decl, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch kind {
	case 0x00:
		raw, err := readCoreType(r)
		if err != nil {
			return nil, fmt.Errorf("core type: %w", err)
		}
		return CoreTypeDecl{Raw: raw}, nil
	case 0x01:
		t, err := readDefType(r, depth+1)
		if err != nil {
			return nil, err
		}
		return TypeDecl{Type: t}, nil
	case 0x02:
		a, err := readAlias(r)
		if err != nil {
			return nil, err
		}
		return AliasDecl{Alias: a}, nil
	case 0x03:
		if !inComponent {
			return nil, fmt.Errorf("import declaration in instance type")
		}
		name, err := r.externName()
		if err != nil {
			return nil, err
		}
		desc, err := readExternDesc(r)
		if err != nil {
			return nil, fmt.Errorf("import %q: %w", name, err)
		}
		return ImportDecl{Name: name, Desc: desc}, nil
	case 0x04:
		name, err := r.externName()
		if err != nil {
			return nil, err
		}
		desc, err := readExternDesc(r)
		if err != nil {
			return nil, fmt.Errorf("export %q: %w", name, err)
		}
		return ExportDecl{Name: name, Desc: desc}, nil
	}
	return nil, fmt.Errorf("unknown declaration kind 0x%02x", kind)
}

func decodeCanons(r *reader) (*CanonSection, error) {
	n, err := r.vecLen("canon")
	if err != nil {
		return nil, err
	}
	sec := &CanonSection{Canons: make([]Canon, 0, n)}
	for i := uint32(0); i < n; i++ {
		c, err := readCanon(r)
		if err != nil {
			return nil, fmt.Errorf("canon %d: %w", i, err)
		}
		sec.Canons = append(sec.Canons, c)
	}
	return sec, nil
}

func readCanon(r *reader) (Canon, error) {
	op, err := r.ReadByte()
	if err != nil {
		return Canon{}, err
	}
	var c Canon
	switch op {
	case 0x00:
		c.Kind = CanonLift
		if err := r.expect(0x00, "canon lift"); err != nil {
			return Canon{}, err
		}
		if c.CoreFunc, err = r.u32(); err != nil {
			return Canon{}, fmt.Errorf("lift core func: %w", err)
		}
		if c.Options, err = readCanonOptions(r); err != nil {
			return Canon{}, fmt.Errorf("lift options: %w", err)
		}
		if c.Type, err = r.u32(); err != nil {
			return Canon{}, fmt.Errorf("lift type: %w", err)
		}
	case 0x01:
		c.Kind = CanonLower
		if err := r.expect(0x00, "canon lower"); err != nil {
			return Canon{}, err
		}
		if c.Func, err = r.u32(); err != nil {
			return Canon{}, fmt.Errorf("lower func: %w", err)
		}
		if c.Options, err = readCanonOptions(r); err != nil {
			return Canon{}, fmt.Errorf("lower options: %w", err)
		}
	case 0x02, 0x03, 0x04:
		c.Kind = CanonKind(op)
		if c.Type, err = r.u32(); err != nil {
			return Canon{}, fmt.Errorf("%s type: %w", c.Kind, err)
		}
	default:
		return Canon{}, fmt.Errorf("canon built-in 0x%02x is not supported", op)
	}
	return c, nil
}

func readCanonOptions(r *reader) (CanonOptions, error) {
	n, err := r.vecLen("canon option")
	if err != nil {
		return CanonOptions{}, err
	}
	var opts CanonOptions
	encodingSet := false
	for i := uint32(0); i < n; i++ {
		code, err := r.ReadByte()
		if err != nil {
			return CanonOptions{}, err
		}
		switch code {
		case OptUTF8, OptUTF16, OptLatin1UTF16:
			if encodingSet {
				return CanonOptions{}, fmt.Errorf("string encoding specified twice")
			}
			encodingSet = true
			switch code {
			case OptUTF8:
				opts.Encoding = abi.UTF8
			case OptUTF16:
				opts.Encoding = abi.UTF16
			default:
				opts.Encoding = abi.Latin1UTF16
			}
		case OptMemory, OptRealloc, OptPostReturn:
			v, err := r.u32()
			if err != nil {
				return CanonOptions{}, err
			}
			switch code {
			case OptMemory:
				opts.Memory = &v
			case OptRealloc:
				opts.Realloc = &v
			default:
				opts.PostReturn = &v
			}
		case OptAsync, OptCallback:
			return CanonOptions{}, fmt.Errorf("async canon options are not supported")
		default:
			return CanonOptions{}, fmt.Errorf("unknown canon option 0x%02x", code)
		}
	}
	return opts, nil
}

func decodeStart(r *reader) (*StartSection, error) {
	fn, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("start func: %w", err)
	}
	n, err := r.vecLen("start arg")
	if err != nil {
		return nil, err
	}
	s := &StartSection{Func: fn, Args: make([]uint32, 0, n)}
	for i := uint32(0); i < n; i++ {
		v, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("start arg %d: %w", i, err)
		}
		s.Args = append(s.Args, v)
	}
	if s.Results, err = r.u32(); err != nil {
		return nil, fmt.Errorf("start results: %w", err)
	}
	return s, nil
}

func decodeImports(r *reader) (*ImportSection, error) {
	n, err := r.vecLen("import")
	if err != nil {
		return nil, err
	}
	sec := &ImportSection{Imports: make([]Import, 0, n)}
	for i := uint32(0); i < n; i++ {
		name, err := r.externName()
		if err != nil {
			return nil, fmt.Errorf("import %d: %w", i, err)
		}
		desc, err := readExternDesc(r)
		if err != nil {
			return nil, fmt.Errorf("import %q: %w", name, err)
		}
		sec.Imports = append(sec.Imports, Import{Name: name, Desc: desc})
	}
	return sec, nil
}

func decodeExports(r *reader) (*ExportSection, error) {
	n, err := r.vecLen("export")
	if err != nil {
		return nil, err
	}
	sec := &ExportSection{Exports: make([]Export, 0, n)}
	for i := uint32(0); i < n; i++ {
		name, err := r.externName()
		if err != nil {
			return nil, fmt.Errorf("export %d: %w", i, err)
		}
		sort, err := readSort(r)
		if err != nil {
			return nil, fmt.Errorf("export %q: %w", name, err)
		}
		idx, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("export %q: %w", name, err)
		}
		e := Export{Name: name, Sort: sort, Index: idx}
		has, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("export %q: %w", name, err)
		}
		switch has {
		case 0x00:
		case 0x01:
			d, err := readExternDesc(r)
			if err != nil {
				return nil, fmt.Errorf("export %q: %w", name, err)
			}
			e.Desc = &d
		default:
			return nil, fmt.Errorf("export %q: invalid type ascription 0x%02x", name, has)
		}
		sec.Exports = append(sec.Exports, e)
	}
	return sec, nil
}

// AllCoreModules returns core modules of the component and of every
// nested component, depth first.
func (c *Component) AllCoreModules() [][]byte {
	var out [][]byte
	for _, s := range c.Sections {
		switch s := s.(type) {
		case *CoreModuleSection:
			out = append(out, s.Module)
		case *ComponentSection:
			out = append(out, s.Component.AllCoreModules()...)
		}
	}
	return out
}
