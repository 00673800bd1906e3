package component

import (
	"fmt"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/wasm"
)

// Encode serializes a component. Nested components are re-encoded from
// their decoded form.
func Encode(c *Component) ([]byte, error) {
	version, layer := c.Version, c.Layer
	if version == 0 {
		version = ComponentVersion
	}
	if layer == 0 {
		layer = ComponentLayer
	}
	out := []byte{0x00, 0x61, 0x73, 0x6D, byte(version), byte(version >> 8), byte(layer), byte(layer >> 8)}

	for i, s := range c.Sections {
		body, err := encodeSection(s)
		if err != nil {
			return nil, fmt.Errorf("section %d (id %d): %w", i, s.SectionID(), err)
		}
		out = append(out, s.SectionID())
		out = wasm.AppendULEB128(out, uint64(len(body)))
		out = append(out, body...)
	}
	return out, nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) byte(b ...byte) { e.buf = append(e.buf, b...) }
func (e *encoder) u32(v uint32)   { e.buf = wasm.AppendULEB128(e.buf, uint64(v)) }
func (e *encoder) name(s string)  { e.buf = wasm.AppendName(e.buf, s) }
func (e *encoder) externName(s string) {
	e.byte(0x00)
	e.name(s)
}

func (e *encoder) sort(s Sort) {
	e.byte(s.Kind)
	if s.Kind == SortCore {
		e.byte(s.Core)
	}
}

func (e *encoder) valType(t ValType) error {
	switch t := t.(type) {
	case PrimValType:
		e.byte(byte(t))
	case TypeIndex:
		e.buf = wasm.AppendSLEB128(e.buf, int64(t))
	default:
		return fmt.Errorf("invalid valtype %T", t)
	}
	return nil
}

func (e *encoder) optionValType(t ValType) error {
	if t == nil {
		e.byte(0x00)
		return nil
	}
	e.byte(0x01)
	return e.valType(t)
}

func (e *encoder) optionU32(v *uint32) {
	if v == nil {
		e.byte(0x00)
		return
	}
	e.byte(0x01)
	e.u32(*v)
}

func (e *encoder) externDesc(d ExternDesc) {
	e.byte(d.Kind)
	switch d.Kind {
	case ExternCoreModule:
		e.byte(CoreSortModule)
		e.u32(d.Index)
	case ExternType, ExternValue:
		e.byte(d.Bound)
		if d.Bound == BoundEq || d.Kind == ExternValue {
			e.u32(d.Index)
		}
	default:
		e.u32(d.Index)
	}
}

func (e *encoder) alias(a Alias) {
	e.sort(a.Sort)
	e.byte(a.Target)
	if a.Target == AliasOuter {
		e.u32(a.OuterCount)
		e.u32(a.OuterIndex)
		return
	}
	e.u32(a.Instance)
	e.name(a.Name)
}

func encodeSection(s Section) ([]byte, error) {
	e := &encoder{}
	switch s := s.(type) {
	case *CustomSection:
		e.name(s.Name)
		e.byte(s.Data...)

	case *CoreModuleSection:
		e.byte(s.Module...)

	case *CoreInstanceSection:
		e.u32(uint32(len(s.Instances)))
		for _, inst := range s.Instances {
			if inst.FromExports {
				e.byte(0x01)
				e.u32(uint32(len(inst.Exports)))
				for _, ex := range inst.Exports {
					e.name(ex.Name)
					e.byte(ex.Sort)
					e.u32(ex.Index)
				}
				continue
			}
			e.byte(0x00)
			e.u32(inst.Module)
			e.u32(uint32(len(inst.Args)))
			for _, a := range inst.Args {
				e.name(a.Name)
				e.byte(CoreSortInstance)
				e.u32(a.Instance)
			}
		}

	case *CoreTypeSection:
		e.u32(uint32(len(s.Types)))
		for _, t := range s.Types {
			e.byte(t...)
		}

	case *ComponentSection:
		if s.Component == nil {
			e.byte(s.Raw...)
			break
		}
		nested, err := Encode(s.Component)
		if err != nil {
			return nil, fmt.Errorf("nested component: %w", err)
		}
		e.byte(nested...)

	case *InstanceSection:
		e.u32(uint32(len(s.Instances)))
		for _, inst := range s.Instances {
			if inst.FromExports {
				e.byte(0x01)
				e.u32(uint32(len(inst.Exports)))
				for _, ex := range inst.Exports {
					e.externName(ex.Name)
					e.sort(ex.Sort)
					e.u32(ex.Index)
				}
				continue
			}
			e.byte(0x00)
			e.u32(inst.Component)
			e.u32(uint32(len(inst.Args)))
			for _, a := range inst.Args {
				e.name(a.Name)
				e.sort(a.Sort)
				e.u32(a.Index)
			}
		}

	case *AliasSection:
		e.u32(uint32(len(s.Aliases)))
		for _, a := range s.Aliases {
			e.alias(a)
		}

	case *TypeSection:
		e.u32(uint32(len(s.Types)))
		for i, t := range s.Types {
			if err := e.defType(t); err != nil {
				return nil, fmt.Errorf("type %d: %w", i, err)
			}
		}

	case *CanonSection:
		e.u32(uint32(len(s.Canons)))
		for _, c := range s.Canons {
			e.canon(c)
		}

	case *StartSection:
		e.u32(s.Func)
		e.u32(uint32(len(s.Args)))
		for _, a := range s.Args {
			e.u32(a)
		}
		e.u32(s.Results)

	case *ImportSection:
		e.u32(uint32(len(s.Imports)))
		for _, imp := range s.Imports {
			e.externName(imp.Name)
			e.externDesc(imp.Desc)
		}

	case *ExportSection:
		e.u32(uint32(len(s.Exports)))
		for _, ex := range s.Exports {
			e.externName(ex.Name)
			e.sort(ex.Sort)
			e.u32(ex.Index)
			if ex.Desc == nil {
				e.byte(0x00)
			} else {
				e.byte(0x01)
				e.externDesc(*ex.Desc)
			}
		}

	default:
		return nil, fmt.Errorf("unknown section type %T", s)
	}
	return e.buf, nil
}

func (e *encoder) canon(c Canon) {
	switch c.Kind {
	case CanonLift:
		e.byte(0x00, 0x00)
		e.u32(c.CoreFunc)
		e.canonOptions(c.Options)
		e.u32(c.Type)
	case CanonLower:
		e.byte(0x01, 0x00)
		e.u32(c.Func)
		e.canonOptions(c.Options)
	default:
		e.byte(byte(c.Kind))
		e.u32(c.Type)
	}
}

func (e *encoder) canonOptions(o CanonOptions) {
	var opts [][]byte
	switch o.Encoding {
	case abi.UTF16:
		opts = append(opts, []byte{OptUTF16})
	case abi.Latin1UTF16:
		opts = append(opts, []byte{OptLatin1UTF16})
	}
	for _, opt := range []struct {
		v    *uint32
		code byte
	}{{o.Memory, OptMemory}, {o.Realloc, OptRealloc}, {o.PostReturn, OptPostReturn}} {
		if opt.v != nil {
			opts = append(opts, wasm.AppendULEB128([]byte{opt.code}, uint64(*opt.v)))
		}
	}
	e.u32(uint32(len(opts)))
	for _, opt := range opts {
		e.byte(opt...)
	}
}

func (e *encoder) defType(t DefType) error {
	switch t := t.(type) {
	case PrimValType:
		e.byte(byte(t))
	case RecordType:
		e.byte(0x72)
		e.u32(uint32(len(t.Fields)))
		for _, f := range t.Fields {
			e.name(f.Name)
			if err := e.valType(f.Type); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
	case VariantType:
		e.byte(0x71)
		e.u32(uint32(len(t.Cases)))
		for _, c := range t.Cases {
			e.name(c.Name)
			if err := e.optionValType(c.Type); err != nil {
				return fmt.Errorf("case %q: %w", c.Name, err)
			}
			e.byte(0x00)
		}
	case ListType:
		e.byte(0x70)
		return e.valType(t.Elem)
	case TupleType:
		e.byte(0x6f)
		e.u32(uint32(len(t.Types)))
		for _, v := range t.Types {
			if err := e.valType(v); err != nil {
				return err
			}
		}
	case FlagsType:
		e.byte(0x6e)
		e.labels(t.Names)
	case EnumType:
		e.byte(0x6d)
		e.labels(t.Names)
	case OptionType:
		e.byte(0x6b)
		return e.valType(t.Type)
	case ResultType:
		e.byte(0x6a)
		if err := e.optionValType(t.OK); err != nil {
			return err
		}
		return e.optionValType(t.Err)
	case OwnType:
		e.byte(0x69)
		e.u32(t.Type)
	case BorrowType:
		e.byte(0x68)
		e.u32(t.Type)
	case StreamType:
		e.byte(0x66)
		return e.optionValType(t.Elem)
	case FutureType:
		e.byte(0x65)
		return e.optionValType(t.Elem)
	case FuncType:
		e.byte(0x40)
		e.u32(uint32(len(t.Params)))
		for _, p := range t.Params {
			e.name(p.Name)
			if err := e.valType(p.Type); err != nil {
				return fmt.Errorf("param %q: %w", p.Name, err)
			}
		}
		if t.Result == nil {
			e.byte(0x01, 0x00)
			return nil
		}
		e.byte(0x00)
		return e.valType(t.Result)
	case ComponentType:
		e.byte(0x41)
		return e.decls(t.Decls)
	case InstanceType:
		e.byte(0x42)
		return e.decls(t.Decls)
	case ResourceType:
		e.byte(0x3f, 0x7f)
		e.optionU32(t.Dtor)
	default:
		return fmt.Errorf("unknown type %T", t)
	}
	return nil
}

func (e *encoder) labels(names []string) {
	e.u32(uint32(len(names)))
	for _, n := range names {
		e.name(n)
	}
}

func (e *encoder) decls(decls []Decl) error {
	e.u32(uint32(len(decls)))
	for i, d := range decls {
		switch d := d.(type) {
		case CoreTypeDecl:
			e.byte(0x00)
			e.byte(d.Raw...)
		case TypeDecl:
			e.byte(0x01)
			if err := e.defType(d.Type); err != nil {
				return fmt.Errorf("decl %d: %w", i, err)
			}
		case AliasDecl:
			e.byte(0x02)
			e.alias(d.Alias)
		case ImportDecl:
			e.byte(0x03)
			e.externName(d.Name)
			e.externDesc(d.Desc)
		case ExportDecl:
			e.byte(0x04)
			e.externName(d.Name)
			e.externDesc(d.Desc)
		default:
			return fmt.Errorf("decl %d: unknown declaration %T", i, d)
		}
	}
	return nil
}
