package linker

import (
	"strconv"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/errors"
)

// funcType is a resolved component function signature.
type funcType struct {
	result wit.Type
	params []wit.Type
	names  []string
}

// instanceType keeps the declarations of an instance type. It is resolved
// each time it is used so that every import gets fresh resource types.
type instanceType struct {
	scope *scope
	decls []component.Decl
}

// componentType is recorded to keep the type index space aligned. Component
// imports are not supported.
type componentType struct{}

// instanceShape is a resolved instance type.
type instanceShape struct {
	funcs     map[string]*funcType
	types     map[string]wit.Type
	names     []string
	resources []string
}

// scope is one type index space. Outer aliases walk the parent chain.
type scope struct {
	parent *scope
	types  []any
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent}
}

func (s *scope) push(t any) uint32 {
	s.types = append(s.types, t)
	return uint32(len(s.types) - 1)
}

func (s *scope) get(idx uint32) (any, error) {
	if int(idx) >= len(s.types) {
		return nil, errors.NotFound(errors.PhaseLink, "type", strconv.FormatUint(uint64(idx), 10))
	}
	return s.types[idx], nil
}

func (s *scope) outer(count uint32) (*scope, error) {
	cur := s
	for i := uint32(0); i < count; i++ {
		if cur.parent == nil {
			return nil, errors.InvalidData(errors.PhaseLink, nil, "outer alias count "+strconv.FormatUint(uint64(count), 10)+" exceeds nesting")
		}
		cur = cur.parent
	}
	return cur, nil
}

func (s *scope) valueType(idx uint32) (wit.Type, error) {
	t, err := s.get(idx)
	if err != nil {
		return nil, err
	}
	vt, ok := t.(wit.Type)
	if !ok {
		return nil, errors.New(errors.PhaseLink, errors.KindTypeMismatch).
			Detail("type %d is not a value type", idx).Build()
	}
	return vt, nil
}

func (s *scope) funcType(idx uint32) (*funcType, error) {
	t, err := s.get(idx)
	if err != nil {
		return nil, err
	}
	ft, ok := t.(*funcType)
	if !ok {
		return nil, errors.New(errors.PhaseLink, errors.KindTypeMismatch).
			Detail("type %d is not a function type", idx).Build()
	}
	return ft, nil
}

func (s *scope) resourceType(idx uint32) (*wit.TypeDef, error) {
	t, err := s.get(idx)
	if err != nil {
		return nil, err
	}
	if td, ok := t.(*wit.TypeDef); ok {
		if _, ok := td.Kind.(*wit.Resource); ok {
			return td, nil
		}
	}
	return nil, errors.New(errors.PhaseLink, errors.KindTypeMismatch).
		Detail("type %d is not a resource type", idx).Build()
}

var prims = map[component.PrimValType]wit.Type{
	component.PrimBool:   wit.Bool{},
	component.PrimS8:     wit.S8{},
	component.PrimU8:     wit.U8{},
	component.PrimS16:    wit.S16{},
	component.PrimU16:    wit.U16{},
	component.PrimS32:    wit.S32{},
	component.PrimU32:    wit.U32{},
	component.PrimS64:    wit.S64{},
	component.PrimU64:    wit.U64{},
	component.PrimF32:    wit.F32{},
	component.PrimF64:    wit.F64{},
	component.PrimChar:   wit.Char{},
	component.PrimString: wit.String{},
}

func (s *scope) valType(v component.ValType) (wit.Type, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case component.PrimValType:
		if t, ok := prims[v]; ok {
			return t, nil
		}
		return nil, errors.InvalidData(errors.PhaseLink, nil, "unknown primitive type "+v.String())
	case component.TypeIndex:
		return s.valueType(uint32(v))
	}
	return nil, errors.InvalidData(errors.PhaseLink, nil, "unknown value type")
}

func (s *scope) valTypes(vs []component.ValType) ([]wit.Type, error) {
	out := make([]wit.Type, len(vs))
	for i, v := range vs {
		t, err := s.valType(v)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func def(kind wit.TypeDefKind) *wit.TypeDef {
	return &wit.TypeDef{Kind: kind}
}

// defType resolves a type definition. Resource definitions are handled by
// the caller because they need the core function index space.
func (s *scope) defType(d component.DefType) (any, error) {
	switch d := d.(type) {
	case component.PrimValType:
		return s.valType(d)
	case component.RecordType:
		fields := make([]wit.Field, len(d.Fields))
		for i, f := range d.Fields {
			t, err := s.valType(f.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = wit.Field{Name: f.Name, Type: t}
		}
		return def(&wit.Record{Fields: fields}), nil
	case component.VariantType:
		cases := make([]wit.Case, len(d.Cases))
		for i, c := range d.Cases {
			t, err := s.valType(c.Type)
			if err != nil {
				return nil, err
			}
			cases[i] = wit.Case{Name: c.Name, Type: t}
		}
		return def(&wit.Variant{Cases: cases}), nil
	case component.ListType:
		t, err := s.valType(d.Elem)
		if err != nil {
			return nil, err
		}
		return def(&wit.List{Type: t}), nil
	case component.TupleType:
		ts, err := s.valTypes(d.Types)
		if err != nil {
			return nil, err
		}
		return def(&wit.Tuple{Types: ts}), nil
	case component.FlagsType:
		flags := make([]wit.Flag, len(d.Names))
		for i, n := range d.Names {
			flags[i] = wit.Flag{Name: n}
		}
		return def(&wit.Flags{Flags: flags}), nil
	case component.EnumType:
		cases := make([]wit.EnumCase, len(d.Names))
		for i, n := range d.Names {
			cases[i] = wit.EnumCase{Name: n}
		}
		return def(&wit.Enum{Cases: cases}), nil
	case component.OptionType:
		t, err := s.valType(d.Type)
		if err != nil {
			return nil, err
		}
		return def(&wit.Option{Type: t}), nil
	case component.ResultType:
		ok, err := s.valType(d.OK)
		if err != nil {
			return nil, err
		}
		e, err := s.valType(d.Err)
		if err != nil {
			return nil, err
		}
		return def(&wit.Result{OK: ok, Err: e}), nil
	case component.OwnType:
		res, err := s.resourceType(d.Type)
		if err != nil {
			return nil, err
		}
		return def(&wit.Own{Type: res}), nil
	case component.BorrowType:
		res, err := s.resourceType(d.Type)
		if err != nil {
			return nil, err
		}
		return def(&wit.Borrow{Type: res}), nil
	case component.StreamType:
		return nil, errors.Unsupported(errors.PhaseLink, "stream types")
	case component.FutureType:
		return nil, errors.Unsupported(errors.PhaseLink, "future types")
	case component.FuncType:
		ft := &funcType{
			params: make([]wit.Type, len(d.Params)),
			names:  make([]string, len(d.Params)),
		}
		for i, p := range d.Params {
			t, err := s.valType(p.Type)
			if err != nil {
				return nil, err
			}
			ft.params[i] = t
			ft.names[i] = p.Name
		}
		r, err := s.valType(d.Result)
		if err != nil {
			return nil, err
		}
		ft.result = r
		return ft, nil
	case component.InstanceType:
		return &instanceType{scope: s, decls: d.Decls}, nil
	case component.ComponentType:
		return &componentType{}, nil
	case component.ResourceType:
		return newResource(""), nil
	}
	return nil, errors.Unsupported(errors.PhaseLink, "type definition")
}

func newResource(name string) *wit.TypeDef {
	td := def(&wit.Resource{})
	if name != "" {
		td.Name = &name
	}
	return td
}

// nameType records an export name on an anonymous type definition.
func nameType(t any, name string) {
	if td, ok := t.(*wit.TypeDef); ok && td.Name == nil {
		n := name
		td.Name = &n
	}
}

// shape resolves an instance type. bind, when non-nil, supplies existing
// resource types for sub-resource exports so that an instance passed to a
// nested component keeps its resource identities.
func (it *instanceType) shape(bind func(name string) *wit.TypeDef) (*instanceShape, error) {
	sc := newScope(it.scope)
	sh := &instanceShape{
		funcs: make(map[string]*funcType),
		types: make(map[string]wit.Type),
	}
	for _, d := range it.decls {
		switch d := d.(type) {
		case component.CoreTypeDecl:
			// Core types live in their own index space.
		case component.TypeDecl:
			t, err := sc.defType(d.Type)
			if err != nil {
				return nil, err
			}
			sc.push(t)
		case component.AliasDecl:
			if d.Alias.Target != component.AliasOuter || d.Alias.Sort != component.ComponentSort(component.SortType) {
				return nil, errors.Unsupported(errors.PhaseLink, "non-type alias in instance type")
			}
			outer, err := sc.outer(d.Alias.OuterCount)
			if err != nil {
				return nil, err
			}
			t, err := outer.get(d.Alias.OuterIndex)
			if err != nil {
				return nil, err
			}
			sc.push(t)
		case component.ExportDecl:
			sh.names = append(sh.names, d.Name)
			switch d.Desc.Kind {
			case component.ExternFunc:
				ft, err := sc.funcType(d.Desc.Index)
				if err != nil {
					return nil, err
				}
				sh.funcs[d.Name] = ft
			case component.ExternType:
				var t wit.Type
				if d.Desc.Bound == component.BoundSubResource {
					var td *wit.TypeDef
					if bind != nil {
						td = bind(d.Name)
					}
					if td == nil {
						td = newResource(d.Name)
					}
					sh.resources = append(sh.resources, d.Name)
					t = td
				} else {
					vt, err := sc.valueType(d.Desc.Index)
					if err != nil {
						return nil, err
					}
					nameType(vt, d.Name)
					t = vt
				}
				sh.types[d.Name] = t
				sc.push(t)
			default:
				return nil, errors.Unsupported(errors.PhaseLink, "instance type export of kind "+strconv.Itoa(int(d.Desc.Kind)))
			}
		case component.ImportDecl:
			return nil, errors.InvalidData(errors.PhaseLink, nil, "import declaration in instance type")
		}
	}
	return sh, nil
}
