package linker

import (
	"sort"
	"strconv"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/errors"
)

// World is the typed import and export surface of a component, resolved
// without instantiating anything.
type World struct {
	Imports []Extern
	Exports []Extern
}

// Extern is one import or export of a world. Func is set for function
// items, Funcs and Types for instances, Type for type items.
type Extern struct {
	Type  wit.Type
	Func  *Signature
	Types map[string]wit.Type
	Name  string
	Kind  string
	Funcs []Signature
}

// Signature is a component function type.
type Signature struct {
	Result wit.Type
	Name   string
	Params []Param
}

// Param is a named function parameter.
type Param struct {
	Type wit.Type
	Name string
}

// Describe resolves the world of c. Core modules are not inspected.
func Describe(c *component.Component) (*World, error) {
	d := &describer{types: newScope(nil), world: &World{}}
	if err := d.run(c); err != nil {
		return nil, err
	}
	return d.world, nil
}

// typedInstance is the type-level view of a component instance.
type typedInstance struct {
	funcs     map[string]*funcType
	types     map[string]wit.Type
	instances map[string]*typedInstance
}

func newTypedInstance() *typedInstance {
	return &typedInstance{
		funcs:     make(map[string]*funcType),
		types:     make(map[string]wit.Type),
		instances: make(map[string]*typedInstance),
	}
}

func fromShape(sh *instanceShape) *typedInstance {
	ti := newTypedInstance()
	for n, ft := range sh.funcs {
		ti.funcs[n] = ft
	}
	for n, t := range sh.types {
		ti.types[n] = t
	}
	return ti
}

type describer struct {
	outer      *describer
	types      *scope
	world      *World
	args       map[string]any
	funcs      []*funcType
	instances  []*typedInstance
	components []*describedComponent
	exports    *typedInstance
}

type describedComponent struct {
	comp  *component.Component
	outer *describer
}

func (d *describer) run(c *component.Component) error {
	for _, sec := range c.Sections {
		var err error
		switch sec := sec.(type) {
		case *component.ComponentSection:
			d.components = append(d.components, &describedComponent{comp: sec.Component, outer: d})
		case *component.TypeSection:
			for _, t := range sec.Types {
				var v any
				if v, err = d.types.defType(t); err != nil {
					return err
				}
				d.types.push(v)
			}
		case *component.AliasSection:
			for _, a := range sec.Aliases {
				if err = d.alias(a); err != nil {
					return err
				}
			}
		case *component.CanonSection:
			for _, cn := range sec.Canons {
				if cn.Kind != component.CanonLift {
					continue
				}
				ft, err := d.types.funcType(cn.Type)
				if err != nil {
					return err
				}
				d.funcs = append(d.funcs, ft)
			}
		case *component.InstanceSection:
			for _, in := range sec.Instances {
				if err = d.instance(in); err != nil {
					return err
				}
			}
		case *component.ImportSection:
			for _, imp := range sec.Imports {
				if err = d.importItem(imp); err != nil {
					return err
				}
			}
		case *component.ExportSection:
			for _, ex := range sec.Exports {
				if err = d.export(ex); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (d *describer) alias(a component.Alias) error {
	switch a.Target {
	case component.AliasInstanceExport:
		ti, err := at(d.instances, a.Instance, "instance")
		if err != nil {
			return err
		}
		switch a.Sort.Kind {
		case component.SortFunc:
			ft, ok := ti.funcs[a.Name]
			if !ok {
				return errors.NotFound(errors.PhaseLink, "function export", a.Name)
			}
			d.funcs = append(d.funcs, ft)
		case component.SortType:
			t, ok := ti.types[a.Name]
			if !ok {
				return errors.NotFound(errors.PhaseLink, "type export", a.Name)
			}
			d.types.push(t)
		case component.SortInstance:
			sub, ok := ti.instances[a.Name]
			if !ok {
				return errors.NotFound(errors.PhaseLink, "instance export", a.Name)
			}
			d.instances = append(d.instances, sub)
		}
	case component.AliasOuter:
		outer := d
		for i := uint32(0); i < a.OuterCount && outer != nil; i++ {
			outer = outer.outer
		}
		if outer == nil {
			return errors.InvalidData(errors.PhaseLink, nil, "outer alias count exceeds nesting")
		}
		switch a.Sort.Kind {
		case component.SortType:
			t, err := outer.types.get(a.OuterIndex)
			if err != nil {
				return err
			}
			d.types.push(t)
		case component.SortComponent:
			c, err := at(outer.components, a.OuterIndex, "component")
			if err != nil {
				return err
			}
			d.components = append(d.components, c)
		}
	}
	return nil
}

func (d *describer) instance(in component.Instance) error {
	if in.FromExports {
		ti := newTypedInstance()
		for _, ex := range in.Exports {
			item, err := d.item(ex.Sort, ex.Index)
			if err != nil {
				return err
			}
			ti.set(ex.Name, item)
		}
		d.instances = append(d.instances, ti)
		return nil
	}
	dc, err := at(d.components, in.Component, "component")
	if err != nil {
		return err
	}
	args := make(map[string]any, len(in.Args))
	for _, arg := range in.Args {
		item, err := d.item(arg.Sort, arg.Index)
		if err != nil {
			return err
		}
		args[arg.Name] = item
	}
	child := &describer{
		outer:   dc.outer,
		types:   newScope(dc.outer.types),
		world:   &World{},
		args:    args,
		exports: newTypedInstance(),
	}
	if err := child.run(dc.comp); err != nil {
		return err
	}
	d.instances = append(d.instances, child.exports)
	return nil
}

func (d *describer) item(sort component.Sort, idx uint32) (any, error) {
	switch sort.Kind {
	case component.SortFunc:
		return at(d.funcs, idx, "func")
	case component.SortInstance:
		return at(d.instances, idx, "instance")
	case component.SortType:
		return d.types.get(idx)
	case component.SortComponent:
		return at(d.components, idx, "component")
	}
	// Core items do not contribute to the world.
	return nil, nil
}

func (ti *typedInstance) set(name string, item any) {
	switch v := item.(type) {
	case *funcType:
		ti.funcs[name] = v
	case *typedInstance:
		ti.instances[name] = v
	case wit.Type:
		ti.types[name] = v
	}
}

func (d *describer) importItem(imp component.Import) error {
	var item any
	if d.args != nil {
		item = d.args[imp.Name]
	} else {
		var err error
		if item, err = d.externItem(imp.Desc, imp.Name); err != nil {
			return err
		}
		ext := externOf(imp.Name, item)
		d.world.Imports = append(d.world.Imports, ext)
	}
	return d.push(imp.Desc.Kind, item)
}

// externItem resolves the item an extern descriptor describes.
func (d *describer) externItem(desc component.ExternDesc, name string) (any, error) {
	switch desc.Kind {
	case component.ExternFunc:
		return d.types.funcType(desc.Index)
	case component.ExternInstance:
		t, err := d.types.get(desc.Index)
		if err != nil {
			return nil, err
		}
		it, ok := t.(*instanceType)
		if !ok {
			return nil, errors.New(errors.PhaseLink, errors.KindTypeMismatch).
				Detail("%q has a non-instance type", name).Build()
		}
		sh, err := it.shape(nil)
		if err != nil {
			return nil, err
		}
		return fromShape(sh), nil
	case component.ExternType:
		if desc.Bound == component.BoundSubResource {
			return newResource(name), nil
		}
		return d.types.get(desc.Index)
	}
	return nil, nil
}

func (d *describer) push(kind byte, item any) error {
	switch kind {
	case component.ExternFunc:
		ft, ok := item.(*funcType)
		if !ok {
			return errors.NotFound(errors.PhaseLink, "function argument", strconv.Itoa(len(d.funcs)))
		}
		d.funcs = append(d.funcs, ft)
	case component.ExternInstance:
		ti, ok := item.(*typedInstance)
		if !ok {
			return errors.NotFound(errors.PhaseLink, "instance argument", strconv.Itoa(len(d.instances)))
		}
		d.instances = append(d.instances, ti)
	case component.ExternType:
		d.types.push(item)
	case component.ExternComponent:
		if dc, ok := item.(*describedComponent); ok {
			d.components = append(d.components, dc)
		}
	}
	return nil
}

func (d *describer) export(ex component.Export) error {
	item, err := d.item(ex.Sort, ex.Index)
	if err != nil {
		return err
	}
	if ex.Desc != nil && ex.Desc.Kind == component.ExternInstance {
		// A type ascription is the authoritative view of the export.
		if ascribed, err := d.externItem(*ex.Desc, ex.Name); err == nil {
			item = ascribed
		}
	}
	switch ex.Sort.Kind {
	case component.SortFunc:
		if ft, ok := item.(*funcType); ok {
			d.funcs = append(d.funcs, ft)
		}
	case component.SortInstance:
		if ti, ok := item.(*typedInstance); ok {
			d.instances = append(d.instances, ti)
		}
	case component.SortType:
		nameType(item, ex.Name)
		d.types.push(item)
	case component.SortComponent:
		if dc, ok := item.(*describedComponent); ok {
			d.components = append(d.components, dc)
		}
	}
	if d.exports != nil {
		d.exports.set(ex.Name, item)
	}
	if d.outer == nil {
		d.world.Exports = append(d.world.Exports, externOf(ex.Name, item))
	}
	return nil
}

func externOf(name string, item any) Extern {
	ext := Extern{Name: name}
	switch v := item.(type) {
	case *funcType:
		ext.Kind = "func"
		sig := signatureFor(name, v)
		ext.Func = &sig
	case *typedInstance:
		ext.Kind = "instance"
		ext.Types = v.types
		names := make([]string, 0, len(v.funcs))
		for n := range v.funcs {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			ext.Funcs = append(ext.Funcs, signatureFor(n, v.funcs[n]))
		}
	case wit.Type:
		ext.Kind = "type"
		ext.Type = v
	default:
		ext.Kind = "other"
	}
	return ext
}

func signatureFor(name string, ft *funcType) Signature {
	sig := Signature{Name: name, Result: ft.result}
	for i, t := range ft.params {
		sig.Params = append(sig.Params, Param{Name: ft.names[i], Type: t})
	}
	return sig
}
