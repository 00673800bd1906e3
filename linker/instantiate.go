package linker

import (
	"context"
	"strconv"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/engine"
	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/resource"
	"github.com/wippyai/component-harness/wasm"
)

// nestedComponent is a component definition together with the state it
// was defined in, which outer aliases inside it refer to.
type nestedComponent struct {
	comp  *component.Component
	outer *state
}

// state holds the index spaces of one component instance while its
// sections are processed in order.
type state struct {
	l     *Linker
	inst  *Instance
	outer *state
	types *scope
	guard *callGuard

	// Host imports, for the root component.
	imports host.Imports
	// Instantiation arguments, for nested components.
	args map[string]any

	funcs      []*compFunc
	instances  []*compInstance
	components []*nestedComponent

	coreFuncs    []coreExport
	coreTables   []coreExport
	coreMemories []coreExport
	coreGlobals  []coreExport
	coreModules  [][]byte
	coreInsts    []api.Module

	exports *compInstance
	missing []string
	depth   int
}

func at[T any](items []T, idx uint32, what string) (T, error) {
	if int(idx) >= len(items) {
		var zero T
		return zero, errors.NotFound(errors.PhaseLink, what, strconv.FormatUint(uint64(idx), 10))
	}
	return items[idx], nil
}

func (s *state) child(comp *nestedComponent, args map[string]any) *state {
	return &state{
		l:       s.l,
		inst:    s.inst,
		outer:   comp.outer,
		types:   newScope(comp.outer.types),
		guard:   &callGuard{},
		args:    args,
		exports: newCompInstance(""),
		depth:   s.depth + 1,
	}
}

// run processes every section of c.
func (s *state) run(ctx context.Context, c *component.Component) error {
	for _, sec := range c.Sections {
		var err error
		switch sec := sec.(type) {
		case *component.CustomSection, *component.CoreTypeSection:
		case *component.CoreModuleSection:
			s.coreModules = append(s.coreModules, sec.Module)
		case *component.CoreInstanceSection:
			if err = s.checkImports(); err != nil {
				return err
			}
			for _, ci := range sec.Instances {
				if err = s.coreInstance(ctx, ci); err != nil {
					return s.fail("core instance", len(s.coreInsts), "", err)
				}
			}
		case *component.ComponentSection:
			s.components = append(s.components, &nestedComponent{comp: sec.Component, outer: s})
		case *component.InstanceSection:
			if err = s.checkImports(); err != nil {
				return err
			}
			for _, in := range sec.Instances {
				if err = s.instance(ctx, in); err != nil {
					return s.fail("instance", len(s.instances), "", err)
				}
			}
		case *component.AliasSection:
			for _, a := range sec.Aliases {
				if err = s.alias(a); err != nil {
					return s.fail("alias", -1, a.Name, err)
				}
			}
		case *component.TypeSection:
			for _, t := range sec.Types {
				if err = s.defineType(t); err != nil {
					return s.fail("type", len(s.types.types), "", err)
				}
			}
		case *component.CanonSection:
			for _, c := range sec.Canons {
				if err = s.canon(ctx, c); err != nil {
					return s.fail("canon "+c.Kind.String(), -1, "", err)
				}
			}
		case *component.StartSection:
			return s.fail("start", -1, "", errors.Unsupported(errors.PhaseLink, "component start functions"))
		case *component.ImportSection:
			for _, imp := range sec.Imports {
				if err = s.importItem(imp); err != nil {
					return s.fail("import", -1, imp.Name, err)
				}
			}
		case *component.ExportSection:
			for _, ex := range sec.Exports {
				if err = s.export(ex); err != nil {
					return s.fail("export", -1, ex.Name, err)
				}
			}
		}
	}
	return s.checkImports()
}

// checkImports reports every unsatisfied host import at once. It runs
// before the first instantiation so that no guest code sees a missing
// import.
func (s *state) checkImports() error {
	if len(s.missing) > 0 {
		return errors.NewMissingImportsError(s.missing)
	}
	return nil
}

func (s *state) coreInstance(ctx context.Context, ci component.CoreInstance) error {
	if ci.FromExports {
		items := make([]bridgeItem, 0, len(ci.Exports))
		for _, ex := range ci.Exports {
			src, err := s.coreItem(ex.Sort, ex.Index)
			if err != nil {
				return err
			}
			items = append(items, bridgeItem{name: ex.Name, src: src})
		}
		mod, err := instantiateBridge(ctx, s.l.engine, items)
		if err != nil {
			return err
		}
		s.inst.modules = append(s.inst.modules, mod)
		s.coreInsts = append(s.coreInsts, mod)
		return nil
	}

	bin, err := at(s.coreModules, ci.Module, "core module")
	if err != nil {
		return err
	}
	imports := make(map[string]api.Module, len(ci.Args))
	for _, arg := range ci.Args {
		mod, err := at(s.coreInsts, arg.Instance, "core instance")
		if err != nil {
			return err
		}
		imports[arg.Name] = mod
	}
	cm, err := s.l.engine.Compile(ctx, bin)
	if err != nil {
		return err
	}
	mod, err := s.l.engine.Instantiate(ctx, cm, engine.UniqueName("core"), imports)
	if err != nil {
		return err
	}
	s.inst.modules = append(s.inst.modules, mod)
	s.coreInsts = append(s.coreInsts, mod)
	Logger().Debug("core instance created",
		zap.Uint32("module", ci.Module),
		zap.Int("args", len(ci.Args)),
		zap.Int("depth", s.depth))
	return nil
}

func (s *state) coreItem(sort byte, idx uint32) (coreExport, error) {
	switch sort {
	case component.CoreSortFunc:
		return at(s.coreFuncs, idx, "core func")
	case component.CoreSortTable:
		return at(s.coreTables, idx, "core table")
	case component.CoreSortMemory:
		return at(s.coreMemories, idx, "core memory")
	case component.CoreSortGlobal:
		return at(s.coreGlobals, idx, "core global")
	}
	return coreExport{}, errors.Unsupported(errors.PhaseLink, "core export of sort "+component.CoreSort(sort).String())
}

func (s *state) pushCore(sort byte, ce coreExport) error {
	switch sort {
	case component.CoreSortFunc:
		ce.kind = wasm.KindFunc
		s.coreFuncs = append(s.coreFuncs, ce)
	case component.CoreSortTable:
		ce.kind = wasm.KindTable
		s.coreTables = append(s.coreTables, ce)
	case component.CoreSortMemory:
		ce.kind = wasm.KindMemory
		s.coreMemories = append(s.coreMemories, ce)
	case component.CoreSortGlobal:
		ce.kind = wasm.KindGlobal
		s.coreGlobals = append(s.coreGlobals, ce)
	default:
		return errors.Unsupported(errors.PhaseLink, "alias of "+component.CoreSort(sort).String())
	}
	return nil
}

func (s *state) alias(a component.Alias) error {
	switch a.Target {
	case component.AliasCoreInstanceExport:
		mod, err := at(s.coreInsts, a.Instance, "core instance")
		if err != nil {
			return err
		}
		return s.pushCore(a.Sort.Core, coreExport{mod: mod, name: a.Name})

	case component.AliasInstanceExport:
		ci, err := at(s.instances, a.Instance, "instance")
		if err != nil {
			return err
		}
		switch a.Sort.Kind {
		case component.SortFunc:
			fn, ok := ci.funcs[a.Name]
			if !ok {
				return errors.NotFound(errors.PhaseLink, "function export", ci.name+"#"+a.Name)
			}
			s.funcs = append(s.funcs, fn)
		case component.SortInstance:
			sub, ok := ci.instances[a.Name]
			if !ok {
				return errors.NotFound(errors.PhaseLink, "instance export", ci.name+"#"+a.Name)
			}
			s.instances = append(s.instances, sub)
		case component.SortType:
			t, ok := ci.types[a.Name]
			if !ok {
				return errors.NotFound(errors.PhaseLink, "type export", ci.name+"#"+a.Name)
			}
			s.types.push(t)
		default:
			return errors.Unsupported(errors.PhaseLink, "alias of "+a.Sort.String()+" export")
		}
		return nil

	case component.AliasOuter:
		outer := s
		for i := uint32(0); i < a.OuterCount; i++ {
			if outer.outer == nil {
				return errors.InvalidData(errors.PhaseLink, nil, "outer alias count exceeds nesting")
			}
			outer = outer.outer
		}
		switch {
		case a.Sort == component.ComponentSort(component.SortType):
			t, err := outer.types.get(a.OuterIndex)
			if err != nil {
				return err
			}
			s.types.push(t)
		case a.Sort == component.ComponentSort(component.SortComponent):
			c, err := at(outer.components, a.OuterIndex, "component")
			if err != nil {
				return err
			}
			s.components = append(s.components, c)
		case a.Sort == component.CoreSort(component.CoreSortModule):
			m, err := at(outer.coreModules, a.OuterIndex, "core module")
			if err != nil {
				return err
			}
			s.coreModules = append(s.coreModules, m)
		default:
			return errors.Unsupported(errors.PhaseLink, "outer alias of "+a.Sort.String())
		}
		return nil
	}
	return errors.InvalidData(errors.PhaseLink, nil, "unknown alias target")
}

func (s *state) defineType(d component.DefType) error {
	if rt, ok := d.(component.ResourceType); ok {
		td := newResource("")
		var dtor api.Function
		if rt.Dtor != nil {
			ce, err := at(s.coreFuncs, *rt.Dtor, "core func")
			if err != nil {
				return err
			}
			if dtor, err = ce.function(); err != nil {
				return err
			}
		}
		s.inst.defineResource(td, "", dtor)
		s.types.push(td)
		return nil
	}
	t, err := s.types.defType(d)
	if err != nil {
		return err
	}
	s.types.push(t)
	return nil
}

func (s *state) canon(ctx context.Context, c component.Canon) error {
	switch c.Kind {
	case component.CanonLift:
		fn, err := s.canonLift(c)
		if err != nil {
			return err
		}
		s.funcs = append(s.funcs, fn)
	case component.CanonLower:
		ce, err := s.canonLower(ctx, c)
		if err != nil {
			return err
		}
		s.coreFuncs = append(s.coreFuncs, ce)
	case component.CanonResourceNew, component.CanonResourceDrop, component.CanonResourceRep:
		ce, err := s.canonResource(ctx, c)
		if err != nil {
			return err
		}
		s.coreFuncs = append(s.coreFuncs, ce)
	default:
		return errors.Unsupported(errors.PhaseLink, "canon "+c.Kind.String())
	}
	return nil
}

// instance instantiates a nested component or bundles exports.
func (s *state) instance(ctx context.Context, in component.Instance) error {
	if in.FromExports {
		ci := newCompInstance("")
		for _, ex := range in.Exports {
			item, err := s.item(ex.Sort, ex.Index)
			if err != nil {
				return err
			}
			ci.set(ex.Name, item)
		}
		s.instances = append(s.instances, ci)
		return nil
	}

	nc, err := at(s.components, in.Component, "component")
	if err != nil {
		return err
	}
	args := make(map[string]any, len(in.Args))
	for _, arg := range in.Args {
		item, err := s.item(arg.Sort, arg.Index)
		if err != nil {
			return err
		}
		args[arg.Name] = item
	}
	child := s.child(nc, args)
	if err := child.run(ctx, nc.comp); err != nil {
		return err
	}
	s.instances = append(s.instances, child.exports)
	return nil
}

// item returns a component-level item from an index space.
func (s *state) item(sort component.Sort, idx uint32) (any, error) {
	switch sort.Kind {
	case component.SortFunc:
		return at(s.funcs, idx, "func")
	case component.SortInstance:
		return at(s.instances, idx, "instance")
	case component.SortType:
		return s.types.get(idx)
	case component.SortComponent:
		return at(s.components, idx, "component")
	case component.SortCore:
		if sort.Core == component.CoreSortModule {
			return at(s.coreModules, idx, "core module")
		}
	}
	return nil, errors.Unsupported(errors.PhaseLink, "item of sort "+sort.String())
}

// set records a named item in an instance.
func (ci *compInstance) set(name string, item any) {
	switch v := item.(type) {
	case *compFunc:
		ci.funcs[name] = v
	case *compInstance:
		ci.instances[name] = v
	case wit.Type:
		nameType(v, name)
		ci.types[name] = v
	}
}

func (s *state) importItem(imp component.Import) error {
	if s.args != nil {
		return s.importArg(imp)
	}

	switch imp.Desc.Kind {
	case component.ExternInstance:
		t, err := s.types.get(imp.Desc.Index)
		if err != nil {
			return err
		}
		it, ok := t.(*instanceType)
		if !ok {
			return errors.New(errors.PhaseLink, errors.KindTypeMismatch).
				Detail("instance import %q has a non-instance type", imp.Name).Build()
		}
		ci, err := s.hostInstance(imp.Name, it)
		if err != nil {
			return err
		}
		s.instances = append(s.instances, ci)

	case component.ExternFunc:
		ft, err := s.types.funcType(imp.Desc.Index)
		if err != nil {
			return err
		}
		var iface host.Interface
		if s.imports != nil {
			iface = s.imports[host.Root]
		}
		fn, err := s.hostFunc(iface, host.Root, imp.Name, ft)
		if err != nil {
			return err
		}
		s.funcs = append(s.funcs, fn)

	case component.ExternType:
		if imp.Desc.Bound == component.BoundSubResource {
			td := newResource(imp.Name)
			s.inst.defineResource(td, resource.TypeName(host.Root, imp.Name), nil)
			s.types.push(td)
			return nil
		}
		t, err := s.types.get(imp.Desc.Index)
		if err != nil {
			return err
		}
		s.types.push(t)

	default:
		return errors.Unsupported(errors.PhaseLink, "import of extern kind "+strconv.Itoa(int(imp.Desc.Kind)))
	}
	return nil
}

// hostInstance satisfies an instance import from the host import table.
// Missing functions are recorded and reported together.
func (s *state) hostInstance(name string, it *instanceType) (*compInstance, error) {
	shape, err := it.shape(nil)
	if err != nil {
		return nil, err
	}
	ci := newCompInstance(name)
	base, _ := host.SplitVersion(name)
	for _, rn := range shape.resources {
		td := shape.types[rn].(*wit.TypeDef)
		s.inst.defineResource(td, resource.TypeName(base, rn), nil)
	}
	for n, t := range shape.types {
		ci.types[n] = t
	}

	iface, _ := s.imports.Resolve(name)
	for _, fname := range shape.names {
		ft, ok := shape.funcs[fname]
		if !ok {
			continue
		}
		fn, err := s.hostFunc(iface, name, fname, ft)
		if err != nil {
			return nil, err
		}
		ci.funcs[fname] = fn
	}
	return ci, nil
}

func (s *state) hostFunc(iface host.Interface, ifaceName, name string, ft *funcType) (*compFunc, error) {
	path := ifaceName + "#" + name
	impl, ok := iface.Lookup(name)
	if !ok {
		s.missing = append(s.missing, path)
		return &compFunc{typ: ft, name: path, call: missingImport(path)}, nil
	}
	call, err := host.Adapt(path, impl, ft.params, ft.result)
	if err != nil {
		return nil, err
	}
	return &compFunc{typ: ft, name: path, call: call}, nil
}

func missingImport(path string) host.Func {
	return func(context.Context, []any) (any, error) {
		return nil, errors.NotFound(errors.PhaseHost, "host import", path)
	}
}

// importArg satisfies an import of a nested component from its
// instantiation arguments.
func (s *state) importArg(imp component.Import) error {
	arg, ok := s.args[imp.Name]
	if !ok {
		return errors.NotFound(errors.PhaseLink, "instantiation argument", imp.Name)
	}
	mismatch := func() error {
		return errors.New(errors.PhaseLink, errors.KindTypeMismatch).
			Detail("argument %q does not match its import", imp.Name).Build()
	}

	switch imp.Desc.Kind {
	case component.ExternInstance:
		ci, ok := arg.(*compInstance)
		if !ok {
			return mismatch()
		}
		t, err := s.types.get(imp.Desc.Index)
		if err != nil {
			return err
		}
		if it, ok := t.(*instanceType); ok {
			// Resolve to bind resource identities; the shape itself is
			// not checked against the argument.
			if _, err := it.shape(func(n string) *wit.TypeDef {
				td, _ := ci.types[n].(*wit.TypeDef)
				return td
			}); err != nil {
				return err
			}
		}
		s.instances = append(s.instances, ci)
	case component.ExternFunc:
		fn, ok := arg.(*compFunc)
		if !ok {
			return mismatch()
		}
		s.funcs = append(s.funcs, fn)
	case component.ExternType:
		t, ok := arg.(wit.Type)
		if !ok {
			return mismatch()
		}
		s.types.push(t)
	case component.ExternComponent:
		nc, ok := arg.(*nestedComponent)
		if !ok {
			return mismatch()
		}
		s.components = append(s.components, nc)
	case component.ExternCoreModule:
		m, ok := arg.([]byte)
		if !ok {
			return mismatch()
		}
		s.coreModules = append(s.coreModules, m)
	default:
		return errors.Unsupported(errors.PhaseLink, "import of extern kind "+strconv.Itoa(int(imp.Desc.Kind)))
	}
	return nil
}

func (s *state) export(ex component.Export) error {
	item, err := s.item(ex.Sort, ex.Index)
	if err != nil {
		return err
	}
	if ex.Sort.Kind == component.SortType {
		nameType(item, ex.Name)
		s.types.push(item)
		s.exports.set(ex.Name, item)
		return nil
	}
	switch v := item.(type) {
	case *compFunc:
		if s.depth == 0 {
			v.name = ex.Name
		}
		s.funcs = append(s.funcs, v)
	case *compInstance:
		if v.name == "" || s.depth == 0 {
			v.name = ex.Name
		}
		if s.depth == 0 {
			for n, fn := range v.funcs {
				fn.name = ex.Name + "#" + n
			}
		}
		s.instances = append(s.instances, v)
	case *nestedComponent:
		s.components = append(s.components, v)
	case []byte:
		s.coreModules = append(s.coreModules, v)
	}
	s.exports.set(ex.Name, item)
	return nil
}
