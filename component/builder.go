package component

// Builder assembles a component while tracking index spaces, so callers
// can refer to the items they define by the index each method returns.
// Consecutive definitions of the same kind share a section.
type Builder struct {
	comp   Component
	counts map[Sort]uint32
}

// NewBuilder creates an empty component builder.
func NewBuilder() *Builder {
	return &Builder{
		comp:   Component{Version: ComponentVersion, Layer: ComponentLayer},
		counts: make(map[Sort]uint32),
	}
}

func (b *Builder) next(s Sort) uint32 {
	idx := b.counts[s]
	b.counts[s] = idx + 1
	return idx
}

func (b *Builder) last() Section {
	if len(b.comp.Sections) == 0 {
		return nil
	}
	return b.comp.Sections[len(b.comp.Sections)-1]
}

// ExternSort maps an externdesc kind to the index space it defines.
func ExternSort(kind byte) Sort {
	if kind == ExternCoreModule {
		return CoreSort(CoreSortModule)
	}
	return Sort{Kind: kind}
}

// Custom appends a custom section.
func (b *Builder) Custom(name string, data []byte) {
	b.comp.Sections = append(b.comp.Sections, &CustomSection{Name: name, Data: data})
}

// CoreModule embeds a core module and returns its core module index.
func (b *Builder) CoreModule(module []byte) uint32 {
	b.comp.Sections = append(b.comp.Sections, &CoreModuleSection{Module: module})
	return b.next(CoreSort(CoreSortModule))
}

func (b *Builder) coreInstance(inst CoreInstance) uint32 {
	if s, ok := b.last().(*CoreInstanceSection); ok {
		s.Instances = append(s.Instances, inst)
	} else {
		b.comp.Sections = append(b.comp.Sections, &CoreInstanceSection{Instances: []CoreInstance{inst}})
	}
	return b.next(CoreSort(CoreSortInstance))
}

// CoreInstantiate instantiates a core module with named instance arguments.
func (b *Builder) CoreInstantiate(module uint32, args ...CoreInstantiateArg) uint32 {
	return b.coreInstance(CoreInstance{Module: module, Args: args})
}

// CoreFromExports bundles core items into a core instance.
func (b *Builder) CoreFromExports(exports ...CoreInlineExport) uint32 {
	return b.coreInstance(CoreInstance{FromExports: true, Exports: exports})
}

// CoreType appends an encoded core type.
func (b *Builder) CoreType(raw []byte) uint32 {
	if s, ok := b.last().(*CoreTypeSection); ok {
		s.Types = append(s.Types, raw)
	} else {
		b.comp.Sections = append(b.comp.Sections, &CoreTypeSection{Types: [][]byte{raw}})
	}
	return b.next(CoreSort(CoreSortType))
}

// Nested embeds a component definition and returns its component index.
func (b *Builder) Nested(c *Component) uint32 {
	b.comp.Sections = append(b.comp.Sections, &ComponentSection{Component: c})
	return b.next(ComponentSort(SortComponent))
}

func (b *Builder) instance(inst Instance) uint32 {
	if s, ok := b.last().(*InstanceSection); ok {
		s.Instances = append(s.Instances, inst)
	} else {
		b.comp.Sections = append(b.comp.Sections, &InstanceSection{Instances: []Instance{inst}})
	}
	return b.next(ComponentSort(SortInstance))
}

// Instantiate instantiates a nested component with `with` arguments.
func (b *Builder) Instantiate(component uint32, args ...InstantiateArg) uint32 {
	return b.instance(Instance{Component: component, Args: args})
}

// InstanceFromExports bundles component items into an instance.
func (b *Builder) InstanceFromExports(exports ...InlineExport) uint32 {
	return b.instance(Instance{FromExports: true, Exports: exports})
}

// Alias appends an alias and returns its index in the aliased sort.
func (b *Builder) Alias(a Alias) uint32 {
	if s, ok := b.last().(*AliasSection); ok {
		s.Aliases = append(s.Aliases, a)
	} else {
		b.comp.Sections = append(b.comp.Sections, &AliasSection{Aliases: []Alias{a}})
	}
	return b.next(a.Sort)
}

// AliasCoreExport aliases a core instance export.
func (b *Builder) AliasCoreExport(instance uint32, core byte, name string) uint32 {
	return b.Alias(Alias{Sort: CoreSort(core), Target: AliasCoreInstanceExport, Instance: instance, Name: name})
}

// AliasExport aliases a component instance export.
func (b *Builder) AliasExport(instance uint32, sort byte, name string) uint32 {
	return b.Alias(Alias{Sort: ComponentSort(sort), Target: AliasInstanceExport, Instance: instance, Name: name})
}

// AliasOuter aliases an item of an enclosing component.
func (b *Builder) AliasOuter(sort Sort, count, index uint32) uint32 {
	return b.Alias(Alias{Sort: sort, Target: AliasOuter, OuterCount: count, OuterIndex: index})
}

// Type defines a type and returns its type index.
func (b *Builder) Type(t DefType) uint32 {
	if s, ok := b.last().(*TypeSection); ok {
		s.Types = append(s.Types, t)
	} else {
		b.comp.Sections = append(b.comp.Sections, &TypeSection{Types: []DefType{t}})
	}
	return b.next(ComponentSort(SortType))
}

func (b *Builder) canon(c Canon) {
	if s, ok := b.last().(*CanonSection); ok {
		s.Canons = append(s.Canons, c)
		return
	}
	b.comp.Sections = append(b.comp.Sections, &CanonSection{Canons: []Canon{c}})
}

// Lift lifts a core function to a component function of type typ.
func (b *Builder) Lift(coreFunc, typ uint32, opts CanonOptions) uint32 {
	b.canon(Canon{Kind: CanonLift, CoreFunc: coreFunc, Type: typ, Options: opts})
	return b.next(ComponentSort(SortFunc))
}

// Lower lowers a component function to a core function.
func (b *Builder) Lower(fn uint32, opts CanonOptions) uint32 {
	b.canon(Canon{Kind: CanonLower, Func: fn, Options: opts})
	return b.next(CoreSort(CoreSortFunc))
}

// ResourceNew defines canon resource.new for resource type typ.
func (b *Builder) ResourceNew(typ uint32) uint32 {
	b.canon(Canon{Kind: CanonResourceNew, Type: typ})
	return b.next(CoreSort(CoreSortFunc))
}

// ResourceDrop defines canon resource.drop for handle type typ.
func (b *Builder) ResourceDrop(typ uint32) uint32 {
	b.canon(Canon{Kind: CanonResourceDrop, Type: typ})
	return b.next(CoreSort(CoreSortFunc))
}

// ResourceRep defines canon resource.rep for resource type typ.
func (b *Builder) ResourceRep(typ uint32) uint32 {
	b.canon(Canon{Kind: CanonResourceRep, Type: typ})
	return b.next(CoreSort(CoreSortFunc))
}

// Import declares an import and returns its index in the imported sort.
func (b *Builder) Import(name string, desc ExternDesc) uint32 {
	imp := Import{Name: name, Desc: desc}
	if s, ok := b.last().(*ImportSection); ok {
		s.Imports = append(s.Imports, imp)
	} else {
		b.comp.Sections = append(b.comp.Sections, &ImportSection{Imports: []Import{imp}})
	}
	return b.next(ExternSort(desc.Kind))
}

// Export declares an export. Exports define a new index in their sort.
func (b *Builder) Export(name string, sort Sort, index uint32, desc *ExternDesc) uint32 {
	ex := Export{Name: name, Sort: sort, Index: index, Desc: desc}
	if s, ok := b.last().(*ExportSection); ok {
		s.Exports = append(s.Exports, ex)
	} else {
		b.comp.Sections = append(b.comp.Sections, &ExportSection{Exports: []Export{ex}})
	}
	return b.next(sort)
}

// Component returns the assembled component.
func (b *Builder) Component() *Component {
	c := b.comp
	return &c
}

// Bytes encodes the assembled component.
func (b *Builder) Bytes() ([]byte, error) {
	return Encode(&b.comp)
}
