package component

import "github.com/wippyai/component-harness/abi"

// Component is a decoded component binary. Sections are kept in binary
// order because index spaces are built incrementally as sections appear.
type Component struct {
	Sections []Section
	Version  uint16
	Layer    uint16
}

// Section is one decoded section of a component.
type Section interface {
	SectionID() byte
}

// Section IDs
const (
	SectionCustom       byte = 0
	SectionCoreModule   byte = 1
	SectionCoreInstance byte = 2
	SectionCoreType     byte = 3
	SectionComponent    byte = 4
	SectionInstance     byte = 5
	SectionAlias        byte = 6
	SectionType         byte = 7
	SectionCanon        byte = 8
	SectionStart        byte = 9
	SectionImport       byte = 10
	SectionExport       byte = 11
)

// Sort kinds
const (
	SortCore      byte = 0x00
	SortFunc      byte = 0x01
	SortValue     byte = 0x02
	SortType      byte = 0x03
	SortComponent byte = 0x04
	SortInstance  byte = 0x05
)

// Core sort kinds
const (
	CoreSortFunc     byte = 0x00
	CoreSortTable    byte = 0x01
	CoreSortMemory   byte = 0x02
	CoreSortGlobal   byte = 0x03
	CoreSortType     byte = 0x10
	CoreSortModule   byte = 0x11
	CoreSortInstance byte = 0x12
)

// externdesc kinds
const (
	ExternCoreModule byte = 0x00
	ExternFunc       byte = 0x01
	ExternValue      byte = 0x02
	ExternType       byte = 0x03
	ExternComponent  byte = 0x04
	ExternInstance   byte = 0x05
)

// Type bounds of a type import or export
const (
	BoundEq          byte = 0x00
	BoundSubResource byte = 0x01
)

// Alias targets
const (
	AliasInstanceExport     byte = 0x00
	AliasCoreInstanceExport byte = 0x01
	AliasOuter              byte = 0x02
)

// Sort identifies an index space. Core is meaningful when Kind is SortCore.
type Sort struct {
	Kind byte
	Core byte
}

// CoreSort returns the sort for a core index space.
func CoreSort(core byte) Sort { return Sort{Kind: SortCore, Core: core} }

// ComponentSort returns the sort for a component-level index space.
func ComponentSort(kind byte) Sort { return Sort{Kind: kind} }

func (s Sort) String() string {
	if s.Kind == SortCore {
		switch s.Core {
		case CoreSortFunc:
			return "core func"
		case CoreSortTable:
			return "core table"
		case CoreSortMemory:
			return "core memory"
		case CoreSortGlobal:
			return "core global"
		case CoreSortType:
			return "core type"
		case CoreSortModule:
			return "core module"
		case CoreSortInstance:
			return "core instance"
		}
		return "core ?"
	}
	switch s.Kind {
	case SortFunc:
		return "func"
	case SortValue:
		return "value"
	case SortType:
		return "type"
	case SortComponent:
		return "component"
	case SortInstance:
		return "instance"
	}
	return "?"
}

// CustomSection is section 0.
type CustomSection struct {
	Name string
	Data []byte
}

// CoreModuleSection embeds a core module binary.
type CoreModuleSection struct {
	Module []byte
}

// CoreInstanceSection declares core instances.
type CoreInstanceSection struct {
	Instances []CoreInstance
}

// CoreInstance either instantiates a module or bundles existing exports.
type CoreInstance struct {
	Args        []CoreInstantiateArg
	Exports     []CoreInlineExport
	Module      uint32
	FromExports bool
}

// CoreInstantiateArg supplies a core instance for one import module name.
type CoreInstantiateArg struct {
	Name     string
	Instance uint32
}

// CoreInlineExport names an item of a from-exports core instance.
type CoreInlineExport struct {
	Name  string
	Sort  byte
	Index uint32
}

// CoreTypeSection holds core type definitions as raw encodings.
type CoreTypeSection struct {
	Types [][]byte
}

// ComponentSection embeds a nested component.
type ComponentSection struct {
	Component *Component
	Raw       []byte
}

// InstanceSection declares component instances.
type InstanceSection struct {
	Instances []Instance
}

// Instance either instantiates a component or bundles existing exports.
type Instance struct {
	Args        []InstantiateArg
	Exports     []InlineExport
	Component   uint32
	FromExports bool
}

// InstantiateArg is a `with` argument of a component instantiation.
type InstantiateArg struct {
	Name  string
	Sort  Sort
	Index uint32
}

// InlineExport is one item of a from-exports instance.
type InlineExport struct {
	Name  string
	Sort  Sort
	Index uint32
}

// AliasSection declares aliases.
type AliasSection struct {
	Aliases []Alias
}

// Alias projects an export out of an instance or refers to an outer scope.
type Alias struct {
	Name       string
	Sort       Sort
	Instance   uint32
	OuterCount uint32
	OuterIndex uint32
	Target     byte
}

// TypeSection declares component types.
type TypeSection struct {
	Types []DefType
}

// CanonSection declares canonical functions.
type CanonSection struct {
	Canons []Canon
}

// StartSection declares the component start function.
type StartSection struct {
	Args    []uint32
	Func    uint32
	Results uint32
}

// ImportSection declares component imports.
type ImportSection struct {
	Imports []Import
}

// Import is a named component import.
type Import struct {
	Name string
	Desc ExternDesc
}

// ExportSection declares component exports.
type ExportSection struct {
	Exports []Export
}

// Export is a named component export with an optional type ascription.
type Export struct {
	Desc  *ExternDesc
	Name  string
	Sort  Sort
	Index uint32
}

func (CustomSection) SectionID() byte       { return SectionCustom }
func (CoreModuleSection) SectionID() byte   { return SectionCoreModule }
func (CoreInstanceSection) SectionID() byte { return SectionCoreInstance }
func (CoreTypeSection) SectionID() byte     { return SectionCoreType }
func (ComponentSection) SectionID() byte    { return SectionComponent }
func (InstanceSection) SectionID() byte     { return SectionInstance }
func (AliasSection) SectionID() byte        { return SectionAlias }
func (TypeSection) SectionID() byte         { return SectionType }
func (CanonSection) SectionID() byte        { return SectionCanon }
func (StartSection) SectionID() byte        { return SectionStart }
func (ImportSection) SectionID() byte       { return SectionImport }
func (ExportSection) SectionID() byte       { return SectionExport }

// ExternDesc describes the type of an import or export.
// For ExternType, Bound selects eq (Index is the type) or sub resource.
type ExternDesc struct {
	Kind  byte
	Bound byte
	Index uint32
}

// CanonKind selects a canonical built-in.
type CanonKind byte

const (
	CanonLift         CanonKind = 0x00
	CanonLower        CanonKind = 0x01
	CanonResourceNew  CanonKind = 0x02
	CanonResourceDrop CanonKind = 0x03
	CanonResourceRep  CanonKind = 0x04
)

func (k CanonKind) String() string {
	switch k {
	case CanonLift:
		return "lift"
	case CanonLower:
		return "lower"
	case CanonResourceNew:
		return "resource.new"
	case CanonResourceDrop:
		return "resource.drop"
	case CanonResourceRep:
		return "resource.rep"
	}
	return "canon?"
}

// Canon is one canonical definition. Lift reads CoreFunc and Type;
// lower reads Func; resource built-ins read Type.
type Canon struct {
	Options  CanonOptions
	Kind     CanonKind
	CoreFunc uint32
	Func     uint32
	Type     uint32
}

// CanonOptions are the canonopt entries of a lift or lower.
type CanonOptions struct {
	Memory     *uint32
	Realloc    *uint32
	PostReturn *uint32
	Encoding   abi.StringEncoding
}

// Canon option codes
const (
	OptUTF8        byte = 0x00
	OptUTF16       byte = 0x01
	OptLatin1UTF16 byte = 0x02
	OptMemory      byte = 0x03
	OptRealloc     byte = 0x04
	OptPostReturn  byte = 0x05
	OptAsync       byte = 0x06
	OptCallback    byte = 0x07
)

// DefType is a component type definition.
type DefType interface {
	isDefType()
}

// ValType is a value type: a primitive or a type index.
type ValType interface {
	isValType()
}

// PrimValType is a primitive value type encoding.
type PrimValType byte

const (
	PrimBool   PrimValType = 0x7f
	PrimS8     PrimValType = 0x7e
	PrimU8     PrimValType = 0x7d
	PrimS16    PrimValType = 0x7c
	PrimU16    PrimValType = 0x7b
	PrimS32    PrimValType = 0x7a
	PrimU32    PrimValType = 0x79
	PrimS64    PrimValType = 0x78
	PrimU64    PrimValType = 0x77
	PrimF32    PrimValType = 0x76
	PrimF64    PrimValType = 0x75
	PrimChar   PrimValType = 0x74
	PrimString PrimValType = 0x73
)

var primNames = map[PrimValType]string{
	PrimBool: "bool", PrimS8: "s8", PrimU8: "u8", PrimS16: "s16", PrimU16: "u16",
	PrimS32: "s32", PrimU32: "u32", PrimS64: "s64", PrimU64: "u64",
	PrimF32: "f32", PrimF64: "f64", PrimChar: "char", PrimString: "string",
}

func (p PrimValType) String() string {
	if n, ok := primNames[p]; ok {
		return n
	}
	return "prim?"
}

// TypeIndex refers to a type in the current type index space.
type TypeIndex uint32

type RecordType struct {
	Fields []Field
}

type Field struct {
	Type ValType
	Name string
}

type VariantType struct {
	Cases []Case
}

// Case is a variant case; Type is nil for payload-less cases.
type Case struct {
	Type ValType
	Name string
}

type ListType struct {
	Elem ValType
}

type TupleType struct {
	Types []ValType
}

type FlagsType struct {
	Names []string
}

type EnumType struct {
	Names []string
}

type OptionType struct {
	Type ValType
}

// ResultType has optional ok and error payloads.
type ResultType struct {
	OK  ValType
	Err ValType
}

type OwnType struct {
	Type uint32
}

type BorrowType struct {
	Type uint32
}

// StreamType and FutureType are decoded so that binaries using them
// fail at link time with a clear error rather than at decode time.
type StreamType struct {
	Elem ValType
}

type FutureType struct {
	Elem ValType
}

// FuncType is a component function signature. Result is nil when the
// function returns nothing.
type FuncType struct {
	Params []Param
	Result ValType
}

type Param struct {
	Type ValType
	Name string
}

// ComponentType is a component type declaration list.
type ComponentType struct {
	Decls []Decl
}

// InstanceType is an instance type declaration list.
type InstanceType struct {
	Decls []Decl
}

// ResourceType defines a resource with i32 representation.
type ResourceType struct {
	Dtor *uint32
}

func (PrimValType) isValType() {}
func (TypeIndex) isValType()   {}

func (PrimValType) isDefType()   {}
func (RecordType) isDefType()    {}
func (VariantType) isDefType()   {}
func (ListType) isDefType()      {}
func (TupleType) isDefType()     {}
func (FlagsType) isDefType()     {}
func (EnumType) isDefType()      {}
func (OptionType) isDefType()    {}
func (ResultType) isDefType()    {}
func (OwnType) isDefType()       {}
func (BorrowType) isDefType()    {}
func (StreamType) isDefType()    {}
func (FutureType) isDefType()    {}
func (FuncType) isDefType()      {}
func (ComponentType) isDefType() {}
func (InstanceType) isDefType()  {}
func (ResourceType) isDefType()  {}

// Decl is an entry of a component or instance type declaration list.
type Decl interface {
	isDecl()
}

// CoreTypeDecl keeps a nested core type as raw bytes.
type CoreTypeDecl struct {
	Raw []byte
}

// TypeDecl defines a type in the declaration scope.
type TypeDecl struct {
	Type DefType
}

// AliasDecl aliases into the declaration scope (outer aliases only).
type AliasDecl struct {
	Alias Alias
}

// ImportDecl is allowed only in component types.
type ImportDecl struct {
	Name string
	Desc ExternDesc
}

// ExportDecl declares an export of the instance or component type.
type ExportDecl struct {
	Name string
	Desc ExternDesc
}

func (CoreTypeDecl) isDecl() {}
func (TypeDecl) isDecl()     {}
func (AliasDecl) isDecl()    {}
func (ImportDecl) isDecl()   {}
func (ExportDecl) isDecl()   {}

// Imports returns all imports across import sections.
func (c *Component) Imports() []Import {
	var out []Import
	for _, s := range c.Sections {
		if is, ok := s.(*ImportSection); ok {
			out = append(out, is.Imports...)
		}
	}
	return out
}

// Exports returns all exports across export sections.
func (c *Component) Exports() []Export {
	var out []Export
	for _, s := range c.Sections {
		if es, ok := s.(*ExportSection); ok {
			out = append(out, es.Exports...)
		}
	}
	return out
}

// CoreModules returns the embedded core module binaries in order.
func (c *Component) CoreModules() [][]byte {
	var out [][]byte
	for _, s := range c.Sections {
		if m, ok := s.(*CoreModuleSection); ok {
			out = append(out, m.Module)
		}
	}
	return out
}
