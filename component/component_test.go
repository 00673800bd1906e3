package component

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/wasm"
)

func coreModule() []byte {
	b := wasm.NewModuleBuilder()
	i32 := []wasm.ValType{wasm.ValI32}
	b.ImportFunc("host", "log", wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}})
	b.Memory(1)
	f := b.Func(wasm.FuncType{Params: i32, Results: i32}, nil, wasm.NewCode().LocalGet(0))
	b.Export("id", wasm.KindFunc, f)
	b.Export("memory", wasm.KindMemory, 0)
	return b.Bytes()
}

func sampleComponent(t *testing.T) []byte {
	t.Helper()
	b := NewBuilder()

	iface := b.Type(InstanceType{Decls: []Decl{
		ExportDecl{Name: "thing", Desc: ExternDesc{Kind: ExternType, Bound: BoundSubResource}},
		TypeDecl{Type: OwnType{Type: 0}},
		TypeDecl{Type: FuncType{Params: []Param{{Name: "s", Type: PrimString}}}},
		ExportDecl{Name: "log", Desc: ExternDesc{Kind: ExternFunc, Index: 2}},
		TypeDecl{Type: FuncType{Result: TypeIndex(1)}},
		ExportDecl{Name: "make", Desc: ExternDesc{Kind: ExternFunc, Index: 3}},
	}})
	hostInst := b.Import("test:pkg/host", ExternDesc{Kind: ExternInstance, Index: iface})
	logFn := b.AliasExport(hostInst, SortFunc, "log")

	mod := b.CoreModule(coreModule())
	memInst := b.CoreInstantiate(mod)
	mem := b.AliasCoreExport(memInst, CoreSortMemory, "memory")
	lowered := b.Lower(logFn, CanonOptions{Memory: &mem, Encoding: abi.UTF16})
	hostCore := b.CoreFromExports(CoreInlineExport{Name: "log", Sort: CoreSortFunc, Index: lowered})
	inst := b.CoreInstantiate(mod, CoreInstantiateArg{Name: "host", Instance: hostCore})
	id := b.AliasCoreExport(inst, CoreSortFunc, "id")

	rec := b.Type(RecordType{Fields: []Field{{Name: "a", Type: PrimU32}, {Name: "b", Type: PrimString}}})
	b.Type(VariantType{Cases: []Case{{Name: "none"}, {Name: "some", Type: TypeIndex(rec)}}})
	b.Type(ResultType{OK: PrimU8})
	b.Type(FlagsType{Names: []string{"read", "write"}})
	b.Type(EnumType{Names: []string{"a", "b", "c"}})
	b.Type(OptionType{Type: PrimChar})
	b.Type(TupleType{Types: []ValType{PrimS64, PrimF64}})
	b.Type(ListType{Elem: PrimU8})
	b.Type(ResourceType{})
	ft := b.Type(FuncType{Params: []Param{{Name: "x", Type: PrimU32}}, Result: PrimU32})
	fn := b.Lift(id, ft, CanonOptions{Memory: &mem})
	b.Export("id", ComponentSort(SortFunc), fn, nil)

	nb := NewBuilder()
	nft := nb.Type(FuncType{Result: PrimU32})
	nf := nb.Import("f", ExternDesc{Kind: ExternFunc, Index: nft})
	nb.Export("g", ComponentSort(SortFunc), nf, &ExternDesc{Kind: ExternFunc, Index: nft})
	nested := b.Nested(nb.Component())
	b.Instantiate(nested, InstantiateArg{Name: "f", Sort: ComponentSort(SortFunc), Index: fn})
	b.Custom("producers", []byte{0x00})

	bin, err := b.Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return bin
}

func TestIsComponent(t *testing.T) {
	bin := sampleComponent(t)
	if !IsComponent(bin) {
		t.Error("expected component")
	}
	if IsComponent(coreModule()) {
		t.Error("core module reported as component")
	}
	if IsComponent([]byte{0x00, 0x61}) {
		t.Error("short input reported as component")
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	bin := sampleComponent(t)
	comp, err := Decode(bin)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	again, err := Encode(comp)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(bin, again) {
		t.Fatal("decode/encode did not reproduce the binary")
	}
}

func TestDecode_Structure(t *testing.T) {
	comp, err := Decode(sampleComponent(t))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	imports := comp.Imports()
	if len(imports) != 1 || imports[0].Name != "test:pkg/host" || imports[0].Desc.Kind != ExternInstance {
		t.Fatalf("unexpected imports: %+v", imports)
	}
	exports := comp.Exports()
	if len(exports) != 1 || exports[0].Name != "id" || exports[0].Sort.Kind != SortFunc {
		t.Fatalf("unexpected exports: %+v", exports)
	}
	if n := len(comp.CoreModules()); n != 1 {
		t.Errorf("core modules = %d", n)
	}

	var canons []Canon
	var nested *Component
	for _, s := range comp.Sections {
		switch s := s.(type) {
		case *CanonSection:
			canons = append(canons, s.Canons...)
		case *ComponentSection:
			nested = s.Component
		}
	}
	if len(canons) != 2 {
		t.Fatalf("expected 2 canons, got %d", len(canons))
	}
	lower := canons[0]
	if lower.Kind != CanonLower || lower.Options.Encoding != abi.UTF16 || lower.Options.Memory == nil {
		t.Errorf("unexpected lower: %+v", lower)
	}
	if canons[1].Kind != CanonLift {
		t.Errorf("expected lift, got %s", canons[1].Kind)
	}

	if nested == nil {
		t.Fatal("nested component not decoded")
	}
	if ex := nested.Exports(); len(ex) != 1 || ex[0].Desc == nil {
		t.Errorf("nested export ascription lost: %+v", ex)
	}
	if n := len(comp.AllCoreModules()); n != 1 {
		t.Errorf("all core modules = %d", n)
	}
}

func TestDecode_CanonVector(t *testing.T) {
	b := NewBuilder()
	ft := b.Type(FuncType{})
	b.Import("a", ExternDesc{Kind: ExternFunc, Index: ft})
	b.Import("b", ExternDesc{Kind: ExternFunc, Index: ft})
	b.Lower(0, CanonOptions{})
	b.Lower(1, CanonOptions{})
	b.ResourceDrop(ft)
	bin, err := b.Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	comp, err := Decode(bin)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, s := range comp.Sections {
		if cs, ok := s.(*CanonSection); ok {
			if len(cs.Canons) != 3 {
				t.Fatalf("expected 3 canons in one section, got %d", len(cs.Canons))
			}
			return
		}
	}
	t.Fatal("no canon section")
}

func TestDecode_Malformed(t *testing.T) {
	valid := sampleComponent(t)
	header := valid[:8]

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, "not a component"},
		{"core module", coreModule(), "core module"},
		{"truncated section", append(append([]byte{}, header...), SectionType, 0x10, 0x01), "section 1"},
		{"unknown section", append(append([]byte{}, header...), 0x20, 0x00), "unknown section id"},
		{"huge vector", append(append([]byte{}, header...), SectionType, 0x05, 0xff, 0xff, 0xff, 0xff, 0x0f), "exceeds remaining input"},
		{"bad type form", append(append([]byte{}, header...), SectionType, 0x02, 0x01, 0x20), "unknown type form"},
		{"trailing bytes", append(append([]byte{}, header...), SectionType, 0x03, 0x01, 0x73, 0x00), "trailing bytes"},
		{"async canon option", append(append([]byte{}, header...), SectionCanon, 0x06, 0x01, 0x01, 0x00, 0x00, 0x01, 0x06), "async"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestDecode_LargeTypeIndex(t *testing.T) {
	b := NewBuilder()
	for i := 0; i < 120; i++ {
		b.Type(PrimU32)
	}
	b.Type(ListType{Elem: TypeIndex(115)})
	bin, err := b.Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	comp, err := Decode(bin)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ts := comp.Sections[0].(*TypeSection)
	lt, ok := ts.Types[120].(ListType)
	if !ok || lt.Elem != TypeIndex(115) {
		t.Errorf("type index 115 decoded as %#v", ts.Types[120])
	}
}

func TestDescribe(t *testing.T) {
	comp, err := Decode(sampleComponent(t))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	s := Describe(comp)
	if s.CoreModules != 1 || s.Components != 1 || s.Instances != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.CoreInstances != 3 {
		t.Errorf("core instances = %d, want 3", s.CoreInstances)
	}
	out := s.String()
	for _, want := range []string{"instance   test:pkg/host", "func       id"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary %q missing %q", out, want)
		}
	}
}
