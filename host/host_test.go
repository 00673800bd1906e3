package host

import (
	"context"
	stderrors "errors"
	"reflect"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/errors"
)

func TestToKebab(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"Get", "get"},
		{"TakeBasic", "take-basic"},
		{"returnUnicode", "return-unicode"},
		{"HTTPRequest", "http-request"},
		{"GetURL", "get-url"},
		{"set_status_code", "set-status-code"},
		{"PathWithQuery", "path-with-query"},
	}
	for _, tt := range tests {
		if got := ToKebab(tt.in); got != tt.want {
			t.Errorf("ToKebab(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToCamelPascal(t *testing.T) {
	if got := ToCamel("take-basic"); got != "takeBasic" {
		t.Errorf("ToCamel = %q", got)
	}
	if got := ToPascal("return-unicode"); got != "ReturnUnicode" {
		t.Errorf("ToPascal = %q", got)
	}
	if got := ToCamel(""); got != "" {
		t.Errorf("ToCamel(\"\") = %q", got)
	}
}

func TestVersion(t *testing.T) {
	tests := []struct {
		have, want string
		ok         bool
	}{
		{"0.2.0", "0.2.0", true},
		{"0.2.3", "0.2.0", true},
		{"0.2.0", "0.2.3", false},
		{"0.3.0", "0.2.0", false},
		{"1.4.0", "1.2.9", true},
		{"2.0.0", "1.0.0", false},
	}
	for _, tt := range tests {
		h, ok1 := ParseVersion(tt.have)
		w, ok2 := ParseVersion(tt.want)
		if !ok1 || !ok2 {
			t.Fatalf("parse %s / %s", tt.have, tt.want)
		}
		if got := h.Compatible(w); got != tt.ok {
			t.Errorf("%s.Compatible(%s) = %v, want %v", tt.have, tt.want, got, tt.ok)
		}
	}

	if _, ok := ParseVersion("x.1"); ok {
		t.Error("expected parse failure")
	}
	if v, ok := ParseVersion("0.2.0-rc-2023-11-10"); !ok || v.String() != "0.2.0" {
		t.Errorf("pre-release parse = %v, %v", v, ok)
	}
	base, v := SplitVersion("wasi:http/types@0.2.0")
	if base != "wasi:http/types" || v == nil || v.Minor != 2 {
		t.Errorf("SplitVersion = %q, %v", base, v)
	}
	if base, v := SplitVersion("test:strings/imports"); base != "test:strings/imports" || v != nil {
		t.Errorf("unversioned SplitVersion = %q, %v", base, v)
	}
}

func TestImports_Resolve(t *testing.T) {
	old := Interface{"f": 1}
	newer := Interface{"f": 2}
	plain := Interface{"f": 3}
	imps := Imports{
		"wasi:http/types@0.2.0": old,
		"wasi:http/types@0.2.3": newer,
		"test:strings/imports":  plain,
	}

	got, ok := imps.Resolve("wasi:http/types@0.2.0")
	if !ok || got["f"] != 1 {
		t.Errorf("exact match = %v", got)
	}
	got, ok = imps.Resolve("wasi:http/types@0.2.1")
	if !ok || got["f"] != 2 {
		t.Errorf("compatible match = %v", got)
	}
	if _, ok := imps.Resolve("wasi:http/types@0.3.0"); ok {
		t.Error("0.3.0 should not resolve to 0.2.x")
	}
	got, ok = imps.Resolve("test:strings/imports@1.0.0")
	if !ok || got["f"] != 3 {
		t.Errorf("unversioned implementation = %v", got)
	}
}

func TestInterface_Lookup(t *testing.T) {
	iface := Interface{
		"takeBasic":             "camel",
		"ReturnUnicode":         "pascal",
		"roundtrip":             "plain",
		"[method]fields.append": "bracket",
	}
	tests := []struct {
		name string
		want any
	}{
		{"take-basic", "camel"},
		{"return-unicode", "pascal"},
		{"roundtrip", "plain"},
		{"[method]fields.append", "bracket"},
	}
	for _, tt := range tests {
		got, ok := iface.Lookup(tt.name)
		if !ok || got != tt.want {
			t.Errorf("Lookup(%q) = %v, %v", tt.name, got, ok)
		}
	}
	if _, ok := iface.Lookup("missing"); ok {
		t.Error("expected miss")
	}
}

type stringsHost struct{ got string }

func (h *stringsHost) Namespace() string     { return "test:strings/imports" }
func (h *stringsHost) TakeBasic(s string)    { h.got = s }
func (h *stringsHost) ReturnUnicode() string { return "🚀" }

func TestImports_AddMerge(t *testing.T) {
	imps := Imports{}
	imps.Add(&stringsHost{})
	iface := imps["test:strings/imports"]
	if _, ok := iface["take-basic"]; !ok {
		t.Errorf("missing take-basic: %v", iface)
	}
	if _, ok := iface["return-unicode"]; !ok {
		t.Errorf("missing return-unicode: %v", iface)
	}
	if _, ok := iface["namespace"]; ok {
		t.Error("Namespace must not be exported as a function")
	}

	merged := imps.Merge(Imports{"test:strings/imports": {"extra": 1}})
	if len(merged["test:strings/imports"]) != 3 {
		t.Errorf("merged = %v", merged)
	}
	if len(imps["test:strings/imports"]) != 2 {
		t.Error("Merge must not modify the receiver")
	}
}

func TestAdapt_Scalars(t *testing.T) {
	ctx := context.Background()
	fn, err := Adapt("f", func(ctx context.Context, s string, n uint8) string {
		out := ""
		for i := uint8(0); i < n; i++ {
			out += s
		}
		return out
	}, []wit.Type{wit.String{}, wit.U8{}}, wit.String{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := fn(ctx, []any{"ab", uint8(3)})
	if err != nil || got != "ababab" {
		t.Fatalf("got %v, %v", got, err)
	}

	_, err = fn(ctx, []any{"ab", uint32(300)})
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindTypeMismatch}) {
		t.Errorf("expected overflow mismatch, got %v", err)
	}
}

func TestAdapt_ErrorTraps(t *testing.T) {
	boom := stderrors.New("boom")
	fn, err := Adapt("f", func() error { return boom }, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fn(context.Background(), nil); !stderrors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestAdapt_Passthrough(t *testing.T) {
	called := false
	var f Func = func(ctx context.Context, args []any) (any, error) {
		called = true
		return len(args), nil
	}
	fn, err := Adapt("f", f, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := fn(context.Background(), []any{1, 2}); got != 2 || !called {
		t.Errorf("passthrough = %v", got)
	}
}

func TestAdapt_Signatures(t *testing.T) {
	params := []wit.Type{wit.U32{}}
	tests := []struct {
		name   string
		fn     any
		result wit.Type
	}{
		{"not a function", 42, nil},
		{"arity", func() {}, nil},
		{"two results", func(uint32) (uint32, uint32) { return 0, 0 }, wit.U32{}},
		{"unexpected result", func(uint32) uint32 { return 0 }, nil},
		{"missing result", func(uint32) {}, wit.U32{}},
		{"variadic", func(...uint32) {}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Adapt("f", tt.fn, params, tt.result); err == nil {
				t.Error("expected error")
			}
		})
	}
}

type point struct {
	X    uint32
	YPos uint32 `wit:"y"`
}

func TestAdapt_RecordsAndOptions(t *testing.T) {
	ctx := context.Background()
	u32 := wit.U32{}
	rec := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{{Name: "x", Type: u32}, {Name: "y", Type: u32}}}}
	opt := &wit.TypeDef{Kind: &wit.Option{Type: u32}}

	swap, err := Adapt("swap", func(p point) point {
		return point{X: p.YPos, YPos: p.X}
	}, []wit.Type{rec}, rec)
	if err != nil {
		t.Fatal(err)
	}
	got, err := swap(ctx, []any{abi.Record{{Name: "x", Value: uint32(1)}, {Name: "y", Value: uint32(2)}}})
	if err != nil {
		t.Fatal(err)
	}
	want := abi.Record{{Name: "x", Value: uint32(2)}, {Name: "y", Value: uint32(1)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("swap = %v, want %v", got, want)
	}

	inc, err := Adapt("inc", func(v *uint32) *uint32 {
		if v == nil {
			return nil
		}
		n := *v + 1
		return &n
	}, []wit.Type{opt}, opt)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := inc(ctx, []any{abi.Some(uint32(5))}); got != abi.Some(uint32(6)) {
		t.Errorf("inc(some(5)) = %v", got)
	}
	if got, _ := inc(ctx, []any{abi.None()}); got != abi.None() {
		t.Errorf("inc(none) = %v", got)
	}
}

func TestToGo_Slices(t *testing.T) {
	v, err := ToGo([]any{uint32(1), uint32(2)}, reflect.TypeOf([]uint64(nil)))
	if err != nil {
		t.Fatal(err)
	}
	if got := v.Interface().([]uint64); len(got) != 2 || got[1] != 2 {
		t.Errorf("ToGo = %v", got)
	}
	if _, err := ToGo([]any{"x"}, reflect.TypeOf([]uint64(nil))); err == nil {
		t.Error("expected element conversion error")
	}
	v, err = ToGo(abi.Enum("get"), reflect.TypeOf(""))
	if err != nil || v.String() != "get" {
		t.Errorf("enum = %v, %v", v, err)
	}
}
