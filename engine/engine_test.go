package engine

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/wasm"
)

// bumpModule exports memory, a bump cabi_realloc starting at 64, and a
// function that traps.
func bumpModule() []byte {
	i32 := wasm.ValI32
	b := wasm.NewModuleBuilder()
	b.Memory(1)
	next := b.Global(i32, true, 64)

	// cabi_realloc(old, oldSize, align, size): align next up, bump by size.
	realloc := b.Func(wasm.FuncType{Params: []wasm.ValType{i32, i32, i32, i32}, Results: []wasm.ValType{i32}},
		[]wasm.ValType{i32}, wasm.NewCode().
			GlobalGet(next).LocalGet(2).I32Add().I32Const(1).I32Sub().
			I32Const(0).LocalGet(2).I32Sub().I32And().
			LocalTee(4).LocalGet(3).I32Add().GlobalSet(next).
			LocalGet(4))
	trap := b.Func(wasm.FuncType{}, nil, wasm.NewCode().Unreachable())

	b.Export("memory", wasm.KindMemory, 0)
	b.Export(CabiRealloc, wasm.KindFunc, realloc)
	b.Export("trap", wasm.KindFunc, trap)
	return b.Bytes()
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := New(ctx, &Config{MemoryLimitPages: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close(ctx) })
	return e
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []*Config{nil, {}, {MemoryLimitPages: 256}} {
		e, err := New(ctx, cfg)
		if err != nil {
			t.Fatalf("New(%+v): %v", cfg, err)
		}
		if e.Runtime() == nil {
			t.Error("runtime should not be nil")
		}
		if err := e.Close(ctx); err != nil {
			t.Errorf("Close: %v", err)
		}
		if err := e.Close(ctx); err != nil {
			t.Errorf("second Close: %v", err)
		}
	}
}

func TestCompile_Cache(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	bin := bumpModule()

	a, err := e.Compile(ctx, bin)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	b, err := e.Compile(ctx, bin)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if a != b {
		t.Error("expected cached compilation to be reused")
	}

	if _, err := e.Compile(ctx, []byte("not wasm")); err == nil {
		t.Error("expected compile error for garbage input")
	}
}

func TestInstantiate_UniqueNames(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	cm, err := e.Compile(ctx, bumpModule())
	if err != nil {
		t.Fatal(err)
	}

	n1, n2 := UniqueName("core"), UniqueName("core")
	if n1 == n2 {
		t.Fatalf("names collide: %s", n1)
	}
	m1, err := e.Instantiate(ctx, cm, n1, nil)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	m2, err := e.Instantiate(ctx, cm, n2, nil)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if m1.Name() == m2.Name() {
		t.Error("instances share a name")
	}

	if _, err := e.Instantiate(ctx, cm, n1, nil); !errors.Is(err, &errors.Error{Kind: errors.KindInstantiation}) {
		t.Errorf("duplicate name should fail with instantiation error, got %v", err)
	}
}

func TestRealloc_And_Memory(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	cm, _ := e.Compile(ctx, bumpModule())
	mod, err := e.Instantiate(ctx, cm, UniqueName("alloc"), nil)
	if err != nil {
		t.Fatal(err)
	}

	mem := NewMemory(mod.Memory(), errors.PhaseLower)
	alloc := NewRealloc(ctx, mod.ExportedFunction(CabiRealloc), mod.Memory())

	p1, err := alloc.Alloc(3, 1)
	if err != nil || p1 != 64 {
		t.Fatalf("Alloc = %d, %v", p1, err)
	}
	p2, err := alloc.Alloc(8, 8)
	if err != nil || p2 != 72 {
		t.Fatalf("Alloc = %d, %v", p2, err)
	}

	if err := mem.WriteU32(p2, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	if v, _ := mem.ReadU32(p2); v != 0xdeadbeef {
		t.Errorf("ReadU32 = %#x", v)
	}
	if err := mem.WriteU16(p1, 0x0102); err != nil {
		t.Fatal(err)
	}
	if v, _ := mem.ReadU8(p1 + 1); v != 0x01 {
		t.Errorf("little-endian byte = %#x", v)
	}

	if _, err := mem.ReadU64(mem.Size() - 4); !errors.Is(err, &errors.Error{Kind: errors.KindOutOfBounds}) {
		t.Errorf("expected out of bounds, got %v", err)
	}
	if _, err := alloc.Alloc(1<<20, 1); !errors.Is(err, &errors.Error{Kind: errors.KindOutOfBounds}) {
		t.Errorf("allocation past memory should fail, got %v", err)
	}
}

func TestCall_Trap(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	cm, _ := e.Compile(ctx, bumpModule())
	mod, err := e.Instantiate(ctx, cm, UniqueName("trap"), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Call(ctx, mod.ExportedFunction("trap"), "trap")
	if !errors.Is(err, errors.ErrTrap) {
		t.Fatalf("expected trap, got %v", err)
	}
}

// importer imports i32 function fn from module and exports it as "get".
func importer(module, fn string, params ...wasm.ValType) []byte {
	ft := wasm.FuncType{Params: params, Results: []wasm.ValType{wasm.ValI32}}
	b := wasm.NewModuleBuilder()
	imported := b.ImportFunc(module, fn, ft)
	code := wasm.NewCode()
	for i := range params {
		code.LocalGet(uint32(i))
	}
	get := b.Func(ft, nil, code.Call(imported))
	b.Export("get", wasm.KindFunc, get)
	return b.Bytes()
}

func TestInstantiateHost(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	name := UniqueName("host")
	host, err := e.InstantiateHost(ctx, name, HostFunc{
		Name:    "double",
		Params:  []api.ValueType{api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
		Fn: func(ctx context.Context, mod api.Module, stack []uint64) {
			stack[0] = uint64(uint32(stack[0]) * 2)
		},
	})
	if err != nil {
		t.Fatalf("InstantiateHost: %v", err)
	}
	if !IsHost(host) || host.Name() != name {
		t.Fatalf("host module %q not marked", host.Name())
	}

	// Guests reach host modules through the runtime namespace.
	cm, err := e.CompileOnce(ctx, importer(name, "double", wasm.ValI32))
	if err != nil {
		t.Fatal(err)
	}
	defer cm.Close(ctx)
	mod, err := e.Instantiate(ctx, cm, UniqueName("guest"), nil)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	res, err := Call(ctx, mod.ExportedFunction("get"), "get", 21)
	if err != nil || res[0] != 42 {
		t.Fatalf("get(21) = %v, %v", res, err)
	}
}

func TestInstantiate_HostModuleInResolver(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	host, err := e.InstantiateHost(ctx, UniqueName("host"), HostFunc{
		Name:    "seven",
		Results: []api.ValueType{api.ValueTypeI32},
		Fn:      func(ctx context.Context, mod api.Module, stack []uint64) { stack[0] = 7 },
	})
	if err != nil {
		t.Fatal(err)
	}
	cm, err := e.Compile(ctx, importer("env", "seven"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Instantiate(ctx, cm, UniqueName("guest"), map[string]api.Module{"env": host})
	if !errors.Is(err, &errors.Error{Kind: errors.KindInstantiation}) {
		t.Fatalf("expected instantiation error, got %v", err)
	}
}

func TestInstantiate_ImportResolver(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	b := wasm.NewModuleBuilder()
	seven := b.Func(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}, nil, wasm.NewCode().I32Const(7))
	b.Export("seven", wasm.KindFunc, seven)
	provider, err := e.Compile(ctx, b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	env, err := e.Instantiate(ctx, provider, UniqueName("provider"), nil)
	if err != nil {
		t.Fatal(err)
	}

	cm, err := e.Compile(ctx, importer("env", "seven"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Instantiate(ctx, cm, UniqueName("unresolved"), nil); err == nil {
		t.Fatal("expected failure without a module named env")
	}
	mod, err := e.Instantiate(ctx, cm, UniqueName("resolved"), map[string]api.Module{"env": env})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	res, err := Call(ctx, mod.ExportedFunction("get"), "get")
	if err != nil || res[0] != 7 {
		t.Fatalf("get() = %v, %v", res, err)
	}
}
