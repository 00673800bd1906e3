package wasm

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func importingModule() []byte {
	b := NewModuleBuilder()
	i32 := []ValType{ValI32}
	b.ImportFunc("env", "log", FuncType{Params: i32})
	b.ImportMemory("env", "memory", 1)
	b.ImportTable("env", "table", 2)
	b.Func(FuncType{Results: i32}, nil, NewCode().I32Const(7))
	return b.Bytes()
}

func TestParseImports(t *testing.T) {
	imports, err := ParseImports(importingModule())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(imports) != 3 {
		t.Fatalf("expected 3 imports, got %d", len(imports))
	}

	want := []struct {
		module, name string
		kind         byte
	}{
		{"env", "log", KindFunc},
		{"env", "memory", KindMemory},
		{"env", "table", KindTable},
	}
	for i, w := range want {
		imp := imports[i]
		if imp.Module != w.module || imp.Name != w.name || imp.Kind != w.kind {
			t.Errorf("import %d = %s.%s kind %d, want %s.%s kind %d",
				i, imp.Module, imp.Name, imp.Kind, w.module, w.name, w.kind)
		}
		if len(imp.Desc) == 0 {
			t.Errorf("import %d has empty descriptor", i)
		}
	}
}

func TestParseImports_NotAModule(t *testing.T) {
	if _, err := ParseImports([]byte("not wasm")); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuilder_RunsInWazero(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	i32 := []ValType{ValI32}
	b := NewModuleBuilder()
	hostAdd := b.ImportFunc("host", "add", FuncType{Params: []ValType{ValI32, ValI32}, Results: i32})
	b.Memory(1)
	counter := b.Global(ValI32, true, 40)
	b.Data(16, []byte("hi"))

	// get() returns counter + 2 via the host import.
	get := b.Func(FuncType{Results: i32}, nil, NewCode().
		GlobalGet(counter).I32Const(2).Call(hostAdd))
	// load() reads the byte 'h' from the data segment.
	load := b.Func(FuncType{Results: i32}, nil, NewCode().I32Const(16).I32Load8U(0))

	callee := b.Func(FuncType{Results: i32}, nil, NewCode().I32Const(99))
	table := b.Table(1)
	b.Elem(table, 0, callee)
	indirect := b.Func(FuncType{Results: i32}, nil, NewCode().
		I32Const(0).CallIndirect(b.Type(FuncType{Results: i32}), table))

	b.Export("get", KindFunc, get)
	b.Export("load", KindFunc, load)
	b.Export("indirect", KindFunc, indirect)
	b.Export("memory", KindMemory, 0)

	_, err := r.NewHostModuleBuilder("host").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			stack[0] = uint64(uint32(stack[0]) + uint32(stack[1]))
		}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("add").
		Instantiate(ctx)
	if err != nil {
		t.Fatalf("host module: %v", err)
	}

	mod, err := r.Instantiate(ctx, b.Bytes())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	tests := []struct {
		fn   string
		want uint64
	}{
		{"get", 42},
		{"load", 'h'},
		{"indirect", 99},
	}
	for _, tt := range tests {
		res, err := mod.ExportedFunction(tt.fn).Call(ctx)
		if err != nil {
			t.Fatalf("%s: %v", tt.fn, err)
		}
		if res[0] != tt.want {
			t.Errorf("%s() = %d, want %d", tt.fn, res[0], tt.want)
		}
	}
}

func TestModuleBuilder_ClosesBodies(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	i32 := []ValType{ValI32}
	b := NewModuleBuilder()
	// Nested blocks are closed by the caller; the body itself is not.
	count := b.Func(FuncType{Params: i32, Results: i32}, i32, NewCode().
		Block().Loop().
		LocalGet(0).I32Eqz().BrIf(1).
		LocalGet(0).I32Const(1).I32Sub().LocalSet(0).
		LocalGet(1).I32Const(1).I32Add().LocalSet(1).
		Br(0).
		End().End().
		LocalGet(1))
	b.Export("count", KindFunc, count)

	mod, err := r.Instantiate(ctx, b.Bytes())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	res, err := mod.ExportedFunction("count").Call(ctx, 5)
	if err != nil || res[0] != 5 {
		t.Fatalf("count(5) = %v, %v", res, err)
	}

	extra := NewModuleBuilder()
	extra.Export("f", KindFunc, extra.Func(FuncType{Results: i32}, nil, NewCode().I32Const(7).End()))
	if _, err := r.CompileModule(ctx, extra.Bytes()); err == nil {
		t.Fatal("expected a body with a trailing end to be rejected")
	}
}
