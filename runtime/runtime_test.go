package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/wasm"
)

type mathHost struct {
	calls int
}

func (h *mathHost) Namespace() string { return "test:host/math" }

func (h *mathHost) Double(ctx context.Context, x uint32) uint32 {
	h.calls++
	return x * 2
}

// forwardComponent exports run(x: u32) -> u32 = test:host/math#double(x).
func forwardComponent(t *testing.T) []byte {
	t.Helper()
	i32 := wasm.ValI32
	one := wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}}
	u32Fn := component.FuncType{
		Params: []component.Param{{Name: "x", Type: component.PrimU32}},
		Result: component.PrimU32,
	}

	mb := wasm.NewModuleBuilder()
	imp := mb.ImportFunc("host", "double", one)
	mb.Export("run", wasm.KindFunc, mb.Func(one, nil, wasm.NewCode().LocalGet(0).Call(imp)))

	b := component.NewBuilder()
	ity := b.Type(component.InstanceType{Decls: []component.Decl{
		component.TypeDecl{Type: u32Fn},
		component.ExportDecl{Name: "double", Desc: component.ExternDesc{Kind: component.ExternFunc}},
	}})
	in := b.Import("test:host/math", component.ExternDesc{Kind: component.ExternInstance, Index: ity})
	lowered := b.Lower(b.AliasExport(in, component.SortFunc, "double"), component.CanonOptions{})
	bag := b.CoreFromExports(component.CoreInlineExport{Name: "double", Sort: component.CoreSortFunc, Index: lowered})
	ci := b.CoreInstantiate(b.CoreModule(mb.Bytes()), component.CoreInstantiateArg{Name: "host", Instance: bag})
	core := b.AliasCoreExport(ci, component.CoreSortFunc, "run")
	f := b.Lift(core, b.Type(u32Fn), component.CanonOptions{})
	b.Export("run", component.ComponentSort(component.SortFunc), f, nil)

	bin, err := b.Bytes()
	require.NoError(t, err)
	return bin
}

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt
}

func TestRuntime_LoadAndInstantiate(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, WithLogger(zap.NewNop()), WithMemoryLimitPages(256))

	h := &mathHost{}
	require.NoError(t, rt.RegisterHost(h))

	mod, err := rt.Load(ctx, forwardComponent(t))
	require.NoError(t, err)
	require.NoError(t, mod.Compile(ctx))

	sum := mod.Summary()
	require.Len(t, sum.Imports, 1)
	assert.Equal(t, "test:host/math", sum.Imports[0].Name)

	world, err := mod.World()
	require.NoError(t, err)
	require.Len(t, world.Exports, 1)
	assert.Equal(t, "run", world.Exports[0].Name)

	inst, err := mod.Instantiate(ctx, nil)
	require.NoError(t, err)
	defer inst.Close(ctx)

	got, err := inst.Call(ctx, "run", uint32(8))
	require.NoError(t, err)
	assert.Equal(t, uint32(16), got)
	assert.Equal(t, 1, h.calls)
}

func TestRuntime_ImportsOverrideRegistered(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	require.NoError(t, rt.RegisterFunc("test:host/math", "double", func(x uint32) uint32 { return x * 2 }))

	mod, err := rt.Load(ctx, forwardComponent(t))
	require.NoError(t, err)

	inst, err := mod.Instantiate(ctx, host.Imports{
		"test:host/math": {"double": func(x uint32) uint32 { return x * 3 }},
	})
	require.NoError(t, err)
	defer inst.Close(ctx)

	got, err := inst.Call(ctx, "run", uint32(2))
	require.NoError(t, err)
	assert.Equal(t, uint32(6), got)
}

func TestRuntime_RegisterValidation(t *testing.T) {
	rt := newRuntime(t)
	assert.Error(t, rt.RegisterFunc("", "f", func() {}))
	assert.Error(t, rt.RegisterFunc("ns", "", func() {}))
}

func TestRuntime_LoadRejectsCoreModule(t *testing.T) {
	rt := newRuntime(t)
	_, err := rt.Load(context.Background(), wasm.NewModuleBuilder().Bytes())
	require.Error(t, err)
	assert.True(t, errors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}))
}

func TestRuntime_MissingImports(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	mod, err := rt.Load(ctx, forwardComponent(t))
	require.NoError(t, err)

	_, err = mod.Instantiate(ctx, nil)
	var missing *errors.MissingImportsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "double", missing.Imports[0].Function)
}

func TestInstantiateModes(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	load := BytesLoader(map[string][]byte{"forward": forwardComponent(t)})
	imports := host.Imports{"test:host/math": {"double": func(x uint32) uint32 { return x * 2 }}}

	t.Run("sync", func(t *testing.T) {
		inst, err := InstantiateSync(ctx, rt, load, "forward", imports)
		require.NoError(t, err)
		defer inst.Close(ctx)
		got, err := inst.Call(ctx, "run", uint32(1))
		require.NoError(t, err)
		assert.Equal(t, uint32(2), got)
	})

	t.Run("async", func(t *testing.T) {
		p := InstantiateAsync(ctx, rt, load, "forward.wasm", imports)
		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		inst, err := p.Wait(wctx)
		require.NoError(t, err)
		defer inst.Close(ctx)
		select {
		case <-p.Done():
		default:
			t.Fatal("Done not closed after Wait returned")
		}
		got, err := inst.Call(ctx, "run", uint32(4))
		require.NoError(t, err)
		assert.Equal(t, uint32(8), got)
	})

	t.Run("default mode", func(t *testing.T) {
		inst, err := InstantiateWith(ctx, rt, "", load, "forward", imports)
		require.NoError(t, err)
		require.NoError(t, inst.Close(ctx))
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := InstantiateAsync(ctx, rt, load, "nope", imports).Wait(ctx)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("panic while loading", func(t *testing.T) {
		boom := func(context.Context, string) ([]byte, error) { panic("loader exploded") }
		inst, err := InstantiateAsync(ctx, rt, boom, "forward", imports).Wait(ctx)
		assert.Nil(t, inst)
		require.Error(t, err)
		assert.True(t, errors.Is(err, &errors.Error{Kind: errors.KindInstantiation}))
		assert.Contains(t, err.Error(), "loader exploded")
	})
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	bin := []byte{0x00, 0x61, 0x73, 0x6d}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.wasm"), bin, 0o644))

	load := FileLoader(dir)
	got, err := load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	got, err = load(context.Background(), "a.wasm")
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	_, err = load(context.Background(), "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestParseInstantiation(t *testing.T) {
	m, err := ParseInstantiation(" ASYNC ")
	require.NoError(t, err)
	assert.Equal(t, Async, m)

	m, err = ParseInstantiation("sync")
	require.NoError(t, err)
	assert.Equal(t, Sync, m)

	_, err = ParseInstantiation("eager")
	assert.Error(t, err)

	rt := newRuntime(t, WithInstantiation(Async))
	assert.Equal(t, Async, rt.Instantiation())
}

func TestRuntime_LogsHostResources(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rt := newRuntime(t, WithLogger(zap.New(core)))

	h, err := rt.HostTable().Insert("wasi:http/types#fields", struct{}{})
	require.NoError(t, err)
	_, ok := rt.HostTable().Remove(h)
	require.True(t, ok)

	entries := logs.FilterMessage("host resource created").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "wasi:http/types#fields", entries[0].ContextMap()["type"])
	assert.Equal(t, 1, logs.FilterMessage("host resource dropped").Len())
}
