package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/component-harness/errors"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32
}

// Engine owns a wazero runtime shared by every core instance of the
// components it runs.
type Engine struct {
	runtime wazero.Runtime
	cache   map[[sha256.Size]byte]wazero.CompiledModule
	mu      sync.Mutex
	closed  bool
}

// New creates an engine. A nil cfg uses the defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   make(map[[sha256.Size]byte]wazero.CompiledModule),
	}, nil
}

// Runtime exposes the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Compile compiles a core module, reusing an earlier compilation of the
// same bytes. Safe for concurrent use.
func (e *Engine) Compile(ctx context.Context, bin []byte) (wazero.CompiledModule, error) {
	key := sha256.Sum256(bin)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.New(errors.PhaseLink, errors.KindInstantiation).Detail("engine is closed").Build()
	}
	if cm, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return cm, nil
	}
	e.mu.Unlock()

	cm, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "compile core module")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.cache[key]; ok {
		// Lost a race with another compile of the same bytes.
		_ = cm.Close(ctx)
		return prev, nil
	}
	e.cache[key] = cm
	Logger().Debug("compiled core module",
		zap.String("hash", fmt.Sprintf("%x", key[:8])),
		zap.Int("size", len(bin)))
	return cm, nil
}

// UniqueName returns a module name that cannot collide with any other
// module in the runtime.
func UniqueName(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// Instantiate instantiates a compiled module under name. Each import
// module name is looked up in imports first and then in the runtime
// namespace. Start functions are never run: component instantiation order
// is driven by the linker.
//
// The resolver only accepts guest modules. A host module must be imported
// by its own name, which the namespace lookup finds.
func (e *Engine) Instantiate(ctx context.Context, cm wazero.CompiledModule, name string, imports map[string]api.Module) (api.Module, error) {
	for module, m := range imports {
		if IsHost(m) {
			return nil, errors.Instantiation(name, fmt.Errorf("host module %s passed as import %q; import it by name", m.Name(), module))
		}
	}
	if len(imports) > 0 {
		ctx = experimental.WithImportResolver(ctx, func(module string) api.Module {
			if m, ok := imports[module]; ok {
				return m
			}
			return nil
		})
	}
	mod, err := e.runtime.InstantiateModule(ctx, cm, wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions())
	if err != nil {
		return nil, errors.Instantiation(name, err)
	}
	return mod, nil
}

// HostFunc is a Go function exposed to guests through a host module.
type HostFunc struct {
	Fn      api.GoModuleFunc
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// hostModule marks a module built by InstantiateHost.
type hostModule struct {
	api.Module
}

// IsHost reports whether m was created by InstantiateHost.
func IsHost(m api.Module) bool {
	_, ok := m.(hostModule)
	return ok
}

// InstantiateHost builds and instantiates a host module exporting funcs.
// Guests reach its functions only through imports naming the module.
func (e *Engine) InstantiateHost(ctx context.Context, name string, funcs ...HostFunc) (api.Module, error) {
	b := e.runtime.NewHostModuleBuilder(name)
	for _, f := range funcs {
		b.NewFunctionBuilder().
			WithGoModuleFunction(f.Fn, f.Params, f.Results).
			WithName(f.Name).
			Export(f.Name)
	}
	mod, err := b.Instantiate(ctx)
	if err != nil {
		return nil, errors.Instantiation("host module "+name, err)
	}
	return hostModule{mod}, nil
}

// CompileOnce compiles a module that is instantiated a single time, such
// as one importing host modules by their unique names. It bypasses the
// cache so the compilation does not outlive the instance.
func (e *Engine) CompileOnce(ctx context.Context, bin []byte) (wazero.CompiledModule, error) {
	cm, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "compile core module")
	}
	return cm, nil
}

// Call invokes fn, converting a guest failure into a trap error that
// keeps the original cause in its chain.
func Call(ctx context.Context, fn api.Function, name string, args ...uint64) ([]uint64, error) {
	results, err := fn.Call(ctx, args...)
	if err != nil {
		Logger().Debug("guest call failed", zap.String("func", name), zap.Error(err))
		return nil, errors.Trap(name, err)
	}
	return results, nil
}

// Close closes every cached compilation and the runtime, which also closes
// all modules instantiated in it.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cache := e.cache
	e.cache = nil
	e.mu.Unlock()

	for _, cm := range cache {
		_ = cm.Close(ctx)
	}
	return e.runtime.Close(ctx)
}
