package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/engine"
	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/linker"
	"github.com/wippyai/component-harness/resource"
)

// Runtime loads and instantiates components. Every instance created by a
// runtime shares its engine, compilation cache and host resource table.
type Runtime struct {
	engine    *engine.Engine
	linker    *linker.Linker
	hostTable *resource.HostTable
	logger    *zap.Logger
	hosts     host.Imports
	mode      Instantiation
	mu        sync.RWMutex
}

// New creates a runtime.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.logger != nil {
		engine.SetLogger(cfg.logger)
		linker.SetLogger(cfg.logger)
	}

	eng, err := engine.New(ctx, &engine.Config{MemoryLimitPages: cfg.memoryLimitPages})
	if err != nil {
		return nil, errors.Load("create engine", err)
	}
	ht := resource.NewHostTable()
	if cfg.logger != nil {
		log := cfg.logger.Named("resources")
		ht.Subscribe(resource.ObserverFunc(func(e resource.Event) {
			log.Debug("host resource "+e.Kind.String(),
				zap.String("type", e.Type), zap.Uint32("handle", uint32(e.Handle)))
		}))
	}
	return &Runtime{
		engine:    eng,
		linker:    linker.New(eng, linker.Options{HostTable: ht}),
		hostTable: ht,
		logger:    cfg.logger,
		hosts:     make(host.Imports),
		mode:      cfg.mode,
	}, nil
}

// Close releases the engine and every instance created from it, then
// drops the host resources still held.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.engine.Close(ctx)
	return errors.Join(err, r.hostTable.Close())
}

// Engine returns the underlying engine.
func (r *Runtime) Engine() *engine.Engine { return r.engine }

// Linker returns the runtime's linker.
func (r *Runtime) Linker() *linker.Linker { return r.linker }

// HostTable returns the host resource table shared by all instances.
func (r *Runtime) HostTable() *resource.HostTable { return r.hostTable }

// Instantiation returns the default instantiation mode.
func (r *Runtime) Instantiation() Instantiation { return r.mode }

// RegisterHost registers the functions of h under h.Namespace(). Exported
// method names are converted from PascalCase to kebab-case
// (GetValue -> get-value) unless h implements host.ExplicitRegistrar.
// Registered hosts are available to every instantiation.
func (r *Runtime) RegisterHost(h host.Host) error {
	if h.Namespace() == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts.Add(h)
	return nil
}

// RegisterFunc registers a single host function.
func (r *Runtime) RegisterFunc(namespace, name string, fn any) error {
	if namespace == "" || name == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace and name are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	iface := r.hosts[namespace]
	if iface == nil {
		iface = make(host.Interface)
		r.hosts[namespace] = iface
	}
	iface[name] = fn
	return nil
}

// imports merges the registered hosts with per-call imports, which win.
func (r *Runtime) imports(extra host.Imports) host.Imports {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hosts.Merge(extra)
}

// Load decodes a component binary.
func (r *Runtime) Load(ctx context.Context, bin []byte) (*Module, error) {
	if !component.IsComponent(bin) {
		return nil, errors.InvalidInput(errors.PhaseLoad, "not a component binary")
	}
	comp, err := component.Decode(bin)
	if err != nil {
		return nil, errors.Load("decode component", err)
	}
	return &Module{runtime: r, component: comp}, nil
}
