package linker

import (
	"context"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/engine"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/resource"
)

// Options configures a Linker.
type Options struct {
	// HostTable holds the Go values behind host resource handles. Instances
	// created by the linker share it. A nil table gets a fresh one.
	HostTable *resource.HostTable
}

// Linker instantiates components on an engine.
// Thread-safe.
type Linker struct {
	engine    *engine.Engine
	hostTable *resource.HostTable
}

// New creates a linker for eng.
func New(eng *engine.Engine, opts Options) *Linker {
	ht := opts.HostTable
	if ht == nil {
		ht = resource.NewHostTable()
	}
	return &Linker{engine: eng, hostTable: ht}
}

// Engine returns the engine core modules are compiled and run on.
func (l *Linker) Engine() *engine.Engine {
	return l.engine
}

// HostTable returns the host resource table shared by the linker's
// instances.
func (l *Linker) HostTable() *resource.HostTable {
	return l.hostTable
}

// Prepare compiles every core module of c, including those of nested
// components, and returns an InstancePre that instantiates it. Prepare is
// the expensive phase: call it once and create instances from the result.
func (l *Linker) Prepare(ctx context.Context, c *component.Component) (*InstancePre, error) {
	if c == nil {
		return nil, &InstantiationError{Section: "validate", Index: -1, Cause: errNilComponent}
	}
	mods := c.AllCoreModules()
	for i, bin := range mods {
		if _, err := l.engine.Compile(ctx, bin); err != nil {
			return nil, &InstantiationError{Section: "core module", Index: i, Cause: err}
		}
	}
	Logger().Debug("component prepared", zap.Int("core_modules", len(mods)))
	return &InstancePre{linker: l, component: c}, nil
}

// Instantiate prepares c and creates one instance of it.
func (l *Linker) Instantiate(ctx context.Context, c *component.Component, imports host.Imports) (*Instance, error) {
	pre, err := l.Prepare(ctx, c)
	if err != nil {
		return nil, err
	}
	return pre.NewInstance(ctx, imports)
}

func (l *Linker) newInstance() *Instance {
	return &Instance{
		table:     resource.NewTable(),
		hostTable: l.hostTable,
		resources: make(map[*wit.TypeDef]*resourceDef),
	}
}
