package linker

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/resource"
)

// compFunc is a component-level function: a lifted core function, an
// adapted host function, or an export of a nested component.
type compFunc struct {
	typ  *funcType
	call host.Func
	name string
}

// compInstance is a component-level instance.
type compInstance struct {
	funcs     map[string]*compFunc
	instances map[string]*compInstance
	types     map[string]wit.Type
	name      string
}

func newCompInstance(name string) *compInstance {
	return &compInstance{
		name:      name,
		funcs:     make(map[string]*compFunc),
		instances: make(map[string]*compInstance),
		types:     make(map[string]wit.Type),
	}
}

// Instance is an instantiated component.
//
// Calls into one component instance are serialized. A call that re-enters
// an instance already on the call stack, for example from a host import
// invoked by that instance, fails with a reentrance error. A host import
// that calls back into the same instance from another goroutine with a
// fresh context blocks until the outer call returns.
type Instance struct {
	table        *resource.Table
	hostTable    *resource.HostTable
	resources    map[*wit.TypeDef]*resourceDef
	root         *compInstance
	modules      []api.Module
	nextResource uint32
	mu           sync.Mutex
	closed       bool
}

// Func is a callable component export.
type Func struct {
	fn   *compFunc
	inst *Instance
}

// Name returns the export path of the function, "iface#func" for
// functions of exported interfaces.
func (f *Func) Name() string { return f.fn.name }

// Params returns the parameter types.
func (f *Func) Params() []wit.Type { return f.fn.typ.params }

// ParamNames returns the parameter names.
func (f *Func) ParamNames() []string { return f.fn.typ.names }

// Result returns the result type, nil when the function returns nothing.
func (f *Func) Result() wit.Type { return f.fn.typ.result }

// Call invokes the function with dynamic values.
func (f *Func) Call(ctx context.Context, args ...any) (any, error) {
	if f.inst.isClosed() {
		return nil, errors.New(errors.PhaseCall, errors.KindInstantiation).
			Path(f.fn.name).Detail("instance is closed").Build()
	}
	return f.fn.call(ctx, args)
}

// Exported is an interface instance exported by a component.
type Exported struct {
	ci   *compInstance
	inst *Instance
}

// Name returns the export name, e.g. "wasi:http/incoming-handler@0.2.0".
func (e *Exported) Name() string { return e.ci.name }

// Funcs returns the sorted names of the interface's functions.
func (e *Exported) Funcs() []string {
	names := make([]string, 0, len(e.ci.funcs))
	for n := range e.ci.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Func looks up a function of the interface by its kebab-case name or a
// lowerCamelCase alias.
func (e *Exported) Func(name string) (*Func, bool) {
	fn, ok := lookupFunc(e.ci.funcs, name)
	if !ok {
		return nil, false
	}
	return &Func{fn: fn, inst: e.inst}, true
}

func lookupFunc(funcs map[string]*compFunc, name string) (*compFunc, bool) {
	if fn, ok := funcs[name]; ok {
		return fn, true
	}
	fn, ok := funcs[host.ToKebab(name)]
	return fn, ok
}

// Export returns an exported interface instance.
func (i *Instance) Export(name string) (*Exported, bool) {
	ci, ok := i.root.instances[name]
	if !ok {
		return nil, false
	}
	return &Exported{ci: ci, inst: i}, true
}

// Func looks up an exported function. Functions of exported interfaces
// are addressed as "iface#func"; top-level functions by name alone.
func (i *Instance) Func(path string) (*Func, bool) {
	funcs := i.root.funcs
	name := path
	if iface, fn, ok := strings.Cut(path, "#"); ok {
		ci, found := i.root.instances[iface]
		if !found {
			return nil, false
		}
		funcs, name = ci.funcs, fn
	}
	fn, ok := lookupFunc(funcs, name)
	if !ok {
		return nil, false
	}
	return &Func{fn: fn, inst: i}, true
}

// Call invokes the exported function at path with dynamic values.
func (i *Instance) Call(ctx context.Context, path string, args ...any) (any, error) {
	fn, ok := i.Func(path)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "export", path)
	}
	return fn.Call(ctx, args...)
}

// Exports lists every callable export path, sorted.
func (i *Instance) Exports() []string {
	var out []string
	for n := range i.root.funcs {
		out = append(out, n)
	}
	for iface, ci := range i.root.instances {
		for n := range ci.funcs {
			out = append(out, iface+"#"+n)
		}
	}
	sort.Strings(out)
	return out
}

// Table returns the instance's resource handle table.
func (i *Instance) Table() *resource.Table { return i.table }

// HostTable returns the host resource table the instance was linked with.
func (i *Instance) HostTable() *resource.HostTable { return i.hostTable }

func (i *Instance) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// Close closes every core instance of the component and invalidates its
// handles. Close is idempotent.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	mods := i.modules
	i.modules = nil
	i.mu.Unlock()

	var errs []error
	for j := len(mods) - 1; j >= 0; j-- {
		if err := mods[j].Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	_ = i.table.Close()
	Logger().Debug("component instance closed", zap.Int("modules", len(mods)))
	return errors.Join(errs...)
}
