package linker

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/engine"
	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/wasm"
)

// canonOpts are canonical options resolved against live core instances.
type canonOpts struct {
	memory     api.Memory
	realloc    api.Function
	postReturn api.Function
	encoding   abi.StringEncoding
}

func (s *state) canonOptions(o component.CanonOptions) (*canonOpts, error) {
	opts := &canonOpts{encoding: o.Encoding}
	if o.Memory != nil {
		ce, err := at(s.coreMemories, *o.Memory, "core memory")
		if err != nil {
			return nil, err
		}
		if opts.memory, err = ce.memory(); err != nil {
			return nil, err
		}
	}
	if o.Realloc != nil {
		ce, err := at(s.coreFuncs, *o.Realloc, "core func")
		if err != nil {
			return nil, err
		}
		if opts.realloc, err = ce.function(); err != nil {
			return nil, err
		}
	}
	if o.PostReturn != nil {
		ce, err := at(s.coreFuncs, *o.PostReturn, "core func")
		if err != nil {
			return nil, err
		}
		if opts.postReturn, err = ce.function(); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// abiOptions builds codec options for one call. phase tags memory errors.
func (o *canonOpts) abiOptions(ctx context.Context, res abi.Resources, phase errors.Phase) abi.Options {
	out := abi.Options{Resources: res, Encoding: o.encoding}
	if o.memory != nil {
		out.Memory = engine.NewMemory(o.memory, phase)
		if o.realloc != nil {
			out.Alloc = engine.NewRealloc(ctx, o.realloc, o.memory)
		}
	}
	return out
}

// signature is the core shape of a component function under the
// canonical ABI.
type signature struct {
	params      []wit.Type
	results     []wit.Type
	coreParams  []wasm.ValType
	coreResults []wasm.ValType
	flatParams  int
	spillParams bool
	spillResult bool
}

func signatureOf(ft *funcType) *signature {
	sig := &signature{params: ft.params}
	if ft.result != nil {
		sig.results = []wit.Type{ft.result}
	}
	flat := abi.FlattenAll(sig.params)
	sig.flatParams = len(flat)
	if len(flat) > abi.MaxFlatParams {
		sig.spillParams = true
		sig.coreParams = []wasm.ValType{wasm.ValI32}
	} else {
		sig.coreParams = flat
	}
	res := abi.FlattenAll(sig.results)
	if len(res) > abi.MaxFlatResults {
		sig.spillResult = true
		sig.coreResults = []wasm.ValType{wasm.ValI32}
	} else {
		sig.coreResults = res
	}
	return sig
}

// canonLower turns a component function into a core function. The result
// is a host module exporting "f" whose body lifts the guest's arguments,
// calls fn and lowers its result back into the guest. Any failure traps
// the calling guest.
func (s *state) canonLower(ctx context.Context, c component.Canon) (coreExport, error) {
	fn, err := at(s.funcs, c.Func, "func")
	if err != nil {
		return coreExport{}, err
	}
	opts, err := s.canonOptions(c.Options)
	if err != nil {
		return coreExport{}, err
	}
	sig := signatureOf(fn.typ)

	params := sig.coreParams
	var results []wasm.ValType
	if sig.spillResult {
		// The caller passes a return area after its arguments.
		params = append(append([]wasm.ValType(nil), params...), wasm.ValI32)
	} else {
		results = sig.coreResults
	}

	inst := s.inst
	trampoline := func(ctx context.Context, _ api.Module, stack []uint64) {
		h := &handles{inst: inst}
		lifter := abi.NewLifter(opts.abiOptions(ctx, h, errors.PhaseLift))

		var args []any
		var err error
		if sig.spillParams {
			args, err = lifter.LoadValues(sig.params, uint32(stack[0]))
		} else {
			args, err = lifter.LiftFlat(sig.params, stack[:sig.flatParams])
		}
		if err != nil {
			panic(errors.Wrap(errors.PhaseLift, errors.KindTrap, err, "lift arguments of "+fn.name))
		}

		ret, err := fn.call(ctx, args)
		if err != nil {
			panic(err)
		}
		if sig.results == nil {
			return
		}

		lowerer := abi.NewLowerer(opts.abiOptions(ctx, h, errors.PhaseLower))
		if sig.spillResult {
			retptr := uint32(stack[len(params)-1])
			if err := lowerer.Store(sig.results[0], ret, retptr); err != nil {
				panic(errors.Wrap(errors.PhaseLower, errors.KindTrap, err, "lower result of "+fn.name))
			}
			return
		}
		flat, err := lowerer.LowerFlat(sig.results, []any{ret})
		if err != nil {
			panic(errors.Wrap(errors.PhaseLower, errors.KindTrap, err, "lower result of "+fn.name))
		}
		copy(stack, flat)
	}

	mod, err := s.hostModule(ctx, "lower", engine.HostFunc{
		Fn:      trampoline,
		Name:    "f",
		Params:  apiTypes(params),
		Results: apiTypes(results),
	})
	if err != nil {
		return coreExport{}, err
	}
	Logger().Debug("lowered host function",
		zap.String("func", fn.name),
		zap.Int("core_params", len(params)),
		zap.Bool("retptr", sig.spillResult))
	return coreExport{mod: mod, name: "f", kind: wasm.KindFunc}, nil
}

// hostModule instantiates a single-function host module owned by the
// instance.
func (s *state) hostModule(ctx context.Context, prefix string, fn engine.HostFunc) (api.Module, error) {
	mod, err := s.l.engine.InstantiateHost(ctx, engine.UniqueName(prefix), fn)
	if err != nil {
		return nil, err
	}
	s.inst.modules = append(s.inst.modules, mod)
	return mod, nil
}

// callGuard serializes calls into one component instance and detects
// reentrance through the call context.
type callGuard struct {
	mu sync.Mutex
}

// enter marks ctx as running inside the guarded instance.
func (g *callGuard) enter(ctx context.Context, name string) (context.Context, func(), error) {
	if ctx.Value(g) != nil {
		return nil, nil, errors.New(errors.PhaseCall, errors.KindReentrance).
			Path(name).Cause(errors.ErrTrap).
			Detail("component instance is already on the call stack").Build()
	}
	g.mu.Lock()
	return context.WithValue(ctx, g, true), g.mu.Unlock, nil
}

// canonLift turns a core function into a component function.
func (s *state) canonLift(c component.Canon) (*compFunc, error) {
	ce, err := at(s.coreFuncs, c.CoreFunc, "core func")
	if err != nil {
		return nil, err
	}
	core, err := ce.function()
	if err != nil {
		return nil, err
	}
	ft, err := s.types.funcType(c.Type)
	if err != nil {
		return nil, err
	}
	opts, err := s.canonOptions(c.Options)
	if err != nil {
		return nil, err
	}
	sig := signatureOf(ft)
	guard := s.guard
	inst := s.inst

	cf := &compFunc{typ: ft, name: ce.name}
	cf.call = func(ctx context.Context, args []any) (any, error) {
		name := cf.name
		ctx, leave, err := guard.enter(ctx, name)
		if err != nil {
			return nil, err
		}
		defer leave()

		h := &handles{inst: inst}
		defer h.release()

		lowerer := abi.NewLowerer(opts.abiOptions(ctx, h, errors.PhaseLower))
		var flat []uint64
		if sig.spillParams {
			ptr, err := lowerer.StoreValues(sig.params, args)
			if err != nil {
				return nil, withName(err, name)
			}
			flat = []uint64{uint64(ptr)}
		} else {
			flat, err = lowerer.LowerFlat(sig.params, args)
			if err != nil {
				return nil, withName(err, name)
			}
		}

		results, err := engine.Call(ctx, core, name, flat...)
		if err != nil {
			return nil, err
		}

		var out any
		if sig.results != nil {
			lifter := abi.NewLifter(opts.abiOptions(ctx, h, errors.PhaseLift))
			if sig.spillResult {
				out, err = lifter.Load(sig.results[0], uint32(results[0]))
			} else {
				var vals []any
				vals, err = lifter.LiftFlat(sig.results, results)
				if err == nil {
					out = vals[0]
				}
			}
			if err != nil {
				return nil, withName(err, name)
			}
		}

		if opts.postReturn != nil {
			if _, err := engine.Call(ctx, opts.postReturn, name+" post-return", results...); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return cf, nil
}

// withName prefixes the path of a codec error with the function name.
func withName(err error, name string) error {
	var e *errors.Error
	if errors.As(err, &e) {
		e.Path = append([]string{name}, e.Path...)
	}
	return err
}

// canonResource defines a resource.new, resource.drop or resource.rep
// built-in as a core function.
func (s *state) canonResource(ctx context.Context, c component.Canon) (coreExport, error) {
	t, err := s.types.get(c.Type)
	if err != nil {
		return coreExport{}, err
	}
	td, ok := t.(*wit.TypeDef)
	if ok {
		if res, _, isHandle := abi.ResourceOf(td); isHandle {
			td = res
		}
	}
	if !ok {
		return coreExport{}, errors.New(errors.PhaseLink, errors.KindTypeMismatch).
			Detail("%s on non-resource type %d", c.Kind, c.Type).Build()
	}
	d, err := s.inst.resourceDef(td, errors.PhaseLink)
	if err != nil {
		return coreExport{}, err
	}

	i32 := []api.ValueType{api.ValueTypeI32}
	hf := engine.HostFunc{Name: "f", Params: i32}
	switch c.Kind {
	case component.CanonResourceNew:
		hf.Fn, hf.Results = s.inst.resourceNew(d), i32
	case component.CanonResourceRep:
		hf.Fn, hf.Results = s.inst.resourceRep(d), i32
	default:
		hf.Fn = s.inst.resourceDrop(d)
	}
	mod, err := s.hostModule(ctx, c.Kind.String(), hf)
	if err != nil {
		return coreExport{}, err
	}
	return coreExport{mod: mod, name: "f", kind: wasm.KindFunc}, nil
}
