package linker

import (
	"context"
	"strconv"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/component-harness/engine"
	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/wasm"
)

// coreExport is an item exported by a core instance.
type coreExport struct {
	mod  api.Module
	name string
	kind byte
}

func (c coreExport) function() (api.Function, error) {
	if engine.IsHost(c.mod) {
		return nil, errors.Unsupported(errors.PhaseLink, "lifting a lowered host function")
	}
	if fn := c.mod.ExportedFunction(c.name); fn != nil {
		return fn, nil
	}
	return nil, errors.NotFound(errors.PhaseLink, "core function export", c.name)
}

func (c coreExport) memory() (api.Memory, error) {
	if mem := c.mod.ExportedMemory(c.name); mem != nil {
		return mem, nil
	}
	return nil, errors.NotFound(errors.PhaseLink, "core memory export", c.name)
}

// bridgeItem is one export of a bridge module.
type bridgeItem struct {
	name string
	src  coreExport
}

// buildBridge synthesizes a core module that imports each item from its
// owning instance and re-exports it under the given name. Guest instances
// are imported as modules "0", "1", ... and resolved through the returned
// map. Host modules are imported by their own unique names, so a bridge
// over host functions is only valid once and reports named as true.
func buildBridge(items []bridgeItem) (bin []byte, imports map[string]api.Module, named bool, err error) {
	b := wasm.NewModuleBuilder()
	imports = make(map[string]api.Module)
	owner := make(map[api.Module]string)
	modName := func(m api.Module) string {
		if n, ok := owner[m]; ok {
			return n
		}
		var n string
		if engine.IsHost(m) {
			n, named = m.Name(), true
		} else {
			n = strconv.Itoa(len(imports))
			imports[n] = m
		}
		owner[m] = n
		return n
	}

	type exp struct {
		name string
		kind byte
		idx  uint32
	}
	var exps []exp
	for _, it := range items {
		src := it.src
		mod := modName(src.mod)
		switch src.kind {
		case wasm.KindFunc:
			def, ok := src.mod.ExportedFunctionDefinitions()[src.name]
			if !ok {
				return nil, nil, false, errors.NotFound(errors.PhaseLink, "core function export", src.name)
			}
			idx := b.ImportFunc(mod, src.name, wasm.FuncType{
				Params:  valTypes(def.ParamTypes()),
				Results: valTypes(def.ResultTypes()),
			})
			exps = append(exps, exp{it.name, wasm.KindFunc, idx})
		case wasm.KindMemory:
			if _, err := src.memory(); err != nil {
				return nil, nil, false, err
			}
			exps = append(exps, exp{it.name, wasm.KindMemory, b.ImportMemory(mod, src.name, 0)})
		case wasm.KindTable:
			exps = append(exps, exp{it.name, wasm.KindTable, b.ImportTable(mod, src.name, 0)})
		case wasm.KindGlobal:
			g := src.mod.ExportedGlobal(src.name)
			if g == nil {
				return nil, nil, false, errors.NotFound(errors.PhaseLink, "core global export", src.name)
			}
			_, mutable := g.(api.MutableGlobal)
			exps = append(exps, exp{it.name, wasm.KindGlobal, b.ImportGlobal(mod, src.name, wasm.ValType(g.Type()), mutable)})
		default:
			return nil, nil, false, errors.Unsupported(errors.PhaseLink, "core export kind "+strconv.Itoa(int(src.kind)))
		}
	}
	for _, e := range exps {
		b.Export(e.name, e.kind, e.idx)
	}
	return b.Bytes(), imports, named, nil
}

func valTypes(ts []api.ValueType) []wasm.ValType {
	out := make([]wasm.ValType, len(ts))
	for i, t := range ts {
		out[i] = wasm.ValType(t)
	}
	return out
}

func apiTypes(ts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		out[i] = api.ValueType(t)
	}
	return out
}

// instantiateBridge builds and instantiates a bridge module.
func instantiateBridge(ctx context.Context, eng *engine.Engine, items []bridgeItem) (api.Module, error) {
	bin, imports, named, err := buildBridge(items)
	if err != nil {
		return nil, err
	}
	if !named {
		cm, err := eng.Compile(ctx, bin)
		if err != nil {
			return nil, err
		}
		return eng.Instantiate(ctx, cm, engine.UniqueName("bridge"), imports)
	}
	cm, err := eng.CompileOnce(ctx, bin)
	if err != nil {
		return nil, err
	}
	// Instances keep working after their compilation is closed.
	defer cm.Close(ctx)
	return eng.Instantiate(ctx, cm, engine.UniqueName("bridge"), imports)
}
