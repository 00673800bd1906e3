package linker

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/engine"
	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/resource"
)

// resourceDef is the linker's record of a resource type. Host resources
// name a host table type and keep host handles as their rep. Guest
// resources are defined by the component and may have a destructor.
type resourceDef struct {
	dtor api.Function
	host string
	id   uint32
}

func (i *Instance) defineResource(td *wit.TypeDef, host string, dtor api.Function) *resourceDef {
	if d, ok := i.resources[td]; ok {
		return d
	}
	i.nextResource++
	d := &resourceDef{id: i.nextResource, host: host, dtor: dtor}
	i.resources[td] = d
	Logger().Debug("resource type defined",
		zap.String("name", abi.TypeName(td)),
		zap.Uint32("id", d.id),
		zap.String("host", host))
	return d
}

func (i *Instance) resourceDef(td *wit.TypeDef, phase errors.Phase) (*resourceDef, error) {
	if d, ok := i.resources[td]; ok {
		return d, nil
	}
	return nil, errors.New(phase, errors.KindInvalidHandle).
		WitType(abi.TypeName(td)).Detail("resource type is not known to this instance").Build()
}

// handles moves resource handles between the host and one component
// instance's table for the duration of a call. Borrows lent to the guest
// are released when the call returns.
type handles struct {
	inst *Instance
	lent []resource.Handle
}

var _ abi.Resources = (*handles)(nil)

func (h *handles) LowerHandle(res *wit.TypeDef, own bool, v resource.Handle) (uint32, error) {
	d, err := h.inst.resourceDef(res, errors.PhaseLower)
	if err != nil {
		return 0, err
	}
	if d.host == "" {
		// Guest resources travel as indices of the defining table, except
		// that a borrow reaching the defining component is its rep.
		e, err := h.inst.table.GetTyped(v, d.id)
		if err != nil {
			return 0, errors.InvalidHandle(errors.PhaseLower, uint32(v), err.Error())
		}
		if !own {
			return e.Rep, nil
		}
		return uint32(v), nil
	}

	if _, err := h.inst.hostTable.GetTyped(v, d.host); err != nil {
		return 0, errors.InvalidHandle(errors.PhaseLower, uint32(v), err.Error())
	}
	g, err := h.inst.table.Insert(d.id, uint32(v), own)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseLower, errors.KindInvalidHandle, err, "insert handle")
	}
	if !own {
		h.lent = append(h.lent, g)
	}
	return uint32(g), nil
}

func (h *handles) LiftHandle(res *wit.TypeDef, own bool, g uint32) (resource.Handle, error) {
	d, err := h.inst.resourceDef(res, errors.PhaseLift)
	if err != nil {
		return 0, err
	}
	if d.host == "" {
		if _, err := h.inst.table.GetTyped(resource.Handle(g), d.id); err != nil {
			return 0, errors.InvalidHandle(errors.PhaseLift, g, err.Error())
		}
		return resource.Handle(g), nil
	}

	var rep uint32
	if own {
		rep, err = h.inst.table.TakeOwned(resource.Handle(g), d.id)
	} else {
		rep, err = h.inst.table.Rep(resource.Handle(g), d.id)
	}
	if err != nil {
		return 0, errors.InvalidHandle(errors.PhaseLift, g, err.Error())
	}
	return resource.Handle(rep), nil
}

// release drops the borrow handles lent during the call. The guest may
// already have dropped them.
func (h *handles) release() {
	for _, g := range h.lent {
		_, _ = h.inst.table.Remove(g)
	}
	h.lent = nil
}

// resourceNew implements canon resource.new: (rep i32) -> handle i32.
func (i *Instance) resourceNew(d *resourceDef) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		h, err := i.table.Insert(d.id, uint32(stack[0]), true)
		if err != nil {
			panic(errors.Wrap(errors.PhaseCall, errors.KindInvalidHandle, err, "resource.new"))
		}
		stack[0] = uint64(h)
	}
}

// resourceRep implements canon resource.rep: (handle i32) -> rep i32.
func (i *Instance) resourceRep(d *resourceDef) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		rep, err := i.table.Rep(resource.Handle(stack[0]), d.id)
		if err != nil {
			panic(errors.InvalidHandle(errors.PhaseCall, uint32(stack[0]), err.Error()))
		}
		stack[0] = uint64(rep)
	}
}

// resourceDrop implements canon resource.drop: (handle i32) -> ().
// Dropping an owned handle destroys the resource: host values leave the
// host table and guest resources run their destructor.
func (i *Instance) resourceDrop(d *resourceDef) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		g := resource.Handle(stack[0])
		if _, err := i.table.GetTyped(g, d.id); err != nil {
			panic(errors.InvalidHandle(errors.PhaseCall, uint32(g), err.Error()))
		}
		e, err := i.table.Remove(g)
		if err != nil {
			panic(errors.InvalidHandle(errors.PhaseCall, uint32(g), err.Error()))
		}
		if !e.Own {
			return
		}
		switch {
		case d.host != "":
			i.hostTable.Remove(resource.Handle(e.Rep))
		case d.dtor != nil:
			if _, err := engine.Call(ctx, d.dtor, "resource destructor", uint64(e.Rep)); err != nil {
				panic(err)
			}
		}
	}
}
