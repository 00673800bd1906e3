package linker

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/host"
)

var errNilComponent = errors.New(errors.PhaseLink, errors.KindInvalidInput).Detail("nil component").Build()

// InstancePre is a compiled component ready for instantiation.
//
// It is safe for concurrent use: every NewInstance call creates an
// independent Instance with its own core instances and handle table.
type InstancePre struct {
	linker    *Linker
	component *component.Component
}

// Component returns the decoded component.
func (p *InstancePre) Component() *component.Component {
	return p.component
}

// NewInstance links the component against imports and instantiates it.
// Every import is resolved before any core module runs; when some cannot
// be satisfied the error is a *errors.MissingImportsError naming all of
// them.
func (p *InstancePre) NewInstance(ctx context.Context, imports host.Imports) (*Instance, error) {
	inst := p.linker.newInstance()
	s := &state{
		l:       p.linker,
		inst:    inst,
		types:   newScope(nil),
		guard:   &callGuard{},
		imports: imports,
		exports: newCompInstance(""),
	}
	if err := s.run(ctx, p.component); err != nil {
		if cerr := inst.Close(ctx); cerr != nil {
			Logger().Warn("failed to close partial instance", zap.Error(cerr))
		}
		return nil, err
	}
	inst.root = s.exports
	Logger().Debug("component instantiated",
		zap.Int("modules", len(inst.modules)),
		zap.Int("exports", len(inst.root.funcs)+len(inst.root.instances)))
	return inst, nil
}
