package runtime

import (
	"context"
	"sync"

	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/linker"
)

// Module is a decoded component. Safe for concurrent use.
type Module struct {
	runtime   *Runtime
	component *component.Component
	pre       *linker.InstancePre
	world     *linker.World
	worldErr  error
	preErr    error
	preOnce   sync.Once
	worldOnce sync.Once
}

// Component returns the decoded component.
func (m *Module) Component() *component.Component {
	return m.component
}

// Summary returns a structural overview of the component.
func (m *Module) Summary() component.Summary {
	return component.Describe(m.component)
}

// World returns the typed imports and exports of the component.
func (m *Module) World() (*linker.World, error) {
	m.worldOnce.Do(func() {
		m.world, m.worldErr = linker.Describe(m.component)
	})
	return m.world, m.worldErr
}

// Compile compiles the component's core modules. Instantiate calls it on
// first use; call it early to fail fast.
func (m *Module) Compile(ctx context.Context) error {
	m.preOnce.Do(func() {
		m.pre, m.preErr = m.runtime.linker.Prepare(ctx, m.component)
	})
	return m.preErr
}

// Instantiate links the component against the runtime's registered hosts
// and imports, and creates an instance.
func (m *Module) Instantiate(ctx context.Context, imports host.Imports) (*linker.Instance, error) {
	if err := m.Compile(ctx); err != nil {
		return nil, err
	}
	return m.pre.NewInstance(ctx, m.runtime.imports(imports))
}
