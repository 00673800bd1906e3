package runtime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/linker"
)

// Pending is an instantiation in progress.
type Pending struct {
	done chan struct{}
	inst *linker.Instance
	err  error
}

// Done is closed when the instantiation finishes.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the instance is ready or ctx ends. When ctx ends
// first the instantiation keeps running; a later Wait still collects it.
func (p *Pending) Wait(ctx context.Context) (*linker.Instance, error) {
	select {
	case <-p.done:
		return p.inst, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InstantiateAsync loads the component called name and instantiates it in
// the background. Core modules are compiled concurrently before linking.
func InstantiateAsync(ctx context.Context, rt *Runtime, load Loader, name string, imports host.Imports) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		// A panic here has no caller to unwind into; report it through Wait.
		defer func() {
			if r := recover(); r != nil {
				p.inst, p.err = nil, errors.Instantiation(name, fmt.Errorf("panic: %v", r))
				rt.log().Error("instantiation panicked", zap.String("name", name), zap.Any("panic", r))
			}
		}()
		p.inst, p.err = instantiateAsync(ctx, rt, load, name, imports)
	}()
	return p
}

func instantiateAsync(ctx context.Context, rt *Runtime, load Loader, name string, imports host.Imports) (*linker.Instance, error) {
	start := time.Now()
	bin, err := load(ctx, name)
	if err != nil {
		return nil, err
	}
	mod, err := rt.Load(ctx, bin)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, core := range mod.component.AllCoreModules() {
		g.Go(func() error {
			_, err := rt.engine.Compile(gctx, core)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	inst, err := mod.Instantiate(ctx, imports)
	if err != nil {
		return nil, err
	}
	rt.log().Debug("component instantiated",
		zap.String("name", name),
		zap.String("mode", string(Async)),
		zap.Duration("elapsed", time.Since(start)))
	return inst, nil
}

// InstantiateSync loads the component called name and instantiates it on
// the calling goroutine.
func InstantiateSync(ctx context.Context, rt *Runtime, load Loader, name string, imports host.Imports) (*linker.Instance, error) {
	start := time.Now()
	bin, err := load(ctx, name)
	if err != nil {
		return nil, err
	}
	mod, err := rt.Load(ctx, bin)
	if err != nil {
		return nil, err
	}
	inst, err := mod.Instantiate(ctx, imports)
	if err != nil {
		return nil, err
	}
	rt.log().Debug("component instantiated",
		zap.String("name", name),
		zap.String("mode", string(Sync)),
		zap.Duration("elapsed", time.Since(start)))
	return inst, nil
}

// InstantiateWith instantiates with the given mode, falling back to the
// runtime's default when mode is empty.
func InstantiateWith(ctx context.Context, rt *Runtime, mode Instantiation, load Loader, name string, imports host.Imports) (*linker.Instance, error) {
	if mode == "" {
		mode = rt.mode
	}
	if mode == Async {
		return InstantiateAsync(ctx, rt, load, name, imports).Wait(ctx)
	}
	return InstantiateSync(ctx, rt, load, name, imports)
}

func (r *Runtime) log() *zap.Logger {
	if r.logger != nil {
		return r.logger
	}
	return zap.NewNop()
}
