package conformance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/linker"
	"github.com/wippyai/component-harness/runtime"
)

// Env is what a scenario runs against.
type Env struct {
	Runtime *runtime.Runtime
	Load    runtime.Loader
	Logger  *zap.Logger
	Mode    runtime.Instantiation
}

// Instantiate loads the named component and instantiates it in the
// scenario's mode.
func (e *Env) Instantiate(ctx context.Context, name string, imports host.Imports) (*linker.Instance, error) {
	return runtime.InstantiateWith(ctx, e.Runtime, e.Mode, e.Load, name, imports)
}

// Scenario is one conformance check. Run returns an error when the
// scenario cannot be carried out at all; failed assertions are recorded
// on t instead.
type Scenario struct {
	Run   func(ctx context.Context, env *Env, t *T) error
	Name  string
	Flags Flags
}

// Result is the outcome of one scenario.
type Result struct {
	Err      error
	Name     string
	Mode     runtime.Instantiation
	Failures []error
	Checks   int
	Duration time.Duration
}

// Passed reports whether the scenario ran and every assertion held.
func (r Result) Passed() bool {
	return r.Err == nil && len(r.Failures) == 0
}

// Report collects the results of a suite run in scenario order.
type Report struct {
	Results  []Result
	Duration time.Duration
}

// Passed reports whether every scenario passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

// Failed returns the results that did not pass.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed() {
			out = append(out, res)
		}
	}
	return out
}

// String renders one line per scenario followed by a summary.
func (r *Report) String() string {
	var b strings.Builder
	for _, res := range r.Results {
		status := "PASS"
		if !res.Passed() {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%s %s (%s, %s)\n", status, res.Name, res.Mode, res.Duration.Round(time.Microsecond))
		if res.Err != nil {
			fmt.Fprintf(&b, "    error: %v\n", res.Err)
		}
		for _, f := range res.Failures {
			fmt.Fprintf(&b, "    %v\n", f)
		}
	}
	fmt.Fprintf(&b, "%d scenarios, %d failed, %s\n", len(r.Results), len(r.Failed()), r.Duration.Round(time.Millisecond))
	return b.String()
}

// Suite runs scenarios against one runtime.
type Suite struct {
	Runtime *runtime.Runtime
	Load    runtime.Loader
	Logger  *zap.Logger

	// Mode overrides every scenario's instantiation flag when set.
	Mode      runtime.Instantiation
	Scenarios []Scenario

	// Parallel bounds how many scenarios run at once; 0 or 1 runs them in
	// order.
	Parallel int
}

// Run executes every scenario. The returned error is non-nil only when ctx
// ends the run early; scenario failures are reported in the Report.
func (s *Suite) Run(ctx context.Context) (*Report, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	results := make([]Result, len(s.Scenarios))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Parallel, 1))
	for i, sc := range s.Scenarios {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.runOne(gctx, sc, logger)
			return nil
		})
	}
	err := g.Wait()

	report := &Report{Results: results, Duration: time.Since(start)}
	logger.Info("conformance run finished",
		zap.Int("scenarios", len(results)),
		zap.Int("failed", len(report.Failed())),
		zap.Duration("elapsed", report.Duration))
	return report, err
}

func (s *Suite) runOne(ctx context.Context, sc Scenario, logger *zap.Logger) (res Result) {
	mode := sc.Flags.Instantiation
	if s.Mode != "" {
		mode = s.Mode
	}
	if mode == "" {
		mode = s.Runtime.Instantiation()
	}
	log := logger.With(zap.String("scenario", sc.Name), zap.String("instantiation", string(mode)))
	env := &Env{Runtime: s.Runtime, Load: s.Load, Logger: log, Mode: mode}
	t := newT(sc.Name, log)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("scenario panicked: %v", r)
		}
		res.Name, res.Mode = sc.Name, mode
		res.Failures, res.Checks = t.Failures(), t.Checks()
		res.Duration = time.Since(start)
		if res.Passed() {
			log.Debug("scenario passed", zap.Int("checks", res.Checks), zap.Duration("elapsed", res.Duration))
		} else {
			log.Warn("scenario failed", zap.Error(res.Err), zap.Int("failures", len(res.Failures)))
		}
	}()

	res.Err = sc.Run(ctx, env, t)
	return res
}
