package conformance

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/fixtures"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/runtime"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		src   string
		mode  runtime.Instantiation
		extra []string
	}{
		{"// Flags: --instantiation sync\nimport x;", runtime.Sync, nil},
		{"// Flags: --instantiation", runtime.Async, nil},
		{"  // Flags: --instantiation=async --tla-compat", runtime.Async, []string{"--tla-compat"}},
		{"// Flags: --map a=b --instantiation sync", runtime.Sync, []string{"--map", "a=b"}},
		{"// Flags: --instantiation --no-namespaced-exports", runtime.Async, []string{"--no-namespaced-exports"}},
		{"import x;", "", nil},
	}
	for _, tt := range tests {
		f, err := ParseFlags(tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.mode, f.Instantiation, tt.src)
		assert.Equal(t, tt.extra, f.Extra, tt.src)
	}

	_, err := ParseFlags("// Flags: --instantiation eager")
	assert.Error(t, err)
	assert.Panics(t, func() { MustParseFlags("// Flags: --instantiation eager") })

	assert.Equal(t, "// Flags: --instantiation sync --map", Flags{Instantiation: runtime.Sync, Extra: []string{"--map"}}.String())
}

func TestT_Assertions(t *testing.T) {
	at := newT("demo", zap.NewNop())

	assert.True(t, at.StrictEqual("a", "a", "same"))
	assert.False(t, at.StrictEqual(uint32(1), 1, "different types"))
	assert.True(t, at.Throws(func() error { return fmt.Errorf("boom") }, "throws"))
	assert.False(t, at.Throws(func() error { return nil }, "does not throw"))
	assert.True(t, at.NoError(nil, "fine"))
	assert.False(t, at.NoError(fmt.Errorf("bad"), "not fine"))

	assert.Equal(t, 6, at.Checks())
	require.Len(t, at.Failures(), 3)
	assert.True(t, at.Failed())

	var ae *AssertionError
	require.ErrorAs(t, at.Failures()[0], &ae)
	assert.Equal(t, "demo", ae.Scenario)
	assert.Equal(t, 1, ae.Expected)
	assert.True(t, errors.Is(at.Failures()[1], errors.ErrAssertion))
	assert.Contains(t, at.Failures()[1].Error(), "does not throw")
}

func newSuite(t *testing.T, scenarios ...Scenario) *Suite {
	t.Helper()
	ctx := context.Background()
	rt, err := runtime.New(ctx, runtime.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })
	load, err := FixtureLoader()
	require.NoError(t, err)
	return &Suite{Runtime: rt, Load: load, Logger: zap.NewNop(), Scenarios: scenarios}
}

func TestBuiltin_Pass(t *testing.T) {
	suite := newSuite(t, Builtin()...)
	report, err := suite.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.True(t, report.Passed(), report.String())

	assert.Equal(t, fixtures.DummyProxyName, report.Results[0].Name)
	assert.Equal(t, runtime.Async, report.Results[0].Mode)
	assert.Equal(t, 1, report.Results[0].Checks)

	assert.Equal(t, fixtures.StringsSync, report.Results[1].Name)
	assert.Equal(t, runtime.Sync, report.Results[1].Mode)
	assert.Equal(t, 6, report.Results[1].Checks)
}

func TestScenarios_AllModesAndEncodings(t *testing.T) {
	for _, mode := range []runtime.Instantiation{runtime.Sync, runtime.Async} {
		t.Run(string(mode), func(t *testing.T) {
			suite := newSuite(t,
				DummyProxy(),
				Strings(fixtures.StringsSync),
				Strings(fixtures.StringsUTF16),
				Strings(fixtures.StringsCompact),
			)
			suite.Mode = mode

			report, err := suite.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, report.Results, 4)
			assert.True(t, report.Passed(), report.String())
			for _, res := range report.Results {
				assert.Equal(t, mode, res.Mode, res.Name)
			}
			assert.Equal(t, 1, report.Results[0].Checks)
			for _, res := range report.Results[1:] {
				assert.Equal(t, 6, res.Checks, res.Name)
			}
		})
	}
}

func TestStrings_WrongImportFails(t *testing.T) {
	// A host returning the wrong string makes the guest trap in
	// test-imports; the scenario must report it rather than pass.
	sc := Scenario{
		Name: "wrong-unicode",
		Run: func(ctx context.Context, env *Env, at *T) error {
			inst, err := env.Instantiate(ctx, fixtures.StringsUTF16, host.Imports{
				fixtures.StringsImports: {
					"takeBasic":     func(string) {},
					"returnUnicode": func() string { return "🚀" },
				},
			})
			if err != nil {
				return err
			}
			defer inst.Close(ctx)
			_, err = inst.Call(ctx, "testImports")
			at.NoError(err, "testImports()")
			return nil
		},
	}
	report, err := newSuite(t, sc).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.False(t, report.Passed())
	require.Len(t, report.Results[0].Failures, 1)
	assert.True(t, errors.Is(report.Results[0].Failures[0], errors.ErrAssertion))
}

func TestBuiltin_Parallel(t *testing.T) {
	var scenarios []Scenario
	for i := 0; i < 3; i++ {
		scenarios = append(scenarios, Builtin()...)
	}
	suite := newSuite(t, scenarios...)
	suite.Parallel = 4
	suite.Mode = runtime.Sync

	report, err := suite.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 6)
	assert.True(t, report.Passed(), report.String())
	for _, res := range report.Results {
		assert.Equal(t, runtime.Sync, res.Mode)
	}
}

func TestSuite_ReportsFailures(t *testing.T) {
	failing := Scenario{
		Name: "wrong-roundtrip",
		Run: func(ctx context.Context, env *Env, at *T) error {
			at.StrictEqual("str", "STR", "roundtrip")
			return nil
		},
	}
	missing := Scenario{
		Name: "missing-binary",
		Run: func(ctx context.Context, env *Env, at *T) error {
			_, err := env.Instantiate(ctx, "nope", nil)
			return err
		},
	}
	panicking := Scenario{
		Name: "panics",
		Run:  func(context.Context, *Env, *T) error { panic("boom") },
	}

	report, err := newSuite(t, failing, missing, panicking).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Passed())
	require.Len(t, report.Failed(), 3)

	assert.Len(t, report.Results[0].Failures, 1)
	assert.True(t, errors.Is(report.Results[1].Err, errors.ErrNotFound))
	assert.ErrorContains(t, report.Results[2].Err, "boom")
	assert.Contains(t, report.String(), "FAIL wrong-roundtrip")
}

func TestSuite_DummyProxyDetectsSuccess(t *testing.T) {
	// A handler call that succeeds is a failure of the dummy_proxy check.
	sc := Scenario{
		Name: "handle-succeeds",
		Run: func(ctx context.Context, env *Env, at *T) error {
			at.Throws(func() error { return nil }, "handle(0, 1)")
			return nil
		},
	}
	report, err := newSuite(t, sc).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Passed())
}

func TestSuite_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newSuite(t, Builtin()...).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.Results, 2)
}

func TestLookup(t *testing.T) {
	sc, ok := Lookup("strings.sync")
	require.True(t, ok)
	assert.Equal(t, runtime.Sync, sc.Flags.Instantiation)

	_, ok = Lookup("nope")
	assert.False(t, ok)
}
