package conformance

import (
	"context"

	"github.com/wippyai/component-harness/fixtures"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/runtime"
	"github.com/wippyai/component-harness/wasi"
	"github.com/wippyai/component-harness/wasihttp"
)

// DummyProxy calls the HTTP handler export with handles the host never
// issued. The call must fail.
func DummyProxy() Scenario {
	return Scenario{
		Name:  fixtures.DummyProxyName,
		Flags: MustParseFlags("// Flags: --instantiation"),
		Run: func(ctx context.Context, env *Env, t *T) error {
			inst, err := env.Instantiate(ctx, fixtures.DummyProxyName,
				wasihttp.Imports(env.Runtime.HostTable(), wasi.Config{}))
			if err != nil {
				return err
			}
			defer inst.Close(ctx)

			proxy, err := wasihttp.NewProxy(inst)
			if err != nil {
				return err
			}
			t.Throws(func() error { return proxy.Handle(ctx, 0, 1) }, "handle(0, 1)")
			return nil
		},
	}
}

// StringsSync exchanges Latin-1 and astral-plane strings with the strings
// component in both directions.
func StringsSync() Scenario {
	sc := Strings(fixtures.StringsSync)
	sc.Flags = MustParseFlags("// Flags: --instantiation sync")
	return sc
}

// Strings runs the strings checks against the named strings fixture, so
// the same exchange covers every string encoding the fixtures build.
func Strings(fixture string) Scenario {
	return Scenario{
		Name: fixture,
		Run: func(ctx context.Context, env *Env, t *T) error {
			imports := host.Imports{
				fixtures.StringsImports: {
					"takeBasic": func(s string) {
						t.StrictEqual(s, fixtures.BasicString, "takeBasic argument")
					},
					"returnUnicode": func() string {
						return fixtures.UnicodeString
					},
				},
			}
			inst, err := env.Instantiate(ctx, fixture, imports)
			if err != nil {
				return err
			}
			defer inst.Close(ctx)

			_, err = inst.Call(ctx, "testImports")
			t.NoError(err, "testImports()")

			for _, s := range []string{"str", fixtures.UnicodeString} {
				got, err := inst.Call(ctx, "roundtrip", s)
				if t.NoError(err, "roundtrip") {
					t.StrictEqual(got, s, "roundtrip")
				}
			}
			return nil
		},
	}
}

// Builtin returns the built-in scenarios in a fixed order.
func Builtin() []Scenario {
	return []Scenario{DummyProxy(), StringsSync()}
}

// Lookup returns the built-in scenario called name.
func Lookup(name string) (Scenario, bool) {
	for _, sc := range Builtin() {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

// FixtureLoader serves the binaries built by the fixtures package under
// the names the built-in scenarios load.
func FixtureLoader() (runtime.Loader, error) {
	bins, err := fixtures.All()
	if err != nil {
		return nil, err
	}
	return runtime.BytesLoader(bins), nil
}
