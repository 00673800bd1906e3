package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/wippyai/component-harness/conformance"
	"github.com/wippyai/component-harness/runtime"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "run the conformance scenarios",
		ArgsUsage: "[scenario...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "instantiation",
				Usage:   "force every scenario to `mode` sync or async",
				EnvVars: []string{"HARNESS_INSTANTIATION"},
			},
			&cli.PathFlag{
				Name:        "dir",
				Usage:       "load component binaries from `dir` instead of the built-in fixtures",
				DefaultText: "built-in",
				EnvVars:     []string{"HARNESS_DIR"},
			},
			&cli.IntFlag{
				Name:  "parallel",
				Usage: "run up to `n` scenarios at once",
				Value: 1,
			},
		},
		Action: func(c *cli.Context) error {
			var mode runtime.Instantiation
			if s := c.String("instantiation"); s != "" {
				m, err := runtime.ParseInstantiation(s)
				if err != nil {
					return err
				}
				mode = m
			}

			scenarios, err := selectScenarios(c.Args().Slice())
			if err != nil {
				return err
			}

			load, err := loaderFor(c.Path("dir"))
			if err != nil {
				return err
			}

			log := logger(c)
			rt, err := runtime.New(c.Context, runtime.WithLogger(log))
			if err != nil {
				return err
			}
			defer rt.Close(c.Context)

			suite := &conformance.Suite{
				Runtime:   rt,
				Load:      load,
				Logger:    log,
				Mode:      mode,
				Scenarios: scenarios,
				Parallel:  c.Int("parallel"),
			}
			report, err := suite.Run(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprint(c.App.Writer, report.String())
			if !report.Passed() {
				log.Debug("conformance failures", zap.Int("failed", len(report.Failed())))
				return cli.Exit(fmt.Sprintf("%d of %d scenarios failed", len(report.Failed()), len(report.Results)), 1)
			}
			return nil
		},
	}
}

func selectScenarios(names []string) ([]conformance.Scenario, error) {
	if len(names) == 0 {
		return conformance.Builtin(), nil
	}
	out := make([]conformance.Scenario, 0, len(names))
	for _, n := range names {
		sc, ok := conformance.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", n)
		}
		out = append(out, sc)
	}
	return out, nil
}

func loaderFor(dir string) (runtime.Loader, error) {
	if dir != "" {
		return runtime.FileLoader(dir), nil
	}
	return conformance.FixtureLoader()
}
