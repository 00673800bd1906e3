package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/linker"
	"github.com/wippyai/component-harness/resource"
	"github.com/wippyai/component-harness/wasi"
	"github.com/wippyai/component-harness/wasihttp"
)

var entryPoints = []string{"run", "main", "_start"}

func wasiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "env",
			Usage: "set guest environment variable `KEY=VALUE`",
		},
		&cli.StringSliceFlag{
			Name:  "argv",
			Usage: "append a guest command-line `argument`",
		},
		&cli.StringFlag{
			Name:  "stdin",
			Usage: "feed `data` to the guest's stdin",
		},
	}
}

// hostImports builds the WASI and wasi:http hosts a component may import.
func hostImports(c *cli.Context, ht *resource.HostTable) host.Imports {
	env := make(map[string]string)
	for _, kv := range c.StringSlice("env") {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	cfg := wasi.Config{
		Env:    env,
		Args:   c.StringSlice("argv"),
		Stdout: c.App.Writer,
		Stderr: c.App.ErrWriter,
	}
	if s := c.String("stdin"); s != "" {
		cfg.Stdin = strings.NewReader(s)
	}
	return wasihttp.Imports(ht, cfg)
}

func callCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "instantiate a component and call one of its exports",
		ArgsUsage: "<file.wasm>",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "func",
				Usage: "export `path` to call, \"iface#func\" for interface functions",
			},
			&cli.StringSliceFlag{
				Name:  "arg",
				Usage: "argument `value`; non-string parameters take JSON",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "pick functions and enter arguments in a terminal UI",
			},
		}, wasiFlags()...),
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close(c.Context)

			mod, path, err := loadModule(c, rt)
			if err != nil {
				return err
			}

			if c.Bool("interactive") {
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					return cli.Exit("interactive mode needs a terminal", 2)
				}
				// The TUI owns the screen; guest output would corrupt it.
				imports := wasihttp.Imports(rt.HostTable(), wasi.Config{})
				return runInteractive(c.Context, path, mod, imports)
			}

			inst, err := mod.Instantiate(c.Context, hostImports(c, rt.HostTable()))
			if err != nil {
				return err
			}
			defer inst.Close(c.Context)

			name := c.String("func")
			if name == "" {
				if name = pickEntryPoint(inst.Exports()); name == "" {
					return cli.Exit("no --func given and no entry point found; exports: "+strings.Join(inst.Exports(), ", "), 2)
				}
			}
			fn, ok := inst.Func(name)
			if !ok {
				return cli.Exit(fmt.Sprintf("no export %q", name), 2)
			}
			args, err := convertArgs(fn, c.StringSlice("arg"))
			if err != nil {
				return err
			}

			logger(c).Debug("calling export", zap.String("func", name), zap.Int("args", len(args)))
			result, err := fn.Call(c.Context, args...)
			if err != nil {
				return fmt.Errorf("call %s: %w", name, err)
			}
			if fn.Result() != nil {
				fmt.Fprintf(c.App.Writer, "%v\n", result)
			}
			return nil
		},
	}
}

// pickEntryPoint chooses a conventional entry point, or the only export.
func pickEntryPoint(exports []string) string {
	for _, want := range entryPoints {
		for _, e := range exports {
			if e == want {
				return e
			}
		}
	}
	if len(exports) == 1 {
		return exports[0]
	}
	return ""
}

func convertArgs(fn *linker.Func, raw []string) ([]any, error) {
	params := fn.Params()
	if len(raw) != len(params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", fn.Name(), len(params), len(raw))
	}
	args := make([]any, len(raw))
	for i, s := range raw {
		v, err := convertArg(s, params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

// convertArg parses a command-line value for a parameter of type t.
// Strings and chars are taken verbatim, scalars are parsed, and anything
// else is decoded as JSON.
func convertArg(value string, t wit.Type) (any, error) {
	switch t.(type) {
	case wit.String, wit.Char:
		return value, nil
	case wit.Bool:
		return strconv.ParseBool(value)
	case wit.S8, wit.S16, wit.S32, wit.S64:
		return strconv.ParseInt(value, 10, 64)
	case wit.U8, wit.U16, wit.U32, wit.U64:
		return strconv.ParseUint(value, 10, 64)
	case wit.F32, wit.F64:
		return strconv.ParseFloat(value, 64)
	}
	var v any
	if err := json.Unmarshal([]byte(value), &v); err != nil {
		return nil, fmt.Errorf("%q is not valid JSON for %s: %w", value, witType(t), err)
	}
	return v, nil
}
