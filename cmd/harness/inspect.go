package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/wippyai/component-harness/fixtures"
	"github.com/wippyai/component-harness/runtime"
	"github.com/wippyai/component-harness/stubgen"
)

// loadModule reads and decodes the component named by the first argument.
func loadModule(c *cli.Context, rt *runtime.Runtime) (*runtime.Module, string, error) {
	path := c.Args().First()
	if path == "" {
		return nil, "", cli.Exit("missing component file argument", 2)
	}
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	mod, err := rt.Load(c.Context, bin)
	if err != nil {
		return nil, "", err
	}
	return mod, path, nil
}

func newRuntime(c *cli.Context) (*runtime.Runtime, error) {
	return runtime.New(c.Context, runtime.WithLogger(logger(c)))
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "print the sections and typed world of a component",
		ArgsUsage: "<file.wasm>",
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
			w, err := mod.World()
			if err != nil {
				return err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "component: %s\n", path)
			b.WriteString(mod.Summary().String())
			b.WriteString("\n")
			printWorld(&b, w)
			fmt.Fprint(c.App.Writer, b.String())
			return nil
		},
	}
}

func stubsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stubs",
		Usage:     "generate TypeScript declarations for a component",
		ArgsUsage: "<file.wasm>",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "write files under `dir`",
				DefaultText: "stdout",
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "base `name` of the world file",
				DefaultText: "file name",
			},
		},
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
			name := c.String("name")
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			files, err := stubgen.FromComponent(mod.Component(), stubgen.Options{Name: name})
			if err != nil {
				return err
			}

			out := c.Path("out")
			for _, f := range files {
				if out == "" {
					fmt.Fprintf(c.App.Writer, "// %s\n%s\n", f.Name, f.Content)
					continue
				}
				dst := filepath.Join(out, filepath.FromSlash(f.Name))
				if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, dst)
			}
			return nil
		},
	}
}

func fixturesCommand() *cli.Command {
	return &cli.Command{
		Name:      "fixtures",
		Usage:     "write the built-in test components to a directory",
		ArgsUsage: "<dir>",
		Action: func(c *cli.Context) error {
			dir := c.Args().First()
			if dir == "" {
				return cli.Exit("missing directory argument", 2)
			}
			paths, err := fixtures.Write(dir)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(c.App.Writer, p)
			}
			return nil
		},
	}
}
