package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "human-readable development logging",
			EnvVars: []string{"HARNESS_DEBUG"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "set logging `level` to debug, info, warn or error",
			Value:   "warn",
			EnvVars: []string{"HARNESS_LOG_LEVEL"},
		},
	}
}

func main() {
	// Values from .env fill in unset variables before flags read them.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "harness",
		Usage:     "run, inspect and exercise WebAssembly components",
		UsageText: "harness [global options] command [command options] [arguments...]",
		Flags:     globalFlags(),
		Commands: []*cli.Command{
			runCommand(),
			inspectCommand(),
			stubsCommand(),
			fixturesCommand(),
			callCommand(),
			serveCommand(),
		},
		Before: setupLogger,
		After: func(c *cli.Context) error {
			_ = logger(c).Sync()
			return nil
		},
		// Commands report failures as cli.Exit errors; main prints them.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func setupLogger(c *cli.Context) error {
	level, err := zapcore.ParseLevel(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if c.Bool("debug") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata["logger"] = l
	return nil
}

func logger(c *cli.Context) *zap.Logger {
	if l, ok := c.App.Metadata["logger"].(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
