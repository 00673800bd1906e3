package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/wippyai/component-harness/wasihttp"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "serve HTTP through a component exporting wasi:http/incoming-handler",
		ArgsUsage: "<file.wasm>",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "listen on `host:port`",
				Value:   "127.0.0.1:8080",
				EnvVars: []string{"HARNESS_ADDR"},
			},
		}, wasiFlags()...),
		Action: func(c *cli.Context) error {
			log := logger(c)
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close(c.Context)

			mod, path, err := loadModule(c, rt)
			if err != nil {
				return err
			}
			inst, err := mod.Instantiate(c.Context, hostImports(c, rt.HostTable()))
			if err != nil {
				return err
			}
			defer inst.Close(c.Context)

			proxy, err := wasihttp.NewProxy(inst)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              c.String("addr"),
				Handler:           proxy.WithLogger(log),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-c.Context.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()

			log.Info("serving component", zap.String("component", path), zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
