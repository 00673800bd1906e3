// Package wasi implements the WASI preview2 host interfaces a harness
// component commonly imports: wasi:io streams and errors, wasi:cli
// environment, stdio and exit, wasi:clocks and wasi:random.
//
// Resource values live in a resource.HostTable shared with the linker, so
// streams created here can be handed to other hosts such as wasihttp.
//
//	w := wasi.New(rt.HostTable(), wasi.Config{Args: []string{"app"}})
//	inst, err := mod.Instantiate(ctx, w.Imports())
//
// Pollables are not provided; the subscribe functions of streams and
// clocks are absent and components importing them fail to link with a
// missing import error.
package wasi
