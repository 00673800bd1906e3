// Package harness hosts WebAssembly Component Model binaries from Go and
// runs conformance scenarios against them.
//
// # Architecture Overview
//
//	harness/          Root package with Memory and Allocator interfaces
//	├── runtime/      Loading, sync and async instantiation
//	├── linker/       Component instantiation, canon lift/lower trampolines
//	├── engine/       wazero integration (compile cache, memory adapters)
//	├── component/    Component binary decoder and encoder
//	├── abi/          Canonical ABI layout, string codecs, lift/lower
//	├── host/         Host import tables and Go function adapters
//	├── resource/     Resource handle tables
//	├── wasm/         Core module binary plumbing and builder
//	├── wasi/         WASI preview2 hosts (io, cli, clocks, random)
//	├── wasihttp/     wasi:http proxy surface (types host, incoming handler)
//	├── stubgen/      TypeScript declaration stubs for components
//	├── fixtures/     Programmatically built scenario components
//	├── conformance/  Scenario runner and built-in scenarios
//	├── errors/       Structured error types
//	└── cmd/harness/  CLI: run scenarios, inspect, stubs, call, serve
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx, host.Imports{
//	    "test:strings/imports": host.Interface{
//	        "takeBasic":     func(s string) {},
//	        "returnUnicode": func() string { return "🚀🚀🚀 𠈄𓀀" },
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	out, err := inst.Call(ctx, "roundtrip", "str")
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. An Instance serializes
// its calls; re-entering an instance from one of its own host imports
// fails with a reentrance error.
package harness
