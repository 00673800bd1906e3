// Package runtime provides the high-level API for running components.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.WithLogger(logger))
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
//	    "my:pkg/api@1.0.0": {
//	        "greet": func(name string) string { return "Hello, " + name },
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	result, err := inst.Call(ctx, "my:pkg/greeter#greet", "World")
//
// # Loaders and Instantiation Modes
//
// InstantiateSync and InstantiateAsync fetch a component by name through a
// Loader (FileLoader, BytesLoader or any func). The async form returns a
// Pending whose Wait yields the instance; core modules are compiled
// concurrently before linking.
//
// # Host Functions
//
// Hosts registered with RegisterHost or RegisterFunc are available to every
// instantiation. Imports passed to Instantiate take precedence over them.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Calls into one instance
// are serialized by the instance.
package runtime
