// Package engine wraps wazero for the component linker.
//
// An Engine owns one wazero runtime. Every core instance of every component
// it runs lives in that runtime under a unique module name. Core modules keep
// their original import names; Instantiate resolves them through an explicit
// map from import module name to instance:
//
//	eng, _ := engine.New(ctx, &engine.Config{MemoryLimitPages: 256})
//	cm, _ := eng.Compile(ctx, coreModule) // cached by content hash
//	mod, _ := eng.Instantiate(ctx, cm, engine.UniqueName("core"), imports)
//
// Host functions are exposed by building host modules with InstantiateHost.
// The import map only holds guest instances; a host module is imported by
// its own unique name and found in the runtime namespace.
// Memory and Realloc adapt a guest's memory and cabi_realloc export to the
// harness.Memory and harness.Allocator interfaces used by the abi package.
//
// The package logs through zap and is silent unless SetLogger is called.
package engine
