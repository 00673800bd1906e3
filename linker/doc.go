// Package linker implements WebAssembly Component Model instantiation.
//
// # Main Types
//
//   - Linker: compiles components on an engine
//   - InstancePre: compiled component ready for instantiation
//   - Instance: running component with callable exports
//   - World: typed import/export surface, see Describe
//
// # Instantiation
//
// The component's sections are processed in binary order, building the
// core and component index spaces as they appear. Core modules keep their
// import module names; each core instantiation resolves them to the
// instances named by its arguments. Bags of core exports become small
// generated forwarder modules. Lowered host functions and resource
// built-ins are host modules exporting a single function "f".
//
// Host imports are resolved up front: when any are missing the error is a
// *errors.MissingImportsError listing all of them and no guest code runs.
//
// # Thread Safety
//
// Linker and InstancePre are safe for concurrent use. Calls into one
// Instance are serialized; a call that re-enters an instance already on
// the call stack fails with a reentrance trap.
//
// # Example
//
//	l := linker.New(eng, linker.Options{})
//	pre, _ := l.Prepare(ctx, comp)
//	inst, _ := pre.NewInstance(ctx, imports)
//	defer inst.Close(ctx)
//	result, _ := inst.Call(ctx, "strings#roundtrip", "hello")
package linker
