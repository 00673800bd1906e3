// Package component decodes and encodes WebAssembly Component Model binaries.
//
// Decode parses every section of a component into a typed AST, keeping the
// binary section order since index spaces are assigned as sections appear.
// Core modules are kept as raw bytes and nested components are decoded
// recursively. Untrusted input is bounded by maximum name, vector, section
// and nesting limits.
//
// Builder and Encode go the other way and are used to assemble components
// without an external toolchain:
//
//	b := component.NewBuilder()
//	mod := b.CoreModule(core)
//	inst := b.CoreInstantiate(mod)
//	fn := b.AliasCoreExport(inst, component.CoreSortFunc, "run")
//	ft := b.Type(component.FuncType{})
//	b.Export("run", component.ComponentSort(component.SortFunc), b.Lift(fn, ft, component.CanonOptions{}), nil)
//	bin, err := b.Bytes()
package component
