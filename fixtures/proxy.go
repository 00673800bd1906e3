package fixtures

import (
	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/wasm"
)

// Interfaces of the dummy proxy.
const (
	HTTPTypes       = "wasi:http/types@0.2.0"
	IncomingHandler = "wasi:http/incoming-handler@0.2.0"
)

// DummyStatus is the status code the dummy proxy answers every request with.
const DummyStatus = 204

// httpTypes declares the part of wasi:http/types the dummy proxy uses.
// error-code is reduced to its internal-error case.
func httpTypes() component.InstanceType {
	sub := func(name string) component.Decl {
		return component.ExportDecl{Name: name, Desc: component.ExternDesc{Kind: component.ExternType, Bound: component.BoundSubResource}}
	}
	fn := func(name string, idx uint32) component.Decl {
		return component.ExportDecl{Name: name, Desc: component.ExternDesc{Kind: component.ExternFunc, Index: idx}}
	}
	ti := func(i uint32) component.TypeIndex { return component.TypeIndex(i) }
	return component.InstanceType{Decls: []component.Decl{
		sub("fields"),            // 0
		sub("incoming-request"),  // 1
		sub("outgoing-response"), // 2
		sub("response-outparam"), // 3

		component.TypeDecl{Type: component.OwnType{Type: 0}}, // 4
		component.TypeDecl{Type: component.FuncType{Result: ti(4)}},
		fn("[constructor]fields", 5),

		component.TypeDecl{Type: component.OwnType{Type: 2}}, // 6
		component.TypeDecl{Type: component.FuncType{
			Params: []component.Param{{Name: "headers", Type: ti(4)}},
			Result: ti(6),
		}},
		fn("[constructor]outgoing-response", 7),

		component.TypeDecl{Type: component.BorrowType{Type: 2}}, // 8
		component.TypeDecl{Type: component.ResultType{}},        // 9
		component.TypeDecl{Type: component.FuncType{
			Params: []component.Param{
				{Name: "self", Type: ti(8)},
				{Name: "status-code", Type: component.PrimU16},
			},
			Result: ti(9),
		}},
		fn("[method]outgoing-response.set-status-code", 10),

		component.TypeDecl{Type: component.OwnType{Type: 3}},                     // 11
		component.TypeDecl{Type: component.OptionType{Type: component.PrimString}}, // 12
		component.TypeDecl{Type: component.VariantType{Cases: []component.Case{
			{Name: "internal-error", Type: ti(12)},
		}}}, // 13
		component.ExportDecl{Name: "error-code", Desc: component.ExternDesc{Kind: component.ExternType, Bound: component.BoundEq, Index: 13}}, // 14
		component.TypeDecl{Type: component.ResultType{OK: ti(6), Err: ti(14)}},                                                            // 15
		component.TypeDecl{Type: component.FuncType{
			Params: []component.Param{
				{Name: "param", Type: ti(11)},
				{Name: "response", Type: ti(15)},
			},
		}},
		fn("[static]response-outparam.set", 16),
	}}
}

// proxyModule implements handle(request, response-out): build an empty
// response with DummyStatus, hand it to the outparam and drop the request.
func proxyModule() []byte {
	i32 := wasm.ValI32
	mb := wasm.NewModuleBuilder()
	newFields := mb.ImportFunc("types", "new-fields", wasm.FuncType{Results: []wasm.ValType{i32}})
	newResponse := mb.ImportFunc("types", "new-response", wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}})
	setStatus := mb.ImportFunc("types", "set-status", wasm.FuncType{Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}})
	// param, then result<own<outgoing-response>, error-code> flattened to
	// a discriminant and four joined payload words.
	setOutparam := mb.ImportFunc("types", "set-outparam", wasm.FuncType{Params: []wasm.ValType{i32, i32, i32, i32, i32, i32}})
	dropRequest := mb.ImportFunc("types", "drop-request", wasm.FuncType{Params: []wasm.ValType{i32}})

	code := wasm.NewCode().
		Call(newFields).Call(newResponse).LocalSet(2).
		LocalGet(2).I32Const(DummyStatus).Call(setStatus).Drop().
		LocalGet(1).I32Const(0).LocalGet(2).I32Const(0).I32Const(0).I32Const(0).Call(setOutparam).
		LocalGet(0).Call(dropRequest)
	handle := mb.Func(wasm.FuncType{Params: []wasm.ValType{i32, i32}}, []wasm.ValType{i32}, code)
	mb.Export("handle", wasm.KindFunc, handle)
	return mb.Bytes()
}

// DummyProxy builds a component exporting wasi:http/incoming-handler whose
// handle answers DummyStatus with no headers and no body.
func DummyProxy() ([]byte, error) {
	b := component.NewBuilder()
	types := b.Import(HTTPTypes, component.ExternDesc{Kind: component.ExternInstance, Index: b.Type(httpTypes())})

	request := b.AliasExport(types, component.SortType, "incoming-request")
	outparam := b.AliasExport(types, component.SortType, "response-outparam")

	none := component.CanonOptions{}
	newFields := b.Lower(b.AliasExport(types, component.SortFunc, "[constructor]fields"), none)
	newResponse := b.Lower(b.AliasExport(types, component.SortFunc, "[constructor]outgoing-response"), none)
	setStatus := b.Lower(b.AliasExport(types, component.SortFunc, "[method]outgoing-response.set-status-code"), none)
	setOutparam := b.Lower(b.AliasExport(types, component.SortFunc, "[static]response-outparam.set"), none)

	ownRequest := b.Type(component.OwnType{Type: request})
	ownOutparam := b.Type(component.OwnType{Type: outparam})
	dropRequest := b.ResourceDrop(ownRequest)

	bag := b.CoreFromExports(
		component.CoreInlineExport{Name: "new-fields", Sort: component.CoreSortFunc, Index: newFields},
		component.CoreInlineExport{Name: "new-response", Sort: component.CoreSortFunc, Index: newResponse},
		component.CoreInlineExport{Name: "set-status", Sort: component.CoreSortFunc, Index: setStatus},
		component.CoreInlineExport{Name: "set-outparam", Sort: component.CoreSortFunc, Index: setOutparam},
		component.CoreInlineExport{Name: "drop-request", Sort: component.CoreSortFunc, Index: dropRequest},
	)
	guest := b.CoreInstantiate(b.CoreModule(proxyModule()),
		component.CoreInstantiateArg{Name: "types", Instance: bag})

	handleType := b.Type(component.FuncType{Params: []component.Param{
		{Name: "request", Type: component.TypeIndex(ownRequest)},
		{Name: "response-out", Type: component.TypeIndex(ownOutparam)},
	}})
	handle := b.Lift(b.AliasCoreExport(guest, component.CoreSortFunc, "handle"), handleType, none)

	handler := b.InstanceFromExports(component.InlineExport{
		Name: "handle", Sort: component.ComponentSort(component.SortFunc), Index: handle,
	})
	b.Export(IncomingHandler, component.ComponentSort(component.SortInstance), handler, nil)
	return b.Bytes()
}
