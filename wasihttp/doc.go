// Package wasihttp hosts components that target the wasi:http proxy world.
//
// Types implements the subset of wasi:http/types a request handler uses:
// fields, incoming-request, incoming-body, outgoing-response,
// outgoing-body and response-outparam. Proxy adapts a component's
// wasi:http/incoming-handler export to net/http:
//
//	rt, _ := runtime.New(ctx)
//	mod, _ := rt.Load(ctx, bin)
//	inst, _ := mod.Instantiate(ctx, wasihttp.Imports(rt.HostTable(), wasi.Config{}))
//	proxy, _ := wasihttp.NewProxy(inst)
//	http.ListenAndServe(":8080", proxy)
//
// Response bodies are buffered and written after the handler returns.
package wasihttp
