package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/fixtures"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.RunContext(context.Background(), append([]string{"harness"}, args...))
	return out.String(), err
}

func TestConvertArg(t *testing.T) {
	list := "ints"
	tests := []struct {
		typ   wit.Type
		value string
		want  any
	}{
		{wit.String{}, "hello", "hello"},
		{wit.Char{}, "🚀", "🚀"},
		{wit.Bool{}, "true", true},
		{wit.S32{}, "-7", int64(-7)},
		{wit.U64{}, "18446744073709551615", uint64(18446744073709551615)},
		{wit.F32{}, "1.5", 1.5},
		{&wit.TypeDef{Name: &list, Kind: &wit.List{Type: wit.U32{}}}, "[1,2]", []any{1.0, 2.0}},
	}
	for _, tt := range tests {
		got, err := convertArg(tt.value, tt.typ)
		require.NoError(t, err, tt.value)
		assert.Equal(t, tt.want, got, tt.value)
	}

	_, err := convertArg("x", wit.U8{})
	assert.Error(t, err)
	_, err = convertArg("{", &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}})
	assert.Error(t, err)
}

func TestPickEntryPoint(t *testing.T) {
	assert.Equal(t, "run", pickEntryPoint([]string{"a", "run", "main"}))
	assert.Equal(t, "iface#only", pickEntryPoint([]string{"iface#only"}))
	assert.Empty(t, pickEntryPoint([]string{"a", "b"}))
}

func TestWitType(t *testing.T) {
	res := "blob"
	blob := &wit.TypeDef{Name: &res, Kind: &wit.Resource{}}
	tests := []struct {
		typ  wit.Type
		want string
	}{
		{wit.U16{}, "u16"},
		{&wit.TypeDef{Kind: &wit.Option{Type: wit.String{}}}, "option<string>"},
		{&wit.TypeDef{Kind: &wit.Result{OK: wit.U8{}}}, "result<u8>"},
		{&wit.TypeDef{Kind: &wit.Result{}}, "result"},
		{&wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.S8{}, wit.Char{}}}}, "tuple<s8, char>"},
		{&wit.TypeDef{Kind: &wit.Own{Type: blob}}, "blob"},
		{&wit.TypeDef{Kind: &wit.Borrow{Type: blob}}, "borrow<blob>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, witType(tt.typ))
	}
}

func TestApp_Run(t *testing.T) {
	out, err := runApp(t, "run", "--parallel", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "PASS "+fixtures.DummyProxyName)
	assert.Contains(t, out, "PASS "+fixtures.StringsSync)

	out, err = runApp(t, "run", "--instantiation", "sync", fixtures.StringsSync)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 scenarios, 0 failed")

	_, err = runApp(t, "run", "--instantiation", "eager")
	assert.Error(t, err)
	_, err = runApp(t, "run", "no-such-scenario")
	assert.ErrorContains(t, err, "unknown scenario")
}

func TestApp_RunFromDir(t *testing.T) {
	dir := t.TempDir()
	_, err := runApp(t, "fixtures", dir)
	require.NoError(t, err)

	t.Setenv("HARNESS_DIR", dir)
	out, err := runApp(t, "run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 scenarios, 0 failed")

	empty := t.TempDir()
	out, err = runApp(t, "run", "--dir", empty)
	assert.Error(t, err)
	assert.Contains(t, out, "FAIL")
}

func TestApp_InspectAndStubs(t *testing.T) {
	dir := t.TempDir()
	out, err := runApp(t, "fixtures", dir)
	require.NoError(t, err)
	proxy := filepath.Join(dir, fixtures.DummyProxyName+".wasm")
	assert.Contains(t, out, proxy)

	out, err = runApp(t, "inspect", proxy)
	require.NoError(t, err)
	assert.Contains(t, out, "interface wasi:http/incoming-handler@0.2.0")
	assert.Contains(t, out, "handle: func(request: incoming-request, response-out: response-outparam)")
	assert.Contains(t, out, "func       types.new-fields")

	stubs := t.TempDir()
	_, err = runApp(t, "stubs", "--out", stubs, proxy)
	require.NoError(t, err)
	world, err := os.ReadFile(filepath.Join(stubs, "dummy_proxy.d.ts"))
	require.NoError(t, err)
	assert.Contains(t, string(world), "export interface DummyProxyWorld")
	_, err = os.Stat(filepath.Join(stubs, "interfaces", "wasi-http-types.d.ts"))
	assert.NoError(t, err)

	_, err = runApp(t, "inspect")
	assert.Error(t, err)
}

func TestApp_CallMissingExport(t *testing.T) {
	dir := t.TempDir()
	_, err := runApp(t, "fixtures", dir)
	require.NoError(t, err)

	_, err = runApp(t, "call", "--func", "nope", filepath.Join(dir, fixtures.DummyProxyName+".wasm"))
	assert.ErrorContains(t, err, `no export "nope"`)
}
