package wasihttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/fixtures"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/linker"
	"github.com/wippyai/component-harness/resource"
	"github.com/wippyai/component-harness/runtime"
	"github.com/wippyai/component-harness/wasi"
)

func TestFields(t *testing.T) {
	f := NewFields(http.Header{"Content-Type": {"text/plain"}})

	assert.Equal(t, [][]byte{[]byte("text/plain")}, f.Get("content-type"))
	assert.True(t, f.Has("CONTENT-TYPE"))
	assert.Empty(t, f.Get("x-missing"))
	assert.NotNil(t, f.Get("x-missing"))

	assert.False(t, f.Append("x-a", []byte("1")).IsErr)
	assert.False(t, f.Append("x-a", []byte("2")).IsErr)
	assert.Len(t, f.Get("X-A"), 2)

	assert.False(t, f.Set("x-a", [][]byte{[]byte("3")}).IsErr)
	assert.Equal(t, [][]byte{[]byte("3")}, f.Get("x-a"))

	assert.False(t, f.Delete("x-a").IsErr)
	assert.False(t, f.Has("x-a"))

	entries := f.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "content-type", entries[0][0])
}

func TestFields_Errors(t *testing.T) {
	f := NewFields(nil)

	res := f.Append("bad name", []byte("v"))
	require.True(t, res.IsErr)
	assert.Equal(t, "invalid-syntax", res.Value.(abi.Variant).Case)

	res = f.Append("x-ok", []byte("line\r\nbreak"))
	require.True(t, res.IsErr)
	assert.Equal(t, "invalid-syntax", res.Value.(abi.Variant).Case)

	frozen := f.Clone().freeze()
	res = frozen.Set("x-ok", nil)
	require.True(t, res.IsErr)
	assert.Equal(t, "immutable", res.Value.(abi.Variant).Case)

	clone := frozen.Clone()
	assert.False(t, clone.Append("x-ok", []byte("v")).IsErr, "clones are mutable")
}

func TestTypes_Request(t *testing.T) {
	ctx := context.Background()
	ht := resource.NewHostTable()
	types := NewTypes(ht)

	r := httptest.NewRequest("PROPFIND", "http://example.com/a/b?c=d", strings.NewReader("payload"))
	r.Header.Set("X-Trace", "abc")
	req, err := ht.Insert(TypeIncomingRequest, NewIncomingRequest(r))
	require.NoError(t, err)

	method, err := types.RequestMethod(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, abi.Variant{Case: "other", Value: "PROPFIND"}, method)

	path, err := types.RequestPathWithQuery(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "/a/b?c=d", *path)

	authority, err := types.RequestAuthority(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "example.com", *authority)

	scheme, err := types.RequestScheme(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, abi.Some(abi.Variant{Case: "HTTP"}), scheme)

	hh, err := types.RequestHeaders(ctx, req)
	require.NoError(t, err)
	values, err := types.FieldsGet(ctx, hh, "x-trace")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("abc")}, values)
	res, err := types.FieldsAppend(ctx, hh, "x-more", []byte("1"))
	require.NoError(t, err)
	assert.True(t, res.IsErr, "request headers are immutable")

	body, err := types.RequestConsume(ctx, req)
	require.NoError(t, err)
	require.False(t, body.IsErr)
	again, err := types.RequestConsume(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.IsErr, "a body is consumed once")

	stream, err := types.BodyStream(ctx, body.Value.(resource.Handle))
	require.NoError(t, err)
	read, err := wasi.NewStreams(ht).Read(ctx, stream.Value.(resource.Handle), 64)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), read.Value)
}

func TestTypes_Response(t *testing.T) {
	ctx := context.Background()
	ht := resource.NewHostTable()
	types := NewTypes(ht)

	fields, err := types.NewFields(ctx)
	require.NoError(t, err)
	res, err := types.FieldsSet(ctx, fields, "content-type", [][]byte{[]byte("text/plain")})
	require.NoError(t, err)
	require.False(t, res.IsErr)

	resp, err := types.NewOutgoingResponse(ctx, fields)
	require.NoError(t, err)
	// The response owns its headers. Freed slots are reused, so the stale
	// fields handle now names the response itself.
	assert.Equal(t, fields, resp)
	_, err = types.FieldsGet(ctx, fields, "content-type")
	assert.ErrorIs(t, err, resource.ErrWrongType)

	code, err := types.ResponseStatusCode(ctx, resp)
	require.NoError(t, err)
	assert.Equal(t, uint16(200), code)

	res, err = types.ResponseSetStatusCode(ctx, resp, 42)
	require.NoError(t, err)
	assert.True(t, res.IsErr)
	res, err = types.ResponseSetStatusCode(ctx, resp, 201)
	require.NoError(t, err)
	assert.False(t, res.IsErr)

	body, err := types.ResponseBody(ctx, resp)
	require.NoError(t, err)
	require.False(t, body.IsErr)
	bh := body.Value.(resource.Handle)

	out, err := types.BodyWrite(ctx, bh)
	require.NoError(t, err)
	require.False(t, out.IsErr)
	wrote, err := wasi.NewStreams(ht).BlockingWriteAndFlush(ctx, out.Value.(resource.Handle), []byte("hello"))
	require.NoError(t, err)
	require.False(t, wrote.IsErr)

	fin, err := types.BodyFinish(ctx, bh, abi.None())
	require.NoError(t, err)
	require.False(t, fin.IsErr)

	param := &ResponseOutparam{}
	ph, err := ht.Insert(TypeResponseOutparam, param)
	require.NoError(t, err)
	require.NoError(t, types.OutparamSet(ctx, ph, abi.Ok(resp)))

	got, errCode, ok := param.Result()
	require.True(t, ok)
	assert.Nil(t, errCode)
	assert.Equal(t, 201, got.Status())
	assert.Equal(t, "text/plain", got.Header().Get("Content-Type"))
	assert.Equal(t, []byte("hello"), got.Body())

	assert.Error(t, types.OutparamSet(ctx, ph, abi.Ok(resp)), "the outparam was consumed")
}

func TestTypes_OutparamErrorCode(t *testing.T) {
	ctx := context.Background()
	ht := resource.NewHostTable()
	param := &ResponseOutparam{}
	ph, err := ht.Insert(TypeResponseOutparam, param)
	require.NoError(t, err)

	code := abi.Variant{Case: "internal-error", Value: abi.Some("boom")}
	require.NoError(t, NewTypes(ht).OutparamSet(ctx, ph, abi.Err(code)))

	resp, errCode, ok := param.Result()
	require.True(t, ok)
	assert.Nil(t, resp)
	require.NotNil(t, errCode)
	assert.Equal(t, "internal-error", errCode.Case)
}

func TestImports_Resolve(t *testing.T) {
	imps := Imports(resource.NewHostTable(), wasi.Config{})
	for _, name := range []string{"wasi:http/types@0.2.0", "wasi:io/streams@0.2.0", "wasi:cli/stdout@0.2.0"} {
		_, ok := imps.Resolve(name)
		assert.True(t, ok, name)
	}
	types, _ := imps.Resolve("wasi:http/types@0.2.0")
	_, ok := types.Lookup("[static]response-outparam.set")
	assert.True(t, ok)
}

// proxyInstance instantiates the dummy proxy fixture against the
// runtime's host table.
func proxyInstance(t *testing.T) (*runtime.Runtime, *linker.Instance) {
	t.Helper()
	ctx := context.Background()
	rt, err := runtime.New(ctx, runtime.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	bin, err := fixtures.DummyProxy()
	require.NoError(t, err)
	mod, err := rt.Load(ctx, bin)
	require.NoError(t, err)
	inst, err := mod.Instantiate(ctx, Imports(rt.HostTable(), wasi.Config{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(ctx) })
	return rt, inst
}

func TestProxy_InvalidHandles(t *testing.T) {
	_, inst := proxyInstance(t)
	p, err := NewProxy(inst)
	require.NoError(t, err)

	err = p.Handle(context.Background(), 0, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &errors.Error{Kind: errors.KindInvalidHandle}))
}

func TestProxy_WrongHandleType(t *testing.T) {
	rt, inst := proxyInstance(t)
	p, err := NewProxy(inst)
	require.NoError(t, err)

	out, err := rt.HostTable().Insert(TypeResponseOutparam, &ResponseOutparam{})
	require.NoError(t, err)
	// A valid outparam handle in the request position is still rejected.
	err = p.Handle(context.Background(), out, out)
	assert.True(t, errors.Is(err, &errors.Error{Kind: errors.KindInvalidHandle}))
}

func TestProxy_ServeHTTP(t *testing.T) {
	rt, inst := proxyInstance(t)
	p, err := NewProxy(inst)
	require.NoError(t, err)
	before := rt.HostTable().Len()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		p.WithLogger(zap.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		res := rec.Result()
		body, _ := io.ReadAll(res.Body)
		assert.Equal(t, fixtures.DummyStatus, res.StatusCode)
		assert.Empty(t, body)
	}
	assert.Equal(t, before, rt.HostTable().Len(), "request resources are released")
}

func TestProxy_Server(t *testing.T) {
	_, inst := proxyInstance(t)
	p, err := NewProxy(inst)
	require.NoError(t, err)

	srv := httptest.NewServer(p)
	defer srv.Close()
	res, err := http.Post(srv.URL+"/submit", "text/plain", strings.NewReader("ignored"))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, fixtures.DummyStatus, res.StatusCode)
}

func TestNewProxy_MissingExport(t *testing.T) {
	ctx := context.Background()
	rt, err := runtime.New(ctx)
	require.NoError(t, err)
	defer rt.Close(ctx)

	bin, err := fixtures.Strings(abi.UTF8)
	require.NoError(t, err)
	mod, err := rt.Load(ctx, bin)
	require.NoError(t, err)
	inst, err := mod.Instantiate(ctx, host.Imports{
		fixtures.StringsImports: {
			"take-basic":     func(string) {},
			"return-unicode": func() string { return "" },
		},
	})
	require.NoError(t, err)
	defer inst.Close(ctx)

	_, err = NewProxy(inst)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
