package wasihttp

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/resource"
	"github.com/wippyai/component-harness/wasi"
)

// TypesNamespace is the wasi:http/types version the host registers.
// Component imports of any earlier 0.2.x version resolve to it.
const TypesNamespace = "wasi:http/types@0.2.8"

// Host table type names of the wasi:http/types resources.
const (
	TypeFields           = "wasi:http/types#fields"
	TypeIncomingRequest  = "wasi:http/types#incoming-request"
	TypeIncomingBody     = "wasi:http/types#incoming-body"
	TypeOutgoingResponse = "wasi:http/types#outgoing-response"
	TypeOutgoingBody     = "wasi:http/types#outgoing-body"
	TypeResponseOutparam = "wasi:http/types#response-outparam"
)

// IncomingRequest is the host value behind an incoming-request handle.
type IncomingRequest struct {
	req      *http.Request
	headers  *Fields
	mu       sync.Mutex
	consumed bool
}

// NewIncomingRequest wraps r. The headers are frozen at creation.
func NewIncomingRequest(r *http.Request) *IncomingRequest {
	return &IncomingRequest{req: r, headers: NewFields(r.Header).freeze()}
}

// OutgoingBody is the host value behind an outgoing-body handle. The body
// is buffered until the response is written.
type OutgoingBody struct {
	stream   *wasi.OutputStream
	buf      bytes.Buffer
	mu       sync.Mutex
	written  bool
	finished bool
}

// Bytes returns what the guest has written so far.
func (b *OutgoingBody) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}

// lockedWriter serializes stream writes with Bytes.
type lockedWriter struct{ b *OutgoingBody }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	if w.b.finished {
		return 0, wasi.ErrStreamClosed
	}
	return w.b.buf.Write(p)
}

// OutgoingResponse is the host value behind an outgoing-response handle.
type OutgoingResponse struct {
	headers *Fields
	body    *OutgoingBody
	mu      sync.Mutex
	status  uint16
}

// Status returns the status code, 200 unless the guest set another.
func (r *OutgoingResponse) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.status)
}

// Header returns the response headers.
func (r *OutgoingResponse) Header() http.Header {
	return r.headers.Header()
}

// Body returns the buffered body, nil when the guest never asked for one.
func (r *OutgoingResponse) Body() []byte {
	r.mu.Lock()
	b := r.body
	r.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Bytes()
}

// ResponseOutparam is the host value behind a response-outparam handle.
// The guest sets it exactly once with a response or an error-code.
type ResponseOutparam struct {
	response *OutgoingResponse
	err      *abi.Variant
	mu       sync.Mutex
	set      bool
}

// Result returns what the guest set. ok is false when it set nothing.
func (p *ResponseOutparam) Result() (resp *OutgoingResponse, errCode *abi.Variant, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.response, p.err, p.set
}

// Types implements wasi:http/types for the proxy world.
type Types struct {
	ht *resource.HostTable
}

// NewTypes creates the types host over ht.
func NewTypes(ht *resource.HostTable) *Types {
	return &Types{ht: ht}
}

func (h *Types) Namespace() string {
	return TypesNamespace
}

// take removes an owned handle passed back by the guest.
func take[T any](ht *resource.HostTable, hd resource.Handle, typ string) (T, error) {
	v, err := resource.Lookup[T](ht, hd, typ)
	if err != nil {
		return v, err
	}
	ht.Remove(hd)
	return v, nil
}

func (h *Types) fields(self resource.Handle) (*Fields, error) {
	return resource.Lookup[*Fields](h.ht, self, TypeFields)
}

// NewFields implements [constructor]fields.
func (h *Types) NewFields(_ context.Context) (resource.Handle, error) {
	return h.ht.Insert(TypeFields, &Fields{})
}

// FieldsFromList implements [static]fields.from-list.
func (h *Types) FieldsFromList(_ context.Context, entries []abi.Tuple) (abi.Result, error) {
	f := &Fields{}
	for i, e := range entries {
		if len(e) != 2 {
			return abi.Result{}, fmt.Errorf("fields.from-list: entry %d has %d elements", i, len(e))
		}
		name, ok1 := e[0].(string)
		value, ok2 := e[1].([]byte)
		if !ok1 || !ok2 {
			return abi.Result{}, fmt.Errorf("fields.from-list: malformed entry %d", i)
		}
		if res := f.Append(name, value); res.IsErr {
			return res, nil
		}
	}
	hd, err := h.ht.Insert(TypeFields, f)
	if err != nil {
		return abi.Result{}, err
	}
	return abi.Ok(hd), nil
}

func (h *Types) FieldsGet(_ context.Context, self resource.Handle, name string) ([][]byte, error) {
	f, err := h.fields(self)
	if err != nil {
		return nil, err
	}
	return f.Get(name), nil
}

func (h *Types) FieldsHas(_ context.Context, self resource.Handle, name string) (bool, error) {
	f, err := h.fields(self)
	if err != nil {
		return false, err
	}
	return f.Has(name), nil
}

func (h *Types) FieldsSet(_ context.Context, self resource.Handle, name string, values [][]byte) (abi.Result, error) {
	f, err := h.fields(self)
	if err != nil {
		return abi.Result{}, err
	}
	return f.Set(name, values), nil
}

func (h *Types) FieldsDelete(_ context.Context, self resource.Handle, name string) (abi.Result, error) {
	f, err := h.fields(self)
	if err != nil {
		return abi.Result{}, err
	}
	return f.Delete(name), nil
}

func (h *Types) FieldsAppend(_ context.Context, self resource.Handle, name string, value []byte) (abi.Result, error) {
	f, err := h.fields(self)
	if err != nil {
		return abi.Result{}, err
	}
	return f.Append(name, value), nil
}

func (h *Types) FieldsEntries(_ context.Context, self resource.Handle) ([]abi.Tuple, error) {
	f, err := h.fields(self)
	if err != nil {
		return nil, err
	}
	return f.Entries(), nil
}

func (h *Types) FieldsClone(_ context.Context, self resource.Handle) (resource.Handle, error) {
	f, err := h.fields(self)
	if err != nil {
		return 0, err
	}
	return h.ht.Insert(TypeFields, f.Clone())
}

func (h *Types) request(self resource.Handle) (*IncomingRequest, error) {
	return resource.Lookup[*IncomingRequest](h.ht, self, TypeIncomingRequest)
}

var methods = map[string]string{
	http.MethodGet:     "get",
	http.MethodHead:    "head",
	http.MethodPost:    "post",
	http.MethodPut:     "put",
	http.MethodDelete:  "delete",
	http.MethodConnect: "connect",
	http.MethodOptions: "options",
	http.MethodTrace:   "trace",
	http.MethodPatch:   "patch",
}

// RequestMethod implements [method]incoming-request.method.
func (h *Types) RequestMethod(_ context.Context, self resource.Handle) (abi.Variant, error) {
	r, err := h.request(self)
	if err != nil {
		return abi.Variant{}, err
	}
	if c, ok := methods[strings.ToUpper(r.req.Method)]; ok {
		return abi.Variant{Case: c}, nil
	}
	return abi.Variant{Case: "other", Value: r.req.Method}, nil
}

func (h *Types) RequestPathWithQuery(_ context.Context, self resource.Handle) (*string, error) {
	r, err := h.request(self)
	if err != nil {
		return nil, err
	}
	if r.req.URL == nil {
		return nil, nil
	}
	p := r.req.URL.RequestURI()
	return &p, nil
}

func (h *Types) RequestScheme(_ context.Context, self resource.Handle) (abi.Option, error) {
	r, err := h.request(self)
	if err != nil {
		return abi.Option{}, err
	}
	switch {
	case r.req.TLS != nil:
		return abi.Some(abi.Variant{Case: "HTTPS"}), nil
	case r.req.URL != nil && r.req.URL.Scheme != "" && r.req.URL.Scheme != "http":
		return abi.Some(abi.Variant{Case: "other", Value: r.req.URL.Scheme}), nil
	}
	return abi.Some(abi.Variant{Case: "HTTP"}), nil
}

func (h *Types) RequestAuthority(_ context.Context, self resource.Handle) (*string, error) {
	r, err := h.request(self)
	if err != nil {
		return nil, err
	}
	if r.req.Host == "" {
		return nil, nil
	}
	a := r.req.Host
	return &a, nil
}

// RequestHeaders returns a new handle on the request's immutable headers.
func (h *Types) RequestHeaders(_ context.Context, self resource.Handle) (resource.Handle, error) {
	r, err := h.request(self)
	if err != nil {
		return 0, err
	}
	return h.ht.Insert(TypeFields, r.headers)
}

// RequestConsume hands out the request body once.
func (h *Types) RequestConsume(_ context.Context, self resource.Handle) (abi.Result, error) {
	r, err := h.request(self)
	if err != nil {
		return abi.Result{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumed {
		return abi.Err(nil), nil
	}
	r.consumed = true
	hd, err := h.ht.Insert(TypeIncomingBody, wasi.NewInputStream(r.req.Body))
	if err != nil {
		return abi.Result{}, err
	}
	return abi.Ok(hd), nil
}

// BodyStream implements [method]incoming-body.stream. The body itself is
// the stream, so the handle is a second reference to the same reader.
func (h *Types) BodyStream(_ context.Context, self resource.Handle) (abi.Result, error) {
	in, err := resource.Lookup[*wasi.InputStream](h.ht, self, TypeIncomingBody)
	if err != nil {
		return abi.Result{}, err
	}
	hd, err := h.ht.Insert(wasi.TypeInputStream, in)
	if err != nil {
		return abi.Result{}, err
	}
	return abi.Ok(hd), nil
}

func (h *Types) response(self resource.Handle) (*OutgoingResponse, error) {
	return resource.Lookup[*OutgoingResponse](h.ht, self, TypeOutgoingResponse)
}

// NewOutgoingResponse implements [constructor]outgoing-response and takes
// ownership of the headers.
func (h *Types) NewOutgoingResponse(_ context.Context, headers resource.Handle) (resource.Handle, error) {
	f, err := take[*Fields](h.ht, headers, TypeFields)
	if err != nil {
		return 0, err
	}
	return h.ht.Insert(TypeOutgoingResponse, &OutgoingResponse{headers: f.freeze(), status: http.StatusOK})
}

func (h *Types) ResponseStatusCode(_ context.Context, self resource.Handle) (uint16, error) {
	r, err := h.response(self)
	if err != nil {
		return 0, err
	}
	return uint16(r.Status()), nil
}

// ResponseSetStatusCode rejects codes outside 100..999.
func (h *Types) ResponseSetStatusCode(_ context.Context, self resource.Handle, code uint16) (abi.Result, error) {
	r, err := h.response(self)
	if err != nil {
		return abi.Result{}, err
	}
	if code < 100 || code > 999 {
		return abi.Err(nil), nil
	}
	r.mu.Lock()
	r.status = code
	r.mu.Unlock()
	return abi.Ok(nil), nil
}

func (h *Types) ResponseHeaders(_ context.Context, self resource.Handle) (resource.Handle, error) {
	r, err := h.response(self)
	if err != nil {
		return 0, err
	}
	return h.ht.Insert(TypeFields, r.headers)
}

// ResponseBody hands out the response body once.
func (h *Types) ResponseBody(_ context.Context, self resource.Handle) (abi.Result, error) {
	r, err := h.response(self)
	if err != nil {
		return abi.Result{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.body != nil {
		return abi.Err(nil), nil
	}
	r.body = &OutgoingBody{}
	hd, err := h.ht.Insert(TypeOutgoingBody, r.body)
	if err != nil {
		return abi.Result{}, err
	}
	return abi.Ok(hd), nil
}

// BodyWrite hands out the body's output stream once.
func (h *Types) BodyWrite(_ context.Context, self resource.Handle) (abi.Result, error) {
	b, err := resource.Lookup[*OutgoingBody](h.ht, self, TypeOutgoingBody)
	if err != nil {
		return abi.Result{}, err
	}
	b.mu.Lock()
	if b.written {
		b.mu.Unlock()
		return abi.Err(nil), nil
	}
	b.written = true
	b.stream = wasi.NewOutputStream(lockedWriter{b: b})
	b.mu.Unlock()

	hd, err := h.ht.Insert(wasi.TypeOutputStream, b.stream)
	if err != nil {
		return abi.Result{}, err
	}
	return abi.Ok(hd), nil
}

// BodyFinish implements [static]outgoing-body.finish. Trailers are
// accepted and discarded.
func (h *Types) BodyFinish(_ context.Context, this resource.Handle, trailers abi.Option) (abi.Result, error) {
	b, err := take[*OutgoingBody](h.ht, this, TypeOutgoingBody)
	if err != nil {
		return abi.Result{}, err
	}
	if trailers.IsSome {
		if th, ok := trailers.Value.(resource.Handle); ok {
			h.ht.Remove(th)
		}
	}
	b.mu.Lock()
	b.finished = true
	stream := b.stream
	b.mu.Unlock()
	if stream != nil {
		stream.Close()
	}
	return abi.Ok(nil), nil
}

// OutparamSet implements [static]response-outparam.set. Setting an
// outparam twice traps.
func (h *Types) OutparamSet(_ context.Context, param resource.Handle, response abi.Result) error {
	p, err := take[*ResponseOutparam](h.ht, param, TypeResponseOutparam)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.set {
		return fmt.Errorf("response-outparam.set: outparam already set")
	}
	p.set = true
	if response.IsErr {
		code, _ := response.Value.(abi.Variant)
		p.err = &code
		return nil
	}
	rh, ok := response.Value.(resource.Handle)
	if !ok {
		return fmt.Errorf("response-outparam.set: response is %T", response.Value)
	}
	p.response, err = take[*OutgoingResponse](h.ht, rh, TypeOutgoingResponse)
	return err
}

func (h *Types) Register() map[string]any {
	return map[string]any{
		"[constructor]fields":      h.NewFields,
		"[static]fields.from-list": h.FieldsFromList,
		"[method]fields.get":       h.FieldsGet,
		"[method]fields.has":       h.FieldsHas,
		"[method]fields.set":       h.FieldsSet,
		"[method]fields.delete":    h.FieldsDelete,
		"[method]fields.append":    h.FieldsAppend,
		"[method]fields.entries":   h.FieldsEntries,
		"[method]fields.clone":     h.FieldsClone,

		"[method]incoming-request.method":          h.RequestMethod,
		"[method]incoming-request.path-with-query": h.RequestPathWithQuery,
		"[method]incoming-request.scheme":          h.RequestScheme,
		"[method]incoming-request.authority":       h.RequestAuthority,
		"[method]incoming-request.headers":         h.RequestHeaders,
		"[method]incoming-request.consume":         h.RequestConsume,
		"[method]incoming-body.stream":             h.BodyStream,

		"[constructor]outgoing-response":            h.NewOutgoingResponse,
		"[method]outgoing-response.status-code":     h.ResponseStatusCode,
		"[method]outgoing-response.set-status-code": h.ResponseSetStatusCode,
		"[method]outgoing-response.headers":         h.ResponseHeaders,
		"[method]outgoing-response.body":            h.ResponseBody,
		"[method]outgoing-body.write":               h.BodyWrite,
		"[static]outgoing-body.finish":              h.BodyFinish,
		"[static]response-outparam.set":             h.OutparamSet,
	}
}
