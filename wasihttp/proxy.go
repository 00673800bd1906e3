package wasihttp

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/component-harness/errors"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/linker"
	"github.com/wippyai/component-harness/resource"
	"github.com/wippyai/component-harness/wasi"
)

// IncomingHandler is the unversioned name of the handler interface.
const IncomingHandler = "wasi:http/incoming-handler"

// Imports returns the host import table a proxy component needs: the
// wasi:http/types host plus every WASI host over the same table.
func Imports(ht *resource.HostTable, cfg wasi.Config) host.Imports {
	imps := wasi.New(ht, cfg).Imports()
	imps.Add(NewTypes(ht))
	return imps
}

// Proxy serves HTTP requests through a component exporting
// wasi:http/incoming-handler.
type Proxy struct {
	handle *linker.Func
	ht     *resource.HostTable
	logger *zap.Logger
}

// NewProxy finds the handle export of inst.
func NewProxy(inst *linker.Instance) (*Proxy, error) {
	for _, path := range inst.Exports() {
		iface, fn, ok := strings.Cut(path, "#")
		if !ok || fn != "handle" {
			continue
		}
		if base, _ := host.SplitVersion(iface); base != IncomingHandler {
			continue
		}
		f, _ := inst.Func(path)
		return &Proxy{handle: f, ht: inst.HostTable(), logger: Logger()}, nil
	}
	return nil, errors.NotFound(errors.PhaseLink, "export", IncomingHandler+"#handle")
}

// WithLogger returns a copy of p logging to l.
func (p *Proxy) WithLogger(l *zap.Logger) *Proxy {
	cp := *p
	cp.logger = l
	return &cp
}

// Handle calls the guest's handle with existing host handles. Both must
// name live entries of the expected type; otherwise Handle fails before
// entering the guest.
func (p *Proxy) Handle(ctx context.Context, req, out resource.Handle) error {
	if _, err := p.ht.GetTyped(req, TypeIncomingRequest); err != nil {
		return errors.InvalidHandle(errors.PhaseCall, uint32(req), "incoming-request: "+err.Error())
	}
	if _, err := p.ht.GetTyped(out, TypeResponseOutparam); err != nil {
		return errors.InvalidHandle(errors.PhaseCall, uint32(out), "response-outparam: "+err.Error())
	}
	_, err := p.handle.Call(ctx, req, out)
	return err
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in := NewIncomingRequest(r)
	outparam := &ResponseOutparam{}

	req, err := p.ht.Insert(TypeIncomingRequest, in)
	if err != nil {
		p.fail(w, r, "insert request", err)
		return
	}
	defer p.ht.RemoveValue(req, in)
	out, err := p.ht.Insert(TypeResponseOutparam, outparam)
	if err != nil {
		p.fail(w, r, "insert outparam", err)
		return
	}
	defer p.ht.RemoveValue(out, outparam)

	if err := p.Handle(ctx, req, out); err != nil {
		p.fail(w, r, "handler failed", err)
		return
	}

	resp, code, ok := outparam.Result()
	switch {
	case !ok:
		p.fail(w, r, "handler returned without a response", nil)
		return
	case code != nil:
		p.fail(w, r, "handler set an error code", errors.New(errors.PhaseCall, errors.KindTrap).
			Detail("error-code %s", code).Build())
		return
	}

	for k, vs := range resp.Header() {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status())
	if body := resp.Body(); len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			p.logger.Debug("write response body", zap.Error(err))
		}
	}
	p.logger.Debug("request served",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", resp.Status()))
}

func (p *Proxy) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	p.logger.Warn(msg,
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

var _ http.Handler = (*Proxy)(nil)
