package wasi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/resource"
)

// Host table type names of the wasi:io resources.
const (
	TypeInputStream  = "wasi:io/streams#input-stream"
	TypeOutputStream = "wasi:io/streams#output-stream"
	TypeError        = "wasi:io/error#error"
)

// MaxReadSize caps a single read or write-zeroes request.
const MaxReadSize = 1 << 20

// writeBudget is what check-write reports as writable.
const writeBudget = 64 << 10

// ErrStreamClosed reports an operation on a closed or exhausted stream.
var ErrStreamClosed = errors.New("stream closed")

// OutputStream is the host value behind an output-stream handle.
type OutputStream struct {
	w      io.Writer
	mu     sync.Mutex
	closed bool
}

// NewOutputStream returns a stream writing to w.
func NewOutputStream(w io.Writer) *OutputStream {
	return &OutputStream{w: w}
}

func (s *OutputStream) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.w == nil {
		return ErrStreamClosed
	}
	_, err := s.w.Write(p)
	return err
}

// Flush flushes writers with a Flush method, such as bufio.Writer.
func (s *OutputStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close makes every later operation fail with ErrStreamClosed.
func (s *OutputStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *OutputStream) checkWrite() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.w == nil {
		return 0, ErrStreamClosed
	}
	return writeBudget, nil
}

// InputStream is the host value behind an input-stream handle.
type InputStream struct {
	r  io.Reader
	mu sync.Mutex
}

// NewInputStream returns a stream reading from r. A nil reader is an
// empty stream.
func NewInputStream(r io.Reader) *InputStream {
	return &InputStream{r: r}
}

// Read returns up to n bytes. The end of the underlying reader is
// reported as ErrStreamClosed once no bytes remain.
func (s *InputStream) Read(n uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.r == nil {
		return nil, ErrStreamClosed
	}
	if n > MaxReadSize {
		n = MaxReadSize
	}
	buf := make([]byte, n)
	got, err := s.r.Read(buf)
	if got > 0 {
		return buf[:got], nil
	}
	if err == io.EOF {
		return nil, ErrStreamClosed
	}
	return nil, err
}

// IOError is the host value behind a wasi:io/error handle.
type IOError struct {
	err error
}

func (e *IOError) Error() string { return e.err.Error() }

func (e *IOError) Unwrap() error { return e.err }

// Streams implements wasi:io/streams over the host table.
type Streams struct {
	ht *resource.HostTable
}

// NewStreams creates the streams host.
func NewStreams(ht *resource.HostTable) *Streams {
	return &Streams{ht: ht}
}

func (h *Streams) Namespace() string {
	return "wasi:io/streams@" + Version
}

// streamError maps a Go error to stream-error: closed for exhausted
// streams, last-operation-failed with an error resource otherwise.
func (h *Streams) streamError(err error) abi.Result {
	if errors.Is(err, ErrStreamClosed) {
		return abi.Err(abi.Variant{Case: "closed"})
	}
	eh, insErr := h.ht.Insert(TypeError, &IOError{err: err})
	if insErr != nil {
		return abi.Err(abi.Variant{Case: "closed"})
	}
	return abi.Err(abi.Variant{Case: "last-operation-failed", Value: eh})
}

func (h *Streams) input(self resource.Handle) (*InputStream, error) {
	return resource.Lookup[*InputStream](h.ht, self, TypeInputStream)
}

func (h *Streams) output(self resource.Handle) (*OutputStream, error) {
	return resource.Lookup[*OutputStream](h.ht, self, TypeOutputStream)
}

// Read implements [method]input-stream.read.
func (h *Streams) Read(_ context.Context, self resource.Handle, n uint64) (abi.Result, error) {
	s, err := h.input(self)
	if err != nil {
		return abi.Result{}, err
	}
	data, err := s.Read(n)
	if err != nil {
		return h.streamError(err), nil
	}
	return abi.Ok(data), nil
}

// Skip implements [method]input-stream.skip.
func (h *Streams) Skip(ctx context.Context, self resource.Handle, n uint64) (abi.Result, error) {
	res, err := h.Read(ctx, self, n)
	if err != nil || res.IsErr {
		return res, err
	}
	return abi.Ok(uint64(len(res.Value.([]byte)))), nil
}

// CheckWrite implements [method]output-stream.check-write.
func (h *Streams) CheckWrite(_ context.Context, self resource.Handle) (abi.Result, error) {
	s, err := h.output(self)
	if err != nil {
		return abi.Result{}, err
	}
	n, err := s.checkWrite()
	if err != nil {
		return h.streamError(err), nil
	}
	return abi.Ok(n), nil
}

// Write implements [method]output-stream.write.
func (h *Streams) Write(_ context.Context, self resource.Handle, contents []byte) (abi.Result, error) {
	s, err := h.output(self)
	if err != nil {
		return abi.Result{}, err
	}
	if err := s.Write(contents); err != nil {
		return h.streamError(err), nil
	}
	return abi.Ok(nil), nil
}

// BlockingWriteAndFlush implements [method]output-stream.blocking-write-and-flush.
func (h *Streams) BlockingWriteAndFlush(_ context.Context, self resource.Handle, contents []byte) (abi.Result, error) {
	s, err := h.output(self)
	if err != nil {
		return abi.Result{}, err
	}
	if err := s.Write(contents); err != nil {
		return h.streamError(err), nil
	}
	if err := s.Flush(); err != nil {
		return h.streamError(err), nil
	}
	return abi.Ok(nil), nil
}

// Flush implements [method]output-stream.flush.
func (h *Streams) Flush(_ context.Context, self resource.Handle) (abi.Result, error) {
	s, err := h.output(self)
	if err != nil {
		return abi.Result{}, err
	}
	if err := s.Flush(); err != nil {
		return h.streamError(err), nil
	}
	return abi.Ok(nil), nil
}

// WriteZeroes implements [method]output-stream.write-zeroes.
func (h *Streams) WriteZeroes(ctx context.Context, self resource.Handle, n uint64) (abi.Result, error) {
	if n > MaxReadSize {
		return h.streamError(fmt.Errorf("write-zeroes of %d bytes exceeds %d", n, MaxReadSize)), nil
	}
	return h.Write(ctx, self, make([]byte, n))
}

// Splice implements [method]output-stream.splice.
func (h *Streams) Splice(_ context.Context, self, src resource.Handle, n uint64) (abi.Result, error) {
	dst, err := h.output(self)
	if err != nil {
		return abi.Result{}, err
	}
	in, err := h.input(src)
	if err != nil {
		return abi.Result{}, err
	}
	data, err := in.Read(n)
	if err != nil {
		return h.streamError(err), nil
	}
	if err := dst.Write(data); err != nil {
		return h.streamError(err), nil
	}
	return abi.Ok(uint64(len(data))), nil
}

func (h *Streams) Register() map[string]any {
	return map[string]any{
		"[method]input-stream.read":                             h.Read,
		"[method]input-stream.blocking-read":                    h.Read,
		"[method]input-stream.skip":                             h.Skip,
		"[method]input-stream.blocking-skip":                    h.Skip,
		"[method]output-stream.check-write":                     h.CheckWrite,
		"[method]output-stream.write":                           h.Write,
		"[method]output-stream.blocking-write-and-flush":        h.BlockingWriteAndFlush,
		"[method]output-stream.flush":                           h.Flush,
		"[method]output-stream.blocking-flush":                  h.Flush,
		"[method]output-stream.write-zeroes":                    h.WriteZeroes,
		"[method]output-stream.blocking-write-zeroes-and-flush": h.WriteZeroes,
		"[method]output-stream.splice":                          h.Splice,
		"[method]output-stream.blocking-splice":                 h.Splice,
	}
}

// Errors implements wasi:io/error.
type Errors struct {
	ht *resource.HostTable
}

// NewErrors creates the error host.
func NewErrors(ht *resource.HostTable) *Errors {
	return &Errors{ht: ht}
}

func (h *Errors) Namespace() string {
	return "wasi:io/error@" + Version
}

// ToDebugString implements [method]error.to-debug-string.
func (h *Errors) ToDebugString(_ context.Context, self resource.Handle) (string, error) {
	e, err := resource.Lookup[*IOError](h.ht, self, TypeError)
	if err != nil {
		return "", err
	}
	return e.Error(), nil
}

func (h *Errors) Register() map[string]any {
	return map[string]any{
		"[method]error.to-debug-string": h.ToDebugString,
	}
}
