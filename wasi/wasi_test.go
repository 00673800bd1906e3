package wasi

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/resource"
)

func TestEnvironment(t *testing.T) {
	ctx := context.Background()
	h := NewEnvironment(map[string]string{"B": "2", "A": "1"}, []string{"app", "-v"}, "")

	env := h.GetEnvironment(ctx)
	if len(env) != 2 {
		t.Fatalf("expected 2 variables, got %d", len(env))
	}
	if env[0][0] != "A" || env[0][1] != "1" || env[1][0] != "B" {
		t.Errorf("unexpected environment order: %v", env)
	}
	if args := h.GetArguments(ctx); len(args) != 2 || args[1] != "-v" {
		t.Errorf("unexpected args: %v", args)
	}
	if cwd := h.InitialCwd(ctx); cwd == nil || *cwd != "/" {
		t.Errorf("expected default cwd /, got %v", cwd)
	}
}

func TestStdout_WriteAndCapture(t *testing.T) {
	ctx := context.Background()
	ht := resource.NewHostTable()
	w := New(ht, Config{})

	var stdout *Stdio
	for _, hh := range w.Hosts() {
		if s, ok := hh.(*Stdio); ok && s.name == "stdout" {
			stdout = s
		}
	}
	if stdout == nil {
		t.Fatal("no stdout host")
	}
	h, err := stdout.getOutput(ctx)
	if err != nil {
		t.Fatalf("get-stdout: %v", err)
	}
	if typ, _ := ht.TypeOf(h); typ != TypeOutputStream {
		t.Fatalf("expected %s, got %s", TypeOutputStream, typ)
	}

	streams := NewStreams(ht)
	res, err := streams.BlockingWriteAndFlush(ctx, h, []byte("hello"))
	if err != nil || res.IsErr {
		t.Fatalf("write failed: %v %v", res, err)
	}
	if got := string(w.Stdout()); got != "hello" {
		t.Errorf("expected captured stdout %q, got %q", "hello", got)
	}
	if len(w.Stderr()) != 0 {
		t.Errorf("expected empty stderr")
	}
}

func TestStreams_ReadUntilClosed(t *testing.T) {
	ctx := context.Background()
	ht := resource.NewHostTable()
	streams := NewStreams(ht)
	h, _ := ht.Insert(TypeInputStream, NewInputStream(strings.NewReader("abcdef")))

	res, err := streams.Read(ctx, h, 4)
	if err != nil || res.IsErr {
		t.Fatalf("read failed: %v %v", res, err)
	}
	if string(res.Value.([]byte)) != "abcd" {
		t.Errorf("expected abcd, got %q", res.Value)
	}

	res, _ = streams.Skip(ctx, h, 10)
	if res.IsErr || res.Value.(uint64) != 2 {
		t.Errorf("expected skip of 2, got %v", res)
	}

	res, _ = streams.Read(ctx, h, 1)
	if !res.IsErr || res.Value.(abi.Variant).Case != "closed" {
		t.Errorf("expected closed, got %v", res)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestStreams_LastOperationFailed(t *testing.T) {
	ctx := context.Background()
	ht := resource.NewHostTable()
	streams := NewStreams(ht)
	h, _ := ht.Insert(TypeOutputStream, NewOutputStream(failingWriter{}))

	res, err := streams.Write(ctx, h, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	v, ok := res.Value.(abi.Variant)
	if !res.IsErr || !ok || v.Case != "last-operation-failed" {
		t.Fatalf("expected last-operation-failed, got %v", res)
	}

	msg, err := NewErrors(ht).ToDebugString(ctx, v.Value.(resource.Handle))
	if err != nil {
		t.Fatal(err)
	}
	if msg != "disk full" {
		t.Errorf("expected debug string %q, got %q", "disk full", msg)
	}
}

func TestStreams_WrongHandleType(t *testing.T) {
	ht := resource.NewHostTable()
	h, _ := ht.Insert(TypeInputStream, NewInputStream(nil))
	if _, err := NewStreams(ht).Write(context.Background(), h, nil); !errors.Is(err, resource.ErrWrongType) {
		t.Errorf("expected ErrWrongType, got %v", err)
	}
}

func TestOutputStream_Close(t *testing.T) {
	ctx := context.Background()
	ht := resource.NewHostTable()
	s := NewOutputStream(&bytes.Buffer{})
	h, _ := ht.Insert(TypeOutputStream, s)
	s.Close()

	res, _ := NewStreams(ht).CheckWrite(ctx, h)
	if !res.IsErr || res.Value.(abi.Variant).Case != "closed" {
		t.Errorf("expected closed, got %v", res)
	}
}

func TestExit(t *testing.T) {
	var exit *ExitError
	err := (&Exit{}).Exit(context.Background(), abi.Err(nil))
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Errorf("expected exit code 1, got %v", err)
	}
	err = (&Exit{}).Exit(context.Background(), abi.Ok(nil))
	if !errors.As(err, &exit) || exit.Code != 0 {
		t.Errorf("expected exit code 0, got %v", err)
	}
}

func TestClocks(t *testing.T) {
	ctx := context.Background()
	fixed := time.Unix(1700000000, 42)
	wall := &WallClock{now: func() time.Time { return fixed }}
	if dt := wall.Now(ctx); dt.Seconds != 1700000000 || dt.Nanoseconds != 42 {
		t.Errorf("unexpected datetime %+v", dt)
	}

	mono := &MonotonicClock{start: time.Now()}
	a := mono.Now(ctx)
	b := mono.Now(ctx)
	if b < a {
		t.Errorf("monotonic clock went backwards: %d < %d", b, a)
	}
}

func TestRandom(t *testing.T) {
	ctx := context.Background()
	buf, err := (&Random{}).GetRandomBytes(ctx, 32)
	if err != nil || len(buf) != 32 {
		t.Fatalf("expected 32 bytes, got %d (%v)", len(buf), err)
	}
	big, _ := (&Random{}).GetRandomBytes(ctx, MaxRandomBytes+1)
	if len(big) != MaxRandomBytes {
		t.Errorf("expected clamp to %d, got %d", MaxRandomBytes, len(big))
	}
	if n := len((&InsecureRandom{}).GetInsecureRandomBytes(ctx, 8)); n != 8 {
		t.Errorf("expected 8 insecure bytes, got %d", n)
	}
}

func TestImports_Namespaces(t *testing.T) {
	imps := New(resource.NewHostTable(), Config{}).Imports()
	for _, name := range []string{
		"wasi:io/streams@0.2.0",
		"wasi:io/error@0.2.3",
		"wasi:cli/environment@0.2.0",
		"wasi:cli/stdout@0.2.0",
		"wasi:cli/exit@0.2.0",
		"wasi:clocks/wall-clock@0.2.0",
		"wasi:random/random@0.2.0",
	} {
		if _, ok := imps.Resolve(name); !ok {
			t.Errorf("%s does not resolve", name)
		}
	}

	iface, _ := imps.Resolve("wasi:cli/environment@0.2.0")
	for _, fn := range []string{"get-environment", "get-arguments", "initial-cwd"} {
		if _, ok := iface.Lookup(fn); !ok {
			t.Errorf("environment is missing %s", fn)
		}
	}
	streams, _ := imps.Resolve("wasi:io/streams@0.2.0")
	if _, ok := streams.Lookup("[method]output-stream.blocking-write-and-flush"); !ok {
		t.Error("streams is missing blocking-write-and-flush")
	}
	if _, ok := imps.Resolve("wasi:io/streams@0.3.0"); ok {
		t.Error("0.3.0 must not resolve to a 0.2 host")
	}
	var _ host.Host = &Exit{}
}
