package wasi

import (
	"bytes"
	"io"
	"time"

	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/resource"
)

// Version is the interface version the hosts register under. Imports of
// any 0.2.x version up to it resolve to these hosts.
const Version = "0.2.8"

// Config configures the WASI environment of a component.
type Config struct {
	Env    map[string]string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time
	Cwd    string
	Args   []string
}

// WASI holds the host implementations of the preview2 interfaces a
// component can import. Stream and error handles live in the shared host
// table.
type WASI struct {
	ht     *resource.HostTable
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	hosts  []host.Host
}

// New creates a WASI environment over ht. Unset stdout and stderr are
// captured in memory and can be read back with Stdout and Stderr.
func New(ht *resource.HostTable, cfg Config) *WASI {
	w := &WASI{ht: ht}
	if cfg.Stdout == nil {
		w.stdout = &bytes.Buffer{}
		cfg.Stdout = w.stdout
	}
	if cfg.Stderr == nil {
		w.stderr = &bytes.Buffer{}
		cfg.Stderr = w.stderr
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	w.hosts = []host.Host{
		NewStreams(ht),
		NewErrors(ht),
		NewEnvironment(cfg.Env, cfg.Args, cfg.Cwd),
		&Stdio{ht: ht, name: "stdin", r: cfg.Stdin},
		&Stdio{ht: ht, name: "stdout", w: cfg.Stdout},
		&Stdio{ht: ht, name: "stderr", w: cfg.Stderr},
		&Exit{},
		&WallClock{now: cfg.Now},
		&MonotonicClock{start: time.Now()},
		&Random{},
		&InsecureRandom{},
	}
	return w
}

// HostTable returns the table stream handles are allocated in.
func (w *WASI) HostTable() *resource.HostTable {
	return w.ht
}

// Hosts returns every interface host.
func (w *WASI) Hosts() []host.Host {
	return w.hosts
}

// Imports returns the import table of all WASI interfaces.
func (w *WASI) Imports() host.Imports {
	imps := make(host.Imports, len(w.hosts))
	for _, h := range w.hosts {
		imps.Add(h)
	}
	return imps
}

// Stdout returns what the guest wrote to stdout when no writer was
// configured.
func (w *WASI) Stdout() []byte {
	if w.stdout == nil {
		return nil
	}
	return w.stdout.Bytes()
}

// Stderr returns what the guest wrote to stderr when no writer was
// configured.
func (w *WASI) Stderr() []byte {
	if w.stderr == nil {
		return nil
	}
	return w.stderr.Bytes()
}
