// Package fixtures builds the component binaries the conformance
// scenarios run against. Everything is assembled with the component and
// wasm builders, so no external toolchain is needed.
package fixtures

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/wippyai/component-harness/abi"
)

// Fixture names, as written by Write without the .wasm extension.
const (
	StringsSync    = "strings.sync"
	DummyProxyName = "dummy_proxy"
	StringsUTF16   = "strings.utf16"
	StringsCompact = "strings.latin1-utf16"
	wasmFileExt    = ".wasm"
)

var builders = map[string]func() ([]byte, error){
	StringsSync:    func() ([]byte, error) { return Strings(abi.UTF8) },
	StringsUTF16:   func() ([]byte, error) { return Strings(abi.UTF16) },
	StringsCompact: func() ([]byte, error) { return Strings(abi.Latin1UTF16) },
	DummyProxyName: DummyProxy,
}

// Names lists every fixture in sorted order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build returns the binary of the named fixture.
func Build(name string) ([]byte, error) {
	b, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown fixture %q", name)
	}
	return b()
}

// All builds every fixture, keyed by name. The result plugs into
// runtime.BytesLoader.
func All() (map[string][]byte, error) {
	out := make(map[string][]byte, len(builders))
	for name, b := range builders {
		bin, err := b()
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		out[name] = bin
	}
	return out, nil
}

// Write emits every fixture into dir as <name>.wasm and returns the paths
// written.
func Write(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	bins, err := All()
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, name := range Names() {
		path := filepath.Join(dir, name+wasmFileExt)
		if err := os.WriteFile(path, bins[name], 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
