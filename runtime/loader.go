package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/wippyai/component-harness/errors"
)

// Loader fetches a component binary by name.
type Loader func(ctx context.Context, name string) ([]byte, error)

// FileLoader loads "<dir>/<name>.wasm". A name that already ends in
// ".wasm" is used as is.
func FileLoader(dir string) Loader {
	return func(ctx context.Context, name string) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.HasSuffix(name, ".wasm") {
			name += ".wasm"
		}
		bin, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NotFound(errors.PhaseLoad, "component", name)
			}
			return nil, errors.Load("read "+name, err)
		}
		return bin, nil
	}
}

// BytesLoader serves binaries from memory.
func BytesLoader(bins map[string][]byte) Loader {
	return func(_ context.Context, name string) ([]byte, error) {
		bin, ok := bins[name]
		if !ok {
			bin, ok = bins[strings.TrimSuffix(name, ".wasm")]
		}
		if !ok {
			return nil, errors.NotFound(errors.PhaseLoad, "component", name)
		}
		return bin, nil
	}
}
