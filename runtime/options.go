package runtime

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/component-harness/errors"
)

// Instantiation selects how InstantiateWith loads components.
type Instantiation string

const (
	// Sync compiles and links on the calling goroutine.
	Sync Instantiation = "sync"
	// Async compiles core modules concurrently and links in the background.
	Async Instantiation = "async"
)

// ParseInstantiation parses "sync" or "async", case-insensitively.
func ParseInstantiation(s string) (Instantiation, error) {
	switch m := Instantiation(strings.ToLower(strings.TrimSpace(s))); m {
	case Sync, Async:
		return m, nil
	}
	return "", errors.InvalidInput(errors.PhaseLoad, "unknown instantiation mode "+s)
}

type config struct {
	logger           *zap.Logger
	mode             Instantiation
	memoryLimitPages uint32
}

func defaultConfig() config {
	return config{mode: Sync}
}

// Option configures a Runtime.
type Option func(*config)

// WithLogger installs l as the engine and linker logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMemoryLimitPages caps the linear memory of every core instance, in
// 64KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *config) { c.memoryLimitPages = pages }
}

// WithInstantiation sets the default instantiation mode.
func WithInstantiation(m Instantiation) Option {
	return func(c *config) { c.mode = m }
}
