package wasihttp

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the wasihttp package's logger.
// Proxies created after SetLogger log to the new logger.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger configures the wasihttp package's logger. Passing nil restores
// the no-op logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
