package conformance

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/component-harness/errors"
)

// AssertionError is a failed assertion of a scenario. It matches
// errors.ErrAssertion.
type AssertionError struct {
	Actual   any
	Expected any
	Scenario string
	Message  string
}

func (e *AssertionError) Error() string {
	if e.Expected == nil && e.Actual == nil {
		return fmt.Sprintf("%s: %s", e.Scenario, e.Message)
	}
	return fmt.Sprintf("%s: %s: expected %#v, got %#v", e.Scenario, e.Message, e.Expected, e.Actual)
}

func (e *AssertionError) Unwrap() error {
	return errors.Assertion("%s", e.Message)
}

// T records the assertions of one scenario run. Host imports may call it
// from inside a guest call, so it is safe for concurrent use.
type T struct {
	logger   *zap.Logger
	scenario string
	failures []error
	checks   int
	mu       sync.Mutex
}

func newT(scenario string, logger *zap.Logger) *T {
	return &T{scenario: scenario, logger: logger}
}

func (t *T) record(err *AssertionError) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checks++
	if err == nil {
		return true
	}
	t.failures = append(t.failures, err)
	t.logger.Debug("assertion failed", zap.String("scenario", t.scenario), zap.Error(err))
	return false
}

// StrictEqual asserts that actual and expected have the same type and
// value.
func (t *T) StrictEqual(actual, expected any, msg string) bool {
	if reflect.DeepEqual(actual, expected) {
		return t.record(nil)
	}
	return t.record(&AssertionError{Scenario: t.scenario, Message: msg, Actual: actual, Expected: expected})
}

// Throws asserts that fn fails.
func (t *T) Throws(fn func() error, msg string) bool {
	if err := fn(); err != nil {
		t.logger.Debug("expected failure", zap.String("scenario", t.scenario), zap.Error(err))
		return t.record(nil)
	}
	return t.record(&AssertionError{Scenario: t.scenario, Message: msg + ": expected an error, call succeeded"})
}

// NoError asserts that err is nil.
func (t *T) NoError(err error, msg string) bool {
	if err == nil {
		return t.record(nil)
	}
	return t.record(&AssertionError{Scenario: t.scenario, Message: msg + ": " + err.Error()})
}

// Failures returns the failed assertions so far.
func (t *T) Failures() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]error(nil), t.failures...)
}

// Checks returns how many assertions ran.
func (t *T) Checks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checks
}

// Failed reports whether any assertion failed.
func (t *T) Failed() bool {
	return len(t.Failures()) > 0
}
