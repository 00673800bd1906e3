package wasi

import (
	"context"
	"time"
)

// Datetime is the wall-clock datetime record.
type Datetime struct {
	Seconds     uint64
	Nanoseconds uint32
}

// WallClock implements wasi:clocks/wall-clock.
type WallClock struct {
	now func() time.Time
}

func (h *WallClock) Namespace() string {
	return "wasi:clocks/wall-clock@" + Version
}

func (h *WallClock) Now(_ context.Context) Datetime {
	t := h.now()
	return Datetime{Seconds: uint64(t.Unix()), Nanoseconds: uint32(t.Nanosecond())}
}

func (h *WallClock) Resolution(_ context.Context) Datetime {
	return Datetime{Nanoseconds: 1000}
}

// MonotonicClock implements wasi:clocks/monotonic-clock without the
// pollable-returning subscribe functions.
type MonotonicClock struct {
	start time.Time
}

func (h *MonotonicClock) Namespace() string {
	return "wasi:clocks/monotonic-clock@" + Version
}

// Now returns nanoseconds since the clock was created.
func (h *MonotonicClock) Now(_ context.Context) uint64 {
	return uint64(time.Since(h.start).Nanoseconds())
}

func (h *MonotonicClock) Resolution(_ context.Context) uint64 {
	return 1
}
