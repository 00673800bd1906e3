package wasi

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/wippyai/component-harness/abi"
	"github.com/wippyai/component-harness/resource"
)

// Environment implements wasi:cli/environment.
type Environment struct {
	env  map[string]string
	cwd  string
	args []string
}

// NewEnvironment creates the environment host. An empty cwd is "/".
func NewEnvironment(env map[string]string, args []string, cwd string) *Environment {
	if cwd == "" {
		cwd = "/"
	}
	return &Environment{env: env, args: args, cwd: cwd}
}

func (h *Environment) Namespace() string {
	return "wasi:cli/environment@" + Version
}

// GetEnvironment returns the variables sorted by name.
func (h *Environment) GetEnvironment(_ context.Context) []abi.Tuple {
	keys := make([]string, 0, len(h.env))
	for k := range h.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]abi.Tuple, len(keys))
	for i, k := range keys {
		out[i] = abi.Tuple{k, h.env[k]}
	}
	return out
}

func (h *Environment) GetArguments(_ context.Context) []string {
	return h.args
}

func (h *Environment) InitialCwd(_ context.Context) *string {
	cwd := h.cwd
	return &cwd
}

// Stdio implements one of wasi:cli/stdin, stdout or stderr. Every call
// hands out a fresh stream handle over the same reader or writer.
type Stdio struct {
	ht   *resource.HostTable
	r    io.Reader
	w    io.Writer
	name string
}

func (h *Stdio) Namespace() string {
	return "wasi:cli/" + h.name + "@" + Version
}

func (h *Stdio) Register() map[string]any {
	if h.name == "stdin" {
		return map[string]any{"get-stdin": h.getStdin}
	}
	return map[string]any{"get-" + h.name: h.getOutput}
}

func (h *Stdio) getStdin(_ context.Context) (resource.Handle, error) {
	return h.ht.Insert(TypeInputStream, NewInputStream(h.r))
}

func (h *Stdio) getOutput(_ context.Context) (resource.Handle, error) {
	return h.ht.Insert(TypeOutputStream, NewOutputStream(h.w))
}

// ExitError is returned from a call whose guest invoked wasi:cli/exit.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("guest exited with status %d", e.Code)
}

// Exit implements wasi:cli/exit. Exiting traps the guest with an
// *ExitError instead of ending the host process.
type Exit struct{}

func (h *Exit) Namespace() string {
	return "wasi:cli/exit@" + Version
}

func (h *Exit) Exit(_ context.Context, status abi.Result) error {
	if status.IsErr {
		return &ExitError{Code: 1}
	}
	return &ExitError{Code: 0}
}
