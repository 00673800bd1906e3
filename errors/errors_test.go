package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseLower,
				Kind:    KindTypeMismatch,
				Path:    []string{"roundtrip", "s"},
				GoType:  "int",
				WitType: "string",
				Detail:  "cannot convert",
			},
			contains: []string{"[lower]", "type_mismatch", "roundtrip.s", "int", "string", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseLift,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[lift]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCall,
				Kind:   KindTrap,
				Detail: "wasm trap in handle",
				Cause:  errors.New("unreachable"),
			},
			contains: []string{"[call]", "trap", "wasm trap in handle", "caused by", "unreachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseLink, KindInstantiation, cause, "instantiate core module")

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := InvalidHandle(PhaseLower, 0, "not in host table")

	if !errors.Is(err, ErrInvalidHandle) {
		t.Error("kind sentinel should match any phase")
	}
	if !errors.Is(err, &Error{Phase: PhaseLower, Kind: KindInvalidHandle}) {
		t.Error("same phase and kind should match")
	}
	if errors.Is(err, &Error{Phase: PhaseLift, Kind: KindInvalidHandle}) {
		t.Error("different phase should not match")
	}
	if errors.Is(err, ErrTrap) {
		t.Error("different kind should not match")
	}

	wrapped := Trap("handle", err)
	if !errors.Is(wrapped, ErrInvalidHandle) {
		t.Error("cause chain should be searched")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseLift, KindTypeMismatch).
		Path("a", "b").
		GoType("uint8").
		WitType("u16").
		Value(300).
		Detail("value %d too large", 300).
		Build()

	if err.Phase != PhaseLift || err.Kind != KindTypeMismatch {
		t.Fatalf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if err.Detail != "value 300 too large" {
		t.Errorf("detail = %q", err.Detail)
	}
	if err.Value != 300 {
		t.Errorf("value = %v", err.Value)
	}
	if got := strings.Join(err.Path, "."); got != "a.b" {
		t.Errorf("path = %q", got)
	}
}

func TestInvalidUTF8_Truncates(t *testing.T) {
	data := make([]byte, 64)
	err := InvalidUTF8(PhaseLift, nil, data)
	if strings.Count(err.Detail, "00") != 32 {
		t.Errorf("preview should be truncated to 32 bytes: %q", err.Detail)
	}
}

func TestMissingImportsError(t *testing.T) {
	err := NewMissingImportsError([]string{
		"test:strings/imports#take-basic",
		"test:strings/imports#return-unicode",
		"wasi:http/types@0.2.0",
	})

	if len(err.Imports) != 3 {
		t.Fatalf("expected 3 imports, got %d", len(err.Imports))
	}
	if err.Imports[2].Function != "" {
		t.Errorf("whole-interface import should have empty function, got %q", err.Imports[2].Function)
	}

	msg := err.Error()
	for _, want := range []string{"3 host import(s)", "test:strings/imports", "- return-unicode", "- take-basic", "wasi:http/types@0.2.0"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
	if strings.Index(msg, "return-unicode") > strings.Index(msg, "take-basic") {
		t.Error("functions should be sorted within an interface")
	}

	if !errors.Is(err, &MissingImportsError{}) {
		t.Error("should match MissingImportsError")
	}
	if !errors.Is(err, &Error{Kind: KindMissingImport}) {
		t.Error("should match missing_import kind")
	}
}

func TestAssertion(t *testing.T) {
	err := Assertion("expected %q, got %q", "str", "")
	if !errors.Is(err, ErrAssertion) {
		t.Error("assertion should match ErrAssertion")
	}
	if !strings.Contains(err.Error(), `expected "str"`) {
		t.Errorf("unexpected message %q", err.Error())
	}
}
