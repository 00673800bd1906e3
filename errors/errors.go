package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // reading and decoding a binary
	PhaseParse    Phase = "parse"    // section and type parsing
	PhaseValidate Phase = "validate" // structural checks
	PhaseLink     Phase = "link"     // import resolution and instantiation
	PhaseLift     Phase = "lift"     // core values to component values
	PhaseLower    Phase = "lower"    // component values to core values
	PhaseCall     Phase = "call"     // export invocation
	PhaseHost     Phase = "host"     // host function binding
	PhaseScenario Phase = "scenario" // conformance scenarios
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData    Kind = "invalid_data"
	KindTypeMismatch   Kind = "type_mismatch"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindInvalidUTF8    Kind = "invalid_utf8"
	KindInvalidUTF16   Kind = "invalid_utf16"
	KindNotFound       Kind = "not_found"
	KindMissingImport  Kind = "missing_import"
	KindInvalidHandle  Kind = "invalid_handle"
	KindTrap           Kind = "trap"
	KindAssertion      Kind = "assertion"
	KindUnsupported    Kind = "unsupported"
	KindInvalidInput   Kind = "invalid_input"
	KindInstantiation  Kind = "instantiation"
	KindAllocation     Kind = "allocation"
	KindInvalidVariant Kind = "invalid_variant"
	KindReentrance     Kind = "reentrance"
)

// Error is the structured error type used throughout the harness
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	GoType  string
	WitType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.WitType != "" {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.WitType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", WIT type ")
			b.WriteString(e.WitType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("WIT type ")
			b.WriteString(e.WitType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.WitType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by phase and kind.
// A target with an empty phase matches any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WitType sets the WIT type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Kind-only sentinels for errors.Is checks across phases.
var (
	ErrInvalidHandle = &Error{Kind: KindInvalidHandle}
	ErrTrap          = &Error{Kind: KindTrap}
	ErrAssertion     = &Error{Kind: KindAssertion}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrReentrance    = &Error{Kind: KindReentrance}
)

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, witType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    path,
		GoType:  goType,
		WitType: witType,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// InvalidUTF16 creates an error for unpaired surrogates
func InvalidUTF16(phase Phase, unit uint16, index int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF16,
		Detail: fmt.Sprintf("unpaired surrogate 0x%04x at code unit %d", unit, index),
		Value:  unit,
	}
}

// OutOfBounds creates an out of bounds memory error
func OutOfBounds(phase Phase, offset, length uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access of %d bytes at offset %d out of bounds", length, offset),
		Value:  offset,
	}
}

// InvalidDiscriminant creates an invalid discriminant error for variants/enums
func InvalidDiscriminant(phase Phase, path []string, disc uint32, count int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidVariant,
		Path:   path,
		Detail: fmt.Sprintf("discriminant %d out of range (%d cases)", disc, count),
		Value:  disc,
	}
}

// InvalidHandle creates an error for a handle missing from a table
func InvalidHandle(phase Phase, handle uint32, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("handle %d: %s", handle, detail),
		Value:  handle,
	}
}

// Trap creates a trap error raised inside a guest call
func Trap(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTrap,
		Detail: fmt.Sprintf("wasm trap in %s", name),
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindInstantiation,
		Detail: "instantiate " + what,
		Cause:  cause,
	}
}

// Load creates a binary loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Assertion creates a scenario assertion failure
func Assertion(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseScenario,
		Kind:   KindAssertion,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Interface string // e.g., "test:strings/imports"
	Function  string // e.g., "take-basic"
}

// MissingImportsError is returned when instantiation finds host imports
// that the import table does not provide.
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from "interface#function" keys.
func NewMissingImportsError(keys []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(keys)),
	}
	for _, key := range keys {
		iface, fn, _ := strings.Cut(key, "#")
		result.Imports = append(result.Imports, MissingImport{
			Interface: iface,
			Function:  fn,
		})
	}
	return result
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] missing_import: no imports specified"
	}

	byIface := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, ok := byIface[imp.Interface]; !ok {
			order = append(order, imp.Interface)
		}
		if imp.Function != "" {
			byIface[imp.Interface] = append(byIface[imp.Interface], imp.Function)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[link] missing_import: %d host import(s) not provided:", len(e.Imports))
	for _, iface := range order {
		b.WriteString("\n  ")
		b.WriteString(iface)
		fns := byIface[iface]
		sort.Strings(fns)
		for _, fn := range fns {
			b.WriteString("\n    - ")
			b.WriteString(fn)
		}
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingImportsError:
		return true
	case *Error:
		return t.Kind == KindMissingImport
	}
	return false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }
