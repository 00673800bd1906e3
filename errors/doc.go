// Package errors provides structured error types for the component harness.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries a field path, Go/WIT type names and a
// cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLower, errors.KindTypeMismatch).
//		Path("roundtrip", "s").
//		GoType("int").
//		WitType("string").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidHandle(errors.PhaseLower, 0, "not in host table")
//
// Kind-only sentinels (ErrInvalidHandle, ErrTrap, ...) match an error of
// that kind raised in any phase:
//
//	if errors.Is(err, harnesserrors.ErrInvalidHandle) { ... }
package errors
