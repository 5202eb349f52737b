// Package errors provides structured error types for the membind engine.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the member path, structure name, offending value and cause.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSet, errors.KindRange).
//		Path("point", "x").
//		Structure("Point").
//		Detail("value %d does not fit in i8", 300).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseSet, path, value, "enum item")
//	err := errors.InactiveUnionMember("Shape", "circle", "square")
//
// Kind-only checks use the package sentinels:
//
//	if errors.Is(err, errors.ErrRange) { ... }
//
// Foreign error values surface as *Token, which matches ErrErrorToken and is
// otherwise compared by identity.
package errors
