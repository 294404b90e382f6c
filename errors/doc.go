// Package errors provides structured error types for witdeps.
//
// Errors are categorized by Phase (the pipeline stage) and Kind (error category).
// The Error type carries the offending name, expected/actual values and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMerge, errors.KindCompositionConflict).
//		Name("ns:pkg/iface@1.0.0").
//		Detail("function %q differs", "get").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.DigestMismatch(url, want, got)
//	err := errors.UnknownBuildEcosystem(dir)
//
// Kind-only sentinels (ErrCompositionConflict, ErrDigestMismatch, ...) match any
// phase through errors.Is.
package errors
