// Package errors provides structured error types for wasm-rebind.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the offending module, the matching rule
// description, a path, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseScan, errors.KindIncompatible).
//		Module("app").
//		Rule("call to stale import wasi_unstable").
//		Build()
//
// Or use the constructors for the failures callers branch on:
//
//	err := errors.MissingEntryModule("/srv/app.wasm")
//	if stderrors.Is(err, errors.ErrMissingEntryModule) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
