// Package errors provides structured error types for the scripthost library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: field path, source and
// destination type names for conversions, and a cause chain. It is also the
// rejection payload carried through deferred values: handlers receive it as
// a plain error and can match on it with errors.Is or IsKind.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
//		Path("args", "2").
//		SrcType("string").
//		DstType("int64").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Conversion(path, "string", "int64", "not a number")
//	err := errors.NotFound(errors.PhaseDispatch, "method", "echo")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
