package deferred

import (
	"github.com/scripthost-io/scripthost/errors"
)

// Type-changing derivations are top-level functions because Go methods
// cannot introduce type parameters.

const nilHandlerMsg = "deferred: nil handler"

// Then derives a Handle of a different payload type. When the source
// resolves with v, the derived Handle settles with onResolved(v): its
// value on success, its error as a rejection. When the source rejects
// and onRejected is nil the rejection propagates unchanged; a non-nil
// onRejected that returns a value recovers, resolving the derived
// Handle (the chain is healthy again). A panic inside either handler is
// captured and rejects the derived Handle instead of propagating.
//
// An invalid source Handle yields a pre-rejected derived Handle rather
// than panicking, so derivation chains always produce a usable Handle.
// onResolved must not be nil.
func Then[T, U any](h Handle[T], onResolved func(T) (U, error), onRejected func(error) (U, error)) Handle[U] {
	if !h.Valid() {
		return Err[U](errors.InvalidHandle("then"))
	}
	if onResolved == nil {
		panic(nilHandlerMsg)
	}
	out := New[U]()
	h.Done(func(v T) {
		settleMapped(out, v, onResolved)
	})
	h.Fail(func(err error) {
		if onRejected == nil {
			_ = out.Reject(err)
			return
		}
		settleMapped(out, err, onRejected)
	})
	return out.Promise()
}

// ThenPipe derives a Handle from handlers that return Handles rather
// than plain values, sequencing asynchronous steps: the derived Handle
// adopts the eventual outcome of whichever inner Handle the fired
// handler returns. When the source rejects and onRejected is nil the
// rejection propagates unchanged. A panic while invoking a handler, or
// an invalid inner Handle, rejects the derived Handle without
// consulting the inner outcome.
//
// An invalid source Handle yields a pre-rejected derived Handle.
// onResolved must not be nil.
func ThenPipe[T, U any](h Handle[T], onResolved func(T) Handle[U], onRejected func(error) Handle[U]) Handle[U] {
	if !h.Valid() {
		return Err[U](errors.InvalidHandle("then pipe"))
	}
	if onResolved == nil {
		panic(nilHandlerMsg)
	}
	out := New[U]()
	h.Done(func(v T) {
		adoptPiped(out, v, onResolved)
	})
	h.Fail(func(err error) {
		if onRejected == nil {
			_ = out.Reject(err)
			return
		}
		adoptPiped(out, err, onRejected)
	})
	return out.Promise()
}

// Convert derives a Handle whose value is converted from T to U by the
// injected fallible conversion. Conversion failure rejects the derived
// Handle with the conversion error; a source rejection propagates
// unchanged. conv must not be nil.
func Convert[T, U any](h Handle[T], conv func(T) (U, error)) Handle[U] {
	if !h.Valid() {
		return Err[U](errors.InvalidHandle("convert"))
	}
	if conv == nil {
		panic(nilHandlerMsg)
	}
	return Then(h, conv, nil)
}

// settleMapped runs a value-mapping handler under panic capture and
// settles out with its result.
func settleMapped[In, U any](out Controller[U], in In, fn func(In) (U, error)) {
	defer func() {
		if r := recover(); r != nil {
			_ = out.Reject(errors.HandlerPanic(r))
		}
	}()
	v, err := fn(in)
	if err != nil {
		_ = out.Reject(err)
		return
	}
	_ = out.Resolve(v)
}

// adoptPiped runs a handle-returning handler under panic capture and
// forwards the inner handle's outcome to out.
func adoptPiped[In, U any](out Controller[U], in In, fn func(In) Handle[U]) {
	defer func() {
		if r := recover(); r != nil {
			_ = out.Reject(errors.HandlerPanic(r))
		}
	}()
	inner := fn(in)
	if err := out.ResolveFrom(inner); err != nil {
		_ = out.Reject(err)
	}
}
