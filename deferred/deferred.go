package deferred

import (
	"github.com/scripthost-io/scripthost/errors"
)

type status uint8

const (
	statusPending status = iota
	statusResolved
	statusRejected
)

func (s status) String() string {
	switch s {
	case statusPending:
		return "pending"
	case statusResolved:
		return "resolved"
	case statusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// cell is the shared state behind one controller family and every handle
// minted from it: the outcome (pending, value, or error) plus the
// continuations queued for each outcome. Settlement drains a continuation
// list by swapping it out before iterating, so a continuation registered
// reentrantly from inside another continuation sees the terminal status
// and fires immediately instead of being appended to a list already
// being drained. Each continuation runs exactly once.
type cell[T any] struct {
	value     T
	err       error
	onResolve []func(T)
	onReject  []func(error)
	status    status
}

func (c *cell[T]) resolve(v T) error {
	if c.status != statusPending {
		return errors.AlreadySettled("resolve", c.status.String())
	}
	c.value = v
	c.status = statusResolved
	c.onReject = nil
	fns := c.onResolve
	c.onResolve = nil
	for _, fn := range fns {
		fn(v)
	}
	return nil
}

func (c *cell[T]) reject(err error) error {
	if c.status != statusPending {
		return errors.AlreadySettled("reject", c.status.String())
	}
	c.err = err
	c.status = statusRejected
	c.onResolve = nil
	fns := c.onReject
	c.onReject = nil
	for _, fn := range fns {
		fn(err)
	}
	return nil
}

// Controller is the producer side of a deferred value. It settles the
// shared state exactly once with Resolve or Reject and mints consumer
// Handles with Promise. Controllers are cheap value types; all copies
// share the same state and co-control it.
//
// The zero Controller has no backing state. Use New, WithValue, or
// WithError to construct one.
type Controller[T any] struct {
	cell *cell[T]
}

// New creates a pending Controller.
func New[T any]() Controller[T] {
	return Controller[T]{cell: &cell[T]{}}
}

// WithValue creates a Controller whose state is already resolved to v,
// for returning an already-known result as a deferred value.
func WithValue[T any](v T) Controller[T] {
	return Controller[T]{cell: &cell[T]{value: v, status: statusResolved}}
}

// WithError creates a Controller whose state is already rejected with err.
func WithError[T any](err error) Controller[T] {
	return Controller[T]{cell: &cell[T]{err: err, status: statusRejected}}
}

// Promise mints a Handle sharing this Controller's state. It may be
// called any number of times; every minted Handle observes the same
// eventual outcome.
func (c Controller[T]) Promise() Handle[T] {
	return Handle[T]{cell: c.cell}
}

// Resolve settles the state with v and synchronously invokes every
// queued success continuation in registration order before returning.
// Resolving an already-settled state is an error and delivers nothing.
func (c Controller[T]) Resolve(v T) error {
	if c.cell == nil {
		return errors.InvalidHandle("resolve")
	}
	return c.cell.resolve(v)
}

// Reject settles the state with err and synchronously invokes every
// queued failure continuation in registration order before returning.
// Rejecting an already-settled state is an error and delivers nothing.
func (c Controller[T]) Reject(err error) error {
	if c.cell == nil {
		return errors.InvalidHandle("reject")
	}
	return c.cell.reject(err)
}

// ResolveFrom chains this Controller's outcome to another handle:
// when inner resolves this Controller resolves with the same value, and
// when inner rejects this Controller rejects with the same error. If
// inner is already settled the chaining happens before ResolveFrom
// returns.
func (c Controller[T]) ResolveFrom(inner Handle[T]) error {
	if c.cell == nil {
		return errors.InvalidHandle("resolve from")
	}
	if !inner.Valid() {
		return errors.InvalidHandle("resolve from")
	}
	inner.Done(func(v T) { _ = c.Resolve(v) }).
		Fail(func(err error) { _ = c.Reject(err) })
	return nil
}

// Invalidate force-rejects a still-pending state so that registered
// failure continuations observe a deterministic rejection instead of
// waiting forever. It is a no-op on a settled state.
func (c Controller[T]) Invalidate() {
	if c.cell == nil {
		return
	}
	if c.cell.status == statusPending {
		_ = c.cell.reject(errors.Invalidated())
	}
}

// Close discards the Controller. If the state is still pending and at
// least one failure continuation is registered, the state rejects with a
// discarded error so no failure subscriber is left hanging; otherwise
// discarding is silent. The Controller must not be used after Close.
// Close always returns nil and is safe to defer.
func (c Controller[T]) Close() error {
	if c.cell == nil {
		return nil
	}
	if c.cell.status == statusPending && len(c.cell.onReject) > 0 {
		_ = c.cell.reject(errors.Discarded())
	}
	return nil
}

// Handle is the consumer side of a deferred value: read-only with
// respect to causing settlement. Continuations registered before
// settlement are queued; continuations registered after settlement run
// immediately and synchronously with the stored outcome. Handles are
// cheap value types; all copies observe the same state.
//
// The zero Handle is invalid: a distinguished "no promise" sentinel
// usable only as an assignment target. Done and Fail panic on an
// invalid Handle.
type Handle[T any] struct {
	cell *cell[T]
}

// Of creates a Handle that is already resolved to v.
func Of[T any](v T) Handle[T] {
	return WithValue(v).Promise()
}

// Err creates a Handle that is already rejected with err.
func Err[T any](err error) Handle[T] {
	return WithError[T](err).Promise()
}

// Valid reports whether the Handle is backed by shared state.
func (h Handle[T]) Valid() bool {
	return h.cell != nil
}

const invalidHandleMsg = "deferred: operation on invalid handle"

// Done registers a continuation invoked with the value if and when the
// state resolves: queued while pending, run immediately if already
// resolved, never run if rejected. A nil continuation is ignored.
// Returns the Handle for chaining. Panics if the Handle is invalid.
func (h Handle[T]) Done(onResolved func(T)) Handle[T] {
	if h.cell == nil {
		panic(invalidHandleMsg)
	}
	if onResolved == nil {
		return h
	}
	switch h.cell.status {
	case statusPending:
		h.cell.onResolve = append(h.cell.onResolve, onResolved)
	case statusResolved:
		onResolved(h.cell.value)
	}
	return h
}

// Fail registers a continuation invoked with the error if and when the
// state rejects: queued while pending, run immediately if already
// rejected, never run if resolved. A nil continuation is ignored.
// Returns the Handle for chaining. Panics if the Handle is invalid.
func (h Handle[T]) Fail(onRejected func(error)) Handle[T] {
	if h.cell == nil {
		panic(invalidHandleMsg)
	}
	if onRejected == nil {
		return h
	}
	switch h.cell.status {
	case statusPending:
		h.cell.onReject = append(h.cell.onReject, onRejected)
	case statusRejected:
		onRejected(h.cell.err)
	}
	return h
}

// Invalidate drops this Handle's reference to the shared state. Other
// Handles and Controllers sharing the state are unaffected.
func (h *Handle[T]) Invalidate() {
	h.cell = nil
}
