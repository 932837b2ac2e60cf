// Package deferred provides a typed deferred-value primitive: a
// producer-side Controller that settles a shared outcome exactly once,
// and consumer-side Handles that observe it, transform it, and chain
// further asynchronous steps off it. It is the asynchronous-result
// backbone of the library: every operation whose completion is not
// immediate (such as a guest plugin call) returns a Handle.
//
// A Controller starts pending, mints any number of Handles with
// Promise, and later settles with Resolve or Reject. Continuations
// registered on a Handle before settlement are queued and run
// synchronously, in registration order, exactly once, when the state
// settles; continuations registered after settlement run immediately
// with the stored outcome. Exactly one of the success/failure
// continuation sets ever runs.
//
//	c := deferred.New[int]()
//	h := c.Promise()
//	h.Done(func(v int) { fmt.Println("got", v) })
//	c.Resolve(42) // prints "got 42" before Resolve returns
//
// Type-changing derivations are top-level functions: Then maps the
// value through a fallible handler, ThenPipe sequences a further
// asynchronous step by returning another Handle, Convert applies an
// injected conversion, and All gathers a slice of Handles into a
// Handle of a slice. Rejections flow through derivation chains
// unchanged unless a failure handler recovers, and a panic inside any
// handler is captured as a rejection of the derived Handle rather than
// escaping the call.
//
// Failures travel as ordinary error values, normally the structured
// kind-tagged errors of the errors package, so a later handler can
// inspect or re-wrap them.
//
// The package assumes a single logical thread of control: there is no
// internal locking, and all calls that touch one shared state must be
// made from one goroutine or under external mutual exclusion. Nothing
// here blocks or suspends; settlement is always a synchronous cascade.
package deferred
