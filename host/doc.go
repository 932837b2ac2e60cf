// Package host loads WebAssembly plugins and exposes their manifest
// surface as deferred scripting calls.
//
// A Runtime wraps wazero and installs the host import module. Load
// compiles a guest binary against its manifest, Instantiate creates a
// live Instance, and Invoke/Get/Set drive members declared in the
// manifest. Every outcome travels as a deferred handle, so a guest
// that answers immediately and one that settles later look the same
// to the embedder.
//
// # Wire Contract
//
// Guests export:
//
//	plugin_alloc(size: i32) -> i32             allocate guest memory
//	plugin_invoke(ptr: i32, len: i32) -> i64   handle one request envelope
//	plugin_free(ptr: i32, size: i32)           optional, release a buffer
//	plugin_poll()                              optional, settle pending calls
//
// and may import from "scripthost:host":
//
//	settle(ptr: i32, len: i32)                 deliver a settlement envelope
//	log(level: i32, ptr: i32, len: i32)        write to the host logger
//
// The host allocates a buffer with plugin_alloc, writes a JSON
// request envelope into it, and calls plugin_invoke; the request
// buffer belongs to the guest from that point. The i64 result packs
// the response location as ptr<<32|len; the host copies the response
// out and releases it through plugin_free when exported.
//
// # Envelopes
//
// A request carries the operation, member name, and a host-minted
// correlation id:
//
//	{"op": "call", "member": "fetch-page", "id": "...", "args": ["https://..."]}
//
// The response either settles the call in place:
//
//	{"status": "resolved", "value": 42}
//	{"status": "rejected", "error": {"kind": "not_found", "detail": "..."}}
//
// or defers it:
//
//	{"status": "pending", "call": "..."}
//
// A pending call settles when the guest passes a settlement envelope
// to the settle import, naming the correlation id:
//
//	{"call": "...", "status": "resolved", "value": 42}
//
// Settle may be called while plugin_invoke or plugin_poll is still on
// the stack; the matching handle fires its continuations
// synchronously at that point. Pump drives plugin_poll for guests
// that settle from internal timers or queues.
//
// # Threading
//
// Runtime and Plugin are safe for concurrent use. An Instance is
// single-threaded: one goroutine drives its calls, pumps, and the
// continuations they fire.
package host
