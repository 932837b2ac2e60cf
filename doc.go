// Package scripthost runs WebAssembly plugins behind a deferred
// scripting surface.
//
// A plugin declares its methods and properties in a manifest. The
// host compiles the plugin binary, instantiates it, and exposes each
// declared member as a scripting call whose outcome arrives through a
// deferred handle: settled exactly once, continuations invoked
// synchronously and in registration order, whether the guest answered
// immediately or settled later.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	scripthost/          Root package with guest Memory and Allocator interfaces
//	├── deferred/        Single-settlement deferred values, chaining, combining
//	├── variant/         Loosely typed scripting values and checked casts
//	├── dispatch/        Member registries gated by security zones
//	├── manifest/        Plugin manifest parsing, validation, file watching
//	├── host/            wazero runtime, plugin loading, wire envelopes
//	└── errors/          Structured error taxonomy shared by every layer
//
// # Quick Start
//
// Load a plugin and call a method:
//
//	rt, err := host.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	m, err := manifest.Load("image-tools.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	plug, err := rt.Load(ctx, wasmBytes, m)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	inst, err := plug.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	inst.Invoke(ctx, "resize", variant.MakeList("in.png", 800, 600)).
//	    Done(func(v variant.Variant) { fmt.Println("resized:", v) }).
//	    Fail(func(err error) { log.Print(err) })
//
// A guest that answers pending settles later through the host's
// settle import; Pump drives guests that settle from internal queues.
// Either way the handle above fires the same continuations.
//
// # Deferred Values
//
// The deferred package stands alone and owes nothing to WebAssembly.
// Handles chain with transforming and recovering steps:
//
//	length := deferred.Then(page, func(body string) (int, error) {
//	    return len(body), nil
//	}, nil)
//
//	length.Done(func(n int) { fmt.Println("bytes:", n) })
//
// # Thread Safety
//
// Runtime and Plugin are safe for concurrent use. Instance, and the
// deferred values it produces, belong to a single goroutine: one
// driver makes the calls, pumps, and runs every continuation.
// Registries lock their member tables internally so registration may
// happen from setup code.
package scripthost
