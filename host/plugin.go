package host

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/scripthost-io/scripthost/errors"
	"github.com/scripthost-io/scripthost/manifest"
)

// Guest entry points. plugin_free and plugin_poll are optional.
const (
	exportInvoke = "plugin_invoke"
	exportAlloc  = "plugin_alloc"
	exportFree   = "plugin_free"
	exportPoll   = "plugin_poll"
)

// Plugin is a compiled guest binary paired with its manifest. One
// Plugin can be instantiated many times; instances do not share
// memory or pending calls.
type Plugin struct {
	rt       *Runtime
	compiled wazero.CompiledModule
	manifest *manifest.Manifest
}

// Manifest returns the manifest the plugin was loaded with.
func (p *Plugin) Manifest() *manifest.Manifest {
	return p.manifest
}

// Instantiate creates a fresh instance. The guest's start function
// runs during instantiation and may already use the log import.
func (p *Plugin) Instantiate(ctx context.Context) (*Instance, error) {
	cfg := wazero.NewModuleConfig().WithName("")
	mod, err := p.rt.runtime.InstantiateModule(ctx, p.compiled, cfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	caller, err := newWasmCaller(mod)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	return newInstance(p.manifest, caller), nil
}

// Close releases the compiled module. Instances already created stay
// usable until closed themselves.
func (p *Plugin) Close(ctx context.Context) error {
	return p.compiled.Close(ctx)
}

// wasmCaller drives a live guest module through the wire contract:
// envelopes go in through plugin_alloc and plugin_invoke, responses
// come back as a packed pointer and length.
type wasmCaller struct {
	mod      api.Module
	invokeFn api.Function
	pollFn   api.Function
	mem      guestMemory
	alloc    *guestAllocator
}

func newWasmCaller(mod api.Module) (*wasmCaller, error) {
	invokeFn := mod.ExportedFunction(exportInvoke)
	allocFn := mod.ExportedFunction(exportAlloc)
	if invokeFn == nil || allocFn == nil {
		return nil, errors.Load("instance is missing required exports", nil)
	}
	if mod.Memory() == nil {
		return nil, errors.Load("instance exports no memory", nil)
	}

	return &wasmCaller{
		mod:      mod,
		invokeFn: invokeFn,
		pollFn:   mod.ExportedFunction(exportPoll),
		mem:      guestMemory{mem: mod.Memory()},
		alloc: &guestAllocator{
			allocFn: allocFn,
			freeFn:  mod.ExportedFunction(exportFree),
		},
	}, nil
}

// invoke writes a request envelope into guest memory, runs
// plugin_invoke, and returns a copy of the response envelope. The
// request buffer belongs to the guest once plugin_invoke is entered;
// the response buffer is freed here after copying.
func (c *wasmCaller) invoke(ctx context.Context, req []byte) ([]byte, error) {
	c.alloc.setContext(ctx)

	size := uint32(len(req))
	ptr, err := c.alloc.Alloc(size, 1)
	if err != nil {
		return nil, err
	}
	if err := c.mem.Write(ptr, req); err != nil {
		c.alloc.Free(ptr, size, 1)
		return nil, err
	}

	results, err := c.invokeFn.Call(ctx, uint64(ptr), uint64(size))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCall, errors.KindHandlerPanic, err,
			exportInvoke+" trapped")
	}
	if len(results) == 0 {
		return nil, errors.Protocol(exportInvoke+" returned nothing", nil)
	}

	respPtr, respLen := unpackPtrLen(results[0])
	if respPtr == 0 || respLen == 0 {
		return nil, errors.Protocol(exportInvoke+" returned no response", nil)
	}

	data, err := c.mem.Read(respPtr, respLen)
	if err != nil {
		return nil, err
	}
	resp := make([]byte, len(data))
	copy(resp, data)
	c.alloc.Free(respPtr, respLen, 1)
	return resp, nil
}

func (c *wasmCaller) canPoll() bool {
	return c.pollFn != nil
}

func (c *wasmCaller) poll(ctx context.Context) error {
	if c.pollFn == nil {
		return errors.Unsupported(errors.PhaseCall, "plugin does not export "+exportPoll)
	}
	if _, err := c.pollFn.Call(ctx); err != nil {
		return errors.Wrap(errors.PhaseCall, errors.KindHandlerPanic, err,
			exportPoll+" trapped")
	}
	return nil
}

func (c *wasmCaller) close(ctx context.Context) error {
	return c.mod.Close(ctx)
}
