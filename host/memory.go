package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/scripthost-io/scripthost"
	"github.com/scripthost-io/scripthost/errors"
)

// guestMemory adapts api.Memory to scripthost.Memory, converting the
// out-of-bounds booleans into structured memory errors.
type guestMemory struct {
	mem api.Memory
}

func (g guestMemory) Read(offset, length uint32) ([]byte, error) {
	data, ok := g.mem.Read(offset, length)
	if !ok {
		return nil, errors.Memory("read", offset, length)
	}
	return data, nil
}

func (g guestMemory) Write(offset uint32, data []byte) error {
	if ok := g.mem.Write(offset, data); !ok {
		return errors.Memory("write", offset, uint32(len(data)))
	}
	return nil
}

func (g guestMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := g.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.Memory("read", offset, 4)
	}
	return val, nil
}

func (g guestMemory) WriteU32(offset uint32, value uint32) error {
	if ok := g.mem.WriteUint32Le(offset, value); !ok {
		return errors.Memory("write", offset, 4)
	}
	return nil
}

func (g guestMemory) ReadU64(offset uint32) (uint64, error) {
	val, ok := g.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.Memory("read", offset, 8)
	}
	return val, nil
}

func (g guestMemory) WriteU64(offset uint32, value uint64) error {
	if ok := g.mem.WriteUint64Le(offset, value); !ok {
		return errors.Memory("write", offset, 8)
	}
	return nil
}

func (g guestMemory) Size() uint32 {
	if g.mem == nil {
		return 0
	}
	return g.mem.Size()
}

var (
	_ scripthost.Memory      = guestMemory{}
	_ scripthost.MemorySizer = guestMemory{}
)

// guestAllocator drives the guest's plugin_alloc and plugin_free
// exports. The context is attached per call sequence; outside one it
// falls back to Background.
type guestAllocator struct {
	allocFn api.Function
	freeFn  api.Function
	ctx     context.Context
}

func (a *guestAllocator) setContext(ctx context.Context) {
	a.ctx = ctx
}

func (a *guestAllocator) callContext() context.Context {
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

func (a *guestAllocator) Alloc(size, align uint32) (uint32, error) {
	if a.allocFn == nil {
		return 0, errors.Memory("alloc", 0, size)
	}

	results, err := a.allocFn.Call(a.callContext(), uint64(size))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseBridge, errors.KindMemory, err, "plugin_alloc")
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, errors.Memory("alloc", 0, size)
	}
	return ptr, nil
}

func (a *guestAllocator) Free(ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}
	if _, err := a.freeFn.Call(a.callContext(), uint64(ptr), uint64(size)); err != nil {
		Logger().Warn("plugin_free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

var _ scripthost.Allocator = (*guestAllocator)(nil)

// packPtrLen packs a response location into the u64 plugin_invoke
// returns.
func packPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// unpackPtrLen splits a packed response location.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}
