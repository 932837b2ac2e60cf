package scripthost

// Memory is a plugin's linear memory as seen from the host.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
	ReadU64(offset uint32) (uint64, error)
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer reports the current size of a plugin's linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator reserves and releases buffers inside a plugin's linear
// memory by driving its exported allocation entry points.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
