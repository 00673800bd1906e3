package harness

// Memory is a view of a guest's linear memory.
// All multi-byte accessors are little-endian and fail on out of bounds access.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// Allocator allocates guest memory, normally through cabi_realloc.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
}
