package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	harness "github.com/wippyai/component-harness"
	"github.com/wippyai/component-harness/errors"
)

// CabiRealloc is the conventional name of the canonical ABI allocator export.
const CabiRealloc = "cabi_realloc"

// Memory wraps wazero memory to implement harness.Memory
type Memory struct {
	mem   api.Memory
	phase errors.Phase
}

// NewMemory wraps mem. phase labels out of bounds errors.
func NewMemory(mem api.Memory, phase errors.Phase) *Memory {
	return &Memory{mem: mem, phase: phase}
}

func (m *Memory) oob(offset uint32, length uint32) error {
	return errors.OutOfBounds(m.phase, uint64(offset), uint64(length))
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, m.oob(offset, length)
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return m.oob(offset, uint32(len(data)))
	}
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, m.oob(offset, 1)
	}
	return v, nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, m.oob(offset, 2)
	}
	return v, nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, m.oob(offset, 4)
	}
	return v, nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, m.oob(offset, 8)
	}
	return v, nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return m.oob(offset, 1)
	}
	return nil
}

func (m *Memory) WriteU16(offset uint32, value uint16) error {
	if !m.mem.WriteUint16Le(offset, value) {
		return m.oob(offset, 2)
	}
	return nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return m.oob(offset, 4)
	}
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return m.oob(offset, 8)
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Realloc allocates guest memory by calling cabi_realloc(0, 0, align, size).
type Realloc struct {
	ctx   context.Context
	fn    api.Function
	mem   api.Memory
	stack [4]uint64
}

// NewRealloc returns an allocator calling fn. mem, when set, is used to
// check that returned blocks lie inside linear memory.
func NewRealloc(ctx context.Context, fn api.Function, mem api.Memory) *Realloc {
	return &Realloc{ctx: ctx, fn: fn, mem: mem}
}

func (a *Realloc) Alloc(size, align uint32) (uint32, error) {
	a.stack = [4]uint64{0, 0, uint64(align), uint64(size)}
	if err := a.fn.CallWithStack(a.ctx, a.stack[:]); err != nil {
		return 0, errors.Trap(CabiRealloc, err)
	}
	ptr := uint32(a.stack[0])
	if align > 1 && ptr%align != 0 {
		return 0, errors.New(errors.PhaseLower, errors.KindAllocation).
			Detail("realloc returned %d, not aligned to %d", ptr, align).Build()
	}
	if a.mem != nil && uint64(ptr)+uint64(size) > uint64(a.mem.Size()) {
		return 0, errors.OutOfBounds(errors.PhaseLower, uint64(ptr), uint64(size))
	}
	return ptr, nil
}

var (
	_ harness.Memory    = (*Memory)(nil)
	_ harness.Allocator = (*Realloc)(nil)
)
