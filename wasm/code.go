package wasm

// Opcodes used by the builder and the Code helper.
const (
	OpUnreachable  byte = 0x00
	OpNop          byte = 0x01
	OpBlock        byte = 0x02
	OpLoop         byte = 0x03
	OpIf           byte = 0x04
	OpElse         byte = 0x05
	OpEnd          byte = 0x0B
	OpBr           byte = 0x0C
	OpBrIf         byte = 0x0D
	OpReturn       byte = 0x0F
	OpCall         byte = 0x10
	OpCallIndirect byte = 0x11
	OpDrop         byte = 0x1A
	OpSelect       byte = 0x1B
	OpLocalGet     byte = 0x20
	OpLocalSet     byte = 0x21
	OpLocalTee     byte = 0x22
	OpGlobalGet    byte = 0x23
	OpGlobalSet    byte = 0x24
	OpI32Load      byte = 0x28
	OpI64Load      byte = 0x29
	OpI32Load8U    byte = 0x2D
	OpI32Load16U   byte = 0x2F
	OpI32Store     byte = 0x36
	OpI64Store     byte = 0x37
	OpI32Store8    byte = 0x3A
	OpI32Store16   byte = 0x3B
	OpMemorySize   byte = 0x3F
	OpMemoryGrow   byte = 0x40
	OpI32Const     byte = 0x41
	OpI64Const     byte = 0x42
	OpI32Eqz       byte = 0x45
	OpI32Eq        byte = 0x46
	OpI32Ne        byte = 0x47
	OpI32LtU       byte = 0x49
	OpI32GtU       byte = 0x4B
	OpI32Add       byte = 0x6A
	OpI32Sub       byte = 0x6B
	OpI32Mul       byte = 0x6C
	OpI32And       byte = 0x71
	OpI32Or        byte = 0x72
	OpI32Shl       byte = 0x74
	OpI32ShrU      byte = 0x76
	OpPrefixFC     byte = 0xFC
)

// BlockEmpty is the empty block type.
const BlockEmpty byte = 0x40

// Code accumulates a function body's instructions. The builder appends the
// terminating end.
type Code struct {
	buf []byte
}

// NewCode returns an empty instruction sequence.
func NewCode() *Code {
	return &Code{}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte { return c.buf }

func (c *Code) op(op byte) *Code {
	c.buf = append(c.buf, op)
	return c
}

func (c *Code) opIdx(op byte, idx uint32) *Code {
	c.buf = append(c.buf, op)
	c.buf = AppendULEB128(c.buf, uint64(idx))
	return c
}

func (c *Code) memarg(op byte, align, offset uint32) *Code {
	c.buf = append(c.buf, op)
	c.buf = AppendULEB128(c.buf, uint64(align))
	c.buf = AppendULEB128(c.buf, uint64(offset))
	return c
}

func (c *Code) Unreachable() *Code { return c.op(OpUnreachable) }
func (c *Code) Nop() *Code         { return c.op(OpNop) }
func (c *Code) Else() *Code        { return c.op(OpElse) }
func (c *Code) End() *Code         { return c.op(OpEnd) }
func (c *Code) Return() *Code      { return c.op(OpReturn) }
func (c *Code) Drop() *Code        { return c.op(OpDrop) }
func (c *Code) Select() *Code      { return c.op(OpSelect) }

// Block opens a block with an empty result.
func (c *Code) Block() *Code { c.buf = append(c.buf, OpBlock, BlockEmpty); return c }

// Loop opens a loop with an empty result.
func (c *Code) Loop() *Code { c.buf = append(c.buf, OpLoop, BlockEmpty); return c }

// If opens an if with an empty result.
func (c *Code) If() *Code { c.buf = append(c.buf, OpIf, BlockEmpty); return c }

// IfResult opens an if producing a single value of type t.
func (c *Code) IfResult(t ValType) *Code { c.buf = append(c.buf, OpIf, byte(t)); return c }

func (c *Code) Br(depth uint32) *Code   { return c.opIdx(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code { return c.opIdx(OpBrIf, depth) }
func (c *Code) Call(fn uint32) *Code    { return c.opIdx(OpCall, fn) }

// CallIndirect calls through table with the given type index.
func (c *Code) CallIndirect(typeIdx, table uint32) *Code {
	c.opIdx(OpCallIndirect, typeIdx)
	c.buf = AppendULEB128(c.buf, uint64(table))
	return c
}

func (c *Code) LocalGet(i uint32) *Code  { return c.opIdx(OpLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.opIdx(OpLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code  { return c.opIdx(OpLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.opIdx(OpGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.opIdx(OpGlobalSet, i) }

// Memory access with alignment given as log2 of the byte count.
func (c *Code) I32Load(offset uint32) *Code    { return c.memarg(OpI32Load, 2, offset) }
func (c *Code) I64Load(offset uint32) *Code    { return c.memarg(OpI64Load, 3, offset) }
func (c *Code) I32Load8U(offset uint32) *Code  { return c.memarg(OpI32Load8U, 0, offset) }
func (c *Code) I32Load16U(offset uint32) *Code { return c.memarg(OpI32Load16U, 1, offset) }
func (c *Code) I32Store(offset uint32) *Code   { return c.memarg(OpI32Store, 2, offset) }
func (c *Code) I64Store(offset uint32) *Code   { return c.memarg(OpI64Store, 3, offset) }
func (c *Code) I32Store8(offset uint32) *Code  { return c.memarg(OpI32Store8, 0, offset) }
func (c *Code) I32Store16(offset uint32) *Code { return c.memarg(OpI32Store16, 1, offset) }

func (c *Code) MemorySize() *Code { c.buf = append(c.buf, OpMemorySize, 0x00); return c }
func (c *Code) MemoryGrow() *Code { c.buf = append(c.buf, OpMemoryGrow, 0x00); return c }

// MemoryCopy copies within memory 0 (dst, src, len on the stack).
func (c *Code) MemoryCopy() *Code {
	c.buf = append(c.buf, OpPrefixFC, 0x0A, 0x00, 0x00)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.buf = append(c.buf, OpI32Const)
	c.buf = AppendSLEB128(c.buf, int64(v))
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.buf = append(c.buf, OpI64Const)
	c.buf = AppendSLEB128(c.buf, v)
	return c
}

func (c *Code) I32Eqz() *Code { return c.op(OpI32Eqz) }
func (c *Code) I32Eq() *Code  { return c.op(OpI32Eq) }
func (c *Code) I32Ne() *Code  { return c.op(OpI32Ne) }
func (c *Code) I32LtU() *Code { return c.op(OpI32LtU) }
func (c *Code) I32GtU() *Code { return c.op(OpI32GtU) }
func (c *Code) I32Add() *Code { return c.op(OpI32Add) }
func (c *Code) I32Sub() *Code { return c.op(OpI32Sub) }
func (c *Code) I32Mul() *Code { return c.op(OpI32Mul) }
func (c *Code) I32And() *Code { return c.op(OpI32And) }
func (c *Code) I32Or() *Code  { return c.op(OpI32Or) }
func (c *Code) I32Shl() *Code { return c.op(OpI32Shl) }
func (c *Code) I32ShrU() *Code { return c.op(OpI32ShrU) }
