package testguest

const (
	opUnreachable   byte = 0x00
	opBlock         byte = 0x02
	opLoop          byte = 0x03
	opEnd           byte = 0x0B
	opBr            byte = 0x0C
	opBrIf          byte = 0x0D
	opReturn        byte = 0x0F
	opCall          byte = 0x10
	opDrop          byte = 0x1A
	opLocalGet      byte = 0x20
	opLocalSet      byte = 0x21
	opLocalTee      byte = 0x22
	opMemorySize    byte = 0x3F
	opMemoryGrow    byte = 0x40
	opI32Const      byte = 0x41
	opI64Const      byte = 0x42
	opI32Add        byte = 0x6A
	opI64Or         byte = 0x84
	opI64Shl        byte = 0x86
	opI64ExtendI32U byte = 0xAD
	opPrefixFC      byte = 0xFC
	opMemoryCopy    byte = 0x0A
	opMemoryFill    byte = 0x0B
	blockTypeEmpty  byte = 0x40
)

// Code is a function body under construction. Methods chain.
type Code struct {
	Buffer
}

// NewCode starts an empty body.
func NewCode() *Code {
	return &Code{}
}

func (c *Code) op(b ...byte) *Code {
	c.WriteBytes(b)
	return c
}

func (c *Code) Unreachable() *Code { return c.op(opUnreachable) }
func (c *Code) Block() *Code       { return c.op(opBlock, blockTypeEmpty) }
func (c *Code) Loop() *Code        { return c.op(opLoop, blockTypeEmpty) }
func (c *Code) End() *Code         { return c.op(opEnd) }
func (c *Code) Return() *Code      { return c.op(opReturn) }
func (c *Code) Drop() *Code        { return c.op(opDrop) }
func (c *Code) I32Add() *Code      { return c.op(opI32Add) }
func (c *Code) I64Or() *Code       { return c.op(opI64Or) }
func (c *Code) I64Shl() *Code      { return c.op(opI64Shl) }

func (c *Code) I64ExtendI32U() *Code { return c.op(opI64ExtendI32U) }

func (c *Code) Br(depth uint32) *Code {
	c.AppendByte(opBr)
	c.WriteU32(depth)
	return c
}

func (c *Code) BrIf(depth uint32) *Code {
	c.AppendByte(opBrIf)
	c.WriteU32(depth)
	return c
}

func (c *Code) Call(idx uint32) *Code {
	c.AppendByte(opCall)
	c.WriteU32(idx)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.AppendByte(opLocalGet)
	c.WriteU32(idx)
	return c
}

func (c *Code) LocalSet(idx uint32) *Code {
	c.AppendByte(opLocalSet)
	c.WriteU32(idx)
	return c
}

func (c *Code) LocalTee(idx uint32) *Code {
	c.AppendByte(opLocalTee)
	c.WriteU32(idx)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.AppendByte(opI32Const)
	c.WriteI32(v)
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.AppendByte(opI64Const)
	c.WriteI64(v)
	return c
}

// U32 pushes v as an i32 constant.
func (c *Code) U32(v uint32) *Code {
	return c.I32Const(int32(v)) //nolint:gosec // G115: reinterpreted as i32 bits
}

// Packed pushes an i64 constant holding a packed pointer/length pair.
func (c *Code) Packed(ptr, length uint32) *Code {
	return c.I64Const(int64(uint64(ptr)<<32 | uint64(length))) //nolint:gosec // G115: bit pattern
}

func (c *Code) MemorySize() *Code { return c.op(opMemorySize, 0x00) }
func (c *Code) MemoryGrow() *Code { return c.op(opMemoryGrow, 0x00) }

// MemoryCopy pops dest, src and n.
func (c *Code) MemoryCopy() *Code { return c.op(opPrefixFC, opMemoryCopy, 0x00, 0x00) }

// MemoryFill pops dest, value and n.
func (c *Code) MemoryFill() *Code { return c.op(opPrefixFC, opMemoryFill, 0x00) }

// PackI32Pair packs two i32 locals into an i64 (ptr high, len low).
func (c *Code) PackI32Pair(ptrLocal, lenLocal uint32) *Code {
	return c.LocalGet(ptrLocal).I64ExtendI32U().I64Const(32).I64Shl().
		LocalGet(lenLocal).I64ExtendI32U().I64Or()
}
