package wasmgen

// Opcodes used by generated function bodies.
const (
	OpUnreachable byte = 0x00
	OpIf          byte = 0x04
	OpEnd         byte = 0x0B
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A
	OpLocalGet    byte = 0x20
	OpI32Load     byte = 0x28
	OpI32Store    byte = 0x36
	OpI32Const    byte = 0x41
	OpI64Const    byte = 0x42
	OpI32Eq       byte = 0x46
	OpI32Ne       byte = 0x47
	OpI32GeU      byte = 0x4F
	OpI32Add      byte = 0x6A
	OpI32And      byte = 0x71

	blockEmpty byte = 0x40
)

// Code builds an instruction sequence.
type Code struct {
	buf Buffer
}

func (c *Code) Op(op byte) *Code {
	c.buf.AppendByte(op)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.buf.AppendByte(OpLocalGet)
	c.buf.WriteU32(idx)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.buf.AppendByte(OpI32Const)
	c.buf.WriteI32(v)
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.buf.AppendByte(OpI64Const)
	c.buf.WriteI64(v)
	return c
}

// I32Load loads a 4-byte aligned value at base+offset.
func (c *Code) I32Load(offset uint32) *Code {
	c.buf.AppendByte(OpI32Load)
	c.buf.WriteU32(2)
	c.buf.WriteU32(offset)
	return c
}

// I32Store stores a 4-byte aligned value at base+offset.
func (c *Code) I32Store(offset uint32) *Code {
	c.buf.AppendByte(OpI32Store)
	c.buf.WriteU32(2)
	c.buf.WriteU32(offset)
	return c
}

func (c *Code) Call(funcIdx uint32) *Code {
	c.buf.AppendByte(OpCall)
	c.buf.WriteU32(funcIdx)
	return c
}

// If opens a block with no result.
func (c *Code) If() *Code {
	c.buf.AppendByte(OpIf)
	c.buf.AppendByte(blockEmpty)
	return c
}

func (c *Code) End() *Code {
	c.buf.AppendByte(OpEnd)
	return c
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.buf.Bytes
}
