package wasmtest

const (
	opEnd       = 0x0b
	opCall      = 0x10
	opDrop      = 0x1a
	opLocalGet  = 0x20
	opLocalSet  = 0x21
	opLocalTee  = 0x22
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI32Load   = 0x28
	opI32Store  = 0x36
	opI32Const  = 0x41
	opI32Add    = 0x6a
	opI32Sub    = 0x6b
	opI32And    = 0x71
)

// Code builds a function body.
type Code struct {
	w writer
}

func (c *Code) op(op byte, args ...uint32) *Code {
	c.w.byte(op)
	for _, a := range args {
		c.w.u32(a)
	}
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.w.byte(opI32Const)
	c.w.s64(int64(v))
	return c
}

func (c *Code) LocalGet(i uint32) *Code  { return c.op(opLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.op(opLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code  { return c.op(opLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.op(opGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.op(opGlobalSet, i) }
func (c *Code) Call(f uint32) *Code      { return c.op(opCall, f) }
func (c *Code) Drop() *Code              { return c.op(opDrop) }
func (c *Code) I32Add() *Code            { return c.op(opI32Add) }
func (c *Code) I32Sub() *Code            { return c.op(opI32Sub) }
func (c *Code) I32And() *Code            { return c.op(opI32And) }

// I32Load loads from the address on the stack plus offset.
func (c *Code) I32Load(offset uint32) *Code { return c.op(opI32Load, 2, offset) }

// I32Store stores to the address below the value plus offset.
func (c *Code) I32Store(offset uint32) *Code { return c.op(opI32Store, 2, offset) }

// End terminates the body and returns it.
func (c *Code) End() []byte {
	c.w.byte(opEnd)
	return c.w.buf.Bytes()
}
