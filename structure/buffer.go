package structure

import (
	"github.com/wippyai/membind"
	"github.com/wippyai/membind/errors"
	"github.com/wippyai/membind/lifetime"
)

// Buffer is one contiguous block of memory that instances view into. Host
// buffers live on the Go heap; foreign buffers alias the module's memory
// and are re-resolved when that memory grows.
type Buffer struct {
	memory  membind.Memory
	module  *lifetime.ModuleRef
	bytes   []byte
	size    uint32
	memSize uint32
	address membind.Address
	foreign bool
}

func newHostBuffer(n int) *Buffer {
	return &Buffer{bytes: make([]byte, n), size: uint32(n)}
}

// Foreign reports whether the buffer lives in foreign memory.
func (b *Buffer) Foreign() bool {
	return b.foreign
}

// Address returns the foreign address of the buffer's first byte.
func (b *Buffer) Address() membind.Address {
	return b.address
}

// Len returns the buffer length in bytes.
func (b *Buffer) Len() int {
	return int(b.size)
}

// Bytes returns the current backing bytes, or nil once the foreign memory
// is gone.
func (b *Buffer) Bytes() []byte {
	if b.memory != nil {
		if sz := b.memory.Size(); sz != b.memSize {
			v, err := b.memory.View(b.address, b.size)
			if err != nil {
				// the memory is gone; never hand out a stale view
				v = nil
			}
			b.bytes = v
			b.memSize = sz
		}
	}
	return b.bytes
}

// usable fails with an illegal state error once the backing memory can no
// longer be viewed.
func (b *Buffer) usable(phase errors.Phase, name string) error {
	if b.size > 0 && len(b.Bytes()) < int(b.size) {
		return errors.IllegalState(phase, name, "foreign memory is no longer available")
	}
	return nil
}
