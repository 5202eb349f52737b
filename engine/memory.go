package engine

import (
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/membind"
	"github.com/wippyai/membind/errors"
)

// Memory wraps a guest's linear memory. Views alias the memory until it
// grows; callers re-view when Size changes.
type Memory struct {
	mem    api.Memory
	closed atomic.Bool
}

var _ membind.Memory = (*Memory)(nil)

// View returns length bytes at addr.
func (m *Memory) View(addr membind.Address, length uint32) ([]byte, error) {
	if err := m.usable(); err != nil {
		return nil, err
	}
	data, ok := m.mem.Read(addr, length)
	if !ok {
		return nil, errors.New(errors.PhaseGet, errors.KindOutOfBounds).
			Value(addr).
			Detail("read out of bounds: offset=%d, length=%d", addr, length).
			Build()
	}
	return data, nil
}

// Size returns the memory size in bytes, or 0 once the guest is closed.
func (m *Memory) Size() uint32 {
	if m.mem == nil || m.closed.Load() {
		return 0
	}
	return m.mem.Size()
}

func (m *Memory) usable() error {
	if m.closed.Load() {
		return errors.IllegalState(errors.PhaseRuntime, "", "guest closed")
	}
	return nil
}

// ReadU32 reads a little-endian uint32.
func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	if err := m.usable(); err != nil {
		return 0, err
	}
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseGet, nil, int(offset), int(m.mem.Size()))
	}
	return val, nil
}

// WriteU32 writes a little-endian uint32.
func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if err := m.usable(); err != nil {
		return err
	}
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseSet, nil, int(offset), int(m.mem.Size()))
	}
	return nil
}
