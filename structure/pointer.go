package structure

import (
	"math"
	"math/bits"

	"github.com/wippyai/membind"
	"github.com/wippyai/membind/errors"
)

// Deref returns the target of a pointer, or the elements of a slice as a
// dynamically sized array. A null pointer yields nil.
func (i *Instance) Deref() (*Instance, error) {
	s := i.structure
	if !s.kind.IsReference() {
		return nil, errors.IllegalState(errors.PhaseGet, s.name, "not a pointer or slice")
	}
	addr, count, err := i.reference()
	if err != nil {
		return nil, err
	}
	if t := i.slots[0]; t != nil {
		ta, foreign := t.Address()
		if !foreign || (ta == addr && (s.kind == KindPointer || t.Len() == count)) {
			return t, nil
		}
	}
	if addr == 0 {
		delete(i.slots, 0)
		return nil, nil
	}

	var t *Instance
	if s.kind == KindPointer {
		target := s.members[0].Structure
		t, err = target.viewAt(addr, target.byteSize)
	} else {
		var n int
		if n, err = s.array.extent(count); err == nil {
			t, err = s.array.viewAt(addr, n)
		}
	}
	if err != nil {
		return nil, err
	}
	i.putSlot(0, t)
	return t, nil
}

// SetTarget points the pointer or slice at t. A nil t makes it null.
// Targets in host memory have no address until a call copies them into
// foreign memory.
func (i *Instance) SetTarget(t *Instance) error {
	s := i.structure
	if !s.kind.IsReference() {
		return errors.IllegalState(errors.PhaseSet, s.name, "not a pointer or slice")
	}
	if t == nil {
		delete(i.slots, 0)
		return i.writeReference(0, 0)
	}
	if !s.accepts(t.structure) {
		return errors.TypeMismatch(errors.PhaseSet, nil, t, s.name+" target")
	}
	addr, _ := t.Address()
	if err := i.writeReference(addr, t.Len()); err != nil {
		return err
	}
	i.putSlot(0, t)
	return nil
}

// accepts reports whether instances of t can be referenced.
func (s *Structure) accepts(t *Structure) bool {
	if s.kind == KindPointer {
		return s.members[0].Structure == t
	}
	if t == s.array {
		return true
	}
	if t.kind != KindArray {
		return false
	}
	a, b := s.array.members[0], t.members[0]
	return a.Kind == b.Kind && a.BitSize == b.BitSize && a.Signed == b.Signed &&
		a.Structure == b.Structure && s.array.stride == t.stride
}

func (i *Instance) reference() (membind.Address, int, error) {
	if err := i.usable(errors.PhaseGet); err != nil {
		return 0, 0, err
	}
	s := i.structure
	b := i.Bytes()
	raw, err := s.address.Get(b)
	if err != nil {
		return 0, 0, err
	}
	if a := raw.(uint64); a > math.MaxUint32 {
		return 0, 0, errors.New(errors.PhaseGet, errors.KindOutOfBounds).
			Structure(s.name).
			Value(a).
			Detail("address 0x%x is outside foreign memory", a).
			Build()
	}
	addr := membind.Address(raw.(uint64))
	if s.kind == KindPointer {
		return addr, 0, nil
	}
	n, err := s.count.Get(b)
	if err != nil {
		return 0, 0, err
	}
	if c := n.(uint64); c > math.MaxInt {
		return 0, 0, errors.New(errors.PhaseGet, errors.KindOutOfBounds).
			Structure(s.name).
			Value(c).
			Detail("length %d does not fit in int", c).
			Build()
	}
	return addr, int(n.(uint64)), nil
}

// extent returns the byte size of count elements of array s. Sizes beyond
// the 32-bit foreign address space are rejected.
func (s *Structure) extent(count int) (int, error) {
	hi, lo := bits.Mul64(uint64(count), uint64(s.stride))
	if hi != 0 || lo/8 > math.MaxUint32 {
		return 0, errors.New(errors.PhaseGet, errors.KindOutOfBounds).
			Structure(s.name).
			Value(count).
			Detail("%d elements exceed the foreign address space", count).
			Build()
	}
	return int(lo / 8), nil
}

func (i *Instance) writeReference(addr membind.Address, count int) error {
	if err := i.usable(errors.PhaseSet); err != nil {
		return err
	}
	s := i.structure
	b := i.Bytes()
	if err := s.address.Set(b, addr); err != nil {
		return err
	}
	if s.kind == KindSlice {
		return s.count.Set(b, count)
	}
	return nil
}
