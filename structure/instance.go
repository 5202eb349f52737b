package structure

import (
	"context"
	"iter"
	"strconv"

	"github.com/wippyai/membind"
	"github.com/wippyai/membind/errors"
)

// Instance is a live view of one value of a Structure. Its bytes are a
// window into a Buffer; nested objects and pointer targets hang off the
// slot map.
type Instance struct {
	structure *Structure
	buffer    *Buffer
	slots     map[int]*Instance
	offset    int
	length    int
	// active is the tracked bare union arm plus one; zero means unknown.
	active int
}

// NewTemplate wraps bytes and slot children as a template for
// Registry.AttachTemplate. The bytes are copied.
func NewTemplate(b []byte, slots map[int]*Instance) *Instance {
	buf := newHostBuffer(len(b))
	copy(buf.bytes, b)
	t := &Instance{buffer: buf, length: len(b)}
	for k, v := range slots {
		t.putSlot(k, v)
	}
	return t
}

// Structure returns the instance's type.
func (i *Instance) Structure() *Structure {
	return i.structure
}

// Buffer returns the memory block the instance views into.
func (i *Instance) Buffer() *Buffer {
	return i.buffer
}

// Bytes returns the instance's bytes, or nil when the backing memory is
// gone. Writes are visible to the owner of the memory.
func (i *Instance) Bytes() []byte {
	b := i.buffer.Bytes()
	if len(b) < i.offset+i.length {
		return nil
	}
	return b[i.offset : i.offset+i.length]
}

func (i *Instance) usable(phase errors.Phase) error {
	var name string
	if i.structure != nil {
		name = i.structure.name
	}
	return i.buffer.usable(phase, name)
}

// Address returns the instance's foreign address when it lives in foreign
// memory.
func (i *Instance) Address() (membind.Address, bool) {
	if !i.buffer.foreign {
		return 0, false
	}
	return i.buffer.address + membind.Address(i.offset), true
}

// Slot returns the child stored in slot n, or nil.
func (i *Instance) Slot(n int) *Instance {
	return i.slots[n]
}

func (i *Instance) putSlot(n int, c *Instance) {
	if c == nil {
		delete(i.slots, n)
		return
	}
	if i.slots == nil {
		i.slots = make(map[int]*Instance)
	}
	i.slots[n] = c
}

// Get reads a named member.
func (i *Instance) Get(name string) (any, error) {
	s := i.structure
	if !s.kind.hasFields() {
		return nil, errors.IllegalState(errors.PhaseGet, s.name, s.kind.String()+" has no named members, use Value")
	}
	m, err := s.member(errors.PhaseGet, name)
	if err != nil {
		return nil, err
	}
	if err := i.checkArm(m); err != nil {
		return nil, err
	}
	v, err := readMember(i, m)
	return v, errors.WithPath(err, name)
}

// Set writes a named member. Object members receive a copy of the value;
// pointer members are rebound when given a target instance.
func (i *Instance) Set(name string, v any) error {
	s := i.structure
	if !s.kind.hasFields() {
		return errors.IllegalState(errors.PhaseSet, s.name, s.kind.String()+" has no named members, use SetValue")
	}
	m, err := s.member(errors.PhaseSet, name)
	if err != nil {
		return err
	}
	switch {
	case s.kind == KindTaggedUnion && m.index < len(s.members)-1:
		err = i.setArm(m, v)
	case s.kind == KindBareUnion:
		if err = writeMember(i, m, v); err == nil {
			i.selectArm(m.index)
		}
	default:
		err = writeMember(i, m, v)
	}
	return errors.WithPath(err, name)
}

// Len returns the element count of an array, or the member count of a
// struct-like instance.
func (i *Instance) Len() int {
	s := i.structure
	if s.kind == KindArray {
		return i.length * 8 / s.stride
	}
	return len(s.members)
}

// Index reads element n of an array.
func (i *Instance) Index(n int) (any, error) {
	m, err := i.element(errors.PhaseGet, n)
	if err != nil {
		return nil, err
	}
	v, err := readMember(i, &m)
	return v, errors.WithPath(err, strconv.Itoa(n))
}

// SetIndex writes element n of an array.
func (i *Instance) SetIndex(n int, v any) error {
	m, err := i.element(errors.PhaseSet, n)
	if err != nil {
		return err
	}
	return errors.WithPath(writeMember(i, &m, v), strconv.Itoa(n))
}

func (i *Instance) element(phase errors.Phase, n int) (member, error) {
	s := i.structure
	if s.kind != KindArray {
		return member{}, errors.IllegalState(phase, s.name, "not an array")
	}
	if n < 0 || n >= i.Len() {
		return member{}, errors.OutOfBounds(phase, []string{s.name}, n, i.Len())
	}
	m := s.members[0]
	m.BitOffset += n * s.stride
	m.Slot = n
	m.Name = strconv.Itoa(n)
	return m, nil
}

// All iterates array elements in order. Iteration stops at the first
// element that cannot be read.
func (i *Instance) All() iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		if i.structure.kind != KindArray {
			return
		}
		for n := 0; n < i.Len(); n++ {
			v, err := i.Index(n)
			if err != nil || !yield(n, v) {
				return
			}
		}
	}
}

// SetValue replaces the whole value.
func (i *Instance) SetValue(v any) error {
	return i.assign(v)
}

// Active returns the name of the selected union arm. An empty name means
// the arm is unknown or the selector matches no arm.
func (i *Instance) Active() (string, error) {
	s := i.structure
	switch s.kind {
	case KindTaggedUnion:
		idx, err := i.taggedArm()
		if err != nil || idx < 0 {
			return "", err
		}
		return s.members[idx].Name, nil
	case KindBareUnion:
		if i.active == 0 {
			return "", nil
		}
		return s.members[i.active-1].Name, nil
	default:
		return "", errors.IllegalState(errors.PhaseGet, s.name, "not a tagged or bare union")
	}
}

// Call invokes an instance method with the instance as receiver.
func (i *Instance) Call(ctx context.Context, name string, args ...any) (any, error) {
	m, ok := i.structure.methodByName(name, false)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "method", name)
	}
	if m.StaticOnly {
		return i.structure.registry.Invoke(ctx, m, nil, args...)
	}
	return i.structure.registry.Invoke(ctx, m, i, args...)
}

// child returns the view for an Object member, creating it on first use.
func (i *Instance) child(m *member) (*Instance, error) {
	if c := i.slots[m.Slot]; c != nil {
		return c, nil
	}
	if !m.byteAligned() {
		return nil, errors.InvalidData(errors.PhaseGet, []string{m.Name}, "object member is not byte aligned")
	}
	if err := m.Structure.ready(errors.PhaseGet); err != nil {
		return nil, err
	}
	off := i.offset + m.BitOffset/8
	n := m.byteLength()
	if off+n > i.offset+i.length {
		return nil, errors.OutOfBounds(errors.PhaseGet, []string{m.Name}, off-i.offset+n, i.length)
	}
	c := &Instance{structure: m.Structure, buffer: i.buffer, offset: off, length: n}
	i.putSlot(m.Slot, c)
	return c, nil
}

// slotView returns the child for slot n, creating it over this instance's
// own bytes. Reference kinds have no views; their slot 0 is the target.
func (i *Instance) slotView(n int) (*Instance, error) {
	s := i.structure
	if s.kind.IsReference() {
		return nil, nil
	}
	if s.kind == KindArray {
		if s.members[0].Kind != MemberObject {
			return nil, nil
		}
		m, err := i.element(errors.PhaseSet, n)
		if err != nil {
			return nil, err
		}
		return i.child(&m)
	}
	m := s.slotMembers[n]
	if m == nil {
		return nil, nil
	}
	return i.child(m)
}
