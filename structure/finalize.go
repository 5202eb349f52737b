package structure

import (
	"strconv"

	"github.com/wippyai/membind/codec"
	"github.com/wippyai/membind/errors"
	"github.com/wippyai/membind/lifetime"
)

type finalizer func(r *Registry, s *Structure) error

var finalizers = map[Kind]finalizer{
	KindPrimitive:   finalizePrimitive,
	KindArray:       finalizeArray,
	KindStruct:      finalizeStruct,
	KindArgStruct:   finalizeArgStruct,
	KindExternUnion: finalizeStruct,
	KindBareUnion:   finalizeStruct,
	KindTaggedUnion: finalizeTaggedUnion,
	KindErrorUnion:  finalizeErrorUnion,
	KindErrorSet:    finalizeEnumeration,
	KindEnumeration: finalizeEnumeration,
	KindOptional:    finalizeOptional,
	KindPointer:     finalizePointer,
	KindSlice:       finalizeSlice,
	KindOpaque:      finalizeOpaque,
}

func (r *Registry) finalize(s *Structure) error {
	if err := s.layoutMembers(); err != nil {
		return err
	}
	if err := r.buildStatics(s); err != nil {
		return err
	}
	if err := finalizers[s.kind](r, s); err != nil {
		return err
	}
	if err := r.bindMethods(s); err != nil {
		return err
	}
	if s.align == 0 {
		s.align = 1
	}
	return nil
}

// layoutMembers validates instance members against the structure's size
// and indexes them by name and slot.
func (s *Structure) layoutMembers() error {
	s.members = make([]member, len(s.instanceMembers))
	s.byName = make(map[string]*member, len(s.instanceMembers))
	s.slotMembers = make(map[int]*member)

	for idx, m := range s.instanceMembers {
		if err := checkMember(s, m); err != nil {
			return err
		}
		s.members[idx] = member{Member: m, index: idx}
	}
	for idx := range s.members {
		m := &s.members[idx]
		if m.Name != "" {
			s.byName[m.Name] = m
		}
		if m.Kind == MemberObject && s.kind != KindArray {
			if _, dup := s.slotMembers[m.Slot]; dup {
				return errors.InvalidData(errors.PhaseFinalize, []string{m.Name},
					"slot "+strconv.Itoa(m.Slot)+" used twice")
			}
			s.slotMembers[m.Slot] = m
		}
	}
	return nil
}

func checkMember(s *Structure, m Member) error {
	path := []string{m.Name}
	switch m.Kind {
	case MemberFloat:
		if _, err := codec.NewFloat(m.BitOffset, m.BitSize); err != nil {
			return errors.WithPath(err, m.Name)
		}
	case MemberInt, MemberBool, MemberEnumItem:
		if m.BitSize == 0 {
			return errors.InvalidData(errors.PhaseFinalize, path, "zero width "+m.Kind.String())
		}
	case MemberObject:
		if m.Structure == nil {
			return errors.InvalidData(errors.PhaseFinalize, path, "object member without structure")
		}
	}
	if m.Kind == MemberEnumItem && m.Structure != nil &&
		m.Structure.kind != KindEnumeration && m.Structure.kind != KindErrorSet {
		return errors.InvalidData(errors.PhaseFinalize, path, "enum item must reference an enumeration or error set")
	}
	if s.byteSize == 0 || m.Static {
		return nil
	}
	if m.BitOffset+m.BitSize > s.byteSize*8 {
		return errors.New(errors.PhaseFinalize, errors.KindOutOfBounds).
			Path(m.Name).
			Structure(s.name).
			Detail("member bits %d..%d exceed %d byte structure", m.BitOffset, m.BitOffset+m.BitSize, s.byteSize).
			Build()
	}
	return nil
}

// buildStatics backs static members with an instance of a synthesized
// struct whose members are the static members.
func (r *Registry) buildStatics(s *Structure) error {
	if len(s.staticMembers) == 0 && s.staticTemplate == nil {
		return nil
	}
	st := &Structure{
		registry: r,
		name:     s.name,
		kind:     KindStruct,
	}
	size := 0
	for _, m := range s.staticMembers {
		m.Static = false
		if m.Kind == MemberEnumItem && m.Structure == nil {
			m.Structure = s
		}
		st.instanceMembers = append(st.instanceMembers, m)
		size = max(size, (m.BitOffset+m.BitSize+7)/8)
	}
	if err := st.layoutMembers(); err != nil {
		return err
	}
	st.finalized = true

	inst := s.staticTemplate
	if inst == nil {
		inst = &Instance{buffer: newHostBuffer(size), length: size}
	} else if inst.length < size {
		return errors.New(errors.PhaseFinalize, errors.KindOutOfBounds).
			Structure(s.name).
			Detail("static template has %d bytes, members need %d", inst.length, size).
			Build()
	}
	st.byteSize = inst.length
	inst.structure = st
	s.statics = inst
	return nil
}

// bindMethods checks arg structs and resolves thunks through the invoker.
func (r *Registry) bindMethods(s *Structure) error {
	all := append(append([]*Method(nil), s.methods...), s.staticMethods...)
	for _, m := range all {
		if err := m.ArgStruct.ready(errors.PhaseFinalize); err != nil {
			return errors.WithPath(err, m.Name)
		}
		if r.invoker != nil {
			if err := r.bindThunk(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) bindThunk(m *Method) error {
	if m.thunk != nil {
		return nil
	}
	if r.invoker == nil {
		return errors.UnresolvedThunk(m.Name, uint32(m.Thunk), errors.IllegalState(errors.PhaseCall, "", "no invoker"))
	}
	if err := r.invoker.Resolve(m.Thunk); err != nil {
		return errors.UnresolvedThunk(m.Name, uint32(m.Thunk), err)
	}
	th := &thunk{module: r.module, handle: m.Thunk}
	var release func()
	if rel, ok := r.invoker.(Releaser); ok {
		h := m.Thunk
		release = func() { rel.Release(h) }
	}
	lifetime.Track(r.module, lifetime.Thunk, th, release)
	m.thunk = th
	return nil
}

// thunk is the host handle of a resolved foreign entry point.
type thunk struct {
	module *lifetime.ModuleRef
	handle ThunkHandle
}

func requireMembers(s *Structure, lo, hi int) error {
	if n := len(s.members); n < lo || n > hi {
		return errors.New(errors.PhaseFinalize, errors.KindInvalidData).
			Structure(s.name).
			Value(n).
			Detail("%s needs %d to %d members, has %d", s.kind, lo, hi, n).
			Build()
	}
	return nil
}

func finalizePrimitive(_ *Registry, s *Structure) error {
	if err := requireMembers(s, 1, 1); err != nil {
		return err
	}
	if s.members[0].Kind == MemberObject {
		return errors.InvalidData(errors.PhaseFinalize, []string{s.name}, "primitive cannot hold an object")
	}
	return nil
}

func finalizeStruct(_ *Registry, s *Structure) error {
	return nil
}

func finalizeArgStruct(_ *Registry, s *Structure) error {
	for _, m := range s.members {
		if m.Name == "" {
			return errors.InvalidData(errors.PhaseFinalize, []string{s.name}, "arg struct member without name")
		}
	}
	return nil
}

func finalizeOpaque(_ *Registry, s *Structure) error {
	return requireMembers(s, 0, 0)
}

func finalizeArray(_ *Registry, s *Structure) error {
	if err := requireMembers(s, 1, 1); err != nil {
		return err
	}
	elem := s.members[0].Member
	if elem.Kind == MemberVoid {
		return errors.InvalidData(errors.PhaseFinalize, []string{s.name}, "array of void")
	}
	s.stride = elem.ByteSize * 8
	if s.stride == 0 {
		s.stride = elem.BitSize
	}
	if s.stride == 0 {
		return errors.InvalidData(errors.PhaseFinalize, []string{s.name}, "zero element stride")
	}
	s.dynamic = s.byteSize == 0
	return nil
}

func finalizeTaggedUnion(_ *Registry, s *Structure) error {
	if err := requireMembers(s, 2, len(s.members)); err != nil {
		return err
	}
	sel := s.members[len(s.members)-1]
	if sel.Kind != MemberEnumItem && sel.Kind != MemberInt {
		return errors.InvalidData(errors.PhaseFinalize, []string{s.name, sel.Name}, "selector must be an enum item or int")
	}
	return nil
}

func finalizeErrorUnion(_ *Registry, s *Structure) error {
	if err := requireMembers(s, 2, 2); err != nil {
		return err
	}
	e := s.members[1]
	if e.Kind != MemberEnumItem || e.Structure.kind != KindErrorSet {
		return errors.InvalidData(errors.PhaseFinalize, []string{s.name, e.Name}, "error member must reference an error set")
	}
	return nil
}

func finalizeOptional(_ *Registry, s *Structure) error {
	if err := requireMembers(s, 1, 2); err != nil {
		return err
	}
	if len(s.members) == 1 {
		p := s.members[0]
		if p.Kind != MemberObject || !p.Structure.kind.IsReference() {
			return errors.InvalidData(errors.PhaseFinalize, []string{s.name},
				"optional without present flag needs a pointer payload")
		}
		return nil
	}
	if k := s.members[1].Kind; k != MemberBool && k != MemberInt {
		return errors.InvalidData(errors.PhaseFinalize, []string{s.name}, "present flag must be bool or int")
	}
	return nil
}

func finalizePointer(r *Registry, s *Structure) error {
	if err := requireMembers(s, 1, 1); err != nil {
		return err
	}
	m := s.members[0]
	if m.Kind != MemberObject {
		return errors.InvalidData(errors.PhaseFinalize, []string{s.name}, "pointer target must be an object member")
	}
	if m.BitSize != r.addressSize*8 {
		return errors.New(errors.PhaseFinalize, errors.KindInvalidData).
			Structure(s.name).
			Value(m.BitSize).
			Detail("address is %d bits, module uses %d", m.BitSize, r.addressSize*8).
			Build()
	}
	s.address = codec.Int{BitOffset: m.BitOffset, BitSize: m.BitSize}
	return nil
}

func finalizeSlice(r *Registry, s *Structure) error {
	if err := requireMembers(s, 3, 3); err != nil {
		return err
	}
	addr, length := s.members[1], s.members[2]
	if addr.Kind != MemberInt || length.Kind != MemberInt {
		return errors.InvalidData(errors.PhaseFinalize, []string{s.name}, "slice address and length must be ints")
	}
	if addr.BitSize != r.addressSize*8 {
		return errors.InvalidData(errors.PhaseFinalize, []string{s.name, addr.Name}, "address width mismatch")
	}
	if length.BitSize > 64 {
		return errors.InvalidData(errors.PhaseFinalize, []string{s.name, length.Name}, "length wider than 64 bits")
	}
	s.address = codec.Int{BitOffset: addr.BitOffset, BitSize: addr.BitSize}
	s.count = codec.Int{BitOffset: length.BitOffset, BitSize: length.BitSize}

	elem := s.members[0].Member
	elem.BitOffset = 0
	arr := &Structure{
		registry:        r,
		name:            s.name + "[..]",
		kind:            KindArray,
		align:           s.align,
		instanceMembers: []Member{elem},
	}
	if err := arr.layoutMembers(); err != nil {
		return err
	}
	if err := finalizeArray(r, arr); err != nil {
		return err
	}
	arr.finalized = true
	s.array = arr
	return nil
}
