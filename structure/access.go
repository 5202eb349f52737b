package structure

import (
	"github.com/wippyai/membind/codec"
	"github.com/wippyai/membind/errors"
)

// readMember decodes one member of i.
func readMember(i *Instance, m *member) (any, error) {
	if err := i.usable(errors.PhaseGet); err != nil {
		return nil, err
	}
	switch m.Kind {
	case MemberBool:
		return codec.Bool{BitOffset: m.BitOffset, BitSize: m.BitSize}.Get(i.Bytes())
	case MemberInt:
		return codec.Int{BitOffset: m.BitOffset, BitSize: m.BitSize, Signed: m.Signed}.Get(i.Bytes())
	case MemberFloat:
		c, err := codec.NewFloat(m.BitOffset, m.BitSize)
		if err != nil {
			return nil, err
		}
		return c.Get(i.Bytes())
	case MemberEnumItem:
		return readEnum(i, m)
	case MemberObject:
		return i.child(m)
	case MemberType:
		return readType(i, m)
	case MemberVoid:
		return nil, nil
	}
	return nil, errors.Unsupported(errors.PhaseGet, "member kind "+m.Kind.String())
}

// writeMember encodes v into one member of i. Object members copy v into
// the child view, or rebind it when the child is a pointer.
func writeMember(i *Instance, m *member, v any) error {
	if err := i.usable(errors.PhaseSet); err != nil {
		return err
	}
	switch m.Kind {
	case MemberBool:
		return codec.Bool{BitOffset: m.BitOffset, BitSize: m.BitSize}.Set(i.Bytes(), v)
	case MemberInt:
		return codec.Int{BitOffset: m.BitOffset, BitSize: m.BitSize, Signed: m.Signed}.Set(i.Bytes(), v)
	case MemberFloat:
		c, err := codec.NewFloat(m.BitOffset, m.BitSize)
		if err != nil {
			return err
		}
		return c.Set(i.Bytes(), v)
	case MemberEnumItem:
		return writeEnum(i, m, v)
	case MemberObject:
		c, err := i.child(m)
		if err != nil {
			return err
		}
		return c.assign(v)
	case MemberType:
		return writeType(i, m, v)
	case MemberVoid:
		if v != nil {
			return errors.TypeMismatch(errors.PhaseSet, nil, v, "void")
		}
		return nil
	}
	return errors.Unsupported(errors.PhaseSet, "member kind "+m.Kind.String())
}

// readType returns the structure named by a Type member: the fixed
// reference when the description carries one, else the id in memory.
func readType(i *Instance, m *member) (any, error) {
	if m.Structure != nil {
		return m.Structure, nil
	}
	raw, err := codec.Int{BitOffset: m.BitOffset, BitSize: m.BitSize}.Get(i.Bytes())
	if err != nil {
		return nil, err
	}
	id, _ := codec.ToUint64(raw)
	if id == 0 {
		return nil, nil
	}
	s, ok := i.structure.registry.ByID(uint32(id))
	if !ok {
		return nil, errors.New(errors.PhaseGet, errors.KindInvalidData).
			Value(id).
			Detail("no structure with id %d", id).
			Build()
	}
	return s, nil
}

func writeType(i *Instance, m *member, v any) error {
	s, ok := v.(*Structure)
	if !ok && v != nil {
		return errors.TypeMismatch(errors.PhaseSet, nil, v, "*Structure")
	}
	if m.Structure != nil {
		if s != m.Structure {
			return errors.TypeMismatch(errors.PhaseSet, nil, v, m.Structure.name)
		}
		return nil
	}
	var id uint32
	if s != nil {
		id = s.id
	}
	return codec.Int{BitOffset: m.BitOffset, BitSize: m.BitSize}.Set(i.Bytes(), id)
}
