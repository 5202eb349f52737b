package structure

import (
	"github.com/wippyai/membind/errors"
)

// Value reads the whole instance as a Go value:
//
//	primitive      the member value
//	enumeration    *EnumItem, or NoMatch
//	error set      *errors.Token, nil for no error
//	optional       the payload, or nil when absent
//	error union    the payload, or (nil, *errors.Token)
//	tagged/bare    the active arm's value
//	pointer, slice the target instance (see Deref)
//	array          []any of elements
//	struct         map[string]any of members
func (i *Instance) Value() (any, error) {
	s := i.structure
	switch s.kind {
	case KindPrimitive:
		return readMember(i, &s.members[0])
	case KindEnumeration, KindErrorSet:
		m := s.selfMember()
		return readEnum(i, &m)
	case KindOptional:
		ok, err := i.present()
		if err != nil || !ok {
			return nil, err
		}
		return readMember(i, &s.members[0])
	case KindErrorUnion:
		return i.result()
	case KindPointer, KindSlice:
		t, err := i.Deref()
		if t == nil || err != nil {
			return nil, err
		}
		return t, nil
	case KindTaggedUnion, KindBareUnion:
		name, err := i.Active()
		if err != nil || name == "" {
			return nil, err
		}
		return i.Get(name)
	case KindArray:
		out := make([]any, 0, i.Len())
		for n := 0; n < i.Len(); n++ {
			v, err := i.Index(n)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case KindStruct, KindArgStruct:
		out := make(map[string]any, len(s.members))
		for _, m := range s.members {
			v, err := i.Get(m.Name)
			if err != nil {
				return nil, err
			}
			out[m.Name] = v
		}
		return out, nil
	}
	return nil, errors.Unsupported(errors.PhaseGet, "value of "+s.kind.String())
}

// selfMember is member[0] of an enumeration or error set bound to the
// structure itself.
func (s *Structure) selfMember() member {
	m := s.members[0]
	m.Structure = s
	return m
}

func (i *Instance) setEnum(v any) error {
	m := i.structure.selfMember()
	return writeEnum(i, &m, v)
}

// present reports whether an optional holds a value.
func (i *Instance) present() (bool, error) {
	s := i.structure
	if len(s.members) == 1 {
		c, err := i.child(&s.members[0])
		if err != nil {
			return false, err
		}
		if c.slots[0] != nil {
			return true, nil
		}
		addr, _, err := c.reference()
		return addr != 0, err
	}
	v, err := readMember(i, &s.members[1])
	if err != nil {
		return false, err
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case uint64:
		return x != 0, nil
	}
	return false, nil
}

// setPresent stores v as the optional's payload; nil clears it.
func (i *Instance) setPresent(v any) error {
	s := i.structure
	payload := &s.members[0]
	if v == nil {
		if len(s.members) == 1 {
			c, err := i.child(payload)
			if err != nil {
				return err
			}
			return c.SetTarget(nil)
		}
		clear(i.Bytes())
		delete(i.slots, payload.Slot)
		return nil
	}
	if err := writeMember(i, payload, v); err != nil {
		return err
	}
	if len(s.members) == 1 {
		return nil
	}
	flag := &s.members[1]
	if flag.Kind == MemberBool {
		return writeMember(i, flag, true)
	}
	return writeMember(i, flag, 1)
}

// result reads an error union, returning the token as the error when set.
func (i *Instance) result() (any, error) {
	s := i.structure
	e, err := readMember(i, &s.members[1])
	if err != nil {
		return nil, err
	}
	if tok, ok := e.(*errors.Token); ok && tok != nil {
		return nil, tok
	}
	return readMember(i, &s.members[0])
}

// setResult stores a payload and clears the error, or stores an error
// token when v is one.
func (i *Instance) setResult(v any) error {
	s := i.structure
	if tok, ok := v.(*errors.Token); ok {
		return writeMember(i, &s.members[1], tok)
	}
	if err := writeMember(i, &s.members[0], v); err != nil {
		return err
	}
	return writeMember(i, &s.members[1], nil)
}
