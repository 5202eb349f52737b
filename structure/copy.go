package structure

import (
	"reflect"
	"strconv"

	"github.com/wippyai/membind/errors"
)

// CopyFrom copies src's bytes into i and rebuilds i's child graph over its
// own memory. Pointer targets are shared, not copied.
func (i *Instance) CopyFrom(src *Instance) error {
	if src == i {
		return nil
	}
	if src.structure != i.structure {
		return errors.TypeMismatch(errors.PhaseSet, nil, src, i.structure.name)
	}
	if src.length != i.length {
		return errors.New(errors.PhaseSet, errors.KindTypeMismatch).
			Structure(i.structure.name).
			Detail("length %d does not match %d", src.length, i.length).
			Build()
	}
	if err := src.usable(errors.PhaseGet); err != nil {
		return err
	}
	if err := i.usable(errors.PhaseSet); err != nil {
		return err
	}
	copy(i.Bytes(), src.Bytes())
	i.slots = nil
	return i.copySlots(src)
}

// copySlots mirrors src's slots onto i.
func (i *Instance) copySlots(src *Instance) error {
	i.active = src.active
	if i.structure.kind.IsReference() {
		i.putSlot(0, src.slots[0])
		return nil
	}
	for n, sc := range src.slots {
		if sc == nil {
			continue
		}
		dc, err := i.slotView(n)
		if err != nil {
			return err
		}
		if dc == nil {
			continue
		}
		if err := dc.copySlots(sc); err != nil {
			return err
		}
	}
	return nil
}

// assign implements Object-member and whole-value assignment.
func (i *Instance) assign(v any) error {
	if err := i.usable(errors.PhaseSet); err != nil {
		return err
	}
	s := i.structure
	if x, ok := v.(*Instance); ok && x != nil {
		switch {
		case x.structure == s:
		case s.kind.IsReference():
			return i.SetTarget(x)
		case s.kind == KindOptional:
			return i.setPresent(x)
		case s.kind == KindErrorUnion:
			return i.setResult(x)
		}
		return i.CopyFrom(x)
	} else if ok {
		v = nil
	}
	if v == nil {
		return i.assignNil()
	}

	switch s.kind {
	case KindPrimitive:
		return writeMember(i, &s.members[0], v)
	case KindEnumeration, KindErrorSet:
		return i.setEnum(v)
	case KindStruct, KindArgStruct, KindExternUnion, KindBareUnion, KindTaggedUnion:
		return i.assignFields(v)
	case KindArray:
		return i.assignElements(v)
	case KindOptional:
		return i.setPresent(v)
	case KindErrorUnion:
		return i.setResult(v)
	case KindPointer, KindSlice:
		target := s.members[0].Structure
		if s.kind == KindSlice {
			target = s.array
		}
		t, err := target.New(v)
		if err != nil {
			return err
		}
		return i.SetTarget(t)
	}
	return errors.Unsupported(errors.PhaseSet, "assigning to "+s.kind.String())
}

func (i *Instance) assignNil() error {
	switch i.structure.kind {
	case KindPointer, KindSlice:
		return i.SetTarget(nil)
	case KindOptional:
		return i.setPresent(nil)
	case KindErrorSet:
		return i.setEnum(nil)
	case KindErrorUnion:
		if i.structure.members[0].Kind == MemberVoid {
			return i.setResult(nil)
		}
	}
	return errors.TypeMismatch(errors.PhaseSet, nil, nil, i.structure.name)
}

// assignFields accepts map[string]any for named members and []any for
// positional ones. Unions take exactly one entry.
func (i *Instance) assignFields(v any) error {
	s := i.structure
	var fields map[string]any
	switch x := v.(type) {
	case map[string]any:
		fields = x
	case []any:
		fields = make(map[string]any, len(x))
		for n, e := range x {
			fields[strconv.Itoa(n)] = e
		}
	default:
		return errors.TypeMismatch(errors.PhaseSet, nil, v, s.name)
	}
	if s.kind.IsUnion() && len(fields) != 1 {
		return errors.New(errors.PhaseSet, errors.KindTypeMismatch).
			Structure(s.name).
			Value(v).
			Detail("union initializer needs exactly one member, got %d", len(fields)).
			Build()
	}
	for _, m := range s.members {
		fv, ok := fields[m.Name]
		if !ok {
			continue
		}
		if err := i.Set(m.Name, fv); err != nil {
			return err
		}
	}
	for name := range fields {
		if _, ok := s.byName[name]; !ok {
			return errors.NotFound(errors.PhaseSet, "member", name)
		}
	}
	return nil
}

// assignElements accepts any Go slice or array of the right length, and
// strings for 8-bit integer elements.
func (i *Instance) assignElements(v any) error {
	if str, ok := v.(string); ok {
		v = []byte(str)
	}
	if b, ok := v.([]byte); ok && i.structure.stride == 8 && i.structure.members[0].Kind == MemberInt {
		if len(b) != i.Len() {
			return errors.OutOfBounds(errors.PhaseSet, []string{i.structure.name}, len(b), i.Len())
		}
		copy(i.Bytes(), b)
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return errors.TypeMismatch(errors.PhaseSet, nil, v, i.structure.name)
	}
	if rv.Len() != i.Len() {
		return errors.OutOfBounds(errors.PhaseSet, []string{i.structure.name}, rv.Len(), i.Len())
	}
	for n := 0; n < rv.Len(); n++ {
		if err := i.SetIndex(n, rv.Index(n).Interface()); err != nil {
			return err
		}
	}
	return nil
}
