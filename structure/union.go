package structure

import (
	"github.com/wippyai/membind/codec"
	"github.com/wippyai/membind/errors"
)

// checkArm rejects reads of a union arm that is known not to be active.
func (i *Instance) checkArm(m *member) error {
	s := i.structure
	switch s.kind {
	case KindTaggedUnion:
		if m.index == len(s.members)-1 {
			return nil
		}
		idx, err := i.taggedArm()
		if err != nil {
			return err
		}
		if idx != m.index {
			return errors.InactiveUnionMember(s.name, m.Name, i.armName(idx))
		}
	case KindBareUnion:
		if i.active != 0 && i.active-1 != m.index {
			return errors.InactiveUnionMember(s.name, m.Name, s.members[i.active-1].Name)
		}
	}
	return nil
}

func (i *Instance) armName(idx int) string {
	if idx < 0 {
		return "<none>"
	}
	return i.structure.members[idx].Name
}

// taggedArm returns the arm index named by the selector, or -1.
func (i *Instance) taggedArm() (int, error) {
	s := i.structure
	sel := &s.members[len(s.members)-1]
	v, err := readMember(i, sel)
	if err != nil {
		return -1, errors.WithPath(err, sel.Name)
	}
	arms := len(s.members) - 1
	switch x := v.(type) {
	case *EnumItem:
		if m := s.byName[x.name]; m != nil && m.index < arms {
			return m.index, nil
		}
		return -1, nil
	default:
		n, ok := codec.ToInt64(x)
		if !ok || n < 0 || n >= int64(arms) {
			return -1, nil
		}
		return int(n), nil
	}
}

// setArm writes the payload of arm m and then points the selector at it.
func (i *Instance) setArm(m *member, v any) error {
	s := i.structure
	sel := &s.members[len(s.members)-1]

	var tag any = int64(m.index)
	if sel.Kind == MemberEnumItem {
		if sel.Structure.enum == nil {
			return errors.IllegalState(errors.PhaseSet, sel.Structure.name, "enumeration is not finalized")
		}
		idx, ok := sel.Structure.enum.byName[m.Name]
		if !ok {
			return errors.New(errors.PhaseSet, errors.KindInvalidData).
				Structure(s.name).
				Path(m.Name).
				Detail("selector %s has no enumerator for arm", sel.Structure.name).
				Build()
		}
		tag = sel.Structure.enum.items[idx]
	}
	i.dropArms(m.index)
	if err := writeMember(i, m, v); err != nil {
		return err
	}
	return errors.WithPath(writeMember(i, sel, tag), sel.Name)
}

// selectArm records the active arm of a bare union.
func (i *Instance) selectArm(idx int) {
	i.dropArms(idx)
	if i.structure.registry.runtimeSafety {
		i.active = idx + 1
	}
}

// dropArms forgets the child views of every arm except keep.
func (i *Instance) dropArms(keep int) {
	for slot, m := range i.structure.slotMembers {
		if m.index != keep {
			delete(i.slots, slot)
		}
	}
}
