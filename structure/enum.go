package structure

import (
	"math/big"

	"github.com/wippyai/membind/codec"
	"github.com/wippyai/membind/errors"
)

// EnumItem is one enumerator. Items are singletons per structure, so they
// compare by identity.
type EnumItem struct {
	structure *Structure
	raw       *big.Int
	value     any
	name      string
	index     int
}

// NoMatch is returned when an enumeration member holds a raw value that
// names no enumerator, and by Convert for names and values that match none.
var NoMatch = &EnumItem{name: "<no match>", index: -1}

// Name returns the enumerator name.
func (e *EnumItem) Name() string { return e.name }

// Index returns the declaration position, or -1 for NoMatch.
func (e *EnumItem) Index() int { return e.index }

// Value returns the raw value as int64, uint64 or *big.Int.
func (e *EnumItem) Value() any { return e.value }

// Structure returns the owning enumeration.
func (e *EnumItem) Structure() *Structure { return e.structure }

func (e *EnumItem) String() string {
	if e.structure == nil {
		return e.name
	}
	return e.structure.name + "." + e.name
}

// enumTable maps between raw values and enumerators or error tokens.
type enumTable struct {
	byName     map[string]int
	items      []*EnumItem
	tokens     []*errors.Token
	raws       []*big.Int
	sequential bool
}

func finalizeEnumeration(r *Registry, s *Structure) error {
	if err := requireMembers(s, 1, 1); err != nil {
		return err
	}
	rawMember := s.members[0]
	if rawMember.Kind != MemberInt {
		return errors.InvalidData(errors.PhaseFinalize, []string{s.name}, "raw value member must be an int")
	}
	t := &enumTable{byName: make(map[string]int), sequential: true}
	for _, m := range s.staticMembers {
		if m.Kind != MemberEnumItem || (m.Structure != nil && m.Structure != s) {
			continue
		}
		c := codec.Int{BitOffset: m.BitOffset, BitSize: m.BitSize, Signed: m.Signed}
		raw, err := c.GetBig(s.statics.Bytes())
		if err != nil {
			return errors.WithPath(err, m.Name)
		}
		idx := len(t.raws)
		if !raw.IsInt64() || raw.Int64() != int64(idx) {
			t.sequential = false
		}
		t.byName[m.Name] = idx
		t.raws = append(t.raws, raw)

		if s.kind == KindErrorSet {
			if !raw.IsUint64() || raw.Sign() == 0 {
				return errors.InvalidData(errors.PhaseFinalize, []string{m.Name}, "error code must be a positive integer")
			}
			tok, err := r.token(m.Name, raw.Uint64())
			if err != nil {
				return err
			}
			t.tokens = append(t.tokens, tok)
			continue
		}
		t.items = append(t.items, &EnumItem{
			structure: s,
			raw:       raw,
			value:     nativeInt(raw, rawMember.BitSize, rawMember.Signed),
			name:      m.Name,
			index:     idx,
		})
	}
	s.enum = t
	return nil
}

func nativeInt(v *big.Int, bits int, signed bool) any {
	switch {
	case bits > 64:
		return new(big.Int).Set(v)
	case signed:
		return v.Int64()
	default:
		return v.Uint64()
	}
}

// lookup returns the index of the enumerator with raw value v, or -1.
func (t *enumTable) lookup(v *big.Int) int {
	if t.sequential {
		if v.IsInt64() && v.Int64() >= 0 && v.Int64() < int64(len(t.raws)) {
			return int(v.Int64())
		}
		return -1
	}
	for idx, raw := range t.raws {
		if raw.Cmp(v) == 0 {
			return idx
		}
	}
	return -1
}

// find maps an item, a name or a raw number to an enumerator index. A name
// or raw value naming no enumerator yields -1 without an error.
func (t *enumTable) find(s *Structure, v any) (int, error) {
	switch x := v.(type) {
	case *EnumItem:
		if x.structure != s {
			return -1, errors.TypeMismatch(errors.PhaseSet, nil, v, "item of "+s.name)
		}
		return x.index, nil
	case *errors.Token:
		if idx := t.lookup(new(big.Int).SetUint64(x.Code)); idx >= 0 && t.tokens[idx] == x {
			return idx, nil
		}
		return -1, errors.TypeMismatch(errors.PhaseSet, nil, v, "error of "+s.name)
	case string:
		if idx, ok := t.byName[x]; ok {
			return idx, nil
		}
		return -1, nil
	}
	raw, ok := codec.ToBig(v)
	if !ok {
		return -1, errors.TypeMismatch(errors.PhaseSet, nil, v, s.name)
	}
	return t.lookup(raw), nil
}

// resolve is find with a miss reported as a type mismatch.
func (t *enumTable) resolve(s *Structure, v any) (int, error) {
	idx, err := t.find(s, v)
	if err != nil || idx >= 0 {
		return idx, err
	}
	b := errors.New(errors.PhaseSet, errors.KindTypeMismatch).Structure(s.name).Value(v)
	if name, ok := v.(string); ok {
		return -1, b.Detail("no enumerator named %q", name).Build()
	}
	raw, _ := codec.ToBig(v)
	return -1, b.Detail("no enumerator with raw value %s", raw).Build()
}

// token maps v to an error token of the set; nil and zero mean no error.
func (t *enumTable) token(s *Structure, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if tok, ok := v.(*errors.Token); ok && tok == nil {
		return nil, nil
	}
	if raw, ok := codec.ToBig(v); ok && raw.Sign() == 0 {
		return nil, nil
	}
	idx, err := t.resolve(s, v)
	if err != nil {
		return nil, err
	}
	return t.tokens[idx], nil
}

func enumCodec(m *member) codec.Int {
	return codec.Int{BitOffset: m.BitOffset, BitSize: m.BitSize, Signed: m.Signed}
}

// readEnum decodes an EnumItem member to *EnumItem, or for error sets to
// *errors.Token with nil for code zero.
func readEnum(i *Instance, m *member) (any, error) {
	s := m.Structure
	if s.enum == nil {
		return nil, errors.IllegalState(errors.PhaseGet, s.name, "enumeration is not finalized")
	}
	if err := i.usable(errors.PhaseGet); err != nil {
		return nil, err
	}
	raw, err := enumCodec(m).GetBig(i.Bytes())
	if err != nil {
		return nil, err
	}
	idx := s.enum.lookup(raw)
	if s.kind == KindErrorSet {
		if raw.Sign() == 0 {
			return nil, nil
		}
		if idx < 0 {
			return nil, errors.New(errors.PhaseGet, errors.KindInvalidData).
				Structure(s.name).
				Value(raw).
				Detail("unknown error code %s", raw).
				Build()
		}
		return s.enum.tokens[idx], nil
	}
	if idx < 0 {
		return NoMatch, nil
	}
	return s.enum.items[idx], nil
}

func writeEnum(i *Instance, m *member, v any) error {
	s := m.Structure
	if s.enum == nil {
		return errors.IllegalState(errors.PhaseSet, s.name, "enumeration is not finalized")
	}
	if err := i.usable(errors.PhaseSet); err != nil {
		return err
	}
	c := enumCodec(m)
	if s.kind == KindErrorSet {
		tok, err := s.enum.token(s, v)
		if err != nil {
			return err
		}
		if tok == nil {
			return c.Set(i.Bytes(), 0)
		}
		return c.Set(i.Bytes(), tok.(*errors.Token).Code)
	}
	idx, err := s.enum.resolve(s, v)
	if err != nil {
		return err
	}
	return c.Set(i.Bytes(), s.enum.raws[idx])
}
