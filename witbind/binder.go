package witbind

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/membind/errors"
	"github.com/wippyai/membind/structure"
)

// Param is one named function parameter.
type Param struct {
	Type wit.Type
	Name string
}

// Binder describes WIT types into a registry with canonical ABI layout
// for 32-bit memories. Each type is described once; later requests
// return the same structure.
type Binder struct {
	reg    *structure.Registry
	calc   *calculator
	bound  map[*wit.TypeDef]*structure.Structure
	scalar map[string]*structure.Structure
}

// New creates a binder over r. r must use 4-byte addresses.
func New(r *structure.Registry) (*Binder, error) {
	if r.AddressSize() != 4 {
		return nil, errors.Unsupported(errors.PhaseRegister,
			fmt.Sprintf("canonical ABI needs 4-byte addresses, registry uses %d", r.AddressSize()))
	}
	return &Binder{
		reg:    r,
		calc:   newCalculator(),
		bound:  make(map[*wit.TypeDef]*structure.Structure),
		scalar: make(map[string]*structure.Structure),
	}, nil
}

// Type returns the structure describing t.
func (b *Binder) Type(t wit.Type) (*structure.Structure, error) {
	switch typ := t.(type) {
	case nil:
		return nil, errors.InvalidData(errors.PhaseRegister, nil, "nil wit type")
	case wit.String:
		return b.stringType()
	case *wit.TypeDef:
		return b.typeDef(typ)
	}
	if _, ok := scalarMember(t); ok {
		return b.primitive(t)
	}
	return nil, errors.Unsupported(errors.PhaseRegister, fmt.Sprintf("wit type %T", t))
}

// Function describes the argument struct of a function: params in order,
// then retval when result is non-nil.
func (b *Binder) Function(name string, params []Param, result wit.Type) (*structure.Structure, error) {
	types := make([]wit.Type, 0, len(params)+1)
	for _, p := range params {
		types = append(types, p.Type)
	}
	if result != nil {
		types = append(types, result)
	}
	l := b.calc.sequence(types)

	s, err := b.begin(name+".args", structure.KindArgStruct, l)
	if err != nil {
		return nil, err
	}
	slot := 0
	for i, t := range types {
		field := "retval"
		if i < len(params) {
			field = params[i].Name
			if field == "" {
				field = strconv.Itoa(i)
			}
		}
		if err := b.attach(s, t, field, l.offsets[i], &slot); err != nil {
			return nil, err
		}
	}
	return s, b.finalize(s)
}

// Method describes a function and binds it to thunk.
func (b *Binder) Method(name string, params []Param, result wit.Type, thunk structure.ThunkHandle) (structure.Method, error) {
	args, err := b.Function(name, params, result)
	if err != nil {
		return structure.Method{}, err
	}
	return structure.Method{Name: name, ArgStruct: args, Thunk: thunk, StaticOnly: true}, nil
}

func (b *Binder) typeDef(t *wit.TypeDef) (*structure.Structure, error) {
	if s, ok := b.bound[t]; ok {
		return s, nil
	}
	name := typeName(t)
	l := b.calc.of(t)

	var (
		s   *structure.Structure
		err error
	)
	switch k := t.Kind.(type) {
	case *wit.Record:
		s, err = b.record(name, l, k)
	case *wit.Tuple:
		fields := make([]field, len(k.Types))
		for i, typ := range k.Types {
			fields[i] = field{strconv.Itoa(i), typ}
		}
		s, err = b.fields(name, structure.KindStruct, l, fields)
	case *wit.Flags:
		s, err = b.flags(name, l, k)
	case *wit.Enum:
		cases := make([]string, len(k.Cases))
		for i, c := range k.Cases {
			cases[i] = c.Name
		}
		s, err = b.enum(name, cases)
	case *wit.Variant:
		s, err = b.variant(name, l, k)
	case *wit.Option:
		s, err = b.option(name, l, k)
	case *wit.Result:
		s, err = b.result(name, l, k)
	case *wit.List:
		s, err = b.list(name, k.Type)
	case *wit.Own, *wit.Borrow:
		s, err = b.handle(name)
	case *wit.Resource:
		s, err = b.begin(name, structure.KindOpaque, l)
		if err == nil {
			err = b.finalize(s)
		}
	case wit.Type:
		s, err = b.Type(k)
	default:
		err = errors.Unsupported(errors.PhaseRegister, fmt.Sprintf("wit type kind %T", t.Kind))
	}
	if err != nil {
		return nil, errors.WithPath(err, name)
	}
	b.bound[t] = s
	return s, nil
}

type field struct {
	name string
	typ  wit.Type
}

func (b *Binder) record(name string, l layout, r *wit.Record) (*structure.Structure, error) {
	fields := make([]field, len(r.Fields))
	for i, f := range r.Fields {
		fields[i] = field{f.Name, f.Type}
	}
	return b.fields(name, structure.KindStruct, l, fields)
}

func (b *Binder) fields(name string, kind structure.Kind, l layout, fields []field) (*structure.Structure, error) {
	s, err := b.begin(name, kind, l)
	if err != nil {
		return nil, err
	}
	slot := 0
	for i, f := range fields {
		if err := b.attach(s, f.typ, f.name, l.offsets[i], &slot); err != nil {
			return nil, err
		}
	}
	return s, b.finalize(s)
}

// flags packs one bit per flag, low bit first.
func (b *Binder) flags(name string, l layout, f *wit.Flags) (*structure.Structure, error) {
	s, err := b.begin(name, structure.KindStruct, l)
	if err != nil {
		return nil, err
	}
	for i, flag := range f.Flags {
		m := structure.Member{Name: flag.Name, Kind: structure.MemberBool, BitOffset: i, BitSize: 1}
		if err := b.reg.AttachMember(s, m); err != nil {
			return nil, err
		}
	}
	return s, b.finalize(s)
}

// enum describes an enumeration whose raw values are the case indexes.
func (b *Binder) enum(name string, cases []string) (*structure.Structure, error) {
	if len(cases) == 0 {
		return nil, errors.Unsupported(errors.PhaseRegister, "enum without cases")
	}
	n := discriminantSize(len(cases))
	s, err := b.begin(name, structure.KindEnumeration, layout{size: n, align: n})
	if err != nil {
		return nil, err
	}
	bits := int(n) * 8
	if err := b.reg.AttachMember(s, structure.Member{Name: "value", Kind: structure.MemberInt, BitSize: bits, ByteSize: int(n)}); err != nil {
		return nil, err
	}
	raw := make([]byte, len(cases)*int(n))
	for i, c := range cases {
		putUint(raw[i*int(n):], n, uint32(i))
		m := structure.Member{Name: c, Kind: structure.MemberEnumItem, BitOffset: i * bits, BitSize: bits, ByteSize: int(n), Static: true}
		if err := b.reg.AttachMember(s, m); err != nil {
			return nil, err
		}
	}
	if err := b.reg.AttachTemplate(s, structure.NewTemplate(raw, nil), true); err != nil {
		return nil, err
	}
	return s, b.finalize(s)
}

// variant becomes a tagged union whose selector is an enumeration of the
// case names.
func (b *Binder) variant(name string, l layout, v *wit.Variant) (*structure.Structure, error) {
	cases := make([]string, len(v.Cases))
	for i, c := range v.Cases {
		cases[i] = c.Name
	}
	tag, err := b.enum(name+".tag", cases)
	if err != nil {
		return nil, err
	}
	s, err := b.begin(name, structure.KindTaggedUnion, l)
	if err != nil {
		return nil, err
	}
	slot := 0
	for _, c := range v.Cases {
		if err := b.attach(s, c.Type, c.Name, l.offsets[0], &slot); err != nil {
			return nil, err
		}
	}
	n := int(discriminantSize(len(v.Cases)))
	sel := structure.Member{Name: "tag", Kind: structure.MemberEnumItem, BitSize: n * 8, ByteSize: n, Structure: tag}
	if err := b.reg.AttachMember(s, sel); err != nil {
		return nil, err
	}
	return s, b.finalize(s)
}

func (b *Binder) option(name string, l layout, o *wit.Option) (*structure.Structure, error) {
	s, err := b.begin(name, structure.KindOptional, l)
	if err != nil {
		return nil, err
	}
	slot := 0
	if err := b.attach(s, o.Type, "value", l.offsets[0], &slot); err != nil {
		return nil, err
	}
	present := structure.Member{Name: "present", Kind: structure.MemberBool, BitSize: 8, ByteSize: 1}
	if err := b.reg.AttachMember(s, present); err != nil {
		return nil, err
	}
	return s, b.finalize(s)
}

// result becomes a tagged union with arms ok and err and an int selector.
func (b *Binder) result(name string, l layout, r *wit.Result) (*structure.Structure, error) {
	s, err := b.begin(name, structure.KindTaggedUnion, l)
	if err != nil {
		return nil, err
	}
	slot := 0
	if err := b.attach(s, r.OK, "ok", l.offsets[0], &slot); err != nil {
		return nil, err
	}
	if err := b.attach(s, r.Err, "err", l.offsets[0], &slot); err != nil {
		return nil, err
	}
	sel := structure.Member{Name: "tag", Kind: structure.MemberInt, BitSize: 8, ByteSize: 1}
	if err := b.reg.AttachMember(s, sel); err != nil {
		return nil, err
	}
	return s, b.finalize(s)
}

// list becomes a slice: element, then ptr and len words.
func (b *Binder) list(name string, elem wit.Type) (*structure.Structure, error) {
	el := b.calc.of(elem)
	s, err := b.begin(name, structure.KindSlice, layout{size: 8, align: 4})
	if err != nil {
		return nil, err
	}
	m, ok := scalarMember(elem)
	if !ok {
		slot := 0
		m, err = b.member(elem, "", 0, &slot)
		if err != nil {
			return nil, err
		}
		if m.Kind == structure.MemberObject {
			// the element is wider than the slice header
			m.BitSize = 0
		}
	}
	m.ByteSize = int(el.size)
	for _, mm := range []structure.Member{
		m,
		{Name: "ptr", Kind: structure.MemberInt, BitSize: 32, ByteSize: 4},
		{Name: "len", Kind: structure.MemberInt, BitOffset: 32, BitSize: 32, ByteSize: 4},
	} {
		if err := b.reg.AttachMember(s, mm); err != nil {
			return nil, err
		}
	}
	return s, b.finalize(s)
}

func (b *Binder) stringType() (*structure.Structure, error) {
	if s, ok := b.scalar["string"]; ok {
		return s, nil
	}
	s, err := b.list("string", wit.U8{})
	if err != nil {
		return nil, err
	}
	b.scalar["string"] = s
	return s, nil
}

// handle describes own and borrow handles as u32 table indexes.
func (b *Binder) handle(name string) (*structure.Structure, error) {
	s, err := b.begin(name, structure.KindPrimitive, layout{size: 4, align: 4})
	if err != nil {
		return nil, err
	}
	m := structure.Member{Name: "value", Kind: structure.MemberInt, BitSize: 32, ByteSize: 4}
	if err := b.reg.AttachMember(s, m); err != nil {
		return nil, err
	}
	return s, b.finalize(s)
}

func (b *Binder) primitive(t wit.Type) (*structure.Structure, error) {
	name := typeName(t)
	if s, ok := b.scalar[name]; ok {
		return s, nil
	}
	m, _ := scalarMember(t)
	m.Name = "value"
	s, err := b.begin(name, structure.KindPrimitive, b.calc.of(t))
	if err != nil {
		return nil, err
	}
	if err := b.reg.AttachMember(s, m); err != nil {
		return nil, err
	}
	if err := b.finalize(s); err != nil {
		return nil, err
	}
	b.scalar[name] = s
	return s, nil
}

// attach adds a member of type t at byte offset off. A nil t is a case
// without payload.
func (b *Binder) attach(s *structure.Structure, t wit.Type, name string, off uint32, slot *int) error {
	m, err := b.member(t, name, off, slot)
	if err != nil {
		return errors.WithPath(err, name)
	}
	return b.reg.AttachMember(s, m)
}

// member describes a value of type t. Scalars, enums and handles are read
// in place; everything else is an object member with its own slot.
func (b *Binder) member(t wit.Type, name string, off uint32, slot *int) (structure.Member, error) {
	if t == nil {
		return structure.Member{Name: name, Kind: structure.MemberVoid, BitOffset: int(off) * 8}, nil
	}
	if m, ok := scalarMember(t); ok {
		m.Name = name
		m.BitOffset = int(off) * 8
		return m, nil
	}
	if td, ok := t.(*wit.TypeDef); ok {
		switch td.Kind.(type) {
		case *wit.Own, *wit.Borrow:
			return structure.Member{Name: name, Kind: structure.MemberInt, BitOffset: int(off) * 8, BitSize: 32, ByteSize: 4}, nil
		case *wit.Enum:
			s, err := b.typeDef(td)
			if err != nil {
				return structure.Member{}, err
			}
			n := s.ByteSize()
			return structure.Member{Name: name, Kind: structure.MemberEnumItem, BitOffset: int(off) * 8, BitSize: n * 8, ByteSize: n, Structure: s}, nil
		}
	}
	s, err := b.Type(t)
	if err != nil {
		return structure.Member{}, err
	}
	m := structure.Member{
		Name:      name,
		Kind:      structure.MemberObject,
		BitOffset: int(off) * 8,
		BitSize:   s.ByteSize() * 8,
		ByteSize:  s.ByteSize(),
		Slot:      *slot,
		Structure: s,
	}
	*slot++
	return m, nil
}

func (b *Binder) begin(name string, kind structure.Kind, l layout) (*structure.Structure, error) {
	return b.reg.Begin(structure.Descriptor{Name: name, Kind: kind, ByteSize: int(l.size), Align: int(l.align)})
}

func (b *Binder) finalize(s *structure.Structure) error {
	return b.reg.Finalize(s)
}

// scalarMember returns the in-place member for a scalar WIT type.
func scalarMember(t wit.Type) (structure.Member, bool) {
	integer := func(bytes int, signed bool) structure.Member {
		return structure.Member{Kind: structure.MemberInt, BitSize: bytes * 8, ByteSize: bytes, Signed: signed}
	}
	switch t.(type) {
	case wit.Bool:
		return structure.Member{Kind: structure.MemberBool, BitSize: 8, ByteSize: 1}, true
	case wit.U8:
		return integer(1, false), true
	case wit.S8:
		return integer(1, true), true
	case wit.U16:
		return integer(2, false), true
	case wit.S16:
		return integer(2, true), true
	case wit.U32, wit.Char:
		return integer(4, false), true
	case wit.S32:
		return integer(4, true), true
	case wit.U64:
		return integer(8, false), true
	case wit.S64:
		return integer(8, true), true
	case wit.F32:
		return structure.Member{Kind: structure.MemberFloat, BitSize: 32, ByteSize: 4}, true
	case wit.F64:
		return structure.Member{Kind: structure.MemberFloat, BitSize: 64, ByteSize: 8}, true
	}
	return structure.Member{}, false
}

func putUint(b []byte, n uint32, v uint32) {
	switch n {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	default:
		binary.LittleEndian.PutUint32(b, v)
	}
}

// typeName names t the way WIT source spells it.
func typeName(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v == nil {
			return "_"
		}
		if v.Name != nil {
			return *v.Name
		}
		return kindName(v.Kind)
	}
	return fmt.Sprintf("%T", t)
}

func kindName(k wit.TypeDefKind) string {
	switch v := k.(type) {
	case *wit.List:
		return "list<" + typeName(v.Type) + ">"
	case *wit.Option:
		return "option<" + typeName(v.Type) + ">"
	case *wit.Result:
		return "result<" + typeName(v.OK) + ", " + typeName(v.Err) + ">"
	case *wit.Tuple:
		names := make([]string, len(v.Types))
		for i, t := range v.Types {
			names[i] = typeName(t)
		}
		return "tuple<" + strings.Join(names, ", ") + ">"
	case *wit.Own:
		return "own<" + typeName(v.Type) + ">"
	case *wit.Borrow:
		return "borrow<" + typeName(v.Type) + ">"
	case *wit.Record:
		return "record"
	case *wit.Variant:
		return "variant"
	case *wit.Enum:
		return "enum"
	case *wit.Flags:
		return "flags"
	case wit.Type:
		return typeName(v)
	}
	return fmt.Sprintf("%T", k)
}
