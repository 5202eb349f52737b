package witbind

import "go.bytecodealliance.org/wit"

// layout is a canonical ABI size and alignment. offsets holds field or
// element offsets for records and tuples, and the payload offset for
// variants, options and results.
type layout struct {
	offsets []uint32
	size    uint32
	align   uint32
}

type calculator struct {
	cache map[*wit.TypeDef]layout
}

func newCalculator() *calculator {
	return &calculator{cache: make(map[*wit.TypeDef]layout)}
}

func alignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

func discriminantSize(cases int) uint32 {
	switch {
	case cases <= 1<<8:
		return 1
	case cases <= 1<<16:
		return 2
	}
	return 4
}

func (c *calculator) of(t wit.Type) layout {
	switch typ := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return layout{size: 1, align: 1}
	case wit.U16, wit.S16:
		return layout{size: 2, align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return layout{size: 4, align: 4}
	case wit.U64, wit.S64, wit.F64:
		return layout{size: 8, align: 8}
	case wit.String:
		return layout{size: 8, align: 4}
	case *wit.TypeDef:
		return c.typeDef(typ)
	}
	return layout{align: 1}
}

func (c *calculator) typeDef(t *wit.TypeDef) layout {
	if l, ok := c.cache[t]; ok {
		return l
	}
	var l layout
	switch k := t.Kind.(type) {
	case *wit.Record:
		types := make([]wit.Type, len(k.Fields))
		for i, f := range k.Fields {
			types[i] = f.Type
		}
		l = c.sequence(types)
	case *wit.Tuple:
		l = c.sequence(k.Types)
	case *wit.Variant:
		types := make([]wit.Type, len(k.Cases))
		for i, cs := range k.Cases {
			types[i] = cs.Type
		}
		l = c.union(discriminantSize(len(k.Cases)), types)
	case *wit.Enum:
		n := discriminantSize(len(k.Cases))
		l = layout{size: n, align: n}
	case *wit.Option:
		l = c.union(1, []wit.Type{k.Type})
	case *wit.Result:
		l = c.union(1, []wit.Type{k.OK, k.Err})
	case *wit.Flags:
		l = flagsLayout(len(k.Flags))
	case *wit.List:
		l = layout{size: 8, align: 4}
	case *wit.Own, *wit.Borrow:
		l = layout{size: 4, align: 4}
	case wit.Type:
		l = c.of(k)
	default:
		l = layout{align: 1}
	}
	c.cache[t] = l
	return l
}

// sequence lays out types one after another, as records and tuples do.
func (c *calculator) sequence(types []wit.Type) layout {
	l := layout{align: 1, offsets: make([]uint32, len(types))}
	off := uint32(0)
	for i, t := range types {
		e := c.of(t)
		off = alignTo(off, e.align)
		l.offsets[i] = off
		l.align = max(l.align, e.align)
		off += e.size
	}
	l.size = alignTo(off, l.align)
	return l
}

// union lays out a discriminant followed by the largest payload. Nil
// entries are cases without a payload.
func (c *calculator) union(disc uint32, cases []wit.Type) layout {
	align, size := disc, uint32(0)
	for _, t := range cases {
		if t == nil {
			continue
		}
		e := c.of(t)
		align = max(align, e.align)
		size = max(size, e.size)
	}
	payload := alignTo(disc, align)
	return layout{
		size:    alignTo(payload+size, align),
		align:   align,
		offsets: []uint32{payload},
	}
}

func flagsLayout(n int) layout {
	switch {
	case n == 0:
		return layout{align: 1}
	case n <= 8:
		return layout{size: 1, align: 1}
	case n <= 16:
		return layout{size: 2, align: 2}
	}
	return layout{size: uint32((n+31)/32) * 4, align: 4}
}
