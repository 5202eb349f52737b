package structure

import (
	"fmt"
	"strings"
)

const maxRenderDepth = 4

// String renders the instance for debugging.
func (i *Instance) String() string {
	var b strings.Builder
	i.render(&b, 0)
	return b.String()
}

func (i *Instance) render(b *strings.Builder, depth int) {
	s := i.structure
	if s == nil {
		fmt.Fprintf(b, "template[%d]", i.length)
		return
	}
	if depth > maxRenderDepth {
		b.WriteString(s.name + "{...}")
		return
	}
	switch s.kind {
	case KindStruct, KindArgStruct, KindExternUnion:
		b.WriteString(s.name)
		b.WriteByte('{')
		for n, m := range s.members {
			if n > 0 {
				b.WriteString(", ")
			}
			b.WriteString(m.Name)
			b.WriteString(": ")
			v, err := i.Get(m.Name)
			renderValue(b, v, err, depth)
		}
		b.WriteByte('}')
	case KindArray:
		b.WriteByte('[')
		for n := 0; n < i.Len(); n++ {
			if n > 0 {
				b.WriteString(", ")
			}
			v, err := i.Index(n)
			renderValue(b, v, err, depth)
		}
		b.WriteByte(']')
	case KindPointer, KindSlice:
		if a, ok := i.Address(); ok {
			fmt.Fprintf(b, "%s@0x%x", s.name, a)
		} else {
			b.WriteString(s.name)
		}
		b.WriteString(" -> ")
		t, err := i.Deref()
		if t == nil && err == nil {
			b.WriteString("null")
			return
		}
		renderValue(b, t, err, depth)
	case KindOpaque:
		fmt.Fprintf(b, "%s(opaque)", s.name)
	default:
		v, err := i.Value()
		if name, aerr := i.Active(); aerr == nil && name != "" {
			b.WriteString(s.name + "{" + name + ": ")
			renderValue(b, v, err, depth)
			b.WriteByte('}')
			return
		}
		renderValue(b, v, err, depth)
	}
}

func renderValue(b *strings.Builder, v any, err error, depth int) {
	switch {
	case err != nil:
		b.WriteString("<" + err.Error() + ">")
	case v == nil:
		b.WriteString("null")
	default:
		if c, ok := v.(*Instance); ok {
			c.render(b, depth+1)
			return
		}
		fmt.Fprint(b, v)
	}
}
