package wasmtest

import (
	"encoding/binary"

	"github.com/wippyai/membind/structure"
)

// Fixed addresses used by MathGuest.
const (
	RootIDAddr = 4
	// FreeCountAddr counts calls to membind_free.
	FreeCountAddr = 8
	heapStart     = 4096
)

// MathOptions tweaks the generated guest.
type MathOptions struct {
	// AddExport is the export bound to the add method. Default "add".
	AddExport string
}

// MathGuest builds a guest whose root structure "math" has:
//
//	static answer: i32 = 42
//	static origin: Point = {x: 3, y: -4}
//	fn add(i32, i32) i32
//
// It exports a bump allocator and a free that only counts calls.
func MathGuest(opts MathOptions) []byte {
	if opts.AddExport == "" {
		opts.AddExport = "add"
	}
	i32s := func(n int) []ValType {
		v := make([]ValType, n)
		for i := range v {
			v[i] = I32
		}
		return v
	}
	m := &Module{
		MemoryPages: 1,
		Globals:     []Global{{Init: heapStart}},
		Imports: []Import{
			{"membind", "begin_structure", FuncType{i32s(5), i32s(1)}},
			{"membind", "attach_member", FuncType{i32s(5), i32s(1)}},
			{"membind", "attach_template", FuncType{i32s(4), i32s(1)}},
			{"membind", "attach_method", FuncType{i32s(7), i32s(1)}},
			{"membind", "finalize_structure", FuncType{i32s(1), i32s(1)}},
			{"membind", "log", FuncType{i32s(3), i32s(1)}},
		},
	}
	m.Data.Base = 64
	d := &m.Data

	var (
		begin    = m.ImportIndex("begin_structure")
		attach   = m.ImportIndex("attach_member")
		template = m.ImportIndex("attach_template")
		method   = m.ImportIndex("attach_method")
		final    = m.ImportIndex("finalize_structure")
		logFn    = m.ImportIndex("log")
	)

	record := func(kind structure.MemberKind, flags byte, offset, bits int) uint32 {
		rec := make([]byte, 24)
		rec[0] = byte(kind)
		rec[1] = flags
		binary.LittleEndian.PutUint32(rec[4:], uint32(offset))
		binary.LittleEndian.PutUint32(rec[8:], uint32(bits))
		binary.LittleEndian.PutUint32(rec[12:], uint32(bits/8))
		return d.Add(rec)
	}
	const signed, static = 1, 2

	c := new(Code)
	str := func(s string) *Code {
		p, n := d.String(s)
		return c.I32Const(int32(p)).I32Const(int32(n))
	}
	beginStructure := func(kind structure.Kind, name string, size int, local uint32) {
		c.I32Const(int32(kind))
		str(name)
		c.I32Const(int32(size)).I32Const(4).Call(begin).LocalSet(local)
	}
	attachMember := func(local uint32, name string, rec uint32) {
		c.LocalGet(local)
		str(name)
		c.I32Const(int32(rec)).I32Const(24).Call(attach).Drop()
	}

	// locals: 0 args, 1 point, 2 root
	beginStructure(structure.KindArgStruct, "add.args", 12, 0)
	attachMember(0, "0", record(structure.MemberInt, signed, 0, 32))
	attachMember(0, "1", record(structure.MemberInt, signed, 32, 32))
	attachMember(0, "retval", record(structure.MemberInt, signed, 64, 32))
	c.LocalGet(0).Call(final).Drop()

	beginStructure(structure.KindStruct, "Point", 8, 1)
	attachMember(1, "x", record(structure.MemberInt, signed, 0, 32))
	attachMember(1, "y", record(structure.MemberInt, signed, 32, 32))
	c.LocalGet(1).Call(final).Drop()

	beginStructure(structure.KindStruct, "math", 0, 2)
	attachMember(2, "answer", record(structure.MemberInt, signed|static, 0, 32))
	origin := record(structure.MemberObject, static, 32, 64)
	c.I32Const(int32(origin)).LocalGet(1).I32Store(20)
	attachMember(2, "origin", origin)

	var statics [12]byte
	binary.LittleEndian.PutUint32(statics[0:], 42)
	binary.LittleEndian.PutUint32(statics[4:], 3)
	binary.LittleEndian.PutUint32(statics[8:], uint32(0xfffffffc))
	c.LocalGet(2).I32Const(int32(d.Add(statics[:]))).I32Const(12).I32Const(1).Call(template).Drop()

	c.LocalGet(2)
	str("add")
	str(opts.AddExport)
	c.LocalGet(0).I32Const(3).Call(method).Drop()
	c.LocalGet(2).Call(final).Drop()

	c.I32Const(RootIDAddr).LocalGet(2).I32Store(0)
	c.I32Const(1)
	str("described math")
	c.Call(logFn).Drop()

	m.Funcs = []Func{
		{
			Export: "membind_describe",
			Type:   FuncType{},
			Locals: i32s(3),
			Body:   c.End(),
		},
		{
			Export: "membind_factory",
			Type:   FuncType{Params: i32s(1)},
			Body:   new(Code).LocalGet(0).I32Const(RootIDAddr).I32Load(0).I32Store(0).End(),
		},
		{
			Export: "add",
			Type:   FuncType{Params: i32s(1)},
			Body: new(Code).
				LocalGet(0).
				LocalGet(0).I32Load(0).
				LocalGet(0).I32Load(4).
				I32Add().
				I32Store(8).
				End(),
		},
		{
			// (heap + align - 1) & -align
			Export: "membind_alloc",
			Type:   FuncType{Params: i32s(2), Results: i32s(1)},
			Locals: i32s(1),
			Body: new(Code).
				GlobalGet(0).LocalGet(1).I32Add().I32Const(1).I32Sub().
				I32Const(0).LocalGet(1).I32Sub().
				I32And().
				LocalTee(2).
				LocalGet(0).I32Add().GlobalSet(0).
				LocalGet(2).
				End(),
		},
		{
			Export: "membind_free",
			Type:   FuncType{Params: i32s(3)},
			Body: new(Code).
				I32Const(FreeCountAddr).
				I32Const(FreeCountAddr).I32Load(0).I32Const(1).I32Add().
				I32Store(0).
				End(),
		},
	}
	return m.Encode()
}
