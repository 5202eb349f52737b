// Package wasmtest hand-encodes small WebAssembly modules for tests.
package wasmtest

import "golang.org/x/exp/slices"

// ValType is a wasm value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

const (
	sectionType   = 1
	sectionImport = 2
	sectionFunc   = 3
	sectionMemory = 5
	sectionGlobal = 6
	sectionExport = 7
	sectionCode   = 10
	sectionData   = 11

	exportFunc   = 0
	exportMemory = 2
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Import is an imported function.
type Import struct {
	Module string
	Name   string
	Type   FuncType
}

// Func is a defined function. Locals excludes parameters.
type Func struct {
	Export string
	Type   FuncType
	Locals []ValType
	Body   []byte
}

// Global is a mutable i32 global.
type Global struct {
	Init int32
}

// Module describes a module with at most one memory, exported as "memory".
type Module struct {
	Imports     []Import
	Funcs       []Func
	Globals     []Global
	Data        Data
	MemoryPages uint32
}

// FuncIndex returns the index of the defined function at position i.
func (m *Module) FuncIndex(i int) uint32 {
	return uint32(len(m.Imports) + i)
}

// ImportIndex returns the function index of the named import.
func (m *Module) ImportIndex(name string) uint32 {
	for i, imp := range m.Imports {
		if imp.Name == name {
			return uint32(i)
		}
	}
	panic("wasmtest: no import " + name)
}

// Encode returns the binary encoding.
func (m *Module) Encode() []byte {
	var types []FuncType
	typeIndex := func(ft FuncType) uint32 {
		for i, t := range types {
			if slices.Equal(t.Params, ft.Params) && slices.Equal(t.Results, ft.Results) {
				return uint32(i)
			}
		}
		types = append(types, ft)
		return uint32(len(types) - 1)
	}
	importTypes := make([]uint32, len(m.Imports))
	for i, imp := range m.Imports {
		importTypes[i] = typeIndex(imp.Type)
	}
	funcTypes := make([]uint32, len(m.Funcs))
	for i, f := range m.Funcs {
		funcTypes[i] = typeIndex(f.Type)
	}

	w := &writer{}
	w.bytes([]byte{0x00, 0x61, 0x73, 0x6d})
	w.u32le(1)

	sec := &writer{}
	sec.u32(uint32(len(types)))
	for _, ft := range types {
		sec.byte(0x60)
		writeValTypes(sec, ft.Params)
		writeValTypes(sec, ft.Results)
	}
	w.section(sectionType, sec)

	if len(m.Imports) > 0 {
		sec = &writer{}
		sec.u32(uint32(len(m.Imports)))
		for i, imp := range m.Imports {
			sec.name(imp.Module)
			sec.name(imp.Name)
			sec.byte(exportFunc)
			sec.u32(importTypes[i])
		}
		w.section(sectionImport, sec)
	}

	sec = &writer{}
	sec.u32(uint32(len(m.Funcs)))
	for _, t := range funcTypes {
		sec.u32(t)
	}
	w.section(sectionFunc, sec)

	if m.MemoryPages > 0 {
		sec = &writer{}
		sec.u32(1)
		sec.byte(0x00)
		sec.u32(m.MemoryPages)
		w.section(sectionMemory, sec)
	}

	if len(m.Globals) > 0 {
		sec = &writer{}
		sec.u32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			sec.byte(byte(I32))
			sec.byte(0x01)
			sec.byte(opI32Const)
			sec.s64(int64(g.Init))
			sec.byte(opEnd)
		}
		w.section(sectionGlobal, sec)
	}

	sec = &writer{}
	var exports int
	exp := &writer{}
	if m.MemoryPages > 0 {
		exp.name("memory")
		exp.byte(exportMemory)
		exp.u32(0)
		exports++
	}
	for i, f := range m.Funcs {
		if f.Export == "" {
			continue
		}
		exp.name(f.Export)
		exp.byte(exportFunc)
		exp.u32(m.FuncIndex(i))
		exports++
	}
	sec.u32(uint32(exports))
	sec.bytes(exp.buf.Bytes())
	w.section(sectionExport, sec)

	sec = &writer{}
	sec.u32(uint32(len(m.Funcs)))
	for _, f := range m.Funcs {
		body := &writer{}
		body.u32(uint32(len(f.Locals)))
		for _, l := range f.Locals {
			body.u32(1)
			body.byte(byte(l))
		}
		body.bytes(f.Body)
		sec.u32(uint32(body.buf.Len()))
		sec.bytes(body.buf.Bytes())
	}
	w.section(sectionCode, sec)

	if len(m.Data.bytes) > 0 {
		sec = &writer{}
		sec.u32(1)
		sec.u32(0)
		sec.byte(opI32Const)
		sec.s64(int64(m.Data.Base))
		sec.byte(opEnd)
		sec.u32(uint32(len(m.Data.bytes)))
		sec.bytes(m.Data.bytes)
		w.section(sectionData, sec)
	}
	return w.buf.Bytes()
}

func writeValTypes(w *writer, types []ValType) {
	w.u32(uint32(len(types)))
	for _, t := range types {
		w.byte(byte(t))
	}
}

// Data is a single active data segment starting at Base.
type Data struct {
	Base  uint32
	bytes []byte
}

// Add appends b aligned to 4 bytes and returns its address.
func (d *Data) Add(b []byte) uint32 {
	for len(d.bytes)%4 != 0 {
		d.bytes = append(d.bytes, 0)
	}
	addr := d.Base + uint32(len(d.bytes))
	d.bytes = append(d.bytes, b...)
	return addr
}

// String appends s and returns its address and length.
func (d *Data) String(s string) (uint32, uint32) {
	return d.Add([]byte(s)), uint32(len(s))
}

// End returns the first address after the segment.
func (d *Data) End() uint32 {
	return d.Base + uint32(len(d.bytes))
}
