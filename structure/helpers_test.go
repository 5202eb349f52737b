package structure

import (
	"context"
	"fmt"
	"testing"
)

// arena is a bump-allocated foreign memory for tests.
type arena struct {
	data  []byte
	next  uint32
	frees int
}

func newArena(n int) *arena {
	return &arena{data: make([]byte, n), next: 16}
}

func (a *arena) View(addr, n uint32) ([]byte, error) {
	if uint64(addr)+uint64(n) > uint64(len(a.data)) {
		return nil, fmt.Errorf("view 0x%x+%d out of range", addr, n)
	}
	return a.data[addr : addr+n : addr+n], nil
}

func (a *arena) Size() uint32 {
	return uint32(len(a.data))
}

func (a *arena) Alloc(size, align uint32) (uint32, error) {
	addr := (a.next + align - 1) &^ (align - 1)
	if int(addr+size) > len(a.data) {
		return 0, fmt.Errorf("arena exhausted")
	}
	a.next = addr + size
	return addr, nil
}

func (a *arena) Free(addr, size, align uint32) {
	a.frees++
}

// funcInvoker runs Go functions as thunks.
type funcInvoker struct {
	fns      map[ThunkHandle]func(ctx context.Context, f *CallFrame) error
	released []ThunkHandle
}

func newFuncInvoker() *funcInvoker {
	return &funcInvoker{fns: make(map[ThunkHandle]func(context.Context, *CallFrame) error)}
}

func (fi *funcInvoker) add(h ThunkHandle, fn func(ctx context.Context, f *CallFrame) error) ThunkHandle {
	fi.fns[h] = fn
	return h
}

func (fi *funcInvoker) Resolve(h ThunkHandle) error {
	if _, ok := fi.fns[h]; !ok {
		return fmt.Errorf("no thunk %d", h)
	}
	return nil
}

func (fi *funcInvoker) Invoke(ctx context.Context, h ThunkHandle, f *CallFrame) error {
	return fi.fns[h](ctx, f)
}

func (fi *funcInvoker) Release(h ThunkHandle) {
	fi.released = append(fi.released, h)
}

// args returns the argument struct as the foreign side sees it.
func frameArgs(f *CallFrame) (*Instance, error) {
	if !f.Foreign {
		return f.Args, nil
	}
	return f.Args.Structure().ViewAt(f.Address)
}

func begin(t *testing.T, r *Registry, name string, kind Kind, size int) *Structure {
	t.Helper()
	s, err := r.Begin(Descriptor{Name: name, Kind: kind, ByteSize: size, Align: 4})
	if err != nil {
		t.Fatalf("Begin(%s): %v", name, err)
	}
	return s
}

func attach(t *testing.T, r *Registry, s *Structure, members ...Member) {
	t.Helper()
	for _, m := range members {
		if err := r.AttachMember(s, m); err != nil {
			t.Fatalf("AttachMember(%s.%s): %v", s.Name(), m.Name, err)
		}
	}
}

func finalize(t *testing.T, r *Registry, s *Structure) *Structure {
	t.Helper()
	if err := r.Finalize(s); err != nil {
		t.Fatalf("Finalize(%s): %v", s.Name(), err)
	}
	return s
}

func define(t *testing.T, r *Registry, name string, kind Kind, size int, members ...Member) *Structure {
	t.Helper()
	s := begin(t, r, name, kind, size)
	attach(t, r, s, members...)
	return finalize(t, r, s)
}

func intMember(name string, offset, bits int, signed bool) Member {
	return Member{Name: name, Kind: MemberInt, BitOffset: offset, BitSize: bits, ByteSize: bits / 8, Signed: signed}
}

func objectMember(name string, offset, slot int, s *Structure) Member {
	return Member{Name: name, Kind: MemberObject, BitOffset: offset, BitSize: s.ByteSize() * 8, ByteSize: s.ByteSize(), Slot: slot, Structure: s}
}

func pointerMember(name string, offset, slot int, ptr *Structure) Member {
	return Member{Name: name, Kind: MemberObject, BitOffset: offset, BitSize: 32, ByteSize: 4, Slot: slot, Structure: ptr}
}

// pointerTo defines a 32-bit pointer structure.
func pointerTo(t *testing.T, r *Registry, target *Structure) *Structure {
	t.Helper()
	return define(t, r, "*"+target.Name(), KindPointer, 4,
		Member{Kind: MemberObject, BitSize: 32, ByteSize: 4, Structure: target})
}

// point defines struct { x: i32, y: i32 }.
func point(t *testing.T, r *Registry) *Structure {
	t.Helper()
	return define(t, r, "Point", KindStruct, 8,
		intMember("x", 0, 32, true),
		intMember("y", 32, 32, true))
}

// enumeration defines an 8-bit enumeration with the given raw values.
func enumeration(t *testing.T, r *Registry, name string, kind Kind, names []string, raws []uint8) *Structure {
	t.Helper()
	s := begin(t, r, name, kind, 1)
	attach(t, r, s, intMember("value", 0, 8, false))
	for n, item := range names {
		attach(t, r, s, Member{Name: item, Kind: MemberEnumItem, BitOffset: n * 8, BitSize: 8, ByteSize: 1, Static: true})
	}
	if err := r.AttachTemplate(s, NewTemplate(raws, nil), true); err != nil {
		t.Fatalf("AttachTemplate: %v", err)
	}
	return finalize(t, r, s)
}

func mustNew(t *testing.T, s *Structure, init any) *Instance {
	t.Helper()
	inst, err := s.New(init)
	if err != nil {
		t.Fatalf("%s.New(%v): %v", s.Name(), init, err)
	}
	return inst
}

func mustGet(t *testing.T, i *Instance, name string) any {
	t.Helper()
	v, err := i.Get(name)
	if err != nil {
		t.Fatalf("Get(%s): %v", name, err)
	}
	return v
}
