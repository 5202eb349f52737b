package engine

import (
	"context"
	stderrors "errors"
	"testing"

	merrors "github.com/wippyai/membind/errors"
	"github.com/wippyai/membind/internal/wasmtest"
	"github.com/wippyai/membind/structure"
)

func load(t *testing.T, opts wasmtest.MathOptions) *Module {
	t.Helper()
	ctx := context.Background()
	e := New(&Config{MemoryLimitPages: 16})
	t.Cleanup(func() { _ = e.Close(ctx) })

	m, err := e.Load(ctx, wasmtest.MathGuest(opts))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = m.Close(ctx) })
	return m
}

func describe(t *testing.T, m *Module) *structure.Registry {
	t.Helper()
	r := structure.NewRegistry(&structure.Config{
		Memory:        m.Memory(),
		Allocator:     m.Allocator(),
		Invoker:       m.Invoker(),
		AddressSize:   4,
		RuntimeSafety: true,
	})
	if err := m.Describe(context.Background(), r); err != nil {
		t.Fatalf("Describe: %v", err)
	}
	return r
}

func TestModule_Describe(t *testing.T) {
	m := load(t, wasmtest.MathOptions{})
	r := describe(t, m)

	tests := []struct {
		name string
		kind structure.Kind
		size int
	}{
		{"add.args", structure.KindArgStruct, 12},
		{"Point", structure.KindStruct, 8},
		{"math", structure.KindStruct, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := r.Lookup(tt.name)
			if !ok {
				t.Fatalf("%s not registered", tt.name)
			}
			if !s.Finalized() || s.Kind() != tt.kind || s.ByteSize() != tt.size {
				t.Errorf("%s: finalized=%v kind=%s size=%d", tt.name, s.Finalized(), s.Kind(), s.ByteSize())
			}
		})
	}

	if m.state.registry != nil {
		t.Error("host module kept the registry after Describe")
	}
}

func TestModule_Statics(t *testing.T) {
	m := load(t, wasmtest.MathOptions{})
	r := describe(t, m)
	root, _ := r.Lookup("math")

	answer, err := root.Static("answer")
	if err != nil || answer != int64(42) {
		t.Fatalf("answer = %v, %v", answer, err)
	}

	v, err := root.Static("origin")
	if err != nil {
		t.Fatalf("origin: %v", err)
	}
	origin := v.(*structure.Instance)
	if y, _ := origin.Get("y"); y != int64(-4) {
		t.Fatalf("origin.y = %v", y)
	}
	if !origin.Buffer().Foreign() {
		t.Fatal("static constant should view guest memory")
	}

	addr, ok := origin.Address()
	if !ok {
		t.Fatal("static constant has no guest address")
	}
	// statics observe later writes by the guest
	if err := m.GuestMemory().WriteU32(addr, 7); err != nil {
		t.Fatal(err)
	}
	if x, _ := origin.Get("x"); x != int64(7) {
		t.Fatalf("origin.x after guest write = %v", x)
	}
}

func TestModule_Add(t *testing.T) {
	m := load(t, wasmtest.MathOptions{})
	r := describe(t, m)
	root, _ := r.Lookup("math")

	sum, err := root.Call(context.Background(), "add", 123, 456)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sum != int64(579) {
		t.Fatalf("add(123, 456) = %v, want 579", sum)
	}

	m.Flush(context.Background())
	frees, err := m.GuestMemory().ReadU32(wasmtest.FreeCountAddr)
	if err != nil {
		t.Fatal(err)
	}
	if frees != 1 {
		t.Errorf("guest frees = %d, want 1 for the shadowed arguments", frees)
	}
}

// factoryArgs defines the argument struct of the factory thunk.
func factoryArgs(t *testing.T, r *structure.Registry) *structure.Structure {
	t.Helper()
	fs, err := r.Begin(structure.Descriptor{Name: "factory", Kind: structure.KindArgStruct, ByteSize: 4, Align: 4})
	if err != nil {
		t.Fatal(err)
	}
	_ = r.AttachMember(fs, structure.Member{Name: "retval", Kind: structure.MemberType, BitSize: 32, ByteSize: 4})
	if err := r.Finalize(fs); err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestModule_Factory(t *testing.T) {
	m := load(t, wasmtest.MathOptions{})
	r := describe(t, m)

	got, err := r.Invoke(context.Background(), &structure.Method{Name: "factory", ArgStruct: factoryArgs(t, r), Thunk: m.Factory(), StaticOnly: true}, nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if s, ok := got.(*structure.Structure); !ok || s.Name() != "math" {
		t.Fatalf("factory returned %v", got)
	}
}

func TestModule_UnresolvedExport(t *testing.T) {
	m := load(t, wasmtest.MathOptions{AddExport: "missing"})
	r := structure.NewRegistry(&structure.Config{Memory: m.Memory(), Allocator: m.Allocator(), Invoker: m.Invoker()})

	err := m.Describe(context.Background(), r)
	if !stderrors.Is(err, merrors.ErrUnresolvedThunk) {
		t.Fatalf("Describe err = %v, want unresolved thunk", err)
	}
	if m.state.registry != nil {
		t.Error("host module kept the registry after a failed Describe")
	}
}

func TestModule_ThunkRelease(t *testing.T) {
	m := load(t, wasmtest.MathOptions{})
	if m.Thunks() != 1 {
		t.Fatalf("thunks after load = %d, want the factory only", m.Thunks())
	}

	r := describe(t, m)
	if m.Thunks() != 2 {
		t.Fatalf("thunks after describe = %d, want 2", m.Thunks())
	}

	h := m.export("add", false)
	if err := m.Resolve(structure.ThunkHandle(h)); err != nil {
		t.Fatal(err)
	}
	m.Release(structure.ThunkHandle(h))
	if m.Thunks() != 2 {
		t.Fatal("export removed while the registry still pins it")
	}
	// drop the registry's pin
	m.Release(structure.ThunkHandle(h))
	if m.Thunks() != 1 {
		t.Fatalf("thunks after last release = %d, want 1", m.Thunks())
	}
	if _, ok := m.names["add"]; ok {
		t.Error("released export still interned")
	}

	root, err := r.Invoke(context.Background(), &structure.Method{Name: "factory", ArgStruct: factoryArgs(t, r), Thunk: m.Factory(), StaticOnly: true}, nil)
	if err != nil || root == nil {
		t.Fatalf("factory after release = %v, %v", root, err)
	}
}

func TestModule_FailedDescribeUnpins(t *testing.T) {
	m := load(t, wasmtest.MathOptions{AddExport: "missing"})
	r := structure.NewRegistry(&structure.Config{Memory: m.Memory(), Allocator: m.Allocator(), Invoker: m.Invoker()})
	if err := m.Describe(context.Background(), r); err == nil {
		t.Fatal("Describe should fail")
	}
	if m.Thunks() != 1 {
		t.Errorf("thunks after failed describe = %d, want 1", m.Thunks())
	}
}

func TestModule_Closed(t *testing.T) {
	m := load(t, wasmtest.MathOptions{})
	ctx := context.Background()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if m.Memory().Size() != 0 {
		t.Error("memory size after Close should be 0")
	}
	if _, err := m.Alloc(4, 4); err == nil {
		t.Error("Alloc after Close should fail")
	}
	if _, err := m.GuestMemory().ReadU32(wasmtest.FreeCountAddr); !stderrors.Is(err, merrors.ErrIllegalState) {
		t.Errorf("ReadU32 after Close err = %v", err)
	}
	if err := m.GuestMemory().WriteU32(0, 1); !stderrors.Is(err, merrors.ErrIllegalState) {
		t.Errorf("WriteU32 after Close err = %v", err)
	}
	if err := m.Describe(ctx, structure.NewRegistry(nil)); !stderrors.Is(err, merrors.ErrIllegalState) {
		t.Errorf("Describe after Close err = %v", err)
	}
	m.Free(4096, 4, 4)
}

func TestEngine_LoadErrors(t *testing.T) {
	ctx := context.Background()
	e := New(nil)
	defer e.Close(ctx)

	noMemory := (&wasmtest.Module{Funcs: []wasmtest.Func{{
		Export: ExportDescribe,
		Body:   new(wasmtest.Code).End(),
	}}}).Encode()

	tests := []struct {
		name string
		wasm []byte
	}{
		{"garbage", []byte("not wasm")},
		{"no memory", noMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Load(ctx, tt.wasm)
			var me *merrors.Error
			if !stderrors.As(err, &me) || me.Phase != merrors.PhaseLoad {
				t.Fatalf("Load err = %v, want load error", err)
			}
		})
	}
}
