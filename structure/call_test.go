package structure

import (
	"context"
	"errors"
	"testing"

	merrors "github.com/wippyai/membind/errors"
)

func addArgs(t *testing.T, r *Registry) *Structure {
	t.Helper()
	return define(t, r, "add.args", KindArgStruct, 12,
		intMember("0", 0, 32, true),
		intMember("1", 32, 32, true),
		intMember("retval", 64, 32, true),
	)
}

func adder(ctx context.Context, f *CallFrame) error {
	args, err := frameArgs(f)
	if err != nil {
		return err
	}
	a, _ := args.Get("0")
	b, _ := args.Get("1")
	return args.Set("retval", a.(int64)+b.(int64))
}

func namespace(t *testing.T, r *Registry, methods ...Method) *Structure {
	t.Helper()
	ns := begin(t, r, "ns", KindStruct, 0)
	for _, m := range methods {
		if err := r.AttachMethod(ns, m, true); err != nil {
			t.Fatal(err)
		}
	}
	return finalize(t, r, ns)
}

func TestCall_Add(t *testing.T) {
	tests := []struct {
		name   string
		memory bool
	}{
		{"host frame", false},
		{"shadowed frame", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newFuncInvoker()
			cfg := &Config{Invoker: inv, RuntimeSafety: true}
			mem := newArena(1024)
			if tt.memory {
				cfg.Memory, cfg.Allocator = mem, mem
			}
			r := NewRegistry(cfg)
			inv.add(1, func(ctx context.Context, f *CallFrame) error {
				if f.Foreign != tt.memory {
					t.Errorf("frame.Foreign = %v", f.Foreign)
				}
				return adder(ctx, f)
			})
			ns := namespace(t, r, Method{Name: "add", ArgStruct: addArgs(t, r), Thunk: 1})

			got, err := ns.Call(context.Background(), "add", 123, 456)
			if err != nil {
				t.Fatal(err)
			}
			if got != int64(579) {
				t.Errorf("add(123, 456) = %v", got)
			}
			if tt.memory && mem.frees != 1 {
				t.Errorf("shadow frees = %d", mem.frees)
			}
		})
	}
}

func TestCall_ArgumentErrors(t *testing.T) {
	inv := newFuncInvoker()
	r := NewRegistry(&Config{Invoker: inv})
	inv.add(1, adder)
	opt := define(t, r, "?i32", KindOptional, 8,
		intMember("value", 0, 32, true),
		Member{Name: "present", Kind: MemberBool, BitOffset: 32, BitSize: 8, ByteSize: 1})
	optArgs := define(t, r, "opt.args", KindArgStruct, 12,
		intMember("0", 0, 32, true),
		objectMember("1", 32, 0, opt),
	)
	inv.add(2, func(ctx context.Context, f *CallFrame) error { return nil })
	ns := namespace(t, r,
		Method{Name: "add", ArgStruct: addArgs(t, r), Thunk: 1},
		Method{Name: "opt", ArgStruct: optArgs, Thunk: 2},
	)
	ctx := context.Background()

	if _, err := ns.Call(ctx, "add", 1, 2, 3); !errors.Is(err, merrors.ErrTypeMismatch) {
		t.Errorf("too many arguments = %v", err)
	}
	if _, err := ns.Call(ctx, "add", 1); !errors.Is(err, merrors.ErrTypeMismatch) {
		t.Errorf("missing argument = %v", err)
	}
	if _, err := ns.Call(ctx, "add", 1, 1<<40); !errors.Is(err, merrors.ErrRange) {
		t.Errorf("out of range argument = %v", err)
	}
	if _, err := ns.Call(ctx, "opt", 1); err != nil {
		t.Errorf("omitted optional argument = %v", err)
	}
	if _, err := ns.Call(ctx, "nope"); !errors.Is(err, merrors.ErrNotFound) {
		t.Errorf("unknown method = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := ns.Call(cancelled, "add", 1, 2); err == nil {
		t.Error("call with cancelled context succeeded")
	}

	inv.add(3, func(ctx context.Context, f *CallFrame) error { return errors.New("trap") })
	failing := namespace(t, r, Method{Name: "fail", ArgStruct: addArgs(t, r), Thunk: 3})
	if _, err := failing.Call(ctx, "fail", 1, 2); !errors.Is(err, &merrors.Error{Kind: merrors.KindForeignCall}) {
		t.Errorf("foreign failure = %v", err)
	}
}

func TestCall_PointerArgumentsAreShadowed(t *testing.T) {
	inv := newFuncInvoker()
	mem := newArena(1024)
	r := NewRegistry(&Config{Invoker: inv, Memory: mem, Allocator: mem, RuntimeSafety: true})
	p := point(t, r)
	ptr := pointerTo(t, r, p)
	args := define(t, r, "sum.args", KindArgStruct, 8,
		pointerMember("0", 0, 0, ptr),
		intMember("retval", 32, 32, true),
	)
	inv.add(1, func(ctx context.Context, f *CallFrame) error {
		a, err := frameArgs(f)
		if err != nil {
			return err
		}
		pv, _ := a.Get("0")
		target, err := pv.(*Instance).Deref()
		if err != nil {
			return err
		}
		if _, ok := target.Address(); !ok {
			t.Error("target not in foreign memory during call")
		}
		x, _ := target.Get("x")
		y, _ := target.Get("y")
		if err := target.Set("x", 100); err != nil {
			return err
		}
		return a.Set("retval", x.(int64)+y.(int64))
	})
	ns := namespace(t, r, Method{Name: "sum", ArgStruct: args, Thunk: 1})

	pt := mustNew(t, p, map[string]any{"x": 20, "y": 22})
	got, err := ns.Call(context.Background(), "sum", pt)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(42) {
		t.Errorf("sum = %v", got)
	}
	if x := mustGet(t, pt, "x"); x != int64(100) {
		t.Errorf("write through pointer not copied back: x = %v", x)
	}
	if _, ok := pt.Address(); ok {
		t.Error("host instance gained an address")
	}
	if mem.frees != 2 {
		t.Errorf("shadow frees = %d, want 2", mem.frees)
	}
}

func TestCall_ErrorUnionResult(t *testing.T) {
	inv := newFuncInvoker()
	r := NewRegistry(&Config{Invoker: inv})
	errs := errorSet(t, r, "DivError", []string{"DivisionByZero"}, []uint8{1})
	eu := define(t, r, "DivError!i32", KindErrorUnion, 8,
		intMember("value", 0, 32, true),
		Member{Name: "error", Kind: MemberEnumItem, BitOffset: 32, BitSize: 8, ByteSize: 1, Structure: errs})
	args := define(t, r, "div.args", KindArgStruct, 16,
		intMember("0", 0, 32, true),
		intMember("1", 32, 32, true),
		objectMember("retval", 64, 0, eu),
	)
	divByZero, _ := errs.Static("DivisionByZero")
	inv.add(1, func(ctx context.Context, f *CallFrame) error {
		a, _ := f.Args.Get("0")
		b, _ := f.Args.Get("1")
		if b.(int64) == 0 {
			return f.Args.Set("retval", divByZero)
		}
		return f.Args.Set("retval", a.(int64)/b.(int64))
	})
	ns := namespace(t, r, Method{Name: "div", ArgStruct: args, Thunk: 1})
	ctx := context.Background()

	if got, err := ns.Call(ctx, "div", 10, 2); err != nil || got != int64(5) {
		t.Errorf("div(10, 2) = %v, %v", got, err)
	}
	_, err := ns.Call(ctx, "div", 1, 0)
	if err != divByZero {
		t.Errorf("div(1, 0) error = %v, want token", err)
	}
}

func TestCall_InstanceMethod(t *testing.T) {
	inv := newFuncInvoker()
	r := NewRegistry(&Config{Invoker: inv})
	inv.add(7, func(ctx context.Context, f *CallFrame) error {
		self, _ := f.Args.Get("0")
		k, _ := f.Args.Get("1")
		target, err := self.(*Instance).Deref()
		if err != nil {
			return err
		}
		x, _ := target.Get("x")
		return target.Set("x", x.(int64)*k.(int64))
	})

	p := begin(t, r, "Point", KindStruct, 8)
	ptr := pointerTo(t, r, p)
	args := define(t, r, "scale.args", KindArgStruct, 8,
		pointerMember("0", 0, 0, ptr),
		intMember("1", 32, 32, true),
	)
	attach(t, r, p, intMember("x", 0, 32, true), intMember("y", 32, 32, true))
	if err := r.AttachMethod(p, Method{Name: "scale", ArgStruct: args, Thunk: 7}, false); err != nil {
		t.Fatal(err)
	}
	finalize(t, r, p)

	inst := mustNew(t, p, map[string]any{"x": 3})
	if _, err := inst.Call(context.Background(), "scale", 5); err != nil {
		t.Fatal(err)
	}
	if x := mustGet(t, inst, "x"); x != int64(15) {
		t.Errorf("x = %v after scale", x)
	}
	if _, err := p.Call(context.Background(), "scale", 5); !errors.Is(err, merrors.ErrNotFound) {
		t.Errorf("instance method called statically: %v", err)
	}
}

func TestCollect_CycleTerminates(t *testing.T) {
	r := NewRegistry(nil)
	node := begin(t, r, "Node", KindStruct, 8)
	ptr := pointerTo(t, r, node)
	attach(t, r, node,
		intMember("value", 0, 32, true),
		pointerMember("next", 32, 0, ptr),
	)
	finalize(t, r, node)
	args := define(t, r, "walk.args", KindArgStruct, 8,
		pointerMember("0", 0, 0, ptr),
		intMember("retval", 32, 32, true),
	)

	a := mustNew(t, node, map[string]any{"value": 1})
	b := mustNew(t, node, map[string]any{"value": 2, "next": a})
	if err := a.Set("next", b); err != nil {
		t.Fatal(err)
	}
	inst := mustNew(t, args, map[string]any{"0": a})

	frame := collect(inst)
	if len(frame.Buffers) != 3 {
		t.Fatalf("buffers = %d, want 3", len(frame.Buffers))
	}
	seen := make(map[*Buffer]bool)
	for _, buf := range frame.Buffers {
		if seen[buf] {
			t.Fatal("duplicate buffer")
		}
		seen[buf] = true
	}
	if len(frame.Pointers) != 3 {
		t.Errorf("pointers = %d, want 3", len(frame.Pointers))
	}
}

func TestCall_CyclicListThroughForeignMemory(t *testing.T) {
	inv := newFuncInvoker()
	mem := newArena(1024)
	r := NewRegistry(&Config{Invoker: inv, Memory: mem, Allocator: mem})
	node := begin(t, r, "Node", KindStruct, 8)
	ptr := pointerTo(t, r, node)
	attach(t, r, node, intMember("value", 0, 32, true), pointerMember("next", 32, 0, ptr))
	finalize(t, r, node)
	args := define(t, r, "sum.args", KindArgStruct, 8,
		pointerMember("0", 0, 0, ptr),
		intMember("retval", 32, 32, true),
	)
	inv.add(1, func(ctx context.Context, f *CallFrame) error {
		a, err := frameArgs(f)
		if err != nil {
			return err
		}
		head, _ := a.Get("0")
		start, err := head.(*Instance).Deref()
		if err != nil {
			return err
		}
		startAddr, _ := start.Address()
		var sum int64
		cur := start
		for steps := 0; steps < 10; steps++ {
			v, _ := cur.Get("value")
			sum += v.(int64)
			next, _ := cur.Get("next")
			if cur, err = next.(*Instance).Deref(); err != nil {
				return err
			}
			if addr, _ := cur.Address(); addr == startAddr {
				return a.Set("retval", sum)
			}
		}
		return errors.New("list did not cycle")
	})
	ns := namespace(t, r, Method{Name: "sum", ArgStruct: args, Thunk: 1})

	a := mustNew(t, node, map[string]any{"value": 40})
	b := mustNew(t, node, map[string]any{"value": 2, "next": a})
	if err := a.Set("next", b); err != nil {
		t.Fatal(err)
	}
	got, err := ns.Call(context.Background(), "sum", a)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(42) {
		t.Errorf("sum = %v", got)
	}
	next, _ := mustGet(t, a, "next").(*Instance).Deref()
	if next != b {
		t.Error("host pointer lost its target after the call")
	}
}
