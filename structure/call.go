package structure

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/membind"
	"github.com/wippyai/membind/errors"
)

// shadowAlign is the alignment of temporary foreign copies of host buffers.
const shadowAlign = 16

// Invoker resolves and runs foreign entry points.
type Invoker interface {
	Resolve(h ThunkHandle) error
	Invoke(ctx context.Context, h ThunkHandle, frame *CallFrame) error
}

// Releaser is implemented by invokers that hold per-thunk resources.
type Releaser interface {
	Release(h ThunkHandle)
}

// CallFrame is what an invoker receives for one call.
type CallFrame struct {
	// Args is the argument struct instance.
	Args *Instance
	// Buffers holds every distinct buffer reachable from Args.
	Buffers []*Buffer
	// Pointers holds every pointer or slice instance reachable from Args.
	Pointers []*Instance
	// Address locates Args in foreign memory when Foreign is set.
	Address membind.Address
	Foreign bool
}

// Invoke calls m with an optional receiver and positional arguments and
// returns the decoded retval. An error union result in the error state
// is returned as its *errors.Token.
func (r *Registry) Invoke(ctx context.Context, m *Method, recv *Instance, args ...any) (any, error) {
	if r.invoker == nil {
		return nil, errors.IllegalState(errors.PhaseCall, m.Name, "registry has no invoker")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseCall, errors.KindIllegalState, err, "context done")
	}
	inst, err := m.ArgStruct.New(nil)
	if err != nil {
		return nil, errors.WithPath(err, m.Name)
	}
	if err := bindArgs(inst, m, recv, args); err != nil {
		return nil, err
	}

	r.callMu.Lock()
	defer r.callMu.Unlock()

	if err := r.bindThunk(m); err != nil {
		return nil, err
	}
	frame := collect(inst)
	sh, err := r.shadow(frame)
	if err != nil {
		return nil, errors.WithPath(err, m.Name)
	}

	Logger().Debug("invoke",
		zap.String("method", m.Name),
		zap.Uint32("thunk", uint32(m.Thunk)),
		zap.Int("buffers", len(frame.Buffers)),
		zap.Int("pointers", len(frame.Pointers)))

	err = r.invoker.Invoke(ctx, m.Thunk, frame)
	sh.restore(err == nil)
	if err != nil {
		if _, ok := err.(*errors.Error); ok {
			return nil, errors.WithPath(err, m.Name)
		}
		return nil, errors.ForeignCall(m.Name, err)
	}

	rm := m.ArgStruct.byName["retval"]
	if rm == nil {
		return nil, nil
	}
	v, err := readMember(inst, rm)
	if err != nil {
		return nil, errors.WithPath(err, m.Name, "retval")
	}
	return unwrapResult(v)
}

func bindArgs(inst *Instance, m *Method, recv *Instance, args []any) error {
	a := m.ArgStruct
	params := make([]*member, 0, len(a.members))
	for idx := range a.members {
		if a.members[idx].Name != "retval" {
			params = append(params, &a.members[idx])
		}
	}
	if recv != nil {
		if len(params) == 0 {
			return errors.InvalidData(errors.PhaseCall, []string{m.Name}, "method has no receiver")
		}
		if err := writeMember(inst, params[0], recv); err != nil {
			return errors.WithPath(err, m.Name, params[0].Name)
		}
		params = params[1:]
	}
	if len(args) > len(params) {
		return errors.New(errors.PhaseCall, errors.KindTypeMismatch).
			Path(m.Name).
			Value(len(args)).
			Detail("expected at most %d arguments, got %d", len(params), len(args)).
			Build()
	}
	for k, p := range params {
		if k >= len(args) {
			if p.Kind == MemberObject && p.Structure.kind == KindOptional {
				continue
			}
			return errors.New(errors.PhaseCall, errors.KindTypeMismatch).
				Path(m.Name, p.Name).
				Detail("missing argument %d", k).
				Build()
		}
		if err := writeMember(inst, p, args[k]); err != nil {
			return errors.WithPath(err, m.Name, p.Name)
		}
	}
	return nil
}

// unwrapResult turns a retval child into the caller-facing value. Value
// wrappers are unwrapped, references are dereferenced and aggregates are
// copied out of the argument struct.
func unwrapResult(v any) (any, error) {
	c, ok := v.(*Instance)
	if !ok {
		return v, nil
	}
	switch c.structure.kind {
	case KindPrimitive, KindOptional, KindErrorUnion, KindEnumeration, KindErrorSet:
		return c.Value()
	case KindPointer, KindSlice:
		t, err := c.Deref()
		if t == nil || err != nil {
			return nil, err
		}
		return t, nil
	case KindOpaque:
		return c, nil
	}
	return c.structure.New(c)
}

type shadowCopy struct {
	buf  *Buffer
	addr membind.Address
	size uint32
}

type fixup struct {
	ptr  *Instance
	addr membind.Address
	host bool
}

type shadowSet struct {
	registry *Registry
	copies   []shadowCopy
	fixups   []fixup
}

// shadow copies host buffers into temporary foreign allocations and points
// every reachable pointer at the foreign location of its target.
func (r *Registry) shadow(frame *CallFrame) (*shadowSet, error) {
	set := &shadowSet{registry: r}
	if r.memory == nil || r.allocator == nil {
		return set, nil
	}
	where := make(map[*Buffer]membind.Address, len(frame.Buffers))
	for _, b := range frame.Buffers {
		if b.foreign {
			where[b] = b.address
			continue
		}
		size := uint32(max(b.Len(), 1))
		addr, err := r.allocator.Alloc(size, shadowAlign)
		if err != nil {
			set.restore(false)
			return nil, errors.AllocationFailed(errors.PhaseCall, size, shadowAlign, err)
		}
		where[b] = addr
		set.copies = append(set.copies, shadowCopy{buf: b, addr: addr, size: size})
	}
	for _, p := range frame.Pointers {
		t := p.slots[0]
		if t == nil {
			continue
		}
		base, ok := where[t.buffer]
		if !ok {
			continue
		}
		addr := base + membind.Address(t.offset)
		if err := p.writeReference(addr, t.Len()); err != nil {
			set.restore(false)
			return nil, err
		}
		set.fixups = append(set.fixups, fixup{ptr: p, addr: addr, host: !t.buffer.foreign})
	}
	for _, c := range set.copies {
		view, err := r.memory.View(c.addr, uint32(c.buf.Len()))
		if err != nil {
			set.restore(false)
			return nil, errors.Wrap(errors.PhaseCall, errors.KindOutOfBounds, err, "shadow view")
		}
		copy(view, c.buf.Bytes())
	}
	frame.Address = where[frame.Args.buffer] + membind.Address(frame.Args.offset)
	frame.Foreign = true
	return set, nil
}

// restore copies shadows back when commit is set, resolves pointers the
// module may have moved and frees the shadows.
func (s *shadowSet) restore(commit bool) {
	r := s.registry
	if commit {
		for _, c := range s.copies {
			if view, err := r.memory.View(c.addr, uint32(c.buf.Len())); err == nil {
				copy(c.buf.Bytes(), view)
			}
		}
	}
	for _, f := range s.fixups {
		addr, count, err := f.ptr.reference()
		if err != nil {
			continue
		}
		switch {
		case addr != f.addr:
			delete(f.ptr.slots, 0)
		case f.host:
			_ = f.ptr.writeReference(0, count)
		}
	}
	for _, c := range s.copies {
		r.allocator.Free(c.addr, c.size, shadowAlign)
	}
}
