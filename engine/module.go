package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/stealthrocket/wazergo"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/membind"
	"github.com/wippyai/membind/errors"
	"github.com/wippyai/membind/resource"
	"github.com/wippyai/membind/structure"
)

type apiFunction = api.Function

// Module is a loaded guest. It is the memory, allocator and invoker of the
// registry it describes.
type Module struct {
	runtime wazero.Runtime
	guest   api.Module
	host    *wazergo.ModuleInstance[*hostState]
	state   *hostState
	memory  *Memory

	describeFn api.Function
	allocFn    api.Function
	freeFn     api.Function

	thunks  *resource.Table[thunk]
	names   map[string]resource.Handle
	factory resource.Handle

	pending []allocation
	stack   [4]uint64

	// mu serializes guest calls
	mu      sync.Mutex
	namesMu sync.Mutex
	freeMu  sync.Mutex
	closed  bool
}

type thunk struct {
	fn   api.Function
	name string
}

type allocation struct {
	addr, size, align uint32
}

var (
	_ membind.Allocator  = (*Module)(nil)
	_ structure.Invoker  = (*Module)(nil)
	_ structure.Releaser = (*Module)(nil)
)

// Describe runs the guest's description export against r. The host module
// forgets r when Describe returns.
func (m *Module) Describe(ctx context.Context, r *structure.Registry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.IllegalState(errors.PhaseLoad, "", "guest closed")
	}

	m.state.begin(r)
	_, callErr := m.describeFn.Call(m.context(ctx))
	err := m.state.end()
	if callErr != nil {
		return errors.Load("describe trapped", callErr)
	}
	if err != nil {
		return err
	}
	Logger().Debug("guest described", zap.Int("structures", len(r.Structures())))
	return nil
}

// Factory returns the thunk of the guest's factory export.
func (m *Module) Factory() structure.ThunkHandle {
	return structure.ThunkHandle(m.factory)
}

// Memory returns the guest's linear memory.
func (m *Module) Memory() membind.Memory {
	return m.memory
}

// GuestMemory returns the memory wrapper with its typed helpers.
func (m *Module) GuestMemory() *Memory {
	return m.memory
}

// Allocator returns the guest allocator.
func (m *Module) Allocator() membind.Allocator { return m }

// Invoker returns the module as a thunk invoker.
func (m *Module) Invoker() structure.Invoker { return m }

// export interns an export name as a thunk handle and pins it when pin is
// set. Missing exports are interned too and fail on Resolve.
func (m *Module) export(name string, pin bool) resource.Handle {
	m.namesMu.Lock()
	defer m.namesMu.Unlock()
	h, ok := m.names[name]
	if !ok {
		var err error
		if h, err = m.thunks.Insert(thunk{fn: m.guest.ExportedFunction(name), name: name}); err != nil {
			return 0
		}
		m.names[name] = h
	}
	if pin {
		if _, err := m.thunks.Borrow(h); err != nil {
			return 0
		}
	}
	return h
}

// unpin drops one pin of h. The last pin removes the export so its name
// is interned afresh on the next description.
func (m *Module) unpin(h resource.Handle) {
	m.namesMu.Lock()
	defer m.namesMu.Unlock()
	if !m.thunks.ReturnBorrow(h) || m.thunks.Borrows(h) > 0 {
		return
	}
	if th, err := m.thunks.Remove(h); err == nil {
		delete(m.names, th.name)
	}
}

// Thunks returns the number of interned exports.
func (m *Module) Thunks() int {
	return m.thunks.Len()
}

func (m *Module) observe(e resource.Event[thunk]) {
	if e.Type != resource.EventCreated && e.Type != resource.EventDropped {
		return
	}
	Logger().Debug("thunk",
		zap.Stringer("event", e.Type),
		zap.Uint32("handle", uint32(e.Handle)),
		zap.String("export", e.Value.name))
}

// Resolve pins the export behind h. The export must take one i32 and
// return nothing.
func (m *Module) Resolve(h structure.ThunkHandle) error {
	th, err := m.thunks.Borrow(resource.Handle(h))
	if err != nil {
		return err
	}
	if err := checkThunk(th); err != nil {
		m.unpin(resource.Handle(h))
		return err
	}
	return nil
}

func checkThunk(th thunk) error {
	if th.fn == nil {
		return fmt.Errorf("guest exports no %q", th.name)
	}
	def := th.fn.Definition()
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 1 || params[0] != api.ValueTypeI32 || len(results) != 0 {
		return fmt.Errorf("export %q has signature %s -> %s, want [i32] -> []", th.name,
			typeNames(params), typeNames(results))
	}
	return nil
}

func typeNames(types []api.ValueType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return names
}

// Release unpins an export pinned by Resolve.
func (m *Module) Release(h structure.ThunkHandle) {
	m.unpin(resource.Handle(h))
}

// Invoke calls the export behind h with the argument struct's address.
func (m *Module) Invoke(ctx context.Context, h structure.ThunkHandle, frame *structure.CallFrame) error {
	// the caller's method, or the factory, keeps h pinned
	th, ok := m.thunks.Get(resource.Handle(h))
	if !ok {
		return errors.UnresolvedThunk("", uint32(h), resource.ErrInvalidHandle)
	}
	if err := checkThunk(th); err != nil {
		return err
	}
	if !frame.Foreign {
		return errors.IllegalState(errors.PhaseCall, th.name, "arguments are not in guest memory")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.IllegalState(errors.PhaseCall, th.name, "guest closed")
	}
	ctx = m.context(ctx)
	m.drainLocked(ctx)

	Logger().Debug("invoke",
		zap.String("export", th.name),
		zap.Uint32("args", frame.Address))
	m.stack[0] = uint64(frame.Address)
	return th.fn.CallWithStack(ctx, m.stack[:1])
}

// Alloc calls the guest allocator. Queued frees run first.
func (m *Module) Alloc(size, align uint32) (membind.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.IllegalState(errors.PhaseRuntime, "", "guest closed")
	}
	ctx := m.context(context.Background())
	m.drainLocked(ctx)

	m.stack[0] = uint64(size)
	m.stack[1] = uint64(align)
	if err := m.allocFn.CallWithStack(ctx, m.stack[:2]); err != nil {
		return 0, err
	}
	addr := uint32(m.stack[0])
	if addr == 0 {
		return 0, fmt.Errorf("guest allocator returned null for %d bytes", size)
	}
	return addr, nil
}

// Free queues a guest free for the next guest call.
func (m *Module) Free(addr membind.Address, size, align uint32) {
	if addr == 0 {
		return
	}
	m.freeMu.Lock()
	m.pending = append(m.pending, allocation{addr: addr, size: size, align: align})
	m.freeMu.Unlock()
}

// Flush runs queued frees now.
func (m *Module) Flush(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.drainLocked(m.context(ctx))
	}
}

func (m *Module) drainLocked(ctx context.Context) {
	m.freeMu.Lock()
	pending := m.pending
	m.pending = nil
	m.freeMu.Unlock()

	if m.freeFn == nil {
		return
	}
	for _, a := range pending {
		m.stack[0] = uint64(a.addr)
		m.stack[1] = uint64(a.size)
		m.stack[2] = uint64(a.align)
		if err := m.freeFn.CallWithStack(ctx, m.stack[:3]); err != nil {
			Logger().Warn("guest free failed",
				zap.Uint32("ptr", a.addr),
				zap.Uint32("size", a.size),
				zap.Error(err))
		}
	}
}

// Close drops every thunk and closes the guest's runtime.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.memory.closed.Store(true)
	thunks := m.thunks.Len()
	_ = m.thunks.Close()
	Logger().Debug("guest closed", zap.Int("thunks", thunks))
	return m.runtime.Close(ctx)
}

func (m *Module) context(ctx context.Context) context.Context {
	return wazergo.WithModuleInstance(ctx, m.host)
}
