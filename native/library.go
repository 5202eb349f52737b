package native

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/membind"
	"github.com/wippyai/membind/errors"
	"github.com/wippyai/membind/resource"
	"github.com/wippyai/membind/structure"
)

// DefaultArenaSize is the arena size used when Config.ArenaSize is zero.
const DefaultArenaSize = 1 << 20

// Func is an exported entry point of a library. mem is the whole arena and
// args is the address of the argument struct inside it. A Func must not
// retain references to registry objects.
type Func func(ctx context.Context, mem []byte, args membind.Address) error

// DescribeFunc registers the library's structures and exports its
// functions. It returns the root structure handed out by the factory.
type DescribeFunc func(ctx context.Context, r *structure.Registry, lib *Library) (*structure.Structure, error)

// Config holds library configuration.
type Config struct {
	// Name is used in diagnostics.
	Name string
	// ArenaSize is the size of the library's memory in bytes.
	ArenaSize int
}

// Library is an in-process module whose memory is an mmap arena outside
// the Go heap and whose entry points are Go functions.
type Library struct {
	name     string
	arena    []byte
	heap     *heap
	thunks   *resource.Table[export]
	describe DescribeFunc
	factory  structure.ThunkHandle
	mu       sync.Mutex
	closed   bool
}

type export struct {
	fn   Func
	name string
}

var (
	_ membind.Memory     = (*Library)(nil)
	_ membind.Allocator  = (*Library)(nil)
	_ structure.Invoker  = (*Library)(nil)
	_ structure.Releaser = (*Library)(nil)
)

// Open maps the arena and prepares the library. describe runs on Describe.
func Open(cfg *Config, describe DescribeFunc) (*Library, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if describe == nil {
		return nil, errors.Load("library has no description", nil)
	}
	size := cfg.ArenaSize
	if size == 0 {
		size = DefaultArenaSize
	}
	if size <= heapBase || uint64(size) > 1<<32-1 {
		return nil, errors.Load(fmt.Sprintf("arena size %d out of range", size), nil)
	}
	mem, err := mapArena(size)
	if err != nil {
		return nil, errors.Load("map arena", err)
	}
	name := cfg.Name
	if name == "" {
		name = "native"
	}
	Logger().Debug("library opened", zap.String("name", name), zap.Int("arena", size))
	l := &Library{
		name:     name,
		arena:    mem,
		heap:     newHeap(uint32(size)),
		thunks:   resource.NewTable[export](),
		describe: describe,
	}
	l.thunks.Subscribe(resource.ObserverFunc[export](l.observe))
	return l, nil
}

func (l *Library) observe(e resource.Event[export]) {
	if e.Type != resource.EventCreated && e.Type != resource.EventDropped {
		return
	}
	Logger().Debug("export",
		zap.String("library", l.name),
		zap.Stringer("event", e.Type),
		zap.Uint32("handle", uint32(e.Handle)),
		zap.String("export", e.Value.name))
}

// Exports returns the number of live exports.
func (l *Library) Exports() int {
	return l.thunks.Len()
}

// Name returns the library's diagnostic name.
func (l *Library) Name() string {
	return l.name
}

// Export registers fn and returns its thunk handle.
func (l *Library) Export(name string, fn Func) (structure.ThunkHandle, error) {
	if fn == nil {
		return 0, errors.InvalidData(errors.PhaseLoad, []string{name}, "nil export")
	}
	h, err := l.thunks.Insert(export{fn: fn, name: name})
	if err != nil {
		return 0, errors.Wrap(errors.PhaseLoad, errors.KindIllegalState, err, "export "+name)
	}
	return structure.ThunkHandle(h), nil
}

// Describe runs the description function and exports a factory returning
// the root structure's id.
func (l *Library) Describe(ctx context.Context, r *structure.Registry) error {
	root, err := l.describe(ctx, r, l)
	if err != nil {
		return err
	}
	if root == nil {
		return errors.Load("description returned no root structure", nil)
	}
	id := root.ID()
	h, err := l.Export("factory", func(_ context.Context, mem []byte, args membind.Address) error {
		binary.LittleEndian.PutUint32(mem[args:], id)
		return nil
	})
	if err != nil {
		return err
	}
	// the current factory holds its own pin; the previous one loses it
	if err := l.Resolve(h); err != nil {
		return err
	}
	if l.factory != 0 {
		l.Release(l.factory)
	}
	l.factory = h
	return nil
}

// Factory returns the thunk that yields the root structure.
func (l *Library) Factory() structure.ThunkHandle {
	return l.factory
}

// Invoker returns the library as a structure.Invoker.
func (l *Library) Invoker() structure.Invoker { return l }

// Memory returns the library as a membind.Memory.
func (l *Library) Memory() membind.Memory { return l }

// Allocator returns the library as a membind.Allocator.
func (l *Library) Allocator() membind.Allocator { return l }

// View returns a slice of the arena.
func (l *Library) View(addr membind.Address, length uint32) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errors.IllegalState(errors.PhaseRuntime, l.name, "library closed")
	}
	end := uint64(addr) + uint64(length)
	if end > uint64(len(l.arena)) {
		return nil, errors.OutOfBounds(errors.PhaseGet, []string{l.name}, int(end), len(l.arena))
	}
	return l.arena[addr:end:end], nil
}

// Size returns the arena size, or 0 once closed.
func (l *Library) Size() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0
	}
	return uint32(len(l.arena))
}

// Alloc reserves size bytes in the arena.
func (l *Library) Alloc(size, align uint32) (membind.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, errors.IllegalState(errors.PhaseRuntime, l.name, "library closed")
	}
	return l.heap.alloc(size, align)
}

// Free returns an allocation to the arena. Frees after Close are ignored.
func (l *Library) Free(addr membind.Address, size, align uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if !l.heap.release(addr) {
		Logger().Warn("free of unknown block",
			zap.String("library", l.name),
			zap.Uint32("addr", addr),
			zap.Uint32("size", size))
	}
}

// Allocations returns the number of live arena allocations.
func (l *Library) Allocations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heap.inUse()
}

// Resolve pins the export behind h until Release.
func (l *Library) Resolve(h structure.ThunkHandle) error {
	_, err := l.thunks.Borrow(resource.Handle(h))
	return err
}

// Release unpins an export pinned by Resolve. The last release removes
// the export; its handle may be reissued by a later Export.
func (l *Library) Release(h structure.ThunkHandle) {
	if l.thunks.ReturnBorrow(resource.Handle(h)) {
		// fails while another method still pins h
		_, _ = l.thunks.Remove(resource.Handle(h))
	}
}

// Invoke runs the export behind h against the argument struct in the arena.
func (l *Library) Invoke(ctx context.Context, h structure.ThunkHandle, frame *structure.CallFrame) error {
	// the caller's method keeps h pinned
	ex, ok := l.thunks.Get(resource.Handle(h))
	if !ok {
		return errors.UnresolvedThunk("", uint32(h), resource.ErrInvalidHandle)
	}
	if !frame.Foreign {
		return errors.IllegalState(errors.PhaseCall, ex.name, "arguments are not in the arena")
	}
	Logger().Debug("invoke",
		zap.String("library", l.name),
		zap.String("export", ex.name),
		zap.Uint32("args", frame.Address))
	return ex.fn(ctx, l.arena, frame.Address)
}

// Close drops every export and unmaps the arena.
func (l *Library) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	exports := l.thunks.Len()
	_ = l.thunks.Close()
	err := unmapArena(l.arena)
	l.arena = nil
	Logger().Debug("library closed", zap.String("name", l.name), zap.Int("exports", exports))
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindIllegalState, err, "unmap arena")
	}
	return nil
}
