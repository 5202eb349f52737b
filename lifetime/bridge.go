package lifetime

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Resource classifies a tracked object.
type Resource uint8

const (
	Buffer Resource = iota
	Thunk
)

func (r Resource) String() string {
	switch r {
	case Buffer:
		return "buffer"
	case Thunk:
		return "thunk"
	default:
		return "unknown"
	}
}

// Counts is a snapshot of live foreign resources.
type Counts struct {
	Modules int64
	Thunks  int64
	Buffers int64
}

// Zero reports whether nothing is live.
func (c Counts) Zero() bool {
	return c.Modules == 0 && c.Thunks == 0 && c.Buffers == 0
}

func (c Counts) String() string {
	return fmt.Sprintf("modules=%d thunks=%d buffers=%d", c.Modules, c.Thunks, c.Buffers)
}

// Bridge keeps live counts for every module opened through it.
type Bridge struct {
	modules atomic.Int64
	thunks  atomic.Int64
	buffers atomic.Int64
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Counts returns the current live counts.
func (b *Bridge) Counts() Counts {
	return Counts{
		Modules: b.modules.Load(),
		Thunks:  b.thunks.Load(),
		Buffers: b.buffers.Load(),
	}
}

func (b *Bridge) counter(r Resource) *atomic.Int64 {
	if r == Thunk {
		return &b.thunks
	}
	return &b.buffers
}

// ModuleRef is the host-side handle of a loaded module. It must stay
// reachable from every host object that depends on the module.
type ModuleRef struct {
	state *moduleState
	name  string
}

type moduleState struct {
	bridge  *Bridge
	release func()
	once    sync.Once
}

func (s *moduleState) finish() {
	s.once.Do(func() {
		if s.bridge != nil {
			s.bridge.modules.Add(-1)
		}
		if s.release != nil {
			s.release()
		}
	})
}

// OpenModule registers a module. release runs exactly once, either from
// Close or after the returned ref becomes unreachable. release must not
// reference the returned ref.
func (b *Bridge) OpenModule(name string, release func()) *ModuleRef {
	st := &moduleState{bridge: b, release: release}
	if b != nil {
		b.modules.Add(1)
	}
	ref := &ModuleRef{state: st, name: name}
	runtime.AddCleanup(ref, (*moduleState).finish, st)
	return ref
}

// Name returns the diagnostic name given to OpenModule.
func (r *ModuleRef) Name() string {
	return r.name
}

// Bridge returns the bridge the module was opened on.
func (r *ModuleRef) Bridge() *Bridge {
	return r.state.bridge
}

// Close releases the module immediately. Later cleanups are no-ops.
func (r *ModuleRef) Close() {
	r.state.finish()
}

type tracked struct {
	module  *ModuleRef
	release func()
	kind    Resource
}

func (t tracked) finish() {
	if t.module != nil && t.module.state.bridge != nil {
		t.module.state.bridge.counter(t.kind).Add(-1)
	}
	if t.release != nil {
		t.release()
	}
	// keeps the module reachable until this point
	runtime.KeepAlive(t.module)
}

// Track counts owner as a live resource of module and schedules release
// for when owner becomes unreachable. The cleanup holds module, so the
// module cannot be released before it. module may be nil for resources
// that belong to no module. release must not reference owner.
func Track[T any](module *ModuleRef, kind Resource, owner *T, release func()) {
	if module != nil && module.state.bridge != nil {
		module.state.bridge.counter(kind).Add(1)
	}
	runtime.AddCleanup(owner, tracked.finish, tracked{module: module, release: release, kind: kind})
}
