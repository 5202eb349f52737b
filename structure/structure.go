package structure

import (
	"context"
	"reflect"

	"github.com/wippyai/membind"
	"github.com/wippyai/membind/codec"
	"github.com/wippyai/membind/errors"
)

// Structure describes one foreign type. It is open while the loader
// attaches members, templates and methods, and immutable once finalized.
type Structure struct {
	registry *Registry

	template       *Instance
	staticTemplate *Instance
	statics        *Instance
	enum           *enumTable
	array          *Structure
	byName         map[string]*member
	slotMembers    map[int]*member

	name string

	instanceMembers []Member
	staticMembers   []Member
	methods         []*Method
	staticMethods   []*Method
	members         []member

	address codec.Int
	count   codec.Int

	id        uint32
	byteSize  int
	align     int
	stride    int
	kind      Kind
	dynamic   bool
	finalized bool
}

// ID returns the registry-assigned identifier. Type members store it.
func (s *Structure) ID() uint32 { return s.id }

// Name returns the diagnostic name.
func (s *Structure) Name() string { return s.name }

// Kind returns the construction strategy.
func (s *Structure) Kind() Kind { return s.kind }

// ByteSize returns the footprint of one instance. Dynamically sized arrays
// report zero.
func (s *Structure) ByteSize() int { return s.byteSize }

// Align returns the alignment used for foreign allocations.
func (s *Structure) Align() int { return s.align }

// Finalized reports whether the structure is usable.
func (s *Structure) Finalized() bool { return s.finalized }

// Registry returns the owning registry.
func (s *Structure) Registry() *Registry { return s.registry }

// Members returns the instance members in declaration order.
func (s *Structure) Members() []Member {
	return append([]Member(nil), s.instanceMembers...)
}

// StaticMembers returns the static members in declaration order.
func (s *Structure) StaticMembers() []Member {
	return append([]Member(nil), s.staticMembers...)
}

// Methods returns the instance methods.
func (s *Structure) Methods() []*Method {
	return append([]*Method(nil), s.methods...)
}

// StaticMethods returns the static methods.
func (s *Structure) StaticMethods() []*Method {
	return append([]*Method(nil), s.staticMethods...)
}

// Template returns the instance template, or nil.
func (s *Structure) Template() *Instance {
	return s.template
}

// Target returns the pointee of a pointer, or the element type of a slice
// or array when elements are objects.
func (s *Structure) Target() *Structure {
	switch s.kind {
	case KindPointer, KindArray, KindSlice:
		if len(s.members) > 0 {
			return s.members[0].Structure
		}
	}
	return nil
}

// ElementArray returns the dynamically sized array a slice dereferences
// to. New on it builds slice targets.
func (s *Structure) ElementArray() *Structure {
	return s.array
}

// Statics returns the instance backing static members, or nil.
func (s *Structure) Statics() *Instance {
	return s.statics
}

// Static reads a static member.
func (s *Structure) Static(name string) (any, error) {
	if s.statics == nil {
		return nil, errors.NotFound(errors.PhaseGet, "static member", name)
	}
	return s.statics.Get(name)
}

// SetStatic writes a static member.
func (s *Structure) SetStatic(name string, v any) error {
	if s.statics == nil {
		return errors.NotFound(errors.PhaseSet, "static member", name)
	}
	return s.statics.Set(name, v)
}

// Call invokes a static method.
func (s *Structure) Call(ctx context.Context, name string, args ...any) (any, error) {
	m, ok := s.methodByName(name, true)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "method", name)
	}
	return s.registry.Invoke(ctx, m, nil, args...)
}

// New creates an instance in host memory, seeded from the instance template
// and then from init. init may be nil, an *Instance of the same structure,
// or a Go value accepted by SetValue.
func (s *Structure) New(init any) (*Instance, error) {
	if err := s.constructible(); err != nil {
		return nil, err
	}
	n, err := s.sizeFor(init)
	if err != nil {
		return nil, err
	}
	inst := &Instance{structure: s, buffer: newHostBuffer(n), length: n}
	return s.initialize(inst, init)
}

// NewFixed creates an instance in foreign memory. The allocation is owned
// by the returned instance and freed after it is collected.
func (s *Structure) NewFixed(init any) (*Instance, error) {
	if err := s.constructible(); err != nil {
		return nil, err
	}
	r := s.registry
	if r.allocator == nil || r.memory == nil {
		return nil, errors.IllegalState(errors.PhaseSet, s.name, "registry has no foreign allocator")
	}
	n, err := s.sizeFor(init)
	if err != nil {
		return nil, err
	}
	size, align := uint32(max(n, 1)), uint32(max(s.align, 1))
	addr, err := r.allocator.Alloc(size, align)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseSet, size, align, err)
	}
	alloc := r.allocator
	buf, err := r.foreignBuffer(addr, uint32(n), func() { alloc.Free(addr, size, align) })
	if err != nil {
		alloc.Free(addr, size, align)
		return nil, err
	}
	clear(buf.Bytes())
	inst := &Instance{structure: s, buffer: buf, length: n}
	return s.initialize(inst, init)
}

// View wraps existing host bytes without copying.
func (s *Structure) View(b []byte) (*Instance, error) {
	if err := s.ready(errors.PhaseGet); err != nil {
		return nil, err
	}
	n := s.byteSize
	if s.dynamic {
		n = len(b) - len(b)%max(s.stride/8, 1)
	}
	if len(b) < n {
		return nil, errors.OutOfBounds(errors.PhaseGet, []string{s.name}, n, len(b))
	}
	buf := &Buffer{bytes: b, size: uint32(len(b))}
	return &Instance{structure: s, buffer: buf, length: n}, nil
}

// ViewAt wraps foreign memory at addr. The view borrows the memory; the
// module stays alive while the view is reachable.
func (s *Structure) ViewAt(addr membind.Address) (*Instance, error) {
	return s.viewAt(addr, s.byteSize)
}

func (s *Structure) viewAt(addr membind.Address, n int) (*Instance, error) {
	if err := s.ready(errors.PhaseGet); err != nil {
		return nil, err
	}
	if s.registry.memory == nil {
		return nil, errors.IllegalState(errors.PhaseGet, s.name, "registry has no foreign memory")
	}
	buf, err := s.registry.foreignBuffer(addr, uint32(n), nil)
	if err != nil {
		return nil, err
	}
	return &Instance{structure: s, buffer: buf, length: n}, nil
}

// Convert maps a raw value, a name or an item to an enumeration item or an
// error set token.
func (s *Structure) Convert(v any) (any, error) {
	switch s.kind {
	case KindEnumeration:
		if err := s.ready(errors.PhaseSet); err != nil {
			return nil, err
		}
		idx, err := s.enum.find(s, v)
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return NoMatch, nil
		}
		return s.enum.items[idx], nil
	case KindErrorSet:
		if err := s.ready(errors.PhaseSet); err != nil {
			return nil, err
		}
		return s.enum.token(s, v)
	default:
		return nil, errors.Unsupported(errors.PhaseSet, "Convert on "+s.kind.String())
	}
}

// Items returns the enumerators of an enumeration.
func (s *Structure) Items() []*EnumItem {
	if s.enum == nil {
		return nil
	}
	return append([]*EnumItem(nil), s.enum.items...)
}

func (s *Structure) String() string {
	return s.kind.String() + " " + s.name
}

func (s *Structure) ready(phase errors.Phase) error {
	if !s.finalized {
		return errors.IllegalState(phase, s.name, "structure is not finalized")
	}
	return nil
}

func (s *Structure) constructible() error {
	if err := s.ready(errors.PhaseSet); err != nil {
		return err
	}
	switch s.kind {
	case KindEnumeration, KindErrorSet:
		return errors.NoNewEnum(s.name)
	case KindOpaque:
		return errors.Unsupported(errors.PhaseSet, "opaque structures cannot be instantiated")
	}
	return nil
}

func (s *Structure) member(phase errors.Phase, name string) (*member, error) {
	m := s.byName[name]
	if m == nil {
		return nil, errors.New(phase, errors.KindNotFound).
			Structure(s.name).
			Path(name).
			Detail("no member %q", name).
			Build()
	}
	return m, nil
}

func (s *Structure) methodByName(name string, static bool) (*Method, bool) {
	list := s.methods
	if static {
		list = s.staticMethods
	}
	for _, m := range list {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// sizeFor returns the byte length of a new instance initialised from init.
func (s *Structure) sizeFor(init any) (int, error) {
	if !s.dynamic {
		return s.byteSize, nil
	}
	elem := s.stride / 8
	switch v := init.(type) {
	case nil:
		return 0, nil
	case *Instance:
		return v.length, nil
	case string:
		return len(v) * elem, nil
	}
	rv := reflect.ValueOf(init)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len() * elem, nil
	}
	return 0, errors.TypeMismatch(errors.PhaseSet, []string{s.name}, init, "slice")
}

func (s *Structure) initialize(inst *Instance, init any) (*Instance, error) {
	if s.template != nil {
		copy(inst.Bytes(), s.template.Bytes())
		if err := inst.copySlots(s.template); err != nil {
			return nil, err
		}
	}
	if init != nil {
		if err := inst.assign(init); err != nil {
			return nil, err
		}
	}
	return inst, nil
}
