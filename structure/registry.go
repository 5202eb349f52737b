package structure

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/membind"
	"github.com/wippyai/membind/errors"
	"github.com/wippyai/membind/lifetime"
)

// Config holds registry configuration.
type Config struct {
	// Memory and Allocator give access to the module's memory. Without
	// them only host-memory instances are available.
	Memory    membind.Memory
	Allocator membind.Allocator
	// Invoker resolves and runs method thunks.
	Invoker Invoker
	// Module ties foreign buffers and thunks to the module's lifetime.
	Module *lifetime.ModuleRef
	// AddressSize is the pointer width in bytes, 4 or 8.
	AddressSize int
	// RuntimeSafety enables active-arm tracking for bare unions.
	RuntimeSafety bool
}

// DefaultConfig returns a config for 32-bit modules with runtime safety.
func DefaultConfig() *Config {
	return &Config{
		AddressSize:   4,
		RuntimeSafety: true,
	}
}

// Registry accepts structure descriptions and finalizes them. Structures
// must be described in dependency order except for references through
// pointers, which are resolved lazily.
type Registry struct {
	memory    membind.Memory
	allocator membind.Allocator
	invoker   Invoker
	module    *lifetime.ModuleRef

	byName map[string]*Structure
	byID   map[uint32]*Structure
	tokens map[uint64]*errors.Token
	order  []*Structure

	// callMu serializes foreign calls; module memory is single threaded.
	callMu sync.Mutex
	mu     sync.RWMutex

	nextID        uint32
	addressSize   int
	runtimeSafety bool
}

// NewRegistry creates a registry. A nil config uses DefaultConfig.
func NewRegistry(cfg *Config) *Registry {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	addr := cfg.AddressSize
	if addr == 0 {
		addr = 4
	}
	return &Registry{
		memory:        cfg.Memory,
		allocator:     cfg.Allocator,
		invoker:       cfg.Invoker,
		module:        cfg.Module,
		addressSize:   addr,
		runtimeSafety: cfg.RuntimeSafety,
		byName:        make(map[string]*Structure),
		byID:          make(map[uint32]*Structure),
		tokens:        make(map[uint64]*errors.Token),
	}
}

// AddressSize returns the pointer width in bytes.
func (r *Registry) AddressSize() int {
	return r.addressSize
}

// Module returns the lifetime handle of the module, or nil.
func (r *Registry) Module() *lifetime.ModuleRef {
	return r.module
}

// Begin opens a new structure.
func (r *Registry) Begin(d Descriptor) (*Structure, error) {
	if d.Kind > KindArgStruct {
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidData).
			Structure(d.Name).
			Value(d.Kind).
			Detail("unknown structure kind %d", d.Kind).
			Build()
	}
	if d.ByteSize < 0 {
		return nil, errors.InvalidData(errors.PhaseRegister, []string{d.Name}, "negative byte size")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	s := &Structure{
		registry: r,
		id:       r.nextID,
		name:     d.Name,
		kind:     d.Kind,
		byteSize: d.ByteSize,
		align:    d.Align,
	}
	r.byID[s.id] = s
	if _, ok := r.byName[d.Name]; !ok && d.Name != "" {
		r.byName[d.Name] = s
	}
	r.order = append(r.order, s)

	Logger().Debug("begin structure",
		zap.String("name", d.Name),
		zap.Stringer("kind", d.Kind),
		zap.Uint32("id", s.id),
		zap.Int("size", d.ByteSize))
	return s, nil
}

// AttachMember appends a member, routed to the static or instance list by
// m.Static.
func (r *Registry) AttachMember(s *Structure, m Member) error {
	if err := r.open(s, "attach member"); err != nil {
		return err
	}
	switch m.Kind {
	case MemberObject, MemberEnumItem:
		if m.Structure == nil && !(m.Kind == MemberEnumItem && m.Static) {
			return errors.InvalidData(errors.PhaseRegister, []string{s.name, m.Name},
				m.Kind.String()+" member needs a structure")
		}
	}
	if m.BitOffset < 0 || m.BitSize < 0 {
		return errors.InvalidData(errors.PhaseRegister, []string{s.name, m.Name}, "negative offset or size")
	}
	if m.Static {
		s.staticMembers = append(s.staticMembers, m)
	} else {
		s.instanceMembers = append(s.instanceMembers, m)
	}
	return nil
}

// AttachTemplate sets the instance or static template.
func (r *Registry) AttachTemplate(s *Structure, t *Instance, static bool) error {
	if err := r.open(s, "attach template"); err != nil {
		return err
	}
	if t == nil {
		return errors.InvalidData(errors.PhaseRegister, []string{s.name}, "nil template")
	}
	if static {
		s.staticTemplate = t
	} else {
		t.structure = s
		s.template = t
	}
	return nil
}

// AttachMethod appends a method, routed to the static or instance list.
func (r *Registry) AttachMethod(s *Structure, m Method, static bool) error {
	if err := r.open(s, "attach method"); err != nil {
		return err
	}
	if m.ArgStruct == nil || m.ArgStruct.kind != KindArgStruct {
		return errors.InvalidData(errors.PhaseRegister, []string{s.name, m.Name}, "method needs an arg struct")
	}
	mm := m
	if static {
		s.staticMethods = append(s.staticMethods, &mm)
	} else {
		s.methods = append(s.methods, &mm)
	}
	return nil
}

// Finalize runs the kind's construction strategy. The structure is
// immutable afterwards.
func (r *Registry) Finalize(s *Structure) error {
	if err := r.open(s, "finalize"); err != nil {
		return err
	}
	if err := r.finalize(s); err != nil {
		return errors.WithPath(err, s.name)
	}
	s.finalized = true

	Logger().Debug("finalized structure",
		zap.String("name", s.name),
		zap.Stringer("kind", s.kind),
		zap.Int("members", len(s.members)),
		zap.Int("methods", len(s.methods)+len(s.staticMethods)))
	return nil
}

// Lookup returns the first structure registered under name.
func (r *Registry) Lookup(name string) (*Structure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// ByID returns the structure with the given id.
func (r *Registry) ByID(id uint32) (*Structure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// Structures returns every structure in registration order.
func (r *Registry) Structures() []*Structure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Structure(nil), r.order...)
}

// ForeignTemplate creates a template that views foreign memory, so static
// members backed by it observe later changes made by the module.
func (r *Registry) ForeignTemplate(addr membind.Address, size uint32) (*Instance, error) {
	if r.memory == nil {
		return nil, errors.IllegalState(errors.PhaseRegister, "", "registry has no foreign memory")
	}
	buf, err := r.foreignBuffer(addr, size, nil)
	if err != nil {
		return nil, err
	}
	return &Instance{buffer: buf, length: int(size)}, nil
}

func (r *Registry) open(s *Structure, op string) error {
	if s == nil {
		return errors.IllegalState(errors.PhaseRegister, "", op+" on nil structure")
	}
	if s.registry != r {
		return errors.IllegalState(errors.PhaseRegister, s.name, op+" on structure of another registry")
	}
	if s.finalized {
		return errors.IllegalState(errors.PhaseRegister, s.name, op+" after finalize")
	}
	return nil
}

// token returns the catalog singleton for code, creating it on first use.
func (r *Registry) token(name string, code uint64) (*errors.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[code]; ok {
		if t.Name != name {
			return nil, errors.InvalidData(errors.PhaseFinalize, []string{name},
				"error code already names "+t.Name)
		}
		return t, nil
	}
	t := &errors.Token{Name: name, Code: code}
	r.tokens[code] = t
	return t, nil
}

func (r *Registry) foreignBuffer(addr membind.Address, size uint32, release func()) (*Buffer, error) {
	view, err := r.memory.View(addr, size)
	if err != nil {
		return nil, errors.New(errors.PhaseGet, errors.KindOutOfBounds).
			Value(addr).
			Cause(err).
			Detail("cannot view %d bytes at 0x%x", size, addr).
			Build()
	}
	b := &Buffer{
		memory:  r.memory,
		module:  r.module,
		bytes:   view,
		size:    size,
		memSize: r.memory.Size(),
		address: addr,
		foreign: true,
	}
	if r.module != nil || release != nil {
		lifetime.Track(r.module, lifetime.Buffer, b, release)
	}
	return b, nil
}
