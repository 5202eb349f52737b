package runtime

import (
	"context"

	"github.com/wippyai/membind/lifetime"
	"github.com/wippyai/membind/structure"
)

// Module is a loaded module and its root structure.
//
// Dropping every reference to the module, its structures and the
// instances made from them releases the loader; Close does so eagerly.
type Module struct {
	loader   Loader
	ref      *lifetime.ModuleRef
	registry *structure.Registry
	root     *structure.Structure
	name     string
}

// Name returns the module's diagnostic name.
func (m *Module) Name() string {
	return m.name
}

// Root returns the structure produced by the module's factory.
func (m *Module) Root() *structure.Structure {
	return m.root
}

// Lookup finds a described structure by name.
func (m *Module) Lookup(name string) (*structure.Structure, bool) {
	return m.registry.Lookup(name)
}

// Registry returns the module's structure registry.
func (m *Module) Registry() *structure.Registry {
	return m.registry
}

// Bridge returns the lifetime bridge counting the module's live resources.
func (m *Module) Bridge() *lifetime.Bridge {
	return m.ref.Bridge()
}

// Counts returns the live module, thunk and buffer counts.
func (m *Module) Counts() lifetime.Counts {
	return m.ref.Bridge().Counts()
}

// Call invokes a static method on the root structure.
func (m *Module) Call(ctx context.Context, name string, args ...any) (any, error) {
	return m.root.Call(ctx, name, args...)
}

// Close releases the loader. Objects bound to the module fail with an
// illegal state error afterwards.
func (m *Module) Close(ctx context.Context) error {
	err := m.loader.Close(ctx)
	m.ref.Close()
	return err
}
