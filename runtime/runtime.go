package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/membind"
	"github.com/wippyai/membind/engine"
	"github.com/wippyai/membind/errors"
	"github.com/wippyai/membind/lifetime"
	"github.com/wippyai/membind/native"
	"github.com/wippyai/membind/structure"
)

// Loader is the foreign side of a module: it describes the module's
// structures into a registry and serves memory, allocation and calls.
type Loader interface {
	Describe(ctx context.Context, r *structure.Registry) error
	Factory() structure.ThunkHandle
	Invoker() structure.Invoker
	Memory() membind.Memory
	Allocator() membind.Allocator
	Close(ctx context.Context) error
}

// Config configures a Runtime.
type Config struct {
	// Engine configures WebAssembly loading. Nil uses the engine defaults.
	Engine *engine.Config
	// DisableRuntimeSafety turns off active-arm tracking for bare unions.
	DisableRuntimeSafety bool
}

// Runtime loads modules and binds their structures.
type Runtime struct {
	engine *engine.Engine
	cfg    Config
}

// New creates a runtime. A nil config uses defaults.
func New(cfg *Config) *Runtime {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	return &Runtime{
		engine: engine.New(c.Engine),
		cfg:    c,
	}
}

// Close releases the compilation cache. Loaded modules stay usable until
// they are closed or collected.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// LoadWASM compiles and instantiates a guest and binds its root structure.
func (r *Runtime) LoadWASM(ctx context.Context, wasm []byte) (*Module, error) {
	m, err := r.engine.Load(ctx, wasm)
	if err != nil {
		return nil, err
	}
	return r.Open(ctx, "wasm", m)
}

// LoadNative opens an in-process library described by describe.
func (r *Runtime) LoadNative(ctx context.Context, cfg *native.Config, describe native.DescribeFunc) (*Module, error) {
	lib, err := native.Open(cfg, describe)
	if err != nil {
		return nil, err
	}
	return r.Open(ctx, lib.Name(), lib)
}

// Open binds a loader. The loader is closed when the module is closed or
// when the last object depending on it is collected. On error the loader
// is closed before returning.
func (r *Runtime) Open(ctx context.Context, name string, l Loader) (*Module, error) {
	bridge := lifetime.NewBridge()
	ref := bridge.OpenModule(name, func() {
		if err := l.Close(context.Background()); err != nil {
			Logger().Warn("module release failed", zap.String("module", name), zap.Error(err))
		}
	})

	reg := structure.NewRegistry(&structure.Config{
		Memory:        l.Memory(),
		Allocator:     l.Allocator(),
		Invoker:       l.Invoker(),
		Module:        ref,
		AddressSize:   4,
		RuntimeSafety: !r.cfg.DisableRuntimeSafety,
	})
	if err := l.Describe(ctx, reg); err != nil {
		ref.Close()
		return nil, err
	}

	root, err := factory(ctx, reg, l.Factory())
	if err != nil {
		ref.Close()
		return nil, err
	}

	Logger().Debug("module opened",
		zap.String("module", name),
		zap.String("root", root.Name()),
		zap.Int("structures", len(reg.Structures())))
	return &Module{
		name:     name,
		loader:   l,
		ref:      ref,
		registry: reg,
		root:     root,
	}, nil
}

// factoryArgs is the argument struct of the root factory thunk.
const factoryArgs = "$factory"

func factory(ctx context.Context, reg *structure.Registry, h structure.ThunkHandle) (*structure.Structure, error) {
	if h == 0 {
		return nil, errors.Load("module exports no factory", nil)
	}
	fs, err := reg.Begin(structure.Descriptor{Name: factoryArgs, Kind: structure.KindArgStruct, ByteSize: 4, Align: 4})
	if err != nil {
		return nil, err
	}
	if err := reg.AttachMember(fs, structure.Member{Name: "retval", Kind: structure.MemberType, BitSize: 32, ByteSize: 4}); err != nil {
		return nil, err
	}
	if err := reg.Finalize(fs); err != nil {
		return nil, err
	}

	v, err := reg.Invoke(ctx, &structure.Method{Name: "factory", ArgStruct: fs, Thunk: h, StaticOnly: true}, nil)
	if err != nil {
		return nil, errors.Load("root factory failed", err)
	}
	root, ok := v.(*structure.Structure)
	if !ok || root == nil {
		return nil, errors.Load("root factory returned no structure", nil)
	}
	return root, nil
}
