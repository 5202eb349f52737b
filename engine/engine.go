package engine

import (
	"context"

	"github.com/stealthrocket/wazergo"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/membind/errors"
	"github.com/wippyai/membind/resource"
)

// Guest export names.
const (
	ExportMemory   = "memory"
	ExportDescribe = "membind_describe"
	ExportFactory  = "membind_factory"
	ExportAlloc    = "membind_alloc"
	ExportFree     = "membind_free"
)

// Engine compiles and loads guests. Each guest runs in its own wazero
// runtime; compiled code is shared through a compilation cache.
type Engine struct {
	cache wazero.CompilationCache
	cfg   Config
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per guest in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// EnableWASI instantiates wasi_snapshot_preview1 next to the guest.
	EnableWASI bool
}

// New creates an engine. A nil config uses defaults.
func New(cfg *Config) *Engine {
	e := &Engine{cache: wazero.NewCompilationCache()}
	if cfg != nil {
		e.cfg = *cfg
	}
	return e
}

// Load compiles and instantiates a guest. The guest is not described yet;
// see Module.Describe.
func (e *Engine) Load(ctx context.Context, wasm []byte) (*Module, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCompilationCache(e.cache)
	if e.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	m := &Module{
		runtime: rt,
		thunks:  resource.NewTable[thunk](),
		names:   make(map[string]resource.Handle),
		memory:  &Memory{},
	}
	m.thunks.Subscribe(resource.ObserverFunc[thunk](m.observe))
	fail := func(detail string, err error) (*Module, error) {
		_ = rt.Close(ctx)
		return nil, errors.Load(detail, err)
	}

	host, err := wazergo.Instantiate(ctx, rt, hostModule, withLoader(m))
	if err != nil {
		return fail("instantiate host module", err)
	}
	m.host = host

	if e.cfg.EnableWASI {
		if err := instantiateWASI(ctx, rt); err != nil {
			return fail("instantiate WASI", err)
		}
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return fail("compile guest", err)
	}
	guest, err := rt.InstantiateModule(m.context(ctx), compiled,
		wazero.NewModuleConfig().WithName("").WithStartFunctions("_initialize"))
	if err != nil {
		return fail("instantiate guest", err)
	}
	m.guest = guest

	mem := guest.ExportedMemory(ExportMemory)
	if mem == nil {
		return fail("guest exports no memory", nil)
	}
	m.memory.mem = mem

	for name, fn := range map[string]*apiFunction{
		ExportDescribe: &m.describeFn,
		ExportAlloc:    &m.allocFn,
		ExportFree:     &m.freeFn,
	} {
		*fn = guest.ExportedFunction(name)
	}
	if m.describeFn == nil {
		return fail("guest exports no "+ExportDescribe, nil)
	}
	if m.allocFn == nil {
		return fail("guest exports no "+ExportAlloc, nil)
	}
	if guest.ExportedFunction(ExportFactory) == nil {
		return fail("guest exports no "+ExportFactory, nil)
	}
	// the factory stays pinned for the module's lifetime
	m.factory = m.export(ExportFactory, true)

	Logger().Debug("guest loaded",
		zap.Uint32("memory", mem.Size()),
		zap.Int("exports", len(compiled.ExportedFunctions())),
		zap.Bool("wasi", e.cfg.EnableWASI))
	return m, nil
}

// Close releases the compilation cache. Loaded modules stay usable.
func (e *Engine) Close(ctx context.Context) error {
	return e.cache.Close(ctx)
}
