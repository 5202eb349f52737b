// Package runtime loads modules and exposes their described structures.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt := runtime.New(nil)
//	defer rt.Close(ctx)
//
//	mod, err := rt.LoadWASM(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mod.Close(ctx)
//
//	sum, err := mod.Root().Call(ctx, "add", 123, 456)
//	fmt.Println(sum) // 579
//
// # Loaders
//
// A Loader is the foreign side of a module. The engine package loads
// WebAssembly guests and the native package serves in-process libraries;
// any other implementation can be bound with Runtime.Open.
//
// Opening a module runs the loader's description pass into a fresh
// registry and then calls the factory thunk, whose return value is the
// root structure.
//
// # Lifetime
//
// Every module gets its own lifetime bridge. Structures, instances in
// foreign memory and bound methods keep the module alive; when none is
// reachable the loader is closed by a cleanup. Module.Counts exposes the
// live counts for leak checks.
package runtime
