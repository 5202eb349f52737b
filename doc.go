// Package membind lets Go code work with values living in a foreign module's
// memory (a native shared library or a WebAssembly instance) as ordinary
// objects, without per-type marshaling code.
//
// The foreign module publishes a description of its exported types and
// functions when it is loaded. From that description the engine builds live
// objects backed directly by the foreign memory, plus callable proxies that
// marshal arguments into the foreign calling convention and results back.
//
// # Architecture Overview
//
//	membind/            Memory and Allocator contracts shared by loaders
//	├── structure/      Registry, finalizers, instances, slot graph, call thunks
//	├── codec/          Bit-level codecs for Int, Float and Bool members
//	├── lifetime/       Live counts of modules, thunks and foreign buffers
//	├── resource/       Handle tables mapping thunk handles to entry points
//	├── engine/         WebAssembly loader on wazero
//	├── native/         In-process library loader backed by an mmap arena
//	├── witbind/        Structure descriptions derived from WIT types
//	├── runtime/        Loaded module facade
//	└── errors/         Structured error types
//
// # Quick Start
//
//	rt := runtime.New(nil)
//	mod, err := rt.LoadWASM(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mod.Close(ctx)
//
//	root := mod.Root()
//	sum, err := root.Call(ctx, "add", 123, 456)
//	fmt.Println(sum) // 579
//
// # Thread Safety
//
// Type registration is single-writer and happens before any instance exists.
// Finalized structures are immutable and safe for concurrent readers.
// Instances are not synchronized; a single goroutine should own an instance
// at a time.
package membind
