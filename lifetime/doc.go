// Package lifetime accounts for foreign resources that host objects keep
// alive.
//
// A loaded module is represented by a ModuleRef. Host objects derived from
// it (memory buffers, callable thunks) register with Track and keep the
// ModuleRef reachable until their own cleanup has run, so a module is
// always released after everything that was carved out of it.
//
// Release is driven by the Go garbage collector through runtime.AddCleanup.
// A Bridge only counts; it never references tracked objects, which keeps
// the accounting itself from pinning anything.
//
//	bridge := lifetime.NewBridge()
//	ref := bridge.OpenModule("demo", closeModule)
//	lifetime.Track(ref, lifetime.Buffer, buf, func() { alloc.Free(addr, size, align) })
//	...
//	fmt.Println(bridge.Counts())
package lifetime
