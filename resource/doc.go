// Package resource provides the handle tables loaders use to map thunk
// handles to foreign entry points.
//
// A Table issues small integer handles, starting at 1, for arbitrary
// values. Remove refuses an entry while it is borrowed, so a handle
// resolved by a method stays valid while that method is reachable.
// Loaders remove an export when its last borrow is returned:
//
//	table := resource.NewTable[string]()
//	h, _ := table.Insert("add")
//
//	name, err := table.Borrow(h) // resolve
//	if table.ReturnBorrow(h) {   // release
//	    table.Remove(h)
//	}
//
// # Observers
//
// Observers receive created, dropped, borrowed and borrow-returned events:
//
//	table.Subscribe(resource.ObserverFunc[string](func(e resource.Event[string]) {
//	    log.Printf("%s %d", e.Type, e.Handle)
//	}))
//
// Close drops every entry, borrowed or not, and emits a dropped event for
// each.
package resource
