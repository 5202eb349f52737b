// Package structure builds live Go views of foreign types from load-time
// descriptions.
//
// A loader describes each type to a Registry: Begin opens a Structure,
// AttachMember, AttachTemplate and AttachMethod fill it in, and Finalize
// runs the construction strategy for its Kind. Offsets and sizes always
// come from the description; the registry never computes a layout.
//
// Instances are windows into a Buffer. Nested objects and pointer targets
// are reached through the instance's slot map: nested views share the
// parent's buffer, pointer slots hold the target instance. Assigning an
// instance to an Object member copies its bytes and rebuilds the child
// graph, except for pointers, whose targets are shared.
//
// Registry.Invoke runs a method: it fills a fresh argument struct, collects
// every buffer reachable from it, copies host buffers into temporary
// foreign memory, rewrites pointer addresses, calls the Invoker and copies
// results back.
//
// Registry calls are serialized per registry. Instances are not safe for
// concurrent mutation.
package structure
