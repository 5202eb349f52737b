// Package engine loads WebAssembly guests on wazero and connects them to a
// structure registry.
//
// # Guest ABI
//
// A guest exports its linear memory as "memory" and the functions below.
// Every thunk, the factory included, takes the address of its argument
// struct and returns nothing:
//
//	membind_describe ()                        registers types through imports
//	membind_factory  (args i32)                writes the root structure id
//	membind_alloc    (size, align i32) -> i32  allocates guest memory
//	membind_free     (ptr, size, align i32)    optional
//
// Types are described by calling the functions of the "membind" host
// module from membind_describe:
//
//	begin_structure    (kind, name_ptr, name_len, size, align) -> id
//	attach_member      (id, name_ptr, name_len, rec_ptr, rec_len) -> status
//	attach_template    (id, addr, size, static) -> status
//	attach_method      (id, name_ptr, name_len, export_ptr, export_len, args_id, flags) -> status
//	finalize_structure (id) -> status
//	log                (level, msg_ptr, msg_len) -> 0
//
// A member record is 24 little-endian bytes:
//
//	0  kind u8, 1 flags u8 (1 signed, 2 static)
//	4  bit offset, 8 bit size, 12 byte size, 16 slot, 20 structure id
//
// A failing import returns -1; the first failure is reported by Describe.
//
// # Memory
//
// Frees requested by the host are queued and run on the next guest call,
// since cleanups arrive on the runtime's cleanup goroutine and a guest
// instance is not safe for concurrent use.
package engine
