package membind

// Address is an offset into a foreign module's memory. Both loaders expose
// 32-bit address spaces.
type Address = uint32

// Memory gives byte-addressable views of foreign memory. A returned slice
// aliases the foreign memory; writes through it are visible to the module.
type Memory interface {
	View(addr Address, length uint32) ([]byte, error)
	Size() uint32
}

// Allocator allocates memory owned by the foreign module.
type Allocator interface {
	Alloc(size, align uint32) (Address, error)
	Free(addr Address, size, align uint32)
}
