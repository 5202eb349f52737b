package native

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/wippyai/membind"
)

// heapBase keeps address 0 free so it can mean null.
const heapBase = 16

// span is a free range [addr, addr+size).
type span struct {
	addr membind.Address
	size uint32
}

// heap is a first-fit allocator over the arena. Free spans are kept sorted
// by address and coalesced on free.
type heap struct {
	free  []span
	used  map[membind.Address]uint32
	limit uint32
}

func newHeap(limit uint32) *heap {
	return &heap{
		free:  []span{{addr: heapBase, size: limit - heapBase}},
		used:  make(map[membind.Address]uint32),
		limit: limit,
	}
}

func (h *heap) alloc(size, align uint32) (membind.Address, error) {
	if size == 0 {
		size = 1
	}
	if align == 0 || align&(align-1) != 0 {
		return 0, fmt.Errorf("alignment %d is not a power of two", align)
	}
	for i, s := range h.free {
		start := (s.addr + align - 1) &^ (align - 1)
		pad := start - s.addr
		if pad > s.size || s.size-pad < size {
			continue
		}
		rest := s.size - pad - size
		h.free = slices.Delete(h.free, i, i+1)
		if rest > 0 {
			h.free = slices.Insert(h.free, i, span{addr: start + size, size: rest})
		}
		if pad > 0 {
			h.free = slices.Insert(h.free, i, span{addr: s.addr, size: pad})
		}
		h.used[start] = size
		return start, nil
	}
	return 0, fmt.Errorf("arena exhausted: %d bytes requested", size)
}

func (h *heap) release(addr membind.Address) bool {
	size, ok := h.used[addr]
	if !ok {
		return false
	}
	delete(h.used, addr)

	i, _ := slices.BinarySearchFunc(h.free, addr, func(s span, a membind.Address) int {
		switch {
		case s.addr < a:
			return -1
		case s.addr > a:
			return 1
		}
		return 0
	})
	h.free = slices.Insert(h.free, i, span{addr: addr, size: size})

	if i+1 < len(h.free) && h.free[i].addr+h.free[i].size == h.free[i+1].addr {
		h.free[i].size += h.free[i+1].size
		h.free = slices.Delete(h.free, i+1, i+2)
	}
	if i > 0 && h.free[i-1].addr+h.free[i-1].size == h.free[i].addr {
		h.free[i-1].size += h.free[i].size
		h.free = slices.Delete(h.free, i, i+1)
	}
	return true
}

// inUse returns the number of live allocations.
func (h *heap) inUse() int {
	return len(h.used)
}
