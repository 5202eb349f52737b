//go:build unix

package native

import "golang.org/x/sys/unix"

// mapArena reserves size bytes of anonymous memory outside the Go heap.
func mapArena(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func unmapArena(b []byte) error {
	return unix.Munmap(b)
}
