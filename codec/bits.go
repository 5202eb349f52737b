package codec

import (
	"encoding/binary"
	"math/big"

	"github.com/wippyai/membind/errors"
)

var mask64 = new(big.Int).SetUint64(^uint64(0))

func checkBounds(phase errors.Phase, b []byte, off, n int) error {
	if off < 0 || n < 0 || off+n > len(b)*8 {
		return errors.New(phase, errors.KindOutOfBounds).
			Detail("bits [%d,%d) outside %d-byte buffer", off, off+n, len(b)).
			Build()
	}
	return nil
}

// readBits returns n ≤ 64 bits starting at bit off, least significant first.
func readBits(b []byte, off, n int) uint64 {
	if off&7 == 0 {
		i := off >> 3
		switch n {
		case 8:
			return uint64(b[i])
		case 16:
			return uint64(binary.LittleEndian.Uint16(b[i:]))
		case 32:
			return uint64(binary.LittleEndian.Uint32(b[i:]))
		case 64:
			return binary.LittleEndian.Uint64(b[i:])
		}
	}

	var v uint64
	for i := 0; i < n; {
		pos := off + i
		shift := pos & 7
		take := min(8-shift, n-i)
		chunk := (uint64(b[pos>>3]) >> shift) & (1<<take - 1)
		v |= chunk << i
		i += take
	}
	return v
}

// writeBits stores the low n ≤ 64 bits of v at bit off, leaving neighbouring
// bits untouched.
func writeBits(b []byte, off, n int, v uint64) {
	if off&7 == 0 {
		i := off >> 3
		switch n {
		case 8:
			b[i] = byte(v)
			return
		case 16:
			binary.LittleEndian.PutUint16(b[i:], uint16(v))
			return
		case 32:
			binary.LittleEndian.PutUint32(b[i:], uint32(v))
			return
		case 64:
			binary.LittleEndian.PutUint64(b[i:], v)
			return
		}
	}

	for i := 0; i < n; {
		pos := off + i
		shift := pos & 7
		take := min(8-shift, n-i)
		mask := byte((1<<take - 1) << shift)
		chunk := byte((v>>i)&(1<<take-1)) << shift
		b[pos>>3] = b[pos>>3]&^mask | chunk
		i += take
	}
}

// readBig reads an unsigned integer of any width.
func readBig(b []byte, off, n int) *big.Int {
	v := new(big.Int)
	for w := (n - 1) / 64; w >= 0; w-- {
		width := min(64, n-w*64)
		v.Lsh(v, 64)
		v.Or(v, new(big.Int).SetUint64(readBits(b, off+w*64, width)))
	}
	return v
}

// writeBig stores a non-negative integer of any width. v must already fit.
func writeBig(b []byte, off, n int, v *big.Int) {
	chunk := new(big.Int)
	for w := 0; w*64 < n; w++ {
		chunk.Rsh(v, uint(w*64))
		chunk.And(chunk, mask64)
		writeBits(b, off+w*64, min(64, n-w*64), chunk.Uint64())
	}
}

// signExtend interprets the low n bits of v as two's complement.
func signExtend(v uint64, n int) int64 {
	if n >= 64 {
		return int64(v)
	}
	shift := 64 - n
	return int64(v<<shift) >> shift
}
