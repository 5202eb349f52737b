package codec

import (
	"math"
	"math/big"
	"strconv"

	"github.com/wippyai/membind/errors"
)

// Codec reads and writes one member inside a byte slice.
type Codec interface {
	Get(b []byte) (any, error)
	Set(b []byte, v any) error
}

// Int is a two's complement or unsigned integer of arbitrary bit width.
type Int struct {
	BitOffset int
	BitSize   int
	Signed    bool
}

// Get returns int64/uint64 for widths up to 64 bits and *big.Int beyond.
func (c Int) Get(b []byte) (any, error) {
	if err := checkBounds(errors.PhaseGet, b, c.BitOffset, c.BitSize); err != nil {
		return nil, err
	}
	if c.BitSize > 64 {
		return c.getBig(b), nil
	}
	raw := readBits(b, c.BitOffset, c.BitSize)
	if c.Signed {
		return signExtend(raw, c.BitSize), nil
	}
	return raw, nil
}

// GetBig returns the value as *big.Int regardless of width.
func (c Int) GetBig(b []byte) (*big.Int, error) {
	if err := checkBounds(errors.PhaseGet, b, c.BitOffset, c.BitSize); err != nil {
		return nil, err
	}
	return c.getBig(b), nil
}

func (c Int) getBig(b []byte) *big.Int {
	if c.BitSize <= 64 {
		raw := readBits(b, c.BitOffset, c.BitSize)
		if c.Signed {
			return big.NewInt(signExtend(raw, c.BitSize))
		}
		return new(big.Int).SetUint64(raw)
	}
	v := readBig(b, c.BitOffset, c.BitSize)
	if c.Signed && v.Bit(c.BitSize-1) == 1 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(c.BitSize)))
	}
	return v
}

// Set stores v, failing with KindRange when it does not fit.
func (c Int) Set(b []byte, v any) error {
	if err := checkBounds(errors.PhaseSet, b, c.BitOffset, c.BitSize); err != nil {
		return err
	}
	if !IsNumber(v) {
		return errors.TypeMismatch(errors.PhaseSet, nil, v, c.typeName())
	}
	if c.BitSize > 64 {
		return c.setBig(b, v)
	}

	if c.Signed {
		i, ok := ToInt64(v)
		if !ok || !c.fitsSigned(i) {
			return errors.Range(errors.PhaseSet, nil, v, c.BitSize, true)
		}
		writeBits(b, c.BitOffset, c.BitSize, uint64(i))
		return nil
	}

	u, ok := ToUint64(v)
	if !ok || !c.fitsUnsigned(u) {
		return errors.Range(errors.PhaseSet, nil, v, c.BitSize, false)
	}
	writeBits(b, c.BitOffset, c.BitSize, u)
	return nil
}

func (c Int) setBig(b []byte, v any) error {
	n, ok := ToBig(v)
	if !ok {
		return errors.Range(errors.PhaseSet, nil, v, c.BitSize, c.Signed)
	}
	lo, hi := c.bounds()
	if n.Cmp(lo) < 0 || n.Cmp(hi) > 0 {
		return errors.Range(errors.PhaseSet, nil, v, c.BitSize, c.Signed)
	}
	if n.Sign() < 0 {
		n.Add(n, new(big.Int).Lsh(big.NewInt(1), uint(c.BitSize)))
	}
	writeBig(b, c.BitOffset, c.BitSize, n)
	return nil
}

// bounds returns the inclusive representable range.
func (c Int) bounds() (lo, hi *big.Int) {
	one := big.NewInt(1)
	if c.Signed {
		hi = new(big.Int).Lsh(one, uint(c.BitSize-1))
		lo = new(big.Int).Neg(hi)
		hi.Sub(hi, one)
		return lo, hi
	}
	hi = new(big.Int).Lsh(one, uint(c.BitSize))
	return new(big.Int), hi.Sub(hi, one)
}

func (c Int) fitsSigned(i int64) bool {
	if c.BitSize >= 64 {
		return true
	}
	hi := int64(1)<<(c.BitSize-1) - 1
	return i >= -hi-1 && i <= hi
}

func (c Int) fitsUnsigned(u uint64) bool {
	if c.BitSize >= 64 {
		return true
	}
	return u <= uint64(1)<<c.BitSize-1
}

func (c Int) typeName() string {
	if c.Signed {
		return "i" + strconv.Itoa(c.BitSize)
	}
	return "u" + strconv.Itoa(c.BitSize)
}

// Float is an IEEE-754 binary32 or binary64 value.
type Float struct {
	BitOffset int
	BitSize   int
}

// NewFloat validates the width of a float member.
func NewFloat(bitOffset, bitSize int) (Float, error) {
	if bitSize != 32 && bitSize != 64 {
		return Float{}, errors.Unsupported(errors.PhaseFinalize, "float width "+strconv.Itoa(bitSize))
	}
	return Float{BitOffset: bitOffset, BitSize: bitSize}, nil
}

func (c Float) Get(b []byte) (any, error) {
	if err := checkBounds(errors.PhaseGet, b, c.BitOffset, c.BitSize); err != nil {
		return nil, err
	}
	raw := readBits(b, c.BitOffset, c.BitSize)
	if c.BitSize == 32 {
		return math.Float32frombits(uint32(raw)), nil
	}
	return math.Float64frombits(raw), nil
}

func (c Float) Set(b []byte, v any) error {
	if err := checkBounds(errors.PhaseSet, b, c.BitOffset, c.BitSize); err != nil {
		return err
	}
	f, ok := ToFloat64(v)
	if !ok {
		return errors.TypeMismatch(errors.PhaseSet, nil, v, "f"+strconv.Itoa(c.BitSize))
	}
	if c.BitSize == 32 {
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return errors.Range(errors.PhaseSet, nil, v, 32, true)
		}
		writeBits(b, c.BitOffset, 32, uint64(math.Float32bits(float32(f))))
		return nil
	}
	writeBits(b, c.BitOffset, 64, math.Float64bits(f))
	return nil
}

// Bool is a single bit in packed layouts or a whole byte otherwise; wider
// slots read any non-zero pattern as true.
type Bool struct {
	BitOffset int
	BitSize   int
}

func (c Bool) Get(b []byte) (any, error) {
	if err := checkBounds(errors.PhaseGet, b, c.BitOffset, c.BitSize); err != nil {
		return nil, err
	}
	if c.BitSize > 64 {
		return readBig(b, c.BitOffset, c.BitSize).Sign() != 0, nil
	}
	return readBits(b, c.BitOffset, c.BitSize) != 0, nil
}

func (c Bool) Set(b []byte, v any) error {
	if err := checkBounds(errors.PhaseSet, b, c.BitOffset, c.BitSize); err != nil {
		return err
	}
	flag, ok := v.(bool)
	if !ok {
		return errors.TypeMismatch(errors.PhaseSet, nil, v, "bool")
	}
	var raw uint64
	if flag {
		raw = 1
	}
	if c.BitSize > 64 {
		writeBig(b, c.BitOffset, c.BitSize, new(big.Int).SetUint64(raw))
		return nil
	}
	writeBits(b, c.BitOffset, c.BitSize, raw)
	return nil
}
