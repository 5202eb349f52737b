package codec

import (
	"errors"
	"math"
	"math/big"
	"testing"

	merrors "github.com/wippyai/membind/errors"
)

func pow2(n uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), n)
}

func TestIntRoundTripBoundaries(t *testing.T) {
	widths := []int{1, 3, 7, 8, 12, 16, 24, 31, 32, 33, 48, 63, 64, 65, 96, 127, 128}
	offsets := []int{0, 3, 8}

	for _, width := range widths {
		for _, off := range offsets {
			buf := make([]byte, (off+width+7)/8+1)

			unsigned := Int{BitOffset: off, BitSize: width}
			umax := new(big.Int).Sub(pow2(uint(width)), big.NewInt(1))
			for _, want := range []*big.Int{big.NewInt(0), umax} {
				if err := unsigned.Set(buf, want); err != nil {
					t.Fatalf("u%d@%d Set(%v): %v", width, off, want, err)
				}
				got, err := unsigned.GetBig(buf)
				if err != nil || got.Cmp(want) != 0 {
					t.Errorf("u%d@%d: got %v, want %v (err %v)", width, off, got, want, err)
				}
			}

			signed := Int{BitOffset: off, BitSize: width, Signed: true}
			if width == 1 {
				continue
			}
			smax := new(big.Int).Sub(pow2(uint(width-1)), big.NewInt(1))
			smin := new(big.Int).Neg(pow2(uint(width - 1)))
			for _, want := range []*big.Int{smin, big.NewInt(-1), smax} {
				if err := signed.Set(buf, want); err != nil {
					t.Fatalf("i%d@%d Set(%v): %v", width, off, want, err)
				}
				got, err := signed.GetBig(buf)
				if err != nil || got.Cmp(want) != 0 {
					t.Errorf("i%d@%d: got %v, want %v (err %v)", width, off, got, want, err)
				}
			}
		}
	}
}

func TestIntNativeValues(t *testing.T) {
	buf := make([]byte, 16)

	i32 := Int{BitSize: 32, Signed: true}
	if err := i32.Set(buf, int32(math.MinInt32)); err != nil {
		t.Fatal(err)
	}
	v, _ := i32.Get(buf)
	if v != int64(math.MinInt32) {
		t.Errorf("i32 = %#v, want int64(MinInt32)", v)
	}

	u64 := Int{BitSize: 64}
	if err := u64.Set(buf, uint64(math.MaxUint64)); err != nil {
		t.Fatal(err)
	}
	v, _ = u64.Get(buf)
	if v != uint64(math.MaxUint64) {
		t.Errorf("u64 = %#v", v)
	}

	u128 := Int{BitSize: 128}
	want := new(big.Int).Sub(pow2(128), big.NewInt(1))
	if err := u128.Set(buf, want); err != nil {
		t.Fatal(err)
	}
	v, _ = u128.Get(buf)
	if got, ok := v.(*big.Int); !ok || got.Cmp(want) != 0 {
		t.Errorf("u128 = %#v", v)
	}
}

func TestIntRangeErrors(t *testing.T) {
	buf := make([]byte, 16)
	tests := []struct {
		codec Int
		value any
		name  string
	}{
		{Int{BitSize: 8}, 256, "u8 overflow"},
		{Int{BitSize: 8}, -1, "u8 negative"},
		{Int{BitSize: 8, Signed: true}, 128, "i8 overflow"},
		{Int{BitSize: 8, Signed: true}, -129, "i8 underflow"},
		{Int{BitSize: 3, BitOffset: 2}, 8, "u3 overflow"},
		{Int{BitSize: 64, Signed: true}, uint64(math.MaxUint64), "i64 from max u64"},
		{Int{BitSize: 65}, pow2(65), "u65 overflow"},
		{Int{BitSize: 100, Signed: true}, new(big.Int).Neg(new(big.Int).Add(pow2(99), big.NewInt(1))), "i100 underflow"},
		{Int{BitSize: 16}, 1.5, "fractional"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := append([]byte(nil), buf...)
			err := tc.codec.Set(buf, tc.value)
			if !errors.Is(err, merrors.ErrRange) {
				t.Fatalf("Set(%v) error = %v, want range", tc.value, err)
			}
			if string(before) != string(buf) {
				t.Error("failed Set modified the buffer")
			}
		})
	}

	if err := (Int{BitSize: 8}).Set(buf, "7"); !errors.Is(err, merrors.ErrTypeMismatch) {
		t.Errorf("Set(string) error = %v, want type mismatch", err)
	}
}

func TestPackedMembersIndependentOfWriteOrder(t *testing.T) {
	// a:u3 @0, b:i5 @3, c:u7 @8 (aligned), d:i11 @15 spans three bytes, e:u1 @26
	members := []struct {
		codec Int
		value int64
	}{
		{Int{BitOffset: 0, BitSize: 3}, 5},
		{Int{BitOffset: 3, BitSize: 5, Signed: true}, -9},
		{Int{BitOffset: 8, BitSize: 7}, 100},
		{Int{BitOffset: 15, BitSize: 11, Signed: true}, -1000},
		{Int{BitOffset: 26, BitSize: 1}, 1},
	}

	orders := [][]int{{0, 1, 2, 3, 4}, {4, 3, 2, 1, 0}, {2, 0, 4, 1, 3}}
	var first []byte
	for _, order := range orders {
		buf := make([]byte, 4)
		for _, i := range order {
			if err := members[i].codec.Set(buf, members[i].value); err != nil {
				t.Fatalf("member %d: %v", i, err)
			}
		}
		for i, m := range members {
			got, err := m.codec.GetBig(buf)
			if err != nil || got.Int64() != m.value {
				t.Errorf("order %v member %d = %v, want %d", order, i, got, m.value)
			}
		}
		if first == nil {
			first = buf
		} else if string(first) != string(buf) {
			t.Errorf("order %v produced %x, want %x", order, buf, first)
		}
	}
}

func TestFloat(t *testing.T) {
	if _, err := NewFloat(0, 16); err == nil {
		t.Error("NewFloat(16) should be unsupported")
	}

	buf := make([]byte, 12)
	f32, _ := NewFloat(0, 32)
	f64, _ := NewFloat(32, 64)

	for _, v := range []float32{0, -1.5, math.MaxFloat32, math.SmallestNonzeroFloat32, float32(math.Inf(-1))} {
		if err := f32.Set(buf, v); err != nil {
			t.Fatal(err)
		}
		if got, _ := f32.Get(buf); got != v {
			t.Errorf("f32 = %v, want %v", got, v)
		}
	}
	for _, v := range []float64{math.MaxFloat64, -math.SmallestNonzeroFloat64, 1e300} {
		if err := f64.Set(buf, v); err != nil {
			t.Fatal(err)
		}
		if got, _ := f64.Get(buf); got != v {
			t.Errorf("f64 = %v, want %v", got, v)
		}
	}

	if err := f32.Set(buf, 1e300); !errors.Is(err, merrors.ErrRange) {
		t.Errorf("f32 overflow error = %v", err)
	}
	if err := f64.Set(buf, 7); err != nil {
		t.Errorf("f64 from int: %v", err)
	}
	if got, _ := f64.Get(buf); got != float64(7) {
		t.Errorf("f64 = %v", got)
	}
}

func TestBool(t *testing.T) {
	buf := make([]byte, 2)
	bit := Bool{BitOffset: 5, BitSize: 1}
	whole := Bool{BitOffset: 8, BitSize: 8}

	for _, v := range []bool{true, false, true} {
		if err := bit.Set(buf, v); err != nil {
			t.Fatal(err)
		}
		if got, _ := bit.Get(buf); got != v {
			t.Errorf("bit = %v, want %v", got, v)
		}
	}
	if buf[0] != 1<<5 {
		t.Errorf("neighbouring bits touched: %08b", buf[0])
	}

	buf[1] = 0x40
	if got, _ := whole.Get(buf); got != true {
		t.Error("non-zero byte should read as true")
	}
	if err := whole.Set(buf, 1); !errors.Is(err, merrors.ErrTypeMismatch) {
		t.Errorf("Set(1) error = %v", err)
	}
}

func TestOutOfBounds(t *testing.T) {
	buf := make([]byte, 2)
	if _, err := (Int{BitOffset: 9, BitSize: 8}).Get(buf); !errors.Is(err, merrors.ErrOutOfBounds) {
		t.Errorf("Get error = %v", err)
	}
	if err := (Int{BitOffset: 0, BitSize: 32}).Set(buf, 1); !errors.Is(err, merrors.ErrOutOfBounds) {
		t.Errorf("Set error = %v", err)
	}
}
