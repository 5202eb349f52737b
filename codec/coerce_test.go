package codec

import (
	"math"
	"math/big"
	"testing"
)

func TestToInt64(t *testing.T) {
	tests := []struct {
		input  any
		name   string
		want   int64
		wantOK bool
	}{
		{int64(math.MinInt64), "int64 min", math.MinInt64, true},
		{int64(math.MaxInt64), "int64 max", math.MaxInt64, true},
		{int8(-5), "int8 negative", -5, true},
		{uint64(math.MaxInt64), "uint64 max int64", math.MaxInt64, true},
		{uint64(math.MaxInt64 + 1), "uint64 too large", 0, false},
		{float64(42), "float64 integral", 42, true},
		{float64(3.5), "float64 fractional", 0, false},
		{float64(1 << 63), "float64 too large", 0, false},
		{big.NewInt(-9), "big small", -9, true},
		{new(big.Int).Lsh(big.NewInt(1), 70), "big too large", 0, false},
		{"12", "string", 0, false},
		{nil, "nil", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ToInt64(tc.input)
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("ToInt64(%v) = (%d, %v), want (%d, %v)", tc.input, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestToUint64(t *testing.T) {
	tests := []struct {
		input  any
		name   string
		want   uint64
		wantOK bool
	}{
		{uint64(math.MaxUint64), "uint64 max", math.MaxUint64, true},
		{int(-1), "int negative", 0, false},
		{int32(77), "int32 positive", 77, true},
		{float32(100), "float32 integral", 100, true},
		{float64(-1), "float64 negative", 0, false},
		{new(big.Int).SetUint64(math.MaxUint64), "big max", math.MaxUint64, true},
		{big.NewInt(-1), "big negative", 0, false},
		{true, "bool", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ToUint64(tc.input)
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("ToUint64(%v) = (%d, %v), want (%d, %v)", tc.input, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestToBig(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 100)

	got, ok := ToBig(huge)
	if !ok || got.Cmp(huge) != 0 {
		t.Fatalf("ToBig(2^100) = %v, %v", got, ok)
	}
	if got == huge {
		t.Error("ToBig must copy its input")
	}

	got, ok = ToBig(uint64(math.MaxUint64))
	if !ok || got.String() != "18446744073709551615" {
		t.Errorf("ToBig(MaxUint64) = %v, %v", got, ok)
	}

	if _, ok := ToBig(math.Inf(1)); ok {
		t.Error("ToBig(+Inf) should fail")
	}
	if _, ok := ToBig(0.25); ok {
		t.Error("ToBig(0.25) should fail")
	}
}

func TestToFloat64(t *testing.T) {
	if f, ok := ToFloat64(int16(-3)); !ok || f != -3 {
		t.Errorf("ToFloat64(int16) = %v, %v", f, ok)
	}
	if f, ok := ToFloat64(float32(1.5)); !ok || f != 1.5 {
		t.Errorf("ToFloat64(float32) = %v, %v", f, ok)
	}
	if _, ok := ToFloat64("1.5"); ok {
		t.Error("ToFloat64(string) should fail")
	}
}
