package codec

import (
	"math"
	"math/big"

	"golang.org/x/exp/constraints"
)

// The coercion table is total: every function reports ok=false instead of
// truncating or panicking.

func signedOf[T constraints.Integer](v T) (int64, bool) {
	if v < 0 {
		return int64(v), true
	}
	if uint64(v) > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func unsignedOf[T constraints.Integer](v T) (uint64, bool) {
	if v < 0 {
		return 0, false
	}
	return uint64(v), true
}

// ToInt64 converts any Go integer, integral float or *big.Int to int64.
func ToInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return signedOf(v)
	case int8:
		return signedOf(v)
	case int16:
		return signedOf(v)
	case int32:
		return signedOf(v)
	case int64:
		return v, true
	case uint:
		return signedOf(v)
	case uint8:
		return signedOf(v)
	case uint16:
		return signedOf(v)
	case uint32:
		return signedOf(v)
	case uint64:
		return signedOf(v)
	case uintptr:
		return signedOf(v)
	case float32:
		return ToInt64(float64(v))
	case float64:
		if v >= -(1<<63) && v < 1<<63 && v == math.Trunc(v) {
			return int64(v), true
		}
	case *big.Int:
		if v != nil && v.IsInt64() {
			return v.Int64(), true
		}
	}
	return 0, false
}

// ToUint64 converts any non-negative Go integer, integral float or *big.Int
// to uint64.
func ToUint64(value any) (uint64, bool) {
	switch v := value.(type) {
	case int:
		return unsignedOf(v)
	case int8:
		return unsignedOf(v)
	case int16:
		return unsignedOf(v)
	case int32:
		return unsignedOf(v)
	case int64:
		return unsignedOf(v)
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case uintptr:
		return uint64(v), true
	case float32:
		return ToUint64(float64(v))
	case float64:
		if v >= 0 && v < 1<<64 && v == math.Trunc(v) {
			return uint64(v), true
		}
	case *big.Int:
		if v != nil && v.IsUint64() {
			return v.Uint64(), true
		}
	}
	return 0, false
}

// ToBig converts any integer-valued input to a fresh *big.Int.
func ToBig(value any) (*big.Int, bool) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, false
		}
		return new(big.Int).Set(v), true
	case big.Int:
		return new(big.Int).Set(&v), true
	case float32:
		return ToBig(float64(v))
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) || v != math.Trunc(v) {
			return nil, false
		}
		b, _ := big.NewFloat(v).Int(nil)
		return b, true
	}
	if i, ok := ToInt64(value); ok {
		return big.NewInt(i), true
	}
	if u, ok := ToUint64(value); ok {
		return new(big.Int).SetUint64(u), true
	}
	return nil, false
}

// ToFloat64 converts any Go number to float64.
func ToFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case *big.Int:
		if v == nil {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(v).Float64()
		return f, true
	}
	if i, ok := ToInt64(value); ok {
		return float64(i), true
	}
	if u, ok := ToUint64(value); ok {
		return float64(u), true
	}
	return 0, false
}

// IsNumber reports whether value is any Go numeric type.
func IsNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64, *big.Int:
		return true
	}
	return false
}
