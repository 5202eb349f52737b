// Package codec converts between raw bytes and Go values for a single member
// of a foreign structure.
//
// Every codec is addressed by a bit offset and a bit width inside a byte
// slice. Members that start and end on byte boundaries with a native width
// take a little-endian fast path; everything else (packed structs, odd widths)
// is synthesized bit by bit across byte boundaries.
//
// # Value Mapping
//
//	Member          Go value on Get      Accepted on Set
//	──────────────────────────────────────────────────────────────
//	Int ≤64 signed  int64                any integer, integral float, *big.Int
//	Int ≤64 unsign. uint64               same, non-negative
//	Int >64         *big.Int             same
//	Float 32        float32              any number
//	Float 64        float64              any number
//	Bool            bool                 bool
//
// Values outside the declared width fail with errors.KindRange; values of
// the wrong shape fail with errors.KindTypeMismatch. Nothing is truncated.
package codec
