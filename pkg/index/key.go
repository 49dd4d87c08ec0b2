// Package index implements the concurrent B+-tree ordered index (§4.6, C6):
// fixed-size byte-blob keys with a user-supplied comparator, RID values,
// unique keys only, pages borrowed from the storage package's buffer pool.
package index

import (
	"encoding/binary"
	"math"
)

// Comparator orders two fixed-size keys, returning <0, 0, or >0 as a and b
// compare. Callers are responsible for handing the tree keys of the exact
// length it was constructed with.
type Comparator func(a, b []byte) int

// ByteComparator compares keys as raw byte strings (for VARCHAR/BLOB keys
// that are already stored in a sort-compatible encoding).
func ByteComparator(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Int64Comparator compares keys encoded by EncodeInt64Key: big-endian with
// the sign bit flipped, so unsigned byte comparison matches signed integer
// order.
func Int64Comparator(a, b []byte) int {
	return ByteComparator(a, b)
}

// EncodeInt64Key renders v into a sort-order-preserving 8-byte key.
func EncodeInt64Key(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v)^(1<<63))
	return buf
}

// DecodeInt64Key inverts EncodeInt64Key.
func DecodeInt64Key(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf) ^ (1 << 63))
}

// EncodeFloat64Key renders v into a sort-order-preserving 8-byte key.
func EncodeFloat64Key(v float64) []byte {
	bits := math.Float64bits(v)
	if v >= 0 {
		bits |= 1 << 63
	} else {
		bits = ^bits
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}
