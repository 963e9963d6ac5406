// Package intset implements the sorted integer array used for small sets
// of integers.
//
// Layout (little-endian): <encoding:4> <length:4> <contents>, where
// encoding is the element width in bytes (2, 4 or 8) and contents holds
// length strictly ascending integers of that width.
package intset

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	Enc16 = 2
	Enc32 = 4
	Enc64 = 8

	headerSize = 8
)

var ErrCorrupt = errors.New("intset: corrupt encoding")

// New returns an empty intset.
func New() []byte {
	is := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(is[0:], Enc16)
	return is
}

func encodingOf(v int64) int {
	switch {
	case v < math.MinInt32 || v > math.MaxInt32:
		return Enc64
	case v < math.MinInt16 || v > math.MaxInt16:
		return Enc32
	default:
		return Enc16
	}
}

func width(is []byte) int { return int(binary.LittleEndian.Uint32(is[0:])) }

// Len returns the number of elements.
func Len(is []byte) int { return int(binary.LittleEndian.Uint32(is[4:])) }

// BlobLen returns the encoded size.
func BlobLen(is []byte) int { return headerSize + Len(is)*width(is) }

func getEncoded(is []byte, i, enc int) int64 {
	p := headerSize + i*enc
	switch enc {
	case Enc64:
		return int64(binary.LittleEndian.Uint64(is[p:]))
	case Enc32:
		return int64(int32(binary.LittleEndian.Uint32(is[p:])))
	default:
		return int64(int16(binary.LittleEndian.Uint16(is[p:])))
	}
}

func setEncoded(is []byte, i, enc int, v int64) {
	p := headerSize + i*enc
	switch enc {
	case Enc64:
		binary.LittleEndian.PutUint64(is[p:], uint64(v))
	case Enc32:
		binary.LittleEndian.PutUint32(is[p:], uint32(v))
	default:
		binary.LittleEndian.PutUint16(is[p:], uint16(v))
	}
}

// Get returns element i.
func Get(is []byte, i int) int64 { return getEncoded(is, i, width(is)) }

// search returns the position of v, or where it would be inserted.
func search(is []byte, v int64) (int, bool) {
	lo, hi := 0, Len(is)-1
	enc := width(is)
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		cur := getEncoded(is, mid, enc)
		switch {
		case v > cur:
			lo = mid + 1
		case v < cur:
			hi = mid - 1
		default:
			return mid, true
		}
	}
	return lo, false
}

// Find reports whether v is present.
func Find(is []byte, v int64) bool {
	if encodingOf(v) > width(is) {
		return false
	}
	_, ok := search(is, v)
	return ok
}

// Add inserts v and returns the updated intset and whether v was new.
func Add(is []byte, v int64) ([]byte, bool) {
	enc := encodingOf(v)
	if enc > width(is) {
		return upgradeAndAdd(is, v, enc), true
	}

	pos, found := search(is, v)
	if found {
		return is, false
	}

	n := Len(is)
	w := width(is)
	out := make([]byte, headerSize+(n+1)*w)
	copy(out, is[:headerSize+pos*w])
	copy(out[headerSize+(pos+1)*w:], is[headerSize+pos*w:headerSize+n*w])
	setEncoded(out, pos, w, v)
	binary.LittleEndian.PutUint32(out[4:], uint32(n+1))
	return out, true
}

// upgradeAndAdd widens every element to enc. v is out of the old range, so
// it is either the new minimum or the new maximum.
func upgradeAndAdd(is []byte, v int64, enc int) []byte {
	old := width(is)
	n := Len(is)
	out := make([]byte, headerSize+(n+1)*enc)
	binary.LittleEndian.PutUint32(out[0:], uint32(enc))
	binary.LittleEndian.PutUint32(out[4:], uint32(n+1))

	prepend := 0
	if v < 0 {
		prepend = 1
	}
	for i := 0; i < n; i++ {
		setEncoded(out, i+prepend, enc, getEncoded(is, i, old))
	}
	if prepend == 1 {
		setEncoded(out, 0, enc, v)
	} else {
		setEncoded(out, n, enc, v)
	}
	return out
}

// Values returns all elements in ascending order.
func Values(is []byte) []int64 {
	n := Len(is)
	enc := width(is)
	out := make([]int64, n)
	for i := range out {
		out[i] = getEncoded(is, i, enc)
	}
	return out
}

// Build returns an intset holding values.
func Build(values ...int64) []byte {
	is := New()
	for _, v := range values {
		is, _ = Add(is, v)
	}
	return is
}

// Validate checks the encoding, the size and the ordering of is.
func Validate(is []byte) error {
	if len(is) < headerSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(is))
	}
	enc := width(is)
	if enc != Enc16 && enc != Enc32 && enc != Enc64 {
		return fmt.Errorf("%w: invalid encoding %d", ErrCorrupt, enc)
	}
	n := Len(is)
	if uint64(headerSize)+uint64(n)*uint64(enc) != uint64(len(is)) {
		return fmt.Errorf("%w: %d elements of width %d in %d bytes", ErrCorrupt, n, enc, len(is))
	}
	for i := 1; i < n; i++ {
		if getEncoded(is, i-1, enc) >= getEncoded(is, i, enc) {
			return fmt.Errorf("%w: elements not strictly ascending at %d", ErrCorrupt, i)
		}
	}
	return nil
}
