// Package ziplist implements the compact list encoding used for small
// lists, hashes and sorted sets.
//
// Layout (all header fields little-endian):
//
//	<zlbytes:4> <zltail:4> <zllen:2> <entry>... <0xFF>
//
// Each entry is <prevlen> <encoding> <data>. prevlen is one byte, or 0xFE
// followed by four bytes when the previous entry is 254 bytes or longer.
// Strings and integers have distinct encodings; strings that are canonical
// decimal integers are stored as integers.
package ziplist

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/yndnr/memkv/internal/encoding/strint"
)

const (
	HeaderSize = 10
	End        = 0xFF

	bigPrevLen  = 254
	unknownLen  = 0xFFFF
	maxIntInput = 32

	str06b = 0x00
	str14b = 0x40
	str32b = 0x80

	int16b  = 0xC0
	int32b  = 0xD0
	int64b  = 0xE0
	int24b  = 0xF0
	int8b   = 0xFE
	immMin  = 0xF1
	immMax  = 0xFD
	immMask = 0x0F
)

var ErrCorrupt = errors.New("ziplist: corrupt encoding")

// Entry is a decoded ziplist element.
type Entry struct {
	Str   []byte
	Int   int64
	IsInt bool
}

// Bytes returns the element as a byte string.
func (e Entry) Bytes() []byte {
	if e.IsInt {
		return strint.Format(e.Int)
	}
	return e.Str
}

func (e Entry) String() string { return string(e.Bytes()) }

// New returns an empty ziplist.
func New() []byte {
	zl := make([]byte, HeaderSize+1)
	binary.LittleEndian.PutUint32(zl[0:], HeaderSize+1)
	binary.LittleEndian.PutUint32(zl[4:], HeaderSize)
	binary.LittleEndian.PutUint16(zl[8:], 0)
	zl[HeaderSize] = End
	return zl
}

// BlobLen returns the encoded size recorded in the header.
func BlobLen(zl []byte) int {
	return int(binary.LittleEndian.Uint32(zl[0:]))
}

// Len returns the number of entries, counting them when the header value
// saturated.
func Len(zl []byte) int {
	n := binary.LittleEndian.Uint16(zl[8:])
	if n < unknownLen {
		return int(n)
	}
	count := 0
	_ = Each(zl, func(Entry) bool {
		count++
		return true
	})
	return count
}

// Push appends v at the tail and returns the updated ziplist.
func Push(zl []byte, v []byte) []byte {
	total := BlobLen(zl)
	tail := int(binary.LittleEndian.Uint32(zl[4:]))

	// The tail entry runs up to the end marker.
	prevlen := 0
	if total > HeaderSize+1 {
		prevlen = total - 1 - tail
	}

	entry := encodeEntry(nil, prevlen, v)
	out := make([]byte, 0, total+len(entry))
	out = append(out, zl[:total-1]...)
	out = append(out, entry...)
	out = append(out, End)

	binary.LittleEndian.PutUint32(out[0:], uint32(len(out)))
	binary.LittleEndian.PutUint32(out[4:], uint32(total-1))
	if n := binary.LittleEndian.Uint16(out[8:]); n < unknownLen {
		binary.LittleEndian.PutUint16(out[8:], n+1)
	}
	return out
}

// Build returns a ziplist holding values in order.
func Build(values ...[]byte) []byte {
	zl := New()
	for _, v := range values {
		zl = Push(zl, v)
	}
	return zl
}

func encodeEntry(dst []byte, prevlen int, v []byte) []byte {
	if prevlen < bigPrevLen {
		dst = append(dst, byte(prevlen))
	} else {
		dst = append(dst, bigPrevLen)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(prevlen))
	}

	if len(v) <= maxIntInput {
		if n, ok := strint.Parse(v); ok {
			return appendInt(dst, n)
		}
	}

	l := len(v)
	switch {
	case l <= 0x3f:
		dst = append(dst, str06b|byte(l))
	case l <= 0x3fff:
		dst = append(dst, str14b|byte(l>>8), byte(l))
	default:
		dst = append(dst, str32b)
		dst = binary.BigEndian.AppendUint32(dst, uint32(l))
	}
	return append(dst, v...)
}

func appendInt(dst []byte, n int64) []byte {
	switch {
	case n >= 0 && n <= 12:
		return append(dst, byte(immMin+n))
	case n >= -1<<7 && n < 1<<7:
		return append(dst, int8b, byte(n))
	case n >= -1<<15 && n < 1<<15:
		dst = append(dst, int16b)
		return binary.LittleEndian.AppendUint16(dst, uint16(n))
	case n >= -1<<23 && n < 1<<23:
		return append(dst, int24b, byte(n), byte(n>>8), byte(n>>16))
	case n >= -1<<31 && n < 1<<31:
		dst = append(dst, int32b)
		return binary.LittleEndian.AppendUint32(dst, uint32(n))
	default:
		dst = append(dst, int64b)
		return binary.LittleEndian.AppendUint64(dst, uint64(n))
	}
}

// decodeEntry parses the entry at off and returns it with its total size
// and the recorded prevlen.
func decodeEntry(zl []byte, off, limit int) (e Entry, size, prevlen int, err error) {
	p := off
	if p >= limit {
		return e, 0, 0, ErrCorrupt
	}
	if zl[p] < bigPrevLen {
		prevlen = int(zl[p])
		p++
	} else {
		if p+5 > limit {
			return e, 0, 0, ErrCorrupt
		}
		prevlen = int(binary.LittleEndian.Uint32(zl[p+1:]))
		p += 5
	}
	if p >= limit {
		return e, 0, 0, ErrCorrupt
	}

	enc := zl[p]
	switch enc >> 6 {
	case 0, 1, 2:
		var l int
		switch enc & 0xC0 {
		case str06b:
			l = int(enc & 0x3f)
			p++
		case str14b:
			if p+2 > limit {
				return e, 0, 0, ErrCorrupt
			}
			l = int(enc&0x3f)<<8 | int(zl[p+1])
			p += 2
		default:
			if enc != str32b || p+5 > limit {
				return e, 0, 0, ErrCorrupt
			}
			l = int(binary.BigEndian.Uint32(zl[p+1:]))
			p += 5
		}
		if l < 0 || p+l > limit {
			return e, 0, 0, ErrCorrupt
		}
		e.Str = zl[p : p+l]
		p += l
	default:
		p++
		need := 0
		switch enc {
		case int8b:
			need = 1
		case int16b:
			need = 2
		case int24b:
			need = 3
		case int32b:
			need = 4
		case int64b:
			need = 8
		default:
			if enc < immMin || enc > immMax {
				return e, 0, 0, ErrCorrupt
			}
		}
		if p+need > limit {
			return e, 0, 0, ErrCorrupt
		}
		e.IsInt = true
		switch enc {
		case int8b:
			e.Int = int64(int8(zl[p]))
		case int16b:
			e.Int = int64(int16(binary.LittleEndian.Uint16(zl[p:])))
		case int24b:
			v := int32(uint32(zl[p])<<8 | uint32(zl[p+1])<<16 | uint32(zl[p+2])<<24)
			e.Int = int64(v >> 8)
		case int32b:
			e.Int = int64(int32(binary.LittleEndian.Uint32(zl[p:])))
		case int64b:
			e.Int = int64(binary.LittleEndian.Uint64(zl[p:]))
		default:
			e.Int = int64(enc&immMask) - 1
		}
		p += need
	}
	return e, p - off, prevlen, nil
}

// Each calls fn for every entry in order until fn returns false. Entry
// strings alias zl.
func Each(zl []byte, fn func(Entry) bool) error {
	if len(zl) < HeaderSize+1 {
		return ErrCorrupt
	}
	limit := BlobLen(zl)
	if limit > len(zl) || limit < HeaderSize+1 {
		return ErrCorrupt
	}
	limit--
	for off := HeaderSize; off < limit; {
		if zl[off] == End {
			return ErrCorrupt
		}
		e, size, _, err := decodeEntry(zl, off, limit)
		if err != nil {
			return err
		}
		off += size
		if !fn(e) {
			return nil
		}
	}
	return nil
}

// Entries returns every entry in order.
func Entries(zl []byte) ([]Entry, error) {
	var out []Entry
	err := Each(zl, func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out, err
}

// Validate checks the header against the entries: total size, tail offset,
// entry count, prevlen chain and end marker.
func Validate(zl []byte) error {
	if len(zl) < HeaderSize+1 {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(zl))
	}
	total := BlobLen(zl)
	if total != len(zl) {
		return fmt.Errorf("%w: header size %d, blob size %d", ErrCorrupt, total, len(zl))
	}
	if zl[total-1] != End {
		return fmt.Errorf("%w: missing end marker", ErrCorrupt)
	}
	tail := int(binary.LittleEndian.Uint32(zl[4:]))
	declared := int(binary.LittleEndian.Uint16(zl[8:]))

	limit := total - 1
	count, prevSize, lastOff := 0, 0, HeaderSize
	for off := HeaderSize; off < limit; {
		_, size, prevlen, err := decodeEntry(zl, off, limit)
		if err != nil {
			return fmt.Errorf("%w at offset %d", err, off)
		}
		if prevlen != prevSize {
			return fmt.Errorf("%w: prevlen %d at offset %d, previous entry is %d bytes", ErrCorrupt, prevlen, off, prevSize)
		}
		lastOff = off
		prevSize = size
		off += size
		count++
	}
	if tail != lastOff {
		return fmt.Errorf("%w: tail offset %d, last entry at %d", ErrCorrupt, tail, lastOff)
	}
	if declared != unknownLen && declared != count {
		return fmt.Errorf("%w: header count %d, found %d", ErrCorrupt, declared, count)
	}
	return nil
}
