// Package zipmap reads the legacy compact hash encoding. New snapshots
// never contain it; loaders convert it to a ziplist.
//
// Layout: <zmlen:1> (<len>key<len><free>value<free bytes>)* <0xFF>
// where <len> is one byte, or 0xFE followed by a four byte little-endian
// length.
package zipmap

import (
	"encoding/binary"
	"errors"
)

const (
	bigLen = 254
	end    = 0xFF
)

var ErrCorrupt = errors.New("zipmap: corrupt encoding")

func decodeLen(zm []byte, p int) (n, size int, err error) {
	if p >= len(zm) {
		return 0, 0, ErrCorrupt
	}
	if zm[p] < bigLen {
		return int(zm[p]), 1, nil
	}
	if zm[p] == end || p+5 > len(zm) {
		return 0, 0, ErrCorrupt
	}
	return int(binary.LittleEndian.Uint32(zm[p+1:])), 5, nil
}

// Each calls fn for every key/value pair in order.
func Each(zm []byte, fn func(key, value []byte) bool) error {
	if len(zm) < 2 {
		return ErrCorrupt
	}
	p := 1
	for {
		if p >= len(zm) {
			return ErrCorrupt
		}
		if zm[p] == end {
			if p != len(zm)-1 {
				return ErrCorrupt
			}
			return nil
		}

		klen, n, err := decodeLen(zm, p)
		if err != nil {
			return err
		}
		p += n
		if p+klen > len(zm) {
			return ErrCorrupt
		}
		key := zm[p : p+klen]
		p += klen

		vlen, n, err := decodeLen(zm, p)
		if err != nil {
			return err
		}
		p += n
		if p >= len(zm) {
			return ErrCorrupt
		}
		free := int(zm[p])
		p++
		if p+vlen+free > len(zm) {
			return ErrCorrupt
		}
		value := zm[p : p+vlen]
		p += vlen + free

		if !fn(key, value) {
			return nil
		}
	}
}

// Validate walks the whole zipmap.
func Validate(zm []byte) error {
	return Each(zm, func(_, _ []byte) bool { return true })
}

func appendLen(dst []byte, n int) []byte {
	if n < bigLen {
		return append(dst, byte(n))
	}
	dst = append(dst, bigLen)
	return binary.LittleEndian.AppendUint32(dst, uint32(n))
}

// Build encodes alternating key/value pairs. It exists for producing
// legacy fixtures.
func Build(pairs ...[]byte) []byte {
	count := len(pairs) / 2
	if count >= bigLen {
		count = bigLen
	}
	zm := []byte{byte(count)}
	for i := 0; i+1 < len(pairs); i += 2 {
		zm = appendLen(zm, len(pairs[i]))
		zm = append(zm, pairs[i]...)
		zm = appendLen(zm, len(pairs[i+1]))
		zm = append(zm, 0)
		zm = append(zm, pairs[i+1]...)
	}
	return append(zm, end)
}
