// Package listpack implements the listpack encoding that backs stream
// nodes.
//
// Layout: <total:4 LE> <count:2 LE> <entry>... <0xFF>. Each entry is
// <encoding+data> <backlen>, where backlen stores the size of the encoding
// and data in reverse seven bit groups so the list can be walked from the
// tail.
package listpack

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/yndnr/memkv/internal/encoding/strint"
)

const (
	HeaderSize = 6
	End        = 0xFF

	unknownCount = 0xFFFF

	enc7BitUint   = 0x00
	enc6BitStr    = 0x80
	enc13BitInt   = 0xC0
	enc12BitStr   = 0xE0
	enc32BitStr   = 0xF0
	enc16BitInt   = 0xF1
	enc24BitInt   = 0xF2
	enc32BitInt   = 0xF3
	enc64BitInt   = 0xF4
	enc7BitMask   = 0x80
	enc6BitMask   = 0xC0
	enc13BitMask  = 0xE0
	enc12BitMask  = 0xF0
	maxIntCandLen = 20
)

var ErrCorrupt = errors.New("listpack: corrupt encoding")

// Entry is a decoded listpack element.
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

// Builder appends entries to a listpack.
type Builder struct {
	buf   []byte
	count int
}

// NewBuilder returns a builder holding an empty listpack.
func NewBuilder() *Builder {
	b := &Builder{buf: make([]byte, HeaderSize, 64)}
	return b
}

// AppendString adds v, integer encoding it when it is a canonical decimal.
func (b *Builder) AppendString(v []byte) *Builder {
	if len(v) <= maxIntCandLen {
		if n, ok := strint.Parse(v); ok {
			return b.AppendInt(n)
		}
	}
	start := len(b.buf)
	l := len(v)
	switch {
	case l < 64:
		b.buf = append(b.buf, enc6BitStr|byte(l))
	case l < 4096:
		b.buf = append(b.buf, enc12BitStr|byte(l>>8), byte(l))
	default:
		b.buf = append(b.buf, enc32BitStr)
		b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(l))
	}
	b.buf = append(b.buf, v...)
	return b.finish(start)
}

// AppendInt adds n using the smallest integer encoding.
func (b *Builder) AppendInt(n int64) *Builder {
	start := len(b.buf)
	switch {
	case n >= 0 && n <= 127:
		b.buf = append(b.buf, byte(n))
	case n >= -4096 && n <= 4095:
		u := uint16(n) & 0x1FFF
		b.buf = append(b.buf, enc13BitInt|byte(u>>8), byte(u))
	case n >= -1<<15 && n < 1<<15:
		b.buf = append(b.buf, enc16BitInt)
		b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(n))
	case n >= -1<<23 && n < 1<<23:
		b.buf = append(b.buf, enc24BitInt, byte(n), byte(n>>8), byte(n>>16))
	case n >= -1<<31 && n < 1<<31:
		b.buf = append(b.buf, enc32BitInt)
		b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(n))
	default:
		b.buf = append(b.buf, enc64BitInt)
		b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(n))
	}
	return b.finish(start)
}

func (b *Builder) finish(start int) *Builder {
	b.buf = appendBacklen(b.buf, len(b.buf)-start)
	b.count++
	return b
}

// Bytes returns the finished listpack. The builder may keep appending
// afterwards.
func (b *Builder) Bytes() []byte {
	out := make([]byte, len(b.buf)+1)
	copy(out, b.buf)
	out[len(b.buf)] = End
	binary.LittleEndian.PutUint32(out[0:], uint32(len(out)))
	count := b.count
	if count >= unknownCount {
		count = unknownCount
	}
	binary.LittleEndian.PutUint16(out[4:], uint16(count))
	return out
}

// Build returns a listpack holding values in order.
func Build(values ...[]byte) []byte {
	b := NewBuilder()
	for _, v := range values {
		b.AppendString(v)
	}
	return b.Bytes()
}

func backlenSize(l int) int {
	switch {
	case l <= 127:
		return 1
	case l < 16383:
		return 2
	case l < 2097151:
		return 3
	case l < 268435455:
		return 4
	default:
		return 5
	}
}

// appendBacklen writes l so that reading backwards from the last byte
// yields the low seven bits first. Every byte except the first carries the
// continuation bit.
func appendBacklen(dst []byte, l int) []byte {
	n := backlenSize(l)
	for i := n - 1; i >= 0; i-- {
		c := byte(l>>(7*i)) & 127
		if i != n-1 {
			c |= 128
		}
		dst = append(dst, c)
	}
	return dst
}

// decodeBacklen reads a backlen that ends at p (inclusive).
func decodeBacklen(lp []byte, p int) (l, size int, err error) {
	for shift := 0; ; shift += 7 {
		if p < HeaderSize || size == 5 {
			return 0, 0, ErrCorrupt
		}
		c := lp[p]
		l |= int(c&127) << shift
		size++
		p--
		if c&128 == 0 {
			return l, size, nil
		}
	}
}

// decodeEntry parses the entry at off and returns it with the size of its
// encoding and data, excluding the backlen.
func decodeEntry(lp []byte, off, limit int) (e Entry, size int, err error) {
	if off >= limit {
		return e, 0, ErrCorrupt
	}
	p := off
	c := lp[p]
	need := func(n int) bool { return p+n <= limit }

	switch {
	case c&enc7BitMask == enc7BitUint:
		e.IsInt, e.Int = true, int64(c&0x7F)
		p++
	case c&enc6BitMask == enc6BitStr:
		l := int(c & 0x3F)
		p++
		if !need(l) {
			return e, 0, ErrCorrupt
		}
		e.Str = lp[p : p+l]
		p += l
	case c&enc13BitMask == enc13BitInt:
		if !need(2) {
			return e, 0, ErrCorrupt
		}
		u := uint16(c&0x1F)<<8 | uint16(lp[p+1])
		v := int64(u)
		if u >= 1<<12 {
			v -= 1 << 13
		}
		e.IsInt, e.Int = true, v
		p += 2
	case c&enc12BitMask == enc12BitStr:
		if !need(2) {
			return e, 0, ErrCorrupt
		}
		l := int(c&0x0F)<<8 | int(lp[p+1])
		p += 2
		if !need(l) {
			return e, 0, ErrCorrupt
		}
		e.Str = lp[p : p+l]
		p += l
	default:
		switch c {
		case enc16BitInt:
			if !need(3) {
				return e, 0, ErrCorrupt
			}
			e.IsInt, e.Int = true, int64(int16(binary.LittleEndian.Uint16(lp[p+1:])))
			p += 3
		case enc24BitInt:
			if !need(4) {
				return e, 0, ErrCorrupt
			}
			v := int32(uint32(lp[p+1])<<8 | uint32(lp[p+2])<<16 | uint32(lp[p+3])<<24)
			e.IsInt, e.Int = true, int64(v>>8)
			p += 4
		case enc32BitInt:
			if !need(5) {
				return e, 0, ErrCorrupt
			}
			e.IsInt, e.Int = true, int64(int32(binary.LittleEndian.Uint32(lp[p+1:])))
			p += 5
		case enc64BitInt:
			if !need(9) {
				return e, 0, ErrCorrupt
			}
			e.IsInt, e.Int = true, int64(binary.LittleEndian.Uint64(lp[p+1:]))
			p += 9
		case enc32BitStr:
			if !need(5) {
				return e, 0, ErrCorrupt
			}
			l := int(binary.LittleEndian.Uint32(lp[p+1:]))
			p += 5
			if l < 0 || !need(l) {
				return e, 0, ErrCorrupt
			}
			e.Str = lp[p : p+l]
			p += l
		default:
			return e, 0, ErrCorrupt
		}
	}
	return e, p - off, nil
}

// Each calls fn for every entry in order until fn returns false. Entry
// strings alias lp.
func Each(lp []byte, fn func(Entry) bool) error {
	if len(lp) < HeaderSize+1 {
		return ErrCorrupt
	}
	total := int(binary.LittleEndian.Uint32(lp))
	if total != len(lp) {
		return ErrCorrupt
	}
	limit := total - 1
	for off := HeaderSize; off < limit; {
		e, size, err := decodeEntry(lp, off, limit)
		if err != nil {
			return err
		}
		off += size + backlenSize(size)
		if off > limit {
			return ErrCorrupt
		}
		if !fn(e) {
			return nil
		}
	}
	return nil
}

// First returns the first entry.
func First(lp []byte) (Entry, error) {
	var (
		first Entry
		found bool
	)
	err := Each(lp, func(e Entry) bool {
		first, found = e, true
		return false
	})
	if err != nil {
		return first, err
	}
	if !found {
		return first, fmt.Errorf("%w: empty listpack", ErrCorrupt)
	}
	return first, nil
}

// Count returns the number of entries, walking the list when the header
// count saturated.
func Count(lp []byte) int {
	if len(lp) < HeaderSize {
		return 0
	}
	n := binary.LittleEndian.Uint16(lp[4:])
	if n != unknownCount {
		return int(n)
	}
	count := 0
	_ = Each(lp, func(Entry) bool {
		count++
		return true
	})
	return count
}

// Validate checks the header, every entry encoding and every backlen.
func Validate(lp []byte) error {
	if len(lp) < HeaderSize+1 {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(lp))
	}
	total := int(binary.LittleEndian.Uint32(lp))
	if total != len(lp) {
		return fmt.Errorf("%w: header size %d, blob size %d", ErrCorrupt, total, len(lp))
	}
	if lp[total-1] != End {
		return fmt.Errorf("%w: missing end marker", ErrCorrupt)
	}
	limit := total - 1
	count := 0
	for off := HeaderSize; off < limit; {
		_, size, err := decodeEntry(lp, off, limit)
		if err != nil {
			return fmt.Errorf("%w at offset %d", err, off)
		}
		bl := backlenSize(size)
		end := off + size + bl
		if end > limit {
			return fmt.Errorf("%w: entry at offset %d overruns the list", ErrCorrupt, off)
		}
		l, _, err := decodeBacklen(lp, end-1)
		if err != nil || l != size {
			return fmt.Errorf("%w: backlen mismatch at offset %d", ErrCorrupt, off)
		}
		off = end
		count++
	}
	declared := int(binary.LittleEndian.Uint16(lp[4:]))
	if declared != unknownCount && declared != count {
		return fmt.Errorf("%w: header count %d, found %d", ErrCorrupt, declared, count)
	}
	return nil
}
