package rdb

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strconv"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/encoding/strint"
	"github.com/yndnr/memkv/pkg/rio"
)

// maxStringLen bounds a single length-prefixed string so a corrupt length
// fails instead of allocating.
const maxStringLen = 512 << 20

// appendLen appends the variable width encoding of n.
func appendLen(dst []byte, n uint64) []byte {
	switch {
	case n < 1<<6:
		return append(dst, byte(n&0x3f)|len6Bit<<6)
	case n < 1<<14:
		return append(dst, byte(n>>8&0x3f)|len14Bit<<6, byte(n))
	case n <= math.MaxUint32:
		dst = append(dst, len32Bit)
		return binary.BigEndian.AppendUint32(dst, uint32(n))
	default:
		dst = append(dst, len64Bit)
		return binary.BigEndian.AppendUint64(dst, n)
	}
}

// appendEncodedInt appends v as a special integer string encoding. It
// reports false when v needs more than 32 bits.
func appendEncodedInt(dst []byte, v int64) ([]byte, bool) {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return append(dst, encVal<<6|encInt8, byte(int8(v))), true
	case v >= math.MinInt16 && v <= math.MaxInt16:
		dst = append(dst, encVal<<6|encInt16)
		return binary.LittleEndian.AppendUint16(dst, uint16(int16(v))), true
	case v >= math.MinInt32 && v <= math.MaxInt32:
		dst = append(dst, encVal<<6|encInt32)
		return binary.LittleEndian.AppendUint32(dst, uint32(int32(v))), true
	default:
		return dst, false
	}
}

// tryIntegerEncoding encodes s as an integer when it is the canonical
// decimal form of a value that fits in 32 bits.
func tryIntegerEncoding(dst []byte, s []byte) ([]byte, bool) {
	v, ok := strint.Parse(s)
	if !ok {
		return dst, false
	}
	return appendEncodedInt(dst, v)
}

// appendLegacyDouble appends f in the decimal format used before binary
// doubles: a length byte then the text, with 253, 254 and 255 standing for
// NaN, +Inf and -Inf.
func appendLegacyDouble(dst []byte, f float64) []byte {
	switch {
	case math.IsNaN(f):
		return append(dst, 253)
	case math.IsInf(f, 1):
		return append(dst, 254)
	case math.IsInf(f, -1):
		return append(dst, 255)
	}
	var text []byte
	if f > -4503599627370495 && f < 4503599627370496 && f == math.Trunc(f) {
		text = strconv.AppendInt(nil, int64(f), 10)
	} else {
		text = strconv.AppendFloat(nil, f, 'g', 17, 64)
	}
	dst = append(dst, byte(len(text)))
	return append(dst, text...)
}

// writer serializes primitives to a stream. The first error is kept and
// every later call is a no-op.
type writer struct {
	s       *rio.Stream
	err     error
	scratch []byte
}

func newWriter(s *rio.Stream) *writer {
	return &writer{s: s, scratch: make([]byte, 0, 32)}
}

func (w *writer) write(p []byte) {
	if w.err != nil {
		return
	}
	if _, err := w.s.Write(p); err != nil {
		w.err = domain.ErrIO.Wrap(err)
	}
}

func (w *writer) writeByte(b byte) {
	w.scratch = append(w.scratch[:0], b)
	w.write(w.scratch)
}

func (w *writer) writeLen(n uint64) {
	w.scratch = appendLen(w.scratch[:0], n)
	w.write(w.scratch)
}

func (w *writer) writeMillis(ms int64) {
	w.scratch = binary.LittleEndian.AppendUint64(w.scratch[:0], uint64(ms))
	w.write(w.scratch)
}

func (w *writer) writeBinaryDouble(f float64) {
	w.scratch = binary.LittleEndian.AppendUint64(w.scratch[:0], math.Float64bits(f))
	w.write(w.scratch)
}

func (w *writer) writeBinaryFloat(f float32) {
	w.scratch = binary.LittleEndian.AppendUint32(w.scratch[:0], math.Float32bits(f))
	w.write(w.scratch)
}

// writeCompressed writes an already compressed payload.
func (w *writer) writeCompressed(data []byte, origLen int) {
	w.writeByte(encVal<<6 | encLZF)
	w.writeLen(uint64(len(data)))
	w.writeLen(uint64(origLen))
	w.write(data)
}

// writeString writes s, integer encoding or compressing it when that is
// shorter. codec is nil when compression is off.
func (w *writer) writeString(s []byte, codec Codec) {
	if len(s) <= intEncodeMaxLen {
		if enc, ok := tryIntegerEncoding(w.scratch[:0], s); ok {
			w.scratch = enc
			w.write(w.scratch)
			return
		}
	}
	if codec != nil && len(s) > stringCompressMin {
		if out := codec.Compress(s, len(s)-4); out != nil {
			w.writeCompressed(out, len(s))
			return
		}
	}
	w.writeLen(uint64(len(s)))
	if len(s) > 0 {
		w.write(s)
	}
}

// writeInt writes v as a string, using the integer encoding when it fits.
func (w *writer) writeInt(v int64, codec Codec) {
	if enc, ok := appendEncodedInt(w.scratch[:0], v); ok {
		w.scratch = enc
		w.write(w.scratch)
		return
	}
	w.writeString(strint.Format(v), codec)
}

// reader decodes primitives from a stream.
type reader struct {
	s     *rio.Stream
	codec Codec
	buf   [8]byte
}

func newReader(s *rio.Stream, codec Codec) *reader {
	return &reader{s: s, codec: codec}
}

func (r *reader) corrupt(reason string, err error) error {
	return &CorruptionError{
		Offset: r.s.Processed(),
		Reason: reason,
		code:   domain.ErrCorruptSnapshot,
		err:    err,
	}
}

func (r *reader) read(p []byte) error {
	if _, err := r.s.Read(p); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return r.corrupt("short read", nil)
		}
		return domain.ErrIO.Wrap(err)
	}
	return nil
}

func (r *reader) readByte() (byte, error) {
	if err := r.read(r.buf[:1]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

func (r *reader) readBytes(n uint64) ([]byte, error) {
	if n > maxStringLen {
		return nil, r.corrupt("string length "+strconv.FormatUint(n, 10)+" out of range", nil)
	}
	p := make([]byte, n)
	if n == 0 {
		return p, nil
	}
	if err := r.read(p); err != nil {
		return nil, err
	}
	return p, nil
}

// readLen decodes a length. When encoded is true the value is a special
// string encoding instead.
func (r *reader) readLen() (n uint64, encoded bool, err error) {
	b, err := r.readByte()
	if err != nil {
		return 0, false, err
	}
	switch typ := b >> 6; {
	case typ == encVal:
		return uint64(b & 0x3f), true, nil
	case typ == len6Bit:
		return uint64(b & 0x3f), false, nil
	case typ == len14Bit:
		lo, err := r.readByte()
		if err != nil {
			return 0, false, err
		}
		return uint64(b&0x3f)<<8 | uint64(lo), false, nil
	case b == len32Bit:
		if err := r.read(r.buf[:4]); err != nil {
			return 0, false, err
		}
		return uint64(binary.BigEndian.Uint32(r.buf[:4])), false, nil
	case b == len64Bit:
		if err := r.read(r.buf[:8]); err != nil {
			return 0, false, err
		}
		return binary.BigEndian.Uint64(r.buf[:8]), false, nil
	default:
		return 0, false, r.corrupt("unknown length encoding "+strconv.Itoa(int(b)), nil)
	}
}

// readPlainLen reads a length that must not be a special encoding.
func (r *reader) readPlainLen() (uint64, error) {
	n, encoded, err := r.readLen()
	if err != nil {
		return 0, err
	}
	if encoded {
		return 0, r.corrupt("unexpected string encoding in length", nil)
	}
	return n, nil
}

func (r *reader) readEncodedInt(enc uint64) (int64, error) {
	switch enc {
	case encInt8:
		b, err := r.readByte()
		return int64(int8(b)), err
	case encInt16:
		if err := r.read(r.buf[:2]); err != nil {
			return 0, err
		}
		return int64(int16(binary.LittleEndian.Uint16(r.buf[:2]))), nil
	case encInt32:
		if err := r.read(r.buf[:4]); err != nil {
			return 0, err
		}
		return int64(int32(binary.LittleEndian.Uint32(r.buf[:4]))), nil
	default:
		return 0, r.corrupt("unknown integer encoding", nil)
	}
}

// readString decodes a string in any of its encodings.
func (r *reader) readString() ([]byte, error) {
	n, encoded, err := r.readLen()
	if err != nil {
		return nil, err
	}
	if !encoded {
		return r.readBytes(n)
	}
	switch n {
	case encInt8, encInt16, encInt32:
		v, err := r.readEncodedInt(n)
		if err != nil {
			return nil, err
		}
		return strint.Format(v), nil
	case encLZF:
		return r.readCompressedString()
	default:
		return nil, r.corrupt("unknown string encoding "+strconv.FormatUint(n, 10), nil)
	}
}

func (r *reader) readCompressedString() ([]byte, error) {
	clen, err := r.readPlainLen()
	if err != nil {
		return nil, err
	}
	olen, err := r.readPlainLen()
	if err != nil {
		return nil, err
	}
	if olen > maxStringLen {
		return nil, r.corrupt("compressed string length out of range", nil)
	}
	data, err := r.readBytes(clen)
	if err != nil {
		return nil, err
	}
	out, err := r.codec.Decompress(data, int(olen))
	if err != nil {
		return nil, r.corrupt("invalid "+r.codec.Name()+" compressed string", err)
	}
	return out, nil
}

func (r *reader) readMillis() (int64, error) {
	if err := r.read(r.buf[:8]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(r.buf[:8])), nil
}

func (r *reader) readSeconds() (int64, error) {
	if err := r.read(r.buf[:4]); err != nil {
		return 0, err
	}
	return int64(int32(binary.LittleEndian.Uint32(r.buf[:4]))), nil
}

func (r *reader) readBinaryDouble() (float64, error) {
	if err := r.read(r.buf[:8]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(r.buf[:8])), nil
}

func (r *reader) readBinaryFloat() (float32, error) {
	if err := r.read(r.buf[:4]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(r.buf[:4])), nil
}

func (r *reader) readLegacyDouble() (float64, error) {
	n, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch n {
	case 255:
		return math.Inf(-1), nil
	case 254:
		return math.Inf(1), nil
	case 253:
		return math.NaN(), nil
	}
	text, err := r.readBytes(uint64(n))
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(string(text), 64)
	if err != nil {
		return 0, r.corrupt("invalid double value", err)
	}
	return f, nil
}
