package rdb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/yndnr/memkv/pkg/lzf"
)

// Codec compresses string payloads. Compressed strings are framed as
// compressed length, original length and data, so a codec needs no
// header of its own.
type Codec interface {
	Name() string

	// Compress returns the compressed form of src, or nil when it would
	// not fit in maxOut bytes.
	Compress(src []byte, maxOut int) []byte

	// Decompress inflates src to exactly outLen bytes.
	Decompress(src []byte, outLen int) ([]byte, error)
}

// Codec names, as written in the memkv-codec aux field.
const (
	CodecLZF  = "lzf"
	CodecLZ4  = "lz4"
	CodecZstd = "zstd"
)

var errSizeMismatch = errors.New("decompressed size mismatch")

var (
	LZF  Codec = lzfCodec{}
	LZ4  Codec = lz4Codec{}
	Zstd Codec = &zstdCodec{}
)

// CodecByName returns the codec registered under name. An empty name
// selects LZF.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecLZF:
		return LZF, nil
	case CodecLZ4:
		return LZ4, nil
	case CodecZstd:
		return Zstd, nil
	default:
		return nil, fmt.Errorf("unknown compression codec %q", name)
	}
}

type lzfCodec struct{}

func (lzfCodec) Name() string { return CodecLZF }

func (lzfCodec) Compress(src []byte, maxOut int) []byte {
	return lzf.Compress(src, maxOut)
}

func (lzfCodec) Decompress(src []byte, outLen int) ([]byte, error) {
	return lzf.Decompress(src, outLen)
}

type lz4Codec struct{}

func (lz4Codec) Name() string { return CodecLZ4 }

func (lz4Codec) Compress(src []byte, maxOut int) []byte {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil || n == 0 || n > maxOut {
		return nil
	}
	return dst[:n]
}

func (lz4Codec) Decompress(src []byte, outLen int) ([]byte, error) {
	out := make([]byte, outLen)
	n, err := lz4.UncompressBlock(src, out)
	if err != nil {
		return nil, err
	}
	if n != outLen {
		return nil, errSizeMismatch
	}
	return out, nil
}

type zstdCodec struct {
	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

func (z *zstdCodec) init() error {
	z.once.Do(func() {
		z.enc, z.err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
		if z.err != nil {
			return
		}
		z.dec, z.err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return z.err
}

func (z *zstdCodec) Name() string { return CodecZstd }

func (z *zstdCodec) Compress(src []byte, maxOut int) []byte {
	if z.init() != nil {
		return nil
	}
	out := z.enc.EncodeAll(src, nil)
	if len(out) > maxOut {
		return nil
	}
	return out
}

func (z *zstdCodec) Decompress(src []byte, outLen int) ([]byte, error) {
	if err := z.init(); err != nil {
		return nil, err
	}
	out, err := z.dec.DecodeAll(src, make([]byte, 0, outLen))
	if err != nil {
		return nil, err
	}
	if len(out) != outLen {
		return nil, errSizeMismatch
	}
	return out, nil
}
