package rdb

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/module"
	"github.com/yndnr/memkv/internal/object"
)

// Version is the format version written by the encoder. Files with
// versions 1 through Version are accepted by the decoder.
const Version = 9

const magic = "REDIS"

// Opcodes share the type byte position in the stream.
const (
	OpModuleAux    = 247
	OpIdle         = 248
	OpFreq         = 249
	OpAux          = 250
	OpResizeDB     = 251
	OpExpireTimeMs = 252
	OpExpireTime   = 253
	OpSelectDB     = 254
	OpEOF          = 255
)

// Value type bytes.
const (
	TypeString          = 0
	TypeList            = 1
	TypeSet             = 2
	TypeZSet            = 3
	TypeHash            = 4
	TypeZSet2           = 5
	TypeModule          = 6
	TypeModule2         = 7
	TypeHashZipmap      = 9
	TypeListZiplist     = 10
	TypeSetIntset       = 11
	TypeZSetZiplist     = 12
	TypeHashZiplist     = 13
	TypeListQuicklist   = 14
	TypeStreamListpacks = 15
)

// isObjectType reports whether t is a value type byte.
func isObjectType(t byte) bool {
	return t <= TypeStreamListpacks && t != 8
}

// Length prefix tags, stored in the two high bits of the first byte.
const (
	len6Bit  = 0
	len14Bit = 1
	len32Bit = 0x80
	len64Bit = 0x81
	encVal   = 3
)

// Special string encodings, stored in the low six bits after an encVal
// tag.
const (
	encInt8  = 0
	encInt16 = 1
	encInt32 = 2
	encLZF   = 3
)

// Module value opcodes (version 2 framing).
const (
	moduleOpEOF    = 0
	moduleOpSInt   = 1
	moduleOpUInt   = 2
	moduleOpFloat  = 3
	moduleOpDouble = 4
	moduleOpString = 5
)

const (
	// eofMarkSize is the length of the random delimiter used when a
	// snapshot is streamed without a known length.
	eofMarkSize = 40

	// DefaultProgressInterval is how many bytes the decoder reads between
	// progress callbacks.
	DefaultProgressInterval = 2 << 20

	// DefaultMaxResizeHint bounds the table sizes a RESIZEDB opcode may
	// request.
	DefaultMaxResizeHint = 1 << 22

	stringCompressMin = 20
	intEncodeMaxLen   = 11
)

// Config controls both directions of the codec. Encoder and decoder read
// the fields relevant to them.
type Config struct {
	// Compression enables string compression on save.
	Compression bool

	// Codec compresses strings. Nil selects LZF, which is the only codec
	// other implementations can read.
	Codec Codec

	// Checksum enables the CRC-64 trailer on save and its verification on
	// load.
	Checksum bool

	// Thresholds decide the in-memory encoding of loaded collections.
	Thresholds object.Thresholds

	// Policy selects the access metadata written per key (IDLE for LRU
	// policies, FREQ for LFU policies) and applied on load.
	Policy object.EvictionPolicy

	// Replica keeps keys whose expiry already passed when loading.
	Replica bool

	// LoadingAOF marks a load of an AOF preamble; expired keys are kept.
	LoadingAOF bool

	// Registry resolves module value types. Nil means no module types.
	Registry *module.Registry

	// ServerVersion is written as the redis-ver aux field.
	ServerVersion string

	// UsedMemory reports the value of the used-mem aux field.
	UsedMemory func() int64

	// AOFPreamble is written as the aof-preamble aux field.
	AOFPreamble bool

	// Progress is called roughly every ProgressInterval bytes read.
	Progress         func(processed int64)
	ProgressInterval int64

	// MaxChunk bounds single reads and writes on the stream.
	MaxChunk int

	MaxResizeHint uint64

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// DefaultConfig returns the stock settings: LZF compression and checksums
// on, default thresholds, no eviction policy.
func DefaultConfig() Config {
	return Config{
		Compression:      true,
		Checksum:         true,
		Thresholds:       object.DefaultThresholds(),
		Policy:           object.PolicyNoEviction,
		ServerVersion:    "5.0.0",
		ProgressInterval: DefaultProgressInterval,
		MaxChunk:         DefaultProgressInterval,
		MaxResizeHint:    DefaultMaxResizeHint,
	}
}

func (c *Config) setDefaults() {
	if c.Codec == nil {
		c.Codec = LZF
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.MaxResizeHint == 0 {
		c.MaxResizeHint = DefaultMaxResizeHint
	}
	if c.UsedMemory == nil {
		c.UsedMemory = func() int64 { return 0 }
	}
}

// SaveInfo is the replication metadata carried in aux fields. ReplStreamDB
// is -1 when unknown.
type SaveInfo struct {
	ReplStreamDB int
	ReplID       string
	ReplOffset   int64
}

// NewSaveInfo returns a SaveInfo with no stream database selected.
func NewSaveInfo() *SaveInfo {
	return &SaveInfo{ReplStreamDB: -1}
}

// CorruptionError describes a structural problem at an offset of the
// input stream.
type CorruptionError struct {
	Offset int64
	Reason string

	code *domain.DomainError
	err  error
}

func (e *CorruptionError) Error() string {
	msg := fmt.Sprintf("rdb: %s at offset %d", e.Reason, e.Offset)
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

// Unwrap returns the domain code and the underlying cause.
func (e *CorruptionError) Unwrap() []error {
	if e.err == nil {
		return []error{e.code}
	}
	return []error{e.code, e.err}
}

// Errors is the list of problems a check mode load found.
type Errors []error

func (es Errors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", es[0].Error(), len(es)-1)
}

func (es Errors) Unwrap() []error { return es }

// IsCorruption reports whether err describes a malformed snapshot.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}
