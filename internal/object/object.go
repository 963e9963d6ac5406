// Package object defines the values stored in the keyspace. Each value has
// a logical type and an encoding; small collections use a compact byte
// encoding and switch to a general-purpose structure once they cross the
// limits in Thresholds.
package object

import (
	"fmt"

	"github.com/yndnr/memkv/internal/encoding/strint"
	"github.com/yndnr/memkv/internal/module"
)

// Type is the logical type of a value.
type Type uint8

const (
	TypeString Type = 0
	TypeList   Type = 1
	TypeSet    Type = 2
	TypeZSet   Type = 3
	TypeHash   Type = 4
	TypeModule Type = 5
	TypeStream Type = 6
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeZSet:
		return "zset"
	case TypeHash:
		return "hash"
	case TypeModule:
		return "module"
	case TypeStream:
		return "stream"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Encoding is the in-memory representation of a value.
type Encoding uint8

const (
	EncRaw Encoding = iota
	EncInt
	EncHT
	EncZiplist
	EncIntset
	EncSkiplist
	EncQuicklist
	EncStream
)

func (e Encoding) String() string {
	switch e {
	case EncRaw:
		return "raw"
	case EncInt:
		return "int"
	case EncHT:
		return "hashtable"
	case EncZiplist:
		return "ziplist"
	case EncIntset:
		return "intset"
	case EncSkiplist:
		return "skiplist"
	case EncQuicklist:
		return "quicklist"
	case EncStream:
		return "stream"
	default:
		return fmt.Sprintf("encoding(%d)", uint8(e))
	}
}

// Object is a keyspace value.
//
// LRU holds either the LRU clock of the last access or, under an LFU
// policy, the access time in minutes (high 16 bits) and the logarithmic
// access counter (low 8 bits).
type Object struct {
	LRU uint32

	typ Type
	enc Encoding
	ptr any
}

func (o *Object) Type() Type         { return o.typ }
func (o *Object) Encoding() Encoding { return o.enc }

// NewString returns a raw string value. b is not copied.
func NewString(b []byte) *Object {
	return &Object{typ: TypeString, enc: EncRaw, ptr: b}
}

// NewStringInt returns an integer encoded string value.
func NewStringInt(n int64) *Object {
	return &Object{typ: TypeString, enc: EncInt, ptr: n}
}

// NewStringAuto integer-encodes b when it is a canonical decimal and
// stores it raw otherwise.
func NewStringAuto(b []byte) *Object {
	if len(b) <= strint.MaxLen {
		if n, ok := strint.Parse(b); ok {
			return NewStringInt(n)
		}
	}
	return NewString(b)
}

// StringBytes returns the value of a string object.
func (o *Object) StringBytes() []byte {
	if o.enc == EncInt {
		return strint.Format(o.ptr.(int64))
	}
	return o.ptr.([]byte)
}

// StringInt returns the integer of an integer encoded string.
func (o *Object) StringInt() (int64, bool) {
	n, ok := o.ptr.(int64)
	return n, ok
}

// NewModule wraps a module typed value.
func NewModule(v *module.Value) *Object {
	return &Object{typ: TypeModule, enc: EncRaw, ptr: v}
}

// Module returns the value of a module object.
func (o *Object) Module() *module.Value {
	return o.ptr.(*module.Value)
}

// Blob returns the backing bytes of a compact encoding (ziplist or
// intset).
func (o *Object) Blob() []byte {
	return o.ptr.([]byte)
}
