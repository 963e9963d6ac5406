// Package module defines extension value types: values whose snapshot
// representation is produced by a registered codec rather than by the
// snapshot encoder itself.
//
// A type is identified on disk by a 64 bit id that packs a nine character
// name (six bits per character) and a ten bit encoding version.
package module

import (
	"errors"
	"fmt"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	NameLen    = 9
	MaxEncVer  = 1023
	encVerBits = 10
	charset    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

var (
	ErrInvalidName   = errors.New("module: type name must be 9 characters from A-Z a-z 0-9 - _")
	ErrInvalidEncVer = errors.New("module: encoding version out of range")
	ErrDuplicate     = errors.New("module: type already registered")
)

// Writer receives the serialized form of a value. Errors are sticky and
// reported by the snapshot encoder once the codec returns.
type Writer interface {
	SaveUnsigned(v uint64)
	SaveSigned(v int64)
	SaveString(s []byte)
	SaveDouble(f float64)
	SaveFloat(f float32)
}

// Reader yields the fields written by a Writer, in the same order.
type Reader interface {
	LoadUnsigned() (uint64, error)
	LoadSigned() (int64, error)
	LoadString() ([]byte, error)
	LoadDouble() (float64, error)
	LoadFloat() (float32, error)
}

// Type is a registered value codec.
type Type struct {
	Name   string
	EncVer int
	Save   func(w Writer, value any)
	Load   func(r Reader, encver int) (any, error)

	id uint64
}

// ID returns the on-disk identifier. It is zero until the type is
// registered.
func (t *Type) ID() uint64 { return t.id }

// Value is a module typed value stored in the keyspace.
type Value struct {
	Type *Type
	Data any
}

// EncodeID packs name and encver into a module id.
func EncodeID(name string, encver int) (uint64, error) {
	if len(name) != NameLen {
		return 0, ErrInvalidName
	}
	if encver < 0 || encver > MaxEncVer {
		return 0, ErrInvalidEncVer
	}
	var id uint64
	for i := 0; i < NameLen; i++ {
		pos := strings.IndexByte(charset, name[i])
		if pos < 0 {
			return 0, ErrInvalidName
		}
		id = id<<6 | uint64(pos)
	}
	return id<<encVerBits | uint64(encver), nil
}

// NameFromID returns the type name packed into id.
func NameFromID(id uint64) string {
	var name [NameLen]byte
	id >>= encVerBits
	for i := NameLen - 1; i >= 0; i-- {
		name[i] = charset[id&63]
		id >>= 6
	}
	return string(name[:])
}

// EncVerFromID returns the encoding version packed into id.
func EncVerFromID(id uint64) int {
	return int(id & MaxEncVer)
}

// Registry maps module ids to types. It is safe for concurrent use.
type Registry struct {
	byName *xsync.MapOf[string, *Type]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: xsync.NewMapOf[string, *Type]()}
}

// Register validates t, assigns its id and adds it to the registry.
func (r *Registry) Register(t *Type) error {
	id, err := EncodeID(t.Name, t.EncVer)
	if err != nil {
		return err
	}
	if t.Save == nil || t.Load == nil {
		return fmt.Errorf("module: type %s has no codec", t.Name)
	}
	t.id = id
	if _, loaded := r.byName.LoadOrStore(t.Name, t); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicate, t.Name)
	}
	return nil
}

// Lookup returns the type whose name matches the one packed into id. The
// encoding version is ignored: a codec loads every version up to its own.
func (r *Registry) Lookup(id uint64) (*Type, bool) {
	return r.byName.Load(NameFromID(id))
}

// LookupName returns the type registered under name.
func (r *Registry) LookupName(name string) (*Type, bool) {
	return r.byName.Load(name)
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	return r.byName.Size()
}
