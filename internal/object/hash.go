package object

import (
	"bytes"
	"errors"

	"github.com/yndnr/memkv/internal/encoding/ziplist"
	"github.com/yndnr/memkv/pkg/dict"
)

var ErrDuplicateField = errors.New("duplicate hash field")

// FieldDict is the general-purpose hash representation.
type FieldDict = dict.Dict[string, string]

// NewHashZiplist wraps a ziplist of field/value pairs.
func NewHashZiplist(zl []byte) *Object {
	return &Object{typ: TypeHash, enc: EncZiplist, ptr: zl}
}

// NewHashHT returns an empty hash table encoded hash sized for size
// fields.
func NewHashHT(size int) *Object {
	d := dict.New(dict.StringType[string](), nil)
	if size > 0 {
		_ = d.Expand(uint64(size))
	}
	return &Object{typ: TypeHash, enc: EncHT, ptr: d}
}

// HashDict returns the table of a hash table encoded hash.
func (o *Object) HashDict() *FieldDict {
	return o.ptr.(*FieldDict)
}

// HashLen returns the number of fields.
func (o *Object) HashLen() int {
	if o.enc == EncZiplist {
		return ziplist.Len(o.ptr.([]byte)) / 2
	}
	return o.HashDict().Len()
}

// HashEach calls fn with every field/value pair until fn returns false.
func (o *Object) HashEach(fn func(field, value []byte) bool) error {
	if o.enc != EncZiplist {
		it := o.HashDict().SafeIterator()
		defer it.Release()
		for e := it.Next(); e != nil; e = it.Next() {
			if !fn([]byte(e.Key()), []byte(e.Val())) {
				return nil
			}
		}
		return nil
	}

	var (
		field []byte
		odd   bool
	)
	err := ziplist.Each(o.ptr.([]byte), func(e ziplist.Entry) bool {
		if !odd {
			field, odd = e.Bytes(), true
			return true
		}
		odd = false
		return fn(field, e.Bytes())
	})
	if err == nil && odd {
		err = errors.New("hash ziplist holds an odd number of entries")
	}
	return err
}

// HashGet returns the value of field.
func (o *Object) HashGet(field []byte) ([]byte, bool) {
	if o.enc != EncZiplist {
		v, ok := o.HashDict().FetchValue(string(field))
		return []byte(v), ok
	}
	var (
		value []byte
		found bool
	)
	_ = o.HashEach(func(f, v []byte) bool {
		if bytes.Equal(f, field) {
			value, found = v, true
			return false
		}
		return true
	})
	return value, found
}

// HashSet sets field to value, converting the encoding when either crosses
// a limit. It reports whether field was new.
func (o *Object) HashSet(field, value []byte, t Thresholds) (bool, error) {
	if o.enc == EncZiplist {
		if len(field) > t.HashMaxZiplistValue || len(value) > t.HashMaxZiplistValue {
			if err := o.HashConvert(o.HashLen() + 1); err != nil {
				return false, err
			}
		}
	}
	if o.enc == EncZiplist {
		if _, exists := o.HashGet(field); exists {
			if err := o.hashZiplistReplace(field, value); err != nil {
				return false, err
			}
			return false, nil
		}
		o.HashZiplistPush(field, value)
		if o.HashLen() > t.HashMaxZiplistEntries {
			if err := o.HashConvert(0); err != nil {
				return true, err
			}
		}
		return true, nil
	}
	return o.HashDict().Replace(string(field), string(value)), nil
}

// HashZiplistPush appends a pair to a ziplist encoded hash without
// checking for an existing field.
func (o *Object) HashZiplistPush(field, value []byte) {
	zl := ziplist.Push(o.ptr.([]byte), field)
	o.ptr = ziplist.Push(zl, value)
}

// HashAddRaw adds a pair to a hash table encoded hash, linking it at the
// tail of its chain. It fails with ErrDuplicateField when field exists.
func (o *Object) HashAddRaw(field, value string) error {
	e, _ := o.HashDict().AppendRaw(field)
	if e == nil {
		return ErrDuplicateField
	}
	e.SetRef(value)
	return nil
}

func (o *Object) hashZiplistReplace(field, value []byte) error {
	zl := ziplist.New()
	err := o.HashEach(func(f, v []byte) bool {
		zl = ziplist.Push(zl, f)
		if bytes.Equal(f, field) {
			v = value
		}
		zl = ziplist.Push(zl, v)
		return true
	})
	if err != nil {
		return err
	}
	o.ptr = zl
	return nil
}

// HashConvert moves a ziplist encoded hash to a hash table sized for at
// least size fields. Duplicate fields fail with ErrDuplicateField.
func (o *Object) HashConvert(size int) error {
	if o.enc != EncZiplist {
		return nil
	}
	if n := o.HashLen(); n > size {
		size = n
	}
	h := NewHashHT(size)
	d := h.HashDict()
	var dup bool
	err := o.HashEach(func(f, v []byte) bool {
		if !d.Add(string(f), string(v)) {
			dup = true
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if dup {
		return ErrDuplicateField
	}
	o.enc, o.ptr = EncHT, d
	return nil
}
