package object

import (
	"strconv"

	"github.com/yndnr/memkv/internal/encoding/intset"
	"github.com/yndnr/memkv/internal/encoding/strint"
	"github.com/yndnr/memkv/pkg/dict"
)

// MemberDict is the general-purpose set representation. Values are unused.
type MemberDict = dict.Dict[string, struct{}]

func newMemberDict(size int) *MemberDict {
	d := dict.New(dict.StringType[struct{}](), nil)
	if size > 0 {
		_ = d.Expand(uint64(size))
	}
	return d
}

// NewSetIntset returns an empty intset encoded set.
func NewSetIntset() *Object {
	return &Object{typ: TypeSet, enc: EncIntset, ptr: intset.New()}
}

// NewSetIntsetFrom wraps an existing intset blob.
func NewSetIntsetFrom(is []byte) *Object {
	return &Object{typ: TypeSet, enc: EncIntset, ptr: is}
}

// NewSetHT returns an empty hash table set sized for size members.
func NewSetHT(size int) *Object {
	return &Object{typ: TypeSet, enc: EncHT, ptr: newMemberDict(size)}
}

// SetDict returns the table of a hash table encoded set.
func (o *Object) SetDict() *MemberDict {
	return o.ptr.(*MemberDict)
}

// SetLen returns the number of members.
func (o *Object) SetLen() int {
	if o.enc == EncIntset {
		return intset.Len(o.ptr.([]byte))
	}
	return o.SetDict().Len()
}

// SetAdd adds member, converting to a hash table when the member is not an
// integer or the intset grows past the configured limit.
func (o *Object) SetAdd(member []byte, t Thresholds) bool {
	if o.enc == EncIntset {
		if n, ok := strint.Parse(member); ok {
			is, added := intset.Add(o.ptr.([]byte), n)
			o.ptr = is
			if added && intset.Len(is) > t.SetMaxIntsetEntries {
				o.SetConvert(0)
			}
			return added
		}
		o.SetConvert(o.SetLen() + 1)
	}
	return o.SetDict().Add(string(member), struct{}{})
}

// SetAddRaw adds member to a hash table encoded set, linking it at the
// tail of its chain. It reports false when the member already exists.
func (o *Object) SetAddRaw(member string) bool {
	e, _ := o.SetDict().AppendRaw(member)
	return e != nil
}

// SetConvert moves an intset encoded set to a hash table sized for at
// least size members.
func (o *Object) SetConvert(size int) {
	if o.enc != EncIntset {
		return
	}
	is := o.ptr.([]byte)
	if n := intset.Len(is); n > size {
		size = n
	}
	d := newMemberDict(size)
	for _, v := range intset.Values(is) {
		d.Add(strconv.FormatInt(v, 10), struct{}{})
	}
	o.enc, o.ptr = EncHT, d
}

// SetEach calls fn with every member until fn returns false.
func (o *Object) SetEach(fn func(member []byte) bool) {
	if o.enc == EncIntset {
		for _, v := range intset.Values(o.ptr.([]byte)) {
			if !fn(strint.Format(v)) {
				return
			}
		}
		return
	}
	it := o.SetDict().SafeIterator()
	defer it.Release()
	for e := it.Next(); e != nil; e = it.Next() {
		if !fn([]byte(e.Key())) {
			return
		}
	}
}

// SetIsMember reports whether member is in the set.
func (o *Object) SetIsMember(member []byte) bool {
	if o.enc == EncIntset {
		n, ok := strint.Parse(member)
		return ok && intset.Find(o.ptr.([]byte), n)
	}
	return o.SetDict().Find(string(member)) != nil
}
