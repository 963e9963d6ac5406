package dict

import (
	"errors"
	"unsafe"
)

// ErrFingerprintMismatch is the panic value raised when an unsafe iterator
// is released after the table was structurally modified.
var ErrFingerprintMismatch = errors.New("dict: table modified during unsafe iteration")

// Iterator walks every entry of a Dict.
//
// A safe iterator allows the caller to insert, delete and look up entries
// while iterating; incremental rehash steps are suppressed until Release.
// An unsafe iterator allows only Next; any structural change is detected at
// Release through a fingerprint of the table and reported by panic.
type Iterator[K comparable, V any] struct {
	d           *Dict[K, V]
	table       int
	index       int64
	safe        bool
	entry       *Entry[K, V]
	nextEntry   *Entry[K, V]
	fingerprint uint64
}

// Iterator returns an unsafe iterator.
func (d *Dict[K, V]) Iterator() *Iterator[K, V] {
	return &Iterator[K, V]{d: d, index: -1}
}

// SafeIterator returns a safe iterator.
func (d *Dict[K, V]) SafeIterator() *Iterator[K, V] {
	it := d.Iterator()
	it.safe = true
	return it
}

// Next returns the next entry or nil when the walk is complete. The
// returned entry may be deleted by the caller of a safe iterator.
func (it *Iterator[K, V]) Next() *Entry[K, V] {
	d := it.d
	for {
		if it.entry == nil {
			t := &d.ht[it.table]
			if it.index == -1 && it.table == 0 {
				if it.safe {
					d.iterators++
				} else {
					it.fingerprint = d.fingerprint()
				}
			}
			it.index++
			if uint64(it.index) >= t.size {
				if d.mig != nil && it.table == 0 {
					it.table++
					it.index = 0
					t = &d.ht[1]
				} else {
					return nil
				}
			}
			it.entry = t.buckets[it.index]
		} else {
			it.entry = it.nextEntry
		}
		if it.entry != nil {
			it.nextEntry = it.entry.next
			return it.entry
		}
	}
}

// Release ends the iteration. It must be called exactly once.
func (it *Iterator[K, V]) Release() {
	if it.index == -1 && it.table == 0 {
		return
	}
	if it.safe {
		it.d.iterators--
		return
	}
	if it.fingerprint != it.d.fingerprint() {
		panic(ErrFingerprintMismatch)
	}
}

// fingerprint hashes the structural fields of both tables. Any insert,
// delete or resize changes at least one of them.
func (d *Dict[K, V]) fingerprint() uint64 {
	fields := [6]uint64{
		uint64(uintptr(unsafe.Pointer(unsafe.SliceData(d.ht[0].buckets)))),
		d.ht[0].size,
		d.ht[0].used,
		uint64(uintptr(unsafe.Pointer(unsafe.SliceData(d.ht[1].buckets)))),
		d.ht[1].size,
		d.ht[1].used,
	}

	var hash uint64
	for _, f := range fields {
		hash += f
		hash = mix64(hash)
	}
	return hash
}

// mix64 is Thomas Wang's 64 bit integer hash.
func mix64(h uint64) uint64 {
	h = ^h + (h << 21)
	h ^= h >> 24
	h = (h + (h << 3)) + (h << 8)
	h ^= h >> 14
	h = (h + (h << 2)) + (h << 4)
	h ^= h >> 28
	h += h << 31
	return h
}
