package dict

import (
	"errors"
	"time"
)

const initialSize = 4

var (
	ErrRehashing       = errors.New("dict: rehash in progress")
	ErrSameSize        = errors.New("dict: table already at requested size")
	ErrTooSmall        = errors.New("dict: requested size below element count")
	ErrResizeSuspended = errors.New("dict: resize suspended")
)

// Type holds the per-table key and value callbacks. Hash defaults to a
// maphash of the key and KeyEqual to ==. Dup and Free hooks are optional.
type Type[K comparable, V any] struct {
	Hash     func(K) uint64
	KeyEqual func(a, b K) bool
	KeyDup   func(K) K
	KeyFree  func(K)
	ValDup   func(V) V
	ValFree  func(V)
}

type table[K comparable, V any] struct {
	buckets []*Entry[K, V]
	size    uint64
	mask    uint64
	used    uint64
}

func (t *table[K, V]) reset() {
	*t = table[K, V]{}
}

// migration is present only while entries move from ht[0] to ht[1].
// cursor is the next ht[0] bucket to migrate; every bucket below it is empty.
type migration struct {
	cursor uint64
}

// Dict is a chained hash table with incremental rehashing.
type Dict[K comparable, V any] struct {
	typ       Type[K, V]
	ht        [2]table[K, V]
	mig       *migration
	iterators int
	gate      *ResizeGate
}

// New creates an empty table. No buckets are allocated until the first
// insert. gate may be nil.
func New[K comparable, V any](typ *Type[K, V], gate *ResizeGate) *Dict[K, V] {
	d := &Dict[K, V]{gate: gate}
	if typ != nil {
		d.typ = *typ
	}
	if d.typ.Hash == nil {
		d.typ.Hash = comparableHash[K]
	}
	return d
}

// Len returns the number of entries across both tables.
func (d *Dict[K, V]) Len() int {
	return int(d.ht[0].used + d.ht[1].used)
}

// Slots returns the total bucket count across both tables.
func (d *Dict[K, V]) Slots() int {
	return int(d.ht[0].size + d.ht[1].size)
}

// IsRehashing reports whether a migration is in progress.
func (d *Dict[K, V]) IsRehashing() bool {
	return d.mig != nil
}

// Gate returns the resize gate shared by this table.
func (d *Dict[K, V]) Gate() *ResizeGate {
	return d.gate
}

// HashOf returns the hash the table uses for key.
func (d *Dict[K, V]) HashOf(key K) uint64 {
	return d.typ.Hash(key)
}

func (d *Dict[K, V]) keyEqual(a, b K) bool {
	if d.typ.KeyEqual != nil {
		return d.typ.KeyEqual(a, b)
	}
	return a == b
}

func (d *Dict[K, V]) setKey(e *Entry[K, V], key K) {
	if d.typ.KeyDup != nil {
		key = d.typ.KeyDup(key)
	}
	e.key = key
}

func (d *Dict[K, V]) setVal(e *Entry[K, V], val V) {
	if d.typ.ValDup != nil {
		val = d.typ.ValDup(val)
	}
	e.val = RefValue(val)
}

func (d *Dict[K, V]) freeKey(e *Entry[K, V]) {
	if d.typ.KeyFree != nil {
		d.typ.KeyFree(e.key)
	}
}

func (d *Dict[K, V]) freeVal(v Value[V]) {
	if d.typ.ValFree != nil && v.kind == KindRef {
		d.typ.ValFree(v.ref)
	}
}

// ShrinkToFit resizes the table to the smallest power of two that holds all
// entries, with a minimum of four buckets.
func (d *Dict[K, V]) ShrinkToFit() error {
	if !d.gate.Enabled() {
		return ErrResizeSuspended
	}
	if d.mig != nil {
		return ErrRehashing
	}
	minimal := d.ht[0].used
	if minimal < initialSize {
		minimal = initialSize
	}
	return d.Expand(minimal)
}

// Expand allocates a table of at least size buckets. On an empty table the
// new array becomes the primary one; otherwise a migration starts.
func (d *Dict[K, V]) Expand(size uint64) error {
	if d.mig != nil {
		return ErrRehashing
	}
	if d.ht[0].used > size {
		return ErrTooSmall
	}
	realsize := nextPower(size)
	if realsize == d.ht[0].size {
		return ErrSameSize
	}

	n := table[K, V]{
		buckets: make([]*Entry[K, V], realsize),
		size:    realsize,
		mask:    realsize - 1,
	}

	if d.ht[0].buckets == nil {
		d.ht[0] = n
		return nil
	}

	d.ht[1] = n
	d.mig = &migration{}
	return nil
}

func nextPower(size uint64) uint64 {
	const max = uint64(1) << 63
	if size >= max {
		return max
	}
	i := uint64(initialSize)
	for i < size {
		i *= 2
	}
	return i
}

// RehashStep migrates up to n non-empty buckets. It gives up early after
// visiting 10*n empty buckets. It returns true while more work remains.
func (d *Dict[K, V]) RehashStep(n int) bool {
	if d.mig == nil {
		return false
	}
	emptyVisits := n * 10

	for ; n > 0 && d.ht[0].used != 0; n-- {
		for d.ht[0].buckets[d.mig.cursor] == nil {
			d.mig.cursor++
			emptyVisits--
			if emptyVisits == 0 {
				return true
			}
		}

		e := d.ht[0].buckets[d.mig.cursor]
		for e != nil {
			next := e.next
			h := d.typ.Hash(e.key) & d.ht[1].mask
			e.next = d.ht[1].buckets[h]
			d.ht[1].buckets[h] = e
			d.ht[0].used--
			d.ht[1].used++
			e = next
		}
		d.ht[0].buckets[d.mig.cursor] = nil
		d.mig.cursor++
	}

	if d.ht[0].used == 0 {
		d.ht[0] = d.ht[1]
		d.ht[1].reset()
		d.mig = nil
		return false
	}
	return true
}

// RehashForMilliseconds runs RehashStep(100) until the table is fully
// migrated or the budget is spent. It returns the number of buckets
// requested across all steps.
func (d *Dict[K, V]) RehashForMilliseconds(ms int) int {
	deadline := time.Now().Add(time.Duration(ms) * time.Millisecond)
	rehashes := 0
	for d.RehashStep(100) {
		rehashes += 100
		if time.Now().After(deadline) {
			break
		}
	}
	return rehashes
}

// rehashStepIfIdle performs one migration step unless safe iterators are
// bound to the table.
func (d *Dict[K, V]) rehashStepIfIdle() {
	if d.iterators == 0 {
		d.RehashStep(1)
	}
}

func (d *Dict[K, V]) expandIfNeeded() error {
	if d.mig != nil {
		return nil
	}
	if d.ht[0].size == 0 {
		return d.Expand(initialSize)
	}
	t := &d.ht[0]
	if t.used >= t.size && (d.gate.Enabled() || t.used/t.size > ForceResizeRatio) {
		return d.Expand(t.used * 2)
	}
	return nil
}

// keyIndex returns the bucket a new key should go into, or the existing
// entry when the key is already present. During a migration the index
// refers to ht[1].
func (d *Dict[K, V]) keyIndex(key K, hash uint64) (uint64, *Entry[K, V]) {
	// Growth failures leave the current table in place; it always has
	// buckets once the first Expand succeeded.
	_ = d.expandIfNeeded()
	var idx uint64
	for i := 0; i <= 1; i++ {
		t := &d.ht[i]
		idx = hash & t.mask
		for e := t.buckets[idx]; e != nil; e = e.next {
			if d.keyEqual(key, e.key) {
				return 0, e
			}
		}
		if d.mig == nil {
			break
		}
	}
	return idx, nil
}

// AddRaw inserts key with a zero value and returns the new entry for the
// caller to fill. If the key exists it returns nil and the existing entry.
func (d *Dict[K, V]) AddRaw(key K) (added, existing *Entry[K, V]) {
	return d.insertRaw(key, false)
}

// AppendRaw is AddRaw linking the new entry at the tail of its chain.
// Inserting keys in iteration order into a table of the same size
// reproduces the source chain order.
func (d *Dict[K, V]) AppendRaw(key K) (added, existing *Entry[K, V]) {
	return d.insertRaw(key, true)
}

func (d *Dict[K, V]) insertRaw(key K, tail bool) (added, existing *Entry[K, V]) {
	if d.mig != nil {
		d.rehashStepIfIdle()
	}

	idx, found := d.keyIndex(key, d.typ.Hash(key))
	if found != nil {
		return nil, found
	}

	t := &d.ht[0]
	if d.mig != nil {
		t = &d.ht[1]
	}
	e := &Entry[K, V]{}
	if tail && t.buckets[idx] != nil {
		last := t.buckets[idx]
		for last.next != nil {
			last = last.next
		}
		last.next = e
	} else {
		e.next = t.buckets[idx]
		t.buckets[idx] = e
	}
	t.used++

	d.setKey(e, key)
	return e, nil
}

// Add inserts key with val. It reports false without touching the table if
// the key is already present.
func (d *Dict[K, V]) Add(key K, val V) bool {
	e, _ := d.AddRaw(key)
	if e == nil {
		return false
	}
	d.setVal(e, val)
	return true
}

// AddOrFind returns the entry for key, inserting an empty one if needed.
func (d *Dict[K, V]) AddOrFind(key K) *Entry[K, V] {
	e, existing := d.AddRaw(key)
	if e == nil {
		return existing
	}
	return e
}

// Replace sets key to val, inserting it if missing. It returns true when the
// key was new. On replace the new value is stored before the old one is
// released, so replacing a value with itself never frees it.
func (d *Dict[K, V]) Replace(key K, val V) bool {
	e, existing := d.AddRaw(key)
	if e != nil {
		d.setVal(e, val)
		return true
	}
	old := existing.val
	d.setVal(existing, val)
	d.freeVal(old)
	return false
}

// Find returns the entry for key or nil.
func (d *Dict[K, V]) Find(key K) *Entry[K, V] {
	if d.Len() == 0 {
		return nil
	}
	if d.mig != nil {
		d.rehashStepIfIdle()
	}
	h := d.typ.Hash(key)
	for i := 0; i <= 1; i++ {
		t := &d.ht[i]
		idx := h & t.mask
		for e := t.buckets[idx]; e != nil; e = e.next {
			if d.keyEqual(key, e.key) {
				return e
			}
		}
		if d.mig == nil {
			return nil
		}
	}
	return nil
}

// Get returns the value stored under key.
func (d *Dict[K, V]) Get(key K) (Value[V], bool) {
	e := d.Find(key)
	if e == nil {
		return Value[V]{}, false
	}
	return e.val, true
}

// FetchValue returns the reference value stored under key.
func (d *Dict[K, V]) FetchValue(key K) (V, bool) {
	e := d.Find(key)
	if e == nil {
		var zero V
		return zero, false
	}
	return e.val.ref, true
}

// FindByHash looks up the entry whose key is identical to key using a hash
// the caller computed earlier with HashOf. No rehash step is taken.
func (d *Dict[K, V]) FindByHash(key K, hash uint64) *Entry[K, V] {
	if d.Len() == 0 {
		return nil
	}
	for i := 0; i <= 1; i++ {
		t := &d.ht[i]
		idx := hash & t.mask
		for e := t.buckets[idx]; e != nil; e = e.next {
			if e.key == key {
				return e
			}
		}
		if d.mig == nil {
			return nil
		}
	}
	return nil
}

func (d *Dict[K, V]) genericDelete(key K, free bool) *Entry[K, V] {
	if d.ht[0].used == 0 && d.ht[1].used == 0 {
		return nil
	}
	if d.mig != nil {
		d.rehashStepIfIdle()
	}
	h := d.typ.Hash(key)

	for i := 0; i <= 1; i++ {
		t := &d.ht[i]
		idx := h & t.mask
		var prev *Entry[K, V]
		for e := t.buckets[idx]; e != nil; e = e.next {
			if d.keyEqual(key, e.key) {
				if prev != nil {
					prev.next = e.next
				} else {
					t.buckets[idx] = e.next
				}
				t.used--
				e.next = nil
				if free {
					d.freeKey(e)
					d.freeVal(e.val)
				}
				return e
			}
			prev = e
		}
		if d.mig == nil {
			break
		}
	}
	return nil
}

// Delete removes key and releases its key and value through the type's
// free hooks. It reports whether the key was found.
func (d *Dict[K, V]) Delete(key K) bool {
	return d.genericDelete(key, true) != nil
}

// Unlink removes key without releasing it and returns the detached entry,
// or nil. The caller must pass it to FreeUnlinked when done.
func (d *Dict[K, V]) Unlink(key K) *Entry[K, V] {
	return d.genericDelete(key, false)
}

// FreeUnlinked releases an entry returned by Unlink. nil is a no-op.
func (d *Dict[K, V]) FreeUnlinked(e *Entry[K, V]) {
	if e == nil {
		return
	}
	d.freeKey(e)
	d.freeVal(e.val)
}

// Empty removes every entry, calling progress every 65536 buckets when
// non-nil. The table returns to its unallocated state.
func (d *Dict[K, V]) Empty(progress func()) {
	for i := 0; i <= 1; i++ {
		t := &d.ht[i]
		for j := uint64(0); j < t.size && t.used > 0; j++ {
			if progress != nil && j&65535 == 0 {
				progress()
			}
			for e := t.buckets[j]; e != nil; {
				next := e.next
				d.freeKey(e)
				d.freeVal(e.val)
				t.used--
				e = next
			}
		}
		t.reset()
	}
	d.mig = nil
	d.iterators = 0
}
