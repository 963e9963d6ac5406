package dict

import "math/bits"

// Scan visits the entries of one bucket position and returns the cursor for
// the next call. Start with cursor 0 and stop when 0 is returned.
//
// Every entry present for the whole duration of a full scan is visited at
// least once, even if the table grows or shrinks between calls. Entries may
// be visited more than once.
//
// The cursor is not a plain bucket index. It is a counter whose bits are
// incremented from the high end: the cursor is bit-reversed, incremented and
// reversed back. With a table of 16 buckets (mask 0b1111) the sequence of
// visited buckets is
//
//	0000 1000 0100 1100 0010 1010 0110 1110 0001 1001 ...
//
// Because tables are powers of two, the entries of bucket B in a table of
// size N live, in a table of size 2N, in buckets B and B|N. Those two buckets
// share the same low bits and differ only in the new high bit. Incrementing
// from the high end means that once bucket B has been visited in the small
// table, all of its expansions in the large table come "before" the cursor,
// and vice versa when shrinking: buckets already covered are never
// reachable again and buckets not yet covered still are.
//
// During a migration both tables are live. The bucket of the smaller table
// is visited first, then every bucket of the larger table that expands it
// (the cursor bits beyond the small mask are walked with the same reversed
// increment until they wrap back to zero).
//
// fn must not insert or delete entries.
func (d *Dict[K, V]) Scan(cursor uint64, fn func(*Entry[K, V])) uint64 {
	if d.Len() == 0 {
		return 0
	}
	v := cursor

	if d.mig == nil {
		t0 := &d.ht[0]
		m0 := t0.mask
		emitBucket(t0.buckets[v&m0], fn)

		// Set unmasked bits so incrementing the reversed cursor operates
		// on the masked bits only.
		v |= ^m0
		v = reverseIncrement(v)
		return v
	}

	t0, t1 := &d.ht[0], &d.ht[1]
	if t0.size > t1.size {
		t0, t1 = t1, t0
	}
	m0, m1 := t0.mask, t1.mask

	emitBucket(t0.buckets[v&m0], fn)

	// Walk the buckets of the larger table that are expansions of the
	// smaller table's bucket.
	for {
		emitBucket(t1.buckets[v&m1], fn)

		v |= ^m1
		v = reverseIncrement(v)

		if v&(m0^m1) == 0 {
			break
		}
	}
	return v
}

func reverseIncrement(v uint64) uint64 {
	v = bits.Reverse64(v)
	v++
	return bits.Reverse64(v)
}

func emitBucket[K comparable, V any](e *Entry[K, V], fn func(*Entry[K, V])) {
	for e != nil {
		next := e.next
		fn(e)
		e = next
	}
}
