package dict

import "math/rand/v2"

// RandomEntry returns an entry chosen by first picking a random non-empty
// bucket and then a random element of its chain. It returns nil on an empty
// table.
func (d *Dict[K, V]) RandomEntry() *Entry[K, V] {
	if d.Len() == 0 {
		return nil
	}
	if d.mig != nil {
		d.rehashStepIfIdle()
	}

	var head *Entry[K, V]
	if d.mig != nil {
		// Buckets of ht[0] below the cursor are known to be empty.
		lo := d.mig.cursor
		span := d.ht[0].size + d.ht[1].size - lo
		for head == nil {
			h := lo + rand.Uint64N(span)
			if h >= d.ht[0].size {
				head = d.ht[1].buckets[h-d.ht[0].size]
			} else {
				head = d.ht[0].buckets[h]
			}
		}
	} else {
		for head == nil {
			head = d.ht[0].buckets[rand.Uint64()&d.ht[0].mask]
		}
	}

	n := 0
	for e := head; e != nil; e = e.next {
		n++
	}
	e := head
	for i := rand.IntN(n); i > 0; i-- {
		e = e.next
	}
	return e
}

// SampleEntries returns up to count entries collected by walking buckets
// from a random position. It is fast but not uniform: entries in long chains
// and in dense regions are favoured. Use it where "roughly count live
// entries" is enough, as eviction and expiry sampling do.
func (d *Dict[K, V]) SampleEntries(count int) []*Entry[K, V] {
	if l := d.Len(); l < count {
		count = l
	}
	if count <= 0 {
		return nil
	}
	maxSteps := count * 10

	for j := 0; j < count; j++ {
		if d.mig == nil {
			break
		}
		d.rehashStepIfIdle()
	}

	tables := 1
	if d.mig != nil {
		tables = 2
	}
	maxMask := d.ht[0].mask
	if tables > 1 && d.ht[1].mask > maxMask {
		maxMask = d.ht[1].mask
	}

	out := make([]*Entry[K, V], 0, count)
	i := rand.Uint64() & maxMask
	emptyLen := 0

	for len(out) < count && maxSteps > 0 {
		maxSteps--
		for j := 0; j < tables; j++ {
			// ht[0] buckets below the migration cursor are empty. If i is
			// also past the end of ht[1], jump to the cursor.
			if tables == 2 && j == 0 && i < d.mig.cursor {
				if i >= d.ht[1].size {
					i = d.mig.cursor
				} else {
					continue
				}
			}
			t := &d.ht[j]
			if i >= t.size {
				continue
			}
			e := t.buckets[i]
			if e == nil {
				emptyLen++
				if emptyLen >= 5 && emptyLen > count {
					i = rand.Uint64() & maxMask
					emptyLen = 0
				}
				continue
			}
			emptyLen = 0
			for ; e != nil; e = e.next {
				out = append(out, e)
				if len(out) == count {
					return out
				}
			}
		}
		i = (i + 1) & maxMask
	}
	return out
}
