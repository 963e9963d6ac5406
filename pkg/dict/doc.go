// Package dict provides an incrementally rehashed hash table.
//
// A Dict keeps two bucket arrays. When the primary array fills up a second,
// larger array is allocated and entries migrate bucket by bucket, driven by
// explicit calls from the owning goroutine (lookups and inserts each move one
// bucket, and RehashStep / RehashForMilliseconds move more). There is never a
// stop-the-world copy.
//
// Usage:
//
//	d := dict.New(dict.StringType[*Object](), gate)
//	d.Add("key", obj)
//	if e := d.Find("key"); e != nil {
//		obj := e.Val()
//	}
//
// Thread Safety:
//
// A Dict is NOT safe for concurrent use. All calls, including rehash steps,
// must come from the goroutine that owns the table. The only shared piece is
// the ResizeGate, which may be suspended from elsewhere.
package dict
