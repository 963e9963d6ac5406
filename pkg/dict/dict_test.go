package dict

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
)

func newStringDict(gate *ResizeGate) *Dict[string, int] {
	return New(StringType[int](), gate)
}

// occurrences counts how many times key appears across both tables.
func occurrences[V any](d *Dict[string, V], key string) int {
	n := 0
	for i := 0; i <= 1; i++ {
		for _, head := range d.ht[i].buckets {
			for e := head; e != nil; e = e.next {
				if e.key == key {
					n++
				}
			}
		}
	}
	return n
}

func drain[K comparable, V any](d *Dict[K, V]) {
	for d.RehashStep(100) {
	}
}

func TestDict_AddFindDelete(t *testing.T) {
	d := newStringDict(nil)

	if !d.Add("a", 1) {
		t.Fatal("Add(a) = false, want true")
	}
	if d.Add("a", 2) {
		t.Error("Add(a) twice = true, want false")
	}
	if v, ok := d.FetchValue("a"); !ok || v != 1 {
		t.Errorf("FetchValue(a) = %d, %v; want 1, true", v, ok)
	}
	if d.Find("missing") != nil {
		t.Error("Find(missing) != nil")
	}
	if !d.Delete("a") {
		t.Error("Delete(a) = false")
	}
	if d.Delete("a") {
		t.Error("Delete(a) twice = true")
	}
	if d.Len() != 0 {
		t.Errorf("Len() = %d, want 0", d.Len())
	}
}

func TestDict_InitialAllocationAndGrowth(t *testing.T) {
	d := newStringDict(nil)
	if d.Slots() != 0 {
		t.Fatalf("Slots() before insert = %d, want 0", d.Slots())
	}

	d.Add("k0", 0)
	if d.ht[0].size != 4 {
		t.Fatalf("initial size = %d, want 4", d.ht[0].size)
	}
	for i := 1; i < 4; i++ {
		d.Add(fmt.Sprintf("k%d", i), i)
	}
	if d.IsRehashing() {
		t.Fatal("rehashing with used == size before the next insert")
	}

	d.Add("k4", 4)
	if !d.IsRehashing() && d.ht[0].size != 8 {
		t.Fatalf("table did not grow: size=%d rehashing=%v", d.ht[0].size, d.IsRehashing())
	}
	drain(d)
	if d.ht[0].size != 8 {
		t.Errorf("size after growth = %d, want 8", d.ht[0].size)
	}
	if d.Len() != 5 {
		t.Errorf("Len() = %d, want 5", d.Len())
	}
}

func TestDict_ForcedResizeWhileSuspended(t *testing.T) {
	gate := NewResizeGate()
	release := gate.Suspend()
	defer release()

	d := newStringDict(gate)
	for i := 0; i < 24; i++ {
		if !d.Add(fmt.Sprintf("k%d", i), i) {
			t.Fatalf("Add(k%d) failed", i)
		}
	}
	if d.IsRehashing() || d.ht[0].size != 4 {
		t.Fatalf("resized while suspended below force ratio: size=%d", d.ht[0].size)
	}

	if !d.Add("k24", 24) {
		t.Fatal("Add beyond force ratio failed")
	}
	if !d.IsRehashing() {
		t.Fatal("expected forced resize once used/size > 5")
	}
	if d.ht[1].size != 64 {
		t.Errorf("forced target size = %d, want 64", d.ht[1].size)
	}
	if d.Len() != 25 {
		t.Errorf("Len() = %d, want 25", d.Len())
	}
}

func TestResizeGate_Nesting(t *testing.T) {
	var nilGate *ResizeGate
	if !nilGate.Enabled() {
		t.Error("nil gate must be enabled")
	}

	g := NewResizeGate()
	r1 := g.Suspend()
	r2 := g.Suspend()
	r1()
	r1()
	if g.Enabled() {
		t.Error("gate enabled while one suspension is outstanding")
	}
	r2()
	if !g.Enabled() {
		t.Error("gate disabled after all releases")
	}
}

func TestDict_SizeInvariantUnderInterleavedRehash(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	d := newStringDict(nil)
	oracle := make(map[string]int)

	for i := 0; i < 20000; i++ {
		key := fmt.Sprintf("key:%d", r.IntN(3000))
		switch r.IntN(4) {
		case 0:
			added := d.Add(key, i)
			_, had := oracle[key]
			if added == had {
				t.Fatalf("Add(%s) = %v, key present = %v", key, added, had)
			}
			if added {
				oracle[key] = i
			}
		case 1:
			isNew := d.Replace(key, i)
			_, had := oracle[key]
			if isNew == had {
				t.Fatalf("Replace(%s) = %v, key present = %v", key, isNew, had)
			}
			oracle[key] = i
		case 2:
			removed := d.Delete(key)
			_, had := oracle[key]
			if removed != had {
				t.Fatalf("Delete(%s) = %v, key present = %v", key, removed, had)
			}
			delete(oracle, key)
		case 3:
			d.RehashStep(r.IntN(3))
		}

		if d.Len() != len(oracle) {
			t.Fatalf("step %d: Len() = %d, want %d", i, d.Len(), len(oracle))
		}
	}

	// Force a migration and check reachability mid-flight.
	if !d.IsRehashing() {
		if err := d.Expand(uint64(d.ht[0].size * 4)); err != nil {
			t.Fatalf("Expand() error = %v", err)
		}
	}
	d.RehashStep(3)
	if !d.IsRehashing() {
		t.Skip("migration completed in a single step")
	}

	for key, want := range oracle {
		v, ok := d.FetchValue(key)
		if !ok || v != want {
			t.Errorf("FetchValue(%s) = %d, %v; want %d", key, v, ok, want)
		}
		if n := occurrences(d, key); n != 1 {
			t.Errorf("key %s appears %d times across tables", key, n)
		}
	}
}

type refCounted struct {
	refs  int
	freed bool
}

func TestDict_ReplaceRetainsBeforeRelease(t *testing.T) {
	typ := &Type[string, *refCounted]{
		Hash: StringHash,
		ValDup: func(v *refCounted) *refCounted {
			v.refs++
			return v
		},
		ValFree: func(v *refCounted) {
			v.refs--
			if v.refs == 0 {
				v.freed = true
			}
		},
	}
	d := New(typ, nil)

	obj := &refCounted{}
	d.Add("k", obj)
	if obj.refs != 1 {
		t.Fatalf("refs after Add = %d, want 1", obj.refs)
	}

	if d.Replace("k", obj) {
		t.Error("Replace of existing key reported new")
	}
	if obj.freed {
		t.Error("value freed while replacing it with itself")
	}
	if obj.refs != 1 {
		t.Errorf("refs after self-replace = %d, want 1", obj.refs)
	}

	other := &refCounted{}
	d.Replace("k", other)
	if !obj.freed {
		t.Error("old value not released after replace")
	}
}

func TestDict_UnlinkThenFree(t *testing.T) {
	var freedKeys []string
	typ := &Type[string, int]{
		Hash:    StringHash,
		KeyFree: func(k string) { freedKeys = append(freedKeys, k) },
	}
	d := New(typ, nil)
	d.Add("a", 10)

	e := d.Unlink("a")
	if e == nil {
		t.Fatal("Unlink(a) = nil")
	}
	if len(freedKeys) != 0 {
		t.Fatal("Unlink released the key")
	}
	if e.Val() != 10 {
		t.Errorf("unlinked value = %d, want 10", e.Val())
	}
	if d.Find("a") != nil {
		t.Error("unlinked key still reachable")
	}

	d.FreeUnlinked(e)
	if len(freedKeys) != 1 || freedKeys[0] != "a" {
		t.Errorf("freed keys = %v, want [a]", freedKeys)
	}
	d.FreeUnlinked(nil)
	if d.Unlink("a") != nil {
		t.Error("Unlink of missing key returned an entry")
	}
}

func TestDict_AddRawNumericValues(t *testing.T) {
	d := New[string, struct{}](StringType[struct{}](), nil)

	e, existing := d.AddRaw("ttl")
	if e == nil || existing != nil {
		t.Fatal("AddRaw on new key failed")
	}
	e.SetInt64(-42)

	if _, existing = d.AddRaw("ttl"); existing == nil {
		t.Fatal("AddRaw on existing key did not return it")
	}

	v, ok := d.Get("ttl")
	if !ok {
		t.Fatal("Get(ttl) missing")
	}
	if n, ok := v.Int64(); !ok || n != -42 {
		t.Errorf("Int64() = %d, %v", n, ok)
	}
	if _, ok := v.Float64(); ok {
		t.Error("Float64() reported ok for an int64 value")
	}

	d.AddOrFind("f").SetFloat64(1.5)
	if f, ok := d.Find("f").Value().Float64(); !ok || f != 1.5 {
		t.Errorf("Float64() = %v, %v", f, ok)
	}
	d.AddOrFind("f").SetUint64(7)
	if u, ok := d.Find("f").Value().Uint64(); !ok || u != 7 {
		t.Errorf("Uint64() = %v, %v", u, ok)
	}
}

func TestDict_ExpandErrors(t *testing.T) {
	d := newStringDict(nil)
	for i := 0; i < 10; i++ {
		d.Add(fmt.Sprintf("k%d", i), i)
	}
	drain(d)

	if err := d.Expand(2); err != ErrTooSmall {
		t.Errorf("Expand(2) error = %v, want ErrTooSmall", err)
	}
	if err := d.Expand(d.ht[0].size); err != ErrSameSize {
		t.Errorf("Expand(same) error = %v, want ErrSameSize", err)
	}
	if err := d.Expand(1024); err != nil {
		t.Fatalf("Expand(1024) error = %v", err)
	}
	if err := d.Expand(4096); err != ErrRehashing {
		t.Errorf("Expand during rehash error = %v, want ErrRehashing", err)
	}
	if err := d.ShrinkToFit(); err != ErrRehashing {
		t.Errorf("ShrinkToFit during rehash error = %v, want ErrRehashing", err)
	}
	drain(d)

	if err := d.ShrinkToFit(); err != nil {
		t.Fatalf("ShrinkToFit() error = %v", err)
	}
	drain(d)
	if d.ht[0].size != 16 {
		t.Errorf("size after shrink = %d, want 16", d.ht[0].size)
	}

	gate := NewResizeGate()
	d.gate = gate
	release := gate.Suspend()
	if err := d.ShrinkToFit(); err != ErrResizeSuspended {
		t.Errorf("ShrinkToFit while suspended error = %v", err)
	}
	release()
}

func TestDict_RehashForMilliseconds(t *testing.T) {
	d := newStringDict(nil)
	for i := 0; i < 5000; i++ {
		d.Add(fmt.Sprintf("k%d", i), i)
	}
	drain(d)
	if err := d.Expand(1 << 16); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	steps := d.RehashForMilliseconds(1000)
	if d.IsRehashing() {
		t.Error("migration not finished within budget")
	}
	if steps == 0 {
		t.Error("RehashForMilliseconds reported no work")
	}
	if d.RehashStep(1) {
		t.Error("RehashStep on idle table reported pending work")
	}
}

func TestDict_SafeIteratorAllowsDelete(t *testing.T) {
	d := newStringDict(nil)
	for i := 0; i < 200; i++ {
		d.Add(fmt.Sprintf("k%d", i), i)
	}
	d.Expand(1024)

	it := d.SafeIterator()
	seen := 0
	for e := it.Next(); e != nil; e = it.Next() {
		if d.iterators != 1 {
			t.Fatalf("iterators = %d during safe iteration", d.iterators)
		}
		if e.Val()%2 == 0 {
			d.Delete(e.Key())
		}
		seen++
	}
	it.Release()

	if seen != 200 {
		t.Errorf("visited %d entries, want 200", seen)
	}
	if d.Len() != 100 {
		t.Errorf("Len() = %d, want 100", d.Len())
	}
	if d.iterators != 0 {
		t.Errorf("iterators = %d after release", d.iterators)
	}
}

func TestDict_UnsafeIteratorDetectsMutation(t *testing.T) {
	d := newStringDict(nil)
	for i := 0; i < 10; i++ {
		d.Add(fmt.Sprintf("k%d", i), i)
	}

	clean := d.Iterator()
	for e := clean.Next(); e != nil; e = clean.Next() {
	}
	clean.Release()

	it := d.Iterator()
	it.Next()
	d.Add("intruder", 99)

	defer func() {
		if r := recover(); r != ErrFingerprintMismatch {
			t.Errorf("recover() = %v, want ErrFingerprintMismatch", r)
		}
	}()
	it.Release()
	t.Error("Release did not panic")
}

func TestDict_IterationOrderIsMostRecentFirst(t *testing.T) {
	typ := &Type[string, int]{Hash: func(string) uint64 { return 0 }}
	d := New(typ, nil)
	d.Add("first", 1)
	d.Add("second", 2)
	d.Add("third", 3)

	it := d.Iterator()
	var got []string
	for e := it.Next(); e != nil; e = it.Next() {
		got = append(got, e.Key())
	}
	it.Release()

	if strings.Join(got, ",") != "third,second,first" {
		t.Errorf("order = %v", got)
	}
}

func TestDict_AppendRawPreservesOrder(t *testing.T) {
	src := newStringDict(nil)
	for i := 0; i < 200; i++ {
		src.Add(fmt.Sprintf("k%d", i), i)
	}
	drain(src)

	var order []string
	it := src.Iterator()
	for e := it.Next(); e != nil; e = it.Next() {
		order = append(order, e.Key())
	}
	it.Release()

	dst := newStringDict(nil)
	if err := dst.Expand(uint64(src.Slots())); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	for _, k := range order {
		e, existing := dst.AppendRaw(k)
		if existing != nil {
			t.Fatalf("AppendRaw(%q) found an existing entry", k)
		}
		e.SetInt64(1)
	}
	if _, existing := dst.AppendRaw(order[0]); existing == nil {
		t.Error("AppendRaw of a duplicate key returned no existing entry")
	}

	var got []string
	it = dst.Iterator()
	for e := it.Next(); e != nil; e = it.Next() {
		got = append(got, e.Key())
	}
	it.Release()

	if strings.Join(got, ",") != strings.Join(order, ",") {
		t.Error("iteration order differs after AppendRaw rebuild")
	}
	if dst.Slots() != src.Slots() {
		t.Errorf("Slots() = %d, want %d", dst.Slots(), src.Slots())
	}
}

func TestDict_Scan(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Dict[string, int])
	}{
		{"stable", func(d *Dict[string, int]) {}},
		{"grow", func(d *Dict[string, int]) {
			for i := 0; i < 2000; i++ {
				d.Add(fmt.Sprintf("extra:%d", i), i)
			}
		}},
		{"grow mid-rehash", func(d *Dict[string, int]) {
			for i := 0; i < 300; i++ {
				d.Add(fmt.Sprintf("extra:%d", i), i)
			}
			d.RehashStep(2)
		}},
		{"shrink", func(d *Dict[string, int]) {
			for i := 0; i < 2000; i++ {
				d.Delete(fmt.Sprintf("filler:%d", i))
			}
			drain(d)
			d.ShrinkToFit()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newStringDict(nil)
			for i := 0; i < 2000; i++ {
				d.Add(fmt.Sprintf("filler:%d", i), i)
			}
			for i := 0; i < 100; i++ {
				d.Add(fmt.Sprintf("stable:%d", i), i)
			}
			drain(d)

			seen := make(map[string]bool)
			visit := func(e *Entry[string, int]) { seen[e.Key()] = true }

			cursor := d.Scan(0, visit)
			cursor = d.Scan(cursor, visit)
			tt.mutate(d)
			for cursor != 0 {
				cursor = d.Scan(cursor, visit)
			}

			for i := 0; i < 100; i++ {
				k := fmt.Sprintf("stable:%d", i)
				if !seen[k] {
					t.Errorf("scan missed %s", k)
				}
			}
		})
	}
}

func TestDict_ScanEmpty(t *testing.T) {
	d := newStringDict(nil)
	if c := d.Scan(0, func(*Entry[string, int]) { t.Error("visited entry on empty table") }); c != 0 {
		t.Errorf("Scan on empty = %d, want 0", c)
	}
}

func TestDict_RandomAndSample(t *testing.T) {
	d := newStringDict(nil)
	if d.RandomEntry() != nil {
		t.Error("RandomEntry on empty table != nil")
	}
	if s := d.SampleEntries(5); len(s) != 0 {
		t.Errorf("SampleEntries on empty table = %d entries", len(s))
	}

	for i := 0; i < 1000; i++ {
		d.Add(fmt.Sprintf("k%d", i), i)
	}

	for i := 0; i < 50; i++ {
		e := d.RandomEntry()
		if e == nil || d.Find(e.Key()) != e {
			t.Fatalf("RandomEntry returned a dead entry")
		}
	}

	drain(d)
	sample := d.SampleEntries(10)
	if len(sample) != 10 {
		t.Errorf("SampleEntries(10) = %d entries", len(sample))
	}
	for _, e := range sample {
		if d.Find(e.Key()) != e {
			t.Errorf("sampled entry %s is not live", e.Key())
		}
	}

	if s := d.SampleEntries(5000); len(s) > 1000 {
		t.Errorf("SampleEntries over Len returned %d", len(s))
	}

	d.Expand(8192)
	d.RehashStep(1)
	for _, e := range d.SampleEntries(20) {
		if d.Find(e.Key()) != e {
			t.Errorf("sampled entry %s is not live mid-rehash", e.Key())
		}
	}
}

func TestDict_EmptyAndStats(t *testing.T) {
	var freed int
	typ := &Type[string, int]{Hash: StringHash, ValFree: func(int) { freed++ }}
	d := New(typ, nil)
	for i := 0; i < 100; i++ {
		d.Add(fmt.Sprintf("k%d", i), i)
	}

	stats := d.Stats()
	if !strings.Contains(stats, "number of elements") {
		t.Errorf("Stats() = %q", stats)
	}

	calls := 0
	d.Empty(func() { calls++ })
	if d.Len() != 0 || d.Slots() != 0 || d.IsRehashing() {
		t.Errorf("table not reset: len=%d slots=%d", d.Len(), d.Slots())
	}
	if freed != 100 {
		t.Errorf("freed %d values, want 100", freed)
	}
	if calls == 0 {
		t.Error("progress callback never invoked")
	}
	if !strings.Contains(d.Stats(), "No stats") {
		t.Error("Stats on empty table should say so")
	}
}

func TestDict_FindByHash(t *testing.T) {
	d := newStringDict(nil)
	d.Add("a", 1)
	h := d.HashOf("a")
	if e := d.FindByHash("a", h); e == nil || e.Val() != 1 {
		t.Error("FindByHash(a) failed")
	}
	if d.FindByHash("b", d.HashOf("b")) != nil {
		t.Error("FindByHash(b) found missing key")
	}
}

func TestDict_DefaultComparableHash(t *testing.T) {
	type point struct{ x, y int }
	d := New[point, string](nil, nil)
	for i := 0; i < 100; i++ {
		d.Add(point{i, -i}, fmt.Sprint(i))
	}
	if v, ok := d.FetchValue(point{42, -42}); !ok || v != "42" {
		t.Errorf("FetchValue = %q, %v", v, ok)
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		k    Kind
		want string
	}{
		{KindRef, "ref"},
		{KindInt64, "int64"},
		{KindUint64, "uint64"},
		{KindFloat64, "float64"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.k, got, tt.want)
		}
	}
}
