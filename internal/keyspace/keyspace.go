// Package keyspace holds the logical databases: for each one a main table
// of keys to values and an expires table of keys to absolute expiry times
// in unix milliseconds.
//
// A Keyspace is owned by a single goroutine. Every table created here
// shares one dict.ResizeGate so that a Maintenance token can suspend
// automatic resizing across all of them at once.
package keyspace

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/memkv/internal/object"
	"github.com/yndnr/memkv/pkg/dict"
)

// DefaultDatabases is the number of databases a keyspace starts with.
const DefaultDatabases = 16

// Main is the table of keys to values.
type Main = dict.Dict[string, *object.Object]

// Expires is the table of keys to expiry times stored as Int64 values.
type Expires = dict.Dict[string, struct{}]

// DB is one logical database.
type DB struct {
	ID      int
	Dict    *Main
	Expires *Expires

	dirty *atomic.Int64
}

// Keyspace is the full set of databases.
type Keyspace struct {
	dbs   []*DB
	gate  *dict.ResizeGate
	dirty atomic.Int64
}

// New returns a keyspace with n empty databases.
func New(n int) *Keyspace {
	if n <= 0 {
		n = DefaultDatabases
	}
	ks := &Keyspace{gate: dict.NewResizeGate()}
	ks.dbs = make([]*DB, n)
	for i := range ks.dbs {
		ks.dbs[i] = ks.newDB(i)
	}
	return ks
}

func (ks *Keyspace) newDB(id int) *DB {
	return &DB{
		ID:      id,
		Dict:    dict.New(dict.StringType[*object.Object](), ks.gate),
		Expires: dict.New(dict.StringType[struct{}](), ks.gate),
		dirty:   &ks.dirty,
	}
}

// Len returns the number of databases.
func (ks *Keyspace) Len() int { return len(ks.dbs) }

// DB returns database id, or nil when it is out of range.
func (ks *Keyspace) DB(id int) *DB {
	if id < 0 || id >= len(ks.dbs) {
		return nil
	}
	return ks.dbs[id]
}

// Gate returns the resize gate shared by every table.
func (ks *Keyspace) Gate() *dict.ResizeGate { return ks.gate }

// Keys returns the total number of keys across all databases.
func (ks *Keyspace) Keys() int {
	n := 0
	for _, db := range ks.dbs {
		n += db.Dict.Len()
	}
	return n
}

// Dirty returns the number of changes since the last ResetDirty.
func (ks *Keyspace) Dirty() int64 { return ks.dirty.Load() }

// ResetDirty subtracts n from the change counter, keeping changes made
// while a save was running.
func (ks *Keyspace) ResetDirty(n int64) { ks.dirty.Add(-n) }

// Flush empties every database.
func (ks *Keyspace) Flush(progress func()) {
	for _, db := range ks.dbs {
		n := db.Dict.Len()
		db.Dict.Empty(progress)
		db.Expires.Empty(progress)
		ks.dirty.Add(int64(n))
	}
}

// Maintenance suspends automatic resizing of every table in a keyspace
// until Release is called. Tables still grow once their load factor passes
// dict.ForceResizeRatio.
type Maintenance struct {
	once    sync.Once
	release func()
}

// BeginMaintenance starts a maintenance window. Windows nest.
func (ks *Keyspace) BeginMaintenance() *Maintenance {
	return &Maintenance{release: ks.gate.Suspend()}
}

// Release ends the window. It is safe to call more than once.
func (m *Maintenance) Release() {
	m.once.Do(m.release)
}

// RehashFor spends up to budget moving buckets of tables that are being
// rehashed, main tables first. It reports whether any table still has work
// left.
func (ks *Keyspace) RehashFor(budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	pending := false
	for _, db := range ks.dbs {
		for _, step := range []func(int) bool{db.Dict.RehashStep, db.Expires.RehashStep} {
			for time.Now().Before(deadline) {
				if !step(100) {
					break
				}
			}
		}
		if db.Dict.IsRehashing() || db.Expires.IsRehashing() {
			pending = true
		}
	}
	return pending
}

// Rehashing returns the number of tables with a rehash in progress.
func (ks *Keyspace) Rehashing() int {
	n := 0
	for _, db := range ks.dbs {
		if db.Dict.IsRehashing() {
			n++
		}
		if db.Expires.IsRehashing() {
			n++
		}
	}
	return n
}

// TryShrink resizes tables that are less than a tenth full.
func (ks *Keyspace) TryShrink() {
	if !ks.gate.Enabled() {
		return
	}
	for _, db := range ks.dbs {
		shrinkIfSparse(db.Dict.Slots(), db.Dict.Len(), db.Dict.ShrinkToFit)
		shrinkIfSparse(db.Expires.Slots(), db.Expires.Len(), db.Expires.ShrinkToFit)
	}
}

func shrinkIfSparse(slots, used int, shrink func() error) {
	if slots > 4 && used*100/slots < 10 {
		_ = shrink()
	}
}
