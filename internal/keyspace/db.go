package keyspace

import (
	"time"

	"github.com/yndnr/memkv/internal/object"
)

// NoExpire is returned by Expire for keys without an expiry time.
const NoExpire int64 = -1

// Len returns the number of keys.
func (db *DB) Len() int { return db.Dict.Len() }

// Add inserts key. It reports false and leaves the database unchanged when
// key already exists.
func (db *DB) Add(key string, o *object.Object) bool {
	if !db.Dict.Add(key, o) {
		return false
	}
	db.dirty.Add(1)
	return true
}

// AppendRaw inserts key at the tail of its bucket chain. Loading keys in
// the order they were saved into a table presized to the saved size
// reproduces the saved iteration order.
func (db *DB) AppendRaw(key string, o *object.Object) bool {
	e, _ := db.Dict.AppendRaw(key)
	if e == nil {
		return false
	}
	e.SetRef(o)
	db.dirty.Add(1)
	return true
}

// Set inserts or replaces key and clears any expiry time.
func (db *DB) Set(key string, o *object.Object) {
	db.Dict.Replace(key, o)
	db.Expires.Delete(key)
	db.dirty.Add(1)
}

// Get returns the value of key, ignoring expiry.
func (db *DB) Get(key string) (*object.Object, bool) {
	return db.Dict.FetchValue(key)
}

// Lookup returns the value of key unless it expired before now.
func (db *DB) Lookup(key string, now time.Time) (*object.Object, bool) {
	if when := db.Expire(key); when != NoExpire && when <= now.UnixMilli() {
		return nil, false
	}
	return db.Get(key)
}

// Delete removes key and its expiry time.
func (db *DB) Delete(key string) bool {
	if db.Expires.Len() > 0 {
		db.Expires.Delete(key)
	}
	if !db.Dict.Delete(key) {
		return false
	}
	db.dirty.Add(1)
	return true
}

// SetExpire sets the absolute expiry time of an existing key in unix
// milliseconds.
func (db *DB) SetExpire(key string, whenMs int64) bool {
	if db.Dict.Find(key) == nil {
		return false
	}
	e := db.Expires.AddOrFind(key)
	e.SetInt64(whenMs)
	db.dirty.Add(1)
	return true
}

// Expire returns the expiry time of key or NoExpire.
func (db *DB) Expire(key string) int64 {
	if db.Expires.Len() == 0 {
		return NoExpire
	}
	e := db.Expires.Find(key)
	if e == nil {
		return NoExpire
	}
	when, _ := e.Value().Int64()
	return when
}

// ExpireSampled deletes expired keys among up to n sampled expiry entries
// and returns how many it removed.
func (db *DB) ExpireSampled(n int, now time.Time) int {
	if db.Expires.Len() == 0 {
		return 0
	}
	nowMs := now.UnixMilli()
	var expired []string
	for _, e := range db.Expires.SampleEntries(n) {
		if when, _ := e.Value().Int64(); when <= nowMs {
			expired = append(expired, e.Key())
		}
	}
	for _, key := range expired {
		db.Delete(key)
	}
	return len(expired)
}

// Presize allocates tables for the given key counts so a bulk load does
// not rehash. Sizes above max are clamped.
func (db *DB) Presize(keys, expires, max uint64) {
	if keys > max {
		keys = max
	}
	if expires > max {
		expires = max
	}
	if keys > 0 && db.Dict.Len() == 0 {
		_ = db.Dict.Expand(keys)
	}
	if expires > 0 && db.Expires.Len() == 0 {
		_ = db.Expires.Expand(expires)
	}
}
