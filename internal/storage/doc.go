// Package storage provides the memkv storage engine.
//
// The Engine owns the keyspace. Every access runs on the engine goroutine,
// submitted through Do, which also drives a cron: incremental rehashing,
// sampled expiry, table shrinking and the save points that trigger
// automatic snapshots. Saves hold a keyspace maintenance window so no
// table resizes while it is being written, and hand file close to the
// background job queue.
package storage
