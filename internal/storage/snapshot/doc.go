// Package snapshot manages snapshot files on disk.
//
// A save writes the keyspace to temp-<id>.rdb in the snapshot directory,
// commits it to stable storage and renames it to <prefix>-<id>.rdb, so a
// crash never leaves a partially written file under the final name. IDs
// are ULIDs: they sort in creation order, which is the order List returns
// and retention relies on.
//
// Loading tries the newest snapshot first and falls back to older ones
// when a file turns out to be corrupt.
//
// The same encoder also serves replicas: SaveToReplicas streams one
// snapshot to several writers at once, framed by an EOF mark, and Receive
// stores such a stream as a local snapshot.
package snapshot
