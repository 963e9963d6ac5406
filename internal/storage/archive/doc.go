// Package archive copies finished snapshots to S3 compatible object
// storage.
//
// Uploads run on a single background goroutine so the engine never waits
// on the network. Only the newest pending snapshot is kept in the queue: a
// save that completes while an upload is running replaces any snapshot
// still waiting, since an older copy is of no use once a newer one exists.
package archive
