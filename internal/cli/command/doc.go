// Package command defines the memkv-check commands.
//
//	memkv-check check dump-01J9Z3.rdb            verify a snapshot
//	memkv-check dump --out restore.aof dump.rdb  rewrite it as commands
//	memkv-check list /var/lib/memkv/snapshots    list managed snapshots
//	memkv-check archive list --bucket snapshots
//
// Every command renders through the output package, selected with
// --output table|json|yaml.
package command
