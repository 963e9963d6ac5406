// Package rdb encodes and decodes keyspace snapshots in the RDB version 9
// binary format.
//
// A snapshot is laid out as:
//
//	"REDIS0009"
//	AUX key value ...
//	SELECTDB id RESIZEDB keys expires
//	    [EXPIRETIME_MS ms] [IDLE secs | FREQ counter] type key value ...
//	...
//	EOF checksum(8, little-endian CRC-64/Jones, zero when disabled)
//
// Lengths use a 1, 2, 5 or 9 byte prefix encoding. Strings are written as
// 8/16/32 bit integers when they are canonical decimals, compressed when
// longer than 20 bytes and compression is on, and verbatim otherwise.
//
// Compact in-memory encodings (ziplists, intsets, listpacks) are written
// as opaque strings. The decoder validates them and, using the configured
// Thresholds, converts values to the representation a fresh sequence of
// inserts would have produced.
//
// Loading keys in saved order into tables presized from RESIZEDB
// reproduces their iteration order, so a table that is not rehashing
// re-encodes to identical bytes apart from the time dependent aux fields.
package rdb
