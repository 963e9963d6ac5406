// Package crc64 implements the CRC-64 variant used by snapshot trailers:
// Jones polynomial, reflected input and output, zero initial value and no
// final xor.
package crc64

import "hash/crc64"

// Jones is the reflected form of the Jones polynomial 0xad93d23594c935a9.
const Jones = 0x95AC9329AC4BC9B5

var table = crc64.MakeTable(Jones)

// Update returns the checksum of crc extended with p.
//
// The standard library inverts the register on entry and exit; undoing that
// here gives a zero-init, no-xorout CRC.
func Update(crc uint64, p []byte) uint64 {
	return ^crc64.Update(^crc, table, p)
}

// Checksum returns the checksum of p.
func Checksum(p []byte) uint64 {
	return Update(0, p)
}

// Digest is a running checksum that implements io.Writer.
type Digest struct {
	crc uint64
}

func (d *Digest) Write(p []byte) (int, error) {
	d.crc = Update(d.crc, p)
	return len(p), nil
}

func (d *Digest) Sum64() uint64 { return d.crc }

func (d *Digest) Reset() { d.crc = 0 }
