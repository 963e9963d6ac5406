// Package lzf implements the LZF block format used by legacy snapshot files.
//
// A block is a sequence of runs. A control byte below 32 introduces a literal
// run of ctrl+1 bytes. Otherwise the top three bits hold a back-reference
// length (7 means an extra length byte follows) and the low five bits, with
// the next byte, hold the distance minus one.
package lzf

import "errors"

const (
	hashLog  = 14
	hashSize = 1 << hashLog
	maxLit   = 1 << 5
	maxOff   = 1 << 13
	maxRef   = (1 << 8) + (1 << 3)
)

var (
	ErrCorrupt     = errors.New("lzf: corrupt input")
	ErrOutputLimit = errors.New("lzf: output exceeds expected length")
)

func hashIndex(h uint32) uint32 {
	return ((h >> (3*8 - hashLog)) - h*5) & (hashSize - 1)
}

func first3(in []byte, i int) uint32 {
	return uint32(in[i])<<16 | uint32(in[i+1])<<8 | uint32(in[i+2])
}

// Compress compresses in. It returns nil when the result would be longer
// than maxOut bytes, which callers treat as "not worth compressing".
func Compress(in []byte, maxOut int) []byte {
	if len(in) == 0 || maxOut <= 0 {
		return nil
	}

	var htab [hashSize]int32 // position+1, zero means empty
	out := make([]byte, 1, maxOut+1)
	lit := 0

	closeLiteral := func() {
		if lit > 0 {
			out[len(out)-lit-1] = byte(lit - 1)
		} else {
			out = out[:len(out)-1]
		}
	}

	ip := 0
	end := len(in)
	for ip < end-2 {
		h := hashIndex(first3(in, ip))
		ref := int(htab[h]) - 1
		htab[h] = int32(ip + 1)

		if ref >= 0 && ref < ip {
			off := ip - ref - 1
			if off < maxOff && in[ref] == in[ip] && in[ref+1] == in[ip+1] && in[ref+2] == in[ip+2] {
				n := 2
				maxLen := end - ip - n
				if maxLen > maxRef {
					maxLen = maxRef
				}
				for {
					n++
					if n >= maxLen || in[ref+n] != in[ip+n] {
						break
					}
				}

				closeLiteral()
				n -= 2
				if n < 7 {
					out = append(out, byte(off>>8)+byte(n<<5))
				} else {
					out = append(out, byte(off>>8)+(7<<5), byte(n-7))
				}
				out = append(out, byte(off))
				out = append(out, 0)
				lit = 0
				if len(out) > maxOut+1 {
					return nil
				}

				ip += n + 2
				if ip >= end-2 {
					break
				}
				// Seed the table with the positions skipped by the match.
				htab[hashIndex(first3(in, ip-2))] = int32(ip - 1)
				htab[hashIndex(first3(in, ip-1))] = int32(ip)
				continue
			}
		}

		out = append(out, in[ip])
		ip++
		lit++
		if lit == maxLit {
			out[len(out)-lit-1] = byte(lit - 1)
			lit = 0
			out = append(out, 0)
		}
		if len(out) > maxOut+1 {
			return nil
		}
	}

	for ip < end {
		out = append(out, in[ip])
		ip++
		lit++
		if lit == maxLit {
			out[len(out)-lit-1] = byte(lit - 1)
			lit = 0
			out = append(out, 0)
		}
	}
	closeLiteral()

	if len(out) > maxOut {
		return nil
	}
	return out
}

// Decompress expands in, which must produce exactly outLen bytes.
func Decompress(in []byte, outLen int) ([]byte, error) {
	out := make([]byte, 0, outLen)
	ip := 0

	for ip < len(in) {
		ctrl := int(in[ip])
		ip++

		if ctrl < maxLit {
			n := ctrl + 1
			if ip+n > len(in) {
				return nil, ErrCorrupt
			}
			if len(out)+n > outLen {
				return nil, ErrOutputLimit
			}
			out = append(out, in[ip:ip+n]...)
			ip += n
			continue
		}

		n := ctrl >> 5
		if n == 7 {
			if ip >= len(in) {
				return nil, ErrCorrupt
			}
			n += int(in[ip])
			ip++
		}
		if ip >= len(in) {
			return nil, ErrCorrupt
		}
		ref := len(out) - ((ctrl & 0x1f) << 8) - 1 - int(in[ip])
		ip++
		n += 2

		if ref < 0 {
			return nil, ErrCorrupt
		}
		if len(out)+n > outLen {
			return nil, ErrOutputLimit
		}
		// Byte at a time: source and destination may overlap.
		for i := 0; i < n; i++ {
			out = append(out, out[ref+i])
		}
	}

	if len(out) != outLen {
		return nil, ErrCorrupt
	}
	return out, nil
}
