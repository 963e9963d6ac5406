// Package strint converts between byte strings and integers using the
// canonical decimal form: no sign other than a leading '-', no leading
// zeros, no whitespace, no "-0".
package strint

import "strconv"

// MaxLen is the longest canonical int64 ("-9223372036854775808").
const MaxLen = 20

// Parse returns the integer represented by b if b is its canonical form.
func Parse(b []byte) (int64, bool) {
	if len(b) == 0 || len(b) > MaxLen {
		return 0, false
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	var buf [MaxLen]byte
	if string(strconv.AppendInt(buf[:0], v, 10)) != string(b) {
		return 0, false
	}
	return v, true
}

// Append appends the canonical form of v to dst.
func Append(dst []byte, v int64) []byte {
	return strconv.AppendInt(dst, v, 10)
}

// Format returns the canonical form of v.
func Format(v int64) []byte {
	return strconv.AppendInt(nil, v, 10)
}
