package listpack

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestBuildAndEach(t *testing.T) {
	values := []string{
		"0", "127", "128", "-1", "4095", "-4096", "4096", "-40000",
		"8388607", "2147483647", "-9223372036854775808",
		"hello", "", "007", strings.Repeat("a", 100), strings.Repeat("b", 5000),
	}
	var in [][]byte
	for _, v := range values {
		in = append(in, []byte(v))
	}
	lp := Build(in...)

	if err := Validate(lp); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := Count(lp); got != len(values) {
		t.Errorf("Count() = %d, want %d", got, len(values))
	}

	i := 0
	if err := Each(lp, func(e Entry) bool {
		if got := string(e.Bytes()); got != values[i] {
			t.Errorf("entry %d = %q, want %q", i, got, values[i])
		}
		i++
		return true
	}); err != nil {
		t.Fatalf("Each() error = %v", err)
	}
}

func TestEntrySizes(t *testing.T) {
	tests := []struct {
		value string
		size  int // encoding + data + backlen
	}{
		{"5", 2},
		{"-5", 3},
		{"1000", 3},
		{"10000", 4},
		{"1000000", 5},
		{"abc", 5},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			lp := Build([]byte(tt.value))
			if got := len(lp) - HeaderSize - 1; got != tt.size {
				t.Errorf("entry size = %d, want %d", got, tt.size)
			}
		})
	}
}

func TestBacklenRoundTrip(t *testing.T) {
	for _, l := range []int{0, 1, 127, 128, 16382, 16383, 2097150, 2097151} {
		buf := append(make([]byte, HeaderSize), appendBacklen(nil, l)...)
		got, size, err := decodeBacklen(buf, len(buf)-1)
		if err != nil {
			t.Fatalf("decodeBacklen(%d) error = %v", l, err)
		}
		if got != l || size != backlenSize(l) {
			t.Errorf("decodeBacklen(%d) = %d, %d", l, got, size)
		}
	}
}

func TestFirst(t *testing.T) {
	lp := NewBuilder().AppendInt(3).AppendString([]byte("x")).Bytes()
	e, err := First(lp)
	if err != nil {
		t.Fatalf("First() error = %v", err)
	}
	if !e.IsInt || e.Int != 3 {
		t.Errorf("First() = %+v", e)
	}
	if _, err := First(NewBuilder().Bytes()); err == nil {
		t.Error("First(empty) error = nil")
	}
}

func TestValidate_Corruption(t *testing.T) {
	good := Build([]byte("one"), []byte("2"), bytes.Repeat([]byte("z"), 200))

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:len(b)-3] }},
		{"missing end", func(b []byte) []byte { b[len(b)-1] = 0; return b }},
		{"bad count", func(b []byte) []byte { binary.LittleEndian.PutUint16(b[4:], 9); return b }},
		{"bad backlen", func(b []byte) []byte { b[len(b)-2] ^= 0x01; return b }},
		{"bad encoding", func(b []byte) []byte { b[HeaderSize] = 0xF9; return b }},
		{"too short", func(b []byte) []byte { return b[:3] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), good...))
			if err := Validate(b); err == nil {
				t.Error("Validate() error = nil")
			}
		})
	}
}
