package lzf

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 7))
	random := make([]byte, 4096)
	for i := range random {
		random[i] = byte(r.UintN(256))
	}

	tests := []struct {
		name string
		in   []byte
	}{
		{"repeated char", bytes.Repeat([]byte("a"), 1000)},
		{"repeated phrase", []byte(strings.Repeat("hello world, ", 200))},
		{"long match", append(bytes.Repeat([]byte("xyz"), 400), []byte("tail")...)},
		{"mixed", []byte("abcdefghijklmnopqrstuvwxyz" + strings.Repeat("0123456789", 40) + "ZYXWVUTSRQ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compress(tt.in, len(tt.in)-1)
			if c == nil {
				t.Fatal("Compress returned nil for compressible input")
			}
			if len(c) >= len(tt.in) {
				t.Errorf("compressed size %d >= input %d", len(c), len(tt.in))
			}
			got, err := Decompress(c, len(tt.in))
			if err != nil {
				t.Fatalf("Decompress() error = %v", err)
			}
			if !bytes.Equal(got, tt.in) {
				t.Error("round trip mismatch")
			}
		})
	}

	t.Run("random data does not fit", func(t *testing.T) {
		if c := Compress(random, len(random)-4); c != nil {
			t.Errorf("Compress on random data returned %d bytes", len(c))
		}
	})

	t.Run("random data with headroom", func(t *testing.T) {
		c := Compress(random, len(random)*2)
		if c == nil {
			t.Fatal("Compress returned nil with headroom")
		}
		got, err := Decompress(c, len(random))
		if err != nil || !bytes.Equal(got, random) {
			t.Fatalf("round trip failed: %v", err)
		}
	})
}

func TestCompress_Deterministic(t *testing.T) {
	in := []byte(strings.Repeat("deterministic output ", 50))
	a := Compress(in, len(in))
	b := Compress(in, len(in))
	if !bytes.Equal(a, b) {
		t.Error("Compress is not deterministic")
	}
}

func TestDecompress_Errors(t *testing.T) {
	in := []byte(strings.Repeat("abcabcabc", 20))
	c := Compress(in, len(in))

	tests := []struct {
		name   string
		data   []byte
		outLen int
	}{
		{"truncated literal", []byte{5, 'a', 'b'}, 6},
		{"back reference before start", []byte{0, 'a', 0x20, 0x05}, 4},
		{"short output", c, len(in) - 1},
		{"long output", c, len(in) + 1},
		{"missing distance byte", []byte{0, 'a', 0x20}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decompress(tt.data, tt.outLen); err == nil {
				t.Error("Decompress() error = nil")
			}
		})
	}
}
