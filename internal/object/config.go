package object

import (
	"fmt"
	"strings"
)

// Thresholds decide when a collection leaves its compact encoding.
type Thresholds struct {
	SetMaxIntsetEntries   int `koanf:"set_max_intset_entries"`
	ZSetMaxZiplistEntries int `koanf:"zset_max_ziplist_entries"`
	ZSetMaxZiplistValue   int `koanf:"zset_max_ziplist_value"`
	HashMaxZiplistEntries int `koanf:"hash_max_ziplist_entries"`
	HashMaxZiplistValue   int `koanf:"hash_max_ziplist_value"`

	// ListMaxZiplistSize is an entry count per list node when positive and
	// a node size class (-1 = 4 KiB ... -5 = 64 KiB) when negative.
	ListMaxZiplistSize int `koanf:"list_max_ziplist_size"`

	// ListCompressDepth is the number of nodes at each end of a list kept
	// uncompressed. Zero disables node compression.
	ListCompressDepth int `koanf:"list_compress_depth"`
}

// DefaultThresholds returns the stock limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SetMaxIntsetEntries:   512,
		ZSetMaxZiplistEntries: 128,
		ZSetMaxZiplistValue:   64,
		HashMaxZiplistEntries: 512,
		HashMaxZiplistValue:   64,
		ListMaxZiplistSize:    -2,
		ListCompressDepth:     0,
	}
}

// Validate checks the thresholds for values no encoding can honour.
func (t Thresholds) Validate() error {
	if t.SetMaxIntsetEntries < 0 || t.ZSetMaxZiplistEntries < 0 || t.HashMaxZiplistEntries < 0 {
		return fmt.Errorf("entry limits must not be negative")
	}
	if t.ZSetMaxZiplistValue < 0 || t.HashMaxZiplistValue < 0 {
		return fmt.Errorf("value limits must not be negative")
	}
	if t.ListMaxZiplistSize == 0 || t.ListMaxZiplistSize < -5 {
		return fmt.Errorf("list_max_ziplist_size must be positive or in [-5, -1], got %d", t.ListMaxZiplistSize)
	}
	if t.ListCompressDepth < 0 {
		return fmt.Errorf("list_compress_depth must not be negative")
	}
	return nil
}

// EvictionPolicy is the maxmemory policy. Only its family matters here:
// it selects which access metadata a snapshot carries.
type EvictionPolicy uint8

const (
	PolicyNoEviction EvictionPolicy = iota
	PolicyAllKeysLRU
	PolicyVolatileLRU
	PolicyAllKeysLFU
	PolicyVolatileLFU
	PolicyAllKeysRandom
	PolicyVolatileRandom
	PolicyVolatileTTL
)

var policyNames = map[EvictionPolicy]string{
	PolicyNoEviction:     "noeviction",
	PolicyAllKeysLRU:     "allkeys-lru",
	PolicyVolatileLRU:    "volatile-lru",
	PolicyAllKeysLFU:     "allkeys-lfu",
	PolicyVolatileLFU:    "volatile-lfu",
	PolicyAllKeysRandom:  "allkeys-random",
	PolicyVolatileRandom: "volatile-random",
	PolicyVolatileTTL:    "volatile-ttl",
}

func (p EvictionPolicy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// IsLRU reports whether objects carry an LRU clock.
func (p EvictionPolicy) IsLRU() bool {
	return p == PolicyAllKeysLRU || p == PolicyVolatileLRU
}

// IsLFU reports whether objects carry an LFU counter.
func (p EvictionPolicy) IsLFU() bool {
	return p == PolicyAllKeysLFU || p == PolicyVolatileLFU
}

// ParseEvictionPolicy parses a policy name such as "allkeys-lru".
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range policyNames {
		if name == s {
			return p, nil
		}
	}
	return PolicyNoEviction, fmt.Errorf("unknown eviction policy %q", s)
}
