package dict

import (
	"hash/maphash"
	"strings"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

var hashSeed atomic.Uint32

// SetHashSeed sets the seed used by StringHash and BytesHash. It should be
// called once at startup, before any table is populated.
func SetHashSeed(seed uint32) {
	hashSeed.Store(seed)
}

// HashSeed returns the current seed.
func HashSeed() uint32 {
	return hashSeed.Load()
}

// StringHash is the default hash for string keys.
func StringHash(s string) uint64 {
	return murmur3.Sum64WithSeed([]byte(s), hashSeed.Load())
}

// BytesHash hashes b with the same function as StringHash.
func BytesHash(b []byte) uint64 {
	return murmur3.Sum64WithSeed(b, hashSeed.Load())
}

// CaseInsensitiveHash hashes the lower-cased form of s.
func CaseInsensitiveHash(s string) uint64 {
	return StringHash(strings.ToLower(s))
}

var comparableSeed = maphash.MakeSeed()

func comparableHash[K comparable](k K) uint64 {
	return maphash.Comparable(comparableSeed, k)
}

// StringType returns a Type for string keys hashed with StringHash.
func StringType[V any]() *Type[string, V] {
	return &Type[string, V]{Hash: StringHash}
}
