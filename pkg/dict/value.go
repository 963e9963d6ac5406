package dict

import "math"

// Kind tags the payload stored in a Value.
type Kind uint8

const (
	KindRef Kind = iota
	KindInt64
	KindUint64
	KindFloat64
)

func (k Kind) String() string {
	switch k {
	case KindRef:
		return "ref"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// Value is the payload of an entry: either a reference of type V or one of
// the inline numeric kinds. Accessors report whether the kind matches.
type Value[V any] struct {
	kind Kind
	ref  V
	bits uint64
}

// RefValue wraps v as a reference value.
func RefValue[V any](v V) Value[V] {
	return Value[V]{kind: KindRef, ref: v}
}

// Int64Value stores n inline.
func Int64Value[V any](n int64) Value[V] {
	return Value[V]{kind: KindInt64, bits: uint64(n)}
}

// Uint64Value stores n inline.
func Uint64Value[V any](n uint64) Value[V] {
	return Value[V]{kind: KindUint64, bits: n}
}

// Float64Value stores f inline.
func Float64Value[V any](f float64) Value[V] {
	return Value[V]{kind: KindFloat64, bits: math.Float64bits(f)}
}

func (v Value[V]) Kind() Kind { return v.kind }

func (v Value[V]) Ref() (V, bool) {
	return v.ref, v.kind == KindRef
}

func (v Value[V]) Int64() (int64, bool) {
	return int64(v.bits), v.kind == KindInt64
}

func (v Value[V]) Uint64() (uint64, bool) {
	return v.bits, v.kind == KindUint64
}

func (v Value[V]) Float64() (float64, bool) {
	return math.Float64frombits(v.bits), v.kind == KindFloat64
}

// Entry is one element of a bucket chain.
type Entry[K comparable, V any] struct {
	key  K
	val  Value[V]
	next *Entry[K, V]
}

func (e *Entry[K, V]) Key() K { return e.key }

// Value returns the tagged payload.
func (e *Entry[K, V]) Value() Value[V] { return e.val }

// Val returns the reference payload, or the zero V when the entry holds a
// numeric value.
func (e *Entry[K, V]) Val() V { return e.val.ref }

func (e *Entry[K, V]) SetInt64(n int64)     { e.val = Int64Value[V](n) }
func (e *Entry[K, V]) SetUint64(n uint64)   { e.val = Uint64Value[V](n) }
func (e *Entry[K, V]) SetFloat64(f float64) { e.val = Float64Value[V](f) }

// SetRef stores v as the reference payload without calling ValDup.
func (e *Entry[K, V]) SetRef(v V) { e.val = RefValue(v) }
