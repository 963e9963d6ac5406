package object

import (
	"errors"
	"math"
	"strconv"

	"github.com/google/btree"

	"github.com/yndnr/memkv/internal/encoding/ziplist"
	"github.com/yndnr/memkv/pkg/dict"
)

var ErrOddZiplist = errors.New("sorted set ziplist holds an odd number of entries")

// ZItem is a member of a sorted set. Items order by score, then member.
type ZItem struct {
	Member string
	Score  float64
}

func zitemLess(a, b ZItem) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

// ZSet is the general-purpose sorted set: a member table holding scores
// plus an ordered index.
type ZSet struct {
	dict *dict.Dict[string, struct{}]
	tree *btree.BTreeG[ZItem]
}

func newZSet() *ZSet {
	return &ZSet{
		dict: dict.New(dict.StringType[struct{}](), nil),
		tree: btree.NewG(32, zitemLess),
	}
}

// Len returns the number of members.
func (z *ZSet) Len() int { return z.tree.Len() }

// Score returns the score of member.
func (z *ZSet) Score(member string) (float64, bool) {
	e := z.dict.Find(member)
	if e == nil {
		return 0, false
	}
	f, _ := e.Value().Float64()
	return f, true
}

// Add inserts member or updates its score. It reports whether member was
// new.
func (z *ZSet) Add(member string, score float64) bool {
	e, existing := z.dict.AddRaw(member)
	if existing != nil {
		old, _ := existing.Value().Float64()
		if old != score {
			z.tree.Delete(ZItem{Member: member, Score: old})
			z.tree.ReplaceOrInsert(ZItem{Member: member, Score: score})
			existing.SetFloat64(score)
		}
		return false
	}
	e.SetFloat64(score)
	z.tree.ReplaceOrInsert(ZItem{Member: member, Score: score})
	return true
}

// Ascend calls fn from the lowest to the highest score.
func (z *ZSet) Ascend(fn func(ZItem) bool) { z.tree.Ascend(fn) }

// Descend calls fn from the highest to the lowest score.
func (z *ZSet) Descend(fn func(ZItem) bool) { z.tree.Descend(fn) }

// NewZSetZiplist wraps a ziplist of member/score pairs sorted by score.
func NewZSetZiplist(zl []byte) *Object {
	return &Object{typ: TypeZSet, enc: EncZiplist, ptr: zl}
}

// NewZSetSkiplist returns an empty general-purpose sorted set.
func NewZSetSkiplist(size int) *Object {
	z := newZSet()
	if size > 0 {
		_ = z.dict.Expand(uint64(size))
	}
	return &Object{typ: TypeZSet, enc: EncSkiplist, ptr: z}
}

// ZSet returns the structure of a skiplist encoded sorted set.
func (o *Object) ZSet() *ZSet {
	return o.ptr.(*ZSet)
}

// ZSetLen returns the number of members.
func (o *Object) ZSetLen() int {
	if o.enc == EncZiplist {
		return ziplist.Len(o.ptr.([]byte)) / 2
	}
	return o.ZSet().Len()
}

// ZSetEach calls fn with every member in ascending score order.
func (o *Object) ZSetEach(fn func(ZItem) bool) error {
	if o.enc != EncZiplist {
		o.ZSet().Ascend(fn)
		return nil
	}
	return zzlEach(o.ptr.([]byte), fn)
}

func zzlEach(zl []byte, fn func(ZItem) bool) error {
	var (
		member []byte
		odd    bool
		err    error
	)
	werr := ziplist.Each(zl, func(e ziplist.Entry) bool {
		if !odd {
			member, odd = e.Bytes(), true
			return true
		}
		odd = false
		var score float64
		if e.IsInt {
			score = float64(e.Int)
		} else if score, err = strconv.ParseFloat(string(e.Str), 64); err != nil {
			return false
		}
		return fn(ZItem{Member: string(member), Score: score})
	})
	if werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	if odd {
		return ErrOddZiplist
	}
	return nil
}

// ZSetToSkiplist converts a ziplist encoded sorted set.
func (o *Object) ZSetToSkiplist() error {
	if o.enc != EncZiplist {
		return nil
	}
	z := newZSet()
	if err := zzlEach(o.ptr.([]byte), func(it ZItem) bool {
		z.Add(it.Member, it.Score)
		return true
	}); err != nil {
		return err
	}
	o.enc, o.ptr = EncSkiplist, z
	return nil
}

// ZSetToZiplist converts a skiplist encoded sorted set.
func (o *Object) ZSetToZiplist() {
	if o.enc == EncZiplist {
		return
	}
	zl := ziplist.New()
	o.ZSet().Ascend(func(it ZItem) bool {
		zl = ziplist.Push(zl, []byte(it.Member))
		zl = ziplist.Push(zl, FormatScore(it.Score))
		return true
	})
	o.enc, o.ptr = EncZiplist, zl
}

// FormatScore renders a score the way compact sorted sets store it:
// integral values within 2^52 as integers, everything else with 17
// significant digits.
func FormatScore(f float64) []byte {
	switch {
	case math.IsNaN(f):
		return []byte("nan")
	case math.IsInf(f, 1):
		return []byte("inf")
	case math.IsInf(f, -1):
		return []byte("-inf")
	case f == 0:
		if math.Signbit(f) {
			return []byte("-0")
		}
		return []byte("0")
	case f > -4503599627370495 && f < 4503599627370496 && f == math.Trunc(f):
		return strconv.AppendInt(nil, int64(f), 10)
	default:
		return strconv.AppendFloat(nil, f, 'g', 17, 64)
	}
}
