package object

import (
	"fmt"

	"github.com/yndnr/memkv/internal/encoding/ziplist"
	"github.com/yndnr/memkv/pkg/lzf"
)

const (
	sizeSafetyLimit    = 8192
	minCompressBytes   = 48
	minCompressImprove = 8
)

// Node size classes for negative fill values, indexed by -fill-1.
var optimizationLevel = [...]int{4096, 8192, 16384, 32768, 65536}

// QuicklistNode is one ziplist of a quicklist. Interior nodes may be held
// LZF compressed.
type QuicklistNode struct {
	zl    []byte
	lzf   []byte
	sz    int
	count int
}

// Len returns the number of entries in the node.
func (n *QuicklistNode) Len() int { return n.count }

// Size returns the size of the uncompressed ziplist.
func (n *QuicklistNode) Size() int { return n.sz }

// Compressed returns the LZF form of the node if it is held compressed.
func (n *QuicklistNode) Compressed() ([]byte, bool) {
	return n.lzf, n.lzf != nil
}

// Ziplist returns the node's ziplist, decompressing a copy if needed.
func (n *QuicklistNode) Ziplist() ([]byte, error) {
	if n.lzf == nil {
		return n.zl, nil
	}
	zl, err := lzf.Decompress(n.lzf, n.sz)
	if err != nil {
		return nil, fmt.Errorf("quicklist node: %w", err)
	}
	return zl, nil
}

func (n *QuicklistNode) compress() {
	if n.lzf != nil || n.sz < minCompressBytes {
		return
	}
	out := lzf.Compress(n.zl, n.sz)
	if out == nil || len(out)+minCompressImprove >= n.sz {
		return
	}
	n.lzf, n.zl = out, nil
}

func (n *QuicklistNode) decompress() {
	if n.lzf == nil {
		return
	}
	zl, err := lzf.Decompress(n.lzf, n.sz)
	if err != nil {
		// Compressed nodes are produced by compress; a failure here means
		// memory corruption.
		panic(err)
	}
	n.zl, n.lzf = zl, nil
}

// Quicklist is a list of ziplists.
type Quicklist struct {
	nodes         []*QuicklistNode
	count         int
	fill          int
	compressDepth int
}

// NewQuicklist returns an empty quicklist. See Thresholds for the meaning
// of fill and compressDepth.
func NewQuicklist(fill, compressDepth int) *Quicklist {
	return &Quicklist{fill: fill, compressDepth: compressDepth}
}

// NewList returns an empty list value.
func NewList(t Thresholds) *Object {
	return &Object{
		typ: TypeList,
		enc: EncQuicklist,
		ptr: NewQuicklist(t.ListMaxZiplistSize, t.ListCompressDepth),
	}
}

// NewListFrom wraps an existing quicklist.
func NewListFrom(q *Quicklist) *Object {
	return &Object{typ: TypeList, enc: EncQuicklist, ptr: q}
}

// Quicklist returns the backing list of a list object.
func (o *Object) Quicklist() *Quicklist {
	return o.ptr.(*Quicklist)
}

// Len returns the number of elements.
func (q *Quicklist) Len() int { return q.count }

// Nodes returns the nodes from head to tail. The slice must not be
// modified.
func (q *Quicklist) Nodes() []*QuicklistNode { return q.nodes }

func (q *Quicklist) allowInsert(n *QuicklistNode, sz int) bool {
	overhead := 1
	if sz >= 254 {
		overhead = 5
	}
	switch {
	case sz < 64:
		overhead++
	case sz < 16384:
		overhead += 2
	default:
		overhead += 5
	}
	newSz := n.sz + sz + overhead

	if q.fill < 0 {
		if off := -q.fill - 1; off < len(optimizationLevel) && newSz <= optimizationLevel[off] {
			return true
		}
		return false
	}
	if newSz > sizeSafetyLimit {
		return false
	}
	return n.count < q.fill
}

// PushTail appends v to the list.
func (q *Quicklist) PushTail(v []byte) {
	if k := len(q.nodes); k > 0 {
		tail := q.nodes[k-1]
		if tail.lzf == nil && q.allowInsert(tail, len(v)) {
			tail.zl = ziplist.Push(tail.zl, v)
			tail.sz = len(tail.zl)
			tail.count++
			q.count++
			return
		}
	}
	zl := ziplist.Push(ziplist.New(), v)
	q.appendNode(&QuicklistNode{zl: zl, sz: len(zl), count: 1})
}

// AppendZiplist adds zl as a new tail node without re-chunking it.
func (q *Quicklist) AppendZiplist(zl []byte) {
	q.appendNode(&QuicklistNode{zl: zl, sz: len(zl), count: ziplist.Len(zl)})
}

func (q *Quicklist) appendNode(n *QuicklistNode) {
	q.nodes = append(q.nodes, n)
	q.count += n.count
	q.compressEdges()
}

// compressEdges keeps compressDepth nodes at each end raw and compresses
// the nodes just inside them. Lists only grow at the tail, so every other
// interior node was compressed when it crossed the boundary.
func (q *Quicklist) compressEdges() {
	d, n := q.compressDepth, len(q.nodes)
	if d <= 0 || n < d*2 {
		return
	}
	for i := 0; i < d; i++ {
		q.nodes[i].decompress()
		q.nodes[n-1-i].decompress()
	}
	if d <= n-1-d {
		q.nodes[d].compress()
		q.nodes[n-1-d].compress()
	}
}

// Each calls fn with every element from head to tail until fn returns
// false.
func (q *Quicklist) Each(fn func(v []byte) bool) error {
	for _, n := range q.nodes {
		zl, err := n.Ziplist()
		if err != nil {
			return err
		}
		stop := false
		if err := ziplist.Each(zl, func(e ziplist.Entry) bool {
			if !fn(e.Bytes()) {
				stop = true
				return false
			}
			return true
		}); err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// QuicklistFromZiplist re-chunks the entries of a single ziplist into a
// quicklist.
func QuicklistFromZiplist(zl []byte, fill, compressDepth int) (*Quicklist, error) {
	q := NewQuicklist(fill, compressDepth)
	err := ziplist.Each(zl, func(e ziplist.Entry) bool {
		q.PushTail(e.Bytes())
		return true
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}
