package object

import (
	"encoding/binary"
	"fmt"

	"github.com/google/btree"
)

// StreamID identifies a stream entry: a millisecond timestamp and a
// sequence number within that millisecond.
type StreamID struct {
	Ms  uint64
	Seq uint64
}

// StreamIDSize is the size of an encoded StreamID.
const StreamIDSize = 16

func (id StreamID) String() string { return fmt.Sprintf("%d-%d", id.Ms, id.Seq) }

// Less orders IDs by time, then sequence.
func (id StreamID) Less(o StreamID) bool {
	if id.Ms != o.Ms {
		return id.Ms < o.Ms
	}
	return id.Seq < o.Seq
}

// Bytes returns the big-endian encoding, which sorts like Less.
func (id StreamID) Bytes() []byte {
	b := make([]byte, StreamIDSize)
	binary.BigEndian.PutUint64(b[0:], id.Ms)
	binary.BigEndian.PutUint64(b[8:], id.Seq)
	return b
}

// ParseStreamID decodes a 16 byte big-endian ID.
func ParseStreamID(b []byte) (StreamID, error) {
	if len(b) != StreamIDSize {
		return StreamID{}, fmt.Errorf("stream id is %d bytes, want %d", len(b), StreamIDSize)
	}
	return StreamID{
		Ms:  binary.BigEndian.Uint64(b[0:]),
		Seq: binary.BigEndian.Uint64(b[8:]),
	}, nil
}

// StreamNode is a listpack of entries keyed by its master ID.
type StreamNode struct {
	Key      StreamID
	Listpack []byte
}

// PendingEntry is a delivered but unacknowledged message.
type PendingEntry struct {
	ID            StreamID
	DeliveryTime  int64 // unix milliseconds
	DeliveryCount uint64
	Consumer      *Consumer
}

func pendingLess(a, b *PendingEntry) bool { return a.ID.Less(b.ID) }

// Consumer is a member of a consumer group.
type Consumer struct {
	Name     string
	SeenTime int64 // unix milliseconds
	pel      *btree.BTreeG[*PendingEntry]
}

// AddPending records pe as owned by the consumer. It reports false when
// the ID is already present.
func (c *Consumer) AddPending(pe *PendingEntry) bool {
	if c.pel.Has(pe) {
		return false
	}
	pe.Consumer = c
	c.pel.ReplaceOrInsert(pe)
	return true
}

// PendingLen returns the size of the consumer's pending list.
func (c *Consumer) PendingLen() int { return c.pel.Len() }

// EachPending calls fn in ID order.
func (c *Consumer) EachPending(fn func(*PendingEntry) bool) { c.pel.Ascend(fn) }

// ConsumerGroup tracks delivery state for a set of consumers.
type ConsumerGroup struct {
	Name      string
	LastID    StreamID
	pel       *btree.BTreeG[*PendingEntry]
	consumers *btree.BTreeG[*Consumer]
}

// AddPending adds an entry to the group pending list with no owner. It
// reports false when the ID is already present.
func (g *ConsumerGroup) AddPending(id StreamID, deliveryTime int64, deliveryCount uint64) (*PendingEntry, bool) {
	pe := &PendingEntry{ID: id, DeliveryTime: deliveryTime, DeliveryCount: deliveryCount}
	if g.pel.Has(pe) {
		return nil, false
	}
	g.pel.ReplaceOrInsert(pe)
	return pe, true
}

// Pending returns the group pending entry for id.
func (g *ConsumerGroup) Pending(id StreamID) (*PendingEntry, bool) {
	return g.pel.Get(&PendingEntry{ID: id})
}

// PendingLen returns the size of the group pending list.
func (g *ConsumerGroup) PendingLen() int { return g.pel.Len() }

// EachPending calls fn in ID order.
func (g *ConsumerGroup) EachPending(fn func(*PendingEntry) bool) { g.pel.Ascend(fn) }

// Consumer returns the named consumer, creating it when create is set.
func (g *ConsumerGroup) Consumer(name string, create bool) *Consumer {
	if c, ok := g.consumers.Get(&Consumer{Name: name}); ok {
		return c
	}
	if !create {
		return nil
	}
	c := &Consumer{Name: name, pel: btree.NewG(8, pendingLess)}
	g.consumers.ReplaceOrInsert(c)
	return c
}

// ConsumerLen returns the number of consumers.
func (g *ConsumerGroup) ConsumerLen() int { return g.consumers.Len() }

// EachConsumer calls fn in name order.
func (g *ConsumerGroup) EachConsumer(fn func(*Consumer) bool) { g.consumers.Ascend(fn) }

// Stream is an append-only log of entries with consumer groups.
type Stream struct {
	Length uint64
	LastID StreamID

	nodes  *btree.BTreeG[StreamNode]
	groups *btree.BTreeG[*ConsumerGroup]
}

// NewStream returns an empty stream value.
func NewStream() *Object {
	return &Object{typ: TypeStream, enc: EncStream, ptr: newStream()}
}

func newStream() *Stream {
	return &Stream{
		nodes: btree.NewG(16, func(a, b StreamNode) bool { return a.Key.Less(b.Key) }),
		groups: btree.NewG(8, func(a, b *ConsumerGroup) bool {
			return a.Name < b.Name
		}),
	}
}

// Stream returns the structure of a stream object.
func (o *Object) Stream() *Stream {
	return o.ptr.(*Stream)
}

// InsertNode adds a listpack node. It reports false when key exists.
func (s *Stream) InsertNode(key StreamID, lp []byte) bool {
	n := StreamNode{Key: key, Listpack: lp}
	if s.nodes.Has(n) {
		return false
	}
	s.nodes.ReplaceOrInsert(n)
	return true
}

// NodeLen returns the number of listpack nodes.
func (s *Stream) NodeLen() int { return s.nodes.Len() }

// EachNode calls fn in key order.
func (s *Stream) EachNode(fn func(StreamNode) bool) { s.nodes.Ascend(fn) }

// CreateGroup adds a consumer group. It returns nil when the name is
// taken.
func (s *Stream) CreateGroup(name string, lastID StreamID) *ConsumerGroup {
	g := &ConsumerGroup{
		Name:   name,
		LastID: lastID,
		pel:    btree.NewG(16, pendingLess),
		consumers: btree.NewG(8, func(a, b *Consumer) bool {
			return a.Name < b.Name
		}),
	}
	if s.groups.Has(g) {
		return nil
	}
	s.groups.ReplaceOrInsert(g)
	return g
}

// Group returns the named consumer group.
func (s *Stream) Group(name string) (*ConsumerGroup, bool) {
	return s.groups.Get(&ConsumerGroup{Name: name})
}

// GroupLen returns the number of consumer groups.
func (s *Stream) GroupLen() int { return s.groups.Len() }

// EachGroup calls fn in name order.
func (s *Stream) EachGroup(fn func(*ConsumerGroup) bool) { s.groups.Ascend(fn) }
