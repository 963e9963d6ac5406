package object

import (
	"bytes"
	"math"
	"reflect"
)

// Equal reports whether a and b hold the same logical value, regardless
// of encoding. Access metadata is ignored.
func Equal(a, b *Object) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeString:
		return bytes.Equal(a.StringBytes(), b.StringBytes())
	case TypeList:
		return listEqual(a.Quicklist(), b.Quicklist())
	case TypeSet:
		return setEqual(a, b)
	case TypeZSet:
		return zsetEqual(a, b)
	case TypeHash:
		return hashEqual(a, b)
	case TypeStream:
		return streamEqual(a.Stream(), b.Stream())
	case TypeModule:
		ma, mb := a.Module(), b.Module()
		return ma.Type == mb.Type && reflect.DeepEqual(ma.Data, mb.Data)
	}
	return false
}

func listEqual(a, b *Quicklist) bool {
	if a.Len() != b.Len() {
		return false
	}
	var av [][]byte
	if a.Each(func(v []byte) bool {
		av = append(av, append([]byte(nil), v...))
		return true
	}) != nil {
		return false
	}
	i, eq := 0, true
	if b.Each(func(v []byte) bool {
		eq = bytes.Equal(av[i], v)
		i++
		return eq
	}) != nil {
		return false
	}
	return eq
}

func setEqual(a, b *Object) bool {
	if a.SetLen() != b.SetLen() {
		return false
	}
	eq := true
	a.SetEach(func(m []byte) bool {
		eq = b.SetIsMember(m)
		return eq
	})
	return eq
}

func zsetEqual(a, b *Object) bool {
	if a.ZSetLen() != b.ZSetLen() {
		return false
	}
	var ai, bi []ZItem
	collect := func(dst *[]ZItem) func(ZItem) bool {
		return func(it ZItem) bool {
			*dst = append(*dst, it)
			return true
		}
	}
	if a.ZSetEach(collect(&ai)) != nil || b.ZSetEach(collect(&bi)) != nil {
		return false
	}
	for i := range ai {
		if ai[i].Member != bi[i].Member {
			return false
		}
		if math.Float64bits(ai[i].Score) != math.Float64bits(bi[i].Score) && ai[i].Score != bi[i].Score {
			return false
		}
	}
	return true
}

func hashEqual(a, b *Object) bool {
	if a.HashLen() != b.HashLen() {
		return false
	}
	eq := true
	err := a.HashEach(func(f, v []byte) bool {
		got, ok := b.HashGet(f)
		eq = ok && bytes.Equal(got, v)
		return eq
	})
	return err == nil && eq
}

func streamEqual(a, b *Stream) bool {
	if a.Length != b.Length || a.LastID != b.LastID {
		return false
	}
	if a.NodeLen() != b.NodeLen() || a.GroupLen() != b.GroupLen() {
		return false
	}
	var an []StreamNode
	a.EachNode(func(n StreamNode) bool {
		an = append(an, n)
		return true
	})
	i, eq := 0, true
	b.EachNode(func(n StreamNode) bool {
		eq = n.Key == an[i].Key && bytes.Equal(n.Listpack, an[i].Listpack)
		i++
		return eq
	})
	if !eq {
		return false
	}
	a.EachGroup(func(ga *ConsumerGroup) bool {
		gb, ok := b.Group(ga.Name)
		eq = ok && groupEqual(ga, gb)
		return eq
	})
	return eq
}

func groupEqual(a, b *ConsumerGroup) bool {
	if a.LastID != b.LastID || a.PendingLen() != b.PendingLen() || a.ConsumerLen() != b.ConsumerLen() {
		return false
	}
	eq := true
	a.EachPending(func(pa *PendingEntry) bool {
		pb, ok := b.Pending(pa.ID)
		eq = ok && pa.DeliveryTime == pb.DeliveryTime && pa.DeliveryCount == pb.DeliveryCount &&
			consumerName(pa.Consumer) == consumerName(pb.Consumer)
		return eq
	})
	if !eq {
		return false
	}
	a.EachConsumer(func(ca *Consumer) bool {
		cb := b.Consumer(ca.Name, false)
		eq = cb != nil && ca.SeenTime == cb.SeenTime && ca.PendingLen() == cb.PendingLen()
		return eq
	})
	return eq
}

func consumerName(c *Consumer) string {
	if c == nil {
		return ""
	}
	return c.Name
}
