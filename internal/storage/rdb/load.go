package rdb

import (
	"fmt"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/encoding/intset"
	"github.com/yndnr/memkv/internal/encoding/listpack"
	"github.com/yndnr/memkv/internal/encoding/strint"
	"github.com/yndnr/memkv/internal/encoding/ziplist"
	"github.com/yndnr/memkv/internal/encoding/zipmap"
	"github.com/yndnr/memkv/internal/module"
	"github.com/yndnr/memkv/internal/object"
)

// sizeHint clamps a length read from the stream before it is used to
// presize a table.
func (d *Decoder) sizeHint(n uint64) int {
	if n > d.cfg.MaxResizeHint {
		n = d.cfg.MaxResizeHint
	}
	return int(n)
}

// loadValue decodes the payload of a value of on-disk type t. A nil
// object with a nil error means check mode skipped the value.
func (d *Decoder) loadValue(t byte, key []byte) (*object.Object, error) {
	switch t {
	case TypeString:
		s, err := d.r.readString()
		if err != nil {
			return nil, err
		}
		return object.NewStringAuto(s), nil
	case TypeList:
		return d.loadList()
	case TypeSet:
		return d.loadSet()
	case TypeZSet, TypeZSet2:
		return d.loadZSet(t)
	case TypeHash:
		return d.loadHash()
	case TypeListQuicklist:
		return d.loadQuicklist()
	case TypeHashZipmap, TypeListZiplist, TypeSetIntset, TypeZSetZiplist, TypeHashZiplist:
		return d.loadBlob(t)
	case TypeStreamListpacks:
		return d.loadStream()
	case TypeModule, TypeModule2:
		return d.loadModule(t)
	default:
		return nil, d.r.corrupt(fmt.Sprintf("unknown value type %d for key %q", t, truncate(key)), nil)
	}
}

func (d *Decoder) loadList() (*object.Object, error) {
	n, err := d.r.readPlainLen()
	if err != nil {
		return nil, err
	}
	o := object.NewList(d.cfg.Thresholds)
	q := o.Quicklist()
	for ; n > 0; n-- {
		v, err := d.r.readString()
		if err != nil {
			return nil, err
		}
		q.PushTail(v)
	}
	return o, nil
}

// loadSet decodes a plain set. Sets small enough for an intset are read
// in full first so the encoding is decided once and a hash table receives
// members in saved order.
func (d *Decoder) loadSet() (*object.Object, error) {
	n, err := d.r.readPlainLen()
	if err != nil {
		return nil, err
	}
	t := d.cfg.Thresholds

	if n > uint64(t.SetMaxIntsetEntries) {
		o := object.NewSetHT(d.sizeHint(n))
		for ; n > 0; n-- {
			m, err := d.r.readString()
			if err != nil {
				return nil, err
			}
			if !o.SetAddRaw(string(m)) {
				return nil, d.r.corrupt("duplicate set member", nil)
			}
		}
		return o, nil
	}

	members := make([][]byte, 0, n)
	ints := true
	for ; n > 0; n-- {
		m, err := d.r.readString()
		if err != nil {
			return nil, err
		}
		if ints {
			_, ints = strint.Parse(m)
		}
		members = append(members, m)
	}

	if ints {
		o := object.NewSetIntset()
		for _, m := range members {
			if !o.SetAdd(m, t) {
				return nil, d.r.corrupt("duplicate set member", nil)
			}
		}
		return o, nil
	}
	o := object.NewSetHT(len(members))
	for _, m := range members {
		if !o.SetAddRaw(string(m)) {
			return nil, d.r.corrupt("duplicate set member", nil)
		}
	}
	return o, nil
}

func (d *Decoder) loadZSet(t byte) (*object.Object, error) {
	n, err := d.r.readPlainLen()
	if err != nil {
		return nil, err
	}
	o := object.NewZSetSkiplist(d.sizeHint(n))
	z := o.ZSet()
	maxLen := 0
	for ; n > 0; n-- {
		m, err := d.r.readString()
		if err != nil {
			return nil, err
		}
		var score float64
		if t == TypeZSet2 {
			score, err = d.r.readBinaryDouble()
		} else {
			score, err = d.r.readLegacyDouble()
		}
		if err != nil {
			return nil, err
		}
		if len(m) > maxLen {
			maxLen = len(m)
		}
		if !z.Add(string(m), score) {
			return nil, d.r.corrupt("duplicate sorted set member", nil)
		}
	}
	th := d.cfg.Thresholds
	if z.Len() <= th.ZSetMaxZiplistEntries && maxLen <= th.ZSetMaxZiplistValue {
		o.ZSetToZiplist()
	}
	return o, nil
}

// loadHash decodes a plain hash. As with sets, small hashes are read in
// full before the encoding is chosen.
func (d *Decoder) loadHash() (*object.Object, error) {
	n, err := d.r.readPlainLen()
	if err != nil {
		return nil, err
	}
	t := d.cfg.Thresholds

	if n > uint64(t.HashMaxZiplistEntries) {
		o := object.NewHashHT(d.sizeHint(n))
		for ; n > 0; n-- {
			f, v, err := d.readPair()
			if err != nil {
				return nil, err
			}
			if err := o.HashAddRaw(string(f), string(v)); err != nil {
				return nil, d.r.corrupt("duplicate hash field", err)
			}
		}
		return o, nil
	}

	pairs := make([][2][]byte, 0, n)
	compact := true
	for ; n > 0; n-- {
		f, v, err := d.readPair()
		if err != nil {
			return nil, err
		}
		if len(f) > t.HashMaxZiplistValue || len(v) > t.HashMaxZiplistValue {
			compact = false
		}
		pairs = append(pairs, [2][]byte{f, v})
	}

	if compact {
		seen := make(map[string]struct{}, len(pairs))
		o := object.NewHashZiplist(ziplist.New())
		for _, p := range pairs {
			if _, dup := seen[string(p[0])]; dup {
				return nil, d.r.corrupt("duplicate hash field", object.ErrDuplicateField)
			}
			seen[string(p[0])] = struct{}{}
			o.HashZiplistPush(p[0], p[1])
		}
		return o, nil
	}
	o := object.NewHashHT(len(pairs))
	for _, p := range pairs {
		if err := o.HashAddRaw(string(p[0]), string(p[1])); err != nil {
			return nil, d.r.corrupt("duplicate hash field", err)
		}
	}
	return o, nil
}

func (d *Decoder) readPair() (field, value []byte, err error) {
	if field, err = d.r.readString(); err != nil {
		return nil, nil, err
	}
	if value, err = d.r.readString(); err != nil {
		return nil, nil, err
	}
	return field, value, nil
}

func (d *Decoder) loadQuicklist() (*object.Object, error) {
	n, err := d.r.readPlainLen()
	if err != nil {
		return nil, err
	}
	o := object.NewList(d.cfg.Thresholds)
	q := o.Quicklist()
	for ; n > 0; n-- {
		zl, err := d.r.readString()
		if err != nil {
			return nil, err
		}
		if err := ziplist.Validate(zl); err != nil {
			return nil, d.r.corrupt("invalid list node", err)
		}
		if ziplist.Len(zl) == 0 {
			continue
		}
		q.AppendZiplist(zl)
	}
	return o, nil
}

// loadBlob decodes the single string compact encodings and converts them
// when they exceed the configured thresholds.
func (d *Decoder) loadBlob(t byte) (*object.Object, error) {
	blob, err := d.r.readString()
	if err != nil {
		return nil, err
	}
	th := d.cfg.Thresholds

	switch t {
	case TypeHashZipmap:
		if err := zipmap.Validate(blob); err != nil {
			return nil, d.r.corrupt("invalid zipmap", err)
		}
		zl := ziplist.New()
		count, maxLen := 0, 0
		_ = zipmap.Each(blob, func(k, v []byte) bool {
			zl = ziplist.Push(zl, k)
			zl = ziplist.Push(zl, v)
			count++
			maxLen = max(maxLen, len(k), len(v))
			return true
		})
		o := object.NewHashZiplist(zl)
		if count > th.HashMaxZiplistEntries || maxLen > th.HashMaxZiplistValue {
			if err := o.HashConvert(0); err != nil {
				return nil, d.r.corrupt("invalid zipmap", err)
			}
		}
		return o, nil

	case TypeListZiplist:
		if err := ziplist.Validate(blob); err != nil {
			return nil, d.r.corrupt("invalid list ziplist", err)
		}
		q, err := object.QuicklistFromZiplist(blob, th.ListMaxZiplistSize, th.ListCompressDepth)
		if err != nil {
			return nil, d.r.corrupt("invalid list ziplist", err)
		}
		return object.NewListFrom(q), nil

	case TypeSetIntset:
		if err := intset.Validate(blob); err != nil {
			return nil, d.r.corrupt("invalid intset", err)
		}
		o := object.NewSetIntsetFrom(blob)
		if o.SetLen() > th.SetMaxIntsetEntries {
			o.SetConvert(0)
		}
		return o, nil

	case TypeZSetZiplist:
		if err := d.validatePairs(blob, "sorted set"); err != nil {
			return nil, err
		}
		o := object.NewZSetZiplist(blob)
		if o.ZSetLen() > th.ZSetMaxZiplistEntries {
			if err := o.ZSetToSkiplist(); err != nil {
				return nil, d.r.corrupt("invalid sorted set ziplist", err)
			}
		}
		return o, nil

	default:
		if err := d.validatePairs(blob, "hash"); err != nil {
			return nil, err
		}
		o := object.NewHashZiplist(blob)
		if o.HashLen() > th.HashMaxZiplistEntries {
			if err := o.HashConvert(0); err != nil {
				return nil, d.r.corrupt("invalid hash ziplist", err)
			}
		}
		return o, nil
	}
}

func (d *Decoder) validatePairs(zl []byte, what string) error {
	if err := ziplist.Validate(zl); err != nil {
		return d.r.corrupt("invalid "+what+" ziplist", err)
	}
	if ziplist.Len(zl)%2 != 0 {
		return d.r.corrupt(what+" ziplist holds an odd number of entries", nil)
	}
	return nil
}

func (d *Decoder) readStreamID() (object.StreamID, error) {
	raw, err := d.r.readBytes(object.StreamIDSize)
	if err != nil {
		return object.StreamID{}, err
	}
	return object.ParseStreamID(raw)
}

func (d *Decoder) readStreamIDLens() (object.StreamID, error) {
	ms, err := d.r.readPlainLen()
	if err != nil {
		return object.StreamID{}, err
	}
	seq, err := d.r.readPlainLen()
	if err != nil {
		return object.StreamID{}, err
	}
	return object.StreamID{Ms: ms, Seq: seq}, nil
}

func (d *Decoder) loadStream() (*object.Object, error) {
	o := object.NewStream()
	s := o.Stream()

	nodes, err := d.r.readPlainLen()
	if err != nil {
		return nil, err
	}
	for ; nodes > 0; nodes-- {
		rawKey, err := d.r.readString()
		if err != nil {
			return nil, err
		}
		if len(rawKey) != object.StreamIDSize {
			return nil, d.r.corrupt("stream node key is not the size of a stream ID", nil)
		}
		key, _ := object.ParseStreamID(rawKey)
		lp, err := d.r.readString()
		if err != nil {
			return nil, err
		}
		if err := listpack.Validate(lp); err != nil {
			return nil, d.r.corrupt("invalid stream listpack", err)
		}
		if _, err := listpack.First(lp); err != nil {
			return nil, d.r.corrupt("empty listpack inside stream", nil)
		}
		if !s.InsertNode(key, lp) {
			return nil, d.r.corrupt("stream listpack re-added with existing key", nil)
		}
	}

	if s.Length, err = d.r.readPlainLen(); err != nil {
		return nil, err
	}
	if s.LastID, err = d.readStreamIDLens(); err != nil {
		return nil, err
	}

	groups, err := d.r.readPlainLen()
	if err != nil {
		return nil, err
	}
	for ; groups > 0; groups-- {
		name, err := d.r.readString()
		if err != nil {
			return nil, err
		}
		lastID, err := d.readStreamIDLens()
		if err != nil {
			return nil, err
		}
		g := s.CreateGroup(string(name), lastID)
		if g == nil {
			return nil, d.r.corrupt(fmt.Sprintf("duplicated consumer group name %q", truncate(name)), nil)
		}
		if err := d.loadGroupPEL(g); err != nil {
			return nil, err
		}
		if err := d.loadConsumers(g); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (d *Decoder) loadGroupPEL(g *object.ConsumerGroup) error {
	n, err := d.r.readPlainLen()
	if err != nil {
		return err
	}
	for ; n > 0; n-- {
		id, err := d.readStreamID()
		if err != nil {
			return err
		}
		when, err := d.r.readMillis()
		if err != nil {
			return err
		}
		count, err := d.r.readPlainLen()
		if err != nil {
			return err
		}
		if _, ok := g.AddPending(id, when, count); !ok {
			return d.r.corrupt("duplicated global PEL entry "+id.String(), nil)
		}
	}
	return nil
}

// loadConsumers reads the consumers of g. Their pending lists hold IDs
// only; each must already be in the group pending list, which supplies
// the delivery metadata and learns its owner.
func (d *Decoder) loadConsumers(g *object.ConsumerGroup) error {
	n, err := d.r.readPlainLen()
	if err != nil {
		return err
	}
	for ; n > 0; n-- {
		name, err := d.r.readString()
		if err != nil {
			return err
		}
		c := g.Consumer(string(name), true)
		if c.SeenTime, err = d.r.readMillis(); err != nil {
			return err
		}
		pending, err := d.r.readPlainLen()
		if err != nil {
			return err
		}
		for ; pending > 0; pending-- {
			id, err := d.readStreamID()
			if err != nil {
				return err
			}
			pe, ok := g.Pending(id)
			if !ok {
				return d.r.corrupt("consumer PEL entry "+id.String()+" not found in group PEL", nil)
			}
			if !c.AddPending(pe) {
				return d.r.corrupt("duplicated consumer PEL entry "+id.String(), nil)
			}
		}
	}
	return nil
}

func (d *Decoder) lookupModule(id uint64) (*module.Type, bool) {
	if d.cfg.Registry == nil {
		return nil, false
	}
	return d.cfg.Registry.Lookup(id)
}

func moduleName(id uint64) string { return module.NameFromID(id) }

func (d *Decoder) loadModule(t byte) (*object.Object, error) {
	id, err := d.r.readPlainLen()
	if err != nil {
		return nil, err
	}
	mt, ok := d.lookupModule(id)
	if !ok {
		err := domain.ErrUnknownModuleType.WithDetailsf("no matching module type %q", moduleName(id))
		if d.check && t == TypeModule2 {
			d.report.Errors = append(d.report.Errors, err)
			return nil, d.r.skipModuleValue()
		}
		return nil, err
	}

	mr := &moduleReader{r: d.r, framed: t == TypeModule2}
	data, err := mt.Load(mr, module.EncVerFromID(id))
	if err == nil {
		err = mr.err
	}
	if err != nil {
		if IsCorruption(err) || domain.IsDomainError(err, "") {
			return nil, err
		}
		return nil, d.r.corrupt(fmt.Sprintf("module type %q failed to load value", mt.Name), err)
	}
	if t == TypeModule2 {
		eof, err := d.r.readPlainLen()
		if err != nil {
			return nil, err
		}
		if eof != moduleOpEOF {
			return nil, d.r.corrupt(fmt.Sprintf("value of module type %q is not terminated by the end marker", mt.Name), nil)
		}
	}
	return object.NewModule(&module.Value{Type: mt, Data: data}), nil
}
