package rdb

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/object"
	"github.com/yndnr/memkv/pkg/rio"
)

// Encoder writes snapshots to a stream.
type Encoder struct {
	cfg Config
	s   *rio.Stream
	w   *writer

	// codec compresses strings; nil when compression is off.
	codec Codec
}

// NewEncoder returns an encoder writing to s.
func NewEncoder(s *rio.Stream, cfg Config) *Encoder {
	cfg.setDefaults()
	if cfg.MaxChunk > 0 {
		s.SetMaxChunk(cfg.MaxChunk)
	}
	e := &Encoder{cfg: cfg, s: s, w: newWriter(s)}
	if cfg.Compression {
		e.codec = cfg.Codec
	}
	return e
}

// Save writes a full snapshot of ks to s. info may be nil.
func Save(s *rio.Stream, ks *keyspace.Keyspace, info *SaveInfo, cfg Config) error {
	return NewEncoder(s, cfg).Save(ks, info)
}

// Save writes the header, aux fields, every non-empty database and the
// checksum trailer, then flushes the stream.
func (e *Encoder) Save(ks *keyspace.Keyspace, info *SaveInfo) error {
	if e.cfg.Checksum {
		e.s.SetChecksumHook(rio.GenericChecksum)
	}
	e.w.write([]byte(fmt.Sprintf("%s%04d", magic, Version)))
	e.saveAuxFields(info)

	for id := 0; id < ks.Len(); id++ {
		if err := e.saveDB(ks.DB(id)); err != nil {
			return err
		}
	}

	e.w.writeByte(OpEOF)
	var cksum uint64
	if e.cfg.Checksum {
		cksum = e.s.Checksum()
	}
	var trailer [8]byte
	binary.LittleEndian.PutUint64(trailer[:], cksum)
	e.w.write(trailer[:])
	if e.w.err != nil {
		return e.w.err
	}
	if err := e.s.Flush(); err != nil {
		return domain.ErrIO.Wrap(err)
	}
	return nil
}

// SaveWithEOFMark wraps a snapshot in a random delimiter so a receiver can
// detect its end without a length prefix:
//
//	$EOF:<40 hex chars>\r\n <snapshot> <same 40 hex chars>
func (e *Encoder) SaveWithEOFMark(ks *keyspace.Keyspace, info *SaveInfo) error {
	mark, err := newEOFMark()
	if err != nil {
		return err
	}
	e.w.write([]byte("$EOF:" + mark + "\r\n"))
	if err := e.Save(ks, info); err != nil {
		return err
	}
	e.w.write([]byte(mark))
	if e.w.err != nil {
		return e.w.err
	}
	if err := e.s.Flush(); err != nil {
		return domain.ErrIO.Wrap(err)
	}
	return nil
}

func newEOFMark() (string, error) {
	var raw [eofMarkSize / 2]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", domain.ErrInternal.Wrap(err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// saveAux writes an aux field. Aux fields are read before the codec field
// takes effect, so they only ever use LZF.
func (e *Encoder) saveAux(key, value string) {
	var codec Codec
	if e.codec != nil {
		codec = LZF
	}
	e.w.writeByte(OpAux)
	e.w.writeString([]byte(key), codec)
	e.w.writeString([]byte(value), codec)
}

func (e *Encoder) saveAuxInt(key string, value int64) {
	e.saveAux(key, strconv.FormatInt(value, 10))
}

func (e *Encoder) saveAuxFields(info *SaveInfo) {
	e.saveAux("redis-ver", e.cfg.ServerVersion)
	e.saveAuxInt("redis-bits", strconv.IntSize)
	e.saveAuxInt("ctime", e.cfg.Now().Unix())
	e.saveAuxInt("used-mem", e.cfg.UsedMemory())
	if info != nil {
		e.saveAuxInt("repl-stream-db", int64(info.ReplStreamDB))
		e.saveAux("repl-id", info.ReplID)
		e.saveAuxInt("repl-offset", info.ReplOffset)
	}
	aof := int64(0)
	if e.cfg.AOFPreamble {
		aof = 1
	}
	e.saveAuxInt("aof-preamble", aof)
	if e.codec != nil && e.codec.Name() != CodecLZF {
		e.saveAux(auxCodec, e.codec.Name())
	}
}

// auxCodec names the string codec when it is not LZF.
const auxCodec = "memkv-codec"

func (e *Encoder) saveDB(db *keyspace.DB) error {
	if db.Len() == 0 {
		return nil
	}
	e.w.writeByte(OpSelectDB)
	e.w.writeLen(uint64(db.ID))
	e.w.writeByte(OpResizeDB)
	e.w.writeLen(uint64(db.Dict.Len()))
	e.w.writeLen(uint64(db.Expires.Len()))

	it := db.Dict.SafeIterator()
	defer it.Release()
	for ent := it.Next(); ent != nil; ent = it.Next() {
		key := ent.Key()
		if err := e.saveKeyValue(key, ent.Val(), db.Expire(key)); err != nil {
			return err
		}
	}
	return e.w.err
}

func (e *Encoder) saveKeyValue(key string, o *object.Object, expire int64) error {
	if expire != keyspace.NoExpire {
		e.w.writeByte(OpExpireTimeMs)
		e.w.writeMillis(expire)
	}
	switch {
	case e.cfg.Policy.IsLRU():
		idle := o.IdleTime(e.cfg.Now())
		e.w.writeByte(OpIdle)
		e.w.writeLen(uint64(idle.Seconds()))
	case e.cfg.Policy.IsLFU():
		e.w.writeByte(OpFreq)
		e.w.writeByte(o.LFUCounter(e.cfg.Now()))
	}
	if err := e.SaveObject([]byte(key), o); err != nil {
		return err
	}
	return e.w.err
}

// SaveObject writes the type byte, key and payload of o.
func (e *Encoder) SaveObject(key []byte, o *object.Object) error {
	t, err := objectType(o)
	if err != nil {
		return err
	}
	e.w.writeByte(t)
	e.w.writeString(key, e.codec)
	if err := e.saveValue(o); err != nil {
		return err
	}
	return e.w.err
}

func objectType(o *object.Object) (byte, error) {
	enc := o.Encoding()
	switch o.Type() {
	case object.TypeString:
		return TypeString, nil
	case object.TypeList:
		if enc == object.EncQuicklist {
			return TypeListQuicklist, nil
		}
	case object.TypeSet:
		switch enc {
		case object.EncIntset:
			return TypeSetIntset, nil
		case object.EncHT:
			return TypeSet, nil
		}
	case object.TypeZSet:
		switch enc {
		case object.EncZiplist:
			return TypeZSetZiplist, nil
		case object.EncSkiplist:
			return TypeZSet2, nil
		}
	case object.TypeHash:
		switch enc {
		case object.EncZiplist:
			return TypeHashZiplist, nil
		case object.EncHT:
			return TypeHash, nil
		}
	case object.TypeStream:
		return TypeStreamListpacks, nil
	case object.TypeModule:
		return TypeModule2, nil
	}
	return 0, domain.ErrInternal.WithDetailsf("unknown %s encoding %s", o.Type(), enc)
}

// passThroughLZF reports whether compressed list nodes may be copied as
// they are: the loader decompresses them with the codec named in the aux
// fields, which must then be LZF.
func (e *Encoder) passThroughLZF() bool {
	return e.codec == nil || e.codec.Name() == CodecLZF
}

func (e *Encoder) saveValue(o *object.Object) error {
	switch o.Type() {
	case object.TypeString:
		if n, ok := o.StringInt(); ok {
			e.w.writeInt(n, e.codec)
		} else {
			e.w.writeString(o.StringBytes(), e.codec)
		}

	case object.TypeList:
		nodes := o.Quicklist().Nodes()
		e.w.writeLen(uint64(len(nodes)))
		for _, n := range nodes {
			if data, ok := n.Compressed(); ok && e.passThroughLZF() {
				e.w.writeCompressed(data, n.Size())
				continue
			}
			zl, err := n.Ziplist()
			if err != nil {
				return domain.ErrInternal.Wrap(err)
			}
			e.w.writeString(zl, e.codec)
		}

	case object.TypeSet:
		if o.Encoding() == object.EncIntset {
			e.w.writeString(o.Blob(), e.codec)
			break
		}
		e.w.writeLen(uint64(o.SetLen()))
		o.SetEach(func(member []byte) bool {
			e.w.writeString(member, e.codec)
			return e.w.err == nil
		})

	case object.TypeZSet:
		if o.Encoding() == object.EncZiplist {
			e.w.writeString(o.Blob(), e.codec)
			break
		}
		z := o.ZSet()
		e.w.writeLen(uint64(z.Len()))
		// Highest score first, so loading inserts at the head of the
		// sorted structure.
		z.Descend(func(it object.ZItem) bool {
			e.w.writeString([]byte(it.Member), e.codec)
			e.w.writeBinaryDouble(it.Score)
			return e.w.err == nil
		})

	case object.TypeHash:
		if o.Encoding() == object.EncZiplist {
			e.w.writeString(o.Blob(), e.codec)
			break
		}
		e.w.writeLen(uint64(o.HashLen()))
		return o.HashEach(func(field, value []byte) bool {
			e.w.writeString(field, e.codec)
			e.w.writeString(value, e.codec)
			return e.w.err == nil
		})

	case object.TypeStream:
		e.saveStream(o.Stream())

	case object.TypeModule:
		v := o.Module()
		if v.Type == nil || v.Type.ID() == 0 {
			return domain.ErrInternal.WithDetails("module value of an unregistered type")
		}
		e.w.writeLen(v.Type.ID())
		v.Type.Save(&moduleWriter{w: e.w, codec: e.codec}, v.Data)
		e.w.writeLen(moduleOpEOF)
	}
	return e.w.err
}

func (e *Encoder) saveStream(s *object.Stream) {
	e.w.writeLen(uint64(s.NodeLen()))
	s.EachNode(func(n object.StreamNode) bool {
		e.w.writeString(n.Key.Bytes(), e.codec)
		e.w.writeString(n.Listpack, e.codec)
		return e.w.err == nil
	})

	e.w.writeLen(s.Length)
	e.w.writeLen(s.LastID.Ms)
	e.w.writeLen(s.LastID.Seq)

	e.w.writeLen(uint64(s.GroupLen()))
	s.EachGroup(func(g *object.ConsumerGroup) bool {
		e.w.writeString([]byte(g.Name), e.codec)
		e.w.writeLen(g.LastID.Ms)
		e.w.writeLen(g.LastID.Seq)

		// Group PEL with delivery metadata. Owners are not written; the
		// consumer PELs below resolve them on load.
		e.w.writeLen(uint64(g.PendingLen()))
		g.EachPending(func(pe *object.PendingEntry) bool {
			e.w.write(pe.ID.Bytes())
			e.w.writeMillis(pe.DeliveryTime)
			e.w.writeLen(pe.DeliveryCount)
			return e.w.err == nil
		})

		e.w.writeLen(uint64(g.ConsumerLen()))
		g.EachConsumer(func(c *object.Consumer) bool {
			e.w.writeString([]byte(c.Name), e.codec)
			e.w.writeMillis(c.SeenTime)
			e.w.writeLen(uint64(c.PendingLen()))
			c.EachPending(func(pe *object.PendingEntry) bool {
				e.w.write(pe.ID.Bytes())
				return e.w.err == nil
			})
			return e.w.err == nil
		})
		return e.w.err == nil
	})
}
