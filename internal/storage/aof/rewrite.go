// Package aof writes a keyspace as a stream of commands in the append-only
// file format, the form snapshot contents take when replayed by a server.
package aof

import (
	"io"
	"time"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/encoding/strint"
	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/object"
	"github.com/yndnr/memkv/pkg/rio"
)

// ItemsPerCommand bounds the members emitted by a single variadic command.
const ItemsPerCommand = 64

// Stats summarises a rewrite.
type Stats struct {
	Databases int            `json:"databases"`
	Keys      int            `json:"keys"`
	Expired   int            `json:"expired"`
	Skipped   map[string]int `json:"skipped,omitempty"`
	Bytes     int64          `json:"bytes"`
}

// Options tune a rewrite.
type Options struct {
	// Now decides which keys have already expired. Defaults to time.Now.
	Now func() time.Time

	// KeepExpired emits keys whose expiry already passed.
	KeepExpired bool
}

type rewriter struct {
	s     *rio.Stream
	now   int64
	keep  bool
	stats Stats
}

// Rewrite writes every key of ks to w. Streams and module values have no
// command form here and are counted in Stats.Skipped.
func Rewrite(w io.Writer, ks *keyspace.Keyspace, opts Options) (*Stats, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &rewriter{
		s:     rio.New(rio.NewFanOut(w)),
		now:   opts.Now().UnixMilli(),
		keep:  opts.KeepExpired,
		stats: Stats{Skipped: make(map[string]int)},
	}
	for id := 0; id < ks.Len(); id++ {
		if err := r.db(ks.DB(id)); err != nil {
			return &r.stats, err
		}
	}
	if err := r.s.Flush(); err != nil {
		return &r.stats, domain.ErrIO.Wrap(err)
	}
	r.stats.Bytes = r.s.Processed()
	return &r.stats, nil
}

func (r *rewriter) db(db *keyspace.DB) error {
	if db.Len() == 0 {
		return nil
	}
	r.stats.Databases++
	if err := r.command("SELECT", intArg(int64(db.ID))); err != nil {
		return err
	}

	it := db.Dict.SafeIterator()
	defer it.Release()
	for ent := it.Next(); ent != nil; ent = it.Next() {
		key := ent.Key()
		expire := db.Expire(key)
		if expire != keyspace.NoExpire && expire <= r.now && !r.keep {
			r.stats.Expired++
			continue
		}
		emitted, err := r.value([]byte(key), ent.Val())
		if err != nil {
			return err
		}
		if !emitted {
			continue
		}
		r.stats.Keys++
		if expire != keyspace.NoExpire {
			if err := r.command("PEXPIREAT", []byte(key), intArg(expire)); err != nil {
				return err
			}
		}
	}
	return nil
}

// value emits the commands that rebuild o under key.
func (r *rewriter) value(key []byte, o *object.Object) (bool, error) {
	switch o.Type() {
	case object.TypeString:
		return true, r.command("SET", key, o.StringBytes())

	case object.TypeList:
		b := r.batch("RPUSH", key, 1)
		if err := o.Quicklist().Each(func(v []byte) bool { return b.add(v) }); err != nil {
			return false, domain.ErrCorruptSnapshot.Wrap(err)
		}
		return true, b.flush()

	case object.TypeSet:
		b := r.batch("SADD", key, 1)
		o.SetEach(func(m []byte) bool { return b.add(m) })
		return true, b.flush()

	case object.TypeZSet:
		b := r.batch("ZADD", key, 2)
		err := o.ZSetEach(func(it object.ZItem) bool {
			return b.add(object.FormatScore(it.Score), []byte(it.Member))
		})
		if err != nil {
			return false, domain.ErrCorruptSnapshot.Wrap(err)
		}
		return true, b.flush()

	case object.TypeHash:
		b := r.batch("HSET", key, 2)
		if err := o.HashEach(func(f, v []byte) bool { return b.add(f, v) }); err != nil {
			return false, domain.ErrCorruptSnapshot.Wrap(err)
		}
		return true, b.flush()
	}

	r.stats.Skipped[o.Type().String()]++
	return false, nil
}

// command writes one RESP array: name followed by args.
func (r *rewriter) command(name string, args ...[]byte) error {
	if _, err := rio.WriteBulkCount(r.s, '*', int64(1+len(args))); err != nil {
		return domain.ErrIO.Wrap(err)
	}
	if _, err := rio.WriteBulkString(r.s, []byte(name)); err != nil {
		return domain.ErrIO.Wrap(err)
	}
	for _, a := range args {
		if _, err := rio.WriteBulkString(r.s, a); err != nil {
			return domain.ErrIO.Wrap(err)
		}
	}
	return nil
}

// batch accumulates the members of one key into commands of at most
// ItemsPerCommand members each.
type batch struct {
	r     *rewriter
	name  string
	key   []byte
	width int
	args  [][]byte
	err   error
}

func (r *rewriter) batch(name string, key []byte, width int) *batch {
	return &batch{r: r, name: name, key: key, width: width}
}

func (b *batch) add(item ...[]byte) bool {
	b.args = append(b.args, item...)
	if len(b.args)/b.width >= ItemsPerCommand {
		b.err = b.flush()
	}
	return b.err == nil
}

func (b *batch) flush() error {
	if b.err != nil || len(b.args) == 0 {
		return b.err
	}
	args := append([][]byte{b.key}, b.args...)
	b.args = b.args[:0]
	return b.r.command(b.name, args...)
}

func intArg(n int64) []byte {
	return strint.Format(n)
}
