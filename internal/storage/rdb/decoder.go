package rdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/pkg/rio"
)

// Report summarizes a load.
type Report struct {
	Version int
	Aux     map[string]string

	// Keys counts decoded keys, Loaded those inserted into the keyspace.
	Keys           int
	Loaded         int
	Expires        int
	ExpiredSkipped int
	ModuleAux      int

	// Types counts decoded values by their on-disk type.
	Types map[string]int

	// Checksum is the trailer value; zero when the file has none or was
	// saved with checksums disabled.
	Checksum uint64

	// Errors lists the problems a check mode load recovered from.
	Errors Errors
}

// Decoder reads snapshots from a stream.
type Decoder struct {
	cfg Config
	s   *rio.Stream
	r   *reader

	check    bool
	report   Report
	progress int64
	logEvery rate.Sometimes
}

// NewDecoder returns a decoder reading from s.
func NewDecoder(s *rio.Stream, cfg Config) *Decoder {
	cfg.setDefaults()
	if cfg.MaxChunk > 0 {
		s.SetMaxChunk(cfg.MaxChunk)
	}
	return &Decoder{
		cfg:      cfg,
		s:        s,
		r:        newReader(s, LZF),
		logEvery: rate.Sometimes{Interval: time.Second},
		report: Report{
			Aux:   make(map[string]string),
			Types: make(map[string]int),
		},
	}
}

// Load reads a snapshot from s into ks. info receives the replication
// metadata found in aux fields and may be nil.
func Load(s *rio.Stream, ks *keyspace.Keyspace, info *SaveInfo, cfg Config) error {
	return NewDecoder(s, cfg).Load(ks, info)
}

// Load reads a snapshot into ks. It stops at the first problem.
func (d *Decoder) Load(ks *keyspace.Keyspace, info *SaveInfo) error {
	d.check = false
	return d.run(ks, info)
}

// Check reads a snapshot into ks, recording the problems it can step over
// (checksum mismatch, duplicate keys, values of unknown module types,
// module aux data) and stopping at the first structural one. The returned
// report lists every problem found.
func (d *Decoder) Check(ks *keyspace.Keyspace) *Report {
	d.check = true
	if err := d.run(ks, nil); err != nil {
		d.report.Errors = append(d.report.Errors, err)
	}
	return &d.report
}

// Report returns the statistics gathered so far.
func (d *Decoder) Report() *Report { return &d.report }

// recoverable returns err in normal mode. In check mode it records err and
// returns nil so decoding continues.
func (d *Decoder) recoverable(err error) error {
	if !d.check {
		return err
	}
	d.report.Errors = append(d.report.Errors, err)
	return nil
}

func (d *Decoder) onRead(s *rio.Stream, p []byte) {
	if d.cfg.Checksum {
		rio.GenericChecksum(s, p)
	}
	processed := s.Processed() + int64(len(p))
	if processed-d.progress < d.cfg.ProgressInterval {
		return
	}
	d.progress = processed
	if d.cfg.Progress != nil {
		d.cfg.Progress(processed)
	}
	d.logEvery.Do(func() {
		d.cfg.Logger.Info("loading snapshot", "processed_bytes", processed)
	})
}

// keyState is metadata that applies only to the next key.
type keyState struct {
	expire  int64
	lruIdle int64
	lfuFreq int
}

func (k *keyState) reset() {
	k.expire, k.lruIdle, k.lfuFreq = keyspace.NoExpire, -1, -1
}

func (d *Decoder) run(ks *keyspace.Keyspace, info *SaveInfo) error {
	d.s.SetChecksumHook(d.onRead)

	hdr, err := d.r.readBytes(9)
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(hdr, []byte(magic)) {
		return d.r.corrupt("wrong signature", nil)
	}
	version, err := strconv.Atoi(string(hdr[len(magic):]))
	if err != nil || version < 1 || version > Version {
		return domain.ErrUnsupportedVersion.WithDetailsf("can't handle snapshot format version %q", hdr[len(magic):])
	}
	d.report.Version = version

	var (
		db    = ks.DB(0)
		state keyState
		now   = d.cfg.Now()
	)
	state.reset()

loop:
	for {
		t, err := d.r.readByte()
		if err != nil {
			return err
		}

		switch t {
		case OpExpireTime:
			sec, err := d.r.readSeconds()
			if err != nil {
				return err
			}
			state.expire = sec * 1000

		case OpExpireTimeMs:
			if state.expire, err = d.r.readMillis(); err != nil {
				return err
			}

		case OpFreq:
			b, err := d.r.readByte()
			if err != nil {
				return err
			}
			state.lfuFreq = int(b)

		case OpIdle:
			idle, err := d.r.readPlainLen()
			if err != nil {
				return err
			}
			state.lruIdle = int64(idle)

		case OpEOF:
			break loop

		case OpSelectDB:
			id, err := d.r.readPlainLen()
			if err != nil {
				return err
			}
			if id >= uint64(ks.Len()) {
				err := domain.ErrCapacity.WithDetailsf("snapshot selects database %d, only %d configured", id, ks.Len())
				if err := d.recoverable(err); err != nil {
					return err
				}
				db = nil
				continue
			}
			db = ks.DB(int(id))

		case OpResizeDB:
			keys, err := d.r.readPlainLen()
			if err != nil {
				return err
			}
			expires, err := d.r.readPlainLen()
			if err != nil {
				return err
			}
			if db != nil {
				db.Presize(keys, expires, d.cfg.MaxResizeHint)
			}

		case OpAux:
			key, err := d.r.readString()
			if err != nil {
				return err
			}
			val, err := d.r.readString()
			if err != nil {
				return err
			}
			if err := d.handleAux(string(key), string(val), info); err != nil {
				return err
			}

		case OpModuleAux:
			if err := d.loadModuleAux(); err != nil {
				return err
			}

		default:
			if !isObjectType(t) {
				return d.r.corrupt(fmt.Sprintf("unknown object type %d", t), nil)
			}
			if err := d.loadKey(t, db, &state, now); err != nil {
				return err
			}
			state.reset()
		}
	}

	if version >= 5 {
		expected := d.s.Checksum()
		var trailer [8]byte
		if err := d.r.read(trailer[:]); err != nil {
			return err
		}
		cksum := binary.LittleEndian.Uint64(trailer[:])
		d.report.Checksum = cksum
		if d.cfg.Checksum {
			switch {
			case cksum == 0:
				d.cfg.Logger.Warn("snapshot was saved with checksum disabled, no check performed")
			case cksum != expected:
				err := domain.ErrChecksumMismatch.WithDetailsf("stored %016x, computed %016x", cksum, expected)
				if err := d.recoverable(err); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (d *Decoder) handleAux(key, val string, info *SaveInfo) error {
	d.report.Aux[key] = val
	switch {
	case len(key) > 0 && key[0] == '%':
		d.cfg.Logger.Info("snapshot aux", "field", key, "value", val)
	case key == "repl-stream-db":
		if info != nil {
			info.ReplStreamDB, _ = strconv.Atoi(val)
		}
	case key == "repl-id":
		if info != nil && len(val) == eofMarkSize {
			info.ReplID = val
		}
	case key == "repl-offset":
		if info != nil {
			info.ReplOffset, _ = strconv.ParseInt(val, 10, 64)
		}
	case key == auxCodec:
		codec, err := CodecByName(val)
		if err != nil {
			return d.r.corrupt("unsupported string codec", err)
		}
		d.r.codec = codec
	default:
		d.cfg.Logger.Debug("unrecognized snapshot aux field", "field", key)
	}
	return nil
}

func (d *Decoder) loadModuleAux() error {
	id, err := d.r.readPlainLen()
	if err != nil {
		return err
	}
	d.report.ModuleAux++
	name := moduleName(id)
	if !d.check {
		if _, ok := d.lookupModule(id); !ok {
			return domain.ErrUnknownModuleType.WithDetailsf("module aux data for %q, no matching module", name)
		}
		return domain.ErrUnknownModuleType.WithDetailsf("module aux data for %q is not supported", name)
	}
	d.report.Errors = append(d.report.Errors,
		domain.ErrUnknownModuleType.WithDetailsf("skipped module aux data for %q", name))
	return d.r.skipModuleValue()
}

func (d *Decoder) loadKey(t byte, db *keyspace.DB, state *keyState, now time.Time) error {
	key, err := d.r.readString()
	if err != nil {
		return err
	}
	o, err := d.loadValue(t, key)
	if err != nil {
		return err
	}
	d.report.Keys++
	d.report.Types[TypeName(t)]++
	if state.expire != keyspace.NoExpire {
		d.report.Expires++
	}

	// Check mode leaves values of unknown module types undecoded.
	if o == nil || db == nil {
		return nil
	}

	if !d.cfg.Replica && !d.cfg.LoadingAOF && state.expire != keyspace.NoExpire && state.expire < now.UnixMilli() {
		d.report.ExpiredSkipped++
		return nil
	}

	if !db.AppendRaw(string(key), o) {
		return d.recoverable(d.r.corrupt(fmt.Sprintf("duplicate key %q", truncate(key)), nil))
	}
	d.report.Loaded++
	if state.expire != keyspace.NoExpire {
		db.SetExpire(string(key), state.expire)
	}

	o.InitAccess(d.cfg.Policy, now)
	switch {
	case d.cfg.Policy.IsLFU():
		if state.lfuFreq >= 0 {
			o.SetLFU(uint8(state.lfuFreq), now)
		}
	case state.lruIdle >= 0:
		o.SetIdle(time.Duration(state.lruIdle)*time.Second, now)
	}
	return nil
}

// truncate shortens user data quoted in error messages.
func truncate(b []byte) string {
	const max = 64
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}

// TypeName returns a readable name for a value type byte.
func TypeName(t byte) string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeZSet:
		return "zset"
	case TypeHash:
		return "hash"
	case TypeZSet2:
		return "zset-v2"
	case TypeModule:
		return "module"
	case TypeModule2:
		return "module-v2"
	case TypeHashZipmap:
		return "hash-zipmap"
	case TypeListZiplist:
		return "list-ziplist"
	case TypeSetIntset:
		return "set-intset"
	case TypeZSetZiplist:
		return "zset-ziplist"
	case TypeHashZiplist:
		return "hash-ziplist"
	case TypeListQuicklist:
		return "quicklist"
	case TypeStreamListpacks:
		return "stream"
	default:
		return "type-" + strconv.Itoa(int(t))
	}
}
