package rdb

import (
	"fmt"

	"github.com/yndnr/memkv/internal/module"
)

// moduleWriter frames the fields a module codec saves. Each field is
// preceded by its opcode so readers can skip values of unknown types.
type moduleWriter struct {
	w     *writer
	codec Codec
}

var _ module.Writer = (*moduleWriter)(nil)

func (m *moduleWriter) SaveUnsigned(v uint64) {
	m.w.writeLen(moduleOpUInt)
	m.w.writeLen(v)
}

func (m *moduleWriter) SaveSigned(v int64) {
	m.w.writeLen(moduleOpSInt)
	m.w.writeLen(uint64(v))
}

func (m *moduleWriter) SaveString(s []byte) {
	m.w.writeLen(moduleOpString)
	m.w.writeString(s, m.codec)
}

func (m *moduleWriter) SaveDouble(f float64) {
	m.w.writeLen(moduleOpDouble)
	m.w.writeBinaryDouble(f)
}

func (m *moduleWriter) SaveFloat(f float32) {
	m.w.writeLen(moduleOpFloat)
	m.w.writeBinaryFloat(f)
}

// moduleReader yields the fields of a module value. With framed set, each
// field must carry the opcode of the requested kind.
type moduleReader struct {
	r      *reader
	framed bool
	err    error
}

var _ module.Reader = (*moduleReader)(nil)

func (m *moduleReader) expect(op uint64) error {
	if m.err != nil {
		return m.err
	}
	if !m.framed {
		return nil
	}
	got, err := m.r.readPlainLen()
	if err != nil {
		m.err = err
		return err
	}
	if got != op {
		m.err = m.r.corrupt(fmt.Sprintf("module field opcode %d, want %d", got, op), nil)
		return m.err
	}
	return nil
}

func (m *moduleReader) fail(err error) error {
	if err != nil && m.err == nil {
		m.err = err
	}
	return err
}

func (m *moduleReader) LoadUnsigned() (uint64, error) {
	if err := m.expect(moduleOpUInt); err != nil {
		return 0, err
	}
	v, err := m.r.readPlainLen()
	return v, m.fail(err)
}

func (m *moduleReader) LoadSigned() (int64, error) {
	if err := m.expect(moduleOpSInt); err != nil {
		return 0, err
	}
	v, err := m.r.readPlainLen()
	return int64(v), m.fail(err)
}

func (m *moduleReader) LoadString() ([]byte, error) {
	if err := m.expect(moduleOpString); err != nil {
		return nil, err
	}
	s, err := m.r.readString()
	return s, m.fail(err)
}

func (m *moduleReader) LoadDouble() (float64, error) {
	if err := m.expect(moduleOpDouble); err != nil {
		return 0, err
	}
	f, err := m.r.readBinaryDouble()
	return f, m.fail(err)
}

func (m *moduleReader) LoadFloat() (float32, error) {
	if err := m.expect(moduleOpFloat); err != nil {
		return 0, err
	}
	f, err := m.r.readBinaryFloat()
	return f, m.fail(err)
}

// skipModuleValue consumes an opcode framed module value up to and
// including its end marker.
func (r *reader) skipModuleValue() error {
	for {
		op, err := r.readPlainLen()
		if err != nil {
			return err
		}
		switch op {
		case moduleOpEOF:
			return nil
		case moduleOpSInt, moduleOpUInt:
			_, err = r.readPlainLen()
		case moduleOpString:
			_, err = r.readString()
		case moduleOpFloat:
			_, err = r.readBinaryFloat()
		case moduleOpDouble:
			_, err = r.readBinaryDouble()
		default:
			err = r.corrupt(fmt.Sprintf("unknown module opcode %d", op), nil)
		}
		if err != nil {
			return err
		}
	}
}
