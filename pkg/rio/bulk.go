package rio

import "strconv"

// WriteBulkCount writes a "<prefix><count>\r\n" header.
func WriteBulkCount(s *Stream, prefix byte, count int64) (int, error) {
	b := make([]byte, 0, 24)
	b = append(b, prefix)
	b = strconv.AppendInt(b, count, 10)
	b = append(b, '\r', '\n')
	return s.Write(b)
}

// WriteBulkString writes "$<len>\r\n<p>\r\n".
func WriteBulkString(s *Stream, p []byte) (int, error) {
	n, err := WriteBulkCount(s, '$', int64(len(p)))
	if err != nil {
		return n, err
	}
	m, err := s.Write(p)
	n += m
	if err != nil {
		return n, err
	}
	m, err = s.Write([]byte("\r\n"))
	return n + m, err
}

// WriteBulkInt64 writes v as a bulk string.
func WriteBulkInt64(s *Stream, v int64) (int, error) {
	return WriteBulkString(s, strconv.AppendInt(nil, v, 10))
}

// WriteBulkFloat64 writes v as a bulk string with 17 significant digits.
func WriteBulkFloat64(s *Stream, v float64) (int, error) {
	return WriteBulkString(s, strconv.AppendFloat(nil, v, 'g', 17, 64))
}
