package resp

import "strconv"

// intBase10MaxLen is long enough for any int64/uint64 decimal representation
// ("-9223372036854775808" / "18446744073709551615").
const intBase10MaxLen = 20

// AppendCommand appends a command in the classic inline-array wire form:
// "*N\r\n" followed by N bulk strings "$L\r\n<bytes>\r\n", every argument is
// encoded as a bulk string regardless of its semantic type (spec.md §4.1).
func AppendCommand(buf []byte, name string, args [][]byte) []byte {
	buf = appendArrayHeader(buf, 1+len(args))
	buf = appendBulkString(buf, []byte(name))
	for _, a := range args {
		buf = appendBulkString(buf, a)
	}
	return buf
}

func appendArrayHeader(buf []byte, n int) []byte {
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(n), 10)
	return append(buf, '\r', '\n')
}

func appendBulkString(buf, data []byte) []byte {
	buf = append(buf, '$')
	buf = strconv.AppendInt(buf, int64(len(data)), 10)
	buf = append(buf, '\r', '\n')
	buf = append(buf, data...)
	return append(buf, '\r', '\n')
}

// AppendValue serializes an arbitrary Value back to wire bytes. It is the
// inverse of Decode and exists mainly so that decode(AppendValue(v)) == v can
// be exercised as a round-trip property; the hot path for sending commands is
// AppendCommand, which never needs to represent the full Value sum type.
func AppendValue(buf []byte, v Value) []byte {
	switch v.Kind {
	case KindSimpleString:
		buf = append(buf, '+')
		buf = append(buf, v.Str...)
		return append(buf, '\r', '\n')
	case KindError:
		buf = append(buf, '-')
		buf = append(buf, v.Err.Error()...)
		return append(buf, '\r', '\n')
	case KindBlobError:
		buf = append(buf, '!')
		return appendLengthPrefixed(buf, []byte(v.Err.Error()))
	case KindInteger:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, v.Int, 10)
		return append(buf, '\r', '\n')
	case KindDouble:
		buf = append(buf, ',')
		buf = strconv.AppendFloat(buf, v.Float, 'g', -1, 64)
		return append(buf, '\r', '\n')
	case KindBoolean:
		buf = append(buf, '#')
		if v.Bool {
			buf = append(buf, 't')
		} else {
			buf = append(buf, 'f')
		}
		return append(buf, '\r', '\n')
	case KindNil:
		return append(buf, '_', '\r', '\n')
	case KindBulkString:
		if v.Null {
			return append(buf, '$', '-', '1', '\r', '\n')
		}
		buf = append(buf, '$')
		return appendLengthPrefixed(buf, v.Bulk)
	case KindVerbatimString:
		buf = append(buf, '=')
		if v.Null {
			return append(buf, '-', '1', '\r', '\n')
		}
		body := append([]byte("txt:"), v.Bulk...)
		return appendLengthPrefixed(buf, body)
	case KindArray, KindSet, KindPush:
		buf = append(buf, byte(v.Kind))
		if v.Null {
			return append(buf, '-', '1', '\r', '\n')
		}
		buf = strconv.AppendInt(buf, int64(len(v.Elems)), 10)
		buf = append(buf, '\r', '\n')
		for _, e := range v.Elems {
			buf = AppendValue(buf, e)
		}
		return buf
	case KindMap:
		buf = append(buf, '%')
		if v.Null {
			return append(buf, '-', '1', '\r', '\n')
		}
		buf = strconv.AppendInt(buf, int64(len(v.Elems)/2), 10)
		buf = append(buf, '\r', '\n')
		for _, e := range v.Elems {
			buf = AppendValue(buf, e)
		}
		return buf
	}
	return buf
}

func appendLengthPrefixed(buf, data []byte) []byte {
	buf = append(buf, strconv.Itoa(len(data))...)
	buf = append(buf, '\r', '\n')
	buf = append(buf, data...)
	return append(buf, '\r', '\n')
}
