// Package resp implements the wire encoding and incremental decoding of the
// RESP protocol used by the backing server, following the byte-pushing style
// of the teacher's resp/request_writer.go and resp/reader.go.
package resp

import (
	"fmt"
	"strconv"
)

// AppendRequest appends one RESP array frame encoding cmd and args to buf and
// returns the extended slice, following resp/request_writer.go's AppendRequest.
func AppendRequest(buf []byte, cmd string, args ...interface{}) ([]byte, error) {
	buf = appendHead(buf, '*', int64(len(args)+1))
	buf = appendBulkString(buf, cmd)
	for _, val := range args {
		var err error
		if buf, err = appendArg(buf, val); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// AppendRequests appends N pipelined RESP array frames, one per request, used
// when staging a MULTI/EXEC group as a single write.
func AppendRequests(buf []byte, cmds []string, argv [][]interface{}) ([]byte, error) {
	for i, cmd := range cmds {
		var err error
		if buf, err = AppendRequest(buf, cmd, argv[i]...); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendArg(buf []byte, val interface{}) ([]byte, error) {
	switch v := val.(type) {
	case string:
		return appendBulkString(buf, v), nil
	case []byte:
		return appendBulkBytes(buf, v), nil
	case int:
		return appendBulkInt(buf, int64(v)), nil
	case int64:
		return appendBulkInt(buf, v), nil
	case uint64:
		return appendBulkInt(buf, int64(v)), nil
	case uint16:
		return appendBulkInt(buf, int64(v)), nil
	case uint32:
		return appendBulkInt(buf, int64(v)), nil
	case float32:
		return appendBulkString(buf, strconv.FormatFloat(float64(v), 'f', -1, 32)), nil
	case float64:
		return appendBulkString(buf, strconv.FormatFloat(v, 'f', -1, 64)), nil
	case bool:
		if v {
			return appendBulkString(buf, "1"), nil
		}
		return appendBulkString(buf, "0"), nil
	case nil:
		return appendBulkString(buf, ""), nil
	default:
		return nil, fmt.Errorf("resp: AppendRequest could not handle argument type %T", val)
	}
}

func appendBulkString(buf []byte, s string) []byte {
	buf = appendHead(buf, '$', int64(len(s)))
	buf = append(buf, s...)
	return append(buf, '\r', '\n')
}

func appendBulkBytes(buf []byte, b []byte) []byte {
	buf = appendHead(buf, '$', int64(len(b)))
	buf = append(buf, b...)
	return append(buf, '\r', '\n')
}

func appendBulkInt(buf []byte, i int64) []byte {
	return appendBulkString(buf, strconv.FormatInt(i, 10))
}

func appendHead(buf []byte, mark byte, n int64) []byte {
	buf = append(buf, mark)
	buf = strconv.AppendInt(buf, n, 10)
	return append(buf, '\r', '\n')
}
