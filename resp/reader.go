package resp

import (
	"github.com/joomcode/qclient-go/qerrors"
)

// Reader is the external collaborator spec.md §6 describes: feed it
// arbitrary byte chunks as they arrive off the wire, then drain zero or more
// fully-parsed replies with GetReply. It owns no socket of its own; the
// connection engine recreates one on every reconnect, per Design Notes'
// "raw reader ownership" guidance.
//
// Unlike the teacher's resp.Read (which blocks on a *bufio.Reader until a
// full reply is available), Reader never blocks: a short Feed simply means
// the next GetReply reports ok=false until more bytes arrive.
type Reader struct {
	buf    []byte
	broken error
}

func NewReader() *Reader {
	return &Reader{}
}

// Feed appends newly received bytes to the reader's internal buffer.
func (r *Reader) Feed(b []byte) {
	if len(b) == 0 {
		return
	}
	r.buf = append(r.buf, b...)
}

// GetReply attempts to parse the next complete reply out of the buffered
// bytes. ok is false and err is nil when more bytes are needed. Once err is
// non-nil the reader is permanently broken: the connection must be dropped,
// following spec.md §7's "protocol framing" policy.
func (r *Reader) GetReply() (reply Reply, ok bool, err error) {
	if r.broken != nil {
		return Reply{}, false, r.broken
	}
	rep, consumed, status := parseOne(r.buf, 0)
	switch status {
	case resIncomplete:
		return Reply{}, false, nil
	case resError:
		r.broken = qerrors.Protocol.New("malformed RESP reply")
		return Reply{}, false, r.broken
	default:
		r.buf = r.buf[consumed:]
		return rep, true, nil
	}
}

type parseResult int

const (
	resComplete parseResult = iota
	resIncomplete
	resError
)

func parseOne(buf []byte, pos int) (Reply, int, parseResult) {
	if pos >= len(buf) {
		return Reply{}, pos, resIncomplete
	}
	switch buf[pos] {
	case '+':
		line, next, st := readLine(buf, pos+1)
		if st != resComplete {
			return Reply{}, pos, st
		}
		return StatusReply(string(line)), next, resComplete
	case '-':
		line, next, st := readLine(buf, pos+1)
		if st != resComplete {
			return Reply{}, pos, st
		}
		return ErrorReply(string(line)), next, resComplete
	case ':':
		line, next, st := readLine(buf, pos+1)
		if st != resComplete {
			return Reply{}, pos, st
		}
		v, ok := parseInt(line)
		if !ok {
			return Reply{}, pos, resError
		}
		return IntReply(v), next, resComplete
	case '$':
		line, next, st := readLine(buf, pos+1)
		if st != resComplete {
			return Reply{}, pos, st
		}
		n, ok := parseInt(line)
		if !ok {
			return Reply{}, pos, resError
		}
		if n < 0 {
			return NilReply, next, resComplete
		}
		end := next + int(n)
		if end+2 > len(buf) {
			return Reply{}, pos, resIncomplete
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return Reply{}, pos, resError
		}
		data := make([]byte, n)
		copy(data, buf[next:end])
		return BulkReply(data), end + 2, resComplete
	case '*':
		line, next, st := readLine(buf, pos+1)
		if st != resComplete {
			return Reply{}, pos, st
		}
		n, ok := parseInt(line)
		if !ok {
			return Reply{}, pos, resError
		}
		if n < 0 {
			return NilReply, next, resComplete
		}
		elems := make([]Reply, n)
		cur := next
		for i := int64(0); i < n; i++ {
			var (
				elem Reply
				st2  parseResult
			)
			elem, cur, st2 = parseOne(buf, cur)
			if st2 != resComplete {
				return Reply{}, pos, st2
			}
			elems[i] = elem
		}
		return ArrayReply(elems), cur, resComplete
	default:
		return Reply{}, pos, resError
	}
}

// readLine returns the bytes of the header line starting at pos, up to but
// excluding the terminating "\r\n", and the position right after it.
func readLine(buf []byte, pos int) ([]byte, int, parseResult) {
	for i := pos; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return buf[pos:i], i + 2, resComplete
		}
	}
	return nil, pos, resIncomplete
}

func parseInt(buf []byte) (int64, bool) {
	if len(buf) == 0 {
		return 0, false
	}
	neg := buf[0] == '-'
	if neg {
		buf = buf[1:]
	}
	if len(buf) == 0 {
		return 0, false
	}
	var v int64
	for _, b := range buf {
		if b < '0' || b > '9' {
			return 0, false
		}
		v = v*10 + int64(b-'0')
	}
	if neg {
		v = -v
	}
	return v, true
}
