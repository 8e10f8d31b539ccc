package resp

import "strconv"

// AppendReply serializes r back into wire format. It exists for the
// in-memory test server (qtest) and any future server-side component; the
// client itself never needs to encode a Reply, only decode one.
func AppendReply(buf []byte, r Reply) []byte {
	switch r.Kind {
	case KindNil:
		return append(buf, '$', '-', '1', '\r', '\n')
	case KindInt:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, r.Int, 10)
		return append(buf, '\r', '\n')
	case KindStatus:
		buf = append(buf, '+')
		buf = append(buf, r.Str...)
		return append(buf, '\r', '\n')
	case KindError:
		buf = append(buf, '-')
		buf = append(buf, r.Str...)
		return append(buf, '\r', '\n')
	case KindBulk:
		buf = appendHead(buf, '$', int64(len(r.Bulk)))
		buf = append(buf, r.Bulk...)
		return append(buf, '\r', '\n')
	case KindArray:
		buf = appendHead(buf, '*', int64(len(r.Array)))
		for _, elem := range r.Array {
			buf = AppendReply(buf, elem)
		}
		return buf
	default:
		return buf
	}
}
