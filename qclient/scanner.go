package qclient

import (
	"errors"

	"github.com/joomcode/qclient-go/resp"
)

// ScanOpts configures a Scanner, mirroring redis/sender.go's ScanOpts but
// collapsed onto the synchronous Client facade.
type ScanOpts struct {
	Cmd   string // defaults to SCAN; HSCAN/SSCAN/ZSCAN need Key set
	Key   string
	Match string
	Count int
}

// ScanEOF is returned by Scanner.Next once iteration has completed.
var ScanEOF = errors.New("qclient: scan iteration finished")

func (o ScanOpts) args(cursor []byte) (string, []interface{}) {
	cmd := o.Cmd
	if cmd == "" {
		cmd = "SCAN"
	}
	if cursor == nil {
		cursor = []byte("0")
	}
	var args []interface{}
	if cmd != "SCAN" {
		args = append(args, o.Key)
	}
	args = append(args, cursor)
	if o.Match != "" {
		args = append(args, "MATCH", o.Match)
	}
	if o.Count > 0 {
		args = append(args, "COUNT", o.Count)
	}
	return cmd, args
}

// Scanner drives a single SCAN-family cursor to completion, one Next() call
// at a time.
type Scanner struct {
	client *Client
	opts   ScanOpts
	cursor []byte
	done   bool
}

// NewScanner builds a Scanner bound to opts.
func (c *Client) NewScanner(opts ScanOpts) *Scanner {
	return &Scanner{client: c, opts: opts}
}

// Next fetches the next page of keys. The page that carries cursor "0" is
// returned normally; every later call returns ScanEOF. A reply that is not a
// [bulk cursor, keys] pair also ends iteration with ScanEOF.
func (s *Scanner) Next() ([]string, error) {
	if s.done {
		return nil, ScanEOF
	}
	cmd, args := s.opts.args(s.cursor)
	reply, err := s.client.Sync(cmd, args...)
	if err != nil {
		return nil, err
	}
	if reply.Kind != resp.KindArray || len(reply.Array) != 2 {
		return nil, ScanEOF
	}
	cursor := reply.Array[0]
	if cursor.Kind != resp.KindBulk {
		return nil, ScanEOF
	}
	next := make([]byte, len(cursor.Bulk))
	copy(next, cursor.Bulk)
	s.cursor = next
	if len(next) == 1 && next[0] == '0' {
		s.done = true
	}

	items := reply.Array[1]
	keys := make([]string, 0, len(items.Array))
	for _, it := range items.Array {
		if it.Kind == resp.KindBulk {
			keys = append(keys, string(it.Bulk))
		}
	}
	return keys, nil
}
