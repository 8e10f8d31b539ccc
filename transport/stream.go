// Package transport provides the Stream collaborator contract from
// spec.md §4.2 and a TCP(+TLS) implementation, grounded on
// redisconn/conn.go's dial() and redis_conn/deadline_io.go's per-call
// deadline wrapping.
package transport

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/joomcode/qclient-go/endpoint"
	"github.com/joomcode/qclient-go/qerrors"
)

// Stream is a bi-directional byte duplex with a health flag, matching
// spec.md's NetworkStream contract. alive=false after any I/O permanently
// transitions the stream to closed.
type Stream interface {
	Recv(buf []byte) (n int, alive bool)
	Send(buf []byte) (n int, alive bool)
	Close() error
}

// TLSConfig is opaque to the rest of the system beyond Dial, per spec.md §6.
type TLSConfig struct {
	Enabled bool
	Config  *tls.Config
}

const defaultIOTimeout = 1 * time.Second

// Dial opens a TCP (optionally TLS) connection to e. IOTimeout bounds every
// individual Recv/Send call, following deadlineIO in the teacher.
func Dial(e endpoint.Endpoint, dialTimeout time.Duration, ioTimeout time.Duration, tlsConfig TLSConfig) (Stream, error) {
	if dialTimeout <= 0 {
		dialTimeout = defaultIOTimeout
	}
	if ioTimeout <= 0 {
		ioTimeout = defaultIOTimeout
	}
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.Dial("tcp", e.String())
	if err != nil {
		return nil, qerrors.Connection.Wrap(err, "dial failed").WithProperty(qerrors.Addr, e.String())
	}
	if tlsConfig.Enabled {
		cfg := tlsConfig.Config
		if cfg == nil {
			cfg = &tls.Config{}
		}
		tlsConn := tls.Client(conn, cfg)
		tlsConn.SetDeadline(time.Now().Add(dialTimeout))
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, qerrors.Connection.Wrap(err, "tls handshake failed").WithProperty(qerrors.Addr, e.String())
		}
		tlsConn.SetDeadline(time.Time{})
		return &tcpStream{c: tlsConn, ioTimeout: ioTimeout}, nil
	}
	return &tcpStream{c: conn, ioTimeout: ioTimeout}, nil
}

type tcpStream struct {
	c         net.Conn
	ioTimeout time.Duration
}

// Recv reads whatever is available within ioTimeout. A timeout is not a
// stream failure: it is how the engine's read loop periodically regains
// control to check for a shutdown request, mirroring the "poll two
// descriptors" pattern spec.md §4.6 describes without needing a second,
// OS-level eventfd descriptor.
func (s *tcpStream) Recv(buf []byte) (int, bool) {
	s.c.SetReadDeadline(time.Now().Add(s.ioTimeout))
	n, err := s.c.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, true
		}
		return n, false
	}
	return n, true
}

func (s *tcpStream) Send(buf []byte) (int, bool) {
	s.c.SetWriteDeadline(time.Now().Add(s.ioTimeout))
	n, err := s.c.Write(buf)
	if err != nil {
		return n, false
	}
	return n, true
}

func (s *tcpStream) Close() error {
	return s.c.Close()
}
