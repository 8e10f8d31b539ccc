// Package qtest provides an in-memory RESP server for exercising the
// connection engine, subscriber and SharedHash without a real backing
// server, following the in-process test harness idea from the teacher's
// testbed package (which instead shells out to a real redis-server
// binary — not an option here since there is no such binary to drive).
package qtest

import (
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/joomcode/qclient-go/endpoint"
	"github.com/joomcode/qclient-go/resp"
)

// Handler answers one command (already split into its string arguments,
// cmd included at index 0) with the Reply to send back. send=false
// swallows the request with no reply at all, used to simulate a request
// that never completes before a disconnect.
type Handler func(args []string) (reply resp.Reply, send bool)

// Server is a minimal single-process RESP listener for tests.
type Server struct {
	ln      net.Listener
	addr    endpoint.Endpoint
	handler Handler

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Start listens on an ephemeral loopback port and serves connections with
// handler until Close is called.
func Start(handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	tcpAddr := ln.Addr().(*net.TCPAddr)
	s := &Server{
		ln:      ln,
		addr:    endpoint.Endpoint{Host: "127.0.0.1", Port: uint16(tcpAddr.Port)},
		handler: handler,
		conns:   map[net.Conn]struct{}{},
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the endpoint clients should connect to.
func (s *Server) Addr() endpoint.Endpoint { return s.addr }

// Close stops accepting and severs every open connection.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.conns = map[net.Conn]struct{}{}
	s.mu.Unlock()
	return err
}

// DropAll forcibly closes every currently open connection without stopping
// the listener, simulating a transient network failure so the engine's
// reconnect path can be exercised.
func (s *Server) DropAll() {
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.conns = map[net.Conn]struct{}{}
	s.mu.Unlock()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	reader := resp.NewReader()
	buf := make([]byte, 4096)
	for {
		reply, ok, err := reader.GetReply()
		if err != nil {
			return
		}
		if !ok {
			n, rerr := conn.Read(buf)
			if n > 0 {
				reader.Feed(buf[:n])
			}
			if rerr != nil {
				return
			}
			continue
		}
		args := toArgs(reply)
		if args == nil {
			continue
		}
		out, send := s.handler(args)
		if !send {
			continue
		}
		if _, err := conn.Write(resp.AppendReply(nil, out)); err != nil {
			return
		}
	}
}

func toArgs(reply resp.Reply) []string {
	if reply.Kind != resp.KindArray {
		return nil
	}
	args := make([]string, len(reply.Array))
	for i, elem := range reply.Array {
		if elem.Kind == resp.KindBulk {
			args[i] = string(elem.Bulk)
		}
	}
	return args
}

// Publish writes a pub/sub push frame (["message", channel, payload]) to
// every currently connected client. Tests that want per-subscriber control
// should instead run a dedicated Server per subscriber.
func (s *Server) Publish(channel, payload string) {
	frame := resp.AppendReply(nil, resp.ArrayReply([]resp.Reply{
		resp.BulkReply([]byte("message")),
		resp.BulkReply([]byte(channel)),
		resp.BulkReply([]byte(payload)),
	}))
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Write(frame)
	}
}

// Moved builds a MOVED error reply redirecting to target.
func Moved(slot int, target endpoint.Endpoint) resp.Reply {
	return resp.ErrorReply("MOVED " + strconv.Itoa(slot) + " " + target.String())
}

// UpperJoin is a small convenience for handlers matching on command name
// case-insensitively, mirroring how real RESP servers treat command names.
func UpperJoin(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.ToUpper(args[0])
}
