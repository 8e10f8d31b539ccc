package qclient

import (
	"github.com/joomcode/qclient-go/qerrors"
	"github.com/joomcode/qclient-go/resp"
	"github.com/joomcode/qclient-go/stager"
)

const maxSyncRetries = 3

// Client is the public facade from spec.md §2's "Public client facade":
// execute and typed synchronous wrappers, built over one Engine. The
// intercept API lives in package intercept, not on Client. Grounded on redis/sync.go and redis/chan_future.go's
// Sender-adapter pattern, collapsed onto the stager.Sink interface.
type Client struct {
	engine *Engine
}

// New constructs a Client and starts its connection engine immediately.
func New(opts Options) *Client {
	e := NewEngine(opts)
	e.Start()
	return &Client{engine: e}
}

// Close shuts the client down, settling every pending request.
func (c *Client) Close() { c.engine.Close() }

// State reports the underlying engine's connection state.
func (c *Client) State() State { return c.engine.State() }

// Epoch reports the current connection epoch.
func (c *Client) Epoch() uint64 { return c.engine.Epoch() }

func (c *Client) AttachListener(l Listener) { c.engine.AttachListener(l) }
func (c *Client) DetachListener(l Listener) { c.engine.DetachListener(l) }

// Execute stages cmd/args and returns a future-style sink, per spec.md §3's
// future-sink StagedRequest variant.
func (c *Client) Execute(cmd string, args ...interface{}) *stager.FutureSink {
	sink := stager.NewFutureSink()
	buf, err := resp.AppendRequest(nil, cmd, args...)
	if err != nil {
		sink.Signal(resp.NilReply, qerrors.Request.Wrap(err, "encoding %s", cmd).WithProperty(qerrors.Cmd, cmd))
		return sink
	}
	c.engine.Stage(buf, sink)
	return sink
}

// ExecuteCallback stages cmd/args with a callback-sink, per spec.md §3's
// callback-sink StagedRequest variant; fire-and-forget from the caller's
// perspective.
func (c *Client) ExecuteCallback(cb stager.Callback, cmd string, args ...interface{}) {
	buf, err := resp.AppendRequest(nil, cmd, args...)
	if err != nil {
		cb(resp.NilReply, qerrors.Request.Wrap(err, "encoding %s", cmd).WithProperty(qerrors.Cmd, cmd))
		return
	}
	c.engine.Stage(buf, stager.NewCallbackSink(cb))
}

// Sync blocks for cmd/args' reply. A RESP error reply is turned into a
// qerrors.Result error; any other error is an argument-encoding failure
// (qerrors.Request), a transport/protocol failure, or shutdown.
func (c *Client) Sync(cmd string, args ...interface{}) (resp.Reply, error) {
	reply, err := c.Execute(cmd, args...).Wait()
	if err != nil {
		return reply, err
	}
	if text, isErr := reply.ErrorText(); isErr {
		return reply, qerrors.Result.New("%s", text).WithProperty(qerrors.RawMessage, text).WithProperty(qerrors.Cmd, cmd)
	}
	return reply, nil
}

// Ping issues a blocking PING and reports an error unless the reply is
// exactly "PONG", mirrored from redisconn/conn.go's Connection.Ping as a
// health-check/keepalive convenience.
func (c *Client) Ping() error {
	reply, err := c.Sync("PING")
	if err != nil {
		return err
	}
	if reply.Kind != resp.KindStatus || reply.Str != "PONG" {
		return qerrors.Result.New("PING: unexpected reply %v", reply)
	}
	return nil
}

// Exists is a typed synchronous wrapper per spec.md §7: on a null reply the
// command is sent again, for at most maxSyncRetries attempts in all, before
// raising a fatal error; any other unexpected reply type is immediately a
// fatal error.
func (c *Client) Exists(key string) (bool, error) {
	for attempt := 0; attempt < maxSyncRetries; attempt++ {
		reply, err := c.Sync("EXISTS", key)
		if err != nil {
			return false, err
		}
		if reply.IsNil() {
			continue
		}
		if reply.Kind != resp.KindInt {
			return false, qerrors.Result.New("EXISTS: unexpected reply kind %d", reply.Kind)
		}
		return reply.Int != 0, nil
	}
	return false, qerrors.Result.New("EXISTS: no reply after %d attempts", maxSyncRetries)
}

// Del is a typed synchronous wrapper, following the same bounded-retry
// policy as Exists.
func (c *Client) Del(key string) (int64, error) {
	for attempt := 0; attempt < maxSyncRetries; attempt++ {
		reply, err := c.Sync("DEL", key)
		if err != nil {
			return 0, err
		}
		if reply.IsNil() {
			continue
		}
		if reply.Kind != resp.KindInt {
			return 0, qerrors.Result.New("DEL: unexpected reply kind %d", reply.Kind)
		}
		return reply.Int, nil
	}
	return 0, qerrors.Result.New("DEL: no reply after %d attempts", maxSyncRetries)
}
