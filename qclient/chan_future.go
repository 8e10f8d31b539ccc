package qclient

import (
	"github.com/joomcode/qclient-go/resp"
)

// Result is the outcome delivered through a ChanFuture: a reply plus
// whatever transport/protocol/result error accompanied it.
type Result struct {
	Reply resp.Reply
	Err   error
}

// ChanFuture is a channel-based alternative to stager.FutureSink, mirrored
// from redis/chan_future.go's ChanFuture: instead of a blocking Wait
// method, the caller gets a receive-only channel it can select on directly
// alongside other channels (a timeout, a shutdown signal, ...). Grounded on
// the teacher offering both a blocking Sync wrapper and a channel-based
// ChanFuture over the same underlying Sender; qclient.Client.Sync plays the
// blocking role and ChanFuture plays this one.
type ChanFuture struct {
	ch chan Result
}

// ExecuteChan stages cmd/args and returns a ChanFuture that receives exactly
// one Result once the reply arrives (or the request is abandoned on
// shutdown/NoRetries).
func (c *Client) ExecuteChan(cmd string, args ...interface{}) *ChanFuture {
	f := &ChanFuture{ch: make(chan Result, 1)}
	c.ExecuteCallback(func(reply resp.Reply, err error) {
		f.ch <- Result{Reply: reply, Err: err}
	}, cmd, args...)
	return f
}

// Done exposes the underlying channel for select-based waiting, per the
// teacher's ChanFuture.Done().
func (f *ChanFuture) Done() <-chan Result {
	return f.ch
}

// Value blocks for and returns the single Result, per the teacher's
// ChanFuture.Value().
func (f *ChanFuture) Value() Result {
	return <-f.ch
}
