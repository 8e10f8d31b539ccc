package stager

import (
	"github.com/joomcode/qclient-go/resp"
)

// SinkKind tags the sink variant a StagedRequest owns, following Design
// Notes' "sinks as a sum type" guidance: the original's inheritance-like
// dispatch between promise/callback/folly-future sinks is replaced here with
// one tagged variant that the stager drives uniformly through Signal.
type SinkKind int

const (
	SinkFuture SinkKind = iota
	SinkCallback
)

// Callback receives a satisfied or terminally-failed reply. err is nil on a
// normal reply (including a RESP error reply, which arrives as reply.IsError()).
type Callback func(reply resp.Reply, err error)

// Sink is the signal(reply) operation every sink variant implements
// uniformly, per Design Notes.
type Sink interface {
	Signal(reply resp.Reply, err error)
}

// FutureSink is the promise-style sink: callers block on Wait.
type FutureSink struct {
	done  chan struct{}
	reply resp.Reply
	err   error
}

func NewFutureSink() *FutureSink {
	return &FutureSink{done: make(chan struct{})}
}

func (f *FutureSink) Signal(reply resp.Reply, err error) {
	f.reply = reply
	f.err = err
	close(f.done)
}

// Wait blocks until the sink is signalled and returns the outcome.
func (f *FutureSink) Wait() (resp.Reply, error) {
	<-f.done
	return f.reply, f.err
}

// Done exposes the underlying channel for select-based waiting.
func (f *FutureSink) Done() <-chan struct{} {
	return f.done
}

// CallbackSink adapts a plain function to the Sink interface.
type CallbackSink struct {
	cb Callback
}

func NewCallbackSink(cb Callback) *CallbackSink {
	if cb == nil {
		cb = func(resp.Reply, error) {}
	}
	return &CallbackSink{cb: cb}
}

func (c *CallbackSink) Signal(reply resp.Reply, err error) {
	c.cb(reply, err)
}
