// Package stager implements the RequestStager/WriterThread component from
// spec.md §4.4: a bounded FIFO of pending requests that owns the
// promise/callback side of each request, guarantees in-order delivery, and
// can be drained and replayed on reconnect.
//
// The pending FIFO is backed by github.com/edwingeng/deque/v2, the same
// push-front/pop-back deque jsp-lqk-metapipe-memcached's tcp client uses to
// track its own in-flight requests (internal/tcp_raw_client.go).
package stager

import (
	"sync"
	"time"

	deque "github.com/edwingeng/deque/v2"
	"github.com/joomcode/qclient-go/qerrors"
	"github.com/joomcode/qclient-go/resp"
)

// Writer is the minimal duplex a RequestStager needs: something it can push
// encoded bytes into. transport.Stream satisfies this structurally.
type Writer interface {
	Send(buf []byte) (n int, alive bool)
}

// StagedRequest is an EncodedRequest plus exactly one sink, per spec.md §3.
type StagedRequest struct {
	Encoded     []byte
	NumElements int
	Sink        Sink
}

// RequestStager owns the FIFO of StagedRequests and all writes to the
// current stream.
type RequestStager struct {
	mu      sync.Mutex
	full    *sync.Cond
	pending *deque.Deque[*StagedRequest] // oldest at Back, newest at Front
	unsent  []*StagedRequest             // oldest-first; not yet written to the current stream generation

	writer      Writer
	wake        chan struct{}
	connectedAt time.Time

	backpressure BackpressureStrategy
	retry        RetryStrategy
}

func New(backpressure BackpressureStrategy, retry RetryStrategy) *RequestStager {
	s := &RequestStager{
		pending:      deque.NewDeque[*StagedRequest](),
		wake:         make(chan struct{}, 1),
		backpressure: backpressure,
		retry:        retry,
	}
	s.full = sync.NewCond(&s.mu)
	return s
}

// Stage adds req as the newest entry of the pending queue (the deque's
// Front). It blocks while PendingLimit backpressure is in effect and the
// queue is full, unless bypassBackpressure is set. Engine always stages with
// bypassBackpressure false: it writes handshake frames straight to the
// stream instead of staging them.
func (s *RequestStager) Stage(req *StagedRequest, bypassBackpressure bool) {
	s.mu.Lock()
	if !bypassBackpressure && s.backpressure.Mode == PendingLimit {
		for s.pending.Len() >= s.backpressure.Limit {
			s.full.Wait()
		}
	}
	s.pending.PushFront(req)
	s.unsent = append(s.unsent, req)
	active := s.writer != nil
	s.mu.Unlock()

	if active {
		s.signalWake()
	}
}

// Satisfy removes the oldest unsatisfied request (the deque's Back) and
// delivers reply to its sink. It is a fatal protocol violation to call Satisfy on an empty queue.
func (s *RequestStager) Satisfy(reply resp.Reply, err error) error {
	s.mu.Lock()
	if s.pending.Len() == 0 {
		s.mu.Unlock()
		return qerrors.Protocol.New("satisfy called against an empty pending queue")
	}
	req := s.pending.PopBack()
	s.full.Signal()
	s.mu.Unlock()

	req.Sink.Signal(reply, err)
	return nil
}

// ClearPending signals every remaining sink with a terminal reply/err and
// discards the queue.
func (s *RequestStager) ClearPending(err error) {
	s.mu.Lock()
	n := s.pending.Len()
	items := make([]*StagedRequest, n)
	for i := 0; i < n; i++ {
		items[i] = s.pending.PopBack()
	}
	s.unsent = nil
	s.full.Broadcast()
	s.mu.Unlock()

	for _, it := range items {
		it.Sink.Signal(resp.NilReply, err)
	}
}

// Activate binds the stager to a new stream and marks every currently
// pending (unsatisfied) request for retransmission, oldest first. The
// server may receive a duplicate of an already-delivered request; that is
// acceptable because Satisfy pairs replies by order, not by identity.
func (s *RequestStager) Activate(stream Writer) {
	s.mu.Lock()
	s.writer = stream
	s.connectedAt = time.Now()

	n := s.pending.Len()
	items := make([]*StagedRequest, n)
	for i := 0; i < n; i++ {
		items[i] = s.pending.PopBack()
	}
	for i := 0; i < n; i++ {
		s.pending.PushFront(items[i])
	}
	s.unsent = items
	s.mu.Unlock()

	s.signalWake()
}

// Deactivate stops writing; the pending queue is retained.
func (s *RequestStager) Deactivate() {
	s.mu.Lock()
	s.writer = nil
	s.mu.Unlock()
}

// OnDisconnected applies the NoRetries policy: pending requests are
// signalled with a null reply and cleared immediately. WithTimeout and
// InfiniteRetries leave the queue untouched here; see ExpireIfTimedOut.
func (s *RequestStager) OnDisconnected(err error) {
	if s.retry.Mode == NoRetries {
		s.ClearPending(err)
	}
}

// ExpireIfTimedOut applies the WithTimeout policy: once the timeout has
// elapsed since the last successful post-handshake connection, pending
// requests are cleared with err.
func (s *RequestStager) ExpireIfTimedOut(err error) {
	if s.retry.Mode != WithTimeout {
		return
	}
	s.mu.Lock()
	expired := !s.connectedAt.IsZero() && time.Since(s.connectedAt) > s.retry.Timeout
	s.mu.Unlock()
	if expired {
		s.ClearPending(err)
	}
}

func (s *RequestStager) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

func (s *RequestStager) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// RunWriter drains the unsent tail to the active stream whenever woken, by
// Stage or Activate, until stop fires or a write fails. A write failure ends
// this generation; the engine will reconnect and call Activate again, which
// rebuilds the unsent set from the whole remaining pending queue.
func (s *RequestStager) RunWriter(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		stream := s.writer
		batch := s.unsent
		s.unsent = nil
		s.mu.Unlock()

		if stream == nil || len(batch) == 0 {
			continue
		}

		for _, it := range batch {
			if _, alive := stream.Send(it.Encoded); !alive {
				return
			}
		}
	}
}
