package stager_test

import (
	"sync"
	"testing"
	"time"

	"github.com/joomcode/qclient-go/resp"
	"github.com/joomcode/qclient-go/stager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu  sync.Mutex
	out [][]byte
}

func (w *fakeWriter) Send(buf []byte) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	w.out = append(w.out, cp)
	return len(buf), true
}

func (w *fakeWriter) sent() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.out)
}

func newStaged(t *testing.T, payload string) (*stager.StagedRequest, *stager.FutureSink) {
	t.Helper()
	sink := stager.NewFutureSink()
	return &stager.StagedRequest{Encoded: []byte(payload), Sink: sink}, sink
}

func TestStager_FIFODeliveryOrder(t *testing.T) {
	s := stager.New(stager.UnlimitedStrategy(), stager.NoRetriesStrategy())
	w := &fakeWriter{}
	stop := make(chan struct{})
	defer close(stop)
	go s.RunWriter(stop)
	s.Activate(w)

	r1, f1 := newStaged(t, "1")
	r2, f2 := newStaged(t, "2")
	s.Stage(r1, false)
	s.Stage(r2, false)

	require.NoError(t, s.Satisfy(resp.StatusReply("A"), nil))
	require.NoError(t, s.Satisfy(resp.StatusReply("B"), nil))

	rep1, err1 := f1.Wait()
	rep2, err2 := f2.Wait()
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.Equal(t, resp.StatusReply("A"), rep1)
	assert.Equal(t, resp.StatusReply("B"), rep2)
}

func TestStager_SatisfyOnEmptyQueueIsFatal(t *testing.T) {
	s := stager.New(stager.UnlimitedStrategy(), stager.NoRetriesStrategy())
	err := s.Satisfy(resp.StatusReply("OK"), nil)
	assert.Error(t, err)
}

func TestStager_NoRetriesClearsOnDisconnect(t *testing.T) {
	s := stager.New(stager.UnlimitedStrategy(), stager.NoRetriesStrategy())
	req, sink := newStaged(t, "x")
	s.Stage(req, false)

	s.OnDisconnected(assert.AnError)

	rep, err := sink.Wait()
	assert.True(t, rep.IsNil())
	assert.Equal(t, assert.AnError, err)
	assert.Equal(t, 0, s.Len())
}

func TestStager_InfiniteRetriesSurvivesDisconnect(t *testing.T) {
	s := stager.New(stager.UnlimitedStrategy(), stager.InfiniteRetriesStrategy())
	req, _ := newStaged(t, "x")
	s.Stage(req, false)

	s.OnDisconnected(assert.AnError)
	assert.Equal(t, 1, s.Len())
}

func TestStager_ActivateReplaysUnsatisfiedRequests(t *testing.T) {
	s := stager.New(stager.UnlimitedStrategy(), stager.InfiniteRetriesStrategy())
	stop := make(chan struct{})
	defer close(stop)
	go s.RunWriter(stop)

	w1 := &fakeWriter{}
	s.Activate(w1)
	r1, _ := newStaged(t, "one")
	r2, _ := newStaged(t, "two")
	s.Stage(r1, false)
	s.Stage(r2, false)

	assert.Eventually(t, func() bool { return w1.sent() == 2 }, time.Second, time.Millisecond)

	// Simulate reconnect: a fresh writer should receive both unsatisfied
	// requests again, in order.
	w2 := &fakeWriter{}
	s.Activate(w2)

	assert.Eventually(t, func() bool { return w2.sent() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte("one"), w2.out[0])
	assert.Equal(t, []byte("two"), w2.out[1])
}

func TestStager_Backpressure_BlocksAndUnblocks(t *testing.T) {
	s := stager.New(stager.PendingLimitStrategy(1), stager.InfiniteRetriesStrategy())
	r1, _ := newStaged(t, "one")
	s.Stage(r1, false)

	staged := make(chan struct{})
	go func() {
		r2, _ := newStaged(t, "two")
		s.Stage(r2, false)
		close(staged)
	}()

	select {
	case <-staged:
		t.Fatal("second Stage should block while at the pending limit")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, s.Satisfy(resp.StatusReply("OK"), nil))

	select {
	case <-staged:
	case <-time.After(time.Second):
		t.Fatal("second Stage should unblock once the queue drains")
	}
}

func TestStager_HandshakeBypassesBackpressure(t *testing.T) {
	s := stager.New(stager.PendingLimitStrategy(1), stager.InfiniteRetriesStrategy())
	r1, _ := newStaged(t, "one")
	r2, _ := newStaged(t, "two")
	s.Stage(r1, false)
	s.Stage(r2, true) // bypass
	assert.Equal(t, 2, s.Len())
}
