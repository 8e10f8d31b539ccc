package qclient_test

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joomcode/qclient-go/endpoint"
	"github.com/joomcode/qclient-go/qclient"
	"github.com/joomcode/qclient-go/qtest"
	"github.com/joomcode/qclient-go/resp"
	"github.com/joomcode/qclient-go/stager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(args []string) (resp.Reply, bool) {
	switch strings.ToUpper(args[0]) {
	case "PING":
		return resp.StatusReply("PONG"), true
	case "ECHO":
		return resp.BulkReply([]byte(args[1])), true
	default:
		return resp.ErrorReply("ERR unknown command"), true
	}
}

func TestEngine_HappyPipeline(t *testing.T) {
	srv, err := qtest.Start(echoHandler)
	require.NoError(t, err)
	defer srv.Close()

	c := qclient.New(qclient.Options{
		Members:      endpoint.New(srv.Addr()),
		Retry:        stager.InfiniteRetriesStrategy(),
		Backpressure: stager.UnlimitedStrategy(),
	})
	defer c.Close()

	f1 := c.Execute("PING")
	f2 := c.Execute("ECHO", "x")
	f3 := c.Execute("PING")

	r1, err1 := f1.Wait()
	r2, err2 := f2.Wait()
	r3, err3 := f3.Wait()
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, err3)
	assert.Equal(t, resp.StatusReply("PONG"), r1)
	assert.Equal(t, []byte("x"), r2.Bulk)
	assert.Equal(t, resp.StatusReply("PONG"), r3)
}

func TestEngine_Redirect(t *testing.T) {
	srv2, err := qtest.Start(echoHandler)
	require.NoError(t, err)
	defer srv2.Close()

	srv1, err := qtest.Start(func(args []string) (resp.Reply, bool) {
		return qtest.Moved(0, srv2.Addr()), true
	})
	require.NoError(t, err)
	defer srv1.Close()

	c := qclient.New(qclient.Options{
		Members:              endpoint.New(srv1.Addr()),
		TransparentRedirects: true,
		Retry:                stager.InfiniteRetriesStrategy(),
		Backpressure:         stager.UnlimitedStrategy(),
	})
	defer c.Close()

	reply, err := c.Sync("PING")
	require.NoError(t, err)
	assert.Equal(t, resp.StatusReply("PONG"), reply)
}

func TestEngine_ReconnectInfiniteRetries(t *testing.T) {
	var armed int32
	srv, err := qtest.Start(func(args []string) (resp.Reply, bool) {
		if atomic.LoadInt32(&armed) == 0 {
			return resp.Reply{}, false
		}
		return resp.StatusReply("PONG"), true
	})
	require.NoError(t, err)
	defer srv.Close()

	c := qclient.New(qclient.Options{
		Members:      endpoint.New(srv.Addr()),
		Retry:        stager.InfiniteRetriesStrategy(),
		Backpressure: stager.UnlimitedStrategy(),
	})
	defer c.Close()

	f1 := c.Execute("PING")
	f2 := c.Execute("PING")

	time.Sleep(50 * time.Millisecond)
	atomic.StoreInt32(&armed, 1)
	srv.DropAll()

	r1, err1 := f1.Wait()
	r2, err2 := f2.Wait()
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.Equal(t, resp.StatusReply("PONG"), r1)
	assert.Equal(t, resp.StatusReply("PONG"), r2)
}

func TestEngine_ReconnectNoRetries(t *testing.T) {
	srv, err := qtest.Start(func(args []string) (resp.Reply, bool) {
		return resp.Reply{}, false
	})
	require.NoError(t, err)
	defer srv.Close()

	c := qclient.New(qclient.Options{
		Members:      endpoint.New(srv.Addr()),
		Retry:        stager.NoRetriesStrategy(),
		Backpressure: stager.UnlimitedStrategy(),
	})
	defer c.Close()

	f := c.Execute("PING")
	time.Sleep(50 * time.Millisecond)
	srv.DropAll()

	reply, err := f.Wait()
	assert.True(t, reply.IsNil())
	assert.Error(t, err)
}

func TestEngine_Backpressure(t *testing.T) {
	gate := make(chan struct{})
	srv, err := qtest.Start(func(args []string) (resp.Reply, bool) {
		<-gate
		return resp.StatusReply("OK"), true
	})
	require.NoError(t, err)
	defer srv.Close()

	c := qclient.New(qclient.Options{
		Members:      endpoint.New(srv.Addr()),
		Retry:        stager.InfiniteRetriesStrategy(),
		Backpressure: stager.PendingLimitStrategy(2),
	})
	defer c.Close()

	f1 := c.Execute("PING")
	f2 := c.Execute("PING")

	staged3 := make(chan struct{})
	go func() {
		c.Execute("PING")
		close(staged3)
	}()

	select {
	case <-staged3:
		t.Fatal("third Execute should block at the pending limit")
	case <-time.After(100 * time.Millisecond):
	}

	gate <- struct{}{}
	r1, err1 := f1.Wait()
	require.NoError(t, err1)
	assert.Equal(t, resp.StatusReply("OK"), r1)

	select {
	case <-staged3:
	case <-time.After(time.Second):
		t.Fatal("third Execute should unblock once the first reply satisfies the queue")
	}

	gate <- struct{}{}
	gate <- struct{}{}
	r2, err2 := f2.Wait()
	require.NoError(t, err2)
	assert.Equal(t, resp.StatusReply("OK"), r2)
}

type countingListener struct {
	established int32
	lost        int32
}

func (l *countingListener) ConnectionEstablished(epoch uint64) {
	atomic.AddInt32(&l.established, 1)
}

func (l *countingListener) ConnectionLost(epoch uint64, err error) {
	atomic.AddInt32(&l.lost, 1)
}

func TestEngine_OptionsListenerAutoAttached(t *testing.T) {
	srv, err := qtest.Start(echoHandler)
	require.NoError(t, err)
	defer srv.Close()

	l := &countingListener{}
	c := qclient.New(qclient.Options{
		Members:      endpoint.New(srv.Addr()),
		Retry:        stager.InfiniteRetriesStrategy(),
		Backpressure: stager.UnlimitedStrategy(),
		Listener:     l,
	})
	defer c.Close()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&l.established) == 1 }, time.Second, time.Millisecond)
}
