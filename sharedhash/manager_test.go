package sharedhash_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/joomcode/qclient-go/endpoint"
	"github.com/joomcode/qclient-go/qclient"
	"github.com/joomcode/qclient-go/qtest"
	"github.com/joomcode/qclient-go/resp"
	"github.com/joomcode/qclient-go/sharedhash"
	"github.com/joomcode/qclient-go/stager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestManager_CommandConnectionReconnectResilvers proves the command
// connection is itself attached as a qclient.Listener: a reconnect of
// clientOpts' connection alone (independent of the subscriber's) must
// re-trigger a VHGETALL for every managed key, per spec.md §4.9 and
// original_source's qcl->attachListener(this).
func TestManager_CommandConnectionReconnectResilvers(t *testing.T) {
	var vhgetallCount int32
	cmdSrv, err := qtest.Start(func(args []string) (resp.Reply, bool) {
		if args[0] == "VHGETALL" {
			atomic.AddInt32(&vhgetallCount, 1)
			return resp.ArrayReply([]resp.Reply{
				resp.IntReply(1),
				resp.ArrayReply(nil),
			}), true
		}
		return resp.StatusReply("OK"), true
	})
	require.NoError(t, err)
	defer cmdSrv.Close()

	subSrv, err := qtest.Start(func(args []string) (resp.Reply, bool) {
		return resp.StatusReply("OK"), true
	})
	require.NoError(t, err)
	defer subSrv.Close()

	m := sharedhash.NewManager(
		qclient.Options{
			Members:      endpoint.New(cmdSrv.Addr()),
			Retry:        stager.InfiniteRetriesStrategy(),
			Backpressure: stager.UnlimitedStrategy(),
		},
		qclient.Options{
			Members:      endpoint.New(subSrv.Addr()),
			Retry:        stager.InfiniteRetriesStrategy(),
			Backpressure: stager.UnlimitedStrategy(),
		},
		[]string{"mykey"},
	)
	defer m.Close()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&vhgetallCount) >= 1 }, time.Second, time.Millisecond)

	before := atomic.LoadInt32(&vhgetallCount)
	cmdSrv.DropAll() // only the command connection goes down; the subscriber is untouched

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&vhgetallCount) > before }, time.Second, time.Millisecond)

	_, ok := m.Hash("mykey")
	assert.True(t, ok)
}
