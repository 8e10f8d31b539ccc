package sharedhash

import (
	"sync"
	"testing"

	"github.com/joomcode/qclient-go/resp"
	"github.com/joomcode/qclient-go/stager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor captures VHSET/VHDEL/VHGETALL calls and lets the test drive
// VHGETALL's reply by hand, rather than standing up a real connection.
type fakeExecutor struct {
	mu       sync.Mutex
	snapshot []*stager.FutureSink
	calls    [][]interface{}
}

func (f *fakeExecutor) Execute(cmd string, args ...interface{}) *stager.FutureSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := append([]interface{}{cmd}, args...)
	f.calls = append(f.calls, call)
	sink := stager.NewFutureSink()
	f.snapshot = append(f.snapshot, sink)
	return sink
}

func (f *fakeExecutor) ExecuteCallback(cb stager.Callback, cmd string, args ...interface{}) {
	f.mu.Lock()
	call := append([]interface{}{cmd}, args...)
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if cb != nil {
		cb(resp.StatusReply("OK"), nil)
	}
}

// resolveLatest signals the most recently issued VHGETALL future with reply.
func (f *fakeExecutor) resolveLatest(reply resp.Reply) {
	f.mu.Lock()
	sink := f.snapshot[len(f.snapshot)-1]
	f.mu.Unlock()
	sink.Signal(reply, nil)
}

func snapshotReply(revision int64, kv ...string) resp.Reply {
	items := make([]resp.Reply, len(kv))
	for i, s := range kv {
		items[i] = resp.BulkReply([]byte(s))
	}
	return resp.ArrayReply([]resp.Reply{
		resp.IntReply(revision),
		resp.ArrayReply(items),
	})
}

func revisionMessage(revision int64, kv ...string) []byte {
	return resp.AppendReply(nil, snapshotReply(revision, kv...))
}

func TestSharedHash_ContiguousUpdateThenResilver(t *testing.T) {
	exec := &fakeExecutor{}
	h := newSharedHash(nil, exec, "mykey")

	// Initial VHGETALL -> [5, [a,1]]
	exec.resolveLatest(snapshotReply(5, "a", "1"))
	h.checkFuture()
	assert.Equal(t, uint64(5), h.CurrentVersion())
	v, ok := h.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	h.ProcessMessage(revisionMessage(6, "a", "2"))
	assert.Equal(t, uint64(6), h.CurrentVersion())
	v, _ = h.Get("a")
	assert.Equal(t, "2", v)

	h.ProcessMessage(revisionMessage(7, "b", "3"))
	assert.Equal(t, uint64(7), h.CurrentVersion())
	v, _ = h.Get("b")
	assert.Equal(t, "3", v)

	// Gap: fed 9, current 7 -> not applied, triggers a fresh VHGETALL.
	h.ProcessMessage(revisionMessage(9, "x", "y"))
	assert.Equal(t, uint64(7), h.CurrentVersion(), "gapped revision must not apply")

	// The resilvering VHGETALL resolves to a fresh snapshot at 9.
	exec.resolveLatest(snapshotReply(9, "a", "2", "b", "3", "c", "4"))
	h.checkFuture()

	assert.Equal(t, uint64(9), h.CurrentVersion())
	v, ok = h.Get("c")
	require.True(t, ok)
	assert.Equal(t, "4", v)
}

func TestSharedHash_EqualOrOlderRevisionTriggersResilver(t *testing.T) {
	exec := &fakeExecutor{}
	h := newSharedHash(nil, exec, "mykey")
	exec.resolveLatest(snapshotReply(5, "a", "1"))
	h.checkFuture()

	applied := h.feedRevision(5, [][2]string{{"a", "2"}})
	assert.False(t, applied)
	assert.Equal(t, uint64(5), h.CurrentVersion())
	assert.Len(t, exec.snapshot, 2, "equal revision must issue a fresh VHGETALL")

	applied = h.feedRevision(4, [][2]string{{"a", "2"}})
	assert.False(t, applied)
	assert.Len(t, exec.snapshot, 3, "older revision must issue a fresh VHGETALL")
}

func TestSharedHash_EmptyValueDeletesField(t *testing.T) {
	exec := &fakeExecutor{}
	h := newSharedHash(nil, exec, "mykey")
	exec.resolveLatest(snapshotReply(1, "a", "1", "b", "2"))
	h.checkFuture()

	ok := h.feedRevision(2, [][2]string{{"a", ""}})
	assert.True(t, ok)
	_, found := h.Get("a")
	assert.False(t, found)
	v, found := h.Get("b")
	assert.True(t, found)
	assert.Equal(t, "2", v)
}

func TestSharedHash_ResilverReplacesContentsWholesaleEvenIfOlder(t *testing.T) {
	exec := &fakeExecutor{}
	h := newSharedHash(nil, exec, "mykey")
	exec.resolveLatest(snapshotReply(10, "a", "1"))
	h.checkFuture()
	assert.Equal(t, uint64(10), h.CurrentVersion())

	// An out-of-order, older snapshot is still authoritative (Open Question
	// in spec.md §9): it replaces state unconditionally.
	h.resilver(3, map[string]string{"z": "9"})
	assert.Equal(t, uint64(3), h.CurrentVersion())
	v, ok := h.Get("z")
	require.True(t, ok)
	assert.Equal(t, "9", v)
	_, ok = h.Get("a")
	assert.False(t, ok)
}

func TestSharedHash_SetBatchIssuesMultiWrappedVHSetVHDel(t *testing.T) {
	exec := &fakeExecutor{}
	h := newSharedHash(nil, exec, "mykey")
	exec.resolveLatest(snapshotReply(0))
	h.checkFuture()

	h.SetBatch(map[string]string{"a": "1", "b": ""})

	exec.mu.Lock()
	defer exec.mu.Unlock()
	var sawMulti, sawSet, sawDel, sawExec bool
	for _, call := range exec.calls {
		switch call[0].(string) {
		case "MULTI":
			sawMulti = true
		case "VHSET":
			sawSet = true
		case "VHDEL":
			sawDel = true
		case "EXEC":
			sawExec = true
		}
	}
	assert.True(t, sawMulti)
	assert.True(t, sawSet)
	assert.True(t, sawDel)
	assert.True(t, sawExec)
}
