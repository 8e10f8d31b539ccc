// Package sharedhash implements the client-local replica of a server-side
// versioned hash from spec.md §4.9, grounded on
// original_source/src/shared/SharedHash.cc: snapshot-plus-revision-stream
// replication with resilvering on gap or rollback.
package sharedhash

import (
	"log"
	"sync"

	"github.com/joomcode/qclient-go/resp"
	"github.com/joomcode/qclient-go/stager"
)

// Executor is the subset of *qclient.Client a SharedHash needs. Declared
// structurally here (rather than imported from qclient) so this package has
// no dependency on qclient's connection machinery, only on its facade.
type Executor interface {
	Execute(cmd string, args ...interface{}) *stager.FutureSink
	ExecuteCallback(cb stager.Callback, cmd string, args ...interface{})
}

// SharedHash is a client-local replica of a server-side hash keyed by key,
// updated via pub/sub channel "__vhash@<key>". See Manager for how incoming
// pub/sub messages and connection-established events reach ProcessMessage
// and onConnectionEstablished.
type SharedHash struct {
	manager *Manager
	client  Executor
	key     string

	mu       sync.RWMutex
	version  uint64
	contents map[string]string

	futureMu sync.Mutex
	future   *stager.FutureSink
}

func newSharedHash(manager *Manager, client Executor, key string) *SharedHash {
	h := &SharedHash{manager: manager, client: client, key: key, contents: map[string]string{}}
	h.triggerResilvering()
	return h
}

// Key returns the hash's key.
func (h *SharedHash) Key() string { return h.key }

// Get reads field under a shared lock. Eventually consistent: see
// spec.md §4.9.
func (h *SharedHash) Get(field string) (string, bool) {
	h.checkFuture()
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.contents[field]
	return v, ok
}

// CurrentVersion returns the locally applied revision.
func (h *SharedHash) CurrentVersion() uint64 {
	h.checkFuture()
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Set issues a pipelined MULTI of VHSET/VHDEL for a single field,
// fire-and-forget, per spec.md §4.9.
func (h *SharedHash) Set(field, value string) {
	h.SetBatch(map[string]string{field: value})
}

// Del is equivalent to Set(field, "").
func (h *SharedHash) Del(field string) {
	h.Set(field, "")
}

// SetBatch issues one pipelined MULTI containing a VHSET per non-empty
// value and a VHDEL per empty one, fire-and-forget.
func (h *SharedHash) SetBatch(batch map[string]string) {
	if len(batch) == 0 {
		return
	}
	h.client.ExecuteCallback(nil, "MULTI")
	for field, value := range batch {
		if value == "" {
			h.client.ExecuteCallback(nil, "VHDEL", h.key, field)
		} else {
			h.client.ExecuteCallback(nil, "VHSET", h.key, field, value)
		}
	}
	h.client.ExecuteCallback(nil, "EXEC")
}

// Close deregisters this hash from its owning Manager. Safe to call once;
// per Design Notes' "listener back-references" guidance, this is the
// explicit close() standing in for the original's destructor-time
// deregistration.
func (h *SharedHash) Close() {
	if h.manager != nil {
		h.manager.forget(h.key)
	}
}

// triggerResilvering asynchronously issues VHGETALL and holds the resulting
// future in a slot for the next checkFuture to pick up.
func (h *SharedHash) triggerResilvering() {
	h.futureMu.Lock()
	h.future = h.client.Execute("VHGETALL", h.key)
	h.futureMu.Unlock()
}

// checkFuture polls the resilvering slot non-blocking and applies it once
// ready, per spec.md §4.9's "poll the slot on every operation" rule.
func (h *SharedHash) checkFuture() {
	h.futureMu.Lock()
	f := h.future
	if f == nil {
		h.futureMu.Unlock()
		return
	}
	select {
	case <-f.Done():
		h.future = nil
		h.futureMu.Unlock()
	default:
		h.futureMu.Unlock()
		return
	}

	reply, err := f.Wait()
	if err != nil {
		return
	}
	h.applySnapshot(reply)
}

// applySnapshot parses a VHGETALL reply of shape [revision, [k1,v1,...]]
// and resilvers on success. Parse errors are logged and ignored, per
// spec.md §4.9.
func (h *SharedHash) applySnapshot(reply resp.Reply) {
	revision, contents, ok := parseSnapshot(reply)
	if !ok {
		log.Printf("sharedhash: key %s: could not parse VHGETALL snapshot", h.key)
		return
	}
	h.resilver(revision, contents)
}

func parseSnapshot(reply resp.Reply) (uint64, map[string]string, bool) {
	if reply.Kind != resp.KindArray || len(reply.Array) != 2 {
		return 0, nil, false
	}
	revEl := reply.Array[0]
	if revEl.Kind != resp.KindInt {
		return 0, nil, false
	}
	items := reply.Array[1]
	if items.Kind != resp.KindArray || len(items.Array)%2 != 0 {
		return 0, nil, false
	}
	contents := make(map[string]string, len(items.Array)/2)
	for i := 0; i+1 < len(items.Array); i += 2 {
		k, v := items.Array[i], items.Array[i+1]
		if k.Kind != resp.KindBulk || v.Kind != resp.KindBulk {
			return 0, nil, false
		}
		contents[string(k.Bulk)] = string(v.Bulk)
	}
	return uint64(revEl.Int), contents, true
}

// resilver replaces contents wholesale, authoritatively, even if revision is
// older than the current version (Open Question in spec.md §9: preserved,
// with the anomaly logged).
func (h *SharedHash) resilver(revision uint64, contents map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if revision < h.version {
		log.Printf("sharedhash: key %s resilvered with older revision %d (current %d)", h.key, revision, h.version)
	}
	h.version = revision
	h.contents = contents
}

// ProcessMessage decodes a "__vhash@<key>" pub/sub payload (itself a
// RESP-encoded [revision, [k1,v1,...]] frame) and feeds it as a revision
// update.
func (h *SharedHash) ProcessMessage(payload []byte) {
	h.checkFuture()

	reader := resp.NewReader()
	reader.Feed(payload)
	reply, ok, err := reader.GetReply()
	if err != nil || !ok {
		log.Printf("sharedhash: key %s: could not parse incoming revision message", h.key)
		return
	}
	if reply.Kind != resp.KindArray || len(reply.Array) != 2 {
		return
	}
	revEl := reply.Array[0]
	if revEl.Kind != resp.KindInt {
		return
	}
	items := reply.Array[1]
	if items.Kind != resp.KindArray || len(items.Array)%2 != 0 {
		return
	}
	updates := make([][2]string, 0, len(items.Array)/2)
	for i := 0; i+1 < len(items.Array); i += 2 {
		k, v := items.Array[i], items.Array[i+1]
		if k.Kind != resp.KindBulk {
			return
		}
		val := ""
		if v.Kind == resp.KindBulk {
			val = string(v.Bulk)
		}
		updates = append(updates, [2]string{string(k.Bulk), val})
	}
	h.feedRevision(uint64(revEl.Int), updates)
}

// feedRevision implements spec.md §4.9's contiguity rule exactly.
func (h *SharedHash) feedRevision(revision uint64, updates [][2]string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if revision <= h.version {
		log.Printf("sharedhash: key %s fed revision %d not newer than current %d, resilvering", h.key, revision, h.version)
		h.triggerResilvering()
		return false
	}
	if revision >= h.version+2 {
		log.Printf("sharedhash: key %s has a gap: fed revision %d, current %d, resilvering", h.key, revision, h.version)
		h.triggerResilvering()
		return false
	}

	for _, kv := range updates {
		if kv[1] == "" {
			delete(h.contents, kv[0])
		} else {
			h.contents[kv[0]] = kv[1]
		}
	}
	h.version = revision
	return true
}

// onConnectionEstablished re-triggers resilvering, per spec.md §4.9: "on
// every connection_established, trigger resilvering".
func (h *SharedHash) onConnectionEstablished() {
	h.triggerResilvering()
	h.checkFuture()
}
