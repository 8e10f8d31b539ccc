package sharedhash

import (
	"strings"
	"sync"

	"github.com/joomcode/qclient-go/qclient"
)

const channelPrefix = "__vhash@"

// Manager owns one Client connection used for VHSET/VHDEL/VHGETALL traffic
// and one BaseSubscriber subscribed to every managed key's "__vhash@<key>"
// channel, demultiplexing incoming messages to the right SharedHash.
// Grounded on SharedManager's role in original_source/src/shared/SharedHash.cc
// ("sm->getQClient()", "sm->getSubscriber()->subscribe(...)"), generalized
// here into an explicit, exported type since BaseSubscriber.hh itself notes
// demultiplexing is "a job for a higher level class".
type Manager struct {
	client *qclient.Client
	sub    *qclient.BaseSubscriber

	mu     sync.Mutex
	hashes map[string]*SharedHash
}

// NewManager constructs a Manager managing exactly the hashes named by
// keys. clientOpts and subOpts must carry independent Handshake instances
// (a Handshake is stateful per connection and cannot be shared between the
// two underlying engines).
func NewManager(clientOpts qclient.Options, subOpts qclient.Options, keys []string) *Manager {
	channels := make([]string, len(keys))
	for i, k := range keys {
		channels[i] = channelPrefix + k
	}

	m := &Manager{
		client: qclient.New(clientOpts),
		hashes: make(map[string]*SharedHash, len(keys)),
	}
	for _, k := range keys {
		m.hashes[k] = newSharedHash(m, m.client, k)
	}

	m.client.AttachListener(m)

	m.sub = qclient.NewBaseSubscriber(subOpts, qclient.SubscriptionOptions{Channels: channels}, m)
	m.sub.Start()
	return m
}

// Hash returns the managed SharedHash for key, if any.
func (m *Manager) Hash(key string) (*SharedHash, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	return h, ok
}

// Close tears down both underlying connections.
func (m *Manager) Close() {
	m.client.DetachListener(m)
	m.client.Close()
	m.sub.Close()
}

func (m *Manager) forget(key string) {
	m.mu.Lock()
	delete(m.hashes, key)
	m.mu.Unlock()
}

// OnMessage implements qclient.MessageListener, demultiplexing by channel
// name.
func (m *Manager) OnMessage(msg qclient.Message) {
	if msg.Kind != qclient.KindMessage || !strings.HasPrefix(msg.Channel, channelPrefix) {
		return
	}
	key := msg.Channel[len(channelPrefix):]
	m.mu.Lock()
	h := m.hashes[key]
	m.mu.Unlock()
	if h != nil {
		h.ProcessMessage(msg.Payload)
	}
}

// ConnectionEstablished implements qclient.Listener/MessageListener: every
// managed hash resilvers whenever either underlying connection comes back up
// — the subscriber (a new subscription may have missed revisions) or the
// command client (a VHGETALL reissued after its own reconnect can't be
// trusted to be contiguous with whatever the subscriber already applied
// either). Grounded on qcl->attachListener(this) in
// original_source/src/shared/SharedHash.cc, which attaches the same
// SharedManager to both its QClient and its subscriber.
func (m *Manager) ConnectionEstablished(epoch uint64) {
	m.mu.Lock()
	hashes := make([]*SharedHash, 0, len(m.hashes))
	for _, h := range m.hashes {
		hashes = append(hashes, h)
	}
	m.mu.Unlock()
	for _, h := range hashes {
		h.onConnectionEstablished()
	}
}

// ConnectionLost implements qclient.Listener/MessageListener. SharedHash
// itself does nothing on disconnect, mirroring
// SharedHash::notifyConnectionLost's empty body in the original.
func (m *Manager) ConnectionLost(epoch uint64, err error) {}
