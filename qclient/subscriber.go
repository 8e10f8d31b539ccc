package qclient

import (
	"sync/atomic"

	"github.com/joomcode/qclient-go/endpoint"
	"github.com/joomcode/qclient-go/qerrors"
	"github.com/joomcode/qclient-go/resp"
	"github.com/joomcode/qclient-go/transport"
)

// MessageKind tags the shape of an incoming pub/sub array reply, per
// spec.md §4.7.
type MessageKind int

const (
	KindMessage MessageKind = iota
	KindPMessage
	KindOther
)

// Message is a parsed pub/sub delivery (or, for KindOther, any other reply
// arriving in subscription mode — including a subscribe/unsubscribe
// confirmation, which spec.md §4.7 says is still forwarded to the listener).
type Message struct {
	Kind    MessageKind
	Pattern string // set for KindPMessage
	Channel string
	Payload []byte
	Raw     resp.Reply
}

// MessageListener is BaseSubscriber's single, mandatory listener: connection
// lifecycle plus message delivery, all invoked from the subscriber's own
// goroutine, per spec.md §4.8's "must not block" rule.
type MessageListener interface {
	Listener
	OnMessage(msg Message)
}

// SubscriptionOptions lists the channels and patterns subscribed to at
// handshake completion, per spec.md §4.7's SubscriptionOptions.
type SubscriptionOptions struct {
	Channels []string
	Patterns []string
}

func (o SubscriptionOptions) frames() ([][]byte, error) {
	var frames [][]byte
	if len(o.Channels) > 0 {
		args := make([]interface{}, len(o.Channels))
		for i, c := range o.Channels {
			args[i] = c
		}
		buf, err := resp.AppendRequest(nil, "SUBSCRIBE", args...)
		if err != nil {
			return nil, err
		}
		frames = append(frames, buf)
	}
	if len(o.Patterns) > 0 {
		args := make([]interface{}, len(o.Patterns))
		for i, p := range o.Patterns {
			args[i] = p
		}
		buf, err := resp.AppendRequest(nil, "PSUBSCRIBE", args...)
		if err != nil {
			return nil, err
		}
		frames = append(frames, buf)
	}
	return frames, nil
}

// BaseSubscriber is a second connection-engine instance placed in pub/sub
// mode, per spec.md §4.7: a low-level class that models a RESP connection
// subscribed to channels/patterns, forwarding everything it reads to one
// listener with no request/reply pairing. The teacher doesn't implement
// subscribing at all ("this connector doesn't implement subscribing
// mode" — doc.go); this is grounded instead on
// original_source/include/qclient/BaseSubscriber.hh.
type BaseSubscriber struct {
	opts     Options
	dial     *dialLoop
	sub      SubscriptionOptions
	listener MessageListener

	state int32
	epoch uint64

	shutdownCh chan struct{}
	doneCh     chan struct{}

	handshakeInvalid bool
}

// NewBaseSubscriber constructs a BaseSubscriber. A nil listener is a fatal
// precondition violation, per spec.md §4.7 ("non-null; invalid
// configuration is a fatal precondition violation").
func NewBaseSubscriber(opts Options, sub SubscriptionOptions, listener MessageListener) *BaseSubscriber {
	if listener == nil {
		panic("qclient: BaseSubscriber requires a non-nil listener")
	}
	opts.setDefaults()
	shutdownCh := make(chan struct{})
	return &BaseSubscriber{
		opts:       opts,
		dial:       newDialLoop(opts, shutdownCh),
		sub:        sub,
		listener:   listener,
		shutdownCh: shutdownCh,
		doneCh:     make(chan struct{}),
	}
}

func (b *BaseSubscriber) Start() { go b.run() }

func (b *BaseSubscriber) Close() {
	select {
	case <-b.shutdownCh:
	default:
		close(b.shutdownCh)
	}
	<-b.doneCh
}

func (b *BaseSubscriber) State() State { return State(atomic.LoadInt32(&b.state)) }
func (b *BaseSubscriber) Epoch() uint64 { return atomic.LoadUint64(&b.epoch) }

func (b *BaseSubscriber) setState(s State) { atomic.StoreInt32(&b.state, int32(s)) }

func (b *BaseSubscriber) run() {
	defer close(b.doneCh)
	for {
		select {
		case <-b.shutdownCh:
			b.setState(StateClosed)
			return
		default:
		}

		target := b.dial.selectEndpoint()
		b.setState(StateConnecting)
		stream := b.dial.connectWithBackoff(target)
		if stream == nil {
			b.setState(StateClosed)
			return
		}
		b.serve(stream, target)
	}
}

func (b *BaseSubscriber) serve(stream transport.Stream, target endpoint.Endpoint) {
	b.setState(StateHandshaking)
	defer stream.Close()

	b.handshakeInvalid = false
	if b.opts.Handshake != nil {
		b.opts.Handshake.Restart()
		invalid, err := performHandshake(b.opts.Handshake, stream, target)
		if err != nil {
			return
		}
		b.handshakeInvalid = invalid
	}
	if b.handshakeInvalid {
		b.opts.Logger.Report(LogHandshakeInvalid, target)
		return
	}

	frames, err := b.sub.frames()
	if err != nil {
		b.opts.Logger.Report(LogConnectFailed, target, err)
		return
	}
	for _, frame := range frames {
		if _, alive := stream.Send(frame); !alive {
			return
		}
	}

	b.enterConnected(target)

	reader := resp.NewReader()
	buf := make([]byte, defaultRecvBuffer)
	for {
		select {
		case <-b.shutdownCh:
			return
		default:
		}
		n, alive := stream.Recv(buf)
		if !alive {
			b.onDisconnect(target, qerrors.IO.New("subscription connection to %s broken", target.String()))
			return
		}
		if n == 0 {
			continue
		}
		reader.Feed(buf[:n])
		for {
			reply, ok, err := reader.GetReply()
			if err != nil {
				b.onDisconnect(target, err)
				return
			}
			if !ok {
				break
			}
			b.listener.OnMessage(classify(reply))
		}
	}
}

// classify recognizes ["message",channel,payload] and
// ["pmessage",pattern,channel,payload] shapes; anything else is KindOther,
// per spec.md §4.7's "still forwarded to the listener" rule for
// subscribe/unsubscribe confirmations.
func classify(reply resp.Reply) Message {
	if reply.Kind != resp.KindArray {
		return Message{Kind: KindOther, Raw: reply}
	}
	a := reply.Array
	if len(a) == 3 && bulkEquals(a[0], "message") {
		return Message{
			Kind:    KindMessage,
			Channel: bulkString(a[1]),
			Payload: a[2].Bulk,
			Raw:     reply,
		}
	}
	if len(a) == 4 && bulkEquals(a[0], "pmessage") {
		return Message{
			Kind:    KindPMessage,
			Pattern: bulkString(a[1]),
			Channel: bulkString(a[2]),
			Payload: a[3].Bulk,
			Raw:     reply,
		}
	}
	return Message{Kind: KindOther, Raw: reply}
}

func bulkEquals(r resp.Reply, s string) bool {
	return r.Kind == resp.KindBulk && string(r.Bulk) == s
}

func bulkString(r resp.Reply) string {
	if r.Kind == resp.KindBulk {
		return string(r.Bulk)
	}
	return ""
}

func (b *BaseSubscriber) enterConnected(target endpoint.Endpoint) {
	b.setState(StateConnected)
	epoch := atomic.AddUint64(&b.epoch, 1)
	b.opts.Logger.Report(LogConnected, target)
	b.listener.ConnectionEstablished(epoch)
}

func (b *BaseSubscriber) onDisconnect(target endpoint.Endpoint, err error) {
	b.setState(StateDisconnected)
	b.opts.Logger.Report(LogDisconnected, target, err)
	b.listener.ConnectionLost(b.Epoch(), err)
}
