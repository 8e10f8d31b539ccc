package qclient

import (
	"sync/atomic"

	"github.com/joomcode/qclient-go/endpoint"
	"github.com/joomcode/qclient-go/qerrors"
	"github.com/joomcode/qclient-go/resp"
	"github.com/joomcode/qclient-go/stager"
	"github.com/joomcode/qclient-go/transport"
)

// Engine is the single long-lived logical connection from spec.md §4.6: it
// owns the reconnect/read loop, handshake sequencing, redirection and
// backoff, and drives a RequestStager across reconnects. Grounded on
// redisconn/conn.go's dial/control/reconnect trio, restructured from N
// shards to the single FIFO stager.RequestStager needs.
type Engine struct {
	opts   Options
	dial   *dialLoop
	stager *stager.RequestStager
	listen listenerSet

	state int32
	epoch uint64

	shutdownCh chan struct{}
	doneCh     chan struct{}
}

// NewEngine constructs an Engine. Call Start to begin connecting.
func NewEngine(opts Options) *Engine {
	opts.setDefaults()
	shutdownCh := make(chan struct{})
	e := &Engine{
		opts:       opts,
		dial:       newDialLoop(opts, shutdownCh),
		stager:     stager.New(opts.Backpressure, opts.Retry),
		shutdownCh: shutdownCh,
		doneCh:     make(chan struct{}),
	}
	if opts.Listener != nil {
		e.AttachListener(opts.Listener)
	}
	return e
}

// Start launches the connection engine's background goroutine.
func (e *Engine) Start() {
	go e.run()
}

// Close requests shutdown and blocks until the engine's goroutine exits.
func (e *Engine) Close() {
	select {
	case <-e.shutdownCh:
	default:
		close(e.shutdownCh)
	}
	<-e.doneCh
}

// State reports the engine's current connection state.
func (e *Engine) State() State {
	return State(atomic.LoadInt32(&e.state))
}

// Epoch reports the current connection epoch (0 before the first successful
// connection).
func (e *Engine) Epoch() uint64 {
	return atomic.LoadUint64(&e.epoch)
}

// AttachListener registers l for connection_lost/connection_established
// notifications, per spec.md §4.8.
func (e *Engine) AttachListener(l Listener) { e.listen.attach(l) }

// DetachListener removes a previously attached listener.
func (e *Engine) DetachListener(l Listener) { e.listen.detach(l) }

// Stage enqueues an already-encoded request for delivery, returning once it
// has been accepted onto the pending queue (which may block under
// PendingLimit backpressure).
func (e *Engine) Stage(encoded []byte, sink stager.Sink) {
	e.stager.Stage(&stager.StagedRequest{Encoded: encoded, Sink: sink}, false)
}

func (e *Engine) setState(s State) {
	atomic.StoreInt32(&e.state, int32(s))
}

func (e *Engine) run() {
	defer close(e.doneCh)
	for {
		select {
		case <-e.shutdownCh:
			e.finalShutdown()
			return
		default:
		}

		target := e.dial.selectEndpoint()
		e.setState(StateConnecting)
		stream := e.dial.connectWithBackoff(target)
		if stream == nil {
			e.finalShutdown()
			return
		}
		e.serve(stream, target)
	}
}

// serve drives one connection generation end to end: handshake directly over
// the raw stream, then — only once the handshake has actually completed —
// activation of the stager's writer and replay of whatever requests survived
// the previous disconnect, then the read loop, until the stream fails, a
// redirect is received, or shutdown is requested.
//
// Handshake frames are written straight to stream instead of through
// e.stager: Stage always pushes to the front of the pending deque, so
// anything staged here would still land behind requests that were already
// pending across a reconnect (WithTimeout/InfiniteRetries) once Activate
// rebuilds the unsent batch oldest-first. Gating Activate until after the
// handshake completes is what actually keeps replayed application requests
// from reaching the wire ahead of AUTH/HELLO.
func (e *Engine) serve(stream transport.Stream, target endpoint.Endpoint) {
	e.setState(StateHandshaking)

	if e.opts.Handshake != nil {
		e.opts.Handshake.Restart()
		invalid, err := performHandshake(e.opts.Handshake, stream, target)
		if err != nil {
			stream.Close()
			e.onDisconnect(target, err)
			return
		}
		if invalid {
			e.opts.Logger.Report(LogHandshakeInvalid, target)
			stream.Close()
			e.onDisconnect(target, qerrors.Connection.New("handshake with %s rejected", target.String()))
			return
		}
	}

	stopWriter := make(chan struct{})
	go e.stager.RunWriter(stopWriter)
	e.stager.Activate(stream)
	defer func() {
		close(stopWriter)
		e.stager.Deactivate()
		stream.Close()
	}()

	e.enterConnected(target)

	reader := resp.NewReader()
	buf := make([]byte, defaultRecvBuffer)
	for {
		select {
		case <-e.shutdownCh:
			return
		default:
		}

		n, alive := stream.Recv(buf)
		if !alive {
			e.onDisconnect(target, qerrors.IO.New("connection to %s broken", target.String()))
			return
		}
		if n == 0 {
			continue // read deadline tick; re-check shutdown
		}
		reader.Feed(buf[:n])

		for {
			reply, ok, err := reader.GetReply()
			if err != nil {
				e.onDisconnect(target, err)
				return
			}
			if !ok {
				break
			}
			if ferr := e.feed(reply); ferr != nil {
				e.onDisconnect(target, ferr)
				return
			}
		}
	}
}

// feed implements spec.md §4.6's Feed(reply) dispatch.
func (e *Engine) feed(reply resp.Reply) error {
	if e.opts.TransparentRedirects {
		if target, ok := parseMoved(reply); ok {
			e.dial.redirected = &target
			e.opts.Logger.Report(LogRedirecting, target)
			return qerrors.Connection.New("redirected to %s", target.String())
		}
	}
	return e.stager.Satisfy(reply, nil)
}

func (e *Engine) enterConnected(target endpoint.Endpoint) {
	e.setState(StateConnected)
	epoch := atomic.AddUint64(&e.epoch, 1)
	e.opts.Logger.Report(LogConnected, target)
	e.listen.emitEstablished(epoch)
}

func (e *Engine) onDisconnect(target endpoint.Endpoint, err error) {
	e.setState(StateDisconnected)
	e.opts.Logger.Report(LogDisconnected, target, err)
	e.stager.OnDisconnected(err)
	e.listen.emitLost(e.Epoch(), err)
}

// finalShutdown settles every pending request unconditionally: there will
// be no further reconnect to honour WithTimeout/InfiniteRetries against.
func (e *Engine) finalShutdown() {
	e.setState(StateClosed)
	e.stager.ClearPending(qerrors.Shutdown.New("client closed"))
}
