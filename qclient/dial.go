package qclient

import (
	"time"

	"github.com/joomcode/qclient-go/endpoint"
	"github.com/joomcode/qclient-go/intercept"
	"github.com/joomcode/qclient-go/transport"
)

// dialLoop is the round-robin/redirect/backoff machinery shared by Engine
// and BaseSubscriber: both are "a single logical connection to one of
// several cluster members" per spec.md §1, differing only in what they do
// with the bytes once connected.
type dialLoop struct {
	members endpoint.Members
	tls     transport.TLSConfig
	logger  Logger

	dialTimeout  time.Duration
	ioTimeout    time.Duration
	backoffStart time.Duration
	backoffCap   time.Duration

	shutdownCh chan struct{}

	// Touched only by the owning goroutine.
	redirected *endpoint.Endpoint
}

func newDialLoop(opts Options, shutdownCh chan struct{}) *dialLoop {
	return &dialLoop{
		members:      opts.Members,
		tls:          opts.TLS,
		logger:       opts.Logger,
		dialTimeout:  opts.DialTimeout,
		ioTimeout:    opts.IOTimeout,
		backoffStart: opts.BackoffStart,
		backoffCap:   opts.BackoffCap,
		shutdownCh:   shutdownCh,
	}
}

// selectEndpoint implements spec.md §4.6.1: a redirect override, consumed
// exactly once, takes priority over round-robin; intercepts are applied last.
func (d *dialLoop) selectEndpoint() endpoint.Endpoint {
	var target endpoint.Endpoint
	if d.redirected != nil {
		target = *d.redirected
		d.redirected = nil
		d.logger.Report(LogRedirectionCleared, target)
	} else {
		target = d.members.Next()
	}
	return intercept.Resolve(target)
}

// connectWithBackoff dials target, retrying with exponential backoff
// (capped) until it succeeds or shutdown is requested, in which case it
// returns a nil stream.
func (d *dialLoop) connectWithBackoff(target endpoint.Endpoint) transport.Stream {
	backoff := d.backoffStart
	for {
		select {
		case <-d.shutdownCh:
			return nil
		default:
		}
		d.logger.Report(LogConnecting, target)

		stream, err := transport.Dial(target, d.dialTimeout, d.ioTimeout, d.tls)
		if err == nil {
			return stream
		}
		d.logger.Report(LogConnectFailed, target, err)

		select {
		case <-d.shutdownCh:
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > d.backoffCap {
			backoff = d.backoffCap
		}
	}
}
