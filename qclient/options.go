package qclient

import (
	"time"

	"github.com/joomcode/qclient-go/endpoint"
	"github.com/joomcode/qclient-go/handshake"
	"github.com/joomcode/qclient-go/stager"
	"github.com/joomcode/qclient-go/transport"
)

const (
	defaultBackoffStart = time.Millisecond
	defaultBackoffCap   = 2 * time.Second
	defaultRecvBuffer   = 2 * 1024
	defaultDialTimeout  = time.Second
	defaultIOTimeout    = time.Second
)

// Options is the public construction surface from spec.md §6.
type Options struct {
	Members              endpoint.Members
	TransparentRedirects bool
	Retry                stager.RetryStrategy
	Backpressure         stager.BackpressureStrategy
	TLS                  transport.TLSConfig
	Handshake            handshake.Handshake
	// Listener is attached to the Engine automatically on construction.
	// BaseSubscriber instead takes its MessageListener as an explicit
	// constructor argument (and requires a non-nil one), since it must
	// handle messages, not just connection lifecycle.
	Listener     Listener
	Logger       Logger
	DialTimeout  time.Duration
	IOTimeout    time.Duration
	BackoffStart time.Duration
	BackoffCap   time.Duration
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = DefaultLogger()
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = defaultIOTimeout
	}
	if o.BackoffStart <= 0 {
		o.BackoffStart = defaultBackoffStart
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = defaultBackoffCap
	}
}
