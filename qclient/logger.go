// Package qclient implements the connection engine, listener plumbing and
// public client facade from spec.md §4.6-4.8, grounded on
// redisconn/conn.go's dial/control/reconnect loop and
// original_source/src/QClient.cc's eventLoop/connect/feed.
package qclient

import (
	"log"

	"github.com/joomcode/qclient-go/endpoint"
)

// LogKind tags the event a Logger.Report call describes, mirroring
// redisconn/logger.go's LogKind enum.
type LogKind int

const (
	LogConnecting LogKind = iota
	LogConnected
	LogConnectFailed
	LogDisconnected
	LogHandshakeInvalid
	LogRedirecting
	LogRedirectionCleared
	LogShutdown
)

// Logger receives connection-engine lifecycle events. v carries
// event-specific detail, following redisconn's variadic Report signature.
type Logger interface {
	Report(event LogKind, target endpoint.Endpoint, v ...interface{})
}

type defaultLogger struct{}

// DefaultLogger reports every event to the standard library logger,
// matching redisconn's defaultLogger fallback.
func DefaultLogger() Logger { return defaultLogger{} }

func (defaultLogger) Report(event LogKind, target endpoint.Endpoint, v ...interface{}) {
	switch event {
	case LogConnecting:
		log.Printf("qclient: connecting to %s", target)
	case LogConnected:
		log.Printf("qclient: connected to %s", target)
	case LogConnectFailed:
		log.Printf("qclient: connect to %s failed: %v", target, v[0])
	case LogDisconnected:
		log.Printf("qclient: connection to %s broken: %v", target, v[0])
	case LogHandshakeInvalid:
		log.Printf("qclient: handshake with %s rejected", target)
	case LogRedirecting:
		log.Printf("qclient: redirected to %s", target)
	case LogRedirectionCleared:
		log.Printf("qclient: consuming redirect override, dialing %s", target)
	case LogShutdown:
		log.Printf("qclient: connection to %s shut down", target)
	default:
		args := []interface{}{"qclient: unexpected event", event, target}
		args = append(args, v...)
		log.Print(args...)
	}
}
