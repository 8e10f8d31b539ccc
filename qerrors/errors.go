// Package qerrors defines the error taxonomy shared by every qclient-go
// package, built on top of github.com/joomcode/errorx the same way
// redisconn and rediscluster register properties and namespaces on it.
package qerrors

import (
	"github.com/joomcode/errorx"
)

// Namespace groups every error this module raises, mirroring the way
// rediscluster scopes ErrCluster under its own namespace.
var Namespace = errorx.NewNamespace("qclient")

var (
	// Opts - construction options are invalid (no members, nil context, ...).
	Opts = Namespace.NewType("opts")
	// Connection - connect/dial/handshake failed, or a request was staged
	// while no connection was ever established and backpressure forbids waiting.
	Connection = Namespace.NewType("connection")
	// IO - read/write/timeout on an established stream; outcome of the
	// in-flight request is unknown.
	IO = Namespace.NewType("io")
	// Protocol - the RESP reader could not make sense of the byte stream,
	// or a reply arrived with no pending request to pair it with.
	Protocol = Namespace.NewType("protocol")
	// Request - the caller's request itself is malformed (bad argument type,
	// malformed transaction shape) and will never succeed no matter how many
	// times it is retried.
	Request = Namespace.NewType("request")
	// Result - a well-formed RESP error reply from the server (not a
	// transport or protocol failure); surfaced to the caller unchanged.
	Result = Namespace.NewType("result")
	// Shutdown - the client was closed; pending requests settled per retry policy.
	Shutdown = Namespace.NewType("shutdown")
)

var (
	// Addr is the endpoint a connection-related error refers to.
	Addr = errorx.RegisterProperty("addr")
	// Cmd is the command name of the request a request-related error refers to.
	Cmd = errorx.RegisterProperty("cmd")
	// RawMessage is the raw RESP error text for Result-kind errors.
	RawMessage = errorx.RegisterProperty("message")
)

// IsResult reports whether err is a plain RESP error reply from the server,
// as opposed to a transport/protocol failure the engine itself raised.
func IsResult(err error) bool {
	return errorx.IsOfType(err, Result)
}

// HardError reports whether err should cause the connection to be dropped
// and reconnection attempted, mirroring redis.Error.HardError in the teacher:
// everything except a plain server-side Result error is "hard".
func HardError(err error) bool {
	if err == nil {
		return false
	}
	return !IsResult(err)
}
