// Package handshake defines the pluggable first-message protocol from
// spec.md §4.5, lifted out of redisconn/conn.go's inline AUTH/PING/SELECT
// sequence into the explicit interface original_source/include/qclient/QClient.hh
// declares as class Handshake.
package handshake

import (
	"github.com/joomcode/qclient-go/resp"
)

// Status is the externally visible state of a Handshake attempt.
type Status int

const (
	// Invalid means the connection must be dropped and reconnected.
	Invalid Status = iota
	// ValidIncomplete means keep exchanging frames.
	ValidIncomplete
	// ValidComplete means graduate to normal request/reply operation.
	ValidComplete
)

// Handshake is a pluggable state machine performed before user traffic.
type Handshake interface {
	// Provide returns the next frame(s) to send, already RESP-encoded.
	Provide() [][]byte
	// Validate inspects one server reply and returns the new status.
	Validate(reply resp.Reply) Status
	// Restart resets internal state before a new connection attempt.
	Restart()
}

// AuthSelect is a built-in handshake performing AUTH (if a password is set)
// followed by SELECT (if db != 0), mirroring redisconn/conn.go's dial()
// sequence but expressed as the explicit state machine spec.md requires.
type AuthSelect struct {
	Password string
	DB       int

	step int
}

func (h *AuthSelect) frames() [][]byte {
	var frames [][]byte
	if h.Password != "" {
		buf, _ := resp.AppendRequest(nil, "AUTH", h.Password)
		frames = append(frames, buf)
	}
	if h.DB != 0 {
		buf, _ := resp.AppendRequest(nil, "SELECT", h.DB)
		frames = append(frames, buf)
	}
	return frames
}

func (h *AuthSelect) Provide() [][]byte {
	return h.frames()
}

func (h *AuthSelect) Validate(reply resp.Reply) Status {
	if reply.IsError() {
		return Invalid
	}
	h.step++
	if h.step >= len(h.frames()) {
		return ValidComplete
	}
	return ValidIncomplete
}

func (h *AuthSelect) Restart() {
	h.step = 0
}
