// Package endpoint models cluster member addresses, following the
// host/port bookkeeping the teacher's rediscluster package does for its
// node map, simplified to the flat ordered list spec.md's Members requires.
package endpoint

import (
	"fmt"
	"sync/atomic"
)

// Endpoint is an immutable (host, port) pair.
type Endpoint struct {
	Host string
	Port uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

func (e Endpoint) IsZero() bool {
	return e.Host == "" && e.Port == 0
}

// Members is a non-empty, immutable, ordered list of candidate Endpoints
// with an internal round-robin cursor for Next.
type Members struct {
	endpoints []Endpoint
	cursor    uint64
}

// New builds a Members list. It panics on an empty list: spec.md requires
// at least one member, and a client cannot be constructed otherwise.
func New(endpoints ...Endpoint) Members {
	if len(endpoints) == 0 {
		panic("endpoint: Members requires at least one endpoint")
	}
	cp := make([]Endpoint, len(endpoints))
	copy(cp, endpoints)
	return Members{endpoints: cp}
}

func (m Members) Size() int {
	return len(m.endpoints)
}

func (m Members) At(i int) Endpoint {
	return m.endpoints[i%len(m.endpoints)]
}

// Next returns the next candidate in round-robin order. Safe for concurrent use.
func (m *Members) Next() Endpoint {
	i := atomic.AddUint64(&m.cursor, 1) - 1
	return m.endpoints[i%uint64(len(m.endpoints))]
}
