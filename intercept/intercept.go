// Package intercept implements the process-wide test-only (host,port)
// rewrite table described in spec.md §4.3, grounded on
// original_source/src/QClient.cc's static `intercepts` map and addIntercept/
// clearIntercepts free functions.
package intercept

import (
	"sync"

	"github.com/joomcode/qclient-go/endpoint"
)

var (
	mu    sync.Mutex
	table = map[endpoint.Endpoint]endpoint.Endpoint{}
)

// Add registers a rewrite: connections targeting (host,port) will instead
// be dialed against (host2,port2). Adding the same pair twice is idempotent.
func Add(host string, port uint16, host2 string, port2 uint16) {
	mu.Lock()
	defer mu.Unlock()
	table[endpoint.Endpoint{Host: host, Port: port}] = endpoint.Endpoint{Host: host2, Port: port2}
}

// Clear removes every registered intercept.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	table = map[endpoint.Endpoint]endpoint.Endpoint{}
}

// Resolve returns the intercepted target for e, or e itself if unmapped.
func Resolve(e endpoint.Endpoint) endpoint.Endpoint {
	mu.Lock()
	defer mu.Unlock()
	if mapped, ok := table[e]; ok {
		return mapped
	}
	return e
}
