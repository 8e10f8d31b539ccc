package qclient

import (
	"strconv"
	"strings"

	"github.com/joomcode/qclient-go/endpoint"
	"github.com/joomcode/qclient-go/resp"
)

// parseMoved recognizes a `MOVED <slot> <host>:<port>` error reply per
// spec.md §6. The slot field is ignored; single-hop redirection only, not
// full cluster-slot caching.
func parseMoved(reply resp.Reply) (endpoint.Endpoint, bool) {
	text, isErr := reply.ErrorText()
	if !isErr {
		return endpoint.Endpoint{}, false
	}
	fields := strings.Fields(text)
	if len(fields) != 3 || fields[0] != "MOVED" {
		return endpoint.Endpoint{}, false
	}
	hostPort := fields[2]
	idx := strings.LastIndexByte(hostPort, ':')
	if idx < 0 {
		return endpoint.Endpoint{}, false
	}
	port, err := strconv.ParseUint(hostPort[idx+1:], 10, 16)
	if err != nil {
		return endpoint.Endpoint{}, false
	}
	return endpoint.Endpoint{Host: hostPort[:idx], Port: uint16(port)}, true
}
