package qclient

import (
	"github.com/joomcode/qclient-go/endpoint"
	"github.com/joomcode/qclient-go/handshake"
	"github.com/joomcode/qclient-go/qerrors"
	"github.com/joomcode/qclient-go/resp"
	"github.com/joomcode/qclient-go/transport"
)

// performHandshake drives hs to completion by writing its frames directly
// to stream and blocking for the matching replies, looping Provide()/
// Validate() until ValidComplete or Invalid, per spec.md §4.5. A multi-round
// challenge-response Handshake calls Provide() again after ValidIncomplete
// (only the built-in AuthSelect happens to hand back every frame on its
// first call); shared by Engine and BaseSubscriber so both graduate such a
// handshake correctly, and so neither ever activates its normal
// request/reply path until this returns.
func performHandshake(hs handshake.Handshake, stream transport.Stream, target endpoint.Endpoint) (invalid bool, err error) {
	reader := resp.NewReader()
	buf := make([]byte, defaultRecvBuffer)
	for {
		frames := hs.Provide()
		if len(frames) == 0 {
			return false, nil
		}
		for _, frame := range frames {
			if _, alive := stream.Send(frame); !alive {
				return false, qerrors.IO.New("handshake write to %s failed", target.String())
			}
		}
		var status handshake.Status
		for range frames {
			reply, rerr := readOneBlocking(stream, reader, buf)
			if rerr != nil {
				return false, rerr
			}
			status = hs.Validate(reply)
			if status == handshake.Invalid {
				return true, nil
			}
		}
		if status == handshake.ValidComplete {
			return false, nil
		}
	}
}

// readOneBlocking blocks until the next complete reply is parsed out of
// stream, feeding reader as bytes arrive.
func readOneBlocking(stream transport.Stream, reader *resp.Reader, buf []byte) (resp.Reply, error) {
	for {
		if reply, ok, err := reader.GetReply(); err != nil {
			return resp.Reply{}, err
		} else if ok {
			return reply, nil
		}
		n, alive := stream.Recv(buf)
		if !alive {
			return resp.Reply{}, qerrors.IO.New("connection broken during handshake")
		}
		if n > 0 {
			reader.Feed(buf[:n])
		}
	}
}
