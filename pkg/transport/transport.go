// Package transport abstracts the pub/sub socket layer: bind-and-multicast
// on the publishing side, connect-and-filter on the subscribing side, with
// atomic multi-frame send and receive.
//
// Two implementations ship with it: an in-process exchange used by tests,
// examples and single-process deployments, and a ZeroMQ-backed one compiled
// in with the "zmq" build tag.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrWouldBlock = errors.New("transport: no message available")
	ErrClosed     = errors.New("transport: socket closed")
	ErrAddrInUse  = errors.New("transport: endpoint already bound")
)

// SubOptions configures a subscribing socket at dial time.
type SubOptions struct {
	// Conflate asks the transport to retain only the newest pending
	// message. Native conflation does not support multi-frame messages:
	// subscribers that need conflated multi-frame delivery must drain the
	// socket manually instead of setting this.
	Conflate bool

	// RecvTimeout bounds blocking receives; expiry surfaces as
	// ErrWouldBlock. Zero means block indefinitely.
	RecvTimeout time.Duration
}

// PubSocket is a bound, outbound multicast socket. Not safe for concurrent
// use.
type PubSocket interface {
	// Send transmits frames as one atomic multipart message. Frame
	// contents may be shared with receivers; callers must not mutate them
	// after Send returns.
	Send(frames [][]byte) error
	Close() error
}

// SubSocket is a connected, filtered inbound socket. Not safe for
// concurrent use.
type SubSocket interface {
	// Recv blocks until a multipart message arrives, the configured
	// receive timeout expires, or ctx is done.
	Recv(ctx context.Context) ([][]byte, error)
	// RecvNoWait returns ErrWouldBlock when no message is pending.
	RecvNoWait() ([][]byte, error)
	Close() error
}

// Transport opens pub/sub sockets on named endpoints. A filter passed to
// Dial is a topic prefix matched against the leading bytes of frame 0; the
// empty filter matches everything.
type Transport interface {
	Bind(endpoint string) (PubSocket, error)
	Dial(endpoint, filter string, opts SubOptions) (SubSocket, error)
}
