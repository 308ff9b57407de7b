//go:build zmq

package transport

import (
	"context"
	"fmt"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// zmqPollInterval is how often a blocking receive wakes up to check its
// context and receive timeout.
const zmqPollInterval = 250 * time.Millisecond

// ZMQ implements Transport over ZeroMQ PUB/SUB sockets. The endpoint is
// passed through verbatim, so any ZeroMQ endpoint ("tcp://host:port",
// "ipc://...") works.
//
// Like the underlying library, the sockets it returns are not safe for
// concurrent use.
type ZMQ struct{}

func (ZMQ) Bind(endpoint string) (PubSocket, error) {
	s, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	if err := s.Bind(endpoint); err != nil {
		s.Close()
		if zmq.AsErrno(err) == zmq.Errno(syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %s", ErrAddrInUse, endpoint)
		}
		return nil, err
	}
	return &zmqPub{sock: s}, nil
}

func (ZMQ) Dial(endpoint, filter string, opts SubOptions) (SubSocket, error) {
	s, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, err
	}
	if err := s.SetSubscribe(filter); err != nil {
		s.Close()
		return nil, err
	}
	if opts.Conflate {
		// ZMQ_CONFLATE drops all but the newest message, but only for
		// single-frame messages: multipart messages are silently broken by
		// it, which is why the subscriber layer emulates conflation.
		if err := s.SetConflate(true); err != nil {
			s.Close()
			return nil, err
		}
	}
	if err := s.Connect(endpoint); err != nil {
		s.Close()
		return nil, err
	}
	return &zmqSub{sock: s, timeout: opts.RecvTimeout}, nil
}

type zmqPub struct {
	sock   *zmq.Socket
	closed bool
}

func (p *zmqPub) Send(frames [][]byte) error {
	if p.closed {
		return ErrClosed
	}
	for i, frame := range frames {
		flags := zmq.Flag(0)
		if i < len(frames)-1 {
			flags = zmq.SNDMORE
		}
		if _, err := p.sock.SendBytes(frame, flags); err != nil {
			return err
		}
	}
	return nil
}

func (p *zmqPub) Close() error {
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	return p.sock.Close()
}

type zmqSub struct {
	sock    *zmq.Socket
	timeout time.Duration
	closed  bool
}

func (s *zmqSub) Recv(ctx context.Context) ([][]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	poller := zmq.NewPoller()
	poller.Add(s.sock, zmq.POLLIN)

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ready, err := poller.Poll(zmqPollInterval)
		if err != nil {
			return nil, err
		}
		if len(ready) > 0 {
			return s.sock.RecvMessageBytes(0)
		}
		if s.timeout > 0 && time.Since(start) >= s.timeout {
			return nil, ErrWouldBlock
		}
	}
}

func (s *zmqSub) RecvNoWait() ([][]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	frames, err := s.sock.RecvMessageBytes(zmq.DONTWAIT)
	if err != nil {
		if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
			return nil, ErrWouldBlock
		}
		return nil, err
	}
	return frames, nil
}

func (s *zmqSub) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.sock.Close()
}
