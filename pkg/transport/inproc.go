package transport

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// defaultQueueDepth bounds a non-conflating subscription. Messages beyond
// it are dropped rather than stalling the publisher.
const defaultQueueDepth = 1024

// Inproc is a process-local Transport. Endpoints are plain string keys, so
// the usual "tcp://host:port" endpoints work unchanged; no network I/O
// happens. Delivery is synchronous with Send, which makes it deterministic
// enough for tests.
type Inproc struct {
	mu        sync.Mutex
	exchanges map[string]*exchange
}

func NewInproc() *Inproc {
	return &Inproc{exchanges: make(map[string]*exchange)}
}

func (t *Inproc) exchange(endpoint string) *exchange {
	t.mu.Lock()
	defer t.mu.Unlock()
	ex, ok := t.exchanges[endpoint]
	if !ok {
		ex = &exchange{subs: make(map[int]*inprocSub)}
		t.exchanges[endpoint] = ex
	}
	return ex
}

func (t *Inproc) Bind(endpoint string) (PubSocket, error) {
	ex := t.exchange(endpoint)
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.bound {
		return nil, ErrAddrInUse
	}
	ex.bound = true
	return &inprocPub{ex: ex}, nil
}

func (t *Inproc) Dial(endpoint, filter string, opts SubOptions) (SubSocket, error) {
	ex := t.exchange(endpoint)
	depth := defaultQueueDepth
	if opts.Conflate {
		depth = 1
	}
	sub := &inprocSub{
		ex:       ex,
		filter:   []byte(filter),
		conflate: opts.Conflate,
		timeout:  opts.RecvTimeout,
		ch:       make(chan [][]byte, depth),
		closeCh:  make(chan struct{}),
	}

	ex.mu.Lock()
	sub.id = ex.nextID
	ex.nextID++
	ex.subs[sub.id] = sub
	ex.mu.Unlock()
	return sub, nil
}

// exchange fans one bound publisher out to its connected subscriptions.
type exchange struct {
	mu     sync.Mutex
	bound  bool
	nextID int
	subs   map[int]*inprocSub
}

type inprocPub struct {
	ex     *exchange
	closed bool
}

func (p *inprocPub) Send(frames [][]byte) error {
	if p.closed {
		return ErrClosed
	}
	p.ex.mu.Lock()
	defer p.ex.mu.Unlock()
	for _, sub := range p.ex.subs {
		if !bytes.HasPrefix(frames[0], sub.filter) {
			continue
		}
		sub.deliver(frames)
	}
	return nil
}

func (p *inprocPub) Close() error {
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	p.ex.mu.Lock()
	p.ex.bound = false
	p.ex.mu.Unlock()
	return nil
}

type inprocSub struct {
	ex       *exchange
	id       int
	filter   []byte
	conflate bool
	timeout  time.Duration

	ch        chan [][]byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func (s *inprocSub) deliver(frames [][]byte) {
	if s.conflate {
		// Keep only the newest pending message. Works here for any frame
		// count because a multipart message is queued as one unit; real
		// socket transports do not offer that for multi-frame messages.
		for {
			select {
			case s.ch <- frames:
				return
			default:
				select {
				case <-s.ch:
				default:
				}
			}
		}
	}
	select {
	case s.ch <- frames:
	default:
		// queue full, drop
	}
}

func (s *inprocSub) Recv(ctx context.Context) ([][]byte, error) {
	select {
	case frames := <-s.ch:
		return frames, nil
	default:
	}

	var expire <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		expire = timer.C
	}

	select {
	case frames := <-s.ch:
		return frames, nil
	case <-expire:
		return nil, ErrWouldBlock
	case <-s.closeCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *inprocSub) RecvNoWait() ([][]byte, error) {
	select {
	case <-s.closeCh:
		return nil, ErrClosed
	default:
	}
	select {
	case frames := <-s.ch:
		return frames, nil
	default:
		return nil, ErrWouldBlock
	}
}

func (s *inprocSub) Close() error {
	s.closeOnce.Do(func() {
		s.ex.mu.Lock()
		delete(s.ex.subs, s.id)
		s.ex.mu.Unlock()
		close(s.closeCh)
	})
	return nil
}
