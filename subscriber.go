package commlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-metrics"

	"github.com/jeffacce/commlink/pkg/payload"
	"github.com/jeffacce/commlink/pkg/transport"
	"github.com/jeffacce/commlink/pkg/wire"
)

// GlobalTopic addresses the subscriber's global socket, which receives
// every topic published on the endpoint.
const GlobalTopic = ""

type cacheEntry struct {
	topic string
	value any
}

// Subscriber multiplexes one global socket plus one dedicated socket per
// topic named at construction, and exposes a pull-based Get.
//
// Unless `WithKeepOld(true)` is set, Get conflates: it returns the most
// recent message for the topic and, once a topic has delivered anything,
// falls back to the cached last value instead of blocking. The transport's
// native keep-only-newest mode does not support multi-frame messages, so
// conflation is emulated by draining the socket.
//
// Not safe for concurrent use.
type Subscriber struct {
	logger *slog.Logger
	msink  metrics.MetricSink
	labels []metrics.Label

	endpoint string
	keepOld  bool
	codec    payload.Codec

	// sockets is keyed by topic; GlobalTopic maps to the global socket.
	// Entries are created eagerly at construction and never removed until
	// Close.
	sockets map[string]transport.SubSocket
	cache   map[string]cacheEntry
	closed  bool
}

// NewSubscriber connects to tcp://host:port. One socket subscribes to
// everything; each topic in topics additionally gets a dedicated socket so
// its messages can be pulled independently. Duplicate topics are
// deduplicated silently.
func NewSubscriber(host string, port int, topics []string, opts ...Option) (*Subscriber, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	for _, topic := range topics {
		if topic == GlobalTopic {
			return nil, fmt.Errorf("%w: empty topic", wire.ErrTopicInvalid)
		}
		if err := wire.ValidateTopic(topic); err != nil {
			return nil, err
		}
	}

	endpoint := fmt.Sprintf("tcp://%s:%d", host, port)
	s := &Subscriber{
		logger:   cfg.logger().With(LabelEndpoint.L(endpoint)),
		msink:    cfg.msink,
		labels:   cfg.metricLabels,
		endpoint: endpoint,
		keepOld:  cfg.keepOld,
		codec:    cfg.payloadCodec(),
		sockets:  make(map[string]transport.SubSocket, len(topics)+1),
		cache:    make(map[string]cacheEntry),
	}

	if len(topics) == 0 && !cfg.keepOld {
		s.logger.Warn("subscribing to all topics without keep-old retains only " +
			"the newest message across every topic; name topics or set WithKeepOld(true)")
	}

	// Conflate is deliberately never set: it only works for single-frame
	// messages, and ours are multipart. Get emulates it instead.
	sockOpts := transport.SubOptions{RecvTimeout: cfg.recvTimeout}

	global, err := cfg.transport.Dial(endpoint, "", sockOpts)
	if err != nil {
		return nil, err
	}
	s.sockets[GlobalTopic] = global

	for _, topic := range topics {
		if _, ok := s.sockets[topic]; ok {
			continue
		}
		sock, err := cfg.transport.Dial(endpoint, topic, sockOpts)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.sockets[topic] = sock
	}
	return s, nil
}

// Get returns the next (topic, value) pair for topic, or from the global
// socket when topic is GlobalTopic. Calling it for a topic that was not
// named at construction fails with ErrTopicNotRegistered.
//
// With keep-old set it performs one blocking receive. Otherwise it drains
// the socket and takes one of three exits: the last message drained; the
// cached value when the drain found nothing; or, when no cache entry
// exists either, one blocking receive. Blocking receives are bounded by
// ctx and the configured receive timeout.
func (s *Subscriber) Get(ctx context.Context, topic string) (string, any, error) {
	if s.closed {
		return "", nil, ErrSubscriberClosed
	}
	sock, ok := s.sockets[topic]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrTopicNotRegistered, topic)
	}

	if s.keepOld {
		frames, err := sock.Recv(ctx)
		if err != nil {
			return "", nil, err
		}
		return s.decode(frames)
	}
	return s.getConflated(ctx, topic, sock)
}

// getConflated is the emulated-conflation receive path.
func (s *Subscriber) getConflated(ctx context.Context, topic string, sock transport.SubSocket) (string, any, error) {
	var (
		last    cacheEntry
		got     bool
		drained int
	)
	for {
		frames, err := sock.RecvNoWait()
		if errors.Is(err, transport.ErrWouldBlock) {
			break
		}
		if err != nil {
			return "", nil, err
		}
		drained++
		msgTopic, value, err := s.decode(frames)
		if err != nil {
			// A bad message does not abort the drain: skip it and keep
			// looking for the newest decodable one.
			s.logger.Warn("dropping undecodable message",
				LabelTopic.L(topic), LabelError.L(err))
			continue
		}
		last = cacheEntry{topic: msgTopic, value: value}
		got = true
	}
	s.msink.AddSampleWithLabels(MetricDrainDepth, float32(drained), s.labels)

	if got {
		s.cache[topic] = last
		return last.topic, last.value, nil
	}
	if entry, ok := s.cache[topic]; ok {
		s.msink.IncrCounterWithLabels(MetricCacheHitCount, 1, s.labels)
		return entry.topic, entry.value, nil
	}

	// Nothing in flight and nothing ever received: wait for the first
	// message.
	frames, err := sock.Recv(ctx)
	if err != nil {
		return "", nil, err
	}
	msgTopic, value, err := s.decode(frames)
	if err != nil {
		return "", nil, err
	}
	s.cache[topic] = cacheEntry{topic: msgTopic, value: value}
	return msgTopic, value, nil
}

func (s *Subscriber) decode(frames [][]byte) (string, any, error) {
	topic, value, err := wire.Decode(frames, s.codec)
	if err != nil {
		s.msink.IncrCounterWithLabels(MetricDecodeErrorCount, 1, s.labels)
		return "", nil, err
	}
	s.msink.IncrCounterWithLabels(MetricReceiveCount, 1, s.labels)
	return topic, value, nil
}

// Close closes every owned socket. Further Get calls fail with
// ErrSubscriberClosed.
func (s *Subscriber) Close() error {
	if s.closed {
		return ErrSubscriberClosed
	}
	s.closed = true
	var errs []error
	for _, sock := range s.sockets {
		if err := sock.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
