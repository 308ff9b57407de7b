package commlink

import (
	"log/slog"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/jeffacce/commlink/pkg/payload"
	"github.com/jeffacce/commlink/pkg/transport"
)

type config struct {
	transport    transport.Transport
	codec        payload.Codec
	logHandler   slog.Handler
	msink        metrics.MetricSink
	metricLabels []metrics.Label

	legacy      bool
	keepOld     bool
	recvTimeout time.Duration
}

// Option to pass to `NewPublisher` or `NewSubscriber`.
type Option func(*config) error

// WithTransport replaces the default socket transport. Use
// `transport.NewInproc()` to wire a publisher and subscribers together
// inside one process.
func WithTransport(tr transport.Transport) Option {
	return func(c *config) error {
		c.transport = tr
		return nil
	}
}

// WithCodec replaces the payload serialization engine on both ends of a
// link. Both ends must agree on it.
func WithCodec(codec payload.Codec) Option {
	return func(c *config) error {
		c.codec = codec
		return nil
	}
}

// WithLog specifies which `slog.Handler` to use.
func WithLog(handler slog.Handler) Option {
	return func(c *config) error {
		c.logHandler = handler
		return nil
	}
}

// WithMetricSink allows you to choose how to collect the emitted metrics.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all emitted metrics.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels
		return nil
	}
}

// WithLegacyEncoding makes a publisher emit the two-frame copying wire
// format readable by subscribers that predate out-of-band buffers.
func WithLegacyEncoding() Option {
	return func(c *config) error {
		c.legacy = true
		return nil
	}
}

// WithKeepOld makes a subscriber retain every pending message instead of
// conflating to the newest one per topic. Get then performs a plain
// blocking receive and no cache is kept.
func WithKeepOld(keep bool) Option {
	return func(c *config) error {
		c.keepOld = keep
		return nil
	}
}

// WithRecvTimeout bounds every blocking receive on a subscriber's sockets.
// Expiry surfaces as `transport.ErrWouldBlock`. Zero (the default) blocks
// indefinitely.
func WithRecvTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		c.recvTimeout = timeout
		return nil
	}
}
