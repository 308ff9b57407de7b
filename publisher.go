package commlink

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-metrics"

	"github.com/jeffacce/commlink/pkg/payload"
	"github.com/jeffacce/commlink/pkg/transport"
	"github.com/jeffacce/commlink/pkg/wire"
)

// Publisher owns one bound outbound socket and fans every published
// message out to the connected subscribers whose filter matches. Delivery
// is best-effort: nothing is retained for subscribers that connect later.
//
// Not safe for concurrent use.
type Publisher struct {
	logger *slog.Logger
	msink  metrics.MetricSink
	labels []metrics.Label

	endpoint string
	sock     transport.PubSocket
	codec    payload.Codec
	closed   bool
}

// NewPublisher binds a publishing socket at tcp://host:port. The endpoint
// being already in use surfaces as `ErrBind`.
func NewPublisher(host string, port int, opts ...Option) (*Publisher, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("tcp://%s:%d", host, port)
	sock, err := cfg.transport.Bind(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBind, err)
	}

	return &Publisher{
		logger:   cfg.logger().With(LabelEndpoint.L(endpoint)),
		msink:    cfg.msink,
		labels:   cfg.metricLabels,
		endpoint: endpoint,
		sock:     sock,
		codec:    cfg.payloadCodec(),
	}, nil
}

// Publish encodes value and sends it to topic as one atomic multipart
// message. Topics must not contain a space; see `wire.ValidateTopic`.
func (p *Publisher) Publish(topic string, value any) error {
	if p.closed {
		return ErrPublisherClosed
	}

	frames, err := wire.Encode(topic, value, p.codec)
	if err != nil {
		return err
	}
	if err := p.sock.Send(frames); err != nil {
		p.msink.IncrCounterWithLabels(MetricPublishErrorCount, 1, p.labels)
		return err
	}

	var sent int
	for _, frame := range frames {
		sent += len(frame)
	}
	p.msink.IncrCounterWithLabels(MetricPublishCount, 1, p.labels)
	p.msink.IncrCounterWithLabels(MetricPublishBytes, float32(sent), p.labels)
	return nil
}

// Close releases the bound socket. The publisher is unusable afterwards.
func (p *Publisher) Close() error {
	if p.closed {
		return ErrPublisherClosed
	}
	p.closed = true
	return p.sock.Close()
}

func buildConfig(opts []Option) (*config, error) {
	cfg := &config{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}
	if cfg.transport == nil {
		cfg.transport = transport.Default()
	}
	if cfg.msink == nil {
		cfg.msink = metrics.Default()
	}
	return cfg, nil
}

func (c *config) logger() *slog.Logger {
	if c.logHandler != nil {
		return slog.New(c.logHandler)
	}
	return slog.Default()
}

func (c *config) payloadCodec() payload.Codec {
	if c.codec != nil {
		return c.codec
	}
	if c.legacy {
		return payload.NewInlineMsgpackCodec()
	}
	return payload.NewMsgpackCodec()
}
