// linkctl publishes or subscribes on a commlink endpoint from the shell.
// It is meant for poking at live systems: point it at a publisher to watch
// a topic, or let it generate traffic to exercise a subscriber.
//
// Build with the "zmq" tag to probe real endpoints; without it the tool
// runs against the process-local transport and is only useful for smoke
// testing the pipeline itself.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jeffacce/commlink"
	"github.com/jeffacce/commlink/pkg/payload"
)

var (
	pubMode = flag.Bool("pub", false, "publish instead of subscribing")
	cfgPath = flag.String("config", "", "path to a TOML config file")

	host     = flag.String("host", "", "endpoint host (overrides config)")
	port     = flag.Int("port", 0, "endpoint port (overrides config)")
	topics   = flag.String("topics", "", "comma-separated topics (overrides config)")
	keepOld  = flag.Bool("keep-old", false, "retain every message instead of conflating")
	legacy   = flag.Bool("legacy", false, "publish with the legacy copying encoder")
	interval = flag.Duration("interval", 0, "publish interval (overrides config)")
	count    = flag.Int("count", -1, "messages to publish, 0 for unlimited (overrides config)")
	padBytes = flag.Int("pad-bytes", -1, "attach a binary blob of this size to each message")
)

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := defaultProbeConfig()
	if *cfgPath != "" {
		var err error
		cfg, err = loadProbeConfig(*cfgPath)
		if err != nil {
			logger.Error("bad config", "error", err)
			os.Exit(1)
		}
	}
	applyFlagOverrides(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if *pubMode {
		err = runPublisher(ctx, logger, cfg)
	} else {
		err = runSubscriber(ctx, logger, cfg)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("probe failed", "error", err)
		os.Exit(1)
	}
}

func applyFlagOverrides(cfg *probeConfig) {
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *topics != "" {
		cfg.Topics = normalizeTopics(strings.Split(*topics, ","))
	}
	if *keepOld {
		cfg.KeepOld = true
	}
	if *legacy {
		cfg.Legacy = true
	}
	if *interval != 0 {
		cfg.Interval = *interval
	}
	if *count >= 0 {
		cfg.Count = *count
	}
	if *padBytes >= 0 {
		cfg.PadBytes = *padBytes
	}
}

func runPublisher(ctx context.Context, logger *slog.Logger, cfg probeConfig) error {
	if len(cfg.Topics) == 0 {
		return errors.New("publishing requires at least one topic")
	}

	opts := []commlink.Option{commlink.WithLog(logger.Handler())}
	if cfg.Legacy {
		opts = append(opts, commlink.WithLegacyEncoding())
	}
	pub, err := commlink.NewPublisher(cfg.Host, cfg.Port, opts...)
	if err != nil {
		return err
	}
	defer pub.Close()

	var pad payload.Blob
	if cfg.PadBytes > 0 {
		pad = make(payload.Blob, cfg.PadBytes)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for seq := 1; cfg.Count == 0 || seq <= cfg.Count; seq++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for _, topic := range cfg.Topics {
			msg := map[string]any{
				"seq": seq,
				"ts":  time.Now().UnixNano(),
			}
			if pad != nil {
				msg["pad"] = pad
			}
			if err := pub.Publish(topic, msg); err != nil {
				return err
			}
			logger.Info("published", "topic", topic, "seq", seq)
		}
	}
	return nil
}

func runSubscriber(ctx context.Context, logger *slog.Logger, cfg probeConfig) error {
	opts := []commlink.Option{
		commlink.WithLog(logger.Handler()),
		commlink.WithKeepOld(cfg.KeepOld),
	}
	sub, err := commlink.NewSubscriber(cfg.Host, cfg.Port, cfg.Topics, opts...)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		topic, value, err := sub.Get(ctx, commlink.GlobalTopic)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%v\n", topic, summarize(value))
	}
}

// summarize keeps blob-heavy messages readable on a terminal.
func summarize(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, elem := range m {
		if blob, ok := elem.(payload.Blob); ok {
			out[k] = fmt.Sprintf("<blob %dB>", len(blob))
			continue
		}
		out[k] = elem
	}
	return out
}
