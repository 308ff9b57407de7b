package commlink

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricPublishCount      = []string{"commlink", "publish", "count"}
	MetricPublishBytes      = []string{"commlink", "publish", "bytes"}
	MetricPublishErrorCount = []string{"commlink", "publish", "error", "count"}
	MetricReceiveCount      = []string{"commlink", "receive", "count"}
	MetricDecodeErrorCount  = []string{"commlink", "receive", "decode", "error", "count"}
	// MetricDrainDepth samples how many pending messages one conflating
	// Get drained from its socket.
	MetricDrainDepth    = []string{"commlink", "receive", "drain", "depth"}
	MetricCacheHitCount = []string{"commlink", "cache", "hit", "count"}
)

type TelemetryLabel string

var (
	LabelEndpoint TelemetryLabel = "endpoint"
	LabelTopic    TelemetryLabel = "topic"
	LabelError    TelemetryLabel = "error"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
