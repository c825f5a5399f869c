package distlimiter

import (
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
)

// telemetry bundles the optional logger and metrics sink shared by both
// primitives: an injectable hclog.Logger plus nil-checked *metrics.Metrics
// calls, rather than a global singleton.
type telemetry struct {
	logger hclog.Logger
	sink   *metrics.Metrics
}

func newTelemetry(logger hclog.Logger, sink *metrics.Metrics) telemetry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return telemetry{logger: logger, sink: sink}
}

func (t telemetry) incrCounter(key []string, labels ...metrics.Label) {
	if t.sink == nil {
		return
	}
	t.sink.IncrCounterWithLabels(key, 1, labels)
}

func (t telemetry) measureSince(key []string, start time.Time, labels ...metrics.Label) {
	if t.sink == nil {
		return
	}
	t.sink.MeasureSinceWithLabels(key, start, labels)
}
