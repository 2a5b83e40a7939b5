package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records the executor's metrics. NewMetricsRecorder
// returns the OpenTelemetry-backed implementation; NoopMetrics disables
// recording.
type MetricsRecorder interface {
	// RecordNodeExecution counts one node run with its latency and
	// whether it errored.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordGraphRun counts one finished execution.
	RecordGraphRun(ctx context.Context, success bool, duration time.Duration)

	// RecordCheckpoint records a checkpoint save with its payload size.
	RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64)
}

// hiveMetrics emits to the hive.* instrument namespace through the
// global OTel meter provider.
type hiveMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	graphRuns      metric.Int64Counter
	graphLatency   metric.Float64Histogram
	checkpointSize metric.Int64Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *hiveMetrics
	metricsErr  error
)

// NewMetricsRecorder returns the OTel-backed recorder. Instruments
// register once against whatever meter provider is globally configured;
// a registration failure downgrades to NoopMetrics with a logged
// warning rather than failing the runtime.
func NewMetricsRecorder() MetricsRecorder {
	metricsOnce.Do(func() {
		metricsInst, metricsErr = registerInstruments(otel.Meter("hive"))
	})
	if metricsErr != nil {
		slog.Warn("metrics unavailable, recording disabled", slog.String("error", metricsErr.Error()))
		return NoopMetrics{}
	}
	return metricsInst
}

func registerInstruments(meter metric.Meter) (*hiveMetrics, error) {
	m := &hiveMetrics{}
	var err error

	if m.nodeExecutions, err = meter.Int64Counter("hive.node.executions",
		metric.WithDescription("Node executions")); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("hive.node.latency_ms",
		metric.WithDescription("Node execution latency"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("hive.node.errors",
		metric.WithDescription("Node execution errors")); err != nil {
		return nil, err
	}
	if m.graphRuns, err = meter.Int64Counter("hive.graph.runs",
		metric.WithDescription("Completed executions")); err != nil {
		return nil, err
	}
	if m.graphLatency, err = meter.Float64Histogram("hive.graph.latency_ms",
		metric.WithDescription("Execution latency"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.checkpointSize, err = meter.Int64Histogram("hive.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint snapshot size"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *hiveMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	byNode := metric.WithAttributes(attribute.String("node_id", nodeID))
	m.nodeExecutions.Add(ctx, 1, byNode)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), byNode)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, byNode)
	}
}

func (m *hiveMetrics) RecordGraphRun(ctx context.Context, success bool, duration time.Duration) {
	byOutcome := metric.WithAttributes(attribute.Bool("success", success))
	m.graphRuns.Add(ctx, 1, byOutcome)
	m.graphLatency.Record(ctx, float64(duration.Milliseconds()), byOutcome)
}

func (m *hiveMetrics) RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("node_id", nodeID)))
}
