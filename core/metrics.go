package core

import "context"

const (
	metricOperationTotal    = "formsync.operation.total"
	metricOperationDuration = "formsync.operation.duration_ms"
)

// Metric tags are limited to low-cardinality identifiers.
var metricTagKeys = []string{"operation", "outcome", "base_id"}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}

func (s *Service) recordOperation(ctx context.Context, tags map[string]string, elapsedMS int64) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, metricOperationTotal, 1, tags)
	s.metricsRecorder.ObserveHistogram(ctx, metricOperationDuration, float64(elapsedMS), tags)
}
