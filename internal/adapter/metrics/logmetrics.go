package metrics

import (
	"github.com/sirupsen/logrus"

	"github.com/switchguard/switchguard/internal/ports"
)

// LogMetricsSink emits counters and gauges as structured log records. The
// sink sits behind ports.MetricsSink, so a real exporter can replace it
// without touching the orchestrator.
type LogMetricsSink struct {
	logger *logrus.Logger
}

func NewLogMetricsSink(logger *logrus.Logger) *LogMetricsSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogMetricsSink{logger: logger}
}

func (s *LogMetricsSink) Count(name string, dimensions map[string]string, value float64) {
	s.emit("counter", name, dimensions, value)
}

func (s *LogMetricsSink) Gauge(name string, dimensions map[string]string, value float64) {
	s.emit("gauge", name, dimensions, value)
}

func (s *LogMetricsSink) emit(kind, name string, dimensions map[string]string, value float64) {
	fields := logrus.Fields{
		"event_type":  "metric",
		"metric_kind": kind,
		"metric_name": name,
		"value":       value,
	}
	for k, v := range dimensions {
		fields["dim_"+k] = v
	}
	s.logger.WithFields(fields).Info("metric emitted")
}

var _ ports.MetricsSink = (*LogMetricsSink)(nil)
