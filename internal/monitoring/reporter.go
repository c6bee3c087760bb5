// Package monitoring is the error escalation sink for failures that
// exhausted their retries: it logs them structured and counts them in
// Prometheus so alerts can fire on the rate.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aagii9912/smarthub-sub002/internal/logger"
)

// Reporter captures exhausted failures. It satisfies both the retry
// service's and the job queue's reporter interfaces.
type Reporter struct {
	log     logger.Logger
	counter *prometheus.CounterVec
}

func NewReporter(log logger.Logger, reg prometheus.Registerer) *Reporter {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_exhausted_failures_total",
		Help: "Operations that failed after exhausting all retry attempts.",
	}, []string{"operation"})
	reg.MustRegister(counter)
	return &Reporter{log: log, counter: counter}
}

// Capture records one exhausted failure. It never fails back to callers.
func (r *Reporter) Capture(err error, fields map[string]any) {
	operation := "unknown"
	if op, ok := fields["operation"].(string); ok && op != "" {
		operation = op
	} else if jt, ok := fields["job_type"].(string); ok && jt != "" {
		operation = "job:" + jt
	}
	r.counter.WithLabelValues(operation).Inc()

	logFields := make([]logger.Field, 0, len(fields)+2)
	logFields = append(logFields, logger.String("operation", operation), logger.Error(err))
	for k, v := range fields {
		if k == "operation" {
			continue
		}
		logFields = append(logFields, logger.Any(k, v))
	}
	r.log.Error("operation exhausted all attempts", logFields...)
}
