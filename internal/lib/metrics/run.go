package metrics

import (
	"context"
	"fmt"

	"github.com/asquebay/pautabot/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// RunMetrics - метрики одного запуска
// процесс живёт секунды, поэтому метрики не отдаются по /metrics,
// а отправляются в Pushgateway в конце запуска
type RunMetrics struct {
	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	notifications *prometheus.CounterVec
	deltas        prometheus.Gauge
	skipped       prometheus.Gauge
	lastSuccess   prometheus.Gauge
	duration      prometheus.Gauge
}

// NewRunMetrics регистрирует метрики в собственном реестре
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pautabot_runs_total",
				Help: "Completed runs by result.",
			},
			[]string{"result"}, // done | failed
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pautabot_notifications_total",
				Help: "Notification attempts by result.",
			},
			[]string{"result"}, // sent | failed
		),
		deltas: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pautabot_vendor_deltas",
			Help: "Vendors with a positive spend delta in the last run.",
		}),
		skipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pautabot_skipped_records",
			Help: "Malformed feed records skipped in the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pautabot_last_success_timestamp_seconds",
			Help: "Unix time of the last run that reached DONE.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pautabot_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
	}

	m.registry.MustRegister(m.runs, m.notifications, m.deltas, m.skipped, m.lastSuccess, m.duration)
	return m
}

// Observe записывает итог запуска; seconds - длительность запуска
func (m *RunMetrics) Observe(res model.RunResult, seconds float64, finishedAt int64) {
	if m == nil {
		return
	}

	result := "done"
	if res.Failed {
		result = "failed"
	} else {
		m.lastSuccess.Set(float64(finishedAt))
	}
	m.runs.WithLabelValues(result).Inc()
	m.notifications.WithLabelValues("sent").Add(float64(len(res.Notified)))
	m.notifications.WithLabelValues("failed").Add(float64(len(res.Failures)))
	m.deltas.Set(float64(len(res.Deltas)))
	m.skipped.Set(float64(res.SkippedRecords))
	m.duration.Set(seconds)
}

// Registry отдаёт реестр метрик
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push отправляет метрики в Pushgateway, заменяя прошлую группу job
func (m *RunMetrics) Push(ctx context.Context, url, job string) error {
	const op = "lib.metrics.RunMetrics.Push"

	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
