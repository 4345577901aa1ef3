package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/update"
)

// Metrics holds the Prometheus collectors for the agent.
// It implements agent.Observer.
type Metrics struct {
	Actions     *prometheus.CounterVec
	Updates     *prometheus.CounterVec
	Reward      prometheus.Histogram
	TDError     prometheus.Histogram
	LogLines    prometheus.Counter
	RateLimited prometheus.Counter
	QTableSize  prometheus.Gauge
	DriftScore  prometheus.Gauge
	Epsilon     prometheus.Gauge
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics on reg. Tests pass a fresh registry.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Actions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rlops_actions_total",
				Help: "Actions selected by the agent",
			},
			[]string{"action", "mode"},
		),
		Updates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rlops_policy_updates_total",
				Help: "Q-value updates applied, by decision",
			},
			[]string{"decision"},
		),
		Reward: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rlops_update_reward",
			Help:    "Reward credited per policy update",
			Buckets: []float64{-5, -3, -2, -1, -0.5, 0, 0.5, 1, 2},
		}),
		TDError: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rlops_td_error",
			Help:    "Temporal-difference error per policy update",
			Buckets: prometheus.LinearBuckets(-4, 1, 9),
		}),
		LogLines: f.NewCounter(prometheus.CounterOpts{
			Name: "rlops_log_lines_total",
			Help: "Log lines processed",
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "rlops_grpc_rate_limited_total",
			Help: "gRPC requests rejected by the rate limiter",
		}),
		QTableSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "rlops_q_table_size",
			Help: "Distinct states in the Q-table",
		}),
		DriftScore: f.NewGauge(prometheus.GaugeOpts{
			Name: "rlops_drift_score",
			Help: "Mean absolute Q-value over the recent update window",
		}),
		Epsilon: f.NewGauge(prometheus.GaugeOpts{
			Name: "rlops_exploration_rate",
			Help: "Current epsilon",
		}),
	}
}

// ActionSelected counts an action choice.
func (m *Metrics) ActionSelected(a policy.Action, explored bool) {
	mode := "exploit"
	if explored {
		mode = "explore"
	}
	m.Actions.WithLabelValues(a.String(), mode).Inc()
}

// PolicyUpdated records one applied update.
func (m *Metrics) PolicyUpdated(entry policy.HistoryEntry, result update.UpdateResult) {
	m.Updates.WithLabelValues(result.Decision.Action).Inc()
	m.Reward.Observe(entry.Reward)
	m.TDError.Observe(result.Metrics.TDError)
}

// SetPolicy publishes point-in-time policy gauges.
func (m *Metrics) SetPolicy(qTableSize int, drift policy.DriftReport, epsilon float64) {
	m.QTableSize.Set(float64(qTableSize))
	m.DriftScore.Set(drift.DriftScore)
	m.Epsilon.Set(epsilon)
}
