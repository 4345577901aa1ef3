package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/rlops-agent/internal/policy"
)

// #region eval-harness
// EvalHarness derives drift reports and stability checks from policy history.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	if config.Window <= 0 {
		config.Window = DefaultEvalConfig().Window
	}
	return &EvalHarness{config: config}
}

// Drift summarises the last Window history entries. With fewer than two
// entries it returns a zero report.
func (h *EvalHarness) Drift(history []policy.HistoryEntry) policy.DriftReport {
	if len(history) < 2 {
		return policy.DriftReport{}
	}

	recent := history
	if len(recent) > h.config.Window {
		recent = recent[len(recent)-h.config.Window:]
	}

	var absQ, rewards float64
	for _, e := range recent {
		absQ += math.Abs(e.QValue)
		rewards += e.Reward
	}
	n := float64(len(recent))
	return policy.DriftReport{
		DriftScore:      absQ / n,
		TotalUpdates:    len(history),
		RecentAvgReward: rewards / n,
	}
}

// Stability labels a drift score against the configured thresholds.
func (h *EvalHarness) Stability(drift float64) Stability {
	switch {
	case drift < h.config.StableMax:
		return Stable
	case drift < h.config.ModerateMax:
		return Moderate
	default:
		return HighDrift
	}
}

// Run checks the history for a usable drift window and a bounded drift
// score. It never blocks learning; callers use it for reporting.
func (h *EvalHarness) Run(history []policy.HistoryEntry) EvalResult {
	report := h.Drift(history)
	stability := h.Stability(report.DriftScore)

	enough := len(history) >= 2
	bounded := stability != HighDrift
	metrics := []EvalMetric{
		{Name: "history_len", Value: float64(len(history)), Pass: enough},
		{Name: "drift_score", Value: report.DriftScore, Pass: bounded},
		{Name: "recent_avg_reward", Value: report.RecentAvgReward, Pass: true},
	}

	reason := "all checks passed"
	passed := enough && bounded
	switch {
	case !enough:
		reason = fmt.Sprintf("insufficient history: %d updates", len(history))
	case !bounded:
		reason = fmt.Sprintf("drift score %.4f at or above %.4f", report.DriftScore, h.config.ModerateMax)
	}

	return EvalResult{
		Passed:    passed,
		Stability: stability,
		Metrics:   metrics,
		Reason:    reason,
	}
}

// #endregion eval-harness
