package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/update"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg), reg
}

func TestActionSelected(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.ActionSelected(policy.Monitor, false)
	m.ActionSelected(policy.Monitor, false)
	m.ActionSelected(policy.Rollback, true)

	if got := testutil.ToFloat64(m.Actions.WithLabelValues("monitor", "exploit")); got != 2 {
		t.Errorf("expected 2 exploit monitor, got %v", got)
	}
	if got := testutil.ToFloat64(m.Actions.WithLabelValues("rollback", "explore")); got != 1 {
		t.Errorf("expected 1 explore rollback, got %v", got)
	}
}

func TestPolicyUpdated(t *testing.T) {
	m, reg := newTestMetrics(t)
	result := update.UpdateResult{
		NewQ:     -0.23,
		Decision: update.Decision{Action: "commit"},
		Metrics:  update.Metrics{TDError: -2.3},
	}
	m.PolicyUpdated(policy.HistoryEntry{Reward: -2.3}, result)

	if got := testutil.ToFloat64(m.Updates.WithLabelValues("commit")); got != 1 {
		t.Errorf("expected 1 commit, got %v", got)
	}
	if n := testutil.CollectAndCount(m.Reward); n != 1 {
		t.Errorf("expected reward histogram to be collected, got %d", n)
	}
	count, err := testutil.GatherAndCount(reg, "rlops_td_error")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Errorf("expected td error series, got %d", count)
	}
}

func TestSetPolicy(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.SetPolicy(3, policy.DriftReport{DriftScore: 0.17}, 0.1)

	if got := testutil.ToFloat64(m.QTableSize); got != 3 {
		t.Errorf("expected q table size 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.DriftScore); got != 0.17 {
		t.Errorf("expected drift 0.17, got %v", got)
	}
	if got := testutil.ToFloat64(m.Epsilon); got != 0.1 {
		t.Errorf("expected epsilon 0.1, got %v", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// registering twice on distinct registries must not panic
	newTestMetrics(t)
	newTestMetrics(t)
}
