package app

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielpatrickdp/rlops-agent/internal/agent"
	"github.com/danielpatrickdp/rlops-agent/internal/config"
	"github.com/danielpatrickdp/rlops-agent/internal/eval"
	"github.com/danielpatrickdp/rlops-agent/internal/logging"
	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/report"
	"github.com/danielpatrickdp/rlops-agent/internal/snapshot"
	"github.com/danielpatrickdp/rlops-agent/internal/state"
)

const sampleLog = "2024-01-15 10:30:00 ERROR: Database connection timeout\n" +
	"2024-01-15 10:31:00 CRITICAL: Service failure\n" +
	"2024-01-15 10:32:00 INFO: System recovery\n"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig(t *testing.T, snapshots bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Agent.Epsilon = 0
	cfg.Agent.Seed = 1
	cfg.Paths.LogFile = filepath.Join(dir, "app.log")
	cfg.Paths.PolicyFile = filepath.Join(dir, "current_policy.json")
	cfg.Paths.ReportCSV = filepath.Join(dir, "reports", "policy_report.csv")
	if snapshots {
		cfg.Paths.SnapshotDB = filepath.Join(dir, "snapshots.db")
	}
	if err := os.WriteFile(cfg.Paths.LogFile, []byte(sampleLog), 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { a.Close() })
	return a
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDailyFreshStart(t *testing.T) {
	cfg := testConfig(t, false)
	a := newApp(t, cfg)

	res, err := a.Daily(context.Background(), cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	r := res.DailyReport
	if r.Date != "2026-03-01" {
		t.Fatalf("expected date 2026-03-01, got %s", r.Date)
	}
	if r.TotalPolicyUpdates != 2 || r.QTableSize != 3 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if !approx(r.DriftScore, 0.17) || !approx(r.AvgReward, -0.6) {
		t.Fatalf("expected drift 0.17 and reward -0.6, got %+v", r)
	}
	if res.Trends.Sufficient() {
		t.Fatalf("expected insufficient data after one day, got %+v", res.Trends)
	}
	if res.Summary.LearningSteps != 2 {
		t.Fatalf("expected 2 learning steps, got %d", res.Summary.LearningSteps)
	}
	if res.VersionID != "" {
		t.Fatalf("expected no snapshot without a store, got %s", res.VersionID)
	}

	doc, err := policy.Load(cfg.Paths.PolicyFile)
	if err != nil {
		t.Fatalf("policy not saved: %v", err)
	}
	if len(doc.PolicyHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(doc.PolicyHistory))
	}
}

func TestDailyAccumulatesAcrossRuns(t *testing.T) {
	cfg := testConfig(t, false)

	if _, err := newApp(t, cfg).Daily(context.Background(), cfg.Paths.LogFile); err != nil {
		t.Fatalf("first Daily: %v", err)
	}
	res, err := newApp(t, cfg).Daily(context.Background(), cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("second Daily: %v", err)
	}
	if res.DailyReport.TotalPolicyUpdates != 4 {
		t.Fatalf("expected history to carry over to 4 updates, got %d", res.DailyReport.TotalPolicyUpdates)
	}
	if !res.Trends.Sufficient() || res.Trends.TotalDays != 2 {
		t.Fatalf("expected two-day trend, got %+v", res.Trends)
	}

	rows, err := report.LoadCSV(cfg.Paths.ReportCSV)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 csv rows, got %d", len(rows))
	}
}

func TestLoadPolicyCorruptFile(t *testing.T) {
	cfg := testConfig(t, false)
	if err := os.WriteFile(cfg.Paths.PolicyFile, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	a := newApp(t, cfg)
	if _, err := a.Learn(context.Background(), cfg.Paths.LogFile); err == nil {
		t.Fatal("expected corrupt policy to fail")
	}
}

func TestLearnMissingLogIsNoOp(t *testing.T) {
	cfg := testConfig(t, true)
	a := newApp(t, cfg)

	res, err := a.Learn(context.Background(), filepath.Join(t.TempDir(), "missing.log"))
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if res.Stats.Lines != 0 || res.VersionID != "" {
		t.Fatalf("expected empty run, got %+v", res)
	}

	entries, err := logging.ListDecisions(a.Store.DB(), 10)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 1 || entries[0].Decision != logging.DecisionNoOp {
		t.Fatalf("expected one no_op decision, got %+v", entries)
	}
	if entries[0].TriggerType != logging.TriggerLearn {
		t.Fatalf("expected learn trigger, got %s", entries[0].TriggerType)
	}
}

func TestLearnCommitsSnapshot(t *testing.T) {
	cfg := testConfig(t, true)
	a := newApp(t, cfg)

	res, err := a.Learn(context.Background(), cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if res.Stats.Updates != 2 || res.VersionID == "" {
		t.Fatalf("expected a committed run, got %+v", res)
	}

	current, err := a.Store.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if current.VersionID != res.VersionID || current.QTableSize != 3 {
		t.Fatalf("unexpected active version %+v", current)
	}

	entries, err := logging.ListDecisions(a.Store.DB(), 10)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 1 || entries[0].Decision != logging.DecisionCommit {
		t.Fatalf("expected one commit decision, got %+v", entries)
	}
	if entries[0].VersionID != res.VersionID || entries[0].SignalsJSON == "" {
		t.Fatalf("provenance not linked to version: %+v", entries[0])
	}
}

func TestRollbackRestoresPolicyFile(t *testing.T) {
	cfg := testConfig(t, true)
	a := newApp(t, cfg)
	ctx := context.Background()

	first, err := a.Learn(ctx, cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("first Learn: %v", err)
	}
	if _, err := a.Learn(ctx, cfg.Paths.LogFile); err != nil {
		t.Fatalf("second Learn: %v", err)
	}
	if a.Agent.HistoryLen() != 4 {
		t.Fatalf("expected 4 updates before rollback, got %d", a.Agent.HistoryLen())
	}

	v, err := a.Rollback(first.VersionID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if v.VersionID != first.VersionID {
		t.Fatalf("rolled back to %s, want %s", v.VersionID, first.VersionID)
	}
	if a.Agent.HistoryLen() != 2 {
		t.Fatalf("expected agent restored to 2 updates, got %d", a.Agent.HistoryLen())
	}

	doc, err := policy.Load(cfg.Paths.PolicyFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.PolicyHistory) != 2 {
		t.Fatalf("policy file not rewritten: %d history entries", len(doc.PolicyHistory))
	}

	entries, err := logging.ListDecisions(a.Store.DB(), 10)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	var rollbacks int
	for _, e := range entries {
		if e.Decision == logging.DecisionRollback {
			rollbacks++
		}
	}
	if rollbacks != 1 {
		t.Fatalf("expected one rollback decision, got %d", rollbacks)
	}
}

func TestRollbackWithoutStore(t *testing.T) {
	cfg := testConfig(t, false)
	if _, err := newApp(t, cfg).Rollback("anything"); err == nil {
		t.Fatal("expected error without a snapshot store")
	}
}

func TestRollbackUnknownVersion(t *testing.T) {
	cfg := testConfig(t, true)
	_, err := newApp(t, cfg).Rollback("missing")
	if err == nil {
		t.Fatal("expected error for unknown version")
	}
	if !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckpointAfterLiveSession(t *testing.T) {
	cfg := testConfig(t, true)
	a := newApp(t, cfg)

	session := a.Agent.NewSession()
	var stats agent.LearnStats
	for _, line := range []string{"ERROR: Database connection timeout", "INFO: System recovery"} {
		step := session.ObserveLine(line)
		stats.Lines++
		stats.TotalReward += step.Reward
		if step.Updated {
			stats.Updates++
		}
	}

	versionID, err := a.Checkpoint(logging.TriggerFollow, "live", stats)
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if versionID == "" {
		t.Fatal("expected a snapshot for a session with updates")
	}
	if _, err := os.Stat(cfg.Paths.PolicyFile); err != nil {
		t.Fatalf("policy not saved: %v", err)
	}

	entries, err := logging.ListDecisions(a.Store.DB(), 1)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 1 || entries[0].TriggerType != logging.TriggerFollow {
		t.Fatalf("expected follow provenance, got %+v", entries)
	}
}

func TestGateVetoSkipsSnapshot(t *testing.T) {
	cfg := testConfig(t, true)
	cfg.Gate.MaxDeltaQ = 0.01
	a := newApp(t, cfg)

	res, err := a.Learn(context.Background(), cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if res.VersionID != "" {
		t.Fatalf("expected vetoed run to skip the snapshot, got %s", res.VersionID)
	}
	if _, err := a.Store.GetCurrent(); !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("expected no active version, got %v", err)
	}

	entries, err := logging.ListDecisions(a.Store.DB(), 10)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 1 || entries[0].Decision != logging.DecisionReject {
		t.Fatalf("expected one reject decision, got %+v", entries)
	}
	// the policy file is still the source of truth
	if _, err := os.Stat(cfg.Paths.PolicyFile); err != nil {
		t.Fatalf("policy not saved: %v", err)
	}
}

func TestGateMeasuresEachRunAgainstPreRunPolicy(t *testing.T) {
	cfg := testConfig(t, true)
	// 40 identical critical lines move Q by 2.20, 2.05 then 1.89 over three
	// runs from an empty table
	cfg.Gate.MaxDeltaQ = 2.1
	content := strings.Repeat("ERROR: Database connection timeout\n", 40)
	if err := os.WriteFile(cfg.Paths.LogFile, []byte(content), 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		res, err := newApp(t, cfg).Learn(context.Background(), cfg.Paths.LogFile)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		ids = append(ids, res.VersionID)
	}
	if ids[0] != "" {
		t.Fatalf("expected the first run to be rejected, got %s", ids[0])
	}
	// a rejected run still saved its policy, so later runs are judged on
	// their own changes rather than on everything since the last snapshot
	if ids[1] == "" || ids[2] == "" {
		t.Fatalf("expected later runs to commit, got %q", ids)
	}

	a := newApp(t, cfg)
	versions, err := a.Store.ListVersions(10)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if err := a.LoadPolicy(); err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	row, _ := a.Agent.QValues(state.StateKey{Severity: 2, ErrorCount: 2, LoadBucket: 2})
	if row.Max() > -5 {
		t.Fatalf("expected cumulative change beyond the per-run cap, got %v", row)
	}
}

func TestGateBaselineFollowsRollback(t *testing.T) {
	cfg := testConfig(t, true)
	a := newApp(t, cfg)
	first, err := a.Learn(context.Background(), cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if _, err := a.Learn(context.Background(), cfg.Paths.LogFile); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if _, err := a.Rollback(first.VersionID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if len(a.baseline.PolicyHistory) != 2 {
		t.Fatalf("expected baseline at the restored version, got %d updates", len(a.baseline.PolicyHistory))
	}
}

func TestDailySavesPolicyWhenHistoryUnreadable(t *testing.T) {
	cfg := testConfig(t, false)
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.ReportCSV), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	bad := strings.Join(report.Header, ",") + "\n2024-01-01,nan?,x,0,1,0.1,0.1\n"
	if err := os.WriteFile(cfg.Paths.ReportCSV, []byte(bad), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	res, err := newApp(t, cfg).Daily(context.Background(), cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if res.Trends.Trend != report.TrendUnknown || res.Trends.Error == "" {
		t.Fatalf("expected unknown trend with an error, got %+v", res.Trends)
	}
	if res.Trends.Sufficient() {
		t.Fatal("unknown trend must not count as sufficient")
	}
	doc, err := policy.Load(cfg.Paths.PolicyFile)
	if err != nil {
		t.Fatalf("policy not saved: %v", err)
	}
	if len(doc.PolicyHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(doc.PolicyHistory))
	}
}

func TestLearnReportsHealth(t *testing.T) {
	cfg := testConfig(t, true)
	a := newApp(t, cfg)

	res, err := a.Learn(context.Background(), cfg.Paths.LogFile)
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if !res.Health.Passed || res.Health.Stability != eval.Moderate {
		t.Fatalf("unexpected health %+v", res.Health)
	}

	entries, err := logging.ListDecisions(a.Store.DB(), 1)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 1 || !strings.Contains(entries[0].SignalsJSON, `"health_passed":true`) {
		t.Fatalf("expected health in run record, got %+v", entries)
	}
	if !strings.Contains(entries[0].Reason, res.Health.Reason) {
		t.Fatalf("expected health in reason, got %q", entries[0].Reason)
	}
}
