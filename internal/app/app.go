package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielpatrickdp/rlops-agent/internal/agent"
	"github.com/danielpatrickdp/rlops-agent/internal/config"
	"github.com/danielpatrickdp/rlops-agent/internal/eval"
	"github.com/danielpatrickdp/rlops-agent/internal/gate"
	"github.com/danielpatrickdp/rlops-agent/internal/logging"
	"github.com/danielpatrickdp/rlops-agent/internal/metrics"
	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/report"
	"github.com/danielpatrickdp/rlops-agent/internal/reward"
	"github.com/danielpatrickdp/rlops-agent/internal/snapshot"
)

// #region app
// App holds everything a command needs: configuration, the agent, metrics
// and the optional snapshot store. It is built once per process and is not
// safe for concurrent use.
type App struct {
	Config  *config.Config
	Agent   *agent.Agent
	Metrics *metrics.Metrics
	Store   *snapshot.Store // nil when paths.snapshot_db is empty

	gate    *gate.Gate
	evalCfg eval.EvalConfig
	now     func() time.Time

	// baseline is the policy as it stood before the current run; the gate
	// measures each run's changes against it.
	baseline policy.Document
}

// New wires an App from cfg. Metrics register on reg; pass a fresh
// registry in tests.
func New(cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	m := metrics.NewWithRegistry(reg)
	evalCfg := cfg.EvalConfig()

	a := agent.New(cfg.AgentConfig(),
		agent.WithRewardModel(reward.NewModel(cfg.RewardConfig())),
		agent.WithEvalConfig(evalCfg),
		agent.WithObserver(m),
	)

	app := &App{
		Config:  cfg,
		Agent:   a,
		Metrics: m,
		gate:    gate.NewGate(cfg.GateConfig()),
		evalCfg: evalCfg,
		now:     time.Now,
	}
	if cfg.Paths.SnapshotDB != "" {
		store, err := snapshot.NewStore(cfg.Paths.SnapshotDB)
		if err != nil {
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		app.Store = store
	}
	return app, nil
}

// Close releases the snapshot store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// #endregion app

// #region policy-io
// LoadPolicy restores the agent from the policy file and marks it as the
// baseline for the next snapshot. A missing file is a fresh start, not an
// error.
func (a *App) LoadPolicy() error {
	path := a.Config.Paths.PolicyFile
	err := a.Agent.LoadPolicy(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("no policy at %s, starting fresh", path)
	case err != nil:
		return fmt.Errorf("load policy: %w", err)
	}
	a.baseline = a.Agent.Document()
	return nil
}

// SavePolicy writes the agent's policy file and refreshes the policy gauges.
func (a *App) SavePolicy() error {
	if err := a.Agent.SavePolicy(a.Config.Paths.PolicyFile); err != nil {
		return err
	}
	a.publishGauges()
	return nil
}

func (a *App) publishGauges() {
	a.Metrics.SetPolicy(a.Agent.QTableSize(), a.Agent.GetPolicyDrift(), a.Agent.Epsilon())
}

// #endregion policy-io

// #region learn
// LearnResult describes one learn run.
type LearnResult struct {
	RunID     string             `json:"run_id"`
	Stats     agent.LearnStats   `json:"stats"`
	Drift     policy.DriftReport `json:"drift"`
	Stability eval.Stability     `json:"stability"`
	Health    eval.EvalResult    `json:"health"`
	VersionID string             `json:"version_id,omitempty"`
}

func (a *App) learnResult(stats agent.LearnStats) LearnResult {
	return LearnResult{
		RunID:     logging.NewRunID(),
		Stats:     stats,
		Drift:     a.Agent.GetPolicyDrift(),
		Stability: a.Agent.Stability(),
		Health:    a.Agent.Health(),
	}
}

// Learn loads the policy, trains on logPath, saves the policy and records
// a snapshot when the store is enabled.
func (a *App) Learn(ctx context.Context, logPath string) (LearnResult, error) {
	if err := a.LoadPolicy(); err != nil {
		return LearnResult{}, err
	}
	stats, err := a.Agent.LearnFromLogs(ctx, logPath)
	if err != nil {
		return LearnResult{}, fmt.Errorf("learn from %s: %w", logPath, err)
	}
	a.Metrics.LogLines.Add(float64(stats.Lines))
	if err := a.SavePolicy(); err != nil {
		return LearnResult{}, err
	}

	res := a.learnResult(stats)
	versionID, err := a.record(logging.TriggerLearn, res, logPath, nil)
	if err != nil {
		return res, err
	}
	res.VersionID = versionID
	return res, nil
}

// #endregion learn

// #region daily
// DailyResult is the output of the daily runner.
type DailyResult struct {
	DailyReport report.DailyReport `json:"daily_report"`
	Trends      report.Trend       `json:"trends"`
	Summary     policy.Summary     `json:"summary"`
	VersionID   string             `json:"version_id,omitempty"`
}

// Daily loads the policy, learns from logPath, saves the policy, appends a
// report row and analyses trends over the whole CSV. The policy is saved
// before the CSV is read back; an unreadable history yields an "unknown"
// trend rather than an error.
func (a *App) Daily(ctx context.Context, logPath string) (DailyResult, error) {
	if err := a.LoadPolicy(); err != nil {
		return DailyResult{}, err
	}
	stats, err := a.Agent.LearnFromLogs(ctx, logPath)
	if err != nil {
		return DailyResult{}, fmt.Errorf("learn from %s: %w", logPath, err)
	}
	a.Metrics.LogLines.Add(float64(stats.Lines))
	if err := a.SavePolicy(); err != nil {
		return DailyResult{}, err
	}

	row := report.GenerateDailyReport(ctx, a.Agent, a.now())
	if err := report.AppendCSV(a.Config.Paths.ReportCSV, row); err != nil {
		return DailyResult{}, err
	}

	res := DailyResult{
		DailyReport: row,
		Trends:      a.trends(),
		Summary:     a.Agent.Summary(),
	}
	versionID, err := a.record(logging.TriggerDaily, a.learnResult(stats), logPath, row)
	if err != nil {
		return res, err
	}
	res.VersionID = versionID
	return res, nil
}

func (a *App) trends() report.Trend {
	path := a.Config.Paths.ReportCSV
	rows, err := report.LoadCSV(path)
	if err != nil {
		log.Printf("read report history %s: %v", path, err)
		return report.Trend{Trend: report.TrendUnknown, Error: err.Error()}
	}
	return report.TrendAnalysis(rows, a.evalCfg)
}

// #endregion daily

// #region rollback
// Rollback makes an earlier snapshot active and rewrites the policy file
// from it.
func (a *App) Rollback(versionID string) (snapshot.Version, error) {
	if a.Store == nil {
		return snapshot.Version{}, fmt.Errorf("rollback: snapshot store is disabled")
	}
	if err := a.Store.Rollback(versionID); err != nil {
		return snapshot.Version{}, err
	}
	v, err := a.Store.GetVersion(versionID)
	if err != nil {
		return snapshot.Version{}, err
	}
	a.Agent.Restore(v.Policy)
	a.baseline = a.Agent.Document()
	if err := a.SavePolicy(); err != nil {
		return v, err
	}

	err = logging.LogDecision(a.Store.DB(), logging.ProvenanceEntry{
		VersionID:    v.VersionID,
		TriggerType:  logging.TriggerRollback,
		EvidenceRefs: a.Config.Paths.PolicyFile,
		Decision:     logging.DecisionRollback,
		Reason:       fmt.Sprintf("restored %d states, %d updates", v.QTableSize, v.HistoryLen),
	})
	return v, err
}

// #endregion rollback

// #region checkpoint
// Checkpoint saves the policy and records a snapshot for a run driven outside
// Learn and Daily, such as follow or serve. source names where the lines came
// from. The gate compares against the policy as of LoadPolicy or the previous
// checkpoint.
func (a *App) Checkpoint(trigger, source string, stats agent.LearnStats) (string, error) {
	if err := a.SavePolicy(); err != nil {
		return "", err
	}
	return a.record(trigger, a.learnResult(stats), source, nil)
}

// #endregion checkpoint

// #region record
// record commits a snapshot and a provenance row. It is a no-op without a
// store. Runs that applied no updates are logged as no_op, and runs the gate
// vetoes as reject; neither commits a snapshot. The gate sees only this run's
// changes: the proposed policy is compared with the baseline, which then
// moves forward to it.
func (a *App) record(trigger string, res LearnResult, logPath string, signals any) (string, error) {
	if a.Store == nil {
		return "", nil
	}

	rec := logging.RunRecord{
		RunID:           res.RunID,
		LogPath:         logPath,
		Lines:           res.Stats.Lines,
		Updates:         res.Stats.Updates,
		TotalReward:     res.Stats.TotalReward,
		DriftScore:      res.Drift.DriftScore,
		TotalUpdates:    res.Drift.TotalUpdates,
		RecentAvgReward: res.Drift.RecentAvgReward,
		Stability:       string(res.Stability),
		QTableSize:      a.Agent.QTableSize(),
		HealthPassed:    res.Health.Passed,
		HealthReason:    res.Health.Reason,
		Epsilon:         a.Agent.Epsilon(),
		LearningRate:    a.Agent.LearningRate(),
	}
	entry := logging.ProvenanceEntry{
		TriggerType:  trigger,
		EvidenceRefs: logPath,
		Decision:     logging.DecisionNoOp,
		Reason:       "no policy updates",
	}

	if res.Stats.Updates > 0 {
		doc := a.Agent.Document()
		decision := a.gate.Evaluate(a.baseline, doc)
		a.baseline = doc
		if decision.Vetoed {
			entry.Decision = logging.DecisionReject
			entry.Reason = decision.Reason
			log.Printf("snapshot rejected: %s", decision.Reason)
		} else {
			if signals == nil {
				signals = res.Drift
			}
			v, err := a.Store.Commit(doc, signals)
			if err != nil {
				return "", fmt.Errorf("commit snapshot: %w", err)
			}
			entry.VersionID = v.VersionID
			entry.Decision = logging.DecisionCommit
			entry.Reason = fmt.Sprintf("%d updates over %d lines, %s, health: %s",
				res.Stats.Updates, res.Stats.Lines, decision.Reason, res.Health.Reason)
		}
	}

	if err := logging.LogRun(a.Store.DB(), entry, rec); err != nil {
		return entry.VersionID, err
	}
	return entry.VersionID, nil
}

// #endregion record
