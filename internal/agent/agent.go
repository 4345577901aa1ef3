package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/rlops-agent/internal/eval"
	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/reward"
	"github.com/danielpatrickdp/rlops-agent/internal/state"
	"github.com/danielpatrickdp/rlops-agent/internal/update"
)

const tracerName = "github.com/danielpatrickdp/rlops-agent/internal/agent"

// #region options
// Option customises an Agent at construction.
type Option func(*Agent)

// WithRand injects the randomness source used for exploration.
func WithRand(rng *rand.Rand) Option {
	return func(a *Agent) { a.rng = rng }
}

// WithRewardModel replaces the default reward weights.
func WithRewardModel(m *reward.Model) Option {
	return func(a *Agent) { a.rewards = m }
}

// WithExtractor replaces the default log line extractor.
func WithExtractor(e *state.Extractor) Option {
	return func(a *Agent) { a.extractor = e }
}

// WithObserver registers an event sink such as the Prometheus collectors.
func WithObserver(o Observer) Option {
	return func(a *Agent) { a.observer = o }
}

// WithClock sets the clock used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// WithEvalConfig sets the drift window and stability thresholds.
func WithEvalConfig(c eval.EvalConfig) Option {
	return func(a *Agent) { a.eval = eval.NewEvalHarness(c) }
}

// #endregion options

// #region agent
// Agent is an epsilon-greedy tabular Q-learner over log-derived states.
// All methods are safe for concurrent use.
type Agent struct {
	mu sync.Mutex

	config  Config
	epsilon float64
	rng     *rand.Rand
	table   policy.QTable
	history []policy.HistoryEntry

	rewards   *reward.Model
	extractor *state.Extractor
	eval      *eval.EvalHarness
	observer  Observer
	tracer    trace.Tracer
	now       func() time.Time
}

// New creates an agent with an empty Q-table.
func New(config Config, opts ...Option) *Agent {
	a := &Agent{
		config:  config,
		epsilon: config.Epsilon,
		table:   policy.NewQTable(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rng == nil {
		seed := config.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		a.rng = rand.New(rand.NewSource(seed))
	}
	if a.rewards == nil {
		a.rewards = reward.NewModel(reward.DefaultRewardConfig())
	}
	if a.extractor == nil {
		a.extractor = state.NewExtractor()
	}
	if a.eval == nil {
		a.eval = eval.NewEvalHarness(eval.DefaultEvalConfig())
	}
	if a.observer == nil {
		a.observer = nopObserver{}
	}
	a.tracer = otel.Tracer(tracerName)
	return a
}

// #endregion agent

// #region action
// GetAction picks an action for s: with probability epsilon a uniformly
// random action, otherwise the best known one. The row for s is created if
// it did not exist.
func (a *Agent) GetAction(s state.StateRecord) policy.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectAction(s.Key())
}

func (a *Agent) selectAction(key state.StateKey) policy.Action {
	row := a.table.Ensure(key)
	if a.rng.Float64() < a.epsilon {
		act := policy.Actions[a.rng.Intn(policy.NumActions)]
		a.observer.ActionSelected(act, true)
		return act
	}
	act := row.Best()
	a.observer.ActionSelected(act, false)
	return act
}

// #endregion action

// #region update
// UpdatePolicy applies one Q-learning step to (s, act). When next is nil or
// its row has never been seen the step is terminal. The applied update is
// appended to the history and returned.
func (a *Agent) UpdatePolicy(s state.StateRecord, act policy.Action, r float64, next *state.StateRecord) policy.HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applyUpdate(s, act, r, next)
}

func (a *Agent) applyUpdate(s state.StateRecord, act policy.Action, r float64, next *state.StateRecord) policy.HistoryEntry {
	key := s.Key()
	row := a.table.Ensure(key)

	ctx := update.UpdateContext{CurrentQ: row[act], Reward: r}
	if next != nil {
		if nextRow, ok := a.table.Lookup(next.Key()); ok {
			m := nextRow.Max()
			ctx.NextMax = &m
		}
	}

	result := update.Update(ctx, a.config.updateConfig())
	row[act] = result.NewQ

	entry := policy.HistoryEntry{
		Timestamp: a.now().Format(time.RFC3339),
		State:     key,
		Action:    act,
		Reward:    r,
		QValue:    result.NewQ,
	}
	a.history = append(a.history, entry)
	a.decayEpsilon()
	a.observer.PolicyUpdated(entry, result)
	return entry
}

func (a *Agent) decayEpsilon() {
	if a.config.EpsilonDecay <= 0 || a.config.EpsilonDecay >= 1 {
		return
	}
	a.epsilon *= a.config.EpsilonDecay
	if a.epsilon < a.config.EpsilonMin {
		a.epsilon = a.config.EpsilonMin
	}
}

// #endregion update

// #region learn
// LearnFromLogs trains on the log at path line by line. Each line's reward
// updates the previous line's state and action, with the current state as the
// next state. A missing file is logged and processes nothing.
func (a *Agent) LearnFromLogs(ctx context.Context, path string) (LearnStats, error) {
	ctx, span := a.tracer.Start(ctx, "agent.LearnFromLogs",
		trace.WithAttributes(attribute.String("log.path", path)))
	defer span.End()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("Log file %s not found", path)
			return LearnStats{}, nil
		}
		span.RecordError(err)
		return LearnStats{}, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	var stats LearnStats
	session := a.NewSession()
	err = state.EachLine(f, func(line string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			return nil
		}
		step := session.ObserveLine(line)
		stats.Lines++
		stats.TotalReward += step.Reward
		if step.Updated {
			stats.Updates++
		}
		return nil
	})
	span.SetAttributes(
		attribute.Int("log.lines", stats.Lines),
		attribute.Int("policy.updates", stats.Updates),
	)
	if err != nil && ctx.Err() != nil {
		return stats, err
	}
	if err != nil {
		span.RecordError(err)
		return stats, fmt.Errorf("read log %s: %w", path, err)
	}
	return stats, nil
}

// #endregion learn

// #region accessors
// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epsilon
}

// Config returns the construction-time hyperparameters.
func (a *Agent) Config() Config {
	return a.config
}

// LearningRate returns α.
func (a *Agent) LearningRate() float64 {
	return a.config.LearningRate
}

// QTableSize returns the number of distinct states seen.
func (a *Agent) QTableSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.table)
}

// QValues returns a copy of the row for s and whether it exists.
func (a *Agent) QValues(s state.StateKey) (policy.Row, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	row, ok := a.table.Lookup(s)
	if !ok {
		return policy.Row{}, false
	}
	return *row, true
}

// HistoryLen returns the number of applied updates.
func (a *Agent) HistoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}

// GetPolicyDrift reports drift over the most recent updates.
func (a *Agent) GetPolicyDrift() policy.DriftReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eval.Drift(a.history)
}

// Stability labels the current drift score.
func (a *Agent) Stability() eval.Stability {
	return a.eval.Stability(a.GetPolicyDrift().DriftScore)
}

// Health runs the drift health check over the full update history.
func (a *Agent) Health() eval.EvalResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eval.Run(a.history)
}

// Summary describes the learned table.
func (a *Agent) Summary() policy.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return policy.Summarize(a.table, len(a.history))
}

// Reward scores s with the agent's reward model.
func (a *Agent) Reward(s state.StateRecord) float64 {
	return a.rewards.Reward(s)
}

// Extract maps a log line with the agent's extractor.
func (a *Agent) Extract(line string) state.StateRecord {
	return a.extractor.Extract(line)
}

// #endregion accessors

// #region persistence
// Document snapshots the policy for saving. The returned value shares no
// memory with the agent.
func (a *Agent) Document() policy.Document {
	a.mu.Lock()
	defer a.mu.Unlock()
	history := make([]policy.HistoryEntry, len(a.history))
	copy(history, a.history)
	return policy.Document{
		QTable:        a.table.Clone(),
		PolicyHistory: history,
		DriftMetrics:  a.eval.Drift(a.history),
	}
}

// Restore replaces the table and history with those in doc.
func (a *Agent) Restore(doc policy.Document) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if doc.QTable == nil {
		a.table = policy.NewQTable()
	} else {
		a.table = doc.QTable.Clone()
	}
	a.history = make([]policy.HistoryEntry, len(doc.PolicyHistory))
	copy(a.history, doc.PolicyHistory)
}

// SavePolicy writes the policy to path as JSON.
func (a *Agent) SavePolicy(path string) error {
	return policy.Save(path, a.Document())
}

// LoadPolicy replaces the policy with the one stored at path.
func (a *Agent) LoadPolicy(path string) error {
	doc, err := policy.Load(path)
	if err != nil {
		return err
	}
	a.Restore(doc)
	return nil
}

// #endregion persistence
