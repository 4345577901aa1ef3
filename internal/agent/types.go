package agent

import (
	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/state"
	"github.com/danielpatrickdp/rlops-agent/internal/update"
)

// #region config
// Config holds the agent hyperparameters. They are fixed at construction;
// only the exploration rate moves, and only when EpsilonDecay < 1.
type Config struct {
	LearningRate float64 // α
	Epsilon      float64 // initial exploration probability
	Discount     float64 // γ
	EpsilonDecay float64 // multiplier applied after each update; 1 disables decay
	EpsilonMin   float64 // floor for the decayed exploration rate
	Seed         int64   // 0 seeds from the wall clock
}

// DefaultConfig returns the canonical hyperparameters.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.1,
		Epsilon:      0.1,
		Discount:     0.9,
		EpsilonDecay: 1.0,
		EpsilonMin:   0.01,
	}
}

func (c Config) updateConfig() update.UpdateConfig {
	return update.UpdateConfig{LearningRate: c.LearningRate, Discount: c.Discount}
}

// #endregion config

// #region observer
// Observer receives agent events. Implementations must be safe to call while
// the agent holds its lock and must not call back into the agent.
type Observer interface {
	ActionSelected(a policy.Action, explored bool)
	PolicyUpdated(entry policy.HistoryEntry, result update.UpdateResult)
}

type nopObserver struct{}

func (nopObserver) ActionSelected(policy.Action, bool) {}
func (nopObserver) PolicyUpdated(policy.HistoryEntry, update.UpdateResult) {}

// #endregion observer

// #region step
// Step is the outcome of feeding one observation into a Session.
type Step struct {
	State   state.StateRecord    `json:"state"`
	Key     state.StateKey       `json:"state_key"`
	Reward  float64              `json:"reward"`
	Action  policy.Action        `json:"action"`
	Updated bool                 `json:"updated"`
	Entry   *policy.HistoryEntry `json:"entry,omitempty"` // set when Updated
}

// LearnStats summarises one pass over a log file.
type LearnStats struct {
	Lines       int     `json:"lines"`
	Updates     int     `json:"updates"`
	TotalReward float64 `json:"total_reward"`
}

// #endregion step
