package reward

import "github.com/danielpatrickdp/rlops-agent/internal/state"

// #region reward-config
// RewardConfig holds the weights of the severity-based reward model.
type RewardConfig struct {
	SeverityWeights map[int]float64 // keyed by state.Severity*
	ErrorPenalty    float64         // subtracted per counted error keyword
	LoadPenalty     float64         // multiplied by system load (negative)
	RecoveryBonus   float64         // added for severity 0 with no errors
}

// DefaultRewardConfig returns the canonical weights.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		SeverityWeights: map[int]float64{
			state.SeverityInfo:     0.1,
			state.SeverityWarning:  -0.5,
			state.SeverityCritical: -2.0,
		},
		ErrorPenalty:  0.3,
		LoadPenalty:   -1.0,
		RecoveryBonus: 1.0,
	}
}

// #endregion reward-config

// #region model
// Model scores states. It is a pure function of its config and input.
type Model struct {
	config RewardConfig
}

// NewModel creates a reward model with the given weights.
func NewModel(config RewardConfig) *Model {
	return &Model{config: config}
}

// Reward returns the scalar reward for s. The result is not clamped: many
// errors drive it arbitrarily negative. An unknown severity scores as info.
func (m *Model) Reward(s state.StateRecord) float64 {
	weight, ok := m.config.SeverityWeights[s.Severity]
	if !ok {
		weight = m.config.SeverityWeights[state.SeverityInfo]
	}

	r := weight
	r -= float64(s.ErrorCount) * m.config.ErrorPenalty
	r += s.SystemLoad * m.config.LoadPenalty
	if s.IsRecovery() {
		r += m.config.RecoveryBonus
	}
	return r
}

// Batch scores every state in order.
func (m *Model) Batch(states []state.StateRecord) []float64 {
	out := make([]float64, len(states))
	for i, s := range states {
		out[i] = m.Reward(s)
	}
	return out
}

// #endregion model
