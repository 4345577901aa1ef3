package update

// #region update-context
// UpdateContext carries one observed transition into the pure update function.
type UpdateContext struct {
	CurrentQ float64  // Q(s,a) before the update
	Reward   float64  // reward observed after taking a in s
	NextMax  *float64 // max_a' Q(s',a'); nil when s' is unknown or absent
}

// #endregion update-context

// #region decision
// Decision records what the update function decided.
type Decision struct {
	Action string // "commit" | "no_op"
	Reason string
}

// #endregion decision

// #region metrics
// Metrics captures telemetry from one update.
type Metrics struct {
	Target   float64 // TD target the value moved toward
	TDError  float64 // target - old value
	Delta    float64 // applied change
	Terminal bool    // no bootstrap term was used
}

// #endregion metrics

// #region update-config
// UpdateConfig holds the learning parameters of the Q-learning rule.
type UpdateConfig struct {
	LearningRate float64 // alpha
	Discount     float64 // gamma, applied only when a next state is known
}

// DefaultUpdateConfig returns the canonical alpha=0.1, gamma=0.9.
func DefaultUpdateConfig() UpdateConfig {
	return UpdateConfig{
		LearningRate: 0.1,
		Discount:     0.9,
	}
}

// #endregion update-config

// #region update-result
// UpdateResult bundles everything returned by Update().
type UpdateResult struct {
	NewQ     float64
	Decision Decision
	Metrics  Metrics
}

// #endregion update-result
