package eval

// #region eval-config
// EvalConfig holds the window and thresholds used when judging policy drift.
type EvalConfig struct {
	Window           int     // number of most recent updates considered
	StableMax        float64 // drift below this is "Stable"
	ModerateMax      float64 // drift below this is "Moderate", else "High Drift"
	VolatileStdDev   float64 // trend drift std dev at or above this is "volatile"
	ImprovementRatio float64 // relative reward change needed for improving/declining
}

// DefaultEvalConfig returns the canonical thresholds.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		Window:           10,
		StableMax:        0.1,
		ModerateMax:      0.5,
		VolatileStdDev:   0.5,
		ImprovementRatio: 0.1,
	}
}

// #endregion eval-config

// #region stability
// Stability labels a drift score.
type Stability string

const (
	Stable    Stability = "Stable"
	Moderate  Stability = "Moderate"
	HighDrift Stability = "High Drift"
)

// #endregion stability

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of a policy health check.
type EvalResult struct {
	Passed    bool         `json:"passed"`
	Stability Stability    `json:"stability"`
	Metrics   []EvalMetric `json:"metrics"`
	Reason    string       `json:"reason"`
}

// #endregion eval-result
