package report

// #region daily-report
// DailyReport is one row of the drift report CSV.
type DailyReport struct {
	Date               string  `json:"date"` // YYYY-MM-DD
	DriftScore         float64 `json:"drift_score"`
	TotalPolicyUpdates int     `json:"total_policy_updates"`
	AvgReward          float64 `json:"avg_reward"`
	QTableSize         int     `json:"q_table_size"`
	ExplorationRate    float64 `json:"exploration_rate"`
	LearningRate       float64 `json:"learning_rate"`
}

// Header is the CSV column order.
var Header = []string{
	"date",
	"drift_score",
	"total_policy_updates",
	"avg_reward",
	"q_table_size",
	"exploration_rate",
	"learning_rate",
}

// #endregion daily-report

// #region trend
// Trend labels.
const (
	TrendInsufficientData = "insufficient_data"
	TrendUnknown          = "unknown"

	DriftIncreasing = "increasing"
	DriftDecreasing = "decreasing"
	DriftStable     = "stable"

	RewardImproving = "improving"
	RewardDeclining = "declining"
	RewardStable    = "stable"

	PolicyStable   = "stable"
	PolicyVolatile = "volatile"
)

// Trend summarises a history of daily reports. When fewer than two rows
// exist only Trend and Days are set. When the history could not be read,
// Trend is "unknown" and Error says why.
type Trend struct {
	Trend           string  `json:"trend,omitempty"`
	Error           string  `json:"error,omitempty"`
	Days            int     `json:"days,omitempty"`
	DriftTrend      string  `json:"drift_trend,omitempty"`
	RewardTrend     string  `json:"reward_trend,omitempty"`
	TotalDays       int     `json:"total_days,omitempty"`
	AvgDriftScore   float64 `json:"avg_drift_score,omitempty"`
	AvgReward       float64 `json:"avg_reward,omitempty"`
	PolicyStability string  `json:"policy_stability,omitempty"`
}

// Sufficient reports whether the trend was computed from enough rows.
func (t Trend) Sufficient() bool {
	return t.Trend == ""
}

// #endregion trend
