package logging

import "time"

// Trigger types.
const (
	TriggerLearn    = "learn"
	TriggerDaily    = "daily"
	TriggerFollow   = "follow"
	TriggerRollback = "rollback"
	TriggerServe    = "serve"
)

// Decisions.
const (
	DecisionCommit   = "commit"
	DecisionNoOp     = "no_op"
	DecisionRollback = "rollback"
	DecisionReject   = "reject"
)

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	RunID        string
	VersionID    string // empty when no snapshot was committed
	TriggerType  string
	SignalsJSON  string
	EvidenceRefs string // log or report paths, comma separated
	Decision     string // "commit" | "no_op" | "rollback" | "reject"
	Reason       string
	CreatedAt    time.Time
}

// #endregion provenance-entry

// #region run-record
// RunRecord captures what a learning run saw and produced.
// Serialized as JSON into provenance_log.signals_json.
type RunRecord struct {
	RunID   string `json:"run_id"`
	LogPath string `json:"log_path,omitempty"`

	Lines       int     `json:"lines"`
	Updates     int     `json:"updates"`
	TotalReward float64 `json:"total_reward"`

	// Policy state after the run
	DriftScore      float64 `json:"drift_score"`
	TotalUpdates    int     `json:"total_updates"`
	RecentAvgReward float64 `json:"recent_avg_reward"`
	Stability       string  `json:"stability"`
	QTableSize      int     `json:"q_table_size"`
	HealthPassed    bool    `json:"health_passed"`
	HealthReason    string  `json:"health_reason,omitempty"`

	// Hyperparameters active during the run
	Epsilon      float64 `json:"epsilon"`
	LearningRate float64 `json:"learning_rate"`
}

// #endregion run-record
