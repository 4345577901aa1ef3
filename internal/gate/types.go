package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoNonFinite VetoType = "non_finite"
	VetoMagnitude VetoType = "magnitude"
	VetoDeltaCap  VetoType = "delta_cap"
)

// Gate actions.
const (
	ActionCommit = "commit"
	ActionReject = "reject"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for snapshot commit decisions.
type GateConfig struct {
	MaxDeltaQ float64 // max |ΔQ| of any state-action within one run
	MaxAbsQ   float64 // max |Q| anywhere in the table
}

// DefaultGateConfig returns the per-run caps. With the default reward weights
// a run of 50 identical critical lines moves Q by under 3; a burst of 100
// such lines from an empty table crosses MaxDeltaQ and is rejected.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxDeltaQ: 5.0,
		MaxAbsQ:   100.0,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action        string // "commit" | "reject"
	Reason        string
	Vetoed        bool
	VetoSignals   []VetoSignal // non-empty if vetoed
	MaxDeltaQ     float64
	ChangedStates int
	SoftScore     float64 // 0-1, higher is a smaller, more focused change
}

// #endregion gate-decision
