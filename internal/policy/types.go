package policy

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/rlops-agent/internal/state"
)

// #region action
// Action is one of the fixed remediation verbs the agent can choose.
type Action int

const (
	Monitor Action = iota
	ScaleUp
	RestartService
	AlertTeam
	Rollback

	NumActions = 5
)

// Actions lists every action in iteration (and tie-break) order.
var Actions = [NumActions]Action{Monitor, ScaleUp, RestartService, AlertTeam, Rollback}

var actionNames = [NumActions]string{"monitor", "scale_up", "restart_service", "alert_team", "rollback"}

// ErrUnknownAction is returned when parsing a name outside the action set.
var ErrUnknownAction = errors.New("unknown action")

func (a Action) String() string {
	if a < 0 || int(a) >= NumActions {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction maps a verb such as "scale_up" to its Action.
func ParseAction(name string) (Action, error) {
	for i, n := range actionNames {
		if n == name {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// MarshalText encodes the action as its verb.
func (a Action) MarshalText() ([]byte, error) {
	if a < 0 || int(a) >= NumActions {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAction, int(a))
	}
	return []byte(actionNames[a]), nil
}

// UnmarshalText decodes a verb produced by MarshalText.
func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// #endregion action

// #region history-entry
// HistoryEntry records one applied policy update. Entries are append-only.
type HistoryEntry struct {
	Timestamp string         `json:"timestamp"` // RFC 3339
	State     state.StateKey `json:"state"`
	Action    Action         `json:"action"`
	Reward    float64        `json:"reward"`
	QValue    float64        `json:"q_value"` // value after the update
}

// #endregion history-entry

// #region drift-report
// DriftReport summarises the tail of the policy history.
// DriftScore is the mean absolute Q-value of the window, not a delta.
type DriftReport struct {
	DriftScore      float64 `json:"drift_score"`
	TotalUpdates    int     `json:"total_updates"`
	RecentAvgReward float64 `json:"recent_avg_reward"`
}

// #endregion drift-report
