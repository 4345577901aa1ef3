package policy

import "sort"

// #region summary
// ActionCount pairs an action with how many states prefer it.
type ActionCount struct {
	Action Action `json:"action"`
	States int    `json:"states"`
}

// Summary is a point-in-time view of a Q-table for inspection output.
type Summary struct {
	QTableSize    int                `json:"q_table_size"`
	AvgQByAction  map[string]float64 `json:"avg_q_by_action"`
	TopActions    []ActionCount      `json:"top_actions"`
	LearningSteps int                `json:"learning_progress"`
}

// Summarize computes per-action mean values and the three actions most
// often preferred across states.
func Summarize(t QTable, historyLen int) Summary {
	s := Summary{
		QTableSize:    len(t),
		AvgQByAction:  make(map[string]float64, NumActions),
		LearningSteps: historyLen,
	}
	if len(t) == 0 {
		return s
	}

	var totals Row
	counts := make(map[Action]int)
	for _, row := range t {
		for _, a := range Actions {
			totals[a] += row[a]
		}
		counts[row.Best()]++
	}
	for _, a := range Actions {
		s.AvgQByAction[a.String()] = totals[a] / float64(len(t))
	}

	for _, a := range Actions {
		if n := counts[a]; n > 0 {
			s.TopActions = append(s.TopActions, ActionCount{Action: a, States: n})
		}
	}
	sort.SliceStable(s.TopActions, func(i, j int) bool {
		return s.TopActions[i].States > s.TopActions[j].States
	})
	if len(s.TopActions) > 3 {
		s.TopActions = s.TopActions[:3]
	}
	return s
}

// #endregion summary
