package policy

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/danielpatrickdp/rlops-agent/internal/state"
)

// #region row
// Row holds one action value per Action, indexed by the Action.
type Row [NumActions]float64

// Best returns the highest-valued action. Ties go to the earliest action in
// Actions order.
func (r Row) Best() Action {
	best := Actions[0]
	for _, a := range Actions[1:] {
		if r[a] > r[best] {
			best = a
		}
	}
	return best
}

// Max returns the highest action value in the row.
func (r Row) Max() float64 {
	return r[r.Best()]
}

// #endregion row

// #region table
// QTable maps discretized states to action-value rows. Rows are created on
// first sight and never evicted.
type QTable map[state.StateKey]*Row

// NewQTable returns an empty table.
func NewQTable() QTable {
	return make(QTable)
}

// Ensure returns the row for key, creating an all-zero row if absent.
func (t QTable) Ensure(key state.StateKey) *Row {
	row, ok := t[key]
	if !ok {
		row = &Row{}
		t[key] = row
	}
	return row
}

// Lookup returns the row for key without creating it.
func (t QTable) Lookup(key state.StateKey) (*Row, bool) {
	row, ok := t[key]
	return row, ok
}

// Keys returns the table keys sorted by their string form.
func (t QTable) Keys() []state.StateKey {
	keys := make([]state.StateKey, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Clone returns a deep copy of the table.
func (t QTable) Clone() QTable {
	out := make(QTable, len(t))
	for k, row := range t {
		cp := *row
		out[k] = &cp
	}
	return out
}

// MarshalJSON writes {"<state key>": {"<action>": value}}.
func (t QTable) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]float64, len(t))
	for k, row := range t {
		vals := make(map[string]float64, NumActions)
		for _, a := range Actions {
			vals[a.String()] = row[a]
		}
		out[k.String()] = vals
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the layout written by MarshalJSON. Actions missing
// from a row default to zero; unknown actions are an error.
func (t *QTable) UnmarshalJSON(b []byte) error {
	var raw map[string]map[string]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode q_table: %w", err)
	}
	out := make(QTable, len(raw))
	for ks, vals := range raw {
		key, err := state.ParseStateKey(ks)
		if err != nil {
			return err
		}
		row := &Row{}
		for name, v := range vals {
			a, err := ParseAction(name)
			if err != nil {
				return fmt.Errorf("state %s: %w", ks, err)
			}
			row[a] = v
		}
		out[key] = row
	}
	*t = out
	return nil
}

// #endregion table
