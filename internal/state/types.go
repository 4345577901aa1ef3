package state

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// #region severity
// Severity levels assigned from log keywords.
const (
	SeverityInfo     = 0
	SeverityWarning  = 1
	SeverityCritical = 2
)

// #endregion severity

// #region state-record
// StateRecord is the discrete observation derived from a single log line.
// Values are copied, never mutated after extraction.
type StateRecord struct {
	Severity   int     `json:"severity"`
	ErrorCount int     `json:"error_count"`
	SystemLoad float64 `json:"system_load"`
	Timestamp  float64 `json:"timestamp"` // unix seconds
}

// Key returns the discretized table key for this record.
func (r StateRecord) Key() StateKey {
	return StateKey{
		Severity:   r.Severity,
		ErrorCount: r.ErrorCount,
		LoadBucket: int(math.Floor(r.SystemLoad * 10)),
	}
}

// IsRecovery reports whether the record is a clean, error-free observation.
func (r StateRecord) IsRecovery() bool {
	return r.Severity == SeverityInfo && r.ErrorCount == 0
}

// #endregion state-record

// #region state-key
// StateKey collapses a StateRecord into a Q-table row identifier.
// Distinct records can share a key; system load is bucketed into tenths.
type StateKey struct {
	Severity   int
	ErrorCount int
	LoadBucket int
}

// String renders the key as "<severity>_<errors>_<bucket>".
func (k StateKey) String() string {
	return fmt.Sprintf("%d_%d_%d", k.Severity, k.ErrorCount, k.LoadBucket)
}

// ParseStateKey is the inverse of StateKey.String.
func ParseStateKey(s string) (StateKey, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 {
		return StateKey{}, fmt.Errorf("parse state key %q: want 3 fields, got %d", s, len(parts))
	}
	var vals [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return StateKey{}, fmt.Errorf("parse state key %q: %w", s, err)
		}
		vals[i] = n
	}
	return StateKey{Severity: vals[0], ErrorCount: vals[1], LoadBucket: vals[2]}, nil
}

// MarshalText lets StateKey be used as a JSON object key.
func (k StateKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the textual form produced by MarshalText.
func (k *StateKey) UnmarshalText(b []byte) error {
	parsed, err := ParseStateKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// #endregion state-key
