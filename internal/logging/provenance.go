package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a fresh identifier for a learning run.
func NewRunID() string {
	return uuid.New().String()
}

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(db *sql.DB, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.RunID == "" {
		entry.RunID = NewRunID()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (run_id, version_id, trigger_type, signals_json, evidence_refs, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		nullIfEmpty(entry.VersionID),
		entry.TriggerType,
		nullIfEmpty(entry.SignalsJSON),
		nullIfEmpty(entry.EvidenceRefs),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// LogRun records a learning run, embedding rec as the signals payload.
func LogRun(db *sql.DB, entry ProvenanceEntry, rec RunRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	entry.SignalsJSON = string(b)
	if entry.RunID == "" {
		entry.RunID = rec.RunID
	}
	return LogDecision(db, entry)
}

// #endregion log-decision

// #region list-decisions
// ListDecisions returns up to limit provenance entries, newest first.
func ListDecisions(db *sql.DB, limit int) ([]ProvenanceEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, version_id, trigger_type, signals_json, evidence_refs, decision, reason, created_at
		 FROM provenance_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var entries []ProvenanceEntry
	for rows.Next() {
		var (
			e                                    ProvenanceEntry
			versionID, signals, evidence, reason sql.NullString
			created                              string
		)
		if err := rows.Scan(&e.RunID, &versionID, &e.TriggerType, &signals, &evidence, &e.Decision, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.VersionID = versionID.String
		e.SignalsJSON = signals.String
		e.EvidenceRefs = evidence.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list-decisions

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
