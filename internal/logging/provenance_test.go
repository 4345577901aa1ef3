package logging

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE provenance_log (
		run_id        TEXT NOT NULL,
		version_id    TEXT,
		trigger_type  TEXT NOT NULL,
		signals_json  TEXT,
		evidence_refs TEXT,
		decision      TEXT NOT NULL,
		reason        TEXT,
		created_at    TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		RunID:        "run-1",
		VersionID:    "v1",
		TriggerType:  TriggerLearn,
		SignalsJSON:  `{"lines":3}`,
		EvidenceRefs: "log_sample.txt",
		Decision:     DecisionCommit,
		Reason:       "2 updates",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM provenance_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var runID, versionID, decision string
	db.QueryRow("SELECT run_id, version_id, decision FROM provenance_log").Scan(&runID, &versionID, &decision)
	if runID != "run-1" || versionID != "v1" {
		t.Errorf("unexpected ids %q/%q", runID, versionID)
	}
	if decision != DecisionCommit {
		t.Errorf("expected decision 'commit', got %q", decision)
	}
}

func TestLogDecision_Defaults(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	err := LogDecision(db, ProvenanceEntry{TriggerType: TriggerDaily, Decision: DecisionNoOp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var runID, createdAtStr string
	db.QueryRow("SELECT run_id, created_at FROM provenance_log").Scan(&runID, &createdAtStr)
	if runID == "" {
		t.Error("expected generated run id")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		RunID:       "run-3",
		TriggerType: TriggerFollow,
		Decision:    DecisionNoOp,
		CreatedAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var versionID, signalsJSON, evidenceRefs, reason sql.NullString
	db.QueryRow("SELECT version_id, signals_json, evidence_refs, reason FROM provenance_log").Scan(
		&versionID, &signalsJSON, &evidenceRefs, &reason,
	)
	if versionID.Valid {
		t.Error("expected NULL version_id for empty string")
	}
	if signalsJSON.Valid {
		t.Error("expected NULL signals_json for empty string")
	}
	if evidenceRefs.Valid {
		t.Error("expected NULL evidence_refs for empty string")
	}
	if reason.Valid {
		t.Error("expected NULL reason for empty string")
	}
}

func TestLogDecision_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	err := LogDecision(db, ProvenanceEntry{TriggerType: TriggerLearn, Decision: DecisionCommit})
	if err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region log-run-tests
func TestLogRun_EmbedsRecord(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	rec := RunRecord{RunID: "run-9", LogPath: "app.log", Lines: 3, Updates: 2, DriftScore: 0.17, Stability: "Moderate"}
	if err := LogRun(db, ProvenanceEntry{TriggerType: TriggerLearn, Decision: DecisionCommit}, rec); err != nil {
		t.Fatalf("LogRun: %v", err)
	}

	entries, err := ListDecisions(db, 10)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].RunID != "run-9" {
		t.Fatalf("expected run id from record, got %q", entries[0].RunID)
	}

	var got RunRecord
	if err := json.Unmarshal([]byte(entries[0].SignalsJSON), &got); err != nil {
		t.Fatalf("unmarshal signals: %v", err)
	}
	if got != rec {
		t.Fatalf("record mismatch: %+v vs %+v", got, rec)
	}
}

func TestListDecisions_NewestFirst(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, trig := range []string{TriggerLearn, TriggerDaily, TriggerRollback} {
		LogDecision(db, ProvenanceEntry{
			TriggerType: trig,
			Decision:    DecisionNoOp,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}

	entries, err := ListDecisions(db, 2)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].TriggerType != TriggerRollback || entries[1].TriggerType != TriggerDaily {
		t.Fatalf("unexpected order: %s, %s", entries[0].TriggerType, entries[1].TriggerType)
	}
}

// #endregion log-run-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
