package snapshot

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/rlops-agent/internal/policy"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS policy_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	policy_json   TEXT NOT NULL,
	q_table_size  INTEGER NOT NULL,
	history_len   INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	metrics_json  TEXT,
	FOREIGN KEY (parent_id) REFERENCES policy_versions(version_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	version_id    TEXT,
	trigger_type  TEXT NOT NULL,
	signals_json  TEXT,
	evidence_refs TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES policy_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_policy (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES policy_versions(version_id)
);
`

// #endregion schema

// #region store-struct
// Store keeps versioned policy snapshots in SQLite with a single active pointer.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for the provenance logger.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region commit
// Commit stores doc as a new version whose parent is the currently active
// one, and makes it active. metrics may be nil.
func (s *Store) Commit(doc policy.Document, metrics any) (Version, error) {
	policyJSON, err := json.Marshal(doc)
	if err != nil {
		return Version{}, fmt.Errorf("marshal policy: %w", err)
	}
	var metricsJSON string
	if metrics != nil {
		b, err := json.Marshal(metrics)
		if err != nil {
			return Version{}, fmt.Errorf("marshal metrics: %w", err)
		}
		metricsJSON = string(b)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Version{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRow(`SELECT version_id FROM active_policy WHERE id = 1`).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Version{}, fmt.Errorf("get active: %w", err)
	}

	v := Version{
		VersionID:   uuid.New().String(),
		ParentID:    parent.String,
		Policy:      doc,
		QTableSize:  len(doc.QTable),
		HistoryLen:  len(doc.PolicyHistory),
		CreatedAt:   s.now().UTC(),
		MetricsJSON: metricsJSON,
	}

	_, err = tx.Exec(
		`INSERT INTO policy_versions (version_id, parent_id, policy_json, q_table_size, history_len, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.VersionID, nullIfEmpty(v.ParentID), string(policyJSON), v.QTableSize, v.HistoryLen,
		v.CreatedAt.Format(time.RFC3339Nano), nullIfEmpty(v.MetricsJSON),
	)
	if err != nil {
		return Version{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_policy (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		v.VersionID,
	)
	if err != nil {
		return Version{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Version{}, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}

// #endregion commit

// #region get-current
// GetCurrent reads the active policy version.
func (s *Store) GetCurrent() (Version, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_policy WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, fmt.Errorf("get active: %w", ErrNotFound)
	}
	if err != nil {
		return Version{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// #endregion get-current

// #region get-version
// GetVersion retrieves a specific policy version by ID.
func (s *Store) GetVersion(id string) (Version, error) {
	row := s.db.QueryRow(
		`SELECT version_id, parent_id, policy_json, q_table_size, history_len, created_at, metrics_json
		 FROM policy_versions WHERE version_id = ?`, id,
	)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, fmt.Errorf("get version %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Version{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return v, nil
}

// #endregion get-version

// #region rollback
// Rollback points the active policy at an existing earlier version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM policy_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s: %w", targetVersionID, ErrNotFound)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_policy (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		targetVersionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns up to limit versions, newest first.
func (s *Store) ListVersions(limit int) ([]Version, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, policy_json, q_table_size, history_len, created_at, metrics_json
		 FROM policy_versions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// #endregion list-versions

// #region scan
type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(sc scanner) (Version, error) {
	var (
		v           Version
		parentID    sql.NullString
		policyJSON  string
		createdStr  string
		metricsJSON sql.NullString
	)
	if err := sc.Scan(&v.VersionID, &parentID, &policyJSON, &v.QTableSize, &v.HistoryLen, &createdStr, &metricsJSON); err != nil {
		return Version{}, err
	}
	v.ParentID = parentID.String
	v.MetricsJSON = metricsJSON.String
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)

	doc, err := policy.Decode([]byte(policyJSON))
	if err != nil {
		return Version{}, fmt.Errorf("decode version %s: %w", v.VersionID, err)
	}
	v.Policy = doc
	return v, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion scan
