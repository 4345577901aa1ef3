package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// #region document
// Document is the persisted form of an agent's policy.
type Document struct {
	QTable        QTable         `json:"q_table"`
	PolicyHistory []HistoryEntry `json:"policy_history"`
	DriftMetrics  DriftReport    `json:"drift_metrics"`
}

// #endregion document

// #region save
// Save writes doc to path as indented JSON, replacing any existing file.
// The file is written beside path and renamed into place, so readers never
// see a partial document. Concurrent writers are not coordinated; the last
// write wins.
func Save(path string, doc Document) error {
	if doc.QTable == nil {
		doc.QTable = NewQTable()
	}
	if doc.PolicyHistory == nil {
		doc.PolicyHistory = []HistoryEntry{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create policy dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp policy: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write policy %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp policy: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod policy: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace policy %s: %w", path, err)
	}
	return nil
}

// #endregion save

// #region load
// Load reads a policy file written by Save. A missing file yields an error
// wrapping os.ErrNotExist.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses a policy document from JSON bytes.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse policy: %w", err)
	}
	if doc.QTable == nil {
		doc.QTable = NewQTable()
	}
	return doc, nil
}

// #endregion load
