package snapshot

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/rlops-agent/internal/policy"
)

// ErrNotFound is returned when a version or the active pointer is missing.
var ErrNotFound = errors.New("snapshot not found")

// #region version
// Version is one committed policy snapshot.
type Version struct {
	VersionID   string
	ParentID    string // empty for the first snapshot
	Policy      policy.Document
	QTableSize  int
	HistoryLen  int
	CreatedAt   time.Time
	MetricsJSON string // optional drift/report metrics at commit time
}

// #endregion version
