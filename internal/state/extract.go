package state

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"time"
)

// #region keywords
var (
	criticalKeywords = []string{"CRITICAL", "FATAL", "ERROR"}
	warningKeywords  = []string{"WARN", "WARNING"}

	errorKeywords = []string{"error", "fail", "exception", "timeout"}
	loadKeywords  = []string{"slow", "timeout", "retry", "queue"}

	// any single character may separate the date from the time
	timestampPattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}).(\d{2}:\d{2}:\d{2})`)
)

const timestampLayout = "2006-01-02T15:04:05"

// #endregion keywords

// #region extractor
// Extractor turns raw log lines into StateRecords.
type Extractor struct {
	now func() time.Time
}

// NewExtractor returns an extractor that falls back to the wall clock for
// lines without a parseable timestamp.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// NewExtractorWithClock returns an extractor using the given clock for fallback timestamps.
func NewExtractorWithClock(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// Extract maps one log line to a StateRecord. It never fails: unknown
// content yields severity 0 with zero counts.
func (e *Extractor) Extract(line string) StateRecord {
	return StateRecord{
		Severity:   severity(line),
		ErrorCount: countKeywords(line, errorKeywords),
		SystemLoad: estimateLoad(line),
		Timestamp:  e.timestamp(line),
	}
}

// #endregion extractor

// #region process
// Process reads r top to bottom and returns one record per non-blank line.
func (e *Extractor) Process(r io.Reader) ([]StateRecord, error) {
	var states []StateRecord
	err := EachLine(r, func(line string) error {
		if strings.TrimSpace(line) != "" {
			states = append(states, e.Extract(line))
		}
		return nil
	})
	if err != nil {
		return states, fmt.Errorf("read log: %w", err)
	}
	return states, nil
}

// ProcessFile reads a whole log file. A missing file is reported on the log
// and treated as an empty log.
func (e *Extractor) ProcessFile(path string) []StateRecord {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("Log file %s not found", path)
		} else {
			log.Printf("open log %s: %v", path, err)
		}
		return nil
	}
	defer f.Close()

	states, err := e.Process(f)
	if err != nil {
		log.Printf("read log %s: %v", path, err)
	}
	return states
}

// ProcessLogFile extracts states from path using the wall clock for fallback timestamps.
func ProcessLogFile(path string) []StateRecord {
	return NewExtractor().ProcessFile(path)
}

// #endregion process

// #region helpers
func severity(line string) int {
	upper := strings.ToUpper(line)
	if containsAny(upper, criticalKeywords) {
		return SeverityCritical
	}
	if containsAny(upper, warningKeywords) {
		return SeverityWarning
	}
	return SeverityInfo
}

// countKeywords counts how many of the keywords appear in line, each at most once.
func countKeywords(line string, keywords []string) int {
	lower := strings.ToLower(line)
	n := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			n++
		}
	}
	return n
}

func estimateLoad(line string) float64 {
	load := float64(countKeywords(line, loadKeywords)) / float64(len(loadKeywords))
	if load > 1 {
		load = 1
	}
	return load
}

func (e *Extractor) timestamp(line string) float64 {
	if m := timestampPattern.FindStringSubmatch(line); m != nil {
		if t, err := time.ParseInLocation(timestampLayout, m[1]+"T"+m[2], time.Local); err == nil {
			return unixSeconds(t)
		}
	}
	return unixSeconds(e.now())
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// #endregion helpers
