// Package recorder persists run reports as JSON Lines for cross-run
// pattern analysis. Grounded on history.py's save_run/load_history.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

// Recorder appends run reports to a JSONL history file.
type Recorder struct {
	path string
	log  *slog.Logger
	now  func() time.Time
}

// New returns a Recorder backed by historyPath, creating its parent
// directory if absent.
func New(historyPath string, log *slog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
		return nil, fmt.Errorf("recorder: creating history dir: %w", err)
	}
	return &Recorder{path: historyPath, log: log, now: time.Now}, nil
}

type historyEntry struct {
	Timestamp string          `json:"timestamp"`
	Report    model.RunReport `json:"report"`
}

// SaveRun appends report to the history file as one JSON line.
// Failures are logged, not returned — a history write is never allowed
// to fail a run.
func (r *Recorder) SaveRun(report model.RunReport) {
	entry := historyEntry{Timestamp: r.now().Format(time.RFC3339), Report: report}

	raw, err := json.Marshal(entry)
	if err != nil {
		if r.log != nil {
			r.log.Warn("failed to encode run history entry", "error", err)
		}
		return
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		if r.log != nil {
			r.log.Warn("failed to open run history file", "error", err)
		}
		return
	}
	defer f.Close()

	if _, err := f.Write(append(raw, '\n')); err != nil && r.log != nil {
		r.log.Warn("failed to save run history", "error", err)
		return
	}
	if r.log != nil {
		r.log.Info("saved run to history", "path", r.path)
	}
}

// LoadHistory returns run reports from the last `days` days, most
// recent `maxEntries` only. Malformed lines are skipped.
func (r *Recorder) LoadHistory(days, maxEntries int) []model.RunReport {
	f, err := os.Open(r.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	cutoff := r.now().AddDate(0, 0, -days)

	var entries []model.RunReport
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var entry historyEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			continue
		}
		entries = append(entries, entry.Report)
	}
	if err := scanner.Err(); err != nil && r.log != nil {
		r.log.Warn("failed to load run history", "error", err)
	}

	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	return entries
}
