// Package activity maintains the bounded activity log the dashboard
// displays. The pipeline only appends; it never reads the log back.
package activity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nhle/nefwatch/internal/model"
)

// maxEntries bounds the log to the most recent records; older entries are
// dropped on each append.
const maxEntries = 100

// Log appends records to a JSON activity log file.
type Log struct {
	path string
}

// NewLog creates a logger writing to the given file path.
func NewLog(path string) *Log {
	return &Log{path: model.ExpandHome(path)}
}

// Record appends one activity record, trimming the log to the most
// recent maxEntries and rewriting the file wholesale.
func (l *Log) Record(message, caseNum, filename string, status model.ActivityStatus) {
	entry := model.ActivityRecord{
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   message,
		CaseNum:   caseNum,
		Filename:  filename,
		Status:    status,
	}

	// A corrupt or missing log starts over; the log is advisory.
	entries, _ := Read(l.path)
	entries = append(entries, entry)
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}

	_ = write(l.path, entries)
}

// Read loads all records from the log file at path. A missing or corrupt
// file yields an empty slice.
func Read(path string) ([]model.ActivityRecord, error) {
	data, err := os.ReadFile(model.ExpandHome(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading activity log: %w", err)
	}

	var entries []model.ActivityRecord
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil
	}
	return entries, nil
}

func write(path string, entries []model.ActivityRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating activity log directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding activity log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing activity log: %w", err)
	}
	return nil
}
