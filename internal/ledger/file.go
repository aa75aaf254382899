package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileLedger stores processed IDs as one line each in a flat text file,
// loaded into a set at open time. There is no removal or compaction;
// identifiers are short opaque tokens, so growth tracks mailbox volume.
type FileLedger struct {
	file *os.File
	seen map[string]struct{}
}

// OpenFileLedger loads (or creates) the ledger file at path.
func OpenFileLedger(path string) (*FileLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory %s: %w", dir, err)
		}
	}

	seen := make(map[string]struct{})
	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				seen[line] = struct{}{}
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}

	return &FileLedger{file: f, seen: seen}, nil
}

// Contains reports whether id has already been processed.
func (l *FileLedger) Contains(id string) bool {
	_, ok := l.seen[id]
	return ok
}

// Mark appends id to the ledger file and syncs it to disk before
// returning.
func (l *FileLedger) Mark(id string) error {
	if _, ok := l.seen[id]; ok {
		return nil
	}

	if _, err := l.file.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("appending to ledger: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing ledger: %w", err)
	}

	l.seen[id] = struct{}{}
	return nil
}

// Close closes the backing file.
func (l *FileLedger) Close() error {
	return l.file.Close()
}
