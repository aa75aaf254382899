package web

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nhle/nefwatch/internal/activity"
	"github.com/nhle/nefwatch/internal/model"
)

// moveUnmappedFiles relocates documents previously saved to the unrouted
// folder for caseNumber into its newly mapped destination. Filenames come
// from the activity log; files that no longer exist are skipped. Returns
// the names of the files moved.
func moveUnmappedFiles(cfg *model.Config, caseNumber, destination string) ([]string, error) {
	unrouted := model.ExpandHome(cfg.DefaultFolder)
	dest := model.ExpandHome(destination)

	records, err := activity.Read(cfg.ActivityLog)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination %s: %w", dest, err)
	}

	var moved []string
	for _, rec := range records {
		if rec.CaseNum != caseNumber || rec.Filename == "" {
			continue
		}

		source := filepath.Join(unrouted, rec.Filename)
		if _, err := os.Stat(source); err != nil {
			continue
		}

		target := filepath.Join(dest, rec.Filename)
		for counter := 1; fileExists(target); counter++ {
			ext := filepath.Ext(rec.Filename)
			stem := strings.TrimSuffix(rec.Filename, ext)
			target = filepath.Join(dest, fmt.Sprintf("%s_%d%s", stem, counter, ext))
		}

		if err := os.Rename(source, target); err != nil {
			return moved, fmt.Errorf("moving %s: %w", rec.Filename, err)
		}
		moved = append(moved, rec.Filename)
	}

	return moved, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
