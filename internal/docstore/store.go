// Package docstore allocates collision-free filenames and writes
// downloaded documents to disk.
package docstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	unsafeChars = regexp.MustCompile(`[^\w\s-]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// maxSubjectLen caps the sanitized subject portion of a filename.
const maxSubjectLen = 50

// sanitizeSubject reduces an email subject to a filesystem-safe token:
// characters outside letters/digits/underscore/whitespace/hyphen are
// dropped, the result is capped, and runs of whitespace collapse to a
// single underscore.
func sanitizeSubject(subject string) string {
	safe := unsafeChars.ReplaceAllString(subject, "")
	if runes := []rune(safe); len(runes) > maxSubjectLen {
		safe = string(runes[:maxSubjectLen])
	}
	safe = strings.TrimSpace(safe)
	return whitespace.ReplaceAllString(safe, "_")
}

// AllocatePath returns an unused path in dir for a document named after
// the subject and date, e.g. 2024-01-15_Motion_to_Dismiss.pdf. On
// collision it probes {base}_1.pdf, {base}_2.pdf, ... sequentially, so
// the result never depends on directory iteration order. The directory
// (including parents) is created first.
func AllocatePath(dir, subject string, today time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}

	base := today.Format("2006-01-02") + "_" + sanitizeSubject(subject)

	path := filepath.Join(dir, base+".pdf")
	for counter := 1; exists(path); counter++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.pdf", base, counter))
	}
	return path, nil
}

// Save writes data to path atomically: the bytes land in a temporary
// file first and are renamed into place, so the final name either holds
// the complete document or does not exist.
func Save(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming %s into place: %w", tmp, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
