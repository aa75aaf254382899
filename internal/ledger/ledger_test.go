package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nhle/nefwatch/internal/model"
)

func TestFileLedgerMarkAndContains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.txt")

	l, err := OpenFileLedger(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	if l.Contains("42") {
		t.Fatal("fresh ledger should not contain anything")
	}
	if err := l.Mark("42"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !l.Contains("42") {
		t.Fatal("marked id should be contained")
	}

	// Marking twice must not duplicate the entry.
	if err := l.Mark("42"); err != nil {
		t.Fatalf("re-mark: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger file: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "42" {
		t.Errorf("ledger file = %q, want a single line %q", got, "42")
	}
}

func TestFileLedgerSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.txt")

	l, err := OpenFileLedger(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Mark("a"); err != nil {
		t.Fatalf("mark a: %v", err)
	}
	if err := l.Mark("b"); err != nil {
		t.Fatalf("mark b: %v", err)
	}
	l.Close()

	l2, err := OpenFileLedger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	if !l2.Contains("a") || !l2.Contains("b") {
		t.Error("reopened ledger lost entries")
	}
	if l2.Contains("c") {
		t.Error("reopened ledger contains an id that was never marked")
	}
}

func TestSQLiteLedgerMarkAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := OpenSQLiteLedger(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Mark("101"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := l.Mark("101"); err != nil {
		t.Fatalf("re-mark: %v", err)
	}
	if !l.Contains("101") {
		t.Fatal("marked id should be contained")
	}
	l.Close()

	l2, err := OpenSQLiteLedger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	if !l2.Contains("101") {
		t.Error("reopened sqlite ledger lost the entry")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	fileCfg := &model.Config{
		ProcessedFile: filepath.Join(dir, "processed.txt"),
		LedgerBackend: model.LedgerBackendFile,
	}
	l, err := Open(fileCfg)
	if err != nil {
		t.Fatalf("open file backend: %v", err)
	}
	if _, ok := l.(*FileLedger); !ok {
		t.Errorf("expected *FileLedger, got %T", l)
	}
	l.Close()

	sqliteCfg := &model.Config{
		ProcessedFile: filepath.Join(dir, "ledger.db"),
		LedgerBackend: model.LedgerBackendSQLite,
	}
	l, err = Open(sqliteCfg)
	if err != nil {
		t.Fatalf("open sqlite backend: %v", err)
	}
	if _, ok := l.(*SQLiteLedger); !ok {
		t.Errorf("expected *SQLiteLedger, got %T", l)
	}
	l.Close()

	bad := &model.Config{ProcessedFile: "x", LedgerBackend: "redis"}
	if _, err := Open(bad); err == nil {
		t.Error("expected error for unknown backend")
	}
}
