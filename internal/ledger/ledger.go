// Package ledger records which notification IDs have already been
// handled, so re-runs never reprocess them.
package ledger

import (
	"fmt"

	"github.com/nhle/nefwatch/internal/model"
)

// Ledger is the durable set of already-processed notification IDs.
// Entries are append-only: once an ID is marked it is never processed
// again in a later run. Mark must be flushed before the caller moves on
// to the next notification, so a crash can at worst cause a harmless
// re-download attempt, never a silent skip.
//
// A ledger is not safe for concurrent runs; the caller runs at most one
// pipeline instance at a time.
type Ledger interface {
	// Contains reports whether id has already been processed.
	Contains(id string) bool

	// Mark durably records id as processed.
	Mark(id string) error

	// Close releases the backing store.
	Close() error
}

// Open creates the ledger backend selected by the configuration.
func Open(cfg *model.Config) (Ledger, error) {
	path := model.ExpandHome(cfg.ProcessedFile)

	switch cfg.LedgerBackend {
	case "", model.LedgerBackendFile:
		return OpenFileLedger(path)
	case model.LedgerBackendSQLite:
		return OpenSQLiteLedger(path)
	default:
		return nil, fmt.Errorf("unknown ledger_backend %q", cfg.LedgerBackend)
	}
}
