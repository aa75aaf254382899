// Package pipeline runs one reconciliation pass: list candidate NEF
// notifications, download each unseen document, and file it by case.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/nefwatch/internal/activity"
	"github.com/nhle/nefwatch/internal/docstore"
	"github.com/nhle/nefwatch/internal/ledger"
	"github.com/nhle/nefwatch/internal/mailbox"
	"github.com/nhle/nefwatch/internal/model"
	"github.com/nhle/nefwatch/internal/nef"
	"github.com/nhle/nefwatch/internal/retrieval"
	"github.com/nhle/nefwatch/internal/routing"
)

// Candidate notification filters: NEF emails come from the courts'
// domain with a fixed subject prefix.
const (
	fromFilter    = "@uscourts.gov"
	subjectFilter = "Notice of Electronic Filing"
)

// Summary reports what a single run did.
type Summary struct {
	Found      int // candidate notifications in the mailbox
	New        int // not yet in the ledger
	Saved      int // documents downloaded and filed
	NoDocument int // notifications without a retrievable link
	Failed     int // expired links, transport or save failures (will retry)
}

// Controller orchestrates one pipeline run. All collaborators are passed
// in explicitly; the controller holds no ambient state.
type Controller struct {
	ledger    ledger.Ledger
	router    *routing.Table
	retriever retrieval.Retriever
	activity  *activity.Log
	log       logrus.FieldLogger

	// now is injectable for deterministic filenames in tests.
	now func() time.Time
}

// New creates a Controller.
func New(
	lgr ledger.Ledger,
	router *routing.Table,
	retriever retrieval.Retriever,
	act *activity.Log,
	log logrus.FieldLogger,
) *Controller {
	return &Controller{
		ledger:    lgr,
		router:    router,
		retriever: retriever,
		activity:  act,
		log:       log,
		now:       time.Now,
	}
}

// Run processes every unseen candidate notification in the mailbox.
// Per-notification failures are converted into activity records and
// never abort the run; only mailbox-session failures propagate.
func (c *Controller) Run(ctx context.Context, mbox mailbox.Mailbox) (*Summary, error) {
	ids, err := mbox.Search(ctx, fromFilter, subjectFilter)
	if err != nil {
		return nil, fmt.Errorf("searching for NEF emails: %w", err)
	}

	summary := &Summary{Found: len(ids)}
	if len(ids) == 0 {
		c.log.Info("no NEF emails found")
		return summary, nil
	}

	for _, id := range ids {
		// Already handled in an earlier run: no fetch, no activity.
		if c.ledger.Contains(id) {
			continue
		}
		summary.New++

		c.processOne(ctx, mbox, id, summary)
	}

	c.log.WithFields(logrus.Fields{
		"found":  summary.Found,
		"new":    summary.New,
		"saved":  summary.Saved,
		"failed": summary.Failed,
	}).Info("run complete")

	return summary, nil
}

// processOne advances a single notification through the state machine.
func (c *Controller) processOne(ctx context.Context, mbox mailbox.Mailbox, id string, summary *Summary) {
	notif, err := mbox.Fetch(ctx, id)
	if err != nil {
		summary.Failed++
		c.log.WithError(err).WithField("id", id).Error("fetching message")
		c.activity.Record(
			fmt.Sprintf("Could not fetch message %s: %v", id, err),
			"", "", model.StatusError,
		)
		return
	}

	parsed := nef.Parse(notif)
	c.log.WithFields(logrus.Fields{
		"id":      id,
		"case":    parsed.CaseID,
		"subject": parsed.Subject,
	}).Info("processing notification")

	// Nothing retrievable in this notification: record it as handled so
	// later runs do not re-scan it.
	if parsed.DocumentURL == "" {
		summary.NoDocument++
		c.activity.Record(
			"No document URL found in email",
			parsed.CaseID, "", model.StatusWarning,
		)
		c.mark(id, parsed.CaseID)
		return
	}

	dir, known := c.router.Route(parsed.CaseID)
	if !known && parsed.CaseID != "" {
		// Advisory only; the document still lands in the default
		// directory and the dashboard picks the case up for mapping.
		c.activity.Record(
			fmt.Sprintf("Unknown case %s, saved to unrouted folder", parsed.CaseID),
			parsed.CaseID, "", model.StatusWarning,
		)
	}

	result := c.retriever.Retrieve(ctx, parsed.DocumentURL)
	switch result.Outcome {
	case retrieval.OutcomeDocument:
		c.saveDocument(id, parsed, dir, result.Data, summary)

	case retrieval.OutcomeExpiredLink:
		// Left unmarked: the operator may fetch manually, or a later
		// notification may reopen the window.
		summary.Failed++
		c.log.WithField("case", parsed.CaseID).Warn("free-look link expired")
		c.activity.Record(
			"Download failed - free look expired",
			parsed.CaseID, "", model.StatusError,
		)

	default:
		summary.Failed++
		c.log.WithFields(logrus.Fields{
			"case":   parsed.CaseID,
			"detail": result.Detail,
		}).Error("download failed")
		c.activity.Record(
			fmt.Sprintf("Download failed: %s", result.Detail),
			parsed.CaseID, "", model.StatusError,
		)
	}
}

// saveDocument allocates a filename, writes the bytes atomically, and
// marks the notification processed. A filesystem failure leaves the
// notification unmarked so a future run retries it.
func (c *Controller) saveDocument(id string, parsed nef.ParsedNotification, dir string, data []byte, summary *Summary) {
	path, err := docstore.AllocatePath(dir, parsed.Subject, c.now())
	if err == nil {
		err = docstore.Save(path, data)
	}
	if err != nil {
		summary.Failed++
		c.log.WithError(err).WithField("case", parsed.CaseID).Error("saving document")
		c.activity.Record(
			fmt.Sprintf("Save failed: %v", err),
			parsed.CaseID, "", model.StatusError,
		)
		return
	}

	summary.Saved++
	filename := filepath.Base(path)
	c.log.WithFields(logrus.Fields{
		"case": parsed.CaseID,
		"file": path,
	}).Info("document saved")
	c.activity.Record(
		"Downloaded document",
		parsed.CaseID, filename, model.StatusSuccess,
	)
	c.mark(id, parsed.CaseID)
}

// mark records id in the ledger. A ledger write failure is reported but
// does not abort the run; at worst the item is re-downloaded next time.
func (c *Controller) mark(id, caseID string) {
	if err := c.ledger.Mark(id); err != nil {
		c.log.WithError(err).WithField("id", id).Error("marking notification processed")
		c.activity.Record(
			fmt.Sprintf("Could not record %s as processed: %v", id, err),
			caseID, "", model.StatusError,
		)
	}
}
