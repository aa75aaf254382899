package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nhle/nefwatch/internal/activity"
	"github.com/nhle/nefwatch/internal/ledger"
	"github.com/nhle/nefwatch/internal/model"
	"github.com/nhle/nefwatch/internal/retrieval"
	"github.com/nhle/nefwatch/internal/routing"
)

const dummyPDF = "%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF"

// fakeMailbox serves canned messages keyed by ID.
type fakeMailbox struct {
	messages map[string][]byte
	order    []string
	fetches  int
}

func (m *fakeMailbox) Search(_ context.Context, _, _ string) ([]string, error) {
	return m.order, nil
}

func (m *fakeMailbox) Fetch(_ context.Context, id string) (model.Notification, error) {
	raw, ok := m.messages[id]
	if !ok {
		return model.Notification{}, fmt.Errorf("no message %s", id)
	}
	m.fetches++
	return model.Notification{ID: id, Raw: raw}, nil
}

// fakeRetriever returns a fixed result and counts attempts.
type fakeRetriever struct {
	result   retrieval.Result
	attempts int
}

func (r *fakeRetriever) Retrieve(_ context.Context, _ string) retrieval.Result {
	r.attempts++
	return r.result
}

func nefEmail(caseNum, description string, withURL bool) []byte {
	body := "Case Number: " + caseNum + "\r\n"
	if withURL {
		body += "View document: https://ecf.txed.uscourts.gov/doc1/175011894066?caseid=204173&de_seq_num=37&magic_num=11505292\r\n"
	}
	lines := []string{
		"From: ecfnotice@txed.uscourts.gov",
		"Subject: Activity in Case " + caseNum + " " + description,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}
	return []byte(strings.Join(lines, "\r\n"))
}

type fixture struct {
	controller *Controller
	ledger     ledger.Ledger
	caseDir    string
	defaultDir string
	logPath    string
}

func newFixture(t *testing.T, retriever retrieval.Retriever) *fixture {
	t.Helper()
	dir := t.TempDir()

	caseDir := filepath.Join(dir, "smith")
	defaultDir := filepath.Join(dir, "_UNROUTED")

	lgr, err := ledger.OpenFileLedger(filepath.Join(dir, "processed.txt"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { lgr.Close() })

	router := routing.NewTable(&model.Config{
		DefaultFolder: defaultDir,
		Cases:         map[string]string{"1:23-cv-00456": caseDir},
	})

	logPath := filepath.Join(dir, "activity.log")

	log := logrus.New()
	log.SetOutput(io.Discard)

	return &fixture{
		controller: New(lgr, router, retriever, activity.NewLog(logPath), log),
		ledger:     lgr,
		caseDir:    caseDir,
		defaultDir: defaultDir,
		logPath:    logPath,
	}
}

func pdfFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("readdir %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunSavesMappedCase(t *testing.T) {
	retriever := &fakeRetriever{result: retrieval.Result{
		Outcome: retrieval.OutcomeDocument,
		Data:    []byte(dummyPDF),
	}}
	f := newFixture(t, retriever)

	mbox := &fakeMailbox{
		messages: map[string][]byte{"7": nefEmail("1:23-cv-00456", "Motion to Dismiss", true)},
		order:    []string{"7"},
	}

	summary, err := f.controller.Run(context.Background(), mbox)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Saved != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}

	files := pdfFiles(t, f.caseDir)
	if len(files) != 1 {
		t.Fatalf("expected 1 file in case folder, got %v", files)
	}
	if !f.ledger.Contains("7") {
		t.Error("notification not marked processed")
	}

	records, _ := activity.Read(f.logPath)
	if len(records) != 1 {
		t.Fatalf("expected 1 activity record, got %d", len(records))
	}
	if records[0].Status != model.StatusSuccess || records[0].CaseNum != "1:23-cv-00456" {
		t.Errorf("record: %+v", records[0])
	}
	if records[0].Filename == "" {
		t.Error("success record should name the saved file")
	}
}

func TestRunUnmappedCaseGoesToDefaultWithWarning(t *testing.T) {
	retriever := &fakeRetriever{result: retrieval.Result{
		Outcome: retrieval.OutcomeDocument,
		Data:    []byte(dummyPDF),
	}}
	f := newFixture(t, retriever)

	mbox := &fakeMailbox{
		messages: map[string][]byte{"8": nefEmail("5:99-cv-99999", "Unknown Filing", true)},
		order:    []string{"8"},
	}

	if _, err := f.controller.Run(context.Background(), mbox); err != nil {
		t.Fatalf("run: %v", err)
	}

	if files := pdfFiles(t, f.defaultDir); len(files) != 1 {
		t.Fatalf("expected 1 file in default folder, got %v", files)
	}

	records, _ := activity.Read(f.logPath)
	if len(records) != 2 {
		t.Fatalf("expected warning + success records, got %d", len(records))
	}
	if records[0].Status != model.StatusWarning || records[0].CaseNum != "5:99-cv-99999" {
		t.Errorf("warning record: %+v", records[0])
	}
	if records[1].Status != model.StatusSuccess {
		t.Errorf("success record: %+v", records[1])
	}
}

func TestRunExpiredLinkLeavesUnmarked(t *testing.T) {
	retriever := &fakeRetriever{result: retrieval.Result{
		Outcome: retrieval.OutcomeExpiredLink,
		Detail:  "free-look link expired",
	}}
	f := newFixture(t, retriever)

	mbox := &fakeMailbox{
		messages: map[string][]byte{"9": nefEmail("1:23-cv-00456", "Order", true)},
		order:    []string{"9"},
	}

	summary, err := f.controller.Run(context.Background(), mbox)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Failed != 1 || summary.Saved != 0 {
		t.Errorf("summary = %+v", summary)
	}

	if files := pdfFiles(t, f.caseDir); len(files) != 0 {
		t.Errorf("no file should be written, got %v", files)
	}
	if f.ledger.Contains("9") {
		t.Error("expired link must leave the notification unmarked for retry")
	}

	records, _ := activity.Read(f.logPath)
	if len(records) != 1 || records[0].Status != model.StatusError {
		t.Errorf("records: %+v", records)
	}
}

func TestRunNoDocumentURLIsMarkedTerminal(t *testing.T) {
	retriever := &fakeRetriever{}
	f := newFixture(t, retriever)

	mbox := &fakeMailbox{
		messages: map[string][]byte{"10": nefEmail("1:23-cv-00456", "Minute Entry", false)},
		order:    []string{"10"},
	}

	summary, err := f.controller.Run(context.Background(), mbox)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.NoDocument != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if retriever.attempts != 0 {
		t.Error("nothing to retrieve, but the retriever was called")
	}
	if !f.ledger.Contains("10") {
		t.Error("no-URL notification must be marked to avoid rescanning")
	}

	records, _ := activity.Read(f.logPath)
	if len(records) != 1 || records[0].Status != model.StatusWarning {
		t.Errorf("records: %+v", records)
	}
}

func TestRunSkipsAlreadyProcessed(t *testing.T) {
	retriever := &fakeRetriever{result: retrieval.Result{
		Outcome: retrieval.OutcomeDocument,
		Data:    []byte(dummyPDF),
	}}
	f := newFixture(t, retriever)

	if err := f.ledger.Mark("11"); err != nil {
		t.Fatalf("pre-mark: %v", err)
	}

	mbox := &fakeMailbox{
		messages: map[string][]byte{"11": nefEmail("1:23-cv-00456", "Motion", true)},
		order:    []string{"11"},
	}

	summary, err := f.controller.Run(context.Background(), mbox)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.New != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if mbox.fetches != 0 {
		t.Error("processed notification must not be fetched")
	}
	if retriever.attempts != 0 {
		t.Error("processed notification must not trigger retrieval")
	}
	if records, _ := activity.Read(f.logPath); len(records) != 0 {
		t.Errorf("processed notification must produce no activity, got %+v", records)
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	retriever := &fakeRetriever{result: retrieval.Result{
		Outcome: retrieval.OutcomeDocument,
		Data:    []byte(dummyPDF),
	}}
	f := newFixture(t, retriever)

	mbox := &fakeMailbox{
		messages: map[string][]byte{
			"20": nefEmail("1:23-cv-00456", "Motion to Dismiss", true),
			"21": nefEmail("1:23-cv-00456", "Motion to Dismiss", true),
		},
		order: []string{"20", "21"},
	}

	if _, err := f.controller.Run(context.Background(), mbox); err != nil {
		t.Fatalf("first run: %v", err)
	}

	filesAfterFirst := pdfFiles(t, f.caseDir)
	recordsAfterFirst, _ := activity.Read(f.logPath)

	summary, err := f.controller.Run(context.Background(), mbox)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.New != 0 || summary.Saved != 0 {
		t.Errorf("second run summary = %+v", summary)
	}

	filesAfterSecond := pdfFiles(t, f.caseDir)
	if len(filesAfterSecond) != len(filesAfterFirst) {
		t.Errorf("file set changed: %v -> %v", filesAfterFirst, filesAfterSecond)
	}
	recordsAfterSecond, _ := activity.Read(f.logPath)
	if len(recordsAfterSecond) != len(recordsAfterFirst) {
		t.Errorf("activity grew on idempotent re-run: %d -> %d",
			len(recordsAfterFirst), len(recordsAfterSecond))
	}
}

func TestRunSameSubjectGetsCollisionSuffixes(t *testing.T) {
	retriever := &fakeRetriever{result: retrieval.Result{
		Outcome: retrieval.OutcomeDocument,
		Data:    []byte(dummyPDF),
	}}
	f := newFixture(t, retriever)

	raw := nefEmail("1:23-cv-00456", "Motion to Dismiss", true)
	mbox := &fakeMailbox{
		messages: map[string][]byte{"30": raw, "31": raw, "32": raw},
		order:    []string{"30", "31", "32"},
	}

	if _, err := f.controller.Run(context.Background(), mbox); err != nil {
		t.Fatalf("run: %v", err)
	}

	files := pdfFiles(t, f.caseDir)
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %v", files)
	}
	unique := map[string]struct{}{}
	for _, name := range files {
		unique[name] = struct{}{}
	}
	if len(unique) != 3 {
		t.Errorf("filenames not unique: %v", files)
	}
}

func TestRunEmptyMailboxTerminatesCleanly(t *testing.T) {
	f := newFixture(t, &fakeRetriever{})

	summary, err := f.controller.Run(context.Background(), &fakeMailbox{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Found != 0 {
		t.Errorf("summary = %+v", summary)
	}
}
