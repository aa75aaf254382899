package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nhle/nefwatch/internal/activity"
	"github.com/nhle/nefwatch/internal/model"
)

// flash is a one-shot notice carried across a redirect.
type flash struct {
	Kind    string
	Message string
}

// unmappedCase is a case number seen by the pipeline without a mapping.
type unmappedCase struct {
	CaseNum  string
	LastSeen string
}

type indexData struct {
	Config         *model.Config
	Activity       []model.ActivityRecord
	Unmapped       []unmappedCase
	WatcherRunning bool
	WatcherPID     int
	Flash          *flash
}

type caseFormData struct {
	CaseNumber string
	Folder     string
	Flash      *flash
}

type settingsData struct {
	Config *model.Config
	Flash  *flash
}

func (s *Server) loadConfig(w http.ResponseWriter) *model.Config {
	cfg, err := model.LoadConfig(s.configPath)
	if err != nil {
		s.log.WithError(err).Error("loading config")
		http.Error(w, "could not load configuration", http.StatusInternalServerError)
		return nil
	}
	return cfg
}

func flashFromRequest(r *http.Request) *flash {
	msg := r.URL.Query().Get("notice")
	if msg == "" {
		return nil
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "success"
	}
	return &flash{Kind: kind, Message: msg}
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, path, kind, msg string) {
	q := url.Values{"notice": {msg}, "kind": {kind}}
	http.Redirect(w, r, path+"?"+q.Encode(), http.StatusSeeOther)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	cfg := s.loadConfig(w)
	if cfg == nil {
		return
	}

	records, _ := activity.Read(cfg.ActivityLog)

	// Most recent first, capped for display.
	recent := make([]model.ActivityRecord, 0, 20)
	for i := len(records) - 1; i >= 0 && len(recent) < 20; i-- {
		recent = append(recent, records[i])
	}

	running, pid := watcherStatus(s.pidPath)

	s.render(w, "index.html", indexData{
		Config:         cfg,
		Activity:       recent,
		Unmapped:       unmappedCases(cfg, records),
		WatcherRunning: running,
		WatcherPID:     pid,
		Flash:          flashFromRequest(r),
	})
}

// unmappedCases lists case numbers that produced warnings but still have
// no mapping, most recently seen first. This is how cases needing a
// mapping surface to the operator.
func unmappedCases(cfg *model.Config, records []model.ActivityRecord) []unmappedCase {
	latest := map[string]string{}
	for _, rec := range records {
		if rec.CaseNum == "" || rec.Status != model.StatusWarning {
			continue
		}
		if _, mapped := cfg.Cases[rec.CaseNum]; mapped {
			continue
		}
		latest[rec.CaseNum] = rec.Timestamp
	}

	out := make([]unmappedCase, 0, len(latest))
	for caseNum, ts := range latest {
		out = append(out, unmappedCase{CaseNum: caseNum, LastSeen: ts})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen > out[j].LastSeen
	})
	return out
}

func (s *Server) handleAddForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, "add_case.html", caseFormData{
		// Pre-fill from the quick-add link on an unmapped case.
		CaseNumber: r.URL.Query().Get("case"),
		Flash:      flashFromRequest(r),
	})
}

func (s *Server) handleAddCase(w http.ResponseWriter, r *http.Request) {
	caseNumber := strings.TrimSpace(r.FormValue("case_number"))
	folder := strings.TrimSpace(r.FormValue("folder"))
	if caseNumber == "" || folder == "" {
		redirectWithFlash(w, r, "/add", "error", "Both case number and folder are required.")
		return
	}

	cfg := s.loadConfig(w)
	if cfg == nil {
		return
	}

	cfg.Cases[caseNumber] = folder
	if err := model.SaveConfig(s.configPath, cfg); err != nil {
		s.log.WithError(err).Error("saving config")
		redirectWithFlash(w, r, "/", "error", "Could not save configuration.")
		return
	}

	// One-time reconciliation: move files already saved to the unrouted
	// folder for this case into its new home.
	moved, err := moveUnmappedFiles(cfg, caseNumber, folder)
	if err != nil {
		s.log.WithError(err).WithField("case", caseNumber).Warn("moving unrouted files")
	}

	msg := "Added case " + caseNumber + " → " + folder
	if len(moved) > 0 {
		msg += " and moved " + strconv.Itoa(len(moved)) + " file(s)"
	}
	redirectWithFlash(w, r, "/", "success", msg)
}

func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request) {
	caseNumber := chi.URLParam(r, "caseNumber")

	cfg := s.loadConfig(w)
	if cfg == nil {
		return
	}

	folder, ok := cfg.Cases[caseNumber]
	if !ok {
		redirectWithFlash(w, r, "/", "error", "Case "+caseNumber+" not found.")
		return
	}

	s.render(w, "edit_case.html", caseFormData{
		CaseNumber: caseNumber,
		Folder:     folder,
		Flash:      flashFromRequest(r),
	})
}

func (s *Server) handleEditCase(w http.ResponseWriter, r *http.Request) {
	caseNumber := chi.URLParam(r, "caseNumber")
	newCaseNumber := strings.TrimSpace(r.FormValue("case_number"))
	folder := strings.TrimSpace(r.FormValue("folder"))
	if newCaseNumber == "" || folder == "" {
		redirectWithFlash(w, r, "/edit/"+url.PathEscape(caseNumber), "error",
			"Both case number and folder are required.")
		return
	}

	cfg := s.loadConfig(w)
	if cfg == nil {
		return
	}

	if _, ok := cfg.Cases[caseNumber]; !ok {
		redirectWithFlash(w, r, "/", "error", "Case "+caseNumber+" not found.")
		return
	}

	if newCaseNumber != caseNumber {
		delete(cfg.Cases, caseNumber)
	}
	cfg.Cases[newCaseNumber] = folder

	if err := model.SaveConfig(s.configPath, cfg); err != nil {
		s.log.WithError(err).Error("saving config")
		redirectWithFlash(w, r, "/", "error", "Could not save configuration.")
		return
	}

	redirectWithFlash(w, r, "/", "success", "Updated case "+newCaseNumber+" → "+folder)
}

func (s *Server) handleDeleteCase(w http.ResponseWriter, r *http.Request) {
	caseNumber := chi.URLParam(r, "caseNumber")

	cfg := s.loadConfig(w)
	if cfg == nil {
		return
	}

	if _, ok := cfg.Cases[caseNumber]; !ok {
		redirectWithFlash(w, r, "/", "error", "Case "+caseNumber+" not found.")
		return
	}

	delete(cfg.Cases, caseNumber)
	if err := model.SaveConfig(s.configPath, cfg); err != nil {
		s.log.WithError(err).Error("saving config")
		redirectWithFlash(w, r, "/", "error", "Could not save configuration.")
		return
	}

	redirectWithFlash(w, r, "/", "success", "Deleted case "+caseNumber)
}

func (s *Server) handleSettingsForm(w http.ResponseWriter, r *http.Request) {
	cfg := s.loadConfig(w)
	if cfg == nil {
		return
	}
	s.render(w, "settings.html", settingsData{Config: cfg, Flash: flashFromRequest(r)})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	cfg := s.loadConfig(w)
	if cfg == nil {
		return
	}

	cfg.EmailProvider = strings.TrimSpace(r.FormValue("email_provider"))
	cfg.EmailUser = strings.TrimSpace(r.FormValue("email_user"))
	if pw := r.FormValue("email_password"); pw != "" {
		cfg.EmailPassword = pw
	}
	cfg.DefaultFolder = strings.TrimSpace(r.FormValue("default_folder"))

	if cfg.EmailProvider == "custom" {
		cfg.IMAPServer = strings.TrimSpace(r.FormValue("imap_server"))
		if port, err := strconv.Atoi(r.FormValue("imap_port")); err == nil {
			cfg.IMAPPort = port
		}
	}

	if err := model.SaveConfig(s.configPath, cfg); err != nil {
		s.log.WithError(err).Error("saving config")
		redirectWithFlash(w, r, "/settings", "error", "Could not save settings.")
		return
	}

	redirectWithFlash(w, r, "/", "success", "Settings saved.")
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.run == nil {
		redirectWithFlash(w, r, "/", "error", "Runner is not configured.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), runTimeout)
	defer cancel()

	if err := s.run(ctx); err != nil {
		s.log.WithError(err).Error("on-demand run failed")
		redirectWithFlash(w, r, "/", "error", "Watcher error: "+err.Error())
		return
	}

	redirectWithFlash(w, r, "/", "success", "Watcher completed successfully.")
}

func (s *Server) handleAPIActivity(w http.ResponseWriter, r *http.Request) {
	cfg := s.loadConfig(w)
	if cfg == nil {
		return
	}

	records, _ := activity.Read(cfg.ActivityLog)

	// Most recent first.
	reversed := make([]model.ActivityRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		reversed = append(reversed, records[i])
	}

	writeJSON(w, reversed)
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	running, pid := watcherStatus(s.pidPath)
	writeJSON(w, map[string]any{"running": running, "pid": pid})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
