// Package web serves the administrative dashboard: case-mapping CRUD,
// settings, the activity viewer, and an on-demand pipeline run. It reads
// and writes the same config and activity log as the pipeline but
// contains no pipeline logic.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

//go:embed templates
var templatesFS embed.FS

// RunFunc triggers a single pipeline run; wired in by the caller so the
// dashboard stays free of mailbox plumbing.
type RunFunc func(ctx context.Context) error

// runTimeout bounds an on-demand run triggered from the dashboard.
const runTimeout = 60 * time.Second

// Server holds the dashboard's dependencies.
type Server struct {
	configPath string
	pidPath    string
	run        RunFunc
	log        *logrus.Logger
	templates  map[string]*template.Template
}

// NewServer creates a dashboard server. configPath is the shared config
// file; pidPath is the watch-mode PID file used for status display.
func NewServer(configPath, pidPath string, run RunFunc, log *logrus.Logger) (*Server, error) {
	s := &Server{
		configPath: configPath,
		pidPath:    pidPath,
		run:        run,
		log:        log,
		templates:  make(map[string]*template.Template),
	}

	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("opening embedded templates: %w", err)
	}

	pages, err := fs.Glob(sub, "*.html")
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	for _, page := range pages {
		name := filepath.Base(page)
		if name == "base.html" {
			continue
		}
		tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(sub, "base.html", page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		s.templates[name] = tmpl
	}

	return s, nil
}

// templateFuncs are the helpers available inside page templates.
var templateFuncs = template.FuncMap{
	"formatDatetime": func(value string) string {
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return value
		}
		return t.Format("2006-01-02 15:04")
	},
}

// Router builds the dashboard's route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/add", s.handleAddForm)
	r.Post("/add", s.handleAddCase)
	r.Get("/edit/{caseNumber}", s.handleEditForm)
	r.Post("/edit/{caseNumber}", s.handleEditCase)
	r.Post("/delete/{caseNumber}", s.handleDeleteCase)
	r.Get("/settings", s.handleSettingsForm)
	r.Post("/settings", s.handleSaveSettings)
	r.Post("/run", s.handleRun)

	r.Get("/api/activity", s.handleAPIActivity)
	r.Get("/api/status", s.handleAPIStatus)

	return r
}

// ListenAndServe runs the dashboard until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * runTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.WithField("addr", addr).Info("dashboard listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

// render executes a page template with the base layout.
func (s *Server) render(w http.ResponseWriter, page string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		s.log.WithField("page", page).Error("unknown template")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		s.log.WithError(err).WithField("page", page).Error("rendering template")
	}
}
