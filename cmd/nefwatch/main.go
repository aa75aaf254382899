// Command nefwatch downloads PACER documents referenced by NEF
// notification emails and files them into case-specific folders.
//
// Usage:
//
//	nefwatch [flags] run           check the mailbox once (default)
//	nefwatch [flags] watch         check repeatedly at the configured interval
//	nefwatch [flags] serve         start the configuration dashboard
//	nefwatch [flags] set-password  store the mailbox app password in the keyring
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nhle/nefwatch/internal/activity"
	"github.com/nhle/nefwatch/internal/credential"
	"github.com/nhle/nefwatch/internal/ledger"
	"github.com/nhle/nefwatch/internal/logging"
	"github.com/nhle/nefwatch/internal/mailbox"
	"github.com/nhle/nefwatch/internal/model"
	"github.com/nhle/nefwatch/internal/pipeline"
	"github.com/nhle/nefwatch/internal/retrieval"
	"github.com/nhle/nefwatch/internal/routing"
	"github.com/nhle/nefwatch/internal/web"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the configuration file")
	logDir := flag.String("log-dir", "", "directory for the rotated process log (default: stderr only)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	log := logging.New(*logDir, *verbose)

	command := flag.Arg(0)
	if command == "" {
		command = "run"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "run":
		err = cmdRun(ctx, *configPath, log)
	case "watch":
		err = cmdWatch(ctx, *configPath, log)
	case "serve":
		err = cmdServe(ctx, *configPath, log)
	case "set-password":
		err = cmdSetPassword()
	default:
		err = fmt.Errorf("unknown command %q", command)
	}

	if err != nil {
		reportError(log, err)
		os.Exit(1)
	}
}

// reportError logs the failure, attaching the provider's app-password
// help URL when authentication was the problem.
func reportError(log *logrus.Logger, err error) {
	var authErr *mailbox.AuthError
	if errors.As(err, &authErr) {
		entry := log.WithError(err)
		if authErr.HelpURL != "" {
			entry = entry.WithField("app_password_help", authErr.HelpURL)
		}
		entry.Error("login failed; make sure you are using an app password, not your regular password")
		return
	}
	log.WithError(err).Error("nefwatch failed")
}

// cmdRun executes a single pipeline pass.
func cmdRun(ctx context.Context, configPath string, log *logrus.Logger) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	summary, err := runOnce(ctx, cfg, log)
	if err != nil {
		return err
	}

	if summary.New == 0 {
		fmt.Println("No new emails to process.")
	} else {
		fmt.Printf("Processed %d new email(s): %d saved, %d without a document link, %d failed.\n",
			summary.New, summary.Saved, summary.NoDocument, summary.Failed)
	}
	return nil
}

// runOnce wires the collaborators for one run: configuration in, a
// summary out. The mailbox session is scoped to this call and released
// on every exit path.
func runOnce(ctx context.Context, cfg *model.Config, log *logrus.Logger) (*pipeline.Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	runLog := log.WithField("run_id", uuid.New().String())

	lgr, err := ledger.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer lgr.Close()

	act := activity.NewLog(cfg.ActivityLog)

	password, err := resolvePassword(cfg)
	if err != nil {
		return nil, err
	}

	session, err := mailbox.NewClient(cfg, password).Dial(ctx)
	if err != nil {
		if mailbox.IsAuthError(err) {
			act.Record(fmt.Sprintf("Login failed: %v", err), "", "", model.StatusError)
		}
		return nil, err
	}
	defer session.Close()

	controller := pipeline.New(
		lgr,
		routing.NewTable(cfg),
		retrieval.NewClient(),
		act,
		runLog,
	)

	return controller.Run(ctx, session)
}

// resolvePassword prefers the keyring entry; the config-file password is
// the fallback for configs written by the dashboard.
func resolvePassword(cfg *model.Config) (string, error) {
	if password, err := credential.Get(credential.PasswordKey); err == nil && password != "" {
		return password, nil
	}
	if cfg.EmailPassword != "" {
		return cfg.EmailPassword, nil
	}
	return "", fmt.Errorf("no mailbox password configured; run 'nefwatch set-password' or set email_password")
}

// cmdWatch runs the pipeline at the configured interval until the
// process is signalled. A PID file lets the dashboard show status.
func cmdWatch(ctx context.Context, configPath string, log *logrus.Logger) error {
	pidPath := pidFilePath(configPath)
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer os.Remove(pidPath)

	for {
		// Reload each cycle so dashboard edits take effect.
		cfg, err := model.LoadConfig(configPath)
		if err != nil {
			return err
		}

		if _, err := runOnce(ctx, cfg, log); err != nil {
			// Session-level failures end this cycle, not the watcher;
			// the operator may be mid-way through fixing credentials.
			reportError(log, err)
		}

		interval := time.Duration(cfg.WatchIntervalSec) * time.Second
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// cmdServe starts the dashboard.
func cmdServe(ctx context.Context, configPath string, log *logrus.Logger) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	runner := func(ctx context.Context) error {
		cfg, err := model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		_, err = runOnce(ctx, cfg, log)
		return err
	}

	srv, err := web.NewServer(configPath, pidFilePath(configPath), runner, log)
	if err != nil {
		return err
	}

	fmt.Printf("Open http://%s in your browser\n", cfg.ListenAddr)
	return srv.ListenAndServe(ctx, cfg.ListenAddr)
}

// cmdSetPassword stores the app password in the system keyring.
func cmdSetPassword() error {
	fmt.Print("App password: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	password := strings.TrimSpace(line)
	if password == "" {
		return fmt.Errorf("empty password")
	}

	if err := credential.Set(credential.PasswordKey, password); err != nil {
		return err
	}
	fmt.Println("Password stored in the system keyring.")
	return nil
}

// pidFilePath places the watch-mode PID file next to the config file.
func pidFilePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".watcher.pid")
}
