package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ppiankov/warden/internal/approval"
	"github.com/ppiankov/warden/internal/audit"
	"github.com/ppiankov/warden/internal/classify"
	"github.com/ppiankov/warden/internal/config"
	"github.com/ppiankov/warden/internal/executor"
	"github.com/ppiankov/warden/internal/governance"
	"github.com/ppiankov/warden/internal/metrics"
	"github.com/ppiankov/warden/internal/notify"
)

// exitError ends the process with code after printing msg (if any).
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("exit status %d", e.code)
}

// app is the wired pipeline shared by run, serve and mcp.
type app struct {
	cfg        *config.Config
	cfgHash    string
	metrics    *metrics.Metrics
	classifier *classify.Classifier
	approvals  *approval.Registry
	chain      *audit.Chain
	dispatcher *notify.Dispatcher
	governor   *governance.Governor
}

type appOptions struct {
	// console enables the terminal approver when the config allows it.
	// It must stay off when stdin carries a protocol.
	console bool
	stdin   io.Reader
	stderr  io.Writer
}

func loadConfig() (*config.Config, string, error) {
	cfg, hash, err := config.LoadWithHash(configPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}

func newClassifier(cfg *config.Config, m *metrics.Metrics) (*classify.Classifier, error) {
	cc, err := cfg.ClassifierConfig()
	if err != nil {
		return nil, err
	}
	return classify.New(cc, logger, m)
}

func buildApp(opts appOptions) (*app, error) {
	cfg, hash, err := loadConfig()
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	cls, err := newClassifier(cfg, m)
	if err != nil {
		return nil, err
	}
	chain, err := audit.NewChain(cfg.Audit.Dir)
	if err != nil {
		return nil, err
	}
	reg := approval.NewRegistry()
	m.PendingApprovals(reg.Count)

	var notifiers []notify.Notifier
	for _, wc := range cfg.Notify.Webhooks {
		wh, err := notify.NewWebhook(wc)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, wh)
	}
	if opts.console && cfg.Notify.Console {
		in, out := opts.stdin, opts.stderr
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stderr
		}
		notifiers = append(notifiers, notify.NewConsole(in, out, reg))
	}
	dispatcher := notify.NewDispatcher(logger, m, notifiers...)

	gcfg := governance.Config{
		Classifier: cls,
		Approvals:  reg,
		Audit:      chain,
		Executor: executor.New(executor.Config{
			Shell:     cfg.Executor.Shell,
			Dir:       cfg.Executor.Dir,
			Timeout:   cfg.Executor.Timeout,
			MaxOutput: cfg.Executor.MaxOutput,
		}),
		ApprovalTimeout: cfg.Approval.Timeout,
		RequireLevels:   cfg.Approval.RequireLevels,
		Logger:          logger,
		Metrics:         m,
	}
	if dispatcher != nil {
		gcfg.Notifier = dispatcher
	}
	gov, err := governance.New(gcfg)
	if err != nil {
		return nil, err
	}

	logger.Debug("pipeline ready", "config_hash", hash, "audit_dir", cfg.Audit.Dir,
		"notifiers", len(notifiers), "model", cfg.Classifier.Model != nil)
	return &app{
		cfg:        cfg,
		cfgHash:    hash,
		metrics:    m,
		classifier: cls,
		approvals:  reg,
		chain:      chain,
		dispatcher: dispatcher,
		governor:   gov,
	}, nil
}

// watchConfig hot-reloads classifier settings until ctx is done. Only the
// classifier is swapped; other sections need a restart.
func (a *app) watchConfig(ctx context.Context) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err != nil {
		logger.Debug("config file absent, hot reload disabled", "path", path)
		return
	}
	w, err := config.NewWatcher(path, func(cfg *config.Config, hash string) {
		cc, err := cfg.ClassifierConfig()
		if err == nil {
			err = a.classifier.Reconfigure(cc)
		}
		if err != nil {
			logger.Error("classifier reload rejected", "error", err)
			return
		}
		logger.Info("classifier rules reloaded", "rules", len(cfg.Classifier.Rules), "hash", hash)
	}, logger)
	if err != nil {
		logger.Warn("config hot reload unavailable", "error", err)
		return
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()
}

// close rejects whatever is still pending and gives in-flight prompt
// deliveries a moment to finish.
func (a *app) close() {
	a.approvals.RejectAll("warden exiting")
	done := make(chan struct{})
	go func() {
		a.dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logger.Warn("gave up waiting for approval notifications")
	}
}
