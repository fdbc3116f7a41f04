package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"reelscope/internal/config"
	"reelscope/internal/contentstore"
	"reelscope/internal/daemon"
	"reelscope/internal/logging"
	"reelscope/internal/notifications"
	"reelscope/internal/pipeline"
	"reelscope/internal/preflight"
	"reelscope/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the reelscope daemon and blocks until the context ends or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logHub := logging.NewStreamHub(4096)
	logger, logPath, err := logging.NewFromConfig(cfg, logHub)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "reelscope*.log", Exclude: []string{logPath}},
	)
	logDependencySnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := contentstore.NewFromConfig(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open content store", logging.Error(err))
		return err
	}

	for _, result := range preflight.Failed(preflight.RunAll(signalCtx, cfg, store)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "submissions touching this component may fail"),
		)
	}

	notifier := notifications.NewService(cfg)
	orchestrator := pipeline.NewFromConfig(cfg, store, logger)
	manager := workflow.NewManager(cfg, orchestrator, logger, workflow.WithNotifier(notifier))

	d, err := daemon.New(cfg, store, logger, manager,
		daemon.WithLogStream(logHub, logPath),
		daemon.WithNotifier(notifier),
	)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check server.api_bind and that no other daemon holds the lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("reelscope daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("analyzer_key_present", strings.TrimSpace(cfg.Analyzer.APIKey) != ""),
		logging.String("analyzer_model", cfg.Analyzer.Model),
		logging.String("store_backend", cfg.Store.Backend),
		logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	statuses := preflight.CheckSystemDeps(cfg)
	for _, status := range statuses {
		attrs = append(attrs, logging.Bool(strings.ToLower(status.Name)+"_available", status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	for _, status := range statuses {
		if status.Available {
			continue
		}
		logging.WarnWithContext(logger, "dependency unavailable", "dependency_missing",
			logging.String("dependency", status.Name),
			logging.String("detail", status.Detail),
			logging.Bool("optional", status.Optional),
			logging.String(logging.FieldErrorHint, "install "+status.Command),
		)
	}
}
