// Package daemonrun assembles and supervises the docflow daemon process:
// logger, store, engine, workflow loops, HTTP API and IPC socket.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"docflow/internal/config"
	"docflow/internal/daemon"
	"docflow/internal/engine"
	"docflow/internal/ipc"
	"docflow/internal/logging"
	"docflow/internal/notifications"
	"docflow/internal/persist"
	"docflow/internal/preflight"
	"docflow/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Ready, when set, is called once the daemon and IPC socket are up.
	Ready func()
}

// Run starts the docflow daemon and blocks until the context is cancelled
// or SIGINT/SIGTERM arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogPath()},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logPreflight(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, "docflow.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := persist.Open(cfg, persist.WithLogger(logger))
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	snapshot, err := store.LoadAll(signalCtx)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("load state: %w", err)
	}

	eng := engine.New(snapshot, engine.Options{
		Persistence: store,
		Publisher:   notifications.NewPublisher(cfg),
		Logger:      logger,
	})
	manager := workflow.NewManager(cfg, eng, store, logger)

	d, err := daemon.New(cfg, eng, store, manager, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	ipcServer.Serve()

	if opts.Ready != nil {
		opts.Ready()
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("docflow daemon shutting down")
		ipcServer.Close()
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		d.Stop()
		return nil
	})
	return group.Wait()
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or service named in the check"),
			logging.String(logging.FieldImpact, "saves, backups or push notifications may fail"),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
