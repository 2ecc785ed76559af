// Package app wires configuration, logging, the writer, the engine and
// backup retention into one Application for the hostkeep command.
package app

import (
	"context"
	"io"
	"sync"

	"github.com/dshills/hostkeep/internal/backup"
	"github.com/dshills/hostkeep/internal/config"
	"github.com/dshills/hostkeep/internal/elevate"
	"github.com/dshills/hostkeep/internal/engine"
	"github.com/dshills/hostkeep/internal/logging"
	"github.com/dshills/hostkeep/internal/notify"
	"github.com/dshills/hostkeep/internal/vfs"
	"github.com/dshills/hostkeep/internal/watcher"
	"github.com/dshills/hostkeep/internal/writer"
)

// Options are the command line overrides applied on top of the loaded
// configuration. Zero values leave the configuration untouched.
type Options struct {
	// ConfigPath is the configuration file. Empty uses HOSTKEEP_CONFIG or
	// the user config directory.
	ConfigPath string

	// HostsPath overrides the managed hosts file.
	HostsPath string

	// LogLevel overrides the logging verbosity.
	LogLevel string

	// Elevate routes writes through the privilege command.
	Elevate bool

	// NoBackup disables the pre-write backup.
	NoBackup bool

	// DryRun computes results without touching the hosts file.
	DryRun bool

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// LookupEnv reads environment variables. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// FS is the file system for reads and backups. Defaults to the OS.
	// A custom FS also receives the hosts file replacement unless
	// Replacer is set.
	FS vfs.FS

	// Replacer overrides how the hosts file is replaced on the normal
	// write path.
	Replacer writer.Replacer

	// Source overrides the watcher's notification source.
	Source watcher.Source

	// Executor overrides the privileged collaborator used when writes
	// are elevated. Defaults to a SudoExecutor built from the config.
	Executor Executor
}

// Executor writes and removes files with raised privileges. Elevated
// writes and the pruning of the backups they leave both go through it.
type Executor interface {
	writer.PrivilegedExecutor
	backup.Remover
}

// Application holds the components of one hostkeep invocation.
type Application struct {
	opts   Options
	cfg    config.Config
	fs     vfs.FS
	logger *logging.Logger

	writer  *writer.Writer
	engine  *engine.Engine
	backups *backup.Manager
	prune   *notify.Subscription

	shutdownOnce sync.Once
}

// New loads configuration and builds every component. Nothing touches
// the hosts file until a command does.
func New(opts Options) (*Application, error) {
	app := &Application{opts: opts}
	if err := app.bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// bootstrap initializes components in dependency order.
func (app *Application) bootstrap() error {
	app.fs = app.opts.FS
	if app.fs == nil {
		app.fs = vfs.NewOSFS()
	}

	// 1. Configuration
	loaderOpts := []config.LoaderOption{config.WithFS(app.fs)}
	if app.opts.LookupEnv != nil {
		loaderOpts = append(loaderOpts, config.WithLookupEnv(app.opts.LookupEnv))
	}
	loader := config.NewLoader(loaderOpts...)
	cfg, err := loader.Load(loader.Path(app.opts.ConfigPath))
	if err != nil {
		return &InitError{Component: "config", Err: err}
	}
	app.applyOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return &InitError{Component: "config", Err: err}
	}
	app.cfg = cfg

	// 2. Logging
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Level()
	if app.opts.LogOutput != nil {
		logCfg.Output = app.opts.LogOutput
	}
	app.logger = logging.New(logCfg)

	// 3. Writer, with the privileged path when requested
	writerOpts := []writer.Option{
		writer.WithFS(app.fs),
		writer.WithLogger(app.logger),
	}
	switch {
	case app.opts.Replacer != nil:
		writerOpts = append(writerOpts, writer.WithReplacer(app.opts.Replacer))
	case app.opts.FS != nil:
		writerOpts = append(writerOpts, writer.WithReplacer(writer.FSReplacer{FS: app.fs}))
	}
	backupOpts := []backup.Option{backup.WithLogger(app.logger)}
	if cfg.Write.Elevated {
		exec := app.opts.Executor
		if exec == nil {
			exec = elevate.NewSudoExecutor(
				elevate.WithCommand(cfg.Write.ElevateCommand...),
				elevate.WithLogger(app.logger),
			)
		}
		writerOpts = append(writerOpts, writer.WithExecutor(exec))
		backupOpts = append(backupOpts, backup.WithRemover(exec))
	}
	app.writer = writer.New(writerOpts...)

	// 4. Backup retention runs after every successful write that left a
	// backup behind. Elevated backups are pruned with the same rights
	// that created them.
	app.backups = backup.NewManager(app.fs, app.writer, backupOpts...)
	app.prune = app.writer.OnResult(app.pruneAfter)

	// 5. Engine
	engineOpts := []engine.Option{
		engine.WithFS(app.fs),
		engine.WithWriter(app.writer),
		engine.WithLogger(app.logger),
	}
	if app.opts.Source != nil {
		engineOpts = append(engineOpts, engine.WithSource(app.opts.Source))
	}
	app.engine = engine.New(engine.Config{
		Path:     cfg.HostsPath,
		Debounce: cfg.Watch.Debounce.Duration,
		Write:    app.WriteOptions(),
	}, engineOpts...)

	app.logger.Debug("hosts file %s (elevated=%v backup=%v dry-run=%v)",
		cfg.HostsPath, cfg.Write.Elevated, cfg.Write.Backup, app.opts.DryRun)
	return nil
}

func (app *Application) applyOverrides(cfg *config.Config) {
	if app.opts.HostsPath != "" {
		cfg.HostsPath = app.opts.HostsPath
	}
	if app.opts.LogLevel != "" {
		cfg.LogLevel = app.opts.LogLevel
	}
	if app.opts.Elevate {
		cfg.Write.Elevated = true
	}
	if app.opts.NoBackup {
		cfg.Write.Backup = false
	}
}

func (app *Application) pruneAfter(res writer.Result) {
	if !res.Success || res.BackupPath == "" {
		return
	}
	removed, err := app.backups.Prune(context.Background(), res.Path, app.Policy())
	if err != nil {
		app.logger.Warn("prune backups of %s: %v", res.Path, err)
		return
	}
	if len(removed) > 0 {
		app.logger.Debug("retention removed %d backups", len(removed))
	}
}

// Config returns the effective configuration.
func (app *Application) Config() config.Config {
	return app.cfg
}

// Logger returns the application logger.
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// FS returns the file system used for reads and backups.
func (app *Application) FS() vfs.FS {
	return app.fs
}

// Engine returns the hosts engine.
func (app *Application) Engine() *engine.Engine {
	return app.engine
}

// Writer returns the hosts writer.
func (app *Application) Writer() *writer.Writer {
	return app.writer
}

// Backups returns the backup manager.
func (app *Application) Backups() *backup.Manager {
	return app.backups
}

// HostsPath returns the managed hosts file.
func (app *Application) HostsPath() string {
	return app.cfg.HostsPath
}

// DryRun reports whether writes are simulated.
func (app *Application) DryRun() bool {
	return app.opts.DryRun
}

// WriteOptions returns the writer options every write uses.
func (app *Application) WriteOptions() writer.Options {
	return writer.Options{
		CreateBackup:    app.cfg.Write.Backup,
		UseElevatedPath: app.cfg.Write.Elevated,
		DryRun:          app.opts.DryRun,
	}
}

// Policy returns the configured backup retention.
func (app *Application) Policy() backup.Policy {
	return backup.Policy{
		MaxCount: app.cfg.Backup.MaxCount,
		MaxAge:   app.cfg.Backup.MaxAge.Duration,
	}
}

// Shutdown stops watching and releases the engine. It is safe to call
// more than once.
func (app *Application) Shutdown() {
	app.shutdownOnce.Do(func() {
		app.engine.Close()
		app.prune.Unsubscribe()
		app.logger.Debug("shutdown complete")
	})
}


var _ Executor = (*elevate.SudoExecutor)(nil)
