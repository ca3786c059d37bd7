package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/autoscene/autoscene/internal/backup"
	"github.com/autoscene/autoscene/internal/config"
	"github.com/autoscene/autoscene/internal/kbs"
	"github.com/autoscene/autoscene/internal/logging"
	"github.com/autoscene/autoscene/internal/observability"
	"github.com/autoscene/autoscene/internal/scenario"
	"github.com/autoscene/autoscene/internal/scenegraph"
)

// env bundles the configuration and ambient services a command runs with.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Collector
	events  *logging.EventLog
	tracing func(context.Context) error

	tempDir string // sqlite stores without a configured dir
}

// newEnv loads and validates the config and sets up logging and metrics.
// The caller must Close the env.
func newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	e := &env{
		cfg:     cfg,
		logger:  logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
		metrics: metrics,
	}
	if path, err := config.Path(); err == nil {
		e.events = logging.NewEventLog(filepath.Dir(path), cfg.Logging.Level)
	}
	e.tracing, err = observability.InitTracing(cmd.Context(), observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		SampleRatio: cfg.Tracing.SampleRatio,
		Writer:      cmd.ErrOrStderr(),
	}, e.logger)
	if err != nil {
		e.events.Close()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return e, nil
}

// scenarioOptions returns scenario options wired to the configured store
// backend and container codec.
func (e *env) scenarioOptions(name string) (scenario.Options, error) {
	opts := scenario.Options{
		Name:   name,
		Logger: e.logger,
		Codec: &kbs.Codec{
			CompressionLevel: e.cfg.Container.CompressionLevel,
			Metrics:          e.metrics,
			Logger:           e.logger,
		},
	}
	if e.cfg.Store.Backend != config.BackendSQLite {
		return opts, nil
	}

	dir := e.cfg.Store.Dir
	if dir == "" {
		if e.tempDir == "" {
			tmp, err := os.MkdirTemp("", "autoscene-stores-")
			if err != nil {
				return opts, fmt.Errorf("failed to create store directory: %w", err)
			}
			e.tempDir = tmp
		}
		dir = e.tempDir
	}
	opts.NewStore = scenario.SQLiteStores(dir)
	return opts, nil
}

func (e *env) extractor() *scenegraph.Extractor {
	return &scenegraph.Extractor{Logger: e.logger, Metrics: e.metrics}
}

// load reads a .kbs container, or builds a scenario from ABox files when
// aboxes is set.
func (e *env) load(ctx context.Context, paths []string, aboxes bool) (*scenario.Scenario, error) {
	opts, err := e.scenarioOptions("")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var sc *scenario.Scenario
	if aboxes {
		if paths, err = expandPatterns(paths); err != nil {
			return nil, err
		}
		sc, err = scenario.LoadABoxes(ctx, paths, opts)
	} else {
		if len(paths) != 1 {
			return nil, fmt.Errorf("expected one container file, got %d (use --abox for scene files)", len(paths))
		}
		sc, err = scenario.Load(ctx, paths[0], opts)
	}

	fields := map[string]any{
		"paths":       paths,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		e.events.Record("scenario.load", fields)
		return nil, err
	}
	fields["scenes"] = sc.Len()
	fields["identities"] = sc.Identities().Len()
	e.events.Record("scenario.load", fields)
	e.metrics.SetScenesLoaded(sc.Len())
	return sc, nil
}

// save writes sc to path as a .kbs container.
func (e *env) save(ctx context.Context, sc *scenario.Scenario, path string) error {
	if keep := e.cfg.Container.Backups; keep > 0 {
		dir, err := backup.DefaultDir()
		if err != nil {
			return err
		}
		now := time.Now()
		policy := backup.Policy(keep, e.cfg.Container.BackupMaxAge, now)
		created, deleted, err := backup.Rotate(path, dir, policy, now)
		if err != nil {
			return fmt.Errorf("failed to back up %s: %w", path, err)
		}
		if created != "" {
			e.logger.Info("previous container backed up", "path", created, "pruned", len(deleted))
		}
	}

	start := time.Now()
	err := sc.SaveABox(ctx, path)
	fields := map[string]any{
		"path":        path,
		"scenes":      sc.Len(),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	e.events.Record("scenario.save", fields)
	return err
}

func (e *env) Close() {
	observability.ShutdownWithTimeout(context.Background(), e.tracing, e.logger)
	e.events.Close()
	if e.tempDir != "" {
		os.RemoveAll(e.tempDir)
	}
}

// expandPatterns replaces glob patterns ("scenes/**/*.nt") with their
// matches in lexical order. Existing files and plain paths pass through.
func expandPatterns(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil || !strings.ContainsAny(p, "*?[{") {
			out = append(out, p)
			continue
		}
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", p)
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

// signalContext returns a context cancelled on the first shutdown signal.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, shutdownSignals...)
}
