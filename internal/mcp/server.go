// Package mcp provides an MCP (Model Context Protocol) server that lets
// agents inspect a saved scenario.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/autoscene/autoscene/internal/ratelimit"
	"github.com/autoscene/autoscene/internal/scenario"
	"github.com/autoscene/autoscene/internal/scenegraph"
)

// ErrNoScenario is returned by tools when no container is loaded.
var ErrNoScenario = errors.New("no scenario loaded")

// Server wraps the MCP SDK server around one loaded scenario.
type Server struct {
	server    *sdk.Server
	path      string
	opts      scenario.Options
	extractor *scenegraph.Extractor
	audit     *AuditLogger
	limiter   *ratelimit.Limiter
	logger    *slog.Logger

	mu       sync.RWMutex
	scenario *scenario.Scenario
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "autoscene")
	Version string // Server version
	Path    string // Container (.kbs) to serve

	// Scenario configures how the container is loaded.
	Scenario scenario.Options

	// AuditDir receives audit.jsonl; empty disables auditing.
	AuditDir string

	// Rates overrides the per-tool rate limits. Nil uses
	// ratelimit.DefaultToolRates.
	Rates map[string]ratelimit.Rate
}

// NewServer loads cfg.Path and creates an MCP server with scenario tools.
func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{})

	logger := cfg.Scenario.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		server:    mcpServer,
		path:      cfg.Path,
		opts:      cfg.Scenario,
		extractor: &scenegraph.Extractor{Schema: cfg.Scenario.Schema, Logger: logger},
		logger:    logger,
	}
	rates := cfg.Rates
	if rates == nil {
		rates = ratelimit.DefaultToolRates()
	}
	s.limiter = ratelimit.New(rates)
	if cfg.AuditDir != "" {
		s.audit = NewAuditLogger(cfg.AuditDir)
	}

	if cfg.Path != "" {
		if err := s.reload(ctx); err != nil {
			s.audit.Close()
			return nil, err
		}
	}

	s.registerTools()
	return s, nil
}

// reload replaces the served scenario with the container on disk. The
// previous scenario stays in place when loading fails.
func (s *Server) reload(ctx context.Context) error {
	sc, err := scenario.Load(ctx, s.path, s.opts)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", s.path, err)
	}
	s.mu.Lock()
	old := s.scenario
	s.scenario = sc
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	s.logger.Debug("mcp scenario loaded", "path", s.path, "scenes", sc.Len())
	return nil
}

// current returns the loaded scenario with the read lock held. The caller
// must call the returned release func.
func (s *Server) current() (*scenario.Scenario, func(), error) {
	s.mu.RLock()
	if s.scenario == nil {
		s.mu.RUnlock()
		return nil, func() {}, ErrNoScenario
	}
	return s.scenario, s.mu.RUnlock, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.Close()

	return err
}

// Close releases the scenario and the audit log.
func (s *Server) Close() error {
	s.mu.Lock()
	sc := s.scenario
	s.scenario = nil
	s.mu.Unlock()

	var err error
	if sc != nil {
		err = sc.Close()
	}
	return errors.Join(err, s.audit.Close())
}
