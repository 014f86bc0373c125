// Package mcp provides an MCP (Model Context Protocol) server for prospect.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/prospectsim/prospect/internal/config"
	"github.com/prospectsim/prospect/internal/logging"
	"github.com/prospectsim/prospect/internal/metrics"
	"github.com/prospectsim/prospect/internal/ratelimit"
	"github.com/prospectsim/prospect/internal/store"
)

// Server wraps the MCP SDK server and exposes survey tools.
type Server struct {
	server       *sdk.Server
	store        store.RunStore
	root         string
	settings     *config.ProspectConfig
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	metrics      *metrics.Recorder
	logger       *slog.Logger
	closeOnce    sync.Once
	closeErr     error
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "prospect")
	Version string // Server version
	Root    string // Project root directory; scenarios must live under it or ~/.prospect

	// Store receives every batch run through the server. Nil opens the
	// SQLite store at the configured or default path.
	Store store.RunStore

	// Settings defaults to config.Default().
	Settings *config.ProspectConfig

	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// NewServer creates a new MCP server with prospect tools.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	runStore := cfg.Store
	if runStore == nil {
		path := settings.Store.SQLitePath
		if path == "" {
			p, err := store.DefaultDBPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		s, err := store.NewSQLiteRunStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		runStore = s
	}

	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NewRecorder()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	globalDir, _ := os.UserHomeDir()
	s := &Server{
		server:       mcpServer,
		store:        runStore,
		root:         cfg.Root,
		settings:     settings,
		toolLimiters: ratelimit.NewToolLimiters(settings.MCP.RateLimit, settings.MCP.Burst),
		auditLogger:  NewAuditLogger(cfg.Root, globalDir),
		metrics:      rec,
		logger:       logging.OrNop(cfg.Logger),
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, stopSignals...)
	defer stop()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the store and audit log. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.store.Close()
		if err := s.auditLogger.Close(); s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
