// ABOUTME: Gateway orchestrator wiring auth, sessions, engine, store, and metrics
// ABOUTME: Manages the HTTP server lifecycle with graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/conhub/mcp-gateway/internal/auth"
	"github.com/conhub/mcp-gateway/internal/config"
	"github.com/conhub/mcp-gateway/internal/engine"
	"github.com/conhub/mcp-gateway/internal/metrics"
	"github.com/conhub/mcp-gateway/internal/session"
	"github.com/conhub/mcp-gateway/internal/store"
)

// Gateway terminates agent WebSocket sessions and forwards their JSON-RPC
// traffic to the single backend engine.
type Gateway struct {
	cfg      *config.Config
	logger   *slog.Logger
	gate     *auth.Gate
	registry *session.Registry
	engine   *engine.Client
	store    store.Store
	metrics  *metrics.Metrics

	httpServer *http.Server
}

// initStore opens the audit store, or a NopStore when no path is configured.
func initStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Store.Path == "" {
		logger.Info("audit store disabled")
		return store.NopStore{}, nil
	}
	s, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing audit store: %w", err)
	}
	return s, nil
}

// newGate builds the identity gate from config. Verifier slots stay nil when
// their credential path is unconfigured.
func newGate(cfg *config.Config, logger *slog.Logger) *auth.Gate {
	gateCfg := auth.GateConfig{
		KeyCacheTTL:   cfg.Auth.KeyCacheTTL,
		RatePerMinute: cfg.Limits.RatePerMinute,
		Burst:         cfg.Limits.Burst,
		Debug:         cfg.Server.Debug,
		Logger:        logger.With("component", "auth"),
	}
	if cfg.Auth.JWTSecret != "" {
		gateCfg.Tokens = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	}
	if cfg.Auth.ServiceURL != "" {
		gateCfg.Keys = auth.NewKeyService(cfg.Auth.ServiceURL, logger.With("component", "auth"))
	}
	return auth.NewGate(gateCfg)
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(cfg.Engine, logger)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:     cfg,
		logger:  logger.With("component", "gateway"),
		gate:    newGate(cfg, logger),
		engine:  eng,
		store:   s,
		metrics: metrics.New(),
	}

	g.registry = session.NewRegistry(session.Config{
		MaxClients:    cfg.Sessions.MaxClients,
		IdleTimeout:   cfg.Sessions.IdleTimeout,
		SweepInterval: cfg.Sessions.SweepInterval,
		OnRemove:      g.onSessionRemoved,
		Logger:        logger.With("component", "sessions"),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/ready", g.handleReady)

	// Admin endpoints require a bearer token carrying the admin role
	authMiddleware := auth.HTTPAuthMiddleware(g.gate)
	adminMiddleware := auth.RequireAdminHTTP()
	mux.Handle("/admin/sessions", authMiddleware(adminMiddleware(http.HandlerFunc(g.handleAdminSessions))))
	mux.Handle("/admin/stats", authMiddleware(adminMiddleware(http.HandlerFunc(g.handleAdminStats))))
	mux.Handle("/admin/audit", authMiddleware(adminMiddleware(http.HandlerFunc(g.handleAdminAudit))))

	mux.Handle("/metrics", g.metrics.Handler())

	g.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Run starts the engine and the HTTP server and blocks until the context is
// canceled. Returns nil on graceful shutdown, or an error if a component
// fails to start or serve.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.engine.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	go g.registry.Run(ctx)

	ln, err := net.Listen("tcp", g.cfg.Server.Addr())
	if err != nil {
		_ = g.engine.Stop(context.Background())
		return fmt.Errorf("listening on %s: %w", g.cfg.Server.Addr(), err)
	}

	// Hijacked WebSocket connections inherit this context, so canceling it
	// unblocks every read loop during shutdown.
	g.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String(), "engine_mode", g.engine.Mode())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The run context is already canceled, so shutdown needs its own deadline.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, the engine, and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "engine stop", g.engine.Stop(ctx))
	g.gate.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// onSessionRemoved runs whenever a session leaves the registry, whether by
// handler cleanup or idle sweep.
func (g *Gateway) onSessionRemoved(sess session.Session, reason string) {
	g.recordSessionEvent(store.EventSessionClose, sess, "", reason)
	g.updateSessionGauge()
}

// updateSessionGauge refreshes the per-state session metric from the registry.
func (g *Gateway) updateSessionGauge() {
	stats := g.registry.Stats()
	counts := make(map[string]int, len(stats.ByState))
	for state, n := range stats.ByState {
		counts[string(state)] = n
	}
	g.metrics.UpdateSessions(counts)
}

// recordAuthEvent appends an admission decision to the audit trail. Audit
// failures are logged, never surfaced to the connection.
func (g *Gateway) recordAuthEvent(kind, identity, remote, detail string) {
	event := &store.Event{
		Kind:     kind,
		Identity: identity,
		Remote:   remote,
		Detail:   detail,
	}
	if err := g.store.RecordAuth(context.Background(), event); err != nil {
		g.logger.Warn("audit write failed", "kind", kind, "error", err)
	}
}

// recordSessionEvent appends a session lifecycle event to the audit trail.
// The identity label matches the admission events' key so usage
// aggregation sees one caller, not two.
func (g *Gateway) recordSessionEvent(kind string, sess session.Session, remote, detail string) {
	identity := auth.Identity{UserID: sess.UserID, APIKeyID: sess.APIKeyID}
	event := &store.Event{
		Kind:      kind,
		Identity:  identity.Key(),
		SessionID: sess.ID,
		Remote:    remote,
		Detail:    detail,
	}
	if err := g.store.RecordSession(context.Background(), event); err != nil {
		g.logger.Warn("audit write failed", "kind", kind, "error", err)
	}
}
