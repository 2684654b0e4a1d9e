// Package server assembles the HR and agent services from configuration
// and runs them with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/txn2/secure-agent/pkg/agent"
	"github.com/txn2/secure-agent/pkg/auth"
	"github.com/txn2/secure-agent/pkg/config"
	"github.com/txn2/secure-agent/pkg/health"
	"github.com/txn2/secure-agent/pkg/hr"
	hrpostgres "github.com/txn2/secure-agent/pkg/hr/postgres"
	"github.com/txn2/secure-agent/pkg/httpapi"
)

// Build information, set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// shutdownTimeout bounds graceful shutdown after a termination signal.
const shutdownTimeout = 10 * time.Second

// NewVerifier builds the token verifier and its key set cache from config.
func NewVerifier(cfg *config.Config) (*auth.Verifier, error) {
	keyset := auth.NewKeySetCache(cfg.Keycloak.JWKSURL(), cfg.Keycloak.JWKSCacheTTL, nil)
	return auth.NewVerifier(auth.VerifierConfig{
		Issuer:    cfg.Keycloak.Issuer(),
		Audience:  cfg.Keycloak.Audience,
		ClientID:  cfg.Keycloak.ClientID,
		ClockSkew: cfg.Keycloak.ClockSkew,
	}, keyset)
}

// NewHRService builds the HR service handler. The returned close function
// releases the backing store, if any.
func NewHRService(cfg *config.Config, verifier *auth.Verifier, swaggerInstance string) (http.Handler, *health.Checker, func() error, error) {
	var store hr.Store
	closeFn := func() error { return nil }

	if cfg.HR.Database.DSN != "" {
		pgStore, err := hrpostgres.Open(hrpostgres.Config{
			DSN:          cfg.HR.Database.DSN,
			MaxOpenConns: cfg.HR.Database.MaxOpenConns,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening days-off store: %w", err)
		}
		store = pgStore
		closeFn = pgStore.Close
		slog.Info("hr: using postgres days-off store")
	} else {
		store = hr.NewStaticStore(cfg.HR.DaysOff)
		slog.Info("hr: using static days-off table", "entries", len(cfg.HR.DaysOff))
	}

	checker := health.NewChecker(cfg.Server.Version)
	handler := assemble(cfg, hr.NewHandler(store, verifier), swaggerInstance, checker)
	checker.SetReady()
	return handler, checker, closeFn, nil
}

// NewAgentService builds the agent service handler. The returned close
// function stops the session cleanup routine.
func NewAgentService(cfg *config.Config, verifier *auth.Verifier, swaggerInstance string) (http.Handler, *health.Checker, func() error, error) {
	completer, err := agent.NewChatClient(agent.ChatClientConfig{
		BaseURL: cfg.Completion.BaseURL,
		APIKey:  cfg.Completion.APIKey,
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating completion client: %w", err)
	}

	sessions := agent.NewSessionStore(agent.StoreConfig{
		MaxTurns: cfg.Sessions.MaxTurns,
		IdleTTL:  cfg.Sessions.IdleTTL,
	})
	if cfg.Sessions.IdleTTL > 0 {
		sessions.StartCleanupRoutine(cfg.Sessions.CleanupInterval)
	}

	handlerCfg := agent.HandlerConfig{
		Sessions:  sessions,
		Completer: completer,
	}
	if cfg.HR.ServiceURL != "" {
		handlerCfg.HRClient = hr.NewClient(cfg.HR.ServiceURL)
		slog.Info("agent: days-off enrichment enabled", "hr_service", cfg.HR.ServiceURL)
	}

	checker := health.NewChecker(cfg.Server.Version)
	handler := assemble(cfg, agent.NewHandler(handlerCfg, verifier), swaggerInstance, checker)
	checker.SetReady()
	return handler, checker, sessions.Close, nil
}

// assemble mounts the API handler alongside probe and swagger endpoints
// and wraps the result in the shared middleware chain.
func assemble(cfg *config.Config, api http.Handler, swaggerInstance string, checker *health.Checker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", checker.LivenessHandler())
	mux.Handle("GET /readyz", checker.ReadinessHandler())
	mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.InstanceName(swaggerInstance),
	))
	mux.Handle("/", api)

	var handler http.Handler = mux
	handler = httpapi.CORS(cfg.Server.CORSOrigins)(handler)
	handler = httpapi.RequestLogger()(handler)
	return handler
}

// Run serves the handler until the context is canceled, then shuts down
// gracefully. The checker is marked draining as soon as shutdown begins so
// readiness probes fail before in-flight requests finish; a nil checker is
// allowed.
func Run(ctx context.Context, cfg *config.Config, handler http.Handler, checker *health.Checker) error {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening",
			"name", cfg.Server.Name, "address", cfg.Server.Address, "tls", cfg.Server.TLS.Enabled)
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	if checker != nil {
		checker.SetDraining()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	slog.Info("server stopped", "name", cfg.Server.Name)
	return nil
}
