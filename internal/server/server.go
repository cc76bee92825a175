// Package server runs a host process: signal handling, config loading,
// observability, health endpoints and graceful shutdown around a main
// function supplied by the cmd package.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aelexs/authkit/internal/config"
	"github.com/aelexs/authkit/internal/domain"
	"github.com/aelexs/authkit/internal/observability"
)

// Version is reported on telemetry resources.
const Version = "0.1.0"

// Deps are handed to the main function once the host is up.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
	// Ready flips /readyz to 200. Call it once providers are registered.
	Ready func()
}

// Params configures a host's lifecycle runner.
type Params struct {
	// Name identifies the host in logs and telemetry.
	Name string

	// Main runs the host's work. Returning nil shuts the host down cleanly;
	// ctx is cancelled on SIGTERM/SIGINT.
	Main func(ctx context.Context, deps Deps) error
}

// Run executes the full lifecycle. If ln is non-nil, it is used instead of
// creating a listener from config (enables port-0 testing).
func Run(ctx context.Context, p Params, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: p.Name,
		Environment: cfg.Environment,
		Output:      os.Stderr,
	})

	// --- Startup order: telemetry -> HTTP server -> main ---
	telemetry, err := observability.InitTelemetry(ctx, observability.TelemetryConfig{
		ServiceName:    p.Name,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return err
	}

	var shuttingDown, ready atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if shuttingDown.Load() {
			writeStatus(w, http.StatusServiceUnavailable, "shutting_down", p.Name)
			return
		}
		writeStatus(w, http.StatusOK, "healthy", p.Name)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if shuttingDown.Load() || !ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, "not_ready", p.Name)
			return
		}
		writeStatus(w, http.StatusOK, "ready", p.Name)
	})

	if ln == nil {
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", cfg.Host.HTTPPort))
		if err != nil {
			return errors.Join(fmt.Errorf("listen: %w", err), telemetry.Shutdown(context.Background()))
		}
	}

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// mainDone lets a finished main trigger shutdown without an error.
	mainCtx, mainDone := context.WithCancel(ctx)
	defer mainDone()

	g, gctx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("addr", ln.Addr().String()),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	g.Go(func() error {
		defer mainDone()
		if p.Main == nil {
			<-gctx.Done()
			return nil
		}
		return p.Main(gctx, Deps{
			Config: cfg,
			Logger: logger,
			Ready:  func() { ready.Store(true) },
		})
	})

	// Shutdown order is the reverse of startup: HTTP server, then telemetry.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("starting graceful shutdown")
		shuttingDown.Store(true)

		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := server.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}

		otelCtx, otelCancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
		defer otelCancel()
		if shutdownErr := telemetry.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to shutdown telemetry", slog.String("error", shutdownErr.Error()))
		}

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}

func writeStatus(w http.ResponseWriter, code int, status, service string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q,"service":%q}`, status, service)
}
