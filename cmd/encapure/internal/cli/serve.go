package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dannyavrs/encapure/httpapi"
	"github.com/dannyavrs/encapure/mcpserver"
	"github.com/dannyavrs/encapure/observability"
	"github.com/dannyavrs/encapure/search"
)

const (
	biEncoderDim    = 384
	crossEncoderDim = 1
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the search HTTP API (and optional MCP server)",
	Long: `Load the catalog, build or restore the embedding cache, warm up the
inference pools, and serve /search, /rerank, /health, /ready, and /metrics
until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// readinessProbe reports Ready() as true once both inference pools have
// completed warmup, satisfying httpapi.ReadinessProbe.
type readinessProbe struct {
	rt *runtime
}

func (p readinessProbe) Ready() bool {
	return p.rt.beManager.Ready() && p.rt.ceManager.Ready()
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, cat, err := loadConfigAndCatalog()
	if err != nil {
		return err
	}

	rt, err := bootstrap(ctx, cfg, logger, cat, biEncoderDim, crossEncoderDim, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer,
		func() float64 { return float64(rt.beManager.FreeSessions() + rt.ceManager.FreeSessions()) },
		func() float64 { return float64(rt.beManager.FreePermits() + rt.ceManager.FreePermits()) },
	)

	if rt.cacheHit {
		metrics.CacheHits.Inc()
		logger.Info("embedding cache loaded", "path", cfg.EmbeddingsCachePath, "tools", rt.table.Count())
	} else {
		metrics.CacheMisses.Inc()
		logger.Info("embedding cache rebuilt", "path", cfg.EmbeddingsCachePath, "tools", rt.table.Count())
	}

	engine := search.New(rt.catalog, rt.table, rt.biencoder, rt.crossenc, search.Options{
		RetrievalCandidates: cfg.RetrievalCandidates,
		InferenceTimeout:    cfg.InferenceTimeout,
	})

	router := httpapi.NewRouter(engine, readinessProbe{rt: rt}, metrics.RequestsTotal, metrics.SearchDuration, metrics.SearchErrors)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var mcpHTTPServer *http.Server
	if cfg.MCPEnabled {
		mcp := mcpserver.New(engine, "encapure", "1.0.0")
		mcpHTTPServer = &http.Server{Addr: cfg.MCPAddr, Handler: http.HandlerFunc(mcp.ServeHTTP)}
		go func() {
			logger.Info("mcp server listening", "addr", cfg.MCPAddr)
			if err := mcpHTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("mcp server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	if mcpHTTPServer != nil {
		if err := mcpHTTPServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("mcp server shutdown", "error", err)
		}
	}
	return nil
}
