package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"relaypad/internal/edge"
	"relaypad/internal/edge/metrics"
	"relaypad/internal/platform/config"
	"relaypad/internal/platform/httpserver"
	"relaypad/internal/platform/logger"
	"relaypad/internal/platform/postgres"
	"relaypad/internal/platform/redis"
	"relaypad/internal/registry"
)

// main wires the edge router binary. The edge shares nothing with the API
// process beyond the registry it reads from.
func main() {
	cfg := config.EdgeFromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		domainReader  registry.DomainReader
		projectReader registry.ProjectReader
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		domainReader = registry.NewPostgresDomainStore(pool)
		projectReader = registry.NewPostgresProjectStore(pool)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores; all lookups will miss")
		domainReader = registry.NewInMemoryDomainStore()
		projectReader = registry.NewInMemoryProjectStore()
	}

	// Redis sits between the in-process TTL cache and the store so edge
	// replicas share a warm lookup layer. Optional; absent Redis the edge
	// reads the store directly.
	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		domainReader = registry.NewRedisDomainCache(rdb.Client, domainReader, cfg.CacheTTL*10, log)
	}

	router := edge.New(domainReader, projectReader, cfg,
		edge.WithLogger(log),
		edge.WithMetrics(metrics.New()),
	)

	// Operational endpoints live on their own listener; the proxy listener
	// must hand every path to customer backends untouched.
	admin := chi.NewRouter()
	admin.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	admin.Handle("/metrics", promhttp.Handler())

	srv := httpserver.NewEdge(cfg.Addr, router, cfg.RequestTimeout)
	adminSrv := httpserver.New(cfg.AdminAddr, admin)
	log.Info("starting relaypad edge",
		"addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "root_domain", cfg.PlatformRootDomain)

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range []*http.Server{srv, adminSrv} {
		g.Go(func() error {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
