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

	"relaypad/internal/cdn"
	"relaypad/internal/dnsverify"
	"relaypad/internal/domains/handler"
	"relaypad/internal/domains/metrics"
	"relaypad/internal/domains/service"
	"relaypad/internal/platform/config"
	"relaypad/internal/platform/httpserver"
	"relaypad/internal/platform/logger"
	"relaypad/internal/platform/middleware"
	"relaypad/internal/platform/postgres"
	"relaypad/internal/registry"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.ServerFromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		domainStore  registry.DomainStore
		projectStore registry.ProjectStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := registry.EnsureSchema(ctx, pool); err != nil {
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		domainStore = registry.NewPostgresDomainStore(pool)
		projectStore = registry.NewPostgresProjectStore(pool)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		domainStore = registry.NewInMemoryDomainStore()
		projectStore = registry.NewInMemoryProjectStore()
	}

	cfClient, acmClient, err := cdn.NewClients(ctx, cfg.CloudFront)
	if err != nil {
		log.Error("aws client setup failed", "error", err)
		os.Exit(1)
	}
	provisioner := cdn.NewProvisioner(cfClient, acmClient, cfg.CloudFront, log)
	verifier := dnsverify.New(cfg.DNS, log)

	domainService := service.New(
		domainStore, projectStore, verifier, provisioner,
		cfg.PlatformRootDomain, cfg.CNAMETarget,
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
	)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())
	handler.New(domainService, log, middleware.HeaderOrgResolver{}).Register(router)

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting relaypad api", "addr", cfg.Addr, "root_domain", cfg.PlatformRootDomain)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
