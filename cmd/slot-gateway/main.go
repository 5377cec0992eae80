package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"slotgateway/internal/admin"
	"slotgateway/internal/api"
	"slotgateway/internal/audit"
	"slotgateway/internal/auth"
	"slotgateway/internal/classify"
	"slotgateway/internal/config"
	"slotgateway/internal/core"
	"slotgateway/internal/logger"
	"slotgateway/internal/messaging/kafka"
	"slotgateway/internal/metrics"
	"slotgateway/internal/middleware"
	"slotgateway/internal/observability"
	"slotgateway/internal/quota"
	"slotgateway/internal/routing"
	"slotgateway/internal/slots"
	"slotgateway/internal/trace"
	"slotgateway/internal/usage"
)

var version = "dev"

func main() {
	// Initialize structured logger first
	logger.Init(logger.DefaultConfig())
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	collector := metrics.NewCollector()
	health := api.NewHealthHandler()

	if cfg.OTLPEndpoint != "" {
		tp, err := observability.InitTracer(ctx, "slot-gateway", version, cfg.OTLPEndpoint, cfg.OTLPSampling)
		if err != nil {
			log.Warn("tracing disabled", "error", err.Error())
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(sctx)
			}()
			log.Info("tracing enabled", "endpoint", cfg.OTLPEndpoint)
		}
	}

	var counter quota.Counter = quota.NewMemory()
	if cfg.RedisURL != "" {
		rcfg := quota.DefaultRedisConfig()
		rcfg.Addr = cfg.RedisURL
		rc, err := quota.NewRedis(ctx, rcfg)
		if err != nil {
			log.Warn("redis unavailable, counting calls in memory", "error", err.Error())
		} else {
			defer rc.Close()
			counter = rc
			health.AddDependency("redis", rc)
		}
	}

	memUsage := usage.NewInMemory(cfg.UsageBuffer)
	var usageSink usage.Sink = memUsage
	if cfg.UsageDBDriver != "" {
		store, err := usage.OpenSQL(ctx, cfg.UsageDBDriver, cfg.UsageDBDSN)
		if err != nil {
			log.Warn("usage database unavailable, keeping records in memory only", "driver", cfg.UsageDBDriver, "error", err.Error())
		} else {
			defer store.Close()
			store.OnWrite = collector.RecordStoreWrite
			usageSink = usage.Fanout{memUsage, store}
			health.AddDependency("usage_db", store)
			log.Info("usage database ready", "driver", cfg.UsageDBDriver)
		}
	}
	traceStore := trace.NewStore(cfg.TraceBuffer)

	var events core.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Warn("kafka unavailable, dispatch events disabled", "brokers", strings.Join(cfg.KafkaBrokers, ","), "error", err.Error())
		} else {
			defer producer.Close()
			events = producer
			log.Info("publishing dispatch events", "topic", cfg.KafkaTopic)
		}
	}

	pool := slots.NewPool(slots.NewRegistry(cfg.Slots, cfg.ModelDefaults()))
	if len(pool.Registry().Configured()) == 0 {
		log.Warn("no slot has a credential; every generate request will fail with no_eligible_slots")
	}

	dispatcher := routing.New(pool, buildAdapters(cfg), routing.Config{
		SameSlotRetries: cfg.SameSlotRetries,
		MaxBodyBytes:    cfg.MaxBodyBytes,
	}, routing.WithMetrics(collector), routing.WithCounter(counter))

	gateway := core.New(dispatcher, usageSink, traceStore, events, core.Options{
		Temperature:       cfg.Temperature,
		MaxTokens:         cfg.MaxTokens,
		MaxTokensReserved: cfg.MaxTokensReserved,
		TokenBudget:       cfg.TokenBudget,
		ReservedPromptIDs: cfg.ReservedPromptIDs,
	})

	publicMux := http.NewServeMux()
	api.NewHandlers(gateway, pool, counter).Register(publicMux)

	adminMux := http.NewServeMux()
	admin.NewHandlers(cfg, usageSink, traceStore, admin.NewSlotHandler(pool, dispatcher, counter).WithAudit(audit.NewLogger(0))).Register(adminMux)

	openMux := http.NewServeMux()
	health.RegisterRoutes(openMux)
	openMux.Handle("/metrics", collector.Handler())

	apiKeys := middleware.NewAuthenticator(cfg.APIKeys)
	if !apiKeys.Enabled() {
		log.Warn("API_KEYS is empty; the generate endpoints are unauthenticated")
	}
	adminGuard := apiKeys.Require
	if cfg.AdminJWTSecret != "" {
		jwtCfg, err := auth.NewConfig(cfg.AdminJWTSecret, os.Getenv("ADMIN_JWT_ISSUER"))
		if err != nil {
			log.Error("invalid admin jwt secret", "error", err.Error())
			os.Exit(1)
		}
		adminGuard = auth.NewMiddleware(auth.NewJWTManager(jwtCfg)).RequireScope
		log.Info("admin surface requires bearer tokens")
	}

	root := http.NewServeMux()
	root.Handle("/health", openMux)
	root.Handle("/health/", openMux)
	root.Handle("/metrics", openMux)
	root.Handle("/v0/management/", adminGuard(adminMux))
	root.Handle("/llaves", adminGuard(adminMux))
	root.Handle("/", apiKeys.Require(publicMux))

	handler := middleware.NewCORS(middleware.CORSConfigFromOrigins(cfg.CORSOrigins)).Handler(
		middleware.WithRequestContext(middleware.WithMetrics(collector, root)),
	)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout(cfg, len(pool.Registry().Configured())),
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("slot-gateway starting",
			"addr", cfg.ListenAddr,
			"version", version,
			"configured_slots", len(pool.Registry().Configured()),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err.Error())
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			log.Error("graceful shutdown failed", "error", err.Error())
		}
	}
}

// writeTimeout bounds a generate request that walks every configured slot:
// each slot may take SameSlotRetries upstream calls plus the longest
// rate-limit wait between them.
func writeTimeout(cfg config.Config, configured int) time.Duration {
	retries := time.Duration(max(cfg.SameSlotRetries, 1))
	perSlot := cfg.UpstreamTimeout*retries + (retries-1)*classify.MaxWait*time.Second
	return perSlot*time.Duration(max(configured, 1)) + 2*time.Minute
}
