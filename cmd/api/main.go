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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/cartview"
	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/storeapi"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/env"
	"github.com/angelmondragon/storefront-backend/pkg/kvstore"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	instance := env.First("local", "DYNO", "HOSTNAME")
	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]any{"instance": instance},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	closeAll := func() {
		var errs error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, closers[i]())
		}
		if errs != nil {
			logg.Error(context.Background(), "error releasing resources", errs)
		}
	}
	fail := func(msg string, err error) {
		logg.Error(context.Background(), msg, err)
		closeAll()
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		fail("failed to bootstrap database", err)
	}
	closers = append(closers, dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		fail("failed to run dev migrations", err)
	}

	readiness := map[string]controllers.Pinger{"db": dbClient}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			fail("failed to bootstrap redis", err)
		}
		closers = append(closers, redisClient.Close)
		readiness["redis"] = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, checkout idempotency disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	kv, keyFn, err := cartStore(cfg, dbClient, redisClient)
	if err != nil {
		fail("failed to configure cart store", err)
	}
	carts, err := cart.NewRegistry(kv, keyFn, logg, m)
	if err != nil {
		fail("failed to create cart registry", err)
	}
	go carts.RunEviction(ctx, cfg.Cart.EvictionInterval, cfg.Cart.SessionIdle)

	storeClient, err := storeapi.NewClient(cfg.StoreAPI, storeapi.WithMetrics(m))
	if err != nil {
		fail("failed to create store api client", err)
	}

	catalogueService, err := catalogue.NewService(storeClient, logg)
	if err != nil {
		fail("failed to create catalogue service", err)
	}
	modeResolver, err := pricing.NewResolver(storeClient, logg)
	if err != nil {
		fail("failed to create pricing resolver", err)
	}

	loc, err := cfg.Cart.Location()
	if err != nil {
		fail("failed to load cart timezone", err)
	}
	cartViews, err := cartview.NewBuilder(carts, catalogueService, modeResolver, loc)
	if err != nil {
		fail("failed to create cart view builder", err)
	}

	checkoutOpts := checkout.Options{Location: loc, Metrics: m, Logger: logg}
	if cfg.FeatureFlags.PublishOrderEvents {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			fail("failed to bootstrap pubsub", err)
		}
		closers = append(closers, psClient.Close)
		readiness["pubsub"] = psClient

		publisher, err := pubsub.NewEventPublisher(psClient.OrdersPublisher())
		if err != nil {
			fail("failed to create order event publisher", err)
		}
		closers = append(closers, func() error {
			publisher.Stop()
			return nil
		})
		checkoutOpts.Publisher = publisher
	}
	checkoutService, err := checkout.NewService(carts, catalogueService, storeClient, checkoutOpts)
	if err != nil {
		fail("failed to create checkout service", err)
	}

	var idempotency redis.IdempotencyStore
	if redisClient != nil {
		idempotency = redisClient
	}

	handler := routes.NewRouter(
		cfg,
		logg,
		readiness,
		idempotency,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		carts,
		catalogueService,
		modeResolver,
		cartViews,
		checkoutService,
	)

	port := env.Get("PORT", cfg.App.Port)
	addr := ":" + port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"cart_backend": cfg.Cart.Backend,
	})
	logg.Info(serverCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail("api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(serverCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "graceful shutdown failed", err)
		}
		flushed := carts.Flush(shutdownCtx)
		logg.Info(logg.WithField(serverCtx, "carts", flushed), "cart sessions flushed")
	}

	closeAll()
}

// cartStore picks the snapshot backend and the key layout that goes with it.
func cartStore(cfg *config.Config, dbClient *db.Client, redisClient *redis.Client) (kvstore.Store, func(string) string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Cart.Backend)) {
	case config.CartBackendRedis:
		if redisClient == nil {
			return nil, nil, errors.New("cart backend redis requires STOREFRONT_REDIS_URL or STOREFRONT_REDIS_ADDR")
		}
		store, err := kvstore.NewRedisStore(redisClient, nil, cfg.Cart.SnapshotTTL)
		return store, redisClient.CartKey, err
	case config.CartBackendMemory:
		return kvstore.NewMemoryStore(), nil, nil
	default:
		store, err := kvstore.NewSQLStore(dbClient.DB())
		return store, nil, err
	}
}
