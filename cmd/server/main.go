package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/httpserver"
	"github.com/pscheid92/fanout/internal/adapter/managementapi"
	"github.com/pscheid92/fanout/internal/adapter/memory"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/adapter/postgres"
	"github.com/pscheid92/fanout/internal/adapter/redis"
	"github.com/pscheid92/fanout/internal/adapter/websocket"
	"github.com/pscheid92/fanout/internal/app"
	"github.com/pscheid92/fanout/internal/broadcast"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
	"github.com/pscheid92/fanout/internal/platform/logging"
	"github.com/pscheid92/fanout/internal/platform/retry"
	"github.com/pscheid92/fanout/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const startupTimeout = 60 * time.Second

// registryStore is a connection registry that can be probed for readiness.
type registryStore interface {
	domain.ConnectionRegistry
	Ping(ctx context.Context) error
}

type storeMetrics struct {
	store          *metrics.StoreMetrics
	circuitBreaker *metrics.CircuitBreakerMetrics
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func startupPolicy(clock clockwork.Clock, backend string) retry.Policy {
	p := retry.StartupPolicy
	p.Clock = clock
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Store not reachable, retrying", "backend", backend, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return p
}

func setupRedis(ctx context.Context, cfg *config.Config, clock clockwork.Clock, m storeMetrics) *goredis.Client {
	client, err := retry.Do(ctx, startupPolicy(clock, config.BackendRedis), retry.StoreUnavailable, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.StoreURL(), m.store, m.circuitBreaker)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupDB(ctx context.Context, cfg *config.Config, clock clockwork.Clock) *pgxpool.Pool {
	pool, err := retry.Do(ctx, startupPolicy(clock, config.BackendPostgres), retry.StoreUnavailable, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.StoreURL())
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool, cfg.TableName); err != nil {
		pool.Close()
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()[:8]
}

// setupRegistry connects the configured backend. The lease is nil unless
// instances need to agree on a single sweeper. The returned cleanup releases
// the backend's connections.
func setupRegistry(cfg *config.Config, clock clockwork.Clock, m storeMetrics, instance string) (registryStore, app.Lease, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := setupRedis(ctx, cfg, clock, m)
		lease := redis.NewSweepLease(client, cfg.TableName, instance, 2*cfg.SweepInterval)
		return redis.NewRegistry(client, cfg.TableName, clock), lease, func() { _ = client.Close() }
	case config.BackendPostgres:
		pool := setupDB(ctx, cfg, clock)
		return postgres.NewRegistry(pool, cfg.TableName, clock, m.store), nil, pool.Close
	default:
		slog.Warn("Using in-memory connection registry; connections are not shared between instances")
		return memory.NewRegistry(clock), nil, func() {}
	}
}

func runGracefulShutdown(srv *httpserver.Server, hub *websocket.Hub, stopSweeper context.CancelFunc, sweeperDone <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopSweeper()
		<-sweeperDone
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	instance := instanceID()
	slog.Info("Application starting",
		"env", cfg.AppEnv,
		"port", cfg.Port,
		"backend", cfg.StoreBackend,
		"table", cfg.TableName,
		"version", version.Get().String(),
		"instance", instance,
	)
	if cfg.StoreEndpoint != "" && cfg.Region != "" {
		slog.Info("Store endpoint override in effect", "endpoint", cfg.StoreEndpoint, "region", cfg.Region)
	}

	reg := metrics.NewRegistry()
	sm := storeMetrics{
		store:          metrics.NewStoreMetrics(reg),
		circuitBreaker: metrics.NewCircuitBreakerMetrics(reg),
	}

	registry, lease, closeRegistry := setupRegistry(cfg, clock, sm, instance)
	defer closeRegistry()

	wsMetrics := metrics.NewWebSocketMetrics(reg)
	hub := websocket.NewHub(clock, wsMetrics, cfg.DeliveryTimeout, instance)

	resolver := managementapi.NewResolver(hub, &http.Client{Timeout: cfg.DeliveryTimeout}, sm.circuitBreaker)
	coordinator := broadcast.NewCoordinator(registry, metrics.NewBroadcastMetrics(reg), clock)

	lifecycleMetrics := metrics.NewLifecycleMetrics(reg)
	handler := app.NewLifecycleHandler(registry, coordinator, resolver, cfg.ConnectionTTL, lifecycleMetrics)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := app.NewSweeper(registry, lease, clock, cfg.SweepInterval, lifecycleMetrics)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(sweepCtx)
	}()

	checkOrigin := websocket.NewCheckOrigin(cfg.AppURL, cfg.AllowedOrigins, !cfg.IsProduction())
	limits := websocket.NewConnectionLimits(cfg.MaxSockets, cfg.MaxSocketsPerIP, cfg.SocketConnectRate, cfg.SocketConnectBurst, clock)
	transport := websocket.NewTransport(hub, handler, checkOrigin, limits, wsMetrics)

	healthChecks := []httpserver.HealthCheck{
		{Name: cfg.StoreBackend, Check: registry.Ping},
	}
	srv := httpserver.NewServer(cfg, handler, transport, metrics.Handler(reg), metrics.NewHTTPMetrics(reg), healthChecks)

	done := runGracefulShutdown(srv, hub, stopSweeper, sweeperDone)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
