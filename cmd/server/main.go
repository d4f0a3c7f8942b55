package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/accord/cache"
	redicache "go.pilab.hu/accord/cache/redis"
	"go.pilab.hu/accord/config"
	"go.pilab.hu/accord/domain"
	"go.pilab.hu/accord/inmem"
	"go.pilab.hu/accord/internal/auth"
	"go.pilab.hu/accord/internal/metrics"
	"go.pilab.hu/accord/internal/server"
	"go.pilab.hu/accord/log"
	"go.pilab.hu/accord/mongodb"
	"go.pilab.hu/accord/services"
	"go.pilab.hu/accord/tracing"
)

var (
	appLogger      log.Logger
	tracerProvider *sdktrace.TracerProvider
)

// repositories groups every storage interface the services need, so the
// mongo and memory backends can be swapped in one place.
type repositories struct {
	domains  domain.DomainRepository
	projects domain.ProjectRepository
	users    domain.UserRepository
	groups   domain.GroupRepository
	roles    domain.RoleRepository
	grants   domain.GrantRepository
	tokens   domain.TokenRepository
	events   domain.RevocationEventRepository
	trusts   domain.TrustRepository
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting accord server...", map[string]any{
		"http_port":    cfg.HTTPPort,
		"storage":      cfg.StorageBackend,
		"cache":        cfg.CacheBackend,
		"token_format": cfg.TokenFormat,
		"log_level":    cfg.LogLevel,
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err, nil)
	}
	tracerProvider = tp

	repos, storageShutdown := buildRepositories(ctx, cfg)

	entityCache, cacheShutdown := buildEntityCache(ctx, cfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.InitCustomMetrics(registry)

	// Services. The wiring order follows the dependency direction:
	// revocation log first, then tokens, assignments and everything above.
	revocationSvc := services.NewRevocationService(repos.events, repos.projects)
	tokenSvc := services.NewTokenService(repos.tokens, revocationSvc, cfg.TokenTTL())
	assignmentSvc := services.NewAssignmentService(
		repos.grants, repos.domains, repos.projects,
		repos.users, repos.groups, repos.roles, revocationSvc)

	hasher := auth.NewBcryptPasswordHasher(bcrypt.DefaultCost)

	var signer *services.TokenSigner
	if cfg.TokenFormat == "jwt" {
		signer = services.NewTokenSigner(cfg.TokenSigningKey, cfg.TokenIssuer)
	}

	trustSvc := services.NewTrustService(
		repos.trusts, repos.users, repos.roles,
		assignmentSvc, tokenSvc, revocationSvc, hasher)

	registrySvc := services.NewRegistryService(
		repos.domains, repos.projects, repos.users, repos.groups, repos.roles,
		assignmentSvc, tokenSvc, revocationSvc,
		entityCache, cfg.CacheTTL(), hasher)

	authSvc := services.NewAuthService(
		repos.users, repos.domains, repos.projects,
		assignmentSvc, tokenSvc, revocationSvc, hasher, signer)

	var policy services.PolicyEngine
	if cfg.PolicyEnforce {
		policy = auth.NewStaticPolicyEngine(map[string][]string{
			cfg.PolicyAdminRole: {server.AdminAction},
		})
	}

	apiServer := server.New(registrySvc, assignmentSvc, tokenSvc, trustSvc, authSvc, policy)

	// Expired tokens are invisible to readers the moment they expire; the
	// sweep only reclaims storage.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go runTokenSweep(sweepCtx, tokenSvc, cfg.SweepInterval())

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	apiServer.RegisterRoutes(e)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "HTTP server failed", err, nil)
		}
	}()
	appLogger.Info(ctx, "HTTP server listening", map[string]any{"port": cfg.HTTPPort})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info(ctx, "Shutdown signal received, draining...")

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown failed", err, nil)
	}
	cacheShutdown(shutdownCtx)
	storageShutdown(shutdownCtx)
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown failed", err, nil)
	}
	appLogger.Info(ctx, "Server stopped.")
}

func buildRepositories(ctx context.Context, cfg *config.ServerConfig) (repositories, func(context.Context)) {
	switch cfg.StorageBackend {
	case "mongo":
		if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
			appLogger.Fatal(ctx, "Failed to initialize MongoDB connection", err, nil)
		}
		db := mongodb.GetDB()
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			appLogger.Fatal(ctx, "Failed to ensure MongoDB indexes", err, nil)
		}
		if err := mongodb.SeedDefaultDomain(ctx, db); err != nil {
			appLogger.Fatal(ctx, "Failed to seed default domain", err, nil)
		}
		return repositories{
				domains:  mongodb.NewDomainRepository(db),
				projects: mongodb.NewProjectRepository(db),
				users:    mongodb.NewUserRepository(db),
				groups:   mongodb.NewGroupRepository(db),
				roles:    mongodb.NewRoleRepository(db),
				grants:   mongodb.NewGrantRepository(db),
				tokens:   mongodb.NewTokenRepository(db),
				events:   mongodb.NewRevocationEventRepository(db),
				trusts:   mongodb.NewTrustRepository(db),
			}, func(sctx context.Context) {
				if err := mongodb.Disconnect(sctx); err != nil {
					appLogger.Error(sctx, "MongoDB disconnect failed", err, nil)
				}
			}
	case "memory":
		store := inmem.NewStore()
		return repositories{
			domains:  store,
			projects: store,
			users:    store,
			groups:   store,
			roles:    store,
			grants:   store,
			tokens:   store,
			events:   store,
			trusts:   store,
		}, func(context.Context) {}
	default:
		appLogger.Fatal(ctx, "Unknown STORAGE_BACKEND", nil,
			map[string]any{"backend": cfg.StorageBackend})
		return repositories{}, nil
	}
}

func buildEntityCache(ctx context.Context, cfg *config.ServerConfig) (cache.EntityCache, func(context.Context)) {
	switch cfg.CacheBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			appLogger.Fatal(ctx, "Failed to connect to Redis", err,
				map[string]any{"addr": cfg.RedisAddr})
		}
		c := redicache.NewEntityCache(client, "accord")
		return c, func(sctx context.Context) {
			if err := client.Close(); err != nil {
				appLogger.Error(sctx, "Redis close failed", err, nil)
			}
		}
	default:
		c := cache.NewMemoryEntityCache(cfg.CacheTTL())
		return c, func(context.Context) { c.Close() }
	}
}

func runTokenSweep(ctx context.Context, tokens *services.TokenService, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := tokens.FlushExpiredTokens(ctx); err != nil {
				appLogger.Error(ctx, "Expired token sweep failed", err, nil)
			}
		}
	}
}
