package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/adapter/cache"
	"github.com/smallbiznis/litshare/internal/adapter/events"
	"github.com/smallbiznis/litshare/internal/adapter/storage"
	"github.com/smallbiznis/litshare/internal/bootstrap"
	"github.com/smallbiznis/litshare/internal/config"
	httptransport "github.com/smallbiznis/litshare/internal/http"
	"github.com/smallbiznis/litshare/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/litshare/internal/http/middleware"
	"github.com/smallbiznis/litshare/internal/jwt"
	apimiddleware "github.com/smallbiznis/litshare/internal/middleware"
	"github.com/smallbiznis/litshare/internal/repository"
	"github.com/smallbiznis/litshare/internal/repository/memory"
	"github.com/smallbiznis/litshare/internal/server"
	"github.com/smallbiznis/litshare/internal/service"
	"github.com/smallbiznis/litshare/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			telemetry.NewLogger,
			newTelemetry,
			telemetry.NewMetrics,
			newSnowflake,
			newStores,
			newAttemptStore,
			newEventPublisher,
			newFileStore,
			newRateLimiter,
			newKeyManager,
			newTokenGenerator,
			newCredentialStore,
			newTokenService,
			newAuthorizationGate,
			newLiteratureLifecycle,
			newStorageAccountant,
			newGroupService,
			service.NewAuthService,
			handler.NewAuthHandler,
			handler.NewLiteratureHandler,
			handler.NewGroupHandler,
			handler.NewAdminHandler,
			newAuthMiddleware,
			newHandlers,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, ensureAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

type stores struct {
	fx.Out

	Users       repository.UserRepository
	Groups      repository.GroupRepository
	Memberships repository.MembershipRepository
	Literature  repository.LiteratureRepository
	Tokens      repository.TokenRepository
	Keys        repository.KeyRepository
}

// newStores selects the persistence backend from DB_DRIVER.
func newStores(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.DBDriver == config.DriverMemory {
		logger.Warn("using in-memory storage; data is lost on restart")
		groups := memory.NewGroups()
		return stores{
			Users:       memory.NewUsers(),
			Groups:      groups,
			Memberships: groups,
			Literature:  memory.NewLiterature(groups),
			Tokens:      memory.NewTokens(),
			Keys:        memory.NewKeys(),
		}, nil
	}

	pool, err := newPGXPool(lc, cfg)
	if err != nil {
		return stores{}, err
	}
	groups := repository.NewPostgresGroupRepo(pool)
	return stores{
		Users:       repository.NewPostgresUserRepo(pool),
		Groups:      groups,
		Memberships: groups,
		Literature:  repository.NewPostgresLiteratureRepo(pool),
		Tokens:      repository.NewPostgresTokenRepo(pool),
		Keys:        repository.NewPostgresKeyRepo(pool),
	}, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

// newAttemptStore uses Redis when REDIS_ADDR is set so lockouts hold across instances.
func newAttemptStore(lc fx.Lifecycle, cfg config.Config) (repository.LoginAttemptStore, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryAttemptStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return cache.NewRedisAttemptStore(client), nil
}

func newEventPublisher(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) service.EventPublisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}
	}
	publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher
}

func newFileStore(cfg config.Config) (*storage.FileStore, error) {
	return storage.NewOSFileStore(cfg.StorageRoot)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newKeyManager(repo repository.KeyRepository, node *snowflake.Node) *jwt.KeyManager {
	return jwt.NewKeyManager(repo, node)
}

func newTokenGenerator(manager *jwt.KeyManager, cfg config.Config) *jwt.Generator {
	return jwt.NewGenerator(manager, cfg.AccessTokenTTL, cfg.JWTIssuer)
}

func newCredentialStore(users repository.UserRepository, attempts repository.LoginAttemptStore, node *snowflake.Node, cfg config.Config, publisher service.EventPublisher, metrics *telemetry.Metrics, logger *zap.Logger) *service.CredentialStore {
	return service.NewCredentialStore(users, attempts, node, cfg, publisher, metrics, logger)
}

func newTokenService(tokens repository.TokenRepository, generator *jwt.Generator, node *snowflake.Node, cfg config.Config, publisher service.EventPublisher, metrics *telemetry.Metrics, logger *zap.Logger) *service.TokenService {
	return service.NewTokenService(tokens, generator, node, cfg, publisher, metrics, logger)
}

func newAuthorizationGate(memberships repository.MembershipRepository) *service.AuthorizationGate {
	return service.NewAuthorizationGate(memberships)
}

func newLiteratureLifecycle(lits repository.LiteratureRepository, gate *service.AuthorizationGate, files *storage.FileStore, node *snowflake.Node, publisher service.EventPublisher, metrics *telemetry.Metrics, logger *zap.Logger) *service.LiteratureLifecycle {
	return service.NewLiteratureLifecycle(lits, gate, files, node, publisher, metrics, logger)
}

func newStorageAccountant(lits repository.LiteratureRepository, gate *service.AuthorizationGate, files *storage.FileStore, publisher service.EventPublisher, logger *zap.Logger) *service.StorageAccountant {
	return service.NewStorageAccountant(lits, gate, files, publisher, logger)
}

func newGroupService(groups repository.GroupRepository, memberships repository.MembershipRepository, gate *service.AuthorizationGate, node *snowflake.Node, publisher service.EventPublisher, logger *zap.Logger) *service.GroupService {
	return service.NewGroupService(groups, memberships, gate, node, publisher, logger)
}

func newAuthMiddleware(auth *service.AuthService) *httpmiddleware.Auth {
	return httpmiddleware.NewAuth(auth, auth)
}

func newHandlers(auth *handler.AuthHandler, literature *handler.LiteratureHandler, groups *handler.GroupHandler, admin *handler.AdminHandler) httptransport.Handlers {
	return httptransport.Handlers{Auth: auth, Literature: literature, Groups: groups, Admin: admin}
}

func ensureAdmin(lc fx.Lifecycle, cfg config.Config, credentials *service.CredentialStore, logger *zap.Logger) {
	bootstrap.EnsureAdmin(lc, cfg, credentials, logger)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				logger.Info("http server listening", zap.String("addr", addr))
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
