package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/custshop/custshop/internal/app"
	"github.com/custshop/custshop/internal/auth"
	"github.com/custshop/custshop/internal/cart"
	"github.com/custshop/custshop/internal/catalog"
	"github.com/custshop/custshop/internal/designs"
	"github.com/custshop/custshop/internal/observability"
	"github.com/custshop/custshop/internal/orders"
	"github.com/custshop/custshop/internal/platform/cache"
	"github.com/custshop/custshop/internal/platform/db"
	"github.com/custshop/custshop/internal/platform/storage"
	"github.com/custshop/custshop/internal/rbac"
	"github.com/custshop/custshop/internal/roles"
	"github.com/custshop/custshop/internal/shared"
	"github.com/custshop/custshop/internal/users"
	"github.com/custshop/custshop/jobs"
)

func serve(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("migrations applied", slog.Any("versions", applied))
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return fmt.Errorf("init jobs client: %w", err)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	var images designs.ImageStore
	if s3Client, err := storage.NewS3Client(ctx, cfg.Storage()); err != nil {
		logger.Warn("object storage disabled", slog.Any("error", err))
	} else {
		images = s3Client
	}

	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Logger: logger, Observer: metrics}

	tokenStore := shared.NewTokenStore(redisClient, "custshop")
	auditLogger := shared.NewAuditLogger(pool)
	idemStore := shared.NewIdempotencyStore(pool)

	rolesService := roles.NewService(roles.NewRepository(pool), tokenStore, auditLogger)
	if err := rolesService.EnsureSystemRoles(ctx); err != nil {
		return fmt.Errorf("seed system roles: %w", err)
	}
	rolesHandler := roles.NewHandler(logger, rolesService, rbacMiddleware)

	tokenIssuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(pool), rolesService, tokenIssuer, tokenStore, jobsClient, auth.ServiceConfig{
		ResetTTL:  cfg.PasswordResetTTL,
		PublicURL: cfg.PublicURL,
	})
	authenticator := auth.NewAuthenticator(tokenIssuer, tokenStore, logger)
	authHandler := auth.NewHandler(logger, authService, rbacMiddleware, cfg.AuthRateLimit)

	usersService := users.NewService(users.NewRepository(pool), rolesService, tokenStore, auditLogger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	catalogService := catalog.NewService(catalog.NewRepository(pool), catalog.NewCache(redisClient, cfg.CatalogCacheTTL), logger)
	catalogHandler := catalog.NewHandler(logger, catalogService, rbacMiddleware)

	designsService := designs.NewService(designs.NewRepository(pool), catalogService, images, auditLogger, logger)
	designsHandler := designs.NewHandler(logger, designsService, rbacMiddleware)

	cartService := cart.NewService(cart.NewRepository(pool), catalogService, designsService, logger)
	cartHandler := cart.NewHandler(logger, cartService, rbacMiddleware)

	ordersService := orders.NewService(orders.NewRepository(pool), idemStore, jobsClient, auditLogger, logger)
	ordersHandler := orders.NewHandler(logger, ordersService, rbacMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Authenticator:  authenticator,
		Metrics:        metrics,
		Pool:           pool,
		Redis:          redisClient,
		AuthHandler:    authHandler,
		RolesHandler:   rolesHandler,
		UsersHandler:   usersHandler,
		CatalogHandler: catalogHandler,
		DesignsHandler: designsHandler,
		CartHandler:    cartHandler,
		OrdersHandler:  ordersHandler,
		JobHandler:     jobHandler,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
