package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	brancheshandler "github.com/queuex-cloud/queuex/domains/branches/be/handler"
	branchesservice "github.com/queuex-cloud/queuex/domains/branches/be/service"
	companieshandler "github.com/queuex-cloud/queuex/domains/companies/be/handler"
	companiesrepo "github.com/queuex-cloud/queuex/domains/companies/be/repo"
	companiesservice "github.com/queuex-cloud/queuex/domains/companies/be/service"
	queueshandler "github.com/queuex-cloud/queuex/domains/queues/be/handler"
	"github.com/queuex-cloud/queuex/platform/go/auth"
	platformlogging "github.com/queuex-cloud/queuex/platform/go/logging"
	"github.com/queuex-cloud/queuex/platform/go/metrics"
	platformmiddleware "github.com/queuex-cloud/queuex/platform/go/middleware"
	"github.com/queuex-cloud/queuex/platform/go/persistence"
	"github.com/queuex-cloud/queuex/platform/go/tenant"
	tenantmiddleware "github.com/queuex-cloud/queuex/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	DBHost          string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort          int           `env:"DB_PORT" envDefault:"5432"`
	DBUser          string        `env:"DB_USER" envDefault:"postgres"`
	DBPassword      string        `env:"DB_PASSWORD,required"`
	AdminDatabase   string        `env:"ADMIN_DATABASE" envDefault:"postgres"`
	JWTSecret       string        `env:"JWT_SECRET,required"`
	TenantCacheTTL  time.Duration `env:"TENANT_CACHE_TTL" envDefault:"1m"`
}

func main() {
	ctx := context.Background()

	// Local development convenience; absent .env files are fine.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	controlPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init control-plane pool", zap.Error(err))
	}
	defer persistence.ClosePool(controlPool)

	if err := persistence.EnsureControlPlane(ctx, controlPool); err != nil {
		logger.Fatal("bootstrap control-plane schema", zap.Error(err))
	}

	defaults := tenant.Defaults{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
	}

	connCache := persistence.NewConnCache(defaults, logger)
	defer connCache.EvictAll()

	provisioner := persistence.NewProvisioner(persistence.ProvisionerConfig{
		Defaults:      defaults,
		AdminDatabase: cfg.AdminDatabase,
		Cache:         connCache,
		Logger:        logger,
	})

	companyStore, err := persistence.NewCompanyStore(controlPool)
	if err != nil {
		logger.Fatal("init company store", zap.Error(err))
	}
	companyRepo := companiesrepo.NewPostgresRepository(companyStore)
	companyService := companiesservice.New(companyRepo, provisioner, connCache, logger)
	companyHTTPHandler := companieshandler.New(companyService, logger)

	branchService := branchesservice.New(provisioner, connCache, companyService, logger)
	branchHTTPHandler := brancheshandler.New(branchService, logger)

	dbAccessor := tenantmiddleware.NewDBAccessor(connCache)
	queueHTTPHandler := queueshandler.New(dbAccessor, logger)

	authManager := auth.NewManager(cfg.JWTSecret, "queuex", 0)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := controlPool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", metrics.Handler())

	apiRouter := chi.NewRouter()

	// Tenant extraction runs before the request logger so log lines carry the
	// resolved tenant slug.
	apiRouter.Use(tenantmiddleware.ExtractTenant(companyService, logger, tenantmiddleware.Config{
		CacheTTL: cfg.TenantCacheTTL,
	}))
	apiRouter.Use(platformlogging.RequestLogger(logger))

	apiRouter.Group(func(r chi.Router) {
		r.Use(authManager.RequireRole(auth.RoleSuperAdmin))
		r.Mount("/companies", companyHTTPHandler.Routes())
		r.Mount("/companies/{companySlug}/branches", branchHTTPHandler.Routes())
	})

	apiRouter.Group(func(r chi.Router) {
		r.Use(tenantmiddleware.RequireTenant)
		r.Mount("/queues", queueHTTPHandler.Routes())
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
