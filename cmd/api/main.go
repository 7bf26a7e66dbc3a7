package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/geocoder89/docdirectory/internal/auth"
	"github.com/geocoder89/docdirectory/internal/cache"
	"github.com/geocoder89/docdirectory/internal/config"
	"github.com/geocoder89/docdirectory/internal/db"
	"github.com/geocoder89/docdirectory/internal/domain/listing"
	httpx "github.com/geocoder89/docdirectory/internal/http"
	"github.com/geocoder89/docdirectory/internal/http/handlers"
	"github.com/geocoder89/docdirectory/internal/notifications"
	"github.com/geocoder89/docdirectory/internal/observability"
	"github.com/geocoder89/docdirectory/internal/redisclient"
	"github.com/geocoder89/docdirectory/internal/repo/postgres"
	"github.com/geocoder89/docdirectory/internal/service"
	"github.com/geocoder89/docdirectory/internal/slug"
	"github.com/geocoder89/docdirectory/internal/storage"
)

const latestCacheTTL = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, flush := observability.NewLogger(observability.LoggerConfig{
		Env:       cfg.Env,
		SentryDSN: cfg.SentryDSN,
		Out:       os.Stdout,
	})
	defer flush()
	slog.SetDefault(log)

	ctx := context.Background()

	if cfg.OTELEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: "docdirectory-api",
			Env:         cfg.Env,
			Endpoint:    cfg.OTELEndpoint,
			SampleRatio: cfg.OTELSampleRatio,
		})
		if err != nil {
			log.Error("tracer init failed, continuing without tracing", "err", err)
		} else {
			defer func() {
				sctx, cancel := config.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracer(sctx)
			}()
		}
	}

	// database
	pool, err := db.NewPool(cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		mctx, cancel := config.WithTimeout(ctx, 30*time.Second)
		err := db.Migrate(mctx, pool)
		cancel()
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	ready := map[string]handlers.Pinger{"postgres": pool}

	// tokens
	tokens := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.VerifyTTL, cfg.ResetTTL)
	if cfg.RedisAddr != "" {
		rdb := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		tokens.WithDenylist(auth.NewRedisDenylist(rdb.Raw()))
		ready["redis"] = rdb
		log.Info("token denylist enabled", "redis", cfg.RedisAddr)
	}

	// image storage
	var (
		store    storage.Storage
		localDir string
	)
	switch cfg.StorageDriver {
	case "s3":
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Endpoint:      cfg.S3Endpoint,
			PresignExpiry: cfg.S3PresignExpiry,
		})
		if err != nil {
			return fmt.Errorf("init s3 storage: %w", err)
		}
		store = s3Store
	default:
		local, err := storage.NewLocalStorage(cfg.UploadDir, "/uploads")
		if err != nil {
			return err
		}
		store = local
		localDir = local.Dir()
	}
	uploader := storage.NewUploader(store, storage.ImageConstraints(cfg.MaxUploadBytes))

	// mail
	links := notifications.Links{FrontendURL: cfg.FrontendURL}
	var mailer notifications.Notifier = notifications.NewLogNotifier(log, links)
	if cfg.ResendAPIKey != "" {
		mailer = notifications.NewResendNotifier(cfg.ResendAPIKey, cfg.EmailFrom, links, log)
	} else {
		log.Warn("RESEND_API_KEY not set, account emails are only logged")
	}
	mailer = notifications.NewProtectedNotifier(mailer, notifications.ProtectedNotifierConfig{}, prom)

	// repositories and services
	users := postgres.NewUsersRepo(pool, prom)
	accounts := service.NewAccountService(users, tokens, mailer, log)

	stamps := slug.NewTimestampSuffixer(nil)
	services := make([]*service.ListingService, 0, len(listing.Schemas))
	listingHandlers := make([]handlers.ListingService, 0, len(listing.Schemas))
	for _, schema := range listing.Schemas {
		svc := service.NewListingService(schema, service.ListingServiceDeps{
			Store:   postgres.NewListingsRepo(pool, prom, schema),
			Files:   uploader,
			Stamps:  stamps,
			Latest:  cache.New[[]listing.Summary](latestCacheTTL),
			Metrics: prom,
			Log:     log,
		})
		services = append(services, svc)
		listingHandlers = append(listingHandlers, svc)
	}

	router := httpx.NewRouter(httpx.RouterDeps{
		Cfg:            cfg,
		Log:            log,
		Prom:           prom,
		Gatherer:       reg,
		Verifier:       tokens,
		Accounts:       accounts,
		Listings:       listingHandlers,
		Directory:      service.NewDirectory(services...),
		Files:          uploader,
		LocalUploadDir: localDir,
		Ready:          ready,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-stop:
	}
	log.Info("server shutting down")

	sctx, cancel := config.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
