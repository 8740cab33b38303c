// @title           VirtuFit Generation API
// @version         1.0.0
// @description     Turns a garment photo into a 3D model (GLB) through Tripo3D or Meshy. Generation either finishes
// @description     within the request or returns a task id to resume with.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Only required when AUTH_JWT_SECRET is set.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"virtufit-backend/docs"
	"virtufit-backend/internal/cache"
	"virtufit-backend/internal/config"
	applog "virtufit-backend/internal/logger"
	"virtufit-backend/internal/metrics"
	"virtufit-backend/internal/services"
	"virtufit-backend/internal/storage"
	"virtufit-backend/internal/supabase"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := applog.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	configureSwagger(cfg.BaseURL)

	collector := metrics.NewCollector("virtufit", logger)

	provider, err := services.NewProvider(cfg, logger)
	if err != nil {
		return err
	}
	if err := provider.CheckCredentials(); err != nil {
		logger.Warn("generation provider credentials missing; generation requests will fail until configured",
			zap.String("provider", provider.Name()),
			zap.Error(err))
	}
	relay := services.NewRelay(cfg, provider, collector, logger)

	store, err := newResultCache(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	archive, err := newArchiveService(ctx, cfg, collector, logger)
	if err != nil {
		return err
	}

	service := services.NewGenerationService(relay, store, archive, collector, services.GenerationConfig{
		PollInterval: cfg.PollInterval,
		TimeBudget:   cfg.EffectiveBudget(),
	}, logger)

	router := setupRouter(cfg, routerDeps{
		service:   service,
		collector: collector,
		cache:     store,
		logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout(cfg),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("provider", provider.Name()),
			zap.Duration("time_budget", cfg.EffectiveBudget()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout(cfg))
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newResultCache uses Redis when REDIS_URL is set and a process-local map otherwise.
func newResultCache(cfg *config.Config, logger *zap.Logger) (cache.Store, error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, using in-memory result cache")
		return cache.NewMemoryStore(cfg.ResultCacheTTL), nil
	}
	store, err := cache.NewRedisStore(cfg.RedisURL, cfg.ResultCacheTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize result cache: %w", err)
	}
	return store, nil
}

func newArchiveService(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*services.ArchiveService, error) {
	var objects services.ObjectStore
	switch cfg.ArchiveBackend {
	case config.ArchiveSupabase:
		client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Supabase client: %w", err)
		}
		objects = supabase.NewStorageClient(client, cfg.SupabaseStorageBucket)
	case config.ArchiveMinIO:
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := storage.NewMinIOClient(initCtx, storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			PublicURL: cfg.MinIOPublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
		}
		objects = client
	default:
		return nil, nil
	}

	logger.Info("model archive enabled", zap.String("backend", objects.Name()))
	return services.NewArchiveService(objects, cfg.ArchiveMaxBytes, collector, logger), nil
}

// configureSwagger points the docs at the public base URL.
func configureSwagger(baseURL string) {
	if baseURL == "" {
		return
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return
	}
	docs.SwaggerInfo.Host = u.Host
	if u.Scheme == "https" {
		docs.SwaggerInfo.Schemes = []string{"https", "http"}
	} else {
		docs.SwaggerInfo.Schemes = []string{"http", "https"}
	}
}

// writeTimeout leaves room for a full await plus archiving.
func writeTimeout(cfg *config.Config) time.Duration {
	d := cfg.EffectiveBudget()
	if rd := cfg.RequestDeadline(); rd > d {
		d = rd
	}
	return d + 30*time.Second
}
