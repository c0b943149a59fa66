package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"shop-mirror-sync-layer/internal/application"
	"shop-mirror-sync-layer/internal/config"
	apiinfra "shop-mirror-sync-layer/internal/infrastructure/api"
	"shop-mirror-sync-layer/internal/infrastructure/cache"
	"shop-mirror-sync-layer/internal/infrastructure/marketplace"
	"shop-mirror-sync-layer/internal/infrastructure/metrics"
	"shop-mirror-sync-layer/internal/infrastructure/pubsub"
	"shop-mirror-sync-layer/internal/infrastructure/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Connect to MongoDB
	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(context.Background())

	db := mongoClient.Database(cfg.MongoDatabase)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	syncMetrics := metrics.New(registry)

	// Initialize repositories
	shopRepo := repository.NewMongoShopConnectionRepository(db)
	orderRepo := repository.NewMongoOrderRepository(db)
	productRepo := repository.NewMongoProductRepository(db)
	settlementRepo := repository.NewMongoSettlementRepository(db)

	// Initialize infrastructure adapters
	marketplaceClient := marketplace.NewClient(
		cfg.MarketplaceBaseURL,
		cfg.MarketplaceAppKey,
		cfg.MarketplaceSecret,
		cfg.HTTPTimeout,
		logger,
	)
	progressStore := cache.NewRedisProgressStore(redisClient, logger)
	eventPubSub := pubsub.NewSyncEventPubSub(logger)

	// Initialize application services
	tokenService := application.NewTokenService(shopRepo, marketplaceClient, syncMetrics, logger)

	orchestrator := application.NewSyncOrchestrator(
		shopRepo,
		orderRepo,
		tokenService,
		[]application.Synchronizer{
			application.NewOrderSyncer(tokenService, marketplaceClient, orderRepo, shopRepo, logger),
			application.NewProductSyncer(tokenService, marketplaceClient, productRepo, shopRepo, logger),
			application.NewSettlementSyncer(tokenService, marketplaceClient, settlementRepo, shopRepo, logger),
		},
		syncMetrics,
		logger,
	)

	stalenessEvaluator := application.NewStalenessEvaluator(shopRepo)

	coordinator := application.NewSyncCoordinator(
		orchestrator,
		stalenessEvaluator,
		shopRepo,
		orderRepo,
		productRepo,
		settlementRepo,
		progressStore,
		application.NewCacheStore(),
		eventPubSub,
		cfg.EstimatedSettleRate,
		logger,
	)

	handlers := apiinfra.NewHandlers(coordinator, orchestrator, shopRepo, eventPubSub, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Health check - must be public for monitoring
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, "./docs/swagger.json")
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/shops", handlers.RegisterShop)

		r.Route("/shops/{shopID}", func(r chi.Router) {
			r.Post("/sync", handlers.StartSync)
			r.Post("/sync/cancel", handlers.CancelSync)
			r.Get("/sync/progress", handlers.SyncProgress)
			r.Get("/sync/events", handlers.SyncEvents)
			r.Get("/cache-status", handlers.CacheStatus)
			r.Post("/cache-status/dismiss", handlers.DismissPrompt)
			r.Get("/orders", handlers.ListOrders)
			r.Get("/products", handlers.ListProducts)
			r.Get("/settlements", handlers.ListSettlements)
			r.Get("/finance", handlers.FinanceSnapshot)
		})

		r.Post("/cron/sync", handlers.CronSync)
	})

	logger.Info().Str("port", cfg.Port).Msg("Starting API server")
	logger.Info().Msg("Swagger documentation available at http://localhost:" + cfg.Port + "/swagger/index.html")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}
