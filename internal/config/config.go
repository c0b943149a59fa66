package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the engine reads from the environment.
type Config struct {
	Port          string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MarketplaceBaseURL string
	MarketplaceAppKey  string
	MarketplaceSecret  string

	// EstimatedSettleRate is the business estimate applied to the gap
	// between order revenue and settled revenue. Policy, not invariant.
	EstimatedSettleRate float64

	HTTPTimeout time.Duration
}

// Load reads configuration from .env (when present) and the environment.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		MongoURI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:       getEnv("MONGODB_DATABASE", "shop_mirror"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		MarketplaceBaseURL:  getEnv("MARKETPLACE_BASE_URL", "https://open-api.marketplace.com"),
		MarketplaceAppKey:   os.Getenv("MARKETPLACE_APP_KEY"),
		MarketplaceSecret:   os.Getenv("MARKETPLACE_APP_SECRET"),
		EstimatedSettleRate: 0.85,
		HTTPTimeout:         30 * time.Second,
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	if v := os.Getenv("ESTIMATED_SETTLE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ESTIMATED_SETTLE_RATE: %w", err)
		}
		if rate < 0 || rate > 1 {
			return nil, fmt.Errorf("ESTIMATED_SETTLE_RATE must be within [0,1], got %v", rate)
		}
		cfg.EstimatedSettleRate = rate
	}

	if cfg.MarketplaceAppKey == "" || cfg.MarketplaceSecret == "" {
		return nil, fmt.Errorf("MARKETPLACE_APP_KEY and MARKETPLACE_APP_SECRET are required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
