package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// progressTTL bounds how long an abandoned progress entry can linger.
// A normal run resets to idle well before this expires.
const progressTTL = time.Hour

// RedisProgressStore implements ProgressStore on Redis so every API
// instance serves the same view of a running sync.
type RedisProgressStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisProgressStore creates a Redis-backed progress store
func NewRedisProgressStore(client *redis.Client, logger zerolog.Logger) *RedisProgressStore {
	return &RedisProgressStore{
		client: client,
		logger: logger,
	}
}

func progressKey(shopID string) string {
	return fmt.Sprintf("sync:progress:%s", shopID)
}

// Get returns the stored progress for a shop, or an idle progress when
// nothing is stored.
func (s *RedisProgressStore) Get(ctx context.Context, shopID string) (*domain.SyncProgress, error) {
	data, err := s.client.Get(ctx, progressKey(shopID)).Bytes()
	if err == redis.Nil {
		return domain.NewIdleProgress(shopID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync progress: %w", err)
	}

	var progress domain.SyncProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("failed to decode sync progress: %w", err)
	}

	return &progress, nil
}

// Save stores the progress for a shop with a bounded TTL
func (s *RedisProgressStore) Save(ctx context.Context, progress *domain.SyncProgress) error {
	progress.UpdatedAt = time.Now()

	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to encode sync progress: %w", err)
	}

	if err := s.client.Set(ctx, progressKey(progress.ShopID), data, progressTTL).Err(); err != nil {
		return fmt.Errorf("failed to save sync progress: %w", err)
	}

	return nil
}

// Clear resets a shop's progress back to idle
func (s *RedisProgressStore) Clear(ctx context.Context, shopID string) error {
	if err := s.client.Del(ctx, progressKey(shopID)).Err(); err != nil {
		return fmt.Errorf("failed to clear sync progress: %w", err)
	}
	return nil
}

var _ ports.ProgressStore = (*RedisProgressStore)(nil)
