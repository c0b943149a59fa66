package cache

import (
	"context"
	"testing"
	"time"

	"shop-mirror-sync-layer/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestProgressStore creates a miniredis-backed store
func setupTestProgressStore(t *testing.T) (*RedisProgressStore, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisProgressStore(client, zerolog.Nop())

	return store, mr, func() {
		client.Close()
		mr.Close()
	}
}

func TestRedisProgressStore_Get_DefaultsToIdle(t *testing.T) {
	store, _, cleanup := setupTestProgressStore(t)
	defer cleanup()

	progress, err := store.Get(context.Background(), "shop-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if progress.ShopID != "shop-1" {
		t.Errorf("expected shop id carried through, got %s", progress.ShopID)
	}
	if progress.Step != domain.StepIdle || progress.Active {
		t.Errorf("expected idle progress for unknown shop, got %+v", progress)
	}
}

func TestRedisProgressStore_SaveAndGet(t *testing.T) {
	store, _, cleanup := setupTestProgressStore(t)
	defer cleanup()

	ctx := context.Background()
	progress := domain.NewIdleProgress("shop-1")
	progress.Active = true
	progress.Step = domain.StepProducts
	progress.OrdersDone = true
	progress.OrdersFetched = 240

	if err := store.Save(ctx, progress); err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}

	got, err := store.Get(ctx, "shop-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Step != domain.StepProducts || !got.Active {
		t.Errorf("expected stored state back, got %+v", got)
	}
	if !got.OrdersDone || got.OrdersFetched != 240 {
		t.Errorf("expected step counters preserved, got %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("expected save to stamp UpdatedAt")
	}
}

func TestRedisProgressStore_Clear(t *testing.T) {
	store, _, cleanup := setupTestProgressStore(t)
	defer cleanup()

	ctx := context.Background()
	progress := domain.NewIdleProgress("shop-1")
	progress.Active = true
	progress.Step = domain.StepOrders
	store.Save(ctx, progress)

	if err := store.Clear(ctx, "shop-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := store.Get(ctx, "shop-1")
	if got.Step != domain.StepIdle || got.Active {
		t.Errorf("expected idle state after clear, got %+v", got)
	}
}

func TestRedisProgressStore_EntriesExpire(t *testing.T) {
	store, mr, cleanup := setupTestProgressStore(t)
	defer cleanup()

	ctx := context.Background()
	progress := domain.NewIdleProgress("shop-1")
	progress.Active = true
	store.Save(ctx, progress)

	// An abandoned run's entry must not pin the shop as active forever.
	mr.FastForward(progressTTL + time.Minute)

	got, err := store.Get(ctx, "shop-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Active {
		t.Error("expected abandoned progress to expire back to idle")
	}
}
