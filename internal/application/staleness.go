package application

import (
	"context"
	"fmt"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/ports"
)

// Staleness thresholds for the cached mirror.
const (
	// promptThreshold is the cache age past which the client layer
	// should offer the user a refresh.
	promptThreshold = 30 * time.Minute

	// autoSyncThreshold is the cache age past which the client layer
	// refreshes unprompted.
	autoSyncThreshold = 24 * time.Hour
)

// StalenessEvaluator classifies how stale each resource's mirror is for
// a shop. A resource that has never been synced prompts but never
// auto-syncs; the deep first-sync walk is expensive enough that it must
// be user-initiated or scheduled, not triggered by a page load.
type StalenessEvaluator struct {
	shopRepo ports.ShopConnectionRepository
	now      func() time.Time
}

// NewStalenessEvaluator creates a new staleness evaluator
func NewStalenessEvaluator(shopRepo ports.ShopConnectionRepository) *StalenessEvaluator {
	return &StalenessEvaluator{
		shopRepo: shopRepo,
		now:      time.Now,
	}
}

// Evaluate classifies every resource for the shop and aggregates the
// prompt and auto-sync flags. Performance is reported per-resource but
// excluded from the aggregates, since it refreshes as part of the
// product run and should not trigger prompts by itself.
func (e *StalenessEvaluator) Evaluate(ctx context.Context, shopID string) (*domain.CacheStatus, error) {
	shop, err := e.shopRepo.GetByID(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shop %s: %w", shopID, err)
	}
	if shop == nil {
		return nil, fmt.Errorf("shop %s: %w", shopID, domain.ErrNotFound)
	}

	status := &domain.CacheStatus{
		Resources: make(map[domain.ResourceType]domain.ResourceStaleness),
	}

	now := e.now()
	for _, resource := range []domain.ResourceType{
		domain.ResourceOrders,
		domain.ResourceProducts,
		domain.ResourceSettlements,
		domain.ResourcePerformance,
	} {
		staleness := classify(shop.SyncedAt(resource), now)
		status.Resources[resource] = staleness

		if resource == domain.ResourcePerformance {
			continue
		}
		status.ShouldPromptUser = status.ShouldPromptUser || staleness.ShouldPrompt
		status.ShouldAutoSync = status.ShouldAutoSync || staleness.ShouldAutoSync
	}

	return status, nil
}

func classify(syncedAt *time.Time, now time.Time) domain.ResourceStaleness {
	if syncedAt == nil {
		return domain.ResourceStaleness{ShouldPrompt: true}
	}

	age := now.Sub(*syncedAt)
	return domain.ResourceStaleness{
		LastSyncedAt:   syncedAt,
		ShouldPrompt:   age > promptThreshold,
		ShouldAutoSync: age > autoSyncThreshold,
	}
}
