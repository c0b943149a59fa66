package application

import (
	"context"
	"fmt"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/infrastructure/metrics"
	"shop-mirror-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

// Synchronizer is one resource-specific sync implementation.
type Synchronizer interface {
	Resource() domain.ResourceType
	Sync(ctx context.Context, shop *domain.ShopConnection, isFirstSync bool) (domain.SyncStats, error)
}

// SyncOrchestrator runs the resource synchronizers for a shop and
// sweeps the whole fleet on a schedule. One resource failing never
// blocks the others; failures are collected on the result.
type SyncOrchestrator struct {
	shopRepo      ports.ShopConnectionRepository
	orderRepo     ports.OrderRepository
	tokens        *TokenService
	synchronizers map[domain.ResourceType]Synchronizer
	metrics       *metrics.SyncMetrics
	logger        zerolog.Logger
	now           func() time.Time
}

// NewSyncOrchestrator creates a new sync orchestrator
func NewSyncOrchestrator(
	shopRepo ports.ShopConnectionRepository,
	orderRepo ports.OrderRepository,
	tokens *TokenService,
	synchronizers []Synchronizer,
	m *metrics.SyncMetrics,
	logger zerolog.Logger,
) *SyncOrchestrator {
	byResource := make(map[domain.ResourceType]Synchronizer, len(synchronizers))
	for _, s := range synchronizers {
		byResource[s.Resource()] = s
	}
	return &SyncOrchestrator{
		shopRepo:      shopRepo,
		orderRepo:     orderRepo,
		tokens:        tokens,
		synchronizers: byResource,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// IsFirstSync reports whether any order rows exist for the shop. The
// flag is computed once per orchestration run and passed to every
// resource so they agree on full-vs-incremental windows. Stored rows
// decide it, not synced-at stamps: a run that committed batches but
// failed the stamp write must still resume incrementally.
func (o *SyncOrchestrator) IsFirstSync(ctx context.Context, shop *domain.ShopConnection) (bool, error) {
	count, err := o.orderRepo.CountByShop(ctx, shop.ID)
	if err != nil {
		return false, fmt.Errorf("failed to count orders for shop %s: %w", shop.ID, err)
	}
	return count == 0, nil
}

// RunSynchronizer runs one resource synchronizer with metrics.
func (o *SyncOrchestrator) RunSynchronizer(ctx context.Context, shop *domain.ShopConnection, resource domain.ResourceType, isFirstSync bool) (domain.SyncStats, error) {
	syncer, ok := o.synchronizers[resource]
	if !ok {
		return domain.SyncStats{}, fmt.Errorf("no synchronizer registered for resource %q", resource)
	}

	started := o.now()
	stats, err := syncer.Sync(ctx, shop, isFirstSync)
	o.metrics.ObserveSync(string(resource), started, stats.Fetched, stats.Upserted, err)
	if err != nil {
		o.logger.Error().
			Err(err).
			Str("shopId", shop.ID).
			Str("resource", string(resource)).
			Msg("Resource sync failed")
		return stats, fmt.Errorf("%s sync failed: %w", resource, err)
	}
	return stats, nil
}

// Sync runs the requested resources for the shop in the canonical
// order and returns the aggregated result. An empty resource list means
// everything. The run fails outright only when the shop cannot be
// loaded or the context is cancelled; per resource errors are collected
// in Failures.
func (o *SyncOrchestrator) Sync(ctx context.Context, shopID string, resources []domain.ResourceType) (*domain.SyncResult, error) {
	shop, err := o.shopRepo.GetByID(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shop %s: %w", shopID, err)
	}
	if shop == nil {
		return nil, fmt.Errorf("shop %s: %w", shopID, domain.ErrNotFound)
	}

	return o.syncShop(ctx, shop, resources)
}

// normalizeResources maps a requested subset onto the canonical visit
// order, dropping duplicates. Empty input selects every resource.
func normalizeResources(requested []domain.ResourceType) []domain.ResourceType {
	if len(requested) == 0 {
		return domain.SyncableResources
	}
	wanted := make(map[domain.ResourceType]struct{}, len(requested))
	for _, r := range requested {
		wanted[r] = struct{}{}
	}
	ordered := make([]domain.ResourceType, 0, len(wanted))
	for _, resource := range domain.SyncableResources {
		if _, ok := wanted[resource]; ok {
			ordered = append(ordered, resource)
		}
	}
	return ordered
}

func (o *SyncOrchestrator) syncShop(ctx context.Context, shop *domain.ShopConnection, resources []domain.ResourceType) (*domain.SyncResult, error) {
	isFirstSync, err := o.IsFirstSync(ctx, shop)
	if err != nil {
		return nil, err
	}

	result := &domain.SyncResult{
		ShopID:      shop.ID,
		IsFirstSync: isFirstSync,
		Stats:       make(map[domain.ResourceType]domain.SyncStats),
	}

	for _, resource := range normalizeResources(resources) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		stats, err := o.RunSynchronizer(ctx, shop, resource, result.IsFirstSync)
		if err != nil {
			if result.Failures == nil {
				result.Failures = make(map[domain.ResourceType]string)
			}
			result.Failures[resource] = err.Error()
			continue
		}
		result.Stats[resource] = stats
	}

	return result, nil
}

// RunScheduledSync sweeps every connected shop. Shops aliasing the same
// external id are synced once; record upserts and stamps already fan
// out to the aliased rows. An expired token is refreshed up front so
// the sweep surfaces dead credentials immediately instead of three
// pages into an order walk.
func (o *SyncOrchestrator) RunScheduledSync(ctx context.Context) ([]domain.SweepResult, error) {
	shops, err := o.shopRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops for sweep: %w", err)
	}

	seen := make(map[string]struct{}, len(shops))
	results := make([]domain.SweepResult, 0, len(shops))

	for _, shop := range shops {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if _, dup := seen[shop.ExternalShopID]; dup {
			continue
		}
		seen[shop.ExternalShopID] = struct{}{}

		results = append(results, o.sweepShop(ctx, shop))
	}

	o.logger.Info().
		Int("shops", len(results)).
		Msg("Scheduled sync sweep completed")

	return results, nil
}

func (o *SyncOrchestrator) sweepShop(ctx context.Context, shop *domain.ShopConnection) domain.SweepResult {
	sweep := domain.SweepResult{
		ShopID:         shop.ID,
		ExternalShopID: shop.ExternalShopID,
		Status:         domain.SweepSuccess,
	}

	if shop.TokenExpired(o.now()) {
		if _, err := o.tokens.EnsureValidToken(ctx, shop, true); err != nil {
			sweep.Status = domain.SweepFailure
			sweep.Error = err.Error()
			return sweep
		}
	}

	result, err := o.syncShop(ctx, shop, nil)
	if err != nil {
		sweep.Status = domain.SweepFailure
		sweep.Error = err.Error()
		return sweep
	}

	sweep.Stats = result.Stats
	if len(result.Failures) > 0 {
		sweep.Status = domain.SweepFailure
		for resource, msg := range result.Failures {
			sweep.Error = fmt.Sprintf("%s: %s", resource, msg)
			break
		}
	}
	return sweep
}
