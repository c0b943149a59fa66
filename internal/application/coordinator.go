package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/infrastructure/pubsub"
	"shop-mirror-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

// completeDisplayDelay keeps the terminal "complete" step visible to
// progress pollers before the state resets to idle.
const completeDisplayDelay = 2 * time.Second

// readPageSize is the storage page size used when materializing full
// record lists for the read cache.
const readPageSize = 200

// SyncCoordinator is the client-facing layer over the sync engine. It
// serves reads from a tiered in-memory cache, runs at most one sync per
// shop at a time with cooperative cancellation, tracks progress in the
// shared progress store, and publishes events for UI subscribers.
type SyncCoordinator struct {
	orchestrator   *SyncOrchestrator
	staleness      *StalenessEvaluator
	shopRepo       ports.ShopConnectionRepository
	orderRepo      ports.OrderRepository
	productRepo    ports.ProductRepository
	settlementRepo ports.SettlementRepository
	progress       ports.ProgressStore
	cache          *CacheStore
	events         *pubsub.SyncEventPubSub
	settleRate     float64
	logger         zerolog.Logger
	now            func() time.Time

	mu      sync.Mutex
	cancels map[string]*atomic.Bool

	completeDelay time.Duration
}

// NewSyncCoordinator creates a new sync coordinator
func NewSyncCoordinator(
	orchestrator *SyncOrchestrator,
	staleness *StalenessEvaluator,
	shopRepo ports.ShopConnectionRepository,
	orderRepo ports.OrderRepository,
	productRepo ports.ProductRepository,
	settlementRepo ports.SettlementRepository,
	progress ports.ProgressStore,
	cache *CacheStore,
	events *pubsub.SyncEventPubSub,
	settleRate float64,
	logger zerolog.Logger,
) *SyncCoordinator {
	return &SyncCoordinator{
		orchestrator:   orchestrator,
		staleness:      staleness,
		shopRepo:       shopRepo,
		orderRepo:      orderRepo,
		productRepo:    productRepo,
		settlementRepo: settlementRepo,
		progress:       progress,
		cache:          cache,
		events:         events,
		settleRate:     settleRate,
		logger:         logger,
		now:            time.Now,
		cancels:        make(map[string]*atomic.Bool),
		completeDelay:  completeDisplayDelay,
	}
}

// StartSync launches a sync run for the shop in the background and
// returns a channel that delivers the run's terminal error (nil on
// success). An empty resource list syncs everything. At most one run
// per shop is active at a time; a second start while one is running
// fails with ErrSyncInProgress.
func (c *SyncCoordinator) StartSync(ctx context.Context, shopID string, resources []domain.ResourceType) (<-chan error, error) {
	shop, err := c.shopRepo.GetByID(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shop %s: %w", shopID, err)
	}
	if shop == nil {
		return nil, fmt.Errorf("shop %s: %w", shopID, domain.ErrNotFound)
	}

	current, err := c.progress.Get(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync progress: %w", err)
	}
	if current.Active {
		return nil, fmt.Errorf("shop %s: %w", shopID, domain.ErrSyncInProgress)
	}

	cancelled := &atomic.Bool{}
	c.mu.Lock()
	if existing, ok := c.cancels[shopID]; ok && !existing.Load() {
		// Another starter won the race between the progress check and
		// here; treat it as an active run.
		c.mu.Unlock()
		return nil, fmt.Errorf("shop %s: %w", shopID, domain.ErrSyncInProgress)
	}
	c.cancels[shopID] = cancelled
	c.mu.Unlock()

	errCh := make(chan error, 1)

	// The run outlives the request that started it.
	runCtx := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.cancels, shopID)
			c.mu.Unlock()
		}()
		errCh <- c.run(runCtx, shop, resources, cancelled)
		close(errCh)
	}()

	return errCh, nil
}

var progressSteps = map[domain.ResourceType]domain.SyncStep{
	domain.ResourceOrders:      domain.StepOrders,
	domain.ResourceProducts:    domain.StepProducts,
	domain.ResourceSettlements: domain.StepSettlements,
}

func (c *SyncCoordinator) run(ctx context.Context, shop *domain.ShopConnection, resources []domain.ResourceType, cancelled *atomic.Bool) error {
	progress := domain.NewIdleProgress(shop.ID)
	progress.Active = true
	progress.Stats = make(map[domain.ResourceType]domain.SyncStats)

	isFirstSync, err := c.orchestrator.IsFirstSync(ctx, shop)
	if err != nil {
		return c.finishFailed(ctx, progress, err)
	}
	progress.IsFirstSync = isFirstSync

	for _, resource := range normalizeResources(resources) {
		if cancelled.Load() {
			return c.finishCancelled(ctx, progress)
		}

		progress.Step = progressSteps[resource]
		progress.Message = fmt.Sprintf("Syncing %s", resource)
		c.saveProgress(ctx, progress)
		c.publish(domain.EventStepChanged, shop.ID, progress.Step, progress.Message)

		stats, err := c.orchestrator.RunSynchronizer(ctx, shop, resource, isFirstSync)
		if err != nil {
			return c.finishFailed(ctx, progress, err)
		}

		progress.Stats[resource] = stats
		switch resource {
		case domain.ResourceOrders:
			progress.OrdersDone = true
			progress.OrdersFetched = stats.Fetched
		case domain.ResourceProducts:
			progress.ProductsDone = true
			progress.ProductsFetched = stats.Fetched
		case domain.ResourceSettlements:
			progress.SettlementsDone = true
			progress.SettlementsFetched = stats.Fetched
		}
		c.saveProgress(ctx, progress)
	}

	if cancelled.Load() {
		return c.finishCancelled(ctx, progress)
	}

	progress.Step = domain.StepComplete
	progress.Active = false
	progress.Message = "Sync complete"
	c.saveProgress(ctx, progress)
	c.publish(domain.EventSyncComplete, shop.ID, domain.StepComplete, progress.Message)
	c.cache.Invalidate(shop.ID)
	c.resetAfterDelay(ctx, shop.ID)

	return nil
}

// resetAfterDelay keeps the terminal progress entry visible to pollers
// for a short display window, then returns the state machine to idle.
func (c *SyncCoordinator) resetAfterDelay(ctx context.Context, shopID string) {
	time.Sleep(c.completeDelay)
	if err := c.progress.Clear(ctx, shopID); err != nil {
		c.logger.Warn().Err(err).Str("shopId", shopID).Msg("Failed to reset sync progress")
	}
}

func (c *SyncCoordinator) finishCancelled(ctx context.Context, progress *domain.SyncProgress) error {
	progress.Active = false
	progress.Cancelled = true
	progress.Step = domain.StepIdle
	progress.Message = "Sync cancelled"
	c.saveProgress(ctx, progress)
	c.publish(domain.EventSyncFailed, progress.ShopID, domain.StepIdle, progress.Message)
	c.logger.Info().Str("shopId", progress.ShopID).Msg("Sync run cancelled")
	c.resetAfterDelay(ctx, progress.ShopID)
	return domain.ErrSyncCancelled
}

func (c *SyncCoordinator) finishFailed(ctx context.Context, progress *domain.SyncProgress, err error) error {
	progress.Active = false
	progress.Step = domain.StepIdle
	progress.Message = err.Error()
	c.saveProgress(ctx, progress)
	c.publish(domain.EventSyncFailed, progress.ShopID, domain.StepIdle, err.Error())
	c.logger.Error().Err(err).Str("shopId", progress.ShopID).Msg("Sync run failed")
	c.resetAfterDelay(ctx, progress.ShopID)
	return err
}

func (c *SyncCoordinator) saveProgress(ctx context.Context, progress *domain.SyncProgress) {
	progress.UpdatedAt = c.now()
	if err := c.progress.Save(ctx, progress); err != nil {
		c.logger.Warn().Err(err).Str("shopId", progress.ShopID).Msg("Failed to save sync progress")
	}
}

func (c *SyncCoordinator) publish(eventType domain.SyncEventType, shopID string, step domain.SyncStep, message string) {
	c.events.Publish(&domain.SyncEvent{
		Type:      eventType,
		ShopID:    shopID,
		Step:      step,
		Message:   message,
		Timestamp: c.now(),
	})
}

// CancelSync requests cooperative cancellation of the shop's active
// run. The run stops at the next resource boundary; the resource in
// flight finishes persisting what it already fetched.
func (c *SyncCoordinator) CancelSync(ctx context.Context, shopID string) error {
	c.mu.Lock()
	flag, ok := c.cancels[shopID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no sync in progress for shop %s: %w", shopID, domain.ErrNotFound)
	}
	flag.Store(true)
	c.logger.Info().Str("shopId", shopID).Msg("Sync cancellation requested")
	return nil
}

// Progress returns the shop's current sync progress, idle if none.
func (c *SyncCoordinator) Progress(ctx context.Context, shopID string) (*domain.SyncProgress, error) {
	return c.progress.Get(ctx, shopID)
}

// CacheStatus evaluates the shop's mirror staleness, applies the prompt
// dismissal cooldown, and kicks off a background sync when the mirror
// has aged past the auto-sync threshold.
func (c *SyncCoordinator) CacheStatus(ctx context.Context, shopID string) (*domain.CacheStatus, error) {
	status, err := c.staleness.Evaluate(ctx, shopID)
	if err != nil {
		return nil, err
	}

	if status.ShouldPromptUser && c.cache.PromptSuppressed(shopID) {
		status.ShouldPromptUser = false
	}

	if status.ShouldAutoSync {
		if _, err := c.StartSync(ctx, shopID, nil); err != nil && !errors.Is(err, domain.ErrSyncInProgress) {
			c.logger.Warn().Err(err).Str("shopId", shopID).Msg("Auto sync failed to start")
		}
	} else if status.ShouldPromptUser {
		c.publish(domain.EventRefreshPrompt, shopID, domain.StepIdle, "Cached data is stale")
	}

	return status, nil
}

// DismissRefreshPrompt records the user declining a refresh prompt so
// prompts stay quiet for the cooldown window.
func (c *SyncCoordinator) DismissRefreshPrompt(shopID string) {
	c.cache.DismissPrompt(shopID)
}

// promptRefresh surfaces a refresh prompt for an aged snapshot unless
// the user dismissed one within the cooldown window.
func (c *SyncCoordinator) promptRefresh(shopID string) {
	if c.cache.PromptSuppressed(shopID) {
		return
	}
	c.publish(domain.EventRefreshPrompt, shopID, domain.StepIdle, "Cached data is stale")
}

// triggerFirstSync starts a full background run for a shop whose mirror
// is empty. A first sync is surfaced through progress, not a prompt.
func (c *SyncCoordinator) triggerFirstSync(ctx context.Context, shopID string) {
	if _, err := c.StartSync(ctx, shopID, nil); err != nil && !errors.Is(err, domain.ErrSyncInProgress) {
		c.logger.Warn().Err(err).Str("shopId", shopID).Msg("First sync failed to start")
	}
}

// SyncedOrders returns the shop's mirrored orders. A cached snapshot is
// always served when one exists; past the stale threshold it is served
// as-is with a refresh prompt. A cold cache is materialized from
// storage, and an empty mirror auto-triggers a first sync.
func (c *SyncCoordinator) SyncedOrders(ctx context.Context, shopID string) ([]domain.Order, CacheTier, error) {
	if records, tier, ok := c.cache.Orders(shopID); ok {
		if tier == TierStale {
			c.promptRefresh(shopID)
		}
		return records, tier, nil
	}

	var all []domain.Order
	for offset := 0; ; offset += readPageSize {
		page, err := c.orderRepo.List(ctx, shopID, readPageSize, offset)
		if err != nil {
			return nil, TierStale, fmt.Errorf("failed to list orders: %w", err)
		}
		all = append(all, page...)
		if len(page) < readPageSize {
			break
		}
	}

	c.cache.PutOrders(shopID, all)
	if len(all) == 0 {
		c.triggerFirstSync(ctx, shopID)
	}
	return all, TierFresh, nil
}

// SyncedProducts returns the shop's mirrored products.
func (c *SyncCoordinator) SyncedProducts(ctx context.Context, shopID string) ([]domain.Product, CacheTier, error) {
	if records, tier, ok := c.cache.Products(shopID); ok {
		if tier == TierStale {
			c.promptRefresh(shopID)
		}
		return records, tier, nil
	}

	var all []domain.Product
	for offset := 0; ; offset += readPageSize {
		page, err := c.productRepo.List(ctx, shopID, readPageSize, offset)
		if err != nil {
			return nil, TierStale, fmt.Errorf("failed to list products: %w", err)
		}
		all = append(all, page...)
		if len(page) < readPageSize {
			break
		}
	}

	c.cache.PutProducts(shopID, all)
	if len(all) == 0 {
		c.triggerFirstSync(ctx, shopID)
	}
	return all, TierFresh, nil
}

// SyncedSettlements returns the shop's mirrored settlements.
func (c *SyncCoordinator) SyncedSettlements(ctx context.Context, shopID string) ([]domain.Settlement, CacheTier, error) {
	if records, tier, ok := c.cache.Settlements(shopID); ok {
		if tier == TierStale {
			c.promptRefresh(shopID)
		}
		return records, tier, nil
	}

	var all []domain.Settlement
	for offset := 0; ; offset += readPageSize {
		page, err := c.settlementRepo.List(ctx, shopID, readPageSize, offset)
		if err != nil {
			return nil, TierStale, fmt.Errorf("failed to list settlements: %w", err)
		}
		all = append(all, page...)
		if len(page) < readPageSize {
			break
		}
	}

	c.cache.PutSettlements(shopID, all)
	if len(all) == 0 {
		c.triggerFirstSync(ctx, shopID)
	}
	return all, TierFresh, nil
}

// FinanceSnapshot aggregates mirrored revenue for the shop and applies
// the configured settle-rate estimate to the unsettled gap.
func (c *SyncCoordinator) FinanceSnapshot(ctx context.Context, shopID string) (*domain.FinanceSnapshot, error) {
	if snapshot, tier, ok := c.cache.Finance(shopID); ok && tier == TierFresh {
		return snapshot, nil
	}

	orderRevenue, err := c.orderRepo.SumTotalAmount(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum order revenue: %w", err)
	}
	settled, fees, err := c.settlementRepo.SumAmounts(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum settlements: %w", err)
	}

	snapshot := domain.FinanceSnapshot{
		OrderRevenue:     orderRevenue,
		SettledRevenue:   settled,
		FeeTotal:         fees,
		UnsettledRevenue: domain.EstimateUnsettledRevenue(orderRevenue, settled, c.settleRate),
	}
	c.cache.PutFinance(shopID, snapshot)
	return &snapshot, nil
}
