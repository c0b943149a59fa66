package application

import (
	"context"
	"fmt"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

// OrderSyncer mirrors marketplace orders into local storage.
type OrderSyncer struct {
	tokens    *TokenService
	client    ports.MarketplaceClient
	orderRepo ports.OrderRepository
	shopRepo  ports.ShopConnectionRepository
	logger    zerolog.Logger
	now       func() time.Time
}

// NewOrderSyncer creates a new order synchronizer
func NewOrderSyncer(
	tokens *TokenService,
	client ports.MarketplaceClient,
	orderRepo ports.OrderRepository,
	shopRepo ports.ShopConnectionRepository,
	logger zerolog.Logger,
) *OrderSyncer {
	return &OrderSyncer{
		tokens:    tokens,
		client:    client,
		orderRepo: orderRepo,
		shopRepo:  shopRepo,
		logger:    logger,
		now:       time.Now,
	}
}

// Resource identifies the dataset this synchronizer owns.
func (s *OrderSyncer) Resource() domain.ResourceType {
	return domain.ResourceOrders
}

// Sync fetches orders for the shop and upserts them idempotently. A
// first sync walks a fixed historical lookback; an incremental sync
// starts just past the newest stored order and stops paginating as soon
// as a page contains a record that is already stored (newest-first
// ordering guarantees everything older is stored too).
func (s *OrderSyncer) Sync(ctx context.Context, shop *domain.ShopConnection, isFirstSync bool) (domain.SyncStats, error) {
	stats := domain.SyncStats{IsIncremental: !isFirstSync}
	now := s.now()

	window, err := s.fetchWindow(ctx, shop, isFirstSync, now)
	if err != nil {
		return stats, err
	}

	var known map[string]struct{}
	if !isFirstSync {
		known, err = s.orderRepo.ListOrderIDs(ctx, shop.ID)
		if err != nil {
			return stats, fmt.Errorf("failed to load stored order keys: %w", err)
		}
	}

	var accumulated []domain.Order
	pageToken := ""

	for page := 0; page < maxPages; page++ {
		var resp *ports.OrderPage
		err := s.tokens.ExecuteWithRefresh(ctx, shop, func(accessToken string) error {
			var opErr error
			resp, opErr = s.client.ListOrders(ctx, accessToken, shop.ExternalShopID, ports.PageQuery{
				StartTime: window,
				PageToken: pageToken,
				PageSize:  maxPageSize,
			})
			return opErr
		})
		if err != nil {
			return stats, err
		}

		if len(resp.Orders) == 0 {
			break
		}
		stats.Fetched += len(resp.Orders)

		sawKnown := false
		for _, order := range resp.Orders {
			if known != nil {
				if _, exists := known[order.OrderID]; exists {
					sawKnown = true
					continue
				}
			}
			accumulated = append(accumulated, order)
		}

		// Once any record on a page is already stored, every older
		// record is stored as well; stop after this page.
		if sawKnown {
			break
		}
		if resp.NextPageToken == "" || resp.NextPageToken == pageToken {
			break
		}
		pageToken = resp.NextPageToken
	}

	accumulated = dedupeOrders(accumulated)

	upserted, err := s.persist(ctx, shop, accumulated)
	stats.Upserted = upserted
	if err != nil {
		return stats, err
	}

	if err := s.shopRepo.StampSyncedAt(ctx, shop.ExternalShopID, domain.ResourceOrders, s.now()); err != nil {
		return stats, fmt.Errorf("failed to stamp orders synced at: %w", err)
	}

	s.logger.Info().
		Str("shopId", shop.ID).
		Int("fetched", stats.Fetched).
		Int("upserted", stats.Upserted).
		Bool("incremental", stats.IsIncremental).
		Msg("Order sync completed")

	return stats, nil
}

// fetchWindow computes the start of the order fetch window.
func (s *OrderSyncer) fetchWindow(ctx context.Context, shop *domain.ShopConnection, isFirstSync bool, now time.Time) (time.Time, error) {
	if isFirstSync {
		return now.Add(-orderFirstSyncLookback), nil
	}

	maxStored, err := s.orderRepo.MaxCreatedTime(ctx, shop.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get max stored order time: %w", err)
	}
	if maxStored == nil {
		return now.Add(-orderIncrementalFallback), nil
	}

	// One unit past the boundary record so it is not re-fetched.
	return maxStored.Add(time.Second), nil
}

// persist writes records in fixed-size batches, upserting into every
// internal row aliasing the shop's external id. A batch failure aborts
// the run; batches already written stay valid because the upsert key is
// idempotent.
func (s *OrderSyncer) persist(ctx context.Context, shop *domain.ShopConnection, orders []domain.Order) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}

	rows, err := aliasedRows(ctx, s.shopRepo, shop)
	if err != nil {
		return 0, err
	}

	upserted := 0
	for _, batch := range chunk(orders, persistBatchSize) {
		for _, row := range rows {
			scoped := make([]domain.Order, len(batch))
			copy(scoped, batch)
			for i := range scoped {
				scoped[i].ShopID = row.ID
			}
			if _, err := s.orderRepo.BulkUpsert(ctx, scoped); err != nil {
				return upserted, fmt.Errorf("failed to persist order batch: %w", err)
			}
		}
		upserted += len(batch)
	}

	return upserted, nil
}

func dedupeOrders(orders []domain.Order) []domain.Order {
	seen := make(map[string]struct{}, len(orders))
	result := orders[:0]
	for _, order := range orders {
		if _, dup := seen[order.OrderID]; dup {
			continue
		}
		seen[order.OrderID] = struct{}{}
		result = append(result, order)
	}
	return result
}

// aliasedRows resolves every internal row tied to the shop's external
// id; the requesting row alone when the lookup returns nothing.
func aliasedRows(ctx context.Context, shopRepo ports.ShopConnectionRepository, shop *domain.ShopConnection) ([]*domain.ShopConnection, error) {
	rows, err := shopRepo.ListByExternalShopID(ctx, shop.ExternalShopID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve aliased shop rows: %w", err)
	}
	if len(rows) == 0 {
		rows = []*domain.ShopConnection{shop}
	}
	return rows, nil
}
