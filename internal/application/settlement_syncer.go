package application

import (
	"context"
	"fmt"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

// SettlementSyncer mirrors marketplace settlement records into local
// storage. Same pagination and convergence shape as orders, with a
// shorter first-sync lookback because settlement volume grows slowly
// and a longer incremental fallback because settlements can lag their
// orders by many months.
type SettlementSyncer struct {
	tokens         *TokenService
	client         ports.MarketplaceClient
	settlementRepo ports.SettlementRepository
	shopRepo       ports.ShopConnectionRepository
	logger         zerolog.Logger
	now            func() time.Time
}

// NewSettlementSyncer creates a new settlement synchronizer
func NewSettlementSyncer(
	tokens *TokenService,
	client ports.MarketplaceClient,
	settlementRepo ports.SettlementRepository,
	shopRepo ports.ShopConnectionRepository,
	logger zerolog.Logger,
) *SettlementSyncer {
	return &SettlementSyncer{
		tokens:         tokens,
		client:         client,
		settlementRepo: settlementRepo,
		shopRepo:       shopRepo,
		logger:         logger,
		now:            time.Now,
	}
}

// Resource identifies the dataset this synchronizer owns.
func (s *SettlementSyncer) Resource() domain.ResourceType {
	return domain.ResourceSettlements
}

// Sync fetches settlements for the shop and upserts them idempotently.
func (s *SettlementSyncer) Sync(ctx context.Context, shop *domain.ShopConnection, isFirstSync bool) (domain.SyncStats, error) {
	stats := domain.SyncStats{IsIncremental: !isFirstSync}
	now := s.now()

	window, err := s.fetchWindow(ctx, shop, isFirstSync, now)
	if err != nil {
		return stats, err
	}

	var known map[string]struct{}
	if !isFirstSync {
		known, err = s.settlementRepo.ListSettlementIDs(ctx, shop.ID)
		if err != nil {
			return stats, fmt.Errorf("failed to load stored settlement keys: %w", err)
		}
	}

	var accumulated []domain.Settlement
	pageToken := ""

	for page := 0; page < maxPages; page++ {
		var resp *ports.SettlementPage
		err := s.tokens.ExecuteWithRefresh(ctx, shop, func(accessToken string) error {
			var opErr error
			resp, opErr = s.client.ListSettlements(ctx, accessToken, shop.ExternalShopID, ports.PageQuery{
				StartTime: window,
				PageToken: pageToken,
				PageSize:  maxPageSize,
			})
			return opErr
		})
		if err != nil {
			return stats, err
		}

		if len(resp.Settlements) == 0 {
			break
		}
		stats.Fetched += len(resp.Settlements)

		sawKnown := false
		for _, settlement := range resp.Settlements {
			if known != nil {
				if _, exists := known[settlement.SettlementID]; exists {
					sawKnown = true
					continue
				}
			}
			accumulated = append(accumulated, settlement)
		}

		if sawKnown {
			break
		}
		if resp.NextPageToken == "" || resp.NextPageToken == pageToken {
			break
		}
		pageToken = resp.NextPageToken
	}

	accumulated = dedupeSettlements(accumulated)

	upserted, err := s.persist(ctx, shop, accumulated)
	stats.Upserted = upserted
	if err != nil {
		return stats, err
	}

	if err := s.shopRepo.StampSyncedAt(ctx, shop.ExternalShopID, domain.ResourceSettlements, s.now()); err != nil {
		return stats, fmt.Errorf("failed to stamp settlements synced at: %w", err)
	}

	s.logger.Info().
		Str("shopId", shop.ID).
		Int("fetched", stats.Fetched).
		Int("upserted", stats.Upserted).
		Bool("incremental", stats.IsIncremental).
		Msg("Settlement sync completed")

	return stats, nil
}

func (s *SettlementSyncer) fetchWindow(ctx context.Context, shop *domain.ShopConnection, isFirstSync bool, now time.Time) (time.Time, error) {
	if isFirstSync {
		return now.Add(-settlementFirstSyncLookback), nil
	}

	maxStored, err := s.settlementRepo.MaxSettledTime(ctx, shop.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get max stored settlement time: %w", err)
	}
	if maxStored == nil {
		return now.Add(-settlementIncrementalFallback), nil
	}

	return maxStored.Add(time.Second), nil
}

func (s *SettlementSyncer) persist(ctx context.Context, shop *domain.ShopConnection, settlements []domain.Settlement) (int, error) {
	if len(settlements) == 0 {
		return 0, nil
	}

	rows, err := aliasedRows(ctx, s.shopRepo, shop)
	if err != nil {
		return 0, err
	}

	upserted := 0
	for _, batch := range chunk(settlements, persistBatchSize) {
		for _, row := range rows {
			scoped := make([]domain.Settlement, len(batch))
			copy(scoped, batch)
			for i := range scoped {
				scoped[i].ShopID = row.ID
			}
			if _, err := s.settlementRepo.BulkUpsert(ctx, scoped); err != nil {
				return upserted, fmt.Errorf("failed to persist settlement batch: %w", err)
			}
		}
		upserted += len(batch)
	}

	return upserted, nil
}

func dedupeSettlements(settlements []domain.Settlement) []domain.Settlement {
	seen := make(map[string]struct{}, len(settlements))
	result := settlements[:0]
	for _, settlement := range settlements {
		if _, dup := seen[settlement.SettlementID]; dup {
			continue
		}
		seen[settlement.SettlementID] = struct{}{}
		result = append(result, settlement)
	}
	return result
}
