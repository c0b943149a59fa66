package application

import (
	"context"
	"fmt"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

// ProductSyncer mirrors the shop's active product catalog. Products
// carry no reliable change timestamp upstream, so every run is a full
// walk of the active listing under a tighter page cap; the upsert key
// keeps repeat walks idempotent. After the catalog is stored the
// trailing performance report is merged onto the stored rows.
type ProductSyncer struct {
	tokens      *TokenService
	client      ports.MarketplaceClient
	productRepo ports.ProductRepository
	shopRepo    ports.ShopConnectionRepository
	logger      zerolog.Logger
	now         func() time.Time
}

// NewProductSyncer creates a new product synchronizer
func NewProductSyncer(
	tokens *TokenService,
	client ports.MarketplaceClient,
	productRepo ports.ProductRepository,
	shopRepo ports.ShopConnectionRepository,
	logger zerolog.Logger,
) *ProductSyncer {
	return &ProductSyncer{
		tokens:      tokens,
		client:      client,
		productRepo: productRepo,
		shopRepo:    shopRepo,
		logger:      logger,
		now:         time.Now,
	}
}

// Resource identifies the dataset this synchronizer owns.
func (s *ProductSyncer) Resource() domain.ResourceType {
	return domain.ResourceProducts
}

// Sync walks the active catalog, enriches listings that came back
// without images, upserts the rows, then merges the performance report.
// A performance failure does not fail the run; the catalog itself is
// already stored and the report can be retried on the next sweep.
func (s *ProductSyncer) Sync(ctx context.Context, shop *domain.ShopConnection, isFirstSync bool) (domain.SyncStats, error) {
	stats := domain.SyncStats{IsIncremental: !isFirstSync}

	products, err := s.fetchCatalog(ctx, shop, &stats)
	if err != nil {
		return stats, err
	}

	products = dedupeProducts(products)
	s.enrichImages(ctx, shop, products)

	upserted, err := s.persist(ctx, shop, products)
	stats.Upserted = upserted
	if err != nil {
		return stats, err
	}

	if err := s.shopRepo.StampSyncedAt(ctx, shop.ExternalShopID, domain.ResourceProducts, s.now()); err != nil {
		return stats, fmt.Errorf("failed to stamp products synced at: %w", err)
	}

	if err := s.MergePerformance(ctx, shop); err != nil {
		s.logger.Warn().
			Err(err).
			Str("shopId", shop.ID).
			Msg("Performance report merge failed, product rows are stored without fresh analytics")
	}

	s.logger.Info().
		Str("shopId", shop.ID).
		Int("fetched", stats.Fetched).
		Int("upserted", stats.Upserted).
		Msg("Product sync completed")

	return stats, nil
}

// MergePerformance fetches the trailing performance report and merges
// it onto stored product rows, then stamps the performance dataset.
// Rows the report names but the catalog does not are skipped silently
// by the merge (matched-only write, no upsert).
func (s *ProductSyncer) MergePerformance(ctx context.Context, shop *domain.ShopConnection) error {
	end := s.now()
	start := end.Add(-performanceWindow)

	var report []domain.ProductPerformance
	err := s.tokens.ExecuteWithRefresh(ctx, shop, func(accessToken string) error {
		var opErr error
		report, opErr = s.client.GetPerformanceReport(ctx, accessToken, shop.ExternalShopID, start, end)
		return opErr
	})
	if err != nil {
		return fmt.Errorf("failed to fetch performance report: %w", err)
	}

	rows, err := aliasedRows(ctx, s.shopRepo, shop)
	if err != nil {
		return err
	}

	matched := 0
	for _, row := range rows {
		n, err := s.productRepo.MergePerformance(ctx, row.ID, report)
		if err != nil {
			return fmt.Errorf("failed to merge performance report: %w", err)
		}
		matched += n
	}

	if err := s.shopRepo.StampSyncedAt(ctx, shop.ExternalShopID, domain.ResourcePerformance, s.now()); err != nil {
		return fmt.Errorf("failed to stamp performance synced at: %w", err)
	}

	s.logger.Info().
		Str("shopId", shop.ID).
		Int("reported", len(report)).
		Int("matched", matched).
		Msg("Performance report merged")

	return nil
}

func (s *ProductSyncer) fetchCatalog(ctx context.Context, shop *domain.ShopConnection, stats *domain.SyncStats) ([]domain.Product, error) {
	var accumulated []domain.Product
	pageToken := ""

	for page := 0; page < maxProductPages; page++ {
		var resp *ports.ProductPage
		err := s.tokens.ExecuteWithRefresh(ctx, shop, func(accessToken string) error {
			var opErr error
			resp, opErr = s.client.ListProducts(ctx, accessToken, shop.ExternalShopID, pageToken, maxPageSize)
			return opErr
		})
		if err != nil {
			return nil, err
		}

		if len(resp.Products) == 0 {
			break
		}
		stats.Fetched += len(resp.Products)
		accumulated = append(accumulated, resp.Products...)

		if resp.NextPageToken == "" || resp.NextPageToken == pageToken {
			break
		}
		pageToken = resp.NextPageToken
	}

	return accumulated, nil
}

// enrichImages backfills full image sets for listings the search
// endpoint returned without any. Best effort per product; a detail
// fetch failure leaves that listing as the search returned it.
func (s *ProductSyncer) enrichImages(ctx context.Context, shop *domain.ShopConnection, products []domain.Product) {
	for i := range products {
		if len(products[i].Images) > 0 {
			continue
		}
		var detail *domain.Product
		err := s.tokens.ExecuteWithRefresh(ctx, shop, func(accessToken string) error {
			var opErr error
			detail, opErr = s.client.GetProduct(ctx, accessToken, shop.ExternalShopID, products[i].ProductID)
			return opErr
		})
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("shopId", shop.ID).
				Str("productId", products[i].ProductID).
				Msg("Product detail fetch failed, keeping listing without images")
			continue
		}
		if detail != nil && len(detail.Images) > 0 {
			products[i].Images = detail.Images
		}
	}
}

func (s *ProductSyncer) persist(ctx context.Context, shop *domain.ShopConnection, products []domain.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	rows, err := aliasedRows(ctx, s.shopRepo, shop)
	if err != nil {
		return 0, err
	}

	upserted := 0
	for _, batch := range chunk(products, persistBatchSize) {
		for _, row := range rows {
			scoped := make([]domain.Product, len(batch))
			copy(scoped, batch)
			for i := range scoped {
				scoped[i].ShopID = row.ID
			}
			if _, err := s.productRepo.BulkUpsert(ctx, scoped); err != nil {
				return upserted, fmt.Errorf("failed to persist product batch: %w", err)
			}
		}
		upserted += len(batch)
	}

	return upserted, nil
}

func dedupeProducts(products []domain.Product) []domain.Product {
	seen := make(map[string]struct{}, len(products))
	result := products[:0]
	for _, product := range products {
		if _, dup := seen[product.ProductID]; dup {
			continue
		}
		seen[product.ProductID] = struct{}{}
		result = append(result, product)
	}
	return result
}
