package ports

import (
	"context"
	"time"

	"shop-mirror-sync-layer/internal/domain"
)

// TokenGrant is the result of a refresh-token exchange.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// PageQuery selects a time window and a position within paginated,
// newest-first upstream listings. A zero EndTime means no forward limit.
type PageQuery struct {
	StartTime time.Time
	EndTime   time.Time
	PageToken string
	PageSize  int
}

// OrderPage is one page of normalized orders. An empty NextPageToken, or
// one equal to the token that produced the page, signals the last page.
type OrderPage struct {
	Orders        []domain.Order
	NextPageToken string
}

// SettlementPage is one page of normalized settlements.
type SettlementPage struct {
	Settlements   []domain.Settlement
	NextPageToken string
}

// ProductPage is one page of normalized product listings.
type ProductPage struct {
	Products      []domain.Product
	NextPageToken string
}

// MarketplaceClient defines the upstream platform API operations the
// engine needs. Implementations normalize the platform's heterogeneous
// response envelopes into canonical domain records before returning, and
// surface the platform's auth-expired error code as a typed error.
type MarketplaceClient interface {
	// RefreshToken exchanges a refresh token for a new token pair.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenGrant, error)

	// ListOrders returns one page of orders in the window, newest first.
	ListOrders(ctx context.Context, accessToken, externalShopID string, q PageQuery) (*OrderPage, error)

	// ListSettlements returns one page of settlements in the window, newest first.
	ListSettlements(ctx context.Context, accessToken, externalShopID string, q PageQuery) (*SettlementPage, error)

	// ListProducts returns one page of active product listings.
	ListProducts(ctx context.Context, accessToken, externalShopID, pageToken string, pageSize int) (*ProductPage, error)

	// GetProduct returns one product with its full image set.
	GetProduct(ctx context.Context, accessToken, externalShopID, productID string) (*domain.Product, error)

	// GetPerformanceReport returns product analytics for the window.
	GetPerformanceReport(ctx context.Context, accessToken, externalShopID string, start, end time.Time) ([]domain.ProductPerformance, error)
}
