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

// tokenExpiryBuffer is the safety margin before expiry at which a token
// is refreshed proactively, so a sync never starts with a token that
// dies mid-run.
const tokenExpiryBuffer = 5 * time.Minute

// TokenService guarantees a usable access token before any upstream
// call. It refreshes proactively inside the expiry buffer and reactively
// when the platform rejects credentials, persisting every new token pair
// to all rows aliasing the shop's external id.
type TokenService struct {
	shopRepo ports.ShopConnectionRepository
	client   ports.MarketplaceClient
	metrics  *metrics.SyncMetrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewTokenService creates a new token service
func NewTokenService(
	shopRepo ports.ShopConnectionRepository,
	client ports.MarketplaceClient,
	m *metrics.SyncMetrics,
	logger zerolog.Logger,
) *TokenService {
	return &TokenService{
		shopRepo: shopRepo,
		client:   client,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// EnsureValidToken returns an access token that is safe to use. When the
// stored token expires within the buffer, or forceRefresh is set, it
// exchanges the refresh token, persists the new pair, and returns the
// refreshed token. A failed refresh propagates as a hard failure; retry
// policy lives at the call site (ExecuteWithRefresh).
func (s *TokenService) EnsureValidToken(ctx context.Context, shop *domain.ShopConnection, forceRefresh bool) (string, error) {
	if !forceRefresh && time.Until(shop.TokenExpiresAt) >= tokenExpiryBuffer {
		return shop.AccessToken, nil
	}

	grant, err := s.client.RefreshToken(ctx, shop.RefreshToken)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("shopId", shop.ID).
			Str("externalShopId", shop.ExternalShopID).
			Msg("Failed to refresh access token")
		return "", fmt.Errorf("failed to refresh token for shop %s: %w", shop.ExternalShopID, err)
	}

	if err := s.shopRepo.UpdateTokens(ctx, shop.ExternalShopID, grant.AccessToken, grant.RefreshToken, grant.ExpiresAt); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	// Keep the caller's copy current so a later forced refresh in the
	// same run exchanges the new refresh token, not the dead one.
	shop.AccessToken = grant.AccessToken
	shop.RefreshToken = grant.RefreshToken
	shop.TokenExpiresAt = grant.ExpiresAt

	s.metrics.TokenRefreshes.Inc()
	s.logger.Info().
		Str("shopId", shop.ID).
		Str("externalShopId", shop.ExternalShopID).
		Time("expiresAt", grant.ExpiresAt).
		Msg("Access token refreshed")

	return grant.AccessToken, nil
}

// ExecuteWithRefresh runs operation with the current token. If the
// upstream call fails with the platform's expired-credentials code, it
// forces one token refresh and retries the operation exactly once.
// Any other error, or a second failure, propagates unretried. This is
// the engine's single retry policy for token failures.
func (s *TokenService) ExecuteWithRefresh(ctx context.Context, shop *domain.ShopConnection, operation func(accessToken string) error) error {
	token, err := s.EnsureValidToken(ctx, shop, false)
	if err != nil {
		return err
	}

	err = operation(token)
	if err == nil {
		return nil
	}
	if !domain.IsAuthExpired(err) {
		return err
	}

	s.logger.Warn().
		Str("shopId", shop.ID).
		Str("externalShopId", shop.ExternalShopID).
		Msg("Upstream rejected credentials, forcing token refresh and retrying once")

	token, err = s.EnsureValidToken(ctx, shop, true)
	if err != nil {
		return err
	}

	return operation(token)
}
