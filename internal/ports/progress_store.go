package ports

import (
	"context"

	"shop-mirror-sync-layer/internal/domain"
)

// ProgressStore holds the ephemeral per-shop sync progress so every API
// instance serves the same view of a running sync. Entries expire on
// their own; Clear resets a shop back to idle immediately.
type ProgressStore interface {
	Get(ctx context.Context, shopID string) (*domain.SyncProgress, error)
	Save(ctx context.Context, progress *domain.SyncProgress) error
	Clear(ctx context.Context, shopID string) error
}
