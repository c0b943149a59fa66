package application

import (
	"sync"
	"time"

	"shop-mirror-sync-layer/internal/domain"
)

// CacheTier classifies an in-memory snapshot by age.
type CacheTier string

const (
	// TierFresh snapshots are served directly.
	TierFresh CacheTier = "fresh"

	// TierModerate snapshots are served but flagged for refresh.
	TierModerate CacheTier = "moderate"

	// TierStale snapshots are still served, with a refresh prompt.
	TierStale CacheTier = "stale"
)

const (
	freshMaxAge    = 5 * time.Minute
	moderateMaxAge = 30 * time.Minute

	// dismissCooldown suppresses refresh prompts after the user
	// declines one.
	dismissCooldown = 30 * time.Minute
)

type cachedList[T any] struct {
	records   []T
	fetchedAt time.Time
}

// CacheStore is the coordinator's in-process read cache. It keeps the
// last materialized record lists and finance snapshot per shop so that
// repeat reads within the fresh window never touch storage, and it
// remembers prompt dismissals so the user is not nagged.
type CacheStore struct {
	mu          sync.RWMutex
	orders      map[string]cachedList[domain.Order]
	products    map[string]cachedList[domain.Product]
	settlements map[string]cachedList[domain.Settlement]
	finance     map[string]cachedList[domain.FinanceSnapshot]
	dismissedAt map[string]time.Time
	now         func() time.Time
}

// NewCacheStore creates a new cache store
func NewCacheStore() *CacheStore {
	return &CacheStore{
		orders:      make(map[string]cachedList[domain.Order]),
		products:    make(map[string]cachedList[domain.Product]),
		settlements: make(map[string]cachedList[domain.Settlement]),
		finance:     make(map[string]cachedList[domain.FinanceSnapshot]),
		dismissedAt: make(map[string]time.Time),
		now:         time.Now,
	}
}

func (c *CacheStore) tier(fetchedAt time.Time) CacheTier {
	age := c.now().Sub(fetchedAt)
	switch {
	case age < freshMaxAge:
		return TierFresh
	case age < moderateMaxAge:
		return TierModerate
	default:
		return TierStale
	}
}

// Orders returns the cached order list and its tier.
func (c *CacheStore) Orders(shopID string) ([]domain.Order, CacheTier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.orders[shopID]
	if !ok {
		return nil, TierStale, false
	}
	return entry.records, c.tier(entry.fetchedAt), true
}

// PutOrders stores an order list snapshot for a shop.
func (c *CacheStore) PutOrders(shopID string, records []domain.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[shopID] = cachedList[domain.Order]{records: records, fetchedAt: c.now()}
}

// Products returns the cached product list and its tier.
func (c *CacheStore) Products(shopID string) ([]domain.Product, CacheTier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.products[shopID]
	if !ok {
		return nil, TierStale, false
	}
	return entry.records, c.tier(entry.fetchedAt), true
}

// PutProducts stores a product list snapshot for a shop.
func (c *CacheStore) PutProducts(shopID string, records []domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[shopID] = cachedList[domain.Product]{records: records, fetchedAt: c.now()}
}

// Settlements returns the cached settlement list and its tier.
func (c *CacheStore) Settlements(shopID string) ([]domain.Settlement, CacheTier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.settlements[shopID]
	if !ok {
		return nil, TierStale, false
	}
	return entry.records, c.tier(entry.fetchedAt), true
}

// PutSettlements stores a settlement list snapshot for a shop.
func (c *CacheStore) PutSettlements(shopID string, records []domain.Settlement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settlements[shopID] = cachedList[domain.Settlement]{records: records, fetchedAt: c.now()}
}

// Finance returns the cached finance snapshot and its tier.
func (c *CacheStore) Finance(shopID string) (*domain.FinanceSnapshot, CacheTier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.finance[shopID]
	if !ok || len(entry.records) == 0 {
		return nil, TierStale, false
	}
	snapshot := entry.records[0]
	return &snapshot, c.tier(entry.fetchedAt), true
}

// PutFinance stores a finance snapshot for a shop.
func (c *CacheStore) PutFinance(shopID string, snapshot domain.FinanceSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finance[shopID] = cachedList[domain.FinanceSnapshot]{records: []domain.FinanceSnapshot{snapshot}, fetchedAt: c.now()}
}

// Invalidate drops every snapshot for a shop. Called after a sync run
// lands new records so the next read goes back to storage.
func (c *CacheStore) Invalidate(shopID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, shopID)
	delete(c.products, shopID)
	delete(c.settlements, shopID)
	delete(c.finance, shopID)
}

// DismissPrompt records that the user declined a refresh prompt.
func (c *CacheStore) DismissPrompt(shopID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dismissedAt[shopID] = c.now()
}

// PromptSuppressed reports whether a dismissal is still in cooldown.
func (c *CacheStore) PromptSuppressed(shopID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dismissed, ok := c.dismissedAt[shopID]
	if !ok {
		return false
	}
	return c.now().Sub(dismissed) < dismissCooldown
}
