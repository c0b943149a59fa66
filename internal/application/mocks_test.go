package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/ports"
)

// Mock shop connection repository with fan-out semantics
type mockShopRepo struct {
	mu               sync.Mutex
	shops            map[string]*domain.ShopConnection
	updateTokenCalls int
	stamped          map[domain.ResourceType]time.Time
	stampErr         error
}

func newMockShopRepo(shops ...*domain.ShopConnection) *mockShopRepo {
	repo := &mockShopRepo{
		shops:   make(map[string]*domain.ShopConnection),
		stamped: make(map[domain.ResourceType]time.Time),
	}
	for _, s := range shops {
		repo.shops[s.ID] = s
	}
	return repo
}

func (m *mockShopRepo) Create(ctx context.Context, conn *domain.ShopConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn.ID == "" {
		conn.ID = fmt.Sprintf("shop-%d", len(m.shops)+1)
	}
	m.shops[conn.ID] = conn
	return nil
}

func (m *mockShopRepo) GetByID(ctx context.Context, id string) (*domain.ShopConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shops[id]
	if !ok {
		return nil, nil
	}
	clone := *s
	return &clone, nil
}

func (m *mockShopRepo) ListAll(ctx context.Context) ([]*domain.ShopConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.shops))
	for id := range m.shops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	all := make([]*domain.ShopConnection, 0, len(ids))
	for _, id := range ids {
		clone := *m.shops[id]
		all = append(all, &clone)
	}
	return all, nil
}

func (m *mockShopRepo) ListByExternalShopID(ctx context.Context, externalShopID string) ([]*domain.ShopConnection, error) {
	all, _ := m.ListAll(ctx)
	var matched []*domain.ShopConnection
	for _, s := range all {
		if s.ExternalShopID == externalShopID {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

func (m *mockShopRepo) UpdateTokens(ctx context.Context, externalShopID, accessToken, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateTokenCalls++
	for _, s := range m.shops {
		if s.ExternalShopID == externalShopID {
			s.AccessToken = accessToken
			s.RefreshToken = refreshToken
			s.TokenExpiresAt = expiresAt
		}
	}
	return nil
}

func (m *mockShopRepo) StampSyncedAt(ctx context.Context, externalShopID string, resource domain.ResourceType, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stampErr != nil {
		return m.stampErr
	}
	m.stamped[resource] = at
	stamp := at
	for _, s := range m.shops {
		if s.ExternalShopID != externalShopID {
			continue
		}
		switch resource {
		case domain.ResourceOrders:
			s.OrdersSyncedAt = &stamp
		case domain.ResourceProducts:
			s.ProductsSyncedAt = &stamp
		case domain.ResourceSettlements:
			s.SettlementsSyncedAt = &stamp
		case domain.ResourcePerformance:
			s.PerformanceSyncedAt = &stamp
		}
	}
	return nil
}

// Mock marketplace client backed by function fields
type mockClient struct {
	refreshFn         func(refreshToken string) (*ports.TokenGrant, error)
	listOrdersFn      func(accessToken string, q ports.PageQuery) (*ports.OrderPage, error)
	listSettlementsFn func(accessToken string, q ports.PageQuery) (*ports.SettlementPage, error)
	listProductsFn    func(accessToken, pageToken string) (*ports.ProductPage, error)
	getProductFn      func(productID string) (*domain.Product, error)
	performanceFn     func(start, end time.Time) ([]domain.ProductPerformance, error)

	refreshCalls int
	orderCalls   int
}

func (m *mockClient) RefreshToken(ctx context.Context, refreshToken string) (*ports.TokenGrant, error) {
	m.refreshCalls++
	if m.refreshFn != nil {
		return m.refreshFn(refreshToken)
	}
	return &ports.TokenGrant{
		AccessToken:  "access-new",
		RefreshToken: "refresh-new",
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}, nil
}

func (m *mockClient) ListOrders(ctx context.Context, accessToken, externalShopID string, q ports.PageQuery) (*ports.OrderPage, error) {
	m.orderCalls++
	if m.listOrdersFn != nil {
		return m.listOrdersFn(accessToken, q)
	}
	return &ports.OrderPage{}, nil
}

func (m *mockClient) ListSettlements(ctx context.Context, accessToken, externalShopID string, q ports.PageQuery) (*ports.SettlementPage, error) {
	if m.listSettlementsFn != nil {
		return m.listSettlementsFn(accessToken, q)
	}
	return &ports.SettlementPage{}, nil
}

func (m *mockClient) ListProducts(ctx context.Context, accessToken, externalShopID, pageToken string, pageSize int) (*ports.ProductPage, error) {
	if m.listProductsFn != nil {
		return m.listProductsFn(accessToken, pageToken)
	}
	return &ports.ProductPage{}, nil
}

func (m *mockClient) GetProduct(ctx context.Context, accessToken, externalShopID, productID string) (*domain.Product, error) {
	if m.getProductFn != nil {
		return m.getProductFn(productID)
	}
	return nil, nil
}

func (m *mockClient) GetPerformanceReport(ctx context.Context, accessToken, externalShopID string, start, end time.Time) ([]domain.ProductPerformance, error) {
	if m.performanceFn != nil {
		return m.performanceFn(start, end)
	}
	return nil, nil
}

// Mock order repository keyed by (shop id, order id)
type mockOrderRepo struct {
	mu      sync.Mutex
	records map[string]domain.Order
	bulkErr error
	listFn  func(shopID string, limit, offset int) ([]domain.Order, error)
	sum     float64
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{records: make(map[string]domain.Order)}
}

func orderKey(shopID, orderID string) string { return shopID + "/" + orderID }

func (m *mockOrderRepo) BulkUpsert(ctx context.Context, orders []domain.Order) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bulkErr != nil {
		return 0, m.bulkErr
	}
	for _, o := range orders {
		m.records[orderKey(o.ShopID, o.OrderID)] = o
	}
	return len(orders), nil
}

func (m *mockOrderRepo) ListOrderIDs(ctx context.Context, shopID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]struct{})
	for _, o := range m.records {
		if o.ShopID == shopID {
			ids[o.OrderID] = struct{}{}
		}
	}
	return ids, nil
}

func (m *mockOrderRepo) MaxCreatedTime(ctx context.Context, shopID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max *time.Time
	for _, o := range m.records {
		if o.ShopID != shopID {
			continue
		}
		t := o.CreatedTime
		if max == nil || t.After(*max) {
			max = &t
		}
	}
	return max, nil
}

func (m *mockOrderRepo) CountByShop(ctx context.Context, shopID string) (int64, error) {
	ids, _ := m.ListOrderIDs(ctx, shopID)
	return int64(len(ids)), nil
}

func (m *mockOrderRepo) List(ctx context.Context, shopID string, limit, offset int) ([]domain.Order, error) {
	if m.listFn != nil {
		return m.listFn(shopID, limit, offset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Order
	for _, o := range m.records {
		if o.ShopID == shopID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OrderID < all[j].OrderID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockOrderRepo) SumTotalAmount(ctx context.Context, shopID string) (float64, error) {
	if m.sum != 0 {
		return m.sum, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, o := range m.records {
		if o.ShopID == shopID {
			total += o.TotalAmount
		}
	}
	return total, nil
}

// Mock product repository
type mockProductRepo struct {
	mu      sync.Mutex
	records map[string]domain.Product
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{records: make(map[string]domain.Product)}
}

func (m *mockProductRepo) BulkUpsert(ctx context.Context, products []domain.Product) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range products {
		key := p.ShopID + "/" + p.ProductID
		if existing, ok := m.records[key]; ok {
			// Listing refresh must not clobber merged analytics.
			p.ClickThroughRate = existing.ClickThroughRate
			p.GMV = existing.GMV
			p.OrderCount = existing.OrderCount
			p.UnitsSold = existing.UnitsSold
		}
		m.records[key] = p
	}
	return len(products), nil
}

func (m *mockProductRepo) MergePerformance(ctx context.Context, shopID string, reports []domain.ProductPerformance) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := 0
	for _, r := range reports {
		key := shopID + "/" + r.ProductID
		p, ok := m.records[key]
		if !ok {
			continue
		}
		p.ClickThroughRate = r.ClickThroughRate
		p.GMV = r.GMV
		p.OrderCount = r.OrderCount
		p.UnitsSold = r.UnitsSold
		m.records[key] = p
		matched++
	}
	return matched, nil
}

func (m *mockProductRepo) CountByShop(ctx context.Context, shopID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.records {
		if p.ShopID == shopID {
			n++
		}
	}
	return n, nil
}

func (m *mockProductRepo) List(ctx context.Context, shopID string, limit, offset int) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Product
	for _, p := range m.records {
		if p.ShopID == shopID {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ProductID < all[j].ProductID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Mock settlement repository
type mockSettlementRepo struct {
	mu      sync.Mutex
	records map[string]domain.Settlement
}

func newMockSettlementRepo() *mockSettlementRepo {
	return &mockSettlementRepo{records: make(map[string]domain.Settlement)}
}

func (m *mockSettlementRepo) BulkUpsert(ctx context.Context, settlements []domain.Settlement) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range settlements {
		m.records[s.ShopID+"/"+s.SettlementID] = s
	}
	return len(settlements), nil
}

func (m *mockSettlementRepo) ListSettlementIDs(ctx context.Context, shopID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]struct{})
	for _, s := range m.records {
		if s.ShopID == shopID {
			ids[s.SettlementID] = struct{}{}
		}
	}
	return ids, nil
}

func (m *mockSettlementRepo) MaxSettledTime(ctx context.Context, shopID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max *time.Time
	for _, s := range m.records {
		if s.ShopID != shopID {
			continue
		}
		t := s.SettledTime
		if max == nil || t.After(*max) {
			max = &t
		}
	}
	return max, nil
}

func (m *mockSettlementRepo) CountByShop(ctx context.Context, shopID string) (int64, error) {
	ids, _ := m.ListSettlementIDs(ctx, shopID)
	return int64(len(ids)), nil
}

func (m *mockSettlementRepo) List(ctx context.Context, shopID string, limit, offset int) ([]domain.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Settlement
	for _, s := range m.records {
		if s.ShopID == shopID {
			all = append(all, s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SettlementID < all[j].SettlementID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockSettlementRepo) SumAmounts(ctx context.Context, shopID string) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var settled, fees float64
	for _, s := range m.records {
		if s.ShopID == shopID {
			settled += s.SettlementAmount
			fees += s.FeeAmount
		}
	}
	return settled, fees, nil
}

// In-memory progress store, keeping every saved snapshot so tests can
// assert on states that were later reset.
type mockProgressStore struct {
	mu       sync.Mutex
	progress map[string]*domain.SyncProgress
	saved    []*domain.SyncProgress
}

func newMockProgressStore() *mockProgressStore {
	return &mockProgressStore{progress: make(map[string]*domain.SyncProgress)}
}

func cloneProgress(p *domain.SyncProgress) *domain.SyncProgress {
	clone := *p
	if p.Stats != nil {
		clone.Stats = make(map[domain.ResourceType]domain.SyncStats, len(p.Stats))
		for k, v := range p.Stats {
			clone.Stats[k] = v
		}
	}
	return &clone
}

func (m *mockProgressStore) Get(ctx context.Context, shopID string) (*domain.SyncProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.progress[shopID]; ok {
		return cloneProgress(p), nil
	}
	return domain.NewIdleProgress(shopID), nil
}

func (m *mockProgressStore) Save(ctx context.Context, progress *domain.SyncProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := cloneProgress(progress)
	m.progress[progress.ShopID] = clone
	m.saved = append(m.saved, clone)
	return nil
}

func (m *mockProgressStore) history() []*domain.SyncProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.SyncProgress(nil), m.saved...)
}

func (m *mockProgressStore) Clear(ctx context.Context, shopID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, shopID)
	return nil
}

// authExpiredError mimics the marketplace adapter's typed error.
type authExpiredError struct{}

func (authExpiredError) Error() string     { return "access token expired" }
func (authExpiredError) AuthExpired() bool { return true }
