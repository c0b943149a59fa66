package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/infrastructure/metrics"
	"shop-mirror-sync-layer/internal/infrastructure/pubsub"
	"shop-mirror-sync-layer/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type coordinatorFixture struct {
	coordinator *SyncCoordinator
	shopRepo    *mockShopRepo
	orders      *mockOrderRepo
	products    *mockProductRepo
	settlements *mockSettlementRepo
	progress    *mockProgressStore
	events      *pubsub.SyncEventPubSub
}

func newCoordinatorFixture(client *mockClient, shops ...*domain.ShopConnection) *coordinatorFixture {
	shopRepo := newMockShopRepo(shops...)
	orders := newMockOrderRepo()
	products := newMockProductRepo()
	settlements := newMockSettlementRepo()
	progress := newMockProgressStore()
	events := pubsub.NewSyncEventPubSub(zerolog.Nop())

	tokens := newTestTokenService(shopRepo, client)
	orchestrator := NewSyncOrchestrator(
		shopRepo,
		orders,
		tokens,
		[]Synchronizer{
			NewOrderSyncer(tokens, client, orders, shopRepo, zerolog.Nop()),
			NewProductSyncer(tokens, client, products, shopRepo, zerolog.Nop()),
			NewSettlementSyncer(tokens, client, settlements, shopRepo, zerolog.Nop()),
		},
		metrics.New(prometheus.NewRegistry()),
		zerolog.Nop(),
	)

	coordinator := NewSyncCoordinator(
		orchestrator,
		NewStalenessEvaluator(shopRepo),
		shopRepo,
		orders,
		products,
		settlements,
		progress,
		NewCacheStore(),
		events,
		0.85,
		zerolog.Nop(),
	)
	coordinator.completeDelay = 0

	return &coordinatorFixture{
		coordinator: coordinator,
		shopRepo:    shopRepo,
		orders:      orders,
		products:    products,
		settlements: settlements,
		progress:    progress,
		events:      events,
	}
}

func TestSyncCoordinator_StartSync_CompletesAndResets(t *testing.T) {
	shop := testShop(2 * time.Hour)
	client := &mockClient{
		listOrdersFn: func(_ string, q ports.PageQuery) (*ports.OrderPage, error) {
			if q.PageToken != "" {
				return &ports.OrderPage{}, nil
			}
			return &ports.OrderPage{Orders: []domain.Order{makeOrder("o1", time.Now())}}, nil
		},
	}
	f := newCoordinatorFixture(client, shop)

	sub := f.events.Subscribe(context.Background(), &pubsub.SyncEventFilter{ShopID: shop.ID})

	errCh, err := f.coordinator.StartSync(context.Background(), shop.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case runErr := <-errCh:
		if runErr != nil {
			t.Fatalf("expected clean run, got %v", runErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sync run did not finish")
	}

	count, _ := f.orders.CountByShop(context.Background(), shop.ID)
	if count != 1 {
		t.Errorf("expected order persisted, got %d", count)
	}

	progress, _ := f.coordinator.Progress(context.Background(), shop.ID)
	if progress.Step != domain.StepIdle || progress.Active {
		t.Errorf("expected progress reset to idle, got %+v", progress)
	}

	var sawComplete bool
	for !sawComplete {
		select {
		case ev := <-sub.Events:
			if ev.Type == domain.EventSyncComplete {
				sawComplete = true
			}
		case <-time.After(time.Second):
			t.Fatal("expected a sync_complete event")
		}
	}

	// The terminal progress entry carries the full run result.
	var terminal *domain.SyncProgress
	for _, p := range f.progress.history() {
		if p.Step == domain.StepComplete {
			terminal = p
		}
	}
	if terminal == nil {
		t.Fatal("expected a complete progress entry before the reset")
	}
	if !terminal.IsFirstSync {
		t.Error("expected the run to be reported as a first sync")
	}
	stats, ok := terminal.Stats[domain.ResourceOrders]
	if !ok {
		t.Fatal("expected order stats on the terminal progress entry")
	}
	if stats.Fetched != 1 || stats.Upserted != 1 || stats.IsIncremental {
		t.Errorf("unexpected order stats: %+v", stats)
	}
}

func TestSyncCoordinator_StartSync_ResourceSubsetSkipsProducts(t *testing.T) {
	shop := testShop(2 * time.Hour)

	productCalls := 0
	client := &mockClient{
		listOrdersFn: func(_ string, q ports.PageQuery) (*ports.OrderPage, error) {
			if q.PageToken != "" {
				return &ports.OrderPage{}, nil
			}
			return &ports.OrderPage{Orders: []domain.Order{makeOrder("o1", time.Now())}}, nil
		},
		listProductsFn: func(_, _ string) (*ports.ProductPage, error) {
			productCalls++
			return &ports.ProductPage{}, nil
		},
	}
	f := newCoordinatorFixture(client, shop)

	errCh, err := f.coordinator.StartSync(context.Background(), shop.ID, []domain.ResourceType{
		domain.ResourceSettlements,
		domain.ResourceOrders,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case runErr := <-errCh:
		if runErr != nil {
			t.Fatalf("expected clean run, got %v", runErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sync run did not finish")
	}

	if productCalls != 0 {
		t.Errorf("expected products skipped, got %d fetches", productCalls)
	}

	stored, _ := f.shopRepo.GetByID(context.Background(), shop.ID)
	if stored.OrdersSyncedAt == nil || stored.SettlementsSyncedAt == nil {
		t.Error("expected requested resources stamped")
	}
	if stored.ProductsSyncedAt != nil {
		t.Error("expected the skipped resource to stay unstamped")
	}
}

func TestSyncCoordinator_StartSync_RejectsConcurrentRun(t *testing.T) {
	shop := testShop(2 * time.Hour)
	f := newCoordinatorFixture(&mockClient{}, shop)

	active := domain.NewIdleProgress(shop.ID)
	active.Active = true
	active.Step = domain.StepOrders
	f.progress.Save(context.Background(), active)

	if _, err := f.coordinator.StartSync(context.Background(), shop.ID, nil); !errors.Is(err, domain.ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress, got %v", err)
	}
}

func TestSyncCoordinator_StartSync_UnknownShop(t *testing.T) {
	f := newCoordinatorFixture(&mockClient{})

	if _, err := f.coordinator.StartSync(context.Background(), "missing", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncCoordinator_CancelMidRun(t *testing.T) {
	shop := testShop(2 * time.Hour)

	var f *coordinatorFixture
	productCalls := 0
	client := &mockClient{
		listOrdersFn: func(_ string, q ports.PageQuery) (*ports.OrderPage, error) {
			if q.PageToken != "" {
				return &ports.OrderPage{}, nil
			}
			// Cancellation lands while orders are in flight; the orders
			// step finishes, later steps never start.
			if err := f.coordinator.CancelSync(context.Background(), shop.ID); err != nil {
				t.Errorf("cancel failed: %v", err)
			}
			return &ports.OrderPage{Orders: []domain.Order{makeOrder("o1", time.Now())}}, nil
		},
		listProductsFn: func(_, _ string) (*ports.ProductPage, error) {
			productCalls++
			return &ports.ProductPage{}, nil
		},
	}
	f = newCoordinatorFixture(client, shop)

	errCh, err := f.coordinator.StartSync(context.Background(), shop.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case runErr := <-errCh:
		if !errors.Is(runErr, domain.ErrSyncCancelled) {
			t.Fatalf("expected ErrSyncCancelled, got %v", runErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sync run did not finish")
	}

	count, _ := f.orders.CountByShop(context.Background(), shop.ID)
	if count != 1 {
		t.Errorf("expected in-flight orders step to persist its records, got %d", count)
	}
	if productCalls != 0 {
		t.Error("expected products step never to start after cancellation")
	}

	// The cancelled entry is shown briefly, then the state machine
	// resets to idle just as it does after completion.
	var sawCancelled bool
	for _, p := range f.progress.history() {
		if p.Cancelled {
			sawCancelled = true
		}
	}
	if !sawCancelled {
		t.Error("expected a cancelled progress entry before the reset")
	}

	progress, _ := f.coordinator.Progress(context.Background(), shop.ID)
	if progress.Step != domain.StepIdle || progress.Active || progress.Cancelled {
		t.Errorf("expected progress reset to idle after cancellation, got %+v", progress)
	}
}

func TestSyncCoordinator_CancelSync_NoActiveRun(t *testing.T) {
	shop := testShop(2 * time.Hour)
	f := newCoordinatorFixture(&mockClient{}, shop)

	if err := f.coordinator.CancelSync(context.Background(), shop.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound when nothing is running, got %v", err)
	}
}

func TestSyncCoordinator_SyncedOrders_ServedFromCache(t *testing.T) {
	shop := testShop(2 * time.Hour)
	f := newCoordinatorFixture(&mockClient{}, shop)

	listCalls := 0
	f.orders.listFn = func(shopID string, limit, offset int) ([]domain.Order, error) {
		listCalls++
		if offset > 0 {
			return nil, nil
		}
		o := makeOrder("o1", time.Now())
		o.ShopID = shopID
		return []domain.Order{o}, nil
	}

	first, tier, err := f.coordinator.SyncedOrders(context.Background(), shop.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 1 || tier != TierFresh {
		t.Errorf("expected 1 fresh order, got %d (%s)", len(first), tier)
	}
	if listCalls != 1 {
		t.Errorf("expected 1 storage read, got %d", listCalls)
	}

	// Second read must be answered entirely from the in-memory cache.
	second, tier, err := f.coordinator.SyncedOrders(context.Background(), shop.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 1 || tier != TierFresh {
		t.Errorf("expected cached fresh order, got %d (%s)", len(second), tier)
	}
	if listCalls != 1 {
		t.Errorf("expected no further storage reads, got %d", listCalls)
	}
}

func TestSyncCoordinator_SyncedOrders_EmptyMirrorTriggersFirstSync(t *testing.T) {
	shop := testShop(2 * time.Hour)
	client := &mockClient{
		listOrdersFn: func(_ string, q ports.PageQuery) (*ports.OrderPage, error) {
			if q.PageToken != "" {
				return &ports.OrderPage{}, nil
			}
			return &ports.OrderPage{Orders: []domain.Order{makeOrder("o1", time.Now())}}, nil
		},
	}
	f := newCoordinatorFixture(client, shop)

	records, tier, err := f.coordinator.SyncedOrders(context.Background(), shop.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 || tier != TierFresh {
		t.Errorf("expected an empty fresh snapshot, got %d (%s)", len(records), tier)
	}

	// The empty mirror means a shop that has never synced; a full
	// background run starts without any prompt.
	deadline := time.Now().Add(5 * time.Second)
	for {
		stored, _ := f.shopRepo.GetByID(context.Background(), shop.ID)
		if stored.OrdersSyncedAt != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected the empty mirror to auto-trigger a first sync")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if client.orderCalls == 0 {
		t.Error("expected the triggered run to fetch orders")
	}
}

func TestSyncCoordinator_SyncedOrders_StaleEntryServedWithPrompt(t *testing.T) {
	shop := testShop(2 * time.Hour)
	f := newCoordinatorFixture(&mockClient{}, shop)

	listCalls := 0
	f.orders.listFn = func(string, int, int) ([]domain.Order, error) {
		listCalls++
		return nil, nil
	}

	// Seed a snapshot captured 40 minutes ago.
	captured := time.Now().Add(-40 * time.Minute)
	f.coordinator.cache.now = func() time.Time { return captured }
	f.coordinator.cache.PutOrders(shop.ID, []domain.Order{makeOrder("o1", captured)})
	f.coordinator.cache.now = time.Now

	sub := f.events.Subscribe(context.Background(), &pubsub.SyncEventFilter{
		ShopID: shop.ID,
		Types:  []domain.SyncEventType{domain.EventRefreshPrompt},
	})
	defer sub.Close()

	records, tier, err := f.coordinator.SyncedOrders(context.Background(), shop.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || tier != TierStale {
		t.Errorf("expected the stale snapshot served as-is, got %d (%s)", len(records), tier)
	}
	if listCalls != 0 {
		t.Errorf("expected no storage reads while a snapshot exists, got %d", listCalls)
	}

	select {
	case ev := <-sub.Events:
		if ev.Type != domain.EventRefreshPrompt {
			t.Errorf("expected a refresh prompt, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a refresh prompt for the stale snapshot")
	}

	// A dismissal keeps the prompt quiet while the snapshot still serves.
	f.coordinator.DismissRefreshPrompt(shop.ID)
	if _, tier, err := f.coordinator.SyncedOrders(context.Background(), shop.ID); err != nil || tier != TierStale {
		t.Fatalf("expected the stale snapshot again, got %s (%v)", tier, err)
	}
	select {
	case ev := <-sub.Events:
		t.Errorf("expected dismissal to suppress the prompt, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSyncCoordinator_SyncedOrders_PaginatesUntilShortPage(t *testing.T) {
	shop := testShop(2 * time.Hour)
	f := newCoordinatorFixture(&mockClient{}, shop)

	// One full storage page plus a partial one.
	total := readPageSize + 25
	for i := 0; i < total; i++ {
		o := makeOrder(fmt.Sprintf("o%04d", i), time.Now())
		o.ShopID = shop.ID
		f.orders.records[orderKey(shop.ID, o.OrderID)] = o
	}

	all, _, err := f.coordinator.SyncedOrders(context.Background(), shop.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != total {
		t.Errorf("expected %d orders materialized, got %d", total, len(all))
	}
}

func TestSyncCoordinator_CacheStatus_PromptAndDismissal(t *testing.T) {
	stale := time.Now().Add(-45 * time.Minute)
	shop := testShop(2 * time.Hour)
	shop.OrdersSyncedAt = &stale
	shop.ProductsSyncedAt = &stale
	shop.SettlementsSyncedAt = &stale
	f := newCoordinatorFixture(&mockClient{}, shop)

	status, err := f.coordinator.CacheStatus(context.Background(), shop.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.ShouldPromptUser {
		t.Fatal("expected stale mirror to prompt")
	}

	f.coordinator.DismissRefreshPrompt(shop.ID)

	status, err = f.coordinator.CacheStatus(context.Background(), shop.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.ShouldPromptUser {
		t.Error("expected dismissal to suppress the prompt during cooldown")
	}
}

func TestSyncCoordinator_CacheStatus_TriggersAutoSync(t *testing.T) {
	ancient := time.Now().Add(-48 * time.Hour)
	shop := testShop(2 * time.Hour)
	shop.OrdersSyncedAt = &ancient
	shop.ProductsSyncedAt = &ancient
	shop.SettlementsSyncedAt = &ancient
	f := newCoordinatorFixture(&mockClient{}, shop)

	status, err := f.coordinator.CacheStatus(context.Background(), shop.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.ShouldAutoSync {
		t.Fatal("expected auto-sync flag for a day-old mirror")
	}

	// The background run refreshes the stamps shortly.
	deadline := time.Now().Add(5 * time.Second)
	for {
		stored, _ := f.shopRepo.GetByID(context.Background(), shop.ID)
		if stored.OrdersSyncedAt != nil && stored.OrdersSyncedAt.After(ancient) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected auto-sync to run and restamp the shop")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSyncCoordinator_FinanceSnapshot(t *testing.T) {
	shop := testShop(2 * time.Hour)
	f := newCoordinatorFixture(&mockClient{}, shop)

	o := makeOrder("o1", time.Now())
	o.ShopID = shop.ID
	o.TotalAmount = 100
	f.orders.BulkUpsert(context.Background(), []domain.Order{o})

	s := makeSettlement("s1", time.Now())
	s.ShopID = shop.ID
	s.SettlementAmount = 40
	s.FeeAmount = 5
	f.settlements.BulkUpsert(context.Background(), []domain.Settlement{s})

	snapshot, err := f.coordinator.FinanceSnapshot(context.Background(), shop.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snapshot.OrderRevenue != 100 || snapshot.SettledRevenue != 40 || snapshot.FeeTotal != 5 {
		t.Errorf("unexpected aggregates: %+v", snapshot)
	}
	want := (100 - 40) * 0.85
	if math.Abs(snapshot.UnsettledRevenue-want) > 1e-9 {
		t.Errorf("expected unsettled revenue %v, got %v", want, snapshot.UnsettledRevenue)
	}
}
