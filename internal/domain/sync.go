package domain

import "time"

// ResourceType identifies one synchronizable dataset.
type ResourceType string

const (
	ResourceOrders      ResourceType = "orders"
	ResourceProducts    ResourceType = "products"
	ResourceSettlements ResourceType = "settlements"
	ResourcePerformance ResourceType = "performance"
)

// SyncableResources are the resources a client may request in a sync run,
// in the order the orchestrator visits them.
var SyncableResources = []ResourceType{
	ResourceOrders,
	ResourceProducts,
	ResourceSettlements,
}

// ParseResourceType validates a resource name from the API surface.
func ParseResourceType(s string) (ResourceType, bool) {
	switch ResourceType(s) {
	case ResourceOrders, ResourceProducts, ResourceSettlements, ResourcePerformance:
		return ResourceType(s), true
	}
	return "", false
}

// SyncStats summarizes one synchronizer run.
type SyncStats struct {
	Fetched       int  `json:"fetched"`
	Upserted      int  `json:"upserted"`
	IsIncremental bool `json:"is_incremental"`
}

// SyncResult aggregates an orchestration run across resources. A
// resource appears in Failures instead of Stats when its run failed;
// one resource failing does not abort the others.
type SyncResult struct {
	ShopID      string                     `json:"shop_id"`
	IsFirstSync bool                       `json:"is_first_sync"`
	Stats       map[ResourceType]SyncStats `json:"stats"`
	Failures    map[ResourceType]string    `json:"failures,omitempty"`
}

// SweepStatus is the per-shop outcome of a scheduled sweep.
type SweepStatus string

const (
	SweepSuccess SweepStatus = "success"
	SweepFailure SweepStatus = "failure"
)

// SweepResult records the outcome of one shop within a scheduled sweep.
// Per-shop failures never abort the sweep for other shops.
type SweepResult struct {
	ShopID         string                     `json:"shop_id"`
	ExternalShopID string                     `json:"external_shop_id"`
	Status         SweepStatus                `json:"status"`
	Error          string                     `json:"error,omitempty"`
	Stats          map[ResourceType]SyncStats `json:"stats,omitempty"`
}

// SyncStep is the coordinator's position in the progress state machine.
type SyncStep string

const (
	StepIdle        SyncStep = "idle"
	StepOrders      SyncStep = "orders"
	StepProducts    SyncStep = "products"
	StepSettlements SyncStep = "settlements"
	StepComplete    SyncStep = "complete"
)

// SyncProgress is the ephemeral, client-facing view of a running sync.
// Stats accumulates the per-resource outcome as steps finish so the
// full run result is retrievable through the progress endpoint.
type SyncProgress struct {
	ShopID      string   `json:"shop_id"`
	Step        SyncStep `json:"step"`
	Active      bool     `json:"active"`
	Cancelled   bool     `json:"cancelled"`
	IsFirstSync bool     `json:"is_first_sync"`
	Message     string   `json:"message"`

	OrdersDone      bool `json:"orders_done"`
	ProductsDone    bool `json:"products_done"`
	SettlementsDone bool `json:"settlements_done"`

	OrdersFetched      int `json:"orders_fetched"`
	ProductsFetched    int `json:"products_fetched"`
	SettlementsFetched int `json:"settlements_fetched"`

	Stats map[ResourceType]SyncStats `json:"stats,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewIdleProgress returns the reset progress state for a shop.
func NewIdleProgress(shopID string) *SyncProgress {
	return &SyncProgress{
		ShopID:    shopID,
		Step:      StepIdle,
		UpdatedAt: time.Now(),
	}
}
