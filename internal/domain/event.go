package domain

import "time"

// SyncEventType classifies events published by the client coordinator.
type SyncEventType string

const (
	EventStepChanged   SyncEventType = "step_changed"
	EventRefreshPrompt SyncEventType = "refresh_prompt"
	EventSyncComplete  SyncEventType = "sync_complete"
	EventSyncFailed    SyncEventType = "sync_failed"
)

// SyncEvent is pushed to UI subscribers as a sync run advances or when
// the coordinator wants the user prompted for a refresh.
type SyncEvent struct {
	Type      SyncEventType `json:"type"`
	ShopID    string        `json:"shop_id"`
	Step      SyncStep      `json:"step,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
