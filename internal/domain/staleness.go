package domain

import "time"

// ResourceStaleness classifies one resource's cached mirror.
type ResourceStaleness struct {
	LastSyncedAt   *time.Time `json:"last_synced_at"`
	ShouldPrompt   bool       `json:"should_prompt"`
	ShouldAutoSync bool       `json:"should_auto_sync"`
}

// CacheStatus is the staleness classification for every resource of a
// shop plus the aggregate flags the client layer acts on. Performance is
// tracked per-resource but excluded from the aggregates.
type CacheStatus struct {
	Resources        map[ResourceType]ResourceStaleness `json:"resources"`
	ShouldPromptUser bool                               `json:"should_prompt_user"`
	ShouldAutoSync   bool                               `json:"should_auto_sync"`
}
