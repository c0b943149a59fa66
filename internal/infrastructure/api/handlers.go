package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"shop-mirror-sync-layer/internal/application"
	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/infrastructure/pubsub"
	"shop-mirror-sync-layer/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers carries the REST endpoints over the sync engine.
type Handlers struct {
	coordinator  *application.SyncCoordinator
	orchestrator *application.SyncOrchestrator
	shopRepo     ports.ShopConnectionRepository
	events       *pubsub.SyncEventPubSub
	logger       zerolog.Logger
}

// NewHandlers creates the REST handler set
func NewHandlers(
	coordinator *application.SyncCoordinator,
	orchestrator *application.SyncOrchestrator,
	shopRepo ports.ShopConnectionRepository,
	events *pubsub.SyncEventPubSub,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		coordinator:  coordinator,
		orchestrator: orchestrator,
		shopRepo:     shopRepo,
		events:       events,
		logger:       logger,
	}
}

type registerShopRequest struct {
	AccountID      string    `json:"account_id"`
	ExternalShopID string    `json:"external_shop_id"`
	ShopName       string    `json:"shop_name"`
	Region         string    `json:"region"`
	AccessToken    string    `json:"access_token"`
	RefreshToken   string    `json:"refresh_token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

// RegisterShop connects a storefront to the mirror.
func (h *Handlers) RegisterShop(w http.ResponseWriter, r *http.Request) {
	var req registerShopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ExternalShopID == "" || req.AccessToken == "" || req.RefreshToken == "" {
		http.Error(w, "external_shop_id, access_token and refresh_token are required", http.StatusBadRequest)
		return
	}

	conn := &domain.ShopConnection{
		AccountID:      req.AccountID,
		ExternalShopID: req.ExternalShopID,
		ShopName:       req.ShopName,
		Region:         req.Region,
		AccessToken:    req.AccessToken,
		RefreshToken:   req.RefreshToken,
		TokenExpiresAt: req.TokenExpiresAt,
	}

	if err := h.shopRepo.Create(r.Context(), conn); err != nil {
		h.logger.Error().Err(err).Str("externalShopId", req.ExternalShopID).Msg("Failed to register shop")
		http.Error(w, "failed to register shop", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusCreated, conn)
}

type startSyncRequest struct {
	Resources []string `json:"resources"`
}

// StartSync kicks off a background sync run for the shop. An optional
// body narrows the run to a subset of resources; an empty or absent
// body syncs everything.
func (h *Handlers) StartSync(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")

	var req startSyncRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	resources := make([]domain.ResourceType, 0, len(req.Resources))
	for _, name := range req.Resources {
		resource, ok := domain.ParseResourceType(name)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown resource %q", name), http.StatusBadRequest)
			return
		}
		if resource == domain.ResourcePerformance {
			http.Error(w, "performance is refreshed as part of a products sync", http.StatusBadRequest)
			return
		}
		resources = append(resources, resource)
	}

	if _, err := h.coordinator.StartSync(r.Context(), shopID, resources); err != nil {
		h.respondError(w, shopID, err, "Failed to start sync")
		return
	}

	h.respondJSON(w, http.StatusAccepted, map[string]string{
		"shop_id": shopID,
		"status":  "started",
	})
}

// CancelSync requests cancellation of the shop's active sync run.
func (h *Handlers) CancelSync(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")

	if err := h.coordinator.CancelSync(r.Context(), shopID); err != nil {
		h.respondError(w, shopID, err, "Failed to cancel sync")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"shop_id": shopID,
		"status":  "cancelling",
	})
}

// SyncProgress returns the shop's current sync progress.
func (h *Handlers) SyncProgress(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")

	progress, err := h.coordinator.Progress(r.Context(), shopID)
	if err != nil {
		h.respondError(w, shopID, err, "Failed to read sync progress")
		return
	}

	h.respondJSON(w, http.StatusOK, progress)
}

// SyncEvents streams the shop's sync events as server-sent events until
// the client disconnects.
func (h *Handlers) SyncEvents(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.events.Subscribe(r.Context(), &pubsub.SyncEventFilter{ShopID: shopID})
	defer sub.Close()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error().Err(err).Str("shopId", shopID).Msg("Failed to encode sync event")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// CacheStatus returns the staleness classification for the shop.
func (h *Handlers) CacheStatus(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")

	status, err := h.coordinator.CacheStatus(r.Context(), shopID)
	if err != nil {
		h.respondError(w, shopID, err, "Failed to evaluate cache status")
		return
	}

	h.respondJSON(w, http.StatusOK, status)
}

// DismissPrompt records the user declining a refresh prompt.
func (h *Handlers) DismissPrompt(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")
	h.coordinator.DismissRefreshPrompt(shopID)
	h.respondJSON(w, http.StatusOK, map[string]string{
		"shop_id": shopID,
		"status":  "dismissed",
	})
}

// ListOrders returns the shop's mirrored orders.
func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")

	orders, tier, err := h.coordinator.SyncedOrders(r.Context(), shopID)
	if err != nil {
		h.respondError(w, shopID, err, "Failed to list orders")
		return
	}

	w.Header().Set("X-Cache-Tier", string(tier))
	h.respondJSON(w, http.StatusOK, map[string]any{
		"shop_id": shopID,
		"count":   len(orders),
		"orders":  orders,
	})
}

// ListProducts returns the shop's mirrored products.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")

	products, tier, err := h.coordinator.SyncedProducts(r.Context(), shopID)
	if err != nil {
		h.respondError(w, shopID, err, "Failed to list products")
		return
	}

	w.Header().Set("X-Cache-Tier", string(tier))
	h.respondJSON(w, http.StatusOK, map[string]any{
		"shop_id":  shopID,
		"count":    len(products),
		"products": products,
	})
}

// ListSettlements returns the shop's mirrored settlements.
func (h *Handlers) ListSettlements(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")

	settlements, tier, err := h.coordinator.SyncedSettlements(r.Context(), shopID)
	if err != nil {
		h.respondError(w, shopID, err, "Failed to list settlements")
		return
	}

	w.Header().Set("X-Cache-Tier", string(tier))
	h.respondJSON(w, http.StatusOK, map[string]any{
		"shop_id":     shopID,
		"count":       len(settlements),
		"settlements": settlements,
	})
}

// FinanceSnapshot returns the shop's aggregated revenue view.
func (h *Handlers) FinanceSnapshot(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")

	snapshot, err := h.coordinator.FinanceSnapshot(r.Context(), shopID)
	if err != nil {
		h.respondError(w, shopID, err, "Failed to build finance snapshot")
		return
	}

	h.respondJSON(w, http.StatusOK, snapshot)
}

// CronSync sweeps every connected shop. Intended to be called by the
// platform scheduler, not by interactive clients.
func (h *Handlers) CronSync(w http.ResponseWriter, r *http.Request) {
	results, err := h.orchestrator.RunScheduledSync(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Scheduled sync sweep failed")
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"shops":   len(results),
		"results": results,
	})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, shopID string, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrSyncInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error().Err(err).Str("shopId", shopID).Msg(logMsg)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
