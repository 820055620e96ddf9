package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/httpx"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/credentials"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/gcal"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/reconcile"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/webhook"
)

type Syncer interface {
	Sync(ctx context.Context, tenantID string) (reconcile.SyncResult, error)
}

// Grants stores and inspects the tenant's OAuth grant.
type Grants interface {
	Put(ctx context.Context, tenantID string, rec credentials.TokenRecord) error
	Status(ctx context.Context, tenantID string) (credentials.ConnectionStatus, error)
}

type CalendarSettings interface {
	SetCalendar(ctx context.Context, tenantID, calendarID, timezone string) error
}

type Channels interface {
	Register(ctx context.Context, tenantID string) (webhook.Channel, error)
	LatestChannel(ctx context.Context, tenantID string) (webhook.Channel, bool, error)
}

type CalendarDeps struct {
	Syncer   Syncer
	Grants   Grants
	Settings CalendarSettings
	Channels Channels
}

type CalendarHandler struct {
	deps   CalendarDeps
	logger *slog.Logger
}

func NewCalendarHandler(deps CalendarDeps, logger *slog.Logger) *CalendarHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarHandler{deps: deps, logger: logger}
}

func (h *CalendarHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("PUT /api/v1/calendar/connection", wrap(http.HandlerFunc(h.Connect)))
	mux.Handle("GET /api/v1/calendar/status", wrap(http.HandlerFunc(h.Status)))
	mux.Handle("POST /api/v1/calendar/sync", wrap(http.HandlerFunc(h.Sync)))
	mux.Handle("POST /api/v1/calendar/watch", wrap(http.HandlerFunc(h.Watch)))
}

type connectRequest struct {
	CalendarID string                   `json:"calendar_id"`
	Timezone   string                   `json:"timezone"`
	Token      *credentials.TokenRecord `json:"token"`
}

// Connect stores the grant from the consent flow and the calendar to sync.
func (h *CalendarHandler) Connect(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrReject(w, r)
	if !ok {
		return
	}
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.CalendarID = strings.TrimSpace(req.CalendarID)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.CalendarID == "" || req.Token == nil {
		http.Error(w, "calendar_id and token are required", http.StatusBadRequest)
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			http.Error(w, "invalid timezone", http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	if err := h.deps.Grants.Put(ctx, tenantID, *req.Token); err != nil {
		if errors.Is(err, credentials.ErrMissingFields) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("gcal sync: store grant failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "failed to store calendar grant", http.StatusInternalServerError)
		return
	}
	if err := h.deps.Settings.SetCalendar(ctx, tenantID, req.CalendarID, req.Timezone); err != nil {
		if errors.Is(err, model.ErrCalendarTaken) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("gcal sync: set calendar failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "failed to save calendar settings", http.StatusInternalServerError)
		return
	}
	h.Status(w, r)
}

type statusResponse struct {
	credentials.ConnectionStatus
	Channel *channelItem `json:"channel,omitempty"`
}

type channelItem struct {
	ChannelID  string `json:"channel_id"`
	ResourceID string `json:"resource_id"`
	CalendarID string `json:"calendar_id"`
	Expiration string `json:"expiration,omitempty"`
}

func toChannelItem(ch webhook.Channel) *channelItem {
	item := &channelItem{ChannelID: ch.ChannelID, ResourceID: ch.ResourceID, CalendarID: ch.CalendarID}
	if !ch.Expiration.IsZero() {
		item.Expiration = ch.Expiration.UTC().Format(time.RFC3339)
	}
	return item
}

// Status is the "not connected" indicator plus the active push channel.
func (h *CalendarHandler) Status(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrReject(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	st, err := h.deps.Grants.Status(ctx, tenantID)
	if err != nil {
		h.logger.Error("gcal sync: status lookup failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "failed to load calendar status", http.StatusInternalServerError)
		return
	}
	resp := statusResponse{ConnectionStatus: st}
	if ch, found, err := h.deps.Channels.LatestChannel(ctx, tenantID); err != nil {
		h.logger.Warn("gcal sync: channel lookup failed", "err", err, "tenant_id", tenantID)
	} else if found {
		resp.Channel = toChannelItem(ch)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type syncResponse struct {
	Updated  int      `json:"updated"`
	Deleted  int      `json:"deleted"`
	Warnings []string `json:"warnings"`
}

// Sync runs a manual reconciliation. Failures come back as warnings with
// whatever was applied before the failure.
func (h *CalendarHandler) Sync(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrReject(w, r)
	if !ok {
		return
	}
	res, err := h.deps.Syncer.Sync(r.Context(), tenantID)
	resp := syncResponse{Updated: res.Updated, Deleted: res.Deleted, Warnings: []string{}}
	if err != nil {
		h.logger.Warn("gcal sync: manual sync failed", "err", err, "tenant_id", tenantID)
		resp.Warnings = append(resp.Warnings, syncWarning(err))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Watch registers a push channel for the tenant's calendar.
func (h *CalendarHandler) Watch(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrReject(w, r)
	if !ok {
		return
	}
	ch, err := h.deps.Channels.Register(r.Context(), tenantID)
	if errors.Is(err, gcal.ErrNotConnected) {
		http.Error(w, "calendar not connected", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("gcal sync: watch registration failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "failed to register watch channel", http.StatusBadGateway)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toChannelItem(ch))
}
