// Package webhook receives Google Calendar push notifications and registers
// the channels that deliver them.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/httpx"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/gcal"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

const (
	HeaderChannelID     = "X-Goog-Channel-ID"
	HeaderResourceState = "X-Goog-Resource-State"
	HeaderResourceID    = "X-Goog-Resource-ID"
	HeaderChannelToken  = "X-Goog-Channel-Token"
	HeaderMessageNumber = "X-Goog-Message-Number"
)

type TenantLookup interface {
	TenantByCalendarID(ctx context.Context, calendarID string) (model.Tenant, error)
}

type ChangeHandler interface {
	HandleChange(ctx context.Context, tenantID string) error
}

type Handler struct {
	tenants TenantLookup
	changes ChangeHandler
	guard   ReplayGuard
	logger  *slog.Logger
}

// NewHandler wires the listener. guard may be nil to accept every message.
func NewHandler(tenants TenantLookup, changes ChangeHandler, guard ReplayGuard, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{tenants: tenants, changes: changes, guard: guard, logger: logger}
}

// ServeHTTP handles a notification (no JWT auth; the channel token names the
// calendar). Google retries on non-2xx, so only real failures return 5xx.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	channelID := strings.TrimSpace(r.Header.Get(HeaderChannelID))
	state := strings.TrimSpace(r.Header.Get(HeaderResourceState))
	resourceID := strings.TrimSpace(r.Header.Get(HeaderResourceID))
	calendarID := strings.TrimSpace(r.Header.Get(HeaderChannelToken))
	if channelID == "" || state == "" || resourceID == "" || calendarID == "" {
		http.Error(w, "missing required notification headers", http.StatusBadRequest)
		return
	}

	var claim *replayClaim
	if h.guard != nil {
		if raw := strings.TrimSpace(r.Header.Get(HeaderMessageNumber)); raw != "" {
			num, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				http.Error(w, "invalid message number", http.StatusBadRequest)
				return
			}
			key := calendarID + ":" + channelID
			fresh, err := h.guard.Accept(r.Context(), key, num)
			switch {
			case err != nil:
				h.logger.Warn("gcal webhook: replay guard unavailable", "channel_id", channelID, "err", err)
			case !fresh:
				h.logger.Info("gcal webhook: replayed message ignored", "channel_id", channelID, "message_number", num)
				http.Error(w, "replayed message", http.StatusConflict)
				return
			default:
				claim = &replayClaim{key: key, num: num}
			}
		}
	}

	if state == "sync" {
		h.logger.Info("gcal webhook: channel sync acknowledged", "channel_id", channelID, "resource_id", resourceID)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "sync"})
		return
	}

	tenant, err := h.tenants.TenantByCalendarID(r.Context(), calendarID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			h.logger.Warn("gcal webhook: no tenant for calendar", "channel_id", channelID)
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
			return
		}
		h.release(r.Context(), claim)
		http.Error(w, "tenant lookup failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("gcal webhook: change received",
		"tenant_id", tenant.ID,
		"channel_id", channelID,
		"resource_state", state,
	)
	if err := h.changes.HandleChange(r.Context(), tenant.ID); err != nil {
		if errors.Is(err, gcal.ErrNotConnected) {
			h.logger.Warn("gcal webhook: tenant not connected", "tenant_id", tenant.ID, "err", err)
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "not_connected"})
			return
		}
		h.logger.Error("gcal webhook: change handling failed", "tenant_id", tenant.ID, "err", err)
		h.release(r.Context(), claim)
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "processed"})
}

type replayClaim struct {
	key string
	num int64
}

// release forgets a message number whose processing failed so Google's retry
// of it is accepted.
func (h *Handler) release(ctx context.Context, c *replayClaim) {
	if c == nil {
		return
	}
	if err := h.guard.Release(context.WithoutCancel(ctx), c.key, c.num); err != nil {
		h.logger.Warn("gcal webhook: replay guard release failed", "message_number", c.num, "err", err)
	}
}
