// Package handlers exposes the calendar-aware appointment routes and the
// calendar admin routes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/auth"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/httpx"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/completeness"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/gcal"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/outbound"
)

type Appointments interface {
	Get(ctx context.Context, tenantID, id string) (model.Appointment, error)
	Create(ctx context.Context, a model.Appointment) (model.Appointment, error)
	Update(ctx context.Context, a model.Appointment) (model.Appointment, error)
	Delete(ctx context.Context, tenantID, id string) (model.Appointment, error)
	ListReview(ctx context.Context, tenantID string, limit int) ([]model.Appointment, error)
}

type Entities interface {
	GetDog(ctx context.Context, tenantID, dogID string) (model.Dog, error)
	GetGroomer(ctx context.Context, tenantID, groomerID string) (model.Groomer, error)
}

// Pusher mirrors a committed local change onto the tenant's calendar.
type Pusher interface {
	Push(ctx context.Context, tenantID string, appt *model.Appointment, action outbound.Action) (string, error)
}

type AppointmentHandler struct {
	appts    Appointments
	entities Entities
	pusher   Pusher
	logger   *slog.Logger
}

func NewAppointmentHandler(appts Appointments, entities Entities, pusher Pusher, logger *slog.Logger) *AppointmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppointmentHandler{appts: appts, entities: entities, pusher: pusher, logger: logger}
}

// Register mounts the routes on mux. wrap guards every route (auth).
func (h *AppointmentHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("POST /api/v1/appointments", wrap(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/v1/appointments/review", wrap(http.HandlerFunc(h.Review)))
	mux.Handle("GET /api/v1/appointments/{id}", wrap(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/v1/appointments/{id}", wrap(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/v1/appointments/{id}", wrap(http.HandlerFunc(h.Delete)))
	mux.Handle("POST /api/v1/appointments/{id}/checkout", wrap(http.HandlerFunc(h.Checkout)))
}

type appointmentRequest struct {
	DogID       *string `json:"dog_id"`
	GroomerID   *string `json:"groomer_id"`
	ScheduledAt *string `json:"scheduled_at"`
	Services    *string `json:"services"`
	Notes       *string `json:"notes"`
	Status      *string `json:"status"`
}

type appointmentItem struct {
	ID              string `json:"id"`
	DogID           string `json:"dog_id,omitempty"`
	GroomerID       string `json:"groomer_id,omitempty"`
	ScheduledAt     string `json:"scheduled_at"`
	Services        string `json:"services"`
	Notes           string `json:"notes"`
	Status          string `json:"status"`
	ExternalEventID string `json:"external_event_id,omitempty"`
	DetailsNeeded   bool   `json:"details_needed"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

type appointmentResponse struct {
	Appointment appointmentItem `json:"appointment"`
	Warnings    []string        `json:"warnings"`
}

func toItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		ID:              a.ID,
		DogID:           model.Deref(a.DogID),
		GroomerID:       model.Deref(a.GroomerID),
		ScheduledAt:     a.ScheduledAt.UTC().Format(time.RFC3339),
		Services:        a.Services,
		Notes:           a.Notes,
		Status:          string(a.Status),
		ExternalEventID: a.ExternalEventID,
		DetailsNeeded:   a.DetailsNeeded,
	}
	if !a.UpdatedAt.IsZero() {
		item.UpdatedAt = a.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func tenantOrReject(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := auth.TenantFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return tenantID, true
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrReject(w, r)
	if !ok {
		return
	}
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ScheduledAt == nil {
		http.Error(w, "scheduled_at is required", http.StatusBadRequest)
		return
	}

	appt := model.Appointment{TenantID: tenantID, Status: model.StatusScheduled}
	if msg := applyRequest(&appt, req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if status, msg := h.classify(ctx, &appt); msg != "" {
		http.Error(w, msg, status)
		return
	}

	created, err := h.appts.Create(ctx, appt)
	if err != nil {
		h.logger.Error("create appointment failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}
	warnings := h.push(ctx, tenantID, &created, outbound.ActionCreate)
	httpx.WriteJSON(w, http.StatusCreated, appointmentResponse{Appointment: toItem(created), Warnings: warnings})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrReject(w, r)
	if !ok {
		return
	}
	appt, ok := h.load(w, r, tenantID)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentResponse{Appointment: toItem(appt), Warnings: []string{}})
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrReject(w, r)
	if !ok {
		return
	}
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	cur, ok := h.load(w, r, tenantID)
	if !ok {
		return
	}

	next := cur
	if msg := applyRequest(&next, req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	if reviewInputsChanged(cur, next) {
		if status, msg := h.classify(ctx, &next); msg != "" {
			http.Error(w, msg, status)
			return
		}
	}

	saved, err := h.appts.Update(ctx, next)
	if errors.Is(err, model.ErrNotFound) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("update appointment failed", "err", err, "tenant_id", tenantID, "appointment_id", cur.ID)
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}

	action := outbound.ActionUpdate
	if saved.Status == model.StatusCancelled && cur.Status != model.StatusCancelled {
		action = outbound.ActionCancel
	}
	warnings := h.push(ctx, tenantID, &saved, action)
	httpx.WriteJSON(w, http.StatusOK, appointmentResponse{Appointment: toItem(saved), Warnings: warnings})
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrReject(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	deleted, err := h.appts.Delete(ctx, tenantID, r.PathValue("id"))
	if errors.Is(err, model.ErrNotFound) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("delete appointment failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "failed to delete appointment", http.StatusInternalServerError)
		return
	}
	warnings := h.push(ctx, tenantID, &deleted, outbound.ActionDelete)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"deleted":  deleted.ID,
		"warnings": warnings,
	})
}

// Checkout records the visit as Completed.
func (h *AppointmentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrReject(w, r)
	if !ok {
		return
	}
	cur, ok := h.load(w, r, tenantID)
	if !ok {
		return
	}
	if cur.Status == model.StatusCancelled {
		http.Error(w, "appointment is cancelled", http.StatusConflict)
		return
	}

	next := cur
	next.Status = model.StatusCompleted
	next.DetailsNeeded = false
	ctx := r.Context()
	saved, err := h.appts.Update(ctx, next)
	if err != nil {
		h.logger.Error("checkout failed", "err", err, "tenant_id", tenantID, "appointment_id", cur.ID)
		http.Error(w, "failed to complete appointment", http.StatusInternalServerError)
		return
	}
	warnings := h.push(ctx, tenantID, &saved, outbound.ActionUpdate)
	httpx.WriteJSON(w, http.StatusOK, appointmentResponse{Appointment: toItem(saved), Warnings: warnings})
}

// Review lists appointments flagged as missing details.
func (h *AppointmentHandler) Review(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrReject(w, r)
	if !ok {
		return
	}
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	appts, err := h.appts.ListReview(r.Context(), tenantID, limit)
	if err != nil {
		h.logger.Error("list review queue failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AppointmentHandler) load(w http.ResponseWriter, r *http.Request, tenantID string) (model.Appointment, bool) {
	appt, err := h.appts.Get(r.Context(), tenantID, r.PathValue("id"))
	if errors.Is(err, model.ErrNotFound) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return model.Appointment{}, false
	}
	if err != nil {
		h.logger.Error("load appointment failed", "err", err, "tenant_id", tenantID)
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return model.Appointment{}, false
	}
	return appt, true
}

// classify loads the referenced dog and groomer and sets DetailsNeeded. A
// non-empty message means the request referenced something outside the tenant.
func (h *AppointmentHandler) classify(ctx context.Context, appt *model.Appointment) (int, string) {
	var dog *model.Dog
	if appt.DogID != nil {
		d, err := h.entities.GetDog(ctx, appt.TenantID, *appt.DogID)
		if errors.Is(err, model.ErrNotFound) {
			return http.StatusBadRequest, "unknown dog_id"
		}
		if err != nil {
			return http.StatusInternalServerError, "failed to load dog"
		}
		dog = &d
	}
	var groomer *model.Groomer
	if appt.GroomerID != nil {
		g, err := h.entities.GetGroomer(ctx, appt.TenantID, *appt.GroomerID)
		if errors.Is(err, model.ErrNotFound) {
			return http.StatusBadRequest, "unknown groomer_id"
		}
		if err != nil {
			return http.StatusInternalServerError, "failed to load groomer"
		}
		groomer = &g
	}
	appt.DetailsNeeded = completeness.NeedsReview(dog, groomer, appt.Services, appt.Status)
	return 0, ""
}

// push reports calendar failures as warnings; the local change stands.
func (h *AppointmentHandler) push(ctx context.Context, tenantID string, appt *model.Appointment, action outbound.Action) []string {
	warnings := []string{}
	if h.pusher == nil {
		return warnings
	}
	if _, err := h.pusher.Push(ctx, tenantID, appt, action); err != nil {
		warnings = append(warnings, syncWarning(err))
	}
	return warnings
}

func syncWarning(err error) string {
	if errors.Is(err, gcal.ErrNotConnected) {
		return "calendar not connected; change saved locally"
	}
	return "calendar sync failed: " + err.Error()
}

func applyRequest(a *model.Appointment, req appointmentRequest) string {
	if req.DogID != nil {
		a.DogID = model.Ref(strings.TrimSpace(*req.DogID))
	}
	if req.GroomerID != nil {
		a.GroomerID = model.Ref(strings.TrimSpace(*req.GroomerID))
	}
	if req.ScheduledAt != nil {
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.ScheduledAt))
		if err != nil {
			return "invalid scheduled_at"
		}
		a.ScheduledAt = at.UTC()
	}
	if req.Services != nil {
		a.Services = strings.TrimSpace(*req.Services)
	}
	if req.Notes != nil {
		a.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Status != nil {
		status, ok := model.ParseStatus(*req.Status)
		if !ok {
			return "invalid status"
		}
		a.Status = status
	}
	return ""
}

func reviewInputsChanged(a, b model.Appointment) bool {
	return model.Deref(a.DogID) != model.Deref(b.DogID) ||
		model.Deref(a.GroomerID) != model.Deref(b.GroomerID) ||
		a.Services != b.Services ||
		a.Status != b.Status
}
