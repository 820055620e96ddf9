package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/auth"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/credentials"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/gcal"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/outbound"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/reconcile"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/webhook"
)

type memAppts struct {
	rows map[string]model.Appointment
	seq  int
}

func newMemAppts() *memAppts { return &memAppts{rows: map[string]model.Appointment{}} }

func (m *memAppts) Get(_ context.Context, tenantID, id string) (model.Appointment, error) {
	a, ok := m.rows[id]
	if !ok || a.TenantID != tenantID {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (m *memAppts) Create(_ context.Context, a model.Appointment) (model.Appointment, error) {
	m.seq++
	a.ID = fmt.Sprintf("a%d", m.seq)
	m.rows[a.ID] = a
	return a, nil
}

func (m *memAppts) Update(_ context.Context, a model.Appointment) (model.Appointment, error) {
	cur, ok := m.rows[a.ID]
	if !ok || cur.TenantID != a.TenantID {
		return model.Appointment{}, model.ErrNotFound
	}
	m.rows[a.ID] = a
	return a, nil
}

func (m *memAppts) Delete(_ context.Context, tenantID, id string) (model.Appointment, error) {
	a, ok := m.rows[id]
	if !ok || a.TenantID != tenantID {
		return model.Appointment{}, model.ErrNotFound
	}
	delete(m.rows, id)
	return a, nil
}

func (m *memAppts) ListReview(_ context.Context, tenantID string, _ int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range m.rows {
		if a.TenantID == tenantID && a.DetailsNeeded {
			out = append(out, a)
		}
	}
	return out, nil
}

type memEntities struct{}

func (memEntities) GetDog(_ context.Context, tenantID, id string) (model.Dog, error) {
	if tenantID != "t1" || id != "dog-1" {
		return model.Dog{}, model.ErrNotFound
	}
	return model.Dog{ID: id, TenantID: tenantID, Name: "Rex", Owner: &model.Owner{ID: "o1", Name: "John Smith"}}, nil
}

func (memEntities) GetGroomer(_ context.Context, tenantID, id string) (model.Groomer, error) {
	if tenantID != "t1" || id != "g-1" {
		return model.Groomer{}, model.ErrNotFound
	}
	return model.Groomer{ID: id, TenantID: tenantID, Username: "sam"}, nil
}

type recordingPusher struct {
	actions []outbound.Action
	err     error
}

func (p *recordingPusher) Push(_ context.Context, _ string, appt *model.Appointment, action outbound.Action) (string, error) {
	p.actions = append(p.actions, action)
	if p.err != nil {
		return "", p.err
	}
	if action == outbound.ActionCreate {
		appt.ExternalEventID = "ev-" + appt.ID
	}
	return appt.ExternalEventID, nil
}

func asTenant(tenantID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.ContextWithClaims(r.Context(), &auth.Claims{TenantID: tenantID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newAppointmentMux(appts *memAppts, pusher Pusher, tenantID string) *http.ServeMux {
	mux := http.NewServeMux()
	NewAppointmentHandler(appts, memEntities{}, pusher, nil).Register(mux, asTenant(tenantID))
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestCreateClassifiesAndPushes(t *testing.T) {
	appts := newMemAppts()
	pusher := &recordingPusher{}
	mux := newAppointmentMux(appts, pusher, "t1")

	rec, body := do(t, mux, http.MethodPost, "/api/v1/appointments",
		`{"dog_id":"dog-1","groomer_id":"g-1","scheduled_at":"2024-05-02T15:00:00Z","services":"Bath"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	appt := body["appointment"].(map[string]any)
	if appt["details_needed"] != false {
		t.Fatalf("complete appointment flagged: %v", appt)
	}
	if appt["status"] != "Scheduled" || appt["external_event_id"] != "ev-a1" {
		t.Fatalf("unexpected appointment: %v", appt)
	}
	if len(pusher.actions) != 1 || pusher.actions[0] != outbound.ActionCreate {
		t.Fatalf("expected one create push, got %v", pusher.actions)
	}

	rec, body = do(t, mux, http.MethodPost, "/api/v1/appointments",
		`{"dog_id":"dog-1","scheduled_at":"2024-05-03T15:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if body["appointment"].(map[string]any)["details_needed"] != true {
		t.Fatalf("appointment without groomer or services should need review")
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	mux := newAppointmentMux(newMemAppts(), &recordingPusher{}, "t1")
	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing time", `{"dog_id":"dog-1"}`},
		{"bad time", `{"scheduled_at":"tomorrow"}`},
		{"bad status", `{"scheduled_at":"2024-05-02T15:00:00Z","status":"maybe"}`},
		{"foreign dog", `{"scheduled_at":"2024-05-02T15:00:00Z","dog_id":"dog-9"}`},
	}
	for _, tc := range cases {
		rec, _ := do(t, mux, http.MethodPost, "/api/v1/appointments", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}
}

func TestPushFailureIsAWarning(t *testing.T) {
	appts := newMemAppts()
	pusher := &recordingPusher{err: fmt.Errorf("calendar create: %w", gcal.ErrNotConnected)}
	mux := newAppointmentMux(appts, pusher, "t1")

	rec, body := do(t, mux, http.MethodPost, "/api/v1/appointments", `{"scheduled_at":"2024-05-02T15:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	warnings := body["warnings"].([]any)
	if len(warnings) != 1 || !strings.Contains(warnings[0].(string), "not connected") {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(appts.rows) != 1 {
		t.Fatalf("local create must stand, rows=%d", len(appts.rows))
	}
}

func TestUpdateToCancelledPushesCancel(t *testing.T) {
	appts := newMemAppts()
	appts.rows["a1"] = model.Appointment{ID: "a1", TenantID: "t1", Status: model.StatusScheduled, ScheduledAt: time.Now().UTC(), ExternalEventID: "ev1", DetailsNeeded: true}
	pusher := &recordingPusher{}
	mux := newAppointmentMux(appts, pusher, "t1")

	rec, body := do(t, mux, http.MethodPut, "/api/v1/appointments/a1", `{"status":"cancelled"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(pusher.actions) != 1 || pusher.actions[0] != outbound.ActionCancel {
		t.Fatalf("expected cancel push, got %v", pusher.actions)
	}
	appt := body["appointment"].(map[string]any)
	if appt["status"] != "Cancelled" || appt["details_needed"] != false {
		t.Fatalf("cancelled appointment should not need review: %v", appt)
	}

	rec, _ = do(t, mux, http.MethodPut, "/api/v1/appointments/a1", `{"notes":"gate code 12"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if pusher.actions[1] != outbound.ActionUpdate {
		t.Fatalf("expected update push, got %v", pusher.actions)
	}
}

func TestDeleteAndTenantScoping(t *testing.T) {
	appts := newMemAppts()
	appts.rows["a1"] = model.Appointment{ID: "a1", TenantID: "t1", ExternalEventID: "ev1"}
	pusher := &recordingPusher{}

	other := newAppointmentMux(appts, pusher, "t2")
	if rec, _ := do(t, other, http.MethodDelete, "/api/v1/appointments/a1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("other tenant delete: expected 404, got %d", rec.Code)
	}
	if rec, _ := do(t, other, http.MethodGet, "/api/v1/appointments/a1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("other tenant get: expected 404, got %d", rec.Code)
	}

	mux := newAppointmentMux(appts, pusher, "t1")
	rec, body := do(t, mux, http.MethodDelete, "/api/v1/appointments/a1", "")
	if rec.Code != http.StatusOK || body["deleted"] != "a1" {
		t.Fatalf("unexpected delete response %d %v", rec.Code, body)
	}
	if len(pusher.actions) != 1 || pusher.actions[0] != outbound.ActionDelete {
		t.Fatalf("expected delete push, got %v", pusher.actions)
	}
}

func TestCheckoutAndReview(t *testing.T) {
	appts := newMemAppts()
	appts.rows["a1"] = model.Appointment{ID: "a1", TenantID: "t1", Status: model.StatusScheduled, DetailsNeeded: true}
	appts.rows["a2"] = model.Appointment{ID: "a2", TenantID: "t1", Status: model.StatusCancelled}
	pusher := &recordingPusher{}
	mux := newAppointmentMux(appts, pusher, "t1")

	rec, body := do(t, mux, http.MethodGet, "/api/v1/appointments/review", "")
	if rec.Code != http.StatusOK || len(body["items"].([]any)) != 1 {
		t.Fatalf("expected one review item, got %d %v", rec.Code, body)
	}

	rec, body = do(t, mux, http.MethodPost, "/api/v1/appointments/a1/checkout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["appointment"].(map[string]any)["status"] != "Completed" {
		t.Fatalf("checkout did not complete: %v", body)
	}
	if appts.rows["a1"].DetailsNeeded {
		t.Fatal("completed appointment left in review queue")
	}
	if rec, _ := do(t, mux, http.MethodPost, "/api/v1/appointments/a2/checkout", ""); rec.Code != http.StatusConflict {
		t.Fatalf("checkout of cancelled: expected 409, got %d", rec.Code)
	}
}

func TestMissingTenantIsUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	NewAppointmentHandler(newMemAppts(), memEntities{}, nil, nil).Register(mux, func(h http.Handler) http.Handler { return h })
	if rec, _ := do(t, mux, http.MethodGet, "/api/v1/appointments/review", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

type fakeSyncer struct {
	res reconcile.SyncResult
	err error
}

func (f fakeSyncer) Sync(context.Context, string) (reconcile.SyncResult, error) { return f.res, f.err }

type fakeGrants struct{ stored map[string]credentials.TokenRecord }

func (f *fakeGrants) Put(_ context.Context, tenantID string, rec credentials.TokenRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	f.stored[tenantID] = rec
	return nil
}

func (f *fakeGrants) Status(_ context.Context, tenantID string) (credentials.ConnectionStatus, error) {
	rec, ok := f.stored[tenantID]
	if !ok {
		return credentials.ConnectionStatus{Reason: "no token stored"}, nil
	}
	return credentials.ConnectionStatus{Connected: true, CalendarScope: rec.HasScope(credentials.CalendarScope)}, nil
}

type fakeSettings map[string]string

func (f fakeSettings) SetCalendar(_ context.Context, tenantID, calendarID, _ string) error {
	for tenant, cal := range f {
		if cal == calendarID && tenant != tenantID {
			return model.ErrCalendarTaken
		}
	}
	f[tenantID] = calendarID
	return nil
}

type fakeChannels struct {
	err   error
	saved []webhook.Channel
}

func (f *fakeChannels) Register(_ context.Context, tenantID string) (webhook.Channel, error) {
	if f.err != nil {
		return webhook.Channel{}, f.err
	}
	ch := webhook.Channel{TenantID: tenantID, CalendarID: "cal-1", ChannelID: "ch-1", ResourceID: "res-1"}
	f.saved = append(f.saved, ch)
	return ch, nil
}

func (f *fakeChannels) LatestChannel(_ context.Context, tenantID string) (webhook.Channel, bool, error) {
	for i := len(f.saved) - 1; i >= 0; i-- {
		if f.saved[i].TenantID == tenantID {
			return f.saved[i], true, nil
		}
	}
	return webhook.Channel{}, false, nil
}

func newCalendarMux(deps CalendarDeps, tenantID string) *http.ServeMux {
	if deps.Grants == nil {
		deps.Grants = &fakeGrants{stored: map[string]credentials.TokenRecord{}}
	}
	if deps.Settings == nil {
		deps.Settings = fakeSettings{}
	}
	if deps.Channels == nil {
		deps.Channels = &fakeChannels{}
	}
	mux := http.NewServeMux()
	NewCalendarHandler(deps, nil).Register(mux, asTenant(tenantID))
	return mux
}

const grantJSON = `{"token":"at","refresh_token":"rt","token_uri":"https://oauth2.example.com/token","client_id":"cid","client_secret":"cs","scopes":["https://www.googleapis.com/auth/calendar"]}`

func TestCalendarConnectAndStatus(t *testing.T) {
	settings := fakeSettings{"t2": "shared@example.com"}
	deps := CalendarDeps{Syncer: fakeSyncer{}, Settings: settings}
	mux := newCalendarMux(deps, "t1")

	rec, body := do(t, mux, http.MethodGet, "/api/v1/calendar/status", "")
	if rec.Code != http.StatusOK || body["connected"] != false || body["reason"] == "" {
		t.Fatalf("unexpected status before connect %d %v", rec.Code, body)
	}

	rec, _ = do(t, mux, http.MethodPut, "/api/v1/calendar/connection", `{"calendar_id":"cal-1","token":{"token":"at"}}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "refresh_token") {
		t.Fatalf("incomplete grant: expected 400 naming fields, got %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, mux, http.MethodPut, "/api/v1/calendar/connection", `{"calendar_id":"cal-1","timezone":"Mars/Olympus","token":`+grantJSON+`}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad timezone: expected 400, got %d", rec.Code)
	}
	rec, _ = do(t, mux, http.MethodPut, "/api/v1/calendar/connection", `{"calendar_id":"shared@example.com","token":`+grantJSON+`}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("taken calendar: expected 409, got %d", rec.Code)
	}

	rec, body = do(t, mux, http.MethodPut, "/api/v1/calendar/connection", `{"calendar_id":"cal-1","timezone":"America/Chicago","token":`+grantJSON+`}`)
	if rec.Code != http.StatusOK || body["connected"] != true || body["calendar_scope"] != true {
		t.Fatalf("unexpected connect response %d %v", rec.Code, body)
	}
	if settings["t1"] != "cal-1" {
		t.Fatalf("calendar not saved: %v", settings)
	}
}

func TestCalendarRoutes(t *testing.T) {
	channels := &fakeChannels{}
	mux := newCalendarMux(CalendarDeps{
		Syncer:   fakeSyncer{res: reconcile.SyncResult{Updated: 3, Deleted: 1}},
		Channels: channels,
	}, "t1")

	rec, body := do(t, mux, http.MethodPost, "/api/v1/calendar/sync", "")
	if rec.Code != http.StatusOK || body["updated"] != float64(3) || body["deleted"] != float64(1) {
		t.Fatalf("unexpected sync response %d %v", rec.Code, body)
	}
	rec, body = do(t, mux, http.MethodPost, "/api/v1/calendar/watch", "")
	if rec.Code != http.StatusCreated || body["channel_id"] != "ch-1" {
		t.Fatalf("unexpected watch response %d %v", rec.Code, body)
	}
	rec, body = do(t, mux, http.MethodGet, "/api/v1/calendar/status", "")
	if rec.Code != http.StatusOK || body["channel"] == nil {
		t.Fatalf("status should report the channel: %d %v", rec.Code, body)
	}
}

func TestCalendarSyncFailureIsAWarning(t *testing.T) {
	syncer := fakeSyncer{res: reconcile.SyncResult{Updated: 2}, err: errors.New("boom")}
	mux := newCalendarMux(CalendarDeps{Syncer: syncer, Channels: &fakeChannels{err: gcal.ErrNotConnected}}, "t1")

	rec, body := do(t, mux, http.MethodPost, "/api/v1/calendar/sync", "")
	if rec.Code != http.StatusOK || body["updated"] != float64(2) || len(body["warnings"].([]any)) != 1 {
		t.Fatalf("unexpected sync response %d %v", rec.Code, body)
	}
	if rec, _ := do(t, mux, http.MethodPost, "/api/v1/calendar/watch", ""); rec.Code != http.StatusConflict {
		t.Fatalf("watch without connection: expected 409, got %d", rec.Code)
	}
}
