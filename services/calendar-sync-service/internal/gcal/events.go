// Package gcal adapts the Google Calendar v3 API to the narrow surface the
// sync engine needs.
package gcal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// EventsAPI is the subset of the events resource used by the engine.
type EventsAPI interface {
	Insert(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error)
	Update(ctx context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error)
	Patch(ctx context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error)
	Delete(ctx context.Context, calendarID, eventID string) error
	List(ctx context.Context, calendarID string, q ListQuery) (*calendar.Events, error)
	Watch(ctx context.Context, calendarID string, ch *calendar.Channel) (*calendar.Channel, error)
}

// ListQuery selects either a time-windowed listing (TimeMin) or an
// incremental one (SyncToken); Google rejects the two combined.
type ListQuery struct {
	TimeMin     time.Time
	SyncToken   string
	PageToken   string
	ShowDeleted bool
	MaxResults  int64
}

type googleEvents struct {
	svc *calendar.Service
}

// NewEventsAPI builds the API over an authorized client. endpoint overrides
// the base URL and is empty in production.
func NewEventsAPI(ctx context.Context, client *http.Client, endpoint string) (EventsAPI, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &googleEvents{svc: svc}, nil
}

func (g *googleEvents) Insert(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error) {
	return g.svc.Events.Insert(calendarID, ev).Context(ctx).Do()
}

func (g *googleEvents) Update(ctx context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error) {
	return g.svc.Events.Update(calendarID, eventID, ev).Context(ctx).Do()
}

func (g *googleEvents) Patch(ctx context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error) {
	return g.svc.Events.Patch(calendarID, eventID, ev).Context(ctx).Do()
}

func (g *googleEvents) Delete(ctx context.Context, calendarID, eventID string) error {
	return g.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
}

func (g *googleEvents) List(ctx context.Context, calendarID string, q ListQuery) (*calendar.Events, error) {
	call := g.svc.Events.List(calendarID).SingleEvents(true).Context(ctx)
	switch {
	case q.SyncToken != "":
		call = call.SyncToken(q.SyncToken)
	case !q.TimeMin.IsZero():
		call = call.TimeMin(q.TimeMin.UTC().Format(time.RFC3339)).OrderBy("startTime")
	}
	if q.ShowDeleted {
		call = call.ShowDeleted(true)
	}
	if q.PageToken != "" {
		call = call.PageToken(q.PageToken)
	}
	if q.MaxResults > 0 {
		call = call.MaxResults(q.MaxResults)
	}
	return call.Do()
}

func (g *googleEvents) Watch(ctx context.Context, calendarID string, ch *calendar.Channel) (*calendar.Channel, error) {
	return g.svc.Events.Watch(calendarID, ch).Context(ctx).Do()
}

func statusCode(err error) int {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

// IsNotFound reports a 404 from the API.
func IsNotFound(err error) bool { return statusCode(err) == http.StatusNotFound }

// IsGone reports a 410: a deleted event, or an expired sync token on list.
func IsGone(err error) bool { return statusCode(err) == http.StatusGone }

// IsMissing covers both ways Google says an event no longer exists.
func IsMissing(err error) bool { return IsNotFound(err) || IsGone(err) }

// IsTransient reports timeouts, 429 and 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	code := statusCode(err)
	return code == http.StatusTooManyRequests || code >= 500
}
