// Package gcaltest provides an in-memory calendar for tests.
package gcaltest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/gcal"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

// Calendar implements gcal.EventsAPI. Sync tokens are "v<N>" where N is the
// revision the listing was taken at.
type Calendar struct {
	mu       sync.Mutex
	events   map[string]map[string]*stored
	rev      int
	seq      int
	minToken int
	// Fail, when set, is consulted before every call; a non-nil return fails it.
	Fail  func(op, calendarID, eventID string) error
	Calls []string
}

type stored struct {
	ev  *calendar.Event
	rev int
}

func NewCalendar() *Calendar {
	return &Calendar{events: map[string]map[string]*stored{}}
}

// APIError builds the error the real client returns for an HTTP status.
func APIError(code int) error {
	return &googleapi.Error{Code: code, Message: http.StatusText(code)}
}

// Put stores ev as-is, as if a person had created or edited it.
func (c *Calendar) Put(calendarID string, ev *calendar.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(calendarID, ev)
}

// Remove marks an event cancelled, the way Google reports deletions.
func (c *Calendar) Remove(calendarID, eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.events[calendarID][eventID]; ok {
		ev := *s.ev
		ev.Status = "cancelled"
		c.put(calendarID, &ev)
	}
}

// ExpireTokens makes every sync token issued so far answer 410.
func (c *Calendar) ExpireTokens() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minToken = c.rev + 1
}

func (c *Calendar) Get(calendarID, eventID string) (*calendar.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.events[calendarID][eventID]
	if !ok {
		return nil, false
	}
	ev := *s.ev
	return &ev, true
}

func (c *Calendar) put(calendarID string, ev *calendar.Event) {
	if c.events[calendarID] == nil {
		c.events[calendarID] = map[string]*stored{}
	}
	c.rev++
	cp := *ev
	c.events[calendarID][ev.Id] = &stored{ev: &cp, rev: c.rev}
}

func (c *Calendar) call(op, calendarID, eventID string) error {
	c.Calls = append(c.Calls, op+" "+eventID)
	if c.Fail != nil {
		return c.Fail(op, calendarID, eventID)
	}
	return nil
}

func (c *Calendar) Insert(_ context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("insert", calendarID, ""); err != nil {
		return nil, err
	}
	c.seq++
	cp := *ev
	cp.Id = fmt.Sprintf("evt%d", c.seq)
	cp.Status = "confirmed"
	c.put(calendarID, &cp)
	out := cp
	return &out, nil
}

func (c *Calendar) Update(_ context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("update", calendarID, eventID); err != nil {
		return nil, err
	}
	s, ok := c.events[calendarID][eventID]
	if !ok {
		return nil, APIError(http.StatusNotFound)
	}
	if s.ev.Status == "cancelled" {
		return nil, APIError(http.StatusGone)
	}
	cp := *ev
	cp.Id = eventID
	cp.Status = s.ev.Status
	c.put(calendarID, &cp)
	out := cp
	return &out, nil
}

func (c *Calendar) Patch(_ context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("patch", calendarID, eventID); err != nil {
		return nil, err
	}
	s, ok := c.events[calendarID][eventID]
	if !ok {
		return nil, APIError(http.StatusNotFound)
	}
	cp := *s.ev
	if ev.Summary != "" {
		cp.Summary = ev.Summary
	}
	if ev.Description != "" {
		cp.Description = ev.Description
	}
	if ev.ExtendedProperties != nil {
		cp.ExtendedProperties = ev.ExtendedProperties
	}
	if ev.Start != nil {
		cp.Start, cp.End = ev.Start, ev.End
	}
	if ev.Status != "" {
		cp.Status = ev.Status
	}
	c.put(calendarID, &cp)
	out := cp
	return &out, nil
}

func (c *Calendar) Delete(_ context.Context, calendarID, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("delete", calendarID, eventID); err != nil {
		return err
	}
	s, ok := c.events[calendarID][eventID]
	if !ok {
		return APIError(http.StatusNotFound)
	}
	if s.ev.Status == "cancelled" {
		return APIError(http.StatusGone)
	}
	cp := *s.ev
	cp.Status = "cancelled"
	c.put(calendarID, &cp)
	return nil
}

// List pages by MaxResults (default 250). Incremental listings return events
// changed after the token's revision; window listings skip cancelled events
// unless ShowDeleted and filter by start.
func (c *Calendar) List(_ context.Context, calendarID string, q gcal.ListQuery) (*calendar.Events, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("list", calendarID, q.PageToken); err != nil {
		return nil, err
	}

	since := -1
	if q.SyncToken != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(q.SyncToken, "v"))
		if err != nil || n < c.minToken {
			return nil, APIError(http.StatusGone)
		}
		since = n
	}

	var all []*stored
	for _, s := range c.events[calendarID] {
		if since >= 0 && s.rev <= since {
			continue
		}
		if s.ev.Status == "cancelled" && !q.ShowDeleted && since < 0 {
			continue
		}
		if since < 0 && !q.TimeMin.IsZero() {
			if start, ok := startOf(s.ev); ok && start.Before(q.TimeMin) {
				continue
			}
		}
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].rev < all[j].rev })

	size := int(q.MaxResults)
	if size <= 0 {
		size = 250
	}
	offset := 0
	if q.PageToken != "" {
		offset, _ = strconv.Atoi(q.PageToken)
	}
	end := offset + size
	if end > len(all) {
		end = len(all)
	}

	out := &calendar.Events{}
	for _, s := range all[min(offset, len(all)):end] {
		ev := *s.ev
		out.Items = append(out.Items, &ev)
	}
	if end < len(all) {
		out.NextPageToken = strconv.Itoa(end)
	} else {
		out.NextSyncToken = "v" + strconv.Itoa(c.rev)
	}
	return out, nil
}

func (c *Calendar) Watch(_ context.Context, calendarID string, ch *calendar.Channel) (*calendar.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("watch", calendarID, ch.Id); err != nil {
		return nil, err
	}
	out := *ch
	out.ResourceId = "res-" + calendarID
	out.Expiration = time.Now().Add(7 * 24 * time.Hour).UnixMilli()
	return &out, nil
}

func startOf(ev *calendar.Event) (time.Time, bool) {
	if ev.Start == nil || ev.Start.DateTime == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	return t, err == nil
}

// Opener hands every tenant a session on the same fake calendar.
type Opener struct {
	Calendar *Calendar
	Tenants  map[string]model.Tenant
	Err      error
}

func (o *Opener) Open(_ context.Context, tenantID string) (*gcal.Session, error) {
	if o.Err != nil {
		return nil, o.Err
	}
	t, ok := o.Tenants[tenantID]
	if !ok || t.CalendarID == "" {
		return nil, fmt.Errorf("%w: tenant %s", gcal.ErrNotConnected, tenantID)
	}
	return &gcal.Session{Tenant: t, CalendarID: t.CalendarID, Events: o.Calendar}, nil
}
