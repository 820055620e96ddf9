package gcal

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

// PayloadKey names the private extended property holding the encoded Payload.
const PayloadKey = "pawfection"

const payloadVersion = 1

// Payload is the appointment as written to the calendar. Summary and
// Description are renderings of it; inbound decoding prefers the payload and
// falls back to parsing the rendered text when a human created the event.
type Payload struct {
	Version       int    `json:"v"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Owner         string `json:"owner"`
	Dog           string `json:"dog"`
	Groomer       string `json:"groomer"`
	Services      string `json:"services"`
	Notes         string `json:"notes"`
	Status        string `json:"status"`
}

func (p Payload) Summary() string {
	dog := strings.TrimSpace(p.Dog)
	if dog == "" {
		dog = model.UnknownDog
	}
	return fmt.Sprintf("%s - %s", p.statusLabel(), dog)
}

// Description renders the labeled lines in their fixed order.
func (p Payload) Description() string {
	var b strings.Builder
	for i, f := range []struct{ label, value string }{
		{"Owner", p.Owner},
		{"Groomer", p.Groomer},
		{"Services", p.Services},
		{"Notes", p.Notes},
		{"Status", p.statusLabel()},
	} {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.label)
		b.WriteString(": ")
		b.WriteString(oneLine(f.value))
	}
	return b.String()
}

func (p Payload) statusLabel() string {
	if p.Status == "" {
		return string(model.StatusScheduled)
	}
	return p.Status
}

// oneLine keeps a value on its label's line so the text stays parseable.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// EncodeDetails builds the event fields that describe the appointment, without times.
func EncodeDetails(p Payload) *calendar.Event {
	p.Version = payloadVersion
	raw, _ := json.Marshal(p)
	return &calendar.Event{
		Summary:     p.Summary(),
		Description: p.Description(),
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{PayloadKey: string(raw)},
		},
	}
}

// EncodeEvent builds a full event body. Times are rendered in loc with an
// explicit zone.
func EncodeEvent(p Payload, start time.Time, dur time.Duration, loc *time.Location) *calendar.Event {
	if loc == nil {
		loc = time.UTC
	}
	ev := EncodeDetails(p)
	ev.Start = &calendar.EventDateTime{DateTime: start.In(loc).Format(time.RFC3339), TimeZone: loc.String()}
	ev.End = &calendar.EventDateTime{DateTime: start.Add(dur).In(loc).Format(time.RFC3339), TimeZone: loc.String()}
	return ev
}

// InboundEvent is a decoded external event. Decoding never fails: missing
// pieces come back empty.
type InboundEvent struct {
	ID        string
	Cancelled bool
	Start     time.Time
	HasStart  bool
	Payload   Payload
	// Structured is set when Payload came from the extended property.
	Structured bool
}

var labelPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, label := range []string{"Owner", "Dog", "Groomer", "Services", "Notes", "Status"} {
		labelPatterns[label] = regexp.MustCompile(`(?mi)^[ \t]*` + label + `:[ \t]*(.*?)[ \t\r]*$`)
	}
}

func label(desc, name string) string {
	m := labelPatterns[name].FindStringSubmatch(desc)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// DecodeEvent reads an event. Date-only starts are taken as midnight in loc.
func DecodeEvent(ev *calendar.Event, loc *time.Location) InboundEvent {
	if loc == nil {
		loc = time.UTC
	}
	out := InboundEvent{ID: ev.Id, Cancelled: ev.Status == "cancelled"}
	out.Start, out.HasStart = eventStart(ev.Start, loc)

	if p, ok := structuredPayload(ev); ok {
		out.Payload = p
		out.Structured = true
		return out
	}
	desc := ev.Description
	out.Payload = Payload{
		Owner:    label(desc, "Owner"),
		Dog:      label(desc, "Dog"),
		Groomer:  label(desc, "Groomer"),
		Services: label(desc, "Services"),
		Notes:    label(desc, "Notes"),
		Status:   label(desc, "Status"),
	}
	if out.Payload.Dog == "" {
		out.Payload.Dog = dogFromSummary(ev.Summary)
	}
	return out
}

func structuredPayload(ev *calendar.Event) (Payload, bool) {
	if ev.ExtendedProperties == nil {
		return Payload{}, false
	}
	raw, ok := ev.ExtendedProperties.Private[PayloadKey]
	if !ok || raw == "" {
		return Payload{}, false
	}
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.Version < 1 {
		return Payload{}, false
	}
	return p, true
}

// dogFromSummary only trusts titles shaped like "<Status> - <Dog>".
func dogFromSummary(summary string) string {
	prefix, rest, ok := strings.Cut(summary, " - ")
	if !ok {
		return ""
	}
	if _, known := model.ParseStatus(prefix); !known {
		return ""
	}
	return strings.TrimSpace(rest)
}

func eventStart(dt *calendar.EventDateTime, loc *time.Location) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	}
	return time.Time{}, false
}
