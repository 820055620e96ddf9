package outbox

import (
	"encoding/json"
	"time"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

// Event types double as Kafka topic names.
const (
	AppointmentCreated  = "appointment.created.v1"
	AppointmentUpdated  = "appointment.updated.v1"
	AppointmentDeleted  = "appointment.deleted.v1"
	AppointmentImported = "calendar.appointment.imported.v1"
	AppointmentSynced   = "calendar.appointment.updated.v1"
	AppointmentRemoved  = "calendar.appointment.deleted.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type appointmentPayload struct {
	AppointmentID   string    `json:"appointment_id"`
	TenantID        string    `json:"tenant_id"`
	ExternalEventID string    `json:"external_event_id,omitempty"`
	Status          string    `json:"status"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DetailsNeeded   bool      `json:"details_needed"`
	DogID           string    `json:"dog_id,omitempty"`
	GroomerID       string    `json:"groomer_id,omitempty"`
}

func AppointmentEvent(eventType string, a model.Appointment) Event {
	payload, _ := json.Marshal(appointmentPayload{
		AppointmentID:   a.ID,
		TenantID:        a.TenantID,
		ExternalEventID: a.ExternalEventID,
		Status:          string(a.Status),
		ScheduledAt:     a.ScheduledAt.UTC(),
		DetailsNeeded:   a.DetailsNeeded,
		DogID:           model.Deref(a.DogID),
		GroomerID:       model.Deref(a.GroomerID),
	})
	return Event{
		TenantID:      a.TenantID,
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}
