// Package outbound pushes local appointment changes to the tenant's calendar.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/otel"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/gcal"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	// ActionCancel rewrites the event as Cancelled but keeps it on the calendar.
	ActionCancel Action = "cancel"
	// ActionDelete removes the event; used when the appointment itself is deleted.
	ActionDelete Action = "delete"
)

// Entities loads the names rendered into the event.
type Entities interface {
	GetDog(ctx context.Context, tenantID, dogID string) (model.Dog, error)
	GetGroomer(ctx context.Context, tenantID, groomerID string) (model.Groomer, error)
}

// Links records the external event id on the local appointment.
type Links interface {
	SetExternalID(ctx context.Context, tenantID, appointmentID, externalID string) error
}

type Writer struct {
	opener   gcal.Opener
	entities Entities
	links    Links
	duration time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewWriter(opener gcal.Opener, entities Entities, links Links, duration time.Duration, logger *slog.Logger) *Writer {
	if duration <= 0 {
		duration = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		opener:   opener,
		entities: entities,
		links:    links,
		duration: duration,
		logger:   logger,
		tracer:   otelx.Tracer("calendar-sync/outbound"),
	}
}

// Push applies action to the calendar and returns the event id now linked to
// appt. Errors are logged here; callers report them as warnings and never
// undo the local change.
func (w *Writer) Push(ctx context.Context, tenantID string, appt *model.Appointment, action Action) (externalID string, err error) {
	ctx, span := w.tracer.Start(ctx, "outbound.push", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("appointment_id", appt.ID),
		attribute.String("action", string(action)),
	))
	defer func() { otelx.EndSpan(span, err) }()

	externalID, err = w.push(ctx, tenantID, appt, action)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, gcal.ErrNotConnected) {
			level = slog.LevelInfo
		}
		w.logger.Log(ctx, level, "gcal push failed",
			"tenant_id", tenantID,
			"appointment_id", appt.ID,
			"action", string(action),
			"err", err,
		)
		return "", fmt.Errorf("calendar %s: %w", action, err)
	}
	return externalID, nil
}

func (w *Writer) push(ctx context.Context, tenantID string, appt *model.Appointment, action Action) (string, error) {
	if (action == ActionCancel || action == ActionDelete) && appt.ExternalEventID == "" {
		return "", nil
	}
	sess, err := w.opener.Open(ctx, tenantID)
	if err != nil {
		return "", err
	}

	switch action {
	case ActionCreate:
		return w.create(ctx, sess, tenantID, appt)
	case ActionUpdate:
		if appt.ExternalEventID == "" {
			return w.create(ctx, sess, tenantID, appt)
		}
		p, err := w.payload(ctx, tenantID, appt)
		if err != nil {
			return "", err
		}
		ev := gcal.EncodeEvent(p, appt.ScheduledAt, w.duration, sess.Location())
		_, err = sess.Events.Update(ctx, sess.CalendarID, appt.ExternalEventID, ev)
		if gcal.IsMissing(err) {
			w.logger.Info("gcal event missing on update, recreating",
				"tenant_id", tenantID, "appointment_id", appt.ID, "event_id", appt.ExternalEventID)
			return w.create(ctx, sess, tenantID, appt)
		}
		if err != nil {
			return "", err
		}
		return appt.ExternalEventID, nil
	case ActionCancel:
		p, err := w.payload(ctx, tenantID, appt)
		if err != nil {
			return "", err
		}
		p.Status = string(model.StatusCancelled)
		_, err = sess.Events.Patch(ctx, sess.CalendarID, appt.ExternalEventID, gcal.EncodeDetails(p))
		if gcal.IsMissing(err) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return appt.ExternalEventID, nil
	case ActionDelete:
		err := sess.Events.Delete(ctx, sess.CalendarID, appt.ExternalEventID)
		if err != nil && !gcal.IsMissing(err) {
			return "", err
		}
		return "", nil
	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

func (w *Writer) create(ctx context.Context, sess *gcal.Session, tenantID string, appt *model.Appointment) (string, error) {
	p, err := w.payload(ctx, tenantID, appt)
	if err != nil {
		return "", err
	}
	ev := gcal.EncodeEvent(p, appt.ScheduledAt, w.duration, sess.Location())
	created, err := sess.Events.Insert(ctx, sess.CalendarID, ev)
	if err != nil {
		return "", err
	}
	if err := w.links.SetExternalID(ctx, tenantID, appt.ID, created.Id); err != nil {
		return "", fmt.Errorf("store event id: %w", err)
	}
	appt.ExternalEventID = created.Id
	return created.Id, nil
}

func (w *Writer) payload(ctx context.Context, tenantID string, appt *model.Appointment) (gcal.Payload, error) {
	p := gcal.Payload{
		AppointmentID: appt.ID,
		Services:      appt.Services,
		Notes:         appt.Notes,
		Status:        string(appt.Status),
	}
	if appt.DogID != nil {
		dog, err := w.entities.GetDog(ctx, tenantID, *appt.DogID)
		if err != nil {
			return gcal.Payload{}, fmt.Errorf("load dog: %w", err)
		}
		p.Dog = dog.Name
		if dog.Owner != nil {
			p.Owner = dog.Owner.Name
		}
	}
	if appt.GroomerID != nil {
		g, err := w.entities.GetGroomer(ctx, tenantID, *appt.GroomerID)
		if err != nil {
			return gcal.Payload{}, fmt.Errorf("load groomer: %w", err)
		}
		p.Groomer = g.DisplayName()
	}
	return p, nil
}
