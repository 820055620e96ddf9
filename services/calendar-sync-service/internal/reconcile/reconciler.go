// Package reconcile pulls calendar state into local appointments: the full
// reconciler, the incremental deletion poller and the coordinator that
// drives both.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/calendar/v3"

	otelx "github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/otel"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/completeness"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/gcal"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/resolver"
)

// Appointments is the storage surface used by reconciliation. Every write
// commits on its own.
type Appointments interface {
	Get(ctx context.Context, tenantID, id string) (model.Appointment, error)
	GetByExternalID(ctx context.Context, tenantID, externalID string) (model.Appointment, error)
	// InsertImported reports false when another run already inserted the
	// same (tenant, external id).
	InsertImported(ctx context.Context, appt model.Appointment) (model.Appointment, bool, error)
	UpdateSynced(ctx context.Context, appt model.Appointment) error
	// DeleteByExternalIDs returns the ids of the deleted appointments.
	DeleteByExternalIDs(ctx context.Context, tenantID string, externalIDs []string) ([]string, error)
}

type Entities interface {
	GetDog(ctx context.Context, tenantID, dogID string) (model.Dog, error)
	GetGroomer(ctx context.Context, tenantID, groomerID string) (model.Groomer, error)
}

type Config struct {
	PageSize int64
	MaxPages int
}

type Reconciler struct {
	opener   gcal.Opener
	appts    Appointments
	entities Entities
	resolver *resolver.Resolver
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewReconciler(opener gcal.Opener, appts Appointments, entities Entities, res *resolver.Resolver, cfg Config, logger *slog.Logger) *Reconciler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 250
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		opener:   opener,
		appts:    appts,
		entities: entities,
		resolver: res,
		cfg:      cfg,
		logger:   logger,
		tracer:   otelx.Tracer("calendar-sync/reconcile"),
		now:      time.Now,
	}
}

// Reconcile imports upcoming events and returns how many appointments were
// created or changed. A second run with no calendar change returns 0.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID string) (int, error) {
	sess, err := r.opener.Open(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return r.reconcile(ctx, sess)
}

func (r *Reconciler) reconcile(ctx context.Context, sess *gcal.Session) (n int, err error) {
	tenantID := sess.Tenant.ID
	ctx, span := r.tracer.Start(ctx, "reconcile.full", trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer func() {
		span.SetAttributes(attribute.Int("changed", n))
		otelx.EndSpan(span, err)
	}()

	q := gcal.ListQuery{TimeMin: r.now(), MaxResults: r.cfg.PageSize}
	for page := 0; page < r.cfg.MaxPages; page++ {
		res, err := sess.Events.List(ctx, sess.CalendarID, q)
		if err != nil {
			return n, fmt.Errorf("list events: %w", err)
		}
		for _, ev := range res.Items {
			changed, err := r.apply(ctx, sess, ev)
			if err != nil {
				r.logger.Warn("gcal sync: event skipped", "tenant_id", tenantID, "event_id", ev.Id, "err", err)
				continue
			}
			if changed {
				n++
			}
		}
		if res.NextPageToken == "" {
			return n, nil
		}
		q.PageToken = res.NextPageToken
	}
	r.logger.Warn("gcal sync: page limit reached", "tenant_id", tenantID, "max_pages", r.cfg.MaxPages)
	return n, nil
}

func (r *Reconciler) apply(ctx context.Context, sess *gcal.Session, ev *calendar.Event) (bool, error) {
	tenantID := sess.Tenant.ID
	in := gcal.DecodeEvent(ev, sess.Location())
	if in.ID == "" {
		return false, nil
	}

	cur, err := r.appts.GetByExternalID(ctx, tenantID, in.ID)
	switch {
	case err == nil:
		return r.update(ctx, tenantID, cur, in)
	case !errors.Is(err, model.ErrNotFound):
		return false, err
	}

	// An event we pushed whose id never got stored locally.
	if id := in.Payload.AppointmentID; id != "" {
		linked, err := r.appts.Get(ctx, tenantID, id)
		if err == nil && linked.ExternalEventID == "" {
			return r.update(ctx, tenantID, linked, in)
		}
	}
	return r.create(ctx, tenantID, in)
}

func (r *Reconciler) create(ctx context.Context, tenantID string, in gcal.InboundEvent) (bool, error) {
	if !in.HasStart {
		return false, errors.New("event has no start time")
	}
	status := model.StatusScheduled
	if s, ok := model.ParseStatus(in.Payload.Status); ok {
		status = s
	}
	if in.Cancelled {
		status = model.StatusCancelled
	}

	res, err := r.resolver.Resolve(ctx, tenantID, resolver.Input{
		Owner:   in.Payload.Owner,
		Dog:     in.Payload.Dog,
		Groomer: in.Payload.Groomer,
	})
	if err != nil {
		return false, fmt.Errorf("resolve: %w", err)
	}

	appt := model.Appointment{
		TenantID:        tenantID,
		ScheduledAt:     in.Start,
		Services:        strings.TrimSpace(in.Payload.Services),
		Notes:           strings.TrimSpace(in.Payload.Notes),
		Status:          status,
		ExternalEventID: in.ID,
	}
	if res.Dog != nil {
		appt.DogID = model.Ref(res.Dog.ID)
	}
	if res.Groomer != nil {
		appt.GroomerID = model.Ref(res.Groomer.ID)
	}
	appt.DetailsNeeded = detailsNeeded(res.Dog, res.Groomer, appt.Services, status, res.Ambiguous)

	stored, inserted, err := r.appts.InsertImported(ctx, appt)
	if err != nil {
		return false, fmt.Errorf("insert: %w", err)
	}
	if inserted {
		r.logger.Info("gcal sync: appointment imported",
			"tenant_id", tenantID, "event_id", in.ID, "appointment_id", stored.ID, "resolution", res.State.String())
		return true, nil
	}

	// Lost the race to a concurrent run; merge into its row instead.
	cur, err := r.appts.GetByExternalID(ctx, tenantID, in.ID)
	if err != nil {
		return false, err
	}
	return r.update(ctx, tenantID, cur, in)
}

// update applies the merge rules: calendar time and status win unless the
// local status is sticky; text fields and assignments only fill gaps.
func (r *Reconciler) update(ctx context.Context, tenantID string, cur model.Appointment, in gcal.InboundEvent) (bool, error) {
	next := cur
	next.ExternalEventID = in.ID
	if !cur.Status.Sticky() {
		if in.HasStart {
			next.ScheduledAt = in.Start
		}
		if in.Cancelled {
			next.Status = model.StatusCancelled
		} else if s, ok := model.ParseStatus(in.Payload.Status); ok {
			next.Status = s
		}
	}
	return r.write(ctx, tenantID, cur, next, in)
}

func (r *Reconciler) write(ctx context.Context, tenantID string, cur, next model.Appointment, in gcal.InboundEvent) (bool, error) {
	if strings.TrimSpace(next.Services) == "" {
		next.Services = strings.TrimSpace(in.Payload.Services)
	}
	if strings.TrimSpace(next.Notes) == "" {
		next.Notes = strings.TrimSpace(in.Payload.Notes)
	}

	var (
		dog       *model.Dog
		groomer   *model.Groomer
		ambiguous bool
	)
	// An event naming nobody would only add placeholder records.
	if next.DogID == nil && namesClient(in.Payload) {
		res, err := r.resolver.Resolve(ctx, tenantID, resolver.Input{Owner: in.Payload.Owner, Dog: in.Payload.Dog})
		if err != nil {
			return false, fmt.Errorf("resolve: %w", err)
		}
		if res.Dog != nil {
			next.DogID = model.Ref(res.Dog.ID)
			dog = res.Dog
		}
		ambiguous = res.Ambiguous
	}
	if next.GroomerID == nil {
		g, amb, err := r.resolver.ResolveGroomer(ctx, tenantID, in.Payload.Groomer)
		if err != nil {
			return false, fmt.Errorf("resolve groomer: %w", err)
		}
		if g != nil {
			next.GroomerID = model.Ref(g.ID)
			groomer = g
		}
		ambiguous = ambiguous || amb
	}

	if reviewInputsChanged(cur, next) {
		var err error
		if dog == nil && next.DogID != nil {
			if dog, err = r.loadDog(ctx, tenantID, *next.DogID); err != nil {
				return false, err
			}
		}
		if groomer == nil && next.GroomerID != nil {
			if groomer, err = r.loadGroomer(ctx, tenantID, *next.GroomerID); err != nil {
				return false, err
			}
		}
		next.DetailsNeeded = detailsNeeded(dog, groomer, next.Services, next.Status, ambiguous)
	}

	if next.SameContent(cur) {
		return false, nil
	}
	if err := r.appts.UpdateSynced(ctx, next); err != nil {
		return false, fmt.Errorf("update: %w", err)
	}
	r.logger.Info("gcal sync: appointment updated", "tenant_id", tenantID, "event_id", in.ID, "appointment_id", next.ID)
	return true, nil
}

func (r *Reconciler) loadDog(ctx context.Context, tenantID, id string) (*model.Dog, error) {
	d, err := r.entities.GetDog(ctx, tenantID, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dog: %w", err)
	}
	return &d, nil
}

func (r *Reconciler) loadGroomer(ctx context.Context, tenantID, id string) (*model.Groomer, error) {
	g, err := r.entities.GetGroomer(ctx, tenantID, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load groomer: %w", err)
	}
	return &g, nil
}

func namesClient(p gcal.Payload) bool {
	owner, dog := strings.TrimSpace(p.Owner), strings.TrimSpace(p.Dog)
	return (owner != "" && !model.IsPlaceholderOwner(owner)) || (dog != "" && !model.IsPlaceholderDog(dog))
}

func reviewInputsChanged(a, b model.Appointment) bool {
	return model.Deref(a.DogID) != model.Deref(b.DogID) ||
		model.Deref(a.GroomerID) != model.Deref(b.GroomerID) ||
		a.Services != b.Services ||
		a.Status != b.Status
}

// detailsNeeded adds resolver ambiguity to the classifier; finalized
// appointments stay out of the review queue either way.
func detailsNeeded(dog *model.Dog, groomer *model.Groomer, services string, status model.Status, ambiguous bool) bool {
	if status.Finalized() {
		return false
	}
	return ambiguous || completeness.NeedsReview(dog, groomer, services, status)
}
