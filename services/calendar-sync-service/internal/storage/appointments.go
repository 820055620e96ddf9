package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/db"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/outbox"
)

// AppointmentRepository commits every write together with its outbox event.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, ob *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: ob}
}

const appointmentColumns = `
	id::text, tenant_id::text, dog_id::text, groomer_id::text, scheduled_at, services, notes,
	status, COALESCE(external_event_id, ''), details_needed, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(&a.ID, &a.TenantID, &a.DogID, &a.GroomerID, &a.ScheduledAt, &a.Services, &a.Notes,
		&status, &a.ExternalEventID, &a.DetailsNeeded, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	a.ScheduledAt = a.ScheduledAt.UTC()
	return a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *AppointmentRepository) Get(ctx context.Context, tenantID, id string) (model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
	return a, notFound(err)
}

func (r *AppointmentRepository) GetByExternalID(ctx context.Context, tenantID, externalID string) (model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND external_event_id = $2
	`, tenantID, externalID))
	return a, notFound(err)
}

// ListReview returns upcoming and past appointments still flagged for review.
func (r *AppointmentRepository) ListReview(ctx context.Context, tenantID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND details_needed
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

// Create inserts a locally authored appointment.
func (r *AppointmentRepository) Create(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		created, err := insert(ctx, tx, a, false)
		if err != nil {
			return err
		}
		a = created
		return r.outbox.Insert(ctx, tx, outbox.AppointmentEvent(outbox.AppointmentCreated, a))
	})
	return a, err
}

// InsertImported inserts an appointment found on the calendar. It reports
// false, without error, when the (tenant, external id) row already exists.
func (r *AppointmentRepository) InsertImported(ctx context.Context, a model.Appointment) (model.Appointment, bool, error) {
	inserted := false
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		created, err := insert(ctx, tx, a, true)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		a, inserted = created, true
		return r.outbox.Insert(ctx, tx, outbox.AppointmentEvent(outbox.AppointmentImported, a))
	})
	return a, inserted, err
}

func insert(ctx context.Context, tx pgx.Tx, a model.Appointment, skipConflict bool) (model.Appointment, error) {
	query := `
		INSERT INTO appointments
			(tenant_id, dog_id, groomer_id, scheduled_at, services, notes, status, external_event_id, details_needed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if skipConflict {
		query += `
		ON CONFLICT (tenant_id, external_event_id) WHERE external_event_id IS NOT NULL DO NOTHING`
	}
	query += `
		RETURNING id::text, created_at, updated_at`
	err := tx.QueryRow(ctx, query,
		a.TenantID, a.DogID, a.GroomerID, a.ScheduledAt.UTC(), a.Services, a.Notes,
		string(a.Status), nullable(a.ExternalEventID), a.DetailsNeeded,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Update saves a local edit.
func (r *AppointmentRepository) Update(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	return r.update(ctx, a, outbox.AppointmentUpdated)
}

// UpdateSynced saves a change pulled from the calendar.
func (r *AppointmentRepository) UpdateSynced(ctx context.Context, a model.Appointment) error {
	_, err := r.update(ctx, a, outbox.AppointmentSynced)
	return err
}

func (r *AppointmentRepository) update(ctx context.Context, a model.Appointment, eventType string) (model.Appointment, error) {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE appointments
			SET dog_id = $3,
				groomer_id = $4,
				scheduled_at = $5,
				services = $6,
				notes = $7,
				status = $8,
				external_event_id = $9,
				details_needed = $10,
				updated_at = now()
			WHERE tenant_id = $1 AND id = $2
			RETURNING updated_at
		`, a.TenantID, a.ID, a.DogID, a.GroomerID, a.ScheduledAt.UTC(), a.Services, a.Notes,
			string(a.Status), nullable(a.ExternalEventID), a.DetailsNeeded,
		).Scan(&a.UpdatedAt)
		if err != nil {
			return notFound(err)
		}
		return r.outbox.Insert(ctx, tx, outbox.AppointmentEvent(eventType, a))
	})
	return a, err
}

func (r *AppointmentRepository) SetExternalID(ctx context.Context, tenantID, appointmentID, externalID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET external_event_id = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, appointmentID, nullable(externalID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a local appointment and returns it so the caller can push
// the deletion.
func (r *AppointmentRepository) Delete(ctx context.Context, tenantID, id string) (model.Appointment, error) {
	var a model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		a, err = scanAppointment(tx.QueryRow(ctx, `
			DELETE FROM appointments
			WHERE tenant_id = $1 AND id = $2
			RETURNING `+appointmentColumns, tenantID, id))
		if err != nil {
			return notFound(err)
		}
		return r.outbox.Insert(ctx, tx, outbox.AppointmentEvent(outbox.AppointmentDeleted, a))
	})
	return a, err
}

// DeleteByExternalIDs deletes the tenant's appointments linked to any of the
// given events. Rows of other tenants are never touched.
func (r *AppointmentRepository) DeleteByExternalIDs(ctx context.Context, tenantID string, externalIDs []string) ([]string, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			DELETE FROM appointments
			WHERE tenant_id = $1 AND external_event_id = ANY($2)
			RETURNING `+appointmentColumns, tenantID, externalIDs)
		if err != nil {
			return err
		}
		deleted, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
			return scanAppointment(row)
		})
		if err != nil {
			return err
		}
		for _, a := range deleted {
			if err := r.outbox.Insert(ctx, tx, outbox.AppointmentEvent(outbox.AppointmentRemoved, a)); err != nil {
				return err
			}
			ids = append(ids, a.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
