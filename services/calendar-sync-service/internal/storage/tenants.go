package storage

import (
	"context"
	"strings"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/db"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

type TenantRepository struct {
	pool *db.Pool
}

func NewTenantRepository(pool *db.Pool) *TenantRepository {
	return &TenantRepository{pool: pool}
}

func (r *TenantRepository) GetTenant(ctx context.Context, tenantID string) (model.Tenant, error) {
	var t model.Tenant
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, calendar_id, timezone
		FROM tenants
		WHERE id = $1
	`, tenantID).Scan(&t.ID, &t.Name, &t.CalendarID, &t.Timezone)
	return t, notFound(err)
}

// TenantByCalendarID resolves the channel token of a notification.
func (r *TenantRepository) TenantByCalendarID(ctx context.Context, calendarID string) (model.Tenant, error) {
	calendarID = strings.TrimSpace(calendarID)
	if calendarID == "" {
		return model.Tenant{}, ErrNotFound
	}
	var t model.Tenant
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, calendar_id, timezone
		FROM tenants
		WHERE calendar_id = $1
	`, calendarID).Scan(&t.ID, &t.Name, &t.CalendarID, &t.Timezone)
	return t, notFound(err)
}

func (r *TenantRepository) SetCalendar(ctx context.Context, tenantID, calendarID, timezone string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenants
		SET calendar_id = $2,
			timezone = COALESCE(NULLIF($3, ''), timezone),
			updated_at = now()
		WHERE id = $1
	`, tenantID, strings.TrimSpace(calendarID), strings.TrimSpace(timezone))
	if db.IsUniqueViolation(err, "tenants_calendar_id_key") {
		return ErrCalendarTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadToken returns nil when the tenant never connected a calendar.
func (r *TenantRepository) LoadToken(ctx context.Context, tenantID string) ([]byte, error) {
	var blob []byte
	err := r.pool.QueryRow(ctx, `SELECT google_token FROM tenants WHERE id = $1`, tenantID).Scan(&blob)
	if err != nil {
		return nil, notFound(err)
	}
	return blob, nil
}

func (r *TenantRepository) SaveToken(ctx context.Context, tenantID string, blob []byte) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenants SET google_token = $2, updated_at = now() WHERE id = $1
	`, tenantID, blob)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
