package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/db"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/webhook"
)

// SyncStateRepository stores sync cursors and push channels.
type SyncStateRepository struct {
	pool *db.Pool
}

func NewSyncStateRepository(pool *db.Pool) *SyncStateRepository {
	return &SyncStateRepository{pool: pool}
}

func (r *SyncStateRepository) LoadCursor(ctx context.Context, tenantID, calendarID string) (string, error) {
	var token string
	err := r.pool.QueryRow(ctx, `
		SELECT sync_token FROM calendar_sync_cursors
		WHERE tenant_id = $1 AND calendar_id = $2
	`, tenantID, calendarID).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return token, err
}

func (r *SyncStateRepository) SaveCursor(ctx context.Context, tenantID, calendarID, cursor string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_sync_cursors (tenant_id, calendar_id, sync_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, calendar_id)
		DO UPDATE SET sync_token = EXCLUDED.sync_token, updated_at = now()
	`, tenantID, calendarID, cursor)
	return err
}

func (r *SyncStateRepository) ClearCursor(ctx context.Context, tenantID, calendarID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM calendar_sync_cursors WHERE tenant_id = $1 AND calendar_id = $2
	`, tenantID, calendarID)
	return err
}

func (r *SyncStateRepository) SaveChannel(ctx context.Context, ch webhook.Channel) error {
	var expires *time.Time
	if !ch.Expiration.IsZero() {
		expires = &ch.Expiration
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_channels (channel_id, tenant_id, calendar_id, resource_id, address, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ch.ChannelID, ch.TenantID, ch.CalendarID, ch.ResourceID, ch.Address, expires)
	return err
}

// LatestChannel returns the most recently registered channel, if any.
func (r *SyncStateRepository) LatestChannel(ctx context.Context, tenantID string) (webhook.Channel, bool, error) {
	var ch webhook.Channel
	var expires *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT channel_id, tenant_id::text, calendar_id, resource_id, address, expires_at
		FROM calendar_channels
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID).Scan(&ch.ChannelID, &ch.TenantID, &ch.CalendarID, &ch.ResourceID, &ch.Address, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return webhook.Channel{}, false, nil
	}
	if err != nil {
		return webhook.Channel{}, false, err
	}
	if expires != nil {
		ch.Expiration = expires.UTC()
	}
	return ch, true, nil
}
