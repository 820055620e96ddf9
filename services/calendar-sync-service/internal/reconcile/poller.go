package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/otel"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/gcal"
)

// ErrCursorExpired means the calendar rejected the sync cursor; the caller
// must drop it and start over with a full reconcile.
var ErrCursorExpired = errors.New("sync cursor expired")

type DeletionPoller struct {
	opener   gcal.Opener
	appts    Appointments
	pageSize int64
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewDeletionPoller(opener gcal.Opener, appts Appointments, pageSize int64, logger *slog.Logger) *DeletionPoller {
	if pageSize <= 0 {
		pageSize = 250
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeletionPoller{
		opener:   opener,
		appts:    appts,
		pageSize: pageSize,
		logger:   logger,
		tracer:   otelx.Tracer("calendar-sync/poller"),
	}
}

// Poll lists changes since cursor and deletes local appointments whose event
// was removed. It returns the cursor to persist; on any failure that is the
// cursor it was given.
func (p *DeletionPoller) Poll(ctx context.Context, tenantID, cursor string) (string, error) {
	sess, err := p.opener.Open(ctx, tenantID)
	if err != nil {
		return cursor, err
	}
	next, _, err := p.poll(ctx, sess, cursor)
	return next, err
}

func (p *DeletionPoller) poll(ctx context.Context, sess *gcal.Session, cursor string) (next string, deleted int, err error) {
	tenantID := sess.Tenant.ID
	ctx, span := p.tracer.Start(ctx, "reconcile.poll_deletions", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Bool("incremental", cursor != ""),
	))
	defer func() {
		span.SetAttributes(attribute.Int("deleted", deleted))
		otelx.EndSpan(span, err)
	}()

	var (
		removed   []string
		syncToken string
	)
	q := gcal.ListQuery{SyncToken: cursor, ShowDeleted: true, MaxResults: p.pageSize}
	for {
		res, err := sess.Events.List(ctx, sess.CalendarID, q)
		if err != nil {
			if gcal.IsGone(err) {
				return cursor, 0, ErrCursorExpired
			}
			return cursor, 0, fmt.Errorf("list changes: %w", err)
		}
		for _, ev := range res.Items {
			if ev.Status == "cancelled" && ev.Id != "" {
				removed = append(removed, ev.Id)
			}
		}
		if res.NextPageToken == "" {
			syncToken = res.NextSyncToken
			break
		}
		q.PageToken = res.NextPageToken
	}

	if len(removed) > 0 {
		ids, err := p.appts.DeleteByExternalIDs(ctx, tenantID, removed)
		if err != nil {
			return cursor, 0, fmt.Errorf("delete appointments: %w", err)
		}
		deleted = len(ids)
		if deleted > 0 {
			p.logger.Info("gcal sync: appointments deleted", "tenant_id", tenantID, "count", deleted)
		}
	}

	if syncToken == "" {
		return cursor, deleted, nil
	}
	return syncToken, deleted, nil
}
