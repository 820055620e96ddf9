package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/gcal"
)

// CursorStore persists one sync cursor per tenant calendar. LoadCursor
// returns "" when none is stored.
type CursorStore interface {
	LoadCursor(ctx context.Context, tenantID, calendarID string) (string, error)
	SaveCursor(ctx context.Context, tenantID, calendarID, cursor string) error
	ClearCursor(ctx context.Context, tenantID, calendarID string) error
}

type SyncResult struct {
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

type Coordinator struct {
	opener     gcal.Opener
	reconciler *Reconciler
	poller     *DeletionPoller
	cursors    CursorStore
	// reconcileOnChange also runs a full reconcile on every notification,
	// so edits made in the calendar arrive without a manual sync.
	reconcileOnChange bool
	logger            *slog.Logger
}

func NewCoordinator(opener gcal.Opener, rec *Reconciler, poller *DeletionPoller, cursors CursorStore, reconcileOnChange bool, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		opener:            opener,
		reconciler:        rec,
		poller:            poller,
		cursors:           cursors,
		reconcileOnChange: reconcileOnChange,
		logger:            logger,
	}
}

// HandleChange reacts to a change notification for tenantID.
func (c *Coordinator) HandleChange(ctx context.Context, tenantID string) error {
	sess, err := c.opener.Open(ctx, tenantID)
	if err != nil {
		return err
	}
	var res SyncResult
	if c.reconcileOnChange {
		n, err := c.reconciler.reconcile(ctx, sess)
		if err != nil {
			c.logger.Warn("gcal sync: reconcile on change failed", "tenant_id", tenantID, "err", err)
		}
		res.Updated = n
	}
	return c.pollAndStore(ctx, sess, &res)
}

// Sync is the user-triggered run: full reconcile, then deletions.
func (c *Coordinator) Sync(ctx context.Context, tenantID string) (SyncResult, error) {
	sess, err := c.opener.Open(ctx, tenantID)
	if err != nil {
		return SyncResult{}, err
	}
	var res SyncResult
	res.Updated, err = c.reconciler.reconcile(ctx, sess)
	if err != nil {
		return res, err
	}
	err = c.pollAndStore(ctx, sess, &res)
	return res, err
}

func (c *Coordinator) pollAndStore(ctx context.Context, sess *gcal.Session, res *SyncResult) error {
	tenantID, calendarID := sess.Tenant.ID, sess.CalendarID
	cursor, err := c.cursors.LoadCursor(ctx, tenantID, calendarID)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	next, deleted, err := c.poller.poll(ctx, sess, cursor)
	if errors.Is(err, ErrCursorExpired) {
		c.logger.Info("gcal sync: cursor expired, running full reconcile", "tenant_id", tenantID)
		if err := c.cursors.ClearCursor(ctx, tenantID, calendarID); err != nil {
			return fmt.Errorf("clear cursor: %w", err)
		}
		n, err := c.reconciler.reconcile(ctx, sess)
		res.Updated += n
		if err != nil {
			return fmt.Errorf("full reconcile: %w", err)
		}
		cursor = ""
		next, deleted, err = c.poller.poll(ctx, sess, cursor)
	}
	res.Deleted += deleted
	if err != nil {
		return err
	}

	if next != "" && next != cursor {
		if err := c.cursors.SaveCursor(ctx, tenantID, calendarID, next); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
	}
	return nil
}
