package webhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/gcal"
)

type Channel struct {
	TenantID   string    `json:"tenant_id"`
	CalendarID string    `json:"calendar_id"`
	ChannelID  string    `json:"channel_id"`
	ResourceID string    `json:"resource_id"`
	Address    string    `json:"address"`
	Expiration time.Time `json:"expiration"`
}

type ChannelStore interface {
	SaveChannel(ctx context.Context, ch Channel) error
	LatestChannel(ctx context.Context, tenantID string) (Channel, bool, error)
}

// Registrar opens push channels pointing at this service's webhook address.
type Registrar struct {
	opener  gcal.Opener
	store   ChannelStore
	address string
	ttl     time.Duration
}

func NewRegistrar(opener gcal.Opener, store ChannelStore, address string, ttl time.Duration) *Registrar {
	return &Registrar{opener: opener, store: store, address: address, ttl: ttl}
}

func (r *Registrar) Register(ctx context.Context, tenantID string) (Channel, error) {
	if strings.TrimSpace(r.address) == "" {
		return Channel{}, errors.New("webhook address not configured")
	}
	sess, err := r.opener.Open(ctx, tenantID)
	if err != nil {
		return Channel{}, err
	}

	req := &calendar.Channel{
		Id:      ChannelID(tenantID),
		Type:    "web_hook",
		Address: r.address,
		Token:   sess.CalendarID,
	}
	if r.ttl > 0 {
		req.Params = map[string]string{"ttl": strconv.FormatInt(int64(r.ttl/time.Second), 10)}
	}
	res, err := sess.Events.Watch(ctx, sess.CalendarID, req)
	if err != nil {
		return Channel{}, fmt.Errorf("watch calendar: %w", err)
	}

	ch := Channel{
		TenantID:   tenantID,
		CalendarID: sess.CalendarID,
		ChannelID:  req.Id,
		ResourceID: res.ResourceId,
		Address:    r.address,
	}
	if res.Expiration > 0 {
		ch.Expiration = time.UnixMilli(res.Expiration).UTC()
	}
	if err := r.store.SaveChannel(ctx, ch); err != nil {
		return Channel{}, fmt.Errorf("save channel: %w", err)
	}
	return ch, nil
}

// LatestChannel returns the tenant's most recent registration.
func (r *Registrar) LatestChannel(ctx context.Context, tenantID string) (Channel, bool, error) {
	return r.store.LatestChannel(ctx, tenantID)
}

// ChannelID is unique per registration and names the tenant for operators.
func ChannelID(tenantID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("pawfection-calendar-channel-%s-%s", tenantID, suffix)
}
