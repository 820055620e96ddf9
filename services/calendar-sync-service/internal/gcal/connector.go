package gcal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/credentials"
	"github.com/CoraReneeOfficial/pawfection-testing-sub000/services/calendar-sync-service/internal/model"
)

// ErrNotConnected means the tenant has no calendar id or no usable grant.
var ErrNotConnected = errors.New("calendar not connected")

// Session is an authorized handle on one tenant's calendar.
type Session struct {
	Tenant     model.Tenant
	CalendarID string
	Events     EventsAPI
}

// Location is the tenant's zone, used for naive times in both directions.
func (s *Session) Location() *time.Location { return s.Tenant.Location() }

// Opener hands out sessions; the sync engine depends on this instead of the
// concrete connector.
type Opener interface {
	Open(ctx context.Context, tenantID string) (*Session, error)
}

type TenantSource interface {
	GetTenant(ctx context.Context, tenantID string) (model.Tenant, error)
}

type CredentialSource interface {
	Get(ctx context.Context, tenantID string) (*credentials.Credential, error)
}

type Connector struct {
	tenants  TenantSource
	creds    CredentialSource
	endpoint string
}

// NewConnector builds an Opener over the live API. endpoint is optional.
func NewConnector(tenants TenantSource, creds CredentialSource, endpoint string) *Connector {
	return &Connector{tenants: tenants, creds: creds, endpoint: endpoint}
}

func (c *Connector) Open(ctx context.Context, tenantID string) (*Session, error) {
	tenant, err := c.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	calendarID := strings.TrimSpace(tenant.CalendarID)
	if calendarID == "" {
		return nil, fmt.Errorf("%w: no calendar id configured", ErrNotConnected)
	}
	cred, err := c.creds.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, credentials.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		return nil, err
	}
	if cred == nil || cred.Client == nil {
		return nil, fmt.Errorf("%w: credential has no authorized client", ErrNotConnected)
	}
	api, err := NewEventsAPI(ctx, cred.Client, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("calendar client: %w", err)
	}
	return &Session{Tenant: tenant, CalendarID: calendarID, Events: api}, nil
}
