// Package credentials loads, refreshes and persists each tenant's Google OAuth grant.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ErrUnavailable means the tenant has no usable grant; callers treat the
// calendar as not connected and carry on locally.
var ErrUnavailable = errors.New("calendar credentials unavailable")

// Store persists the (possibly sealed) token blob. LoadToken returns nil, nil
// when the tenant never connected a calendar.
type Store interface {
	LoadToken(ctx context.Context, tenantID string) ([]byte, error)
	SaveToken(ctx context.Context, tenantID string, blob []byte) error
}

type Config struct {
	// HTTPTimeout bounds every refresh exchange and every API call made with
	// the returned client.
	HTTPTimeout time.Duration
	Transport   http.RoundTripper
}

// Credential is a ready-to-use grant.
type Credential struct {
	TenantID  string
	Token     *oauth2.Token
	Scopes    []string
	Refreshed bool
	// Client authorizes requests with Token and enforces the configured timeout.
	Client *http.Client
}

type ConnectionStatus struct {
	Connected     bool   `json:"connected"`
	CalendarScope bool   `json:"calendar_scope"`
	Reason        string `json:"reason,omitempty"`
}

type Manager struct {
	store   Store
	sealer  *Sealer
	logger  *slog.Logger
	timeout time.Duration
	base    *http.Client
	now     func() time.Time
}

// NewManager wires the token store. A nil sealer stores records as plain JSON.
func NewManager(store Store, sealer *Sealer, logger *slog.Logger, cfg Config) *Manager {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 20 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Manager{
		store:   store,
		sealer:  sealer,
		logger:  logger,
		timeout: cfg.HTTPTimeout,
		base:    &http.Client{Timeout: cfg.HTTPTimeout, Transport: transport},
		now:     time.Now,
	}
}

// Get returns a valid grant for tenantID, refreshing and persisting it first
// when the access token has expired.
func (m *Manager) Get(ctx context.Context, tenantID string) (*Credential, error) {
	rec, err := m.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		m.logger.Error("gcal credentials invalid", "tenant_id", tenantID, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	current := rec.oauthToken(m.now())
	clientCtx := context.WithValue(ctx, oauth2.HTTPClient, m.base)
	fresh, err := rec.oauthConfig().TokenSource(clientCtx, current).Token()
	if err != nil {
		m.logger.Warn("gcal token refresh failed", "tenant_id", tenantID, "err", err)
		return nil, fmt.Errorf("%w: refresh: %v", ErrUnavailable, err)
	}

	refreshed := fresh.AccessToken != current.AccessToken
	if refreshed {
		// Concurrent refreshes may both land here; the last write wins.
		if err := m.save(ctx, tenantID, rec.withToken(fresh)); err != nil {
			m.logger.Warn("gcal refreshed token not persisted", "tenant_id", tenantID, "err", err)
		} else {
			m.logger.Info("gcal token refreshed", "tenant_id", tenantID, "expiry", fresh.Expiry.UTC().Format(time.RFC3339))
		}
	}

	client := oauth2.NewClient(clientCtx, oauth2.StaticTokenSource(fresh))
	client.Timeout = m.timeout
	return &Credential{
		TenantID:  tenantID,
		Token:     fresh,
		Scopes:    rec.Scopes,
		Refreshed: refreshed,
		Client:    client,
	}, nil
}

// Put validates and stores a grant obtained from the consent flow.
func (m *Manager) Put(ctx context.Context, tenantID string, rec TokenRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return m.save(ctx, tenantID, rec)
}

// Status reports whether the tenant looks connected without calling Google.
func (m *Manager) Status(ctx context.Context, tenantID string) (ConnectionStatus, error) {
	rec, err := m.load(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return ConnectionStatus{Reason: err.Error()}, nil
		}
		return ConnectionStatus{}, err
	}
	if err := rec.Validate(); err != nil {
		return ConnectionStatus{Reason: err.Error()}, nil
	}
	st := ConnectionStatus{Connected: true, CalendarScope: rec.HasScope(CalendarScope)}
	if !st.CalendarScope {
		st.Reason = "calendar scope not granted"
	}
	return st, nil
}

func (m *Manager) load(ctx context.Context, tenantID string) (TokenRecord, error) {
	blob, err := m.store.LoadToken(ctx, tenantID)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("load token: %w", err)
	}
	if len(blob) == 0 {
		return TokenRecord{}, fmt.Errorf("%w: no token stored", ErrUnavailable)
	}

	raw := blob
	if !bytes.HasPrefix(bytes.TrimSpace(blob), []byte("{")) {
		if m.sealer == nil {
			return TokenRecord{}, fmt.Errorf("%w: %v", ErrUnavailable, errSealedNoKey)
		}
		raw, err = m.sealer.Open(tenantID, blob)
		if err != nil {
			return TokenRecord{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	var rec TokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return TokenRecord{}, fmt.Errorf("%w: decode token: %v", ErrUnavailable, err)
	}
	return rec, nil
}

func (m *Manager) save(ctx context.Context, tenantID string, rec TokenRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if m.sealer != nil {
		if blob, err = m.sealer.Seal(tenantID, blob); err != nil {
			return err
		}
	}
	return m.store.SaveToken(ctx, tenantID, blob)
}
