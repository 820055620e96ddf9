package credentials

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// CalendarScope is the grant required for read/write event sync.
const CalendarScope = "https://www.googleapis.com/auth/calendar"

// TokenRecord is the persisted OAuth grant for one tenant.
type TokenRecord struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token"`
	TokenURI     string     `json:"token_uri"`
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret"`
	Scopes       []string   `json:"scopes"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

var ErrMissingFields = errors.New("missing required token fields")

// Validate checks the fields a refresh exchange cannot work without.
func (r TokenRecord) Validate() error {
	var missing []string
	if strings.TrimSpace(r.RefreshToken) == "" {
		missing = append(missing, "refresh_token")
	}
	if strings.TrimSpace(r.TokenURI) == "" {
		missing = append(missing, "token_uri")
	}
	if strings.TrimSpace(r.ClientID) == "" {
		missing = append(missing, "client_id")
	}
	if strings.TrimSpace(r.ClientSecret) == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	return nil
}

func (r TokenRecord) HasScope(scope string) bool {
	for _, s := range r.Scopes {
		if strings.TrimSpace(s) == scope {
			return true
		}
	}
	return false
}

func (r TokenRecord) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		Scopes:       r.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  r.TokenURI,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// oauthToken converts the record. A record without an expiry but with an
// access token is treated as already expired so the first use refreshes it.
func (r TokenRecord) oauthToken(now time.Time) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.Token,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
	}
	switch {
	case r.Expiry != nil:
		tok.Expiry = *r.Expiry
	case r.Token != "":
		tok.Expiry = now.Add(-time.Second)
	}
	return tok
}

// withToken returns a copy carrying the refreshed grant.
func (r TokenRecord) withToken(tok *oauth2.Token) TokenRecord {
	out := r
	out.Token = tok.AccessToken
	if tok.RefreshToken != "" {
		out.RefreshToken = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		out.Expiry = &exp
	} else {
		out.Expiry = nil
	}
	return out
}
