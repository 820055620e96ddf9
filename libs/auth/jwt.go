package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies the caller and the tenant every downstream call is scoped to.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type VerifierConfig struct {
	// HMACSecret verifies HS256 tokens minted by the auth service.
	HMACSecret string
	// JWKSURL, when set, verifies RS256 tokens against the published key set.
	JWKSURL string
	Issuer  string
	Leeway  time.Duration
}

// Verifier validates bearer tokens. A nil keyset means RS256 tokens are rejected.
type Verifier struct {
	secret []byte
	jwks   keyfunc.Keyfunc
	parser *jwt.Parser
}

func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.HMACSecret) == "" && strings.TrimSpace(cfg.JWKSURL) == "" {
		return nil, errors.New("auth: HMAC secret or JWKS URL required")
	}
	var jwks keyfunc.Keyfunc
	if cfg.JWKSURL != "" {
		var err error
		jwks, err = keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("auth: load jwks %s: %w", cfg.JWKSURL, err)
		}
	}
	return newVerifier([]byte(cfg.HMACSecret), jwks, cfg.Issuer, cfg.Leeway), nil
}

func newVerifier(secret []byte, jwks keyfunc.Keyfunc, issuer string, leeway time.Duration) *Verifier {
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(leeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{secret: secret, jwks: jwks, parser: jwt.NewParser(opts...)}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, v.keyFor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.TenantID) == "" {
		return nil, fmt.Errorf("%w: missing tenant_id", ErrInvalidToken)
	}
	return claims, nil
}

func (v *Verifier) keyFor(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("hmac tokens not accepted")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.jwks == nil {
			return nil, errors.New("rsa tokens not accepted")
		}
		return v.jwks.Keyfunc(token)
	default:
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
}

// SignHS256 mints a token; used by tooling and tests.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
