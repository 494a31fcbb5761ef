// File: internal/access/session.go
package access

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/config"
)

// SessionCookie is the cookie consulted when no Authorization header is sent.
const SessionCookie = "agentdeck_session"

var (
	// ErrNoSession means the request carried no session token.
	ErrNoSession = errors.New("no session token")
	// ErrInvalidSession means the token failed verification.
	ErrInvalidSession = errors.New("invalid session token")
)

// SessionClaims is the payload of a dashboard session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Wallet          string `json:"wallet,omitempty"`
	TwitterUsername string `json:"twitter_username,omitempty"`
	FarcasterFID    int64  `json:"farcaster_fid,omitempty"`
}

// Identity converts verified claims into the identity the resolver consumes.
func (c *SessionClaims) Identity() schemas.IdentityClaim {
	id := schemas.IdentityClaim{
		SignedIn:      true,
		WalletAddress: c.Wallet,
	}
	if c.TwitterUsername != "" {
		id.Twitter = &schemas.TwitterIdentity{Username: c.TwitterUsername}
	}
	if c.FarcasterFID != 0 {
		id.Farcaster = &schemas.FarcasterIdentity{FID: c.FarcasterFID}
	}
	return id
}

// SessionVerifier checks HS256 session tokens minted by the sign-in provider.
type SessionVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSessionVerifier builds a verifier from the session config section.
func NewSessionVerifier(cfg config.SessionConfig) (*SessionVerifier, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("session.jwt_secret is required")
	}
	return &SessionVerifier{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, now: time.Now}, nil
}

// Verify parses and validates a token string.
func (v *SessionVerifier) Verify(token string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// FromRequest extracts and verifies the session of r. The bearer token wins
// over the cookie. A request without a token returns ErrNoSession.
func (v *SessionVerifier) FromRequest(r *http.Request) (schemas.IdentityClaim, error) {
	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(SessionCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return schemas.IdentityClaim{}, ErrNoSession
	}
	claims, err := v.Verify(token)
	if err != nil {
		return schemas.IdentityClaim{}, err
	}
	return claims.Identity(), nil
}

// Sign mints a token for claims. Only tests and the local CLI use it; real
// sessions come from the sign-in provider.
func (v *SessionVerifier) Sign(claims *SessionClaims, ttl time.Duration) (string, error) {
	now := v.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if v.issuer != "" && claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
