// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"memberportal/internal/access"
	"memberportal/internal/httpx"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrUnknownUser  = errors.New("token subject has no profile")
)

// ProfileSource resolves a session subject to the principal it stands for.
type ProfileSource interface {
	Principal(ctx context.Context, id uuid.UUID) (*access.Principal, error)
}

// Claims are the signed session claims. Subject carries the principal id.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager issues and verifies session tokens and resolves them to principals.
type Manager struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	profiles ProfileSource
	notFound func(error) bool
	now      func() time.Time
	log      *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time used to issue and validate tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithNotFound tells the manager which profile errors mean the subject does not exist.
func WithNotFound(match func(error) bool) Option {
	return func(m *Manager) { m.notFound = match }
}

func NewManager(secret, issuer string, ttl time.Duration, profiles ProfileSource, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		secret:   []byte(secret),
		issuer:   issuer,
		ttl:      ttl,
		profiles: profiles,
		notFound: func(error) bool { return false },
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue signs a token for subject. Members sign in through the identity provider,
// which shares the secret; the portal itself only issues tokens for tests and
// local development.
func (m *Manager) Issue(subject uuid.UUID) (string, error) {
	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.issuer,
			Subject:   subject.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Subject verifies token and returns the principal id it names.
func (m *Manager) Subject(token string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrExpiredToken
		}
		return uuid.Nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

// Resolve verifies token and loads the principal it names.
func (m *Manager) Resolve(ctx context.Context, token string) (*access.Principal, error) {
	id, err := m.Subject(token)
	if err != nil {
		return nil, err
	}
	p, err := m.profiles.Principal(ctx, id)
	if err != nil {
		if m.notFound(err) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

// Middleware attaches the request's principal to its context. Requests without a
// bearer token proceed anonymously; invalid tokens are rejected.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		p, err := m.Resolve(r.Context(), token)
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		case errors.Is(err, ErrExpiredToken):
			httpx.Error(w, http.StatusUnauthorized, httpx.ErrorBody{Error: "session_expired", Message: err.Error()})
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUnknownUser):
			httpx.Error(w, http.StatusUnauthorized, httpx.ErrorBody{Error: "invalid_session", Message: err.Error()})
		default:
			m.log.Error("session resolution failed", zap.Error(err))
			httpx.Error(w, http.StatusBadGateway, httpx.ErrorBody{Error: "upstream_failure", Message: "profile service unavailable"})
		}
	})
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, found && token != ""
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *access.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the request principal, or nil for anonymous requests.
func PrincipalFrom(ctx context.Context) *access.Principal {
	p, _ := ctx.Value(principalKey{}).(*access.Principal)
	return p
}
