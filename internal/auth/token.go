package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/fieldops/internal/clock"
)

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrTokenExpired = errors.New("token_expired")
	ErrInvalidRole  = errors.New("invalid_role")
	ErrInvalidUser  = errors.New("invalid_user")
)

// Claims carries the caller role next to the registered claims. The user id
// travels in "sub".
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 bearer tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	clock  clock.Clock
}

func NewTokenManager(cfg Config, c clock.Clock) (*TokenManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		c = clock.SystemClock{}
	}
	return &TokenManager{
		secret: []byte(cfg.JWTSecret),
		issuer: strings.TrimSpace(cfg.Issuer),
		ttl:    cfg.TokenTTL,
		leeway: cfg.Leeway,
		clock:  c,
	}, nil
}

// Issue signs a token for the principal and returns it with its expiry.
func (m *TokenManager) Issue(p Principal) (string, time.Time, error) {
	userID := strings.TrimSpace(p.UserID)
	if userID == "" {
		return "", time.Time{}, ErrInvalidUser
	}
	role, ok := ParseRole(string(p.Role))
	if !ok {
		return "", time.Time{}, ErrInvalidRole
	}

	now := m.clock.Now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses a bearer token and returns the principal it names.
func (m *TokenManager) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrInvalidToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		return Principal{}, mapJWTError(err)
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return Principal{}, ErrInvalidUser
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return Principal{}, ErrInvalidRole
	}
	return Principal{UserID: userID, Role: role}, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrInvalidToken
}
