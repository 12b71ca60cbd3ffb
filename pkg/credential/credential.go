package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential identifies the caller of a billing operation.
type Credential struct {
	AccountID string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Valid reports whether c names an account and has not expired.
func (c Credential) Valid() bool {
	if c.AccountID == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || time.Now().Before(c.ExpiresAt)
}

type claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Service issues and verifies HS256 tokens carrying a Credential.
type Service struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithIssuer sets the iss claim written and required by the service.
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

// WithTTL sets the lifetime of issued tokens.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New returns a Service keyed by signingKey.
func New(signingKey string, opts ...Option) (*Service, error) {
	if signingKey == "" {
		return nil, ErrMissingSigningKey
	}
	s := &Service{
		key:    []byte(signingKey),
		issuer: "billingsync",
		ttl:    time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for c. The returned credential carries the expiry that
// was written into the token.
func (s *Service) Issue(c Credential) (string, Credential, error) {
	if c.AccountID == "" {
		return "", Credential{}, ErrMissingAccount
	}

	now := time.Now()
	c.ExpiresAt = now.Add(s.ttl).Truncate(time.Second)

	subject := c.UserID
	if subject == "" {
		subject = c.AccountID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		AccountID: c.AccountID,
		Email:     c.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	})

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", Credential{}, fmt.Errorf("credential: sign token: %w", err)
	}
	return signed, c, nil
}

// Verify checks the signature, algorithm, issuer and expiry of raw.
func (s *Service) Verify(raw string) (Credential, error) {
	if raw == "" {
		return Credential{}, ErrMissingToken
	}

	var cl claims
	token, err := jwt.ParseWithClaims(raw, &cl, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnexpectedSigningMethod
		}
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.issuer))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Credential{}, ErrExpiredToken
	case err != nil:
		return Credential{}, errors.Join(ErrInvalidToken, err)
	case !token.Valid:
		return Credential{}, ErrInvalidToken
	}

	if cl.AccountID == "" {
		return Credential{}, ErrMissingAccount
	}

	c := Credential{AccountID: cl.AccountID, Email: cl.Email}
	if cl.Subject != cl.AccountID {
		c.UserID = cl.Subject
	}
	if cl.ExpiresAt != nil {
		c.ExpiresAt = cl.ExpiresAt.Time
	}
	return c, nil
}
