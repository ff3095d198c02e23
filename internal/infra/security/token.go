package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"license-activation-service/internal/domain/model"
)

// LicenseClaims is the payload of the offline license token handed to a site
// after a successful validation. Clients may trust it until it expires.
type LicenseClaims struct {
	Tier     model.Tier `json:"tier"`
	Features []string   `json:"features,omitempty"`
	Site     string     `json:"site"`
	jwt.RegisteredClaims
}

// TokenSigner mints HS256 license tokens.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenSigner{secret: []byte(secret), ttl: ttl, issuer: "license-activation-service"}
}

// Sign caps the token lifetime at the credential expiry.
func (s *TokenSigner) Sign(c *model.Credential, site string, features []string, now time.Time) (string, error) {
	exp := now.Add(s.ttl)
	if c.ExpiresAt != nil && c.ExpiresAt.Before(exp) {
		exp = *c.ExpiresAt
	}
	claims := LicenseClaims{
		Tier:     c.Tier,
		Features: features,
		Site:     site,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   c.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *TokenSigner) Verify(token string) (*LicenseClaims, error) {
	claims := &LicenseClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
