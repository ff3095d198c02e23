package model

import (
	"strings"
	"time"

	"license-activation-service/internal/domain"
)

type CredentialStatus string

const (
	CredentialStatusActive    CredentialStatus = "active"
	CredentialStatusExpired   CredentialStatus = "expired"
	CredentialStatusSuspended CredentialStatus = "suspended"
	CredentialStatusRevoked   CredentialStatus = "revoked"
)

// Credential is a license key and the entitlement attached to it.
// The raw key is never kept in comparable form: lookups go through KeyHash and
// KeySealed holds an AES-GCM ciphertext for customer display only.
type Credential struct {
	ID              string
	KeyHash         string
	KeySealed       string
	ProductID       string
	Tier            Tier
	Status          CredentialStatus
	ActivationLimit int
	ExpiresAt       *time.Time // nil means perpetual
	CustomerID      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewCredential validates and builds an active credential.
func NewCredential(id, keyHash, productID, customerID string, tier Tier, limit int, expiresAt *time.Time) (*Credential, error) {
	if id == "" || keyHash == "" || strings.TrimSpace(customerID) == "" || limit <= 0 || !tier.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if productID == "" {
		productID = DefaultProduct
	}
	now := time.Now().UTC()
	return &Credential{
		ID:              id,
		KeyHash:         keyHash,
		ProductID:       productID,
		Tier:            tier,
		Status:          CredentialStatusActive,
		ActivationLimit: limit,
		ExpiresAt:       expiresAt,
		CustomerID:      customerID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// IsOverdue reports an active credential whose expiry date has passed.
// Such a credential must be corrected to expired before any decision is made on it.
func (c *Credential) IsOverdue(now time.Time) bool {
	return c.Status == CredentialStatusActive && c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// CanTransition enforces the status graph: revoked is terminal, and only an
// explicit reactivation or renewal leaves suspended or expired.
func (c *Credential) CanTransition(to CredentialStatus) error {
	if c.Status == to {
		return nil
	}
	switch c.Status {
	case CredentialStatusRevoked:
		return domain.ErrInvalidTransition
	case CredentialStatusActive:
		return nil
	case CredentialStatusSuspended, CredentialStatusExpired:
		if to == CredentialStatusActive || to == CredentialStatusRevoked {
			return nil
		}
		if c.Status == CredentialStatusExpired && to == CredentialStatusSuspended {
			return nil
		}
		return domain.ErrInvalidTransition
	default:
		return domain.ErrInvalidTransition
	}
}
