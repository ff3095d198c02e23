package model

import "time"

// LicenseView is the public projection of a credential returned to clients.
type LicenseView struct {
	Tier            Tier       `json:"tier"`
	Status          string     `json:"status"`
	Features        []string   `json:"features"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ActivationsUsed int        `json:"activations_used"`
	ActivationLimit int        `json:"activation_limit"`
	ActiveSites     []string   `json:"active_sites"`
	Token           string     `json:"token,omitempty"`
}
