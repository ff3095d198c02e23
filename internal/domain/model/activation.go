package model

import "time"

// Activation binds one credential to one site. Rows are never deleted by the
// engine; deactivation flips Active and stamps DeactivatedAt.
type Activation struct {
	ID            string
	CredentialID  string
	SiteURL       string // normalized URL as presented
	SiteHash      string // fixed-length digest of SiteURL, used for equality and indexing
	SiteName      string
	ClientVersion string
	LastError     string
	Active        bool
	ActivatedAt   time.Time
	LastSeenAt    time.Time
	DeactivatedAt *time.Time
}

// ActivationRequest carries the optional health telemetry reported by the client.
type ActivationRequest struct {
	SiteURL       string
	SiteHash      string
	SiteName      string
	ClientVersion string
	LastError     string
}

// ActivationOutcome describes what Activate did.
type ActivationOutcome struct {
	Activation *Activation
	Reused     bool // an already-active row was refreshed
	Revived    bool // an inactive row was flipped back on
}
