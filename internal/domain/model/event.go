package model

import "time"

type EventType string

const (
	EventActivated     EventType = "license.activated"
	EventReactivated   EventType = "license.reactivated"
	EventDeactivated   EventType = "license.deactivated"
	EventExpired       EventType = "license.expired"
	EventStatusChanged EventType = "license.status_changed" // suspend, revoke, reactivate, renew
)

// Event is published fire-and-forget after a committed state change.
type Event struct {
	ID           string            `json:"id"`
	Type         EventType         `json:"type"`
	CredentialID string            `json:"credential_id"`
	Site         string            `json:"site,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
	Data         map[string]string `json:"data,omitempty"`
}
