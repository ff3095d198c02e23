package model

import "time"

// EndpointClass selects a rate policy and labels attempt records.
type EndpointClass string

const (
	EndpointValidate    EndpointClass = "validate"
	EndpointDeactivate  EndpointClass = "deactivate"
	EndpointStatus      EndpointClass = "status"
	EndpointActivations EndpointClass = "activations"
	EndpointDownload    EndpointClass = "download"
	EndpointDefault     EndpointClass = "default"
)

// AttemptRecord is an append-only log line for one validation attempt.
type AttemptRecord struct {
	ID            string
	MaskedKey     string
	Site          string
	Identifier    string
	EndpointClass EndpointClass
	Success       bool
	ErrorKind     string
	Message       string
	CreatedAt     time.Time
}

// SuspiciousIdentifier aggregates failures for one caller.
type SuspiciousIdentifier struct {
	Identifier string
	Failures   int
	LastSeen   time.Time
}
