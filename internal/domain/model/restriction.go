package model

// RestrictionSet is an optional allow-list policy attached to a credential.
// Every list is opt-in: an empty list does not restrict.
type RestrictionSet struct {
	CredentialID   string   `json:"credential_id"`
	AllowedIPs     []string `json:"allowed_ips"`
	AllowedDomains []string `json:"allowed_domains"`
	HardwareID     string   `json:"hardware_id"`
}

func (r *RestrictionSet) IsEmpty() bool {
	return r == nil || (len(r.AllowedIPs) == 0 && len(r.AllowedDomains) == 0 && r.HardwareID == "")
}

// RequestContext is what the caller presents about itself.
type RequestContext struct {
	IP         string
	Domain     string
	HardwareID string
}

// MatchResult is the outcome of evaluating a RestrictionSet.
type MatchResult struct {
	IPOk       bool
	DomainOk   bool
	HardwareOk bool
	Errors     []string
}

func (m MatchResult) Valid() bool { return m.IPOk && m.DomainOk && m.HardwareOk }
