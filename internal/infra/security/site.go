package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/url"
	"strings"
)

var ErrInvalidSiteURL = errors.New("invalid site url")

// Site is a normalized site identity.
type Site struct {
	URL    string // scheme://host[:port][/path]
	Host   string // lower-cased host without port or leading www.
	Domain string // lower-cased host as presented, www. kept; used for restriction matching
	Hash   string // hex SHA-256, 64 chars
}

// NormalizeSite canonicalizes a site URL. Scheme, query, fragment, default
// ports, a leading "www." and trailing slashes do not change the identity, so
// an http to https move keeps the same hash.
func NormalizeSite(raw string) (Site, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Site{}, ErrInvalidSiteURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Site{}, ErrInvalidSiteURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Site{}, ErrInvalidSiteURL
	}
	domain := strings.ToLower(u.Hostname())
	if domain == "" {
		return Site{}, ErrInvalidSiteURL
	}
	host := strings.TrimPrefix(domain, "www.")
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	hostPort := host
	if port != "" {
		hostPort = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		hostPort = "[" + host + "]"
	}
	path := strings.TrimRight(u.EscapedPath(), "/")

	identity := hostPort + path
	sum := sha256.Sum256([]byte(identity))
	return Site{
		URL:    scheme + "://" + identity,
		Host:   host,
		Domain: domain,
		Hash:   hex.EncodeToString(sum[:]),
	}, nil
}
