//go:build !integration

package security

import (
	"errors"
	"testing"
)

func TestNormalizeSite(t *testing.T) {
	a, err := NormalizeSite("https://www.Example.com/")
	if err != nil {
		t.Fatalf("NormalizeSite: %v", err)
	}
	if a.URL != "https://example.com" || a.Host != "example.com" || a.Domain != "www.example.com" {
		t.Errorf("unexpected normalization: %+v", a)
	}
	if len(a.Hash) != 64 {
		t.Errorf("hash length = %d", len(a.Hash))
	}

	same := []string{
		"http://example.com",
		"https://example.com:443",
		"https://EXAMPLE.com/?utm=1#top",
	}
	for _, raw := range same {
		s, err := NormalizeSite(raw)
		if err != nil {
			t.Fatalf("NormalizeSite(%q): %v", raw, err)
		}
		if s.Hash != a.Hash {
			t.Errorf("%q should hash like %q", raw, a.URL)
		}
	}

	b, _ := NormalizeSite("https://example.com/shop")
	c, _ := NormalizeSite("https://example.com:8443")
	if b.Hash == a.Hash || c.Hash == a.Hash {
		t.Error("path or non-default port must change the identity")
	}

	for _, bad := range []string{"", "not a url", "ftp://example.com", "https://", "example.com"} {
		if _, err := NormalizeSite(bad); !errors.Is(err, ErrInvalidSiteURL) {
			t.Errorf("NormalizeSite(%q) expected ErrInvalidSiteURL, got %v", bad, err)
		}
	}
}
