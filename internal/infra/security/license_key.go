package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyGroups   = 4
	keyGroupLen = 4
	// largest multiple of len(keyAlphabet) that fits in a byte; bytes at or above
	// it are rejected so every symbol is equally likely.
	keyByteCutoff = 252
)

var keyFormat = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// KeyCodec generates license keys and derives their lookup hash.
type KeyCodec struct {
	pepper []byte
	rand   io.Reader
}

// NewKeyCodec builds a codec. The pepper is mixed into every hash so a leaked
// table of hashes cannot be matched against guessed keys offline.
func NewKeyCodec(pepper string) *KeyCodec {
	return &KeyCodec{pepper: []byte(pepper), rand: rand.Reader}
}

// Generate returns a fresh key in canonical form XXXX-XXXX-XXXX-XXXX.
func (c *KeyCodec) Generate() (string, error) {
	const n = keyGroups * keyGroupLen
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(c.rand, buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if b >= keyByteCutoff {
				continue
			}
			out = append(out, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	var sb strings.Builder
	for g := 0; g < keyGroups; g++ {
		if g > 0 {
			sb.WriteByte('-')
		}
		sb.Write(out[g*keyGroupLen : (g+1)*keyGroupLen])
	}
	return sb.String(), nil
}

// Hash returns the hex HMAC-SHA256 of the canonical key.
func (c *KeyCodec) Hash(key string) string {
	m := hmac.New(sha256.New, c.pepper)
	m.Write([]byte(Canonicalize(key)))
	return hex.EncodeToString(m.Sum(nil))
}

// Matches compares a presented key with a stored hash in constant time.
func (c *KeyCodec) Matches(key, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Hash(key)), []byte(storedHash)) == 1
}

// Canonicalize trims surrounding whitespace and upper-cases the key.
func Canonicalize(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// IsValidFormat is a purely structural check on the canonical shape.
func IsValidFormat(s string) bool {
	return keyFormat.MatchString(s)
}

// MaskKey keeps the first and last group of a key and hides the rest.
func MaskKey(key string) string {
	k := Canonicalize(key)
	if IsValidFormat(k) {
		return k[:4] + "-****-****-" + k[len(k)-4:]
	}
	// Malformed input may be any text; cut on runes so the result stays valid UTF-8.
	r := []rune(k)
	if len(r) <= 8 {
		return "***"
	}
	return string(r[:4]) + "..." + string(r[len(r)-2:])
}
