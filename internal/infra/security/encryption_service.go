package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// KeySealer encrypts raw license keys at rest so they can be shown back to
// their owner. Lookups never use the sealed value; they go through KeyCodec.Hash.
// Format: base64(nonce || AES-GCM ciphertext).
type KeySealer struct {
	gcm cipher.AEAD
}

// NewKeySealer expects a 16, 24 or 32 byte key (AES-128/192/256).
func NewKeySealer(key string) (*KeySealer, error) {
	k := []byte(key)
	n := len(k)
	if n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", n)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &KeySealer{gcm: gcm}, nil
}

// Seal binds the ciphertext to the credential id so sealed keys cannot be
// swapped between rows.
func (s *KeySealer) Seal(credentialID, key string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := s.gcm.Seal(nonce, nonce, []byte(key), []byte(credentialID))
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (s *KeySealer) Open(credentialID, sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	ns := s.gcm.NonceSize()
	if len(data) < ns {
		return "", fmt.Errorf("ciphertext too short")
	}
	pt, err := s.gcm.Open(nil, data[:ns], data[ns:], []byte(credentialID))
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(pt), nil
}
