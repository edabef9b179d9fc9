package server

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// cookieSealer encrypts and authenticates the session cookie with a key
// derived from the session secret.
type cookieSealer struct {
	key [32]byte
}

func newCookieSealer(secret string) (*cookieSealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	return &cookieSealer{key: sha256.Sum256([]byte(secret))}, nil
}

func (c *cookieSealer) Seal(value string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(value), &nonce, &c.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

func (c *cookieSealer) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("malformed cookie: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("cookie too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	out, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", fmt.Errorf("cookie failed authentication")
	}
	return string(out), nil
}
