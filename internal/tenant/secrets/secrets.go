// Package secrets generates and verifies client API keys.
//
// An API key has the form "<keyID>.<secret>". The key ID is stored in clear
// and indexes the client; only a bcrypt hash of the secret is stored.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "verity/pkg/domain-errors"
)

const keyIDPrefix = "vk_"

// Generate creates a cryptographically secure random secret.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewAPIKey returns the key ID, the secret half and the full key handed to
// the client.
func NewAPIKey() (keyID, secret, full string, err error) {
	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		return "", "", "", fmt.Errorf("could not generate key id: %w", err)
	}
	keyID = keyIDPrefix + hex.EncodeToString(idBytes)
	secret, err = Generate()
	if err != nil {
		return "", "", "", err
	}
	return keyID, secret, keyID + "." + secret, nil
}

// SplitAPIKey separates a presented key into its ID and secret.
func SplitAPIKey(key string) (keyID, secret string, ok bool) {
	keyID, secret, ok = strings.Cut(strings.TrimSpace(key), ".")
	if !ok || !strings.HasPrefix(keyID, keyIDPrefix) || secret == "" {
		return "", "", false
	}
	return keyID, secret, true
}

// Hash creates a bcrypt hash of the provided secret.
func Hash(secret string) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
		}
		return "", fmt.Errorf("could not hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify checks if a plaintext secret matches a bcrypt hash.
func Verify(secret, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
		}
		return fmt.Errorf("could not verify secret: %w", err)
	}
	return nil
}
