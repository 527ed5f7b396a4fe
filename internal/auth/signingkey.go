package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	generatedKeyBytes = 64
	minSecretBytes    = 32
)

var ErrSigningKeyMissing = errors.New("JWT signing secret must be configured in production")

// LoadSigningKey resolves the process-wide session signing key once at
// startup. Outside production an absent secret is replaced by a random
// ephemeral key (sessions do not survive a restart); in production an absent
// or short secret is fatal.
func LoadSigningKey(secret, env string) (key []byte, generated bool, err error) {
	if secret != "" {
		if env == "production" && len(secret) < minSecretBytes {
			return nil, false, fmt.Errorf("JWT signing secret must be at least %d bytes in production", minSecretBytes)
		}
		return []byte(secret), false, nil
	}

	if env == "production" {
		return nil, false, ErrSigningKeyMissing
	}

	key = make([]byte, generatedKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generating signing key: %w", err)
	}
	return key, true, nil
}
