package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"

// KeyPrefixBase starts every transport key.
const KeyPrefixBase = "concierge"

const randomLen = 32

var (
	ErrMalformedKey = errors.New("malformed transport key")
	ErrInvalidEnv   = errors.New("environment must be lowercase letters, digits or dashes")
)

// GenerateKey creates a new transport key with the format: concierge-{env}-{32 random alphanumeric chars}
func GenerateKey(env string) (string, error) {
	if !validEnv(env) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEnv, env)
	}
	random, err := randomString(randomLen)
	if err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s", KeyPrefixBase, env, random), nil
}

// HashKey returns the SHA-256 hex digest of a transport key.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// KeyPrefix extracts a display-safe prefix from a key: concierge-{env}-{first 8 chars}
func KeyPrefix(key string) string {
	first := strings.IndexByte(key, '-')
	if first < 0 {
		return safePrefix(key)
	}
	second := strings.IndexByte(key[first+1:], '-')
	if second < 0 {
		return safePrefix(key)
	}
	end := first + 1 + second + 1 + 8
	if end > len(key) {
		end = len(key)
	}
	return key[:end]
}

// ParseKey checks the shape of a presented transport key and returns its
// environment. Malformed keys are rejected before any store lookup.
func ParseKey(key string) (string, error) {
	rest, ok := strings.CutPrefix(key, KeyPrefixBase+"-")
	if !ok {
		return "", ErrMalformedKey
	}
	i := strings.LastIndexByte(rest, '-')
	if i < 0 {
		return "", ErrMalformedKey
	}
	env, random := rest[:i], rest[i+1:]
	if !validEnv(env) || len(random) != randomLen || strings.Trim(random, alphanumeric) != "" {
		return "", ErrMalformedKey
	}
	return env, nil
}

func validEnv(env string) bool {
	if env == "" || env[0] == '-' || env[len(env)-1] == '-' {
		return false
	}
	return strings.Trim(env, alphanumeric+"-") == ""
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}

// KeyMetadata holds the cached metadata for a transport key. Each messaging
// transport instance authenticates with its own key.
type KeyMetadata struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	Name       string    `json:"name"`
	RPMLimit   *int      `json:"rpm_limit,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ParseDuration parses a duration string like "365d", "30d", "24h".
func ParseDuration(s string) (time.Duration, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty duration")
	}
	last := s[len(s)-1]
	if last == 'd' {
		var days int
		_, err := fmt.Sscanf(s, "%dd", &days)
		if err != nil {
			return 0, fmt.Errorf("parse days: %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
