// Package keys generates the API encryption key and device passwords.
//
// Every generator draws from crypto/rand or openssl; math/rand is never used.
package keys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"esp32-init/internal/command"
)

const (
	// KeyBytes is the decoded length of an ESPHome API encryption key.
	KeyBytes = 32

	// Placeholder is a well-formed key used when generation is disabled.
	// It must be replaced before the device is exposed to an untrusted network.
	Placeholder = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// RandomSource generates keys from crypto/rand.
type RandomSource struct{}

func (RandomSource) APIKey(ctx context.Context) (string, error) {
	buf := make([]byte, KeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// OpenSSLSource generates keys with "openssl rand -base64 32".
type OpenSSLSource struct {
	runner command.Runner
}

func NewOpenSSLSource(runner command.Runner) *OpenSSLSource {
	return &OpenSSLSource{runner: runner}
}

func (s *OpenSSLSource) APIKey(ctx context.Context) (string, error) {
	output, err := s.runner.Output(ctx, "openssl", "rand", "-base64", fmt.Sprint(KeyBytes))
	if err != nil {
		return "", fmt.Errorf("openssl rand failed: %w", err)
	}

	key := strings.TrimSpace(string(output))
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("openssl returned invalid base64: %w", err)
	}
	if len(raw) != KeyBytes {
		return "", fmt.Errorf("openssl returned %d bytes, want %d", len(raw), KeyBytes)
	}
	return key, nil
}

// FixedSource always returns the same key.
type FixedSource struct {
	Key string
}

func (s FixedSource) APIKey(ctx context.Context) (string, error) {
	if s.Key == "" {
		return Placeholder, nil
	}
	return s.Key, nil
}

// Password returns n random bytes as lowercase hex.
func Password(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Token returns n random alphanumeric characters.
func Token(n int) (string, error) {
	limit := big.NewInt(int64(len(alphanumeric)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("read random index: %w", err)
		}
		b.WriteByte(alphanumeric[idx.Int64()])
	}
	return b.String(), nil
}
