package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// APIKeyPrefix marks every business API key
	APIKeyPrefix = "bw_"

	// TokenLength is the number of random bytes in API keys and session tokens
	TokenLength = 32
)

// GenerateToken returns a URL-safe token built from TokenLength random bytes
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateAPIKey returns a new key and the hash stored for it
func GenerateAPIKey() (key, hash string, err error) {
	token, err := GenerateToken()
	if err != nil {
		return "", "", err
	}
	key = APIKeyPrefix + token
	return key, HashToken(key), nil
}

// HashToken hashes a token for storage and lookup (SHA256 hex)
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// LooksLikeAPIKey rejects values that cannot be a key before touching storage
func LooksLikeAPIKey(key string) bool {
	return strings.HasPrefix(key, APIKeyPrefix) && len(key) == len(APIKeyPrefix)+base64.RawURLEncoding.EncodedLen(TokenLength)
}

func last4(key string) string {
	if len(key) < 4 {
		return key
	}
	return key[len(key)-4:]
}
