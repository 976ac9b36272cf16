package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const (
	refreshTokenRawSize = 48
	resetSecretSize     = 32

	// rate-limit keys use a digest prefix, never token material
	tokenKeyPrefixLen = 16
)

// ErrMalformedToken is returned when a presented opaque token fails the
// syntactic checks that every engine-issued token satisfies.
var ErrMalformedToken = errors.New("malformed opaque token")

// NewRefreshToken mints an opaque refresh token and its storage digest.
// The token is refreshTokenRawSize bytes of CSPRNG output in raw
// base64url; the digest is the lowercase hex SHA-256 of the encoded
// token, which is the only form ever persisted.
func NewRefreshToken() (token string, digest string, err error) {
	var raw [refreshTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}

	token = base64.RawURLEncoding.EncodeToString(raw[:])
	return token, DigestToken(token), nil
}

// ParseRefreshToken validates the syntax of a presented refresh token
// and returns its storage digest. Malformed input fails fast without a
// store round trip.
func ParseRefreshToken(token string) (digest string, err error) {
	raw, decodeErr := base64.RawURLEncoding.DecodeString(token)
	if decodeErr != nil {
		return "", ErrMalformedToken
	}
	if len(raw) != refreshTokenRawSize {
		return "", ErrMalformedToken
	}

	return DigestToken(token), nil
}

// DigestToken returns the lowercase hex SHA-256 of the encoded token.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenRateKey derives the rate-limiter key fragment for a token digest.
// A fixed-length prefix keeps Redis keys short while remaining unique
// enough for per-token windows.
func TokenRateKey(digest string) string {
	if len(digest) <= tokenKeyPrefixLen {
		return digest
	}
	return digest[:tokenKeyPrefixLen]
}

// NewResetSecret mints the secret half of a password reset challenge.
func NewResetSecret() ([resetSecretSize]byte, error) {
	var secret [resetSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashResetSecret hashes a reset secret for storage and comparison.
func HashResetSecret(secret [resetSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// HashResetBytes hashes arbitrary presented secret bytes.
func HashResetBytes(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// EncodeResetToken packs a challenge id and secret into one opaque
// string for out-of-band delivery.
func EncodeResetToken(resetID string, secret [resetSecretSize]byte) string {
	payload := make([]byte, 0, len(resetID)+1+resetSecretSize)
	payload = append(payload, resetID...)
	payload = append(payload, 0)
	payload = append(payload, secret[:]...)
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeResetToken splits an opaque reset token back into challenge id
// and secret.
func DecodeResetToken(token string) (string, [resetSecretSize]byte, error) {
	var secret [resetSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, ErrMalformedToken
	}
	if len(raw) < resetSecretSize+2 {
		return "", secret, ErrMalformedToken
	}

	idPart := raw[:len(raw)-resetSecretSize]
	if idPart[len(idPart)-1] != 0 {
		return "", secret, ErrMalformedToken
	}
	copy(secret[:], raw[len(raw)-resetSecretSize:])

	return string(idPart[:len(idPart)-1]), secret, nil
}
