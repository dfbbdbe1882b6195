package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes yields 256 bits of entropy; base64url encodes to a 43-character
// URL-safe string.
const tokenBytes = 32

// maxAttempts bounds the collision retry loop. A collision is statistically
// negligible at this entropy; exhausting the loop means the store is lying.
const maxAttempts = 5

// Checker answers whether a token is already assigned to a slip. The slip
// store implements it; the issuer owns no persistence.
type Checker interface {
	TokenExists(ctx context.Context, token string) (bool, error)
}

// Issuer mints unique, unguessable access tokens for slips.
type Issuer struct {
	checker Checker
}

func NewIssuer(checker Checker) *Issuer {
	return &Issuer{checker: checker}
}

// Issue returns a fresh token guaranteed unique against the checker at issue
// time. Persistence of the token is the caller's responsibility.
func (i *Issuer) Issue(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tok, err := generate()
		if err != nil {
			return "", err
		}
		exists, err := i.checker.TokenExists(ctx, tok)
		if err != nil {
			return "", fmt.Errorf("check token uniqueness: %w", err)
		}
		if !exists {
			return tok, nil
		}
	}
	return "", fmt.Errorf("token generation exhausted %d attempts", maxAttempts)
}

func generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
