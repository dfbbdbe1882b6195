package token

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(ctx context.Context, token string) (bool, error)

func (f checkerFunc) TokenExists(ctx context.Context, token string) (bool, error) {
	return f(ctx, token)
}

func TestIssueProducesURLSafeTokens(t *testing.T) {
	issuer := NewIssuer(checkerFunc(func(context.Context, string) (bool, error) {
		return false, nil
	}))

	seen := make(map[string]bool)
	for range 100 {
		tok, err := issuer.Issue(context.Background())
		require.NoError(t, err)
		assert.Len(t, tok, 43) // 32 bytes, base64url without padding
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.NotContains(t, tok, "=")
		assert.False(t, seen[tok], "token repeated")
		seen[tok] = true
	}
}

func TestIssueRetriesOnCollision(t *testing.T) {
	calls := 0
	issuer := NewIssuer(checkerFunc(func(context.Context, string) (bool, error) {
		calls++
		return calls <= 2, nil // first two candidates "exist"
	}))

	tok, err := issuer.Issue(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, 3, calls)
}

func TestIssueGivesUpAfterMaxAttempts(t *testing.T) {
	issuer := NewIssuer(checkerFunc(func(context.Context, string) (bool, error) {
		return true, nil
	}))

	_, err := issuer.Issue(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
}
