package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipgate/internal/audit"
	"slipgate/internal/slip"
)

func TestComputeMatchesCanonicalEnvelope(t *testing.T) {
	h := New("app-secret", nil)

	got := h.Compute(`{"x":1,"y":2}`, "Dana Martin", "2024-01-15T10:00:00Z", "1.2.3.4")

	// The envelope's field order is part of the stored-hash contract.
	canonical := `{"signature":"{\"x\":1,\"y\":2}","parent_name":"Dana Martin","timestamp":"2024-01-15T10:00:00Z","ip_address":"1.2.3.4","app_key":"app-secret"}`
	sum := sha256.Sum256([]byte(canonical))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestComputeIsDeterministic(t *testing.T) {
	h := New("app-secret", nil)
	a := h.Compute("sig", "name", "2024-01-15", "10.0.0.1")
	b := h.Compute("sig", "name", "2024-01-15", "10.0.0.1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestComputeSensitiveToEveryField(t *testing.T) {
	h := New("app-secret", nil)
	base := h.Compute("sig", "name", "ts", "ip")

	assert.NotEqual(t, base, h.Compute("sig2", "name", "ts", "ip"))
	assert.NotEqual(t, base, h.Compute("sig", "name2", "ts", "ip"))
	assert.NotEqual(t, base, h.Compute("sig", "name", "ts2", "ip"))
	assert.NotEqual(t, base, h.Compute("sig", "name", "ts", "ip2"))
	assert.NotEqual(t, base, New("other-secret", nil).Compute("sig", "name", "ts", "ip"))
}

func signedSlip(h *Hasher) *slip.Slip {
	signedAt := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)
	s := &slip.Slip{
		ID:                 uuid.New(),
		SubjectName:        "Ava Martin",
		GuardianName:       "Dana Martin",
		Signed:             true,
		SignaturePayload:   `{"x":1,"y":2}`,
		SignatureTimestamp: "2024-01-15T10:00:00Z",
		SignedAt:           &signedAt,
		SignedFromAddress:  "1.2.3.4",
	}
	s.VerificationHash = h.Compute(s.SignaturePayload, s.GuardianName, s.SignatureTimestamp, s.SignedFromAddress)
	return s
}

func TestVerifyRoundTrip(t *testing.T) {
	h := New("app-secret", nil)
	s := signedSlip(h)
	assert.True(t, h.Verify(context.Background(), s))
}

func TestVerifyDetectsTampering(t *testing.T) {
	h := New("app-secret", nil)

	t.Run("altered signature", func(t *testing.T) {
		s := signedSlip(h)
		s.SignaturePayload = `{"x":1,"y":3}`
		assert.False(t, h.Verify(context.Background(), s))
	})

	t.Run("altered guardian name", func(t *testing.T) {
		s := signedSlip(h)
		s.GuardianName = "Mallory"
		assert.False(t, h.Verify(context.Background(), s))
	})

	t.Run("altered stored hash", func(t *testing.T) {
		s := signedSlip(h)
		s.VerificationHash = s.VerificationHash[:63] + "0"
		if s.VerificationHash == signedSlip(h).VerificationHash {
			s.VerificationHash = s.VerificationHash[:63] + "1"
		}
		assert.False(t, h.Verify(context.Background(), s))
	})
}

func TestVerifyReturnsFalseNotError(t *testing.T) {
	h := New("app-secret", nil)

	assert.False(t, h.Verify(context.Background(), nil))
	assert.False(t, h.Verify(context.Background(), &slip.Slip{Signed: false}))
	assert.False(t, h.Verify(context.Background(), &slip.Slip{Signed: true})) // missing fields
}

func TestVerifyEmitsAuditEvent(t *testing.T) {
	store := audit.NewInMemoryStore()
	h := New("app-secret", audit.NewPublisher(store))
	s := signedSlip(h)

	require.True(t, h.Verify(context.Background(), s))
	s.GuardianName = "Mallory"
	require.False(t, h.Verify(context.Background(), s))

	events, err := store.ListBySlip(context.Background(), s.ID.String())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionVerificationAttempted, events[0].Action)
	assert.Equal(t, "valid", events[0].Decision)
	assert.Equal(t, "invalid", events[1].Decision)
}
