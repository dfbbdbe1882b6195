// Package integrity derives and checks the tamper-evident hash over signed
// slip content.
//
// The hash binds the signature, guardian name, client timestamp, and signing
// origin to a server-held secret. It proves "this exact content, from this
// origin, was processed by a server holding this secret" and nothing more.
// It is not a legal digital signature and makes no non-repudiation claim.
//
// Known weakness: the secret is
// server-wide, not per-document, and never rotated. A secret compromise
// invalidates tamper-evidence for every slip at once. Kept as-is so stored
// hashes remain verifiable.
package integrity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"

	"slipgate/internal/audit"
	"slipgate/internal/slip"
)

// hashEnvelope is the canonical tuple fed into the digest. Field order is
// load-bearing: the JSON encoding must stay byte-identical across versions
// or every stored hash stops verifying.
type hashEnvelope struct {
	Signature    string `json:"signature"`
	GuardianName string `json:"parent_name"`
	Timestamp    string `json:"timestamp"`
	IPAddress    string `json:"ip_address"`
	AppKey       string `json:"app_key"`
}

// Hasher computes and verifies verification hashes with a server-held secret.
type Hasher struct {
	secret string
	audits *audit.Publisher
}

// New builds a Hasher. The audit publisher may be nil in pure-computation
// contexts (tests); Verify then skips the audit side effect.
func New(secret string, audits *audit.Publisher) *Hasher {
	return &Hasher{secret: secret, audits: audits}
}

// Compute derives the 256-bit verification hash for the given signed content
// and origin address, hex-encoded.
func (h *Hasher) Compute(signaturePayload, guardianName, timestamp, origin string) string {
	payload, _ := json.Marshal(hashEnvelope{
		Signature:    signaturePayload,
		GuardianName: guardianName,
		Timestamp:    timestamp,
		IPAddress:    origin,
		AppKey:       h.secret,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the hash from the slip's stored fields and compares it in
// constant time against the stored value. It returns false, never an error,
// for unsigned slips, missing fields, or a mismatch. The attempt itself is
// always recorded as an audit event; a failed verification is a
// security-relevant signal in its own right.
func (h *Hasher) Verify(ctx context.Context, s *slip.Slip) bool {
	valid := h.verify(s)
	if h.audits != nil {
		decision := "valid"
		if !valid {
			decision = "invalid"
		}
		_ = h.audits.Emit(ctx, audit.Event{
			Action:   audit.ActionVerificationAttempted,
			SlipID:   s.ID.String(),
			Subject:  s.SubjectName,
			Decision: decision,
		})
	}
	return valid
}

func (h *Hasher) verify(s *slip.Slip) bool {
	if s == nil || !s.Signed {
		return false
	}
	if s.SignaturePayload == "" || s.VerificationHash == "" {
		return false
	}
	expected := h.Compute(s.SignaturePayload, s.GuardianName, s.SignatureTimestamp, s.SignedFromAddress)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(s.VerificationHash)) == 1
}
