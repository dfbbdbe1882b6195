// Package shared holds the JSON envelope helpers every handler uses so
// transport responses stay uniform across the public and admin surfaces.
package shared

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	pkgerrors "slipgate/pkg/errors"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error to its HTTP status and envelope.
// Validation errors carry the full violation list so clients get every
// problem in one response.
func WriteError(w http.ResponseWriter, err error) {
	code := pkgerrors.CodeOf(err)
	resp := ErrorResponse{
		Error:      string(code),
		Message:    err.Error(),
		Violations: pkgerrors.ViolationsOf(err),
	}
	WriteJSON(w, pkgerrors.ToHTTPStatus(code), resp)
}

// ClientAddr extracts the originating client address, preferring the first
// X-Forwarded-For hop when a proxy sits in front.
func ClientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
