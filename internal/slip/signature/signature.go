// Package signature validates and normalizes guardian signature submissions.
//
// Validation is deliberately not fail-fast: every violated rule from one pass
// is collected into a single validation error so the guardian gets the
// complete correction list in one round trip.
package signature

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"slipgate/internal/slip"
	pkgerrors "slipgate/pkg/errors"
)

// Submission is the raw payload a guardian submits. It exists only for the
// duration of one signing request and is never persisted as-is.
type Submission struct {
	Signature    string
	GuardianName string
	Timestamp    string
	Image        string // optional data-URI signature image
}

// Normalized is the validated, trimmed form handed to the integrity hasher
// and the store.
type Normalized struct {
	Signature    string
	GuardianName string
	Timestamp    string
	Method       slip.SignatureMethod
	ImageBytes   []byte
}

var (
	dataURIRe = regexp.MustCompile(`^data:image/(png|jpeg|jpg|svg\+xml);base64,`)
	svgPathRe = regexp.MustCompile(`^[MLHVCSQTAZmlhvcsqtaz0-9\s,.-]+$`)
)

// timestampLayouts accepted from clients. RFC3339 is what well-behaved
// clients send; the date-only and space-separated forms match what the
// original system tolerated.
var timestampLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DetectMethod classifies a signature payload by prefix without validating
// it. Classification happens once; downstream code branches on the tag.
func DetectMethod(sig string) slip.SignatureMethod {
	switch {
	case strings.HasPrefix(sig, "data:image/"):
		return slip.MethodImage
	case strings.HasPrefix(sig, "<svg"):
		return slip.MethodSVGElement
	case strings.HasPrefix(sig, "M "):
		return slip.MethodSVGPath
	case strings.HasPrefix(sig, "{"), strings.HasPrefix(sig, "["):
		return slip.MethodStructured
	default:
		return slip.MethodUnknown
	}
}

// Validate applies all rules to the submission and returns either the
// normalized record or a validation error enumerating every violation.
// Pure function; no side effects.
func Validate(sub Submission) (Normalized, error) {
	var violations []string

	sig := strings.TrimSpace(sub.Signature)
	name := strings.TrimSpace(sub.GuardianName)
	ts := strings.TrimSpace(sub.Timestamp)

	if sig == "" {
		violations = append(violations, "signature is required")
	}
	if name == "" {
		violations = append(violations, "guardian name is required")
	}
	if ts == "" {
		violations = append(violations, "signature timestamp is required")
	} else if !validTimestamp(ts) {
		violations = append(violations, "invalid timestamp format")
	}

	method := slip.MethodUnknown
	if sig != "" {
		method = DetectMethod(sig)
		if !validFormat(sig, method) {
			violations = append(violations, string(pkgerrors.CodeInvalidSignatureFormat))
		}
	}

	var imageBytes []byte
	if img := strings.TrimSpace(sub.Image); img != "" {
		decoded, ok := decodeImagePayload(img)
		if !ok {
			violations = append(violations, "invalid signature image")
		}
		imageBytes = decoded
	}

	if len(violations) > 0 {
		return Normalized{}, pkgerrors.NewValidation(violations)
	}

	return Normalized{
		Signature:    sig,
		GuardianName: name,
		Timestamp:    ts,
		Method:       method,
		ImageBytes:   imageBytes,
	}, nil
}

func validFormat(sig string, method slip.SignatureMethod) bool {
	switch method {
	case slip.MethodImage:
		_, ok := decodeImagePayload(sig)
		return ok
	case slip.MethodSVGElement:
		return strings.Contains(sig, "</svg>")
	case slip.MethodSVGPath:
		return svgPathRe.MatchString(sig)
	case slip.MethodStructured:
		return json.Valid([]byte(sig))
	default:
		return false
	}
}

// decodeImagePayload checks the data-URI scheme and decodes the base64 body.
// An empty decoded payload counts as invalid.
func decodeImagePayload(data string) ([]byte, bool) {
	if !dataURIRe.MatchString(data) {
		return nil, false
	}
	comma := strings.IndexByte(data, ',')
	if comma < 0 {
		return nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(data[comma+1:])
	if err != nil || len(decoded) == 0 {
		return nil, false
	}
	return decoded, true
}

func validTimestamp(ts string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, ts); err == nil {
			return true
		}
	}
	return false
}
