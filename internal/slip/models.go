package slip

import (
	"time"

	"github.com/google/uuid"
)

// Status is the externally visible lifecycle state of a slip. Signed and
// deleted are terminal; "overdue" is a derived view of unsigned, not a stored
// state.
type Status string

const (
	StatusUnsigned Status = "unsigned"
	StatusSigned   Status = "signed"
	StatusOverdue  Status = "overdue"
)

// SignatureMethod classifies the encoding of a submitted signature. The
// classification happens once at validation time; everything downstream
// branches on the tag instead of re-sniffing the raw string.
type SignatureMethod string

const (
	MethodImage      SignatureMethod = "image"
	MethodSVGElement SignatureMethod = "svg-element"
	MethodSVGPath    SignatureMethod = "svg-path"
	MethodStructured SignatureMethod = "structured"
	MethodUnknown    SignatureMethod = "unknown"
)

// EmergencyContact is captured at creation from the booking roster and
// editable by the guardian until the slip is signed.
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
	IsPrimary    bool   `json:"is_primary"`
}

// MedicalInfo holds free-text medical notes supplied by the guardian.
type MedicalInfo struct {
	Allergies           string `json:"allergies,omitempty"`
	Medications         string `json:"medications,omitempty"`
	MedicalConditions   string `json:"medical_conditions,omitempty"`
	DietaryRestrictions string `json:"dietary_restrictions,omitempty"`
	EmergencyMedical    string `json:"emergency_medical_info,omitempty"`
}

// Slip is a consent document: one subject, one scheduled activity, one
// guardian sign-off. The access token is the only credential a guardian
// needs; it is unique, unguessable, and immutable once assigned.
//
// Invariants enforced by the store:
//   - AccessToken never changes after creation.
//   - Once SignedAt is non-nil every signing field is write-once and the
//     guardian/medical fields freeze.
//   - ReminderCount only increases.
//   - Signed slips cannot be deleted.
type Slip struct {
	ID          uuid.UUID
	AccessToken string

	// Booking facts are denormalized at creation time; the booking system
	// remains the owner, this is the minimal snapshot the slip needs.
	BookingID      string
	BookingRef     string
	OrganizationID string
	ActivityDate   time.Time
	ActivityTime   string
	ProgramTitle   string

	SubjectID   string
	SubjectName string

	GuardianName  string
	GuardianEmail string
	GuardianPhone string

	EmergencyContacts   []EmergencyContact
	Medical             MedicalInfo
	SpecialInstructions string
	PhotoConsent        bool

	TemplateID string

	Signed            bool
	SignaturePayload  string
	SignatureMethod   SignatureMethod
	// SignatureTimestamp is the client-declared timestamp string exactly as
	// submitted; it feeds the verification hash and must survive unmodified.
	SignatureTimestamp string
	SignedAt           *time.Time
	SignedFromAddress  string
	VerificationHash   string

	ReminderCount  int
	LastReminderAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusAt derives the visible status. Unsigned slips whose activity date has
// passed read as overdue.
func (s *Slip) StatusAt(now time.Time) Status {
	if s.Signed {
		return StatusSigned
	}
	if s.ActivityDate.Before(startOfDay(now)) {
		return StatusOverdue
	}
	return StatusUnsigned
}

// AccessExpired reports whether the signing window has closed. The cutoff is
// a policy applied at access time, not a property of the token itself.
func (s *Slip) AccessExpired(now time.Time, grace time.Duration) bool {
	if s.ActivityDate.IsZero() {
		return false
	}
	return now.After(s.ActivityDate.Add(grace))
}

// CanSendReminder gates the manual per-slip reminder path: unsigned, under
// the manual ceiling, and at least minInterval since the last send.
func (s *Slip) CanSendReminder(now time.Time, maxReminders int, minInterval time.Duration) bool {
	if s.Signed {
		return false
	}
	if s.ReminderCount >= maxReminders {
		return false
	}
	if s.LastReminderAt != nil && now.Sub(*s.LastReminderAt) < minInterval {
		return false
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
