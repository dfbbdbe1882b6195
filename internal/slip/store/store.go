// Package store owns slip persistence and the state-machine transitions.
// It is the only writer of slip state; every other component treats slips as
// read-only inputs and goes through the transition API here.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"slipgate/internal/slip"
)

// Filter narrows a listing or aggregation population. Zero values mean "no
// constraint". Filters are plain values passed in per call so concurrent
// aggregations never share mutable filter state.
type Filter struct {
	BookingID      string
	OrganizationID string
	Status         string // "signed", "unsigned", "overdue", or empty
	Search         string // free-text match on guardian name/email and subject name
	DateFrom       *time.Time
	DateTo         *time.Time
}

// Page is 1-based pagination for the administrative listing surface.
type Page struct {
	Number int
	Size   int
}

// SignedFields is everything written by the one Unsigned → Signed transition.
// All of it lands atomically or not at all.
type SignedFields struct {
	GuardianName        string
	GuardianEmail       string
	GuardianPhone       string
	EmergencyContacts   []slip.EmergencyContact
	Medical             slip.MedicalInfo
	SpecialInstructions string
	PhotoConsent        bool

	SignaturePayload   string
	SignatureMethod    slip.SignatureMethod
	SignatureTimestamp string
	SignedAt           time.Time
	SignedFromAddress  string
	VerificationHash   string
}

// Update carries pre-signing edits. Nil pointers leave the field untouched.
type Update struct {
	GuardianName        *string
	GuardianEmail       *string
	GuardianPhone       *string
	EmergencyContacts   *[]slip.EmergencyContact
	Medical             *slip.MedicalInfo
	SpecialInstructions *string
	PhotoConsent        *bool
}

// ReminderQuery selects unsigned slips eligible for a reminder pass.
// Exactly one of ActivityOn (upcoming, date equality) or ActivityBefore
// (overdue, strictly past) is set.
type ReminderQuery struct {
	MaxReminders       int
	ActivityOn         *time.Time
	ActivityBefore     *time.Time
	LastReminderBefore time.Time
}

// Store is interface-driven to keep the domain logic testable and to allow
// swapping in-memory and PostgreSQL persistence without rewiring business
// code. Implementations must serialize concurrent transitions on the same
// slip so exactly one of two concurrent signs succeeds.
type Store interface {
	// Create persists a new slip. Returns sentinel.ErrConflict when a slip
	// for the same (booking, subject) pair already exists; creation is
	// idempotent at the service layer by skipping conflicts.
	Create(ctx context.Context, s *slip.Slip) error

	FindByID(ctx context.Context, id uuid.UUID) (*slip.Slip, error)
	FindByToken(ctx context.Context, token string) (*slip.Slip, error)
	FindByBookingSubject(ctx context.Context, bookingID, subjectID string) (*slip.Slip, error)
	TokenExists(ctx context.Context, token string) (bool, error)

	// List returns one page plus the total population size for the filter.
	List(ctx context.Context, f Filter, p Page) ([]*slip.Slip, int, error)
	// ListAll returns the whole filtered population for read-side
	// aggregation.
	ListAll(ctx context.Context, f Filter) ([]*slip.Slip, error)

	// Sign performs the conditional Unsigned → Signed transition. Returns
	// sentinel.ErrAlreadySigned when the slip is already signed and
	// sentinel.ErrNotFound when it does not exist.
	Sign(ctx context.Context, id uuid.UUID, fields SignedFields) (*slip.Slip, error)

	// Update edits mutable fields while unsigned. Signed slips return
	// sentinel.ErrAlreadySigned.
	Update(ctx context.Context, id uuid.UUID, u Update) (*slip.Slip, error)

	// MarkReminded increments the reminder counter and stamps the send time.
	// Its own atomic unit: a cancelled batch keeps completed marks.
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error

	// Delete removes an unsigned slip. Signed slips return
	// sentinel.ErrAlreadySigned.
	Delete(ctx context.Context, id uuid.UUID) error

	// DueForReminder selects unsigned slips matching the reminder query.
	DueForReminder(ctx context.Context, q ReminderQuery) ([]*slip.Slip, error)
}
