package handler

import (
	"time"

	"slipgate/internal/slip"
)

// slipResponse is the guardian-facing view of a slip. It carries everything
// needed to render the signing page and nothing operational.
type slipResponse struct {
	ID                  string                  `json:"id"`
	Status              string                  `json:"status"`
	BookingRef          string                  `json:"booking_ref"`
	ProgramTitle        string                  `json:"program_title"`
	ActivityDate        string                  `json:"activity_date"`
	ActivityTime        string                  `json:"activity_time,omitempty"`
	SubjectName         string                  `json:"subject_name"`
	GuardianName        string                  `json:"guardian_name"`
	GuardianEmail       string                  `json:"guardian_email"`
	GuardianPhone       string                  `json:"guardian_phone,omitempty"`
	EmergencyContacts   []slip.EmergencyContact `json:"emergency_contacts,omitempty"`
	Medical             slip.MedicalInfo        `json:"medical"`
	SpecialInstructions string                  `json:"special_instructions,omitempty"`
	PhotoConsent        bool                    `json:"photo_consent"`
	SignedAt            *time.Time              `json:"signed_at,omitempty"`
}

// adminSlipResponse extends the guardian view with the operational fields
// the administrative surface needs.
type adminSlipResponse struct {
	slipResponse
	BookingID         string     `json:"booking_id"`
	OrganizationID    string     `json:"organization_id"`
	SubjectID         string     `json:"subject_id"`
	SignatureMethod   string     `json:"signature_method,omitempty"`
	SignedFromAddress string     `json:"signed_from_address,omitempty"`
	VerificationHash  string     `json:"verification_hash,omitempty"`
	ReminderCount     int        `json:"reminder_count"`
	LastReminderAt    *time.Time `json:"last_reminder_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toSlipResponse(s *slip.Slip, now time.Time) slipResponse {
	return slipResponse{
		ID:                  s.ID.String(),
		Status:              string(s.StatusAt(now)),
		BookingRef:          s.BookingRef,
		ProgramTitle:        s.ProgramTitle,
		ActivityDate:        s.ActivityDate.Format("2006-01-02"),
		ActivityTime:        s.ActivityTime,
		SubjectName:         s.SubjectName,
		GuardianName:        s.GuardianName,
		GuardianEmail:       s.GuardianEmail,
		GuardianPhone:       s.GuardianPhone,
		EmergencyContacts:   s.EmergencyContacts,
		Medical:             s.Medical,
		SpecialInstructions: s.SpecialInstructions,
		PhotoConsent:        s.PhotoConsent,
		SignedAt:            s.SignedAt,
	}
}

func toAdminSlipResponse(s *slip.Slip, now time.Time) adminSlipResponse {
	return adminSlipResponse{
		slipResponse:      toSlipResponse(s, now),
		BookingID:         s.BookingID,
		OrganizationID:    s.OrganizationID,
		SubjectID:         s.SubjectID,
		SignatureMethod:   string(s.SignatureMethod),
		SignedFromAddress: s.SignedFromAddress,
		VerificationHash:  s.VerificationHash,
		ReminderCount:     s.ReminderCount,
		LastReminderAt:    s.LastReminderAt,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}
