package audit

import "time"

// Actions recorded by the slip core. Every integrity verification attempt is
// recorded regardless of outcome.
const (
	ActionSlipsCreated           = "slips_created"
	ActionSlipSigned             = "slip_signed"
	ActionSlipUpdated            = "slip_updated"
	ActionSlipDeleted            = "slip_deleted"
	ActionSlipEmailResent        = "slip_email_resent"
	ActionReminderBatchProcessed = "reminder_batch_processed"
	ActionVerificationAttempted  = "signature_verification_attempted"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	Action    string
	SlipID    string
	BookingID string
	Subject   string
	Origin    string
	Decision  string
	Reason    string
}
