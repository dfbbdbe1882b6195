// Package service orchestrates the slip lifecycle: creation from confirmed
// bookings, guardian signing, pre-sign edits, deletion, and integrity
// verification. It keeps orchestration out of handlers and domain logic thin.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"

	"slipgate/internal/audit"
	"slipgate/internal/booking"
	"slipgate/internal/notify"
	"slipgate/internal/platform/metrics"
	"slipgate/internal/slip"
	"slipgate/internal/slip/integrity"
	"slipgate/internal/slip/signature"
	"slipgate/internal/slip/store"
	"slipgate/pkg/email"
	pkgerrors "slipgate/pkg/errors"
	"slipgate/pkg/sentinel"
)

// Manual per-slip reminders keep the original system's tighter limits: at
// most 3 sends, 24 hours apart. The automated scheduler has its own policy.
const (
	manualReminderCeiling  = 3
	manualReminderInterval = 24 * time.Hour
)

// TokenIssuer mints unique access tokens; implemented by slip/token.Issuer.
type TokenIssuer interface {
	Issue(ctx context.Context) (string, error)
}

// Service is the only path that mutates slip state. Everything else reads.
type Service struct {
	store    store.Store
	tokens   TokenIssuer
	hasher   *integrity.Hasher
	bookings booking.Provider
	sender   notify.Sender
	audits   *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger

	baseURL     string
	accessGrace time.Duration
	clock       func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(
	st store.Store,
	tokens TokenIssuer,
	hasher *integrity.Hasher,
	bookings booking.Provider,
	sender notify.Sender,
	audits *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	baseURL string,
	accessGrace time.Duration,
	opts ...Option,
) *Service {
	s := &Service{
		store:       st,
		tokens:      tokens,
		hasher:      hasher,
		bookings:    bookings,
		sender:      sender,
		audits:      audits,
		metrics:     m,
		logger:      logger,
		baseURL:     baseURL,
		accessGrace: accessGrace,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateForBooking creates one slip per subject in a confirmed booking's
// roster. Creation is idempotent: subjects that already have a slip for this
// booking are skipped, not duplicated. Each created slip gets a fresh access
// token and an initial signing email.
func (s *Service) CreateForBooking(ctx context.Context, bookingID, templateID string) ([]*slip.Slip, error) {
	bk, err := s.bookings.Booking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeNotFound, "booking not found")
		}
		// A booking-system outage is not a missing booking.
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "fetch booking")
	}
	if bk.Status != booking.StatusConfirmed {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "slips can only be created for confirmed bookings")
	}

	now := s.clock()
	var created []*slip.Slip
	for _, student := range bk.Students {
		tok, err := s.tokens.Issue(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "issue access token")
		}

		guardianName := student.GuardianName
		if guardianName == "" && student.GuardianEmail != "" {
			guardianName = email.DeriveName(student.GuardianEmail)
		}

		record := &slip.Slip{
			ID:             uuid.New(),
			AccessToken:    tok,
			BookingID:      bk.ID,
			BookingRef:     bk.Reference,
			OrganizationID: bk.OrganizationID,
			ActivityDate:   bk.ActivityDate,
			ActivityTime:   bk.ActivityTime,
			ProgramTitle:   bk.ProgramTitle,
			SubjectID:      student.ID,
			SubjectName:    student.FullName(),
			GuardianName:   guardianName,
			GuardianEmail:  student.GuardianEmail,
			GuardianPhone:  student.GuardianPhone,
			TemplateID:     templateID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := s.store.Create(ctx, record); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				continue
			}
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "create slip")
		}
		created = append(created, record)
		if s.metrics != nil {
			s.metrics.SlipsCreated.Inc()
		}

		if err := s.sendSigningEmail(ctx, record); err != nil {
			// Creation stands; the email can be resent later.
			s.logger.WarnContext(ctx, "initial signing email failed",
				"slip_id", record.ID,
				"error", err,
			)
		}
	}

	_ = s.audits.Emit(ctx, audit.Event{
		Action:    audit.ActionSlipsCreated,
		BookingID: bk.ID,
		Reason:    fmt.Sprintf("created %d of %d roster subjects", len(created), len(bk.Students)),
	})
	return created, nil
}

// GetByID fetches a slip for the administrative surface.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*slip.Slip, error) {
	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "slip not found")
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "find slip")
	}
	return record, nil
}

// GetByToken resolves a guardian-facing access token. Unknown tokens are
// not_found; an expired signing window is access_expired. Already-signed
// slips are returned so the guardian sees a clear "already completed" state.
func (s *Service) GetByToken(ctx context.Context, tok string) (*slip.Slip, error) {
	record, err := s.store.FindByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "slip not found or invalid token")
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "find slip by token")
	}
	if record.AccessExpired(s.clock(), s.accessGrace) {
		return nil, pkgerrors.New(pkgerrors.CodeAccessExpired, "slip access token has expired")
	}
	return record, nil
}

// TokenStatus classifies a token for the public validation endpoint without
// failing: "valid", "expired", "already_signed", or an error for unknown
// tokens.
func (s *Service) TokenStatus(ctx context.Context, tok string) (string, *slip.Slip, error) {
	record, err := s.store.FindByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", nil, pkgerrors.New(pkgerrors.CodeNotFound, "invalid token")
		}
		return "", nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "find slip by token")
	}
	switch {
	case record.AccessExpired(s.clock(), s.accessGrace):
		return "expired", record, nil
	case record.Signed:
		return "already_signed", record, nil
	default:
		return "valid", record, nil
	}
}

// SignRequest is the full guardian submission at signing time: contact and
// medical updates plus the signature itself.
type SignRequest struct {
	GuardianName        string
	GuardianEmail       string
	GuardianPhone       string
	EmergencyContacts   []slip.EmergencyContact
	Medical             slip.MedicalInfo
	SpecialInstructions string
	PhotoConsent        bool
	Signature           signature.Submission
}

// Sign performs the one Unsigned → Signed transition. The access token
// gates the slip; origin is the network address the signing request came
// from. Signing is not idempotent: a second attempt fails with
// already_signed.
func (s *Service) Sign(ctx context.Context, tok string, req SignRequest, origin string) (*slip.Slip, error) {
	record, err := s.store.FindByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "slip not found or invalid token")
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "find slip by token")
	}

	now := s.clock()
	if record.AccessExpired(now, s.accessGrace) {
		return nil, pkgerrors.New(pkgerrors.CodeAccessExpired, "slip access token has expired")
	}
	if record.Signed {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadySigned, "slip has already been signed")
	}

	normalized, verr := signature.Validate(req.Signature)
	violations := pkgerrors.ViolationsOf(verr)
	if verr != nil && violations == nil {
		return nil, verr
	}

	// The guardian email is guardian-supplied here, not roster-seeded, and
	// every later reminder goes to it. Reject bad addresses up front,
	// aggregated with the signature violations.
	guardianEmail := strings.TrimSpace(req.GuardianEmail)
	switch {
	case guardianEmail == "":
		violations = append(violations, "guardian email is required")
	case !govalidator.IsEmail(guardianEmail):
		violations = append(violations, "invalid guardian email format")
	}
	if len(violations) > 0 {
		return nil, pkgerrors.NewValidation(violations)
	}

	hash := s.hasher.Compute(normalized.Signature, normalized.GuardianName, normalized.Timestamp, origin)

	// Store the normalized name, not the raw submission: Verify recomputes
	// the hash from the stored fields, so they must be the exact bytes that
	// were hashed.
	signed, err := s.store.Sign(ctx, record.ID, store.SignedFields{
		GuardianName:        normalized.GuardianName,
		GuardianEmail:       guardianEmail,
		GuardianPhone:       req.GuardianPhone,
		EmergencyContacts:   req.EmergencyContacts,
		Medical:             req.Medical,
		SpecialInstructions: req.SpecialInstructions,
		PhotoConsent:        req.PhotoConsent,
		SignaturePayload:    normalized.Signature,
		SignatureMethod:     normalized.Method,
		SignatureTimestamp:  normalized.Timestamp,
		SignedAt:            now,
		SignedFromAddress:   origin,
		VerificationHash:    hash,
	})
	if err != nil {
		// The conditional transition lost the race or the slip vanished.
		if errors.Is(err, sentinel.ErrAlreadySigned) {
			return nil, pkgerrors.New(pkgerrors.CodeAlreadySigned, "slip has already been signed")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "slip not found")
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "sign slip")
	}

	if s.metrics != nil {
		s.metrics.SlipsSigned.Inc()
	}
	_ = s.audits.Emit(ctx, audit.Event{
		Action:    audit.ActionSlipSigned,
		SlipID:    signed.ID.String(),
		BookingID: signed.BookingID,
		Subject:   signed.SubjectName,
		Origin:    origin,
	})

	if err := s.sendConfirmationEmail(ctx, signed); err != nil {
		s.logger.WarnContext(ctx, "signed confirmation email failed",
			"slip_id", signed.ID,
			"error", err,
		)
	}
	return signed, nil
}

// Update edits guardian contact, emergency, medical, and instruction fields.
// Permitted only while unsigned.
func (s *Service) Update(ctx context.Context, id uuid.UUID, u store.Update) (*slip.Slip, error) {
	record, err := s.store.Update(ctx, id, u)
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadySigned) {
			return nil, pkgerrors.New(pkgerrors.CodeCannotModifySigned, "cannot update a signed slip")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "slip not found")
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "update slip")
	}
	_ = s.audits.Emit(ctx, audit.Event{
		Action:  audit.ActionSlipUpdated,
		SlipID:  record.ID.String(),
		Subject: record.SubjectName,
	})
	return record, nil
}

// Delete removes an unsigned slip. Signed slips are permanent records.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "slip not found")
		}
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "find slip")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrAlreadySigned) {
			return pkgerrors.New(pkgerrors.CodeCannotModifySigned, "cannot delete a signed slip")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "slip not found")
		}
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "delete slip")
	}
	_ = s.audits.Emit(ctx, audit.Event{
		Action:    audit.ActionSlipDeleted,
		SlipID:    id.String(),
		BookingID: record.BookingID,
		Subject:   record.SubjectName,
	})
	return nil
}

// List returns one page of slips plus the total for the filter.
func (s *Service) List(ctx context.Context, f store.Filter, p store.Page) ([]*slip.Slip, int, error) {
	return s.store.List(ctx, f, p)
}

// Resend re-sends the signing email for an unsigned slip and counts it
// against the reminder budget.
func (s *Service) Resend(ctx context.Context, id uuid.UUID) error {
	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "slip not found")
		}
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "find slip")
	}
	if record.Signed {
		return pkgerrors.New(pkgerrors.CodeCannotModifySigned, "cannot resend email for a signed slip")
	}

	if err := s.sendSigningEmail(ctx, record); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeDeliveryFailed, "resend signing email")
	}
	if err := s.store.MarkReminded(ctx, record.ID, s.clock()); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "update reminder tracking")
	}
	_ = s.audits.Emit(ctx, audit.Event{
		Action:  audit.ActionSlipEmailResent,
		SlipID:  record.ID.String(),
		Subject: record.SubjectName,
	})
	return nil
}

// SendReminder dispatches a single manual reminder, honoring the manual
// ceiling and interval. Returns false without error when the slip is not
// currently eligible.
func (s *Service) SendReminder(ctx context.Context, id uuid.UUID) (bool, error) {
	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "slip not found")
		}
		return false, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "find slip")
	}

	now := s.clock()
	if !record.CanSendReminder(now, manualReminderCeiling, manualReminderInterval) {
		return false, nil
	}

	subject := "Reminder: Permission Slip Required - " + record.ProgramTitle
	body := s.reminderBody(record, now)
	if err := s.sender.Send(ctx, record.GuardianEmail, record.GuardianName, subject, body); err != nil {
		return false, pkgerrors.Wrap(err, pkgerrors.CodeDeliveryFailed, "send reminder")
	}
	if err := s.store.MarkReminded(ctx, record.ID, now); err != nil {
		return false, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "update reminder tracking")
	}
	if s.metrics != nil {
		s.metrics.RemindersSent.Inc()
	}
	return true, nil
}

// VerifyIntegrity recomputes the verification hash for a slip and reports
// whether the stored content still matches. The attempt is audited either
// way.
func (s *Service) VerifyIntegrity(ctx context.Context, id uuid.UUID) (bool, error) {
	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "slip not found")
		}
		return false, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "find slip")
	}
	valid := s.hasher.Verify(ctx, record)
	if s.metrics != nil {
		outcome := "valid"
		if !valid {
			outcome = "invalid"
		}
		s.metrics.VerificationAttempts.WithLabelValues(outcome).Inc()
	}
	return valid, nil
}

// TemplateContent renders the consent text shown to the guardian before
// signing. Template storage is external; when the slip carries no template
// the standard consent text is rendered from the slip's own facts.
func (s *Service) TemplateContent(ctx context.Context, tok string) (string, error) {
	record, err := s.GetByToken(ctx, tok)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"I give permission for %s to participate in the %s program on %s. "+
			"I understand the activities involved and agree to the terms and conditions. "+
			"I confirm that the medical and emergency contact information provided is accurate and complete.",
		record.SubjectName,
		record.ProgramTitle,
		record.ActivityDate.Format("January 2, 2006"),
	), nil
}

// SigningURL is the guardian-facing link for a slip token.
func (s *Service) SigningURL(tok string) string {
	return s.baseURL + "/slips/" + tok
}

func (s *Service) sendSigningEmail(ctx context.Context, record *slip.Slip) error {
	subject := "Permission Slip Required - " + record.ProgramTitle
	body := fmt.Sprintf(
		"Dear %s,\n\nA permission slip is required for %s to participate in the %s program on %s.\n\nPlease sign it at: %s\n",
		record.GuardianName,
		record.SubjectName,
		record.ProgramTitle,
		record.ActivityDate.Format("January 2, 2006"),
		s.SigningURL(record.AccessToken),
	)
	return s.sender.Send(ctx, record.GuardianEmail, record.GuardianName, subject, body)
}

func (s *Service) sendConfirmationEmail(ctx context.Context, record *slip.Slip) error {
	subject := "Permission Slip Signed - " + record.ProgramTitle
	body := fmt.Sprintf(
		"Thank you for signing the permission slip for %s. Your child is now registered for the %s program on %s.",
		record.SubjectName,
		record.ProgramTitle,
		record.ActivityDate.Format("January 2, 2006"),
	)
	return s.sender.Send(ctx, record.GuardianEmail, record.GuardianName, subject, body)
}

func (s *Service) reminderBody(record *slip.Slip, now time.Time) string {
	body := fmt.Sprintf(
		"This is a reminder that we still need a signed permission slip for %s to participate in the %s program",
		record.SubjectName, record.ProgramTitle,
	)
	days := int(record.ActivityDate.Sub(now).Hours() / 24)
	switch {
	case days > 0:
		body += fmt.Sprintf(" in %d days", days)
	case days == 0:
		body += " today"
	default:
		body += " (event has passed)"
	}
	return body + ". Please sign the permission slip at: " + s.SigningURL(record.AccessToken)
}
