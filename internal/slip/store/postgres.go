package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"slipgate/internal/slip"
	"slipgate/pkg/sentinel"
)

// Postgres persists slips in PostgreSQL. Transition atomicity relies on
// conditional UPDATEs keyed on is_signed, so two concurrent signs resolve to
// exactly one winner without explicit row locking.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const slipColumns = `
	id, access_token, booking_id, booking_ref, organization_id,
	activity_date, activity_time, program_title,
	subject_id, subject_name,
	guardian_name, guardian_email, guardian_phone,
	emergency_contacts, medical_info, special_instructions, photo_consent,
	template_id,
	is_signed, signature_payload, signature_method, signature_timestamp,
	signed_at, signed_from, verification_hash,
	reminder_count, last_reminder_at,
	created_at, updated_at`

func (p *Postgres) Create(ctx context.Context, s *slip.Slip) error {
	contacts, err := json.Marshal(s.EmergencyContacts)
	if err != nil {
		return fmt.Errorf("marshal emergency contacts: %w", err)
	}
	medical, err := json.Marshal(s.Medical)
	if err != nil {
		return fmt.Errorf("marshal medical info: %w", err)
	}

	query := `
		INSERT INTO slips (
			id, access_token, booking_id, booking_ref, organization_id,
			activity_date, activity_time, program_title,
			subject_id, subject_name,
			guardian_name, guardian_email, guardian_phone,
			emergency_contacts, medical_info, special_instructions, photo_consent,
			template_id, is_signed, reminder_count, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,FALSE,0,$19,$20)
	`
	_, err = p.db.ExecContext(ctx, query,
		s.ID, s.AccessToken, s.BookingID, s.BookingRef, s.OrganizationID,
		s.ActivityDate, s.ActivityTime, s.ProgramTitle,
		s.SubjectID, s.SubjectName,
		s.GuardianName, s.GuardianEmail, s.GuardianPhone,
		contacts, medical, s.SpecialInstructions, s.PhotoConsent,
		s.TemplateID, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert slip: %w", err)
	}
	return nil
}

func (p *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*slip.Slip, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+slipColumns+` FROM slips WHERE id = $1`, id)
	return scanSlip(row)
}

func (p *Postgres) FindByToken(ctx context.Context, token string) (*slip.Slip, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+slipColumns+` FROM slips WHERE access_token = $1`, token)
	return scanSlip(row)
}

func (p *Postgres) FindByBookingSubject(ctx context.Context, bookingID, subjectID string) (*slip.Slip, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+slipColumns+` FROM slips WHERE booking_id = $1 AND subject_id = $2`,
		bookingID, subjectID)
	return scanSlip(row)
}

func (p *Postgres) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM slips WHERE access_token = $1)`, token).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check token existence: %w", err)
	}
	return exists, nil
}

// filterClause builds the WHERE clause and arguments for a Filter. The
// overdue predicate mirrors Slip.StatusAt: unsigned with an activity date
// before today.
func filterClause(f Filter, args []any) (string, []any) {
	var conds []string
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.BookingID != "" {
		add("booking_id = $%d", f.BookingID)
	}
	if f.OrganizationID != "" {
		add("organization_id = $%d", f.OrganizationID)
	}
	switch f.Status {
	case "signed":
		conds = append(conds, "is_signed = TRUE")
	case "unsigned":
		conds = append(conds, "is_signed = FALSE")
	case "overdue":
		conds = append(conds, "is_signed = FALSE AND activity_date < CURRENT_DATE")
	}
	if f.Search != "" {
		args = append(args, f.Search)
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(guardian_name ILIKE '%%' || $%d || '%%' OR guardian_email ILIKE '%%' || $%d || '%%' OR subject_name ILIKE '%%' || $%d || '%%')",
			n, n, n))
	}
	if f.DateFrom != nil {
		add("activity_date >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("activity_date <= $%d", *f.DateTo)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (p *Postgres) List(ctx context.Context, f Filter, pg Page) ([]*slip.Slip, int, error) {
	where, args := filterClause(f, nil)

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM slips`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count slips: %w", err)
	}

	if pg.Size <= 0 {
		pg.Size = 15
	}
	if pg.Number <= 0 {
		pg.Number = 1
	}
	offset := (pg.Number - 1) * pg.Size

	query := fmt.Sprintf(`SELECT %s FROM slips%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		slipColumns, where, len(args)+1, len(args)+2)
	args = append(args, pg.Size, offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query slips: %w", err)
	}
	defer rows.Close()

	slips, err := scanSlips(rows)
	if err != nil {
		return nil, 0, err
	}
	return slips, total, nil
}

func (p *Postgres) ListAll(ctx context.Context, f Filter) ([]*slip.Slip, error) {
	where, args := filterClause(f, nil)
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+slipColumns+` FROM slips`+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query slips: %w", err)
	}
	defer rows.Close()
	return scanSlips(rows)
}

func (p *Postgres) Sign(ctx context.Context, id uuid.UUID, fields SignedFields) (*slip.Slip, error) {
	contacts, err := json.Marshal(fields.EmergencyContacts)
	if err != nil {
		return nil, fmt.Errorf("marshal emergency contacts: %w", err)
	}
	medical, err := json.Marshal(fields.Medical)
	if err != nil {
		return nil, fmt.Errorf("marshal medical info: %w", err)
	}

	// Conditional update keyed on is_signed serializes concurrent signs:
	// exactly one statement matches the row.
	query := `
		UPDATE slips SET
			guardian_name = $2, guardian_email = $3, guardian_phone = $4,
			emergency_contacts = $5, medical_info = $6,
			special_instructions = $7, photo_consent = $8,
			is_signed = TRUE,
			signature_payload = $9, signature_method = $10, signature_timestamp = $11,
			signed_at = $12, signed_from = $13, verification_hash = $14,
			updated_at = $12
		WHERE id = $1 AND is_signed = FALSE
	`
	res, err := p.db.ExecContext(ctx, query, id,
		fields.GuardianName, fields.GuardianEmail, fields.GuardianPhone,
		contacts, medical, fields.SpecialInstructions, fields.PhotoConsent,
		fields.SignaturePayload, string(fields.SignatureMethod), fields.SignatureTimestamp,
		fields.SignedAt, fields.SignedFromAddress, fields.VerificationHash,
	)
	if err != nil {
		return nil, fmt.Errorf("sign slip: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sign slip rows affected: %w", err)
	}
	if affected == 0 {
		// Either missing or already signed; a lookup disambiguates.
		existing, findErr := p.FindByID(ctx, id)
		if findErr != nil {
			return nil, sentinel.ErrNotFound
		}
		if existing.Signed {
			return nil, sentinel.ErrAlreadySigned
		}
		return nil, fmt.Errorf("sign slip: transition did not apply")
	}
	return p.FindByID(ctx, id)
}

func (p *Postgres) Update(ctx context.Context, id uuid.UUID, u Update) (*slip.Slip, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	set := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.GuardianName != nil {
		set("guardian_name", *u.GuardianName)
	}
	if u.GuardianEmail != nil {
		set("guardian_email", *u.GuardianEmail)
	}
	if u.GuardianPhone != nil {
		set("guardian_phone", *u.GuardianPhone)
	}
	if u.EmergencyContacts != nil {
		contacts, err := json.Marshal(*u.EmergencyContacts)
		if err != nil {
			return nil, fmt.Errorf("marshal emergency contacts: %w", err)
		}
		set("emergency_contacts", contacts)
	}
	if u.Medical != nil {
		medical, err := json.Marshal(*u.Medical)
		if err != nil {
			return nil, fmt.Errorf("marshal medical info: %w", err)
		}
		set("medical_info", medical)
	}
	if u.SpecialInstructions != nil {
		set("special_instructions", *u.SpecialInstructions)
	}
	if u.PhotoConsent != nil {
		set("photo_consent", *u.PhotoConsent)
	}

	query := fmt.Sprintf(`UPDATE slips SET %s WHERE id = $1 AND is_signed = FALSE`,
		strings.Join(sets, ", "))
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update slip: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update slip rows affected: %w", err)
	}
	if affected == 0 {
		existing, findErr := p.FindByID(ctx, id)
		if findErr != nil {
			return nil, sentinel.ErrNotFound
		}
		if existing.Signed {
			return nil, sentinel.ErrAlreadySigned
		}
		return existing, nil
	}
	return p.FindByID(ctx, id)
}

func (p *Postgres) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE slips SET
			reminder_count = reminder_count + 1,
			last_reminder_at = $2,
			updated_at = $2
		WHERE id = $1 AND is_signed = FALSE
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark reminded rows affected: %w", err)
	}
	if affected == 0 {
		existing, findErr := p.FindByID(ctx, id)
		if findErr != nil {
			return sentinel.ErrNotFound
		}
		if existing.Signed {
			return sentinel.ErrAlreadySigned
		}
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM slips WHERE id = $1 AND is_signed = FALSE`, id)
	if err != nil {
		return fmt.Errorf("delete slip: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete slip rows affected: %w", err)
	}
	if affected == 0 {
		existing, findErr := p.FindByID(ctx, id)
		if findErr != nil {
			return sentinel.ErrNotFound
		}
		if existing.Signed {
			return sentinel.ErrAlreadySigned
		}
	}
	return nil
}

func (p *Postgres) DueForReminder(ctx context.Context, q ReminderQuery) ([]*slip.Slip, error) {
	conds := []string{
		"is_signed = FALSE",
		"reminder_count < $1",
		"(last_reminder_at IS NULL OR last_reminder_at < $2)",
	}
	args := []any{q.MaxReminders, q.LastReminderBefore}

	if q.ActivityOn != nil {
		args = append(args, *q.ActivityOn)
		conds = append(conds, fmt.Sprintf("activity_date::date = $%d::date", len(args)))
	}
	if q.ActivityBefore != nil {
		args = append(args, *q.ActivityBefore)
		conds = append(conds, fmt.Sprintf("activity_date < $%d", len(args)))
	}

	query := `SELECT ` + slipColumns + ` FROM slips WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY created_at ASC`
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query due slips: %w", err)
	}
	defer rows.Close()
	return scanSlips(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlip(row rowScanner) (*slip.Slip, error) {
	var (
		s                  slip.Slip
		contacts, medical  []byte
		method             sql.NullString
		payload, stamp     sql.NullString
		signedFrom, vhash  sql.NullString
		signedAt, reminded sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.AccessToken, &s.BookingID, &s.BookingRef, &s.OrganizationID,
		&s.ActivityDate, &s.ActivityTime, &s.ProgramTitle,
		&s.SubjectID, &s.SubjectName,
		&s.GuardianName, &s.GuardianEmail, &s.GuardianPhone,
		&contacts, &medical, &s.SpecialInstructions, &s.PhotoConsent,
		&s.TemplateID,
		&s.Signed, &payload, &method, &stamp,
		&signedAt, &signedFrom, &vhash,
		&s.ReminderCount, &reminded,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan slip: %w", err)
	}

	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &s.EmergencyContacts); err != nil {
			return nil, fmt.Errorf("unmarshal emergency contacts: %w", err)
		}
	}
	if len(medical) > 0 {
		if err := json.Unmarshal(medical, &s.Medical); err != nil {
			return nil, fmt.Errorf("unmarshal medical info: %w", err)
		}
	}
	s.SignaturePayload = payload.String
	s.SignatureMethod = slip.SignatureMethod(method.String)
	s.SignatureTimestamp = stamp.String
	s.SignedFromAddress = signedFrom.String
	s.VerificationHash = vhash.String
	if signedAt.Valid {
		t := signedAt.Time
		s.SignedAt = &t
	}
	if reminded.Valid {
		t := reminded.Time
		s.LastReminderAt = &t
	}
	return &s, nil
}

func scanSlips(rows *sql.Rows) ([]*slip.Slip, error) {
	var out []*slip.Slip
	for rows.Next() {
		s, err := scanSlip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slips: %w", err)
	}
	return out, nil
}
