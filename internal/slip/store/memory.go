package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"slipgate/internal/slip"
	"slipgate/pkg/sentinel"
)

// InMemory keeps slips behind a single RWMutex. Every transition runs under
// the write lock, which gives the same serialization guarantee the SQL
// conditional updates provide.
type InMemory struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*slip.Slip
	byToken  map[string]uuid.UUID
	byPair   map[string]uuid.UUID // bookingID + "/" + subjectID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[uuid.UUID]*slip.Slip),
		byToken: make(map[string]uuid.UUID),
		byPair:  make(map[string]uuid.UUID),
	}
}

func pairKey(bookingID, subjectID string) string {
	return bookingID + "/" + subjectID
}

func (m *InMemory) Create(_ context.Context, s *slip.Slip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byPair[pairKey(s.BookingID, s.SubjectID)]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := m.byToken[s.AccessToken]; ok {
		return sentinel.ErrConflict
	}

	cp := cloneSlip(s)
	m.byID[cp.ID] = cp
	m.byToken[cp.AccessToken] = cp.ID
	m.byPair[pairKey(cp.BookingID, cp.SubjectID)] = cp.ID
	return nil
}

func (m *InMemory) FindByID(_ context.Context, id uuid.UUID) (*slip.Slip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSlip(s), nil
}

func (m *InMemory) FindByToken(_ context.Context, token string) (*slip.Slip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSlip(m.byID[id]), nil
}

func (m *InMemory) FindByBookingSubject(_ context.Context, bookingID, subjectID string) (*slip.Slip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPair[pairKey(bookingID, subjectID)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSlip(m.byID[id]), nil
}

func (m *InMemory) TokenExists(_ context.Context, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byToken[token]
	return ok, nil
}

func (m *InMemory) List(ctx context.Context, f Filter, p Page) ([]*slip.Slip, int, error) {
	all, err := m.ListAll(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total := len(all)

	if p.Size <= 0 {
		p.Size = 15
	}
	if p.Number <= 0 {
		p.Number = 1
	}
	start := (p.Number - 1) * p.Size
	if start >= total {
		return nil, total, nil
	}
	end := start + p.Size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *InMemory) ListAll(_ context.Context, f Filter) ([]*slip.Slip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var out []*slip.Slip
	for _, s := range m.byID {
		if matchesFilter(s, f, now) {
			out = append(out, cloneSlip(s))
		}
	}
	// Newest first, matching the SQL ORDER BY created_at DESC.
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func matchesFilter(s *slip.Slip, f Filter, now time.Time) bool {
	if f.BookingID != "" && s.BookingID != f.BookingID {
		return false
	}
	if f.OrganizationID != "" && s.OrganizationID != f.OrganizationID {
		return false
	}
	switch f.Status {
	case "signed":
		if !s.Signed {
			return false
		}
	case "unsigned":
		if s.Signed {
			return false
		}
	case "overdue":
		if s.StatusAt(now) != slip.StatusOverdue {
			return false
		}
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		hay := strings.ToLower(s.GuardianName + " " + s.GuardianEmail + " " + s.SubjectName)
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	if f.DateFrom != nil && s.ActivityDate.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && s.ActivityDate.After(*f.DateTo) {
		return false
	}
	return true
}

func (m *InMemory) Sign(_ context.Context, id uuid.UUID, fields SignedFields) (*slip.Slip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if s.Signed {
		return nil, sentinel.ErrAlreadySigned
	}

	signedAt := fields.SignedAt
	s.GuardianName = fields.GuardianName
	s.GuardianEmail = fields.GuardianEmail
	s.GuardianPhone = fields.GuardianPhone
	s.EmergencyContacts = fields.EmergencyContacts
	s.Medical = fields.Medical
	s.SpecialInstructions = fields.SpecialInstructions
	s.PhotoConsent = fields.PhotoConsent
	s.Signed = true
	s.SignaturePayload = fields.SignaturePayload
	s.SignatureMethod = fields.SignatureMethod
	s.SignatureTimestamp = fields.SignatureTimestamp
	s.SignedAt = &signedAt
	s.SignedFromAddress = fields.SignedFromAddress
	s.VerificationHash = fields.VerificationHash
	s.UpdatedAt = signedAt
	return cloneSlip(s), nil
}

func (m *InMemory) Update(_ context.Context, id uuid.UUID, u Update) (*slip.Slip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if s.Signed {
		return nil, sentinel.ErrAlreadySigned
	}

	if u.GuardianName != nil {
		s.GuardianName = *u.GuardianName
	}
	if u.GuardianEmail != nil {
		s.GuardianEmail = *u.GuardianEmail
	}
	if u.GuardianPhone != nil {
		s.GuardianPhone = *u.GuardianPhone
	}
	if u.EmergencyContacts != nil {
		s.EmergencyContacts = *u.EmergencyContacts
	}
	if u.Medical != nil {
		s.Medical = *u.Medical
	}
	if u.SpecialInstructions != nil {
		s.SpecialInstructions = *u.SpecialInstructions
	}
	if u.PhotoConsent != nil {
		s.PhotoConsent = *u.PhotoConsent
	}
	s.UpdatedAt = time.Now()
	return cloneSlip(s), nil
}

func (m *InMemory) MarkReminded(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if s.Signed {
		return sentinel.ErrAlreadySigned
	}
	s.ReminderCount++
	stamp := at
	s.LastReminderAt = &stamp
	s.UpdatedAt = at
	return nil
}

func (m *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if s.Signed {
		return sentinel.ErrAlreadySigned
	}
	delete(m.byID, id)
	delete(m.byToken, s.AccessToken)
	delete(m.byPair, pairKey(s.BookingID, s.SubjectID))
	return nil
}

func (m *InMemory) DueForReminder(_ context.Context, q ReminderQuery) ([]*slip.Slip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*slip.Slip
	for _, s := range m.byID {
		if s.Signed {
			continue
		}
		if s.ReminderCount >= q.MaxReminders {
			continue
		}
		if q.ActivityOn != nil && !sameDay(s.ActivityDate, *q.ActivityOn) {
			continue
		}
		if q.ActivityBefore != nil && !s.ActivityDate.Before(*q.ActivityBefore) {
			continue
		}
		if s.LastReminderAt != nil && !s.LastReminderAt.Before(q.LastReminderBefore) {
			continue
		}
		out = append(out, cloneSlip(s))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// cloneSlip copies the record so callers never share mutable state with the
// store. Slices are copied too; a caller mutating a returned contact list
// must not leak into stored state.
func cloneSlip(s *slip.Slip) *slip.Slip {
	cp := *s
	if s.EmergencyContacts != nil {
		cp.EmergencyContacts = append([]slip.EmergencyContact(nil), s.EmergencyContacts...)
	}
	if s.SignedAt != nil {
		t := *s.SignedAt
		cp.SignedAt = &t
	}
	if s.LastReminderAt != nil {
		t := *s.LastReminderAt
		cp.LastReminderAt = &t
	}
	return &cp
}
