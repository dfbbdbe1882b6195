//go:build integration

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"slipgate/internal/slip"
	"slipgate/internal/slip/store"
	"slipgate/pkg/sentinel"
	"slipgate/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	store *store.Postgres
	seq   int
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.pg.DB)
}

func (s *PostgresSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx))
}

func (s *PostgresSuite) newSlip(mutate ...func(*slip.Slip)) *slip.Slip {
	s.seq++
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &slip.Slip{
		ID:             uuid.New(),
		AccessToken:    fmt.Sprintf("tok-%d-%s", s.seq, uuid.NewString()[:8]),
		BookingID:      "bk-1",
		BookingRef:     "REF-001",
		OrganizationID: "org-1",
		ActivityDate:   now.AddDate(0, 0, 7).Truncate(24 * time.Hour),
		ProgramTitle:   "Museum Trip",
		SubjectID:      uuid.NewString(),
		SubjectName:    "Ava Martin",
		GuardianName:   "Dana Martin",
		GuardianEmail:  "dana.martin@example.com",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, m := range mutate {
		m(record)
	}
	return record
}

func (s *PostgresSuite) create(mutate ...func(*slip.Slip)) *slip.Slip {
	record := s.newSlip(mutate...)
	s.Require().NoError(s.store.Create(s.ctx, record))
	return record
}

func (s *PostgresSuite) signedFields() store.SignedFields {
	return store.SignedFields{
		GuardianName:       "Dana Martin",
		GuardianEmail:      "dana.martin@example.com",
		SignaturePayload:   `{"x":1,"y":2}`,
		SignatureMethod:    slip.MethodStructured,
		SignatureTimestamp: "2024-01-15T10:00:00Z",
		SignedAt:           time.Now().UTC().Truncate(time.Microsecond),
		SignedFromAddress:  "192.0.2.7",
		VerificationHash:   "deadbeef",
	}
}

func (s *PostgresSuite) TestCreateAndLookups() {
	record := s.create()

	byID, err := s.store.FindByID(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(record.AccessToken, byID.AccessToken)
	s.Equal("Ava Martin", byID.SubjectName)

	byToken, err := s.store.FindByToken(s.ctx, record.AccessToken)
	s.Require().NoError(err)
	s.Equal(record.ID, byToken.ID)

	byPair, err := s.store.FindByBookingSubject(s.ctx, record.BookingID, record.SubjectID)
	s.Require().NoError(err)
	s.Equal(record.ID, byPair.ID)

	exists, err := s.store.TokenExists(s.ctx, record.AccessToken)
	s.Require().NoError(err)
	s.True(exists)

	exists, err = s.store.TokenExists(s.ctx, "never-issued")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *PostgresSuite) TestLookupMisses() {
	_, err := s.store.FindByID(s.ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByToken(s.ctx, "never-issued")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresSuite) TestDuplicatePairConflicts() {
	record := s.create()

	dup := s.newSlip(func(r *slip.Slip) {
		r.BookingID = record.BookingID
		r.SubjectID = record.SubjectID
	})
	s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
}

func (s *PostgresSuite) TestDuplicateTokenConflicts() {
	record := s.create()

	dup := s.newSlip(func(r *slip.Slip) { r.AccessToken = record.AccessToken })
	s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
}

func (s *PostgresSuite) TestSignTransition() {
	record := s.create()

	signed, err := s.store.Sign(s.ctx, record.ID, s.signedFields())
	s.Require().NoError(err)
	s.True(signed.Signed)
	s.Equal(`{"x":1,"y":2}`, signed.SignaturePayload)
	s.Equal("2024-01-15T10:00:00Z", signed.SignatureTimestamp)
	s.Equal("deadbeef", signed.VerificationHash)
	s.Require().NotNil(signed.SignedAt)

	_, err = s.store.Sign(s.ctx, record.ID, s.signedFields())
	s.ErrorIs(err, sentinel.ErrAlreadySigned)
}

func (s *PostgresSuite) TestSignedSlipIsImmutable() {
	record := s.create()
	_, err := s.store.Sign(s.ctx, record.ID, s.signedFields())
	s.Require().NoError(err)

	name := "Other Name"
	_, err = s.store.Update(s.ctx, record.ID, store.Update{GuardianName: &name})
	s.ErrorIs(err, sentinel.ErrAlreadySigned)

	s.ErrorIs(s.store.Delete(s.ctx, record.ID), sentinel.ErrAlreadySigned)
}

func (s *PostgresSuite) TestConcurrentSignExactlyOneWinner() {
	record := s.create()

	const attempts = 8
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := s.store.Sign(s.ctx, record.ID, s.signedFields())
			errs <- err
		}()
	}

	var wins, losses int
	for i := 0; i < attempts; i++ {
		switch err := <-errs; {
		case err == nil:
			wins++
		default:
			s.ErrorIs(err, sentinel.ErrAlreadySigned)
			losses++
		}
	}
	s.Equal(1, wins)
	s.Equal(attempts-1, losses)
}

func (s *PostgresSuite) TestPartialUpdate() {
	record := s.create()

	phone := "+31 6 1234 5678"
	consent := true
	updated, err := s.store.Update(s.ctx, record.ID, store.Update{
		GuardianPhone: &phone,
		PhotoConsent:  &consent,
	})
	s.Require().NoError(err)
	s.Equal(phone, updated.GuardianPhone)
	s.True(updated.PhotoConsent)
	s.Equal("Dana Martin", updated.GuardianName)
}

func (s *PostgresSuite) TestDelete() {
	record := s.create()
	s.Require().NoError(s.store.Delete(s.ctx, record.ID))

	_, err := s.store.FindByID(s.ctx, record.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Delete(s.ctx, record.ID), sentinel.ErrNotFound)
}

func (s *PostgresSuite) TestListFiltersAndPagination() {
	for i := 0; i < 5; i++ {
		s.create(func(r *slip.Slip) {
			r.BookingID = "bk-list"
			r.CreatedAt = r.CreatedAt.Add(time.Duration(i) * time.Second)
		})
	}
	signedRecord := s.create(func(r *slip.Slip) { r.BookingID = "bk-list" })
	_, err := s.store.Sign(s.ctx, signedRecord.ID, s.signedFields())
	s.Require().NoError(err)

	all, total, err := s.store.List(s.ctx, store.Filter{BookingID: "bk-list"}, store.Page{Number: 1, Size: 4})
	s.Require().NoError(err)
	s.Equal(6, total)
	s.Len(all, 4)

	rest, _, err := s.store.List(s.ctx, store.Filter{BookingID: "bk-list"}, store.Page{Number: 2, Size: 4})
	s.Require().NoError(err)
	s.Len(rest, 2)

	signed, total, err := s.store.List(s.ctx, store.Filter{BookingID: "bk-list", Status: "signed"}, store.Page{Number: 1, Size: 10})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(signed, 1)
	s.Equal(signedRecord.ID, signed[0].ID)

	found, _, err := s.store.List(s.ctx, store.Filter{Search: "dana.martin"}, store.Page{Number: 1, Size: 10})
	s.Require().NoError(err)
	s.Len(found, 6)
}

func (s *PostgresSuite) TestMarkReminded() {
	record := s.create()

	at := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.MarkReminded(s.ctx, record.ID, at))
	s.Require().NoError(s.store.MarkReminded(s.ctx, record.ID, at.Add(time.Hour)))

	got, err := s.store.FindByID(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(2, got.ReminderCount)
	s.Require().NotNil(got.LastReminderAt)
	s.WithinDuration(at.Add(time.Hour), *got.LastReminderAt, time.Second)
}

func (s *PostgresSuite) TestDueForReminder() {
	now := time.Now().UTC()
	target := now.Truncate(24 * time.Hour).AddDate(0, 0, 3)

	due := s.create(func(r *slip.Slip) { r.ActivityDate = target })
	s.create(func(r *slip.Slip) { r.ActivityDate = target.AddDate(0, 0, 1) }) // wrong day
	signedRecord := s.create(func(r *slip.Slip) { r.ActivityDate = target })
	_, err := s.store.Sign(s.ctx, signedRecord.ID, s.signedFields())
	s.Require().NoError(err)

	recentlyReminded := s.create(func(r *slip.Slip) { r.ActivityDate = target })
	s.Require().NoError(s.store.MarkReminded(s.ctx, recentlyReminded.ID, now.Add(-time.Hour)))

	capped := s.create(func(r *slip.Slip) { r.ActivityDate = target })
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.MarkReminded(s.ctx, capped.ID, now.Add(-48*time.Hour)))
	}

	got, err := s.store.DueForReminder(s.ctx, store.ReminderQuery{
		MaxReminders:       5,
		ActivityOn:         &target,
		LastReminderBefore: now.Add(-12 * time.Hour),
	})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(due.ID, got[0].ID)
}

func (s *PostgresSuite) TestDueForReminderOverdue() {
	now := time.Now().UTC()
	cutoff := now.Truncate(24 * time.Hour)

	overdue := s.create(func(r *slip.Slip) { r.ActivityDate = cutoff.AddDate(0, 0, -2) })
	s.create(func(r *slip.Slip) { r.ActivityDate = cutoff.AddDate(0, 0, 2) }) // upcoming

	got, err := s.store.DueForReminder(s.ctx, store.ReminderQuery{
		MaxReminders:       5,
		ActivityBefore:     &cutoff,
		LastReminderBefore: now.Add(-24 * time.Hour),
	})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(overdue.ID, got[0].ID)
}
