// Package booking defines the boundary to the reservation system. The slip
// core consumes bookings through a pull interface at slip-creation time and
// owns nothing on this side of the line.
package booking

import (
	"context"
	"time"
)

// Statuses the booking system reports. Slips are only created for confirmed
// bookings.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Student is one roster entry with the guardian seed data captured at
// enrollment.
type Student struct {
	ID            string
	FirstName     string
	LastName      string
	GuardianName  string
	GuardianEmail string
	GuardianPhone string
}

// FullName joins the name parts for display and search.
func (s Student) FullName() string {
	if s.FirstName == "" {
		return s.LastName
	}
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// Booking is the minimal snapshot the slip core needs: an activity, a
// roster, and the facts used in guardian-facing copy.
type Booking struct {
	ID             string
	Reference      string
	OrganizationID string
	SchoolName     string
	ProgramTitle   string
	Status         string
	ActivityDate   time.Time
	ActivityTime   string
	Students       []Student
}

// Provider is the pull interface into the booking system. Implementations
// wrap sentinel.ErrNotFound for unknown booking IDs so callers can tell a
// missing booking from a failed fetch.
type Provider interface {
	Booking(ctx context.Context, bookingID string) (*Booking, error)
}
