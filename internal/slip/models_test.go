package slip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

func TestStatusAt(t *testing.T) {
	t.Run("signed wins regardless of date", func(t *testing.T) {
		s := &Slip{Signed: true, ActivityDate: now.AddDate(0, 0, -10)}
		assert.Equal(t, StatusSigned, s.StatusAt(now))
	})

	t.Run("unsigned with future activity", func(t *testing.T) {
		s := &Slip{ActivityDate: now.AddDate(0, 0, 3)}
		assert.Equal(t, StatusUnsigned, s.StatusAt(now))
	})

	t.Run("unsigned on the activity day is not yet overdue", func(t *testing.T) {
		s := &Slip{ActivityDate: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}
		assert.Equal(t, StatusUnsigned, s.StatusAt(now))
	})

	t.Run("unsigned past the activity day is overdue", func(t *testing.T) {
		s := &Slip{ActivityDate: time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)}
		assert.Equal(t, StatusOverdue, s.StatusAt(now))
	})
}

func TestAccessExpired(t *testing.T) {
	grace := 30 * 24 * time.Hour
	activity := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("within grace", func(t *testing.T) {
		s := &Slip{ActivityDate: activity}
		assert.False(t, s.AccessExpired(activity.AddDate(0, 0, 29), grace))
	})

	t.Run("past grace", func(t *testing.T) {
		s := &Slip{ActivityDate: activity}
		assert.True(t, s.AccessExpired(activity.AddDate(0, 0, 31), grace))
	})

	t.Run("zero activity date never expires", func(t *testing.T) {
		s := &Slip{}
		assert.False(t, s.AccessExpired(now, grace))
	})
}

func TestCanSendReminder(t *testing.T) {
	const maxReminders = 3
	interval := 24 * time.Hour

	t.Run("fresh unsigned slip", func(t *testing.T) {
		s := &Slip{}
		assert.True(t, s.CanSendReminder(now, maxReminders, interval))
	})

	t.Run("signed slip never", func(t *testing.T) {
		s := &Slip{Signed: true}
		assert.False(t, s.CanSendReminder(now, maxReminders, interval))
	})

	t.Run("at the ceiling", func(t *testing.T) {
		s := &Slip{ReminderCount: 3}
		assert.False(t, s.CanSendReminder(now, maxReminders, interval))
	})

	t.Run("too soon after the last send", func(t *testing.T) {
		last := now.Add(-23 * time.Hour)
		s := &Slip{ReminderCount: 1, LastReminderAt: &last}
		assert.False(t, s.CanSendReminder(now, maxReminders, interval))
	})

	t.Run("interval elapsed", func(t *testing.T) {
		last := now.Add(-25 * time.Hour)
		s := &Slip{ReminderCount: 1, LastReminderAt: &last}
		assert.True(t, s.CanSendReminder(now, maxReminders, interval))
	})
}
