// Package compliance computes read-side statistics over slip populations.
// Aggregation never mutates slip state and tolerates slips changing between
// passes; figures are a snapshot, not a ledger.
package compliance

import (
	"context"
	"math"
	"sort"
	"time"

	"slipgate/internal/slip"
	"slipgate/internal/slip/store"
)

// Stats is one compliance snapshot over a filtered slip population.
type Stats struct {
	Total    int `json:"total"`
	Signed   int `json:"signed"`
	Unsigned int `json:"unsigned"`
	Overdue  int `json:"overdue"`

	// Rates are percentages rounded to two decimals; 0 for an empty
	// population rather than NaN.
	ComplianceRate float64 `json:"compliance_rate"`
	OverdueRate    float64 `json:"overdue_rate"`

	// Time-to-sign figures in hours over the signed subset; 0 when no slip
	// is signed.
	AvgHoursToSign    float64 `json:"avg_hours_to_sign"`
	MedianHoursToSign float64 `json:"median_hours_to_sign"`
}

// ReminderStats summarizes the outstanding reminder workload.
type ReminderStats struct {
	TotalUnsigned     int `json:"total_unsigned"`
	Overdue           int `json:"overdue"`
	Urgent            int `json:"urgent"`              // activity within 2 days
	HighReminderCount int `json:"high_reminder_count"` // 3 or more reminders sent
}

// urgentWindow is how close an unsigned slip's activity has to be before it
// counts as urgent.
const urgentWindow = 2 * 24 * time.Hour

// Aggregator reads slip populations and derives compliance figures.
type Aggregator struct {
	store store.Store
	clock func() time.Time
}

// Option configures the Aggregator.
type Option func(*Aggregator)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

func New(st store.Store, opts ...Option) *Aggregator {
	a := &Aggregator{store: st, clock: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Stats computes the compliance snapshot for the filtered population.
func (a *Aggregator) Stats(ctx context.Context, f store.Filter) (Stats, error) {
	slips, err := a.store.ListAll(ctx, f)
	if err != nil {
		return Stats{}, err
	}

	now := a.clock()
	var out Stats
	var hoursToSign []float64
	for _, s := range slips {
		out.Total++
		switch s.StatusAt(now) {
		case slip.StatusSigned:
			out.Signed++
			if s.SignedAt != nil {
				hoursToSign = append(hoursToSign, s.SignedAt.Sub(s.CreatedAt).Hours())
			}
		case slip.StatusOverdue:
			out.Unsigned++
			out.Overdue++
		default:
			out.Unsigned++
		}
	}

	if out.Total > 0 {
		out.ComplianceRate = round2(float64(out.Signed) / float64(out.Total) * 100)
		out.OverdueRate = round2(float64(out.Overdue) / float64(out.Total) * 100)
	}
	if len(hoursToSign) > 0 {
		out.AvgHoursToSign = round2(mean(hoursToSign))
		out.MedianHoursToSign = round2(median(hoursToSign))
	}
	return out, nil
}

// ReminderStats summarizes the unsigned population for the reminder surface.
func (a *Aggregator) ReminderStats(ctx context.Context, f store.Filter) (ReminderStats, error) {
	f.Status = "unsigned"
	slips, err := a.store.ListAll(ctx, f)
	if err != nil {
		return ReminderStats{}, err
	}

	now := a.clock()
	var out ReminderStats
	for _, s := range slips {
		out.TotalUnsigned++
		if s.StatusAt(now) == slip.StatusOverdue {
			out.Overdue++
		} else if s.ActivityDate.Sub(now) <= urgentWindow {
			out.Urgent++
		}
		if s.ReminderCount >= 3 {
			out.HighReminderCount++
		}
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func median(vs []float64) float64 {
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
