// Package reminder runs the automated reminder passes: escalating nudges
// ahead of the activity date and overdue notices after it. Passes are
// repeatable; the dedup windows make re-running a pass harmless.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"slipgate/internal/audit"
	"slipgate/internal/notify"
	"slipgate/internal/platform/config"
	"slipgate/internal/platform/metrics"
	"slipgate/internal/slip"
	"slipgate/internal/slip/store"
)

// maxConcurrentSends bounds the notification fan-out per pass.
const maxConcurrentSends = 8

// DispatchError identifies one slip whose reminder could not be delivered
// or tracked during a pass.
type DispatchError struct {
	SlipID string `json:"slip_id"`
	Reason string `json:"reason"`
}

// Result summarizes one scheduler pass. Errors lists the slips that failed,
// so an on-demand run can report exactly which deliveries need attention.
type Result struct {
	Processed int             `json:"processed"`
	Sent      int             `json:"sent"`
	Overdue   int             `json:"overdue_notices"`
	Errors    []DispatchError `json:"errors"`
}

// Locker serializes scheduler runs across processes. TryAcquire returns
// false when another process holds the lease.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Scheduler drives the automated reminder passes.
type Scheduler struct {
	store   store.Store
	sender  notify.Sender
	audits  *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	lock    Locker // nil means single-process deployment, no lease needed

	policy  config.Reminder
	baseURL string
	clock   func() time.Time
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLock installs a cross-process run lease.
func WithLock(lock Locker) Option {
	return func(s *Scheduler) { s.lock = lock }
}

func New(
	st store.Store,
	sender notify.Sender,
	audits *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	policy config.Reminder,
	baseURL string,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		store:   st,
		sender:  sender,
		audits:  audits,
		metrics: m,
		logger:  logger,
		policy:  policy,
		baseURL: baseURL,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks RunOnce until the context is cancelled. One pass runs
// immediately at startup.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.policy.TickInterval)
	defer ticker.Stop()

	s.runLocked(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runLocked(ctx)
		}
	}
}

func (s *Scheduler) runLocked(ctx context.Context) {
	if s.lock != nil {
		ok, err := s.lock.TryAcquire(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "reminder lease acquisition failed", "error", err)
			return
		}
		if !ok {
			s.logger.DebugContext(ctx, "reminder pass held by another process")
			return
		}
		defer func() {
			if err := s.lock.Release(ctx); err != nil {
				s.logger.WarnContext(ctx, "reminder lease release failed", "error", err)
			}
		}()
	}

	result, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "reminder pass failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "reminder pass complete",
		"processed", result.Processed,
		"sent", result.Sent,
		"overdue_notices", result.Overdue,
		"errors", len(result.Errors),
	)
}

// RunOnce executes one full pass: an upcoming-reminder sweep per escalation
// offset, then the overdue sweep when enabled. Individual delivery failures
// are counted, not fatal; a failed send leaves the reminder counter
// untouched so the next pass retries.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	now := s.clock()
	var result Result

	for _, offset := range s.policy.EscalationOffsets {
		target := startOfDay(now).AddDate(0, 0, offset)
		due, err := s.store.DueForReminder(ctx, store.ReminderQuery{
			MaxReminders:       s.policy.MaxReminders,
			ActivityOn:         &target,
			LastReminderBefore: now.Add(-s.policy.UpcomingInterval),
		})
		if err != nil {
			return result, fmt.Errorf("select slips due in %d days: %w", offset, err)
		}
		sent, errs := s.dispatch(ctx, due, offset, now)
		result.Processed += len(due)
		result.Sent += sent
		result.Errors = append(result.Errors, errs...)
	}

	if s.policy.OverdueEnabled {
		cutoff := startOfDay(now)
		due, err := s.store.DueForReminder(ctx, store.ReminderQuery{
			MaxReminders:       s.policy.MaxReminders,
			ActivityBefore:     &cutoff,
			LastReminderBefore: now.Add(-s.policy.OverdueInterval),
		})
		if err != nil {
			return result, fmt.Errorf("select overdue slips: %w", err)
		}
		sent, errs := s.dispatch(ctx, due, -1, now)
		result.Processed += len(due)
		result.Overdue += sent
		result.Errors = append(result.Errors, errs...)
	}

	_ = s.audits.Emit(ctx, audit.Event{
		Action: audit.ActionReminderBatchProcessed,
		Reason: fmt.Sprintf("processed=%d sent=%d overdue=%d errors=%d",
			result.Processed, result.Sent+result.Overdue, result.Overdue, len(result.Errors)),
	})
	return result, nil
}

// dispatch fans the sends out with bounded concurrency. offset < 0 marks the
// overdue tier. Each successful send marks its slip immediately so a
// cancelled batch keeps completed work.
func (s *Scheduler) dispatch(ctx context.Context, due []*slip.Slip, offset int, now time.Time) (int, []DispatchError) {
	var (
		sentN  atomic.Int64
		mu     sync.Mutex
		failed []DispatchError
	)
	fail := func(id uuid.UUID, err error) {
		mu.Lock()
		failed = append(failed, DispatchError{SlipID: id.String(), Reason: err.Error()})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSends)
	for _, record := range due {
		g.Go(func() error {
			subject, body := s.compose(record, offset)
			if err := s.sender.Send(gctx, record.GuardianEmail, record.GuardianName, subject, body); err != nil {
				fail(record.ID, err)
				if s.metrics != nil {
					s.metrics.ReminderFailures.Inc()
				}
				s.logger.WarnContext(gctx, "reminder delivery failed",
					"slip_id", record.ID,
					"error", err,
				)
				return nil
			}
			if err := s.store.MarkReminded(gctx, record.ID, now); err != nil {
				fail(record.ID, err)
				s.logger.ErrorContext(gctx, "reminder tracking update failed",
					"slip_id", record.ID,
					"error", err,
				)
				return nil
			}
			sentN.Add(1)
			if s.metrics != nil {
				s.metrics.RemindersSent.Inc()
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(sentN.Load()), failed
}

// compose builds the urgency-tiered reminder copy. offset is days until the
// activity; negative means overdue.
func (s *Scheduler) compose(record *slip.Slip, offset int) (subject, body string) {
	link := s.baseURL + "/slips/" + record.AccessToken

	switch {
	case offset < 0:
		subject = "OVERDUE: Permission Slip Still Needed - " + record.ProgramTitle
		body = fmt.Sprintf(
			"The %s program on %s has passed, but we still have no signed permission slip for %s. Please sign it as soon as possible: %s",
			record.ProgramTitle, record.ActivityDate.Format("January 2, 2006"), record.SubjectName, link,
		)
	case offset <= 1:
		subject = "URGENT: Permission Slip Due Tomorrow - " + record.ProgramTitle
		body = fmt.Sprintf(
			"%s's %s program is tomorrow and we have not received a signed permission slip. Without it, %s cannot participate. Sign now: %s",
			record.SubjectName, record.ProgramTitle, record.SubjectName, link,
		)
	case offset <= 3:
		subject = "Reminder: Permission Slip Due Soon - " + record.ProgramTitle
		body = fmt.Sprintf(
			"Just %d days until %s's %s program on %s. Please sign the permission slip: %s",
			offset, record.SubjectName, record.ProgramTitle, record.ActivityDate.Format("January 2, 2006"), link,
		)
	default:
		subject = "Permission Slip Needed - " + record.ProgramTitle
		body = fmt.Sprintf(
			"%s's %s program is coming up on %s. Please sign the permission slip at your convenience: %s",
			record.SubjectName, record.ProgramTitle, record.ActivityDate.Format("January 2, 2006"), link,
		)
	}
	return subject, body
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
