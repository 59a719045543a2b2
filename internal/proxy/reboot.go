package proxy

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRebootSettle is the pause before restarting that lets queued
// messages go out.
const DefaultRebootSettle = 500 * time.Millisecond

// RebootTimer restarts the process once a deadline passes. A zero deadline
// disables it.
type RebootTimer struct {
	deadline  time.Time
	settle    time.Duration
	sleep     func(time.Duration)
	restarter Restarter
	fired     bool
	logger    *logrus.Logger
}

// NewRebootTimer schedules a restart interval after start. A zero interval
// disables the timer.
func NewRebootTimer(restarter Restarter, interval, settle time.Duration, start time.Time, sleep func(time.Duration), logger *logrus.Logger) *RebootTimer {
	if logger == nil {
		logger = logrus.New()
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	t := &RebootTimer{
		settle:    settle,
		sleep:     sleep,
		restarter: restarter,
		logger:    logger,
	}
	if interval > 0 {
		t.deadline = start.Add(interval)
	}
	return t
}

// Deadline returns the configured deadline, zero when disabled.
func (t *RebootTimer) Deadline() time.Time {
	return t.deadline
}

// MaybeReboot restarts the process if the deadline has passed. It reports
// whether a restart was attempted. A failed restart is logged and not retried.
func (t *RebootTimer) MaybeReboot(ctx context.Context, now time.Time) bool {
	if t.deadline.IsZero() || t.fired || !now.After(t.deadline) {
		return false
	}
	t.fired = true

	t.logger.WithField("deadline", t.deadline.Format(time.RFC3339)).Info("Rebooting now")
	t.sleep(t.settle)
	if err := t.restarter.Restart(ctx); err != nil {
		t.logger.WithError(err).Error("Restart failed")
	}
	return true
}
