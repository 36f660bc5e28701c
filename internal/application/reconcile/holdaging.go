package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

// HoldAgingConfig holds the aging thresholds for parked orders
type HoldAgingConfig struct {
	// ReminderAfter is how long an order may sit in HOLD before the
	// standard audience is reminded
	ReminderAfter time.Duration
	// ReminderInterval is the minimum gap between repeated reminders
	ReminderInterval time.Duration
	// EscalateAfter is how long before the elevated audience is notified,
	// at most once per hold episode
	EscalateAfter time.Duration
}

// HoldAgingMonitor tracks how long an order has sat in a manual-intervention
// state and escalates notification targets over time. The hold entry
// timestamp is recorded once by OrderState.EnterHold and cleared when the
// order leaves HOLD; this monitor only reads it.
type HoldAgingMonitor struct {
	notifier workflow.Notifier
	cfg      HoldAgingConfig
	logger   *zap.Logger
	// now is injectable for tests
	now func() time.Time
}

// NewHoldAgingMonitor creates a monitor with the given thresholds
func NewHoldAgingMonitor(notifier workflow.Notifier, cfg HoldAgingConfig, logger *zap.Logger) *HoldAgingMonitor {
	return &HoldAgingMonitor{
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("hold_aging"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Check evaluates one held order against the aging thresholds. It mutates
// the order's reminder/escalation bookkeeping in memory and reports whether
// anything changed; the caller persists the order.
func (m *HoldAgingMonitor) Check(ctx context.Context, o *workflow.OrderState) (changed bool, err error) {
	if o.Status != workflow.StatusHold || o.HoldSince == nil {
		return false, nil
	}

	now := m.now()
	elapsed := o.HeldFor(now)

	if elapsed >= m.cfg.EscalateAfter && o.EscalatedAt == nil {
		n := workflow.Notification{
			Audience: workflow.AudienceAdmin,
			Subject:  fmt.Sprintf("Order %d held for %d days at %s", o.OrderNum, int(elapsed.Hours()/24), o.LastStep),
			Body:     fmt.Sprintf("Order %d entered HOLD %s at step %s and has not been resolved. Reason: %s", o.OrderNum, o.HoldSince.Format(time.RFC3339), o.LastStep, o.LastErrorSummary),
			OrderNum: o.OrderNum,
			Step:     o.LastStep,
		}
		if err := m.notifier.Send(ctx, n); err != nil {
			return changed, err
		}
		o.EscalatedAt = &now
		changed = true
		m.logger.Warn("hold escalated",
			zap.Int("order_num", o.OrderNum),
			zap.String("step", o.LastStep.String()),
			zap.Duration("held_for", elapsed))
	}

	if elapsed >= m.cfg.ReminderAfter {
		due := o.LastReminderAt == nil || now.Sub(*o.LastReminderAt) >= m.cfg.ReminderInterval
		if due {
			n := workflow.Notification{
				Audience: workflow.AudienceCSR,
				Subject:  fmt.Sprintf("Order %d still held at %s", o.OrderNum, o.LastStep),
				Body:     fmt.Sprintf("Order %d has been in HOLD since %s at step %s. Reason: %s", o.OrderNum, o.HoldSince.Format(time.RFC3339), o.LastStep, o.LastErrorSummary),
				OrderNum: o.OrderNum,
				Step:     o.LastStep,
			}
			if err := m.notifier.Send(ctx, n); err != nil {
				return changed, err
			}
			o.LastReminderAt = &now
			changed = true
		}
	}

	return changed, nil
}
