package reconcile

import (
	"context"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

// Deduper collapses repeated identical alert conditions into a single
// notification. A condition's signature is compared against the last one
// stored on the order; the notification is emitted only when the signature
// differs, then the new signature is persisted by the caller.
type Deduper struct {
	notifier workflow.Notifier
}

// NewDeduper creates a Deduper emitting through the given notifier
func NewDeduper(notifier workflow.Notifier) *Deduper {
	return &Deduper{notifier: notifier}
}

// NotifyIfChanged sends the notification unless the condition's signature
// matches the last one recorded on the order. The order's stored signature
// is updated in memory; persisting it is the caller's responsibility (it
// rides the same transaction as the state transition that raised the
// condition).
func (d *Deduper) NotifyIfChanged(
	ctx context.Context,
	o *workflow.OrderState,
	cond workflow.FailureCondition,
	n workflow.Notification,
) (sent bool, err error) {
	sig := cond.Signature()
	if sig == o.LastFailureSignature {
		return false, nil
	}
	if err := d.notifier.Send(ctx, n); err != nil {
		return false, err
	}
	o.LastFailureSignature = sig
	return true, nil
}
