package notify

import (
	"context"
	"errors"

	"fuelstation-cloud/internal/discrepancy"
)

// MultiNotifier dispatches alerts to multiple notifiers.
type MultiNotifier struct {
	notifiers []discrepancy.Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...discrepancy.Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards the alert to every notifier and joins their errors.
func (m *MultiNotifier) Notify(ctx context.Context, alert discrepancy.Alert) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
