package events

import "github.com/sweeney/molding-monitor/internal/logic"

// Notifier is the sink side of the engine's event egress.
type Notifier interface {
	Notify(event logic.Event)
}

// MultiNotifier dispatches events to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier constructs a MultiNotifier. Nil entries are skipped.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards events to all notifiers.
func (m *MultiNotifier) Notify(event logic.Event) {
	if m == nil {
		return
	}
	for _, n := range m.notifiers {
		if n != nil {
			n.Notify(event)
		}
	}
}
