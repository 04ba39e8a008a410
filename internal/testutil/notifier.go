package testutil

import (
	"context"
	"sync"

	"github.com/keyturn/keyturn/internal/workflow"
)

// RecordingNotifier captures workflow events in order.
//
// Tests assert on the captured slice instead of wiring a real notification
// channel. The zero value is ready to use.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []workflow.Event
}

// Notify records the event. Implements workflow.Notifier.
func (n *RecordingNotifier) Notify(_ context.Context, event workflow.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

// Events returns a copy of every event recorded so far, in delivery order.
func (n *RecordingNotifier) Events() []workflow.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]workflow.Event, len(n.events))
	copy(out, n.events)
	return out
}

// Names returns just the event names, in delivery order.
func (n *RecordingNotifier) Names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, len(n.events))
	for i, e := range n.events {
		names[i] = e.Name
	}
	return names
}

// Reset discards every recorded event.
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}
