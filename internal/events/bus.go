// Package events implements the synchronous topic bus used for cross-cutting
// notifications between runtime components.
package events

import "sync"

// Well-known topics.
const (
	Saving       = "notebook.saving"
	Saved        = "notebook.saved"
	SaveFailed   = "notebook.save_failed"
	Dirty        = "notebook.dirty"
	CellExecuted = "cell.executed"
	InsertBelow  = "cell.insert_below"
)

// Handler receives the payload passed to Trigger. Handlers needing extra
// context capture it as a closure.
type Handler func(payload any)

// Bus dispatches payloads to handlers registered per topic.
//
// Trigger invokes handlers synchronously on the calling goroutine, in
// registration order. Topics are compared by string equality only. A Bus
// lives exactly as long as the Notebook that created it.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// On registers h for topic. Registration order is delivery order.
func (b *Bus) On(topic string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Trigger delivers payload to every handler registered for topic.
// The handler list is snapshotted first, so a handler may register further
// handlers without affecting the current delivery.
func (b *Bus) Trigger(topic string, payload any) {
	b.mu.Lock()
	hs := make([]Handler, len(b.handlers[topic]))
	copy(hs, b.handlers[topic])
	b.mu.Unlock()

	for _, h := range hs {
		h(payload)
	}
}
