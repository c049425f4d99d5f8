package cart

import (
	"sync"

	"storefront-cart/internal/model"
	"storefront-cart/internal/reconcile"
)

// EventKind discriminates controller events.
type EventKind string

const (
	// EventStateChanged carries a new View. Corrections is set when the
	// change came from a reconciliation.
	EventStateChanged EventKind = "state_changed"
	// EventNotice carries a transient user-facing message.
	EventNotice EventKind = "notice"
)

// Event is emitted to listeners. The core never renders anything itself.
type Event struct {
	Kind        EventKind
	View        View
	Notice      *model.Message
	Corrections *reconcile.LineItemDiff
}

// Listener receives controller events.
type Listener func(Event)

// NoticeBuffer keeps the most recent notices until drained.
// Register its Listen method with Controller.Subscribe.
type NoticeBuffer struct {
	mu   sync.Mutex
	size int
	msgs []model.Message
}

// NewNoticeBuffer creates a buffer holding at most size notices.
func NewNoticeBuffer(size int) *NoticeBuffer {
	if size <= 0 {
		size = 20
	}
	return &NoticeBuffer{size: size}
}

// Listen records notice events and ignores everything else.
func (b *NoticeBuffer) Listen(ev Event) {
	if ev.Kind != EventNotice || ev.Notice == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, *ev.Notice)
	if over := len(b.msgs) - b.size; over > 0 {
		b.msgs = b.msgs[over:]
	}
}

// Drain returns buffered notices oldest first and empties the buffer.
func (b *NoticeBuffer) Drain() []model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.msgs
	b.msgs = nil
	return msgs
}
