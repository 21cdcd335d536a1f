package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the display style of an alert
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSuccess, KindError, KindInfo:
		return true
	}
	return false
}

// DefaultTTL is how long an alert stays visible unless dismissed.
const DefaultTTL = 5 * time.Second

// Alert is one transient notification.
type Alert struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier raises alerts. Screens depend on this rather than on *Queue.
type Notifier interface {
	Raise(message string, kind Kind) Alert
}

type entry struct {
	alert Alert
	timer *time.Timer
}

// Queue holds the visible alerts in the order they were raised. Each alert is
// removed after the TTL or when dismissed. Safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	ttl       time.Duration
	entries   []*entry
	listeners []func([]Alert)
	closed    bool
	now       func() time.Time
}

// NewQueue creates a queue whose alerts expire after ttl (DefaultTTL if ttl <= 0).
func NewQueue(ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Queue{ttl: ttl, now: time.Now}
}

// Raise appends an alert and schedules its removal. Identical messages are
// not merged. Unknown kinds are shown as info.
func (q *Queue) Raise(message string, kind Kind) Alert {
	if !kind.Valid() {
		kind = KindInfo
	}

	q.mu.Lock()
	a := Alert{
		ID:        uuid.NewString(),
		Message:   message,
		Kind:      kind,
		CreatedAt: q.now(),
	}
	if q.closed {
		q.mu.Unlock()
		return a
	}
	e := &entry{alert: a}
	e.timer = time.AfterFunc(q.ttl, func() { q.Dismiss(a.ID) })
	q.entries = append(q.entries, e)
	snapshot, listeners := q.snapshotLocked()
	q.mu.Unlock()

	notify(listeners, snapshot)
	return a
}

// Dismiss removes the alert with id. It reports whether an alert was removed;
// dismissing an unknown or already expired id is a no-op.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	idx := -1
	for i, e := range q.entries {
		if e.alert.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	q.entries[idx].timer.Stop()
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	snapshot, listeners := q.snapshotLocked()
	q.mu.Unlock()

	notify(listeners, snapshot)
	return true
}

// List returns the visible alerts, oldest first.
func (q *Queue) List() []Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	out, _ := q.snapshotLocked()
	return out
}

// OnChange registers fn to receive the alert list after every change.
// fn runs outside the queue lock and may call back into the queue.
func (q *Queue) OnChange(fn func([]Alert)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, fn)
}

// Close stops all pending timers and drops the visible alerts. Alerts raised
// after Close are returned but never stored.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		e.timer.Stop()
	}
	q.entries = nil
	q.listeners = nil
	q.closed = true
}

func (q *Queue) snapshotLocked() ([]Alert, []func([]Alert)) {
	out := make([]Alert, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.alert
	}
	listeners := make([]func([]Alert), len(q.listeners))
	copy(listeners, q.listeners)
	return out, listeners
}

func notify(listeners []func([]Alert), alerts []Alert) {
	for _, fn := range listeners {
		fn(alerts)
	}
}
