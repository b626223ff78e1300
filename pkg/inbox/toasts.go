package inbox

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const (
	DefaultMaxToasts     = 3
	DefaultToastDuration = 5 * time.Second
)

// Toast is a transient on-screen message, separate from the history.
type Toast struct {
	ID         string
	Title      string
	Message    string
	Priority   string
	Duration   time.Duration
	Persistent bool
	ShownAt    time.Time
}

// Toasts holds at most max visible toasts. Each expires after its duration
// unless persistent; showing one at capacity evicts the oldest.
type Toasts struct {
	mu    sync.Mutex
	max   int
	order []string
	items *cache.Cache
}

func NewToasts(max int) *Toasts {
	if max <= 0 {
		max = DefaultMaxToasts
	}
	return &Toasts{
		max:   max,
		items: cache.New(DefaultToastDuration, time.Minute),
	}
}

// Show adds t and returns its id.
func (t *Toasts) Show(toast Toast) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if toast.ID == "" {
		toast.ID = uuid.NewString()
	}
	if toast.Duration <= 0 {
		toast.Duration = DefaultToastDuration
	}
	toast.ShownAt = time.Now()

	t.pruneLocked()
	for len(t.order) >= t.max {
		t.items.Delete(t.order[0])
		t.order = t.order[1:]
	}

	ttl := toast.Duration
	if toast.Persistent {
		ttl = cache.NoExpiration
	}
	t.items.Set(toast.ID, toast, ttl)
	t.order = append(t.order, toast.ID)
	return toast.ID
}

func (t *Toasts) Dismiss(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items.Delete(id)
	t.pruneLocked()
}

// Active returns the visible toasts, oldest first.
func (t *Toasts) Active() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked()
	out := make([]Toast, 0, len(t.order))
	for _, id := range t.order {
		if v, ok := t.items.Get(id); ok {
			out = append(out, v.(Toast))
		}
	}
	return out
}

func (t *Toasts) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items.Flush()
	t.order = nil
}

// pruneLocked drops ids whose toast expired or was dismissed.
func (t *Toasts) pruneLocked() {
	kept := t.order[:0]
	for _, id := range t.order {
		if _, ok := t.items.Get(id); ok {
			kept = append(kept, id)
		}
	}
	t.order = kept
}
