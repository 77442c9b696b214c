// Package stream turns a job's persisted checkpoints into a live event
// feed. The pipeline notifies the hub after every checkpoint write; the
// reporter folds those wake-ups, plus a poll interval as a safety net,
// into snapshot events for watchers.
package stream

import "sync"

// Hub fans job change notifications out to subscribers. Notifications
// are level-triggered wake-ups, not payloads: a subscriber re-reads the
// store when woken, so missed signals coalesce instead of queueing.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan struct{}]struct{})}
}

// Notify wakes every subscriber of the job. Never blocks.
func (h *Hub) Notify(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[jobID] {
		select {
		case ch <- struct{}{}:
		default: // already has a pending wake-up
		}
	}
}

// Subscribe registers interest in a job. The returned cancel func must
// be called to release the subscription.
func (h *Hub) Subscribe(jobID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan struct{}]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[jobID], ch)
		if len(h.subs[jobID]) == 0 {
			delete(h.subs, jobID)
		}
	}
	return ch, cancel
}
