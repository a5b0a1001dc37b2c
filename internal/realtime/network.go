package realtime

import (
	"sync"

	"zarigaas/internal/domain/entity"
	"zarigaas/pkg/errors"
)

// Tracker keeps the network status of every live subscription handle and
// the worst-of aggregate across them. An error status stays until the
// handle is removed; a degraded status clears on the next good snapshot.
type Tracker struct {
	mu        sync.RWMutex
	states    map[string]entity.NetworkStatus
	reasons   map[string]string
	aggregate entity.NetworkStatus
	listeners []func(entity.NetworkStatus)
}

func NewTracker() *Tracker {
	return &Tracker{
		states:    make(map[string]entity.NetworkStatus),
		reasons:   make(map[string]string),
		aggregate: entity.NetworkOnline,
	}
}

// OnChange registers fn to be called whenever the aggregate status changes.
func (t *Tracker) OnChange(fn func(entity.NetworkStatus)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Report classifies err for handleID. Transient failures degrade the
// handle, everything else puts it in error.
func (t *Tracker) Report(handleID string, err error) {
	status := entity.NetworkError
	if errors.KindOf(err) == errors.KindTransient {
		status = entity.NetworkDegraded
	}
	t.update(func() {
		current := t.states[handleID]
		if current == entity.NetworkError {
			return
		}
		t.states[handleID] = status
		if err != nil {
			t.reasons[handleID] = err.Error()
		}
	})
}

// Healthy records a good snapshot for handleID.
func (t *Tracker) Healthy(handleID string) {
	t.update(func() {
		if t.states[handleID] == entity.NetworkError {
			return
		}
		t.states[handleID] = entity.NetworkOnline
		delete(t.reasons, handleID)
	})
}

func (t *Tracker) Remove(handleID string) {
	t.update(func() {
		delete(t.states, handleID)
		delete(t.reasons, handleID)
	})
}

func (t *Tracker) Status(handleID string) entity.NetworkStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[handleID]; ok {
		return s
	}
	return entity.NetworkOnline
}

func (t *Tracker) Reason(handleID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reasons[handleID]
}

func (t *Tracker) Aggregate() entity.NetworkStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.aggregate
}

func (t *Tracker) Snapshot() map[string]entity.NetworkStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]entity.NetworkStatus, len(t.states))
	for id, s := range t.states {
		out[id] = s
	}
	return out
}

func (t *Tracker) update(mutate func()) {
	t.mu.Lock()
	mutate()
	next := entity.NetworkOnline
	for _, s := range t.states {
		next = next.Worse(s)
	}
	changed := next != t.aggregate
	t.aggregate = next
	listeners := append([]func(entity.NetworkStatus){}, t.listeners...)
	t.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(next)
		}
	}
}
