package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"zarigaas/internal/domain/repository"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/logger"
)

// Sink receives accepted deliveries of one subscription.
type Sink interface {
	OnSnapshot(repository.Snapshot)
	OnError(error)
}

// SinkFuncs adapts plain functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	Snapshot func(repository.Snapshot)
	Error    func(error)
}

func (f SinkFuncs) OnSnapshot(s repository.Snapshot) {
	if f.Snapshot != nil {
		f.Snapshot(s)
	}
}

func (f SinkFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Manager owns the store connection and every scope opened on it.
type Manager struct {
	store   repository.DocumentStore
	tracker *Tracker

	mu     sync.Mutex
	scopes map[*Scope]struct{}
}

func NewManager(store repository.DocumentStore, tracker *Tracker) *Manager {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Manager{
		store:   store,
		tracker: tracker,
		scopes:  make(map[*Scope]struct{}),
	}
}

func (m *Manager) Tracker() *Tracker {
	return m.tracker
}

// NewScope opens a scope for one consuming component. Everything the
// scope subscribes to is torn down by Scope.Close.
func (m *Manager) NewScope(name string) *Scope {
	s := &Scope{
		manager: m,
		name:    name,
		handles: make(map[string]*Handle),
	}
	m.mu.Lock()
	m.scopes[s] = struct{}{}
	m.mu.Unlock()
	return s
}

// ActiveHandles counts open handles across all scopes.
func (m *Manager) ActiveHandles() int {
	m.mu.Lock()
	scopes := make([]*Scope, 0, len(m.scopes))
	for s := range m.scopes {
		scopes = append(scopes, s)
	}
	m.mu.Unlock()

	n := 0
	for _, s := range scopes {
		n += s.Len()
	}
	return n
}

// Close closes every scope and waits for their deliveries to stop.
func (m *Manager) Close() {
	m.mu.Lock()
	scopes := make([]*Scope, 0, len(m.scopes))
	for s := range m.scopes {
		scopes = append(scopes, s)
	}
	m.mu.Unlock()
	for _, s := range scopes {
		s.Close()
	}
}

func (m *Manager) forget(s *Scope) {
	m.mu.Lock()
	delete(m.scopes, s)
	m.mu.Unlock()
}

type Scope struct {
	manager *Manager
	name    string

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

func (s *Scope) Name() string {
	return s.name
}

func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Subscribe opens a live subscription for q. A scope holds at most one
// handle per query key: repeating the call returns the existing handle and
// keeps its original sink. A handle that failed terminally is replaced.
// Cancelling ctx closes the handle.
func (s *Scope) Subscribe(ctx context.Context, q repository.Query, sink Sink) (*Handle, error) {
	key := q.Key()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.Conflict("scope " + s.name + " is closed")
	}
	if existing, ok := s.handles[key]; ok {
		if existing.Err() == nil {
			s.mu.Unlock()
			return existing, nil
		}
		delete(s.handles, key)
		s.mu.Unlock()
		existing.shutdown()
		s.mu.Lock()
	}

	streamCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:     uuid.New().String(),
		key:    key,
		query:  q,
		scope:  s,
		sink:   sink,
		cancel: cancel,
		done:   make(chan struct{}),
		active: true,
	}
	s.handles[key] = h
	s.mu.Unlock()

	events, err := s.manager.store.Subscribe(streamCtx, q)
	if err != nil {
		cancel()
		close(h.done)
		s.mu.Lock()
		if s.handles[key] == h {
			delete(s.handles, key)
		}
		s.mu.Unlock()
		return nil, err
	}

	h.mu.Lock()
	gen := h.generation
	h.mu.Unlock()

	logger.Debug("Subscription %s opened in scope %s for %s", h.id, s.name, key)
	go h.run(streamCtx, gen, events)
	return h, nil
}

// Unsubscribe closes h. It is safe to call any number of times.
func (s *Scope) Unsubscribe(h *Handle) {
	if h == nil {
		return
	}
	h.Close()
}

// Resubscribe closes old before opening the replacement, so the two never
// deliver concurrently.
func (s *Scope) Resubscribe(ctx context.Context, old *Handle, q repository.Query, sink Sink) (*Handle, error) {
	if old != nil {
		old.Close()
		<-old.Done()
	}
	return s.Subscribe(ctx, q, sink)
}

// Close tears down every handle of the scope and waits for their delivery
// goroutines to exit. Repeated calls are no-ops.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.handles = make(map[string]*Handle)
	s.mu.Unlock()

	for _, h := range handles {
		h.shutdown()
	}
	for _, h := range handles {
		<-h.done
	}
	s.manager.forget(s)
	logger.Debug("Scope %s closed (%d handles)", s.name, len(handles))
}

func (s *Scope) remove(h *Handle) {
	s.mu.Lock()
	if s.handles[h.key] == h {
		delete(s.handles, h.key)
	}
	s.mu.Unlock()
}

// Handle is one live subscription. Deliveries are serialized under the
// handle mutex and carry the generation they were started with; once the
// handle is closed the generation moves on and late deliveries are dropped.
type Handle struct {
	id     string
	key    string
	query  repository.Query
	scope  *Scope
	sink   Sink
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	generation uint64
	active     bool
	failed     error
	delivered  int
	dropped    int
}

func (h *Handle) ID() string              { return h.id }
func (h *Handle) Query() repository.Query { return h.query }

// Done is closed once the delivery goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Err returns the terminal failure of the handle, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failed
}

// Stats returns how many deliveries were accepted and dropped as stale.
func (h *Handle) Stats() (delivered, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delivered, h.dropped
}

// Close stops the subscription and removes it from its scope and from the
// network tracker. It waits for an in-flight delivery to finish, so a sink
// must not close its own handle synchronously.
func (h *Handle) Close() {
	h.shutdown()
	h.scope.remove(h)
}

func (h *Handle) shutdown() {
	h.mu.Lock()
	wasActive := h.active || h.failed != nil
	h.active = false
	h.generation++
	h.mu.Unlock()

	h.cancel()
	h.scope.manager.tracker.Remove(h.id)
	if wasActive {
		logger.Debug("Subscription %s closed", h.id)
	}
}

func (h *Handle) run(ctx context.Context, gen uint64, events <-chan repository.SnapshotEvent) {
	defer close(h.done)
	for ev := range events {
		h.deliver(gen, ev)
	}
	if ctx.Err() != nil && h.Err() == nil {
		h.Close()
	}
}

func (h *Handle) deliver(gen uint64, ev repository.SnapshotEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.active || gen != h.generation {
		h.dropped++
		return
	}
	h.delivered++

	tracker := h.scope.manager.tracker
	if ev.Err == nil {
		tracker.Healthy(h.id)
		h.sink.OnSnapshot(ev.Snapshot)
		return
	}

	tracker.Report(h.id, ev.Err)
	if errors.KindOf(ev.Err) == errors.KindTransient {
		logger.Warn("Subscription %s on %s degraded: %v", h.id, h.query.Collection, ev.Err)
		h.sink.OnError(ev.Err)
		return
	}

	logger.Error("Subscription %s on %s failed: %v", h.id, h.query.Collection, ev.Err)
	h.failed = ev.Err
	h.active = false
	h.cancel()
	h.sink.OnError(ev.Err)
}
