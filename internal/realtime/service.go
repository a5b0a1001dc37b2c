package realtime

import (
	"context"
	"reflect"
	"sync"
	"time"

	"zarigaas/internal/aggregate"
	"zarigaas/internal/domain/entity"
	"zarigaas/internal/domain/repository"
	"zarigaas/pkg/logger"
)

const (
	EventCollectionChanged    = "collection_changed"
	EventCollectionError      = "collection_error"
	EventStatsChanged         = "stats_changed"
	EventNetworkStatus        = "network_status"
	EventConversationsChanged = "conversations_changed"
)

type Event struct {
	Type       string               `json:"type"`
	Collection string               `json:"collection,omitempty"`
	Version    uint64               `json:"version,omitempty"`
	Status     entity.NetworkStatus `json:"status,omitempty"`
	ViewerID   string               `json:"viewerId,omitempty"`
	Unread     int                  `json:"unread,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// Base queries mirrored by the service. Orders name canonical fields.
var (
	ProductsQuery = repository.NewQuery(repository.CollectionProducts).OrderBy("createdAt", repository.Desc)
	PitchesQuery  = repository.NewQuery(repository.CollectionPitches).OrderBy("createdAt", repository.Desc)
	MessagesQuery = repository.NewQuery(repository.CollectionMessages).OrderBy("timestamp", repository.Asc)
	UsersQuery    = repository.NewQuery(repository.CollectionUsers).OrderBy("createdAt", repository.Desc)
)

// Service is the process-wide synchronization service: it mirrors the base
// collections, keeps the dashboard aggregate current and fans out change
// events. Construct one at startup and pass it where it is needed.
type Service struct {
	manager *Manager
	tracker *Tracker
	scope   *Scope
	now     func() time.Time

	Products *Collection[entity.Product]
	Pitches  *Collection[entity.Pitch]
	Messages *Collection[entity.Message]
	Users    *Collection[entity.User]

	// recomputeMu orders recomputes so a stale read never overwrites a
	// newer aggregate.
	recomputeMu sync.Mutex
	mu          sync.RWMutex
	stats       entity.DashboardStats
	recomputes int

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

type Option func(*Service)

// WithClock overrides the time used to stamp dashboard recomputes.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(manager *Manager, opts ...Option) *Service {
	s := &Service{
		manager:  manager,
		tracker:  manager.Tracker(),
		now:      time.Now,
		Products: NewCollection(ProductCodec, ProductsQuery.Orders),
		Pitches:  NewCollection(PitchCodec, PitchesQuery.Orders),
		Messages: NewCollection(MessageCodec, MessagesQuery.Orders),
		Users:    NewCollection(UserCodec, UsersQuery.Orders),
		subs:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Products.OnChange(s.onChange(repository.CollectionProducts, true))
	s.Pitches.OnChange(s.onChange(repository.CollectionPitches, true))
	s.Messages.OnChange(s.onChange(repository.CollectionMessages, true))
	s.Users.OnChange(s.onChange(repository.CollectionUsers, false))
	s.tracker.OnChange(func(status entity.NetworkStatus) {
		s.emit(Event{Type: EventNetworkStatus, Status: status})
	})
	return s
}

// Start opens the base subscriptions. They live until Close.
func (s *Service) Start(ctx context.Context) error {
	s.scope = s.manager.NewScope("sync-service")
	bindings := []struct {
		query repository.Query
		sink  Sink
	}{
		{ProductsQuery, s.sink(repository.CollectionProducts, s.Products.ApplySnapshot, s.Products.SetError)},
		{PitchesQuery, s.sink(repository.CollectionPitches, s.Pitches.ApplySnapshot, s.Pitches.SetError)},
		{MessagesQuery, s.sink(repository.CollectionMessages, s.Messages.ApplySnapshot, s.Messages.SetError)},
		{UsersQuery, s.sink(repository.CollectionUsers, s.Users.ApplySnapshot, s.Users.SetError)},
	}
	for _, b := range bindings {
		if _, err := s.scope.Subscribe(ctx, b.query, b.sink); err != nil {
			s.scope.Close()
			return err
		}
	}
	logger.Info("Sync service started with %d subscriptions", s.scope.Len())
	return nil
}

func (s *Service) sink(collection string, apply func(repository.Snapshot) ChangeResult, setErr func(error)) Sink {
	return SinkFuncs{
		Snapshot: func(snap repository.Snapshot) { apply(snap) },
		Error: func(err error) {
			setErr(err)
			s.emit(Event{Type: EventCollectionError, Collection: collection, Error: userMessage(err)})
		},
	}
}

func (s *Service) Close() {
	if s.scope != nil {
		s.scope.Close()
	}
}

func (s *Service) Manager() *Manager {
	return s.manager
}

func (s *Service) onChange(collection string, affectsStats bool) func(ChangeResult) {
	return func(res ChangeResult) {
		s.emit(Event{Type: EventCollectionChanged, Collection: collection, Version: res.Version})
		if affectsStats {
			s.recompute()
		}
	}
}

func (s *Service) recompute() {
	s.recomputeMu.Lock()
	stats := aggregate.Dashboard(s.Products.Items(), s.Pitches.Items(), s.Messages.Items(), s.now())
	s.mu.Lock()
	s.stats = stats
	s.recomputes++
	n := s.recomputes
	s.mu.Unlock()
	s.recomputeMu.Unlock()
	s.emit(Event{Type: EventStatsChanged, Version: uint64(n)})
}

// Recomputes counts dashboard recomputations since construction.
func (s *Service) Recomputes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recomputes
}

// Subscribe registers fn for every service event and returns its cancel func.
func (s *Service) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Service) emit(ev Event) {
	s.subMu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Service) NetworkStatus() entity.NetworkStatus {
	return s.tracker.Aggregate()
}

func (s *Service) ProductsView(search string, inStockOnly bool) ReadModel[entity.Product] {
	items := aggregate.SearchProducts(s.Products.Items(), search)
	if inStockOnly {
		items = aggregate.InStockOnly(items)
	}
	return viewOf(s.Products, items, s.NetworkStatus())
}

func (s *Service) Product(id string) (entity.Product, bool) {
	return s.Products.Get(id)
}

func (s *Service) PitchesView(status entity.PitchStatus, productID string) ReadModel[entity.Pitch] {
	items := aggregate.FilterPitches(s.Pitches.Items(), status)
	if productID != "" {
		items = aggregate.PitchesFor(items, productID)
	}
	return viewOf(s.Pitches, items, s.NetworkStatus())
}

func (s *Service) UsersView() ReadModel[entity.User] {
	return viewOf(s.Users, s.Users.Items(), s.NetworkStatus())
}

func (s *Service) User(uid string) (entity.User, bool) {
	return s.Users.Get(uid)
}

func (s *Service) Conversations(viewerID string) ReadModel[entity.Conversation] {
	return viewOf(s.Messages, aggregate.Conversations(viewerID, s.Messages.Items()), s.NetworkStatus())
}

func (s *Service) Thread(viewerID, peerID string) ReadModel[entity.Message] {
	return viewOf(s.Messages, aggregate.Thread(viewerID, peerID, s.Messages.Items()), s.NetworkStatus())
}

// Message returns a message if it is mirrored locally.
func (s *Service) Message(id string) (entity.Message, bool) {
	return s.Messages.Get(id)
}

// Stats returns the latest dashboard aggregate.
func (s *Service) Stats() entity.DashboardStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := s.stats
	stats.CounterDrift = append([]entity.DriftEntry(nil), s.stats.CounterDrift...)
	return stats
}

// ViewerSession follows one user's conversations and reports when their
// derived view changes.
type ViewerSession struct {
	service  *Service
	viewerID string
	onEvent  func(Event)
	cancel   func()

	mu   sync.Mutex
	last []entity.Conversation
}

// OpenViewer starts following viewerID. onEvent receives conversation
// changes for the viewer plus every network status change.
func (s *Service) OpenViewer(viewerID string, onEvent func(Event)) *ViewerSession {
	v := &ViewerSession{service: s, viewerID: viewerID, onEvent: onEvent}
	v.last = aggregate.Conversations(viewerID, s.Messages.Items())
	v.cancel = s.Subscribe(v.handle)
	return v
}

func (v *ViewerSession) handle(ev Event) {
	switch ev.Type {
	case EventNetworkStatus:
		v.onEvent(ev)
	case EventCollectionChanged:
		if ev.Collection != repository.CollectionMessages {
			return
		}
		convs := aggregate.Conversations(v.viewerID, v.service.Messages.Items())
		v.mu.Lock()
		if reflect.DeepEqual(convs, v.last) {
			v.mu.Unlock()
			return
		}
		v.last = convs
		v.mu.Unlock()

		unread := aggregate.UnreadFor(v.viewerID, v.service.Messages.Items())
		v.onEvent(Event{Type: EventConversationsChanged, ViewerID: v.viewerID, Version: ev.Version, Unread: unread})
	}
}

func (v *ViewerSession) Conversations() []entity.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]entity.Conversation(nil), v.last...)
}

func (v *ViewerSession) Close() {
	v.cancel()
}
