package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"zarigaas/internal/domain/repository"
	"zarigaas/pkg/errors"
)

// MemoryStore is an in-process DocumentStore. It backs local development
// and tests, and can inject failures into writes and live streams.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]interface{}
	listeners   map[int]*memoryListener
	nextID      int
	clock       func() time.Time
	latency     time.Duration
	failNext    map[string]error
	subscribeEr map[string]error
	closed      bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]interface{}),
		listeners:   make(map[int]*memoryListener),
		clock:       time.Now,
		failNext:    make(map[string]error),
		subscribeEr: make(map[string]error),
	}
}

var _ repository.DocumentStore = (*MemoryStore)(nil)

// SetClock replaces the time source used for server timestamps and read times.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	s.clock = clock
	s.mu.Unlock()
}

// SetLatency delays every one-shot operation by d, honoring context deadlines.
func (s *MemoryStore) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// FailNext makes the next call of op ("get", "find", "add", "create",
// "update", "delete", "create_and_update") return err.
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	s.failNext[op] = err
	s.mu.Unlock()
}

// FailSubscribe makes new subscriptions on collection fail with err.
// A nil err clears the failure.
func (s *MemoryStore) FailSubscribe(collection string, err error) {
	s.mu.Lock()
	if err == nil {
		delete(s.subscribeEr, collection)
	} else {
		s.subscribeEr[collection] = err
	}
	s.mu.Unlock()
}

// EmitError delivers err to every live stream on collection. Non-retryable
// errors terminate the streams.
func (s *MemoryStore) EmitError(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	terminal := !errors.Retryable(err)
	for _, l := range s.listeners {
		if l.query.Collection == collection {
			l.enqueue(repository.SnapshotEvent{Err: err}, terminal)
		}
	}
}

// Redeliver re-sends the current result set to every stream on collection.
func (s *MemoryStore) Redeliver(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked(collection)
}

// Put writes a raw document without any sentinel translation. It notifies
// listeners, which makes it the seeding tool for legacy-shaped fixtures.
func (s *MemoryStore) Put(collection, id string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectionLocked(collection)[id] = copyMap(data)
	s.notifyLocked(collection)
}

// Raw returns a copy of the stored document, or nil.
func (s *MemoryStore) Raw(collection, id string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.collections[collection][id]
	if !ok {
		return nil
	}
	return copyMap(data)
}

func (s *MemoryStore) Subscribe(ctx context.Context, q repository.Query) (<-chan repository.SnapshotEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.Unavailable("store is closed", nil)
	}

	out := make(chan repository.SnapshotEvent)
	l := &memoryListener{query: q, out: out, wake: make(chan struct{}, 1)}
	if err, ok := s.subscribeEr[q.Collection]; ok {
		l.enqueue(repository.SnapshotEvent{Err: err}, !errors.Retryable(err))
	} else {
		l.enqueue(repository.SnapshotEvent{Snapshot: s.snapshotLocked(q)}, false)
	}

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	lctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	go func() {
		l.pump(lctx)
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}()
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	if err := s.begin(ctx, "get"); err != nil {
		return repository.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.collections[collection][id]
	if !ok {
		return repository.Document{}, errors.NotFound("Document "+collection+"/"+id, nil)
	}
	return repository.Document{ID: id, Data: copyMap(data)}, nil
}

func (s *MemoryStore) Find(ctx context.Context, q repository.Query) ([]repository.Document, error) {
	if err := s.begin(ctx, "find"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(q).Documents, nil
}

func (s *MemoryStore) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	if err := s.begin(ctx, "add"); err != nil {
		return "", err
	}
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectionLocked(collection)[id] = s.resolveLocked(nil, data)
	s.notifyLocked(collection)
	return id, nil
}

func (s *MemoryStore) Create(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if err := s.begin(ctx, "create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collectionLocked(collection)
	if _, exists := docs[id]; exists {
		return errors.AlreadyExists("Document "+collection+"/"+id, nil)
	}
	docs[id] = s.resolveLocked(nil, data)
	s.notifyLocked(collection)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := s.begin(ctx, "update"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collectionLocked(collection)
	existing, ok := docs[id]
	if !ok {
		return errors.NotFound("Document "+collection+"/"+id, nil)
	}
	docs[id] = s.resolveLocked(existing, fields)
	s.notifyLocked(collection)
	return nil
}

func (s *MemoryStore) UpdateIf(ctx context.Context, collection, id, field string, expected interface{}, fields map[string]interface{}) error {
	if err := s.begin(ctx, "update"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collectionLocked(collection)
	existing, ok := docs[id]
	if !ok {
		return errors.NotFound("Document "+collection+"/"+id, nil)
	}
	if !repository.SameValue(existing[field], expected) {
		return errors.Conflict("Document " + collection + "/" + id + " changed concurrently")
	}
	docs[id] = s.resolveLocked(existing, fields)
	s.notifyLocked(collection)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.begin(ctx, "delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collectionLocked(collection)
	if _, ok := docs[id]; !ok {
		return nil
	}
	delete(docs, id)
	s.notifyLocked(collection)
	return nil
}

func (s *MemoryStore) CreateAndUpdate(ctx context.Context, create repository.Write, update repository.Write) error {
	if err := s.begin(ctx, "create_and_update"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.collectionLocked(create.Collection)
	if _, exists := created[create.ID]; exists {
		return errors.AlreadyExists("Document "+create.Collection+"/"+create.ID, nil)
	}
	updated := s.collectionLocked(update.Collection)
	existing, ok := updated[update.ID]
	if !ok {
		return errors.NotFound("Document "+update.Collection+"/"+update.ID, nil)
	}

	created[create.ID] = s.resolveLocked(nil, create.Data)
	updated[update.ID] = s.resolveLocked(existing, update.Data)
	s.notifyLocked(create.Collection)
	if update.Collection != create.Collection {
		s.notifyLocked(update.Collection)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, l := range s.listeners {
		l.cancel()
	}
	return nil
}

func (s *MemoryStore) begin(ctx context.Context, op string) error {
	s.mu.Lock()
	latency := s.latency
	err, failing := s.failNext[op]
	if failing {
		delete(s.failNext, op)
	}
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return errors.Unavailable("store is closed", nil)
	}
	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failing {
		return err
	}
	return nil
}

func (s *MemoryStore) collectionLocked(name string) map[string]map[string]interface{} {
	docs, ok := s.collections[name]
	if !ok {
		docs = make(map[string]map[string]interface{})
		s.collections[name] = docs
	}
	return docs
}

// resolveLocked merges fields over base, translating sentinels.
func (s *MemoryStore) resolveLocked(base, fields map[string]interface{}) map[string]interface{} {
	out := copyMap(base)
	if out == nil {
		out = make(map[string]interface{}, len(fields))
	}
	for k, v := range fields {
		switch val := v.(type) {
		case repository.IncrementValue:
			current, _ := toInt64(out[k])
			out[k] = current + val.By
		default:
			if repository.IsServerTimestamp(v) {
				out[k] = s.clock()
				continue
			}
			out[k] = copyValue(v)
		}
	}
	return out
}

func (s *MemoryStore) snapshotLocked(q repository.Query) repository.Snapshot {
	docs := s.collections[q.Collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snap := repository.Snapshot{ReadTime: s.clock(), Documents: []repository.Document{}}
	for _, id := range ids {
		doc := repository.Document{ID: id, Data: docs[id]}
		if repository.Matches(doc, q.Filters) {
			snap.Documents = append(snap.Documents, repository.Document{ID: id, Data: copyMap(docs[id])})
		}
	}
	return snap
}

func (s *MemoryStore) notifyLocked(collection string) {
	for _, l := range s.listeners {
		if l.query.Collection == collection {
			l.enqueue(repository.SnapshotEvent{Snapshot: s.snapshotLocked(l.query)}, false)
		}
	}
}

type memoryListener struct {
	query  repository.Query
	out    chan repository.SnapshotEvent
	wake   chan struct{}
	cancel context.CancelFunc

	mu       sync.Mutex
	queue    []repository.SnapshotEvent
	terminal bool
}

func (l *memoryListener) enqueue(ev repository.SnapshotEvent, terminal bool) {
	l.mu.Lock()
	if l.terminal {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, ev)
	l.terminal = terminal
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// pump delivers queued events in order without holding the store lock.
func (l *memoryListener) pump(ctx context.Context) {
	defer close(l.out)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			done := l.terminal
			l.mu.Unlock()
			if done {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-l.wake:
			}
			continue
		}
		ev := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case l.out <- ev:
		}
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	}
	return 0, false
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = copyValue(val[i])
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = val[i]
		}
		return out
	}
	return v
}
