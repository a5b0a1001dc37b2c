package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "zarigaas/internal/adapter/repository"
	"zarigaas/internal/domain/entity"
	"zarigaas/internal/domain/repository"
	"zarigaas/pkg/errors"
)

func startService(t *testing.T, seed func(*store.MemoryStore)) (*store.MemoryStore, *Service) {
	t.Helper()
	mem := store.NewMemoryStore()
	mem.SetClock(func() time.Time { return t0 })
	if seed != nil {
		seed(mem)
	}
	svc := NewService(NewManager(mem, NewTracker()), WithClock(func() time.Time { return t0 }))
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Close)

	require.Eventually(t, func() bool {
		return svc.Products.Loaded() && svc.Pitches.Loaded() && svc.Messages.Loaded() && svc.Users.Loaded()
	}, wait, tick)
	return mem, svc
}

func handleFor(s *Service, q repository.Query) *Handle {
	s.scope.mu.Lock()
	defer s.scope.mu.Unlock()
	return s.scope.handles[q.Key()]
}

func seedMarketplace(mem *store.MemoryStore) {
	mem.Put(repository.CollectionProducts, "P1", map[string]interface{}{
		"name": "Kanjivaram", "price": 500, "stock": 2, "pitchCount": 3, "createdAt": t0,
	})
	mem.Put(repository.CollectionPitches, "x1", map[string]interface{}{
		"sareeId": "P1", "message": "interested", "status": "pending", "createdAt": t0,
	})
	mem.Put(repository.CollectionMessages, "m1", map[string]interface{}{
		"senderId": "u1", "receiverId": "admin", "text": "hello", "timestamp": t0,
	})
}

func TestServiceRecomputesOncePerChange(t *testing.T) {
	mem, svc := startService(t, seedMarketplace)

	// One recompute per stats-relevant collection's first snapshot.
	require.Eventually(t, func() bool { return svc.Recomputes() == 3 }, wait, tick)
	stats := svc.Stats()
	assert.Equal(t, 1, stats.TotalProducts)
	assert.Equal(t, 1, stats.PendingEnquiries)
	assert.Equal(t, 1, stats.UnreadMessages)

	products := handleFor(svc, ProductsQuery)
	require.NotNil(t, products)
	before, _ := products.Stats()

	mem.Redeliver(repository.CollectionProducts)
	require.Eventually(t, func() bool { n, _ := products.Stats(); return n == before+1 }, wait, tick)
	assert.Equal(t, 3, svc.Recomputes())

	mem.Put(repository.CollectionProducts, "P2", map[string]interface{}{"name": "Banarasi", "createdAt": t0})
	require.Eventually(t, func() bool { return svc.Stats().TotalProducts == 2 }, wait, tick)
	assert.Equal(t, 4, svc.Recomputes())
}

func TestServiceUsersDoNotTriggerRecompute(t *testing.T) {
	mem, svc := startService(t, nil)
	require.Eventually(t, func() bool { return svc.Recomputes() == 3 }, wait, tick)

	mem.Put(repository.CollectionUsers, "u1", map[string]interface{}{"email": "a@b.c", "role": "admin"})
	require.Eventually(t, func() bool { _, ok := svc.User("u1"); return ok }, wait, tick)
	assert.Equal(t, 3, svc.Recomputes())
}

func TestServiceReadModels(t *testing.T) {
	_, svc := startService(t, seedMarketplace)

	view := svc.ProductsView("kanji", true)
	assert.False(t, view.Loading)
	assert.Empty(t, view.Error)
	require.Len(t, view.Items, 1)
	assert.Equal(t, entity.InStock, view.Items[0].Availability())

	pitches := svc.PitchesView(entity.PitchPending, "P1")
	require.Len(t, pitches.Items, 1)
	assert.Equal(t, "P1", pitches.Items[0].ProductID)

	convs := svc.Conversations("admin")
	require.Len(t, convs.Items, 1)
	assert.Equal(t, "u1", convs.Items[0].PeerID)
	assert.Equal(t, 1, convs.Items[0].UnreadCount)

	thread := svc.Thread("u1", "admin")
	require.Len(t, thread.Items, 1)
	assert.Equal(t, entity.NetworkOnline, thread.NetworkStatus)
}

func TestServiceErrorSurfacesInReadModel(t *testing.T) {
	mem, svc := startService(t, seedMarketplace)

	mem.EmitError(repository.CollectionPitches, errors.PermissionDenied("pitches", nil))
	require.Eventually(t, func() bool { return svc.PitchesView("", "").Error != "" }, wait, tick)

	view := svc.PitchesView("", "")
	assert.False(t, view.Loading)
	assert.Len(t, view.Items, 1)
	assert.Equal(t, entity.NetworkError, view.NetworkStatus)
	assert.Equal(t, entity.NetworkError, svc.NetworkStatus())
}

func TestViewerSessionReportsOnlyRealChanges(t *testing.T) {
	mem, svc := startService(t, seedMarketplace)

	var mu sync.Mutex
	var events []Event
	v := svc.OpenViewer("admin", func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	defer v.Close()
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(events)
	}

	require.Len(t, v.Conversations(), 1)

	// A message between other users leaves the viewer's conversations alone.
	mem.Put(repository.CollectionMessages, "m2", map[string]interface{}{
		"senderId": "u2", "receiverId": "u3", "text": "hi", "timestamp": t0.Add(time.Second),
	})
	require.Eventually(t, func() bool { _, ok := svc.Message("m2"); return ok }, wait, tick)
	assert.Zero(t, count())

	mem.Put(repository.CollectionMessages, "m3", map[string]interface{}{
		"senderId": "u2", "receiverId": "admin", "text": "price?", "timestamp": t0.Add(2 * time.Second),
	})
	require.Eventually(t, func() bool { return count() == 1 }, wait, tick)

	mu.Lock()
	ev := events[0]
	mu.Unlock()
	assert.Equal(t, EventConversationsChanged, ev.Type)
	assert.Equal(t, "admin", ev.ViewerID)
	assert.Equal(t, 2, ev.Unread)
	assert.Len(t, v.Conversations(), 2)
}

func TestServiceSubscribeCancel(t *testing.T) {
	mem, svc := startService(t, nil)

	var mu sync.Mutex
	got := 0
	cancel := svc.Subscribe(func(ev Event) {
		if ev.Type == EventCollectionChanged {
			mu.Lock()
			got++
			mu.Unlock()
		}
	})
	mem.Put(repository.CollectionProducts, "P1", map[string]interface{}{"name": "Kanjivaram"})
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return got == 1 }, wait, tick)

	cancel()
	cancel()
	mem.Put(repository.CollectionProducts, "P2", map[string]interface{}{"name": "Banarasi"})
	require.Eventually(t, func() bool { return svc.Products.Len() == 2 }, wait, tick)
	mu.Lock()
	assert.Equal(t, 1, got)
	mu.Unlock()
}

func TestConcurrentRecomputesKeepNewestStats(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.SetClock(func() time.Time { return t0 })

	var hold atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	clock := func() time.Time {
		if hold.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
		return t0
	}
	svc := NewService(NewManager(mem, NewTracker()), WithClock(clock))
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Close)
	require.Eventually(t, func() bool { return svc.Recomputes() == 3 }, wait, tick)

	// The products recompute stalls after reading the collections.
	hold.Store(true)
	mem.Put(repository.CollectionProducts, "P1", map[string]interface{}{"name": "Kanjivaram", "createdAt": t0})
	<-entered

	mem.Put(repository.CollectionPitches, "x1", map[string]interface{}{
		"sareeId": "P1", "message": "interested", "status": "pending", "createdAt": t0,
	})
	require.Eventually(t, func() bool { return svc.Pitches.Len() == 1 }, wait, tick)
	close(release)

	require.Eventually(t, func() bool { return svc.Recomputes() == 5 }, wait, tick)
	stats := svc.Stats()
	assert.Equal(t, 1, stats.TotalProducts)
	assert.Equal(t, 1, stats.PitchDocuments)
	assert.Equal(t, 1, stats.PendingEnquiries)
}
