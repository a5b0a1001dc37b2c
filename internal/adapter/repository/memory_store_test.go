package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zarigaas/internal/domain/repository"
	"zarigaas/pkg/errors"
)

func nextEvent(t *testing.T, ch <-chan repository.SnapshotEvent) repository.SnapshotEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return repository.SnapshotEvent{}
}

func TestMemoryStoreSubscribeDeliversFullResultSets(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.Put(repository.CollectionProducts, "s1", map[string]interface{}{"name": "Kanjivaram"})

	ch, err := store.Subscribe(ctx, repository.NewQuery(repository.CollectionProducts))
	require.NoError(t, err)

	first := nextEvent(t, ch)
	require.NoError(t, first.Err)
	assert.Len(t, first.Snapshot.Documents, 1)

	require.NoError(t, store.Create(ctx, repository.CollectionProducts, "s2", map[string]interface{}{"name": "Banarasi"}))
	second := nextEvent(t, ch)
	assert.Len(t, second.Snapshot.Documents, 2)

	require.NoError(t, store.Delete(ctx, repository.CollectionProducts, "s1"))
	third := nextEvent(t, ch)
	require.Len(t, third.Snapshot.Documents, 1)
	assert.Equal(t, "s2", third.Snapshot.Documents[0].ID)
}

func TestMemoryStoreFiltersSubscriptions(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.Put(repository.CollectionMessages, "m1", map[string]interface{}{"participants": []string{"a", "b"}})
	store.Put(repository.CollectionMessages, "m2", map[string]interface{}{"participants": []string{"a", "c"}})

	q := repository.NewQuery(repository.CollectionMessages).Where("participants", repository.OpArrayContains, "b")
	ch, err := store.Subscribe(ctx, q)
	require.NoError(t, err)

	ev := nextEvent(t, ch)
	require.Len(t, ev.Snapshot.Documents, 1)
	assert.Equal(t, "m1", ev.Snapshot.Documents[0].ID)
}

func TestMemoryStoreSentinels(t *testing.T) {
	store := NewMemoryStore()
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return fixed })
	ctx := context.Background()

	store.Put(repository.CollectionProducts, "s1", map[string]interface{}{"pitch_count": int64(2)})
	require.NoError(t, store.Update(ctx, repository.CollectionProducts, "s1", map[string]interface{}{
		"pitch_count": repository.Increment(1),
		"updatedAt":   repository.ServerTimestamp,
	}))

	raw := store.Raw(repository.CollectionProducts, "s1")
	assert.Equal(t, int64(3), raw["pitch_count"])
	assert.Equal(t, fixed, raw["updatedAt"])
}

func TestMemoryStoreCreateAndUpdateIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(repository.CollectionProducts, "s1", map[string]interface{}{"pitchCount": int64(0)})

	create := repository.Write{Collection: repository.CollectionPitches, ID: "p1", Data: map[string]interface{}{"sareeId": "s1"}}
	update := repository.Write{Collection: repository.CollectionProducts, ID: "s1", Data: map[string]interface{}{"pitchCount": repository.Increment(1)}}
	require.NoError(t, store.CreateAndUpdate(ctx, create, update))

	err := store.CreateAndUpdate(ctx, create, update)
	assert.True(t, errors.Is(err, errors.CodeAlreadyExists))
	assert.Equal(t, int64(1), store.Raw(repository.CollectionProducts, "s1")["pitchCount"])

	missing := repository.Write{Collection: repository.CollectionProducts, ID: "nope", Data: map[string]interface{}{"pitchCount": repository.Increment(1)}}
	other := repository.Write{Collection: repository.CollectionPitches, ID: "p2", Data: map[string]interface{}{}}
	err = store.CreateAndUpdate(ctx, other, missing)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	assert.Nil(t, store.Raw(repository.CollectionPitches, "p2"))
}

func TestMemoryStoreTerminalErrorClosesStream(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := store.Subscribe(ctx, repository.NewQuery(repository.CollectionPitches))
	require.NoError(t, err)
	nextEvent(t, ch)

	store.EmitError(repository.CollectionPitches, errors.Unavailable("flaky", nil))
	ev := nextEvent(t, ch)
	assert.True(t, errors.Is(ev.Err, errors.CodeUnavailable))

	store.EmitError(repository.CollectionPitches, errors.PermissionDenied("denied", nil))
	ev = nextEvent(t, ch)
	assert.True(t, errors.Is(ev.Err, errors.CodePermissionDenied))

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not closed")
	}
}

func TestMemoryStoreLatencyHonorsDeadline(t *testing.T) {
	store := NewMemoryStore()
	store.SetLatency(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := store.Get(ctx, repository.CollectionProducts, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryStoreFailNext(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.FailNext("add", errors.Unavailable("offline", nil))

	_, err := store.Add(ctx, repository.CollectionMessages, map[string]interface{}{"text": "hi"})
	assert.True(t, errors.Is(err, errors.CodeUnavailable))

	id, err := store.Add(ctx, repository.CollectionMessages, map[string]interface{}{"text": "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestMemoryStoreUpdateIf(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(repository.CollectionPitches, "x", map[string]interface{}{"status": "pending"})
	store.Put(repository.CollectionPitches, "legacy", map[string]interface{}{"message": "no status"})

	err := store.UpdateIf(ctx, repository.CollectionPitches, "x", "status", "pending", map[string]interface{}{"status": "approved"})
	require.NoError(t, err)

	err = store.UpdateIf(ctx, repository.CollectionPitches, "x", "status", "pending", map[string]interface{}{"status": "rejected"})
	assert.True(t, errors.Is(err, errors.CodeConflict))
	assert.Equal(t, "approved", store.Raw(repository.CollectionPitches, "x")["status"])

	err = store.UpdateIf(ctx, repository.CollectionPitches, "legacy", "status", nil, map[string]interface{}{"status": "approved"})
	require.NoError(t, err)

	err = store.UpdateIf(ctx, repository.CollectionPitches, "gone", "status", nil, map[string]interface{}{"status": "approved"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}
