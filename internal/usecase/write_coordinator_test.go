package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "zarigaas/internal/adapter/repository"
	"zarigaas/internal/domain/entity"
	"zarigaas/internal/domain/repository"
	"zarigaas/internal/infrastructure/ratelimit"
	"zarigaas/internal/normalize"
	"zarigaas/pkg/errors"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

var (
	admin = entity.Actor{UID: "admin-1", Role: entity.RoleAdmin}
	owner = entity.Actor{UID: "owner-1", Role: entity.RoleOwner}
	buyer = entity.Actor{UID: "buyer-1", Role: entity.RoleUser}
)

// countingStore records every write that reaches the store.
type countingStore struct {
	repository.DocumentStore
	mu     sync.Mutex
	writes int
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *countingStore) inc() {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
}

func (c *countingStore) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	c.inc()
	return c.DocumentStore.Add(ctx, collection, data)
}

func (c *countingStore) Create(ctx context.Context, collection, id string, data map[string]interface{}) error {
	c.inc()
	return c.DocumentStore.Create(ctx, collection, id, data)
}

func (c *countingStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	c.inc()
	return c.DocumentStore.Update(ctx, collection, id, fields)
}

func (c *countingStore) UpdateIf(ctx context.Context, collection, id, field string, expected interface{}, fields map[string]interface{}) error {
	c.inc()
	return c.DocumentStore.UpdateIf(ctx, collection, id, field, expected, fields)
}

func (c *countingStore) Delete(ctx context.Context, collection, id string) error {
	c.inc()
	return c.DocumentStore.Delete(ctx, collection, id)
}

func (c *countingStore) CreateAndUpdate(ctx context.Context, create, update repository.Write) error {
	c.inc()
	return c.DocumentStore.CreateAndUpdate(ctx, create, update)
}

type fixture struct {
	mem   *store.MemoryStore
	store *countingStore
	wc    *WriteCoordinator
	now   time.Time
	ids   int
}

func newFixture(t *testing.T, opts ...CoordinatorOption) *fixture {
	t.Helper()
	f := &fixture{mem: store.NewMemoryStore(), now: t0}
	f.mem.SetClock(func() time.Time { return f.now })
	f.store = &countingStore{DocumentStore: f.mem}
	base := []CoordinatorOption{
		WithCoordinatorClock(func() time.Time { return f.now }),
		WithIDGenerator(func() string { f.ids++; return fmt.Sprintf("id-%d", f.ids) }),
	}
	f.wc = NewWriteCoordinator(f.store, nil, append(base, opts...)...)
	return f
}

func (f *fixture) seedP1() {
	f.mem.Put(repository.CollectionProducts, "P1", map[string]interface{}{
		"name":       "Kanjivaram Silk",
		"priceType":  "fixed",
		"price":      500,
		"stock":      2,
		"pitchCount": 3,
		"createdAt":  t0,
	})
}

func (f *fixture) product(t *testing.T, id string) entity.Product {
	t.Helper()
	doc, err := f.mem.Get(context.Background(), repository.CollectionProducts, id)
	require.NoError(t, err)
	p, _ := normalize.Product(doc, f.now)
	return p
}

func (f *fixture) pitch(t *testing.T, id string) entity.Pitch {
	t.Helper()
	doc, err := f.mem.Get(context.Background(), repository.CollectionPitches, id)
	require.NoError(t, err)
	p, _ := normalize.Pitch(doc, f.now)
	return p
}

func price(v float64) *float64 { return &v }

func TestPitchLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	f.seedP1()
	ctx := context.Background()

	p, err := f.wc.RecordPitch(ctx, buyer.UID, RecordPitchInput{ProductID: "P1", Message: "interested", ProposedPrice: price(450)})
	require.NoError(t, err)
	assert.Equal(t, entity.PitchPending, p.Status)
	assert.Equal(t, "Kanjivaram Silk", p.ProductName)

	stored := f.pitch(t, p.ID)
	assert.Equal(t, entity.PitchPending, stored.Status)
	assert.Equal(t, "P1", stored.ProductID)
	require.NotNil(t, stored.ProposedPrice)
	assert.Equal(t, 450.0, *stored.ProposedPrice)
	assert.Equal(t, 4, f.product(t, "P1").PitchCount)

	approved, err := f.wc.UpdatePitchStatus(ctx, admin, p.ID, entity.PitchApproved)
	require.NoError(t, err)
	assert.Equal(t, entity.PitchApproved, approved.Status)
	assert.Equal(t, entity.PitchApproved, f.pitch(t, p.ID).Status)
	assert.Equal(t, 4, f.product(t, "P1").PitchCount)

	_, err = f.wc.UpdatePitchStatus(ctx, admin, p.ID, entity.PitchPending)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeConflict))
	assert.Equal(t, entity.PitchApproved, f.pitch(t, p.ID).Status)
}

func TestRecordPitchCounterMonotonic(t *testing.T) {
	f := newFixture(t)
	f.seedP1()

	for i := 0; i < 5; i++ {
		_, err := f.wc.RecordPitch(context.Background(), buyer.UID, RecordPitchInput{ProductID: "P1", Message: "hello"})
		require.NoError(t, err)
	}
	assert.Equal(t, 8, f.product(t, "P1").PitchCount)
}

func TestRecordPitchRetryIsVisibleOnce(t *testing.T) {
	f := newFixture(t)
	f.seedP1()
	input := RecordPitchInput{ProductID: "P1", Message: "interested", ClientToken: "tok-1"}

	first, err := f.wc.RecordPitch(context.Background(), buyer.UID, input)
	require.NoError(t, err)
	second, err := f.wc.RecordPitch(context.Background(), buyer.UID, input)
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first.ID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 4, f.product(t, "P1").PitchCount)
	assert.Equal(t, 1, f.store.count())
}

func TestRecordPitchRejectsEmptyEnquiry(t *testing.T) {
	f := newFixture(t)
	f.seedP1()

	_, err := f.wc.RecordPitch(context.Background(), buyer.UID, RecordPitchInput{ProductID: "P1", Message: "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Zero(t, f.store.count())
	assert.Equal(t, 3, f.product(t, "P1").PitchCount)

	_, err = f.wc.RecordPitch(context.Background(), buyer.UID, RecordPitchInput{ProductID: "P1", ProposedPrice: price(400)})
	assert.NoError(t, err)
}

func TestRecordPitchUnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.wc.RecordPitch(context.Background(), buyer.UID, RecordPitchInput{ProductID: "nope", Message: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	assert.Nil(t, f.mem.Raw(repository.CollectionPitches, "id-1"))
}

func TestRecordPitchFailedCommitLeavesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedP1()
	f.mem.FailNext("create_and_update", errors.Unavailable("store unavailable", nil))

	_, err := f.wc.RecordPitch(context.Background(), buyer.UID, RecordPitchInput{ProductID: "P1", Message: "hi", ClientToken: "tok"})
	require.Error(t, err)
	assert.True(t, errors.Retryable(err))
	assert.Nil(t, f.mem.Raw(repository.CollectionPitches, "tok"))
	assert.Equal(t, 3, f.product(t, "P1").PitchCount)

	_, err = f.wc.RecordPitch(context.Background(), buyer.UID, RecordPitchInput{ProductID: "P1", Message: "hi", ClientToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, 4, f.product(t, "P1").PitchCount)
}

func TestRecordPitchIncrementsLegacyCounterField(t *testing.T) {
	f := newFixture(t)
	f.mem.Put(repository.CollectionProducts, "old", map[string]interface{}{"title": "Old Banarasi", "pitch_count": 7})

	_, err := f.wc.RecordPitch(context.Background(), buyer.UID, RecordPitchInput{ProductID: "old", Message: "still available?"})
	require.NoError(t, err)

	raw := f.mem.Raw(repository.CollectionProducts, "old")
	assert.EqualValues(t, 8, raw["pitch_count"])
	assert.NotContains(t, raw, "pitchCount")
}

func TestWriteTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t, WithWriteTimeout(10*time.Millisecond))
	f.seedP1()
	f.mem.SetLatency(200 * time.Millisecond)

	_, err := f.wc.RecordPitch(context.Background(), buyer.UID, RecordPitchInput{ProductID: "P1", Message: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeTimeout))
	assert.True(t, errors.Retryable(err))
}

func TestRecordPitchRateLimited(t *testing.T) {
	f := newFixture(t)
	f.seedP1()
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Policy{ratelimit.ActionRecordPitch: ratelimit.PerHour(1)})
	limiter.SetClock(func() time.Time { return f.now })
	f.wc.limiter = limiter

	_, err := f.wc.RecordPitch(context.Background(), buyer.UID, RecordPitchInput{ProductID: "P1", Message: "one"})
	require.NoError(t, err)
	_, err = f.wc.RecordPitch(context.Background(), buyer.UID, RecordPitchInput{ProductID: "P1", Message: "two"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeTooManyRequests))
	assert.Equal(t, 4, f.product(t, "P1").PitchCount)
}

func TestUpdatePitchStatusRules(t *testing.T) {
	f := newFixture(t)
	f.mem.Put(repository.CollectionPitches, "x", map[string]interface{}{"sareeId": "P1", "message": "hi", "status": "new"})
	ctx := context.Background()

	_, err := f.wc.UpdatePitchStatus(ctx, buyer, "x", entity.PitchApproved)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = f.wc.UpdatePitchStatus(ctx, admin, "x", "archived")
	assert.True(t, errors.Is(err, errors.CodeValidation))

	p, err := f.wc.UpdatePitchStatus(ctx, admin, "x", entity.PitchRejected)
	require.NoError(t, err)
	assert.Equal(t, entity.PitchRejected, p.Status)

	writes := f.store.count()
	_, err = f.wc.UpdatePitchStatus(ctx, admin, "x", entity.PitchRejected)
	require.NoError(t, err)
	assert.Equal(t, writes, f.store.count())

	_, err = f.wc.UpdatePitchStatus(ctx, admin, "x", entity.PitchApproved)
	assert.True(t, errors.Is(err, errors.CodeConflict))
}

// staleReads serves a fixed copy of one document to Get, as a reviewer
// who loaded the pitch before another one decided would see it.
type staleReads struct {
	repository.DocumentStore
	doc repository.Document
}

func (s staleReads) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	if id == s.doc.ID {
		return s.doc, nil
	}
	return s.DocumentStore.Get(ctx, collection, id)
}

func TestConcurrentReviewCannotOverturnDecision(t *testing.T) {
	f := newFixture(t)
	f.mem.Put(repository.CollectionPitches, "x", map[string]interface{}{"sareeId": "P1", "message": "hi", "status": "pending"})
	ctx := context.Background()

	loaded, err := f.mem.Get(ctx, repository.CollectionPitches, "x")
	require.NoError(t, err)

	_, err = f.wc.UpdatePitchStatus(ctx, admin, "x", entity.PitchApproved)
	require.NoError(t, err)

	late := NewWriteCoordinator(staleReads{DocumentStore: f.mem, doc: loaded}, nil,
		WithCoordinatorClock(func() time.Time { return f.now }))
	_, err = late.UpdatePitchStatus(ctx, owner, "x", entity.PitchRejected)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeConflict))
	assert.Equal(t, entity.PitchApproved, f.pitch(t, "x").Status)
}

func TestReconcilePitchCounts(t *testing.T) {
	f := newFixture(t)
	f.mem.Put(repository.CollectionProducts, "behind", map[string]interface{}{"name": "Behind", "pitch_count": 1})
	f.mem.Put(repository.CollectionProducts, "ahead", map[string]interface{}{"name": "Ahead", "pitchCount": 5})
	f.mem.Put(repository.CollectionProducts, "exact", map[string]interface{}{"name": "Exact", "pitchCount": 1})
	for i, product := range []string{"behind", "behind", "behind", "ahead", "exact"} {
		f.mem.Put(repository.CollectionPitches, fmt.Sprintf("p%d", i), map[string]interface{}{"sareeId": product, "message": "hi"})
	}

	_, err := f.wc.ReconcilePitchCounts(context.Background(), buyer)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	res, err := f.wc.ReconcilePitchCounts(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, res.Drift, 2)
	assert.Equal(t, 1, res.Corrected)
	assert.Equal(t, 3, f.product(t, "behind").PitchCount)
	assert.Equal(t, 5, f.product(t, "ahead").PitchCount)
}
