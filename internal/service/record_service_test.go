package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stratoserve/catalog-cache/internal/apperrors"
	"github.com/stratoserve/catalog-cache/internal/cache"
	"github.com/stratoserve/catalog-cache/internal/metrics"
	"github.com/stratoserve/catalog-cache/internal/model"
	"github.com/stratoserve/catalog-cache/internal/store"
)

// Registered once; promauto uses the default registry.
var testMetrics = metrics.NewMetrics()

// MockRecordStore is a mock implementation of RecordStore
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) GetOne(ctx context.Context, tenantID, recordNumber int64) (*model.Record, error) {
	args := m.Called(ctx, tenantID, recordNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Record), args.Error(1)
}

func (m *MockRecordStore) GetAll(ctx context.Context, tenantID int64) ([]*model.Record, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Record), args.Error(1)
}

func (m *MockRecordStore) Upsert(ctx context.Context, rec *model.Record) (*model.Record, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Record), args.Error(1)
}

func (m *MockRecordStore) Delete(ctx context.Context, tenantID, recordNumber int64) (bool, error) {
	args := m.Called(ctx, tenantID, recordNumber)
	return args.Bool(0), args.Error(1)
}

func (m *MockRecordStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRecordStore) Close() {
	m.Called()
}

// MockDistributedCache is a mock implementation of DistributedCache
type MockDistributedCache struct {
	mock.Mock
}

func (m *MockDistributedCache) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDistributedCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockDistributedCache) Invalidate(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *MockDistributedCache) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDistributedCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockPublisher is a mock implementation of InvalidationPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, cacheKey string) (int64, error) {
	args := m.Called(ctx, cacheKey)
	return args.Get(0).(int64), args.Error(1)
}

func newTestService(records *MockRecordStore, shared *MockDistributedCache, pub *MockPublisher) *RecordService {
	return NewRecordService(records, cache.New(), shared, pub, time.Minute, testMetrics, zap.NewNop())
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func sampleRecord() *model.Record {
	now := time.Now().UTC()
	return &model.Record{
		ID:           1,
		TenantID:     5,
		RecordNumber: 100,
		Name:         "Widget",
		Price:        decimal.RequireFromString("29.99"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestGetOneFetchesOnceThenServesFromCache(t *testing.T) {
	records := new(MockRecordStore)
	svc := newTestService(records, new(MockDistributedCache), new(MockPublisher))

	rec := sampleRecord()
	records.On("GetOne", mock.Anything, int64(5), int64(100)).Return(rec, nil).Once()

	got, err := svc.GetOne(context.Background(), 5, 100)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// Second read is a cache hit; the store is not consulted again.
	got, err = svc.GetOne(context.Background(), 5, 100)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	records.AssertExpectations(t)
}

func TestGetOneNotFound(t *testing.T) {
	records := new(MockRecordStore)
	svc := newTestService(records, new(MockDistributedCache), new(MockPublisher))

	records.On("GetOne", mock.Anything, int64(5), int64(999)).Return(nil, store.ErrNotFound)

	_, err := svc.GetOne(context.Background(), 5, 999)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetOneNotFoundIsNotCached(t *testing.T) {
	records := new(MockRecordStore)
	svc := newTestService(records, new(MockDistributedCache), new(MockPublisher))

	records.On("GetOne", mock.Anything, int64(5), int64(100)).Return(nil, store.ErrNotFound).Once()
	records.On("GetOne", mock.Anything, int64(5), int64(100)).Return(sampleRecord(), nil).Once()

	_, err := svc.GetOne(context.Background(), 5, 100)
	assert.True(t, apperrors.IsNotFound(err))

	// The miss was not cached; the row inserted in between is now visible.
	got, err := svc.GetOne(context.Background(), 5, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.RecordNumber)

	records.AssertExpectations(t)
}

func TestGetAllCachesListing(t *testing.T) {
	records := new(MockRecordStore)
	svc := newTestService(records, new(MockDistributedCache), new(MockPublisher))

	listing := []*model.Record{sampleRecord()}
	records.On("GetAll", mock.Anything, int64(5)).Return(listing, nil).Once()

	got, err := svc.GetAll(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, listing, got)

	got, err = svc.GetAll(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, listing, got)

	records.AssertExpectations(t)
}

func TestGetAllEmptyListingIsValid(t *testing.T) {
	records := new(MockRecordStore)
	svc := newTestService(records, new(MockDistributedCache), new(MockPublisher))

	records.On("GetAll", mock.Anything, int64(7)).Return([]*model.Record{}, nil).Once()

	got, err := svc.GetAll(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpsertValidation(t *testing.T) {
	tests := []struct {
		name         string
		recordNumber int64
		recName      string
		price        string
	}{
		{"zero record number", 0, "Widget", "29.99"},
		{"negative record number", -1, "Widget", "29.99"},
		{"empty name", 100, "", "29.99"},
		{"whitespace name", 100, "   ", "29.99"},
		{"negative price", 100, "Widget", "-0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := new(MockRecordStore)
			svc := newTestService(records, new(MockDistributedCache), new(MockPublisher))

			_, err := svc.Upsert(context.Background(), 5, tt.recordNumber, tt.recName, decPtr(tt.price))
			assert.True(t, apperrors.IsValidation(err))
			records.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
		})
	}
}

func TestUpsertInvalidatesBothKeys(t *testing.T) {
	records := new(MockRecordStore)
	shared := new(MockDistributedCache)
	pub := new(MockPublisher)
	svc := newTestService(records, shared, pub)

	rec := sampleRecord()
	keys := []string{model.RecordKey(5, 100), model.TenantListKey(5)}

	records.On("Upsert", mock.Anything, mock.Anything).Return(rec, nil)
	shared.On("Invalidate", mock.Anything, keys).Return(nil)
	pub.On("Publish", mock.Anything, model.RecordKey(5, 100)).Return(int64(2), nil)
	pub.On("Publish", mock.Anything, model.TenantListKey(5)).Return(int64(2), nil)

	got, err := svc.Upsert(context.Background(), 5, 100, "Widget", decPtr("29.99"))
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	shared.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestUpsertOmittedPriceTravelsAsUnsupplied(t *testing.T) {
	records := new(MockRecordStore)
	shared := new(MockDistributedCache)
	pub := new(MockPublisher)
	svc := newTestService(records, shared, pub)

	// A nil price reaches the store as the negative not-supplied marker,
	// which the merge layer never writes over an existing price.
	records.On("Upsert", mock.Anything, mock.MatchedBy(func(rec *model.Record) bool {
		return rec.Price.IsNegative()
	})).Return(sampleRecord(), nil)
	shared.On("Invalidate", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(int64(0), nil)

	_, err := svc.Upsert(context.Background(), 5, 100, "Widget", nil)
	require.NoError(t, err)

	records.AssertExpectations(t)
}

func TestUpsertEvictsLocalCacheBeforeReturning(t *testing.T) {
	records := new(MockRecordStore)
	shared := new(MockDistributedCache)
	pub := new(MockPublisher)
	svc := newTestService(records, shared, pub)

	stale := sampleRecord()
	fresh := sampleRecord()
	fresh.Price = decimal.RequireFromString("39.99")

	records.On("GetOne", mock.Anything, int64(5), int64(100)).Return(stale, nil).Once()
	records.On("Upsert", mock.Anything, mock.Anything).Return(fresh, nil)
	records.On("GetOne", mock.Anything, int64(5), int64(100)).Return(fresh, nil).Once()
	shared.On("Invalidate", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(int64(0), nil)

	// Prime the cache with the pre-mutation value.
	got, err := svc.GetOne(context.Background(), 5, 100)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(stale.Price))

	_, err = svc.Upsert(context.Background(), 5, 100, "Widget", decPtr("39.99"))
	require.NoError(t, err)

	// The next read on this replica never sees the pre-mutation value.
	got, err = svc.GetOne(context.Background(), 5, 100)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(fresh.Price))

	records.AssertExpectations(t)
}

func TestUpsertSucceedsWhenInvalidationInfraIsDown(t *testing.T) {
	records := new(MockRecordStore)
	shared := new(MockDistributedCache)
	pub := new(MockPublisher)
	svc := newTestService(records, shared, pub)

	rec := sampleRecord()
	records.On("Upsert", mock.Anything, mock.Anything).Return(rec, nil)
	shared.On("Invalidate", mock.Anything, mock.Anything).Return(errors.New("redis unreachable"))
	pub.On("Publish", mock.Anything, mock.Anything).Return(int64(0), errors.New("redis unreachable"))

	// The transaction committed; infra failures degrade to bounded
	// staleness, they never fail the write.
	got, err := svc.Upsert(context.Background(), 5, 100, "Widget", decPtr("29.99"))
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestUpsertStoreFailurePropagatesWithoutInvalidation(t *testing.T) {
	records := new(MockRecordStore)
	shared := new(MockDistributedCache)
	pub := new(MockPublisher)
	svc := newTestService(records, shared, pub)

	fatal := apperrors.Fatal("write conflict retry budget exhausted", errors.New("deadlock"))
	records.On("Upsert", mock.Anything, mock.Anything).Return(nil, fatal)

	_, err := svc.Upsert(context.Background(), 5, 100, "Widget", decPtr("29.99"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeFatal, apperrors.GetCode(err))

	shared.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestDeleteMissingRecordReturnsFalse(t *testing.T) {
	records := new(MockRecordStore)
	shared := new(MockDistributedCache)
	pub := new(MockPublisher)
	svc := newTestService(records, shared, pub)

	records.On("Delete", mock.Anything, int64(5), int64(999)).Return(false, nil)

	deleted, err := svc.Delete(context.Background(), 5, 999)
	require.NoError(t, err)
	assert.False(t, deleted)

	// Nothing changed, so nothing is invalidated.
	shared.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestDeleteEvictsLocalCache(t *testing.T) {
	records := new(MockRecordStore)
	shared := new(MockDistributedCache)
	pub := new(MockPublisher)
	svc := newTestService(records, shared, pub)

	records.On("GetOne", mock.Anything, int64(5), int64(100)).Return(sampleRecord(), nil).Once()
	records.On("Delete", mock.Anything, int64(5), int64(100)).Return(true, nil)
	records.On("GetOne", mock.Anything, int64(5), int64(100)).Return(nil, store.ErrNotFound).Once()
	shared.On("Invalidate", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(int64(1), nil)

	_, err := svc.GetOne(context.Background(), 5, 100)
	require.NoError(t, err)

	deleted, err := svc.Delete(context.Background(), 5, 100)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = svc.GetOne(context.Background(), 5, 100)
	assert.True(t, apperrors.IsNotFound(err))

	records.AssertExpectations(t)
}

func TestDeleteEvictsWholeTenantLocally(t *testing.T) {
	records := new(MockRecordStore)
	shared := new(MockDistributedCache)
	pub := new(MockPublisher)
	svc := newTestService(records, shared, pub)

	other := sampleRecord()
	other.RecordNumber = 200

	records.On("GetOne", mock.Anything, int64(5), int64(200)).Return(other, nil).Twice()
	records.On("Delete", mock.Anything, int64(5), int64(100)).Return(true, nil)
	shared.On("Invalidate", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(int64(1), nil)

	_, err := svc.GetOne(context.Background(), 5, 200)
	require.NoError(t, err)

	// Deleting one record clears every local entry under the tenant
	// prefix, so the sibling is re-fetched on its next read.
	deleted, err := svc.Delete(context.Background(), 5, 100)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = svc.GetOne(context.Background(), 5, 200)
	require.NoError(t, err)

	records.AssertExpectations(t)
}

func TestHandleInvalidationEvictsKey(t *testing.T) {
	records := new(MockRecordStore)
	svc := newTestService(records, new(MockDistributedCache), new(MockPublisher))

	records.On("GetOne", mock.Anything, int64(5), int64(100)).Return(sampleRecord(), nil).Twice()

	_, err := svc.GetOne(context.Background(), 5, 100)
	require.NoError(t, err)

	svc.HandleInvalidation(model.InvalidationEvent{
		CacheKey:   model.RecordKey(5, 100),
		Timestamp:  time.Now().UTC(),
		InstanceID: "catalog-other",
	})

	// The entry was evicted, so the next read goes back to the store.
	_, err = svc.GetOne(context.Background(), 5, 100)
	require.NoError(t, err)

	records.AssertExpectations(t)
}
