package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratoserve/catalog-cache/internal/apperrors"
	"github.com/stratoserve/catalog-cache/internal/cache"
	"github.com/stratoserve/catalog-cache/internal/metrics"
	"github.com/stratoserve/catalog-cache/internal/model"
	"github.com/stratoserve/catalog-cache/internal/store"
	"github.com/stratoserve/catalog-cache/internal/validation"
)

// InvalidationPublisher publishes "this key changed" events to the other
// replicas.
type InvalidationPublisher interface {
	Publish(ctx context.Context, cacheKey string) (int64, error)
}

// RecordService orchestrates the record read and write paths. Reads go
// through the local single-flight cache to the store; writes go to the
// store first, then clear the shared cache, the local cache, and finally
// announce the change on the invalidation bus. Cache and bus failures are
// logged and swallowed — the store is the source of truth and a stale
// remote cache entry only survives until its TTL.
type RecordService struct {
	records   store.RecordStore
	local     *cache.LocalCache
	shared    store.DistributedCache
	publisher InvalidationPublisher
	validator *validation.Validator
	cacheTTL  time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewRecordService creates a new record service
func NewRecordService(
	records store.RecordStore,
	local *cache.LocalCache,
	shared store.DistributedCache,
	publisher InvalidationPublisher,
	cacheTTL time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RecordService {
	return &RecordService{
		records:   records,
		local:     local,
		shared:    shared,
		publisher: publisher,
		validator: validation.NewValidator(),
		cacheTTL:  cacheTTL,
		metrics:   m,
		logger:    logger,
	}
}

// GetOne returns the record for (tenantID, recordNumber), serving from the
// local cache when possible.
func (s *RecordService) GetOne(ctx context.Context, tenantID, recordNumber int64) (*model.Record, error) {
	key := model.RecordKey(tenantID, recordNumber)

	if v, ok := s.local.Get(key); ok {
		s.metrics.CacheHits.WithLabelValues("record").Inc()
		return v.(*model.Record), nil
	}
	s.metrics.CacheMisses.WithLabelValues("record").Inc()

	v, err := s.local.GetOrFetch(ctx, key, s.cacheTTL, func(ctx context.Context) (interface{}, error) {
		return s.records.GetOne(ctx, tenantID, recordNumber)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("record not found")
		}
		return nil, err
	}

	return v.(*model.Record), nil
}

// GetAll returns every record for the tenant ordered by record number,
// serving the listing from the local cache when possible. An empty listing
// is a valid cacheable result, not an error.
func (s *RecordService) GetAll(ctx context.Context, tenantID int64) ([]*model.Record, error) {
	key := model.TenantListKey(tenantID)

	if v, ok := s.local.Get(key); ok {
		s.metrics.CacheHits.WithLabelValues("listing").Inc()
		return v.([]*model.Record), nil
	}
	s.metrics.CacheMisses.WithLabelValues("listing").Inc()

	v, err := s.local.GetOrFetch(ctx, key, s.cacheTTL, func(ctx context.Context) (interface{}, error) {
		return s.records.GetAll(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}

	return v.([]*model.Record), nil
}

// Upsert creates or partially updates the record for the given business
// key and propagates invalidation before returning. A nil price means the
// caller did not supply one: an existing record keeps its stored price and
// a new record starts at zero.
func (s *RecordService) Upsert(ctx context.Context, tenantID, recordNumber int64, name string, price *decimal.Decimal) (*model.Record, error) {
	if err := s.validator.ValidateUpsert(recordNumber, name, price); err != nil {
		return nil, err
	}

	// The store's merge layer treats a negative price as not supplied.
	// Validation already rejected negative caller-supplied prices, so the
	// sentinel is unambiguous past this point.
	storePrice := decimal.NewFromInt(-1)
	if price != nil {
		storePrice = *price
	}

	stored, err := s.records.Upsert(ctx, &model.Record{
		TenantID:     tenantID,
		RecordNumber: recordNumber,
		Name:         name,
		Price:        storePrice,
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenantID, recordNumber)
	return stored, nil
}

// Delete removes the record for the given business key. Returns false when
// no such record exists.
func (s *RecordService) Delete(ctx context.Context, tenantID, recordNumber int64) (bool, error) {
	deleted, err := s.records.Delete(ctx, tenantID, recordNumber)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	// A delete shrinks the set of keys that exist for the tenant, so clear
	// every local entry under the tenant prefix, not just the two keys the
	// fan-out announces.
	s.local.RemoveByPrefix(model.TenantPrefix(tenantID))
	s.invalidate(ctx, tenantID, recordNumber)
	return true, nil
}

// HandleInvalidation is the bus subscriber handler: evict the key another
// replica reported as changed. Eviction is idempotent, which makes the
// at-least-once bus delivery safe.
func (s *RecordService) HandleInvalidation(event model.InvalidationEvent) {
	s.local.Remove(event.CacheKey)
	s.metrics.InvalidationsReceived.Inc()
	s.logger.Debug("Evicted cache key from remote invalidation",
		zap.String("cache_key", event.CacheKey),
		zap.String("origin", event.InstanceID))
}

// invalidate runs after a committed write. The item key and the tenant
// listing key are cleared together since the listing is derived from the
// same rows. Failures here never fail the write: the transaction already
// committed, and staleness is bounded by the cache TTL.
func (s *RecordService) invalidate(ctx context.Context, tenantID, recordNumber int64) {
	keys := []string{
		model.RecordKey(tenantID, recordNumber),
		model.TenantListKey(tenantID),
	}

	if err := s.shared.Invalidate(ctx, keys...); err != nil {
		s.metrics.BusErrors.Inc()
		s.logger.Warn("Failed to invalidate shared cache, staleness bounded by TTL",
			zap.Strings("keys", keys),
			zap.Error(err))
	}

	for _, key := range keys {
		s.local.Remove(key)
	}

	for _, key := range keys {
		receivers, err := s.publisher.Publish(ctx, key)
		if err != nil {
			s.metrics.BusErrors.Inc()
			s.logger.Warn("Failed to publish invalidation event, other replicas stay stale until TTL",
				zap.String("cache_key", key),
				zap.Error(err))
			continue
		}
		s.metrics.InvalidationsPublished.Inc()
		s.logger.Debug("Published invalidation event",
			zap.String("cache_key", key),
			zap.Int64("receivers", receivers))
	}
}
