package store

import (
	"context"
	"errors"
	"time"

	"github.com/stratoserve/catalog-cache/internal/model"
)

// ErrNotFound is returned when a row or key is not found
var ErrNotFound = errors.New("not found")

// RecordStore interface for transactional record access. The store is the
// single source of truth; caches layered above it are advisory.
type RecordStore interface {
	// Read path. Reads never retry; transient failures propagate.
	GetOne(ctx context.Context, tenantID, recordNumber int64) (*model.Record, error)
	GetAll(ctx context.Context, tenantID int64) ([]*model.Record, error)

	// Write path. Both operations retry serialization conflicts internally.
	Upsert(ctx context.Context, rec *model.Record) (*model.Record, error)
	Delete(ctx context.Context, tenantID, recordNumber int64) (bool, error)

	// Health check
	Ping(ctx context.Context) error
	Close()
}

// DistributedCache interface for the shared key/value substrate. Only
// Invalidate sits on the write path; Get and Set exist as a general
// capability and are not consulted by reads.
type DistributedCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}
