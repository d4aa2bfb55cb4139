package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a tenant-scoped catalog entry. The surrogate ID is assigned by
// the database; the business identity is the (TenantID, RecordNumber) pair,
// which is unique per tenant.
type Record struct {
	ID           int64
	TenantID     int64
	RecordNumber int64
	Name         string
	Price        decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecordKey returns the cache key for a single record.
func RecordKey(tenantID, recordNumber int64) string {
	return fmt.Sprintf("%d:%d", tenantID, recordNumber)
}

// TenantListKey returns the cache key for a tenant's full record listing.
// The listing is a derived view of the same rows, so it must be invalidated
// together with the item key on any mutation.
func TenantListKey(tenantID int64) string {
	return fmt.Sprintf("%d:all", tenantID)
}

// TenantPrefix returns the key prefix covering every cache entry that
// belongs to a tenant.
func TenantPrefix(tenantID int64) string {
	return fmt.Sprintf("%d:", tenantID)
}
