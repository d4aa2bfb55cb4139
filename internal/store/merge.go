package store

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stratoserve/catalog-cache/internal/model"
)

// NewRecord builds the row inserted for a first-time upsert. A negative
// incoming price marks the field as not supplied and defaults to zero.
func NewRecord(incoming *model.Record, now time.Time) model.Record {
	price := incoming.Price
	if price.IsNegative() {
		price = decimal.Zero
	}

	return model.Record{
		TenantID:     incoming.TenantID,
		RecordNumber: incoming.RecordNumber,
		Name:         incoming.Name,
		Price:        price,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MergeRecord applies a partial update onto the existing row: only a
// non-empty name and a non-negative price overwrite the stored fields, so
// an omitted field leaves the row as it was. The surrogate ID and createdAt
// always survive; updatedAt advances to now.
func MergeRecord(existing model.Record, incoming *model.Record, now time.Time) model.Record {
	merged := existing
	if strings.TrimSpace(incoming.Name) != "" {
		merged.Name = incoming.Name
	}
	if !incoming.Price.IsNegative() {
		merged.Price = incoming.Price
	}
	merged.UpdatedAt = now
	return merged
}
