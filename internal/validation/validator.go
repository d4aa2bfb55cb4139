package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stratoserve/catalog-cache/internal/apperrors"
)

const (
	// MaxNameLength matches the varchar(255) column.
	MaxNameLength = 255
)

// Validator validates record operations before they reach the store.
type Validator struct {
	maxNameLength int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{maxNameLength: MaxNameLength}
}

// ValidateUpsert validates an upsert request. A nil price means the caller
// did not supply one, which is allowed; a supplied price must be
// non-negative. Validation failures are never retried.
func (v *Validator) ValidateUpsert(recordNumber int64, name string, price *decimal.Decimal) error {
	if err := v.ValidateRecordNumber(recordNumber); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return apperrors.Validation("name cannot be empty")
	}
	if len(name) > v.maxNameLength {
		return apperrors.Validation(fmt.Sprintf("name exceeds %d characters", v.maxNameLength))
	}
	if price != nil && price.IsNegative() {
		return apperrors.Validation("price cannot be negative")
	}
	return nil
}

// ValidateRecordNumber validates a record number
func (v *Validator) ValidateRecordNumber(recordNumber int64) error {
	if recordNumber <= 0 {
		return apperrors.Validation(fmt.Sprintf("record number must be positive, got %d", recordNumber))
	}
	return nil
}
