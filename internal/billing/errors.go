package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrPricingNotConfigured indicates no tariff exists for a crop.
	ErrPricingNotConfigured = errors.New("billing: pricing not configured")
	// ErrValuationBeforeStart indicates the valuation date precedes storage start.
	ErrValuationBeforeStart = errors.New("billing: valuation date before storage start")
	// ErrNegativePayment indicates a zero or negative payment amount.
	ErrNegativePayment = errors.New("billing: payment amount must be positive")
	// ErrNegativeTarget indicates a zero or negative bulk outflow target.
	ErrNegativeTarget = errors.New("billing: target bags must be positive")
	// ErrRentBelowZero indicates a reversal would push billed rent negative.
	ErrRentBelowZero = errors.New("billing: reversal exceeds billed rent")
)

// QuantityError reports a bag quantity that violates a record's bounds.
// It carries enough context for the caller to name the failing record.
type QuantityError struct {
	RecordID  int64
	Requested int
	Available int
	Op        string
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("billing: %s of %d bags invalid for record %d (%d available)",
		e.Op, e.Requested, e.RecordID, e.Available)
}

// PricingError wraps ErrPricingNotConfigured with the crop it concerns.
type PricingError struct {
	CropID int64
}

func (e *PricingError) Error() string {
	return fmt.Sprintf("billing: no pricing configured for crop %d", e.CropID)
}

// Unwrap lets callers match with errors.Is(err, ErrPricingNotConfigured).
func (e *PricingError) Unwrap() error {
	return ErrPricingNotConfigured
}
