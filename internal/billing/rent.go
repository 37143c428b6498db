package billing

import (
	"time"
)

// RentQuote is the outcome of a rent computation for a bag quantity.
type RentQuote struct {
	Rent         float64
	MonthsStored int
	RentPerBag   float64
}

// tierBoundaryMonths is the cutoff between the 6-month and 1-year rates.
const tierBoundaryMonths = 6

// CalculateFinalRent computes rent owed for withdrawing bags from a record
// as of the given date.
//
// Duration policy: whole elapsed calendar months between the storage start
// and asOf, with any partial month counted as a full month, minimum 1. A
// same-day withdrawal therefore bills one month.
//
// Tier policy: up to 6 months the 6-month per-bag rate applies; beyond 6
// months the 1-year rate applies flat to the whole stay (it is not layered
// on top of the 6-month charge). Stays beyond 12 months continue at the
// 1-year rate.
func CalculateFinalRent(record StorageRecord, asOf time.Time, bags int, pricing CropPricing) (RentQuote, error) {
	if asOf.Before(record.StorageStartDate) {
		return RentQuote{}, ErrValuationBeforeStart
	}
	if bags < 0 || bags > record.BagsStored {
		return RentQuote{}, &QuantityError{
			RecordID:  record.ID,
			Requested: bags,
			Available: record.BagsStored,
			Op:        "rent valuation",
		}
	}

	months := MonthsStored(record.StorageStartDate, asOf)
	perBag := pricing.Price6M
	if months > tierBoundaryMonths {
		perBag = pricing.Price1Y
	}

	return RentQuote{
		Rent:         round2(perBag * float64(bags)),
		MonthsStored: months,
		RentPerBag:   perBag,
	}, nil
}

// MonthsStored measures the billing duration between start and asOf in
// whole months, rounding any partial month up, minimum 1. asOf must not
// precede start; callers validate first.
func MonthsStored(start, asOf time.Time) int {
	if !asOf.After(start) {
		return 1
	}
	years := asOf.Year() - start.Year()
	months := int(asOf.Month()) - int(start.Month())
	elapsed := years*12 + months
	if asOf.Day() > start.Day() {
		// Past the monthly anniversary: the started month bills in full.
		elapsed++
	}
	if elapsed < 1 {
		elapsed = 1
	}
	return elapsed
}
