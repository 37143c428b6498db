package billing

import (
	"math"
	"time"
)

// BillingCycle labels the rent-tier phase of a storage record.
type BillingCycle string

const (
	// CycleInitial marks an open record still inside its first rent phase.
	CycleInitial BillingCycle = "6-Month Initial"
	// CycleCompleted marks a fully withdrawn record.
	CycleCompleted BillingCycle = "Completed"
)

// StorageRecord is a snapshot of one inbound storage transaction. All five
// calculators read it and never mutate it; changes come back as RecordUpdate
// values the caller applies.
type StorageRecord struct {
	ID           int64
	RecordNumber string
	CustomerID   int64
	CropID       int64
	LotID        int64

	BagsIn     int
	BagsStored int
	BagsOut    int

	StorageStartDate time.Time
	StorageEndDate   *time.Time

	HamaliPayable   float64
	TotalRentBilled float64
	BillingCycle    BillingCycle
}

// IsClosed reports whether the record has been fully withdrawn.
func (r StorageRecord) IsClosed() bool {
	return r.BagsStored == 0
}

// BalanceDue returns the outstanding amount given the sum of payments
// received. The value may be negative (customer credit); display layers
// floor it at zero.
func (r StorageRecord) BalanceDue(paid float64) float64 {
	return round2(r.TotalRentBilled + r.HamaliPayable - paid)
}

// CropPricing holds the per-bag rent for the two duration tiers.
type CropPricing struct {
	Price6M float64
	Price1Y float64
}

// WithdrawalTxn is the slice of an outflow relevant to impact computation.
type WithdrawalTxn struct {
	Bags int
	Rent float64
	Date time.Time
}

// PendingRecord is the allocation-input projection of a StorageRecord.
// StorageStartDate is the FIFO ordering key (oldest first).
type PendingRecord struct {
	ID               int64
	RecordNumber     string
	TotalDue         float64
	StorageStartDate time.Time
}

// RecordUpdate carries the replacement field values an impact computation
// produced. The persistence layer applies it atomically together with the
// corresponding withdrawal/payment row.
type RecordUpdate struct {
	BagsStored      int
	BagsOut         int
	TotalRentBilled float64
	// StorageEndDate and BillingCycle are only meaningful when SetEndDate
	// or ClearEndDate is set.
	StorageEndDate *time.Time
	BillingCycle   BillingCycle
	SetEndDate     bool
	ClearEndDate   bool
}

// round2 rounds a currency amount to 2 decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
