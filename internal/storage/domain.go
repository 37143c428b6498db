package storage

import (
	"errors"
	"time"

	"github.com/godown-erp/godown-erp/internal/billing"
)

// Withdrawal models one outflow transaction against a storage record.
type Withdrawal struct {
	ID             int64
	RecordID       int64
	BagsWithdrawn  int
	RentCharged    float64
	WithdrawalDate time.Time
	CreatedAt      time.Time
}

// InflowInput creates a new storage record.
type InflowInput struct {
	CustomerID       int64
	CropID           int64
	LotID            int64
	Bags             int
	StorageStartDate time.Time
	HamaliPayable    float64
	RecordNumber     string
}

// OutflowInput applies a withdrawal to one record.
type OutflowInput struct {
	RecordID       int64
	Bags           int
	WithdrawalDate time.Time
	IdempotencyKey string
}

// EditOutflowInput replaces an existing withdrawal's quantity and date.
type EditOutflowInput struct {
	RecordID       int64
	WithdrawalID   int64
	Bags           int
	WithdrawalDate time.Time
}

// BulkOutflowInput withdraws a target quantity of a crop across records.
type BulkOutflowInput struct {
	CropID            int64
	TargetBags        int
	AsOf              time.Time
	ExcludedRecordIDs []int64
	IdempotencyKey    string
}

// ListFilter narrows record listings.
type ListFilter struct {
	CustomerID int64
	CropID     int64
	OpenOnly   bool
	Page       int
	PerPage    int
}

// RecordDetail pairs a record with its withdrawal history and dues.
type RecordDetail struct {
	Record      billing.StorageRecord
	Withdrawals []Withdrawal
	TotalPaid   float64
	BalanceDue  float64
}

var (
	// ErrRecordNotFound indicates the storage record does not exist.
	ErrRecordNotFound = errors.New("storage: record not found")
	// ErrWithdrawalNotFound indicates the withdrawal transaction does not exist.
	ErrWithdrawalNotFound = errors.New("storage: withdrawal not found")
	// ErrRecordClosed indicates an outflow was attempted on a closed record.
	ErrRecordClosed = errors.New("storage: record is closed")
	// ErrInfeasiblePlan indicates a bulk outflow asked for more bags than available.
	ErrInfeasiblePlan = errors.New("storage: bulk outflow exceeds available bags")
)
