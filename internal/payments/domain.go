// Package payments records rent collections and allocates bulk payments
// across a customer's outstanding storage records.
package payments

import (
	"errors"
	"time"
)

// Payment is a collection against a single storage record.
type Payment struct {
	ID            int64
	ReceiptNumber string
	CustomerID    int64
	RecordID      int64
	Amount        float64
	Method        string
	Notes         string
	PaymentDate   time.Time
	CreatedAt     time.Time
}

// RecordPaymentInput collects a payment against one record.
type RecordPaymentInput struct {
	CustomerID     int64
	RecordID       int64
	Amount         float64
	Method         string
	Notes          string
	PaymentDate    time.Time
	IdempotencyKey string
}

// BulkPaymentInput spreads one amount across a customer's dues, oldest
// record first. AcceptCredit allows the surplus beyond total dues to be
// kept as customer credit instead of rejecting the payment.
type BulkPaymentInput struct {
	CustomerID     int64
	Amount         float64
	Method         string
	Notes          string
	PaymentDate    time.Time
	AcceptCredit   bool
	IdempotencyKey string
}

var (
	// ErrPaymentNotFound indicates the payment does not exist.
	ErrPaymentNotFound = errors.New("payments: payment not found")
	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = errors.New("payments: amount must be positive")
	// ErrUnallocatedSurplus indicates the bulk payment exceeds total dues
	// and the caller did not opt into keeping the surplus as credit.
	ErrUnallocatedSurplus = errors.New("payments: amount exceeds outstanding dues")
)
