package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/godown-erp/godown-erp/internal/billing"
	"github.com/godown-erp/godown-erp/internal/observability"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	ListByRecord(ctx context.Context, recordID int64) ([]Payment, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Payment, error)
	ListPendingByCustomer(ctx context.Context, customerID int64) ([]billing.PendingRecord, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transactional slice of the repository.
type TxRepository interface {
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	LockRecordDues(ctx context.Context, recordID int64) (float64, error)
}

// IdempotencyPort guards against double submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ErrDuesChanged indicates record dues moved between planning and commit,
// typically a concurrent collection or outflow edit.
var ErrDuesChanged = errors.New("payments: record dues changed, retry")

// Service coordinates payment collection and FIFO allocation.
type Service struct {
	repo        RepositoryPort
	idempotency IdempotencyPort
	metrics     *observability.Metrics
}

// NewService builds Service.
func NewService(repo RepositoryPort, idem IdempotencyPort, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, idempotency: idem, metrics: metrics}
}

// RecordPayment collects a payment against a single storage record. The
// amount may exceed the record's dues; the surplus stays as credit.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*Payment, error) {
	if input.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if input.CustomerID == 0 || input.RecordID == 0 {
		return nil, errors.New("payments: customer and record required")
	}
	if input.PaymentDate.IsZero() {
		input.PaymentDate = time.Now()
	}
	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "payments.record"); err != nil {
			return nil, err
		}
		insertedKey = true
	}

	payment := Payment{
		ReceiptNumber: newReceiptNumber(),
		CustomerID:    input.CustomerID,
		RecordID:      input.RecordID,
		Amount:        input.Amount,
		Method:        input.Method,
		Notes:         input.Notes,
		PaymentDate:   input.PaymentDate,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Row lock verifies the record exists and serialises collections.
		if _, err := tx.LockRecordDues(ctx, input.RecordID); err != nil {
			return err
		}
		var err error
		payment.ID, err = tx.InsertPayment(ctx, payment)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PaymentsAllocated.Inc()
	}
	return &payment, nil
}

// ListByRecord returns a record's payment history.
func (s *Service) ListByRecord(ctx context.Context, recordID int64) ([]Payment, error) {
	return s.repo.ListByRecord(ctx, recordID)
}

// ListByCustomer returns a customer's payment history.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64) ([]Payment, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// PendingRecords returns the customer's records carrying dues, oldest first.
func (s *Service) PendingRecords(ctx context.Context, customerID int64) ([]billing.PendingRecord, error) {
	return s.repo.ListPendingByCustomer(ctx, customerID)
}

// PreviewBulkPayment shows how an amount would spread across the
// customer's dues without persisting anything.
func (s *Service) PreviewBulkPayment(ctx context.Context, customerID int64, amount float64) (billing.AllocationPlan, error) {
	pending, err := s.repo.ListPendingByCustomer(ctx, customerID)
	if err != nil {
		return billing.AllocationPlan{}, err
	}
	return billing.AllocatePaymentFIFO(pending, amount)
}

// ApplyBulkPayment allocates one amount across the customer's dues oldest
// record first and persists a payment row per touched record, all under a
// single receipt. A surplus beyond total dues is rejected unless the
// caller opted into keeping it as credit, in which case it lands on the
// newest pending record.
func (s *Service) ApplyBulkPayment(ctx context.Context, input BulkPaymentInput) ([]Payment, error) {
	if input.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if input.CustomerID == 0 {
		return nil, errors.New("payments: customer required")
	}
	if input.PaymentDate.IsZero() {
		input.PaymentDate = time.Now()
	}
	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "payments.bulk"); err != nil {
			return nil, err
		}
		insertedKey = true
	}
	releaseKey := func() {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
	}

	pending, err := s.repo.ListPendingByCustomer(ctx, input.CustomerID)
	if err != nil {
		releaseKey()
		return nil, err
	}
	plan, err := billing.AllocatePaymentFIFO(pending, input.Amount)
	if err != nil {
		releaseKey()
		return nil, err
	}
	creditApplied := false
	if plan.Unallocated > 0 {
		if !input.AcceptCredit || len(plan.Allocations) == 0 {
			releaseKey()
			return nil, ErrUnallocatedSurplus
		}
		last := len(plan.Allocations) - 1
		plan.Allocations[last].Amount += plan.Unallocated
		plan.Unallocated = 0
		creditApplied = true
	}

	receipt := newReceiptNumber()
	var applied []Payment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for i, alloc := range plan.Allocations {
			due, err := tx.LockRecordDues(ctx, alloc.RecordID)
			if err != nil {
				return err
			}
			// The credited surplus sits on the last allocation and is
			// allowed to overshoot; every other slice must still fit.
			overshootOK := creditApplied && i == len(plan.Allocations)-1
			if due < alloc.Amount && !overshootOK {
				return ErrDuesChanged
			}
			p := Payment{
				ReceiptNumber: receipt,
				CustomerID:    input.CustomerID,
				RecordID:      alloc.RecordID,
				Amount:        alloc.Amount,
				Method:        input.Method,
				Notes:         input.Notes,
				PaymentDate:   input.PaymentDate,
			}
			if p.ID, err = tx.InsertPayment(ctx, p); err != nil {
				return err
			}
			applied = append(applied, p)
		}
		return nil
	})
	if err != nil {
		releaseKey()
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PaymentsAllocated.Add(float64(len(applied)))
	}
	return applied, nil
}

func newReceiptNumber() string {
	return "RCP-" + uuid.NewString()[:8]
}
