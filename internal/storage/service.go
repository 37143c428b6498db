package storage

import (
	"context"
	"errors"
	"time"

	"github.com/godown-erp/godown-erp/internal/billing"
	"github.com/godown-erp/godown-erp/internal/observability"
	"github.com/godown-erp/godown-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	CreateRecord(ctx context.Context, input InflowInput) (*billing.StorageRecord, error)
	GetRecord(ctx context.Context, id int64) (*billing.StorageRecord, error)
	ListRecords(ctx context.Context, filter ListFilter) ([]billing.StorageRecord, int, error)
	ListOpenByCrop(ctx context.Context, cropID int64) ([]billing.StorageRecord, error)
	ListWithdrawals(ctx context.Context, recordID int64) ([]Withdrawal, error)
	SumPayments(ctx context.Context, recordID int64) (float64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// PricingPort resolves billing tariffs for crops.
type PricingPort interface {
	TariffForCrop(ctx context.Context, cropID int64) (billing.CropPricing, error)
	ResolverForCrop(ctx context.Context, cropID int64) (billing.Tariff, error)
}

// IdempotencyPort guards against double submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// LockerPort serializes mutations per record.
type LockerPort interface {
	Acquire(ctx context.Context, recordID int64) (func(context.Context) error, error)
}

// Service coordinates storage record operations. All monetary and quantity
// arithmetic happens in the billing package; this service only stitches
// snapshots, computed updates and persistence together.
type Service struct {
	repo        RepositoryPort
	pricing     PricingPort
	idempotency IdempotencyPort
	locker      LockerPort
	metrics     *observability.Metrics
}

// NewService builds Service.
func NewService(repo RepositoryPort, pricing PricingPort, idem IdempotencyPort, locker LockerPort, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, pricing: pricing, idempotency: idem, locker: locker, metrics: metrics}
}

// Inflow creates a storage record for arriving goods.
func (s *Service) Inflow(ctx context.Context, input InflowInput) (*billing.StorageRecord, error) {
	if input.CustomerID == 0 {
		return nil, errors.New("storage: customer ID required")
	}
	if input.CropID == 0 {
		return nil, errors.New("storage: crop ID required")
	}
	if input.Bags <= 0 {
		return nil, &billing.QuantityError{Requested: input.Bags, Op: "inflow"}
	}
	if input.HamaliPayable < 0 {
		return nil, errors.New("storage: hamali must not be negative")
	}
	if input.StorageStartDate.IsZero() {
		input.StorageStartDate = time.Now()
	}
	return s.repo.CreateRecord(ctx, input)
}

// GetRecordDetail returns a record with its withdrawal history and balance.
func (s *Service) GetRecordDetail(ctx context.Context, id int64) (*RecordDetail, error) {
	rec, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.repo.ListWithdrawals(ctx, id)
	if err != nil {
		return nil, err
	}
	paid, err := s.repo.SumPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	balance := rec.BalanceDue(paid)
	if balance < 0 {
		balance = 0
	}
	return &RecordDetail{
		Record:      *rec,
		Withdrawals: withdrawals,
		TotalPaid:   paid,
		BalanceDue:  balance,
	}, nil
}

// ListRecords returns records with pagination metadata.
func (s *Service) ListRecords(ctx context.Context, filter ListFilter) ([]billing.StorageRecord, shared.Pagination, error) {
	records, total, err := s.repo.ListRecords(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// PreviewRent quotes the rent for withdrawing bags from a record as of a
// date, without mutating anything.
func (s *Service) PreviewRent(ctx context.Context, recordID int64, bags int, asOf time.Time) (billing.RentQuote, error) {
	rec, err := s.repo.GetRecord(ctx, recordID)
	if err != nil {
		return billing.RentQuote{}, err
	}
	pricing, err := s.pricing.TariffForCrop(ctx, rec.CropID)
	if err != nil {
		return billing.RentQuote{}, err
	}
	return billing.CalculateFinalRent(*rec, asOf, bags, pricing)
}

// PostOutflow applies a single withdrawal: rent is computed from the locked
// snapshot, the record update and the withdrawal row commit in one
// transaction.
func (s *Service) PostOutflow(ctx context.Context, input OutflowInput) (*Withdrawal, error) {
	if input.WithdrawalDate.IsZero() {
		input.WithdrawalDate = time.Now()
	}
	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "storage.outflow"); err != nil {
			return nil, err
		}
		insertedKey = true
	}

	release, err := s.acquire(ctx, input.RecordID)
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return nil, err
	}
	defer func() { _ = release(ctx) }()

	var result Withdrawal
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetRecordForUpdate(ctx, input.RecordID)
		if err != nil {
			return err
		}
		if rec.IsClosed() {
			return ErrRecordClosed
		}
		pricing, err := s.pricing.TariffForCrop(ctx, rec.CropID)
		if err != nil {
			return err
		}
		quote, err := billing.CalculateFinalRent(*rec, input.WithdrawalDate, input.Bags, pricing)
		if err != nil {
			return err
		}
		impact, err := billing.CalculateOutflowImpact(*rec, input.Bags, quote.Rent, input.WithdrawalDate)
		if err != nil {
			return err
		}
		if err := tx.ApplyRecordUpdate(ctx, rec.ID, impact.Updates); err != nil {
			return err
		}
		result = Withdrawal{
			RecordID:       rec.ID,
			BagsWithdrawn:  input.Bags,
			RentCharged:    quote.Rent,
			WithdrawalDate: input.WithdrawalDate,
		}
		result.ID, err = tx.InsertWithdrawal(ctx, result)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.OutflowsPosted.Inc()
	}
	return &result, nil
}

// EditOutflow replaces an existing withdrawal's quantity and date. Rent is
// requoted against the restored snapshot and the old rent contribution is
// swapped out, never stacked.
func (s *Service) EditOutflow(ctx context.Context, input EditOutflowInput) (*Withdrawal, error) {
	release, err := s.acquire(ctx, input.RecordID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = release(ctx) }()

	var result Withdrawal
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetRecordForUpdate(ctx, input.RecordID)
		if err != nil {
			return err
		}
		old, err := tx.GetWithdrawal(ctx, input.RecordID, input.WithdrawalID)
		if err != nil {
			return err
		}
		if input.WithdrawalDate.IsZero() {
			input.WithdrawalDate = old.WithdrawalDate
		}

		// Quote against the pre-withdrawal snapshot so the new quantity
		// may exceed what currently remains in store.
		restored := *rec
		restored.BagsStored += old.BagsWithdrawn
		pricing, err := s.pricing.TariffForCrop(ctx, rec.CropID)
		if err != nil {
			return err
		}
		quote, err := billing.CalculateFinalRent(restored, input.WithdrawalDate, input.Bags, pricing)
		if err != nil {
			return err
		}

		oldTxn := billing.WithdrawalTxn{Bags: old.BagsWithdrawn, Rent: old.RentCharged, Date: old.WithdrawalDate}
		newTxn := billing.WithdrawalTxn{Bags: input.Bags, Rent: quote.Rent, Date: input.WithdrawalDate}
		update, err := billing.CalculateUpdateImpact(*rec, oldTxn, newTxn)
		if err != nil {
			return err
		}
		if err := tx.ApplyRecordUpdate(ctx, rec.ID, update); err != nil {
			return err
		}
		result = Withdrawal{
			ID:             old.ID,
			RecordID:       rec.ID,
			BagsWithdrawn:  input.Bags,
			RentCharged:    quote.Rent,
			WithdrawalDate: input.WithdrawalDate,
			CreatedAt:      old.CreatedAt,
		}
		return tx.UpdateWithdrawal(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ReverseOutflow undoes a withdrawal, restoring bags and billed rent and
// reopening the record.
func (s *Service) ReverseOutflow(ctx context.Context, recordID, withdrawalID int64) (*billing.StorageRecord, error) {
	release, err := s.acquire(ctx, recordID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = release(ctx) }()

	var reopened billing.StorageRecord
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		wd, err := tx.GetWithdrawal(ctx, recordID, withdrawalID)
		if err != nil {
			return err
		}
		update, err := billing.CalculateReversalImpact(*rec, wd.BagsWithdrawn, wd.RentCharged)
		if err != nil {
			return err
		}
		if err := tx.ApplyRecordUpdate(ctx, rec.ID, update); err != nil {
			return err
		}
		if err := tx.DeleteWithdrawal(ctx, recordID, withdrawalID); err != nil {
			return err
		}
		reopened = *rec
		reopened.BagsStored = update.BagsStored
		reopened.BagsOut = update.BagsOut
		reopened.TotalRentBilled = update.TotalRentBilled
		reopened.BillingCycle = update.BillingCycle
		reopened.StorageEndDate = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reopened, nil
}

// PlanBulkOutflow previews a multi-record withdrawal for a crop.
func (s *Service) PlanBulkOutflow(ctx context.Context, input BulkOutflowInput) (billing.BulkOutflowPlan, error) {
	records, err := s.repo.ListOpenByCrop(ctx, input.CropID)
	if err != nil {
		return billing.BulkOutflowPlan{}, err
	}
	tariff, err := s.pricing.ResolverForCrop(ctx, input.CropID)
	if err != nil {
		return billing.BulkOutflowPlan{}, err
	}
	if input.AsOf.IsZero() {
		input.AsOf = time.Now()
	}
	excluded := make(map[int64]struct{}, len(input.ExcludedRecordIDs))
	for _, id := range input.ExcludedRecordIDs {
		excluded[id] = struct{}{}
	}

	plan, err := billing.PlanBulkOutflow(records, input.CropID, input.TargetBags, input.AsOf, excluded, tariff)
	if err != nil {
		return billing.BulkOutflowPlan{}, err
	}
	if plan.Impossible && s.metrics != nil {
		s.metrics.InfeasiblePlans.Inc()
	}
	return plan, nil
}

// ApplyBulkOutflow re-plans and applies every planned withdrawal in a
// single transaction. An infeasible plan is rejected before any write.
func (s *Service) ApplyBulkOutflow(ctx context.Context, input BulkOutflowInput) ([]Withdrawal, error) {
	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "storage.bulk_outflow"); err != nil {
			return nil, err
		}
		insertedKey = true
	}
	releaseKey := func() {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
	}
	if input.AsOf.IsZero() {
		input.AsOf = time.Now()
	}

	plan, err := s.PlanBulkOutflow(ctx, input)
	if err != nil {
		releaseKey()
		return nil, err
	}
	if plan.Impossible {
		releaseKey()
		return nil, ErrInfeasiblePlan
	}

	var applied []Withdrawal
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, op := range plan.Operations {
			// Row locks re-read each record; a snapshot that moved since
			// planning fails the impact computation instead of corrupting.
			rec, err := tx.GetRecordForUpdate(ctx, op.Record.ID)
			if err != nil {
				return err
			}
			impact, err := billing.CalculateOutflowImpact(*rec, op.Take, op.Rent, input.AsOf)
			if err != nil {
				return err
			}
			if err := tx.ApplyRecordUpdate(ctx, rec.ID, impact.Updates); err != nil {
				return err
			}
			wd := Withdrawal{
				RecordID:       rec.ID,
				BagsWithdrawn:  op.Take,
				RentCharged:    op.Rent,
				WithdrawalDate: input.AsOf,
			}
			if wd.ID, err = tx.InsertWithdrawal(ctx, wd); err != nil {
				return err
			}
			applied = append(applied, wd)
		}
		return nil
	})
	if err != nil {
		releaseKey()
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.OutflowsPosted.Add(float64(len(applied)))
	}
	return applied, nil
}

func (s *Service) acquire(ctx context.Context, recordID int64) (func(context.Context) error, error) {
	if s.locker == nil {
		return func(context.Context) error { return nil }, nil
	}
	return s.locker.Acquire(ctx, recordID)
}
