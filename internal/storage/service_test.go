package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/godown-erp/godown-erp/internal/billing"
	"github.com/godown-erp/godown-erp/internal/shared"
)

type memoryStorageRepo struct {
	records      map[int64]*billing.StorageRecord
	withdrawals  map[int64]*Withdrawal
	payments     map[int64]float64
	nextRecordID int64
	nextWdID     int64
}

func newMemoryStorageRepo() *memoryStorageRepo {
	return &memoryStorageRepo{
		records:     make(map[int64]*billing.StorageRecord),
		withdrawals: make(map[int64]*Withdrawal),
		payments:    make(map[int64]float64),
	}
}

func (r *memoryStorageRepo) CreateRecord(ctx context.Context, input InflowInput) (*billing.StorageRecord, error) {
	r.nextRecordID++
	rec := &billing.StorageRecord{
		ID:               r.nextRecordID,
		RecordNumber:     input.RecordNumber,
		CustomerID:       input.CustomerID,
		CropID:           input.CropID,
		LotID:            input.LotID,
		BagsIn:           input.Bags,
		BagsStored:       input.Bags,
		StorageStartDate: input.StorageStartDate,
		HamaliPayable:    input.HamaliPayable,
		BillingCycle:     billing.CycleInitial,
	}
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *memoryStorageRepo) GetRecord(ctx context.Context, id int64) (*billing.StorageRecord, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *memoryStorageRepo) ListRecords(ctx context.Context, filter ListFilter) ([]billing.StorageRecord, int, error) {
	var out []billing.StorageRecord
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out, len(out), nil
}

func (r *memoryStorageRepo) ListOpenByCrop(ctx context.Context, cropID int64) ([]billing.StorageRecord, error) {
	var out []billing.StorageRecord
	for id := int64(1); id <= r.nextRecordID; id++ {
		rec, ok := r.records[id]
		if !ok {
			continue
		}
		if rec.CropID == cropID && rec.BagsStored > 0 && rec.StorageEndDate == nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memoryStorageRepo) ListWithdrawals(ctx context.Context, recordID int64) ([]Withdrawal, error) {
	var out []Withdrawal
	for id := int64(1); id <= r.nextWdID; id++ {
		wd, ok := r.withdrawals[id]
		if ok && wd.RecordID == recordID {
			out = append(out, *wd)
		}
	}
	return out, nil
}

func (r *memoryStorageRepo) SumPayments(ctx context.Context, recordID int64) (float64, error) {
	return r.payments[recordID], nil
}

func (r *memoryStorageRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryStorageTx{repo: r})
}

type memoryStorageTx struct {
	repo *memoryStorageRepo
}

func (t *memoryStorageTx) GetRecordForUpdate(ctx context.Context, id int64) (*billing.StorageRecord, error) {
	return t.repo.GetRecord(ctx, id)
}

func (t *memoryStorageTx) ApplyRecordUpdate(ctx context.Context, id int64, update billing.RecordUpdate) error {
	rec, ok := t.repo.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.BagsStored = update.BagsStored
	rec.BagsOut = update.BagsOut
	rec.TotalRentBilled = update.TotalRentBilled
	rec.BillingCycle = update.BillingCycle
	if update.SetEndDate {
		rec.StorageEndDate = update.StorageEndDate
	}
	if update.ClearEndDate {
		rec.StorageEndDate = nil
	}
	return nil
}

func (t *memoryStorageTx) InsertWithdrawal(ctx context.Context, wd Withdrawal) (int64, error) {
	t.repo.nextWdID++
	wd.ID = t.repo.nextWdID
	t.repo.withdrawals[wd.ID] = &wd
	return wd.ID, nil
}

func (t *memoryStorageTx) GetWithdrawal(ctx context.Context, recordID, withdrawalID int64) (*Withdrawal, error) {
	wd, ok := t.repo.withdrawals[withdrawalID]
	if !ok || wd.RecordID != recordID {
		return nil, ErrWithdrawalNotFound
	}
	copied := *wd
	return &copied, nil
}

func (t *memoryStorageTx) UpdateWithdrawal(ctx context.Context, wd Withdrawal) error {
	existing, ok := t.repo.withdrawals[wd.ID]
	if !ok || existing.RecordID != wd.RecordID {
		return ErrWithdrawalNotFound
	}
	*existing = wd
	return nil
}

func (t *memoryStorageTx) DeleteWithdrawal(ctx context.Context, recordID, withdrawalID int64) error {
	wd, ok := t.repo.withdrawals[withdrawalID]
	if !ok || wd.RecordID != recordID {
		return ErrWithdrawalNotFound
	}
	delete(t.repo.withdrawals, withdrawalID)
	return nil
}

type memoryIdempotency struct {
	keys map[string]struct{}
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]struct{})}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type staticPricing struct {
	tariff billing.StaticTariff
}

func (p staticPricing) TariffForCrop(ctx context.Context, cropID int64) (billing.CropPricing, error) {
	return p.tariff.ResolveTariff(cropID)
}

func (p staticPricing) ResolverForCrop(ctx context.Context, cropID int64) (billing.Tariff, error) {
	return p.tariff, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(repo *memoryStorageRepo) *Service {
	pricing := staticPricing{tariff: billing.StaticTariff{
		7: {Price6M: 36, Price1Y: 55},
	}}
	return NewService(repo, pricing, nil, nil, nil)
}

func seedRecord(t *testing.T, svc *Service, bags int, start time.Time) *billing.StorageRecord {
	t.Helper()
	rec, err := svc.Inflow(context.Background(), InflowInput{
		CustomerID:       1,
		CropID:           7,
		Bags:             bags,
		StorageStartDate: start,
		HamaliPayable:    100,
		RecordNumber:     "SR-TEST",
	})
	require.NoError(t, err)
	return rec
}

func TestInflowValidation(t *testing.T) {
	svc := newTestService(newMemoryStorageRepo())
	ctx := context.Background()

	_, err := svc.Inflow(ctx, InflowInput{CropID: 7, Bags: 10})
	require.Error(t, err)

	_, err = svc.Inflow(ctx, InflowInput{CustomerID: 1, CropID: 7, Bags: 0})
	var qe *billing.QuantityError
	require.ErrorAs(t, err, &qe)
}

func TestPostOutflowPartial(t *testing.T) {
	repo := newMemoryStorageRepo()
	svc := newTestService(repo)
	rec := seedRecord(t, svc, 50, date(2024, time.January, 1))

	wd, err := svc.PostOutflow(context.Background(), OutflowInput{
		RecordID:       rec.ID,
		Bags:           20,
		WithdrawalDate: date(2024, time.February, 1),
	})
	require.NoError(t, err)
	require.Equal(t, 20, wd.BagsWithdrawn)
	require.Equal(t, 720.0, wd.RentCharged)

	stored := repo.records[rec.ID]
	require.Equal(t, 30, stored.BagsStored)
	require.Equal(t, 20, stored.BagsOut)
	require.Equal(t, 720.0, stored.TotalRentBilled)
	require.Nil(t, stored.StorageEndDate)
}

func TestPostOutflowClosesRecord(t *testing.T) {
	repo := newMemoryStorageRepo()
	svc := newTestService(repo)
	rec := seedRecord(t, svc, 50, date(2024, time.January, 1))

	// Seven months stored bills at the 1-year rate.
	wd, err := svc.PostOutflow(context.Background(), OutflowInput{
		RecordID:       rec.ID,
		Bags:           50,
		WithdrawalDate: date(2024, time.August, 1),
	})
	require.NoError(t, err)
	require.Equal(t, 2750.0, wd.RentCharged)

	stored := repo.records[rec.ID]
	require.Equal(t, 0, stored.BagsStored)
	require.NotNil(t, stored.StorageEndDate)
	require.Equal(t, billing.CycleCompleted, stored.BillingCycle)

	// A closed record rejects further outflows.
	_, err = svc.PostOutflow(context.Background(), OutflowInput{
		RecordID:       rec.ID,
		Bags:           1,
		WithdrawalDate: date(2024, time.September, 1),
	})
	require.ErrorIs(t, err, ErrRecordClosed)
}

func TestPostOutflowRejectsExcessQuantity(t *testing.T) {
	repo := newMemoryStorageRepo()
	svc := newTestService(repo)
	rec := seedRecord(t, svc, 50, date(2024, time.January, 1))

	_, err := svc.PostOutflow(context.Background(), OutflowInput{
		RecordID:       rec.ID,
		Bags:           51,
		WithdrawalDate: date(2024, time.February, 1),
	})
	var qe *billing.QuantityError
	require.ErrorAs(t, err, &qe)

	// Nothing persisted.
	require.Equal(t, 50, repo.records[rec.ID].BagsStored)
	require.Empty(t, repo.withdrawals)
}

func TestPostOutflowRetryAfterFailure(t *testing.T) {
	repo := newMemoryStorageRepo()
	pricing := staticPricing{tariff: billing.StaticTariff{7: {Price6M: 36, Price1Y: 55}}}
	idem := newMemoryIdempotency()
	svc := NewService(repo, pricing, idem, nil, nil)
	rec := seedRecord(t, svc, 50, date(2024, time.January, 1))
	ctx := context.Background()

	// A rejected outflow must release its key so the corrected retry is
	// not treated as a duplicate of a write that never happened.
	_, err := svc.PostOutflow(ctx, OutflowInput{
		RecordID:       rec.ID,
		Bags:           60,
		WithdrawalDate: date(2024, time.February, 1),
		IdempotencyKey: "out-retry-1",
	})
	var qe *billing.QuantityError
	require.ErrorAs(t, err, &qe)

	wd, err := svc.PostOutflow(ctx, OutflowInput{
		RecordID:       rec.ID,
		Bags:           10,
		WithdrawalDate: date(2024, time.February, 1),
		IdempotencyKey: "out-retry-1",
	})
	require.NoError(t, err)
	require.Equal(t, 10, wd.BagsWithdrawn)

	// Once applied, the same key is a duplicate.
	_, err = svc.PostOutflow(ctx, OutflowInput{
		RecordID:       rec.ID,
		Bags:           10,
		WithdrawalDate: date(2024, time.February, 1),
		IdempotencyKey: "out-retry-1",
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestPostOutflowMissingPricing(t *testing.T) {
	repo := newMemoryStorageRepo()
	svc := NewService(repo, staticPricing{tariff: billing.StaticTariff{}}, nil, nil, nil)
	rec, err := repo.CreateRecord(context.Background(), InflowInput{
		CustomerID: 1, CropID: 7, Bags: 50, StorageStartDate: date(2024, time.January, 1),
	})
	require.NoError(t, err)

	_, err = svc.PostOutflow(context.Background(), OutflowInput{
		RecordID:       rec.ID,
		Bags:           10,
		WithdrawalDate: date(2024, time.February, 1),
	})
	require.ErrorIs(t, err, billing.ErrPricingNotConfigured)
}

func TestEditOutflow(t *testing.T) {
	repo := newMemoryStorageRepo()
	svc := newTestService(repo)
	rec := seedRecord(t, svc, 50, date(2024, time.January, 1))
	ctx := context.Background()

	wd, err := svc.PostOutflow(ctx, OutflowInput{
		RecordID:       rec.ID,
		Bags:           20,
		WithdrawalDate: date(2024, time.February, 1),
	})
	require.NoError(t, err)

	edited, err := svc.EditOutflow(ctx, EditOutflowInput{
		RecordID:       rec.ID,
		WithdrawalID:   wd.ID,
		Bags:           35,
		WithdrawalDate: date(2024, time.February, 1),
	})
	require.NoError(t, err)
	require.Equal(t, 35, edited.BagsWithdrawn)
	require.Equal(t, 1260.0, edited.RentCharged)

	stored := repo.records[rec.ID]
	require.Equal(t, 15, stored.BagsStored)
	require.Equal(t, 35, stored.BagsOut)
	require.Equal(t, 1260.0, stored.TotalRentBilled, "old rent contribution must be replaced")
	require.Equal(t, stored.BagsIn, stored.BagsStored+stored.BagsOut)
}

func TestReverseOutflowReopensRecord(t *testing.T) {
	repo := newMemoryStorageRepo()
	svc := newTestService(repo)
	rec := seedRecord(t, svc, 50, date(2024, time.January, 1))
	ctx := context.Background()

	wd, err := svc.PostOutflow(ctx, OutflowInput{
		RecordID:       rec.ID,
		Bags:           50,
		WithdrawalDate: date(2024, time.March, 1),
	})
	require.NoError(t, err)
	require.NotNil(t, repo.records[rec.ID].StorageEndDate)

	reopened, err := svc.ReverseOutflow(ctx, rec.ID, wd.ID)
	require.NoError(t, err)
	require.Equal(t, 50, reopened.BagsStored)
	require.Equal(t, 0, reopened.BagsOut)
	require.Equal(t, 0.0, reopened.TotalRentBilled)
	require.Nil(t, reopened.StorageEndDate)
	require.Equal(t, billing.CycleInitial, reopened.BillingCycle)
	require.Empty(t, repo.withdrawals, "reversed withdrawal must be removed")
}

func TestBulkOutflow(t *testing.T) {
	repo := newMemoryStorageRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	oldest := seedRecord(t, svc, 30, date(2024, time.January, 1))
	middle := seedRecord(t, svc, 20, date(2024, time.February, 1))
	seedRecord(t, svc, 40, date(2024, time.March, 1))

	plan, err := svc.PlanBulkOutflow(ctx, BulkOutflowInput{
		CropID:     7,
		TargetBags: 45,
		AsOf:       date(2024, time.April, 1),
	})
	require.NoError(t, err)
	require.False(t, plan.Impossible)
	require.Len(t, plan.Operations, 2)
	require.Equal(t, oldest.ID, plan.Operations[0].Record.ID)

	applied, err := svc.ApplyBulkOutflow(ctx, BulkOutflowInput{
		CropID:     7,
		TargetBags: 45,
		AsOf:       date(2024, time.April, 1),
	})
	require.NoError(t, err)
	require.Len(t, applied, 2)

	require.Equal(t, 0, repo.records[oldest.ID].BagsStored)
	require.NotNil(t, repo.records[oldest.ID].StorageEndDate)
	require.Equal(t, 5, repo.records[middle.ID].BagsStored)
}

func TestBulkOutflowInfeasible(t *testing.T) {
	repo := newMemoryStorageRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	seedRecord(t, svc, 30, date(2024, time.January, 1))

	_, err := svc.ApplyBulkOutflow(ctx, BulkOutflowInput{
		CropID:     7,
		TargetBags: 100,
		AsOf:       date(2024, time.April, 1),
	})
	require.ErrorIs(t, err, ErrInfeasiblePlan)
	require.Equal(t, 30, repo.records[1].BagsStored, "no partial application")
}

func TestBulkOutflowRetryAfterInfeasible(t *testing.T) {
	repo := newMemoryStorageRepo()
	pricing := staticPricing{tariff: billing.StaticTariff{7: {Price6M: 36, Price1Y: 55}}}
	idem := newMemoryIdempotency()
	svc := NewService(repo, pricing, idem, nil, nil)
	ctx := context.Background()
	seedRecord(t, svc, 30, date(2024, time.January, 1))

	_, err := svc.ApplyBulkOutflow(ctx, BulkOutflowInput{
		CropID:         7,
		TargetBags:     100,
		AsOf:           date(2024, time.April, 1),
		IdempotencyKey: "bulk-retry-1",
	})
	require.ErrorIs(t, err, ErrInfeasiblePlan)

	// The infeasible attempt wrote nothing, so the same key must still be
	// usable for the corrected target.
	applied, err := svc.ApplyBulkOutflow(ctx, BulkOutflowInput{
		CropID:         7,
		TargetBags:     20,
		AsOf:           date(2024, time.April, 1),
		IdempotencyKey: "bulk-retry-1",
	})
	require.NoError(t, err)
	require.Len(t, applied, 1)

	_, err = svc.ApplyBulkOutflow(ctx, BulkOutflowInput{
		CropID:         7,
		TargetBags:     5,
		AsOf:           date(2024, time.April, 1),
		IdempotencyKey: "bulk-retry-1",
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestBulkOutflowExclusion(t *testing.T) {
	repo := newMemoryStorageRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	oldest := seedRecord(t, svc, 30, date(2024, time.January, 1))
	next := seedRecord(t, svc, 40, date(2024, time.February, 1))

	plan, err := svc.PlanBulkOutflow(ctx, BulkOutflowInput{
		CropID:            7,
		TargetBags:        25,
		AsOf:              date(2024, time.March, 1),
		ExcludedRecordIDs: []int64{oldest.ID},
	})
	require.NoError(t, err)
	require.Len(t, plan.Operations, 1)
	require.Equal(t, next.ID, plan.Operations[0].Record.ID)
}

func TestGetRecordDetailFloorsBalance(t *testing.T) {
	repo := newMemoryStorageRepo()
	svc := newTestService(repo)
	rec := seedRecord(t, svc, 50, date(2024, time.January, 1))

	// Overpaid record: internal credit, displayed balance floors at zero.
	repo.payments[rec.ID] = 500

	detail, err := svc.GetRecordDetail(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, 500.0, detail.TotalPaid)
	require.Equal(t, 0.0, detail.BalanceDue)
}

func TestListRecordsPagination(t *testing.T) {
	repo := newMemoryStorageRepo()
	svc := newTestService(repo)
	for i := 0; i < 5; i++ {
		seedRecord(t, svc, 10, date(2024, time.January, 1+i))
	}

	_, page, err := svc.ListRecords(context.Background(), ListFilter{Page: 1, PerPage: 2})
	require.NoError(t, err)
	require.Equal(t, shared.NewPagination(1, 2, 5), page)
}
