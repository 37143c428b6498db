package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/godown-erp/godown-erp/internal/billing"
	"github.com/godown-erp/godown-erp/internal/shared"
)

type memoryPaymentsRepo struct {
	pending  []billing.PendingRecord
	payments map[int64]*Payment
	nextID   int64
}

func newMemoryPaymentsRepo(pending ...billing.PendingRecord) *memoryPaymentsRepo {
	return &memoryPaymentsRepo{pending: pending, payments: make(map[int64]*Payment)}
}

func (r *memoryPaymentsRepo) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memoryPaymentsRepo) ListByRecord(ctx context.Context, recordID int64) ([]Payment, error) {
	var out []Payment
	for id := int64(1); id <= r.nextID; id++ {
		if p, ok := r.payments[id]; ok && p.RecordID == recordID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryPaymentsRepo) ListByCustomer(ctx context.Context, customerID int64) ([]Payment, error) {
	var out []Payment
	for id := int64(1); id <= r.nextID; id++ {
		if p, ok := r.payments[id]; ok && p.CustomerID == customerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryPaymentsRepo) ListPendingByCustomer(ctx context.Context, customerID int64) ([]billing.PendingRecord, error) {
	out := make([]billing.PendingRecord, len(r.pending))
	copy(out, r.pending)
	return out, nil
}

func (r *memoryPaymentsRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Payment, len(r.payments))
	for id, p := range r.payments {
		snapshot[id] = *p
	}
	savedID := r.nextID
	if err := fn(ctx, &memoryPaymentsTx{repo: r}); err != nil {
		r.payments = make(map[int64]*Payment, len(snapshot))
		for id, p := range snapshot {
			copied := p
			r.payments[id] = &copied
		}
		r.nextID = savedID
		return err
	}
	return nil
}

type memoryPaymentsTx struct {
	repo *memoryPaymentsRepo
}

func (t *memoryPaymentsTx) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	t.repo.nextID++
	p.ID = t.repo.nextID
	t.repo.payments[p.ID] = &p
	return p.ID, nil
}

func (t *memoryPaymentsTx) LockRecordDues(ctx context.Context, recordID int64) (float64, error) {
	for _, pr := range t.repo.pending {
		if pr.ID == recordID {
			due := pr.TotalDue
			for _, p := range t.repo.payments {
				if p.RecordID == recordID {
					due -= p.Amount
				}
			}
			return due, nil
		}
	}
	return 0, shared.ErrNotFound
}

type failingIdempotency struct{}

func (failingIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	return shared.ErrIdempotencyConflict
}

func (failingIdempotency) Delete(ctx context.Context, key string) error { return nil }

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

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func pendingFixture() []billing.PendingRecord {
	return []billing.PendingRecord{
		{ID: 1, RecordNumber: "SR-0001", TotalDue: 1000, StorageStartDate: day(2024, time.January, 1)},
		{ID: 2, RecordNumber: "SR-0002", TotalDue: 500, StorageStartDate: day(2024, time.February, 1)},
		{ID: 3, RecordNumber: "SR-0003", TotalDue: 2000, StorageStartDate: day(2024, time.March, 1)},
	}
}

func TestRecordPayment(t *testing.T) {
	repo := newMemoryPaymentsRepo(pendingFixture()...)
	svc := NewService(repo, nil, nil)

	payment, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		CustomerID:  9,
		RecordID:    1,
		Amount:      600,
		Method:      "cash",
		PaymentDate: day(2024, time.April, 1),
	})
	require.NoError(t, err)
	require.NotZero(t, payment.ID)
	require.NotEmpty(t, payment.ReceiptNumber)
	require.Equal(t, 600.0, payment.Amount)
}

func TestRecordPaymentValidation(t *testing.T) {
	svc := NewService(newMemoryPaymentsRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, RecordPaymentInput{CustomerID: 9, RecordID: 1, Amount: 0})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RecordPayment(ctx, RecordPaymentInput{CustomerID: 9, RecordID: 1, Amount: -5})
	require.ErrorIs(t, err, ErrInvalidAmount)

	// Unknown record is caught by the row lock.
	_, err = svc.RecordPayment(ctx, RecordPaymentInput{CustomerID: 9, RecordID: 404, Amount: 10})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordPaymentIdempotency(t *testing.T) {
	svc := NewService(newMemoryPaymentsRepo(pendingFixture()...), failingIdempotency{}, nil)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		CustomerID:     9,
		RecordID:       1,
		Amount:         100,
		IdempotencyKey: "abc",
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestRecordPaymentRetryAfterFailure(t *testing.T) {
	repo := newMemoryPaymentsRepo(pendingFixture()...)
	idem := newMemoryIdempotency()
	svc := NewService(repo, idem, nil)
	ctx := context.Background()

	// The first submission targets a record that does not exist; the key
	// must be released so the corrected retry is not rejected as a
	// duplicate.
	_, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CustomerID:     9,
		RecordID:       404,
		Amount:         100,
		IdempotencyKey: "retry-1",
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	payment, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CustomerID:     9,
		RecordID:       1,
		Amount:         100,
		IdempotencyKey: "retry-1",
	})
	require.NoError(t, err)
	require.NotZero(t, payment.ID)

	// A true duplicate of the applied payment is still rejected.
	_, err = svc.RecordPayment(ctx, RecordPaymentInput{
		CustomerID:     9,
		RecordID:       1,
		Amount:         100,
		IdempotencyKey: "retry-1",
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestApplyBulkPaymentFIFO(t *testing.T) {
	repo := newMemoryPaymentsRepo(pendingFixture()...)
	svc := NewService(repo, nil, nil)

	applied, err := svc.ApplyBulkPayment(context.Background(), BulkPaymentInput{
		CustomerID:  9,
		Amount:      1500,
		PaymentDate: day(2024, time.April, 1),
	})
	require.NoError(t, err)
	require.Len(t, applied, 2)
	require.Equal(t, int64(1), applied[0].RecordID)
	require.Equal(t, 1000.0, applied[0].Amount)
	require.Equal(t, int64(2), applied[1].RecordID)
	require.Equal(t, 500.0, applied[1].Amount)

	// One receipt covers the whole collection.
	require.Equal(t, applied[0].ReceiptNumber, applied[1].ReceiptNumber)
}

func TestApplyBulkPaymentRejectsSurplus(t *testing.T) {
	repo := newMemoryPaymentsRepo(pendingFixture()...)
	svc := NewService(repo, nil, nil)

	_, err := svc.ApplyBulkPayment(context.Background(), BulkPaymentInput{
		CustomerID: 9,
		Amount:     4000,
	})
	require.ErrorIs(t, err, ErrUnallocatedSurplus)
	require.Empty(t, repo.payments, "nothing persisted on rejection")
}

func TestApplyBulkPaymentCreditsSurplus(t *testing.T) {
	repo := newMemoryPaymentsRepo(pendingFixture()...)
	svc := NewService(repo, nil, nil)

	applied, err := svc.ApplyBulkPayment(context.Background(), BulkPaymentInput{
		CustomerID:   9,
		Amount:       4000,
		AcceptCredit: true,
	})
	require.NoError(t, err)
	require.Len(t, applied, 3)
	// Surplus of 500 lands on the newest pending record.
	require.Equal(t, int64(3), applied[2].RecordID)
	require.Equal(t, 2500.0, applied[2].Amount)
}

func TestApplyBulkPaymentNoDues(t *testing.T) {
	svc := NewService(newMemoryPaymentsRepo(), nil, nil)

	_, err := svc.ApplyBulkPayment(context.Background(), BulkPaymentInput{
		CustomerID:   9,
		Amount:       100,
		AcceptCredit: true,
	})
	require.ErrorIs(t, err, ErrUnallocatedSurplus)
}

func TestApplyBulkPaymentDuesChanged(t *testing.T) {
	repo := newMemoryPaymentsRepo(pendingFixture()...)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	// A concurrent collection against the first record shrinks its dues
	// after planning would have seen the full amount.
	_, err := svc.RecordPayment(ctx, RecordPaymentInput{CustomerID: 9, RecordID: 1, Amount: 400})
	require.NoError(t, err)

	// The fixture list is static, so planning still sees 1000 due on
	// record 1 while the lock re-read sees 600.
	_, err = svc.ApplyBulkPayment(ctx, BulkPaymentInput{CustomerID: 9, Amount: 1500})
	require.ErrorIs(t, err, ErrDuesChanged)

	payments, err := svc.ListByCustomer(ctx, 9)
	require.NoError(t, err)
	require.Len(t, payments, 1, "bulk application rolled back")
}

func TestApplyBulkPaymentRetryAfterFailure(t *testing.T) {
	repo := newMemoryPaymentsRepo(pendingFixture()...)
	idem := newMemoryIdempotency()
	svc := NewService(repo, idem, nil)
	ctx := context.Background()

	// Rejected surplus must not burn the key.
	_, err := svc.ApplyBulkPayment(ctx, BulkPaymentInput{
		CustomerID:     9,
		Amount:         4000,
		IdempotencyKey: "bulk-retry-1",
	})
	require.ErrorIs(t, err, ErrUnallocatedSurplus)

	applied, err := svc.ApplyBulkPayment(ctx, BulkPaymentInput{
		CustomerID:     9,
		Amount:         1500,
		IdempotencyKey: "bulk-retry-1",
	})
	require.NoError(t, err)
	require.Len(t, applied, 2)

	_, err = svc.ApplyBulkPayment(ctx, BulkPaymentInput{
		CustomerID:     9,
		Amount:         1500,
		IdempotencyKey: "bulk-retry-1",
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestPreviewBulkPayment(t *testing.T) {
	svc := NewService(newMemoryPaymentsRepo(pendingFixture()...), nil, nil)

	plan, err := svc.PreviewBulkPayment(context.Background(), 9, 4000)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 3)
	require.Equal(t, 500.0, plan.Unallocated)
}
