package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/godown-erp/godown-erp/internal/billing"
	"github.com/godown-erp/godown-erp/internal/platform/db"
	"github.com/godown-erp/godown-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for payments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const paymentColumns = `id, receipt_number, customer_id, record_id, amount,
	method, notes, payment_date, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.ReceiptNumber, &p.CustomerID, &p.RecordID, &p.Amount,
		&p.Method, &p.Notes, &p.PaymentDate, &p.CreatedAt,
	)
	return p, err
}

// GetPayment fetches a payment by ID.
func (r *Repository) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListByRecord returns payments against one storage record, oldest first.
func (r *Repository) ListByRecord(ctx context.Context, recordID int64) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE record_id = $1 ORDER BY payment_date, id`
	return r.listPayments(ctx, query, recordID)
}

// ListByCustomer returns a customer's payments, newest first.
func (r *Repository) ListByCustomer(ctx context.Context, customerID int64) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE customer_id = $1 ORDER BY payment_date DESC, id DESC`
	return r.listPayments(ctx, query, customerID)
}

func (r *Repository) listPayments(ctx context.Context, query string, arg any) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPendingByCustomer returns the customer's records that still carry
// dues, oldest storage first. Dues are billed rent plus hamali minus
// collections to date.
func (r *Repository) ListPendingByCustomer(ctx context.Context, customerID int64) ([]billing.PendingRecord, error) {
	query := `
		SELECT r.id, r.record_number, r.storage_start_date,
		       r.total_rent_billed + r.hamali_payable - COALESCE(SUM(p.amount), 0) AS total_due
		FROM storage_records r
		LEFT JOIN payments p ON p.record_id = r.id
		WHERE r.customer_id = $1
		GROUP BY r.id
		HAVING r.total_rent_billed + r.hamali_payable - COALESCE(SUM(p.amount), 0) > 0
		ORDER BY r.storage_start_date, r.id`

	rows, err := r.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.PendingRecord
	for rows.Next() {
		var pr billing.PendingRecord
		if err := rows.Scan(&pr.ID, &pr.RecordNumber, &pr.StorageStartDate, &pr.TotalDue); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	query := `
		INSERT INTO payments (receipt_number, customer_id, record_id, amount, method, notes, payment_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		p.ReceiptNumber, p.CustomerID, p.RecordID, p.Amount, p.Method, p.Notes, p.PaymentDate,
	).Scan(&id)
	return id, err
}

// LockRecordDues re-reads one record's dues under a row lock so concurrent
// collections cannot allocate against a stale balance.
func (t *txRepo) LockRecordDues(ctx context.Context, recordID int64) (float64, error) {
	query := `
		SELECT r.total_rent_billed + r.hamali_payable -
		       COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.record_id = r.id), 0)
		FROM storage_records r
		WHERE r.id = $1
		FOR UPDATE OF r`

	var due float64
	err := t.tx.QueryRow(ctx, query, recordID).Scan(&due)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return due, err
}
