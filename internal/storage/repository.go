package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/godown-erp/godown-erp/internal/billing"
	"github.com/godown-erp/godown-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for storage records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, record_number, customer_id, crop_id, lot_id,
	bags_in, bags_stored, bags_out, storage_start_date, storage_end_date,
	hamali_payable, total_rent_billed, billing_cycle`

func scanRecord(row pgx.Row) (billing.StorageRecord, error) {
	var rec billing.StorageRecord
	var endDate pgtype.Timestamptz
	var lotID pgtype.Int8
	err := row.Scan(
		&rec.ID, &rec.RecordNumber, &rec.CustomerID, &rec.CropID, &lotID,
		&rec.BagsIn, &rec.BagsStored, &rec.BagsOut, &rec.StorageStartDate, &endDate,
		&rec.HamaliPayable, &rec.TotalRentBilled, &rec.BillingCycle,
	)
	if err != nil {
		return billing.StorageRecord{}, err
	}
	rec.LotID = lotID.Int64
	if endDate.Valid {
		t := endDate.Time
		rec.StorageEndDate = &t
	}
	return rec, nil
}

// CreateRecord inserts a new storage record at inflow.
func (r *Repository) CreateRecord(ctx context.Context, input InflowInput) (*billing.StorageRecord, error) {
	number := input.RecordNumber
	if number == "" {
		var err error
		number, err = r.GenerateRecordNumber(ctx)
		if err != nil {
			return nil, err
		}
	}

	query := `
		INSERT INTO storage_records (
			record_number, customer_id, crop_id, lot_id,
			bags_in, bags_stored, bags_out, storage_start_date,
			hamali_payable, total_rent_billed, billing_cycle, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $5, 0, $6, $7, 0, $8, NOW(), NOW())
		RETURNING id`

	var lotID pgtype.Int8
	if input.LotID > 0 {
		lotID = pgtype.Int8{Int64: input.LotID, Valid: true}
	}

	rec := billing.StorageRecord{
		RecordNumber:     number,
		CustomerID:       input.CustomerID,
		CropID:           input.CropID,
		LotID:            input.LotID,
		BagsIn:           input.Bags,
		BagsStored:       input.Bags,
		StorageStartDate: input.StorageStartDate,
		HamaliPayable:    input.HamaliPayable,
		BillingCycle:     billing.CycleInitial,
	}
	err := r.pool.QueryRow(ctx, query,
		number, input.CustomerID, input.CropID, lotID,
		input.Bags, input.StorageStartDate, input.HamaliPayable, string(billing.CycleInitial),
	).Scan(&rec.ID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetRecord retrieves a record by ID.
func (r *Repository) GetRecord(ctx context.Context, id int64) (*billing.StorageRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM storage_records WHERE id = $1`, recordColumns)
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecords returns records with optional filtering.
func (r *Repository) ListRecords(ctx context.Context, filter ListFilter) ([]billing.StorageRecord, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	argNum := 1

	if filter.CustomerID > 0 {
		where += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, filter.CustomerID)
		argNum++
	}
	if filter.CropID > 0 {
		where += fmt.Sprintf(" AND crop_id = $%d", argNum)
		args = append(args, filter.CropID)
		argNum++
	}
	if filter.OpenOnly {
		where += " AND storage_end_date IS NULL"
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM storage_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM storage_records`, recordColumns) + where + " ORDER BY storage_start_date, id"
	if filter.PerPage > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		args = append(args, filter.PerPage, (page-1)*filter.PerPage)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []billing.StorageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// ListOpenByCrop returns all open records for a crop, oldest first.
func (r *Repository) ListOpenByCrop(ctx context.Context, cropID int64) ([]billing.StorageRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM storage_records
		WHERE crop_id = $1 AND storage_end_date IS NULL AND bags_stored > 0
		ORDER BY storage_start_date, id`, recordColumns)

	rows, err := r.pool.Query(ctx, query, cropID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []billing.StorageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListWithdrawals returns the withdrawal history for a record.
func (r *Repository) ListWithdrawals(ctx context.Context, recordID int64) ([]Withdrawal, error) {
	query := `
		SELECT id, record_id, bags_withdrawn, rent_charged, withdrawal_date, created_at
		FROM withdrawals WHERE record_id = $1 ORDER BY withdrawal_date, id`

	rows, err := r.pool.Query(ctx, query, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Withdrawal
	for rows.Next() {
		var wd Withdrawal
		if err := rows.Scan(&wd.ID, &wd.RecordID, &wd.BagsWithdrawn, &wd.RentCharged, &wd.WithdrawalDate, &wd.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, wd)
	}
	return out, rows.Err()
}

// SumPayments returns the total paid against a record.
func (r *Repository) SumPayments(ctx context.Context, recordID int64) (float64, error) {
	var paid float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE record_id = $1`, recordID,
	).Scan(&paid)
	return paid, err
}

// GenerateRecordNumber generates a unique record number.
func (r *Repository) GenerateRecordNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('storage_record_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("SR-%04d", seq), nil
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetRecordForUpdate(ctx context.Context, id int64) (*billing.StorageRecord, error)
	ApplyRecordUpdate(ctx context.Context, id int64, update billing.RecordUpdate) error
	InsertWithdrawal(ctx context.Context, wd Withdrawal) (int64, error)
	GetWithdrawal(ctx context.Context, recordID, withdrawalID int64) (*Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, wd Withdrawal) error
	DeleteWithdrawal(ctx context.Context, recordID, withdrawalID int64) error
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

func (t *txRepo) GetRecordForUpdate(ctx context.Context, id int64) (*billing.StorageRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM storage_records WHERE id = $1 FOR UPDATE`, recordColumns)
	rec, err := scanRecord(t.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *txRepo) ApplyRecordUpdate(ctx context.Context, id int64, update billing.RecordUpdate) error {
	query := `
		UPDATE storage_records
		SET bags_stored = $2, bags_out = $3, total_rent_billed = $4,
			billing_cycle = $5, updated_at = NOW()`
	args := []any{id, update.BagsStored, update.BagsOut, update.TotalRentBilled, string(update.BillingCycle)}

	switch {
	case update.SetEndDate:
		query += `, storage_end_date = $6`
		args = append(args, update.StorageEndDate)
	case update.ClearEndDate:
		query += `, storage_end_date = NULL`
	}
	query += ` WHERE id = $1`

	result, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (t *txRepo) InsertWithdrawal(ctx context.Context, wd Withdrawal) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO withdrawals (record_id, bags_withdrawn, rent_charged, withdrawal_date, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id`,
		wd.RecordID, wd.BagsWithdrawn, wd.RentCharged, wd.WithdrawalDate,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetWithdrawal(ctx context.Context, recordID, withdrawalID int64) (*Withdrawal, error) {
	var wd Withdrawal
	err := t.tx.QueryRow(ctx, `
		SELECT id, record_id, bags_withdrawn, rent_charged, withdrawal_date, created_at
		FROM withdrawals WHERE id = $1 AND record_id = $2 FOR UPDATE`,
		withdrawalID, recordID,
	).Scan(&wd.ID, &wd.RecordID, &wd.BagsWithdrawn, &wd.RentCharged, &wd.WithdrawalDate, &wd.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wd, nil
}

func (t *txRepo) UpdateWithdrawal(ctx context.Context, wd Withdrawal) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE withdrawals
		SET bags_withdrawn = $3, rent_charged = $4, withdrawal_date = $5
		WHERE id = $1 AND record_id = $2`,
		wd.ID, wd.RecordID, wd.BagsWithdrawn, wd.RentCharged, wd.WithdrawalDate,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

func (t *txRepo) DeleteWithdrawal(ctx context.Context, recordID, withdrawalID int64) error {
	result, err := t.tx.Exec(ctx,
		`DELETE FROM withdrawals WHERE id = $1 AND record_id = $2`, withdrawalID, recordID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}
