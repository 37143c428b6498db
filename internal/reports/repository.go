package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/godown-erp/godown-erp/internal/billing"
)

// Repository provides read-only reporting queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// StockByCrop returns stored quantities grouped by crop.
func (r *Repository) StockByCrop(ctx context.Context) ([]StockPosition, error) {
	query := `
		SELECT c.id, c.name, COUNT(r.id), COALESCE(SUM(r.bags_stored), 0)
		FROM crops c
		JOIN storage_records r ON r.crop_id = c.id
		WHERE r.storage_end_date IS NULL AND r.bags_stored > 0
		GROUP BY c.id, c.name
		ORDER BY c.name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockPosition
	for rows.Next() {
		var p StockPosition
		if err := rows.Scan(&p.CropID, &p.CropName, &p.OpenRecords, &p.BagsStored); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListOutstanding returns all records with dues remaining, any customer.
func (r *Repository) ListOutstanding(ctx context.Context) ([]billing.PendingRecord, error) {
	query := `
		SELECT r.id, r.record_number, r.storage_start_date,
		       r.total_rent_billed + r.hamali_payable - COALESCE(SUM(p.amount), 0) AS total_due
		FROM storage_records r
		LEFT JOIN payments p ON p.record_id = r.id
		GROUP BY r.id
		HAVING r.total_rent_billed + r.hamali_payable - COALESCE(SUM(p.amount), 0) > 0
		ORDER BY r.storage_start_date, r.id`

	rows, err := r.pool.Query(ctx, query)
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

// OpenTotals returns the count and bag sum of open records.
func (r *Repository) OpenTotals(ctx context.Context) (int, int, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(bags_stored), 0)
		FROM storage_records
		WHERE storage_end_date IS NULL`

	var records, bags int
	err := r.pool.QueryRow(ctx, query).Scan(&records, &bags)
	return records, bags, err
}

// CollectedSince sums payments received on or after the cutoff.
func (r *Repository) CollectedSince(ctx context.Context, since time.Time) (float64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE payment_date >= $1`

	var total float64
	err := r.pool.QueryRow(ctx, query, since).Scan(&total)
	return total, err
}
