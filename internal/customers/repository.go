package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/godown-erp/godown-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for customers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateCustomer inserts a new customer.
func (r *Repository) CreateCustomer(ctx context.Context, input CreateCustomerInput) (*Customer, error) {
	query := `
		INSERT INTO customers (name, phone, village, notes, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, name, phone, village, notes, created_at`

	var c Customer
	err := r.pool.QueryRow(ctx, query, input.Name, input.Phone, input.Village, input.Notes).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Village, &c.Notes, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCustomer fetches a customer by ID.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	query := `SELECT id, name, phone, village, notes, created_at FROM customers WHERE id = $1`

	var c Customer
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Village, &c.Notes, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpdateCustomer edits customer master fields.
func (r *Repository) UpdateCustomer(ctx context.Context, id int64, input UpdateCustomerInput) (*Customer, error) {
	query := `
		UPDATE customers
		SET name = $2, phone = $3, village = $4, notes = $5
		WHERE id = $1
		RETURNING id, name, phone, village, notes, created_at`

	var c Customer
	err := r.pool.QueryRow(ctx, query, id, input.Name, input.Phone, input.Village, input.Notes).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Village, &c.Notes, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListCustomers returns customers matching an optional name search.
func (r *Repository) ListCustomers(ctx context.Context, search string, page shared.Pagination) ([]Customer, int, error) {
	where := ``
	args := []any{}
	argNum := 1
	if search != "" {
		where = `WHERE name ILIKE '%' || $1 || '%' OR village ILIKE '%' || $1 || '%'`
		args = append(args, search)
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, name, phone, village, notes, created_at FROM customers ` + where +
		fmt.Sprintf(` ORDER BY name, id LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, page.PerPage, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Village, &c.Notes, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// GetBalanceSummary aggregates a customer's stored bags, billed charges and
// collections in one query.
func (r *Repository) GetBalanceSummary(ctx context.Context, customerID int64) (*BalanceSummary, error) {
	query := `
		SELECT
			COUNT(r.id),
			COUNT(r.id) FILTER (WHERE r.storage_end_date IS NULL),
			COALESCE(SUM(r.bags_stored), 0),
			COALESCE(SUM(r.total_rent_billed), 0),
			COALESCE(SUM(r.hamali_payable), 0),
			COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.customer_id = $1), 0)
		FROM storage_records r
		WHERE r.customer_id = $1`

	s := BalanceSummary{CustomerID: customerID}
	err := r.pool.QueryRow(ctx, query, customerID).Scan(
		&s.TotalRecords, &s.OpenRecords, &s.BagsStored,
		&s.TotalRentBilled, &s.TotalHamali, &s.TotalPaid,
	)
	if err != nil {
		return nil, err
	}
	s.TotalDue = s.TotalRentBilled + s.TotalHamali - s.TotalPaid
	if s.TotalDue < 0 {
		s.TotalDue = 0
	}
	return &s, nil
}
