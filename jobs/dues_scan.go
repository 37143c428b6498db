package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/godown-erp/godown-erp/internal/billing"
)

// DuesScanner flags open records whose next withdrawal would bill at the
// yearly rate, so the operator can warn depositors before the jump.
type DuesScanner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDuesScanner constructs the scanner.
func NewDuesScanner(pool *pgxpool.Pool, logger *slog.Logger) *DuesScanner {
	return &DuesScanner{pool: pool, logger: logger}
}

// Run logs open records at or within one month of the six month boundary.
func (s *DuesScanner) Run(ctx context.Context, asOf time.Time) error {
	if asOf.IsZero() {
		asOf = time.Now()
	}

	query := `
		SELECT id, record_number, customer_id, bags_stored, storage_start_date
		FROM storage_records
		WHERE storage_end_date IS NULL AND bags_stored > 0
		ORDER BY storage_start_date, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	approaching, crossed := 0, 0
	for rows.Next() {
		var (
			id, customerID int64
			number         string
			bags           int
			start          time.Time
		)
		if err := rows.Scan(&id, &number, &customerID, &bags, &start); err != nil {
			return err
		}
		months := billing.MonthsStored(start, asOf)
		switch {
		case months == 6:
			approaching++
			s.logger.Info("record at tier boundary",
				slog.Int64("record_id", id),
				slog.String("record_number", number),
				slog.Int64("customer_id", customerID),
				slog.Int("bags_stored", bags),
				slog.Int("months_stored", months),
			)
		case months > 6:
			crossed++
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.logger.Info("dues scan complete",
		slog.Time("as_of", asOf),
		slog.Int("at_boundary", approaching),
		slog.Int("past_boundary", crossed),
	)
	return nil
}
