package jobs

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IntegrityChecker scans storage records for broken bag arithmetic. Every
// record must satisfy bags_in = bags_stored + bags_out, and a closed
// record must hold zero bags.
type IntegrityChecker struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewIntegrityChecker constructs the checker.
func NewIntegrityChecker(pool *pgxpool.Pool, logger *slog.Logger) *IntegrityChecker {
	return &IntegrityChecker{pool: pool, logger: logger}
}

// Run reports every record violating the invariants. Violations are
// logged, not repaired: a broken record means a bug upstream and needs
// eyes before data surgery.
func (c *IntegrityChecker) Run(ctx context.Context) error {
	query := `
		SELECT id, record_number, bags_in, bags_stored, bags_out,
		       total_rent_billed, storage_end_date IS NOT NULL
		FROM storage_records
		WHERE bags_in <> bags_stored + bags_out
		   OR bags_stored < 0
		   OR bags_out < 0
		   OR total_rent_billed < 0
		   OR (storage_end_date IS NOT NULL AND bags_stored > 0)
		ORDER BY id`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	violations := 0
	for rows.Next() {
		var (
			id                          int64
			number                      string
			bagsIn, bagsStored, bagsOut int
			rentBilled                  float64
			closed                      bool
		)
		if err := rows.Scan(&id, &number, &bagsIn, &bagsStored, &bagsOut, &rentBilled, &closed); err != nil {
			return err
		}
		violations++
		c.logger.Error("storage record integrity violation",
			slog.Int64("record_id", id),
			slog.String("record_number", number),
			slog.Int("bags_in", bagsIn),
			slog.Int("bags_stored", bagsStored),
			slog.Int("bags_out", bagsOut),
			slog.Float64("total_rent_billed", rentBilled),
			slog.Bool("closed", closed),
		)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if violations == 0 {
		c.logger.Info("storage integrity scan clean")
	} else {
		c.logger.Warn("storage integrity scan found violations", slog.Int("count", violations))
	}
	return nil
}
