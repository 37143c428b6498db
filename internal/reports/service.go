package reports

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/godown-erp/godown-erp/internal/billing"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	StockByCrop(ctx context.Context) ([]StockPosition, error)
	ListOutstanding(ctx context.Context) ([]billing.PendingRecord, error)
	OpenTotals(ctx context.Context) (int, int, error)
	CollectedSince(ctx context.Context, since time.Time) (float64, error)
}

// Service computes reporting aggregates.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// StockByCrop returns stored quantities per crop.
func (s *Service) StockByCrop(ctx context.Context) ([]StockPosition, error) {
	return s.repo.StockByCrop(ctx)
}

// CalculateDuesAging groups outstanding dues by months in store. Bucket
// edges sit at three, six and twelve months so the six month edge shows
// dues about to roll onto the yearly rate.
func (s *Service) CalculateDuesAging(ctx context.Context, asOf time.Time) (DuesAgingBucket, error) {
	outstanding, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return DuesAgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	var bucket DuesAgingBucket
	for _, pr := range outstanding {
		months := billing.MonthsStored(pr.StorageStartDate, asOf)
		switch {
		case months <= 3:
			bucket.UpTo3Months += pr.TotalDue
		case months <= 6:
			bucket.UpTo6Months += pr.TotalDue
		case months <= 12:
			bucket.UpTo12Months += pr.TotalDue
		default:
			bucket.Over12Months += pr.TotalDue
		}
	}
	return bucket, nil
}

// GetDashboardSummary assembles the landing page figures. The independent
// aggregates load concurrently.
func (s *Service) GetDashboardSummary(ctx context.Context, asOf time.Time) (DashboardSummary, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	summary := DashboardSummary{AsOf: asOf}
	monthStart := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stock, err := s.repo.StockByCrop(ctx)
		if err != nil {
			return err
		}
		summary.Stock = stock
		return nil
	})

	g.Go(func() error {
		records, bags, err := s.repo.OpenTotals(ctx)
		if err != nil {
			return err
		}
		summary.OpenRecords = records
		summary.BagsStored = bags
		return nil
	})

	g.Go(func() error {
		collected, err := s.repo.CollectedSince(ctx, monthStart)
		if err != nil {
			return err
		}
		summary.CollectedThisMonth = collected
		return nil
	})

	g.Go(func() error {
		aging, err := s.CalculateDuesAging(ctx, asOf)
		if err != nil {
			return err
		}
		summary.DuesAging = aging
		summary.OutstandingDues = aging.Total()
		return nil
	})

	if err := g.Wait(); err != nil {
		return DashboardSummary{}, err
	}
	return summary, nil
}
