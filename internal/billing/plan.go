package billing

import (
	"sort"
	"time"
)

// PlannedOutflow is one record's contribution to a bulk withdrawal.
type PlannedOutflow struct {
	Record    StorageRecord
	Take      int
	Rent      float64
	IsClosing bool
}

// BulkOutflowPlan is a deterministic preview of a multi-record withdrawal.
// Impossible is set when the eligible records cannot cover the target; the
// caller must block submission in that case.
type BulkOutflowPlan struct {
	Operations []PlannedOutflow
	TotalRent  float64
	Impossible bool
}

// PlanBulkOutflow consumes open records of a crop oldest-first until
// targetBags are covered. Records in excluded are skipped without changing
// the target, which lets an operator opt specific records out and re-plan;
// identical inputs always produce an identical plan.
func PlanBulkOutflow(records []StorageRecord, cropID int64, targetBags int, asOf time.Time, excluded map[int64]struct{}, tariff Tariff) (BulkOutflowPlan, error) {
	if targetBags <= 0 {
		return BulkOutflowPlan{}, ErrNegativeTarget
	}
	if tariff == nil {
		return BulkOutflowPlan{}, ErrPricingNotConfigured
	}

	eligible := make([]StorageRecord, 0, len(records))
	for _, rec := range records {
		if rec.CropID != cropID || rec.BagsStored <= 0 || rec.StorageEndDate != nil {
			continue
		}
		if _, skip := excluded[rec.ID]; skip {
			continue
		}
		eligible = append(eligible, rec)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].StorageStartDate.Before(eligible[j].StorageStartDate)
	})

	plan := BulkOutflowPlan{}
	remaining := targetBags
	for _, rec := range eligible {
		if remaining <= 0 {
			break
		}
		take := rec.BagsStored
		if remaining < take {
			take = remaining
		}
		pricing, err := tariff.ResolveTariff(rec.CropID)
		if err != nil {
			return BulkOutflowPlan{}, err
		}
		quote, err := CalculateFinalRent(rec, asOf, take, pricing)
		if err != nil {
			return BulkOutflowPlan{}, err
		}
		plan.Operations = append(plan.Operations, PlannedOutflow{
			Record:    rec,
			Take:      take,
			Rent:      quote.Rent,
			IsClosing: take == rec.BagsStored,
		})
		plan.TotalRent = round2(plan.TotalRent + quote.Rent)
		remaining -= take
	}
	plan.Impossible = remaining > 0
	return plan, nil
}
