package billing

import (
	"sort"
)

// Allocation is one record's share of a distributed payment.
type Allocation struct {
	RecordID     int64
	RecordNumber string
	Amount       float64
}

// AllocationPlan is the outcome of distributing a payment FIFO across
// pending records. Unallocated is non-zero only when the payment exceeds
// the total dues supplied; whether that remainder is rejected or kept as a
// customer credit is the caller's decision.
type AllocationPlan struct {
	Allocations []Allocation
	Unallocated float64
}

// AllocatePaymentFIFO distributes paymentAmount across pending records,
// oldest storage start date first. Ties keep their input order. Records
// receive at most their outstanding due; once the payment is exhausted no
// further allocations are produced. The input slice is not modified.
func AllocatePaymentFIFO(pending []PendingRecord, paymentAmount float64) (AllocationPlan, error) {
	if paymentAmount <= 0 {
		return AllocationPlan{}, ErrNegativePayment
	}

	ordered := make([]PendingRecord, len(pending))
	copy(ordered, pending)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StorageStartDate.Before(ordered[j].StorageStartDate)
	})

	plan := AllocationPlan{}
	remaining := paymentAmount
	for _, rec := range ordered {
		if remaining <= 0 {
			break
		}
		if rec.TotalDue <= 0 {
			continue
		}
		allocated := rec.TotalDue
		if remaining < allocated {
			allocated = remaining
		}
		allocated = round2(allocated)
		plan.Allocations = append(plan.Allocations, Allocation{
			RecordID:     rec.ID,
			RecordNumber: rec.RecordNumber,
			Amount:       allocated,
		})
		remaining = round2(remaining - allocated)
	}
	plan.Unallocated = remaining
	return plan, nil
}
