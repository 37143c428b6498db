package billing

import (
	"time"
)

// OutflowImpact is the result of applying a withdrawal to a record snapshot.
type OutflowImpact struct {
	Updates  RecordUpdate
	IsClosed bool
}

// CalculateOutflowImpact computes the replacement field values for a record
// after withdrawing bags. It never clamps: a quantity outside
// (0, BagsStored] is a *QuantityError, because silently adjusting it would
// break BagsStored + BagsOut == BagsIn.
func CalculateOutflowImpact(record StorageRecord, bagsWithdrawn int, rentCharged float64, withdrawalDate time.Time) (OutflowImpact, error) {
	if bagsWithdrawn <= 0 || bagsWithdrawn > record.BagsStored {
		return OutflowImpact{}, &QuantityError{
			RecordID:  record.ID,
			Requested: bagsWithdrawn,
			Available: record.BagsStored,
			Op:        "withdrawal",
		}
	}

	updates := RecordUpdate{
		BagsStored:      record.BagsStored - bagsWithdrawn,
		BagsOut:         record.BagsOut + bagsWithdrawn,
		TotalRentBilled: round2(record.TotalRentBilled + rentCharged),
		BillingCycle:    record.BillingCycle,
	}

	impact := OutflowImpact{Updates: updates}
	if updates.BagsStored == 0 {
		endDate := withdrawalDate
		impact.Updates.StorageEndDate = &endDate
		impact.Updates.SetEndDate = true
		impact.Updates.BillingCycle = CycleCompleted
		impact.IsClosed = true
	}
	return impact, nil
}

// CalculateUpdateImpact recomputes record fields when an existing withdrawal
// transaction is edited. The bag delta applies symmetrically to stored/out
// counts and the old rent contribution is replaced, not added.
func CalculateUpdateImpact(record StorageRecord, oldTxn, newTxn WithdrawalTxn) (RecordUpdate, error) {
	if newTxn.Bags <= 0 {
		return RecordUpdate{}, &QuantityError{
			RecordID:  record.ID,
			Requested: newTxn.Bags,
			Available: record.BagsStored + oldTxn.Bags,
			Op:        "withdrawal edit",
		}
	}
	delta := newTxn.Bags - oldTxn.Bags
	bagsStored := record.BagsStored - delta
	if bagsStored < 0 {
		return RecordUpdate{}, &QuantityError{
			RecordID:  record.ID,
			Requested: newTxn.Bags,
			Available: record.BagsStored + oldTxn.Bags,
			Op:        "withdrawal edit",
		}
	}

	updates := RecordUpdate{
		BagsStored:      bagsStored,
		BagsOut:         record.BagsOut + delta,
		TotalRentBilled: round2(record.TotalRentBilled - oldTxn.Rent + newTxn.Rent),
		BillingCycle:    record.BillingCycle,
	}
	switch {
	case bagsStored == 0:
		endDate := newTxn.Date
		updates.StorageEndDate = &endDate
		updates.SetEndDate = true
		updates.BillingCycle = CycleCompleted
	case record.IsClosed():
		// The edit restored bags to a closed record; it reopens.
		updates.ClearEndDate = true
		updates.BillingCycle = CycleInitial
	}
	return updates, nil
}

// CalculateReversalImpact restores a record's state after undoing a
// withdrawal. Reversing any amount reopens the record: the end date clears
// and the billing cycle returns to its pre-completion label even if other
// withdrawals remain.
func CalculateReversalImpact(record StorageRecord, transactionBags int, transactionRent float64) (RecordUpdate, error) {
	if transactionBags <= 0 || transactionBags > record.BagsOut {
		return RecordUpdate{}, &QuantityError{
			RecordID:  record.ID,
			Requested: transactionBags,
			Available: record.BagsOut,
			Op:        "reversal",
		}
	}
	rentBilled := round2(record.TotalRentBilled - transactionRent)
	if rentBilled < 0 {
		return RecordUpdate{}, ErrRentBelowZero
	}

	return RecordUpdate{
		BagsStored:      record.BagsStored + transactionBags,
		BagsOut:         record.BagsOut - transactionBags,
		TotalRentBilled: rentBilled,
		BillingCycle:    CycleInitial,
		ClearEndDate:    true,
	}, nil
}
