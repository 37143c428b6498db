// Package customers manages depositor master data and balance summaries.
package customers

import (
	"errors"
	"time"
)

// Customer is a depositor storing goods in the warehouse.
type Customer struct {
	ID        int64
	Name      string
	Phone     string
	Village   string
	Notes     string
	CreatedAt time.Time
}

// CreateCustomerInput carries fields for a new customer.
type CreateCustomerInput struct {
	Name    string
	Phone   string
	Village string
	Notes   string
}

// UpdateCustomerInput carries editable customer fields.
type UpdateCustomerInput struct {
	Name    string
	Phone   string
	Village string
	Notes   string
}

// BalanceSummary aggregates a customer's position across all records.
type BalanceSummary struct {
	CustomerID      int64
	OpenRecords     int
	TotalRecords    int
	BagsStored      int
	TotalRentBilled float64
	TotalHamali     float64
	TotalPaid       float64
	TotalDue        float64
}

// ErrCustomerNotFound indicates the customer does not exist.
var ErrCustomerNotFound = errors.New("customers: customer not found")
