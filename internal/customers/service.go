package customers

import (
	"context"
	"errors"
	"strings"

	"github.com/godown-erp/godown-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	CreateCustomer(ctx context.Context, input CreateCustomerInput) (*Customer, error)
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	UpdateCustomer(ctx context.Context, id int64, input UpdateCustomerInput) (*Customer, error)
	ListCustomers(ctx context.Context, search string, page shared.Pagination) ([]Customer, int, error)
	GetBalanceSummary(ctx context.Context, customerID int64) (*BalanceSummary, error)
}

// Service coordinates customer master data operations.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateCustomer registers a depositor.
func (s *Service) CreateCustomer(ctx context.Context, input CreateCustomerInput) (*Customer, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, errors.New("customers: name required")
	}
	return s.repo.CreateCustomer(ctx, input)
}

// GetCustomer fetches a customer by ID.
func (s *Service) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// UpdateCustomer edits customer master fields.
func (s *Service) UpdateCustomer(ctx context.Context, id int64, input UpdateCustomerInput) (*Customer, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, errors.New("customers: name required")
	}
	return s.repo.UpdateCustomer(ctx, id, input)
}

// ListCustomers searches customers by name or village.
func (s *Service) ListCustomers(ctx context.Context, search string, page, perPage int) ([]Customer, shared.Pagination, error) {
	pagination := shared.NewPagination(page, perPage, 0)
	out, total, err := s.repo.ListCustomers(ctx, strings.TrimSpace(search), pagination)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(page, perPage, total), nil
}

// GetBalanceSummary aggregates the customer's position. The customer must
// exist; a summary of zeroes is valid for one with no records.
func (s *Service) GetBalanceSummary(ctx context.Context, id int64) (*BalanceSummary, error) {
	if _, err := s.repo.GetCustomer(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetBalanceSummary(ctx, id)
}
