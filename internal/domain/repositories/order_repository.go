package repositories

import (
	"context"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
)

// OrderRepository defines the interface for order data operations
type OrderRepository interface {
	// GetByID retrieves an order by ID
	GetByID(ctx context.Context, orderID string) (*entities.Order, error)

	// ListLineItems retrieves an order's line items ordered by line number
	ListLineItems(ctx context.Context, orderID string) ([]*entities.OrderLineItem, error)

	// ListCandidates retrieves mapping candidates: orders with at least
	// one line item whose date of service falls inside the filter's
	// year range, with their service dates and CPT codes
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]*entities.OrderCandidate, error)
}

// CandidateFilter bounds the orders considered during bill mapping
type CandidateFilter struct {
	ServiceYearStart int
	ServiceYearEnd   int
}

// ProviderRepository defines the interface for provider data operations
type ProviderRepository interface {
	// GetByID retrieves a provider by ID
	GetByID(ctx context.Context, id string) (*entities.Provider, error)
}
