package repositories

import (
	"context"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
)

// BillRepository defines the interface for provider bill data operations
type BillRepository interface {
	// GetByID retrieves a provider bill by ID
	GetByID(ctx context.Context, id string) (*entities.ProviderBill, error)

	// ListByStatus retrieves bills in a lifecycle state, oldest first
	ListByStatus(ctx context.Context, status entities.BillStatus, limit int) ([]*entities.ProviderBill, error)

	// ListLineItems retrieves a bill's line items ordered by date of service
	ListLineItems(ctx context.Context, billID string) ([]*entities.BillLineItem, error)

	// ApplyOutcome applies one bill's full adjudication outcome (bill
	// status/action/error, line-item decisions, and order line-item
	// reviewed flags) in a single transaction
	ApplyOutcome(ctx context.Context, outcome *entities.AdjudicationOutcome) error

	// ApplyMapping applies a mapping outcome, including the duplicate
	// bill counter increment, in a single transaction
	ApplyMapping(ctx context.Context, outcome *entities.MappingOutcome) error

	// Reset reverts a processed bill to MAPPED, clears action and
	// error, and resets its line-item decisions, in a single transaction
	Reset(ctx context.Context, billID string) error

	// ResetMatching resets every bill matching the filter and returns
	// the number of bills reset
	ResetMatching(ctx context.Context, filter ResetFilter) (int, error)
}

// ResetFilter selects processed bills for reprocessing
type ResetFilter struct {
	Status        entities.BillStatus
	Action        entities.BillAction
	ErrorContains string
	Limit         int
}
