package providers

import (
	"context"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
)

// ReviewIndex defines the interface for the flagged-bill review index.
// Implementations may be backed by a search engine so reviewers can
// query flagged bills by patient name, CPT code or error text.
type ReviewIndex interface {
	// IndexBill indexes or re-indexes a bill together with its line items
	IndexBill(ctx context.Context, bill *entities.ProviderBill, lines []*entities.BillLineItem) error

	// RemoveBill removes a bill from the index
	RemoveBill(ctx context.Context, billID string) error

	// SearchBills performs a free-text search over indexed bills
	SearchBills(ctx context.Context, query string, limit int) ([]*entities.ProviderBill, error)
}
