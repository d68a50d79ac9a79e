package repositories

import (
	"context"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
)

// ReferenceRepository defines the interface for CPT category and rate
// reference lookups. Rate lookups use first-match semantics and return
// (nil, nil) when no row matches; a missing rate is an expected outcome,
// not an error.
type ReferenceRepository interface {
	// CategoriesFor retrieves (category, subcategory) pairs for the
	// given CPT codes. Codes absent from the reference are absent from
	// the result map.
	CategoriesFor(ctx context.Context, cptCodes []string) (map[string]entities.CPTCategory, error)

	// InNetworkRate looks up an in-network rate by provider TIN
	// (compared dash/space-insensitively), CPT code, and effective
	// modifier. A nil modifier matches only rows with no modifier.
	InNetworkRate(ctx context.Context, tin, cptCode string, modifier *string) (*float64, error)

	// OutOfNetworkRate looks up an out-of-network rate by order ID,
	// CPT code, and effective modifier.
	OutOfNetworkRate(ctx context.Context, orderID, cptCode string, modifier *string) (*float64, error)
}
