package database

import (
	"context"
	"database/sql"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
	"github.com/cdx-ehr/billreview/internal/infrastructure/clients/postgres"
	apperrors "github.com/cdx-ehr/billreview/pkg/errors"
	"github.com/doug-martin/goqu/v9"
)

// ReferenceAdapter implements the ReferenceRepository interface against
// the dim_proc, ppo_rates and ota_rates tables.
type ReferenceAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewReferenceAdapter creates a new reference data adapter
func NewReferenceAdapter(client *postgres.Client) repositories.ReferenceRepository {
	return &ReferenceAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// CategoriesFor retrieves (category, subcategory) pairs for the given
// CPT codes. Codes absent from dim_proc are absent from the result.
func (a *ReferenceAdapter) CategoriesFor(ctx context.Context, cptCodes []string) (map[string]entities.CPTCategory, error) {
	categories := make(map[string]entities.CPTCategory)
	if len(cptCodes) == 0 {
		return categories, nil
	}

	query, args, err := a.db.Select("proc_cd", "category", "subcategory").
		From("dim_proc").
		Where(goqu.Ex{"proc_cd": cptCodes}).
		ToSQL()

	if err != nil {
		return nil, apperrors.NewInternalError("failed to build category query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get cpt categories", err)
	}
	defer rows.Close()

	for rows.Next() {
		var procCode string
		var category, subcategory sql.NullString

		if err := rows.Scan(&procCode, &category, &subcategory); err != nil {
			return nil, apperrors.NewInternalError("failed to scan cpt category", err)
		}

		categories[procCode] = entities.CPTCategory{
			Category:    category.String,
			Subcategory: subcategory.String,
		}
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating cpt categories", err)
	}

	return categories, nil
}

// InNetworkRate looks up an in-network rate by provider TIN, CPT code
// and effective modifier. TINs are compared with dashes and spaces
// stripped on both sides. First match wins; no match is (nil, nil).
func (a *ReferenceAdapter) InNetworkRate(ctx context.Context, tin, cptCode string, modifier *string) (*float64, error) {
	ds := a.db.Select("rate").From("ppo_rates").
		Where(
			goqu.L("REPLACE(REPLACE(tin, '-', ''), ' ', '') = ?", entities.CleanTIN(tin)),
			goqu.Ex{"proc_cd": cptCode},
		)

	ds = withModifier(ds, modifier)

	query, args, err := ds.Limit(1).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build in-network rate query", err)
	}

	return a.scanRate(ctx, query, args...)
}

// OutOfNetworkRate looks up an out-of-network rate by order ID, CPT
// code and effective modifier. First match wins; no match is (nil, nil).
func (a *ReferenceAdapter) OutOfNetworkRate(ctx context.Context, orderID, cptCode string, modifier *string) (*float64, error) {
	ds := a.db.Select("rate").From("ota_rates").
		Where(goqu.Ex{"order_id": orderID, "cpt": cptCode})

	ds = withModifier(ds, modifier)

	query, args, err := ds.Limit(1).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build out-of-network rate query", err)
	}

	return a.scanRate(ctx, query, args...)
}

func (a *ReferenceAdapter) scanRate(ctx context.Context, query string, args ...interface{}) (*float64, error) {
	var rate float64
	err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&rate)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get rate", err)
	}

	return &rate, nil
}

// withModifier restricts a rate dataset to the effective modifier. A
// nil modifier matches only rows carrying no modifier.
func withModifier(ds *goqu.SelectDataset, modifier *string) *goqu.SelectDataset {
	if modifier == nil {
		return ds.Where(goqu.L("(modifier IS NULL OR modifier = '')"))
	}
	return ds.Where(goqu.Ex{"modifier": *modifier})
}
