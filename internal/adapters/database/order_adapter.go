package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
	"github.com/cdx-ehr/billreview/internal/infrastructure/clients/postgres"
	apperrors "github.com/cdx-ehr/billreview/pkg/errors"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"
)

// OrderAdapter implements the OrderRepository interface
type OrderAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewOrderAdapter creates a new order adapter
func NewOrderAdapter(client *postgres.Client) repositories.OrderRepository {
	return &OrderAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetByID retrieves an order by ID
func (a *OrderAdapter) GetByID(ctx context.Context, orderID string) (*entities.Order, error) {
	query, args, err := a.db.Select(
		"order_id", "bundle_type", "patient_first_name", "patient_last_name",
		"patient_dob", "provider_id", "fully_paid", "bills_rec",
	).From("orders").
		Where(goqu.Ex{"order_id": orderID}).
		ToSQL()

	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	order := &entities.Order{}
	var bundleType, patientDOB, providerID sql.NullString

	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&order.OrderID,
		&bundleType,
		&order.PatientFirstName,
		&order.PatientLastName,
		&patientDOB,
		&providerID,
		&order.FullyPaid,
		&order.BillsReceived,
	)

	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("order with id %s not found", orderID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get order", err)
	}

	if bundleType.Valid {
		order.BundleType = &bundleType.String
	}
	if patientDOB.Valid {
		order.PatientDOB = &patientDOB.String
	}
	if providerID.Valid {
		order.ProviderID = &providerID.String
	}

	return order, nil
}

// ListLineItems retrieves an order's line items ordered by line number
func (a *OrderAdapter) ListLineItems(ctx context.Context, orderID string) ([]*entities.OrderLineItem, error) {
	query, args, err := a.db.Select(
		"id", "order_id", "cpt", "modifier", "units", "dos", "bill_reviewed",
	).From("order_line_items").
		Where(goqu.Ex{"order_id": orderID}).
		Order(goqu.I("id").Asc()).
		ToSQL()

	if err != nil {
		return nil, apperrors.NewInternalError("failed to build line item query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list order line items", err)
	}
	defer rows.Close()

	var items []*entities.OrderLineItem
	for rows.Next() {
		item := &entities.OrderLineItem{}
		var modifier, billReviewed sql.NullString

		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.CPT,
			&modifier,
			&item.Units,
			&item.DOS,
			&billReviewed,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan order line item", err)
		}

		if modifier.Valid {
			item.Modifier = &modifier.String
		}
		if billReviewed.Valid {
			item.BillReviewed = &billReviewed.String
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating order line items", err)
	}

	return items, nil
}

// ListCandidates retrieves mapping candidates: orders with at least one
// line item whose date of service falls inside the filter's year range,
// with their service dates and CPT codes aggregated per order.
func (a *OrderAdapter) ListCandidates(ctx context.Context, filter repositories.CandidateFilter) ([]*entities.OrderCandidate, error) {
	query, args, err := a.db.Select(
		goqu.I("o.order_id"),
		goqu.I("o.patient_first_name"),
		goqu.I("o.patient_last_name"),
		goqu.L("array_agg(DISTINCT oli.dos)").As("service_dates"),
		goqu.L("array_agg(DISTINCT oli.cpt)").As("cpt_codes"),
	).From(goqu.T("orders").As("o")).
		Join(
			goqu.T("order_line_items").As("oli"),
			goqu.On(goqu.I("oli.order_id").Eq(goqu.I("o.order_id"))),
		).
		Where(goqu.L(
			"EXTRACT(YEAR FROM oli.dos::date) BETWEEN ? AND ?",
			filter.ServiceYearStart, filter.ServiceYearEnd,
		)).
		GroupBy(
			goqu.I("o.order_id"),
			goqu.I("o.patient_first_name"),
			goqu.I("o.patient_last_name"),
		).
		Order(goqu.I("o.order_id").Asc()).
		ToSQL()

	if err != nil {
		return nil, apperrors.NewInternalError("failed to build candidate query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list order candidates", err)
	}
	defer rows.Close()

	var candidates []*entities.OrderCandidate
	for rows.Next() {
		candidate := &entities.OrderCandidate{}
		err := rows.Scan(
			&candidate.OrderID,
			&candidate.PatientFirstName,
			&candidate.PatientLastName,
			pq.Array(&candidate.ServiceDates),
			pq.Array(&candidate.CPTCodes),
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan order candidate", err)
		}
		candidates = append(candidates, candidate)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating order candidates", err)
	}

	return candidates, nil
}
