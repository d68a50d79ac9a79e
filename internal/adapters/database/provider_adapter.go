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
)

// ProviderAdapter implements the ProviderRepository interface
type ProviderAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewProviderAdapter creates a new provider adapter
func NewProviderAdapter(client *postgres.Client) repositories.ProviderRepository {
	return &ProviderAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetByID retrieves a provider by ID
func (a *ProviderAdapter) GetByID(ctx context.Context, id string) (*entities.Provider, error) {
	query, args, err := a.db.Select(
		"id", "billing_name", "dba_name", "billing_address1", "billing_address2",
		"billing_city", "billing_state", "billing_postal_code", "tin", "npi",
		"network_status",
	).From("providers").
		Where(goqu.Ex{"id": id}).
		ToSQL()

	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	provider := &entities.Provider{}
	var billingName, dbaName, address1, address2 sql.NullString
	var city, state, postalCode, tin, npi, networkStatus sql.NullString

	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&provider.ID,
		&billingName,
		&dbaName,
		&address1,
		&address2,
		&city,
		&state,
		&postalCode,
		&tin,
		&npi,
		&networkStatus,
	)

	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("provider with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get provider", err)
	}

	if billingName.Valid {
		provider.BillingName = &billingName.String
	}
	if dbaName.Valid {
		provider.DBAName = &dbaName.String
	}
	if address1.Valid {
		provider.BillingAddress1 = &address1.String
	}
	if address2.Valid {
		provider.BillingAddress2 = &address2.String
	}
	if city.Valid {
		provider.BillingCity = &city.String
	}
	if state.Valid {
		provider.BillingState = &state.String
	}
	if postalCode.Valid {
		provider.BillingPostalCode = &postalCode.String
	}
	if tin.Valid {
		provider.TIN = &tin.String
	}
	if npi.Valid {
		provider.NPI = &npi.String
	}
	if networkStatus.Valid {
		provider.NetworkStatus = &networkStatus.String
	}

	return provider, nil
}
