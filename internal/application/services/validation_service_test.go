package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cdx-ehr/billreview/internal/application/services"
	"github.com/cdx-ehr/billreview/internal/domain/entities"
)

func TestValidationService_ValidateProvider_Complete(t *testing.T) {
	svc := services.NewValidationService(defaultAncillaries())

	missing := svc.ValidateProvider(completeProvider("prov-1", string(entities.NetworkInNetwork)))

	assert.Empty(t, missing)
}

func TestValidationService_ValidateProvider_MissingFields(t *testing.T) {
	svc := services.NewValidationService(defaultAncillaries())

	provider := completeProvider("prov-1", string(entities.NetworkInNetwork))
	provider.TIN = nil
	provider.DBAName = strPtr("   ")

	missing := svc.ValidateProvider(provider)

	assert.Equal(t, []string{"TIN", "DBA Name"}, missing)
}

func TestValidationService_ValidateProvider_AllMissing(t *testing.T) {
	svc := services.NewValidationService(defaultAncillaries())

	missing := svc.ValidateProvider(&entities.Provider{ID: "prov-1"})

	assert.Equal(t, []string{
		"Billing Name",
		"Billing Address 1",
		"Billing Address City",
		"Billing Address State",
		"Billing Address Postal Code",
		"TIN",
		"Provider Network",
		"DBA Name",
	}, missing)
}

func TestValidationService_ValidateUnits(t *testing.T) {
	svc := services.NewValidationService(defaultAncillaries())

	items := []*entities.BillLineItem{
		{ID: 1, CPTCode: "99213", Units: 1},
		{ID: 2, CPTCode: "73221", Units: 3},
		{ID: 3, CPTCode: "36415", Units: 5}, // ancillary, exempt
		{ID: 4, CPTCode: "  ", Units: 2},    // blank CPT, skipped
	}

	violations := svc.ValidateUnits(items)

	assert.Len(t, violations, 1)
	assert.Equal(t, "73221", violations[0].CPT)
	assert.Equal(t, 3, violations[0].Units)
	assert.Equal(t, int64(2), violations[0].LineID)
}

func TestValidationService_ValidateUnits_NoViolations(t *testing.T) {
	svc := services.NewValidationService(defaultAncillaries())

	violations := svc.ValidateUnits([]*entities.BillLineItem{
		{ID: 1, CPTCode: "99213", Units: 1},
		{ID: 2, CPTCode: "73221", Units: 1},
	})

	assert.Empty(t, violations)
}

func TestFormatUnitsError(t *testing.T) {
	message := services.FormatUnitsError([]services.UnitsViolation{
		{CPT: "73221", Units: 3},
		{CPT: "99213", Units: 2},
	})

	assert.Equal(t, "Units validation failed: CPT 73221 has 3 units; CPT 99213 has 2 units", message)
}

func TestFormatProviderError(t *testing.T) {
	message := services.FormatProviderError([]string{"TIN", "DBA Name"})

	assert.Equal(t, "Cannot proceed: Missing required provider fields - TIN, DBA Name", message)
}
