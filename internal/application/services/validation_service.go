package services

import (
	"fmt"
	"strings"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
)

// ValidationService handles provider completeness and units validation
type ValidationService struct {
	ancillaryCodes entities.AncillaryCodeSet
}

// NewValidationService creates a new validation service
func NewValidationService(ancillaryCodes entities.AncillaryCodeSet) *ValidationService {
	return &ValidationService{
		ancillaryCodes: ancillaryCodes,
	}
}

// providerField pairs a display label with an accessor so missing-field
// messages keep a stable, human-readable order.
type providerField struct {
	label string
	value func(*entities.Provider) *string
}

var requiredProviderFields = []providerField{
	{"Billing Name", func(p *entities.Provider) *string { return p.BillingName }},
	{"Billing Address 1", func(p *entities.Provider) *string { return p.BillingAddress1 }},
	{"Billing Address City", func(p *entities.Provider) *string { return p.BillingCity }},
	{"Billing Address State", func(p *entities.Provider) *string { return p.BillingState }},
	{"Billing Address Postal Code", func(p *entities.Provider) *string { return p.BillingPostalCode }},
	{"TIN", func(p *entities.Provider) *string { return p.TIN }},
	{"Provider Network", func(p *entities.Provider) *string { return p.NetworkStatus }},
	{"DBA Name", func(p *entities.Provider) *string { return p.DBAName }},
}

// ValidateProvider checks that every required provider field is present
// and non-blank. It returns the list of missing field labels; an empty
// list means the provider passed. All-or-nothing, no partial credit.
func (s *ValidationService) ValidateProvider(provider *entities.Provider) []string {
	var missing []string
	for _, field := range requiredProviderFields {
		value := field.value(provider)
		if value == nil || strings.TrimSpace(*value) == "" {
			missing = append(missing, field.label)
		}
	}
	return missing
}

// UnitsViolation is one non-ancillary line item billed with more than
// one unit.
type UnitsViolation struct {
	CPT    string
	Units  int
	LineID int64
}

// ValidateUnits checks every non-ancillary line item for units > 1 and
// returns the violations found.
func (s *ValidationService) ValidateUnits(items []*entities.BillLineItem) []UnitsViolation {
	var violations []UnitsViolation
	for _, item := range items {
		cpt := strings.TrimSpace(item.CPTCode)
		if cpt == "" || s.ancillaryCodes.Contains(cpt) {
			continue
		}
		if item.Units > 1 {
			violations = append(violations, UnitsViolation{
				CPT:    cpt,
				Units:  item.Units,
				LineID: item.ID,
			})
		}
	}
	return violations
}

// FormatUnitsError aggregates units violations into a single message
func FormatUnitsError(violations []UnitsViolation) string {
	details := make([]string, 0, len(violations))
	for _, v := range violations {
		details = append(details, fmt.Sprintf("CPT %s has %d units", v.CPT, v.Units))
	}
	return "Units validation failed: " + strings.Join(details, "; ")
}

// FormatProviderError aggregates missing provider fields into a single message
func FormatProviderError(missing []string) string {
	return "Cannot proceed: Missing required provider fields - " + strings.Join(missing, ", ")
}
