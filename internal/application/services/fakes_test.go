package services_test

import (
	"context"
	"fmt"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
	"github.com/cdx-ehr/billreview/pkg/config"
	apperrors "github.com/cdx-ehr/billreview/pkg/errors"
)

// In-memory repository fakes shared by the service tests. They record
// the writes the services apply so tests can assert on persisted
// outcomes without a database.

type fakeBillRepo struct {
	bills     map[string]*entities.ProviderBill
	lineItems map[string][]*entities.BillLineItem

	outcomes []*entities.AdjudicationOutcome
	mappings []*entities.MappingOutcome
	resets   []string

	resetMatchingCount int
	listLineItemsPanic bool
}

func newFakeBillRepo() *fakeBillRepo {
	return &fakeBillRepo{
		bills:     make(map[string]*entities.ProviderBill),
		lineItems: make(map[string][]*entities.BillLineItem),
	}
}

func (f *fakeBillRepo) GetByID(_ context.Context, id string) (*entities.ProviderBill, error) {
	bill, ok := f.bills[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("provider bill with ID %s not found", id))
	}
	copied := *bill
	return &copied, nil
}

func (f *fakeBillRepo) ListByStatus(_ context.Context, status entities.BillStatus, limit int) ([]*entities.ProviderBill, error) {
	var bills []*entities.ProviderBill
	for _, bill := range f.bills {
		if bill.Status == status {
			copied := *bill
			bills = append(bills, &copied)
		}
		if limit > 0 && len(bills) >= limit {
			break
		}
	}
	return bills, nil
}

func (f *fakeBillRepo) ListLineItems(_ context.Context, billID string) ([]*entities.BillLineItem, error) {
	if f.listLineItemsPanic {
		panic("corrupt line item row")
	}
	return f.lineItems[billID], nil
}

func (f *fakeBillRepo) ApplyOutcome(_ context.Context, outcome *entities.AdjudicationOutcome) error {
	f.outcomes = append(f.outcomes, outcome)
	if bill, ok := f.bills[outcome.BillID]; ok {
		bill.Status = outcome.Status
		bill.Action = outcome.Action
		bill.LastError = outcome.LastError
	}
	return nil
}

func (f *fakeBillRepo) ApplyMapping(_ context.Context, outcome *entities.MappingOutcome) error {
	f.mappings = append(f.mappings, outcome)
	if bill, ok := f.bills[outcome.BillID]; ok {
		bill.Status = outcome.Status
		bill.ClaimID = outcome.ClaimID
		bill.Action = outcome.Action
		bill.LastError = outcome.LastError
	}
	return nil
}

func (f *fakeBillRepo) Reset(_ context.Context, billID string) error {
	f.resets = append(f.resets, billID)
	if bill, ok := f.bills[billID]; ok {
		bill.Status = entities.BillStatusMapped
		bill.Action = nil
		bill.LastError = nil
	}
	return nil
}

func (f *fakeBillRepo) ResetMatching(_ context.Context, _ repositories.ResetFilter) (int, error) {
	return f.resetMatchingCount, nil
}

func (f *fakeBillRepo) lastOutcome() *entities.AdjudicationOutcome {
	if len(f.outcomes) == 0 {
		return nil
	}
	return f.outcomes[len(f.outcomes)-1]
}

func (f *fakeBillRepo) lastMapping() *entities.MappingOutcome {
	if len(f.mappings) == 0 {
		return nil
	}
	return f.mappings[len(f.mappings)-1]
}

type fakeOrderRepo struct {
	orders     map[string]*entities.Order
	lineItems  map[string][]*entities.OrderLineItem
	candidates []*entities.OrderCandidate
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:    make(map[string]*entities.Order),
		lineItems: make(map[string][]*entities.OrderLineItem),
	}
}

func (f *fakeOrderRepo) GetByID(_ context.Context, orderID string) (*entities.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("order with ID %s not found", orderID))
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderRepo) ListLineItems(_ context.Context, orderID string) ([]*entities.OrderLineItem, error) {
	return f.lineItems[orderID], nil
}

func (f *fakeOrderRepo) ListCandidates(_ context.Context, _ repositories.CandidateFilter) ([]*entities.OrderCandidate, error) {
	return f.candidates, nil
}

type fakeProviderRepo struct {
	providers map[string]*entities.Provider
}

func newFakeProviderRepo() *fakeProviderRepo {
	return &fakeProviderRepo{providers: make(map[string]*entities.Provider)}
}

func (f *fakeProviderRepo) GetByID(_ context.Context, id string) (*entities.Provider, error) {
	provider, ok := f.providers[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("provider with ID %s not found", id))
	}
	copied := *provider
	return &copied, nil
}

type fakeReferenceRepo struct {
	categories map[string]entities.CPTCategory

	// Rate tables keyed by rateKey. A missing key is a missing rate,
	// matching the (nil, nil) repository contract.
	inNetwork    map[string]float64
	outOfNetwork map[string]float64
}

func newFakeReferenceRepo() *fakeReferenceRepo {
	return &fakeReferenceRepo{
		categories:   make(map[string]entities.CPTCategory),
		inNetwork:    make(map[string]float64),
		outOfNetwork: make(map[string]float64),
	}
}

func rateKey(scope, cpt string, modifier *string) string {
	mod := ""
	if modifier != nil {
		mod = *modifier
	}
	return scope + "|" + cpt + "|" + mod
}

func (f *fakeReferenceRepo) CategoriesFor(_ context.Context, cptCodes []string) (map[string]entities.CPTCategory, error) {
	result := make(map[string]entities.CPTCategory)
	for _, cpt := range cptCodes {
		if category, ok := f.categories[cpt]; ok {
			result[cpt] = category
		}
	}
	return result, nil
}

func (f *fakeReferenceRepo) InNetworkRate(_ context.Context, tin, cptCode string, modifier *string) (*float64, error) {
	if rate, ok := f.inNetwork[rateKey(entities.CleanTIN(tin), cptCode, modifier)]; ok {
		return &rate, nil
	}
	return nil, nil
}

func (f *fakeReferenceRepo) OutOfNetworkRate(_ context.Context, orderID, cptCode string, modifier *string) (*float64, error) {
	if rate, ok := f.outOfNetwork[rateKey(orderID, cptCode, modifier)]; ok {
		return &rate, nil
	}
	return nil, nil
}

func strPtr(s string) *string {
	return &s
}

// completeProvider returns a provider that passes completeness
// validation with the given network status.
func completeProvider(id, network string) *entities.Provider {
	return &entities.Provider{
		ID:                id,
		BillingName:       strPtr("Summit Imaging LLC"),
		DBAName:           strPtr("Summit Imaging"),
		BillingAddress1:   strPtr("100 Main St"),
		BillingCity:       strPtr("Denver"),
		BillingState:      strPtr("CO"),
		BillingPostalCode: strPtr("80203"),
		TIN:               strPtr("12-3456789"),
		NetworkStatus:     strPtr(network),
	}
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		NameMatchThreshold: 0.85,
		DateWindowDays:     21,
		ServiceYearStart:   2024,
		ServiceYearEnd:     2025,
		DefaultBatchLimit:  100,
	}
}

func defaultAncillaries() entities.AncillaryCodeSet {
	return entities.LoadAncillaryCodeSet("")
}
