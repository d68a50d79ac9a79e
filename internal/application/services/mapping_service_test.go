package services_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cdx-ehr/billreview/internal/application/services"
	"github.com/cdx-ehr/billreview/internal/domain/entities"
)

func newMappingFixture() (*fakeBillRepo, *fakeOrderRepo, *services.MappingService) {
	bills := newFakeBillRepo()
	orders := newFakeOrderRepo()
	svc := services.NewMappingService(bills, orders, nil, testEngineConfig())
	return bills, orders, svc
}

func receivedBill(id, patientName string, dates ...string) (*entities.ProviderBill, []*entities.BillLineItem) {
	bill := &entities.ProviderBill{
		ID:          id,
		Status:      entities.BillStatusReceived,
		PatientName: patientName,
	}
	items := make([]*entities.BillLineItem, 0, len(dates))
	for i, date := range dates {
		items = append(items, &entities.BillLineItem{
			ID:             int64(i + 1),
			ProviderBillID: id,
			CPTCode:        "73221",
			Units:          1,
			DateOfService:  date,
		})
	}
	return bill, items
}

func TestMappingService_MapBill_Success(t *testing.T) {
	bills, orders, svc := newMappingFixture()

	bill, items := receivedBill("bill-1", "John Doe", "2024-03-15")
	bills.bills[bill.ID] = bill
	bills.lineItems[bill.ID] = items
	orders.orders["order-1"] = &entities.Order{OrderID: "order-1"}
	orders.candidates = []*entities.OrderCandidate{{
		OrderID:          "order-1",
		PatientFirstName: "John",
		PatientLastName:  "Doe",
		ServiceDates:     []string{"2024-03-15"},
		CPTCodes:         []string{"73221"},
	}}

	result, err := svc.MapBill(context.Background(), "bill-1")

	assert.NoError(t, err)
	assert.Equal(t, entities.BillStatusMapped, result.Status)
	assert.Equal(t, "order-1", result.OrderID)

	mapping := bills.lastMapping()
	assert.Equal(t, "order-1", *mapping.ClaimID)
	assert.Equal(t, entities.ActionToReview, *mapping.Action)
	assert.False(t, mapping.IncrementOrderBillCount)
}

func TestMappingService_MapBill_SimilarityThresholdBoundary(t *testing.T) {
	// Single-token names built so the token-set similarity lands
	// exactly on either side of the 0.85 threshold.
	atThreshold := strings.Repeat("a", 17)
	atThresholdVariant := strings.Repeat("a", 17) + strings.Repeat("b", 6) // 0.85
	belowThreshold := strings.Repeat("a", 21)
	belowThresholdVariant := strings.Repeat("a", 21) + strings.Repeat("b", 8) // 0.84

	cases := []struct {
		name       string
		billName   string
		orderFirst string
		want       entities.BillStatus
	}{
		{"at threshold maps", atThreshold, atThresholdVariant, entities.BillStatusMapped},
		{"below threshold does not map", belowThreshold, belowThresholdVariant, entities.BillStatusUnmapped},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bills, orders, svc := newMappingFixture()

			bill, items := receivedBill("bill-1", tc.billName, "2024-03-15")
			bills.bills[bill.ID] = bill
			bills.lineItems[bill.ID] = items
			orders.orders["order-1"] = &entities.Order{OrderID: "order-1"}
			orders.candidates = []*entities.OrderCandidate{{
				OrderID:          "order-1",
				PatientFirstName: tc.orderFirst,
				ServiceDates:     []string{"2024-03-15"},
			}}

			result, err := svc.MapBill(context.Background(), "bill-1")

			assert.NoError(t, err)
			assert.Equal(t, tc.want, result.Status)
		})
	}
}

func TestMappingService_MapBill_TokenOrderInsensitive(t *testing.T) {
	bills, orders, svc := newMappingFixture()

	// Last-name-first on the bill still matches first-name-first on
	// the order.
	bill, items := receivedBill("bill-1", "Doe John", "2024-03-15")
	bills.bills[bill.ID] = bill
	bills.lineItems[bill.ID] = items
	orders.orders["order-1"] = &entities.Order{OrderID: "order-1"}
	orders.candidates = []*entities.OrderCandidate{{
		OrderID:          "order-1",
		PatientFirstName: "John",
		PatientLastName:  "Doe",
		ServiceDates:     []string{"2024-03-15"},
	}}

	result, err := svc.MapBill(context.Background(), "bill-1")

	assert.NoError(t, err)
	assert.Equal(t, entities.BillStatusMapped, result.Status)
}

func TestMappingService_MapBill_DateWindowBoundary(t *testing.T) {
	cases := []struct {
		name      string
		orderDate string
		want      entities.BillStatus
	}{
		{"within 21 days maps", "2024-03-22", entities.BillStatusMapped},
		{"beyond 21 days does not map", "2024-03-23", entities.BillStatusUnmapped},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bills, orders, svc := newMappingFixture()

			bill, items := receivedBill("bill-1", "John Doe", "2024-03-01")
			bills.bills[bill.ID] = bill
			bills.lineItems[bill.ID] = items
			orders.orders["order-1"] = &entities.Order{OrderID: "order-1"}
			orders.candidates = []*entities.OrderCandidate{{
				OrderID:          "order-1",
				PatientFirstName: "John",
				PatientLastName:  "Doe",
				ServiceDates:     []string{tc.orderDate},
			}}

			result, err := svc.MapBill(context.Background(), "bill-1")

			assert.NoError(t, err)
			assert.Equal(t, tc.want, result.Status)
		})
	}
}

func TestMappingService_MapBill_TieBreakBySharedCPTs(t *testing.T) {
	bills, orders, svc := newMappingFixture()

	bill := &entities.ProviderBill{ID: "bill-1", Status: entities.BillStatusReceived, PatientName: "John Doe"}
	bills.bills[bill.ID] = bill
	bills.lineItems[bill.ID] = []*entities.BillLineItem{
		{ID: 1, ProviderBillID: "bill-1", CPTCode: "73221", Units: 1, DateOfService: "2024-03-15"},
		{ID: 2, ProviderBillID: "bill-1", CPTCode: "99213", Units: 1, DateOfService: "2024-03-15"},
	}
	orders.orders["order-1"] = &entities.Order{OrderID: "order-1"}
	orders.orders["order-2"] = &entities.Order{OrderID: "order-2"}
	orders.candidates = []*entities.OrderCandidate{
		{
			OrderID:          "order-1",
			PatientFirstName: "John",
			PatientLastName:  "Doe",
			ServiceDates:     []string{"2024-03-15"},
			CPTCodes:         []string{"73221"},
		},
		{
			OrderID:          "order-2",
			PatientFirstName: "John",
			PatientLastName:  "Doe",
			ServiceDates:     []string{"2024-03-15"},
			CPTCodes:         []string{"73221", "99213"},
		},
	}

	result, err := svc.MapBill(context.Background(), "bill-1")

	assert.NoError(t, err)
	assert.Equal(t, entities.BillStatusMapped, result.Status)
	assert.Equal(t, "order-2", result.OrderID, "candidate sharing more CPT codes must win the tie")
}

func TestMappingService_MapBill_Duplicate(t *testing.T) {
	bills, orders, svc := newMappingFixture()

	bill, items := receivedBill("bill-1", "John Doe", "2024-03-15")
	bills.bills[bill.ID] = bill
	bills.lineItems[bill.ID] = items
	orders.orders["order-1"] = &entities.Order{OrderID: "order-1", FullyPaid: true}
	orders.candidates = []*entities.OrderCandidate{{
		OrderID:          "order-1",
		PatientFirstName: "John",
		PatientLastName:  "Doe",
		ServiceDates:     []string{"2024-03-15"},
	}}

	result, err := svc.MapBill(context.Background(), "bill-1")

	assert.NoError(t, err)
	assert.Equal(t, entities.BillStatusDuplicate, result.Status)
	assert.Equal(t, "Order already fully paid", result.Message)

	mapping := bills.lastMapping()
	assert.True(t, mapping.IncrementOrderBillCount)
	assert.Equal(t, "order-1", *mapping.ClaimID)
}

func TestMappingService_MapBill_NoCandidates(t *testing.T) {
	bills, _, svc := newMappingFixture()

	bill, items := receivedBill("bill-1", "John Doe", "2024-03-15")
	bills.bills[bill.ID] = bill
	bills.lineItems[bill.ID] = items

	result, err := svc.MapBill(context.Background(), "bill-1")

	assert.NoError(t, err)
	assert.Equal(t, entities.BillStatusUnmapped, result.Status)
	assert.Equal(t, "No matching order found for patient and dates", result.Message)

	mapping := bills.lastMapping()
	assert.Equal(t, entities.ActionToMap, *mapping.Action)
	assert.Nil(t, mapping.ClaimID)
}

func TestMappingService_MapBill_NoServiceDates(t *testing.T) {
	bills, _, svc := newMappingFixture()

	bill, items := receivedBill("bill-1", "John Doe", "not a date")
	bills.bills[bill.ID] = bill
	bills.lineItems[bill.ID] = items

	result, err := svc.MapBill(context.Background(), "bill-1")

	assert.NoError(t, err)
	assert.Equal(t, entities.BillStatusUnmapped, result.Status)
	assert.Equal(t, "No valid dates of service found on bill line items", result.Message)
}

func TestMappingService_MapBill_NotReady(t *testing.T) {
	bills, _, svc := newMappingFixture()

	bills.bills["bill-1"] = &entities.ProviderBill{ID: "bill-1", Status: entities.BillStatusMapped, PatientName: "John Doe"}

	result, err := svc.MapBill(context.Background(), "bill-1")

	assert.NoError(t, err)
	assert.Equal(t, entities.BillStatusMapped, result.Status)
	assert.Equal(t, "Bill not ready for mapping", result.Message)
	assert.Empty(t, bills.mappings)
}

func TestMappingService_MapBatch(t *testing.T) {
	bills, orders, svc := newMappingFixture()

	matched, matchedItems := receivedBill("bill-1", "John Doe", "2024-03-15")
	unmatched, unmatchedItems := receivedBill("bill-2", "Somebody Else", "2024-03-15")
	bills.bills[matched.ID] = matched
	bills.lineItems[matched.ID] = matchedItems
	bills.bills[unmatched.ID] = unmatched
	bills.lineItems[unmatched.ID] = unmatchedItems

	orders.orders["order-1"] = &entities.Order{OrderID: "order-1"}
	orders.candidates = []*entities.OrderCandidate{{
		OrderID:          "order-1",
		PatientFirstName: "John",
		PatientLastName:  "Doe",
		ServiceDates:     []string{"2024-03-15"},
	}}

	result, err := svc.MapBatch(context.Background(), 10)

	assert.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Mapped)
	assert.Equal(t, 1, result.Unmapped)
	assert.Equal(t, 0, result.Errors)
}
