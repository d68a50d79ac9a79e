package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cdx-ehr/billreview/internal/application/services"
	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
)

func TestResetService_ResetBill(t *testing.T) {
	bills := newFakeBillRepo()
	action := entities.ActionReviewRates
	message := "Rate validation failed for CPT 73221: no_rate_found"
	bills.bills["bill-1"] = &entities.ProviderBill{
		ID:        "bill-1",
		Status:    entities.BillStatusFlagged,
		Action:    &action,
		LastError: &message,
	}
	svc := services.NewResetService(bills, nil, nil)

	err := svc.ResetBill(context.Background(), "bill-1")

	assert.NoError(t, err)
	assert.Equal(t, []string{"bill-1"}, bills.resets)
	assert.Equal(t, entities.BillStatusMapped, bills.bills["bill-1"].Status)
	assert.Nil(t, bills.bills["bill-1"].Action)
	assert.Nil(t, bills.bills["bill-1"].LastError)
}

func TestResetService_ResetBill_NotFound(t *testing.T) {
	bills := newFakeBillRepo()
	svc := services.NewResetService(bills, nil, nil)

	err := svc.ResetBill(context.Background(), "missing")

	assert.Error(t, err)
	assert.Empty(t, bills.resets)
}

func TestResetService_ResetMatching(t *testing.T) {
	bills := newFakeBillRepo()
	bills.resetMatchingCount = 7
	svc := services.NewResetService(bills, nil, nil)

	count, err := svc.ResetMatching(context.Background(), repositories.ResetFilter{
		Status: entities.BillStatusError,
		Limit:  50,
	})

	assert.NoError(t, err)
	assert.Equal(t, 7, count)
}
