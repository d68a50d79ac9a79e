package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cdx-ehr/billreview/internal/application/services"
	"github.com/cdx-ehr/billreview/internal/domain/entities"
)

func billItems(cpts ...string) []*entities.BillLineItem {
	items := make([]*entities.BillLineItem, 0, len(cpts))
	for i, cpt := range cpts {
		items = append(items, &entities.BillLineItem{ID: int64(i + 1), CPTCode: cpt, Units: 1})
	}
	return items
}

func orderItems(cpts ...string) []*entities.OrderLineItem {
	items := make([]*entities.OrderLineItem, 0, len(cpts))
	for i, cpt := range cpts {
		items = append(items, &entities.OrderLineItem{ID: int64(i + 1), CPT: cpt, Units: 1})
	}
	return items
}

func TestComparisonService_Compare_ExactMatches(t *testing.T) {
	refs := newFakeReferenceRepo()
	svc := services.NewComparisonService(refs, defaultAncillaries())

	comparison, err := svc.Compare(context.Background(), billItems("73221", "99213", "99213"), orderItems("73221", "99213"))

	assert.NoError(t, err)
	assert.Equal(t, []services.ExactMatch{
		{CPT: "73221", BilledCount: 1, OrderedCount: 1},
		{CPT: "99213", BilledCount: 2, OrderedCount: 1},
	}, comparison.ExactMatches)
	assert.Empty(t, comparison.BilledNotOrdered)
	assert.Empty(t, comparison.OrderedNotBilled)
}

func TestComparisonService_Compare_AncillariesExcludedFromDifferences(t *testing.T) {
	refs := newFakeReferenceRepo()
	svc := services.NewComparisonService(refs, defaultAncillaries())

	// 99000 is an ancillary handling code. Billed without being
	// ordered, it must not surface as a mismatch.
	comparison, err := svc.Compare(context.Background(), billItems("73221", "99000"), orderItems("73221", "36415"))

	assert.NoError(t, err)
	assert.NotContains(t, comparison.BilledNotOrdered, "99000")
	assert.NotContains(t, comparison.OrderedNotBilled, "36415")
	assert.Empty(t, comparison.BilledNotOrdered)
	assert.Empty(t, comparison.OrderedNotBilled)
}

func TestComparisonService_Compare_CategoryMatch(t *testing.T) {
	refs := newFakeReferenceRepo()
	refs.categories["73221"] = entities.CPTCategory{Category: "MRI", Subcategory: "Upper Extremity"}
	refs.categories["73222"] = entities.CPTCategory{Category: "MRI", Subcategory: "Upper Extremity"}
	svc := services.NewComparisonService(refs, defaultAncillaries())

	// Billed the with-contrast variant of the ordered MRI: no exact
	// match, but the category pair lines up.
	comparison, err := svc.Compare(context.Background(), billItems("73222"), orderItems("73221"))

	assert.NoError(t, err)
	assert.Empty(t, comparison.ExactMatches)
	assert.Len(t, comparison.CategoryMatches, 1)
	assert.Equal(t, "73222", comparison.CategoryMatches[0].BilledCPT)
	assert.Equal(t, []string{"73221"}, comparison.CategoryMatches[0].OrderedCPTs)
	assert.Equal(t, "MRI", comparison.CategoryMatches[0].Category)
	assert.Empty(t, comparison.CategoryMismatches)
}

func TestComparisonService_Compare_CategoryMismatch(t *testing.T) {
	refs := newFakeReferenceRepo()
	refs.categories["72148"] = entities.CPTCategory{Category: "MRI", Subcategory: "Spine"}
	refs.categories["73221"] = entities.CPTCategory{Category: "MRI", Subcategory: "Upper Extremity"}
	svc := services.NewComparisonService(refs, defaultAncillaries())

	comparison, err := svc.Compare(context.Background(), billItems("72148"), orderItems("73221"))

	assert.NoError(t, err)
	assert.Empty(t, comparison.CategoryMatches)
	assert.Len(t, comparison.CategoryMismatches, 1)
	assert.Equal(t, "72148", comparison.CategoryMismatches[0].CPT)
	assert.Equal(t, "Spine", comparison.CategoryMismatches[0].Subcategory)
}

func TestComparisonService_Compare_UnknownCodesDroppedFromCategories(t *testing.T) {
	refs := newFakeReferenceRepo()
	svc := services.NewComparisonService(refs, defaultAncillaries())

	// No category reference rows at all: unmatched codes stay in the
	// set differences but contribute nothing to category accounting.
	comparison, err := svc.Compare(context.Background(), billItems("99999"), orderItems("73221"))

	assert.NoError(t, err)
	assert.Equal(t, []string{"99999"}, comparison.BilledNotOrdered)
	assert.Equal(t, []string{"73221"}, comparison.OrderedNotBilled)
	assert.Empty(t, comparison.CategoryMatches)
	assert.Empty(t, comparison.CategoryMismatches)
}

func TestComparisonService_DetectExactOverbilling(t *testing.T) {
	refs := newFakeReferenceRepo()
	svc := services.NewComparisonService(refs, defaultAncillaries())

	comparison, err := svc.Compare(context.Background(), billItems("99213", "99213"), orderItems("99213"))
	assert.NoError(t, err)

	overbilled := svc.DetectExactOverbilling(comparison)

	assert.Len(t, overbilled, 1)
	assert.Equal(t, "99213", overbilled[0].CPT)
	assert.Equal(t, 2, overbilled[0].BilledCount)
	assert.Equal(t, 1, overbilled[0].OrderedCount)
}

func TestComparisonService_DetectExactOverbilling_AncillariesExempt(t *testing.T) {
	refs := newFakeReferenceRepo()
	svc := services.NewComparisonService(refs, defaultAncillaries())

	// Two blood draws against one ordered: 36415 is ancillary, so the
	// repeat must not count as overbilling.
	comparison, err := svc.Compare(context.Background(), billItems("73221", "36415", "36415"), orderItems("73221", "36415"))
	assert.NoError(t, err)

	assert.Empty(t, svc.DetectExactOverbilling(comparison))
}

func TestComparisonService_DetectExactOverbilling_EqualCountsPass(t *testing.T) {
	refs := newFakeReferenceRepo()
	svc := services.NewComparisonService(refs, defaultAncillaries())

	comparison, err := svc.Compare(context.Background(), billItems("99213"), orderItems("99213"))
	assert.NoError(t, err)

	assert.Empty(t, svc.DetectExactOverbilling(comparison))
}

func TestComparisonService_DetectCategoryOverbilling(t *testing.T) {
	refs := newFakeReferenceRepo()
	refs.categories["73221"] = entities.CPTCategory{Category: "MRI", Subcategory: "Upper Extremity"}
	refs.categories["73222"] = entities.CPTCategory{Category: "MRI", Subcategory: "Upper Extremity"}
	refs.categories["73223"] = entities.CPTCategory{Category: "MRI", Subcategory: "Upper Extremity"}
	svc := services.NewComparisonService(refs, defaultAncillaries())

	// Two billed variants land in a category backed by one ordered CPT.
	comparison, err := svc.Compare(context.Background(), billItems("73222", "73223"), orderItems("73221"))
	assert.NoError(t, err)

	overbilled := svc.DetectCategoryOverbilling(comparison)

	assert.Len(t, overbilled, 1)
	assert.Equal(t, "MRI", overbilled[0].Category)
	assert.Equal(t, "Upper Extremity", overbilled[0].Subcategory)
	assert.Equal(t, 2, overbilled[0].BilledCount)
	assert.Equal(t, 1, overbilled[0].OrderedCount)
	assert.Equal(t, []string{"73222", "73223"}, overbilled[0].BilledCPTs)
}
