package services

import (
	"context"
	"sort"
	"strings"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
)

// ComparisonService reconciles billed CPT codes against ordered CPT
// codes: exact code matches first, then category-level matches via the
// dim_proc reference for codes that fail exact matching.
type ComparisonService struct {
	referenceRepo  repositories.ReferenceRepository
	ancillaryCodes entities.AncillaryCodeSet
}

// NewComparisonService creates a new CPT comparison service
func NewComparisonService(referenceRepo repositories.ReferenceRepository, ancillaryCodes entities.AncillaryCodeSet) *ComparisonService {
	return &ComparisonService{
		referenceRepo:  referenceRepo,
		ancillaryCodes: ancillaryCodes,
	}
}

// ExactMatch is a CPT present in both billed and ordered sets, with
// multiplicity on each side.
type ExactMatch struct {
	CPT          string
	BilledCount  int
	OrderedCount int
}

// CategoryMatch is a billed CPT whose (category, subcategory) pair is
// shared by at least one ordered CPT.
type CategoryMatch struct {
	BilledCPT   string
	OrderedCPTs []string
	Category    string
	Subcategory string
}

// CategoryMismatch is a billed CPT with a known category no ordered CPT
// shares.
type CategoryMismatch struct {
	CPT         string
	Category    string
	Subcategory string
}

// CategoryOverbilling is a shared category where more CPTs were billed
// than ordered.
type CategoryOverbilling struct {
	Category     string
	Subcategory  string
	BilledCount  int
	OrderedCount int
	BilledCPTs   []string
}

// CPTComparison is the full classification of billed vs ordered codes.
// Codes absent from the category reference appear in neither
// CategoryMatches nor CategoryMismatches.
type CPTComparison struct {
	ExactMatches       []ExactMatch
	BilledNotOrdered   []string
	OrderedNotBilled   []string
	CategoryMatches    []CategoryMatch
	CategoryMismatches []CategoryMismatch
}

// Compare classifies billed CPT codes against ordered CPT codes. The
// set differences are ancillary-filtered before category lookup.
func (s *ComparisonService) Compare(ctx context.Context, billItems []*entities.BillLineItem, orderItems []*entities.OrderLineItem) (*CPTComparison, error) {
	billedCounts := make(map[string]int)
	orderedCounts := make(map[string]int)

	for _, item := range billItems {
		cpt := strings.TrimSpace(item.CPTCode)
		if cpt != "" {
			billedCounts[cpt]++
		}
	}
	for _, item := range orderItems {
		cpt := strings.TrimSpace(item.CPT)
		if cpt != "" {
			orderedCounts[cpt]++
		}
	}

	comparison := &CPTComparison{}

	for cpt, billedCount := range billedCounts {
		if orderedCount, ok := orderedCounts[cpt]; ok {
			comparison.ExactMatches = append(comparison.ExactMatches, ExactMatch{
				CPT:          cpt,
				BilledCount:  billedCount,
				OrderedCount: orderedCount,
			})
		} else if !s.ancillaryCodes.Contains(cpt) {
			comparison.BilledNotOrdered = append(comparison.BilledNotOrdered, cpt)
		}
	}
	for cpt := range orderedCounts {
		if _, ok := billedCounts[cpt]; !ok && !s.ancillaryCodes.Contains(cpt) {
			comparison.OrderedNotBilled = append(comparison.OrderedNotBilled, cpt)
		}
	}

	sortMatches(comparison)

	unmatched := append([]string{}, comparison.BilledNotOrdered...)
	unmatched = append(unmatched, comparison.OrderedNotBilled...)
	if len(unmatched) == 0 {
		return comparison, nil
	}

	categories, err := s.referenceRepo.CategoriesFor(ctx, unmatched)
	if err != nil {
		return nil, err
	}

	// Group the unmatched codes by category pair. Codes the reference
	// does not know are dropped from category accounting.
	billedByCategory := make(map[entities.CPTCategory][]string)
	orderedByCategory := make(map[entities.CPTCategory][]string)

	for _, cpt := range comparison.BilledNotOrdered {
		if category, ok := categories[cpt]; ok {
			billedByCategory[category] = append(billedByCategory[category], cpt)
		}
	}
	for _, cpt := range comparison.OrderedNotBilled {
		if category, ok := categories[cpt]; ok {
			orderedByCategory[category] = append(orderedByCategory[category], cpt)
		}
	}

	for category, billedCPTs := range billedByCategory {
		orderedCPTs, shared := orderedByCategory[category]
		for _, billedCPT := range billedCPTs {
			if shared {
				comparison.CategoryMatches = append(comparison.CategoryMatches, CategoryMatch{
					BilledCPT:   billedCPT,
					OrderedCPTs: orderedCPTs,
					Category:    category.Category,
					Subcategory: category.Subcategory,
				})
			} else {
				comparison.CategoryMismatches = append(comparison.CategoryMismatches, CategoryMismatch{
					CPT:         billedCPT,
					Category:    category.Category,
					Subcategory: category.Subcategory,
				})
			}
		}
	}

	sort.Slice(comparison.CategoryMatches, func(i, j int) bool {
		return comparison.CategoryMatches[i].BilledCPT < comparison.CategoryMatches[j].BilledCPT
	})
	sort.Slice(comparison.CategoryMismatches, func(i, j int) bool {
		return comparison.CategoryMismatches[i].CPT < comparison.CategoryMismatches[j].CPT
	})

	return comparison, nil
}

// DetectExactOverbilling returns the exact matches where the billed
// count exceeds the ordered count. Ancillary codes are exempt; repeat
// draws and supplies are zero-rated downstream instead of flagged.
func (s *ComparisonService) DetectExactOverbilling(comparison *CPTComparison) []ExactMatch {
	var overbilled []ExactMatch
	for _, match := range comparison.ExactMatches {
		if s.ancillaryCodes.Contains(match.CPT) {
			continue
		}
		if match.BilledCount > match.OrderedCount {
			overbilled = append(overbilled, match)
		}
	}
	return overbilled
}

// DetectCategoryOverbilling returns the shared categories where more
// CPTs were billed than ordered.
func (s *ComparisonService) DetectCategoryOverbilling(comparison *CPTComparison) []CategoryOverbilling {
	billedByCategory := make(map[entities.CPTCategory][]string)
	orderedCountByCategory := make(map[entities.CPTCategory]int)

	for _, match := range comparison.CategoryMatches {
		category := entities.CPTCategory{Category: match.Category, Subcategory: match.Subcategory}
		billedByCategory[category] = append(billedByCategory[category], match.BilledCPT)
		orderedCountByCategory[category] = len(match.OrderedCPTs)
	}

	var overbilled []CategoryOverbilling
	for category, billedCPTs := range billedByCategory {
		orderedCount := orderedCountByCategory[category]
		if len(billedCPTs) > orderedCount {
			sort.Strings(billedCPTs)
			overbilled = append(overbilled, CategoryOverbilling{
				Category:     category.Category,
				Subcategory:  category.Subcategory,
				BilledCount:  len(billedCPTs),
				OrderedCount: orderedCount,
				BilledCPTs:   billedCPTs,
			})
		}
	}

	sort.Slice(overbilled, func(i, j int) bool {
		if overbilled[i].Category != overbilled[j].Category {
			return overbilled[i].Category < overbilled[j].Category
		}
		return overbilled[i].Subcategory < overbilled[j].Subcategory
	})

	return overbilled
}

func sortMatches(comparison *CPTComparison) {
	sort.Slice(comparison.ExactMatches, func(i, j int) bool {
		return comparison.ExactMatches[i].CPT < comparison.ExactMatches[j].CPT
	})
	sort.Strings(comparison.BilledNotOrdered)
	sort.Strings(comparison.OrderedNotBilled)
}
