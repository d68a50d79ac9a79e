package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
)

// RateService resolves a payable rate per line item according to the
// provider's network status.
type RateService struct {
	referenceRepo  repositories.ReferenceRepository
	ancillaryCodes entities.AncillaryCodeSet
}

// NewRateService creates a new rate resolution service
func NewRateService(referenceRepo repositories.ReferenceRepository, ancillaryCodes entities.AncillaryCodeSet) *RateService {
	return &RateService{
		referenceRepo:  referenceRepo,
		ancillaryCodes: ancillaryCodes,
	}
}

// RateResolution is the bill-level result of rate resolution. Every
// line item carries its own decision even when the bill as a whole
// fails, so partial information survives for review.
type RateResolution struct {
	Valid     bool
	Decisions []entities.LineItemDecision
	Error     string
}

// ResolveBill resolves a rate decision for every line item. The bill
// is valid only if every line resolves; each failure overwrites the
// bill-level error, so the last one stands, and resolution continues
// through the rest.
func (s *RateService) ResolveBill(ctx context.Context, items []*entities.BillLineItem, provider *entities.Provider, orderID string) (*RateResolution, error) {
	resolution := &RateResolution{Valid: true}

	for _, item := range items {
		decision, allowedAmount, reason, err := s.resolveLineItem(ctx, item, provider, orderID)
		if err != nil {
			return nil, err
		}

		resolution.Decisions = append(resolution.Decisions, entities.LineItemDecision{
			LineItemID:    item.ID,
			CPTCode:       item.CPTCode,
			Decision:      decision,
			AllowedAmount: allowedAmount,
			ReasonCode:    reason,
		})

		if decision == entities.DecisionRejected {
			resolution.Valid = false
			resolution.Error = fmt.Sprintf("Rate validation failed for CPT %s: %s", item.CPTCode, *reason)
		}
	}

	return resolution, nil
}

// resolveLineItem produces (decision, allowed_amount, reason_code) for
// a single line item.
func (s *RateService) resolveLineItem(ctx context.Context, item *entities.BillLineItem, provider *entities.Provider, orderID string) (entities.LineDecision, *float64, *entities.ReasonCode, error) {
	cpt := strings.TrimSpace(item.CPTCode)
	if cpt == "" {
		return rejected(entities.ReasonMissingCPT)
	}

	// Ancillary codes are zero-rated regardless of network status
	if s.ancillaryCodes.Contains(cpt) {
		zero := 0.0
		return entities.DecisionApproved, &zero, nil, nil
	}

	networkStatus := ""
	if provider.NetworkStatus != nil {
		networkStatus = strings.TrimSpace(*provider.NetworkStatus)
	}
	if networkStatus == "" {
		return rejected(entities.ReasonMissingNetworkStatus)
	}

	tin := ""
	if provider.TIN != nil {
		tin = strings.TrimSpace(*provider.TIN)
	}
	if networkStatus == string(entities.NetworkInNetwork) && tin == "" {
		return rejected(entities.ReasonMissingTIN)
	}

	modifier := effectiveModifier(item.Modifier)

	var rate *float64
	var err error
	switch networkStatus {
	case string(entities.NetworkInNetwork):
		rate, err = s.referenceRepo.InNetworkRate(ctx, tin, cpt, modifier)
	case string(entities.NetworkOutOfNetwork):
		rate, err = s.referenceRepo.OutOfNetworkRate(ctx, orderID, cpt, modifier)
	default:
		return rejected(entities.ReasonInvalidNetworkStatus)
	}
	if err != nil {
		return "", nil, nil, err
	}

	if rate == nil {
		return rejected(entities.ReasonNoRateFound)
	}

	return entities.DecisionApproved, rate, nil, nil
}

// effectiveModifier reduces a line-item modifier to the ones that
// affect rate lookup. Only TC and 26 select a modifier-specific rate
// row; anything else looks up the no-modifier row.
func effectiveModifier(modifier *string) *string {
	if modifier == nil {
		return nil
	}
	m := strings.TrimSpace(*modifier)
	if m == "TC" || m == "26" {
		return &m
	}
	return nil
}

func rejected(reason entities.ReasonCode) (entities.LineDecision, *float64, *entities.ReasonCode, error) {
	return entities.DecisionRejected, nil, &reason, nil
}
