package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/providers"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
	"github.com/cdx-ehr/billreview/internal/infrastructure/observability"
	"github.com/cdx-ehr/billreview/pkg/config"
	apperrors "github.com/cdx-ehr/billreview/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// AdjudicationService drives mapped bills through the validation
// pipeline: provider completeness, arthrogram routing, units, CPT
// comparison, and rate resolution, persisting each bill's outcome
// atomically.
type AdjudicationService struct {
	billRepo     repositories.BillRepository
	orderRepo    repositories.OrderRepository
	providerRepo repositories.ProviderRepository

	validation *ValidationService
	comparison *ComparisonService
	rates      *RateService

	ancillaryCodes entities.AncillaryCodeSet

	eventBus    providers.EventBus
	reviewIndex providers.ReviewIndex
	metrics     *observability.Metrics

	cfg config.EngineConfig
}

// AdjudicationDeps bundles the collaborators of the adjudication
// service. EventBus, ReviewIndex and Metrics may be nil; the matching
// side effects are then disabled.
type AdjudicationDeps struct {
	BillRepo     repositories.BillRepository
	OrderRepo    repositories.OrderRepository
	ProviderRepo repositories.ProviderRepository

	Validation *ValidationService
	Comparison *ComparisonService
	Rates      *RateService

	AncillaryCodes entities.AncillaryCodeSet

	EventBus    providers.EventBus
	ReviewIndex providers.ReviewIndex
	Metrics     *observability.Metrics

	Config config.EngineConfig
}

// NewAdjudicationService creates a new adjudication service
func NewAdjudicationService(deps AdjudicationDeps) *AdjudicationService {
	return &AdjudicationService{
		billRepo:       deps.BillRepo,
		orderRepo:      deps.OrderRepo,
		providerRepo:   deps.ProviderRepo,
		validation:     deps.Validation,
		comparison:     deps.Comparison,
		rates:          deps.Rates,
		ancillaryCodes: deps.AncillaryCodes,
		eventBus:       deps.EventBus,
		reviewIndex:    deps.ReviewIndex,
		metrics:        deps.Metrics,
		cfg:            deps.Config,
	}
}

// ProcessResult is the outcome of adjudicating one bill
type ProcessResult struct {
	BillID  string
	Status  entities.BillStatus
	Message string
}

// BatchResult aggregates the outcomes of an adjudication run
type BatchResult struct {
	Total      int
	Success    int
	Flagged    int
	Error      int
	Arthrogram int
}

// ProcessBill runs the full pipeline on a single bill. Any panic is
// recovered and persisted as an ERROR outcome so a batch run survives
// a poisoned bill.
func (s *AdjudicationService) ProcessBill(ctx context.Context, billID string) (result *ProcessResult, err error) {
	logger := observability.LoggerFromContext(ctx)
	started := time.Now()

	ctx, span := observability.StartSpan(ctx, "adjudication.process_bill")
	defer span.End()
	observability.SetSpanAttributes(span, attribute.String("bill.id", billID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("bill_id", billID).Interface("panic", r).Msg("panic while processing bill")
			result = s.persistError(ctx, billID, fmt.Sprintf("Processing error: %v", r))
			err = nil
		}
		if result != nil {
			observability.SetSpanAttributes(span, attribute.String("bill.status", string(result.Status)))
			observability.RecordBillProcessed(ctx, s.metrics, string(result.Status), time.Since(started))
		}
	}()

	bill, getErr := s.billRepo.GetByID(ctx, billID)
	if getErr != nil {
		if apperrors.IsNotFound(getErr) {
			return &ProcessResult{BillID: billID, Status: entities.BillStatusError, Message: "Bill not found"}, nil
		}
		observability.RecordError(span, getErr)
		return nil, getErr
	}

	if bill.Status != entities.BillStatusMapped {
		return &ProcessResult{BillID: billID, Status: bill.Status, Message: "Bill not ready for processing"}, nil
	}

	result, err = s.runPipeline(ctx, bill)
	if err != nil {
		// Unexpected infrastructure failure: persist as ERROR so the
		// batch continues, keeping the error text for review.
		observability.RecordError(span, err)
		logger.Error().Err(err).Str("bill_id", billID).Msg("error processing bill")
		return s.persistError(ctx, billID, fmt.Sprintf("Processing error: %v", err)), nil
	}

	return result, nil
}

// ProcessBatch adjudicates up to limit mapped bills, oldest first
func (s *AdjudicationService) ProcessBatch(ctx context.Context, limit int) (*BatchResult, error) {
	logger := observability.LoggerFromContext(ctx)

	if limit <= 0 {
		limit = s.cfg.DefaultBatchLimit
	}

	bills, err := s.billRepo.ListByStatus(ctx, entities.BillStatusMapped, limit)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Total: len(bills)}
	for _, bill := range bills {
		processed, err := s.ProcessBill(ctx, bill.ID)
		if err != nil {
			result.Error++
			continue
		}

		switch processed.Status {
		case entities.BillStatusReviewed:
			result.Success++
		case entities.BillStatusArthrogram:
			result.Arthrogram++
		case entities.BillStatusError:
			result.Error++
		default:
			result.Flagged++
		}
	}

	logger.Info().
		Int("total", result.Total).
		Int("success", result.Success).
		Int("flagged", result.Flagged).
		Int("error", result.Error).
		Int("arthrogram", result.Arthrogram).
		Msg("adjudication batch complete")

	return result, nil
}

// runPipeline executes the per-bill stages in order, short-circuiting
// on the first failure.
func (s *AdjudicationService) runPipeline(ctx context.Context, bill *entities.ProviderBill) (*ProcessResult, error) {
	logger := observability.LoggerFromContext(ctx)

	// Stage 1: load line items, order, order line items, provider
	items, err := s.billRepo.ListLineItems(ctx, bill.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return s.finish(ctx, bill, items, entities.NewOutcome(bill.ID, entities.BillStatusFlagged, entities.ActionToReview, "No line items found"))
	}

	if bill.ClaimID == nil {
		return s.finish(ctx, bill, items, entities.NewOutcome(bill.ID, entities.BillStatusFlagged, entities.ActionToReview, "No associated order found"))
	}

	order, err := s.orderRepo.GetByID(ctx, *bill.ClaimID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return s.finish(ctx, bill, items, entities.NewOutcome(bill.ID, entities.BillStatusFlagged, entities.ActionToReview, "No associated order found"))
		}
		return nil, err
	}

	provider, err := s.loadProvider(ctx, order)
	if err != nil {
		return nil, err
	}

	// Stage 2: provider completeness
	if provider == nil {
		return s.finish(ctx, bill, items, entities.NewOutcome(bill.ID, entities.BillStatusFlagged, entities.ActionUpdateProviderInfo, "Provider information not found"))
	}
	if missing := s.validation.ValidateProvider(provider); len(missing) > 0 {
		return s.finish(ctx, bill, items, entities.NewOutcome(bill.ID, entities.BillStatusFlagged, entities.ActionUpdateProviderInfo, FormatProviderError(missing)))
	}

	orderItems, err := s.orderRepo.ListLineItems(ctx, order.OrderID)
	if err != nil {
		return nil, err
	}

	// Stage 3: arthrogram routing
	if isArthrogram(order, orderItems) {
		logger.Info().Str("bill_id", bill.ID).Str("order_id", order.OrderID).Msg("bill routed to arthrogram processing")
		return s.finish(ctx, bill, items, entities.NewOutcome(bill.ID, entities.BillStatusArthrogram, entities.ActionToReview, "Routed to arthrogram processing"))
	}

	// Stage 4: units
	if violations := s.validation.ValidateUnits(items); len(violations) > 0 {
		return s.finish(ctx, bill, items, entities.NewOutcome(bill.ID, entities.BillStatusFlagged, entities.ActionToReview, FormatUnitsError(violations)))
	}

	// Stage 5: CPT comparison and overbilling
	comparison, err := s.comparison.Compare(ctx, items, orderItems)
	if err != nil {
		return nil, err
	}

	if overbilled := s.comparison.DetectExactOverbilling(comparison); len(overbilled) > 0 {
		return s.finish(ctx, bill, items, entities.NewOutcome(bill.ID, entities.BillStatusFlagged, entities.ActionExactMatchOverbilling, formatExactOverbilling(overbilled)))
	}
	if overbilled := s.comparison.DetectCategoryOverbilling(comparison); len(overbilled) > 0 {
		return s.finish(ctx, bill, items, entities.NewOutcome(bill.ID, entities.BillStatusFlagged, entities.ActionCategoryOverbilling, formatCategoryOverbilling(overbilled)))
	}

	// Stage 6: ancillary-filtered match classification
	matchedCPTs := s.matchedNonAncillaryCPTs(comparison)
	if len(matchedCPTs) == 0 {
		return s.finish(ctx, bill, items, entities.NewOutcome(bill.ID, entities.BillStatusReviewFlag, entities.ActionCompleteLineItemMismatch,
			"Bill CPT codes completely mismatch with order (excluding ancillaries)"))
	}
	if len(comparison.BilledNotOrdered) > 0 {
		return s.finish(ctx, bill, items, entities.NewOutcome(bill.ID, entities.BillStatusReviewFlag, entities.ActionAddressLineItemMismatch,
			"Bill contains additional non-ancillary CPT codes not in order: "+strings.Join(comparison.BilledNotOrdered, ", ")))
	}

	// Stage 7: rate resolution
	resolution, err := s.rates.ResolveBill(ctx, items, provider, order.OrderID)
	if err != nil {
		return nil, err
	}

	var outcome *entities.AdjudicationOutcome
	if resolution.Valid {
		outcome = entities.NewOutcome(bill.ID, entities.BillStatusReviewed, entities.ActionApplyRate, "")
	} else {
		outcome = entities.NewOutcome(bill.ID, entities.BillStatusFlagged, entities.ActionReviewRates, resolution.Error)
	}
	outcome.LineDecisions = resolution.Decisions
	outcome.ReviewedOrderID = order.OrderID
	outcome.ReviewedCPTs = matchedCPTs

	return s.finish(ctx, bill, items, outcome)
}

func (s *AdjudicationService) loadProvider(ctx context.Context, order *entities.Order) (*entities.Provider, error) {
	if order.ProviderID == nil {
		return nil, nil
	}

	provider, err := s.providerRepo.GetByID(ctx, *order.ProviderID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return provider, nil
}

// matchedNonAncillaryCPTs collects the billed CPTs that matched the
// order exactly or by category, excluding ancillaries. These are the
// order line items the bill reviews.
func (s *AdjudicationService) matchedNonAncillaryCPTs(comparison *CPTComparison) []string {
	var matched []string
	for _, match := range comparison.ExactMatches {
		if !s.ancillaryCodes.Contains(match.CPT) {
			matched = append(matched, match.CPT)
		}
	}
	for _, match := range comparison.CategoryMatches {
		if !s.ancillaryCodes.Contains(match.BilledCPT) {
			matched = append(matched, match.BilledCPT)
		}
	}
	return matched
}

// finish persists the outcome atomically, emits the lifecycle event,
// and keeps the review index in sync.
func (s *AdjudicationService) finish(ctx context.Context, bill *entities.ProviderBill, items []*entities.BillLineItem, outcome *entities.AdjudicationOutcome) (*ProcessResult, error) {
	if err := s.billRepo.ApplyOutcome(ctx, outcome); err != nil {
		return nil, err
	}

	s.publish(ctx, bill, outcome.Status, outcome.Action)
	s.syncReviewIndex(ctx, bill, items, outcome)

	message := ""
	if outcome.LastError != nil {
		message = *outcome.LastError
	} else if outcome.Status == entities.BillStatusReviewed {
		message = "Bill processed successfully"
	}

	return &ProcessResult{
		BillID:  bill.ID,
		Status:  outcome.Status,
		Message: message,
	}, nil
}

// persistError records an ERROR outcome for a bill whose processing
// failed unexpectedly. Persistence failures here are logged and
// swallowed; the batch must go on.
func (s *AdjudicationService) persistError(ctx context.Context, billID, message string) *ProcessResult {
	logger := observability.LoggerFromContext(ctx)

	outcome := entities.NewOutcome(billID, entities.BillStatusError, entities.ActionToReview, message)
	if err := s.billRepo.ApplyOutcome(ctx, outcome); err != nil {
		logger.Error().Err(err).Str("bill_id", billID).Msg("failed to persist error outcome")
	}

	return &ProcessResult{
		BillID:  billID,
		Status:  entities.BillStatusError,
		Message: message,
	}
}

// publish emits a bill_adjudicated event. Best effort; a nil bus
// disables publishing.
func (s *AdjudicationService) publish(ctx context.Context, bill *entities.ProviderBill, to entities.BillStatus, action *entities.BillAction) {
	if s.eventBus == nil {
		return
	}

	logger := observability.LoggerFromContext(ctx)
	event := entities.NewBillEvent(bill.ID, entities.BillEventTypeAdjudicated, bill.Status, to, action)

	if err := s.eventBus.Publish(ctx, providers.EventChannelBillUpdates, event); err != nil {
		logger.Warn().Err(err).Str("bill_id", bill.ID).Msg("failed to publish bill event")
	}
	if err := s.eventBus.Publish(ctx, providers.GetBillChannel(bill.ID), event); err != nil {
		logger.Warn().Err(err).Str("bill_id", bill.ID).Msg("failed to publish bill event")
	}
}

// syncReviewIndex upserts bills needing manual review into the search
// index and removes bills that cleared. Best effort; a nil index
// disables syncing.
func (s *AdjudicationService) syncReviewIndex(ctx context.Context, bill *entities.ProviderBill, items []*entities.BillLineItem, outcome *entities.AdjudicationOutcome) {
	if s.reviewIndex == nil {
		return
	}

	logger := observability.LoggerFromContext(ctx)

	switch outcome.Status {
	case entities.BillStatusFlagged, entities.BillStatusReviewFlag, entities.BillStatusError:
		indexed := *bill
		indexed.Status = outcome.Status
		indexed.Action = outcome.Action
		indexed.LastError = outcome.LastError
		indexed.UpdatedAt = time.Now()

		if err := s.reviewIndex.IndexBill(ctx, &indexed, items); err != nil {
			logger.Warn().Err(err).Str("bill_id", bill.ID).Msg("failed to index bill for review")
		}
	case entities.BillStatusReviewed:
		if err := s.reviewIndex.RemoveBill(ctx, bill.ID); err != nil {
			logger.Warn().Err(err).Str("bill_id", bill.ID).Msg("failed to remove bill from review index")
		}
	}
}

// isArthrogram reports whether the order routes to the arthrogram
// workflow, by bundle type or by any ordered arthrogram CPT.
func isArthrogram(order *entities.Order, orderItems []*entities.OrderLineItem) bool {
	if order.BundleType != nil && strings.EqualFold(strings.TrimSpace(*order.BundleType), "arthrogram") {
		return true
	}

	for _, item := range orderItems {
		cpt := strings.TrimSpace(item.CPT)
		if _, ok := entities.ArthrogramCPTCodes[cpt]; ok {
			return true
		}
	}

	return false
}

func formatExactOverbilling(matches []ExactMatch) string {
	details := make([]string, 0, len(matches))
	for _, match := range matches {
		details = append(details, fmt.Sprintf("CPT %s: billed %d > ordered %d", match.CPT, match.BilledCount, match.OrderedCount))
	}
	return "Exact match overbilling detected: " + strings.Join(details, "; ")
}

func formatCategoryOverbilling(matches []CategoryOverbilling) string {
	details := make([]string, 0, len(matches))
	for _, match := range matches {
		details = append(details, fmt.Sprintf("Category %s/%s: billed %d > ordered %d (CPTs: %s)",
			match.Category, match.Subcategory, match.BilledCount, match.OrderedCount, strings.Join(match.BilledCPTs, ", ")))
	}
	return "Category overbilling detected: " + strings.Join(details, "; ")
}
