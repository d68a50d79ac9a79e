package services

import (
	"context"
	"sort"
	"time"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/providers"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
	"github.com/cdx-ehr/billreview/internal/infrastructure/observability"
	"github.com/cdx-ehr/billreview/pkg/config"
	"github.com/cdx-ehr/billreview/pkg/utils"
)

// MappingService matches incoming bills to the order that authorized
// them, using normalized patient-name similarity and service-date
// proximity.
type MappingService struct {
	billRepo  repositories.BillRepository
	orderRepo repositories.OrderRepository
	eventBus  providers.EventBus
	cfg       config.EngineConfig
}

// NewMappingService creates a new bill-to-order mapping service. The
// event bus may be nil; publishing is then disabled.
func NewMappingService(billRepo repositories.BillRepository, orderRepo repositories.OrderRepository, eventBus providers.EventBus, cfg config.EngineConfig) *MappingService {
	return &MappingService{
		billRepo:  billRepo,
		orderRepo: orderRepo,
		eventBus:  eventBus,
		cfg:       cfg,
	}
}

// MappingResult is the outcome of mapping one bill
type MappingResult struct {
	BillID  string
	Status  entities.BillStatus
	OrderID string
	Message string
}

// MappingBatchResult aggregates the outcomes of a mapping run
type MappingBatchResult struct {
	Total     int
	Mapped    int
	Duplicate int
	Unmapped  int
	Errors    int
}

// scoredCandidate is an order that passed the name and date gates
type scoredCandidate struct {
	order      *entities.OrderCandidate
	similarity float64
}

// MapBill maps a single bill to its best-matching order. The status
// change, claim assignment, and any duplicate counter increment commit
// in one transaction.
func (s *MappingService) MapBill(ctx context.Context, billID string) (*MappingResult, error) {
	logger := observability.LoggerFromContext(ctx)

	bill, err := s.billRepo.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}

	if bill.Status != entities.BillStatusReceived && bill.Status != entities.BillStatusValid {
		return &MappingResult{
			BillID:  billID,
			Status:  bill.Status,
			Message: "Bill not ready for mapping",
		}, nil
	}

	items, err := s.billRepo.ListLineItems(ctx, billID)
	if err != nil {
		return nil, err
	}

	billDates := parseServiceDates(items)
	if len(billDates) == 0 {
		logger.Warn().Str("bill_id", billID).Msg("no valid dates of service on bill line items")
		return s.applyUnmapped(ctx, bill, "No valid dates of service found on bill line items")
	}

	billName := utils.CleanPatientName(bill.PatientName)
	billCPTs := make(map[string]struct{})
	for _, item := range items {
		if item.CPTCode != "" {
			billCPTs[item.CPTCode] = struct{}{}
		}
	}

	candidates, err := s.orderRepo.ListCandidates(ctx, repositories.CandidateFilter{
		ServiceYearStart: s.cfg.ServiceYearStart,
		ServiceYearEnd:   s.cfg.ServiceYearEnd,
	})
	if err != nil {
		return nil, err
	}

	matches := s.matchCandidates(billName, billDates, candidates)
	if len(matches) == 0 {
		logger.Info().Str("bill_id", billID).Msg("no matching order found")
		return s.applyUnmapped(ctx, bill, "No matching order found for patient and dates")
	}

	best := s.breakTies(matches, billCPTs)

	order, err := s.orderRepo.GetByID(ctx, best.order.OrderID)
	if err != nil {
		return nil, err
	}

	if order.FullyPaid {
		return s.applyDuplicate(ctx, bill, order.OrderID)
	}

	return s.applyMapped(ctx, bill, order.OrderID)
}

// MapBatch maps up to limit bills awaiting mapping, oldest first
func (s *MappingService) MapBatch(ctx context.Context, limit int) (*MappingBatchResult, error) {
	logger := observability.LoggerFromContext(ctx)

	if limit <= 0 {
		limit = s.cfg.DefaultBatchLimit
	}

	bills, err := s.billRepo.ListByStatus(ctx, entities.BillStatusReceived, limit)
	if err != nil {
		return nil, err
	}

	result := &MappingBatchResult{Total: len(bills)}
	for _, bill := range bills {
		mapped, err := s.MapBill(ctx, bill.ID)
		if err != nil {
			logger.Error().Err(err).Str("bill_id", bill.ID).Msg("failed to map bill")
			result.Errors++
			continue
		}

		switch mapped.Status {
		case entities.BillStatusMapped:
			result.Mapped++
		case entities.BillStatusDuplicate:
			result.Duplicate++
		case entities.BillStatusUnmapped:
			result.Unmapped++
		}
	}

	logger.Info().
		Int("total", result.Total).
		Int("mapped", result.Mapped).
		Int("duplicate", result.Duplicate).
		Int("unmapped", result.Unmapped).
		Int("errors", result.Errors).
		Msg("mapping batch complete")

	return result, nil
}

// matchCandidates applies the name similarity and date window gates
func (s *MappingService) matchCandidates(billName string, billDates []time.Time, candidates []*entities.OrderCandidate) []scoredCandidate {
	var matches []scoredCandidate

	for _, candidate := range candidates {
		candidateName := utils.CleanPatientName(candidate.PatientFirstName) + " " + utils.CleanPatientName(candidate.PatientLastName)

		similarity := utils.TokenSetRatio(billName, candidateName)
		if similarity < s.cfg.NameMatchThreshold {
			continue
		}

		if !s.datesWithinWindow(billDates, candidate.ServiceDates) {
			continue
		}

		matches = append(matches, scoredCandidate{order: candidate, similarity: similarity})
	}

	// Rank by similarity so later tie-breaking resolves to the
	// strongest name match first.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].similarity > matches[j].similarity
	})

	return matches
}

// breakTies scores each remaining candidate by shared CPT count times
// name similarity. Equal scores resolve to the earlier candidate in
// similarity rank.
func (s *MappingService) breakTies(matches []scoredCandidate, billCPTs map[string]struct{}) scoredCandidate {
	best := matches[0]
	bestScore := tieBreakScore(matches[0], billCPTs)

	for _, candidate := range matches[1:] {
		if score := tieBreakScore(candidate, billCPTs); score > bestScore {
			best = candidate
			bestScore = score
		}
	}

	return best
}

func tieBreakScore(candidate scoredCandidate, billCPTs map[string]struct{}) float64 {
	shared := 0
	for _, cpt := range candidate.order.CPTCodes {
		if _, ok := billCPTs[cpt]; ok {
			shared++
		}
	}
	return float64(shared) * candidate.similarity
}

// datesWithinWindow reports whether any candidate service date falls
// within the configured window of any bill service date.
func (s *MappingService) datesWithinWindow(billDates []time.Time, candidateDates []string) bool {
	window := time.Duration(s.cfg.DateWindowDays) * 24 * time.Hour

	for _, raw := range candidateDates {
		candidateDate, ok := utils.ParseDateOfService(raw)
		if !ok {
			continue
		}
		for _, billDate := range billDates {
			delta := billDate.Sub(candidateDate)
			if delta < 0 {
				delta = -delta
			}
			if delta <= window {
				return true
			}
		}
	}

	return false
}

func parseServiceDates(items []*entities.BillLineItem) []time.Time {
	var dates []time.Time
	for _, item := range items {
		if date, ok := utils.ParseDateOfService(item.DateOfService); ok {
			dates = append(dates, date)
		}
	}
	return dates
}

func (s *MappingService) applyMapped(ctx context.Context, bill *entities.ProviderBill, orderID string) (*MappingResult, error) {
	action := entities.ActionToReview
	outcome := &entities.MappingOutcome{
		BillID:  bill.ID,
		ClaimID: &orderID,
		Status:  entities.BillStatusMapped,
		Action:  &action,
	}

	if err := s.billRepo.ApplyMapping(ctx, outcome); err != nil {
		return nil, err
	}

	s.publish(ctx, bill, entities.BillStatusMapped, &action)

	return &MappingResult{
		BillID:  bill.ID,
		Status:  entities.BillStatusMapped,
		OrderID: orderID,
		Message: "Bill mapped to order",
	}, nil
}

func (s *MappingService) applyDuplicate(ctx context.Context, bill *entities.ProviderBill, orderID string) (*MappingResult, error) {
	action := entities.ActionToReview
	message := "Order already fully paid"
	outcome := &entities.MappingOutcome{
		BillID:                  bill.ID,
		ClaimID:                 &orderID,
		Status:                  entities.BillStatusDuplicate,
		Action:                  &action,
		LastError:               &message,
		IncrementOrderBillCount: true,
	}

	if err := s.billRepo.ApplyMapping(ctx, outcome); err != nil {
		return nil, err
	}

	s.publish(ctx, bill, entities.BillStatusDuplicate, &action)

	return &MappingResult{
		BillID:  bill.ID,
		Status:  entities.BillStatusDuplicate,
		OrderID: orderID,
		Message: message,
	}, nil
}

func (s *MappingService) applyUnmapped(ctx context.Context, bill *entities.ProviderBill, message string) (*MappingResult, error) {
	action := entities.ActionToMap
	outcome := &entities.MappingOutcome{
		BillID:    bill.ID,
		Status:    entities.BillStatusUnmapped,
		Action:    &action,
		LastError: &message,
	}

	if err := s.billRepo.ApplyMapping(ctx, outcome); err != nil {
		return nil, err
	}

	s.publish(ctx, bill, entities.BillStatusUnmapped, &action)

	return &MappingResult{
		BillID:  bill.ID,
		Status:  entities.BillStatusUnmapped,
		Message: message,
	}, nil
}

// publish emits a bill_mapped event on the shared and bill-specific
// channels. Best effort; a nil bus disables publishing.
func (s *MappingService) publish(ctx context.Context, bill *entities.ProviderBill, to entities.BillStatus, action *entities.BillAction) {
	if s.eventBus == nil {
		return
	}

	logger := observability.LoggerFromContext(ctx)
	event := entities.NewBillEvent(bill.ID, entities.BillEventTypeMapped, bill.Status, to, action)

	if err := s.eventBus.Publish(ctx, providers.EventChannelBillUpdates, event); err != nil {
		logger.Warn().Err(err).Str("bill_id", bill.ID).Msg("failed to publish bill event")
	}
	if err := s.eventBus.Publish(ctx, providers.GetBillChannel(bill.ID), event); err != nil {
		logger.Warn().Err(err).Str("bill_id", bill.ID).Msg("failed to publish bill event")
	}
}
