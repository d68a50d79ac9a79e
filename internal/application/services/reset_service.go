package services

import (
	"context"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/providers"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
	"github.com/cdx-ehr/billreview/internal/infrastructure/observability"
)

// ResetService reverts processed bills to MAPPED so the pipeline can
// re-run them. This is the only supported reprocessing path; nothing
// is retried automatically.
type ResetService struct {
	billRepo    repositories.BillRepository
	eventBus    providers.EventBus
	reviewIndex providers.ReviewIndex
}

// NewResetService creates a new reset service. The event bus and
// review index may be nil.
func NewResetService(billRepo repositories.BillRepository, eventBus providers.EventBus, reviewIndex providers.ReviewIndex) *ResetService {
	return &ResetService{
		billRepo:    billRepo,
		eventBus:    eventBus,
		reviewIndex: reviewIndex,
	}
}

// ResetBill reverts one bill to MAPPED, clears its action and error,
// and resets its line-item decisions, in one transaction.
func (s *ResetService) ResetBill(ctx context.Context, billID string) error {
	logger := observability.LoggerFromContext(ctx)

	bill, err := s.billRepo.GetByID(ctx, billID)
	if err != nil {
		return err
	}

	if err := s.billRepo.Reset(ctx, billID); err != nil {
		return err
	}

	s.afterReset(ctx, bill)
	logger.Info().Str("bill_id", billID).Str("from_status", string(bill.Status)).Msg("bill reset for reprocessing")

	return nil
}

// ResetMatching resets every bill matching the filter and returns the
// number of bills reset.
func (s *ResetService) ResetMatching(ctx context.Context, filter repositories.ResetFilter) (int, error) {
	logger := observability.LoggerFromContext(ctx)

	count, err := s.billRepo.ResetMatching(ctx, filter)
	if err != nil {
		return 0, err
	}

	logger.Info().
		Int("count", count).
		Str("status", string(filter.Status)).
		Str("action", string(filter.Action)).
		Msg("bills reset for reprocessing")

	return count, nil
}

// afterReset emits the reset event and drops the bill from the review
// index. Both best effort.
func (s *ResetService) afterReset(ctx context.Context, bill *entities.ProviderBill) {
	logger := observability.LoggerFromContext(ctx)

	if s.eventBus != nil {
		event := entities.NewBillEvent(bill.ID, entities.BillEventTypeReset, bill.Status, entities.BillStatusMapped, nil)
		if err := s.eventBus.Publish(ctx, providers.EventChannelBillUpdates, event); err != nil {
			logger.Warn().Err(err).Str("bill_id", bill.ID).Msg("failed to publish bill event")
		}
		if err := s.eventBus.Publish(ctx, providers.GetBillChannel(bill.ID), event); err != nil {
			logger.Warn().Err(err).Str("bill_id", bill.ID).Msg("failed to publish bill event")
		}
	}

	if s.reviewIndex != nil {
		if err := s.reviewIndex.RemoveBill(ctx, bill.ID); err != nil {
			logger.Warn().Err(err).Str("bill_id", bill.ID).Msg("failed to remove bill from review index")
		}
	}
}
