package entities

// BillStatus is the lifecycle state of a provider bill. Bills enter the
// engine as RECEIVED, are mapped to an order, and are driven toward
// REVIEWED by the adjudication pipeline. ERROR is reachable from any
// state when processing fails unexpectedly.
type BillStatus string

const (
	BillStatusReceived   BillStatus = "RECEIVED"
	BillStatusValid      BillStatus = "VALID"
	BillStatusInvalid    BillStatus = "INVALID"
	BillStatusMapped     BillStatus = "MAPPED"
	BillStatusUnmapped   BillStatus = "UNMAPPED"
	BillStatusDuplicate  BillStatus = "DUPLICATE"
	BillStatusFlagged    BillStatus = "FLAGGED"
	BillStatusReviewFlag BillStatus = "REVIEW_FLAG"
	BillStatusArthrogram BillStatus = "ARTHROGRAM"
	BillStatusReviewed   BillStatus = "REVIEWED"
	BillStatusError      BillStatus = "ERROR"
	BillStatusCompleted  BillStatus = "COMPLETED"
)

// BillAction names the next required remediation for a bill.
type BillAction string

const (
	ActionToValidate               BillAction = "to_validate"
	ActionToMap                    BillAction = "to_map"
	ActionToReview                 BillAction = "to_review"
	ActionUpdateProviderInfo       BillAction = "update_prov_info"
	ActionApplyRate                BillAction = "apply_rate"
	ActionReviewRates              BillAction = "review_rates"
	ActionExactMatchOverbilling    BillAction = "exact_match_overbilling"
	ActionCategoryOverbilling      BillAction = "category_overbilling"
	ActionCompleteLineItemMismatch BillAction = "complete_line_item_mismatch"
	ActionAddressLineItemMismatch  BillAction = "address_line_item_mismatch"
)

// LineDecision is the adjudication decision on a single bill line item.
type LineDecision string

const (
	DecisionPending  LineDecision = "pending"
	DecisionApproved LineDecision = "approved"
	DecisionRejected LineDecision = "rejected"
)

// ReasonCode explains a rejected line item.
type ReasonCode string

const (
	ReasonMissingCPT           ReasonCode = "missing_cpt"
	ReasonMissingNetworkStatus ReasonCode = "missing_network_status"
	ReasonMissingTIN           ReasonCode = "missing_tin"
	ReasonInvalidNetworkStatus ReasonCode = "invalid_network_status"
	ReasonNoRateFound          ReasonCode = "no_rate_found"
)

// billTransitions is the legal status transition table. ERROR is not
// listed as a target because it is reachable from every state.
var billTransitions = map[BillStatus][]BillStatus{
	BillStatusReceived:   {BillStatusValid, BillStatusInvalid, BillStatusMapped, BillStatusUnmapped, BillStatusDuplicate},
	BillStatusValid:      {BillStatusMapped, BillStatusUnmapped, BillStatusDuplicate},
	BillStatusInvalid:    {BillStatusReceived, BillStatusValid},
	BillStatusUnmapped:   {BillStatusMapped, BillStatusReceived},
	BillStatusMapped:     {BillStatusFlagged, BillStatusReviewFlag, BillStatusArthrogram, BillStatusReviewed, BillStatusMapped},
	BillStatusDuplicate:  {BillStatusMapped},
	BillStatusFlagged:    {BillStatusMapped},
	BillStatusReviewFlag: {BillStatusMapped},
	BillStatusArthrogram: {BillStatusMapped, BillStatusCompleted},
	BillStatusReviewed:   {BillStatusCompleted, BillStatusMapped},
	BillStatusError:      {BillStatusMapped, BillStatusReceived},
	BillStatusCompleted:  {},
}

// CanTransitionTo reports whether moving from s to target is a legal
// lifecycle transition. ERROR is always reachable.
func (s BillStatus) CanTransitionTo(target BillStatus) bool {
	if target == BillStatusError {
		return true
	}
	for _, allowed := range billTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends pipeline processing for the
// current run.
func (s BillStatus) Terminal() bool {
	switch s {
	case BillStatusFlagged, BillStatusReviewFlag, BillStatusArthrogram,
		BillStatusReviewed, BillStatusError, BillStatusCompleted,
		BillStatusDuplicate, BillStatusUnmapped:
		return true
	}
	return false
}
