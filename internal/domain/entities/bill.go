package entities

import (
	"time"
)

// ProviderBill represents a provider's claim for payment. It is created
// by upstream intake and mutated exclusively by the adjudication
// pipeline from then on.
type ProviderBill struct {
	ID          string      `json:"id" db:"id"`
	ClaimID     *string     `json:"claim_id" db:"claim_id"` // order id, nil until mapped
	Status      BillStatus  `json:"status" db:"status"`
	Action      *BillAction `json:"action" db:"action"`
	LastError   *string     `json:"last_error" db:"last_error"`
	PatientName string      `json:"patient_name" db:"patient_name"`
	PatientDOB  *string     `json:"patient_dob" db:"patient_dob"`
	PatientZip  *string     `json:"patient_zip" db:"patient_zip"`
	TotalCharge float64     `json:"total_charge" db:"total_charge"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// BillLineItem is a single billed procedure on a provider bill. The
// rate resolver owns decision, allowed_amount and reason_code; upstream
// intake owns everything else.
type BillLineItem struct {
	ID             int64        `json:"id" db:"id"`
	ProviderBillID string       `json:"provider_bill_id" db:"provider_bill_id"`
	CPTCode        string       `json:"cpt_code" db:"cpt_code"`
	Modifier       *string      `json:"modifier" db:"modifier"`
	Units          int          `json:"units" db:"units"`
	ChargeAmount   float64      `json:"charge_amount" db:"charge_amount"`
	AllowedAmount  *float64     `json:"allowed_amount" db:"allowed_amount"`
	Decision       LineDecision `json:"decision" db:"decision"`
	ReasonCode     *ReasonCode  `json:"reason_code" db:"reason_code"`
	DateOfService  string       `json:"date_of_service" db:"date_of_service"`
	PlaceOfService *string      `json:"place_of_service" db:"place_of_service"`
}

// LineItemDecision is one resolved rate decision, applied to a line
// item as part of a bill's adjudication outcome.
type LineItemDecision struct {
	LineItemID    int64
	CPTCode       string
	Decision      LineDecision
	AllowedAmount *float64
	ReasonCode    *ReasonCode
}

// AdjudicationOutcome is the full set of mutations produced for one
// bill by one pipeline run. It is applied atomically: every field
// commits together or the bill is untouched.
type AdjudicationOutcome struct {
	BillID    string
	Status    BillStatus
	Action    *BillAction
	LastError *string

	// LineDecisions are per-line rate decisions; empty for outcomes
	// that stop before rate resolution.
	LineDecisions []LineItemDecision

	// ReviewedCPTs marks the matched order line items as reviewed by
	// this bill. Empty when no order line items were matched.
	ReviewedOrderID string
	ReviewedCPTs    []string
}

// NewOutcome builds an outcome carrying only a status change.
func NewOutcome(billID string, status BillStatus, action BillAction, message string) *AdjudicationOutcome {
	out := &AdjudicationOutcome{
		BillID: billID,
		Status: status,
	}
	if action != "" {
		out.Action = &action
	}
	if message != "" {
		out.LastError = &message
	}
	return out
}

// MappingOutcome is the atomically-applied result of mapping one bill
// to an order.
type MappingOutcome struct {
	BillID    string
	ClaimID   *string
	Status    BillStatus
	Action    *BillAction
	LastError *string

	// IncrementOrderBillCount bumps the matched order's received-bill
	// counter; set for duplicate detections.
	IncrementOrderBillCount bool
}
