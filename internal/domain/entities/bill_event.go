package entities

import (
	"time"

	"github.com/google/uuid"
)

// BillEventType represents the type of bill lifecycle event.
type BillEventType string

const (
	BillEventTypeMapped      BillEventType = "bill_mapped"
	BillEventTypeAdjudicated BillEventType = "bill_adjudicated"
	BillEventTypeReset       BillEventType = "bill_reset"
)

// BillEvent is a lifecycle notification published when a bill's status
// changes, consumed by the review dashboard.
type BillEvent struct {
	ID         string        `json:"id"`
	BillID     string        `json:"bill_id"`
	EventType  BillEventType `json:"event_type"`
	FromStatus BillStatus    `json:"from_status"`
	ToStatus   BillStatus    `json:"to_status"`
	Action     *BillAction   `json:"action,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// NewBillEvent creates a new bill lifecycle event.
func NewBillEvent(billID string, eventType BillEventType, from, to BillStatus, action *BillAction) *BillEvent {
	return &BillEvent{
		ID:         uuid.NewString(),
		BillID:     billID,
		EventType:  eventType,
		FromStatus: from,
		ToStatus:   to,
		Action:     action,
		Timestamp:  time.Now(),
	}
}
