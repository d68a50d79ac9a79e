package search

import (
	"context"
	"fmt"
	"time"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/providers"
	tsclient "github.com/cdx-ehr/billreview/internal/infrastructure/clients/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
)

const collectionName = tsclient.FlaggedBillsCollection

// TypesenseAdapter implements the flagged-bill review index using Typesense
type TypesenseAdapter struct {
	client *tsclient.Client
}

// Ensure TypesenseAdapter implements ReviewIndex
var _ providers.ReviewIndex = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

// IndexBill indexes or re-indexes a bill together with its line items
func (a *TypesenseAdapter) IndexBill(ctx context.Context, bill *entities.ProviderBill, lines []*entities.BillLineItem) error {
	document := billDocument(bill, lines)

	_, err := a.client.Client().Collection(collectionName).Documents().Upsert(ctx, document)
	if err != nil {
		return fmt.Errorf("failed to index bill: %w", err)
	}

	return nil
}

// RemoveBill removes a bill from the index
func (a *TypesenseAdapter) RemoveBill(ctx context.Context, billID string) error {
	_, err := a.client.Client().Collection(collectionName).Document(billID).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete bill from index: %w", err)
	}
	return nil
}

// SearchBills performs a free-text search over indexed bills
func (a *TypesenseAdapter) SearchBills(ctx context.Context, query string, limit int) ([]*entities.ProviderBill, error) {
	if limit <= 0 {
		limit = 20
	}

	searchParams := &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String("patient_name,last_error,cpt_codes"),
		PerPage: pointer.Int(limit),
	}

	result, err := a.client.Client().Collection(collectionName).Documents().Search(ctx, searchParams)
	if err != nil {
		return nil, fmt.Errorf("failed to search bills: %w", err)
	}

	bills := []*entities.ProviderBill{}
	if result.Hits == nil {
		return bills, nil
	}

	for _, hit := range *result.Hits {
		doc := *hit.Document
		bill := &entities.ProviderBill{}

		if id, ok := doc["id"].(string); ok {
			bill.ID = id
		}
		if name, ok := doc["patient_name"].(string); ok {
			bill.PatientName = name
		}
		if status, ok := doc["status"].(string); ok {
			bill.Status = entities.BillStatus(status)
		}
		if action, ok := doc["action"].(string); ok && action != "" {
			ba := entities.BillAction(action)
			bill.Action = &ba
		}
		if lastError, ok := doc["last_error"].(string); ok && lastError != "" {
			bill.LastError = &lastError
		}
		if totalCharge, ok := doc["total_charge"].(float64); ok {
			bill.TotalCharge = totalCharge
		}
		if updatedAt, ok := doc["updated_at"].(float64); ok {
			bill.UpdatedAt = time.Unix(int64(updatedAt), 0)
		}

		bills = append(bills, bill)
	}

	return bills, nil
}

func billDocument(bill *entities.ProviderBill, lines []*entities.BillLineItem) map[string]interface{} {
	cptCodes := make([]string, 0, len(lines))
	for _, line := range lines {
		cptCodes = append(cptCodes, line.CPTCode)
	}

	document := map[string]interface{}{
		"id":           bill.ID,
		"patient_name": bill.PatientName,
		"status":       string(bill.Status),
		"total_charge": bill.TotalCharge,
		"cpt_codes":    cptCodes,
		"updated_at":   bill.UpdatedAt.Unix(),
	}

	if bill.Action != nil {
		document["action"] = string(*bill.Action)
	}
	if bill.LastError != nil {
		document["last_error"] = *bill.LastError
	}

	return document
}
