package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
	"github.com/cdx-ehr/billreview/internal/infrastructure/clients/postgres"
	apperrors "github.com/cdx-ehr/billreview/pkg/errors"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

// BillAdapter implements the BillRepository interface
type BillAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewBillAdapter creates a new provider bill adapter
func NewBillAdapter(client *postgres.Client) repositories.BillRepository {
	return &BillAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetByID retrieves a provider bill by ID
func (a *BillAdapter) GetByID(ctx context.Context, id string) (*entities.ProviderBill, error) {
	query, args, err := a.db.Select(
		"id", "claim_id", "status", "action", "last_error", "patient_name",
		"patient_dob", "patient_zip", "total_charge", "created_at", "updated_at",
	).From("provider_bills").
		Where(goqu.Ex{"id": id}).
		ToSQL()

	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	bill, err := scanBill(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("bill with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get bill", err)
	}

	return bill, nil
}

// ListByStatus retrieves bills in a lifecycle state, oldest first
func (a *BillAdapter) ListByStatus(ctx context.Context, status entities.BillStatus, limit int) ([]*entities.ProviderBill, error) {
	ds := a.db.Select(
		"id", "claim_id", "status", "action", "last_error", "patient_name",
		"patient_dob", "patient_zip", "total_charge", "created_at", "updated_at",
	).From("provider_bills").
		Where(goqu.Ex{"status": string(status)}).
		Order(goqu.I("created_at").Asc())

	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list bills", err)
	}
	defer rows.Close()

	var bills []*entities.ProviderBill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan bill", err)
		}
		bills = append(bills, bill)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating bills", err)
	}

	return bills, nil
}

// ListLineItems retrieves a bill's line items ordered by date of service
func (a *BillAdapter) ListLineItems(ctx context.Context, billID string) ([]*entities.BillLineItem, error) {
	query, args, err := a.db.Select(
		"id", "provider_bill_id", "cpt_code", "modifier", "units",
		"charge_amount", "allowed_amount", "decision", "reason_code",
		"date_of_service", "place_of_service",
	).From("bill_line_items").
		Where(goqu.Ex{"provider_bill_id": billID}).
		Order(goqu.I("date_of_service").Asc(), goqu.I("id").Asc()).
		ToSQL()

	if err != nil {
		return nil, apperrors.NewInternalError("failed to build line item query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list bill line items", err)
	}
	defer rows.Close()

	var items []*entities.BillLineItem
	for rows.Next() {
		item := &entities.BillLineItem{}
		var modifier, reasonCode, placeOfService sql.NullString
		var allowedAmount sql.NullFloat64

		err := rows.Scan(
			&item.ID,
			&item.ProviderBillID,
			&item.CPTCode,
			&modifier,
			&item.Units,
			&item.ChargeAmount,
			&allowedAmount,
			&item.Decision,
			&reasonCode,
			&item.DateOfService,
			&placeOfService,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan bill line item", err)
		}

		if modifier.Valid {
			item.Modifier = &modifier.String
		}
		if allowedAmount.Valid {
			item.AllowedAmount = &allowedAmount.Float64
		}
		if reasonCode.Valid {
			rc := entities.ReasonCode(reasonCode.String)
			item.ReasonCode = &rc
		}
		if placeOfService.Valid {
			item.PlaceOfService = &placeOfService.String
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating bill line items", err)
	}

	return items, nil
}

// ApplyOutcome applies one bill's full adjudication outcome in a single
// transaction: the bill row, its line-item decisions, and the reviewed
// flags on the matched order line items commit together or not at all.
func (a *BillAdapter) ApplyOutcome(ctx context.Context, outcome *entities.AdjudicationOutcome) error {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := a.updateBillTx(ctx, tx, outcome.BillID, outcome.Status, outcome.Action, outcome.LastError); err != nil {
		return err
	}

	for _, decision := range outcome.LineDecisions {
		record := goqu.Record{
			"decision":       string(decision.Decision),
			"allowed_amount": nullFloat(decision.AllowedAmount),
			"reason_code":    nullReason(decision.ReasonCode),
		}

		query, args, err := a.db.Update("bill_line_items").
			Set(record).
			Where(goqu.Ex{"id": decision.LineItemID, "provider_bill_id": outcome.BillID}).
			ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build line decision query", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return apperrors.NewInternalError("failed to apply line decision", err)
		}
	}

	if outcome.ReviewedOrderID != "" && len(outcome.ReviewedCPTs) > 0 {
		query, args, err := a.db.Update("order_line_items").
			Set(goqu.Record{"bill_reviewed": outcome.BillID}).
			Where(goqu.Ex{
				"order_id":      outcome.ReviewedOrderID,
				"cpt":           outcome.ReviewedCPTs,
				"bill_reviewed": nil,
			}).
			ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build reviewed flag query", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return apperrors.NewInternalError("failed to mark order line items reviewed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit outcome", err)
	}

	return nil
}

// ApplyMapping applies a mapping outcome atomically, including the
// duplicate bill counter increment on the matched order.
func (a *BillAdapter) ApplyMapping(ctx context.Context, outcome *entities.MappingOutcome) error {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	record := goqu.Record{
		"claim_id":   nullString(outcome.ClaimID),
		"status":     string(outcome.Status),
		"action":     nullAction(outcome.Action),
		"last_error": nullString(outcome.LastError),
		"updated_at": time.Now(),
	}

	query, args, err := a.db.Update("provider_bills").
		Set(record).
		Where(goqu.Ex{"id": outcome.BillID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build mapping query", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to apply mapping", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("bill with id %s not found", outcome.BillID))
	}

	if outcome.IncrementOrderBillCount && outcome.ClaimID != nil {
		query, args, err := a.db.Update("orders").
			Set(goqu.Record{"bills_rec": goqu.L("bills_rec + 1")}).
			Where(goqu.Ex{"order_id": *outcome.ClaimID}).
			ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build counter query", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return apperrors.NewInternalError("failed to increment order bill counter", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit mapping", err)
	}

	return nil
}

// Reset reverts a processed bill to MAPPED and resets its line items
// to pending in a single transaction.
func (a *BillAdapter) Reset(ctx context.Context, billID string) error {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := a.resetBillTx(ctx, tx, billID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit reset", err)
	}

	return nil
}

// ResetMatching resets every bill matching the filter and returns the
// number of bills reset. All resets commit in one transaction.
func (a *BillAdapter) ResetMatching(ctx context.Context, filter repositories.ResetFilter) (int, error) {
	ds := a.db.Select("id").From("provider_bills")

	if filter.Status != "" {
		ds = ds.Where(goqu.Ex{"status": string(filter.Status)})
	}
	if filter.Action != "" {
		ds = ds.Where(goqu.Ex{"action": string(filter.Action)})
	}
	if filter.ErrorContains != "" {
		ds = ds.Where(goqu.I("last_error").ILike(fmt.Sprintf("%%%s%%", filter.ErrorContains)))
	}

	ds = ds.Order(goqu.I("created_at").Asc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build reset filter query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to select bills to reset", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, apperrors.NewInternalError("failed to scan bill id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, apperrors.NewInternalError("error iterating bill ids", err)
	}

	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if err := a.resetBillTx(ctx, tx, id); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.NewInternalError("failed to commit resets", err)
	}

	return len(ids), nil
}

func (a *BillAdapter) updateBillTx(ctx context.Context, tx *sql.Tx, billID string, status entities.BillStatus, action *entities.BillAction, lastError *string) error {
	record := goqu.Record{
		"status":     string(status),
		"action":     nullAction(action),
		"last_error": nullString(lastError),
		"updated_at": time.Now(),
	}

	query, args, err := a.db.Update("provider_bills").
		Set(record).
		Where(goqu.Ex{"id": billID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build bill update query", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update bill", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("bill with id %s not found", billID))
	}

	return nil
}

func (a *BillAdapter) resetBillTx(ctx context.Context, tx *sql.Tx, billID string) error {
	if err := a.updateBillTx(ctx, tx, billID, entities.BillStatusMapped, nil, nil); err != nil {
		return err
	}

	query, args, err := a.db.Update("bill_line_items").
		Set(goqu.Record{
			"decision":       string(entities.DecisionPending),
			"allowed_amount": nil,
			"reason_code":    nil,
		}).
		Where(goqu.Ex{"provider_bill_id": billID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build line reset query", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to reset bill line items", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBill(row rowScanner) (*entities.ProviderBill, error) {
	bill := &entities.ProviderBill{}
	var claimID, action, lastError, patientDOB, patientZip sql.NullString

	err := row.Scan(
		&bill.ID,
		&claimID,
		&bill.Status,
		&action,
		&lastError,
		&bill.PatientName,
		&patientDOB,
		&patientZip,
		&bill.TotalCharge,
		&bill.CreatedAt,
		&bill.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if claimID.Valid {
		bill.ClaimID = &claimID.String
	}
	if action.Valid {
		ba := entities.BillAction(action.String)
		bill.Action = &ba
	}
	if lastError.Valid {
		bill.LastError = &lastError.String
	}
	if patientDOB.Valid {
		bill.PatientDOB = &patientDOB.String
	}
	if patientZip.Valid {
		bill.PatientZip = &patientZip.String
	}

	return bill, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullAction(a *entities.BillAction) sql.NullString {
	if a == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*a), Valid: true}
}

func nullReason(r *entities.ReasonCode) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}
