package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
)

const documentColumns = `id, kind, location_id, counterparty_id, document_type_id, COALESCE(payment_type_id, ''),
	doc_number, number_scope_key, doc_datetime, subtotal, discount, tax, total,
	is_voided, voided_at, COALESCE(voided_by, ''), COALESCE(void_reason, ''), is_active,
	COALESCE(shift_cut_id, ''), COALESCE(cashier_id, ''), created_by, updated_by, created_at, updated_at`

const movementColumns = `id, seq, location_id, item_id, delta, stock_before, stock_after, reason,
	COALESCE(document_id, ''), COALESCE(adjustment_id, ''), created_by, created_at`

const shiftCutColumns = `id, cashier_id, location_id, status, opened_at, closed_at, settled_at,
	initial_amount, final_amount, remitted_amount, created_by, updated_by, updated_at`

const paymentColumns = `id, document_id, COALESCE(general_payment_id, ''), COALESCE(cashier_id, ''),
	COALESCE(shift_cut_id, ''), amount, payment_method_id, COALESCE(bank_id, ''),
	COALESCE(reference_number, ''), registered_at, created_by`

const stockColumns = `location_id, item_id, initial_stock, stock, min_stock_alert, created_by, updated_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r queries) GetItems(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	out := make(map[string]domain.Item, len(ids))
	ids = store.SortedUnique(ids)
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, kind, name, cost, is_taxable, is_service, active
		FROM items
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Kind, &item.Name, &item.Cost, &item.IsTaxable, &item.IsService, &item.Active); err != nil {
			return nil, err
		}
		out[item.ID] = item
	}
	return out, rows.Err()
}

func (r queries) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	var location domain.Location
	err := r.q.QueryRowContext(ctx, `SELECT id, name, active FROM locations WHERE id = $1`, id).
		Scan(&location.ID, &location.Name, &location.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("location", id)
	}
	if err != nil {
		return nil, err
	}
	return &location, nil
}

func (r queries) GetCounterparty(ctx context.Context, id string) (*domain.Counterparty, error) {
	var counterparty domain.Counterparty
	err := r.q.QueryRowContext(ctx, `SELECT id, kind, name, active FROM counterparties WHERE id = $1`, id).
		Scan(&counterparty.ID, &counterparty.Kind, &counterparty.Name, &counterparty.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("counterparty", id)
	}
	if err != nil {
		return nil, err
	}
	return &counterparty, nil
}

func (r queries) GetDocumentType(ctx context.Context, id string) (*domain.DocumentType, error) {
	var docType domain.DocumentType
	err := r.q.QueryRowContext(ctx, `SELECT id, kind, name, number_scope, active FROM document_types WHERE id = $1`, id).
		Scan(&docType.ID, &docType.Kind, &docType.Name, &docType.NumberScope, &docType.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("document type", id)
	}
	if err != nil {
		return nil, err
	}
	return &docType, nil
}

func (r queries) DocumentNumberTaken(ctx context.Context, key domain.DocumentNumberKey) (bool, error) {
	var taken bool
	err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM document_numbers
			WHERE document_type_id = $1 AND doc_number = $2 AND scope_key = $3
		)
	`, key.DocumentTypeID, key.DocNumber, key.ScopeKey).Scan(&taken)
	return taken, err
}

func (r queries) GetLocationStock(ctx context.Context, locationID string, itemID string) (*domain.LocationStock, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM location_stocks WHERE location_id = $1 AND item_id = $2`, locationID, itemID)
	stock, err := scanStock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("location stock", locationID+"/"+itemID)
	}
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

func (r queries) ListLowStock(ctx context.Context, locationID string) ([]domain.LocationStock, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+stockColumns+`
		FROM location_stocks
		WHERE location_id = $1 AND min_stock_alert > 0 AND stock <= min_stock_alert
		ORDER BY item_id
	`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.LocationStock, 0, 8)
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, stock)
	}
	return out, rows.Err()
}

func (r queries) ListStockMovements(ctx context.Context, locationID string, itemID string) ([]domain.StockMovement, error) {
	return r.listMovements(ctx, `
		SELECT `+movementColumns+`
		FROM stock_movements
		WHERE location_id = $1 AND item_id = $2
		ORDER BY seq
	`, locationID, itemID)
}

func (r queries) ListDocumentMovements(ctx context.Context, documentID string) ([]domain.StockMovement, error) {
	return r.listMovements(ctx, `
		SELECT `+movementColumns+`
		FROM stock_movements
		WHERE document_id = $1
		ORDER BY seq
	`, documentID)
}

func (r queries) listMovements(ctx context.Context, query string, args ...any) ([]domain.StockMovement, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.StockMovement, 0, 16)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.Seq, &m.LocationID, &m.ItemID, &m.Delta, &m.StockBefore, &m.StockAfter,
			&m.Reason, &m.DocumentID, &m.AdjustmentID, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r queries) GetShiftCut(ctx context.Context, id string) (*domain.ShiftCut, error) {
	return r.shiftCut(ctx, `SELECT `+shiftCutColumns+` FROM shift_cuts WHERE id = $1`, id)
}

func (r queries) FindOpenShiftCut(ctx context.Context, q domain.SessionQuery) (*domain.ShiftCut, error) {
	cut, err := r.shiftCut(ctx, `
		SELECT `+shiftCutColumns+`
		FROM shift_cuts
		WHERE status = 'OPEN'
		  AND ($1 = '' OR cashier_id = $1)
		  AND ($2 = '' OR location_id = $2)
		ORDER BY opened_at DESC
		LIMIT 1
	`, q.CashierID, q.LocationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	return cut, err
}

func (r queries) shiftCut(ctx context.Context, query string, args ...any) (*domain.ShiftCut, error) {
	var (
		cut       domain.ShiftCut
		closedAt  sql.NullTime
		settledAt sql.NullTime
		final     decimal.NullDecimal
		remitted  decimal.NullDecimal
	)
	err := r.q.QueryRowContext(ctx, query, args...).Scan(
		&cut.ID, &cut.CashierID, &cut.LocationID, &cut.Status, &cut.OpenedAt, &closedAt, &settledAt,
		&cut.InitialAmount, &final, &remitted, &cut.CreatedBy, &cut.UpdatedBy, &cut.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		id, _ := args[0].(string)
		return nil, store.NotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	cut.ClosedAt = timePtr(closedAt)
	cut.SettledAt = timePtr(settledAt)
	if final.Valid {
		cut.FinalAmount = &final.Decimal
	}
	if remitted.Valid {
		cut.RemittedAmount = &remitted.Decimal
	}
	return &cut, nil
}

func (r queries) ListShiftCutDocuments(ctx context.Context, shiftCutID string) ([]domain.Document, error) {
	docs, err := r.listDocuments(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE shift_cut_id = $1
		ORDER BY doc_datetime, id
	`, shiftCutID)
	if err != nil {
		return nil, err
	}
	if err := r.fillPaid(ctx, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r queries) ListShiftCutPayments(ctx context.Context, shiftCutID string) ([]domain.Payment, error) {
	return r.listPayments(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE shift_cut_id = $1
		ORDER BY registered_at, id
	`, shiftCutID)
}

func (r queries) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return r.document(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
}

// document loads a header, its lines and its paid amount.
func (r queries) document(ctx context.Context, query string, id string) (*domain.Document, error) {
	doc, err := scanDocument(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("document", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT line_no, item_id, unit_price, quantity, is_bonus, is_active
		FROM document_details
		WHERE document_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.DocumentLine
		if err := rows.Scan(&line.LineNo, &line.ItemID, &line.UnitPrice, &line.Quantity, &line.IsBonus, &line.IsActive); err != nil {
			return nil, err
		}
		doc.Lines = append(doc.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs := []domain.Document{doc}
	if err := r.fillPaid(ctx, docs); err != nil {
		return nil, err
	}
	return &docs[0], nil
}

func (r queries) listDocuments(ctx context.Context, query string, args ...any) ([]domain.Document, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Document, 0, 16)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// fillPaid sets PaidAmount from the payments table. Kept out of the header
// query so the header can be locked with FOR UPDATE.
func (r queries) fillPaid(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT document_id, SUM(amount)
		FROM payments
		WHERE document_id = ANY($1)
		GROUP BY document_id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	paid := make(map[string]decimal.Decimal, len(docs))
	for rows.Next() {
		var (
			id  string
			sum decimal.Decimal
		)
		if err := rows.Scan(&id, &sum); err != nil {
			return err
		}
		paid[id] = sum
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range docs {
		docs[i].PaidAmount = paid[docs[i].ID]
	}
	return nil
}

func (r queries) ListPayments(ctx context.Context, documentID string) ([]domain.Payment, error) {
	return r.listPayments(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE document_id = $1
		ORDER BY registered_at, id
	`, documentID)
}

func (r queries) listPayments(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Payment, 0, 8)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.GeneralPaymentID, &p.CashierID, &p.ShiftCutID, &p.Amount,
			&p.PaymentMethodID, &p.BankID, &p.ReferenceNumber, &p.RegisteredAt, &p.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r queries) ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, COALESCE(location_id, ''), actor_user_id, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR entity_type = $1)
		  AND ($2 = '' OR entity_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.LocationID, &entry.ActorUserID, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanStock(row rowScanner) (domain.LocationStock, error) {
	var stock domain.LocationStock
	err := row.Scan(&stock.LocationID, &stock.ItemID, &stock.InitialStock, &stock.Stock, &stock.MinStockAlert,
		&stock.CreatedBy, &stock.UpdatedBy, &stock.CreatedAt, &stock.UpdatedAt)
	return stock, err
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		doc      domain.Document
		voidedAt sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.Kind, &doc.LocationID, &doc.CounterpartyID, &doc.DocumentTypeID, &doc.PaymentTypeID,
		&doc.DocNumber, &doc.NumberScopeKey, &doc.DocDatetime, &doc.Subtotal, &doc.Discount, &doc.Tax, &doc.Total,
		&doc.IsVoided, &voidedAt, &doc.VoidedBy, &doc.VoidReason, &doc.IsActive,
		&doc.ShiftCutID, &doc.CashierID, &doc.CreatedBy, &doc.UpdatedBy, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return doc, err
	}
	doc.VoidedAt = timePtr(voidedAt)
	return doc, nil
}
