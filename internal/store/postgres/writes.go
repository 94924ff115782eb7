package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
	"github.com/PredatorDevs/systudents-back-sub001/internal/xid"
)

func (t *pgTx) EnsureLocationStock(ctx context.Context, locationID string, itemIDs []string, by string) error {
	ids := store.SortedUnique(itemIDs)
	if len(ids) == 0 {
		return nil
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO location_stocks (location_id, item_id, created_by, updated_by)
		SELECT $1, item_id, $3, $3
		FROM unnest($2::text[]) AS item_id
		ORDER BY item_id
		ON CONFLICT (location_id, item_id) DO NOTHING
	`, locationID, ids, by)
	return err
}

// LockLocationStock locks the rows in item order so concurrent documents
// touching overlapping items cannot deadlock.
func (t *pgTx) LockLocationStock(ctx context.Context, locationID string, itemIDs []string) (map[string]domain.LocationStock, error) {
	ids := store.SortedUnique(itemIDs)
	out := make(map[string]domain.LocationStock, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := t.q.QueryContext(ctx, `
		SELECT `+stockColumns+`
		FROM location_stocks
		WHERE location_id = $1 AND item_id = ANY($2)
		ORDER BY item_id
		FOR UPDATE
	`, locationID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out[stock.ItemID] = stock
	}
	return out, rows.Err()
}

func (t *pgTx) InsertLocationStock(ctx context.Context, stock domain.LocationStock) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO location_stocks (location_id, item_id, initial_stock, stock, min_stock_alert, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, stock.LocationID, stock.ItemID, stock.InitialStock, stock.Stock, stock.MinStockAlert,
		stock.CreatedBy, stock.UpdatedBy, stock.CreatedAt, stock.UpdatedAt)
	if isUniqueViolation(err) {
		return &store.ConflictError{Entity: "location stock", Key: stock.LocationID + "/" + stock.ItemID, Reason: "already initialized"}
	}
	return err
}

func (t *pgTx) UpdateLocationStock(ctx context.Context, stock domain.LocationStock) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE location_stocks
		SET stock = $3, min_stock_alert = $4, updated_by = $5, updated_at = $6
		WHERE location_id = $1 AND item_id = $2
	`, stock.LocationID, stock.ItemID, stock.Stock, stock.MinStockAlert, stock.UpdatedBy, stock.UpdatedAt)
	if err != nil {
		return err
	}
	return requireAffected(res, "location stock", stock.LocationID+"/"+stock.ItemID)
}

func (t *pgTx) AppendStockMovements(ctx context.Context, movements []domain.StockMovement) error {
	for _, m := range movements {
		if m.ID == "" {
			m.ID = xid.New("mov")
		}
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO stock_movements (id, location_id, item_id, delta, stock_before, stock_after, reason, document_id, adjustment_id, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, m.ID, m.LocationID, m.ItemID, m.Delta, m.StockBefore, m.StockAfter, string(m.Reason),
			nullIfEmpty(m.DocumentID), nullIfEmpty(m.AdjustmentID), m.CreatedBy, m.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) CreateStockAdjustment(ctx context.Context, adj domain.StockAdjustment) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO stock_adjustments (id, adjustment_datetime, comments, adjustment_by, authorized_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, adj.ID, adj.AdjustmentDatetime, adj.Comments, adj.AdjustmentBy, nullIfEmpty(adj.AuthorizedBy), adj.CreatedAt)
	if isUniqueViolation(err) {
		return &store.ConflictError{Entity: "stock adjustment", Key: adj.ID, Reason: "already exists"}
	}
	if err != nil {
		return err
	}

	for i, detail := range adj.Details {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO stock_adjustment_details (adjustment_id, line_no, location_id, item_id, quantity, stock_before, stock_after)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, adj.ID, i+1, detail.LocationID, detail.ItemID, detail.Quantity, detail.StockBefore, detail.StockAfter); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) CreateShiftCut(ctx context.Context, cut domain.ShiftCut) error {
	if cut.Status == domain.ShiftStatusOpen {
		var existing string
		err := t.q.QueryRowContext(ctx, `
			SELECT id FROM shift_cuts WHERE cashier_id = $1 AND status = 'OPEN' FOR UPDATE
		`, cut.CashierID).Scan(&existing)
		if err == nil {
			return &store.SessionAlreadyOpenError{CashierID: cut.CashierID, SessionID: existing}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO shift_cuts (id, cashier_id, location_id, status, opened_at, initial_amount, created_by, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, cut.ID, cut.CashierID, cut.LocationID, string(cut.Status), cut.OpenedAt, cut.InitialAmount,
		cut.CreatedBy, cut.UpdatedBy, cut.UpdatedAt)
	if isUniqueViolation(err) {
		// Lost the race to a concurrent open for the same cashier.
		return &store.SessionAlreadyOpenError{CashierID: cut.CashierID}
	}
	return err
}

func (t *pgTx) LockShiftCut(ctx context.Context, id string) (*domain.ShiftCut, error) {
	return t.shiftCut(ctx, `SELECT `+shiftCutColumns+` FROM shift_cuts WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) ShareShiftCut(ctx context.Context, id string) (*domain.ShiftCut, error) {
	return t.shiftCut(ctx, `SELECT `+shiftCutColumns+` FROM shift_cuts WHERE id = $1 FOR SHARE`, id)
}

func (t *pgTx) UpdateShiftCut(ctx context.Context, cut domain.ShiftCut) error {
	var final, remitted any
	if cut.FinalAmount != nil {
		final = *cut.FinalAmount
	}
	if cut.RemittedAmount != nil {
		remitted = *cut.RemittedAmount
	}
	res, err := t.q.ExecContext(ctx, `
		UPDATE shift_cuts
		SET status = $2, closed_at = $3, settled_at = $4, final_amount = $5, remitted_amount = $6,
		    updated_by = $7, updated_at = $8
		WHERE id = $1
	`, cut.ID, string(cut.Status), nullTime(cut.ClosedAt), nullTime(cut.SettledAt), final, remitted,
		cut.UpdatedBy, cut.UpdatedAt)
	if err != nil {
		return err
	}
	return requireAffected(res, "session", cut.ID)
}

func (t *pgTx) ReserveDocumentNumber(ctx context.Context, key domain.DocumentNumberKey, documentID string) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO document_numbers (document_type_id, doc_number, scope_key, document_id)
		VALUES ($1, $2, $3, $4)
	`, key.DocumentTypeID, key.DocNumber, key.ScopeKey, documentID)
	if isUniqueViolation(err) {
		return &store.ConflictError{Entity: "document number", Key: key.DocNumber, Reason: "already used"}
	}
	return err
}

func (t *pgTx) CreateDocument(ctx context.Context, doc domain.Document) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO documents (
			id, kind, location_id, counterparty_id, document_type_id, payment_type_id, doc_number, number_scope_key,
			doc_datetime, subtotal, discount, tax, total, is_voided, is_active, shift_cut_id, cashier_id,
			created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, doc.ID, string(doc.Kind), doc.LocationID, doc.CounterpartyID, doc.DocumentTypeID, nullIfEmpty(doc.PaymentTypeID),
		doc.DocNumber, doc.NumberScopeKey, doc.DocDatetime, doc.Subtotal, doc.Discount, doc.Tax, doc.Total,
		doc.IsVoided, doc.IsActive, nullIfEmpty(doc.ShiftCutID), nullIfEmpty(doc.CashierID),
		doc.CreatedBy, doc.UpdatedBy, doc.CreatedAt, doc.UpdatedAt)
	if isUniqueViolation(err) {
		return &store.ConflictError{Entity: "document", Key: doc.ID, Reason: "already exists"}
	}
	if err != nil {
		return err
	}

	for _, line := range doc.Lines {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO document_details (document_id, line_no, item_id, unit_price, quantity, is_bonus, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, doc.ID, line.LineNo, line.ItemID, line.UnitPrice, line.Quantity, line.IsBonus, line.IsActive); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) LockDocument(ctx context.Context, id string) (*domain.Document, error) {
	return t.document(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) MarkDocumentVoided(ctx context.Context, id string, by string, reason string, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE documents
		SET is_voided = true, voided_at = $2, voided_by = $3, void_reason = $4, updated_by = $3, updated_at = $2
		WHERE id = $1
	`, id, at, by, nullIfEmpty(reason))
	if err != nil {
		return err
	}
	return requireAffected(res, "document", id)
}

func (t *pgTx) DeactivateDocument(ctx context.Context, id string, by string, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE documents SET is_active = false, updated_by = $2, updated_at = $3 WHERE id = $1
	`, id, by, at)
	if err != nil {
		return err
	}
	if err := requireAffected(res, "document", id); err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `UPDATE document_details SET is_active = false WHERE document_id = $1`, id)
	return err
}

// LockPendingDocuments locks every allocatable document of the counterparty,
// oldest first, and returns those with an outstanding balance.
func (t *pgTx) LockPendingDocuments(ctx context.Context, kind domain.DocumentKind, counterpartyID string) ([]domain.Document, error) {
	docs, err := t.listDocuments(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE kind = $1 AND counterparty_id = $2 AND is_active AND NOT is_voided
		ORDER BY doc_datetime, id
		FOR UPDATE
	`, string(kind), counterpartyID)
	if err != nil {
		return nil, err
	}
	if err := t.fillPaid(ctx, docs); err != nil {
		return nil, err
	}

	out := docs[:0]
	for _, doc := range docs {
		if doc.Outstanding().IsPositive() {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (t *pgTx) CreatePayment(ctx context.Context, payment domain.Payment) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO payments (
			id, document_id, general_payment_id, cashier_id, shift_cut_id, amount, payment_method_id,
			bank_id, reference_number, registered_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, payment.ID, payment.DocumentID, nullIfEmpty(payment.GeneralPaymentID), nullIfEmpty(payment.CashierID),
		nullIfEmpty(payment.ShiftCutID), payment.Amount, payment.PaymentMethodID, nullIfEmpty(payment.BankID),
		nullIfEmpty(payment.ReferenceNumber), payment.RegisteredAt, payment.CreatedBy)
	return err
}

func (t *pgTx) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, location_id, actor_user_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, nullIfEmpty(entry.LocationID), entry.ActorUserID, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func requireAffected(res sql.Result, entity string, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFound(entity, id)
	}
	return nil
}
