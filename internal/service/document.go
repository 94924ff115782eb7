package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
	"github.com/PredatorDevs/systudents-back-sub001/internal/xid"
)

// DocumentLedger creates sale and purchase documents together with their
// number reservation, session link and stock effect in one unit of work.
type DocumentLedger struct {
	*core
	stock   *StockLedger
	numbers *NumberValidator
}

// documentTotals returns the subtotal and the expected total of the lines.
// Bonus lines move stock but carry no amount.
func documentTotals(header domain.DocumentHeader, lines []domain.DocumentLineInput) (decimal.Decimal, decimal.Decimal) {
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.IsBonus {
			continue
		}
		subtotal = subtotal.Add(line.UnitPrice.Mul(line.Quantity))
	}
	return subtotal, subtotal.Sub(header.Discount).Add(header.Tax)
}

func (d *DocumentLedger) Create(ctx context.Context, kind domain.DocumentKind, req domain.DocumentRequest) (domain.DocumentCreated, error) {
	if err := d.check(req); err != nil {
		return domain.DocumentCreated{}, err
	}

	for i, line := range req.Lines {
		if err := requireQuantityScale(fmt.Sprintf("lines[%d].quantity", i), line.Quantity); err != nil {
			return domain.DocumentCreated{}, err
		}
		if err := requireQuantityScale(fmt.Sprintf("lines[%d].unit_price", i), line.UnitPrice); err != nil {
			return domain.DocumentCreated{}, err
		}
	}

	subtotal, expected := documentTotals(req.Header, req.Lines)
	if expected.IsNegative() {
		return domain.DocumentCreated{}, store.Invalid("header.discount", "exceeds subtotal plus tax")
	}
	if !round2(expected).Equal(round2(req.Header.Total)) {
		return domain.DocumentCreated{}, store.Invalid("header.total",
			fmt.Sprintf("%s does not match lines total %s", req.Header.Total.StringFixed(2), round2(expected).StringFixed(2)))
	}

	actor := actorOf(ctx)
	cashierID, err := cashierFor(actor, "header.cashier_id", req.Header.CashierID)
	if err != nil {
		return domain.DocumentCreated{}, err
	}

	prefix := "sale"
	if kind == domain.DocumentKindPurchase {
		prefix = "pur"
	}
	op := "document.create_" + string(kind)

	var out domain.DocumentCreated
	err = d.inTx(ctx, op, func(ctx context.Context, tx store.Tx) error {
		if err := d.requireParties(ctx, tx, kind, req); err != nil {
			return err
		}

		docID := xid.New(prefix)
		key, err := d.numbers.Reserve(ctx, tx, kind, docID, req.Header)
		if err != nil {
			return err
		}

		var shiftCutID string
		if kind == domain.DocumentKindSale {
			cut, err := activeFor(ctx, tx, cashierID, req.Header.LocationID)
			if err != nil {
				return err
			}
			shiftCutID = cut.ID
		}

		lines := make([]domain.DocumentLine, 0, len(req.Lines))
		for i, line := range req.Lines {
			lines = append(lines, domain.DocumentLine{
				LineNo:    i + 1,
				ItemID:    line.ItemID,
				UnitPrice: line.UnitPrice,
				Quantity:  line.Quantity,
				IsBonus:   line.IsBonus,
				IsActive:  true,
			})
		}
		if err := d.stock.ReserveForDocument(ctx, tx, kind, docID, req.Header.LocationID, lines, req.Options.NegativeStockItems); err != nil {
			return err
		}

		now := d.now()
		docDatetime := now
		if req.Header.DocDatetime != nil {
			docDatetime = req.Header.DocDatetime.UTC()
		}
		doc := domain.Document{
			ID:             docID,
			Kind:           kind,
			LocationID:     req.Header.LocationID,
			CounterpartyID: req.Header.CounterpartyID,
			DocumentTypeID: req.Header.DocumentTypeID,
			PaymentTypeID:  req.Header.PaymentTypeID,
			DocNumber:      req.Header.DocNumber,
			NumberScopeKey: key.ScopeKey,
			DocDatetime:    docDatetime,
			Subtotal:       round2(subtotal),
			Discount:       round2(req.Header.Discount),
			Tax:            round2(req.Header.Tax),
			Total:          round2(req.Header.Total),
			IsActive:       true,
			ShiftCutID:     shiftCutID,
			CashierID:      cashierID,
			CreatedBy:      actor.UserID,
			UpdatedBy:      actor.UserID,
			CreatedAt:      now,
			UpdatedAt:      now,
			Lines:          lines,
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}

		out = domain.DocumentCreated{DocumentID: doc.ID, Kind: kind, Total: doc.Total, ShiftCutID: shiftCutID}
		return d.audit(ctx, tx, doc.LocationID, string(kind)+"_create", "document", doc.ID,
			fmt.Sprintf("number=%s,total=%s,lines=%d,shift=%s", doc.DocNumber, doc.Total.StringFixed(2), len(lines), shiftCutID))
	})
	if err != nil {
		return domain.DocumentCreated{}, err
	}
	return out, nil
}

// requireParties checks the master data referenced by the request. Unknown ids
// are NotFound; no placeholder rows are created.
func (d *DocumentLedger) requireParties(ctx context.Context, tx store.Reader, kind domain.DocumentKind, req domain.DocumentRequest) error {
	location, err := tx.GetLocation(ctx, req.Header.LocationID)
	if err != nil {
		return err
	}
	if !location.Active {
		return store.Invalid("header.location_id", "location is inactive")
	}

	counterparty, err := tx.GetCounterparty(ctx, req.Header.CounterpartyID)
	if err != nil {
		return err
	}
	if want := domain.CounterpartyKindFor(kind); counterparty.Kind != want {
		return store.Invalid("header.counterparty_id", fmt.Sprintf("%s documents need a %s", kind, want))
	}
	if !counterparty.Active {
		return store.Invalid("header.counterparty_id", "counterparty is inactive")
	}

	itemIDs := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		itemIDs = append(itemIDs, line.ItemID)
	}
	items, err := tx.GetItems(ctx, itemIDs)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	for i, line := range req.Lines {
		item, ok := items[line.ItemID]
		if !ok {
			return store.NotFound("item", line.ItemID)
		}
		if !item.Active {
			return store.Invalid(fmt.Sprintf("lines[%d].item_id", i), "item is inactive")
		}
	}
	return nil
}

// Remove hides a document. A document that still carries stock effects is
// reversed first; payments are left untouched.
func (d *DocumentLedger) Remove(ctx context.Context, documentID string) error {
	if err := requireID("document_id", documentID); err != nil {
		return err
	}

	err := d.inTx(ctx, "document.remove", func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.LockDocument(ctx, documentID)
		if err != nil {
			return err
		}
		d.invalidate(ctx, doc.ID)
		if !doc.IsActive {
			return nil
		}
		if !doc.IsVoided {
			if err := d.stock.ReverseForDocument(ctx, tx, *doc); err != nil {
				return err
			}
		}

		actor := actorOf(ctx)
		if err := tx.DeactivateDocument(ctx, documentID, actor.UserID, d.now()); err != nil {
			return err
		}
		return d.audit(ctx, tx, doc.LocationID, "document_remove", "document", doc.ID,
			fmt.Sprintf("number=%s,was_voided=%t", doc.DocNumber, doc.IsVoided))
	})
	d.invalidate(ctx, documentID)
	return err
}

func (d *DocumentLedger) Get(ctx context.Context, documentID string) (domain.Document, error) {
	if err := requireID("document_id", documentID); err != nil {
		return domain.Document{}, err
	}
	doc, err := d.repo.GetDocument(ctx, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	return *doc, nil
}

func (d *DocumentLedger) Payments(ctx context.Context, documentID string) ([]domain.Payment, error) {
	if _, err := d.Get(ctx, documentID); err != nil {
		return nil, err
	}
	return d.repo.ListPayments(ctx, documentID)
}
