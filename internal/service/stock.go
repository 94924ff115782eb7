package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
	"github.com/PredatorDevs/systudents-back-sub001/internal/xid"
)

// StockLedger is the only writer of LocationStock rows. Every mutation goes
// through applyChanges and leaves one movement per change.
type StockLedger struct {
	*core
}

type stockChange struct {
	LocationID    string
	ItemID        string
	Delta         decimal.Decimal
	Reason        domain.MovementReason
	DocumentID    string
	AdjustmentID  string
	AllowNegative bool
}

// applyChanges locks every touched row (location, then item order), applies the
// changes in order and fails the whole batch before any write when one of them
// would leave stock below zero without an override.
func (l *StockLedger) applyChanges(ctx context.Context, tx store.Tx, changes []stockChange) ([]domain.StockMovement, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	actor := actorOf(ctx)

	byLocation := make(map[string][]string, 2)
	for _, change := range changes {
		byLocation[change.LocationID] = append(byLocation[change.LocationID], change.ItemID)
	}
	locations := make([]string, 0, len(byLocation))
	for locationID := range byLocation {
		locations = append(locations, locationID)
	}
	sort.Strings(locations)

	rows := make(map[string]domain.LocationStock, len(changes))
	for _, locationID := range locations {
		itemIDs := store.SortedUnique(byLocation[locationID])
		if err := tx.EnsureLocationStock(ctx, locationID, itemIDs, actor.UserID); err != nil {
			return nil, fmt.Errorf("ensure stock rows at %s: %w", locationID, err)
		}
		locked, err := tx.LockLocationStock(ctx, locationID, itemIDs)
		if err != nil {
			return nil, fmt.Errorf("lock stock rows at %s: %w", locationID, err)
		}
		for _, itemID := range itemIDs {
			row, ok := locked[itemID]
			if !ok {
				return nil, &store.InconsistentError{Entity: "location stock", ID: locationID + "/" + itemID, Detail: "row missing after ensure"}
			}
			rows[stockRowKey(locationID, itemID)] = row
		}
	}

	now := l.now()
	movements := make([]domain.StockMovement, 0, len(changes))
	for _, change := range changes {
		key := stockRowKey(change.LocationID, change.ItemID)
		row := rows[key]
		after := row.Stock.Add(change.Delta)
		if after.IsNegative() && change.Delta.IsNegative() && !change.AllowNegative {
			return nil, &store.InsufficientStockError{
				LocationID: change.LocationID,
				ItemID:     change.ItemID,
				Available:  row.Stock,
				Requested:  change.Delta.Neg(),
			}
		}

		movements = append(movements, domain.StockMovement{
			ID:           xid.New("mov"),
			LocationID:   change.LocationID,
			ItemID:       change.ItemID,
			Delta:        change.Delta,
			StockBefore:  row.Stock,
			StockAfter:   after,
			Reason:       change.Reason,
			DocumentID:   change.DocumentID,
			AdjustmentID: change.AdjustmentID,
			CreatedBy:    actor.UserID,
			CreatedAt:    now,
		})
		row.Stock = after
		row.UpdatedBy = actor.UserID
		row.UpdatedAt = now
		rows[key] = row
	}

	touched := make([]string, 0, len(rows))
	for key := range rows {
		touched = append(touched, key)
	}
	sort.Strings(touched)
	for _, key := range touched {
		if err := tx.UpdateLocationStock(ctx, rows[key]); err != nil {
			return nil, fmt.Errorf("update stock %s: %w", key, err)
		}
	}
	if err := tx.AppendStockMovements(ctx, movements); err != nil {
		return nil, fmt.Errorf("append stock movements: %w", err)
	}
	return movements, nil
}

// ReserveForDocument deducts (sales) or adds (purchases) the stock of every
// stocked line. Service items are skipped.
func (l *StockLedger) ReserveForDocument(ctx context.Context, tx store.Tx, kind domain.DocumentKind, documentID string, locationID string, lines []domain.DocumentLine, overrides []string) error {
	itemIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		itemIDs = append(itemIDs, line.ItemID)
	}
	items, err := tx.GetItems(ctx, itemIDs)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}

	allowed := make(map[string]bool, len(overrides))
	for _, itemID := range overrides {
		allowed[itemID] = true
	}

	reason := domain.MovementSale
	if kind == domain.DocumentKindPurchase {
		reason = domain.MovementPurchase
	}

	changes := make([]stockChange, 0, len(lines))
	for _, line := range lines {
		item, ok := items[line.ItemID]
		if !ok {
			return store.NotFound("item", line.ItemID)
		}
		if item.IsService {
			continue
		}
		delta := line.Quantity
		if kind == domain.DocumentKindSale {
			delta = delta.Neg()
		}
		changes = append(changes, stockChange{
			LocationID:    locationID,
			ItemID:        line.ItemID,
			Delta:         delta,
			Reason:        reason,
			DocumentID:    documentID,
			AllowNegative: allowed[line.ItemID],
		})
	}

	_, err = l.applyChanges(ctx, tx, changes)
	return err
}

// ReverseForDocument writes the compensating movement for the net effect of
// every movement attributed to the document. A document whose movements
// already net to zero is left alone.
func (l *StockLedger) ReverseForDocument(ctx context.Context, tx store.Tx, doc domain.Document) error {
	movements, err := tx.ListDocumentMovements(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("list document movements: %w", err)
	}

	type rowKey struct{ location, item string }
	net := make(map[rowKey]decimal.Decimal, len(movements))
	order := make([]rowKey, 0, len(movements))
	for _, movement := range movements {
		key := rowKey{movement.LocationID, movement.ItemID}
		if _, seen := net[key]; !seen {
			order = append(order, key)
		}
		net[key] = net[key].Add(movement.Delta)
	}

	reason := domain.MovementVoidSale
	if doc.Kind == domain.DocumentKindPurchase {
		reason = domain.MovementVoidPurchase
	}

	changes := make([]stockChange, 0, len(order))
	for _, key := range order {
		if net[key].IsZero() {
			continue
		}
		changes = append(changes, stockChange{
			LocationID: key.location,
			ItemID:     key.item,
			Delta:      net[key].Neg(),
			Reason:     reason,
			DocumentID: doc.ID,
		})
	}

	_, err = l.applyChanges(ctx, tx, changes)
	return err
}

func (l *StockLedger) Adjust(ctx context.Context, req domain.AdjustRequest) (decimal.Decimal, error) {
	if err := l.check(req); err != nil {
		return decimal.Zero, err
	}
	if req.Delta.IsZero() {
		return decimal.Zero, store.Invalid("delta", "must not be zero")
	}
	if err := requireQuantityScale("delta", req.Delta); err != nil {
		return decimal.Zero, err
	}

	var newStock decimal.Decimal
	err := l.inTx(ctx, "stock.adjust", func(ctx context.Context, tx store.Tx) error {
		adj, err := l.recordAdjustment(ctx, tx, req.Reason, req.AuthorizedBy, req.AllowNegative, []domain.StockAdjustmentLine{{
			LocationID: req.LocationID,
			ItemID:     req.ItemID,
			Quantity:   req.Delta,
		}})
		if err != nil {
			return err
		}
		newStock = adj.Details[0].StockAfter
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return newStock, nil
}

// CreateAdjustment applies a multi-line adjustment all-or-nothing.
func (l *StockLedger) CreateAdjustment(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustment, error) {
	if err := l.check(req); err != nil {
		return domain.StockAdjustment{}, err
	}
	for i, line := range req.Details {
		field := fmt.Sprintf("details[%d].quantity", i)
		if line.Quantity.IsZero() {
			return domain.StockAdjustment{}, store.Invalid(field, "must not be zero")
		}
		if err := requireQuantityScale(field, line.Quantity); err != nil {
			return domain.StockAdjustment{}, err
		}
	}

	var out domain.StockAdjustment
	err := l.inTx(ctx, "stock.create_adjustment", func(ctx context.Context, tx store.Tx) error {
		adj, err := l.recordAdjustment(ctx, tx, req.Comments, req.AuthorizedBy, req.AllowNegative, req.Details)
		if err != nil {
			return err
		}
		out = adj
		return nil
	})
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	return out, nil
}

func (l *StockLedger) recordAdjustment(ctx context.Context, tx store.Tx, comments string, authorizedBy string, allowNegative bool, lines []domain.StockAdjustmentLine) (domain.StockAdjustment, error) {
	if err := l.requireStocked(ctx, tx, lines); err != nil {
		return domain.StockAdjustment{}, err
	}

	actor := actorOf(ctx)
	now := l.now()
	adj := domain.StockAdjustment{
		ID:                 xid.New("adj"),
		AdjustmentDatetime: now,
		Comments:           comments,
		AdjustmentBy:       actor.UserID,
		AuthorizedBy:       authorizedBy,
		CreatedAt:          now,
	}

	changes := make([]stockChange, 0, len(lines))
	for _, line := range lines {
		changes = append(changes, stockChange{
			LocationID:    line.LocationID,
			ItemID:        line.ItemID,
			Delta:         line.Quantity,
			Reason:        domain.MovementAdjustment,
			AdjustmentID:  adj.ID,
			AllowNegative: allowNegative,
		})
	}
	movements, err := l.applyChanges(ctx, tx, changes)
	if err != nil {
		return domain.StockAdjustment{}, err
	}

	adj.Details = make([]domain.StockAdjustmentDetail, 0, len(movements))
	for _, movement := range movements {
		adj.Details = append(adj.Details, domain.StockAdjustmentDetail{
			LocationID:  movement.LocationID,
			ItemID:      movement.ItemID,
			Quantity:    movement.Delta,
			StockBefore: movement.StockBefore,
			StockAfter:  movement.StockAfter,
		})
	}
	if err := tx.CreateStockAdjustment(ctx, adj); err != nil {
		return domain.StockAdjustment{}, fmt.Errorf("create stock adjustment: %w", err)
	}
	for _, detail := range adj.Details {
		if err := l.audit(ctx, tx, detail.LocationID, "stock_adjust", "location_stock", detail.LocationID+"/"+detail.ItemID,
			fmt.Sprintf("adjustment=%s,delta=%s,before=%s,after=%s,authorized_by=%s",
				adj.ID, detail.Quantity, detail.StockBefore, detail.StockAfter, authorizedBy)); err != nil {
			return domain.StockAdjustment{}, err
		}
	}
	return adj, nil
}

// requireStocked rejects unknown locations and items, and service items.
func (l *StockLedger) requireStocked(ctx context.Context, tx store.Reader, lines []domain.StockAdjustmentLine) error {
	seenLocations := make(map[string]bool, 2)
	itemIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		if !seenLocations[line.LocationID] {
			if _, err := tx.GetLocation(ctx, line.LocationID); err != nil {
				return err
			}
			seenLocations[line.LocationID] = true
		}
		itemIDs = append(itemIDs, line.ItemID)
	}

	items, err := tx.GetItems(ctx, itemIDs)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	for _, line := range lines {
		item, ok := items[line.ItemID]
		if !ok {
			return store.NotFound("item", line.ItemID)
		}
		if item.IsService {
			return store.Invalid("item_id", fmt.Sprintf("%s is a service item without stock", item.ID))
		}
	}
	return nil
}

// CheckAvailability is a best-effort read; reservation re-checks under lock.
func (l *StockLedger) CheckAvailability(ctx context.Context, locationID string, itemID string, qty decimal.Decimal) (domain.Availability, error) {
	if err := requireID("location_id", locationID); err != nil {
		return domain.Availability{}, err
	}
	if err := requireID("item_id", itemID); err != nil {
		return domain.Availability{}, err
	}
	if qty.IsNegative() {
		return domain.Availability{}, store.Invalid("qty", "must not be negative")
	}
	if _, err := l.repo.GetLocation(ctx, locationID); err != nil {
		return domain.Availability{}, err
	}
	items, err := l.repo.GetItems(ctx, []string{itemID})
	if err != nil {
		return domain.Availability{}, err
	}
	item, ok := items[itemID]
	if !ok {
		return domain.Availability{}, store.NotFound("item", itemID)
	}
	if item.IsService {
		return domain.Availability{IsAvailable: true, CurrentStock: decimal.Zero}, nil
	}

	row, err := l.repo.GetLocationStock(ctx, locationID, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Availability{IsAvailable: qty.IsZero(), CurrentStock: decimal.Zero}, nil
		}
		return domain.Availability{}, err
	}
	return domain.Availability{
		IsAvailable:  row.Stock.GreaterThanOrEqual(qty),
		CurrentStock: row.Stock,
	}, nil
}

// Initialize creates the stock row for a (location, item) pair. InitialStock is
// the replay origin for Reconcile.
func (l *StockLedger) Initialize(ctx context.Context, req domain.InitializeStockRequest) (domain.LocationStock, error) {
	if err := l.check(req); err != nil {
		return domain.LocationStock{}, err
	}
	if err := requireQuantityScale("initial_stock", req.InitialStock); err != nil {
		return domain.LocationStock{}, err
	}
	if err := requireQuantityScale("min_stock_alert", req.MinStockAlert); err != nil {
		return domain.LocationStock{}, err
	}

	var out domain.LocationStock
	err := l.inTx(ctx, "stock.initialize", func(ctx context.Context, tx store.Tx) error {
		if err := l.requireStocked(ctx, tx, []domain.StockAdjustmentLine{{LocationID: req.LocationID, ItemID: req.ItemID}}); err != nil {
			return err
		}
		actor := actorOf(ctx)
		now := l.now()
		row := domain.LocationStock{
			LocationID:    req.LocationID,
			ItemID:        req.ItemID,
			InitialStock:  req.InitialStock,
			Stock:         req.InitialStock,
			MinStockAlert: req.MinStockAlert,
			CreatedBy:     actor.UserID,
			UpdatedBy:     actor.UserID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertLocationStock(ctx, row); err != nil {
			return err
		}
		out = row
		return l.audit(ctx, tx, req.LocationID, "stock_initialize", "location_stock", req.LocationID+"/"+req.ItemID,
			fmt.Sprintf("initial=%s,min_alert=%s", req.InitialStock, req.MinStockAlert))
	})
	if err != nil {
		return domain.LocationStock{}, err
	}
	return out, nil
}

func (l *StockLedger) History(ctx context.Context, locationID string, itemID string) ([]domain.StockMovement, error) {
	if err := requireID("location_id", locationID); err != nil {
		return nil, err
	}
	if err := requireID("item_id", itemID); err != nil {
		return nil, err
	}
	return l.repo.ListStockMovements(ctx, locationID, itemID)
}

// Reconcile replays the movement history from InitialStock and compares it with
// the stored stock. A mismatch or a broken before/after chain is Inconsistent.
func (l *StockLedger) Reconcile(ctx context.Context, locationID string, itemID string) (domain.StockReconciliation, error) {
	if err := requireID("location_id", locationID); err != nil {
		return domain.StockReconciliation{}, err
	}
	if err := requireID("item_id", itemID); err != nil {
		return domain.StockReconciliation{}, err
	}

	row, err := l.repo.GetLocationStock(ctx, locationID, itemID)
	if err != nil {
		return domain.StockReconciliation{}, err
	}
	movements, err := l.repo.ListStockMovements(ctx, locationID, itemID)
	if err != nil {
		return domain.StockReconciliation{}, err
	}

	out := domain.StockReconciliation{
		LocationID:   locationID,
		ItemID:       itemID,
		InitialStock: row.InitialStock,
		Replayed:     row.InitialStock,
		Stock:        row.Stock,
		Movements:    len(movements),
	}
	id := locationID + "/" + itemID
	for _, movement := range movements {
		if !movement.StockBefore.Equal(out.Replayed) {
			return out, l.inconsistent("stock.reconcile", id, fmt.Sprintf("movement %s starts at %s, replay is at %s", movement.ID, movement.StockBefore, out.Replayed))
		}
		out.Replayed = out.Replayed.Add(movement.Delta)
	}
	if !out.Replayed.Equal(row.Stock) {
		return out, l.inconsistent("stock.reconcile", id, fmt.Sprintf("replayed %s, stored %s", out.Replayed, row.Stock))
	}
	return out, nil
}

func (l *StockLedger) Low(ctx context.Context, locationID string) ([]domain.LocationStock, error) {
	if err := requireID("location_id", locationID); err != nil {
		return nil, err
	}
	if _, err := l.repo.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}
	return l.repo.ListLowStock(ctx, locationID)
}

func (l *StockLedger) inconsistent(op string, id string, detail string) error {
	err := &store.InconsistentError{Entity: "location stock", ID: id, Detail: detail}
	l.logger.WithFields(logrus.Fields{
		"component": "stock_ledger",
		"op":        op,
		"stock":     id,
	}).Error(err.Error())
	return err
}

func stockRowKey(locationID string, itemID string) string {
	return locationID + "|" + itemID
}
