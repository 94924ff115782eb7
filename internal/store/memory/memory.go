package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
	"github.com/PredatorDevs/systudents-back-sub001/internal/xid"
)

var errLockWait = errors.New("memory store: write lock wait exceeded")

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*memTx)(nil)
)

// Store keeps the whole ledger in process memory. One unit of work runs at a
// time; readers share the lock between units of work.
type Store struct {
	mu          sync.RWMutex
	lockTimeout time.Duration
	data        *data
}

type data struct {
	items          map[string]domain.Item
	locations      map[string]domain.Location
	counterparties map[string]domain.Counterparty
	documentTypes  map[string]domain.DocumentType

	stocks        map[string]domain.LocationStock
	movements     []domain.StockMovement
	movementSeq   int64
	adjustments   map[string]domain.StockAdjustment
	shiftCuts     map[string]domain.ShiftCut
	openByCashier map[string]string
	documents     map[string]domain.Document
	docNumbers    map[domain.DocumentNumberKey]string
	payments      map[string][]domain.Payment
	auditLogs     []domain.AuditLog
}

func New() *Store {
	return &Store{
		lockTimeout: 5 * time.Second,
		data: &data{
			items:          make(map[string]domain.Item),
			locations:      make(map[string]domain.Location),
			counterparties: make(map[string]domain.Counterparty),
			documentTypes:  make(map[string]domain.DocumentType),
			stocks:         make(map[string]domain.LocationStock),
			adjustments:    make(map[string]domain.StockAdjustment),
			shiftCuts:      make(map[string]domain.ShiftCut),
			openByCashier:  make(map[string]string),
			documents:      make(map[string]domain.Document),
			docNumbers:     make(map[domain.DocumentNumberKey]string),
			payments:       make(map[string][]domain.Payment),
		},
	}
}

// NewSeeded returns a store with demo master data and opening stock at loc-main.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, item := range []domain.Item{
		{ID: "item-coffee", Kind: domain.ItemKindProduct, Name: "Coffee 250g", Cost: decimal.RequireFromString("6.20"), IsTaxable: true, Active: true},
		{ID: "item-tea", Kind: domain.ItemKindProduct, Name: "Green tea box", Cost: decimal.RequireFromString("2.10"), IsTaxable: true, Active: true},
		{ID: "item-milk", Kind: domain.ItemKindRawMaterial, Name: "Milk (litre)", Cost: decimal.RequireFromString("0.95"), Active: true},
		{ID: "item-delivery", Kind: domain.ItemKindProduct, Name: "Home delivery", IsService: true, IsTaxable: true, Active: true},
	} {
		s.SeedItem(item)
	}
	s.SeedLocation(domain.Location{ID: "loc-main", Name: "Main store", Active: true})
	s.SeedLocation(domain.Location{ID: "loc-branch", Name: "Branch", Active: true})
	s.SeedCounterparty(domain.Counterparty{ID: "cust-walkin", Kind: domain.CounterpartyCustomer, Name: "Walk-in customer", Active: true})
	s.SeedCounterparty(domain.Counterparty{ID: "cust-acme", Kind: domain.CounterpartyCustomer, Name: "Acme Corp", Active: true})
	s.SeedCounterparty(domain.Counterparty{ID: "sup-andes", Kind: domain.CounterpartySupplier, Name: "Andes Supply", Active: true})
	s.SeedDocumentType(domain.DocumentType{ID: "dt-receipt", Kind: domain.DocumentKindSale, Name: "Receipt", NumberScope: domain.NumberScopeType, Active: true})
	s.SeedDocumentType(domain.DocumentType{ID: "dt-invoice", Kind: domain.DocumentKindSale, Name: "Invoice", NumberScope: domain.NumberScopeSeries, Active: true})
	s.SeedDocumentType(domain.DocumentType{ID: "dt-purchase", Kind: domain.DocumentKindPurchase, Name: "Supplier invoice", NumberScope: domain.NumberScopeCounterparty, Active: true})

	for _, stock := range []domain.LocationStock{
		{LocationID: "loc-main", ItemID: "item-coffee", InitialStock: decimal.NewFromInt(10), Stock: decimal.NewFromInt(10), MinStockAlert: decimal.NewFromInt(3)},
		{LocationID: "loc-main", ItemID: "item-tea", InitialStock: decimal.NewFromInt(40), Stock: decimal.NewFromInt(40), MinStockAlert: decimal.NewFromInt(5)},
		{LocationID: "loc-main", ItemID: "item-milk", InitialStock: decimal.RequireFromString("25.5"), Stock: decimal.RequireFromString("25.5")},
		{LocationID: "loc-branch", ItemID: "item-coffee", InitialStock: decimal.NewFromInt(5), Stock: decimal.NewFromInt(5), MinStockAlert: decimal.NewFromInt(5)},
	} {
		stock.CreatedBy, stock.UpdatedBy = "seed", "seed"
		stock.CreatedAt, stock.UpdatedAt = now, now
		s.data.stocks[stockKey(stock.LocationID, stock.ItemID)] = stock
	}
	return s
}

// WithLockTimeout bounds how long a unit of work waits for the writer slot.
func (s *Store) WithLockTimeout(d time.Duration) *Store {
	if d > 0 {
		s.lockTimeout = d
	}
	return s
}

func (s *Store) SeedItem(item domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.items[item.ID] = item
}

func (s *Store) SeedLocation(location domain.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.locations[location.ID] = location
}

func (s *Store) SeedCounterparty(counterparty domain.Counterparty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.counterparties[counterparty.ID] = counterparty
}

func (s *Store) SeedDocumentType(documentType domain.DocumentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.documentTypes[documentType.ID] = documentType
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	tx := &memTx{data: s.data}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) acquire(ctx context.Context) error {
	deadline := time.Now().Add(s.lockTimeout)
	for {
		if s.mu.TryLock() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return &store.BusyError{Op: "begin unit of work", Cause: err}
		}
		if time.Now().After(deadline) {
			return &store.BusyError{Op: "begin unit of work", Cause: errLockWait}
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *Store) GetItems(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetItems(ctx, ids)
}

func (s *Store) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetLocation(ctx, id)
}

func (s *Store) GetCounterparty(ctx context.Context, id string) (*domain.Counterparty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetCounterparty(ctx, id)
}

func (s *Store) GetDocumentType(ctx context.Context, id string) (*domain.DocumentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetDocumentType(ctx, id)
}

func (s *Store) DocumentNumberTaken(ctx context.Context, key domain.DocumentNumberKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.DocumentNumberTaken(ctx, key)
}

func (s *Store) GetLocationStock(ctx context.Context, locationID string, itemID string) (*domain.LocationStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetLocationStock(ctx, locationID, itemID)
}

func (s *Store) ListLowStock(ctx context.Context, locationID string) ([]domain.LocationStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListLowStock(ctx, locationID)
}

func (s *Store) ListStockMovements(ctx context.Context, locationID string, itemID string) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListStockMovements(ctx, locationID, itemID)
}

func (s *Store) ListDocumentMovements(ctx context.Context, documentID string) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListDocumentMovements(ctx, documentID)
}

func (s *Store) GetShiftCut(ctx context.Context, id string) (*domain.ShiftCut, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetShiftCut(ctx, id)
}

func (s *Store) FindOpenShiftCut(ctx context.Context, q domain.SessionQuery) (*domain.ShiftCut, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.FindOpenShiftCut(ctx, q)
}

func (s *Store) ListShiftCutDocuments(ctx context.Context, shiftCutID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListShiftCutDocuments(ctx, shiftCutID)
}

func (s *Store) ListShiftCutPayments(ctx context.Context, shiftCutID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListShiftCutPayments(ctx, shiftCutID)
}

func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetDocument(ctx, id)
}

func (s *Store) ListPayments(ctx context.Context, documentID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListPayments(ctx, documentID)
}

func (s *Store) ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListAuditLogs(ctx, entityType, entityID, limit)
}

func (d *data) GetItems(_ context.Context, ids []string) (map[string]domain.Item, error) {
	out := make(map[string]domain.Item, len(ids))
	for _, id := range ids {
		if item, ok := d.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (d *data) GetLocation(_ context.Context, id string) (*domain.Location, error) {
	location, ok := d.locations[id]
	if !ok {
		return nil, store.NotFound("location", id)
	}
	return &location, nil
}

func (d *data) GetCounterparty(_ context.Context, id string) (*domain.Counterparty, error) {
	counterparty, ok := d.counterparties[id]
	if !ok {
		return nil, store.NotFound("counterparty", id)
	}
	return &counterparty, nil
}

func (d *data) GetDocumentType(_ context.Context, id string) (*domain.DocumentType, error) {
	documentType, ok := d.documentTypes[id]
	if !ok {
		return nil, store.NotFound("document type", id)
	}
	return &documentType, nil
}

func (d *data) DocumentNumberTaken(_ context.Context, key domain.DocumentNumberKey) (bool, error) {
	_, taken := d.docNumbers[key]
	return taken, nil
}

func (d *data) GetLocationStock(_ context.Context, locationID string, itemID string) (*domain.LocationStock, error) {
	stock, ok := d.stocks[stockKey(locationID, itemID)]
	if !ok {
		return nil, store.NotFound("location stock", locationID+"/"+itemID)
	}
	return &stock, nil
}

func (d *data) ListLowStock(_ context.Context, locationID string) ([]domain.LocationStock, error) {
	out := make([]domain.LocationStock, 0, 8)
	for _, stock := range d.stocks {
		if stock.LocationID != locationID || !stock.MinStockAlert.IsPositive() {
			continue
		}
		if stock.Stock.LessThanOrEqual(stock.MinStockAlert) {
			out = append(out, stock)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (d *data) ListStockMovements(_ context.Context, locationID string, itemID string) ([]domain.StockMovement, error) {
	out := make([]domain.StockMovement, 0, 16)
	for _, movement := range d.movements {
		if movement.LocationID == locationID && movement.ItemID == itemID {
			out = append(out, movement)
		}
	}
	return out, nil
}

func (d *data) ListDocumentMovements(_ context.Context, documentID string) ([]domain.StockMovement, error) {
	out := make([]domain.StockMovement, 0, 8)
	for _, movement := range d.movements {
		if movement.DocumentID == documentID {
			out = append(out, movement)
		}
	}
	return out, nil
}

func (d *data) GetShiftCut(_ context.Context, id string) (*domain.ShiftCut, error) {
	cut, ok := d.shiftCuts[id]
	if !ok {
		return nil, store.NotFound("session", id)
	}
	return &cut, nil
}

func (d *data) FindOpenShiftCut(_ context.Context, q domain.SessionQuery) (*domain.ShiftCut, error) {
	if q.CashierID != "" {
		id, ok := d.openByCashier[q.CashierID]
		if !ok {
			return nil, store.ErrNotFound
		}
		cut := d.shiftCuts[id]
		if q.LocationID != "" && cut.LocationID != q.LocationID {
			return nil, store.ErrNotFound
		}
		return &cut, nil
	}

	var latest *domain.ShiftCut
	for _, id := range d.openByCashier {
		cut := d.shiftCuts[id]
		if q.LocationID != "" && cut.LocationID != q.LocationID {
			continue
		}
		if latest == nil || cut.OpenedAt.After(latest.OpenedAt) {
			found := cut
			latest = &found
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (d *data) ListShiftCutDocuments(_ context.Context, shiftCutID string) ([]domain.Document, error) {
	out := make([]domain.Document, 0, 16)
	for _, doc := range d.documents {
		if doc.ShiftCutID == shiftCutID {
			out = append(out, d.withPaid(doc))
		}
	}
	sortDocuments(out)
	return out, nil
}

func (d *data) ListShiftCutPayments(_ context.Context, shiftCutID string) ([]domain.Payment, error) {
	out := make([]domain.Payment, 0, 16)
	for _, payments := range d.payments {
		for _, payment := range payments {
			if payment.ShiftCutID == shiftCutID {
				out = append(out, payment)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out, nil
}

func (d *data) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := d.documents[id]
	if !ok {
		return nil, store.NotFound("document", id)
	}
	out := d.withPaid(doc)
	return &out, nil
}

func (d *data) ListPayments(_ context.Context, documentID string) ([]domain.Payment, error) {
	payments := d.payments[documentID]
	out := make([]domain.Payment, len(payments))
	copy(out, payments)
	return out, nil
}

func (d *data) ListAuditLogs(_ context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	out := make([]domain.AuditLog, 0, limit)
	for i := len(d.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := d.auditLogs[i]
		if entityType != "" && entry.EntityType != entityType {
			continue
		}
		if entityID != "" && entry.EntityID != entityID {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (d *data) withPaid(doc domain.Document) domain.Document {
	out := cloneDocument(doc)
	paid := decimal.Zero
	for _, payment := range d.payments[doc.ID] {
		paid = paid.Add(payment.Amount)
	}
	out.PaidAmount = paid
	return out
}

// memTx mutates the shared maps directly and journals an undo step per write.
type memTx struct {
	*data
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) EnsureLocationStock(_ context.Context, locationID string, itemIDs []string, by string) error {
	now := time.Now().UTC()
	for _, itemID := range store.SortedUnique(itemIDs) {
		key := stockKey(locationID, itemID)
		if _, ok := t.stocks[key]; ok {
			continue
		}
		t.stocks[key] = domain.LocationStock{
			LocationID: locationID,
			ItemID:     itemID,
			CreatedBy:  by,
			UpdatedBy:  by,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		t.undo = append(t.undo, func() { delete(t.stocks, key) })
	}
	return nil
}

func (t *memTx) LockLocationStock(_ context.Context, locationID string, itemIDs []string) (map[string]domain.LocationStock, error) {
	out := make(map[string]domain.LocationStock, len(itemIDs))
	for _, itemID := range store.SortedUnique(itemIDs) {
		if stock, ok := t.stocks[stockKey(locationID, itemID)]; ok {
			out[itemID] = stock
		}
	}
	return out, nil
}

func (t *memTx) InsertLocationStock(_ context.Context, stock domain.LocationStock) error {
	key := stockKey(stock.LocationID, stock.ItemID)
	if _, exists := t.stocks[key]; exists {
		return &store.ConflictError{Entity: "location stock", Key: stock.LocationID + "/" + stock.ItemID, Reason: "already initialized"}
	}
	t.stocks[key] = stock
	t.undo = append(t.undo, func() { delete(t.stocks, key) })
	return nil
}

func (t *memTx) UpdateLocationStock(_ context.Context, stock domain.LocationStock) error {
	key := stockKey(stock.LocationID, stock.ItemID)
	prev, exists := t.stocks[key]
	if !exists {
		return store.NotFound("location stock", stock.LocationID+"/"+stock.ItemID)
	}
	t.stocks[key] = stock
	t.undo = append(t.undo, func() { t.stocks[key] = prev })
	return nil
}

func (t *memTx) AppendStockMovements(_ context.Context, movements []domain.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	prevLen, prevSeq := len(t.movements), t.movementSeq
	for _, movement := range movements {
		t.movementSeq++
		movement.Seq = t.movementSeq
		if movement.ID == "" {
			movement.ID = xid.New("mov")
		}
		t.movements = append(t.movements, movement)
	}
	t.undo = append(t.undo, func() {
		t.movements = t.movements[:prevLen]
		t.movementSeq = prevSeq
	})
	return nil
}

func (t *memTx) CreateStockAdjustment(_ context.Context, adj domain.StockAdjustment) error {
	if _, exists := t.adjustments[adj.ID]; exists {
		return &store.ConflictError{Entity: "stock adjustment", Key: adj.ID, Reason: "already exists"}
	}
	details := make([]domain.StockAdjustmentDetail, len(adj.Details))
	copy(details, adj.Details)
	adj.Details = details
	t.adjustments[adj.ID] = adj
	t.undo = append(t.undo, func() { delete(t.adjustments, adj.ID) })
	return nil
}

func (t *memTx) CreateShiftCut(_ context.Context, cut domain.ShiftCut) error {
	if existing, open := t.openByCashier[cut.CashierID]; open {
		return &store.SessionAlreadyOpenError{CashierID: cut.CashierID, SessionID: existing}
	}
	if _, exists := t.shiftCuts[cut.ID]; exists {
		return &store.ConflictError{Entity: "session", Key: cut.ID, Reason: "already exists"}
	}
	t.shiftCuts[cut.ID] = cut
	if cut.Status == domain.ShiftStatusOpen {
		t.openByCashier[cut.CashierID] = cut.ID
	}
	t.undo = append(t.undo, func() {
		delete(t.shiftCuts, cut.ID)
		if t.openByCashier[cut.CashierID] == cut.ID {
			delete(t.openByCashier, cut.CashierID)
		}
	})
	return nil
}

func (t *memTx) LockShiftCut(ctx context.Context, id string) (*domain.ShiftCut, error) {
	return t.GetShiftCut(ctx, id)
}

func (t *memTx) ShareShiftCut(ctx context.Context, id string) (*domain.ShiftCut, error) {
	return t.GetShiftCut(ctx, id)
}

func (t *memTx) UpdateShiftCut(_ context.Context, cut domain.ShiftCut) error {
	prev, exists := t.shiftCuts[cut.ID]
	if !exists {
		return store.NotFound("session", cut.ID)
	}
	prevOpen, hadOpen := t.openByCashier[prev.CashierID]

	t.shiftCuts[cut.ID] = cut
	if cut.Status != domain.ShiftStatusOpen && prevOpen == cut.ID {
		delete(t.openByCashier, prev.CashierID)
	}
	t.undo = append(t.undo, func() {
		t.shiftCuts[cut.ID] = prev
		if hadOpen {
			t.openByCashier[prev.CashierID] = prevOpen
		}
	})
	return nil
}

func (t *memTx) ReserveDocumentNumber(_ context.Context, key domain.DocumentNumberKey, documentID string) error {
	if owner, taken := t.docNumbers[key]; taken {
		return &store.ConflictError{Entity: "document number", Key: key.DocNumber, Reason: "already used by " + owner}
	}
	t.docNumbers[key] = documentID
	t.undo = append(t.undo, func() { delete(t.docNumbers, key) })
	return nil
}

func (t *memTx) CreateDocument(_ context.Context, doc domain.Document) error {
	if _, exists := t.documents[doc.ID]; exists {
		return &store.ConflictError{Entity: "document", Key: doc.ID, Reason: "already exists"}
	}
	stored := cloneDocument(doc)
	stored.PaidAmount = decimal.Zero
	t.documents[doc.ID] = stored
	t.undo = append(t.undo, func() { delete(t.documents, doc.ID) })
	return nil
}

func (t *memTx) LockDocument(ctx context.Context, id string) (*domain.Document, error) {
	return t.GetDocument(ctx, id)
}

func (t *memTx) MarkDocumentVoided(_ context.Context, id string, by string, reason string, at time.Time) error {
	prev, exists := t.documents[id]
	if !exists {
		return store.NotFound("document", id)
	}
	next := cloneDocument(prev)
	next.IsVoided = true
	next.VoidedAt = &at
	next.VoidedBy = by
	next.VoidReason = reason
	next.UpdatedBy = by
	next.UpdatedAt = at
	t.documents[id] = next
	t.undo = append(t.undo, func() { t.documents[id] = prev })
	return nil
}

func (t *memTx) DeactivateDocument(_ context.Context, id string, by string, at time.Time) error {
	prev, exists := t.documents[id]
	if !exists {
		return store.NotFound("document", id)
	}
	next := cloneDocument(prev)
	next.IsActive = false
	for i := range next.Lines {
		next.Lines[i].IsActive = false
	}
	next.UpdatedBy = by
	next.UpdatedAt = at
	t.documents[id] = next
	t.undo = append(t.undo, func() { t.documents[id] = prev })
	return nil
}

func (t *memTx) LockPendingDocuments(_ context.Context, kind domain.DocumentKind, counterpartyID string) ([]domain.Document, error) {
	out := make([]domain.Document, 0, 8)
	for _, doc := range t.documents {
		if doc.Kind != kind || doc.CounterpartyID != counterpartyID || !doc.Allocatable() {
			continue
		}
		withPaid := t.withPaid(doc)
		if withPaid.Outstanding().IsPositive() {
			out = append(out, withPaid)
		}
	}
	sortDocuments(out)
	return out, nil
}

func (t *memTx) CreatePayment(_ context.Context, payment domain.Payment) error {
	if _, exists := t.documents[payment.DocumentID]; !exists {
		return store.NotFound("document", payment.DocumentID)
	}
	docID := payment.DocumentID
	prevLen := len(t.payments[docID])
	t.payments[docID] = append(t.payments[docID], payment)
	t.undo = append(t.undo, func() {
		if prevLen == 0 {
			delete(t.payments, docID)
			return
		}
		t.payments[docID] = t.payments[docID][:prevLen]
	})
	return nil
}

func (t *memTx) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	prevLen := len(t.auditLogs)
	t.auditLogs = append(t.auditLogs, entry)
	t.undo = append(t.undo, func() { t.auditLogs = t.auditLogs[:prevLen] })
	return nil
}

func stockKey(locationID string, itemID string) string {
	return locationID + "|" + itemID
}

func cloneDocument(doc domain.Document) domain.Document {
	out := doc
	out.Lines = make([]domain.DocumentLine, len(doc.Lines))
	copy(out.Lines, doc.Lines)
	if doc.VoidedAt != nil {
		at := *doc.VoidedAt
		out.VoidedAt = &at
	}
	return out
}

func sortDocuments(docs []domain.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].DocDatetime.Equal(docs[j].DocDatetime) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].DocDatetime.Before(docs[j].DocDatetime)
	})
}
