package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("POS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s.WithLockTimeout(300 * time.Millisecond)
}

type fixture struct {
	location string
	item     string
	customer string
	docType  string
}

func seedFixture(t *testing.T, s *Store) fixture {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	f := fixture{
		location: fmt.Sprintf("loc-it-%d", stamp),
		item:     fmt.Sprintf("item-it-%d", stamp),
		customer: fmt.Sprintf("cust-it-%d", stamp),
		docType:  fmt.Sprintf("dt-it-%d", stamp),
	}

	statements := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO locations (id, name) VALUES ($1, 'IT location')`, []any{f.location}},
		{`INSERT INTO items (id, kind, name) VALUES ($1, 'product', 'IT item')`, []any{f.item}},
		{`INSERT INTO counterparties (id, kind, name) VALUES ($1, 'customer', 'IT customer')`, []any{f.customer}},
		{`INSERT INTO document_types (id, kind, name, number_scope) VALUES ($1, 'sale', 'IT receipt', 'type')`, []any{f.docType}},
		{`INSERT INTO location_stocks (location_id, item_id, initial_stock, stock, created_by, updated_by)
			VALUES ($1, $2, 10, 10, 'it', 'it')`, []any{f.location, f.item}},
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			t.Fatalf("seed fixture: %v", err)
		}
	}
	return f
}

func TestWithinTxRollsBackStockAndMovements(t *testing.T) {
	s := openTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		rows, err := tx.LockLocationStock(ctx, f.location, []string{f.item})
		if err != nil {
			return err
		}
		row := rows[f.item]
		before := row.Stock
		row.Stock = row.Stock.Sub(decimal.NewFromInt(3))
		row.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateLocationStock(ctx, row); err != nil {
			return err
		}
		if err := tx.AppendStockMovements(ctx, []domain.StockMovement{{
			LocationID: f.location, ItemID: f.item, Delta: decimal.NewFromInt(-3),
			StockBefore: before, StockAfter: row.Stock, Reason: domain.MovementAdjustment,
			CreatedBy: "it", CreatedAt: time.Now().UTC(),
		}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	stock, err := s.GetLocationStock(ctx, f.location, f.item)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if !stock.Stock.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected stock 10 after rollback, got %s", stock.Stock)
	}
	movements, err := s.ListStockMovements(ctx, f.location, f.item)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("expected no movements, got %d", len(movements))
	}
}

func TestLockedStockRowReportsBusy(t *testing.T) {
	s := openTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(tx store.Tx) error {
			if _, err := tx.LockLocationStock(ctx, f.location, []string{f.item}); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.LockLocationStock(ctx, f.location, []string{f.item})
		return err
	})
	close(release)
	if holderErr := <-done; holderErr != nil {
		t.Fatalf("holder: %v", holderErr)
	}
	if !store.IsRetryable(err) {
		t.Fatalf("expected busy, got %v", err)
	}
}

func TestDocumentNumberAndSessionConflicts(t *testing.T) {
	s := openTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()
	now := time.Now().UTC()
	cashier := "cashier-" + f.location
	key := domain.DocumentNumberKey{DocumentTypeID: f.docType, DocNumber: "R-0001"}

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateShiftCut(ctx, domain.ShiftCut{
			ID: "shift-" + f.location, CashierID: cashier, LocationID: f.location, Status: domain.ShiftStatusOpen,
			OpenedAt: now, CreatedBy: "it", UpdatedBy: "it", UpdatedAt: now,
		}); err != nil {
			return err
		}
		doc := domain.Document{
			ID: "doc-" + f.location, Kind: domain.DocumentKindSale, LocationID: f.location, CounterpartyID: f.customer,
			DocumentTypeID: f.docType, DocNumber: key.DocNumber, DocDatetime: now,
			Subtotal: decimal.NewFromInt(5), Total: decimal.NewFromInt(5), IsActive: true,
			ShiftCutID: "shift-" + f.location, CashierID: cashier,
			CreatedBy: "it", UpdatedBy: "it", CreatedAt: now, UpdatedAt: now,
			Lines: []domain.DocumentLine{{LineNo: 1, ItemID: f.item, UnitPrice: decimal.NewFromInt(5), Quantity: decimal.NewFromInt(1), IsActive: true}},
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}
		if err := tx.ReserveDocumentNumber(ctx, key, doc.ID); err != nil {
			return err
		}
		return tx.CreatePayment(ctx, domain.Payment{
			ID: "pay-" + f.location, DocumentID: doc.ID, Amount: decimal.NewFromInt(2), PaymentMethodID: "cash",
			RegisteredAt: now, CreatedBy: "it",
		})
	})
	if err != nil {
		t.Fatalf("first unit of work: %v", err)
	}

	doc, err := s.GetDocument(ctx, "doc-"+f.location)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if len(doc.Lines) != 1 || !doc.PaidAmount.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected document: lines=%d paid=%s", len(doc.Lines), doc.PaidAmount)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.ReserveDocumentNumber(ctx, key, "doc-other")
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected number conflict, got %v", err)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateShiftCut(ctx, domain.ShiftCut{
			ID: "shift-2-" + f.location, CashierID: cashier, LocationID: f.location, Status: domain.ShiftStatusOpen,
			OpenedAt: now, CreatedBy: "it", UpdatedBy: "it", UpdatedAt: now,
		})
	})
	var already *store.SessionAlreadyOpenError
	if !errors.As(err, &already) || already.SessionID != "shift-"+f.location {
		t.Fatalf("expected session already open, got %v", err)
	}
}
