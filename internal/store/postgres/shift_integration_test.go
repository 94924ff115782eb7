package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/logging"
	"github.com/PredatorDevs/systudents-back-sub001/internal/service"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
)

func TestSaleRacingSessionCloseIsNotBookedIntoClosedShift(t *testing.T) {
	s := openTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()
	now := time.Now().UTC()
	cashier := "cashier-" + f.location
	shiftID := "shift-" + f.location

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateShiftCut(ctx, domain.ShiftCut{
			ID: shiftID, CashierID: cashier, LocationID: f.location, Status: domain.ShiftStatusOpen,
			OpenedAt: now, CreatedBy: "it", UpdatedBy: "it", UpdatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(tx store.Tx) error {
			cut, err := tx.LockShiftCut(ctx, shiftID)
			if err != nil {
				return err
			}
			closedAt := time.Now().UTC()
			final := decimal.Zero
			cut.Status = domain.ShiftStatusClosed
			cut.ClosedAt = &closedAt
			cut.FinalAmount = &final
			cut.UpdatedAt = closedAt
			if err := tx.UpdateShiftCut(ctx, *cut); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked
	time.AfterFunc(100*time.Millisecond, func() { close(release) })

	svc := service.New(s, service.Options{Logger: logging.Discard(), RetryAttempts: 5})
	actorCtx := service.WithActor(ctx, domain.Actor{UserID: "it", CashierID: cashier, Role: "cashier"})
	_, err = svc.CreateSale(actorCtx, domain.DocumentRequest{
		Header: domain.DocumentHeader{
			LocationID: f.location, CounterpartyID: f.customer, DocumentTypeID: f.docType,
			DocNumber: "R-RACE", Total: decimal.NewFromInt(5),
		},
		Lines: []domain.DocumentLineInput{{ItemID: f.item, UnitPrice: decimal.NewFromInt(5), Quantity: decimal.NewFromInt(1)}},
	})
	if holderErr := <-done; holderErr != nil {
		t.Fatalf("close holder: %v", holderErr)
	}
	if !errors.Is(err, store.ErrNoActiveSession) {
		t.Fatalf("expected no active session once the close commits, got %v", err)
	}

	docs, err := s.ListShiftCutDocuments(ctx, shiftID)
	if err != nil {
		t.Fatalf("list shift documents: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected closed shift to stay empty, got %d documents", len(docs))
	}
	stock, err := s.GetLocationStock(ctx, f.location, f.item)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if !stock.Stock.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected stock untouched, got %s", stock.Stock)
	}
}
