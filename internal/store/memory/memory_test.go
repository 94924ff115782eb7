package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
)

func TestWithinTxRollsBackEveryWrite(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		stock, err := tx.LockLocationStock(ctx, "loc-main", []string{"item-coffee"})
		require.NoError(t, err)
		row := stock["item-coffee"]
		row.Stock = row.Stock.Sub(decimal.NewFromInt(4))
		require.NoError(t, tx.UpdateLocationStock(ctx, row))
		require.NoError(t, tx.AppendStockMovements(ctx, []domain.StockMovement{{
			LocationID: "loc-main", ItemID: "item-coffee", Delta: decimal.NewFromInt(-4),
		}}))
		require.NoError(t, tx.EnsureLocationStock(ctx, "loc-branch", []string{"item-tea"}, "tester"))
		require.NoError(t, tx.ReserveDocumentNumber(ctx, domain.DocumentNumberKey{DocumentTypeID: "dt-receipt", DocNumber: "R-1"}, "sale-x"))
		require.NoError(t, tx.CreateDocument(ctx, domain.Document{ID: "sale-x", Kind: domain.DocumentKindSale, IsActive: true}))
		require.NoError(t, tx.CreatePayment(ctx, domain.Payment{ID: "pay-x", DocumentID: "sale-x", Amount: decimal.NewFromInt(1)}))
		require.NoError(t, tx.CreateAuditLog(ctx, domain.AuditLog{ID: "audit-x"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	stock, err := s.GetLocationStock(ctx, "loc-main", "item-coffee")
	require.NoError(t, err)
	assert.True(t, stock.Stock.Equal(decimal.NewFromInt(10)), "stock restored, got %s", stock.Stock)

	_, err = s.GetLocationStock(ctx, "loc-branch", "item-tea")
	assert.ErrorIs(t, err, store.ErrNotFound)

	movements, err := s.ListStockMovements(ctx, "loc-main", "item-coffee")
	require.NoError(t, err)
	assert.Empty(t, movements)

	taken, err := s.DocumentNumberTaken(ctx, domain.DocumentNumberKey{DocumentTypeID: "dt-receipt", DocNumber: "R-1"})
	require.NoError(t, err)
	assert.False(t, taken)

	_, err = s.GetDocument(ctx, "sale-x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	logs, err := s.ListAuditLogs(ctx, "", "", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = s.WithinTx(ctx, func(tx store.Tx) error {
			_ = tx.CreateShiftCut(ctx, domain.ShiftCut{ID: "shift-p", CashierID: "c1", Status: domain.ShiftStatusOpen})
			panic("unexpected")
		})
	}()

	_, err := s.FindOpenShiftCut(ctx, domain.SessionQuery{CashierID: "c1"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithinTxReportsBusyWhenWriterSlotIsHeld(t *testing.T) {
	s := NewSeeded().WithLockTimeout(20 * time.Millisecond)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.WithinTx(ctx, func(tx store.Tx) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := s.WithinTx(ctx, func(tx store.Tx) error { return nil })
	close(release)

	require.Error(t, err)
	assert.True(t, store.IsRetryable(err), "expected busy, got %v", err)
	assert.NotContains(t, err.Error(), "memory store")
}

func TestCreateShiftCutRejectsSecondOpenSession(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateShiftCut(ctx, domain.ShiftCut{ID: "shift-1", CashierID: "c1", LocationID: "loc-main", Status: domain.ShiftStatusOpen})
	}))

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateShiftCut(ctx, domain.ShiftCut{ID: "shift-2", CashierID: "c1", LocationID: "loc-main", Status: domain.ShiftStatusOpen})
	})
	require.ErrorIs(t, err, store.ErrConflict)
	var already *store.SessionAlreadyOpenError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, "shift-1", already.SessionID)
}

func TestLockPendingDocumentsOrdersOldestFirst(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		for i, id := range []string{"sale-c", "sale-a", "sale-b", "sale-void"} {
			doc := domain.Document{
				ID:             id,
				Kind:           domain.DocumentKindSale,
				CounterpartyID: "cust-acme",
				Total:          decimal.NewFromInt(10),
				DocDatetime:    base.Add(time.Duration(3-i) * time.Hour),
				IsActive:       true,
				IsVoided:       id == "sale-void",
			}
			if err := tx.CreateDocument(ctx, doc); err != nil {
				return err
			}
		}
		return nil
	}))

	var pending []domain.Document
	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		pending, err = tx.LockPendingDocuments(ctx, domain.DocumentKindSale, "cust-acme")
		return err
	}))

	ids := make([]string, 0, len(pending))
	for _, doc := range pending {
		ids = append(ids, doc.ID)
	}
	assert.Equal(t, []string{"sale-b", "sale-a", "sale-c"}, ids)
}
