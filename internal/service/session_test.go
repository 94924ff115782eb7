package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
)

func TestSessionLifecycleTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("c1")
	cut := openSession(t, svc, ctx, "c1", "loc-main")
	assert.Equal(t, domain.ShiftStatusOpen, cut.Status)

	_, err := svc.OpenSession(ctx, domain.SessionOpenRequest{CashierID: "c1", LocationID: "loc-branch"})
	var already *store.SessionAlreadyOpenError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, cut.ID, already.SessionID)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = svc.SettleSession(ctx, domain.SessionSettleRequest{SessionID: cut.ID, RemittedAmount: dec("100")})
	assert.ErrorIs(t, err, store.ErrConflict)

	closed, err := svc.CloseSession(ctx, domain.SessionCloseRequest{SessionID: cut.ID, FinalAmount: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	again, err := svc.CloseSession(ctx, domain.SessionCloseRequest{SessionID: cut.ID, FinalAmount: dec("5")})
	require.NoError(t, err)
	assert.Equal(t, closed.ClosedAt, again.ClosedAt)
	assertDecimal(t, "100", *again.FinalAmount, "second close keeps the declared amount")

	settled, err := svc.SettleSession(ctx, domain.SessionSettleRequest{SessionID: cut.ID, RemittedAmount: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStatusSettled, settled.Status)

	settledAgain, err := svc.SettleSession(ctx, domain.SessionSettleRequest{SessionID: cut.ID, RemittedAmount: dec("1")})
	require.NoError(t, err)
	assert.Equal(t, settled.SettledAt, settledAgain.SettledAt)

	_, err = svc.CurrentActiveSession(ctx, domain.SessionQuery{CashierID: "c1"})
	assert.ErrorIs(t, err, store.ErrNoActiveSession)

	next := openSession(t, svc, ctx, "c1", "loc-main")
	assert.NotEqual(t, cut.ID, next.ID)
	active, err := svc.CurrentActiveSession(ctx, domain.SessionQuery{CashierID: "c1", LocationID: "loc-main"})
	require.NoError(t, err)
	assert.Equal(t, next.ID, active.ID)
}

func TestOpenSessionRejectsUnknownLocation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.OpenSession(cashierCtx("c1"), domain.SessionOpenRequest{CashierID: "c1", LocationID: "loc-nowhere"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCurrentActiveSessionNeedsFilter(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CurrentActiveSession(cashierCtx("c1"), domain.SessionQuery{})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestSessionSummaryCountsVoidedSalesApart(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("c1")
	cut := openSession(t, svc, ctx, "c1", "loc-main")

	kept, err := svc.CreateSale(ctx, saleRequest("R-1", "40.00", line("item-coffee", "10.00", "4")))
	require.NoError(t, err)
	_, err = svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: kept.DocumentID, Amount: dec("40"), PaymentMethodID: "cash"})
	require.NoError(t, err)

	cancelled, err := svc.CreateSale(ctx, saleRequest("R-2", "10.00", line("item-tea", "5.00", "2")))
	require.NoError(t, err)
	_, err = svc.VoidDocument(ctx, domain.VoidRequest{DocumentID: cancelled.DocumentID, AuthorizedBy: "manager-1"})
	require.NoError(t, err)

	_, err = svc.CloseSession(ctx, domain.SessionCloseRequest{SessionID: cut.ID, FinalAmount: dec("139")})
	require.NoError(t, err)

	summary, err := svc.SessionSummary(ctx, cut.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SalesCount)
	assert.Equal(t, 1, summary.VoidedCount)
	assertDecimal(t, "40", summary.SalesTotal)
	assert.Equal(t, 1, summary.PaymentsCount)
	assertDecimal(t, "140", summary.ExpectedAmount)
	require.NotNil(t, summary.DeclaredVariance)
	assertDecimal(t, "-1", *summary.DeclaredVariance)
}

func TestOpenSessionForAnotherCashierNeedsElevatedRole(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.OpenSession(cashierCtx("c1"), domain.SessionOpenRequest{CashierID: "c2", LocationID: "loc-main"})
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "cashier_id", verr.Field)

	own, err := svc.OpenSession(cashierCtx("c1"), domain.SessionOpenRequest{LocationID: "loc-main"})
	require.NoError(t, err)
	assert.Equal(t, "c1", own.CashierID)

	cut, err := svc.OpenSession(managerCtx(), domain.SessionOpenRequest{CashierID: "c2", LocationID: "loc-main"})
	require.NoError(t, err)
	assert.Equal(t, "c2", cut.CashierID)
}
