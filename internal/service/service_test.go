package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PredatorDevs/systudents-back-sub001/internal/cache"
	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/lock"
	"github.com/PredatorDevs/systudents-back-sub001/internal/logging"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	svc := New(repo, Options{
		Cache:         cache.NewMemoryBalanceCache(),
		Locker:        lock.NewLocal(time.Second),
		Logger:        logging.Discard(),
		RetryAttempts: 3,
	})
	return svc, repo
}

func cashierCtx(cashierID string) context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:    "user-" + cashierID,
		CashierID: cashierID,
		Role:      "cashier",
	})
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func line(itemID string, price string, qty string) domain.DocumentLineInput {
	return domain.DocumentLineInput{ItemID: itemID, UnitPrice: dec(price), Quantity: dec(qty)}
}

func saleRequest(number string, total string, lines ...domain.DocumentLineInput) domain.DocumentRequest {
	return domain.DocumentRequest{
		Header: domain.DocumentHeader{
			LocationID:     "loc-main",
			CounterpartyID: "cust-walkin",
			DocumentTypeID: "dt-receipt",
			DocNumber:      number,
			Total:          dec(total),
		},
		Lines: lines,
	}
}

func openSession(t *testing.T, svc *Service, ctx context.Context, cashierID string, locationID string) domain.ShiftCut {
	t.Helper()
	cut, err := svc.OpenSession(ctx, domain.SessionOpenRequest{
		CashierID:     cashierID,
		LocationID:    locationID,
		InitialAmount: dec("100"),
	})
	require.NoError(t, err)
	return cut
}

func stockOf(t *testing.T, repo store.Reader, locationID string, itemID string) decimal.Decimal {
	t.Helper()
	row, err := repo.GetLocationStock(context.Background(), locationID, itemID)
	require.NoError(t, err)
	return row.Stock
}

func TestSaleLifecycleFromReservationToVoid(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := cashierCtx("c1")
	shift := openSession(t, svc, ctx, "c1", "loc-main")

	avail, err := svc.CheckAvailability(ctx, "loc-main", "item-coffee", dec("4"))
	require.NoError(t, err)
	assert.True(t, avail.IsAvailable)
	assertDecimal(t, "10", avail.CurrentStock)

	created, err := svc.CreateSale(ctx, saleRequest("R-0001", "40.00", line("item-coffee", "10.00", "4")))
	require.NoError(t, err)
	assert.Equal(t, shift.ID, created.ShiftCutID)
	assertDecimal(t, "40", created.Total)
	assertDecimal(t, "6", stockOf(t, repo, "loc-main", "item-coffee"))

	paid, err := svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: created.DocumentID, Amount: dec("40.00"), PaymentMethodID: "cash"})
	require.NoError(t, err)
	assertDecimal(t, "0", paid.Outstanding)
	assert.Equal(t, shift.ID, paid.Payment.ShiftCutID)

	pending, err := svc.PendingAmount(ctx, created.DocumentID)
	require.NoError(t, err)
	assertDecimal(t, "0", pending)

	voided, err := svc.VoidDocument(ctx, domain.VoidRequest{DocumentID: created.DocumentID, AuthorizedBy: "manager-1", Reason: "customer returned"})
	require.NoError(t, err)
	assert.False(t, voided.AlreadyVoided)
	assertDecimal(t, "10", stockOf(t, repo, "loc-main", "item-coffee"))

	_, err = svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: created.DocumentID, Amount: dec("1"), PaymentMethodID: "cash"})
	assert.ErrorIs(t, err, store.ErrDocumentVoided)

	payments, err := svc.ListPayments(ctx, created.DocumentID)
	require.NoError(t, err)
	assert.Len(t, payments, 1, "void keeps payment history")

	rec, err := svc.ReconcileStock(ctx, "loc-main", "item-coffee")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Movements)
	assertDecimal(t, "10", rec.Replayed)
}

type flakyRepo struct {
	store.Repository
	failures int
	calls    int
}

func (r *flakyRepo) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	r.calls++
	if r.calls <= r.failures {
		return &store.BusyError{Op: "test", Cause: context.DeadlineExceeded}
	}
	return r.Repository.WithinTx(ctx, fn)
}

func TestUnitOfWorkRetriesBusyThenGivesUp(t *testing.T) {
	repo := &flakyRepo{Repository: memory.NewSeeded(), failures: 2}
	svc := New(repo, Options{RetryAttempts: 3})
	ctx := cashierCtx("c1")

	_, err := svc.OpenSession(ctx, domain.SessionOpenRequest{CashierID: "c1", LocationID: "loc-main"})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)

	repo.calls, repo.failures = 0, 5
	_, err = svc.OpenSession(cashierCtx("c2"), domain.SessionOpenRequest{CashierID: "c2", LocationID: "loc-main"})
	require.Error(t, err)
	assert.True(t, store.IsRetryable(err))
	assert.Equal(t, 3, repo.calls)
	assert.NotContains(t, err.Error(), "deadline")
}

func TestMutationsWriteAuditLogsWithActor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("c1")
	cut := openSession(t, svc, ctx, "c1", "loc-main")

	logs, err := svc.ListAuditLogs(ctx, "shift_cut", cut.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "session_open", logs[0].Action)
	assert.Equal(t, "user-c1", logs[0].ActorUserID)

	_, err = svc.AdjustStock(context.Background(), domain.AdjustRequest{
		LocationID: "loc-main", ItemID: "item-tea", Delta: dec("2"), Reason: "recount",
	})
	require.NoError(t, err)
	logs, err = svc.ListAuditLogs(ctx, "location_stock", "loc-main/item-tea", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "system", logs[0].ActorUserID)
}

func TestValidationReportsFieldNames(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("c1")

	_, err := svc.CreateSale(ctx, saleRequest("R-1", "0", line("item-coffee", "1", "0")))
	var invalid *store.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "lines[0].quantity", invalid.Field)

	_, err = svc.OpenSession(ctx, domain.SessionOpenRequest{CashierID: "c1", LocationID: "loc-main", InitialAmount: dec("-1")})
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "initial_amount", invalid.Field)
}
