package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PredatorDevs/systudents-back-sub001/internal/cache"
	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/logging"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store/memory"
)

func TestAddPaymentRejectsOneCentOverOutstanding(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("c1")
	openSession(t, svc, ctx, "c1", "loc-main")

	created, err := svc.CreateSale(ctx, saleRequest("R-1", "40.00", line("item-coffee", "10.00", "4")))
	require.NoError(t, err)

	res, err := svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: created.DocumentID, Amount: dec("39.99"), PaymentMethodID: "cash"})
	require.NoError(t, err)
	assertDecimal(t, "0.01", res.Outstanding)

	_, err = svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: created.DocumentID, Amount: dec("0.02"), PaymentMethodID: "cash"})
	var over *store.OverpaymentError
	require.ErrorAs(t, err, &over)
	assertDecimal(t, "0.01", over.Outstanding)

	pending, err := svc.PendingAmount(ctx, created.DocumentID)
	require.NoError(t, err)
	assertDecimal(t, "0.01", pending)

	res, err = svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: created.DocumentID, Amount: dec("0.01"), PaymentMethodID: "cash"})
	require.NoError(t, err)
	assertDecimal(t, "0", res.Outstanding)

	payments, err := svc.ListPayments(ctx, created.DocumentID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestAddPaymentWithinTolerance(t *testing.T) {
	svc := New(memory.NewSeeded(), Options{OverpaymentTolerance: dec("0.05")})
	ctx := cashierCtx("c1")
	openSession(t, svc, ctx, "c1", "loc-main")

	created, err := svc.CreateSale(ctx, saleRequest("R-1", "10", line("item-coffee", "10", "1")))
	require.NoError(t, err)

	res, err := svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: created.DocumentID, Amount: dec("10.05"), PaymentMethodID: "cash"})
	require.NoError(t, err)
	assertDecimal(t, "0", res.Outstanding)

	_, err = svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: created.DocumentID, Amount: dec("0.06"), PaymentMethodID: "cash"})
	assert.ErrorIs(t, err, store.ErrOverpayment)
}

func TestAddPaymentRejectsFractionalCents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("c1")

	_, err := svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: "sale-x", Amount: dec("1.005"), PaymentMethodID: "cash"})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: "sale-x", Amount: dec("1"), PaymentMethodID: "cash"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPendingAmountFollowsPayments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("c1")
	openSession(t, svc, ctx, "c1", "loc-main")

	created, err := svc.CreateSale(ctx, saleRequest("R-1", "40", line("item-coffee", "10", "4")))
	require.NoError(t, err)

	pending, err := svc.PendingAmount(ctx, created.DocumentID)
	require.NoError(t, err)
	assertDecimal(t, "40", pending)

	_, err = svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: created.DocumentID, Amount: dec("15"), PaymentMethodID: "card"})
	require.NoError(t, err)

	pending, err = svc.PendingAmount(ctx, created.DocumentID)
	require.NoError(t, err)
	assertDecimal(t, "25", pending, "cached balance must be dropped on payment")
}

// stallingCache holds the first fill until released.
type stallingCache struct {
	*cache.MemoryBalanceCache
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (c *stallingCache) Set(ctx context.Context, documentID string, outstanding decimal.Decimal, version int64, ttl time.Duration) error {
	c.once.Do(func() {
		close(c.reached)
		<-c.release
	})
	return c.MemoryBalanceCache.Set(ctx, documentID, outstanding, version, ttl)
}

func TestPendingAmountFillRacingPaymentIsDropped(t *testing.T) {
	balances := &stallingCache{
		MemoryBalanceCache: cache.NewMemoryBalanceCache(),
		reached:            make(chan struct{}),
		release:            make(chan struct{}),
	}
	svc := New(memory.NewSeeded(), Options{Cache: balances, Logger: logging.Discard()})
	ctx := cashierCtx("c1")
	openSession(t, svc, ctx, "c1", "loc-main")

	created, err := svc.CreateSale(ctx, saleRequest("R-1", "40.00", line("item-coffee", "10.00", "4")))
	require.NoError(t, err)

	done := make(chan decimal.Decimal, 1)
	go func() {
		pending, err := svc.PendingAmount(ctx, created.DocumentID)
		assert.NoError(t, err)
		done <- pending
	}()
	<-balances.reached

	_, err = svc.AddPayment(ctx, domain.PaymentRequest{DocumentID: created.DocumentID, Amount: dec("40.00"), PaymentMethodID: "cash"})
	require.NoError(t, err)
	close(balances.release)
	assertDecimal(t, "40", <-done, "the in-flight read saw the balance before the payment")

	pending, err := svc.PendingAmount(ctx, created.DocumentID)
	require.NoError(t, err)
	assertDecimal(t, "0", pending, "a fill loaded before the payment must not survive it")
}

func TestGeneralPaymentAllocatesOldestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("c1")
	openSession(t, svc, ctx, "c1", "loc-main")

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ids := make([]string, 0, 3)
	for i, total := range []string{"10", "20", "30"} {
		qty := dec(total).Div(dec("5"))
		req := saleRequest("R-"+total, total, domain.DocumentLineInput{ItemID: "item-tea", UnitPrice: dec("5"), Quantity: qty})
		req.Header.CounterpartyID = "cust-acme"
		at := base.Add(time.Duration(i) * time.Hour)
		req.Header.DocDatetime = &at
		created, err := svc.CreateSale(ctx, req)
		require.NoError(t, err)
		ids = append(ids, created.DocumentID)
	}

	res, err := svc.AddGeneralPayment(ctx, domain.GeneralPaymentRequest{
		Kind: domain.DocumentKindSale, CounterpartyID: "cust-acme", Amount: dec("35"), PaymentMethodID: "transfer",
	})
	require.NoError(t, err)
	require.Len(t, res.Allocations, 3)
	assert.Equal(t, ids, []string{res.Allocations[0].DocumentID, res.Allocations[1].DocumentID, res.Allocations[2].DocumentID})
	assertDecimal(t, "10", res.Allocations[0].Amount)
	assertDecimal(t, "20", res.Allocations[1].Amount)
	assertDecimal(t, "5", res.Allocations[2].Amount)
	assertDecimal(t, "25", res.Allocations[2].Outstanding)

	for _, alloc := range res.Allocations {
		payments, err := svc.ListPayments(ctx, alloc.DocumentID)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, res.GeneralPaymentID, payments[0].GeneralPaymentID)
	}

	_, err = svc.AddGeneralPayment(ctx, domain.GeneralPaymentRequest{
		Kind: domain.DocumentKindSale, CounterpartyID: "cust-acme", Amount: dec("25.01"), PaymentMethodID: "transfer",
	})
	assert.ErrorIs(t, err, store.ErrOverpayment)

	pending, err := svc.PendingAmount(ctx, ids[2])
	require.NoError(t, err)
	assertDecimal(t, "25", pending)
}

func TestGeneralPaymentSkipsVoidedDocuments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx("c1")
	openSession(t, svc, ctx, "c1", "loc-main")

	older := saleRequest("R-1", "40", line("item-coffee", "10", "4"))
	older.Header.CounterpartyID = "cust-acme"
	voided, err := svc.CreateSale(ctx, older)
	require.NoError(t, err)
	_, err = svc.VoidDocument(ctx, domain.VoidRequest{DocumentID: voided.DocumentID, AuthorizedBy: "manager-1"})
	require.NoError(t, err)

	newer := saleRequest("R-2", "10", line("item-tea", "5", "2"))
	newer.Header.CounterpartyID = "cust-acme"
	kept, err := svc.CreateSale(ctx, newer)
	require.NoError(t, err)

	res, err := svc.AddGeneralPayment(ctx, domain.GeneralPaymentRequest{
		Kind: domain.DocumentKindSale, CounterpartyID: "cust-acme", Amount: dec("10"), PaymentMethodID: "cash",
	})
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, kept.DocumentID, res.Allocations[0].DocumentID)

	_, err = svc.AddGeneralPayment(ctx, domain.GeneralPaymentRequest{
		Kind: domain.DocumentKindSale, CounterpartyID: "cust-acme", Amount: dec("1"), PaymentMethodID: "cash",
	})
	assert.ErrorIs(t, err, store.ErrOverpayment, "nothing left to allocate")
}

func TestGeneralPaymentChecksCounterpartyKind(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AddGeneralPayment(context.Background(), domain.GeneralPaymentRequest{
		Kind: domain.DocumentKindPurchase, CounterpartyID: "cust-acme", Amount: dec("1"), PaymentMethodID: "cash",
	})
	assert.ErrorIs(t, err, store.ErrValidation)
}
