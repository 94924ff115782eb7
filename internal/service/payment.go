package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
	"github.com/PredatorDevs/systudents-back-sub001/internal/xid"
)

// PaymentAllocator records payments and keeps the outstanding balance of a
// document at or above zero, within the configured tolerance.
type PaymentAllocator struct {
	*core
}

// sessionFor links a payment to the acting cashier's OPEN session, if any.
func sessionFor(ctx context.Context, tx store.Tx, cashierID string) (string, error) {
	if cashierID == "" {
		return "", nil
	}
	found, err := tx.FindOpenShiftCut(ctx, domain.SessionQuery{CashierID: cashierID})
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	cut, err := tx.ShareShiftCut(ctx, found.ID)
	if err != nil {
		return "", err
	}
	if cut.Status != domain.ShiftStatusOpen {
		return "", nil
	}
	return cut.ID, nil
}

func (p *PaymentAllocator) Add(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	if err := p.check(req); err != nil {
		return domain.PaymentResult{}, err
	}
	if err := requireCents("amount", req.Amount); err != nil {
		return domain.PaymentResult{}, err
	}

	var out domain.PaymentResult
	err := p.inTx(ctx, "payment.add", func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.LockDocument(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		p.invalidate(ctx, doc.ID)
		if !doc.Allocatable() {
			return &store.DocumentVoidedError{DocumentID: doc.ID}
		}

		outstanding := doc.Outstanding()
		if req.Amount.GreaterThan(outstanding.Add(p.tolerance)) {
			return &store.OverpaymentError{DocumentID: doc.ID, Amount: req.Amount, Outstanding: outstanding}
		}

		actor := actorOf(ctx)
		shiftCutID, err := sessionFor(ctx, tx, actor.CashierID)
		if err != nil {
			return err
		}
		payment := domain.Payment{
			ID:              xid.New("pay"),
			DocumentID:      doc.ID,
			CashierID:       actor.CashierID,
			ShiftCutID:      shiftCutID,
			Amount:          req.Amount,
			PaymentMethodID: req.PaymentMethodID,
			BankID:          req.Meta.BankID,
			ReferenceNumber: req.Meta.ReferenceNumber,
			RegisteredAt:    p.now(),
			CreatedBy:       actor.UserID,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}

		left := outstanding.Sub(req.Amount)
		if left.IsNegative() {
			left = decimal.Zero
		}
		out = domain.PaymentResult{Payment: payment, Outstanding: left}
		return p.audit(ctx, tx, doc.LocationID, "payment_add", "document", doc.ID,
			fmt.Sprintf("payment=%s,amount=%s,outstanding=%s", payment.ID, payment.Amount.StringFixed(2), left.StringFixed(2)))
	})
	p.invalidate(ctx, req.DocumentID)
	if err != nil {
		return domain.PaymentResult{}, err
	}
	return out, nil
}

// AddGeneral spreads one amount over the counterparty's pending documents,
// oldest first. The last document touched may stay partially paid. An amount
// larger than everything pending (beyond tolerance) is rejected as a whole.
func (p *PaymentAllocator) AddGeneral(ctx context.Context, req domain.GeneralPaymentRequest) (domain.GeneralPaymentResult, error) {
	if err := p.check(req); err != nil {
		return domain.GeneralPaymentResult{}, err
	}
	if err := requireCents("amount", req.Amount); err != nil {
		return domain.GeneralPaymentResult{}, err
	}

	var (
		out     domain.GeneralPaymentResult
		touched []string
	)
	err := p.inTx(ctx, "payment.add_general", func(ctx context.Context, tx store.Tx) error {
		counterparty, err := tx.GetCounterparty(ctx, req.CounterpartyID)
		if err != nil {
			return err
		}
		if want := domain.CounterpartyKindFor(req.Kind); counterparty.Kind != want {
			return store.Invalid("counterparty_id", fmt.Sprintf("%s payments need a %s", req.Kind, want))
		}

		pending, err := tx.LockPendingDocuments(ctx, req.Kind, req.CounterpartyID)
		if err != nil {
			return err
		}
		touched = touched[:0]
		totalPending := decimal.Zero
		for _, doc := range pending {
			touched = append(touched, doc.ID)
			totalPending = totalPending.Add(doc.Outstanding())
		}
		p.invalidate(ctx, touched...)
		if len(pending) == 0 || req.Amount.GreaterThan(totalPending.Add(p.tolerance)) {
			return &store.OverpaymentError{Amount: req.Amount, Outstanding: totalPending}
		}

		actor := actorOf(ctx)
		shiftCutID, err := sessionFor(ctx, tx, actor.CashierID)
		if err != nil {
			return err
		}

		allocations := make([]domain.Allocation, 0, len(pending))
		remaining := req.Amount
		for _, doc := range pending {
			if !remaining.IsPositive() {
				break
			}
			take := decimal.Min(remaining, doc.Outstanding())
			allocations = append(allocations, domain.Allocation{
				DocumentID:  doc.ID,
				Amount:      take,
				Outstanding: doc.Outstanding().Sub(take),
			})
			remaining = remaining.Sub(take)
		}
		if remaining.IsPositive() {
			// Only reachable within tolerance: the excess lands on the newest document.
			last := &allocations[len(allocations)-1]
			last.Amount = last.Amount.Add(remaining)
			last.Outstanding = decimal.Zero
		}

		generalID := xid.New("gpay")
		now := p.now()
		for i := range allocations {
			payment := domain.Payment{
				ID:               xid.New("pay"),
				DocumentID:       allocations[i].DocumentID,
				GeneralPaymentID: generalID,
				CashierID:        actor.CashierID,
				ShiftCutID:       shiftCutID,
				Amount:           allocations[i].Amount,
				PaymentMethodID:  req.PaymentMethodID,
				BankID:           req.Meta.BankID,
				ReferenceNumber:  req.Meta.ReferenceNumber,
				RegisteredAt:     now,
				CreatedBy:        actor.UserID,
			}
			if err := tx.CreatePayment(ctx, payment); err != nil {
				return err
			}
			allocations[i].PaymentID = payment.ID
		}

		out = domain.GeneralPaymentResult{GeneralPaymentID: generalID, Amount: req.Amount, Allocations: allocations}
		return p.audit(ctx, tx, "", "payment_general", "counterparty", req.CounterpartyID,
			fmt.Sprintf("general_payment=%s,amount=%s,documents=%d", generalID, req.Amount.StringFixed(2), len(allocations)))
	})
	p.invalidate(ctx, touched...)
	if err != nil {
		return domain.GeneralPaymentResult{}, err
	}
	return out, nil
}

// Pending returns total minus payments. Voided and removed documents report
// zero. Values are cached until the next payment, void or removal.
func (p *PaymentAllocator) Pending(ctx context.Context, documentID string) (decimal.Decimal, error) {
	if err := requireID("document_id", documentID); err != nil {
		return decimal.Zero, err
	}

	cached, cacheErr := p.cache.Get(ctx, documentID)
	if cacheErr != nil {
		p.logger.WithFields(logrus.Fields{"component": "balance_cache", "document_id": documentID}).WithError(cacheErr).Warn("get failed")
	} else if cached.Found {
		return cached.Outstanding, nil
	}

	doc, err := p.repo.GetDocument(ctx, documentID)
	if err != nil {
		return decimal.Zero, err
	}
	pending := decimal.Zero
	if doc.Allocatable() {
		pending = doc.Outstanding()
	}
	// Without a version from Get the fill cannot be guarded.
	if cacheErr != nil {
		return pending, nil
	}
	if err := p.cache.Set(ctx, documentID, pending, cached.Version, p.cacheTTL); err != nil {
		p.logger.WithFields(logrus.Fields{"component": "balance_cache", "document_id": documentID}).WithError(err).Warn("set failed")
	}
	return pending, nil
}
