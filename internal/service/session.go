package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
	"github.com/PredatorDevs/systudents-back-sub001/internal/xid"
)

// SessionManager owns the OPEN -> CLOSED -> SETTLED lifecycle of shift cuts.
// Transitions for one cashier are serialized by the cashier lock; the store's
// one-open-per-cashier constraint stays authoritative.
type SessionManager struct {
	*core
}

func (m *SessionManager) Open(ctx context.Context, req domain.SessionOpenRequest) (domain.ShiftCut, error) {
	cashierID, err := cashierFor(actorOf(ctx), "cashier_id", req.CashierID)
	if err != nil {
		return domain.ShiftCut{}, err
	}
	req.CashierID = cashierID
	if err := m.check(req); err != nil {
		return domain.ShiftCut{}, err
	}

	var out domain.ShiftCut
	err = m.withCashierLock(ctx, req.CashierID, func() error {
		return m.inTx(ctx, "session.open", func(ctx context.Context, tx store.Tx) error {
			location, err := tx.GetLocation(ctx, req.LocationID)
			if err != nil {
				return err
			}
			if !location.Active {
				return store.Invalid("location_id", "location is inactive")
			}

			existing, err := tx.FindOpenShiftCut(ctx, domain.SessionQuery{CashierID: req.CashierID})
			if err == nil {
				return &store.SessionAlreadyOpenError{CashierID: req.CashierID, SessionID: existing.ID}
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			actor := actorOf(ctx)
			now := m.now()
			cut := domain.ShiftCut{
				ID:            xid.New("shift"),
				CashierID:     req.CashierID,
				LocationID:    req.LocationID,
				Status:        domain.ShiftStatusOpen,
				OpenedAt:      now,
				InitialAmount: round2(req.InitialAmount),
				CreatedBy:     actor.UserID,
				UpdatedBy:     actor.UserID,
				UpdatedAt:     now,
			}
			if err := tx.CreateShiftCut(ctx, cut); err != nil {
				return err
			}
			out = cut
			return m.audit(ctx, tx, cut.LocationID, "session_open", "shift_cut", cut.ID,
				fmt.Sprintf("cashier=%s,initial=%s", cut.CashierID, cut.InitialAmount.StringFixed(2)))
		})
	})
	if err != nil {
		return domain.ShiftCut{}, err
	}
	return out, nil
}

// Close freezes the session. Closing a CLOSED or SETTLED session returns its
// current state unchanged.
func (m *SessionManager) Close(ctx context.Context, req domain.SessionCloseRequest) (domain.ShiftCut, error) {
	if err := m.check(req); err != nil {
		return domain.ShiftCut{}, err
	}
	return m.transition(ctx, "session.close", req.SessionID, func(cut *domain.ShiftCut) (bool, error) {
		if cut.Status != domain.ShiftStatusOpen {
			return false, nil
		}
		now := m.now()
		final := round2(req.FinalAmount)
		cut.Status = domain.ShiftStatusClosed
		cut.ClosedAt = &now
		cut.FinalAmount = &final
		return true, nil
	})
}

// Settle records the remitted amount. Settling twice is a no-op; an OPEN
// session must be closed first.
func (m *SessionManager) Settle(ctx context.Context, req domain.SessionSettleRequest) (domain.ShiftCut, error) {
	if err := m.check(req); err != nil {
		return domain.ShiftCut{}, err
	}
	return m.transition(ctx, "session.settle", req.SessionID, func(cut *domain.ShiftCut) (bool, error) {
		switch cut.Status {
		case domain.ShiftStatusSettled:
			return false, nil
		case domain.ShiftStatusOpen:
			return false, &store.ConflictError{Entity: "session", Key: cut.ID, Reason: "must be closed before settling"}
		}
		now := m.now()
		remitted := round2(req.RemittedAmount)
		cut.Status = domain.ShiftStatusSettled
		cut.SettledAt = &now
		cut.RemittedAmount = &remitted
		return true, nil
	})
}

// transition locks the session row and applies mutate. mutate reports whether
// it changed anything; unchanged sessions are returned without a write.
func (m *SessionManager) transition(ctx context.Context, op string, sessionID string, mutate func(cut *domain.ShiftCut) (bool, error)) (domain.ShiftCut, error) {
	current, err := m.repo.GetShiftCut(ctx, sessionID)
	if err != nil {
		return domain.ShiftCut{}, err
	}

	var out domain.ShiftCut
	err = m.withCashierLock(ctx, current.CashierID, func() error {
		return m.inTx(ctx, op, func(ctx context.Context, tx store.Tx) error {
			cut, err := tx.LockShiftCut(ctx, sessionID)
			if err != nil {
				return err
			}
			from := cut.Status
			changed, err := mutate(cut)
			if err != nil {
				return err
			}
			out = *cut
			if !changed {
				return nil
			}

			actor := actorOf(ctx)
			cut.UpdatedBy = actor.UserID
			cut.UpdatedAt = m.now()
			if err := tx.UpdateShiftCut(ctx, *cut); err != nil {
				return err
			}
			out = *cut
			return m.audit(ctx, tx, cut.LocationID, op, "shift_cut", cut.ID, fmt.Sprintf("from=%s,to=%s", from, cut.Status))
		})
	})
	if err != nil {
		return domain.ShiftCut{}, err
	}
	return out, nil
}

func (m *SessionManager) CurrentActive(ctx context.Context, q domain.SessionQuery) (domain.ShiftCut, error) {
	if q.CashierID == "" && q.LocationID == "" {
		return domain.ShiftCut{}, store.Invalid("cashier_id", "cashier_id or location_id is required")
	}
	cut, err := m.repo.FindOpenShiftCut(ctx, q)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ShiftCut{}, &store.NoActiveSessionError{CashierID: q.CashierID, LocationID: q.LocationID}
	}
	if err != nil {
		return domain.ShiftCut{}, err
	}
	return *cut, nil
}

// activeFor resolves the cashier's OPEN session at the location inside tx and
// holds it so a concurrent close waits for tx to finish.
func activeFor(ctx context.Context, tx store.Tx, cashierID string, locationID string) (*domain.ShiftCut, error) {
	if cashierID == "" {
		return nil, &store.NoActiveSessionError{LocationID: locationID}
	}
	found, err := tx.FindOpenShiftCut(ctx, domain.SessionQuery{CashierID: cashierID, LocationID: locationID})
	if errors.Is(err, store.ErrNotFound) {
		return nil, &store.NoActiveSessionError{CashierID: cashierID, LocationID: locationID}
	}
	if err != nil {
		return nil, err
	}
	cut, err := tx.ShareShiftCut(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	// The lookup is unlocked; the held row may have closed in between.
	if cut.Status != domain.ShiftStatusOpen {
		return nil, &store.NoActiveSessionError{CashierID: cashierID, LocationID: locationID}
	}
	return cut, nil
}

// Summary totals what the session collected. Voided sales are counted apart and
// excluded from SalesTotal; their payments still count as collected cash.
func (m *SessionManager) Summary(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	if err := requireID("session_id", sessionID); err != nil {
		return domain.SessionSummary{}, err
	}
	cut, err := m.repo.GetShiftCut(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	docs, err := m.repo.ListShiftCutDocuments(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	payments, err := m.repo.ListShiftCutPayments(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}

	summary := domain.SessionSummary{
		Session:       *cut,
		SalesTotal:    decimal.Zero,
		PaymentsTotal: decimal.Zero,
	}
	for _, doc := range docs {
		if doc.Kind != domain.DocumentKindSale {
			continue
		}
		if !doc.Allocatable() {
			summary.VoidedCount++
			continue
		}
		summary.SalesCount++
		summary.SalesTotal = summary.SalesTotal.Add(doc.Total)
	}
	for _, payment := range payments {
		summary.PaymentsCount++
		summary.PaymentsTotal = summary.PaymentsTotal.Add(payment.Amount)
	}
	summary.ExpectedAmount = round2(cut.InitialAmount.Add(summary.PaymentsTotal))
	if cut.FinalAmount != nil {
		variance := round2(cut.FinalAmount.Sub(summary.ExpectedAmount))
		summary.DeclaredVariance = &variance
	}
	return summary, nil
}
