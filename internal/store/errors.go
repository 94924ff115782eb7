package store

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOverpayment       = errors.New("overpayment rejected")
	ErrDocumentVoided    = errors.New("document voided")
	ErrNoActiveSession   = errors.New("no active session")
	ErrBusy              = errors.New("busy")
	ErrInconsistent      = errors.New("inconsistent state")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(entity string, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

type ConflictError struct {
	Entity string
	Key    string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.Key, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// SessionAlreadyOpenError is the Conflict raised when a cashier opens a second session.
type SessionAlreadyOpenError struct {
	CashierID string
	SessionID string
}

func (e *SessionAlreadyOpenError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("cashier %s already has an open session", e.CashierID)
	}
	return fmt.Sprintf("cashier %s already has open session %s", e.CashierID, e.SessionID)
}

func (e *SessionAlreadyOpenError) Unwrap() error { return ErrConflict }

type InsufficientStockError struct {
	LocationID string
	ItemID     string
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s at location %s: available %s, requested %s",
		e.ItemID, e.LocationID, e.Available.String(), e.Requested.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type OverpaymentError struct {
	DocumentID  string
	Amount      decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("overpayment rejected: amount %s exceeds pending %s",
			e.Amount.StringFixed(2), e.Outstanding.StringFixed(2))
	}
	return fmt.Sprintf("overpayment rejected for document %s: amount %s exceeds outstanding %s",
		e.DocumentID, e.Amount.StringFixed(2), e.Outstanding.StringFixed(2))
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

type DocumentVoidedError struct {
	DocumentID string
}

func (e *DocumentVoidedError) Error() string {
	return fmt.Sprintf("document %s is voided", e.DocumentID)
}

func (e *DocumentVoidedError) Unwrap() error { return ErrDocumentVoided }

type NoActiveSessionError struct {
	CashierID  string
	LocationID string
}

func (e *NoActiveSessionError) Error() string {
	return fmt.Sprintf("no active session for cashier %s at location %s", e.CashierID, e.LocationID)
}

func (e *NoActiveSessionError) Unwrap() error { return ErrNoActiveSession }

// BusyError hides the storage cause from Error(); Cause stays available for logs.
type BusyError struct {
	Op    string
	Cause error
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s: resource busy, retry later", e.Op)
}

func (e *BusyError) Unwrap() error { return ErrBusy }

type InconsistentError struct {
	Entity string
	ID     string
	Detail string
}

func (e *InconsistentError) Error() string {
	return fmt.Sprintf("inconsistent %s %s: %s", e.Entity, e.ID, e.Detail)
}

func (e *InconsistentError) Unwrap() error { return ErrInconsistent }

func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsClientError reports errors caused by the request rather than the engine.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrDocumentVoided) ||
		errors.Is(err, ErrNoActiveSession)
}
