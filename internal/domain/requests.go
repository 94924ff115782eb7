package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionOpenRequest struct {
	CashierID     string          `json:"cashier_id" validate:"required,max=64"`
	LocationID    string          `json:"location_id" validate:"required,max=64"`
	InitialAmount decimal.Decimal `json:"initial_amount" validate:"gte=0"`
}

type SessionCloseRequest struct {
	SessionID   string          `json:"session_id" validate:"required"`
	FinalAmount decimal.Decimal `json:"final_amount" validate:"gte=0"`
}

type SessionSettleRequest struct {
	SessionID      string          `json:"session_id" validate:"required"`
	RemittedAmount decimal.Decimal `json:"remitted_amount" validate:"gte=0"`
}

type SessionQuery struct {
	CashierID  string `json:"cashier_id"`
	LocationID string `json:"location_id"`
}

type SessionSummary struct {
	Session          ShiftCut         `json:"session"`
	SalesCount       int              `json:"sales_count"`
	VoidedCount      int              `json:"voided_count"`
	SalesTotal       decimal.Decimal  `json:"sales_total"`
	PaymentsCount    int              `json:"payments_count"`
	PaymentsTotal    decimal.Decimal  `json:"payments_total"`
	ExpectedAmount   decimal.Decimal  `json:"expected_amount"`
	DeclaredVariance *decimal.Decimal `json:"declared_variance,omitempty"`
}

type DocumentHeader struct {
	LocationID     string          `json:"location_id" validate:"required,max=64"`
	CounterpartyID string          `json:"counterparty_id" validate:"required,max=64"`
	DocumentTypeID string          `json:"document_type_id" validate:"required,max=64"`
	PaymentTypeID  string          `json:"payment_type_id" validate:"omitempty,max=64"`
	DocNumber      string          `json:"doc_number" validate:"required,max=64"`
	NumberScopeID  string          `json:"number_scope_id" validate:"omitempty,max=64"`
	DocDatetime    *time.Time      `json:"doc_datetime,omitempty"`
	CashierID      string          `json:"cashier_id" validate:"omitempty,max=64"`
	Discount       decimal.Decimal `json:"discount" validate:"gte=0"`
	Tax            decimal.Decimal `json:"tax" validate:"gte=0"`
	Total          decimal.Decimal `json:"total" validate:"gte=0"`
}

type DocumentLineInput struct {
	ItemID    string          `json:"item_id" validate:"required,max=64"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	IsBonus   bool            `json:"is_bonus"`
}

type CreateOptions struct {
	// NegativeStockItems lists item ids allowed to go below zero for this document.
	NegativeStockItems []string `json:"negative_stock_items,omitempty"`
}

type DocumentRequest struct {
	Header  DocumentHeader      `json:"header"`
	Lines   []DocumentLineInput `json:"lines" validate:"required,min=1,dive"`
	Options CreateOptions       `json:"options"`
}

type DocumentCreated struct {
	DocumentID string          `json:"document_id"`
	Kind       DocumentKind    `json:"kind"`
	Total      decimal.Decimal `json:"total"`
	ShiftCutID string          `json:"shift_cut_id,omitempty"`
}

type NumberValidationRequest struct {
	DocumentTypeID string `json:"document_type_id" validate:"required"`
	DocNumber      string `json:"doc_number" validate:"required,max=64"`
	ScopeID        string `json:"scope_id" validate:"omitempty,max=64"`
}

type PaymentMeta struct {
	BankID          string `json:"bank_id" validate:"omitempty,max=64"`
	ReferenceNumber string `json:"reference_number" validate:"omitempty,max=128"`
}

type PaymentRequest struct {
	DocumentID      string          `json:"document_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentMethodID string          `json:"payment_method_id" validate:"required,max=64"`
	Meta            PaymentMeta     `json:"meta"`
}

type PaymentResult struct {
	Payment     Payment         `json:"payment"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type GeneralPaymentRequest struct {
	Kind            DocumentKind    `json:"kind" validate:"required,oneof=sale purchase"`
	CounterpartyID  string          `json:"counterparty_id" validate:"required,max=64"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentMethodID string          `json:"payment_method_id" validate:"required,max=64"`
	Meta            PaymentMeta     `json:"meta"`
}

type Allocation struct {
	DocumentID  string          `json:"document_id"`
	PaymentID   string          `json:"payment_id"`
	Amount      decimal.Decimal `json:"amount"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type GeneralPaymentResult struct {
	GeneralPaymentID string          `json:"general_payment_id"`
	Amount           decimal.Decimal `json:"amount"`
	Allocations      []Allocation    `json:"allocations"`
}

type VoidRequest struct {
	DocumentID   string `json:"document_id" validate:"required"`
	AuthorizedBy string `json:"authorized_by" validate:"required,max=64"`
	Reason       string `json:"reason" validate:"omitempty,max=255"`
}

type VoidResult struct {
	DocumentID    string    `json:"document_id"`
	AlreadyVoided bool      `json:"already_voided"`
	VoidedAt      time.Time `json:"voided_at"`
	VoidedBy      string    `json:"voided_by"`
}

type AdjustRequest struct {
	LocationID    string          `json:"location_id" validate:"required,max=64"`
	ItemID        string          `json:"item_id" validate:"required,max=64"`
	Delta         decimal.Decimal `json:"delta"`
	Reason        string          `json:"reason" validate:"required,max=255"`
	AuthorizedBy  string          `json:"authorized_by" validate:"omitempty,max=64"`
	AllowNegative bool            `json:"allow_negative"`
}

type StockAdjustmentLine struct {
	LocationID string          `json:"location_id" validate:"required,max=64"`
	ItemID     string          `json:"item_id" validate:"required,max=64"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type StockAdjustmentRequest struct {
	Comments      string                `json:"comments" validate:"required,max=255"`
	AuthorizedBy  string                `json:"authorized_by" validate:"omitempty,max=64"`
	AllowNegative bool                  `json:"allow_negative"`
	Details       []StockAdjustmentLine `json:"details" validate:"required,min=1,dive"`
}

type InitializeStockRequest struct {
	LocationID    string          `json:"location_id" validate:"required,max=64"`
	ItemID        string          `json:"item_id" validate:"required,max=64"`
	InitialStock  decimal.Decimal `json:"initial_stock" validate:"gte=0"`
	MinStockAlert decimal.Decimal `json:"min_stock_alert" validate:"gte=0"`
}

type Availability struct {
	IsAvailable  bool            `json:"is_available"`
	CurrentStock decimal.Decimal `json:"current_stock"`
}

type StockReconciliation struct {
	LocationID   string          `json:"location_id"`
	ItemID       string          `json:"item_id"`
	InitialStock decimal.Decimal `json:"initial_stock"`
	Replayed     decimal.Decimal `json:"replayed"`
	Stock        decimal.Decimal `json:"stock"`
	Movements    int             `json:"movements"`
}
