package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemKind string

type DocumentKind string

type CounterpartyKind string

type NumberScope string

type ShiftStatus string

type MovementReason string

type Item struct {
	ID        string          `json:"id"`
	Kind      ItemKind        `json:"kind"`
	Name      string          `json:"name"`
	Cost      decimal.Decimal `json:"cost"`
	IsTaxable bool            `json:"is_taxable"`
	IsService bool            `json:"is_service"`
	Active    bool            `json:"active"`
}

type Counterparty struct {
	ID     string           `json:"id"`
	Kind   CounterpartyKind `json:"kind"`
	Name   string           `json:"name"`
	Active bool             `json:"active"`
}

type Location struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type DocumentType struct {
	ID          string       `json:"id"`
	Kind        DocumentKind `json:"kind"`
	Name        string       `json:"name"`
	NumberScope NumberScope  `json:"number_scope"`
	Active      bool         `json:"active"`
}

type DocumentNumberKey struct {
	DocumentTypeID string `json:"document_type_id"`
	DocNumber      string `json:"doc_number"`
	ScopeKey       string `json:"scope_key"`
}

type LocationStock struct {
	LocationID    string          `json:"location_id"`
	ItemID        string          `json:"item_id"`
	InitialStock  decimal.Decimal `json:"initial_stock"`
	Stock         decimal.Decimal `json:"stock"`
	MinStockAlert decimal.Decimal `json:"min_stock_alert"`
	CreatedBy     string          `json:"created_by"`
	UpdatedBy     string          `json:"updated_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type StockMovement struct {
	ID           string          `json:"id"`
	Seq          int64           `json:"seq"`
	LocationID   string          `json:"location_id"`
	ItemID       string          `json:"item_id"`
	Delta        decimal.Decimal `json:"delta"`
	StockBefore  decimal.Decimal `json:"stock_before"`
	StockAfter   decimal.Decimal `json:"stock_after"`
	Reason       MovementReason  `json:"reason"`
	DocumentID   string          `json:"document_id,omitempty"`
	AdjustmentID string          `json:"adjustment_id,omitempty"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

type StockAdjustment struct {
	ID                 string                  `json:"id"`
	AdjustmentDatetime time.Time               `json:"adjustment_datetime"`
	Comments           string                  `json:"comments"`
	AdjustmentBy       string                  `json:"adjustment_by"`
	AuthorizedBy       string                  `json:"authorized_by"`
	CreatedAt          time.Time               `json:"created_at"`
	Details            []StockAdjustmentDetail `json:"details"`
}

type StockAdjustmentDetail struct {
	LocationID  string          `json:"location_id"`
	ItemID      string          `json:"item_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	StockBefore decimal.Decimal `json:"stock_before"`
	StockAfter  decimal.Decimal `json:"stock_after"`
}

type ShiftCut struct {
	ID             string           `json:"id"`
	CashierID      string           `json:"cashier_id"`
	LocationID     string           `json:"location_id"`
	Status         ShiftStatus      `json:"status"`
	OpenedAt       time.Time        `json:"opened_at"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
	SettledAt      *time.Time       `json:"settled_at,omitempty"`
	InitialAmount  decimal.Decimal  `json:"initial_amount"`
	FinalAmount    *decimal.Decimal `json:"final_amount,omitempty"`
	RemittedAmount *decimal.Decimal `json:"remitted_amount,omitempty"`
	CreatedBy      string           `json:"created_by"`
	UpdatedBy      string           `json:"updated_by"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type Document struct {
	ID             string          `json:"id"`
	Kind           DocumentKind    `json:"kind"`
	LocationID     string          `json:"location_id"`
	CounterpartyID string          `json:"counterparty_id"`
	DocumentTypeID string          `json:"document_type_id"`
	PaymentTypeID  string          `json:"payment_type_id,omitempty"`
	DocNumber      string          `json:"doc_number"`
	NumberScopeKey string          `json:"number_scope_key,omitempty"`
	DocDatetime    time.Time       `json:"doc_datetime"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	IsVoided       bool            `json:"is_voided"`
	VoidedAt       *time.Time      `json:"voided_at,omitempty"`
	VoidedBy       string          `json:"voided_by,omitempty"`
	VoidReason     string          `json:"void_reason,omitempty"`
	IsActive       bool            `json:"is_active"`
	ShiftCutID     string          `json:"shift_cut_id,omitempty"`
	CashierID      string          `json:"cashier_id,omitempty"`
	CreatedBy      string          `json:"created_by"`
	UpdatedBy      string          `json:"updated_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Lines          []DocumentLine  `json:"lines"`
}

// Outstanding is the unpaid remainder of the document, never below zero.
func (d Document) Outstanding() decimal.Decimal {
	left := d.Total.Sub(d.PaidAmount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// Allocatable reports whether payments may still be applied to the document.
func (d Document) Allocatable() bool {
	return d.IsActive && !d.IsVoided
}

type DocumentLine struct {
	LineNo    int             `json:"line_no"`
	ItemID    string          `json:"item_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  decimal.Decimal `json:"quantity"`
	IsBonus   bool            `json:"is_bonus"`
	IsActive  bool            `json:"is_active"`
}

func (l DocumentLine) Amount() decimal.Decimal {
	if l.IsBonus {
		return decimal.Zero
	}
	return l.UnitPrice.Mul(l.Quantity)
}

type Payment struct {
	ID               string          `json:"id"`
	DocumentID       string          `json:"document_id"`
	GeneralPaymentID string          `json:"general_payment_id,omitempty"`
	CashierID        string          `json:"cashier_id,omitempty"`
	ShiftCutID       string          `json:"shift_cut_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentMethodID  string          `json:"payment_method_id"`
	BankID           string          `json:"bank_id,omitempty"`
	ReferenceNumber  string          `json:"reference_number,omitempty"`
	RegisteredAt     time.Time       `json:"registered_at"`
	CreatedBy        string          `json:"created_by"`
}

type Actor struct {
	UserID    string `json:"user_id"`
	CashierID string `json:"cashier_id,omitempty"`
	Role      string `json:"role"`
}

type AuditLog struct {
	ID          string    `json:"id"`
	LocationID  string    `json:"location_id,omitempty"`
	ActorUserID string    `json:"actor_user_id"`
	ActorRole   string    `json:"actor_role"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	Detail      string    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	ItemKindProduct     ItemKind = "product"
	ItemKindRawMaterial ItemKind = "raw_material"

	DocumentKindSale     DocumentKind = "sale"
	DocumentKindPurchase DocumentKind = "purchase"

	CounterpartyCustomer CounterpartyKind = "customer"
	CounterpartySupplier CounterpartyKind = "supplier"

	NumberScopeType         NumberScope = "type"
	NumberScopeSeries       NumberScope = "series"
	NumberScopeCounterparty NumberScope = "counterparty"
	NumberScopeLocation     NumberScope = "location"

	ShiftStatusOpen    ShiftStatus = "OPEN"
	ShiftStatusClosed  ShiftStatus = "CLOSED"
	ShiftStatusSettled ShiftStatus = "SETTLED"

	MovementSale         MovementReason = "sale"
	MovementPurchase     MovementReason = "purchase"
	MovementAdjustment   MovementReason = "adjustment"
	MovementVoidSale     MovementReason = "void_sale"
	MovementVoidPurchase MovementReason = "void_purchase"
)

// CounterpartyKindFor maps a document kind to the counterparty it is issued to.
func CounterpartyKindFor(kind DocumentKind) CounterpartyKind {
	if kind == DocumentKindPurchase {
		return CounterpartySupplier
	}
	return CounterpartyCustomer
}
