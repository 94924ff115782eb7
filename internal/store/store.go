package store

import (
	"context"
	"sort"
	"time"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
)

// Reader holds the read-only queries shared by the repository and open units of work.
type Reader interface {
	GetItems(ctx context.Context, ids []string) (map[string]domain.Item, error)
	GetLocation(ctx context.Context, id string) (*domain.Location, error)
	GetCounterparty(ctx context.Context, id string) (*domain.Counterparty, error)
	GetDocumentType(ctx context.Context, id string) (*domain.DocumentType, error)
	DocumentNumberTaken(ctx context.Context, key domain.DocumentNumberKey) (bool, error)

	GetLocationStock(ctx context.Context, locationID string, itemID string) (*domain.LocationStock, error)
	ListLowStock(ctx context.Context, locationID string) ([]domain.LocationStock, error)
	ListStockMovements(ctx context.Context, locationID string, itemID string) ([]domain.StockMovement, error)
	ListDocumentMovements(ctx context.Context, documentID string) ([]domain.StockMovement, error)

	GetShiftCut(ctx context.Context, id string) (*domain.ShiftCut, error)
	FindOpenShiftCut(ctx context.Context, q domain.SessionQuery) (*domain.ShiftCut, error)
	ListShiftCutDocuments(ctx context.Context, shiftCutID string) ([]domain.Document, error)
	ListShiftCutPayments(ctx context.Context, shiftCutID string) ([]domain.Payment, error)

	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListPayments(ctx context.Context, documentID string) ([]domain.Payment, error)
	ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error)
}

// Tx is one unit of work. Lock* methods hold their rows until commit or rollback.
type Tx interface {
	Reader

	EnsureLocationStock(ctx context.Context, locationID string, itemIDs []string, by string) error
	LockLocationStock(ctx context.Context, locationID string, itemIDs []string) (map[string]domain.LocationStock, error)
	InsertLocationStock(ctx context.Context, stock domain.LocationStock) error
	UpdateLocationStock(ctx context.Context, stock domain.LocationStock) error
	AppendStockMovements(ctx context.Context, movements []domain.StockMovement) error
	CreateStockAdjustment(ctx context.Context, adj domain.StockAdjustment) error

	CreateShiftCut(ctx context.Context, cut domain.ShiftCut) error
	LockShiftCut(ctx context.Context, id string) (*domain.ShiftCut, error)
	// ShareShiftCut holds the row against status changes while still admitting
	// other sharers, so sales on one shift do not serialize on it.
	ShareShiftCut(ctx context.Context, id string) (*domain.ShiftCut, error)
	UpdateShiftCut(ctx context.Context, cut domain.ShiftCut) error

	ReserveDocumentNumber(ctx context.Context, key domain.DocumentNumberKey, documentID string) error
	CreateDocument(ctx context.Context, doc domain.Document) error
	LockDocument(ctx context.Context, id string) (*domain.Document, error)
	MarkDocumentVoided(ctx context.Context, id string, by string, reason string, at time.Time) error
	DeactivateDocument(ctx context.Context, id string, by string, at time.Time) error
	LockPendingDocuments(ctx context.Context, kind domain.DocumentKind, counterpartyID string) ([]domain.Document, error)
	CreatePayment(ctx context.Context, payment domain.Payment) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

type Repository interface {
	Reader
	// WithinTx runs fn in one atomic unit of work; any error from fn rolls it back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// SortedUnique returns the distinct non-empty ids in lock order.
func SortedUnique(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
