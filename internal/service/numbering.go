package service

import (
	"context"
	"fmt"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
)

// NumberValidator guards document number uniqueness per type and scope.
type NumberValidator struct {
	*core
}

// scopeKey narrows uniqueness according to the document type configuration.
func scopeKey(docType domain.DocumentType, scopeID string) (string, error) {
	switch docType.NumberScope {
	case domain.NumberScopeType, "":
		return "", nil
	case domain.NumberScopeSeries, domain.NumberScopeCounterparty, domain.NumberScopeLocation:
		if scopeID == "" {
			return "", store.Invalid("scope_id", fmt.Sprintf("is required for %s numbering", docType.NumberScope))
		}
		return string(docType.NumberScope) + ":" + scopeID, nil
	default:
		return "", store.Invalid("document_type_id", fmt.Sprintf("unknown number scope %q", docType.NumberScope))
	}
}

// Validate is the read-only pre-check. Reserve repeats it under the unit of work.
func (n *NumberValidator) Validate(ctx context.Context, req domain.NumberValidationRequest) error {
	if err := n.check(req); err != nil {
		return err
	}
	docType, err := n.repo.GetDocumentType(ctx, req.DocumentTypeID)
	if err != nil {
		return err
	}
	scope, err := scopeKey(*docType, req.ScopeID)
	if err != nil {
		return err
	}
	key := domain.DocumentNumberKey{DocumentTypeID: docType.ID, DocNumber: req.DocNumber, ScopeKey: scope}
	taken, err := n.repo.DocumentNumberTaken(ctx, key)
	if err != nil {
		return err
	}
	if taken {
		return &store.ConflictError{Entity: "document number", Key: req.DocNumber, Reason: "already used"}
	}
	return nil
}

// Reserve records the number for documentID inside tx. Counterparty and
// location scoped types fall back to the header's ids when no scope id is
// given. A concurrent reservation of the same key surfaces as Conflict.
func (n *NumberValidator) Reserve(ctx context.Context, tx store.Tx, kind domain.DocumentKind, documentID string, header domain.DocumentHeader) (domain.DocumentNumberKey, error) {
	docType, err := tx.GetDocumentType(ctx, header.DocumentTypeID)
	if err != nil {
		return domain.DocumentNumberKey{}, err
	}
	if !docType.Active {
		return domain.DocumentNumberKey{}, store.Invalid("document_type_id", "document type is inactive")
	}
	if docType.Kind != kind {
		return domain.DocumentNumberKey{}, store.Invalid("document_type_id", fmt.Sprintf("document type %s issues %s documents", docType.ID, docType.Kind))
	}

	scopeID := header.NumberScopeID
	if scopeID == "" {
		switch docType.NumberScope {
		case domain.NumberScopeCounterparty:
			scopeID = header.CounterpartyID
		case domain.NumberScopeLocation:
			scopeID = header.LocationID
		}
	}
	scope, err := scopeKey(*docType, scopeID)
	if err != nil {
		return domain.DocumentNumberKey{}, err
	}
	key := domain.DocumentNumberKey{DocumentTypeID: docType.ID, DocNumber: header.DocNumber, ScopeKey: scope}

	taken, err := tx.DocumentNumberTaken(ctx, key)
	if err != nil {
		return domain.DocumentNumberKey{}, err
	}
	if taken {
		return domain.DocumentNumberKey{}, &store.ConflictError{Entity: "document number", Key: header.DocNumber, Reason: "already used"}
	}
	if err := tx.ReserveDocumentNumber(ctx, key, documentID); err != nil {
		return domain.DocumentNumberKey{}, err
	}
	return key, nil
}
