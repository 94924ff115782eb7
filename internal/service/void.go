package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
)

// VoidCoordinator cancels documents without deleting history: the document is
// flagged and a compensating movement is written for its stock effect.
type VoidCoordinator struct {
	*core
	stock *StockLedger
}

// Void is idempotent. A second call reports AlreadyVoided and changes nothing.
func (v *VoidCoordinator) Void(ctx context.Context, req domain.VoidRequest) (domain.VoidResult, error) {
	if err := v.check(req); err != nil {
		return domain.VoidResult{}, err
	}

	var out domain.VoidResult
	err := v.inTx(ctx, "document.void", func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.LockDocument(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		v.invalidate(ctx, doc.ID)

		if doc.IsVoided {
			out = domain.VoidResult{DocumentID: doc.ID, AlreadyVoided: true, VoidedBy: doc.VoidedBy}
			if doc.VoidedAt != nil {
				out.VoidedAt = *doc.VoidedAt
			}
			return nil
		}
		if !doc.IsActive {
			return &store.ConflictError{Entity: "document", Key: doc.ID, Reason: "document was removed"}
		}

		if err := v.stock.ReverseForDocument(ctx, tx, *doc); err != nil {
			return err
		}
		now := v.now()
		reason := strings.TrimSpace(req.Reason)
		if err := tx.MarkDocumentVoided(ctx, doc.ID, req.AuthorizedBy, reason, now); err != nil {
			return err
		}

		out = domain.VoidResult{DocumentID: doc.ID, VoidedAt: now, VoidedBy: req.AuthorizedBy}
		return v.audit(ctx, tx, doc.LocationID, "document_void", "document", doc.ID,
			fmt.Sprintf("number=%s,total=%s,paid=%s,authorized_by=%s,reason=%s",
				doc.DocNumber, doc.Total.StringFixed(2), doc.PaidAmount.StringFixed(2), req.AuthorizedBy, reason))
	})
	v.invalidate(ctx, req.DocumentID)
	if err != nil {
		return domain.VoidResult{}, err
	}
	return out, nil
}
