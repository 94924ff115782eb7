package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
)

func TestTranslateMapsLockFailuresToBusy(t *testing.T) {
	for _, code := range []string{"55P03", "40001", "40P01", "57014"} {
		err := translate("unit of work", fmt.Errorf("lock stock: %w", &pgconn.PgError{Code: code, Message: "canceling statement"}))
		assert.ErrorIs(t, err, store.ErrBusy, code)
		assert.NotContains(t, err.Error(), "canceling statement", code)
	}
}

func TestTranslateMapsConstraintViolations(t *testing.T) {
	err := translate("unit of work", &pgconn.PgError{Code: "23505", TableName: "document_numbers", ConstraintName: "document_numbers_pkey"})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NotContains(t, err.Error(), "document_numbers")

	err = translate("unit of work", &pgconn.PgError{Code: "23503", TableName: "payments", ConstraintName: "payments_document_id_fkey"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotContains(t, err.Error(), "payments")
}

func TestTranslateKeepsStoreErrorsAndWrapsTheRest(t *testing.T) {
	typed := &store.InsufficientStockError{LocationID: "loc-main", ItemID: "item-coffee"}
	assert.Same(t, typed, translate("unit of work", typed))

	assert.ErrorIs(t, translate("commit", context.DeadlineExceeded), store.ErrBusy)

	plain := errors.New("connection reset")
	err := translate("commit", plain)
	assert.ErrorIs(t, err, plain)
	assert.False(t, store.IsClientError(err))
	assert.NoError(t, translate("commit", nil))
}
