package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionManager_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	tm := NewTransactionManager(db)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()
	tenant := uuid.New()

	p, err := reconciliation.NewPayment(tenant, decimal.NewFromInt(10), day("2024-01-01"), "")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tm.RunInTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, repo.Save(txCtx, p))
		return tm.RunInTx(txCtx, func(context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	found, err := repo.FindByID(ctx, tenant, p.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		return repo.Save(txCtx, p)
	}))
	found, err = repo.FindByID(ctx, tenant, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, found)
}
