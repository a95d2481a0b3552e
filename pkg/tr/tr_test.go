package tr

import (
	"context"
	"testing"

	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTx реализует pgx.Tx только ради проверки передачи через контекст.
type stubTx struct {
	pgx.Tx
}

func TestTxFromCtx(t *testing.T) {
	_, err := TxFromCtx(context.Background())
	assert.ErrorIs(t, err, e.ErrTransactionNotFound)

	tx := &stubTx{}
	got, err := TxFromCtx(WithTx(context.Background(), tx))
	require.NoError(t, err)
	assert.Same(t, tx, got)
}
