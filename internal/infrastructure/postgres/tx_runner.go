package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/efinanceira-api/internal/application/signing"
	"github.com/jhoicas/efinanceira-api/internal/domain/repository"
)

var _ signing.AuditTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunAudit inicia una transacción, ejecuta fn con el repo atado a la tx y hace Commit o Rollback.
// Los registros de todos los eventos de un lote se guardan juntos o ninguno.
func (r *TxRunner) RunAudit(ctx context.Context, fn func(repo repository.SignatureRecordRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewSignatureRecordRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
