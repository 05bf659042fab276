package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/repository"
)

// InvoiceRepo implementa repository.InvoiceRepository. A pesagem vinculada
// vem junto no mesmo SELECT: a montagem da NF-e precisa das duas de uma vez.
type InvoiceRepo struct {
	pool *pgxpool.Pool
}

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

func NewInvoiceRepo(pool *pgxpool.Pool) *InvoiceRepo {
	return &InvoiceRepo{pool: pool}
}

func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	const q = `
		SELECT i.id, i.customer_name, i.customer_document,
		       i.total_amount, i.issue_date, i.status, i.created_at, i.updated_at,
		       w.id, w.placa, w.motorista, w.tipo_grao,
		       w.tara, w.peso_carregado, w.peso_liquido, w.data_final
		FROM invoices i
		LEFT JOIN weighings w ON w.id = i.weighing_id
		WHERE i.id = $1`

	// A pesagem pode não existir ainda (venda em rascunho); as colunas do
	// LEFT JOIN vêm nulas nesse caso e os ponteiros ficam nil.
	var (
		inv                     entity.Invoice
		wID, wPlaca, wMotorista *string
		wTipoGrao               *string
		wTara, wCarregado, wLiq *decimal.Decimal
		wDataFinal              *time.Time
	)
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&inv.ID, &inv.CustomerName, &inv.CustomerDocument,
		&inv.TotalAmount, &inv.IssueDate, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt,
		&wID, &wPlaca, &wMotorista, &wTipoGrao,
		&wTara, &wCarregado, &wLiq, &wDataFinal,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("buscar venda %s: %w", id, err)
	}

	if wID != nil {
		w := entity.Weighing{ID: *wID}
		if wPlaca != nil {
			w.Placa = *wPlaca
		}
		if wMotorista != nil {
			w.Motorista = *wMotorista
		}
		if wTipoGrao != nil {
			w.TipoGrao = *wTipoGrao
		}
		if wTara != nil {
			w.Tara = *wTara
		}
		if wCarregado != nil {
			w.PesoCarregado = *wCarregado
		}
		if wLiq != nil {
			w.PesoLiquido = *wLiq
		}
		if wDataFinal != nil {
			w.DataFinal = *wDataFinal
		}
		inv.Weighing = &w
	}
	return &inv, nil
}

func (r *InvoiceRepo) UpdateStatus(ctx context.Context, id, status string) error {
	const q = `UPDATE invoices SET status = $2, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, q, id, status)
	if err != nil {
		return fmt.Errorf("atualizar status da venda %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("atualizar status: venda %s não encontrada", id)
	}
	return nil
}
