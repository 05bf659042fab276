package repository

import (
	"context"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
)

// InvoiceRepository dá acesso às vendas (com a pesagem vinculada já carregada).
type InvoiceRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	UpdateStatus(ctx context.Context, id, status string) error
}
