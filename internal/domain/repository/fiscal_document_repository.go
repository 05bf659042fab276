package repository

import (
	"context"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
)

// FiscalDocumentRepository persiste as notas emitidas e seus eventos.
// Eventos são append-only: nunca há update nem delete de evento.
type FiscalDocumentRepository interface {
	Create(ctx context.Context, doc *entity.FiscalDocument) error
	GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error)
	GetByAccessKey(ctx context.Context, accessKey string) (*entity.FiscalDocument, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.FiscalDocument, error)
	Update(ctx context.Context, doc *entity.FiscalDocument) error
	AppendEvent(ctx context.Context, ev *entity.FiscalEvent) error
	ListEvents(ctx context.Context, documentID string) ([]*entity.FiscalEvent, error)
}
