package fiscal

import (
	"context"
	"fmt"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/repository"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/pdf"
	"github.com/cleiltonsr/prograos-fiscal/pkg/logger"
)

// ReceiptUseCase gera o DANFE simplificado em PDF e aplica a assinatura de
// recibo. A assinatura é melhor esforço: em falha o PDF sai sem ela.
type ReceiptUseCase struct {
	documents repository.FiscalDocumentRepository
	invoices  repository.InvoiceRepository
	emitters  repository.EmitterRepository
	renderer  DANFERenderer
	signer    ReceiptSigner
	log       *logger.Logger
}

func NewReceiptUseCase(
	documents repository.FiscalDocumentRepository,
	invoices repository.InvoiceRepository,
	emitters repository.EmitterRepository,
	renderer DANFERenderer,
	signer ReceiptSigner,
	log *logger.Logger,
) *ReceiptUseCase {
	return &ReceiptUseCase{
		documents: documents,
		invoices:  invoices,
		emitters:  emitters,
		renderer:  renderer,
		signer:    signer,
		log:       log,
	}
}

// DANFE devolve o PDF do recibo do documento indicado.
func (uc *ReceiptUseCase) DANFE(ctx context.Context, documentID string) ([]byte, error) {
	doc, err := uc.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("documento %s: %w", documentID, domain.ErrNotFound)
	}

	inv, err := uc.invoices.GetByID(ctx, doc.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("venda %s: %w", doc.InvoiceID, domain.ErrNotFound)
	}

	em, err := uc.emitters.Get(ctx)
	if err != nil {
		return nil, err
	}
	if em == nil {
		return nil, fmt.Errorf("emitente não configurado: %w", domain.ErrNotFound)
	}

	raw, err := uc.renderer.Generate(pdf.DANFEInput{Invoice: inv, Document: doc, Emitter: em})
	if err != nil {
		return nil, err
	}

	if uc.signer == nil {
		return raw, nil
	}
	signed, err := uc.signer.Sign(raw)
	if err != nil {
		// Soft fail: o recibo sem assinatura ainda é útil.
		uc.log.Warn().Str("document_id", documentID).Err(err).Msg("assinatura do PDF falhou; entregando sem assinatura")
		return raw, nil
	}
	return signed, nil
}
