package fiscal

import (
	"context"
	"fmt"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	domnfe "github.com/cleiltonsr/prograos-fiscal/internal/domain/nfe"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/repository"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/nfe"
	"github.com/cleiltonsr/prograos-fiscal/pkg/logger"
)

// EventUseCase registra eventos de ciclo de vida sobre notas já autorizadas.
// Eventos são append-only: cada tentativa respondida pela SEFAZ vira um
// registro, vinculado ou rejeitado.
type EventUseCase struct {
	documents repository.FiscalDocumentRepository
	invoices  repository.InvoiceRepository
	client    SefazClient
	log       *logger.Logger
}

func NewEventUseCase(
	documents repository.FiscalDocumentRepository,
	invoices repository.InvoiceRepository,
	client SefazClient,
	log *logger.Logger,
) *EventUseCase {
	return &EventUseCase{documents: documents, invoices: invoices, client: client, log: log}
}

// Cancel registra o evento de cancelamento (tpEvento 110111). Justificativa
// curta é barrada aqui, antes de qualquer rede. Com cStat 135 o documento vai
// para CANCELADA e a venda volta a CANCELLED.
func (uc *EventUseCase) Cancel(ctx context.Context, accessKey, justificativa string) (*entity.FiscalEvent, error) {
	if err := domnfe.ValidateJustificativa(justificativa); err != nil {
		return nil, &domain.ValidationError{Field: "justificativa", Cause: err.Error()}
	}

	doc, err := uc.authorizedDocument(ctx, accessKey)
	if err != nil {
		return nil, err
	}

	res := uc.client.Cancel(ctx, accessKey, doc.Protocol, justificativa)
	if res.StatusCode == "" {
		return nil, &domain.AuthorityError{Message: res.Message}
	}

	ev := eventFromResult(doc.ID, entity.EventoCancelamento, 1, justificativa, res)
	if err := uc.documents.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	if res.Success {
		doc.Status = entity.NFeStatusCancelada
		if err := uc.documents.Update(ctx, doc); err != nil {
			return nil, err
		}
		if err := uc.invoices.UpdateStatus(ctx, doc.InvoiceID, entity.InvoiceStatusCancelled); err != nil {
			return nil, err
		}
		uc.log.Info().Str("chave", accessKey).Str("protocolo", ev.Protocol).Msg("nota cancelada")
	} else {
		uc.log.Warn().Str("chave", accessKey).Str("cstat", res.StatusCode).Str("motivo", res.Message).Msg("cancelamento rejeitado")
	}
	return ev, nil
}

// CorrectionLetter registra uma carta de correção (tpEvento 110110). Cada CCe
// recebe a próxima sequência e substitui a anterior perante a SEFAZ; o
// documento permanece AUTORIZADA.
func (uc *EventUseCase) CorrectionLetter(ctx context.Context, accessKey, correcao string) (*entity.FiscalEvent, error) {
	if err := domnfe.ValidateCorrecao(correcao); err != nil {
		return nil, &domain.ValidationError{Field: "correcao", Cause: err.Error()}
	}

	doc, err := uc.authorizedDocument(ctx, accessKey)
	if err != nil {
		return nil, err
	}

	sequencia := 1
	for _, ev := range doc.Events {
		if ev.TipoEvento == entity.EventoCartaCorrecao && ev.Sequencia >= sequencia {
			sequencia = ev.Sequencia + 1
		}
	}

	res := uc.client.SendCorrectionLetter(ctx, accessKey, sequencia, correcao)
	if res.StatusCode == "" {
		return nil, &domain.AuthorityError{Message: res.Message}
	}

	ev := eventFromResult(doc.ID, entity.EventoCartaCorrecao, sequencia, correcao, res)
	if err := uc.documents.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	if res.Success {
		uc.log.Info().Str("chave", accessKey).Int("sequencia", sequencia).Msg("carta de correção vinculada")
	} else {
		uc.log.Warn().Str("chave", accessKey).Str("cstat", res.StatusCode).Str("motivo", res.Message).Msg("carta de correção rejeitada")
	}
	return ev, nil
}

// authorizedDocument busca o documento pela chave e exige status AUTORIZADA:
// só nota autorizada aceita evento.
func (uc *EventUseCase) authorizedDocument(ctx context.Context, accessKey string) (*entity.FiscalDocument, error) {
	doc, err := uc.documents.GetByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("nota %s: %w", accessKey, domain.ErrNotFound)
	}
	if doc.Status != entity.NFeStatusAutorizada {
		return nil, fmt.Errorf("nota %s está %s: %w", accessKey, doc.Status, domain.ErrConflict)
	}
	return doc, nil
}

func eventFromResult(documentID, tipoEvento string, sequencia int, texto string, res nfe.Result) *entity.FiscalEvent {
	status := entity.EventoStatusRejeitado
	if res.Success {
		status = entity.EventoStatusVinculado
	}
	return &entity.FiscalEvent{
		DocumentID: documentID,
		TipoEvento: tipoEvento,
		Sequencia:  sequencia,
		Texto:      texto,
		Protocol:   res.Protocol,
		Status:     status,
		StatusCode: res.StatusCode,
		Motivo:     res.Message,
	}
}
