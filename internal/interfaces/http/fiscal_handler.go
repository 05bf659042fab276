// Package http expõe a superfície HTTP fina do motor de emissão (fiber).
package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/nfe"
)

// IssueService emite notas e consulta o ambiente. Satisfeito por
// fiscal.IssueUseCase.
type IssueService interface {
	Issue(ctx context.Context, invoiceID string) (*entity.FiscalDocument, error)
	ResumePending(ctx context.Context, documentID string) (*entity.FiscalDocument, error)
	ServiceStatus(ctx context.Context) nfe.Result
}

// EventService registra eventos de ciclo de vida. Satisfeito por
// fiscal.EventUseCase.
type EventService interface {
	Cancel(ctx context.Context, accessKey, justificativa string) (*entity.FiscalEvent, error)
	CorrectionLetter(ctx context.Context, accessKey, correcao string) (*entity.FiscalEvent, error)
}

// ReceiptService gera o DANFE em PDF. Satisfeito por fiscal.ReceiptUseCase.
type ReceiptService interface {
	DANFE(ctx context.Context, documentID string) ([]byte, error)
}

// DocumentReader busca documentos persistidos para consulta.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error)
}

// FiscalHandler atende as rotas de emissão.
type FiscalHandler struct {
	issuer   IssueService
	events   EventService
	receipts ReceiptService
	docs     DocumentReader
}

// NewFiscalHandler constrói o handler.
func NewFiscalHandler(issuer IssueService, events EventService, receipts ReceiptService, docs DocumentReader) *FiscalHandler {
	return &FiscalHandler{issuer: issuer, events: events, receipts: receipts, docs: docs}
}

// Issue emite a NF-e de uma venda.
// POST /api/fiscal/notas
func (h *FiscalHandler) Issue(c *fiber.Ctx) error {
	var in IssueRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	if in.InvoiceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "invoice_id obrigatório"})
	}
	doc, err := h.issuer.Issue(c.Context(), in.InvoiceID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(documentResponse(doc))
}

// Resume retoma um documento com lote pendente consultando o recibo.
// POST /api/fiscal/notas/:id/retomada
func (h *FiscalHandler) Resume(c *fiber.Ctx) error {
	doc, err := h.issuer.ResumePending(c.Context(), c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(documentResponse(doc))
}

// ServiceStatus consulta a disponibilidade do ambiente de autorização.
// GET /api/fiscal/status
func (h *FiscalHandler) ServiceStatus(c *fiber.Ctx) error {
	res := h.issuer.ServiceStatus(c.Context())
	return c.JSON(ServiceStatusResponse{
		Operational: res.Success,
		StatusCode:  res.StatusCode,
		Message:     res.Message,
	})
}

// Cancel registra o evento de cancelamento de uma nota autorizada.
// POST /api/fiscal/notas/:chave/cancelamento
func (h *FiscalHandler) Cancel(c *fiber.Ctx) error {
	var in CancelRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	ev, err := h.events.Cancel(c.Context(), c.Params("chave"), in.Justificativa)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(eventResponse(ev))
}

// CorrectionLetter registra uma carta de correção eletrônica.
// POST /api/fiscal/notas/:chave/cce
func (h *FiscalHandler) CorrectionLetter(c *fiber.Ctx) error {
	var in CorrectionRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	ev, err := h.events.CorrectionLetter(c.Context(), c.Params("chave"), in.Correcao)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(eventResponse(ev))
}

// GetByID devolve o documento fiscal com seus eventos.
// GET /api/fiscal/notas/:id
func (h *FiscalHandler) GetByID(c *fiber.Ctx) error {
	doc, err := h.docs.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	if doc == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "NOT_FOUND", Message: "documento não encontrado"})
	}
	return c.JSON(documentResponse(doc))
}

// DANFE devolve o PDF do recibo.
// GET /api/fiscal/notas/:id/danfe
func (h *FiscalHandler) DANFE(c *fiber.Ctx) error {
	pdf, err := h.receipts.DANFE(c.Context(), c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	return c.Send(pdf)
}

// errorJSON traduz a taxonomia de erros do domínio para status HTTP.
func errorJSON(c *fiber.Ctx, err error) error {
	var verr *domain.ValidationError
	var cerr *domain.CertificateError
	var aerr *domain.AuthorityError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.As(err, &verr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.As(err, &cerr):
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Code: "CERTIFICATE", Message: err.Error()})
	case errors.As(err, &aerr):
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Code: "SEFAZ", Message: err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}

func documentResponse(doc *entity.FiscalDocument) DocumentResponse {
	out := DocumentResponse{
		ID:           doc.ID,
		InvoiceID:    doc.InvoiceID,
		AccessKey:    doc.AccessKey,
		Serie:        doc.Serie,
		Numero:       doc.Numero,
		Status:       doc.Status,
		StatusCode:   doc.StatusCode,
		Motivo:       doc.Motivo,
		Protocol:     doc.Protocol,
		Receipt:      doc.ReceiptNum,
		Ambiente:     doc.Ambiente,
		AuthorizedAt: doc.AuthorizedAt,
	}
	for i := range doc.Events {
		ev := doc.Events[i]
		out.Events = append(out.Events, eventResponse(&ev))
	}
	return out
}

func eventResponse(ev *entity.FiscalEvent) EventResponse {
	return EventResponse{
		ID:         ev.ID,
		TipoEvento: ev.TipoEvento,
		Sequencia:  ev.Sequencia,
		Texto:      ev.Texto,
		Status:     ev.Status,
		StatusCode: ev.StatusCode,
		Motivo:     ev.Motivo,
		Protocol:   ev.Protocol,
	}
}
