package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/nfe"
	apphttp "github.com/cleiltonsr/prograos-fiscal/internal/interfaces/http"
)

type stubIssuer struct {
	doc    *entity.FiscalDocument
	err    error
	status nfe.Result
}

func (s stubIssuer) Issue(context.Context, string) (*entity.FiscalDocument, error) {
	return s.doc, s.err
}

func (s stubIssuer) ResumePending(context.Context, string) (*entity.FiscalDocument, error) {
	return s.doc, s.err
}

func (s stubIssuer) ServiceStatus(context.Context) nfe.Result { return s.status }

type stubEvents struct {
	ev  *entity.FiscalEvent
	err error
}

func (s stubEvents) Cancel(context.Context, string, string) (*entity.FiscalEvent, error) {
	return s.ev, s.err
}

func (s stubEvents) CorrectionLetter(context.Context, string, string) (*entity.FiscalEvent, error) {
	return s.ev, s.err
}

type stubReceipts struct {
	pdf []byte
	err error
}

func (s stubReceipts) DANFE(context.Context, string) ([]byte, error) { return s.pdf, s.err }

type stubDocs struct {
	doc *entity.FiscalDocument
}

func (s stubDocs) GetByID(context.Context, string) (*entity.FiscalDocument, error) {
	return s.doc, nil
}

func newApp(deps apphttp.RouterDeps) *fiber.App {
	app := fiber.New()
	apphttp.Router(app, deps)
	return app
}

func TestIssueRoute_Criada(t *testing.T) {
	doc := &entity.FiscalDocument{
		ID:        "doc-1",
		InvoiceID: "inv-1",
		AccessKey: "21240304951010000163550010000000421123456788",
		Serie:     1,
		Numero:    42,
		Status:    entity.NFeStatusAutorizada,
		Protocol:  "321260000012345",
		Ambiente:  entity.AmbienteHomologacao,
	}
	app := newApp(apphttp.RouterDeps{Issuer: stubIssuer{doc: doc}})

	body := bytes.NewBufferString(`{"invoice_id":"inv-1"}`)
	req := httptest.NewRequest("POST", "/api/fiscal/notas/", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out apphttp.DocumentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, doc.AccessKey, out.AccessKey)
	assert.Equal(t, entity.NFeStatusAutorizada, out.Status)
}

func TestIssueRoute_SemInvoiceID(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Issuer: stubIssuer{}})

	req := httptest.NewRequest("POST", "/api/fiscal/notas/", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestIssueRoute_VendaInexistente(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Issuer: stubIssuer{err: domain.ErrNotFound}})

	req := httptest.NewRequest("POST", "/api/fiscal/notas/", bytes.NewBufferString(`{"invoice_id":"inv-x"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestStatusRoute(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Issuer: stubIssuer{
		status: nfe.Result{Success: true, StatusCode: "107", Message: "Servico em Operacao"},
	}})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/fiscal/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out apphttp.ServiceStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Operational)
	assert.Equal(t, "107", out.StatusCode)
}

func TestCancelRoute_JustificativaCurta(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Events: stubEvents{
		err: &domain.ValidationError{Field: "justificativa", Cause: "mínimo 15 caracteres"},
	}})

	req := httptest.NewRequest("POST",
		"/api/fiscal/notas/21240304951010000163550010000000421123456788/cancelamento",
		bytes.NewBufferString(`{"justificativa":"curta"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCancelRoute_Vinculado(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Events: stubEvents{ev: &entity.FiscalEvent{
		ID:         "ev-1",
		TipoEvento: entity.EventoCancelamento,
		Sequencia:  1,
		Status:     entity.EventoStatusVinculado,
		Protocol:   "321260000054321",
	}}})

	req := httptest.NewRequest("POST",
		"/api/fiscal/notas/21240304951010000163550010000000421123456788/cancelamento",
		bytes.NewBufferString(`{"justificativa":"Erro na identificacao do destinatario"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out apphttp.EventResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, entity.EventoStatusVinculado, out.Status)
}

func TestGetRoute_NaoEncontrado(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Docs: stubDocs{}})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/fiscal/notas/doc-x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestDANFERoute(t *testing.T) {
	app := newApp(apphttp.RouterDeps{Receipts: stubReceipts{pdf: []byte("%PDF-1.7 conteudo")}})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/fiscal/notas/doc-1/danfe", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF-")))
}
