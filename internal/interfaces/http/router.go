package http

import (
	"github.com/gofiber/fiber/v2"
)

// RouterDeps dependências do router.
type RouterDeps struct {
	Issuer   IssueService
	Events   EventService
	Receipts ReceiptService
	Docs     DocumentReader
}

// Router registra as rotas da API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	fiscal := api.Group("/fiscal")
	handler := NewFiscalHandler(deps.Issuer, deps.Events, deps.Receipts, deps.Docs)

	fiscal.Get("/status", handler.ServiceStatus)

	notas := fiscal.Group("/notas")
	notas.Post("/", handler.Issue)
	notas.Get("/:id", handler.GetByID)
	notas.Get("/:id/danfe", handler.DANFE)
	notas.Post("/:id/retomada", handler.Resume)
	notas.Post("/:chave/cancelamento", handler.Cancel)
	notas.Post("/:chave/cce", handler.CorrectionLetter)
}
