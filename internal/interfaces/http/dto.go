package http

import "time"

// ErrorResponse corpo de erro HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IssueRequest pedido de emissão de NF-e para uma venda.
type IssueRequest struct {
	InvoiceID string `json:"invoice_id"`
}

// CancelRequest pedido de cancelamento de uma nota autorizada.
type CancelRequest struct {
	Justificativa string `json:"justificativa"`
}

// CorrectionRequest pedido de carta de correção eletrônica.
type CorrectionRequest struct {
	Correcao string `json:"correcao"`
}

// DocumentResponse visão externa do documento fiscal.
type DocumentResponse struct {
	ID           string          `json:"id"`
	InvoiceID    string          `json:"invoice_id"`
	AccessKey    string          `json:"chave_acesso"`
	Serie        int             `json:"serie"`
	Numero       int64           `json:"numero"`
	Status       string          `json:"status"`
	StatusCode   string          `json:"cstat,omitempty"`
	Motivo       string          `json:"motivo,omitempty"`
	Protocol     string          `json:"protocolo,omitempty"`
	Receipt      string          `json:"recibo,omitempty"`
	Ambiente     string          `json:"ambiente"`
	AuthorizedAt *time.Time      `json:"autorizada_em,omitempty"`
	Events       []EventResponse `json:"eventos,omitempty"`
}

// EventResponse visão externa de um evento fiscal.
type EventResponse struct {
	ID         string `json:"id"`
	TipoEvento string `json:"tipo_evento"`
	Sequencia  int    `json:"sequencia"`
	Texto      string `json:"texto"`
	Status     string `json:"status"`
	StatusCode string `json:"cstat,omitempty"`
	Motivo     string `json:"motivo,omitempty"`
	Protocol   string `json:"protocolo,omitempty"`
}

// ServiceStatusResponse disponibilidade do ambiente de autorização.
type ServiceStatusResponse struct {
	Operational bool   `json:"operational"`
	StatusCode  string `json:"cstat,omitempty"`
	Message     string `json:"message"`
}
