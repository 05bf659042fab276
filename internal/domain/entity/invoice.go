package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status do ciclo de vida comercial da venda.
const (
	InvoiceStatusDraft     = "DRAFT"
	InvoiceStatusReady     = "READY"
	InvoiceStatusIssued    = "ISSUED"
	InvoiceStatusCancelled = "CANCELLED"
)

// Weighing é o registro de pesagem vinculado à venda (tara e peso carregado
// vêm da balança; o peso líquido é a quantidade faturada).
type Weighing struct {
	ID            string
	Placa         string
	Motorista     string
	TipoGrao      string          // GraoMilho, GraoSoja, ...
	Tara          decimal.Decimal // kg
	PesoCarregado decimal.Decimal // kg
	PesoLiquido   decimal.Decimal // kg; quantidade do item da NF-e
	DataFinal     time.Time
}

// Invoice é o fato comercial a fiscalizar: identidade do comprador, pesagem
// vinculada, valor total e timestamp de emissão.
type Invoice struct {
	ID               string
	CustomerName     string
	CustomerDocument string // CNPJ ou CPF (pontuação tolerada)
	Weighing         *Weighing
	TotalAmount      decimal.Decimal
	IssueDate        time.Time
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
