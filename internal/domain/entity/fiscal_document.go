package entity

import "time"

// Status da nota fiscal perante a SEFAZ.
const (
	NFeStatusPendente   = "PENDENTE"
	NFeStatusAutorizada = "AUTORIZADA"
	NFeStatusDenegada   = "DENEGADA"
	NFeStatusCancelada  = "CANCELADA"
)

// Tipos de evento fiscal (tpEvento SEFAZ).
const (
	EventoCancelamento  = "110111"
	EventoCartaCorrecao = "110110"
)

// Status de um evento fiscal.
const (
	EventoStatusPendente  = "PENDENTE"
	EventoStatusVinculado = "VINCULADO"
	EventoStatusRejeitado = "REJEITADO"
)

// FiscalDocument é a NF-e emitida, um-para-um com a Invoice. Criada apenas após
// uma submissão (bem-sucedida ou tentada); imutável depois de autorizada,
// exceto pelos eventos de ciclo de vida anexados.
type FiscalDocument struct {
	ID          string
	InvoiceID   string
	AccessKey   string // chave de acesso, 44 dígitos
	Serie       int
	Numero      int64
	XMLSigned   string // corpo XML assinado
	Protocol    string // nProt da autorização; vazio em recusa
	Status      string // NFeStatusPendente | Autorizada | Denegada | Cancelada
	StatusCode  string // cStat devolvido pela SEFAZ
	Motivo      string // xMotivo verbatim (legalmente significativo em recusa)
	Ambiente    string // AmbienteProducao | AmbienteHomologacao
	ReceiptNum  string // nRec quando o lote ficou em fila (cStat 103)
	AuthorizedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Events []FiscalEvent // append-only; pertence exclusivamente ao documento
}

// FiscalEvent é um evento de ciclo de vida (cancelamento, carta de correção)
// anexado a um documento já emitido. Registro filho append-only com status e
// protocolo próprios.
type FiscalEvent struct {
	ID         string
	DocumentID string
	TipoEvento string // EventoCancelamento | EventoCartaCorrecao
	Sequencia  int
	Texto      string // justificativa ou texto de correção
	Protocol   string
	Status     string
	StatusCode string
	Motivo     string
	CreatedAt  time.Time
}
