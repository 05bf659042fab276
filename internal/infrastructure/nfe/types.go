// Package nfe (infraestrutura) monta, assina e transmite o XML da NF-e 4.00.
// As regras puras (chave, DV, validações) ficam em internal/domain/nfe.
package nfe

import (
	"time"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
)

// Namespace oficial do portal fiscal.
const (
	NsNFe      = "http://www.portalfiscal.inf.br/nfe"
	VersaoNFe  = "4.00"
	VersaoApp  = "ProGraos_1.0"
	NatOpVenda = "Venda de Mercadoria"
)

// BuildInput é tudo que o builder precisa para montar o documento. O número já
// vem reservado pela autoridade de sequência; CodigoNum fixa o cNF quando
// informado (remontagem idempotente), senão o builder sorteia um.
type BuildInput struct {
	Invoice    *entity.Invoice
	Emitter    *entity.EmitterConfig
	TaxProfile *entity.TaxProfile
	Numero     int64
	CodigoNum  string    // cNF com 8 dígitos; vazio = aleatório
	Emissao    time.Time // dhEmi; zero = Invoice.IssueDate
}
