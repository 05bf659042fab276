// Package pdf gera o DANFE simplificado da venda de grãos e aplica a
// assinatura digital de recibo sobre o arquivo gerado.
//
// Layout da página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razão Social + CNPJ  │  DANFE + nº/série + data    │
//	│  ───────────────────────────────────────────────────────── │
//	│  DESTINATÁRIO: Nome + CPF/CNPJ                              │
//	│  PESAGEM: Placa | Motorista | Tara | Carregado | Líquido    │
//	│  ───────────────────────────────────────────────────────── │
//	│  TOTAL DA NOTA                                              │
//	│  CHAVE DE ACESSO + QR + protocolo de autorização            │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
)

var (
	colorPrimary = &props.Color{Red: 27, Green: 94, Blue: 32}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// DANFEInput reúne os dados do recibo: venda, documento fiscal e emitente.
type DANFEInput struct {
	Invoice  *entity.Invoice
	Document *entity.FiscalDocument
	Emitter  *entity.EmitterConfig
}

// DANFEGenerator gera o DANFE simplificado com Maroto v2.
type DANFEGenerator struct{}

// NewDANFEGenerator constrói o gerador.
func NewDANFEGenerator() *DANFEGenerator { return &DANFEGenerator{} }

// Generate produz os bytes do PDF.
func (g *DANFEGenerator) Generate(in DANFEInput) ([]byte, error) {
	if in.Invoice == nil || in.Document == nil || in.Emitter == nil {
		return nil, fmt.Errorf("pdf: venda, documento e emitente são obrigatórios")
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("DANFE Simplificado", true).
		WithAuthor(in.Emitter.RazaoSocial, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(in))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(destinatarioRow(in.Invoice))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	if in.Invoice.Weighing != nil {
		m.AddRows(pesagemHeaderRow())
		m.AddRows(pesagemRow(in.Invoice.Weighing))
		m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	}

	m.AddRows(totalRow(in.Invoice))
	m.AddRows(line.NewRow(3))
	for _, r := range fiscalFooterRows(in.Document) {
		m.AddRows(r)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: gerar DANFE: %w", err)
	}
	return doc.GetBytes(), nil
}

// headerRow: emitente à esquerda, identificação da nota à direita.
func headerRow(in DANFEInput) core.Row {
	return row.New(18).Add(
		col.New(7).Add(
			text.New(in.Emitter.RazaoSocial, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("CNPJ: "+in.Emitter.CNPJ+"   IE: "+in.Emitter.IE, props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("DANFE SIMPLIFICADO - NF-e", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("Nº %d  Série %d", in.Document.Numero, in.Document.Serie), props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Emissão: "+in.Invoice.IssueDate.Format("02/01/2006 15:04"), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

func destinatarioRow(inv *entity.Invoice) core.Row {
	return row.New(14).Add(
		col.New(12).Add(
			text.New("DESTINATÁRIO", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(inv.CustomerName, props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New("CPF/CNPJ: "+inv.CustomerDocument, props.Text{
				Size: 8, Top: 12, Color: colorGray,
			}),
		),
	)
}

func pesagemHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a, Color: colorPrimary, Top: 2,
		}))
	}
	return row.New(8).Add(
		h("Grão", 2, align.Left),
		h("Placa", 2, align.Center),
		h("Motorista", 3, align.Left),
		h("Tara (kg)", 1, align.Right),
		h("Carregado (kg)", 2, align.Right),
		h("Líquido (kg)", 2, align.Right),
	)
}

func pesagemRow(w *entity.Weighing) core.Row {
	c := func(value string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(value, props.Text{Size: 8, Align: a, Top: 1}))
	}
	return row.New(7).Add(
		c(w.TipoGrao, 2, align.Left),
		c(w.Placa, 2, align.Center),
		c(w.Motorista, 3, align.Left),
		c(w.Tara.StringFixed(0), 1, align.Right),
		c(w.PesoCarregado.StringFixed(0), 2, align.Right),
		c(w.PesoLiquido.StringFixed(0), 2, align.Right),
	)
}

func totalRow(inv *entity.Invoice) core.Row {
	return row.New(12).Add(
		col.New(6),
		col.New(3).Add(text.New("VALOR TOTAL DA NOTA:", props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Top: 2, Right: 2,
		})),
		col.New(3).Add(text.New("R$ "+inv.TotalAmount.StringFixed(2), props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Top: 2, Right: 1,
		})),
	)
}

// fiscalFooterRows: chave de acesso partida + QR + protocolo e avisos.
func fiscalFooterRows(doc *entity.FiscalDocument) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("INFORMAÇÕES FISCAIS", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
		row.New(5).Add(col.New(12).Add(
			text.New("Chave de Acesso:", props.Text{Style: fontstyle.Bold, Size: 7, Top: 1}),
		)),
		row.New(4).Add(col.New(12).Add(
			text.New(formatAccessKey(doc.AccessKey), props.Text{
				Size: 8, Color: colorGray, Top: 0.5, Left: 2,
			}),
		)),
	}

	if doc.AccessKey != "" {
		rows = append(rows, row.New(40).Add(
			col.New(4).Add(code.NewQr(doc.AccessKey, props.Rect{Percent: 95, Center: true})),
			col.New(8).Add(
				text.New("Consulte pela chave de acesso em\nwww.nfe.fazenda.gov.br/portal", props.Text{
					Size: 8, Top: 4, Left: 3, Color: colorGray,
				}),
				text.New(protocolLine(doc), props.Text{
					Style: fontstyle.Bold, Size: 9, Top: 20, Left: 3, Color: colorPrimary,
				}),
			),
		))
	}

	if doc.Ambiente == entity.AmbienteHomologacao {
		rows = append(rows, row.New(8).Add(col.New(12).Add(
			text.New("EMITIDO EM AMBIENTE DE HOMOLOGAÇÃO - SEM VALOR FISCAL", props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Center, Color: colorGray, Top: 2,
			}),
		)))
	}
	return rows
}

func protocolLine(doc *entity.FiscalDocument) string {
	if doc.Protocol == "" {
		return "Aguardando autorização da SEFAZ"
	}
	line := "Protocolo de autorização: " + doc.Protocol
	if doc.AuthorizedAt != nil {
		line += "\n" + doc.AuthorizedAt.Format("02/01/2006 15:04:05")
	}
	return line
}

// formatAccessKey agrupa a chave em blocos de 4 dígitos, como no DANFE oficial.
func formatAccessKey(chave string) string {
	var parts []string
	for len(chave) > 4 {
		parts = append(parts, chave[:4])
		chave = chave[4:]
	}
	if chave != "" {
		parts = append(parts, chave)
	}
	return strings.Join(parts, " ")
}
