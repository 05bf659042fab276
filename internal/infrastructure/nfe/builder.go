package nfe

import (
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain"
	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	domnfe "github.com/cleiltonsr/prograos-fiscal/internal/domain/nfe"
	"github.com/cleiltonsr/prograos-fiscal/pkg/br"
	"github.com/cleiltonsr/prograos-fiscal/pkg/logger"
)

// Builder monta o XML da NF-e 4.00 a partir de uma venda com pesagem. O número
// já chega reservado; aqui só se monta documento e chave.
type Builder struct {
	log *logger.Logger
}

// NewBuilder cria o builder.
func NewBuilder(log *logger.Logger) *Builder {
	return &Builder{log: log}
}

// Build monta o documento completo (sem assinatura) e devolve o XML e a chave
// de acesso. Com o mesmo BuildInput (incluindo CodigoNum e Emissao fixos) a
// saída é byte a byte idêntica.
func (b *Builder) Build(in BuildInput) (xmlOut string, accessKey string, err error) {
	if in.Invoice == nil || in.Emitter == nil {
		return "", "", &domain.ValidationError{Field: "input", Cause: "venda e emitente são obrigatórios"}
	}
	if in.Invoice.Weighing == nil {
		return "", "", &domain.ValidationError{Field: "weighing", Cause: "venda sem pesagem vinculada"}
	}
	profile := in.TaxProfile
	if profile == nil {
		return "", "", &domain.ValidationError{Field: "tax_profile", Cause: "nenhum perfil tributário disponível (nem o default MILHO)"}
	}

	emissao := in.Emissao
	if emissao.IsZero() {
		emissao = in.Invoice.IssueDate
	}
	cNF := in.CodigoNum
	if cNF == "" {
		cNF, err = domnfe.RandomCode()
		if err != nil {
			return "", "", err
		}
	}

	cnpj := br.PadCNPJ(in.Emitter.CNPJ)
	accessKey, err = domnfe.AccessKey(domnfe.KeyParams{
		UF:          in.Emitter.CodigoUF,
		CNPJ:        cnpj,
		Serie:       in.Emitter.SerieNFe,
		Numero:      in.Numero,
		TipoEmissao: "1",
		CodigoNum:   cNF,
		Emissao:     emissao,
	})
	if err != nil {
		return "", "", err
	}
	cDV := accessKey[43:]

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("NFe")
	root.CreateAttr("xmlns", NsNFe)

	infNFe := root.CreateElement("infNFe")
	infNFe.CreateAttr("Id", "NFe"+accessKey)
	infNFe.CreateAttr("versao", VersaoNFe)

	b.buildIde(infNFe, in, emissao, cNF, cDV)
	b.buildEmit(infNFe, in.Emitter)
	b.buildDest(infNFe, in)
	if err := b.buildDet(infNFe, in, profile); err != nil {
		return "", "", err
	}
	b.buildTotal(infNFe, in.Invoice.TotalAmount)
	infNFe.CreateElement("transp").CreateElement("modFrete").SetText("9")
	b.buildInfAdic(infNFe, in.Invoice.Weighing)

	out, err := doc.WriteToString()
	if err != nil {
		return "", "", fmt.Errorf("nfe: serializar XML: %w", err)
	}
	return out, accessKey, nil
}

// buildIde escreve a seção de identificação na ordem exigida pelo schema.
func (b *Builder) buildIde(parent *etree.Element, in BuildInput, emissao time.Time, cNF, cDV string) {
	dhEmi := emissao.Format("2006-01-02T15:04:05-07:00")

	ide := parent.CreateElement("ide")
	addText(ide, "cUF", in.Emitter.CodigoUF)
	addText(ide, "cNF", cNF)
	addText(ide, "natOp", NatOpVenda)
	addText(ide, "mod", domnfe.ModeloNFe)
	addText(ide, "serie", fmt.Sprintf("%d", in.Emitter.SerieNFe))
	addText(ide, "nNF", fmt.Sprintf("%d", in.Numero))
	addText(ide, "dhEmi", dhEmi)
	addText(ide, "dhSaiEnt", dhEmi)
	addText(ide, "tpNF", "1") // saída
	addText(ide, "idDest", "1")
	addText(ide, "cMunFG", in.Emitter.CodigoMunicipio)
	addText(ide, "tpImp", "1") // DANFE retrato
	addText(ide, "tpEmis", "1")
	addText(ide, "cDV", cDV)
	addText(ide, "tpAmb", in.Emitter.Ambiente)
	addText(ide, "finNFe", "1")
	addText(ide, "indFinal", "1")
	addText(ide, "indPres", "1") // operação presencial
	addText(ide, "procEmi", "0")
	addText(ide, "verProc", VersaoApp)
}

func (b *Builder) buildEmit(parent *etree.Element, em *entity.EmitterConfig) {
	emit := parent.CreateElement("emit")
	addText(emit, "CNPJ", br.PadCNPJ(em.CNPJ))
	addText(emit, "xNome", br.TruncateText(br.NormalizeText(em.RazaoSocial), 60))
	if em.NomeFantasia != "" {
		addText(emit, "xFant", br.TruncateText(br.NormalizeText(em.NomeFantasia), 60))
	}

	ender := emit.CreateElement("enderEmit")
	addText(ender, "xLgr", br.NormalizeText(em.Logradouro))
	addText(ender, "nro", em.Numero)
	if em.Complemento != "" {
		addText(ender, "xCpl", br.NormalizeText(em.Complemento))
	}
	addText(ender, "xBairro", br.NormalizeText(em.Bairro))
	addText(ender, "cMun", em.CodigoMunicipio)
	addText(ender, "xMun", br.NormalizeText(em.Municipio))
	addText(ender, "UF", em.UF)
	addText(ender, "CEP", br.OnlyDigits(em.CEP))
	addText(ender, "cPais", "1058")
	addText(ender, "xPais", "BRASIL")

	addText(emit, "IE", br.OnlyDigits(em.IE))
	addText(emit, "CRT", em.RegimeTributario)
}

// buildDest distingue pessoa jurídica de física pelo comprimento do documento.
// Endereço mínimo: o comprador retira o grão no local (indPres 1).
func (b *Builder) buildDest(parent *etree.Element, in BuildInput) {
	dest := parent.CreateElement("dest")
	docNum := br.OnlyDigits(in.Invoice.CustomerDocument)
	if br.IsCNPJ(docNum) {
		addText(dest, "CNPJ", docNum)
	} else {
		addText(dest, "CPF", docNum)
	}
	addText(dest, "xNome", br.TruncateText(br.NormalizeText(in.Invoice.CustomerName), 60))

	ender := dest.CreateElement("enderDest")
	addText(ender, "xLgr", "Endereco nao informado")
	addText(ender, "nro", "S/N")
	addText(ender, "xBairro", "Centro")
	addText(ender, "cMun", in.Emitter.CodigoMunicipio)
	addText(ender, "xMun", br.NormalizeText(in.Emitter.Municipio))
	addText(ender, "UF", in.Emitter.UF)
	addText(ender, "CEP", br.OnlyDigits(in.Emitter.CEP))
	addText(ender, "cPais", "1058")
	addText(ender, "xPais", "BRASIL")

	addText(dest, "indIEDest", "9") // não contribuinte
}

// buildDet escreve o item único da nota: o grão pesado. Quantidade e preço
// unitário com 4 casas, valores monetários com 2 (exigência do schema).
func (b *Builder) buildDet(parent *etree.Element, in BuildInput, profile *entity.TaxProfile) error {
	w := in.Invoice.Weighing
	qty := w.PesoLiquido
	if !qty.IsPositive() {
		return &domain.ValidationError{Field: "peso_liquido", Cause: "peso líquido deve ser positivo"}
	}
	unitPrice := in.Invoice.TotalAmount.Div(qty)

	det := parent.CreateElement("det")
	det.CreateAttr("nItem", "1")

	prod := det.CreateElement("prod")
	addText(prod, "cProd", "001")
	addText(prod, "cEAN", "SEM GTIN")
	addText(prod, "xProd", br.TruncateText(br.NormalizeText(profile.Description), 120))
	addText(prod, "NCM", profile.NCM)
	addText(prod, "CFOP", profile.CFOPInsideState)
	addText(prod, "uCom", profile.UnitCom)
	addText(prod, "qCom", qty.StringFixed(4))
	addText(prod, "vUnCom", unitPrice.StringFixed(4))
	addText(prod, "vProd", in.Invoice.TotalAmount.StringFixed(2))
	addText(prod, "cEANTrib", "SEM GTIN")
	addText(prod, "uTrib", profile.UnitCom)
	addText(prod, "qTrib", qty.StringFixed(4))
	addText(prod, "vUnTrib", unitPrice.StringFixed(4))

	imposto := det.CreateElement("imposto")
	icmssn := imposto.CreateElement("ICMS").CreateElement("ICMSSN101")
	addText(icmssn, "orig", "0")
	addText(icmssn, "CSOSN", profile.CSOSN)
	addText(icmssn, "pCredSN", "0.00")
	addText(icmssn, "vCredICMSSN", "0.00")

	addText(imposto.CreateElement("PIS").CreateElement("PISNT"), "CST", "99")
	addText(imposto.CreateElement("COFINS").CreateElement("COFINSNT"), "CST", "99")
	return nil
}

// buildTotal zera todos os tributos (Simples Nacional, ICMSSN101) e espelha o
// valor da venda em vProd e vNF.
func (b *Builder) buildTotal(parent *etree.Element, amount decimal.Decimal) {
	tot := parent.CreateElement("total").CreateElement("ICMSTot")
	v := amount.StringFixed(2)
	for _, tag := range []string{"vBC", "vICMS", "vICMSDeson", "vFCP", "vBCST", "vST", "vFCPST", "vFCPSTRet"} {
		addText(tot, tag, "0.00")
	}
	addText(tot, "vProd", v)
	for _, tag := range []string{"vFrete", "vSeg", "vDesc", "vII", "vIPI", "vIPIDevol", "vPIS", "vCOFINS", "vOutro"} {
		addText(tot, tag, "0.00")
	}
	addText(tot, "vNF", v)
}

func (b *Builder) buildInfAdic(parent *etree.Element, w *entity.Weighing) {
	info := "Documento emitido por ME/EPP optante pelo Simples Nacional. " +
		"Nao gera direito a credito fiscal de IPI. " +
		fmt.Sprintf("Peso liquido: %s kg.", w.PesoLiquido.StringFixed(2))
	addText(parent.CreateElement("infAdic"), "infCpl", br.NormalizeText(info))
}

func addText(parent *etree.Element, tag, text string) {
	parent.CreateElement(tag).SetText(text)
}

// ResolveTaxProfile escolhe o perfil do tipo de grão pesado, caindo para o
// default (MILHO) quando o tipo não tem cadastro. O fallback nunca aborta a
// emissão, só gera WARN.
func (b *Builder) ResolveTaxProfile(grainType string, byType, fallback *entity.TaxProfile) *entity.TaxProfile {
	if byType != nil {
		return byType
	}
	if fallback != nil {
		b.log.Warn().
			Str("tipo_grao", grainType).
			Str("fallback", fallback.GrainType).
			Msg("tipo de grão sem perfil tributário; usando default")
		return fallback
	}
	return nil
}
