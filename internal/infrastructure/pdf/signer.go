package pdf

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mozilla.org/pkcs7"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/cert"
)

// Espaço reservado (em dígitos hex) para o CMS dentro de /Contents. 8 KiB
// comportam o SignedData com certificado e cadeia típicos de um A1.
const contentsReserve = 8192

// SignOptions parametriza a assinatura do recibo.
type SignOptions struct {
	Reason   string
	Location string
	// VisibleY é a posição Y (pontos, a partir do rodapé) do carimbo visível.
	// Zero usa o rodapé da página.
	VisibleY float64
	// Certify aplica certificação DocMDP (nenhuma alteração posterior permitida).
	Certify bool
}

// Signer aplica uma assinatura PKCS#7 destacada sobre o PDF por atualização
// incremental: os bytes originais permanecem prefixo intacto do arquivo
// assinado. Cobre os PDFs de xref clássico que o gerador deste pacote emite.
type Signer struct {
	certs *cert.Provider
	now   func() time.Time
}

// NewSigner cria o signer de PDF.
func NewSigner(p *cert.Provider) *Signer {
	return &Signer{certs: p, now: time.Now}
}

// Sign devolve o PDF com a assinatura anexada. Qualquer falha vira
// *domain.SigningError; o chamador decide se degrada para o PDF sem assinatura.
func (s *Signer) Sign(pdf []byte, opts SignOptions) ([]byte, error) {
	key, leaf, chain, err := s.certs.Load()
	if err != nil {
		return nil, &domain.SigningError{Artifact: "pdf", Err: err}
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		return nil, &domain.SigningError{Artifact: "pdf", Err: fmt.Errorf("entrada não é um PDF")}
	}

	info, err := parsePDF(pdf)
	if err != nil {
		return nil, &domain.SigningError{Artifact: "pdf", Err: err}
	}

	out, contentsStart, contentsEnd, err := buildIncrementalUpdate(pdf, info, leaf.Subject.CommonName, s.now(), opts)
	if err != nil {
		return nil, &domain.SigningError{Artifact: "pdf", Err: err}
	}

	// Digest sobre tudo menos a string /Contents (delimitadores inclusos).
	signedPortion := make([]byte, 0, len(out)-(contentsEnd-contentsStart))
	signedPortion = append(signedPortion, out[:contentsStart]...)
	signedPortion = append(signedPortion, out[contentsEnd:]...)

	der, err := buildCMS(signedPortion, key, leaf, chain)
	if err != nil {
		return nil, &domain.SigningError{Artifact: "pdf", Err: err}
	}
	if hex.EncodedLen(len(der)) > contentsReserve {
		return nil, &domain.SigningError{Artifact: "pdf", Err: fmt.Errorf("CMS de %d bytes excede a reserva de /Contents", len(der))}
	}

	// Grava o CMS em hex dentro da reserva; o excedente fica zerado.
	hexBuf := bytes.Repeat([]byte{'0'}, contentsReserve)
	hex.Encode(hexBuf, der)
	copy(out[contentsStart+1:], hexBuf)

	return out, nil
}

// buildCMS monta o SignedData destacado (adbe.pkcs7.detached) com SHA-256.
func buildCMS(data []byte, key *rsa.PrivateKey, leaf *x509.Certificate, chain []*x509.Certificate) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(data)
	if err != nil {
		return nil, fmt.Errorf("iniciar SignedData: %w", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(leaf, key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("adicionar signatário: %w", err)
	}
	for _, c := range chain {
		sd.AddCertificate(c)
	}
	sd.Detach()
	return sd.Finish()
}

// ── Estrutura mínima do PDF original ─────────────────────────────────────────

var (
	reRoot      = regexp.MustCompile(`/Root\s+(\d+)\s+0\s+R`)
	reSize      = regexp.MustCompile(`/Size\s+(\d+)`)
	rePages     = regexp.MustCompile(`/Pages\s+(\d+)\s+0\s+R`)
	reKids      = regexp.MustCompile(`/Kids\s*\[\s*(\d+)\s+0\s+R`)
	reStartXref = regexp.MustCompile(`startxref\s+(\d+)`)
	reAnnots    = regexp.MustCompile(`/Annots\s*\[`)
)

type pdfInfo struct {
	rootNum  int
	rootBody string
	pageNum  int
	pageBody string
	size     int
	prevXref int
}

func parsePDF(pdf []byte) (*pdfInfo, error) {
	sx := reStartXref.FindAllSubmatch(pdf, -1)
	if len(sx) == 0 {
		return nil, fmt.Errorf("PDF sem startxref")
	}
	prevXref, _ := strconv.Atoi(string(sx[len(sx)-1][1]))

	// Trailer clássico: a última ocorrência carrega /Root e /Size.
	tIdx := bytes.LastIndex(pdf, []byte("trailer"))
	if tIdx < 0 {
		return nil, fmt.Errorf("PDF sem trailer clássico (xref stream não suportado)")
	}
	trailer := pdf[tIdx:]

	mRoot := reRoot.FindSubmatch(trailer)
	if mRoot == nil {
		return nil, fmt.Errorf("trailer sem /Root")
	}
	rootNum, _ := strconv.Atoi(string(mRoot[1]))

	mSize := reSize.FindSubmatch(trailer)
	if mSize == nil {
		return nil, fmt.Errorf("trailer sem /Size")
	}
	size, _ := strconv.Atoi(string(mSize[1]))

	rootBody, err := objectBody(pdf, rootNum)
	if err != nil {
		return nil, err
	}

	mPages := rePages.FindStringSubmatch(rootBody)
	if mPages == nil {
		return nil, fmt.Errorf("catálogo sem /Pages")
	}
	pagesNum, _ := strconv.Atoi(mPages[1])
	pagesBody, err := objectBody(pdf, pagesNum)
	if err != nil {
		return nil, err
	}

	pageNum := pagesNum
	pageBody := pagesBody
	if mKids := reKids.FindStringSubmatch(pagesBody); mKids != nil {
		pageNum, _ = strconv.Atoi(mKids[1])
		pageBody, err = objectBody(pdf, pageNum)
		if err != nil {
			return nil, err
		}
	}

	return &pdfInfo{
		rootNum:  rootNum,
		rootBody: rootBody,
		pageNum:  pageNum,
		pageBody: pageBody,
		size:     size,
		prevXref: prevXref,
	}, nil
}

// objectBody devolve o corpo (entre "N 0 obj" e "endobj") de um objeto.
func objectBody(pdf []byte, num int) (string, error) {
	re := regexp.MustCompile(fmt.Sprintf(`(?s)[\r\n >]%d 0 obj(.*?)endobj`, num))
	m := re.FindSubmatch(pdf)
	if m == nil {
		return "", fmt.Errorf("objeto %d não encontrado", num)
	}
	return strings.TrimSpace(string(m[1])), nil
}

// ── Atualização incremental ──────────────────────────────────────────────────

// buildIncrementalUpdate anexa os objetos da assinatura e a nova tabela xref.
// Devolve o buffer completo e os limites da string /Contents (byte do '<' e o
// byte seguinte ao '>'), já com o /ByteRange corrigido.
func buildIncrementalUpdate(pdf []byte, info *pdfInfo, signerName string, now time.Time, opts SignOptions) ([]byte, int, int, error) {
	sigNum := info.size
	annotNum := info.size + 1
	apNum := info.size + 2
	fontNum := info.size + 3
	acroNum := info.size + 4
	newSize := info.size + 5

	y := opts.VisibleY
	if y <= 0 {
		y = 20
	}
	rect := fmt.Sprintf("[330 %.2f 575 %.2f]", y, y+40)

	reason := opts.Reason
	if reason == "" {
		reason = "Recibo de emissao de NF-e"
	}

	// Objeto da assinatura: ByteRange e Contents com largura fixa para o
	// patch posterior não deslocar offsets.
	var sig strings.Builder
	sig.WriteString("<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached\n")
	sig.WriteString("/ByteRange [0 0000000000 0000000000 0000000000]\n")
	sig.WriteString("/Contents <" + strings.Repeat("0", contentsReserve) + ">\n")
	sig.WriteString("/Name (" + escapePDFString(signerName) + ")\n")
	sig.WriteString("/Reason (" + escapePDFString(reason) + ")\n")
	if opts.Location != "" {
		sig.WriteString("/Location (" + escapePDFString(opts.Location) + ")\n")
	}
	sig.WriteString("/M (" + pdfDate(now) + ")\n")
	if opts.Certify {
		sig.WriteString("/Reference [<< /Type /SigRef /TransformMethod /DocMDP /TransformParams << /Type /TransformParams /P 1 /V /1.2 >> >>]\n")
	}
	sig.WriteString(">>")

	annot := fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Sig /Rect %s /V %d 0 R /T (AssinaturaRecibo) /F 132 /P %d 0 R /AP << /N %d 0 R >> >>",
		rect, sigNum, info.pageNum, apNum)

	stamp := fmt.Sprintf("BT /F1 8 Tf 4 28 Td (Assinado digitalmente por) Tj 0 -10 Td (%s) Tj 0 -10 Td (%s) Tj ET",
		escapePDFString(signerName), now.Format("02/01/2006 15:04:05"))
	ap := fmt.Sprintf("<< /Type /XObject /Subtype /Form /BBox [0 0 245 40] /Resources << /Font << /F1 %d 0 R >> >> /Length %d >>\nstream\n%s\nendstream",
		fontNum, len(stamp), stamp)

	font := "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"

	acro := fmt.Sprintf("<< /Fields [%d 0 R] /SigFlags 3 >>", annotNum)

	pageBody, err := pageWithAnnot(info.pageBody, annotNum)
	if err != nil {
		return nil, 0, 0, err
	}

	rootBody := insertBeforeDictEnd(info.rootBody, fmt.Sprintf("/AcroForm %d 0 R", acroNum))
	if opts.Certify {
		rootBody = insertBeforeDictEnd(rootBody, fmt.Sprintf("/Perms << /DocMDP %d 0 R >>", sigNum))
	}

	out := make([]byte, len(pdf), len(pdf)+contentsReserve+4096)
	copy(out, pdf)
	if out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}

	offsets := map[int]int{}
	addObj := func(num int, body string) {
		offsets[num] = len(out)
		out = append(out, []byte(fmt.Sprintf("%d 0 obj\n%s\nendobj\n", num, body))...)
	}

	sigOffsetMark := len(out)
	addObj(sigNum, sig.String())
	addObj(annotNum, annot)
	addObj(apNum, ap)
	addObj(fontNum, font)
	addObj(acroNum, acro)
	addObj(info.pageNum, pageBody)
	addObj(info.rootNum, rootBody)

	// Nova tabela xref: subseções por faixa contígua, em ordem crescente.
	xrefOffset := len(out)
	nums := make([]int, 0, len(offsets))
	for n := range offsets {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var xref strings.Builder
	xref.WriteString("xref\n")
	for i := 0; i < len(nums); {
		j := i
		for j+1 < len(nums) && nums[j+1] == nums[j]+1 {
			j++
		}
		xref.WriteString(fmt.Sprintf("%d %d\n", nums[i], j-i+1))
		for _, n := range nums[i : j+1] {
			xref.WriteString(fmt.Sprintf("%010d 00000 n \n", offsets[n]))
		}
		i = j + 1
	}

	xref.WriteString("trailer\n")
	xref.WriteString(fmt.Sprintf("<< /Size %d /Root %d 0 R /Prev %d >>\n", newSize, info.rootNum, info.prevXref))
	xref.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOffset))
	out = append(out, []byte(xref.String())...)

	// Localiza a string /Contents dentro do objeto da assinatura.
	cIdx := bytes.Index(out[sigOffsetMark:], []byte("/Contents <"))
	if cIdx < 0 {
		return nil, 0, 0, fmt.Errorf("objeto de assinatura sem /Contents")
	}
	contentsStart := sigOffsetMark + cIdx + len("/Contents ")
	contentsEnd := contentsStart + 1 + contentsReserve + 1

	// Corrige o ByteRange mantendo a largura dos placeholders.
	brIdx := bytes.Index(out[sigOffsetMark:], []byte("/ByteRange ["))
	if brIdx < 0 {
		return nil, 0, 0, fmt.Errorf("objeto de assinatura sem /ByteRange")
	}
	br := fmt.Sprintf("[0 %010d %010d %010d]", contentsStart, contentsEnd, len(out)-contentsEnd)
	copy(out[sigOffsetMark+brIdx+len("/ByteRange "):], br)

	return out, contentsStart, contentsEnd, nil
}

// pageWithAnnot acrescenta a referência do widget ao /Annots da página,
// criando o array quando não existe.
func pageWithAnnot(pageBody string, annotNum int) (string, error) {
	ref := fmt.Sprintf("%d 0 R", annotNum)
	if loc := reAnnots.FindStringIndex(pageBody); loc != nil {
		end := strings.Index(pageBody[loc[1]:], "]")
		if end < 0 {
			return "", fmt.Errorf("array /Annots sem fechamento")
		}
		at := loc[1] + end
		return pageBody[:at] + " " + ref + pageBody[at:], nil
	}
	return insertBeforeDictEnd(pageBody, "/Annots ["+ref+"]"), nil
}

// insertBeforeDictEnd injeta uma entrada antes do ">>" final de um dicionário.
func insertBeforeDictEnd(dict, entry string) string {
	idx := strings.LastIndex(dict, ">>")
	if idx < 0 {
		return dict + " " + entry
	}
	return dict[:idx] + entry + " " + dict[idx:]
}

func escapePDFString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}

// pdfDate formata no padrão de data do PDF: D:AAAAMMDDHHmmSS±HH'mm'.
func pdfDate(t time.Time) string {
	base := t.Format("20060102150405")
	_, off := t.Zone()
	sign := "+"
	if off < 0 {
		sign = "-"
		off = -off
	}
	return fmt.Sprintf("D:%s%s%02d'%02d'", base, sign, off/3600, (off%3600)/60)
}
