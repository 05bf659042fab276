package nfe

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/cert"
)

// URIs dos algoritmos XML-DSig.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"

	algRSASHA1   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	algSHA1      = "http://www.w3.org/2000/09/xmldsig#sha1"
	algRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	algSHA256    = "http://www.w3.org/2001/04/xmlenc#sha256"
)

// AlgorithmSet parametriza digest e assinatura. O parque atual da SEFAZ ainda
// valida RSA-SHA1/SHA-1; o par SHA-256 fica a uma troca de configuração.
type AlgorithmSet struct {
	Digest    string // "sha1" | "sha256"
	Signature string // "rsa-sha1" | "rsa-sha256"
}

// DefaultAlgorithms devolve o conjunto aceito pela SEFAZ hoje.
func DefaultAlgorithms() AlgorithmSet {
	return AlgorithmSet{Digest: "sha1", Signature: "rsa-sha1"}
}

func (a AlgorithmSet) digestURI() (string, error) {
	switch a.Digest {
	case "", "sha1":
		return algSHA1, nil
	case "sha256":
		return algSHA256, nil
	}
	return "", fmt.Errorf("nfe: algoritmo de digest desconhecido %q", a.Digest)
}

func (a AlgorithmSet) signatureURI() (string, error) {
	switch a.Signature {
	case "", "rsa-sha1":
		return algRSASHA1, nil
	case "rsa-sha256":
		return algRSASHA256, nil
	}
	return "", fmt.Errorf("nfe: algoritmo de assinatura desconhecido %q", a.Signature)
}

// Signer aplica a assinatura digital envelopada sobre o elemento identificado
// (infNFe ou infEvento) usando o certificado A1 do emitente.
type Signer struct {
	certs *cert.Provider
	alg   AlgorithmSet
}

// NewSigner cria o signer. Um AlgorithmSet zero usa os defaults.
func NewSigner(p *cert.Provider, alg AlgorithmSet) *Signer {
	return &Signer{certs: p, alg: alg}
}

// Sign localiza o primeiro elemento com atributo Id, calcula o digest C14N do
// seu subárvore e anexa ds:Signature como irmão seguinte (filho do mesmo pai,
// como o schema da NF-e exige). Devolve o XML assinado.
func (s *Signer) Sign(xmlStr string) (string, error) {
	key, leaf, _, err := s.certs.Load()
	if err != nil {
		return "", &domain.SigningError{Artifact: "xml", Err: err}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlStr); err != nil {
		return "", &domain.SigningError{Artifact: "xml", Err: fmt.Errorf("parsear XML: %w", err)}
	}
	target := findElementWithID(doc.Root())
	if target == nil {
		return "", &domain.SigningError{Artifact: "xml", Err: fmt.Errorf("nenhum elemento com atributo Id para referenciar")}
	}
	refID := target.SelectAttrValue("Id", "")

	digestB64, err := digestElement(target, s.alg)
	if err != nil {
		return "", &domain.SigningError{Artifact: "xml", Err: err}
	}

	signedInfo, err := buildSignedInfo(refID, digestB64, s.alg)
	if err != nil {
		return "", &domain.SigningError{Artifact: "xml", Err: err}
	}
	canonicalSignedInfo, err := canonicalize([]byte(signedInfo))
	if err != nil {
		return "", &domain.SigningError{Artifact: "xml", Err: fmt.Errorf("canonicalizar SignedInfo: %w", err)}
	}

	sigValue, err := signBytes(canonicalSignedInfo, key, s.alg)
	if err != nil {
		return "", &domain.SigningError{Artifact: "xml", Err: err}
	}

	sigXML := buildSignatureXML(signedInfo, sigValue, base64.StdEncoding.EncodeToString(leaf.Raw))
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(sigXML); err != nil {
		return "", &domain.SigningError{Artifact: "xml", Err: fmt.Errorf("parsear nó Signature: %w", err)}
	}
	target.Parent().AddChild(sigDoc.Root())

	out, err := doc.WriteToString()
	if err != nil {
		return "", &domain.SigningError{Artifact: "xml", Err: err}
	}
	return out, nil
}

// Verify refaz as duas contas da assinatura embutida: o digest do elemento
// referenciado e a assinatura RSA sobre o SignedInfo canônico, usando o
// certificado carregado no próprio KeyInfo. Qualquer byte alterado falha.
func Verify(signedXML string) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(signedXML); err != nil {
		return fmt.Errorf("nfe: parsear XML assinado: %w", err)
	}
	sig := findByLocalName(doc.Root(), "Signature")
	if sig == nil {
		return fmt.Errorf("nfe: documento sem ds:Signature")
	}

	certText := textOfDescendant(sig, "X509Certificate")
	if certText == "" {
		return fmt.Errorf("nfe: Signature sem X509Certificate")
	}
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certText))
	if err != nil {
		return fmt.Errorf("nfe: decodificar certificado: %w", err)
	}
	crt, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("nfe: parsear certificado: %w", err)
	}
	pub, ok := crt.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("nfe: chave pública %T não é RSA", crt.PublicKey)
	}

	signedInfo := findByLocalName(sig, "SignedInfo")
	if signedInfo == nil {
		return fmt.Errorf("nfe: Signature sem SignedInfo")
	}
	alg, err := algorithmsFromSignedInfo(signedInfo)
	if err != nil {
		return err
	}

	// Digest do elemento referenciado, com a Signature removida (transformada
	// envelopada).
	refURI := ""
	if ref := findByLocalName(signedInfo, "Reference"); ref != nil {
		refURI = ref.SelectAttrValue("URI", "")
	}
	id := strings.TrimPrefix(refURI, "#")
	sig.Parent().RemoveChild(sig)
	target := findElementByID(doc.Root(), id)
	if target == nil {
		return fmt.Errorf("nfe: elemento referenciado %q não encontrado", refURI)
	}
	gotDigest, err := digestElement(target, alg)
	if err != nil {
		return err
	}
	wantDigest := strings.TrimSpace(textOfDescendant(signedInfo, "DigestValue"))
	if gotDigest != wantDigest {
		return fmt.Errorf("nfe: digest não confere: conteúdo alterado após a assinatura")
	}

	// Assinatura RSA sobre o SignedInfo canônico.
	canonicalSignedInfo, err := canonicalizeElement(signedInfo, "xmlns:ds", NamespaceDS)
	if err != nil {
		return fmt.Errorf("nfe: canonicalizar SignedInfo: %w", err)
	}
	sigValue, err := base64.StdEncoding.DecodeString(strings.TrimSpace(textOfDescendant(sig, "SignatureValue")))
	if err != nil {
		return fmt.Errorf("nfe: decodificar SignatureValue: %w", err)
	}
	hash, digest := hashForSignature(canonicalSignedInfo, alg)
	if err := rsa.VerifyPKCS1v15(pub, hash, digest, sigValue); err != nil {
		return fmt.Errorf("nfe: assinatura inválida: %w", err)
	}
	return nil
}

// digestElement serializa a subárvore do elemento (com o namespace padrão da
// NF-e declarado), canonicaliza e devolve o digest em base64.
func digestElement(el *etree.Element, alg AlgorithmSet) (string, error) {
	canonical, err := canonicalizeElement(el, "xmlns", NsNFe)
	if err != nil {
		return "", fmt.Errorf("canonicalizar %s: %w", el.Tag, err)
	}
	switch alg.Digest {
	case "", "sha1":
		sum := sha1.Sum(canonical)
		return base64.StdEncoding.EncodeToString(sum[:]), nil
	case "sha256":
		sum := sha256.Sum256(canonical)
		return base64.StdEncoding.EncodeToString(sum[:]), nil
	}
	return "", fmt.Errorf("nfe: algoritmo de digest desconhecido %q", alg.Digest)
}

// canonicalizeElement copia a subárvore para um documento próprio, garante a
// declaração de namespace e aplica C14N inclusivo.
func canonicalizeElement(el *etree.Element, nsAttr, nsValue string) ([]byte, error) {
	cp := el.Copy()
	if cp.SelectAttr(nsAttr) == nil {
		cp.CreateAttr(nsAttr, nsValue)
	}
	tmp := etree.NewDocument()
	tmp.AddChild(cp)
	raw, err := tmp.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return canonicalize(raw)
}

func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func signBytes(data []byte, key *rsa.PrivateKey, alg AlgorithmSet) ([]byte, error) {
	hash, digest := hashForSignature(data, alg)
	sig, err := rsa.SignPKCS1v15(nil, key, hash, digest)
	if err != nil {
		return nil, fmt.Errorf("assinar SignedInfo: %w", err)
	}
	return sig, nil
}

func hashForSignature(data []byte, alg AlgorithmSet) (crypto.Hash, []byte) {
	if alg.Signature == "rsa-sha256" {
		sum := sha256.Sum256(data)
		return crypto.SHA256, sum[:]
	}
	sum := sha1.Sum(data)
	return crypto.SHA1, sum[:]
}

func buildSignedInfo(refID, digestB64 string, alg AlgorithmSet) (string, error) {
	digestURI, err := alg.digestURI()
	if err != nil {
		return "", err
	}
	sigURI, err := alg.signatureURI()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + sigURI + `"/>`)
	sb.WriteString(`<ds:Reference URI="#` + refID + `">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgC14N + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + digestURI + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + digestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String(), nil
}

func buildSignatureXML(signedInfoXML string, sigValue []byte, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + base64.StdEncoding.EncodeToString(sigValue) + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

func algorithmsFromSignedInfo(signedInfo *etree.Element) (AlgorithmSet, error) {
	alg := AlgorithmSet{Digest: "sha1", Signature: "rsa-sha1"}
	if dm := findByLocalName(signedInfo, "DigestMethod"); dm != nil {
		switch dm.SelectAttrValue("Algorithm", "") {
		case algSHA1:
			alg.Digest = "sha1"
		case algSHA256:
			alg.Digest = "sha256"
		}
	}
	if sm := findByLocalName(signedInfo, "SignatureMethod"); sm != nil {
		switch sm.SelectAttrValue("Algorithm", "") {
		case algRSASHA1:
			alg.Signature = "rsa-sha1"
		case algRSASHA256:
			alg.Signature = "rsa-sha256"
		}
	}
	return alg, nil
}

// findElementWithID percorre a árvore em profundidade e devolve o primeiro
// elemento com atributo Id (infNFe no documento, infEvento no evento).
func findElementWithID(el *etree.Element) *etree.Element {
	if el == nil {
		return nil
	}
	if el.SelectAttr("Id") != nil {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findElementWithID(child); found != nil {
			return found
		}
	}
	return nil
}

func findElementByID(el *etree.Element, id string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.SelectAttrValue("Id", "") == id {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findElementByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

func findByLocalName(el *etree.Element, local string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.Tag == local {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByLocalName(child, local); found != nil {
			return found
		}
	}
	return nil
}

func textOfDescendant(el *etree.Element, local string) string {
	if found := findByLocalName(el, local); found != nil {
		return found.Text()
	}
	return ""
}
