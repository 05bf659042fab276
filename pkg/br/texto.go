package br

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// sefazTransformer decompõe acentos (NFD) e descarta as marcas combinantes,
// deixando apenas o caractere base. "São João" -> "Sao Joao".
var sefazTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// NormalizeText prepara texto livre para os campos da NF-e: remove acentos,
// colapsa espaços repetidos e apara as pontas. Vários validadores da SEFAZ
// rejeitam caracteres fora do ASCII básico em xNome, natOp e infCpl.
func NormalizeText(s string) string {
	out, _, err := transform.String(sefazTransformer, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}

// TruncateText corta o texto em max runas, limite dos campos de tamanho fixo do schema.
func TruncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
