package br

import "strings"

// OnlyDigits remove tudo que não for dígito 0-9 (pontuação de CNPJ/CPF, espaços).
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsCNPJ indica se o documento (já sem pontuação) tem o tamanho de um CNPJ.
// A NF-e distingue pessoa jurídica de física pelo comprimento: 14 = CNPJ, 11 = CPF.
func IsCNPJ(doc string) bool {
	return len(OnlyDigits(doc)) == 14
}

// PadCNPJ devolve o CNPJ só com dígitos, completado à esquerda com zeros até 14 posições.
func PadCNPJ(doc string) string {
	d := OnlyDigits(doc)
	if len(d) >= 14 {
		return d
	}
	return strings.Repeat("0", 14-len(d)) + d
}
