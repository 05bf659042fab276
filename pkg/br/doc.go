// Package br reúne helpers de documentos fiscais brasileiros (CNPJ/CPF)
// e normalização de texto para os campos livres da NF-e.
package br
