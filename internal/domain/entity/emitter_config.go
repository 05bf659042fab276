package entity

import "time"

// Ambientes SEFAZ (tpAmb).
const (
	AmbienteProducao    = "1"
	AmbienteHomologacao = "2"
)

// EmitterConfig é o registro do emitente: um por organização, carregado uma vez
// na subida e injetado em todos os componentes. O invariante "exatamente um"
// é responsabilidade do provisionamento, não de checagem em runtime.
type EmitterConfig struct {
	ID                string
	RazaoSocial       string
	NomeFantasia      string
	CNPJ              string // 14 dígitos
	IE                string // Inscrição Estadual
	Logradouro        string
	Numero            string
	Complemento       string
	Bairro            string
	CodigoMunicipio   string // cMun IBGE (7 dígitos)
	Municipio         string
	UF                string // sigla (MA)
	CodigoUF          string // cUF IBGE (21 = MA)
	CEP               string
	RegimeTributario  string // CRT: 1 = Simples Nacional
	SerieNFe          int
	ProximoNumero     int64  // contador monotônico; só avança, nunca recua
	Ambiente          string // AmbienteProducao | AmbienteHomologacao
	ProductionEnabled bool   // trava: sem ela nenhum envio vai para produção
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
