package entity

// Tipos de grão aceitos pelo sistema.
const (
	GraoMilho = "MILHO"
	GraoSoja  = "SOJA"
	GraoSorgo = "SORGO"
)

// TaxProfile é o perfil tributário de um tipo de grão: consulta somente-leitura
// chaveada pelo tipo durante a montagem do documento. O perfil de MILHO serve
// de default quando o tipo não tem cadastro.
type TaxProfile struct {
	ID               string
	GrainType        string // GraoMilho, GraoSoja, ...
	Description      string // xProd
	NCM              string // código tarifário (8 dígitos)
	CFOPInsideState  string // operação dentro do estado (ex: 5102)
	CFOPOutsideState string // operação interestadual (ex: 6102)
	CSOSN            string // código Simples Nacional (ex: 101)
	UnitCom          string // unidade comercial (KG, SC)
}
