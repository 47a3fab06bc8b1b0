package extract

import "fundpipe/pkg/models"

// FieldKind tells the chain how to normalize a raw match.
type FieldKind string

const (
	KindAmount   FieldKind = "amount"
	KindDate     FieldKind = "date"
	KindString   FieldKind = "string"
	KindCurrency FieldKind = "currency"
	KindPercent  FieldKind = "percent"
	KindMultiple FieldKind = "multiple"
)

// Field is one catalog entry: its normalization kind, whether persistence
// treats it as required, and its label aliases in EN/DE/ES.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
	Aliases  []string
}

// Field names shared across catalogs.
const (
	FieldAsOfDate     = "as_of_date"
	FieldInvestorName = "investor_name"
	FieldFundName     = "fund_name"
	FieldCurrency     = "reporting_currency"

	FieldBeginningBalance = "beginning_balance"
	FieldEndingBalance    = "ending_balance"
	FieldContributions    = "contributions_period"
	FieldDistributions    = "distributions_period"
	FieldDistributionsROC = "distributions_roc"
	FieldDistributionsGn  = "distributions_gain"
	FieldDistributionsInc = "distributions_income"
	FieldManagementFees   = "management_fees_period"
	FieldPartnershipExp   = "partnership_expenses_period"
	FieldRealizedGL       = "realized_gain_loss_period"
	FieldUnrealizedGL     = "unrealized_gain_loss_period"
	FieldTotalCommitment  = "total_commitment"
	FieldDrawnCommitment  = "drawn_commitment"
	FieldUnfundedCommit   = "unfunded_commitment"

	FieldFundNAV     = "fund_nav"
	FieldCallAmount  = "call_amount"
	FieldDistAmount  = "distribution_amount"
	FieldDueDate     = "due_date"
	FieldIRRNet      = "irr_net"
	FieldMOIC        = "moic"
	FieldTVPI        = "tvpi"
	FieldDPI         = "dpi"
	FieldRVPI        = "rvpi"
	FieldCalledPct   = "called_pct"
	FieldDistribPct  = "distributed_pct"
)

var commonFields = []Field{
	{Name: FieldAsOfDate, Kind: KindDate, Required: true, Aliases: []string{
		"as of", "as of date", "statement date", "reporting date", "period ending", "valuation date",
		"stichtag", "berichtsdatum", "zum",
		"fecha de corte", "fecha del informe", "a fecha de",
	}},
	{Name: FieldInvestorName, Kind: KindString, Aliases: []string{
		"investor", "limited partner", "partner name", "investor name",
		"anleger", "kommanditist",
		"inversor", "socio",
	}},
	{Name: FieldFundName, Kind: KindString, Required: true, Aliases: []string{
		"fund", "fund name", "partnership",
		"fonds", "fondsname",
		"fondo", "nombre del fondo",
	}},
	{Name: FieldCurrency, Kind: KindCurrency, Aliases: []string{
		"currency", "reporting currency", "währung", "moneda", "divisa",
	}},
}

var capitalAccountFields = append([]Field{
	{Name: FieldBeginningBalance, Kind: KindAmount, Required: true, Aliases: []string{
		"beginning balance", "beginning capital balance", "opening balance", "balance at beginning",
		"anfangsbestand", "anfangssaldo",
		"saldo inicial",
	}},
	{Name: FieldEndingBalance, Kind: KindAmount, Required: true, Aliases: []string{
		"ending balance", "ending capital balance", "closing balance", "balance at end", "capital account at end",
		"endbestand", "endsaldo", "schlusssaldo",
		"saldo final",
	}},
	{Name: FieldContributions, Kind: KindAmount, Aliases: []string{
		"contributions", "capital contributions", "capital called", "paid-in capital",
		"einzahlungen", "kapitalabrufe",
		"aportaciones", "contribuciones",
	}},
	{Name: FieldDistributions, Kind: KindAmount, Aliases: []string{
		"distributions", "total distributions", "capital distributed",
		"ausschüttungen",
		"distribuciones",
	}},
	{Name: FieldDistributionsROC, Kind: KindAmount, Aliases: []string{
		"return of capital", "capital returned", "kapitalrückzahlung", "devolución de capital",
	}},
	{Name: FieldDistributionsGn, Kind: KindAmount, Aliases: []string{
		"realized gain distributions", "gain distributions", "gewinnausschüttung", "distribución de ganancias",
	}},
	{Name: FieldDistributionsInc, Kind: KindAmount, Aliases: []string{
		"income distributions", "dividend distributions", "ertragsausschüttung", "distribución de ingresos",
	}},
	{Name: FieldManagementFees, Kind: KindAmount, Aliases: []string{
		"management fees", "management fee",
		"verwaltungsgebühren", "managementgebühr",
		"comisión de gestión", "comisiones de gestión",
	}},
	{Name: FieldPartnershipExp, Kind: KindAmount, Aliases: []string{
		"partnership expenses", "fund expenses", "operating expenses",
		"fondskosten", "betriebsaufwand",
		"gastos del fondo",
	}},
	{Name: FieldRealizedGL, Kind: KindAmount, Aliases: []string{
		"realized gain", "realized gain/loss", "realized gains and losses", "net realized gain",
		"realisierte gewinne", "realisiertes ergebnis",
		"ganancias realizadas",
	}},
	{Name: FieldUnrealizedGL, Kind: KindAmount, Aliases: []string{
		"unrealized gain", "unrealized gain/loss", "change in unrealized", "net unrealized gain",
		"unrealisierte gewinne", "unrealisiertes ergebnis",
		"ganancias no realizadas", "plusvalías latentes",
	}},
	{Name: FieldTotalCommitment, Kind: KindAmount, Required: true, Aliases: []string{
		"total commitment", "committed capital", "capital commitment",
		"zusagekapital", "gesamtzusage",
		"compromiso total",
	}},
	{Name: FieldDrawnCommitment, Kind: KindAmount, Aliases: []string{
		"drawn commitment", "called commitment", "capital drawn", "drawn down",
		"abgerufenes kapital",
		"capital desembolsado",
	}},
	{Name: FieldUnfundedCommit, Kind: KindAmount, Aliases: []string{
		"unfunded commitment", "remaining commitment", "undrawn commitment", "uncalled capital",
		"offene zusage", "nicht abgerufenes kapital",
		"compromiso pendiente",
	}},
}, commonFields...)

var quarterlyReportFields = append([]Field{
	{Name: FieldFundNAV, Kind: KindAmount, Required: true, Aliases: []string{
		"net asset value", "nav", "fund nav", "total net assets",
		"nettoinventarwert", "nettovermögen",
		"valor liquidativo", "patrimonio neto",
	}},
	{Name: FieldIRRNet, Kind: KindPercent, Aliases: []string{
		"net irr", "irr net", "internal rate of return", "netto-irr", "tir neta",
	}},
	{Name: FieldMOIC, Kind: KindMultiple, Aliases: []string{"moic", "multiple on invested capital", "gross multiple"}},
	{Name: FieldTVPI, Kind: KindMultiple, Aliases: []string{"tvpi", "total value to paid-in"}},
	{Name: FieldDPI, Kind: KindMultiple, Aliases: []string{"dpi", "distributed to paid-in"}},
	{Name: FieldRVPI, Kind: KindMultiple, Aliases: []string{"rvpi", "residual value to paid-in"}},
	{Name: FieldCalledPct, Kind: KindPercent, Aliases: []string{"called", "capital called %", "abgerufen", "capital llamado"}},
	{Name: FieldDistribPct, Kind: KindPercent, Aliases: []string{"distributed", "distributed %", "ausgeschüttet", "distribuido"}},
}, commonFields...)

var capitalCallFields = append([]Field{
	{Name: FieldCallAmount, Kind: KindAmount, Required: true, Aliases: []string{
		"call amount", "amount due", "capital call amount", "drawdown amount",
		"abrufbetrag", "fälliger betrag",
		"importe de la llamada", "importe a desembolsar",
	}},
	{Name: FieldDueDate, Kind: KindDate, Aliases: []string{
		"due date", "payment date", "payable by",
		"fälligkeitsdatum", "zahlbar bis",
		"fecha de vencimiento", "fecha de pago",
	}},
	{Name: FieldUnfundedCommit, Kind: KindAmount, Aliases: []string{
		"unfunded commitment", "remaining commitment", "offene zusage", "compromiso pendiente",
	}},
}, commonFields...)

var distributionFields = append([]Field{
	{Name: FieldDistAmount, Kind: KindAmount, Required: true, Aliases: []string{
		"distribution amount", "total distribution", "amount distributed",
		"ausschüttungsbetrag",
		"importe de la distribución",
	}},
	{Name: FieldDistributionsROC, Kind: KindAmount, Aliases: []string{
		"return of capital", "kapitalrückzahlung", "devolución de capital",
	}},
	{Name: FieldDistributionsGn, Kind: KindAmount, Aliases: []string{
		"realized gain", "capital gain", "realisierter gewinn", "ganancia realizada",
	}},
}, commonFields...)

// Catalog returns the field list for a document type. Types without a
// structured catalog (LPA, PPM, subscriptions, Other) extract only the
// common identity fields.
func Catalog(docType models.DocType) []Field {
	switch docType {
	case models.DocCapitalAccountStatement:
		return capitalAccountFields
	case models.DocQuarterlyReport, models.DocAnnualReport:
		return quarterlyReportFields
	case models.DocCapitalCallNotice:
		return capitalCallFields
	case models.DocDistributionNotice:
		return distributionFields
	default:
		return commonFields
	}
}

// RequiredFields lists the required field names for a document type.
func RequiredFields(docType models.DocType) []string {
	var names []string
	for _, f := range Catalog(docType) {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}
