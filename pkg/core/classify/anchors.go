package classify

import (
	"regexp"

	"fundpipe/pkg/models"
)

// anchor is one weighted vote for a document type. Patterns are matched
// case-insensitively against the filename and the first pages of text.
type anchor struct {
	pattern *regexp.Regexp
	weight  float64
}

func a(weight float64, expr string) anchor {
	return anchor{pattern: regexp.MustCompile(`(?i)` + expr), weight: weight}
}

// anchors holds the ordered vote lists per type. Multilingual: investor
// reporting in this corpus arrives in English, German, and Spanish.
var anchors = map[models.DocType][]anchor{
	models.DocCapitalAccountStatement: {
		a(1.0, `capital\s+account\s+statement`),
		a(0.8, `statement\s+of\s+(the\s+)?capital\s+account`),
		a(0.8, `kapitalkonto(auszug|bericht)?`),
		a(0.8, `estado\s+de\s+cuenta\s+de\s+capital`),
		a(0.5, `beginning\s+(capital\s+)?balance`),
		a(0.5, `ending\s+(capital\s+)?balance`),
		a(0.4, `unfunded\s+commitment`),
		a(0.3, `partnership\s+expenses`),
	},
	models.DocQuarterlyReport: {
		a(1.0, `quarterly\s+report`),
		a(0.8, `quartalsbericht`),
		a(0.8, `informe\s+trimestral`),
		a(0.6, `q[1-4]\s+20\d{2}\s+report`),
		a(0.4, `for\s+the\s+quarter\s+ended`),
	},
	models.DocAnnualReport: {
		a(1.0, `annual\s+report`),
		a(0.8, `jahresbericht`),
		a(0.8, `informe\s+anual`),
		a(0.5, `for\s+the\s+year\s+ended`),
		a(0.4, `audited\s+financial\s+statements`),
	},
	models.DocCapitalCallNotice: {
		a(1.0, `capital\s+call\s+notice`),
		a(0.9, `drawdown\s+notice`),
		a(0.8, `kapitalabruf`),
		a(0.8, `notificaci[oó]n\s+de\s+llamada\s+de\s+capital`),
		a(0.5, `amount\s+due`),
		a(0.4, `payment\s+instructions`),
	},
	models.DocDistributionNotice: {
		a(1.0, `distribution\s+notice`),
		a(0.8, `aussch[uü]ttung(smitteilung)?`),
		a(0.8, `aviso\s+de\s+distribuci[oó]n`),
		a(0.5, `return\s+of\s+capital`),
		a(0.4, `recallable\s+distribution`),
	},
	models.DocLPA: {
		a(1.0, `limited\s+partnership\s+agreement`),
		a(0.7, `\bLPA\b`),
		a(0.5, `amended\s+and\s+restated\s+agreement`),
	},
	models.DocPPM: {
		a(1.0, `private\s+placement\s+memorandum`),
		a(0.7, `\bPPM\b`),
		a(0.5, `offering\s+memorandum`),
	},
	models.DocSubscription: {
		a(1.0, `subscription\s+agreement`),
		a(0.8, `zeichnungsschein`),
		a(0.6, `subscription\s+booklet`),
		a(0.4, `investor\s+questionnaire`),
	},
}
