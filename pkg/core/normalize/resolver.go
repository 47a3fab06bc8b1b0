package normalize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xrash/smetrics"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/models"
)

// fundMatchThreshold is the Jaro-Winkler similarity above which an
// extracted fund name resolves to an existing fund instead of creating a
// new one.
const fundMatchThreshold = 0.90

// FundDirectory is the persistence capability the resolver reads from.
type FundDirectory interface {
	FundsByInvestor(ctx context.Context, investorRef string) ([]models.Fund, error)
}

// Resolver maps extracted names onto canonical Investor/Fund identities.
type Resolver struct {
	dir FundDirectory
	log *logrus.Entry
}

func NewResolver(dir FundDirectory) *Resolver {
	return &Resolver{dir: dir, log: logrus.WithField("component", "resolver")}
}

// ResolveInvestor trusts the discovery root: the path prefix determines the
// investor. When the extracted name disagrees with the root's code, a
// Low-severity audit records the conflict but the root still wins.
func (r *Resolver) ResolveInvestor(rootCode, extractedName string) (models.Investor, *models.FieldAudit) {
	inv := models.Investor{Code: rootCode, Name: extractedName, CreatedAt: time.Now().UTC()}
	if extractedName == "" {
		inv.Name = rootCode
		return inv, nil
	}

	if !strings.EqualFold(strings.TrimSpace(extractedName), rootCode) {
		return inv, &models.FieldAudit{
			FieldName:       "investor_name",
			RawValue:        extractedName,
			NormalizedValue: rootCode,
			ExtractorTag:    models.TagResolver,
			Confidence:      1.0,
			Status:          models.ValidationOK,
			Severity:        models.AuditLow,
			Note:            "extracted investor name differs from discovery root; root wins",
			CreatedAt:       time.Now().UTC(),
		}
	}
	return inv, nil
}

// ResolveFund fuzzy-matches the extracted fund name against the investor's
// existing funds. A Jaro-Winkler score >= 0.90 resolves to the existing
// fund; otherwise a new fund with a generated code is returned.
func (r *Resolver) ResolveFund(ctx context.Context, investorRef, extractedName, currency string) (models.Fund, bool, error) {
	name := strings.TrimSpace(extractedName)
	if name == "" {
		return models.Fund{}, false, fault.New(fault.Invalid, "resolve.fund", "empty fund name")
	}

	existing, err := r.dir.FundsByInvestor(ctx, investorRef)
	if err != nil {
		return models.Fund{}, false, fault.Wrap(fault.Transient, "resolve.fund", err)
	}

	var best models.Fund
	bestScore := 0.0
	for _, fund := range existing {
		score := smetrics.JaroWinkler(strings.ToLower(name), strings.ToLower(fund.Name), 0.7, 4)
		if score > bestScore {
			best, bestScore = fund, score
		}
	}
	if bestScore >= fundMatchThreshold {
		r.log.WithFields(logrus.Fields{"name": name, "matched": best.Name, "score": bestScore}).Debug("fund resolved to existing")
		return best, false, nil
	}

	fund := models.Fund{
		Code:        GenerateFundCode(name, codesOf(existing)),
		Name:        name,
		InvestorRef: investorRef,
		Currency:    currency,
		CreatedAt:   time.Now().UTC(),
	}
	return fund, true, nil
}

func codesOf(funds []models.Fund) map[string]bool {
	taken := make(map[string]bool, len(funds))
	for _, f := range funds {
		taken[f.Code] = true
	}
	return taken
}

// legalSuffixes are dropped from fund names before code generation.
var legalSuffixes = map[string]bool{
	"l": true, "p": true, "lp": true, "llc": true, "ltd": true,
	"gmbh": true, "kg": true, "sa": true, "sl": true, "scs": true, "sarl": true,
}

// GenerateFundCode builds a code from the initial letters of the name's
// words, keeping roman numerals whole, then disambiguates with a numeric
// suffix: "Alpha Fund IV, L.P." -> "AFIV".
func GenerateFundCode(name string, taken map[string]bool) string {
	var sb strings.Builder
	for _, word := range strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '-'
	}) {
		if legalSuffixes[strings.ToLower(word)] {
			continue
		}
		if isRomanNumeral(word) {
			sb.WriteString(strings.ToUpper(word))
			continue
		}
		r := rune(word[0])
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	base := strings.ToUpper(sb.String())
	if base == "" {
		base = "FUND"
	}

	code := base
	for i := 2; taken[code]; i++ {
		code = fmt.Sprintf("%s%d", base, i)
	}
	return code
}

func isRomanNumeral(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range strings.ToUpper(word) {
		switch r {
		case 'I', 'V', 'X', 'L', 'C':
		default:
			return false
		}
	}
	return true
}
