// Package llm implements the model-provider capability behind
// classification and field extraction. The pipeline depends on the Client
// interface; Gemini is the shipped provider and Limited adds throttling.
package llm

import (
	"context"
	"errors"
	"strings"

	"fundpipe/pkg/core/extract"
	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/models"
)

// Client is the LLM capability. It satisfies both classify.TypeOracle and
// extract.FieldOracle.
type Client interface {
	Classify(ctx context.Context, excerpt, filename string) (models.DocType, float64, error)
	ExtractFields(ctx context.Context, docType models.DocType, fields []extract.Field, text string, tables []models.Table) (map[string]string, error)
}

// knownDocTypes validates model answers; anything else maps to an error.
var knownDocTypes = map[string]models.DocType{
	string(models.DocCapitalAccountStatement): models.DocCapitalAccountStatement,
	string(models.DocQuarterlyReport):         models.DocQuarterlyReport,
	string(models.DocAnnualReport):            models.DocAnnualReport,
	string(models.DocCapitalCallNotice):       models.DocCapitalCallNotice,
	string(models.DocDistributionNotice):      models.DocDistributionNotice,
	string(models.DocLPA):                     models.DocLPA,
	string(models.DocPPM):                     models.DocPPM,
	string(models.DocSubscription):            models.DocSubscription,
	string(models.DocOther):                   models.DocOther,
}

// DocTypeNames lists the accepted classification labels for prompting.
func DocTypeNames() []string {
	return []string{
		string(models.DocCapitalAccountStatement),
		string(models.DocQuarterlyReport),
		string(models.DocAnnualReport),
		string(models.DocCapitalCallNotice),
		string(models.DocDistributionNotice),
		string(models.DocLPA),
		string(models.DocPPM),
		string(models.DocSubscription),
		string(models.DocOther),
	}
}

// wrapProviderErr maps transport errors onto the fault taxonomy the callers
// retry on.
func wrapProviderErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.Transient, op, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "resource exhausted"):
		return fault.Wrap(fault.RateLimited, op, err)
	case strings.Contains(msg, "400"),
		strings.Contains(msg, "invalid argument"):
		return fault.Wrap(fault.Invalid, op, err)
	default:
		return fault.Wrap(fault.Transient, op, err)
	}
}
