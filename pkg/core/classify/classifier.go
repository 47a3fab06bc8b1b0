// Package classify assigns a document type and confidence. A deterministic
// anchor pass decides when the evidence is strong; ambiguous documents fall
// through to the LLM, whose confidence is capped below deterministic wins.
package classify

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"fundpipe/pkg/core/metrics"
	"fundpipe/pkg/models"
)

const (
	// llmConfidenceCap keeps LLM answers below strong deterministic evidence.
	llmConfidenceCap = 0.85
	// fallbackConfidence is emitted when both passes fail.
	fallbackConfidence = 0.1
	// headPages is how many pages feed the anchor pass and the LLM excerpt.
	headPages = 3
)

// Method records which pass produced the result.
type Method string

const (
	MethodAnchors  Method = "anchors"
	MethodLLM      Method = "llm"
	MethodFallback Method = "fallback"
)

// Result is one classification outcome.
type Result struct {
	Type       models.DocType
	Confidence float64
	Method     Method
}

// TypeOracle is the LLM capability the classifier consumes.
type TypeOracle interface {
	Classify(ctx context.Context, excerpt, filename string) (models.DocType, float64, error)
}

// Classifier scores anchors, then consults the LLM on ambiguity.
type Classifier struct {
	oracle    TypeOracle
	margin    float64
	threshold float64
	log       *logrus.Entry
}

// New builds a Classifier with the default margin (0.2) and cumulative
// weight threshold (1.0). oracle may be nil; ambiguity then falls straight
// through to Other.
func New(oracle TypeOracle) *Classifier {
	return &Classifier{
		oracle:    oracle,
		margin:    0.2,
		threshold: 1.0,
		log:       logrus.WithField("component", "classifier"),
	}
}

// Classify runs the anchor pass over filename plus the head pages, then the
// LLM fallback. It never returns an error: the worst case is Other at 0.1.
func (c *Classifier) Classify(ctx context.Context, filename string, doc *models.ParsedDoc) Result {
	text := filename + "\n" + doc.HeadText(headPages)

	if res, ok := c.anchorPass(text); ok {
		return res
	}

	if c.oracle != nil {
		excerpt := doc.HeadText(headPages)
		docType, conf, err := c.oracle.Classify(ctx, excerpt, filename)
		if err == nil && docType != "" && docType != models.DocOther {
			metrics.LLMCalls.WithLabelValues("classify", "ok").Inc()
			if conf > llmConfidenceCap {
				conf = llmConfidenceCap
			}
			return Result{Type: docType, Confidence: conf, Method: MethodLLM}
		}
		if err != nil {
			metrics.LLMCalls.WithLabelValues("classify", "error").Inc()
			c.log.WithError(err).WithField("filename", filename).Warn("llm classification failed")
		}
	}

	return Result{Type: models.DocOther, Confidence: fallbackConfidence, Method: MethodFallback}
}

// anchorPass tallies weighted votes and applies the margin and threshold
// gates. Ties break toward the more specific type.
func (c *Classifier) anchorPass(text string) (Result, bool) {
	scores := make(map[models.DocType]float64)
	total := 0.0
	for docType, list := range anchors {
		for _, an := range list {
			if an.pattern.MatchString(text) {
				scores[docType] += an.weight
				total += an.weight
			}
		}
	}
	if len(scores) == 0 {
		return Result{}, false
	}

	ranked := make([]models.DocType, 0, len(scores))
	for docType := range scores {
		ranked = append(ranked, docType)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if scores[ranked[i]] != scores[ranked[j]] {
			return scores[ranked[i]] > scores[ranked[j]]
		}
		return ranked[i].Specificity() > ranked[j].Specificity()
	})

	winner := ranked[0]
	winScore := scores[winner]
	if winScore < c.threshold {
		return Result{}, false
	}
	if len(ranked) > 1 {
		gap := winScore - scores[ranked[1]]
		// An exact tie resolves by specificity; a near-tie is genuine
		// ambiguity and goes to the LLM.
		if gap != 0 && gap < c.margin {
			return Result{}, false
		}
	}

	conf := winScore / total
	if conf > 1 {
		conf = 1
	}
	return Result{Type: winner, Confidence: conf, Method: MethodAnchors}, true
}
