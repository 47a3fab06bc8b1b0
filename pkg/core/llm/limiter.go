package llm

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"fundpipe/pkg/config"
	"fundpipe/pkg/core/extract"
	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/core/metrics"
	"fundpipe/pkg/models"
)

// Limited wraps a Client with a concurrency cap, a request-rate budget, and
// per-operation timeouts. All pipeline LLM traffic goes through one Limited
// so the provider quota is shared fairly.
type Limited struct {
	inner           Client
	sem             *semaphore.Weighted
	rate            *rate.Limiter
	classifyTimeout time.Duration
	extractTimeout  time.Duration
}

var _ Client = (*Limited)(nil)

func NewLimited(inner Client, cfg config.LLM) *Limited {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Limited{
		inner:           inner,
		sem:             semaphore.NewWeighted(int64(concurrency)),
		rate:            rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), concurrency),
		classifyTimeout: cfg.ClassifyTimeout.D(),
		extractTimeout:  cfg.ExtractTimeout.D(),
	}
}

func (l *Limited) Classify(ctx context.Context, excerpt, filename string) (models.DocType, float64, error) {
	var (
		docType models.DocType = models.DocOther
		conf    float64
	)
	err := l.throttled(ctx, "classify", l.classifyTimeout, func(ctx context.Context) error {
		var err error
		docType, conf, err = l.inner.Classify(ctx, excerpt, filename)
		return err
	})
	return docType, conf, err
}

func (l *Limited) ExtractFields(ctx context.Context, docType models.DocType, fields []extract.Field, text string, tables []models.Table) (map[string]string, error) {
	var out map[string]string
	err := l.throttled(ctx, "extract", l.extractTimeout, func(ctx context.Context) error {
		var err error
		out, err = l.inner.ExtractFields(ctx, docType, fields, text, tables)
		return err
	})
	return out, err
}

func (l *Limited) throttled(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		metrics.LLMCalls.WithLabelValues(op, "throttled").Inc()
		return fault.Wrap(fault.Transient, "llm."+op, err)
	}
	defer l.sem.Release(1)

	if err := l.rate.Wait(ctx); err != nil {
		metrics.LLMCalls.WithLabelValues(op, "throttled").Inc()
		return fault.Wrap(fault.Transient, "llm."+op, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := fn(ctx)
	switch {
	case err == nil:
		metrics.LLMCalls.WithLabelValues(op, "ok").Inc()
	case fault.KindOf(err) == fault.RateLimited:
		metrics.LLMCalls.WithLabelValues(op, "rate_limited").Inc()
	default:
		metrics.LLMCalls.WithLabelValues(op, "error").Inc()
	}
	return err
}
