package llm

import (
	"context"

	"fundpipe/pkg/core/extract"
	"fundpipe/pkg/models"
)

// Mock is a test double for the Client capability.
type Mock struct {
	ClassifyFn func(ctx context.Context, excerpt, filename string) (models.DocType, float64, error)
	ExtractFn  func(ctx context.Context, docType models.DocType, fields []extract.Field, text string, tables []models.Table) (map[string]string, error)
}

var _ Client = (*Mock)(nil)

func (m *Mock) Classify(ctx context.Context, excerpt, filename string) (models.DocType, float64, error) {
	if m.ClassifyFn == nil {
		return models.DocOther, 0, nil
	}
	return m.ClassifyFn(ctx, excerpt, filename)
}

func (m *Mock) ExtractFields(ctx context.Context, docType models.DocType, fields []extract.Field, text string, tables []models.Table) (map[string]string, error) {
	if m.ExtractFn == nil {
		return map[string]string{}, nil
	}
	return m.ExtractFn(ctx, docType, fields, text, tables)
}
