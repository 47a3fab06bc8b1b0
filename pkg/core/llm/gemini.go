package llm

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"fundpipe/pkg/core/extract"
	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/core/prompt"
	"fundpipe/pkg/core/utils"
	"fundpipe/pkg/models"
)

// Gemini talks to the Gemini API through the official GenAI SDK. The client
// is built once in the constructor and reused across calls.
type Gemini struct {
	client *genai.Client
	model  string
	log    *logrus.Entry
}

var _ Client = (*Gemini)(nil)

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fault.New(fault.Invalid, "llm.gemini", "api key is empty")
	}
	if model == "" {
		model = "gemini-2.0-flash-exp"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fault.Wrap(fault.Fatal, "llm.gemini", err)
	}
	return &Gemini{
		client: client,
		model:  model,
		log:    logrus.WithField("component", "llm"),
	}, nil
}

// Classify asks the model for the document type of an excerpt.
func (g *Gemini) Classify(ctx context.Context, excerpt, filename string) (models.DocType, float64, error) {
	tmpl, err := prompt.Get(prompt.ClassifyDocument)
	if err != nil {
		return models.DocOther, 0, err
	}
	user, err := tmpl.Render(map[string]interface{}{
		"types":    DocTypeNames(),
		"filename": filename,
		"excerpt":  excerpt,
	})
	if err != nil {
		return models.DocOther, 0, err
	}

	raw, err := g.generate(ctx, tmpl.System, user)
	if err != nil {
		return models.DocOther, 0, err
	}
	return parseClassification(raw)
}

// ExtractFields asks the model to locate catalog fields in the document.
func (g *Gemini) ExtractFields(ctx context.Context, docType models.DocType, fields []extract.Field, text string, tables []models.Table) (map[string]string, error) {
	tmpl, err := prompt.Get(prompt.ExtractFields)
	if err != nil {
		return nil, err
	}
	user, err := tmpl.Render(map[string]interface{}{
		"doc_type": string(docType),
		"fields":   fields,
		"text":     text,
		"tables":   renderTables(tables),
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.generate(ctx, tmpl.System, user)
	if err != nil {
		return nil, err
	}
	return parseFieldMap(raw)
}

func (g *Gemini) generate(ctx context.Context, system, user string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		ResponseMIMEType: "application/json",
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), config)
	if err != nil {
		return "", wrapProviderErr("llm.generate", err)
	}
	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", fault.New(fault.Invalid, "llm.generate", "empty model response")
	}
	return text, nil
}

// parseClassification decodes and validates a classification answer.
func parseClassification(raw string) (models.DocType, float64, error) {
	var out struct {
		DocType    string  `json:"doc_type"`
		Confidence float64 `json:"confidence"`
	}
	if err := utils.SmartParse(raw, &out); err != nil {
		return models.DocOther, 0, err
	}
	docType, ok := knownDocTypes[strings.ToLower(strings.TrimSpace(out.DocType))]
	if !ok {
		return models.DocOther, 0, fault.New(fault.Invalid, "llm.classify", "unknown doc type %q", out.DocType)
	}
	conf := math.Min(math.Max(out.Confidence, 0), 1)
	return docType, conf, nil
}

// parseFieldMap decodes a field extraction answer, flattening scalar values
// to strings and dropping nulls and nested structures.
func parseFieldMap(raw string) (map[string]string, error) {
	var out map[string]interface{}
	if err := utils.SmartParse(raw, &out); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(out))
	for name, v := range out {
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				fields[name] = val
			}
		case float64:
			fields[name] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			fields[name] = strconv.FormatBool(val)
		}
	}
	return fields, nil
}

// renderTables writes tables as pipe-separated rows for the prompt.
func renderTables(tables []models.Table) string {
	if len(tables) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, tbl := range tables {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Table %d", i+1)
		if tbl.Name != "" {
			fmt.Fprintf(&sb, " (%s)", tbl.Name)
		}
		sb.WriteString(":\n")
		sb.WriteString(strings.Join(tbl.Headers, " | "))
		sb.WriteString("\n")
		for _, row := range tbl.Rows {
			sb.WriteString(strings.Join(row, " | "))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
