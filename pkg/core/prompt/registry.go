package prompt

import (
	"sync"

	"fundpipe/pkg/core/fault"
)

// Template ids used by the pipeline.
const (
	ClassifyDocument = "classify.document"
	ExtractFields    = "extract.fields"
)

var (
	mu       sync.RWMutex
	registry = map[string]*Template{}
)

// Register adds or replaces a template.
func Register(t *Template) {
	mu.Lock()
	defer mu.Unlock()
	registry[t.ID] = t
}

// Get looks a template up by id.
func Get(id string) (*Template, error) {
	mu.RLock()
	defer mu.RUnlock()
	t, ok := registry[id]
	if !ok {
		return nil, fault.New(fault.Fatal, "prompt.get", "unknown prompt template %q", id)
	}
	return t, nil
}

func init() {
	Register(New(ClassifyDocument,
		"You classify private-equity fund reporting documents. "+
			"Answer with a single JSON object and nothing else.",
		`Classify this document into exactly one of these types:
{{range .types}}- {{.}}
{{end}}
Filename: {{.filename}}

Document excerpt (first pages):
---
{{.excerpt}}
---

Respond as JSON: {"doc_type": "<type>", "confidence": <0.0-1.0>}.
Use "other" when nothing fits. Confidence reflects how certain you are.`))

	Register(New(ExtractFields,
		"You extract financial fields from private-equity fund documents. "+
			"Copy values verbatim from the document, preserving the original "+
			"number formatting. Answer with a single JSON object and nothing else.",
		`Document type: {{.doc_type}}

Extract these fields (skip any you cannot find, never guess):
{{range .fields}}- {{.Name}} ({{.Kind}}){{if .Aliases}}, also labeled: {{range $i, $a := .Aliases}}{{if $i}}, {{end}}"{{$a}}"{{end}}{{end}}
{{end}}
{{if .tables}}Tables:
{{.tables}}
{{end}}Text:
---
{{.text}}
---

Respond as a JSON object keyed by field name, values as strings exactly as
written in the document, e.g. {"ending_balance": "40,700,000"}.`))
}
