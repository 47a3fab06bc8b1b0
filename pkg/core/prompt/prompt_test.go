package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTemplateRenders(t *testing.T) {
	tmpl, err := Get(ClassifyDocument)
	require.NoError(t, err)
	assert.NotEmpty(t, tmpl.System)

	out, err := tmpl.Render(map[string]interface{}{
		"types":    []string{"capital_account_statement", "other"},
		"filename": "CAS_Q4_2023.pdf",
		"excerpt":  "Capital Account Statement as of December 31, 2023",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "- capital_account_statement")
	assert.Contains(t, out, "CAS_Q4_2023.pdf")
	assert.Contains(t, out, `"doc_type"`)
}

func TestExtractTemplateRenders(t *testing.T) {
	tmpl, err := Get(ExtractFields)
	require.NoError(t, err)

	type field struct {
		Name    string
		Kind    string
		Aliases []string
	}
	out, err := tmpl.Render(map[string]interface{}{
		"doc_type": "capital_account_statement",
		"fields": []field{
			{Name: "ending_balance", Kind: "amount", Aliases: []string{"closing balance", "endsaldo"}},
			{Name: "as_of_date", Kind: "date"},
		},
		"text":   "Ending Balance: 40,700,000",
		"tables": "Table 1:\nLine Item | Amount",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "ending_balance (amount)")
	assert.Contains(t, out, `"endsaldo"`)
	assert.Contains(t, out, "as_of_date (date)")
	assert.Contains(t, out, "Table 1:")
	assert.Contains(t, out, "Ending Balance: 40,700,000")
}

func TestGetUnknownTemplate(t *testing.T) {
	_, err := Get("no.such.prompt")
	assert.Error(t, err)
}

func TestRegisterOverrides(t *testing.T) {
	Register(New("test.override", "sys", "hello {{.name}}"))
	tmpl, err := Get("test.override")
	require.NoError(t, err)
	out, err := tmpl.Render(map[string]interface{}{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}
