package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundpipe/pkg/core/fault"
)

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence(`{"a":1}`))
	assert.Equal(t, "plain text", StripCodeFence("  plain text  "))
}

func TestSmartParseStrictJSON(t *testing.T) {
	var out map[string]string
	require.NoError(t, SmartParse(`{"fund_name": "Alpha Fund IV"}`, &out))
	assert.Equal(t, "Alpha Fund IV", out["fund_name"])
}

func TestSmartParseRepairsSloppyJSON(t *testing.T) {
	var out map[string]string
	require.NoError(t, SmartParse(`{'fund_name': 'Alpha Fund IV',}`, &out))
	assert.Equal(t, "Alpha Fund IV", out["fund_name"])
}

func TestSmartParseFencedOutput(t *testing.T) {
	var out struct {
		DocType    string  `json:"doc_type"`
		Confidence float64 `json:"confidence"`
	}
	raw := "```json\n{\"doc_type\": \"capital_account_statement\", \"confidence\": 0.92}\n```"
	require.NoError(t, SmartParse(raw, &out))
	assert.Equal(t, "capital_account_statement", out.DocType)
	assert.Equal(t, 0.92, out.Confidence)
}

func TestSmartParseHjsonFallback(t *testing.T) {
	var out map[string]interface{}
	require.NoError(t, SmartParse("{\n  doc_type: capital_call_notice\n  confidence: 0.8\n}", &out))
	assert.Equal(t, "capital_call_notice", out["doc_type"])
}

func TestSmartParseRejectsGarbage(t *testing.T) {
	var out map[string]string
	err := SmartParse("I could not find any fields in this document.", &out)
	require.Error(t, err)
	assert.Equal(t, fault.Invalid, fault.KindOf(err))
}
