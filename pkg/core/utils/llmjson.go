// Package utils holds small shared helpers for taming LLM output.
package utils

import (
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"

	"fundpipe/pkg/core/fault"
)

// StripCodeFence removes an outer markdown code block, with or without a
// language tag. Models wrap JSON this way despite instructions not to.
func StripCodeFence(s string) string {
	out := strings.TrimSpace(s)
	if !strings.HasPrefix(out, "```") || !strings.HasSuffix(out, "```") {
		return out
	}
	out = strings.TrimSuffix(out, "```")
	out = strings.TrimPrefix(out, "```")
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		// Drop a language tag like "json" on the opening fence line.
		first := strings.TrimSpace(out[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, "{[\"") {
			out = out[i+1:]
		}
	}
	return strings.TrimSpace(out)
}

// RepairJSON fixes common LLM JSON defects: single quotes, unquoted keys,
// trailing commas, unclosed brackets.
func RepairJSON(raw string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(raw)
	if err != nil {
		return "", fault.Wrap(fault.Invalid, "utils.repair_json", err)
	}
	return repaired, nil
}

// SmartParse unmarshals model output into out, trying strict JSON first,
// then repaired JSON, then Hjson as the most lenient fallback.
func SmartParse(input string, out interface{}) error {
	input = StripCodeFence(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}
	if repaired, err := RepairJSON(input); err == nil {
		if err := json.Unmarshal([]byte(repaired), out); err == nil {
			return nil
		}
	}
	if err := hjson.Unmarshal([]byte(input), out); err == nil {
		return nil
	}
	return fault.New(fault.Invalid, "utils.smart_parse", "unparseable model output (%d bytes)", len(input))
}
