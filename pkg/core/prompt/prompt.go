// Package prompt is the library of LLM prompt templates used by the
// pipeline. Templates are registered at init and rendered with Go
// text/template, so wording changes never touch call sites.
package prompt

import (
	"strings"
	"text/template"

	"fundpipe/pkg/core/fault"
)

// Template is one reusable prompt: a fixed system instruction plus a user
// template rendered per call.
type Template struct {
	ID     string
	System string
	user   *template.Template
}

// New parses the user template body. Panics on a malformed built-in; the
// templates are compile-time constants.
func New(id, system, userTmpl string) *Template {
	return &Template{
		ID:     id,
		System: system,
		user:   template.Must(template.New(id).Parse(userTmpl)),
	}
}

// Render fills the user template with vars.
func (t *Template) Render(vars map[string]interface{}) (string, error) {
	var sb strings.Builder
	if err := t.user.Execute(&sb, vars); err != nil {
		return "", fault.Wrap(fault.Fatal, "prompt.render", err)
	}
	return sb.String(), nil
}
