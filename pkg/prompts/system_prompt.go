// Package prompts renders the system prompt of a conversation.
package prompts

import (
	"time"

	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
)

// DefaultSystemPrompt lists the available tools and the current date.
const DefaultSystemPrompt = `You are a helpful assistant with access to tools.
Today is {{ .now | date "Monday, January 2, 2006" }}.
{{- if .tools }}
Use the tools when they help to answer the question:
{{- range .tools }}
- {{ .Name }}{{ if .Description }}: {{ .Description | trim }}{{ end }}
{{- end }}
{{- end }}
When a tool returns an error, explain it to the user instead of retrying forever.`

// SystemPrompt is a configurable system prompt template.
type SystemPrompt struct {
	// Template is the prompt template, DefaultSystemPrompt when empty.
	Template string `json:"template,omitempty" yaml:"template,omitempty"`
	// Format is the template format, go-template when empty.
	Format TemplateFormat `json:"format,omitempty" yaml:"format,omitempty" validate:"omitempty,oneof=go-template jinja2"`
	// Values are extra template values.
	Values map[string]any `json:"values,omitempty" yaml:"values,omitempty"`
}

// Render returns the prompt for the catalog.
// The template receives `now`, `tools` (name, title, description, read-only flag)
// and the configured values.
func (p *SystemPrompt) Render(catalog *toolcatalog.Catalog, now time.Time) (string, error) {
	tmpl, format := p.Template, p.Format
	if tmpl == "" {
		tmpl, format = DefaultSystemPrompt, TemplateFormatGoTemplate
	}

	values := make(map[string]any, len(p.Values)+2)
	for k, v := range p.Values {
		values[k] = v
	}
	values["now"] = now

	var tools []map[string]any
	if catalog != nil {
		for _, d := range catalog.Describe() {
			tools = append(tools, map[string]any{
				"Name":        d.Name,
				"Title":       d.Title,
				"Description": d.Description,
				"ReadOnly":    d.ReadOnly,
			})
		}
	}
	values["tools"] = tools

	return RenderTemplate(tmpl, format, values)
}
