package prompts

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/nikolalohinski/gonja"
)

// ErrInvalidTemplateFormat is returned when the template format is not supported.
var ErrInvalidTemplateFormat = errors.New("invalid template format")

// TemplateFormat is the format of a prompt template.
type TemplateFormat string

const (
	// TemplateFormatGoTemplate is the Go text/template format with sprig functions.
	TemplateFormatGoTemplate TemplateFormat = "go-template"
	// TemplateFormatJinja2 is the jinja2 format.
	TemplateFormatJinja2 TemplateFormat = "jinja2"
)

// RenderTemplate renders the template with the values.
// Missing values are an error for Go templates.
func RenderTemplate(tmpl string, format TemplateFormat, values map[string]any) (string, error) {
	switch format {
	case TemplateFormatGoTemplate, "":
		return interpolateGoTemplate(tmpl, values)
	case TemplateFormatJinja2:
		return interpolateJinja2(tmpl, values)
	default:
		return "", errors.Wrapf(ErrInvalidTemplateFormat, "%q", format)
	}
}

// CheckValidTemplate renders the template with placeholder values.
func CheckValidTemplate(tmpl string, format TemplateFormat, inputVariables []string) error {
	dummy := make(map[string]any, len(inputVariables))
	for _, v := range inputVariables {
		dummy[v] = "foo"
	}
	_, err := RenderTemplate(tmpl, format, dummy)
	return err
}

func interpolateGoTemplate(tmpl string, values map[string]any) (string, error) {
	parsed, err := template.New("template").
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "unable to parse template")
	}
	var sb bytes.Buffer
	if err = parsed.Execute(&sb, values); err != nil {
		return "", errors.Wrap(err, "unable to render template")
	}
	return sb.String(), nil
}

func interpolateJinja2(tmpl string, values map[string]any) (string, error) {
	parsed, err := gonja.FromString(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "unable to parse template")
	}
	out, err := parsed.Execute(values)
	if err != nil {
		return "", errors.Wrap(err, "unable to render template")
	}
	return strings.TrimRight(out, " "), nil
}
