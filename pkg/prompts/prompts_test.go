package prompts_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/prompts"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *toolcatalog.Catalog {
	t.Helper()
	c, err := toolcatalog.Build([]toolcatalog.RawDescriptor{
		{Name: "get_time", Description: "Returns the current date and time.\n", ReadOnly: true},
	})
	require.NoError(t, err)
	return c
}

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	out, err := prompts.RenderTemplate(`translate from {{.inputLang}} to {{.outputLang | upper}}`, prompts.TemplateFormatGoTemplate, map[string]any{
		"inputLang":  "English",
		"outputLang": "French",
	})
	require.NoError(t, err)
	assert.Equal(t, "translate from English to FRENCH", out)

	_, err = prompts.RenderTemplate(`{{.missing}}`, prompts.TemplateFormatGoTemplate, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to render template")

	_, err = prompts.RenderTemplate(`{{.broken`, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to parse template")

	out, err = prompts.RenderTemplate(`Hello {{ name }}!`, prompts.TemplateFormatJinja2, map[string]any{"name": "bob"})
	require.NoError(t, err)
	assert.Equal(t, "Hello bob!", out)

	_, err = prompts.RenderTemplate(`Hello`, "f-string", nil)
	assert.True(t, errors.Is(err, prompts.ErrInvalidTemplateFormat))

	assert.NoError(t, prompts.CheckValidTemplate(`{{.a}} and {{.b}}`, prompts.TemplateFormatGoTemplate, []string{"a", "b"}))
	assert.Error(t, prompts.CheckValidTemplate(`{{.a}} and {{.c}}`, prompts.TemplateFormatGoTemplate, []string{"a", "b"}))
}

func TestSystemPrompt(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 2, 14, 32, 0, 0, time.UTC)

	var p prompts.SystemPrompt
	out, err := p.Render(testCatalog(t), now)
	require.NoError(t, err)
	assert.Equal(t, "You are a helpful assistant with access to tools.\n"+
		"Today is Thursday, January 2, 2025.\n"+
		"Use the tools when they help to answer the question:\n"+
		"- get_time: Returns the current date and time.\n"+
		"When a tool returns an error, explain it to the user instead of retrying forever.", out)

	out, err = p.Render(nil, now)
	require.NoError(t, err)
	assert.NotContains(t, out, "Use the tools")

	custom := prompts.SystemPrompt{
		Template: `You are {{ persona }}. Tools:{% for t in tools %} {{ t.Name }}{% endfor %}`,
		Format:   prompts.TemplateFormatJinja2,
		Values:   map[string]any{"persona": "a clock expert"},
	}
	out, err = custom.Render(testCatalog(t), now)
	require.NoError(t, err)
	assert.Equal(t, "You are a clock expert. Tools: get_time", out)
}
