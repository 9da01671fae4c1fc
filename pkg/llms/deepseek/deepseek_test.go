package deepseek_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llms/deepseek"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("DEEPSEEK_MODEL", "")
	t.Setenv("DEEPSEEK_BASE_URL", "")

	llm, err := deepseek.New()
	require.NoError(t, err)
	assert.Equal(t, deepseek.DefaultModel, llm.GetName())
	assert.Equal(t, llms.ProviderDeepSeek, llm.GetProviderType())

	_, err = llm.Send(context.Background(), []llms.Message{llms.NewUserText("hi")}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrAuth))
	assert.True(t, errors.Is(err, llms.ErrMissingToken))
}

func TestEncodeTools(t *testing.T) {
	t.Parallel()

	llm, err := deepseek.New(deepseek.WithToken("fake"))
	require.NoError(t, err)

	catalog, err := toolcatalog.Build([]toolcatalog.RawDescriptor{
		{Name: "get_time", Description: "current time"},
		{Name: "set_light", InputSchema: `{"type":"object","properties":{"room":{"type":"string"}},"required":["room"]}`},
	})
	require.NoError(t, err)

	spec, err := llm.EncodeTools(catalog)
	require.NoError(t, err)
	assert.Equal(t, []string{"get_time", "set_light"}, spec.Names())

	js, err := json.Marshal(spec.(*deepseek.ToolSpec).Tools)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"function","function":{"name":"get_time","description":"current time","parameters":{"type":"object","properties":{}}}},
		{"type":"function","function":{"name":"set_light","parameters":{"type":"object","properties":{"room":{"type":"string"}},"required":["room"]}}}
	]`, string(js))

	bad, err := toolcatalog.Build([]toolcatalog.RawDescriptor{
		{Name: "pick", InputSchema: `{"type":"object","properties":{"v":{"oneOf":[{"type":"string"},{"type":"integer"}]}}}`},
	})
	require.NoError(t, err)
	_, err = llm.EncodeTools(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, toolcatalog.ErrUnsupportedSchemaFeature))
	assert.Contains(t, err.Error(), "oneOf")
}

func TestSendAndDecode(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer fake", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"resp-1","model":"deepseek-chat",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{
				"role":"assistant","content":"","reasoning_content":"need the clock",
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_time","arguments":""}}]}}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	llm, err := deepseek.New(deepseek.WithToken("fake"), deepseek.WithBaseURL(srv.URL))
	require.NoError(t, err)

	catalog, err := toolcatalog.Build([]toolcatalog.RawDescriptor{{Name: "get_time"}})
	require.NoError(t, err)
	spec, err := llm.EncodeTools(catalog)
	require.NoError(t, err)

	history := []llms.Message{
		llms.NewUserText("what time is it?"),
		llms.NewAssistantText("let me check"),
		llms.NewToolCallRequest("call_0", "get_time", `{}`),
		llms.NewToolResult(llms.ToolCallResponse{ToolCallID: "call_0", Name: "get_time", Content: "boom", IsError: true, ErrorKind: llms.ErrorKindExecution}),
	}
	raw, err := llm.Send(context.Background(), history, spec, llms.WithSystemPrompt("be brief"))
	require.NoError(t, err)

	assert.Equal(t, "auto", got["tool_choice"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assistant := msgs[2].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	assert.Equal(t, "let me check", assistant["content"])
	assert.Len(t, assistant["tool_calls"], 1)
	tool := msgs[3].(map[string]any)
	assert.Equal(t, "call_0", tool["tool_call_id"])
	assert.JSONEq(t, `{"status":"error","error":{"kind":"execution_error","message":"boom"}}`, tool["content"].(string))

	turn, err := llm.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "need the clock", turn.Reasoning)
	assert.Empty(t, turn.Texts)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, "get_time", turn.ToolCalls[0].Name())
	assert.Equal(t, "{}", turn.ToolCalls[0].Arguments())
	assert.Equal(t, 15, turn.Usage.TotalTokens)
	assert.False(t, turn.IsTerminal())
}

func TestSendErrors(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		status int
		target error
	}{
		{http.StatusTooManyRequests, llms.ErrTransientBackend},
		{http.StatusServiceUnavailable, llms.ErrTransientBackend},
		{http.StatusUnauthorized, llms.ErrAuth},
		{http.StatusBadRequest, llms.ErrFatalBackend},
	}
	for _, tc := range tcases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
		}))

		llm, err := deepseek.New(deepseek.WithToken("fake"), deepseek.WithBaseURL(srv.URL))
		require.NoError(t, err)
		_, err = llm.Send(context.Background(), []llms.Message{llms.NewUserText("hi")}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, tc.target), "status %d", tc.status)
		assert.Contains(t, err.Error(), "nope")
		srv.Close()
	}
}

func TestDecodeEmpty(t *testing.T) {
	llm, err := deepseek.New(deepseek.WithToken("fake"))
	require.NoError(t, err)

	_, err = llm.Decode(&deepseek.Response{})
	assert.True(t, errors.Is(err, llms.ErrMalformedResponse))
}

func TestEncodeToolResult(t *testing.T) {
	llm, err := deepseek.New(deepseek.WithToken("fake"))
	require.NoError(t, err)

	js, err := llm.EncodeToolResult(llms.ToolCallResponse{ToolCallID: "c1", Name: "get_time", Content: "12:00"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"tool","content":"12:00","tool_call_id":"c1"}`, string(js))

	js, err = llm.EncodeToolResult(llms.ToolCallResponse{ToolCallID: "c2", Name: "x", Content: "unknown tool", IsError: true, ErrorKind: llms.ErrorKindUnknownTool})
	require.NoError(t, err)
	assert.Contains(t, string(js), `unknown_tool`)
}
