package config_test

import (
	"testing"

	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/mcpbridge/pkg/config"
	"github.com/effective-security/mcpbridge/pkg/mcpsession"
	"github.com/effective-security/mcpbridge/pkg/prompts"
	"github.com/effective-security/mcpbridge/pkg/turnlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(config.RedisURLEnv, "")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.BuiltinServer, cfg.Server)
	assert.Equal(t, conversation.DefaultStepBudget, cfg.StepBudget)
	assert.Equal(t, conversation.DefaultRetryPolicy, cfg.Retry)
	assert.Equal(t, mcpsession.DefaultCallTimeout, cfg.ToolTimeout)
	assert.Equal(t, mcpsession.DefaultHandshakeTimeout, cfg.HandshakeTimeout)
	assert.Equal(t, turnlog.DefaultFileName, cfg.TurnLog)
	assert.Equal(t, config.StoreMemory, cfg.Store.Kind)
	assert.Equal(t, config.DefaultRedisPrefix, cfg.Store.Prefix)
	assert.Len(t, cfg.LLM.Providers, 3)
}

func TestLoad_File(t *testing.T) {
	cfg, err := config.Load("testdata/mcpbridge.yaml")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, "npx -y @modelcontextprotocol/server-everything", cfg.Server)
	assert.Equal(t, "acme", cfg.TenantID)
	assert.Equal(t, 6, cfg.StepBudget)
	assert.Equal(t, 4, cfg.ParallelTools)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, conversation.DefaultRetryPolicy.InitialInterval, cfg.Retry.InitialInterval)
	assert.Equal(t, prompts.TemplateFormatJinja2, cfg.SystemPrompt.Format)
	assert.Equal(t, "You are a scheduling assistant.", cfg.SystemPrompt.Template)
	assert.Equal(t, "-", cfg.TurnLog)
	require.Len(t, cfg.LLM.Providers, 1)
	assert.Equal(t, "anthropic", cfg.LLM.DefaultProvider)
	assert.Equal(t, 2048, cfg.LLM.Providers[0].MaxTokens)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load("testdata/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to load config")

	_, err = config.Load("testdata/invalid.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestValidate_Redis(t *testing.T) {
	t.Setenv(config.RedisURLEnv, "")

	cfg := &config.Config{Store: config.StoreConfig{Kind: "REDIS"}}
	cfg.SetDefaults()
	assert.Equal(t, config.StoreRedis, cfg.Store.Kind)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis store requires redis_url")

	t.Setenv(config.RedisURLEnv, "redis://localhost:6379/0")
	cfg = &config.Config{Store: config.StoreConfig{Kind: config.StoreRedis}}
	cfg.SetDefaults()
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.RedisURL)
	assert.NoError(t, cfg.Validate())

	cfg.ParallelTools = -1
	assert.Error(t, cfg.Validate())
}
