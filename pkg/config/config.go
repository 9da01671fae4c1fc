// Package config loads the configuration of the chat shell.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/mcpbridge/pkg/llmfactory"
	"github.com/effective-security/mcpbridge/pkg/mcpsession"
	"github.com/effective-security/mcpbridge/pkg/prompts"
	"github.com/effective-security/mcpbridge/pkg/turnlog"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/go-playground/validator/v10"
)

// BuiltinServer is the server name of the in-process tool server.
const BuiltinServer = "builtin"

// Store kinds
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// RedisURLEnv is the environment variable with the Redis URL.
const RedisURLEnv = "MCPBRIDGE_REDIS_URL"

// DefaultRedisPrefix is the key prefix of the chats stored in Redis.
const DefaultRedisPrefix = "mcpbridge"

// Config of the chat shell.
type Config struct {
	// Provider is the provider name or type, the default provider when empty.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Model overrides the provider default model.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// Server is the MCP server: a command line, an http(s) or sse+ URL,
	// or builtin for the in-process tools.
	Server string `json:"server,omitempty" yaml:"server,omitempty"`
	// TenantID of the chats.
	TenantID string `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`

	StepBudget    int                      `json:"step_budget,omitempty" yaml:"step_budget,omitempty" validate:"gte=0"`
	ParallelTools int                      `json:"parallel_tools,omitempty" yaml:"parallel_tools,omitempty" validate:"gte=0"`
	Retry         conversation.RetryPolicy `json:"retry" yaml:"retry"`

	ToolTimeout      time.Duration `json:"tool_timeout,omitempty" yaml:"tool_timeout,omitempty"`
	HandshakeTimeout time.Duration `json:"handshake_timeout,omitempty" yaml:"handshake_timeout,omitempty"`

	SystemPrompt prompts.SystemPrompt `json:"system_prompt" yaml:"system_prompt"`

	// TurnLog is the path of the turn log, disabled with "-".
	TurnLog string `json:"turn_log,omitempty" yaml:"turn_log,omitempty"`

	Store StoreConfig `json:"store" yaml:"store"`

	LLM llmfactory.Config `json:"llm" yaml:"llm"`
}

// StoreConfig specifies where the chat history is kept.
type StoreConfig struct {
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=memory redis"`
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Load returns the configuration from file, with defaults applied.
// An empty file name returns the defaults.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "unable to load config %q", file)
		}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults fills the empty values.
func (c *Config) SetDefaults() {
	c.Server = values.StringsCoalesce(c.Server, BuiltinServer)
	c.StepBudget = values.NumbersCoalesce(c.StepBudget, conversation.DefaultStepBudget)
	c.Retry.InitialInterval = durationsCoalesce(c.Retry.InitialInterval, conversation.DefaultRetryPolicy.InitialInterval)
	c.Retry.MaxInterval = durationsCoalesce(c.Retry.MaxInterval, conversation.DefaultRetryPolicy.MaxInterval)
	c.Retry.MaxRetries = values.NumbersCoalesce(c.Retry.MaxRetries, conversation.DefaultRetryPolicy.MaxRetries)
	c.ToolTimeout = durationsCoalesce(c.ToolTimeout, mcpsession.DefaultCallTimeout)
	c.HandshakeTimeout = durationsCoalesce(c.HandshakeTimeout, mcpsession.DefaultHandshakeTimeout)
	c.TurnLog = values.StringsCoalesce(c.TurnLog, turnlog.DefaultFileName)

	c.Store.Kind = strings.ToLower(values.StringsCoalesce(c.Store.Kind, StoreMemory))
	c.Store.RedisURL = values.StringsCoalesce(c.Store.RedisURL, os.Getenv(RedisURLEnv))
	c.Store.Prefix = values.StringsCoalesce(c.Store.Prefix, DefaultRedisPrefix)

	if len(c.LLM.Providers) == 0 {
		c.LLM.Providers = llmfactory.DefaultProviders()
	}
}

// Validate returns an error when the configuration is not usable.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if c.Store.Kind == StoreRedis && c.Store.RedisURL == "" {
		return errors.Errorf("invalid config: redis store requires redis_url or %s", RedisURLEnv)
	}
	return nil
}

func durationsCoalesce(d, def time.Duration) time.Duration {
	return time.Duration(values.NumbersCoalesce(int64(d), int64(def)))
}
