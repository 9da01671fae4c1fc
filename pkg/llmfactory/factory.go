package llmfactory

import (
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llms/anthropic"
	"github.com/effective-security/mcpbridge/pkg/llms/deepseek"
	"github.com/effective-security/mcpbridge/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/pkg", "llmfactory")

// NewAdapter is a wrapper for CreateAdapter to allow for overriding the default implementation.
var NewAdapter = CreateAdapter

// Factory creates and caches model adapters.
type Factory interface {
	// DefaultAdapter returns the adapter of the default provider.
	DefaultAdapter() (llms.Adapter, error)
	// AdapterByType returns an adapter by its provider type:
	// ANTHROPIC, OPENAI, DEEPSEEK
	AdapterByType(providerType string) (llms.Adapter, error)
	// AdapterByName returns an adapter serving the first known model,
	// if no model is found, it will return the default adapter.
	AdapterByName(preferredModels ...string) (llms.Adapter, error)
}

// Load returns a factory configured from the file.
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg *Config

	defaultProvider *ProviderConfig
	byType          map[string]llms.Adapter
	byName          map[string]llms.Adapter
	lock            sync.Mutex
}

// New creates a new factory.
// When no providers are configured, one provider per supported type is
// added, with credentials from the environment.
func New(cfg *Config) Factory {
	f := &factory{
		cfg:    cfg,
		byType: make(map[string]llms.Adapter),
		byName: make(map[string]llms.Adapter),
	}

	if cfg.DefaultProvider != "" {
		for _, provider := range cfg.Providers {
			if provider.Name == cfg.DefaultProvider {
				f.defaultProvider = provider
				break
			}
		}
	}

	if f.defaultProvider == nil && len(f.cfg.Providers) > 0 {
		f.defaultProvider = f.cfg.Providers[0]
	}

	return f
}

// DefaultProviders returns one provider per supported type with default models.
func DefaultProviders() []*ProviderConfig {
	return []*ProviderConfig{
		{Name: "anthropic", Type: string(llms.ProviderAnthropic), DefaultModel: anthropic.DefaultModel},
		{Name: "openai", Type: string(llms.ProviderOpenAI), DefaultModel: openai.DefaultModel},
		{Name: "deepseek", Type: string(llms.ProviderDeepSeek), DefaultModel: deepseek.DefaultModel},
	}
}

// CreateAdapter returns the adapter for the provider.
func CreateAdapter(cfg *ProviderConfig, preferredModels ...string) (llms.Adapter, error) {
	provType := llms.ProviderType(strings.ToUpper(cfg.Type))
	switch provType {
	case llms.ProviderAnthropic:
		return newAnthropic(cfg, preferredModels...)
	case llms.ProviderOpenAI, "OPEN_AI":
		return newOpenAI(cfg, preferredModels...)
	case llms.ProviderDeepSeek:
		return newDeepSeek(cfg, preferredModels...)
	}
	return nil, errors.Errorf("unsupported provider type: %s", cfg.Type)
}

func newAnthropic(cfg *ProviderConfig, preferredModels ...string) (llms.Adapter, error) {
	var opts []anthropic.Option
	if model := cfg.FindModel(preferredModels...); model != "" {
		opts = append(opts, anthropic.WithModel(model))
	}
	if cfg.Token != "" {
		opts = append(opts, anthropic.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, anthropic.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, anthropic.WithRequestTimeout(cfg.RequestTimeout))
	}
	return anthropic.New(opts...)
}

func newOpenAI(cfg *ProviderConfig, preferredModels ...string) (llms.Adapter, error) {
	var opts []openai.Option
	if model := cfg.FindModel(preferredModels...); model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	if cfg.Token != "" {
		opts = append(opts, openai.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.OpenAI.OrgID != "" {
		opts = append(opts, openai.WithOrganization(cfg.OpenAI.OrgID))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, openai.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, openai.WithRequestTimeout(cfg.RequestTimeout))
	}
	return openai.New(opts...)
}

func newDeepSeek(cfg *ProviderConfig, preferredModels ...string) (llms.Adapter, error) {
	var opts []deepseek.Option
	if model := cfg.FindModel(preferredModels...); model != "" {
		opts = append(opts, deepseek.WithModel(model))
	}
	if cfg.Token != "" {
		opts = append(opts, deepseek.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, deepseek.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, deepseek.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, deepseek.WithRequestTimeout(cfg.RequestTimeout))
	}
	return deepseek.New(opts...)
}

// DefaultAdapter returns the adapter of the default provider.
func (f *factory) DefaultAdapter() (llms.Adapter, error) {
	if len(f.cfg.Providers) == 0 || f.defaultProvider == nil {
		return nil, errors.New("no providers configured")
	}

	return NewAdapter(f.defaultProvider, f.defaultProvider.DefaultModel)
}

func (f *factory) AdapterByType(providerType string) (llms.Adapter, error) {
	providerType = strings.ToUpper(providerType)

	f.lock.Lock()
	defer f.lock.Unlock()

	if adapter, ok := f.byType[providerType]; ok {
		return adapter, nil
	}

	for _, cfg := range f.cfg.Providers {
		if strings.EqualFold(cfg.Type, providerType) {
			adapter, err := NewAdapter(cfg)
			if err != nil {
				return nil, err
			}

			logger.KV(xlog.DEBUG,
				"status", "created_adapter",
				"type", cfg.Type,
				"model", adapter.GetName(),
				"name", cfg.Name)

			f.byType[providerType] = adapter
			return adapter, nil
		}
	}
	return nil, errors.Errorf("provider not found for type: %s", providerType)
}

func (f *factory) AdapterByName(modelNames ...string) (llms.Adapter, error) {
	f.lock.Lock()

	for _, modelName := range modelNames {
		if adapter, ok := f.byName[modelName]; ok {
			f.lock.Unlock()
			return adapter, nil
		}

		for _, cfg := range f.cfg.Providers {
			if slices.Contains(cfg.AvailableModels, modelName) {
				adapter, err := NewAdapter(cfg, modelName)
				if err != nil {
					logger.KV(xlog.ERROR,
						"reason", "NewAdapter",
						"type", cfg.Type,
						"models", modelNames,
						"err", err.Error(),
					)
					continue
				}

				logger.KV(xlog.DEBUG,
					"status", "created_adapter",
					"type", cfg.Type,
					"model", modelName,
					"name", cfg.Name)

				f.byName[modelName] = adapter
				f.lock.Unlock()
				return adapter, nil
			}
		}
	}
	f.lock.Unlock()
	return f.DefaultAdapter()
}
