package cmd

import (
	"time"

	"github.com/open1s/aisbot/internal/config"
	"github.com/open1s/aisbot/internal/providers"
)

// buildProviderRegistry registers one Provider per configured credential.
// A provider with no API key is skipped rather than registered broken —
// callers resolve by name and get a clear "not found" instead of a runtime
// 401 on first use.
func buildProviderRegistry(cfg *config.Config) *providers.Registry {
	reg := providers.NewRegistry()

	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		opts := []providers.AnthropicOption{providers.WithAnthropicModel(cfg.Agents.Defaults.Model)}
		if base := cfg.Providers.Anthropic.APIBase; base != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(base))
		}
		if t := providerTimeout(cfg.Providers.Anthropic); t > 0 {
			opts = append(opts, providers.WithAnthropicTimeout(t))
		}
		reg.Register(providers.NewAnthropicProvider(key, opts...))
	}

	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		p := providers.NewOpenAIProvider("openai", key, cfg.Providers.OpenAI.APIBase, cfg.Agents.Defaults.Model)
		if t := providerTimeout(cfg.Providers.OpenAI); t > 0 {
			p = p.WithTimeout(t)
		}
		reg.Register(p)
	}

	if key := cfg.Providers.OpenRouter.APIKey; key != "" {
		base := cfg.Providers.OpenRouter.APIBase
		if base == "" {
			base = "https://openrouter.ai/api/v1"
		}
		p := providers.NewOpenAIProvider("openrouter", key, base, cfg.Agents.Defaults.Model)
		if t := providerTimeout(cfg.Providers.OpenRouter); t > 0 {
			p = p.WithTimeout(t)
		}
		reg.Register(p)
	}

	if key := cfg.Providers.Gemini.APIKey; key != "" {
		base := cfg.Providers.Gemini.APIBase
		if base == "" {
			base = "https://generativelanguage.googleapis.com/v1beta/openai"
		}
		p := providers.NewOpenAIProvider("gemini", key, base, cfg.Agents.Defaults.Model)
		if t := providerTimeout(cfg.Providers.Gemini); t > 0 {
			p = p.WithTimeout(t)
		}
		reg.Register(p)
	}

	if len(reg.Names()) > 0 {
		if _, ok := reg.Get(cfg.Agents.Defaults.Provider); ok {
			reg.SetDefault(cfg.Agents.Defaults.Provider)
		}
	}

	return reg
}

func providerTimeout(pc config.ProviderConfig) time.Duration {
	if pc.TimeoutSec <= 0 {
		return 0
	}
	return time.Duration(pc.TimeoutSec) * time.Second
}
