package config

import "time"

// LLMConfig configures the provider adapter layer: which providers are
// registered, their credentials, and the fallback order used when the
// default provider returns a retryable ProviderError.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain specifies provider IDs to try if the default provider
	// fails with a retryable error. Providers are tried in order.
	FallbackChain []string `yaml:"fallback_chain"`

	Bedrock BedrockConfig `yaml:"bedrock"`
}

// LLMProviderConfig configures a single named provider instance.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	APIVersion   string `yaml:"api_version"`

	// SyntheticToolCalls enables the text-marker tool-call protocol for
	// providers without native tool-calling support.
	SyntheticToolCalls bool `yaml:"synthetic_tool_calls"`
}

// BedrockConfig configures the AWS Bedrock provider, which exposes several
// underlying model families behind one adapter.
type BedrockConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Region               string        `yaml:"region"`
	RefreshInterval      time.Duration `yaml:"refresh_interval"`
	DefaultContextWindow int           `yaml:"default_context_window"`
	DefaultMaxTokens     int           `yaml:"default_max_tokens"`
}
