package config

import "time"

// ToolsConfig controls the canonical tool registry's runtime behavior.
type ToolsConfig struct {
	Execution    ToolExecutionConfig    `yaml:"execution"`
	ResultGuard  ToolResultGuardConfig  `yaml:"result_guard"`
	MemorySearch MemorySearchConfig     `yaml:"memory_search"`
	HomeAssistant HomeAssistantConfig   `yaml:"home_assistant"`
}

// ToolExecutionConfig controls the bounded, synchronous tool-call loop:
// every handler must complete within Timeout, and at most MaxToolCalls
// calls may be dispatched across one agent turn.
type ToolExecutionConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Parallelism   int           `yaml:"parallelism"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	DisableEvents bool          `yaml:"disable_events"`
	MaxToolCalls  int           `yaml:"max_tool_calls"`
}

// ToolResultGuardConfig controls redaction/truncation applied to tool
// results before they are persisted to the session transcript.
type ToolResultGuardConfig struct {
	Enabled         bool     `yaml:"enabled"`
	MaxChars        int      `yaml:"max_chars"`
	Denylist        []string `yaml:"denylist"`
	RedactPatterns  []string `yaml:"redact_patterns"`
	RedactionText   string   `yaml:"redaction_text"`
	TruncateSuffix  string   `yaml:"truncate_suffix"`
	SanitizeSecrets bool     `yaml:"sanitize_secrets"`
}

// MemorySearchConfig configures the recall/forget tool group.
type MemorySearchConfig struct {
	Enabled      bool   `yaml:"enabled"`
	MaxResults   int    `yaml:"max_results"`
	MaxSnippetLen int   `yaml:"max_snippet_len"`
}

// HomeAssistantConfig configures the entity/automation/dashboard tool
// group's connection to the smart-home control plane.
type HomeAssistantConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}
