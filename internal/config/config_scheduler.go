package config

import "time"

// SchedulerConfig configures the job scheduler: jobs re-enter the agent
// orchestrator as synthetic user turns (JobTypeAgent), trigger webhooks, or
// dispatch to a named in-process handler (JobTypeCustom).
type SchedulerConfig struct {
	Enabled bool               `yaml:"enabled"`
	Jobs    []SchedulerJobConfig `yaml:"jobs"`
}

type SchedulerJobConfig struct {
	ID       string               `yaml:"id"`
	Name     string               `yaml:"name"`
	Type     string               `yaml:"type"` // "agent", "webhook", "custom"
	Enabled  bool                 `yaml:"enabled"`
	Schedule SchedulerScheduleConfig `yaml:"schedule"`
	Agent    *SchedulerAgentConfig   `yaml:"agent"`
	Webhook  *SchedulerWebhookConfig `yaml:"webhook"`
	Custom   *SchedulerCustomConfig  `yaml:"custom"`
	Retry    SchedulerRetryConfig    `yaml:"retry"`
}

// SchedulerScheduleConfig accepts exactly one of Cron, Every, or At.
type SchedulerScheduleConfig struct {
	Cron     string        `yaml:"cron"`
	Every    time.Duration `yaml:"every"`
	At       string        `yaml:"at"`
	Timezone string        `yaml:"timezone"`
}

// SchedulerAgentConfig re-enters the orchestrator with Content as a
// synthetic user turn against SessionID.
type SchedulerAgentConfig struct {
	SessionID string `yaml:"session_id"`
	Content   string `yaml:"content"`
	Template  string `yaml:"template"`
}

type SchedulerWebhookConfig struct {
	URL     string                  `yaml:"url"`
	Method  string                  `yaml:"method"`
	Body    string                  `yaml:"body"`
	Headers map[string]string       `yaml:"headers"`
	Auth    *SchedulerWebhookAuth   `yaml:"auth"`
	Timeout time.Duration           `yaml:"timeout"`
}

type SchedulerWebhookAuth struct {
	Type   string `yaml:"type"` // "bearer", "basic", "api_key"
	Token  string `yaml:"token"`
	User   string `yaml:"user"`
	Pass   string `yaml:"pass"`
	Header string `yaml:"header"`
}

type SchedulerCustomConfig struct {
	Handler string         `yaml:"handler"`
	Args    map[string]any `yaml:"args"`
}

type SchedulerRetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}
