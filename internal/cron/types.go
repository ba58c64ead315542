package cron

import (
	"context"
	"time"

	"github.com/oriane-labs/hearth/internal/config"
)

// JobType identifies the handler for a scheduled job.
type JobType string

const (
	// JobTypeAgent re-enters the agent orchestrator with the job's content
	// as a synthetic user turn on the configured session.
	JobTypeAgent   JobType = "agent"
	JobTypeWebhook JobType = "webhook"
	JobTypeCustom  JobType = "custom"
)

// Schedule represents a parsed schedule: exactly one of a cron expression,
// a fixed interval, or a one-shot timestamp.
type Schedule struct {
	Kind     string
	CronExpr string
	Every    time.Duration
	At       time.Time
	Timezone string
}

// Job represents a scheduled job along with its next-fire bookkeeping.
type Job struct {
	ID       string
	Name     string
	Type     JobType
	Enabled  bool
	Schedule Schedule

	Agent   *config.SchedulerAgentConfig
	Webhook *config.SchedulerWebhookConfig
	Custom  *config.SchedulerCustomConfig
	Retry   config.SchedulerRetryConfig

	NextRun    time.Time
	LastRun    time.Time
	LastError  string
	RetryCount int

	// heapIndex is maintained by container/heap for O(log n) reschedule.
	heapIndex int
}

// AgentRunner re-enters the orchestrator as a synthetic user turn.
type AgentRunner interface {
	Run(ctx context.Context, job *Job) error
}

// AgentRunnerFunc adapts a function to an AgentRunner.
type AgentRunnerFunc func(ctx context.Context, job *Job) error

func (f AgentRunnerFunc) Run(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// CustomHandler executes custom scheduled jobs.
type CustomHandler interface {
	Handle(ctx context.Context, job *Job, args map[string]any) error
}

// CustomHandlerFunc adapts a function to a CustomHandler.
type CustomHandlerFunc func(ctx context.Context, job *Job, args map[string]any) error

func (f CustomHandlerFunc) Handle(ctx context.Context, job *Job, args map[string]any) error {
	return f(ctx, job, args)
}
