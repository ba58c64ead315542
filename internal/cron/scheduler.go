package cron

import (
	"bytes"
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/oriane-labs/hearth/internal/config"
)

var defaultWebhookTimeout = 30 * time.Second

// jobHeap is a container/heap min-heap ordered by Job.NextRun, giving the
// scheduler O(log n) insertion and O(1) access to the next job due to fire
// instead of a linear scan over every configured job on each tick.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	return h[i].NextRun.Before(h[j].NextRun)
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *jobHeap) Push(x any) {
	job := x.(*Job)
	job.heapIndex = len(*h)
	*h = append(*h, job)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.heapIndex = -1
	*h = old[:n-1]
	return job
}

// Scheduler runs scheduled jobs, re-entering the agent orchestrator as
// synthetic user turns, firing webhooks, or dispatching to registered
// custom handlers. A min-heap keyed on each job's next fire time lets the
// run loop wake only when the soonest job is due.
type Scheduler struct {
	heap           jobHeap
	byID           map[string]*Job
	disabled       []*Job
	logger         *slog.Logger
	httpClient     *http.Client
	agentRunner    AgentRunner
	customHandlers map[string]CustomHandler
	executionStore ExecutionStore
	now            func() time.Time
	tickInterval        time.Duration

	mu      sync.Mutex
	started bool
	wake    chan struct{}
	wg      sync.WaitGroup
}

// Option configures the scheduler.
type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Scheduler) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithNow overrides the scheduler's clock, primarily for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval sets the floor on how often the run loop wakes when no
// job is due sooner, primarily for tests.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

func WithAgentRunner(runner AgentRunner) Option {
	return func(s *Scheduler) {
		if runner != nil {
			s.agentRunner = runner
		}
	}
}

func WithCustomHandler(name string, handler CustomHandler) Option {
	return func(s *Scheduler) {
		if handler == nil {
			return
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return
		}
		if s.customHandlers == nil {
			s.customHandlers = make(map[string]CustomHandler)
		}
		s.customHandlers[name] = handler
	}
}

// NewScheduler creates a scheduler from config. Jobs that fail to parse are
// skipped and logged rather than rejecting the whole configuration.
func NewScheduler(cfg config.SchedulerConfig, opts ...Option) (*Scheduler, error) {
	scheduler := &Scheduler{
		byID:           make(map[string]*Job),
		logger:         slog.Default().With("component", "scheduler"),
		httpClient:     http.DefaultClient,
		customHandlers: make(map[string]CustomHandler),
		executionStore: NewMemoryExecutionStore(),
		now:            time.Now,
		tickInterval:        time.Second,
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(scheduler)
	}

	now := scheduler.now()
	for _, entry := range cfg.Jobs {
		job, err := scheduler.buildJob(entry, now)
		if err != nil {
			scheduler.logger.Warn("scheduled job skipped", "id", entry.ID, "error", err)
			continue
		}
		scheduler.index(job)
	}
	return scheduler, nil
}

// index places a job into the heap (if enabled with a next-run time) or the
// disabled list, and records it by ID.
func (s *Scheduler) index(job *Job) {
	s.byID[job.ID] = job
	if job.Enabled && !job.NextRun.IsZero() {
		job.heapIndex = -1
		heap.Push(&s.heap, job)
	} else {
		s.disabled = append(s.disabled, job)
	}
}

// Start begins running scheduled jobs until the context is cancelled. The
// run loop sleeps until the heap's soonest NextRun, woken early by
// RegisterJob/RunJob via the wake channel.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(ctx)
	}()
	return nil
}

func (s *Scheduler) runLoop(ctx context.Context) {
	for {
		delay := s.nextDelay()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
		s.runDue(ctx)
	}
}

func (s *Scheduler) nextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return time.Hour
	}
	delay := s.heap[0].NextRun.Sub(s.now())
	if delay < s.tickInterval {
		if delay < 0 {
			return 0
		}
		return delay
	}
	return delay
}

// Stop waits for the scheduler loop to stop.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes every job currently due, primarily for tests.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if s == nil {
		return 0
	}
	return s.runDue(ctx)
}

// Jobs returns a snapshot of configured jobs.
func (s *Scheduler) Jobs() []*Job {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.byID))
	for _, job := range s.byID {
		copyJob := *job
		out = append(out, &copyJob)
	}
	return out
}

// RegisterJob adds or replaces a scheduled job at runtime and wakes the run
// loop if the new job fires sooner than whatever was next.
func (s *Scheduler) RegisterJob(cfg config.SchedulerJobConfig) (*Job, error) {
	if s == nil {
		return nil, nil
	}
	job, err := s.buildJob(cfg, s.now())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if existing, ok := s.byID[job.ID]; ok {
		s.removeLocked(existing)
	}
	s.index(job)
	s.mu.Unlock()
	s.signalWake()
	return job, nil
}

// UnregisterJob removes a scheduled job by id.
func (s *Scheduler) UnregisterJob(id string) bool {
	if s == nil {
		return false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[id]
	if !ok {
		return false
	}
	s.removeLocked(job)
	delete(s.byID, id)
	return true
}

// SetEnabled toggles whether a registered job participates in scheduling,
// moving it between the heap and the disabled list without losing its
// NextRun/LastRun bookkeeping. Returns false if the job id is unknown.
func (s *Scheduler) SetEnabled(id string, enabled bool) bool {
	if s == nil {
		return false
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	job, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if job.Enabled == enabled {
		s.mu.Unlock()
		return true
	}
	s.removeLocked(job)
	job.Enabled = enabled
	s.index(job)
	s.mu.Unlock()
	s.signalWake()
	return true
}

// removeLocked removes a job from the heap or disabled list. Caller holds s.mu.
func (s *Scheduler) removeLocked(job *Job) {
	if job.heapIndex >= 0 {
		heap.Remove(&s.heap, job.heapIndex)
		return
	}
	for i, d := range s.disabled {
		if d == job {
			s.disabled = append(s.disabled[:i], s.disabled[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Executions returns execution history for a job.
func (s *Scheduler) Executions(ctx context.Context, jobID string, limit, offset int) ([]*JobExecution, error) {
	if s == nil || s.executionStore == nil {
		return nil, nil
	}
	return s.executionStore.List(ctx, strings.TrimSpace(jobID), limit, offset)
}

// PruneExecutions prunes execution history older than the provided duration.
func (s *Scheduler) PruneExecutions(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.executionStore == nil || olderThan <= 0 {
		return 0, nil
	}
	return s.executionStore.Prune(ctx, olderThan)
}

// RunJob executes a specific job by id immediately and reschedules it.
func (s *Scheduler) RunJob(ctx context.Context, id string) error {
	if s == nil {
		return nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("job id required")
	}
	s.mu.Lock()
	job, ok := s.byID[id]
	if ok {
		s.removeLocked(job)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job not found")
	}
	err := s.runJob(ctx, job, s.now())
	s.mu.Lock()
	s.index(job)
	s.mu.Unlock()
	return err
}

// runDue pops and executes every job whose NextRun has arrived, reinserting
// each after it is rescheduled.
func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now()
	count := 0
	for {
		s.mu.Lock()
		if len(s.heap) == 0 || s.heap[0].NextRun.After(now) {
			s.mu.Unlock()
			break
		}
		job := heap.Pop(&s.heap).(*Job)
		s.mu.Unlock()

		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Warn("scheduled job failed", "id", job.ID, "error", err)
		}
		count++

		s.mu.Lock()
		s.index(job)
		s.mu.Unlock()
	}
	return count
}

func (s *Scheduler) runJob(ctx context.Context, job *Job, now time.Time) error {
	if s == nil || job == nil {
		return errors.New("job is nil")
	}
	job.LastRun = now
	retryCount := job.RetryCount
	schedule := job.Schedule

	exec := s.startExecution(ctx, job, retryCount, now)
	err := s.executeJob(ctx, job)
	s.finishExecution(ctx, exec, err, now)

	if err != nil {
		job.LastError = err.Error()
	} else {
		job.LastError = ""
	}
	next, disable, nextErr := s.nextRunForJob(job, schedule, now, err)
	if nextErr != nil {
		job.LastError = nextErr.Error()
		job.NextRun = time.Time{}
		job.Enabled = false
	} else if disable {
		job.NextRun = time.Time{}
		job.Enabled = false
	} else {
		job.NextRun = next
	}
	return err
}

func (s *Scheduler) startExecution(ctx context.Context, job *Job, retryCount int, startedAt time.Time) *JobExecution {
	if s == nil || s.executionStore == nil || job == nil {
		return nil
	}
	exec := &JobExecution{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Status:    ExecutionRunning,
		StartedAt: startedAt,
		Retry:     retryCount,
	}
	if err := s.executionStore.Create(ctx, exec); err != nil && s.logger != nil {
		s.logger.Warn("execution create failed", "job_id", job.ID, "error", err)
	}
	return exec
}

func (s *Scheduler) finishExecution(ctx context.Context, exec *JobExecution, err error, finishedAt time.Time) {
	if s == nil || s.executionStore == nil || exec == nil {
		return
	}
	exec.CompletedAt = finishedAt
	exec.Duration = finishedAt.Sub(exec.StartedAt)
	if err != nil {
		exec.Status = ExecutionFailed
		exec.Error = err.Error()
	} else {
		exec.Status = ExecutionSucceeded
		exec.Error = ""
	}
	if updateErr := s.executionStore.Update(ctx, exec); updateErr != nil && s.logger != nil {
		s.logger.Warn("execution update failed", "job_id", exec.JobID, "error", updateErr)
	}
}

func (s *Scheduler) nextRunForJob(job *Job, schedule Schedule, now time.Time, err error) (time.Time, bool, error) {
	if job == nil {
		return time.Time{}, true, errors.New("job is nil")
	}
	if err != nil {
		maxRetries := job.Retry.MaxRetries
		if maxRetries > 0 && job.RetryCount < maxRetries {
			job.RetryCount++
			return now.Add(retryDelay(job.Retry, job.RetryCount)), false, nil
		}
	}
	job.RetryCount = 0
	next, ok, nextErr := schedule.Next(now)
	if nextErr != nil {
		return time.Time{}, true, nextErr
	}
	if ok {
		return next, false, nil
	}
	return time.Time{}, true, nil
}

func retryDelay(cfg config.SchedulerRetryConfig, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	delay := backoff
	if attempt > 1 {
		factor := 1 << (attempt - 1)
		delay = time.Duration(factor) * backoff
	}
	if cfg.MaxBackoff > 0 && delay > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return delay
}

func (s *Scheduler) buildJob(cfg config.SchedulerJobConfig, now time.Time) (*Job, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, fmt.Errorf("job id required")
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("job disabled")
	}
	schedule, err := NewSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	jobType := JobType(strings.ToLower(strings.TrimSpace(cfg.Type)))
	switch jobType {
	case JobTypeWebhook:
		if cfg.Webhook == nil || strings.TrimSpace(cfg.Webhook.URL) == "" {
			return nil, fmt.Errorf("webhook job missing url")
		}
	case JobTypeAgent:
		if cfg.Agent == nil {
			return nil, fmt.Errorf("agent job missing payload")
		}
		if strings.TrimSpace(cfg.Agent.Content) == "" && strings.TrimSpace(cfg.Agent.Template) == "" {
			return nil, fmt.Errorf("agent job missing content")
		}
	case JobTypeCustom:
		if cfg.Custom == nil || strings.TrimSpace(cfg.Custom.Handler) == "" {
			return nil, fmt.Errorf("custom job missing handler")
		}
	default:
		return nil, fmt.Errorf("unsupported job type %q", cfg.Type)
	}

	next, ok, err := schedule.Next(now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no next run scheduled")
	}

	return &Job{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Type:      jobType,
		Enabled:   cfg.Enabled,
		Schedule:  schedule,
		Agent:     cfg.Agent,
		Webhook:   cfg.Webhook,
		Custom:    cfg.Custom,
		Retry:     cfg.Retry,
		NextRun:   next,
		heapIndex: -1,
	}, nil
}

func (s *Scheduler) executeJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	switch job.Type {
	case JobTypeWebhook:
		return s.executeWebhook(ctx, job)
	case JobTypeAgent:
		return s.executeAgent(ctx, job)
	case JobTypeCustom:
		return s.executeCustom(ctx, job)
	default:
		return fmt.Errorf("job type %s not implemented", job.Type)
	}
}

// executeAgent re-enters the agent orchestrator with the job's rendered
// content as a synthetic user turn on the configured session.
func (s *Scheduler) executeAgent(ctx context.Context, job *Job) error {
	if s.agentRunner == nil {
		return errors.New("agent runner not configured")
	}
	if job.Agent == nil {
		return errors.New("missing agent payload")
	}
	content, err := s.renderContent(job.Agent)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("agent payload missing content")
	}
	jobCopy := *job
	agentCopy := *job.Agent
	agentCopy.Content = content
	jobCopy.Agent = &agentCopy
	return s.agentRunner.Run(ctx, &jobCopy)
}

func (s *Scheduler) executeCustom(ctx context.Context, job *Job) error {
	if job.Custom == nil {
		return errors.New("missing custom payload")
	}
	handlerName := strings.ToLower(strings.TrimSpace(job.Custom.Handler))
	if handlerName == "" {
		return errors.New("custom handler missing")
	}
	s.mu.Lock()
	handler := s.customHandlers[handlerName]
	s.mu.Unlock()
	if handler == nil {
		return fmt.Errorf("custom handler not registered: %s", job.Custom.Handler)
	}
	return handler.Handle(ctx, job, job.Custom.Args)
}

func (s *Scheduler) executeWebhook(ctx context.Context, job *Job) error {
	cfg := job.Webhook
	if cfg == nil {
		return errors.New("missing webhook config")
	}
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	requestBody := strings.NewReader(cfg.Body)
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, requestBody)
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	if err := applyWebhookAuth(req, cfg.Auth); err != nil {
		return err
	}

	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func applyWebhookAuth(req *http.Request, auth *config.SchedulerWebhookAuth) error {
	if req == nil || auth == nil {
		return nil
	}
	authType := strings.ToLower(strings.TrimSpace(auth.Type))
	switch authType {
	case "":
		return errors.New("webhook auth type is required")
	case "bearer":
		token := strings.TrimSpace(auth.Token)
		if token == "" {
			return errors.New("webhook bearer token is required")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case "basic":
		user := strings.TrimSpace(auth.User)
		if user == "" {
			return errors.New("webhook basic auth user is required")
		}
		req.SetBasicAuth(user, auth.Pass)
	case "api_key":
		header := strings.TrimSpace(auth.Header)
		if header == "" {
			return errors.New("webhook api_key header is required")
		}
		token := strings.TrimSpace(auth.Token)
		if token == "" {
			return errors.New("webhook api_key token is required")
		}
		req.Header.Set(header, token)
	default:
		return fmt.Errorf("unsupported webhook auth type %q", auth.Type)
	}
	return nil
}

func (s *Scheduler) renderContent(agent *config.SchedulerAgentConfig) (string, error) {
	if agent == nil {
		return "", errors.New("missing agent payload")
	}
	templateText := strings.TrimSpace(agent.Template)
	if templateText == "" {
		return agent.Content, nil
	}
	now := time.Now()
	if s != nil && s.now != nil {
		now = s.now()
	}
	data := map[string]any{
		"now":  now,
		"date": now.Format("2006-01-02"),
		"time": now.Format("15:04"),
	}
	tmpl, err := template.New("scheduler").Option("missingkey=zero").Parse(templateText)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}
