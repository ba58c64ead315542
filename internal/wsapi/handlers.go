package wsapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oriane-labs/hearth/internal/sessions"
	"github.com/oriane-labs/hearth/pkg/models"
)

var errPanic = errors.New("internal error")

func unknownFrameType(t string) error {
	return fmt.Errorf("unknown frame type %q", t)
}

type handlerFunc func(ctx context.Context, c *clientConn, env *envelope)

func (s *Server) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"chat/send_stream": handleChatSendStream,
		"chat/send":        handleChatSend,

		"sessions/list":   handleSessionsList,
		"sessions/get":    handleSessionsGet,
		"sessions/create": handleSessionsCreate,
		"sessions/delete": handleSessionsDelete,

		"rag/search":        handleRAGSearch,
		"rag/memories":      handleRAGMemories,
		"rag/memory/delete": handleRAGMemoryDelete,
		"rag/stats":         handleRAGStats,

		"scheduler/list":    handleSchedulerList,
		"scheduler/enable":  handleSchedulerEnable,
		"scheduler/remove":  handleSchedulerRemove,
		"scheduler/run":     handleSchedulerRun,
		"scheduler/history": handleSchedulerHistory,

		"preferences/get": handlePreferencesGet,
		"preferences/set": handlePreferencesSet,

		"providers/config": handleProvidersConfig,
		"models/list":      handleModelsList,
	}
}

// handleChatSendStream streams a turn's events back as a sequence of frames
// sharing the request id, per spec §6.1: user_message, stream_start,
// stream_chunk*, status*, tool_call*, tool_result*, stream_end.
func handleChatSendStream(ctx context.Context, c *clientConn, env *envelope) {
	sessionID := env.stringField("session_id")
	message := env.stringField("message")
	provider := env.stringField("provider")

	session, err := c.server.sessions.Get(ctx, sessionID)
	if err != nil || session == nil {
		c.emit(errorFrame(env.ID, fmt.Errorf("unknown session %q", sessionID)))
		return
	}

	loop, _ := c.server.loopFor(provider)
	if loop == nil {
		c.emit(errorFrame(env.ID, errors.New("no provider configured")))
		return
	}

	var attachments []models.Attachment
	env.field("attachments", &attachments)

	msg := &models.Message{
		ID:          uuid.New().String(),
		Role:        models.RoleUser,
		Content:     message,
		Attachments: attachments,
		CreatedAt:   time.Now(),
	}

	c.emit(frame("user_message", env.ID, map[string]any{"message": msg}))

	chunks, err := loop.Run(ctx, session, msg)
	if err != nil {
		c.emit(frame("stream_end", env.ID, map[string]any{"success": false, "error": err.Error()}))
		return
	}

	c.emit(frame("stream_start", env.ID, map[string]any{"message_id": msg.ID}))

	var streamErr error
	for chunk := range chunks {
		switch {
		case chunk.Error != nil:
			streamErr = chunk.Error
		case chunk.Text != "":
			c.emit(frame("stream_chunk", env.ID, map[string]any{"chunk": chunk.Text}))
		case chunk.Event != nil:
			c.emit(frame("status", env.ID, map[string]any{"message": chunk.Event.Message}))
		case chunk.ToolEvent != nil:
			te := chunk.ToolEvent
			if te.Stage == models.ToolEventRequested || te.Stage == models.ToolEventStarted {
				c.emit(frame("tool_call", env.ID, map[string]any{"name": te.ToolName, "args": te.Input}))
			} else {
				c.emit(frame("tool_result", env.ID, map[string]any{"name": te.ToolName, "result": te.Output, "error": te.Error}))
			}
		}
	}

	end := map[string]any{"success": streamErr == nil}
	if streamErr != nil {
		end["error"] = streamErr.Error()
	}
	c.emit(frame("stream_end", env.ID, end))
}

// handleChatSend is the non-streaming variant: it drains the same event
// channel server-side and replies with a single aggregated result.
func handleChatSend(ctx context.Context, c *clientConn, env *envelope) {
	sessionID := env.stringField("session_id")
	message := env.stringField("message")
	provider := env.stringField("provider")

	session, err := c.server.sessions.Get(ctx, sessionID)
	if err != nil || session == nil {
		c.emit(errorFrame(env.ID, fmt.Errorf("unknown session %q", sessionID)))
		return
	}

	loop, _ := c.server.loopFor(provider)
	if loop == nil {
		c.emit(errorFrame(env.ID, errors.New("no provider configured")))
		return
	}

	msg := &models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   message,
		CreatedAt: time.Now(),
	}

	chunks, err := loop.Run(ctx, session, msg)
	if err != nil {
		c.emit(errorFrame(env.ID, err))
		return
	}

	var text string
	var runErr error
	for chunk := range chunks {
		if chunk.Error != nil {
			runErr = chunk.Error
		}
		text += chunk.Text
	}
	if runErr != nil {
		c.emit(errorFrame(env.ID, runErr))
		return
	}
	c.emit(frame("result", env.ID, map[string]any{"message": text}))
}

func handleSessionsList(ctx context.Context, c *clientConn, env *envelope) {
	agentID := env.stringField("agent_id")
	if agentID == "" {
		agentID = c.server.defaultAgentID
	}
	list, err := c.server.sessions.List(ctx, agentID, sessions.ListOptions{
		Limit:  env.intField("limit", 50),
		Offset: env.intField("offset", 0),
	})
	if err != nil {
		c.emit(errorFrame(env.ID, err))
		return
	}
	c.emit(frame("sessions", env.ID, map[string]any{"sessions": list}))
}

func handleSessionsGet(ctx context.Context, c *clientConn, env *envelope) {
	id := env.stringField("session_id")
	session, err := c.server.sessions.Get(ctx, id)
	if err != nil {
		c.emit(errorFrame(env.ID, err))
		return
	}
	c.emit(frame("session", env.ID, map[string]any{"session": session}))
}

func handleSessionsCreate(ctx context.Context, c *clientConn, env *envelope) {
	agentID := env.stringField("agent_id")
	if agentID == "" {
		agentID = c.server.defaultAgentID
	}
	channelID := env.stringField("channel_id")
	if channelID == "" {
		channelID = uuid.New().String()
	}
	session, err := c.server.sessions.GetOrCreate(ctx, sessions.SessionKey(agentID, models.ChannelAPI, channelID), agentID, models.ChannelAPI, channelID)
	if err != nil {
		c.emit(errorFrame(env.ID, err))
		return
	}
	c.emit(frame("session", env.ID, map[string]any{"session": session}))
}

func handleSessionsDelete(ctx context.Context, c *clientConn, env *envelope) {
	id := env.stringField("session_id")
	if err := c.server.sessions.Delete(ctx, id); err != nil {
		c.emit(errorFrame(env.ID, err))
		return
	}
	c.emit(frame("ok", env.ID, map[string]any{"deleted": id}))
}

func handleRAGSearch(ctx context.Context, c *clientConn, env *envelope) {
	if c.server.ragInjector == nil {
		c.emit(frame("rag_results", env.ID, map[string]any{"chunks": []any{}}))
		return
	}
	query := env.stringField("query")
	scopeID := env.stringField("scope_id")
	result, err := c.server.ragInjector.Inject(ctx, query, scopeID)
	if err != nil {
		c.emit(errorFrame(env.ID, err))
		return
	}
	c.emit(frame("rag_results", env.ID, map[string]any{"chunks": result.Chunks}))
}

func handleRAGMemories(ctx context.Context, c *clientConn, env *envelope) {
	if c.server.memoryManager == nil {
		c.emit(frame("memories", env.ID, map[string]any{"results": []any{}}))
		return
	}
	req := &models.SearchRequest{
		Query:   env.stringField("query"),
		Scope:   models.MemoryScope(env.stringField("scope")),
		ScopeID: env.stringField("scope_id"),
		Limit:   env.intField("limit", 20),
	}
	if req.Scope == "" {
		req.Scope = models.ScopeGlobal
	}
	resp, err := c.server.memoryManager.Search(ctx, req)
	if err != nil {
		c.emit(errorFrame(env.ID, err))
		return
	}
	c.emit(frame("memories", env.ID, map[string]any{"results": resp.Results, "total_count": resp.TotalCount}))
}

func handleRAGMemoryDelete(ctx context.Context, c *clientConn, env *envelope) {
	if c.server.memoryManager == nil {
		c.emit(errorFrame(env.ID, errors.New("memory manager not configured")))
		return
	}
	id := env.stringField("memory_id")
	if err := c.server.memoryManager.Delete(ctx, []string{id}); err != nil {
		c.emit(errorFrame(env.ID, err))
		return
	}
	c.emit(frame("ok", env.ID, map[string]any{"deleted": id}))
}

func handleRAGStats(ctx context.Context, c *clientConn, env *envelope) {
	fields := map[string]any{}
	if c.server.memoryManager != nil {
		if stats, err := c.server.memoryManager.Stats(ctx); err == nil {
			fields["memory"] = stats
		}
	}
	if c.server.ragIndex != nil {
		if stats, err := c.server.ragIndex.Stats(ctx); err == nil {
			fields["rag"] = stats
		}
	}
	c.emit(frame("stats", env.ID, fields))
}

func handleSchedulerList(ctx context.Context, c *clientConn, env *envelope) {
	if c.server.scheduler == nil {
		c.emit(frame("jobs", env.ID, map[string]any{"jobs": []any{}}))
		return
	}
	c.emit(frame("jobs", env.ID, map[string]any{"jobs": c.server.scheduler.Jobs()}))
}

func handleSchedulerEnable(ctx context.Context, c *clientConn, env *envelope) {
	if c.server.scheduler == nil {
		c.emit(errorFrame(env.ID, errors.New("scheduler not configured")))
		return
	}
	id := env.stringField("job_id")
	enabled := env.boolField("enabled")
	if !c.server.scheduler.SetEnabled(id, enabled) {
		c.emit(errorFrame(env.ID, fmt.Errorf("unknown job %q", id)))
		return
	}
	c.emit(frame("ok", env.ID, map[string]any{"job_id": id, "enabled": enabled}))
}

func handleSchedulerRemove(ctx context.Context, c *clientConn, env *envelope) {
	if c.server.scheduler == nil {
		c.emit(errorFrame(env.ID, errors.New("scheduler not configured")))
		return
	}
	id := env.stringField("job_id")
	if !c.server.scheduler.UnregisterJob(id) {
		c.emit(errorFrame(env.ID, fmt.Errorf("unknown job %q", id)))
		return
	}
	c.emit(frame("ok", env.ID, map[string]any{"job_id": id, "removed": true}))
}

func handleSchedulerRun(ctx context.Context, c *clientConn, env *envelope) {
	if c.server.scheduler == nil {
		c.emit(errorFrame(env.ID, errors.New("scheduler not configured")))
		return
	}
	id := env.stringField("job_id")
	if err := c.server.scheduler.RunJob(ctx, id); err != nil {
		c.emit(errorFrame(env.ID, err))
		return
	}
	c.emit(frame("ok", env.ID, map[string]any{"job_id": id, "started": true}))
}

func handleSchedulerHistory(ctx context.Context, c *clientConn, env *envelope) {
	if c.server.scheduler == nil {
		c.emit(frame("history", env.ID, map[string]any{"executions": []any{}}))
		return
	}
	id := env.stringField("job_id")
	execs, err := c.server.scheduler.Executions(ctx, id, env.intField("limit", 20), env.intField("offset", 0))
	if err != nil {
		c.emit(errorFrame(env.ID, err))
		return
	}
	c.emit(frame("history", env.ID, map[string]any{"executions": execs}))
}

func handlePreferencesGet(ctx context.Context, c *clientConn, env *envelope) {
	c.server.prefsMu.RLock()
	prefs := c.server.prefs
	c.server.prefsMu.RUnlock()
	c.emit(frame("preferences", env.ID, map[string]any{"preferences": prefs}))
}

func handlePreferencesSet(ctx context.Context, c *clientConn, env *envelope) {
	c.server.prefsMu.Lock()
	if v := env.stringField("agent_name"); v != "" {
		c.server.prefs.AgentName = v
	}
	if v := env.stringField("user_name"); v != "" {
		c.server.prefs.UserName = v
	}
	if v := env.stringField("language"); v != "" {
		c.server.prefs.Language = v
	}
	if v := env.stringField("default_provider"); v != "" {
		c.server.prefs.DefaultProvider = v
	}
	if v := env.stringField("default_model"); v != "" {
		c.server.prefs.DefaultModel = v
	}
	if v := env.stringField("theme"); v != "" {
		c.server.prefs.Theme = v
	}
	prefs := c.server.prefs
	c.server.prefsMu.Unlock()
	c.emit(frame("preferences", env.ID, map[string]any{"preferences": prefs}))
}

func handleProvidersConfig(ctx context.Context, c *clientConn, env *envelope) {
	type providerInfo struct {
		Name          string `json:"name"`
		SupportsTools bool   `json:"supports_tools"`
		Default       bool   `json:"default"`
	}
	infos := make([]providerInfo, 0, len(c.server.loops))
	for name, loop := range c.server.loops {
		p := loop.Provider()
		if p == nil {
			continue
		}
		infos = append(infos, providerInfo{
			Name:          name,
			SupportsTools: p.SupportsTools(),
			Default:       name == c.server.defaultProv,
		})
	}
	c.emit(frame("providers", env.ID, map[string]any{"providers": infos}))
}

func handleModelsList(ctx context.Context, c *clientConn, env *envelope) {
	provider := env.stringField("provider")
	loop, name := c.server.loopFor(provider)
	if loop == nil || loop.Provider() == nil {
		c.emit(frame("models", env.ID, map[string]any{"provider": name, "models": []any{}}))
		return
	}
	c.emit(frame("models", env.ID, map[string]any{"provider": name, "models": loop.Provider().Models()}))
}
