package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oriane-labs/hearth/internal/agent"
)

// GetHistoryTool fetches state-change history for an entity over a time range.
type GetHistoryTool struct {
	client *Client
}

func NewGetHistoryTool(client *Client) *GetHistoryTool {
	return &GetHistoryTool{client: client}
}

func (t *GetHistoryTool) Name() string { return "get_history" }

func (t *GetHistoryTool) Description() string {
	return "Get state-change history for a Home Assistant entity between start and end timestamps (RFC3339)."
}

func (t *GetHistoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "entity_id": { "type": "string", "description": "Entity ID (e.g., sensor.living_room_temperature)" },
    "start": { "type": "string", "description": "Start timestamp (RFC3339). Defaults to 1 day ago." },
    "end": { "type": "string", "description": "End timestamp (RFC3339). Defaults to now." }
  },
  "required": ["entity_id"]
}`)
}

func (t *GetHistoryTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t == nil || t.client == nil {
		return toolError("Home Assistant client not configured (enable channels.homeassistant)"), nil
	}

	var input struct {
		EntityID string `json:"entity_id"`
		Start    string `json:"start"`
		End      string `json:"end"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	payload, err := t.client.GetHistory(ctx, input.EntityID, input.Start, input.End)
	if err != nil {
		return toolError(err.Error()), nil
	}
	return jsonResult(payload), nil
}

// CreateAutomationTool upserts a Home Assistant automation definition.
type CreateAutomationTool struct {
	client *Client
}

func NewCreateAutomationTool(client *Client) *CreateAutomationTool {
	return &CreateAutomationTool{client: client}
}

func (t *CreateAutomationTool) Name() string { return "create_automation" }

func (t *CreateAutomationTool) Description() string {
	return "Create or update a Home Assistant automation (trigger/condition/action config)."
}

func (t *CreateAutomationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "automation_id": { "type": "string", "description": "Unique ID for the automation. Generated if omitted." },
    "alias": { "type": "string", "description": "Human-readable name for the automation." },
    "trigger": { "type": "array", "items": { "type": "object", "additionalProperties": true }, "description": "Trigger config(s)." },
    "condition": { "type": "array", "items": { "type": "object", "additionalProperties": true }, "description": "Condition config(s)." },
    "action": { "type": "array", "items": { "type": "object", "additionalProperties": true }, "description": "Action config(s)." }
  },
  "required": ["alias", "trigger", "action"]
}`)
}

func (t *CreateAutomationTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t == nil || t.client == nil {
		return toolError("Home Assistant client not configured (enable channels.homeassistant)"), nil
	}

	var input struct {
		AutomationID string           `json:"automation_id"`
		Alias        string           `json:"alias"`
		Trigger      []map[string]any `json:"trigger"`
		Condition    []map[string]any `json:"condition"`
		Action       []map[string]any `json:"action"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Alias == "" || len(input.Trigger) == 0 || len(input.Action) == 0 {
		return toolError("alias, trigger, and action are required"), nil
	}

	automationID := input.AutomationID
	if automationID == "" {
		automationID = slugify(input.Alias)
	}

	config := map[string]any{
		"alias":   input.Alias,
		"trigger": input.Trigger,
		"action":  input.Action,
	}
	if len(input.Condition) > 0 {
		config["condition"] = input.Condition
	}

	payload, err := t.client.CreateAutomation(ctx, automationID, config)
	if err != nil {
		return toolError(err.Error()), nil
	}
	return jsonResult(payload), nil
}

// ListAutomationsTool lists configured automation entities.
type ListAutomationsTool struct {
	client *Client
}

func NewListAutomationsTool(client *Client) *ListAutomationsTool {
	return &ListAutomationsTool{client: client}
}

func (t *ListAutomationsTool) Name() string { return "list_automations" }

func (t *ListAutomationsTool) Description() string {
	return "List Home Assistant automation entities and their current state."
}

func (t *ListAutomationsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ListAutomationsTool) Execute(ctx context.Context, _ json.RawMessage) (*agent.ToolResult, error) {
	if t == nil || t.client == nil {
		return toolError("Home Assistant client not configured (enable channels.homeassistant)"), nil
	}

	payload, err := t.client.ListAutomations(ctx)
	if err != nil {
		return toolError(err.Error()), nil
	}

	var states []map[string]any
	if err := json.Unmarshal(payload, &states); err != nil {
		return toolError(fmt.Sprintf("decode states: %v", err)), nil
	}

	out := make([]map[string]any, 0, len(states))
	for _, item := range states {
		entityID, ok := item["entity_id"].(string)
		if !ok || !hasDomain(entityID, "automation") {
			continue
		}
		out = append(out, item)
	}

	encoded, err := json.MarshalIndent(map[string]any{
		"automations": out,
		"total":       len(out),
	}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(encoded)}, nil
}

// TriggerAutomationTool fires an automation immediately.
type TriggerAutomationTool struct {
	client *Client
}

func NewTriggerAutomationTool(client *Client) *TriggerAutomationTool {
	return &TriggerAutomationTool{client: client}
}

func (t *TriggerAutomationTool) Name() string { return "trigger_automation" }

func (t *TriggerAutomationTool) Description() string {
	return "Trigger a Home Assistant automation immediately, bypassing its configured triggers."
}

func (t *TriggerAutomationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "entity_id": { "type": "string", "description": "Automation entity_id (e.g., automation.good_morning)" }
  },
  "required": ["entity_id"]
}`)
}

func (t *TriggerAutomationTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t == nil || t.client == nil {
		return toolError("Home Assistant client not configured (enable channels.homeassistant)"), nil
	}

	var input struct {
		EntityID string `json:"entity_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	payload, err := t.client.TriggerAutomation(ctx, input.EntityID)
	if err != nil {
		return toolError(err.Error()), nil
	}
	return jsonResult(payload), nil
}

// CreateDashboardTool creates or updates a Lovelace dashboard.
type CreateDashboardTool struct {
	client *Client
}

func NewCreateDashboardTool(client *Client) *CreateDashboardTool {
	return &CreateDashboardTool{client: client}
}

func (t *CreateDashboardTool) Name() string { return "create_dashboard" }

func (t *CreateDashboardTool) Description() string {
	return "Create or update a Home Assistant Lovelace dashboard from a list of cards."
}

func (t *CreateDashboardTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "dashboard_id": { "type": "string", "description": "Unique ID for the dashboard. Generated from title if omitted." },
    "title": { "type": "string", "description": "Dashboard title." },
    "views": { "type": "array", "items": { "type": "object", "additionalProperties": true }, "description": "Lovelace view configs (each with title + cards)." }
  },
  "required": ["title", "views"]
}`)
}

func (t *CreateDashboardTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t == nil || t.client == nil {
		return toolError("Home Assistant client not configured (enable channels.homeassistant)"), nil
	}

	var input struct {
		DashboardID string           `json:"dashboard_id"`
		Title       string           `json:"title"`
		Views       []map[string]any `json:"views"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Title == "" || len(input.Views) == 0 {
		return toolError("title and views are required"), nil
	}

	dashboardID := input.DashboardID
	if dashboardID == "" {
		dashboardID = slugify(input.Title)
	}

	config := map[string]any{
		"title": input.Title,
		"views": input.Views,
	}

	payload, err := t.client.CreateDashboard(ctx, dashboardID, config)
	if err != nil {
		return toolError(err.Error()), nil
	}
	return jsonResult(payload), nil
}

func hasDomain(entityID, domain string) bool {
	prefix := domain + "."
	return len(entityID) > len(prefix) && entityID[:len(prefix)] == prefix
}

func slugify(s string) string {
	out := make([]rune, 0, len(s))
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r-'A'+'a')
			lastDash = false
		default:
			if !lastDash && len(out) > 0 {
				out = append(out, '_')
				lastDash = true
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '_' {
		out = out[:len(out)-1]
	}
	return string(out)
}
