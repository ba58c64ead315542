package vectormemory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oriane-labs/hearth/internal/agent"
)

// Deleter defines the subset of memory manager behavior used by the forget tool.
type Deleter interface {
	Delete(ctx context.Context, ids []string) error
}

// ForgetTool removes a durable memory by ID.
type ForgetTool struct {
	manager Deleter
}

// NewForgetTool creates a new "forget" tool.
func NewForgetTool(manager Deleter) *ForgetTool {
	return &ForgetTool{manager: manager}
}

// Name returns the tool name.
func (t *ForgetTool) Name() string {
	return "forget"
}

// Description describes the tool.
func (t *ForgetTool) Description() string {
	return "Deletes a durable memory by ID. Use recall first to find the memory_id."
}

// Schema defines the tool parameters.
func (t *ForgetTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "memory_id": {"type": "string", "description": "ID of the memory to delete"}
  },
  "required": ["memory_id"]
}`)
}

type forgetInput struct {
	MemoryID string `json:"memory_id"`
}

// Execute runs the forget tool.
func (t *ForgetTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.manager == nil {
		return &agent.ToolResult{Content: "vector memory is unavailable", IsError: true}, nil
	}

	var input forgetInput
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid params: %v", err), IsError: true}, nil
	}

	memoryID := strings.TrimSpace(input.MemoryID)
	if memoryID == "" {
		return &agent.ToolResult{Content: "memory_id is required", IsError: true}, nil
	}

	if err := t.manager.Delete(ctx, []string{memoryID}); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to delete memory: %v", err), IsError: true}, nil
	}

	payload, err := json.MarshalIndent(struct {
		Deleted string `json:"deleted"`
	}{Deleted: memoryID}, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to encode response: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: string(payload)}, nil
}
