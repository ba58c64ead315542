package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/oriane-labs/hearth/pkg/models"
)

// MemorySearcher is the subset of memory.Manager needed to recall long-term
// memories for a context block.
type MemorySearcher interface {
	Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
}

// EntitySnapshot is a single live entity state line for the Entities section.
type EntitySnapshot struct {
	FriendlyName string
	EntityID     string
	State        string
	Area         string
}

// EntityLookup supplies live entity state relevant to a query. Implemented by
// a home-assistant-backed entity index; optional — when nil the Entities
// section is simply omitted, matching §6.4's "empty sections are omitted".
type EntityLookup interface {
	RelevantEntities(ctx context.Context, query string, limit int) ([]EntitySnapshot, error)
}

// BlockConfig configures assembly of the three-section context block.
type BlockConfig struct {
	MaxChunks       int
	MaxMemories     int
	MaxEntities     int
	MemoryScope     models.MemoryScope
	MemoryThreshold float32
}

// DefaultBlockConfig mirrors spec's default retrieval budgets (k=8 entity,
// k=6 chunk, k=5 memory), capped here to the chunk/memory maxima.
func DefaultBlockConfig() BlockConfig {
	return BlockConfig{
		MaxChunks:       6,
		MaxMemories:     5,
		MaxEntities:     8,
		MemoryScope:     models.ScopeGlobal,
		MemoryThreshold: 0.5,
	}
}

// BlockBuilder assembles the Context Block (§6.4): a single system message
// with distinct Entities / Past conversations / Long-term memories sections.
// Each section is independently optional and omitted when its search turns
// up nothing; if all three are empty, Build returns "".
type BlockBuilder struct {
	injector *Injector
	memory   MemorySearcher
	entities EntityLookup
	config   BlockConfig
}

// NewBlockBuilder creates a context block builder. Any of injector, memory,
// or entities may be nil, in which case that section is always omitted.
func NewBlockBuilder(injector *Injector, memory MemorySearcher, entities EntityLookup, cfg BlockConfig) *BlockBuilder {
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = 6
	}
	if cfg.MaxMemories <= 0 {
		cfg.MaxMemories = 5
	}
	if cfg.MaxEntities <= 0 {
		cfg.MaxEntities = 8
	}
	if cfg.MemoryScope == "" {
		cfg.MemoryScope = models.ScopeGlobal
	}
	return &BlockBuilder{injector: injector, memory: memory, entities: entities, config: cfg}
}

// Build assembles the Context Block for a query. scopeID scopes both the RAG
// chunk search and (when MemoryScope is session/channel/agent) the memory
// search. Returns "" if every section comes up empty.
func (b *BlockBuilder) Build(ctx context.Context, query, scopeID string) string {
	entitiesSection := b.buildEntitiesSection(ctx, query)
	pastSection := b.buildPastConversationsSection(ctx, query, scopeID)
	memorySection := b.buildMemoriesSection(ctx, query, scopeID)

	if entitiesSection == "" && pastSection == "" && memorySection == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Relevant context\n")
	if entitiesSection != "" {
		sb.WriteString("### Entities\n")
		sb.WriteString(entitiesSection)
	}
	if pastSection != "" {
		sb.WriteString("### Past conversations\n")
		sb.WriteString(pastSection)
	}
	if memorySection != "" {
		sb.WriteString("### Long-term memories\n")
		sb.WriteString(memorySection)
	}
	return sb.String()
}

func (b *BlockBuilder) buildEntitiesSection(ctx context.Context, query string) string {
	if b.entities == nil {
		return ""
	}
	snapshots, err := b.entities.RelevantEntities(ctx, query, b.config.MaxEntities)
	if err != nil || len(snapshots) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, e := range snapshots {
		name := e.FriendlyName
		if name == "" {
			name = e.EntityID
		}
		sb.WriteString(fmt.Sprintf("- %s (%s) — state=%s, area=%s\n", name, e.EntityID, e.State, e.Area))
	}
	return sb.String()
}

func (b *BlockBuilder) buildPastConversationsSection(ctx context.Context, query, scopeID string) string {
	if b.injector == nil {
		return ""
	}
	result, err := b.injector.Inject(ctx, query, scopeID)
	if err != nil || result == nil || len(result.Chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, chunk := range result.Chunks {
		sessionID := chunk.Metadata.SessionID
		if sessionID == "" {
			sessionID = chunk.DocumentID
		}
		sb.WriteString(fmt.Sprintf("- [session %s, %s] %s\n",
			truncateID(sessionID, 8),
			chunk.CreatedAt.Format("2006-01-02T15:04:05Z"),
			strings.TrimSpace(chunk.Content)))
	}
	return sb.String()
}

func (b *BlockBuilder) buildMemoriesSection(ctx context.Context, query, scopeID string) string {
	if b.memory == nil {
		return ""
	}
	resp, err := b.memory.Search(ctx, &models.SearchRequest{
		Query:     query,
		Scope:     b.config.MemoryScope,
		ScopeID:   scopeID,
		Limit:     b.config.MaxMemories,
		Threshold: b.config.MemoryThreshold,
	})
	if err != nil || resp == nil || len(resp.Results) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, r := range resp.Results {
		if r == nil || r.Entry == nil {
			continue
		}
		category := "general"
		if len(r.Entry.Metadata.Tags) > 0 {
			category = r.Entry.Metadata.Tags[0]
		}
		sb.WriteString(fmt.Sprintf("- [%s, importance=%d] %s\n", category, r.Entry.Importance, strings.TrimSpace(r.Entry.Content)))
	}
	return sb.String()
}

func truncateID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
