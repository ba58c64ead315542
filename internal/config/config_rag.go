package config

// RAGConfig configures the three embedding-backed indices (entity, chunk,
// memory) that back the search_context tool and automatic context
// injection.
type RAGConfig struct {
	Enabled          bool                      `yaml:"enabled"`
	Store            RAGStoreConfig            `yaml:"store"`
	Chunking         RAGChunkingConfig         `yaml:"chunking"`
	Embeddings       RAGEmbeddingsConfig       `yaml:"embeddings"`
	Search           RAGSearchConfig           `yaml:"search"`
	ContextInjection RAGContextInjectionConfig `yaml:"context_injection"`
	Optimizer        RAGOptimizerConfig        `yaml:"optimizer"`
}

type RAGStoreConfig struct {
	Backend        string `yaml:"backend"` // "postgres" or "sqlite"
	DSN            string `yaml:"dsn"`
	UseDatabaseURL bool   `yaml:"use_database_url"`
	Dimension      int    `yaml:"dimension"`
	RunMigrations  bool   `yaml:"run_migrations"`
}

type RAGChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MinChunkSize int `yaml:"min_chunk_size"`
}

type RAGEmbeddingsConfig struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

type RAGSearchConfig struct {
	DefaultLimit     int     `yaml:"default_limit"`
	DefaultThreshold float64 `yaml:"default_threshold"`
	MaxResults       int     `yaml:"max_results"`
}

type RAGContextInjectionConfig struct {
	Enabled  bool    `yaml:"enabled"`
	MaxChunks int    `yaml:"max_chunks"`
	MaxTokens int    `yaml:"max_tokens"`
	MinScore  float64 `yaml:"min_score"`
	Scope     string  `yaml:"scope"` // "session" or "global"
}

// RAGOptimizerConfig controls the offline consolidation pass: it merges
// overlapping chunks and dedupes auto-extracted memories on a schedule
// run through the scheduler subsystem rather than inline with a turn.
type RAGOptimizerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Cron     string `yaml:"cron"`
}
