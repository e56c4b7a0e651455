// Package config loads and normalizes the engine configuration from a
// JSON5 file, applying defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

// Config is the resolved engine configuration.
type Config struct {
	Workspace   string            `json:"workspace"`
	Memory      MemoryConfig      `json:"memory"`
	Compaction  CompactionConfig  `json:"compaction"`
	Context     ContextConfig     `json:"context"`
	Embeddings  EmbeddingsConfig  `json:"embeddings"`
	Summarizer  SummarizerConfig  `json:"summarizer"`
	Postgres    PostgresConfig    `json:"postgres"`
	Maintenance MaintenanceConfig `json:"maintenance"`
}

// MemoryConfig tunes chunking, fusion weights and temporal decay.
type MemoryConfig struct {
	DBPath       string  `json:"dbPath"`
	ChunkChars   int     `json:"chunkChars"`
	ChunkOverlap int     `json:"chunkOverlap"`
	VectorWeight float64 `json:"vectorWeight"`
	TextWeight   float64 `json:"textWeight"`
	HalfLifeDays float64 `json:"halfLifeDays"`
	MaxResults   int     `json:"maxResults"`
	MinScore     float64 `json:"minScore"`
}

// CompactionConfig tunes transcript compaction.
type CompactionConfig struct {
	Threshold   int `json:"threshold"`
	KeepLast    int `json:"keepLast"`
	TokenBudget int `json:"tokenBudget"`
}

// ContextConfig tunes context-block assembly.
type ContextConfig struct {
	TokenBudget    int `json:"tokenBudget"`
	RecentMessages int `json:"recentMessages"`
	MessageCharCap int `json:"messageCharCap"`
	SearchFloor    int `json:"searchFloor"`
	SearchResults  int `json:"searchResults"`
}

// EmbeddingsConfig selects the embedding backend. An empty provider
// disables vector retrieval entirely (text-only mode).
type EmbeddingsConfig struct {
	Provider          string `json:"provider"` // "openai" or ""
	Model             string `json:"model"`
	APIKey            string `json:"apiKey"`
	BaseURL           string `json:"baseUrl"`
	RequestsPerMinute int    `json:"requestsPerMinute"`
}

// SummarizerConfig selects the summarization backend.
type SummarizerConfig struct {
	Provider string `json:"provider"` // "openai" or ""
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
	BaseURL  string `json:"baseUrl"`
}

// PostgresConfig enables the managed-mode store when DSN is set.
type PostgresConfig struct {
	DSN string `json:"dsn"`
}

// MaintenanceConfig schedules the background index and compaction
// sweeps (cron expressions; empty disables a sweep).
type MaintenanceConfig struct {
	IndexSchedule   string `json:"indexSchedule"`
	CompactSchedule string `json:"compactSchedule"`
}

// Load reads a JSON5 config file and applies defaults. A missing file
// yields the default config for the current directory.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Normalize()
	return cfg, nil
}

// Normalize fills unset fields with defaults and environment fallbacks.
func (c *Config) Normalize() {
	if c.Workspace == "" {
		c.Workspace = "."
	}
	if abs, err := filepath.Abs(c.Workspace); err == nil {
		c.Workspace = abs
	}

	if c.Memory.DBPath == "" {
		c.Memory.DBPath = filepath.Join(c.Workspace, "memory.db")
	}
	if c.Memory.ChunkChars <= 0 {
		c.Memory.ChunkChars = 1600
	}
	if c.Memory.ChunkOverlap <= 0 {
		c.Memory.ChunkOverlap = 320
	}
	if c.Memory.VectorWeight == 0 && c.Memory.TextWeight == 0 {
		c.Memory.VectorWeight = 0.7
		c.Memory.TextWeight = 0.3
	}
	if c.Memory.HalfLifeDays == 0 {
		c.Memory.HalfLifeDays = 30
	}
	if c.Memory.MaxResults <= 0 {
		c.Memory.MaxResults = 6
	}

	if c.Compaction.Threshold <= 0 {
		c.Compaction.Threshold = 100
	}
	if c.Compaction.KeepLast <= 0 {
		c.Compaction.KeepLast = 20
	}

	if c.Context.TokenBudget <= 0 {
		c.Context.TokenBudget = 2000
	}
	if c.Context.RecentMessages <= 0 {
		c.Context.RecentMessages = 10
	}
	if c.Context.MessageCharCap <= 0 {
		c.Context.MessageCharCap = 500
	}
	if c.Context.SearchFloor <= 0 {
		c.Context.SearchFloor = 200
	}
	if c.Context.SearchResults <= 0 {
		c.Context.SearchResults = 6
	}

	if c.Embeddings.APIKey == "" {
		c.Embeddings.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Summarizer.APIKey == "" {
		c.Summarizer.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}
