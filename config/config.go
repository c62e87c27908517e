// Package config loads Encapure's runtime configuration from environment
// variables (and a local .env file, if present), following the same
// caarlos0/env struct-tag pattern knoguchi-rag's internal/config uses.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/dannyavrs/encapure/inference"
)

// Mode selects which inference.Preset ENCAPURE_MODE resolves to.
type Mode string

const (
	ModeSingle     Mode = "single"
	ModeConcurrent Mode = "concurrent"
	ModeCustom     Mode = "custom"
)

// Config holds every enumerated key from spec.md §6 "Configuration", plus
// the HTTP/MCP surface settings SPEC_FULL.md adds.
type Config struct {
	Mode Mode `env:"ENCAPURE_MODE" envDefault:"concurrent"`

	PoolSize     int `env:"POOL_SIZE"`
	Permits      int `env:"PERMITS"`
	IntraThreads int `env:"INTRA_THREADS"`

	RetrievalCandidates int `env:"RETRIEVAL_CANDIDATES" envDefault:"20"`
	MaxSeqLength        int `env:"MAX_SEQ_LENGTH" envDefault:"1024"`
	BatchSize           int `env:"BATCH_SIZE" envDefault:"32"`

	EmbeddingsCachePath string        `env:"EMBEDDINGS_CACHE_PATH" envDefault:"./encapure-cache.bin"`
	ShutdownTimeoutSec  int           `env:"SHUTDOWN_TIMEOUT_SEC" envDefault:"30"`
	InferenceTimeout    time.Duration `env:"INFERENCE_TIMEOUT" envDefault:"30s"`

	CatalogPath string `env:"CATALOG_PATH" envDefault:"./catalog.json"`
	VocabPath   string `env:"VOCAB_PATH" envDefault:"./vocab.txt"`

	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	MCPEnabled bool   `env:"MCP_ENABLED" envDefault:"false"`
	MCPAddr    string `env:"MCP_ADDR" envDefault:":8081"`
}

// Load reads a local .env file (if present — failure to find one is not an
// error) and then parses environment variables into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

// ShutdownTimeout returns ShutdownTimeoutSec as a time.Duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// InferenceConfig resolves the Mode and any explicitly set POOL_SIZE /
// PERMITS / INTRA_THREADS overrides into an inference.Config, following
// spec.md §4.1's three named presets. cores is the physical core count
// (pass inference.NumCPU() in production).
func (c *Config) InferenceConfig(cores int) inference.Config {
	preset := inference.PresetHighThroughput
	switch c.Mode {
	case ModeSingle:
		preset = inference.PresetSingleRequest
	case ModeCustom:
		preset = inference.PresetCustom
	case ModeConcurrent, "":
		preset = inference.PresetHighThroughput
	}

	custom := inference.Config{
		Sessions:       c.PoolSize,
		Permits:        c.Permits,
		IntraOpThreads: c.IntraThreads,
	}
	resolved := inference.ResolvePreset(preset, cores, custom)

	// Explicit overrides win even outside the "custom" mode, so an
	// operator can nudge one dial (e.g. POOL_SIZE) without abandoning a
	// named preset for the other two.
	if c.PoolSize > 0 {
		resolved.Sessions = c.PoolSize
	}
	if c.Permits > 0 {
		resolved.Permits = c.Permits
	}
	if c.IntraThreads > 0 {
		resolved.IntraOpThreads = c.IntraThreads
	}
	return resolved
}
