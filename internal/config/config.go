// Package config loads the runtime configuration for the brutalist server.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then BRUTALIST_* environment variables. The result is validated
// once; invalid values are reported together.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the variable that points at a YAML config file.
const EnvConfigFile = "BRUTALIST_CONFIG"

// Config holds every tunable of the pipeline.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Agents   AgentsConfig   `yaml:"agents"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Sessions SessionsConfig `yaml:"sessions"`

	// DataDir holds the history database and, by default, the log file.
	DataDir string `yaml:"data_dir"`
	// LogFile enables a rotated log file in addition to stderr.
	LogFile string `yaml:"log_file"`
	// HistoryEnabled turns the SQLite run journal on or off.
	HistoryEnabled bool `yaml:"history_enabled"`
}

// CacheConfig governs the response cache.
type CacheConfig struct {
	TTLHours             float64 `yaml:"ttl_hours"`
	MaxEntries           int     `yaml:"max_entries"`
	MaxTotalSize         int64   `yaml:"max_total_size"`
	MaxEntrySize         int64   `yaml:"max_entry_size"`
	CompressionThreshold int64   `yaml:"compression_threshold"`
	SweepIntervalMinutes int     `yaml:"sweep_interval_minutes"`
}

// AgentsConfig governs subprocess execution.
type AgentsConfig struct {
	TimeoutMs           int64 `yaml:"timeout_ms"`
	DetectTimeoutMs     int64 `yaml:"detect_timeout_ms"`
	MaxConcurrent       int   `yaml:"max_concurrent"`
	MaxDebateRounds     int   `yaml:"max_debate_rounds"`
	DefaultDebateRounds int   `yaml:"default_debate_rounds"`
	KillGraceMs         int64 `yaml:"kill_grace_ms"`
}

// ChunkingConfig governs response pagination.
type ChunkingConfig struct {
	ChunkTokens   int `yaml:"chunk_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
	CharsPerToken int `yaml:"chars_per_token"`
	MinPageSize   int `yaml:"min_page_size"`
	MaxPageSize   int `yaml:"max_page_size"`
}

// SessionsConfig governs the in-memory session tracker.
type SessionsConfig struct {
	MaxSessions    int `yaml:"max_sessions"`
	IdleTTLMinutes int `yaml:"idle_ttl_minutes"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Cache: CacheConfig{
			TTLHours:             2,
			MaxEntries:           100,
			MaxTotalSize:         100 * 1024 * 1024,
			MaxEntrySize:         10 * 1024 * 1024,
			CompressionThreshold: 64 * 1024,
			SweepIntervalMinutes: 10,
		},
		Agents: AgentsConfig{
			TimeoutMs:           30 * 60 * 1000,
			DetectTimeoutMs:     5000,
			MaxConcurrent:       3,
			MaxDebateRounds:     5,
			DefaultDebateRounds: 2,
			KillGraceMs:         3000,
		},
		Chunking: ChunkingConfig{
			ChunkTokens:   22000,
			OverlapTokens: 200,
			CharsPerToken: 4,
			MinPageSize:   1000,
			MaxPageSize:   100000,
		},
		Sessions: SessionsConfig{
			MaxSessions:    1000,
			IdleTTLMinutes: 60,
		},
		DataDir:        filepath.Join(home, ".brutalist"),
		HistoryEnabled: true,
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// $BRUTALIST_CONFIG when path is empty), and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config YAML %s: %w", path, err)
	}
	return nil
}

// lookupFunc matches os.LookupEnv so tests can supply a fixed environment.
type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var problems []string

	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := cast.ToIntE(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := cast.ToInt64E(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			f, err := cast.ToFloat64E(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			b, err := cast.ToBoolE(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	setFloat("BRUTALIST_CACHE_TTL_HOURS", &c.Cache.TTLHours)
	setInt("BRUTALIST_MAX_CACHE_ENTRIES", &c.Cache.MaxEntries)
	setInt64("BRUTALIST_MAX_CACHE_SIZE", &c.Cache.MaxTotalSize)
	setInt64("BRUTALIST_MAX_ENTRY_SIZE", &c.Cache.MaxEntrySize)
	setInt64("BRUTALIST_COMPRESSION_THRESHOLD", &c.Cache.CompressionThreshold)
	setInt64("BRUTALIST_TIMEOUT_MS", &c.Agents.TimeoutMs)
	setInt("BRUTALIST_MAX_CONCURRENT", &c.Agents.MaxConcurrent)
	setInt("BRUTALIST_MAX_DEBATE_ROUNDS", &c.Agents.MaxDebateRounds)
	setInt("BRUTALIST_CHUNK_TOKENS", &c.Chunking.ChunkTokens)
	setInt("BRUTALIST_CHUNK_OVERLAP_TOKENS", &c.Chunking.OverlapTokens)
	setInt("BRUTALIST_MAX_SESSIONS", &c.Sessions.MaxSessions)
	setString("BRUTALIST_DATA_DIR", &c.DataDir)
	setString("BRUTALIST_LOG_FILE", &c.LogFile)
	setBool("BRUTALIST_HISTORY", &c.HistoryEnabled)

	if len(problems) > 0 {
		return domain.Errorf(domain.ErrConfigInvalid, "%s: %v", domain.ErrConfigInvalid.Message, problems)
	}
	return nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Cache.TTLHours <= 0 {
		problems = append(problems, "cache.ttl_hours must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		problems = append(problems, "cache.max_entries must be positive")
	}
	if c.Cache.MaxEntrySize <= 0 {
		problems = append(problems, "cache.max_entry_size must be positive")
	}
	if c.Cache.MaxTotalSize < c.Cache.MaxEntrySize {
		problems = append(problems, "cache.max_total_size must be at least cache.max_entry_size")
	}
	if c.Cache.CompressionThreshold < 0 {
		problems = append(problems, "cache.compression_threshold must not be negative")
	}
	if c.Agents.TimeoutMs <= 0 {
		problems = append(problems, "agents.timeout_ms must be positive")
	}
	if c.Agents.DetectTimeoutMs <= 0 {
		problems = append(problems, "agents.detect_timeout_ms must be positive")
	}
	if c.Agents.MaxConcurrent <= 0 {
		problems = append(problems, "agents.max_concurrent must be positive")
	}
	if c.Agents.MaxDebateRounds <= 0 {
		problems = append(problems, "agents.max_debate_rounds must be positive")
	}
	if c.Chunking.CharsPerToken <= 0 {
		problems = append(problems, "chunking.chars_per_token must be positive")
	}
	if c.Chunking.ChunkTokens <= 0 {
		problems = append(problems, "chunking.chunk_tokens must be positive")
	}
	if c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens*2 >= c.Chunking.ChunkTokens {
		problems = append(problems, "chunking.overlap_tokens must be non-negative and less than half of chunk_tokens")
	}
	if c.Chunking.MinPageSize <= 0 || c.Chunking.MaxPageSize < c.Chunking.MinPageSize {
		problems = append(problems, "chunking page size bounds are inconsistent")
	}
	if c.Sessions.MaxSessions <= 0 {
		problems = append(problems, "sessions.max_sessions must be positive")
	}

	if len(problems) > 0 {
		return domain.Errorf(domain.ErrConfigInvalid, "%s: %v", domain.ErrConfigInvalid.Message, problems)
	}
	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours * float64(time.Hour))
}

// AgentTimeout returns the per-subprocess timeout.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agents.TimeoutMs) * time.Millisecond
}

// DetectTimeout returns the timeout for version probes.
func (c *Config) DetectTimeout() time.Duration {
	return time.Duration(c.Agents.DetectTimeoutMs) * time.Millisecond
}

// KillGrace returns how long a terminated process may linger.
func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.Agents.KillGraceMs) * time.Millisecond
}

// SessionIdleTTL returns how long an idle session is remembered.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.Sessions.IdleTTLMinutes) * time.Minute
}

// SweepInterval returns the cache janitor period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Cache.SweepIntervalMinutes) * time.Minute
}

// DefaultPageSize returns the default page size in characters.
func (c *Config) DefaultPageSize() int {
	return c.Chunking.ChunkTokens * c.Chunking.CharsPerToken
}
