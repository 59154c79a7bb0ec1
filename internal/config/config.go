package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for docchat.
type Config struct {
	General      GeneralConfig    `json:"general"`
	Providers    []ProviderConfig `json:"providers"`
	Conversation ConvConfig       `json:"conversation"`
	Query        QueryConfig      `json:"query"`
	Citations    CitationConfig   `json:"citations"`
	Storage      StorageConfig    `json:"storage"`
	Metrics      MetricsConfig    `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"`
}

// ProviderConfig is one entry in the provider failover chain, tried in list
// order.
type ProviderConfig struct {
	Name    string `json:"name"`
	APIBase string `json:"apiBase,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
	Model   string `json:"model,omitempty"`
}

type ConvConfig struct {
	MaxHistory    int `json:"maxHistory"`
	MaxTokens     int `json:"maxTokens"`
	CacheCapacity int `json:"cacheCapacity"`
	EvictBatch    int `json:"evictBatch"`
}

type QueryConfig struct {
	DuplicateThreshold float64 `json:"duplicateThreshold"`
	ContextBudget      int     `json:"contextBudget"`
	LexiconPath        string  `json:"lexiconPath,omitempty"`
}

type CitationConfig struct {
	FuzzyThreshold float64 `json:"fuzzyThreshold"`
}

type StorageConfig struct {
	Backend      string `json:"backend"` // "memory" | "sqlite"
	DBPath       string `json:"dbPath,omitempty"`
	TTLDays      int    `json:"ttlDays"`
	ChunkSize    int    `json:"chunkSize"`
	ChunkOverlap int    `json:"chunkOverlap"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

// DefaultConfigDir returns the default config directory (~/.docchat).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docchat"
	}
	return filepath.Join(home, ".docchat")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Storage.DBPath = ExpandPath(cfg.Storage.DBPath)
	cfg.Query.LexiconPath = ExpandPath(cfg.Query.LexiconPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Conversation.MaxHistory < 1 {
		errs = append(errs, "conversation.maxHistory must be >= 1")
	}
	if cfg.Conversation.MaxTokens < 1 {
		errs = append(errs, "conversation.maxTokens must be >= 1")
	}
	if cfg.Conversation.CacheCapacity < 1 {
		errs = append(errs, "conversation.cacheCapacity must be >= 1")
	}
	if cfg.Conversation.EvictBatch < 1 || cfg.Conversation.EvictBatch > cfg.Conversation.CacheCapacity {
		errs = append(errs, "conversation.evictBatch must be between 1 and cacheCapacity")
	}

	if cfg.Query.DuplicateThreshold < 0 || cfg.Query.DuplicateThreshold > 1 {
		errs = append(errs, "query.duplicateThreshold must be between 0 and 1")
	}
	if cfg.Citations.FuzzyThreshold < 0 || cfg.Citations.FuzzyThreshold > 1 {
		errs = append(errs, "citations.fuzzyThreshold must be between 0 and 1")
	}

	switch cfg.Storage.Backend {
	case "memory", "sqlite":
		// valid
	default:
		errs = append(errs, "storage.backend must be one of: memory, sqlite")
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.dbPath is required for the sqlite backend")
	}
	if cfg.Storage.TTLDays < 0 {
		errs = append(errs, "storage.ttlDays must be >= 0")
	}
	if cfg.Storage.ChunkSize < 1 {
		errs = append(errs, "storage.chunkSize must be >= 1")
	}
	if cfg.Storage.ChunkOverlap < 0 || cfg.Storage.ChunkOverlap >= cfg.Storage.ChunkSize {
		errs = append(errs, "storage.chunkOverlap must be between 0 and chunkSize-1")
	}

	if len(cfg.Providers) == 0 {
		errs = append(errs, "at least one provider must be configured")
	}
	for i, p := range cfg.Providers {
		switch p.Name {
		case "ollama", "openai":
			// valid
		default:
			errs = append(errs, fmt.Sprintf("providers[%d].name must be one of: ollama, openai", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
