package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel          = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens      = 2048
	DefaultTimeoutSeconds = 8

	DefaultProfileFetchK        = 5
	DefaultContextBudget        = 3500
	DefaultEvalItemCap          = 500
	DefaultFinalItemCap         = 700
	DefaultSummaryExcerptCap    = 500
	DefaultTranscriptExcerptCap = 800
	DefaultSnippetOverhead      = 64
	DefaultHistoryTurns         = 4
	DefaultTopicPicks           = 3
	DefaultTopicProposals       = 2

	DefaultProfilesFolder    = "profiles"
	DefaultSummariesFolder   = "summaries"
	DefaultTranscriptsFolder = "transcripts"
	DefaultPersonaNote       = "persona.md"

	DefaultSweepSchedule   = "0 30 3 * * *"
	DefaultCompactSchedule = "0 0 4 * * 1"
)

type Config struct {
	Vault     VaultConfig     `json:"vault"`
	Provider  ProviderConfig  `json:"provider"`
	Retrieval RetrievalConfig `json:"retrieval"`
	Schedule  ScheduleConfig  `json:"schedule"`
	DataDir   string          `json:"dataDir,omitempty"`
}

type VaultConfig struct {
	Path              string `json:"path"`
	ProfilesFolder    string `json:"profilesFolder,omitempty"`
	SummariesFolder   string `json:"summariesFolder,omitempty"`
	TranscriptsFolder string `json:"transcriptsFolder,omitempty"`
	PersonaNote       string `json:"personaNote,omitempty"`
	Watch             bool   `json:"watch"`
}

type ProviderConfig struct {
	Type           string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey         string `json:"apiKey"`
	BaseURL        string `json:"baseUrl,omitempty"`
	Model          string `json:"model,omitempty"`
	MaxTokens      int    `json:"maxTokens,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

type RetrievalConfig struct {
	ProfileFetchK int `json:"profileFetchK,omitempty"`
	ContextBudget int `json:"contextBudget,omitempty"`
	HistoryTurns  int `json:"historyTurns,omitempty"`
}

type ScheduleConfig struct {
	Enabled bool   `json:"enabled"`
	Sweep   string `json:"sweep,omitempty"`
	Compact string `json:"compact,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Vault: VaultConfig{
			Path:              filepath.Join(home, ".mnema", "vault"),
			ProfilesFolder:    DefaultProfilesFolder,
			SummariesFolder:   DefaultSummariesFolder,
			TranscriptsFolder: DefaultTranscriptsFolder,
			PersonaNote:       DefaultPersonaNote,
			Watch:             true,
		},
		Provider: ProviderConfig{
			Model:          DefaultModel,
			MaxTokens:      DefaultMaxTokens,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Retrieval: RetrievalConfig{
			ProfileFetchK: DefaultProfileFetchK,
			ContextBudget: DefaultContextBudget,
			HistoryTurns:  DefaultHistoryTurns,
		},
		Schedule: ScheduleConfig{
			Enabled: true,
			Sweep:   DefaultSweepSchedule,
			Compact: DefaultCompactSchedule,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".mnema")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	return loadConfigFrom(ConfigPath())
}

func loadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if path := os.Getenv("MNEMA_VAULT"); path != "" {
		cfg.Vault.Path = path
	}
	if dir := os.Getenv("MNEMA_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if key := os.Getenv("MNEMA_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("MNEMA_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("MNEMA_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if timeout := os.Getenv("MNEMA_TIMEOUT_SECONDS"); timeout != "" {
		if parsed, err := strconv.Atoi(timeout); err == nil && parsed > 0 {
			cfg.Provider.TimeoutSeconds = parsed
		}
	}

	cfg.normalize()
	return cfg, nil
}

// normalize backfills zero values so callers never re-check defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Vault.Path == "" {
		c.Vault.Path = def.Vault.Path
	}
	if c.Vault.ProfilesFolder == "" {
		c.Vault.ProfilesFolder = DefaultProfilesFolder
	}
	if c.Vault.SummariesFolder == "" {
		c.Vault.SummariesFolder = DefaultSummariesFolder
	}
	if c.Vault.TranscriptsFolder == "" {
		c.Vault.TranscriptsFolder = DefaultTranscriptsFolder
	}
	if c.Vault.PersonaNote == "" {
		c.Vault.PersonaNote = DefaultPersonaNote
	}
	if c.Provider.Model == "" {
		c.Provider.Model = DefaultModel
	}
	if c.Provider.MaxTokens <= 0 {
		c.Provider.MaxTokens = DefaultMaxTokens
	}
	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Retrieval.ProfileFetchK <= 0 {
		c.Retrieval.ProfileFetchK = DefaultProfileFetchK
	}
	if c.Retrieval.ContextBudget <= 0 {
		c.Retrieval.ContextBudget = DefaultContextBudget
	}
	if c.Retrieval.HistoryTurns <= 0 {
		c.Retrieval.HistoryTurns = DefaultHistoryTurns
	}
	if c.Schedule.Sweep == "" {
		c.Schedule.Sweep = DefaultSweepSchedule
	}
	if c.Schedule.Compact == "" {
		c.Schedule.Compact = DefaultCompactSchedule
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(ConfigDir(), "data")
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
