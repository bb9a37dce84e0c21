// Package config layers configuration the way the teacher's store and
// controller packages are wired together in cmd/operative/main.go, but
// generalizes the teacher's flat os.Getenv/flag reads into the
// global-file + per-project-overlay + environment scheme spec.md §6
// needs: global config (grounded on jaivial-cli-agent's config.go
// yaml.v3 load/save pair) layered with a per-project overlay, then
// environment variables layered on top via envconfig (grounded on
// scalytics-KafClaw's internal/config, which processes every nested
// section through envconfig.Process).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// OpenAIConfig names the default chat-completion endpoint (spec.md §6's
// OPENAI_API_KEY/OPENAI_BASE_URL/MODEL environment variables).
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// LogConfig selects the slog handler and level.
type LogConfig struct {
	Format string `yaml:"format,omitempty"` // "pretty" | "json"
	Level  string `yaml:"level,omitempty"`
}

// ProviderConfig is one named LLM provider credential/endpoint,
// addressable by workloads (spec.md §9 supplemented provider/workload
// split; POST /api/config/rename's "provider" entity).
type ProviderConfig struct {
	Type    string `yaml:"type"`
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// WorkloadConfig binds one workload (chat/summarize/title) to a named
// provider and model (POST /api/config/rename's "workload" entity).
type WorkloadConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// SandboxConfig selects an optional Docker-isolated backend for
// run_command; an empty Image means "run locally" (spec.md never
// mandates container isolation, but the teacher's own run_command
// equivalent always sandboxes, so a project can opt into the same
// isolation by naming an image here).
type SandboxConfig struct {
	Image string `yaml:"image,omitempty"`
	// DefaultCommandTimeoutSeconds bounds a run_command call that omits
	// its own timeout_seconds argument (spec.md §5: "run_command timeout
	// [is a] configurable default"); zero falls back to
	// tools.defaultCommandTimeout.
	DefaultCommandTimeoutSeconds int `yaml:"default_command_timeout_seconds,omitempty"`
}

// LLMConfig controls behavior shared by every provider/workload rather
// than one provider's credentials (spec.md §5: "LLM calls have a
// configurable read-deadline per chunk").
type LLMConfig struct {
	// ChunkTimeoutSeconds bounds how long a single Stream.Next() call
	// may block waiting on the next chunk before the turn fails with a
	// timeout error; zero disables the deadline.
	ChunkTimeoutSeconds int `yaml:"chunk_timeout_seconds,omitempty"`
}

// Config is the full layered configuration document.
type Config struct {
	OpenAI         OpenAIConfig   `yaml:"openai"`
	EmbeddingModel string         `yaml:"embedding_model,omitempty"`
	Server         ServerConfig   `yaml:"server"`
	Log            LogConfig      `yaml:"log"`
	Sandbox        SandboxConfig  `yaml:"sandbox"`
	LLM            LLMConfig      `yaml:"llm"`

	Providers map[string]ProviderConfig `yaml:"providers,omitempty"`
	Workloads map[string]WorkloadConfig `yaml:"workloads,omitempty"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 7713},
		Log:    LogConfig{Format: "pretty", Level: "info"},
		LLM:    LLMConfig{ChunkTimeoutSeconds: 60},
	}
}

// GlobalPath returns ~/.config/agentsmithy/config.yaml, honoring
// AGENTSMITHY_CONFIG_DIR the way spec.md §6 names it.
func GlobalPath() (string, error) {
	if dir := os.Getenv("AGENTSMITHY_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "config.yaml"), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "agentsmithy", "config.yaml"), nil
}

// ProjectPath returns <workdir>/.agentsmithy/config.yaml.
func ProjectPath(workdir string) string {
	return filepath.Join(workdir, ".agentsmithy", "config.yaml")
}

// Load builds the layered configuration: defaults, the global file (if
// present), the per-project overlay (if present), then environment
// variables on top of all of it.
func Load(workdir string) (Config, error) {
	cfg := Default()

	globalPath, err := GlobalPath()
	if err != nil {
		return cfg, err
	}
	if err := mergeFile(&cfg, globalPath); err != nil {
		return cfg, fmt.Errorf("load global config: %w", err)
	}
	if err := mergeFile(&cfg, ProjectPath(workdir)); err != nil {
		return cfg, fmt.Errorf("load project config: %w", err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnv layers spec.md §6's named environment variables over cfg,
// field by field since their exact flat names (OPENAI_API_KEY, MODEL,
// SERVER_PORT, ...) don't fit envconfig's prefix-joining convention —
// the same way the teacher's pack sibling scalytics-KafClaw special-
// cases OPENAI_API_KEY with a direct os.Getenv read instead of routing
// it through envconfig. The dynamically-named provider map, which has
// no fixed field set spec.md could name up front, is instead processed
// per-entry through envconfig.Process with a derived prefix, matching
// scalytics-KafClaw's per-section envconfig.Process calls.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AGENTSMITHY_SANDBOX_IMAGE"); v != "" {
		cfg.Sandbox.Image = v
	}
	if v := os.Getenv("AGENTSMITHY_SANDBOX_DEFAULT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sandbox.DefaultCommandTimeoutSeconds = n
		}
	}
	if v := os.Getenv("AGENTSMITHY_LLM_CHUNK_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.ChunkTimeoutSeconds = n
		}
	}
	for name, p := range cfg.Providers {
		prefix := "AGENTSMITHY_PROVIDER_" + strings.ToUpper(name)
		_ = envconfig.Process(prefix, &p)
		cfg.Providers[name] = p
	}
}

// Validate checks cfg for structural problems worth surfacing in
// status.json's config_errors (spec.md §4.7 step 5: "validate; write
// config_valid/config_errors"). A missing API key is deliberately not
// an error here — spec.md: "Missing API key does not block startup."
func Validate(cfg Config) []string {
	var errs []string
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port out of range: %d", cfg.Server.Port))
	}
	if cfg.Log.Format != "" && cfg.Log.Format != "pretty" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("log.format must be 'pretty' or 'json', got %q", cfg.Log.Format))
	}
	for name, w := range cfg.Workloads {
		if w.Provider == "" {
			errs = append(errs, fmt.Sprintf("workload %q has no provider", name))
			continue
		}
		if _, ok := cfg.Providers[w.Provider]; !ok {
			errs = append(errs, fmt.Sprintf("workload %q references unknown provider %q", name, w.Provider))
		}
	}
	return errs
}
