package config

import (
	"os"
	"path/filepath"
	"testing"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadLayersGlobalThenProjectThenEnv(t *testing.T) {
	dir := t.TempDir()
	configDir := filepath.Join(dir, "cfgroot")
	withEnv(t, "AGENTSMITHY_CONFIG_DIR", configDir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(globalPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(globalPath, []byte("openai:\n  model: global-model\nserver:\n  port: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	workdir := filepath.Join(dir, "work")
	projectPath := ProjectPath(workdir)
	if err := os.MkdirAll(filepath.Dir(projectPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(projectPath, []byte("openai:\n  model: project-model\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	withEnv(t, "MODEL", "env-model")

	cfg, err := Load(workdir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OpenAI.Model != "env-model" {
		t.Fatalf("expected env var to win, got %q", cfg.OpenAI.Model)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("expected global port to survive since project overlay didn't set it, got %d", cfg.Server.Port)
	}
}

func TestApplyEnvOverridesTimeouts(t *testing.T) {
	withEnv(t, "AGENTSMITHY_LLM_CHUNK_TIMEOUT_SECONDS", "90")
	withEnv(t, "AGENTSMITHY_SANDBOX_DEFAULT_TIMEOUT_SECONDS", "120")

	cfg := Default()
	applyEnv(&cfg)

	if cfg.LLM.ChunkTimeoutSeconds != 90 {
		t.Fatalf("expected chunk timeout override, got %d", cfg.LLM.ChunkTimeoutSeconds)
	}
	if cfg.Sandbox.DefaultCommandTimeoutSeconds != 120 {
		t.Fatalf("expected sandbox timeout override, got %d", cfg.Sandbox.DefaultCommandTimeoutSeconds)
	}
}

func TestValidateFlagsUnknownWorkloadProvider(t *testing.T) {
	cfg := Default()
	cfg.Providers = map[string]ProviderConfig{"openai": {Type: "openai"}}
	cfg.Workloads = map[string]WorkloadConfig{
		"chat": {Provider: "openai", Model: "gpt-5"},
		"title": {Provider: "missing", Model: "gpt-5-mini"},
	}

	errs := Validate(cfg)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one validation error, got %v", errs)
	}
}

func TestValidateAllowsMissingAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 8080
	if errs := Validate(cfg); len(errs) != 0 {
		t.Fatalf("expected no errors for a config with no API key, got %v", errs)
	}
}

func TestRenameEntityUpdatesWorkloadReferences(t *testing.T) {
	cfg := Default()
	cfg.Providers = map[string]ProviderConfig{"openai": {Type: "openai"}}
	cfg.Workloads = map[string]WorkloadConfig{
		"chat":  {Provider: "openai", Model: "gpt-5"},
		"title": {Provider: "openai", Model: "gpt-5-mini"},
	}

	refs, err := RenameEntity(&cfg, "provider", "openai", "primary")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected both workloads updated, got %v", refs)
	}
	if _, exists := cfg.Providers["openai"]; exists {
		t.Fatal("old provider name should be gone")
	}
	if cfg.Workloads["chat"].Provider != "primary" || cfg.Workloads["title"].Provider != "primary" {
		t.Fatalf("expected workload references rewritten, got %+v", cfg.Workloads)
	}
}

func TestRenameEntityRejectsCollision(t *testing.T) {
	cfg := Default()
	cfg.Workloads = map[string]WorkloadConfig{
		"chat":  {Provider: "openai", Model: "gpt-5"},
		"title": {Provider: "openai", Model: "gpt-5-mini"},
	}
	if _, err := RenameEntity(&cfg, "workload", "chat", "title"); err == nil {
		t.Fatal("expected an error renaming onto an existing workload name")
	}
}

func TestManagerUpdatePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	withEnv(t, "AGENTSMITHY_CONFIG_DIR", filepath.Join(dir, "cfgroot"))
	workdir := filepath.Join(dir, "work")

	m, err := NewManager(workdir)
	if err != nil {
		t.Fatal(err)
	}

	updated, err := m.Update(Config{OpenAI: OpenAIConfig{Model: "gpt-5"}})
	if err != nil {
		t.Fatal(err)
	}
	if updated.OpenAI.Model != "gpt-5" {
		t.Fatalf("expected updated model, got %q", updated.OpenAI.Model)
	}
	if m.Get().OpenAI.Model != "gpt-5" {
		t.Fatal("expected Get() to reflect the update")
	}

	globalPath, _ := GlobalPath()
	if _, err := os.Stat(globalPath); err != nil {
		t.Fatalf("expected global config file to be written: %v", err)
	}
}
