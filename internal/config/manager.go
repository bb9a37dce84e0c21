package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Manager holds the live, hot-reloadable configuration for one running
// server process. PUT /api/config and POST /api/config/rename write
// only to the global file (spec.md §6: "global writable only") and
// then reload the full global+overlay+env layering into a fresh
// snapshot, published via an atomic pointer so concurrent readers
// (chat turns already in flight) never observe a half-written Config.
type Manager struct {
	workdir string
	current atomic.Pointer[Config]
}

// NewManager loads the initial layered configuration for workdir.
func NewManager(workdir string) (*Manager, error) {
	cfg, err := Load(workdir)
	if err != nil {
		return nil, err
	}
	m := &Manager{workdir: workdir}
	m.current.Store(&cfg)
	return m, nil
}

// Get returns the current configuration snapshot.
func (m *Manager) Get() Config {
	return *m.current.Load()
}

// Reload re-runs the global+overlay+env layering and publishes the
// result, discarding any in-memory-only changes that were never
// written to the global file.
func (m *Manager) Reload() (Config, error) {
	cfg, err := Load(m.workdir)
	if err != nil {
		return Config{}, err
	}
	m.current.Store(&cfg)
	return cfg, nil
}

// Update deep-merges the fields present in patch onto the persisted
// global config file, then reloads. patch is applied field-by-field on
// the top-level structs and key-by-key on the Providers/Workloads maps
// so a partial PUT body only touches the keys it names.
func (m *Manager) Update(patch Config) (Config, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return Config{}, err
	}
	base, err := readOrDefault(globalPath)
	if err != nil {
		return Config{}, err
	}

	mergeInto(&base, patch)

	if err := writeGlobal(globalPath, base); err != nil {
		return Config{}, err
	}
	return m.Reload()
}

// Rename applies RenameEntity to the persisted global config and
// reloads, returning the updated workload references.
func (m *Manager) Rename(entityType, oldName, newName string) ([]string, Config, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, Config{}, err
	}
	base, err := readOrDefault(globalPath)
	if err != nil {
		return nil, Config{}, err
	}

	refs, err := RenameEntity(&base, entityType, oldName, newName)
	if err != nil {
		return nil, Config{}, err
	}
	if errs := Validate(base); len(errs) > 0 {
		return nil, Config{}, fmt.Errorf("rename would produce an invalid configuration: %v", errs)
	}

	if err := writeGlobal(globalPath, base); err != nil {
		return nil, Config{}, err
	}
	cfg, err := m.Reload()
	return refs, cfg, err
}

func readOrDefault(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse global config: %w", err)
	}
	return cfg, nil
}

func writeGlobal(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}

// mergeInto overlays every non-zero field of patch onto base, and
// every key of patch's maps onto base's maps (patch's own zero-valued
// map entries still overwrite, matching a PUT's "set these keys"
// semantics rather than a recursive per-field map merge).
func mergeInto(base *Config, patch Config) {
	if patch.OpenAI.APIKey != "" {
		base.OpenAI.APIKey = patch.OpenAI.APIKey
	}
	if patch.OpenAI.BaseURL != "" {
		base.OpenAI.BaseURL = patch.OpenAI.BaseURL
	}
	if patch.OpenAI.Model != "" {
		base.OpenAI.Model = patch.OpenAI.Model
	}
	if patch.EmbeddingModel != "" {
		base.EmbeddingModel = patch.EmbeddingModel
	}
	if patch.Server.Host != "" {
		base.Server.Host = patch.Server.Host
	}
	if patch.Server.Port != 0 {
		base.Server.Port = patch.Server.Port
	}
	if patch.Log.Format != "" {
		base.Log.Format = patch.Log.Format
	}
	if patch.Log.Level != "" {
		base.Log.Level = patch.Log.Level
	}
	if patch.Sandbox.Image != "" {
		base.Sandbox.Image = patch.Sandbox.Image
	}
	if patch.Sandbox.DefaultCommandTimeoutSeconds != 0 {
		base.Sandbox.DefaultCommandTimeoutSeconds = patch.Sandbox.DefaultCommandTimeoutSeconds
	}
	if patch.LLM.ChunkTimeoutSeconds != 0 {
		base.LLM.ChunkTimeoutSeconds = patch.LLM.ChunkTimeoutSeconds
	}
	if len(patch.Providers) > 0 {
		if base.Providers == nil {
			base.Providers = map[string]ProviderConfig{}
		}
		for k, v := range patch.Providers {
			base.Providers[k] = v
		}
	}
	if len(patch.Workloads) > 0 {
		if base.Workloads == nil {
			base.Workloads = map[string]WorkloadConfig{}
		}
		for k, v := range patch.Workloads {
			base.Workloads[k] = v
		}
	}
}
