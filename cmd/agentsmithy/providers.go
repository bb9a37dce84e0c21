package main

import (
	"context"
	"fmt"
	"time"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/chat"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/config"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/llm"
	"github.com/AgentSmithyAI/agentsmithy-agent/internal/llm/gemini"
)

// buildProviders constructs one llm.Provider per entry in cfg.Providers
// and binds cfg.Workloads to them, the way the teacher's main.go wires a
// single gemini.New(ctx, apiKey) call but generalized to spec.md §9's
// named-provider/named-workload split: several credentials, each bound
// to whichever of chat/summarize/title needs it. A project with no
// providers/workloads configured falls back to a single gemini provider
// built from the legacy OPENAI_API_KEY/MODEL fields (config.go's
// OpenAIConfig), bound to every workload, so a fresh project still gets
// a working chat workload from the environment variables spec.md §6
// names without requiring the longer providers/workloads sections of
// config.yaml.
func buildProviders(ctx context.Context, cfg config.Config) (map[llm.Workload]chat.ProviderBinding, error) {
	chunkTimeout := time.Duration(cfg.LLM.ChunkTimeoutSeconds) * time.Second

	if len(cfg.Providers) == 0 {
		if cfg.OpenAI.APIKey == "" {
			return map[llm.Workload]chat.ProviderBinding{}, nil
		}
		provider, err := gemini.New(ctx, cfg.OpenAI.APIKey, chunkTimeout)
		if err != nil {
			return nil, fmt.Errorf("init default provider: %w", err)
		}
		binding := chat.ProviderBinding{Provider: provider, Model: cfg.OpenAI.Model}
		return map[llm.Workload]chat.ProviderBinding{
			llm.WorkloadChat:      binding,
			llm.WorkloadSummarize: binding,
			llm.WorkloadTitle:     binding,
		}, nil
	}

	built := map[string]llm.Provider{}
	get := func(name string) (llm.Provider, error) {
		if p, ok := built[name]; ok {
			return p, nil
		}
		pc, ok := cfg.Providers[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		switch pc.Type {
		case "gemini", "":
			p, err := gemini.New(ctx, pc.APIKey, chunkTimeout)
			if err != nil {
				return nil, fmt.Errorf("init provider %q: %w", name, err)
			}
			built[name] = p
			return p, nil
		default:
			return nil, fmt.Errorf("provider %q: unsupported type %q (only gemini is wired)", name, pc.Type)
		}
	}

	bindings := map[llm.Workload]chat.ProviderBinding{}
	for name, w := range cfg.Workloads {
		provider, err := get(w.Provider)
		if err != nil {
			return nil, err
		}
		bindings[llm.Workload(name)] = chat.ProviderBinding{Provider: provider, Model: w.Model}
	}
	return bindings, nil
}
