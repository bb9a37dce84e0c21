package config

import "fmt"

// RenameEntity renames a provider or workload key and rewrites every
// workload's Provider reference that pointed at it, grounded on
// original_source/agentsmithy/config/schema.py's rename_entity: rename
// the entity, then walk every reference and rewrite it, reporting which
// references moved. cfg is mutated in place; updatedRefs lists the
// workload names whose Provider field was rewritten.
func RenameEntity(cfg *Config, entityType, oldName, newName string) (updatedRefs []string, err error) {
	if oldName == newName {
		return nil, fmt.Errorf("old_name and new_name must be different")
	}

	switch entityType {
	case "provider":
		p, ok := cfg.Providers[oldName]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", oldName)
		}
		if _, exists := cfg.Providers[newName]; exists {
			return nil, fmt.Errorf("provider %q already exists", newName)
		}
		delete(cfg.Providers, oldName)
		cfg.Providers[newName] = p
		for name, w := range cfg.Workloads {
			if w.Provider == oldName {
				w.Provider = newName
				cfg.Workloads[name] = w
				updatedRefs = append(updatedRefs, name)
			}
		}

	case "workload":
		w, ok := cfg.Workloads[oldName]
		if !ok {
			return nil, fmt.Errorf("unknown workload %q", oldName)
		}
		if _, exists := cfg.Workloads[newName]; exists {
			return nil, fmt.Errorf("workload %q already exists", newName)
		}
		delete(cfg.Workloads, oldName)
		cfg.Workloads[newName] = w

	default:
		return nil, fmt.Errorf("invalid entity type %q: must be 'provider' or 'workload'", entityType)
	}

	return updatedRefs, nil
}
