package models

// ModelInfo describes one model for the /api/models endpoint.
type ModelInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Loaded  bool   `json:"loaded"`
}

// FeatureWeight pairs a feature name with its importance score.
type FeatureWeight struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// defaultImportances are the published importances used when no evaluation
// rows exist for a model.
var defaultImportances = []FeatureWeight{
	{Feature: "Credit-Short", Importance: 0.285},
	{Feature: "Credit-Long", Importance: 0.267},
	{Feature: "CPH", Importance: 0.198},
	{Feature: "Pay_His", Importance: 0.156},
	{Feature: "APH", Importance: 0.094},
}

// Info returns metadata for every known model.
func (r *Registry) Info() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ModelInfo, 0, len(KnownModels))
	for _, name := range KnownModels {
		info := ModelInfo{Name: name, Type: "rule_simulated", Version: "1.0", Loaded: false}
		if params, ok := r.models[name]; ok {
			info.Type = params.Type
			info.Version = params.Version
			info.Loaded = true
		}
		infos = append(infos, info)
	}
	return infos
}

// DefaultFeatureImportance returns the published importance table.
func DefaultFeatureImportance() []FeatureWeight {
	out := make([]FeatureWeight, len(defaultImportances))
	copy(out, defaultImportances)
	return out
}
